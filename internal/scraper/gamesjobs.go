package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/iticjobs/jobscrape/internal/normalize"
)

const (
	gamesJobsBase         = "https://www.gamesjobsdirect.com"
	gamesJobsMaxPages     = 30
	gamesJobsMinDescLen   = 80
	gamesJobsMaxTitleHint = 200
)

var (
	gamesJobsTitleSel    = []string{"h1", ".job-title", ".title", "header h1"}
	gamesJobsCompanySel  = []string{".company-name", ".company", "[class*='company']"}
	gamesJobsLocationSel = []string{".location", "[class*='location']"}
	gamesJobsPostedSel   = []string{".job-posted-date", "[class*='posted']"}
	gamesJobsSalarySel   = []string{".salary", "[class*='salary']"}
	gamesJobsDescSel     = []string{".job-description", "[class*='description']", "article", "main"}
)

type GamesJobsDirect struct {
	fetcher Fetcher
	base    string
	siteBase
}

func NewGamesJobsDirect(fetcher Fetcher, deps siteBase) *GamesJobsDirect {
	return &GamesJobsDirect{fetcher: fetcher, base: gamesJobsBase, siteBase: deps}
}

func (g *GamesJobsDirect) Name() string {
	return SiteGamesJobsDirect
}

type gamesJobsLink struct {
	url        string
	titleGuess string
}

// Search stops with ErrBlocked as soon as the site serves a challenge page;
// jobs collected before that are returned with the error.
func (g *GamesJobsDirect) Search(ctx context.Context, params models.SearchParams) ([]models.Job, error) {
	var jobs []models.Job
	seen := map[string]struct{}{}

	pages := maxPages(params, gamesJobsMaxPages)
	for page := 1; page <= pages; page++ {
		doc, err := fetchUnblocked(ctx, g.fetcher, g.searchURL(params.Query, page), nil)
		if err != nil {
			if errors.Is(err, ErrBlocked) {
				return jobs, err
			}
			if len(jobs) > 0 {
				g.logger.Debug().Err(err).Int("page", page).Msg("stop paging")
				break
			}
			return nil, fmt.Errorf("gamesjobsdirect: %w", err)
		}

		links := gamesJobsLinks(doc, g.base)
		fresh := 0
		for _, link := range links {
			if _, ok := seen[link.url]; ok {
				continue
			}
			seen[link.url] = struct{}{}
			fresh++

			job, err := g.detail(ctx, link)
			if errors.Is(err, ErrBlocked) {
				return jobs, err
			}
			if ctx.Err() != nil {
				return jobs, ctx.Err()
			}
			if job.Title == "" {
				continue
			}
			job.Subtitle = params.Query
			jobs = append(jobs, job)
			if limitReached(params, len(jobs)) {
				return jobs, nil
			}
			if err := pause(ctx, params.Sleep); err != nil {
				return jobs, err
			}
		}
		if fresh == 0 {
			break
		}
	}
	return jobs, nil
}

func (g *GamesJobsDirect) searchURL(keyword string, page int) string {
	values := url.Values{}
	values.Set("q", keyword)
	values.Set("page", fmt.Sprintf("%d", page))
	return g.base + "/search?" + values.Encode()
}

// detail parses the job page. A failed fetch keeps the listing's title
// guess so the posting is not lost.
func (g *GamesJobsDirect) detail(ctx context.Context, link gamesJobsLink) (models.Job, error) {
	job := models.Job{}
	doc, err := fetchUnblocked(ctx, g.fetcher, link.url, nil)
	if err != nil {
		if errors.Is(err, ErrBlocked) {
			return job, err
		}
		g.logger.Debug().Err(err).Str("url", link.url).Msg("detail page failed")
	} else {
		job = parseGamesJobsDetail(doc, g.today())
	}

	if job.Title == "" {
		job.Title = link.titleGuess
	}
	if job.PostedDate.IsZero() {
		job.PostedDate = normalize.Day(g.today())
	}
	job.URL = link.url
	job.Source = SiteGamesJobsDirect
	job.JobID = JobHash(job.Title, job.Company, job.Location, link.url)
	return job, nil
}

func gamesJobsLinks(doc *goquery.Document, base string) []gamesJobsLink {
	var links []gamesJobsLink
	seen := map[string]struct{}{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || (!strings.Contains(href, "/jobs/") && !strings.Contains(href, "/job")) {
			return
		}
		full := absoluteURL(base, href)
		if _, ok := seen[full]; ok {
			return
		}
		seen[full] = struct{}{}
		links = append(links, gamesJobsLink{url: full, titleGuess: truncate(cleanText(s.Text()), gamesJobsMaxTitleHint)})
	})
	return links
}

func parseGamesJobsDetail(doc *goquery.Document, now time.Time) models.Job {
	description := ""
	for _, sel := range gamesJobsDescSel {
		text := strings.Join(pageLines(doc.Find(sel).First()), "\n")
		if len(text) > gamesJobsMinDescLen {
			description = text
			break
		}
	}

	return models.Job{
		Title:       pickText(doc, gamesJobsTitleSel),
		Company:     pickText(doc, gamesJobsCompanySel),
		Location:    normalize.Location(pickText(doc, gamesJobsLocationSel)),
		Salary:      normalize.Salary(pickText(doc, gamesJobsSalarySel)),
		Description: description,
		JobType:     normalize.JobType(description),
		Education:   normalize.Education(description),
		Skills:      normalize.Skills(description, normalize.DefaultSkillVocabulary),
		PostedDate:  normalize.PostedDate(pickText(doc, gamesJobsPostedSel), now),
	}
}

// pickText returns the text of the first selector that matches a non-empty
// element.
func pickText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if text := cleanText(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}
