package scraper

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/iticjobs/jobscrape/internal/normalize"
)

const (
	theMuseBase     = "https://www.themuse.com"
	theMuseMaxPages = 50
)

var (
	theMuseCompanyRe  = regexp.MustCompile(`\bAt\s+([A-Za-z0-9&.,'’\- ]{2,80})\b`)
	postedFragmentRe  = regexp.MustCompile(`(?i)posted[^.\n|]{0,40}`)
	theMuseNavEntries = map[string]struct{}{"jobs": {}, "companies": {}, "advice": {}, "coaching": {}}
)

type TheMuse struct {
	fetcher Fetcher
	base    string
	siteBase
}

func NewTheMuse(fetcher Fetcher, deps siteBase) *TheMuse {
	return &TheMuse{fetcher: fetcher, base: theMuseBase, siteBase: deps}
}

func (m *TheMuse) Name() string {
	return SiteTheMuse
}

type theMuseCard struct {
	link string
	text string
}

func (m *TheMuse) Search(ctx context.Context, params models.SearchParams) ([]models.Job, error) {
	var jobs []models.Job
	seen := map[string]struct{}{}

	pages := maxPages(params, theMuseMaxPages)
	for page := 1; page <= pages; page++ {
		doc, err := fetchDocument(ctx, m.fetcher, m.searchURL(params.Query, page), nil)
		if err != nil {
			if len(jobs) > 0 {
				m.logger.Debug().Err(err).Int("page", page).Msg("stop paging")
				break
			}
			return nil, fmt.Errorf("themuse: %w", err)
		}

		cards := theMuseCards(doc, m.base)
		fresh := 0
		for _, card := range cards {
			id := theMuseJobID(card.link)
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			fresh++

			detail, err := fetchDocument(ctx, m.fetcher, card.link, nil)
			if err != nil {
				if ctx.Err() != nil {
					return jobs, ctx.Err()
				}
				m.logger.Debug().Err(err).Str("url", card.link).Msg("skip job")
				continue
			}
			job := parseTheMuseDetail(detail, card, m.today())
			if job.Title == "" {
				continue
			}
			job.JobID = id
			job.Subtitle = params.Query
			jobs = append(jobs, job)
			if limitReached(params, len(jobs)) {
				return jobs, nil
			}
		}
		if fresh == 0 {
			break
		}
		if err := pause(ctx, params.Sleep); err != nil {
			return jobs, err
		}
	}

	return jobs, nil
}

func (m *TheMuse) searchURL(keyword string, page int) string {
	return fmt.Sprintf("%s/search/keyword/%s?page=%d", m.base, url.PathEscape(strings.TrimSpace(keyword)), page)
}

// theMuseCards finds the "View Job" controls of the result list. The card is
// the grandparent of the control.
func theMuseCards(doc *goquery.Document, base string) []theMuseCard {
	var cards []theMuseCard
	doc.Find("a, button").Each(func(_ int, s *goquery.Selection) {
		if !strings.Contains(strings.ToUpper(cleanText(s.Text())), "VIEW JOB") {
			return
		}
		card := s.Parent().Parent()
		href := s.AttrOr("href", "")
		if href == "" {
			href = card.Find("a[href]").First().AttrOr("href", "")
		}
		if href == "" {
			return
		}
		cards = append(cards, theMuseCard{
			link: absoluteURL(base, strings.TrimSpace(href)),
			text: cleanText(card.Text()),
		})
	})
	return cards
}

// theMuseJobID is the job query parameter, or the whole URL.
func theMuseJobID(link string) string {
	if u, err := url.Parse(link); err == nil {
		if job := u.Query().Get("job"); job != "" {
			return job
		}
	}
	return link
}

// theMuseLocation reads "Title - Location Posted ..." card text.
func theMuseLocation(cardText string) string {
	_, after, ok := strings.Cut(cardText, " - ")
	if !ok {
		return ""
	}
	return normalize.Location(after)
}

func parseTheMuseDetail(doc *goquery.Document, card theMuseCard, now time.Time) models.Job {
	root := doc.Find("main").First()
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}
	text := strings.Join(pageLines(root), "\n")

	return models.Job{
		Title:      theMuseTitle(doc),
		Company:    theMuseCompany(doc, text),
		Location:   theMuseLocation(card.text),
		Salary:     normalize.SalaryFromText(text),
		JobType:    normalize.JobType(text),
		Education:  normalize.Education(text),
		Skills:     normalize.Skills(text, normalize.DefaultSkillVocabulary),
		URL:        card.link,
		Source:     SiteTheMuse,
		PostedDate: theMusePosted(card.text, text, now),
	}
}

func theMuseTitle(doc *goquery.Document) string {
	for _, sel := range []string{"main h1", "h1"} {
		title := cleanText(doc.Find(sel).First().Text())
		if title != "" && !strings.Contains(strings.ToLower(title), "jobs") {
			return title
		}
	}
	return ""
}

func theMuseCompany(doc *goquery.Document, text string) string {
	name := cleanText(doc.Find("a[href*='/profiles/']").First().Text())
	if _, nav := theMuseNavEntries[strings.ToLower(name)]; name != "" && len(name) < 120 && !nav {
		return name
	}
	if m := theMuseCompanyRe.FindStringSubmatch(text); m != nil {
		name, _, _ = strings.Cut(strings.TrimSpace(m[1]), " - ")
		return strings.TrimSpace(name)
	}
	return ""
}

// theMusePosted tries the card text, then the "Posted ..." fragment of the
// detail page, and falls back to today.
func theMusePosted(cardText, detailText string, now time.Time) time.Time {
	if ts, ok := normalize.ParseDate(cardText, now); ok {
		return ts
	}
	if fragment := postedFragmentRe.FindString(detailText); fragment != "" {
		if ts, ok := normalize.ParseDate(fragment, now); ok {
			return ts
		}
	}
	return normalize.Day(now)
}
