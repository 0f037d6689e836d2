package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/iticjobs/jobscrape/internal/cleaner"
	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/iticjobs/jobscrape/internal/normalize"
)

const (
	indeedPageSize     = 10
	indeedMaxPages     = 30
	indeedNoDegree     = "No Degree Required"
	indeedMaxIDLength  = 100
	indeedCardSelector = "div.job_seen_beacon, a.tapItem"
)

type Indeed struct {
	fetcher Fetcher
	cleaner *cleaner.Cleaner
	siteBase
}

func NewIndeed(fetcher Fetcher, c *cleaner.Cleaner, deps siteBase) *Indeed {
	if c == nil {
		c = cleaner.New()
	}
	return &Indeed{fetcher: fetcher, cleaner: c, siteBase: deps}
}

func (i *Indeed) Name() string {
	return SiteIndeed
}

func (i *Indeed) Search(ctx context.Context, params models.SearchParams) ([]models.Job, error) {
	var jobs []models.Job
	seen := map[string]struct{}{}

	pages := maxPages(params, indeedMaxPages)
	for page := 0; page < pages; page++ {
		doc, err := fetchDocument(ctx, i.fetcher, buildIndeedURL(params, page), nil)
		if err != nil {
			if len(jobs) > 0 {
				i.logger.Debug().Err(err).Int("page", page).Msg("stop paging")
				break
			}
			return nil, err
		}

		found := i.parseCards(doc, params)
		if len(found) == 0 && page == 0 {
			found = parseJSONLDJobs(doc, SiteIndeed, i.today())
			for idx := range found {
				found[idx] = indeedDefaults(found[idx])
			}
		}
		if len(found) == 0 {
			break
		}

		added := 0
		for _, job := range found {
			if _, ok := seen[job.JobID]; ok {
				continue
			}
			seen[job.JobID] = struct{}{}
			jobs = append(jobs, job)
			added++
			if limitReached(params, len(jobs)) {
				return jobs, nil
			}
		}
		if added == 0 || !hasNextIndeedPage(doc) {
			break
		}
		if err := pause(ctx, params.Sleep); err != nil {
			return jobs, err
		}
	}

	return jobs, nil
}

func (i *Indeed) parseCards(doc *goquery.Document, params models.SearchParams) []models.Job {
	base := baseIndeedURL(params.Country)
	var jobs []models.Job
	doc.Find(indeedCardSelector).Each(func(_ int, s *goquery.Selection) {
		link := s.Find("a.jcs-JobTitle").First()
		if link.Length() == 0 {
			link = s
		}
		href := absoluteURL(base, strings.TrimSpace(link.AttrOr("href", "")))

		title := cleanText(s.Find("h2.jobTitle span").First().Text())
		if title == "" {
			title = cleanText(link.Text())
		}
		if title == "" || href == "" {
			return
		}

		snippetHTML, _ := s.Find("div.job-snippet, [data-testid='jobsnippet_footer']").First().Html()
		snippet := i.cleaner.CleanToText(snippetHTML)
		metadata := cleanText(s.Find("div.metadata, [data-testid='attribute_snippet_testid']").Text())
		salary := cleanText(s.Find("div.salary-snippet-container, [data-testid='salary-snippet']").First().Text())
		if salary == "" {
			salary = normalize.SalaryFromText(metadata)
		}

		job := models.Job{
			JobID:       indeedJobID(link.AttrOr("data-jk", s.AttrOr("data-jk", "")), href),
			Title:       title,
			Company:     cleanText(s.Find("[data-testid='company-name'], span.companyName").First().Text()),
			Location:    normalize.Location(s.Find("[data-testid='text-location'], div.companyLocation").First().Text()),
			Salary:      normalize.Salary(salary),
			JobType:     normalize.JobType(metadata + " " + snippet),
			Education:   normalize.Education(snippet),
			Skills:      normalize.Skills(snippet, normalize.DefaultSkillVocabulary),
			URL:         href,
			Source:      SiteIndeed,
			Description: snippet,
			Subtitle:    params.Query,
			PostedDate:  normalize.PostedDate(cleanText(s.Find("span.date, [data-testid='myJobsStateDate']").First().Text()), i.today()),
		}
		jobs = append(jobs, indeedDefaults(job))
	})
	return jobs
}

func indeedDefaults(job models.Job) models.Job {
	job.Source = SiteIndeed
	if job.Education == "" {
		job.Education = indeedNoDegree
	}
	if job.JobID == "" {
		job.JobID = indeedJobID("", job.URL)
	}
	return job
}

// indeedJobID prefers the card's data-jk, then the vjk/jk query value, and
// finally the URL itself cut to 100 characters.
func indeedJobID(dataJK string, link string) string {
	if id := strings.TrimSpace(dataJK); id != "" {
		return id
	}
	if u, err := url.Parse(link); err == nil {
		query := u.Query()
		for _, key := range []string{"vjk", "jk"} {
			if id := strings.TrimSpace(query.Get(key)); id != "" {
				return id
			}
		}
	}
	link = strings.TrimSpace(link)
	if len(link) > indeedMaxIDLength {
		return link[:indeedMaxIDLength]
	}
	return link
}

func hasNextIndeedPage(doc *goquery.Document) bool {
	next := doc.Find("[data-testid='pagination-page-next'], a[aria-label='Next Page']").First()
	if next.Length() == 0 {
		return false
	}
	if strings.EqualFold(next.AttrOr("aria-disabled", ""), "true") {
		return false
	}
	return !strings.Contains(strings.ToLower(next.AttrOr("class", "")), "disabled")
}

func buildIndeedURL(params models.SearchParams, page int) string {
	values := url.Values{}
	values.Set("q", params.Query)
	values.Set("l", params.Location)
	values.Set("sort", "date")
	if page > 0 {
		values.Set("start", fmt.Sprintf("%d", page*indeedPageSize))
	}
	return fmt.Sprintf("%s/jobs?%s", baseIndeedURL(params.Country), values.Encode())
}

func baseIndeedURL(country string) string {
	country = strings.TrimSpace(strings.ToLower(country))
	if country == "" || country == "usa" || country == "us" {
		return "https://www.indeed.com"
	}
	return fmt.Sprintf("https://%s.indeed.com", country)
}
