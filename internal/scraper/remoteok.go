package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/iticjobs/jobscrape/internal/keywords"
	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/iticjobs/jobscrape/internal/normalize"
)

const remoteOKBase = "https://remoteok.com"

type RemoteOK struct {
	fetcher Fetcher
	base    string
	siteBase
}

func NewRemoteOK(fetcher Fetcher, deps siteBase) *RemoteOK {
	return &RemoteOK{fetcher: fetcher, base: remoteOKBase, siteBase: deps}
}

func (r *RemoteOK) Name() string {
	return SiteRemoteOK
}

// Search reads the keyword's tag page. Rows that match none of the search
// keywords are dropped and the first matching keyword becomes the subtitle.
func (r *RemoteOK) Search(ctx context.Context, params models.SearchParams) ([]models.Job, error) {
	target := fmt.Sprintf("%s/remote-%s-jobs", r.base, slugify(params.Query))
	doc, err := fetchDocument(ctx, r.fetcher, target, nil)
	if err != nil {
		return nil, fmt.Errorf("remoteok: %w", err)
	}

	terms := searchTerms(params)
	var jobs []models.Job
	for _, job := range parseRemoteOKRows(doc, r.base, r.today()) {
		matched, ok := keywords.FirstMatch(terms, job.Title, job.Company, job.Location, job.Skills)
		if !ok {
			continue
		}
		job.Subtitle = matched
		jobs = append(jobs, job)
		if limitReached(params, len(jobs)) {
			break
		}
	}
	return jobs, nil
}

// searchTerms is the query followed by the remaining run keywords.
func searchTerms(params models.SearchParams) []string {
	terms := []string{params.Query}
	for _, kw := range params.Keywords {
		if kw != params.Query {
			terms = append(terms, kw)
		}
	}
	return terms
}

func parseRemoteOKRows(doc *goquery.Document, base string, now time.Time) []models.Job {
	var jobs []models.Job
	seen := map[string]struct{}{}

	doc.Find("tr.job").Each(func(_ int, s *goquery.Selection) {
		rid := strings.TrimSpace(s.AttrOr("data-id", ""))
		if rid == "" {
			return
		}
		id := "remoteok_" + rid
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}

		var tags []string
		s.Find(".tags a, .tags span").Each(func(_ int, tag *goquery.Selection) {
			if text := cleanText(tag.Text()); text != "" {
				tags = append(tags, text)
			}
		})
		skills := strings.Join(tags, ", ")

		link := s.Find("a[href*='/remote-jobs/']").First().AttrOr("href", "")
		if link == "" {
			link = s.AttrOr("data-url", "")
		}

		jobs = append(jobs, models.Job{
			JobID:      id,
			Title:      cleanText(s.Find("h2").First().Text()),
			Company:    cleanText(s.Find("h3").First().Text()),
			Location:   normalize.Location(s.Find(".location").First().Text()),
			Salary:     cleanText(s.Find(".salary").First().Text()),
			Skills:     skills,
			JobType:    remoteOKJobType(skills),
			URL:        absoluteURL(base, strings.TrimSpace(link)),
			Source:     SiteRemoteOK,
			PostedDate: remoteOKPosted(s, now),
		})
	})

	return jobs
}

func remoteOKJobType(skills string) string {
	low := strings.ToLower(skills)
	switch {
	case strings.Contains(low, "full"):
		return "Full-time"
	case strings.Contains(low, "part"):
		return "Part-time"
	case strings.Contains(low, "contract"):
		return "Contract"
	}
	return ""
}

// remoteOKPosted reads the compact age ("7h", "2d") of a row, then the
// time element's datetime attribute.
func remoteOKPosted(row *goquery.Selection, now time.Time) time.Time {
	for _, sel := range []string{"td.time", ".time", "time"} {
		text := cleanText(row.Find(sel).First().Text())
		if ts, ok := normalize.RelativeAge(text, now); ok {
			return normalize.Day(ts)
		}
	}
	if raw, ok := row.Find("time[datetime]").First().Attr("datetime"); ok {
		if ts, ok := normalize.ParseDate(raw, now); ok {
			return ts
		}
	}
	return normalize.Day(now)
}
