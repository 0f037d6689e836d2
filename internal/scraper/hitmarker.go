package scraper

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/iticjobs/jobscrape/internal/keywords"
	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/iticjobs/jobscrape/internal/normalize"
	"github.com/iticjobs/jobscrape/internal/textseg"
)

const (
	hitmarkerBase       = "https://hitmarker.net"
	hitmarkerMaxPages   = 50
	hitmarkerNoNewStop  = 3
	hitmarkerDescLimit  = 20000
	hitmarkerShortLine  = 80
	hitmarkerSalaryLine = 120
)

var (
	hitmarkerJobPath  = regexp.MustCompile(`^/jobs/.+-\d+$`)
	hitmarkerEmpHints = []string{"Full Time", "Part Time", "Contract", "Freelance", "Internship", "Temporary"}
	hitmarkerNavLines = map[string]struct{}{
		"jobs": {}, "companies": {}, "news": {}, "about": {}, "contact": {}, "report": {},
	}
)

// Hitmarker walks the whole job board once and keeps the postings that
// mention any of the run keywords. List pages may need the browser; detail
// pages are plain HTML and go through the retrying HTTP client.
type Hitmarker struct {
	pages  Fetcher
	detail Fetcher
	base   string
	siteBase
}

func NewHitmarker(pages Fetcher, detail Fetcher, deps siteBase) *Hitmarker {
	return &Hitmarker{pages: pages, detail: detail, base: hitmarkerBase, siteBase: deps}
}

func (h *Hitmarker) Name() string {
	return SiteHitmarker
}

func (h *Hitmarker) ListsAll() bool {
	return true
}

func (h *Hitmarker) Search(ctx context.Context, params models.SearchParams) ([]models.Job, error) {
	links, err := h.collectLinks(ctx, maxPages(params, hitmarkerMaxPages), params)
	if err != nil {
		return nil, err
	}

	terms := params.Keywords
	if len(terms) == 0 && params.Query != "" {
		terms = []string{params.Query}
	}

	headers := map[string]string{"referer": h.base + "/jobs"}
	var jobs []models.Job
	for _, link := range links {
		if limitReached(params, len(jobs)) {
			break
		}
		doc, err := fetchDocument(ctx, h.detail, link, headers)
		if err != nil {
			if ctx.Err() != nil {
				return jobs, ctx.Err()
			}
			h.logger.Debug().Err(err).Str("url", link).Msg("skip job")
			continue
		}

		job := h.parseDetail(doc, link)
		if !keywords.MatchAny(job.Title+" "+job.Company+" "+job.Description, terms) {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// collectLinks stops after hitmarkerNoNewStop consecutive pages without a
// new job link.
func (h *Hitmarker) collectLinks(ctx context.Context, pages int, params models.SearchParams) ([]string, error) {
	seen := map[string]struct{}{}
	var links []string
	noNew := 0

	for page := 1; page <= pages; page++ {
		doc, err := fetchDocument(ctx, h.pages, fmt.Sprintf("%s/jobs?page=%d", h.base, page), nil)
		if err != nil {
			if len(links) > 0 {
				h.logger.Debug().Err(err).Int("page", page).Msg("stop listing")
				break
			}
			return nil, fmt.Errorf("hitmarker: %w", err)
		}

		fresh := 0
		for _, link := range h.jobLinks(doc) {
			if _, ok := seen[link]; ok {
				continue
			}
			seen[link] = struct{}{}
			links = append(links, link)
			fresh++
		}

		if fresh == 0 {
			noNew++
		} else {
			noNew = 0
		}
		if noNew >= hitmarkerNoNewStop {
			break
		}
		if err := pause(ctx, params.Sleep); err != nil {
			return links, err
		}
	}
	return links, nil
}

func (h *Hitmarker) jobLinks(doc *goquery.Document) []string {
	base, err := url.Parse(h.base)
	if err != nil {
		return nil
	}
	host := strings.TrimPrefix(base.Host, "www.")

	var links []string
	doc.Find("a[href*='/jobs/']").Each(func(_ int, s *goquery.Selection) {
		link := absoluteURL(h.base, strings.TrimSpace(s.AttrOr("href", "")))
		u, err := url.Parse(link)
		if err != nil || strings.TrimPrefix(u.Host, "www.") != host {
			return
		}
		if u.RawQuery != "" || !hitmarkerJobPath.MatchString(u.Path) {
			return
		}
		links = append(links, link)
	})
	return links
}

func (h *Hitmarker) parseDetail(doc *goquery.Document, link string) models.Job {
	h1 := doc.Find("h1").First()
	title := cleanText(h1.Text())
	company := hitmarkerCompany(doc, h1)
	lines := pageLines(doc.Find("body"))

	jobType := textseg.FirstContaining(lines, hitmarkerShortLine, func(line string) bool {
		for _, hint := range hitmarkerEmpHints {
			if strings.Contains(line, hint) {
				return true
			}
		}
		return false
	})
	experience := textseg.FirstContaining(lines, 100, func(line string) bool {
		return strings.Contains(strings.ToLower(line), "years") && strings.Contains(line, "(") && strings.Contains(line, ")")
	})
	salary := textseg.FirstContaining(lines, hitmarkerSalaryLine, func(line string) bool {
		low := strings.ToLower(line)
		return strings.ContainsAny(line, "$£€") || strings.Contains(low, "per year") || strings.Contains(low, "per hour")
	})
	location := textseg.FirstContaining(lines, hitmarkerShortLine, func(line string) bool {
		return strings.Contains(line, "Remote")
	})
	if location == "" {
		location = textseg.FirstContaining(lines, hitmarkerShortLine, func(line string) bool {
			if !strings.Contains(line, ",") || strings.Contains(title, line) || strings.Contains(company, line) {
				return false
			}
			_, nav := hitmarkerNavLines[strings.ToLower(line)]
			return !nav
		})
	}

	description := firstRunes(strings.Join(lines, " "), hitmarkerDescLimit)
	location = normalize.Location(location)

	return models.Job{
		JobID:       JobHash(title, company, location, link),
		Title:       title,
		Company:     company,
		Location:    location,
		JobType:     jobType,
		Subtitle:    experience,
		Salary:      normalize.Salary(salary),
		Skills:      normalize.Skills(description, normalize.DefaultSkillVocabulary),
		Education:   normalize.Education(description),
		URL:         link,
		Source:      SiteHitmarker,
		Description: description,
		PostedDate:  normalize.PostedDate("", h.today()),
	}
}

// hitmarkerCompany prefers a /companies/ link and falls back to the first
// labelled link after the title.
func hitmarkerCompany(doc *goquery.Document, h1 *goquery.Selection) string {
	var company string
	doc.Find("a[href^='/companies/']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		company = cleanText(s.Text())
		return company == ""
	})
	if company != "" || h1.Length() == 0 {
		return company
	}
	h1.Parent().Find("a[href]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		company = cleanText(s.Text())
		return company == "" && i < 7
	})
	return company
}

func firstRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
