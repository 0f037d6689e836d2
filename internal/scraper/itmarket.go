package scraper

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/iticjobs/jobscrape/internal/keywords"
	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/iticjobs/jobscrape/internal/normalize"
	"github.com/iticjobs/jobscrape/internal/textseg"
)

const (
	itMarketBase     = "https://it-market.uz"
	itMarketMaxPages = 40
)

var (
	itMarketJobPath = regexp.MustCompile(`^/job/([A-Za-z0-9]+)/$`)

	itMarketLayout = textseg.New(
		"Work style", "Salary", "Work experience", "Employment type",
		"Description", "Tasks", "Schedule", "Required Skills", "Additional requirements",
	)
	itMarketSectionStops = []string{"Minimum age", "Maximum age", "Comments"}
	itMarketSkillStops   = []string{"Address:", "Phone:", "Email:", "Jobs by specializations", "Comments"}
	itMarketCompanyStops = []string{"General information about the employer", "Company Name"}

	itMarketSections = []struct{ label, prefix string }{
		{"Description", "DESCRIPTION: "},
		{"Tasks", "TASKS: "},
		{"Schedule", "SCHEDULE: "},
		{"Additional requirements", "ADDITIONAL REQUIREMENTS: "},
	}
)

// ITMarket scrapes it-market.uz. The site search is unreliable, so listing
// pages are walked with several query parameter names and each detail page
// is filtered against the keyword afterwards.
type ITMarket struct {
	fetcher Fetcher
	base    string
	siteBase
}

func NewITMarket(fetcher Fetcher, deps siteBase) *ITMarket {
	return &ITMarket{fetcher: fetcher, base: itMarketBase, siteBase: deps}
}

func (m *ITMarket) Name() string {
	return SiteITMarket
}

func (m *ITMarket) Search(ctx context.Context, params models.SearchParams) ([]models.Job, error) {
	urls, err := m.collectURLs(ctx, params.Query, maxPages(params, itMarketMaxPages))
	if err != nil {
		return nil, err
	}

	var jobs []models.Job
	for _, link := range urls {
		if limitReached(params, len(jobs)) {
			break
		}
		doc, err := fetchDocument(ctx, m.fetcher, link, nil)
		if err != nil {
			if ctx.Err() != nil {
				return jobs, ctx.Err()
			}
			m.logger.Debug().Err(err).Str("url", link).Msg("skip detail page")
			continue
		}

		job := m.parseDetail(doc, link)
		if !itMarketMatches(job, params.Query) {
			continue
		}
		jobs = append(jobs, job)

		if err := pause(ctx, params.Sleep); err != nil {
			return jobs, err
		}
	}
	return jobs, nil
}

// collectURLs gathers detail links for keyword. When no search variant yields
// anything the unfiltered listing is walked instead.
func (m *ITMarket) collectURLs(ctx context.Context, keyword string, pages int) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	add := func(links []string) int {
		added := 0
		for _, link := range links {
			if _, ok := seen[link]; ok {
				continue
			}
			seen[link] = struct{}{}
			out = append(out, link)
			added++
		}
		return added
	}

	var firstErr error
	for _, param := range []string{"search", "q", "query"} {
		for page := 1; page <= pages; page++ {
			links, err := m.listPage(ctx, url.Values{param: {keyword}}, page)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				if firstErr == nil {
					firstErr = err
				}
				break
			}
			if len(links) == 0 {
				break
			}
			if add(links) == 0 && page >= 2 {
				break
			}
		}
	}

	if len(out) == 0 {
		for page := 1; page <= pages; page++ {
			links, err := m.listPage(ctx, url.Values{}, page)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				if firstErr == nil {
					firstErr = err
				}
				break
			}
			if len(links) == 0 {
				break
			}
			add(links)
		}
	}

	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	sort.Strings(out)
	return out, nil
}

func (m *ITMarket) listPage(ctx context.Context, values url.Values, page int) ([]string, error) {
	if page != 1 {
		values.Set("page", strconv.Itoa(page))
	}
	target := m.base + "/job/"
	if encoded := values.Encode(); encoded != "" {
		target += "?" + encoded
	}

	doc, err := fetchDocument(ctx, m.fetcher, target, nil)
	if err != nil {
		return nil, err
	}
	return itMarketLinks(doc, m.base), nil
}

func itMarketLinks(doc *goquery.Document, base string) []string {
	seen := map[string]struct{}{}
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if !strings.HasPrefix(href, "/job/") || strings.Contains(href, "/apply") {
			return
		}
		href = strings.TrimRight(href, "/") + "/"
		if !itMarketJobPath.MatchString(href) {
			return
		}
		link := absoluteURL(base, href)
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links
}

func itMarketJobID(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	match := itMarketJobPath.FindStringSubmatch(strings.TrimRight(u.Path, "/") + "/")
	if match == nil {
		return ""
	}
	return match[1]
}

func (m *ITMarket) parseDetail(doc *goquery.Document, link string) models.Job {
	lines := pageLines(doc.Selection)
	title := cleanText(doc.Find("h1").First().Text())

	workStyle := itMarketLayout.Value(lines, "Work style")
	experience := itMarketLayout.Value(lines, "Work experience")
	employment := itMarketLayout.Value(lines, "Employment type")

	var parts []string
	for _, section := range itMarketSections {
		if text := itMarketLayout.Section(lines, section.label, itMarketSectionStops...); text != "" {
			parts = append(parts, section.prefix+text)
		}
	}

	var subtitle []string
	for _, value := range []string{workStyle, experience, employment} {
		if value != "" {
			subtitle = append(subtitle, value)
		}
	}

	jobType := employment
	if jobType == "" {
		jobType = workStyle
	}

	id := itMarketJobID(link)
	if id == "" {
		id = link
	}

	return models.Job{
		JobID:       id,
		Title:       title,
		Company:     textseg.After(lines, title, 14, 2, 80, itMarketCompanyStops...),
		Skills:      strings.Join(textseg.Until(lines, "Required Skills", itMarketSkillStops, 2, 80), ", "),
		Salary:      itMarketLayout.Value(lines, "Salary"),
		JobType:     jobType,
		URL:         link,
		Source:      SiteITMarket,
		Description: strings.Join(parts, "\n\n"),
		Subtitle:    strings.Join(subtitle, " | "),
		PostedDate:  normalize.PostedDate(textseg.Prefixed(lines, "Updated:"), m.today()),
	}
}

func itMarketMatches(job models.Job, keyword string) bool {
	hay := strings.Join([]string{job.Title, job.Skills, job.Description, job.Subtitle, job.Company}, " ")
	return keywords.MatchText(hay, keyword)
}
