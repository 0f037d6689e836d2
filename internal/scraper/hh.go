package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/proxy"
	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/iticjobs/jobscrape/internal/network"
	"github.com/iticjobs/jobscrape/internal/normalize"
)

const (
	hhBase        = "https://tashkent.hh.uz"
	hhMaxPages    = 50
	hhMinIDLength = 6
	hhMinTitleLen = 5
	hhLinkSel     = "a.magritte-link[href], a[data-qa='serp-item__title'][href]"
)

// hhBadTitleWords mark aggregator and employer pages that sit among the
// vacancy links.
var hhBadTitleWords = []string{
	"найдено", "vacancy", "employers", "работодател",
	"ооо ", "тоо ", "ип ", "ao ", "ltd",
}

// HH crawls tashkent.hh.uz with colly. Proxies, when configured, are used
// round-robin per request. Every visit waits on limiter, the same per-host
// budget the HTTP clients share.
type HH struct {
	collector *colly.Collector
	limiter   *network.HostLimiter
	base      string
	siteBase
}

func NewHH(proxies []string, limiter *network.HostLimiter, deps siteBase) *HH {
	c := colly.NewCollector(
		colly.UserAgent(network.RandomUserAgent()),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(30 * time.Second)

	var cleaned []string
	for _, p := range proxies {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		switcher, err := proxy.RoundRobinProxySwitcher(cleaned...)
		if err != nil {
			deps.logger.Warn().Err(err).Msg("ignoring hh.uz proxies")
		} else {
			c.SetProxyFunc(switcher)
		}
	}

	return &HH{collector: c, limiter: limiter, base: hhBase, siteBase: deps}
}

func (h *HH) Name() string {
	return SiteHH
}

func (h *HH) Search(ctx context.Context, params models.SearchParams) ([]models.Job, error) {
	var jobs []models.Job
	visited := map[string]struct{}{}

	pages := maxPages(params, hhMaxPages)
	for page := 0; page < pages; page++ {
		links, err := h.listPage(ctx, params.Query, page)
		if err != nil {
			if ctx.Err() != nil {
				return jobs, ctx.Err()
			}
			if len(jobs) > 0 {
				h.logger.Debug().Err(err).Int("page", page).Msg("stop paging")
				break
			}
			return nil, err
		}
		if len(links) == 0 {
			break
		}

		fresh := 0
		for _, link := range links {
			id := hhJobID(link)
			if !validHHJobID(id) {
				continue
			}
			if _, ok := visited[id]; ok {
				continue
			}
			visited[id] = struct{}{}
			fresh++

			job, err := h.detail(ctx, link)
			if err != nil {
				if ctx.Err() != nil {
					return jobs, ctx.Err()
				}
				h.logger.Debug().Err(err).Str("url", link).Msg("skip vacancy")
				continue
			}
			if !validHHTitle(job.Title) {
				continue
			}
			job.JobID = id
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

func (h *HH) visit(ctx context.Context, c *colly.Collector, target string) error {
	if h.limiter != nil {
		if err := h.limiter.WaitURL(ctx, target); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	return c.Visit(target)
}

func (h *HH) clone(ctx context.Context) *colly.Collector {
	c := h.collector.Clone()
	c.Context = ctx
	return c
}

func (h *HH) listPage(ctx context.Context, keyword string, page int) ([]string, error) {
	values := url.Values{}
	values.Set("text", keyword)
	values.Set("page", fmt.Sprintf("%d", page))
	target := h.base + "/search/vacancy?" + values.Encode()

	var (
		links    []string
		visitErr error
	)
	seen := map[string]struct{}{}
	c := h.clone(ctx)
	c.OnHTML(hhLinkSel, func(el *colly.HTMLElement) {
		link := el.Request.AbsoluteURL(strings.TrimSpace(el.Attr("href")))
		if link == "" {
			return
		}
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	c.OnError(func(r *colly.Response, err error) {
		visitErr = fmt.Errorf("hh.uz list page %d: %w (status: %d)", page, err, r.StatusCode)
	})

	if err := h.visit(ctx, c, target); err != nil && visitErr == nil {
		visitErr = fmt.Errorf("visit hh.uz list page: %w", err)
	}
	if visitErr != nil {
		return nil, visitErr
	}
	return links, nil
}

func (h *HH) detail(ctx context.Context, link string) (models.Job, error) {
	var (
		job      models.Job
		found    bool
		visitErr error
	)
	c := h.clone(ctx)
	c.OnHTML("body", func(el *colly.HTMLElement) {
		job = parseHHVacancy(el.DOM, link, h.today())
		found = true
	})
	c.OnError(func(r *colly.Response, err error) {
		visitErr = fmt.Errorf("hh.uz vacancy: %w (status: %d)", err, r.StatusCode)
	})

	if err := h.visit(ctx, c, link); err != nil && visitErr == nil {
		visitErr = fmt.Errorf("visit hh.uz vacancy: %w", err)
	}
	if visitErr != nil {
		return models.Job{}, visitErr
	}
	if !found {
		return models.Job{}, fmt.Errorf("no body in %s", link)
	}
	return job, nil
}

func parseHHVacancy(body *goquery.Selection, link string, now time.Time) models.Job {
	var skills []string
	body.Find("ul[class*='vacancy-skill-list'] li").Each(func(_ int, s *goquery.Selection) {
		if text := cleanText(s.Text()); text != "" {
			skills = append(skills, text)
		}
	})

	jobType := cleanText(body.Find("div[data-qa='vacancy-working-hours']").First().Text())
	if jobType == "" {
		jobType = cleanText(body.Find("[data-qa='vacancy-view-employment-mode']").First().Text())
	}

	return models.Job{
		Title:       cleanText(body.Find("h1").First().Text()),
		Location:    normalize.Location(body.Find("span[data-qa='vacancy-view-raw-address'], [data-qa='vacancy-view-location']").First().Text()),
		Skills:      strings.Join(skills, ","),
		Salary:      cleanText(body.Find("span[data-qa*='vacancy-salary']").First().Text()),
		JobType:     jobType,
		Company:     cleanText(body.Find("div[data-qa='vacancy-company__details']").First().Text()),
		Description: cleanText(body.Find("div[data-qa='vacancy-description']").First().Text()),
		URL:         link,
		Source:      SiteHH,
		PostedDate:  normalize.Day(now),
	}
}

// hhJobID is the last path segment of a vacancy link.
func hhJobID(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	path := strings.TrimRight(u.Path, "/")
	return path[strings.LastIndex(path, "/")+1:]
}

func validHHJobID(id string) bool {
	if len(id) < hhMinIDLength {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validHHTitle(title string) bool {
	if len([]rune(title)) < hhMinTitleLen {
		return false
	}
	low := strings.ToLower(title)
	for _, bad := range hhBadTitleWords {
		if strings.Contains(low, bad) {
			return false
		}
	}
	return true
}
