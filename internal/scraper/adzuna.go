package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/iticjobs/jobscrape/internal/keywords"
	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/iticjobs/jobscrape/internal/normalize"
)

const (
	adzunaAPIBase        = "https://api.adzuna.com/v1/api/jobs"
	adzunaDefaultCountry = "gb"
	adzunaMaxPages       = 10
	adzunaPageSize       = 50
)

// Adzuna uses the Adzuna search API when credentials are configured and
// otherwise falls back to the RemoteOK tag page for the keyword.
type Adzuna struct {
	api      Fetcher
	pages    Fetcher
	appID    string
	appKey   string
	country  string
	apiBase  string
	fallback string
	siteBase
}

func NewAdzuna(api Fetcher, pages Fetcher, cfg Config, deps siteBase) *Adzuna {
	country := strings.ToLower(strings.TrimSpace(cfg.AdzunaCountry))
	if country == "" {
		country = adzunaDefaultCountry
	}
	return &Adzuna{
		api:      api,
		pages:    pages,
		appID:    cfg.AdzunaAppID,
		appKey:   cfg.AdzunaAppKey,
		country:  country,
		apiBase:  adzunaAPIBase,
		fallback: remoteOKBase,
		siteBase: deps,
	}
}

func (a *Adzuna) Name() string {
	return SiteAdzuna
}

type adzunaResponse struct {
	Results []adzunaJob `json:"results"`
}

type adzunaJob struct {
	ID           any       `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	RedirectURL  string    `json:"redirect_url"`
	Created      string    `json:"created"`
	ContractTime string    `json:"contract_time"`
	ContractType string    `json:"contract_type"`
	SalaryMin    *float64  `json:"salary_min"`
	SalaryMax    *float64  `json:"salary_max"`
	Predicted    any       `json:"salary_is_predicted"`
	Location     adzunaRef `json:"location"`
	Company      adzunaRef `json:"company"`
	Category     struct {
		Label string `json:"label"`
	} `json:"category"`
}

type adzunaRef struct {
	DisplayName string `json:"display_name"`
}

func (a *Adzuna) Search(ctx context.Context, params models.SearchParams) ([]models.Job, error) {
	if a.appID == "" || a.appKey == "" {
		a.logger.Debug().Msg("no adzuna credentials, using remoteok tag page")
		return a.searchFallback(ctx, params)
	}
	return a.searchAPI(ctx, params)
}

func (a *Adzuna) searchAPI(ctx context.Context, params models.SearchParams) ([]models.Job, error) {
	terms := searchTerms(params)
	var jobs []models.Job

	pages := maxPages(params, adzunaMaxPages)
	for page := 1; page <= pages; page++ {
		var resp adzunaResponse
		if err := fetchJSON(ctx, a.api, a.apiURL(params, page), nil, &resp); err != nil {
			if len(jobs) > 0 {
				a.logger.Debug().Err(err).Int("page", page).Msg("stop paging")
				break
			}
			return nil, fmt.Errorf("adzuna: %w", err)
		}
		if len(resp.Results) == 0 {
			break
		}

		for _, item := range resp.Results {
			job := a.fromAPI(item, terms)
			if job.JobID == "" {
				continue
			}
			jobs = append(jobs, job)
			if limitReached(params, len(jobs)) {
				return jobs, nil
			}
		}
		if err := pause(ctx, params.Sleep); err != nil {
			return jobs, err
		}
	}
	return jobs, nil
}

func (a *Adzuna) apiURL(params models.SearchParams, page int) string {
	values := url.Values{}
	values.Set("app_id", a.appID)
	values.Set("app_key", a.appKey)
	values.Set("what", params.Query)
	values.Set("results_per_page", fmt.Sprintf("%d", adzunaPageSize))
	if params.Location != "" {
		values.Set("where", params.Location)
	}
	return fmt.Sprintf("%s/%s/search/%d?%s", a.apiBase, a.country, page, values.Encode())
}

func (a *Adzuna) fromAPI(item adzunaJob, terms []string) models.Job {
	jobType := strings.TrimSpace(item.ContractTime)
	if jobType == "" {
		jobType = strings.TrimSpace(item.ContractType)
	}

	return models.Job{
		JobID:       stringValue(item.ID),
		Title:       strings.TrimSpace(item.Title),
		Location:    normalize.Location(item.Location.DisplayName),
		Company:     strings.TrimSpace(item.Company.DisplayName),
		Description: strings.TrimSpace(item.Description),
		Skills:      keywords.Found(item.Description, terms),
		Salary:      normalize.SalaryRange(item.SalaryMin, item.SalaryMax, stringValue(item.Predicted)),
		JobType:     jobType,
		Subtitle:    strings.TrimSpace(item.Category.Label),
		URL:         item.RedirectURL,
		Source:      SiteAdzuna,
		PostedDate:  normalize.PostedDate(item.Created, a.today()),
	}
}

// searchFallback reads the RemoteOK tag page, which has no pagination.
func (a *Adzuna) searchFallback(ctx context.Context, params models.SearchParams) ([]models.Job, error) {
	target := fmt.Sprintf("%s/remote-%s-jobs", a.fallback, slugify(params.Query))
	doc, err := fetchDocument(ctx, a.pages, target, nil)
	if err != nil {
		return nil, fmt.Errorf("adzuna fallback: %w", err)
	}

	var jobs []models.Job
	doc.Find("tr.job").Each(func(_ int, s *goquery.Selection) {
		if limitReached(params, len(jobs)) {
			return
		}
		href := strings.TrimSpace(s.Find("a.preventLink").First().AttrOr("href", ""))
		if href == "" {
			return
		}
		link := absoluteURL(a.fallback, href)

		title := cleanText(s.Find("h2").First().Text())
		if title == "" {
			title = params.Query
		}
		company := cleanText(s.Find("h3").First().Text())
		if company == "" {
			company = "Unknown"
		}
		id := strings.TrimSpace(s.AttrOr("data-id", ""))
		if id == "" {
			id = link
		}

		jobs = append(jobs, models.Job{
			JobID:      "remoteok_" + id,
			Title:      title,
			Location:   "Remote",
			Company:    company,
			URL:        link,
			Subtitle:   "RemoteOK",
			Source:     SiteAdzuna,
			PostedDate: normalize.Day(a.today()),
		})
	})
	return jobs, nil
}
