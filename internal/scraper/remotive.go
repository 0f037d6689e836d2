package scraper

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/iticjobs/jobscrape/internal/cleaner"
	"github.com/iticjobs/jobscrape/internal/keywords"
	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/iticjobs/jobscrape/internal/normalize"
)

const remotiveEndpoint = "https://remotive.com/api/remote-jobs"

// Remotive reads the public remote-jobs API. The API has no pagination.
type Remotive struct {
	fetcher  Fetcher
	cleaner  *cleaner.Cleaner
	endpoint string
	siteBase
}

func NewRemotive(fetcher Fetcher, c *cleaner.Cleaner, deps siteBase) *Remotive {
	if c == nil {
		c = cleaner.New()
	}
	return &Remotive{fetcher: fetcher, cleaner: c, endpoint: remotiveEndpoint, siteBase: deps}
}

func (r *Remotive) Name() string {
	return SiteRemotive
}

type remotiveResponse struct {
	Jobs []remotiveJob `json:"jobs"`
}

type remotiveJob struct {
	ID              any      `json:"id"`
	URL             string   `json:"url"`
	Title           string   `json:"title"`
	CompanyName     string   `json:"company_name"`
	Category        string   `json:"category"`
	Tags            []string `json:"tags"`
	JobType         string   `json:"job_type"`
	PublicationDate string   `json:"publication_date"`
	Location        string   `json:"candidate_required_location"`
	Salary          string   `json:"salary"`
	Description     string   `json:"description"`
}

func (r *Remotive) Search(ctx context.Context, params models.SearchParams) ([]models.Job, error) {
	target := r.endpoint + "?" + url.Values{"search": {params.Query}}.Encode()

	var resp remotiveResponse
	if err := fetchJSON(ctx, r.fetcher, target, nil, &resp); err != nil {
		return nil, fmt.Errorf("remotive: %w", err)
	}

	terms := searchTerms(params)
	jobs := make([]models.Job, 0, len(resp.Jobs))
	for _, item := range resp.Jobs {
		jobs = append(jobs, r.toJob(item, terms))
		if limitReached(params, len(jobs)) {
			break
		}
	}
	return jobs, nil
}

func (r *Remotive) toJob(item remotiveJob, terms []string) models.Job {
	id := stringValue(item.ID)
	if id == "" {
		id = strings.TrimSpace(item.URL)
	}
	if id == "" {
		id = "unknown"
	}

	location := strings.TrimSpace(item.Location)
	if location == "" {
		location = "Remote"
	}

	description := r.cleaner.CleanToText(item.Description)

	return models.Job{
		JobID:       "remotive_" + id,
		Title:       strings.TrimSpace(item.Title),
		Company:     strings.TrimSpace(item.CompanyName),
		Location:    location,
		Skills:      remotiveSkills(description, terms, item.Tags),
		Salary:      strings.TrimSpace(item.Salary),
		JobType:     strings.TrimSpace(item.JobType),
		URL:         strings.TrimSpace(item.URL),
		Source:      SiteRemotive,
		Description: description,
		Subtitle:    strings.TrimSpace(item.Category),
		PostedDate:  normalize.PostedDate(item.PublicationDate, r.today()),
	}
}

// remotiveSkills merges the keywords found in the description with the
// posting's tags, sorted and without duplicates.
func remotiveSkills(description string, terms []string, tags []string) string {
	set := map[string]struct{}{}
	for _, kw := range strings.Split(keywords.Found(description, terms), ", ") {
		if kw != "" {
			set[kw] = struct{}{}
		}
	}
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			set[tag] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for skill := range set {
		out = append(out, skill)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
