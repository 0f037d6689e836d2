package scraper

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/iticjobs/jobscrape/internal/browser"
	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/iticjobs/jobscrape/internal/normalize"
)

const glassdoorBase = "https://www.glassdoor.com"

var glassdoorLogin = browser.LoginForm{
	URL:              glassdoorBase + "/profile/login_input.htm",
	EmailSelector:    "#inlineUserEmail",
	ContinueSelector: "button[data-test='email-form-button']",
	PasswordSelector: "#inlineUserPassword",
	SubmitSelector:   "button[type='submit']",
}

var (
	glassdoorListingIDRe = regexp.MustCompile(`(?:jobListingId|jl)=(\d+)`)
	salaryCurrencyRe     = regexp.MustCompile(`(?i)[\$€£₽₸]|\b(usd|eur|gbp|rub|kzt|uah|cad|aud|chf)\b`)
	glassdoorSalarySel   = strings.Join([]string{
		"[data-test='detailSalary']",
		"[data-test='salaryEstimate']",
		"[data-test='salary']",
		"[id*='job-salary']",
		"[class*='salaryEstimate']",
		"[class*='SalaryEstimate']",
		"[data-test*='salary']",
	}, ", ")
)

// Glassdoor reads the search results and then each job's detail page. With
// a browser and credentials it signs in once before the first search.
type Glassdoor struct {
	fetcher  Fetcher
	browser  BrowserFetcher
	email    string
	password string
	siteBase

	loginOnce sync.Once
}

func NewGlassdoor(fetcher Fetcher, b BrowserFetcher, cfg Config, deps siteBase) *Glassdoor {
	return &Glassdoor{
		fetcher:  fetcher,
		browser:  b,
		email:    cfg.Email,
		password: cfg.EmailPassword,
		siteBase: deps,
	}
}

func (g *Glassdoor) Name() string {
	return SiteGlassdoor
}

func (g *Glassdoor) Search(ctx context.Context, params models.SearchParams) ([]models.Job, error) {
	g.login(ctx)

	doc, err := fetchDocument(ctx, g.fetcher, buildGlassdoorURL(params), nil)
	if err != nil {
		return nil, fmt.Errorf("glassdoor: %w", err)
	}

	cards := parseGlassdoorCards(doc, g.today())
	var jobs []models.Job
	for _, card := range cards {
		if limitReached(params, len(jobs)) {
			break
		}
		job := card
		detail, err := fetchDocument(ctx, g.fetcher, card.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return jobs, ctx.Err()
			}
			g.logger.Debug().Err(err).Str("url", card.URL).Msg("detail page failed, keeping card")
		} else {
			job = mergeGlassdoorDetail(card, detail)
		}
		if job.Title == "" {
			continue
		}
		job.Subtitle = params.Query
		job.JobID = glassdoorJobID(job)
		jobs = append(jobs, job)

		if err := pause(ctx, params.Sleep); err != nil {
			return jobs, err
		}
	}

	for _, job := range parseJSONLDJobs(doc, SiteGlassdoor, g.today()) {
		if limitReached(params, len(jobs)) {
			break
		}
		job.Salary = normalize.CurrencySalary(job.Salary)
		job.Subtitle = params.Query
		job.JobID = glassdoorJobID(job)
		jobs = append(jobs, job)
	}

	return dedupeJobs(jobs), nil
}

func (g *Glassdoor) login(ctx context.Context) {
	if g.browser == nil || g.email == "" || g.password == "" {
		return
	}
	g.loginOnce.Do(func() {
		if err := g.browser.Login(ctx, glassdoorLogin, g.email, g.password); err != nil {
			g.logger.Warn().Err(err).Msg("glassdoor login failed, continuing signed out")
		}
	})
}

func buildGlassdoorURL(params models.SearchParams) string {
	values := url.Values{}
	values.Set("sc.keyword", fmt.Sprintf("%q", params.Query))
	if params.Location != "" {
		values.Set("locKeyword", params.Location)
	}
	values.Set("sortBy", "date_desc")
	return fmt.Sprintf("%s/Job/jobs.htm?%s", glassdoorBase, values.Encode())
}

func parseGlassdoorCards(doc *goquery.Document, now time.Time) []models.Job {
	var jobs []models.Job
	seen := map[string]struct{}{}

	doc.Find("ul[aria-label='Jobs List'] > li, .react-job-listing").Each(func(_ int, s *goquery.Selection) {
		link := s.Find("a[href*='/partner/jobListing'], a[href*='/Job/'], a.jobLink").First().AttrOr("href", "")
		link = absoluteURL(glassdoorBase, strings.TrimSpace(link))
		if link == "" {
			return
		}
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}

		title := cleanText(s.Find("[data-test='job-title']").First().Text())
		if title == "" {
			title = cleanText(s.Find(".jobLink").First().Text())
		}
		company := cleanText(s.Find(".jobEmployerName, [class*='EmployerProfile_compactEmployerName']").First().Text())
		age := cleanText(s.Find("[data-test*='job-age']").First().Text())

		jobs = append(jobs, models.Job{
			Title:      title,
			Company:    company,
			Location:   normalize.Location(s.Find("[data-test*='emp-location'], .jobLocation").First().Text()),
			Salary:     normalize.CurrencySalary(s.Find("[data-test='detailSalary'], .salarySnippet").First().Text()),
			URL:        link,
			Source:     SiteGlassdoor,
			PostedDate: normalize.PostedDate(age, now),
		})
	})

	return jobs
}

func mergeGlassdoorDetail(card models.Job, doc *goquery.Document) models.Job {
	job := card
	if title := cleanText(doc.Find("h1[id*='job-title'], h1[data-test='jobTitle']").First().Text()); title != "" {
		job.Title = title
	}
	if company := cleanText(doc.Find("div[class*='EmployerProfile_employerNameHeading']").First().Text()); company != "" {
		job.Company = company
	}
	if location := normalize.Location(doc.Find("[data-test*='location']").First().Text()); location != "" {
		job.Location = location
	}
	if salary := normalize.CurrencySalary(glassdoorSalary(doc)); salary != "" {
		job.Salary = salary
	}

	var skills []string
	doc.Find("li[class*='PendingQualification_pendingQualification']").Each(func(_ int, s *goquery.Selection) {
		if text := cleanText(s.Text()); text != "" {
			skills = append(skills, text)
		}
	})
	if len(skills) > 0 {
		job.Skills = strings.Join(skills, ",")
	}

	description := cleanText(doc.Find("div[class*='JobDetails_jobDescription'], [data-test='jobDescriptionContent']").First().Text())
	if description != "" {
		job.Description = description
		job.JobType = normalize.JobType(description)
		job.Education = normalize.Education(description)
		if job.Skills == "" {
			job.Skills = normalize.Skills(description, normalize.DefaultSkillVocabulary)
		}
	}
	return job
}

// glassdoorSalary picks the most salary-like text among the salary
// candidates: one with a currency, digits, a range and a period, and short.
func glassdoorSalary(doc *goquery.Document) string {
	var candidates []string
	doc.Find(glassdoorSalarySel).Each(func(_ int, s *goquery.Selection) {
		text := cleanText(s.Text())
		if text == "" || len(text) >= 260 {
			return
		}
		if salaryCurrencyRe.MatchString(text) {
			candidates = append(candidates, text)
		}
	})
	if len(candidates) == 0 {
		return ""
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return salaryScore(candidates[i]) > salaryScore(candidates[j])
	})
	return candidates[0]
}

func salaryScore(text string) int {
	low := strings.ToLower(text)
	score := 0
	if strings.ContainsAny(text, "0123456789") {
		score += 2
	}
	if strings.Contains(text, "-") {
		score += 2
	}
	if strings.Contains(low, "/hr") || strings.Contains(low, "hour") {
		score++
	}
	if strings.Contains(low, "/yr") || strings.Contains(low, "year") {
		score++
	}
	return score + max(0, 220-len(text))/8
}

func glassdoorJobID(job models.Job) string {
	if m := glassdoorListingIDRe.FindStringSubmatch(job.URL); m != nil {
		return m[1]
	}
	return JobHash(job.Title, job.Company, job.Location, job.PostedDate.Format("2006-01-02"))
}
