package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iticjobs/jobscrape/internal/network"
)

const hhVacancyPage = `
<html><body>
<h1 data-qa="vacancy-title">Senior Go Developer</h1>
<span data-qa="vacancy-salary-compensation-type-net">от 15 000 000 до 25 000 000 сум на руки</span>
<div data-qa="vacancy-company__details">Uzum Technologies</div>
<span data-qa="vacancy-view-raw-address">Ташкент, Мирзо-Улугбекский район</span>
<div data-qa="vacancy-working-hours">Полный день</div>
<div data-qa="vacancy-description"><p>Разработка сервисов на Go.</p><p>PostgreSQL, Kafka.</p></div>
<ul class="vacancy-skill-list--abc"><li>Go</li><li>PostgreSQL</li></ul>
</body></html>`

func TestParseHHVacancy(t *testing.T) {
	doc := mustDoc(t, hhVacancyPage)
	job := parseHHVacancy(doc.Find("body"), "https://tashkent.hh.uz/vacancy/1234567", testNow)

	if job.Title != "Senior Go Developer" || job.Company != "Uzum Technologies" {
		t.Fatalf("unexpected identity fields: %+v", job)
	}
	if job.Skills != "Go,PostgreSQL" {
		t.Fatalf("unexpected skills: %q", job.Skills)
	}
	if job.Salary == "" || job.JobType != "Полный день" {
		t.Fatalf("unexpected salary/type: %q %q", job.Salary, job.JobType)
	}
	if job.Description != "Разработка сервисов на Go.PostgreSQL, Kafka." {
		t.Fatalf("unexpected description: %q", job.Description)
	}
	if got := job.PostedDate.Format("2006-01-02"); got != "2024-03-10" {
		t.Fatalf("expected posted date to be today, got %s", got)
	}
}

func TestHHValidators(t *testing.T) {
	if got := hhJobID("https://tashkent.hh.uz/vacancy/1234567?query=go"); got != "1234567" {
		t.Fatalf("unexpected id: %q", got)
	}
	for id, want := range map[string]bool{"1234567": true, "12345": false, "12a4567": false, "": false} {
		if got := validHHJobID(id); got != want {
			t.Fatalf("validHHJobID(%q) = %v, want %v", id, got, want)
		}
	}
	for title, want := range map[string]bool{
		"Senior Go Developer":          true,
		"Go":                           false,
		"Найдено 120 вакансий":         false,
		"ООО Ромашка":                  false,
		"Frontend разработчик (React)": true,
	} {
		if got := validHHTitle(title); got != want {
			t.Fatalf("validHHTitle(%q) = %v, want %v", title, got, want)
		}
	}
}

func TestHHSearchCrawlsVacancies(t *testing.T) {
	var listRequests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Path {
		case "/search/vacancy":
			listRequests++
			if r.URL.Query().Get("text") != "go" {
				http.Error(w, "bad query", http.StatusBadRequest)
				return
			}
			fmt.Fprint(w, `
<a data-qa="serp-item__title" href="/vacancy/1234567">Senior Go Developer</a>
<a class="magritte-link" href="/employer/42">Employer</a>
<a class="magritte-link" href="/vacancy/7654321">Short</a>`)
		case "/vacancy/1234567":
			fmt.Fprint(w, hhVacancyPage)
		case "/vacancy/7654321":
			fmt.Fprint(w, `<html><body><h1>Go</h1></body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	h := NewHH(nil, nil, testBase())
	h.base = srv.URL

	jobs, err := h.Search(context.Background(), searchFor("go"))
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 valid vacancy, got %d: %+v", len(jobs), jobs)
	}
	if jobs[0].JobID != "1234567" || jobs[0].Subtitle != "go" || jobs[0].Source != SiteHH {
		t.Fatalf("unexpected job: %+v", jobs[0])
	}
	if listRequests != 2 {
		t.Fatalf("expected paging to stop on the first page without new ids, got %d list requests", listRequests)
	}
}

func TestHHSearchReportsListFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h := NewHH(nil, nil, testBase())
	h.base = srv.URL
	if _, err := h.Search(context.Background(), searchFor("go")); err == nil {
		t.Fatalf("expected error from failing list page")
	}
}

func TestHHSearchWaitsOnHostLimiter(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Path == "/search/vacancy" {
			fmt.Fprint(w, `<a data-qa="serp-item__title" href="/vacancy/1234567">Senior Go Developer</a>`)
			return
		}
		fmt.Fprint(w, hhVacancyPage)
	}))
	defer srv.Close()

	// One token, then nothing for far longer than the deadline.
	limiter := network.NewHostLimiter(0.001, 1)
	h := NewHH(nil, limiter, testBase())
	h.base = srv.URL

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := h.Search(ctx, searchFor("go")); err == nil {
		t.Fatalf("expected the limiter to stop the crawl")
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("expected 1 request through the limiter, got %d", got)
	}
}
