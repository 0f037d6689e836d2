package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/iticjobs/jobscrape/internal/dedup"
	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/iticjobs/jobscrape/internal/scraper"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)

type fakeScraper struct {
	name    string
	results map[string][]models.Job
	err     error
	lists   bool

	mu    sync.Mutex
	calls []models.SearchParams
}

func (f *fakeScraper) Name() string { return f.name }

func (f *fakeScraper) ListsAll() bool { return f.lists }

func (f *fakeScraper) Search(_ context.Context, params models.SearchParams) ([]models.Job, error) {
	f.mu.Lock()
	f.calls = append(f.calls, params)
	f.mu.Unlock()
	return f.results[params.Query], f.err
}

type fakeSink struct {
	mu      sync.Mutex
	tables  []string
	rows    map[string][]models.Job
	failFor string
	// failFirst fails the first n inserts regardless of table.
	failFirst int
	inserts   int
}

func (f *fakeSink) EnsureJobTable(_ context.Context, table string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables = append(f.tables, table)
	return nil
}

func (f *fakeSink) InsertJobs(_ context.Context, table string, jobs []models.Job) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if table == f.failFor || f.inserts <= f.failFirst {
		return 0, errors.New("connection reset")
	}
	if f.rows == nil {
		f.rows = map[string][]models.Job{}
	}
	f.rows[table] = append(f.rows[table], jobs...)
	return len(jobs), nil
}

type fakeIndexer struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeIndexer) BulkIndex(_ context.Context, jobs []models.Job) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range jobs {
		f.ids = append(f.ids, job.Source+":"+job.JobID)
	}
	return len(jobs), nil
}

func newRunner(scrapers ...scraper.Scraper) *Runner {
	return &Runner{
		Scrapers: scrapers,
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return testNow },
	}
}

func siteReport(t *testing.T, report Report, site string) SiteReport {
	t.Helper()
	for _, rep := range report.Sites {
		if rep.Site == site {
			return rep
		}
	}
	t.Fatalf("no report for %s", site)
	return SiteReport{}
}

func TestRunStoresJobsPerSite(t *testing.T) {
	indeed := &fakeScraper{name: "indeed", results: map[string][]models.Job{
		"golang": {{JobID: "a1", Title: "Go Developer"}, {JobID: "a2", Title: "Go Engineer"}},
		"python": {{JobID: "a2", Title: "Go Engineer"}, {JobID: "b1", Title: "Python Developer"}},
	}}
	hh := &fakeScraper{name: "hh.uz", results: map[string][]models.Job{
		"golang": {{JobID: "123", Source: "hh.uz", Title: "Golang dasturchi"}, {Title: "no id"}},
	}}
	sink := &fakeSink{}
	index := &fakeIndexer{}

	r := newRunner(indeed, hh)
	r.Keywords = []string{"golang", "python"}
	r.Sink = sink
	r.Indexer = index
	r.BatchSize = 2

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, report.RunID)

	assert.ElementsMatch(t, []string{"indeed", "hh"}, sink.tables)
	require.Len(t, sink.rows["indeed"], 3)
	require.Len(t, sink.rows["hh"], 1)

	first := sink.rows["indeed"][0]
	assert.Equal(t, "indeed", first.Source)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), first.PostedDate)

	ir := siteReport(t, report, "indeed")
	assert.Equal(t, 3, ir.Scraped)
	assert.Equal(t, 3, ir.Inserted)
	assert.Equal(t, 3, ir.Indexed)
	assert.NoError(t, ir.Err)

	hr := siteReport(t, report, "hh.uz")
	assert.Equal(t, 1, hr.Scraped)
	assert.Len(t, report.Jobs, 4)
	assert.Len(t, index.ids, 4)

	require.Len(t, indeed.calls, 2)
	assert.Equal(t, "python", indeed.calls[1].Query)
	assert.Equal(t, []string{"python"}, indeed.calls[1].Keywords)
}

func TestRunCallsListerOnce(t *testing.T) {
	hm := &fakeScraper{name: "hitmarker", lists: true, results: map[string][]models.Job{
		"": {{JobID: "h1"}},
	}}
	r := newRunner(hm)
	r.Keywords = []string{"unity", "unreal", "qa"}

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, hm.calls, 1)
	assert.Equal(t, []string{"unity", "unreal", "qa"}, hm.calls[0].Keywords)
	assert.Len(t, report.Jobs, 1)
}

func TestRunKeepsPartialJobsOnError(t *testing.T) {
	gjd := &fakeScraper{
		name:    "gamesjobsdirect",
		results: map[string][]models.Job{"artist": {{JobID: "g1"}}},
		err:     scraper.ErrBlocked,
	}
	sink := &fakeSink{}
	r := newRunner(gjd)
	r.Keywords = []string{"artist"}
	r.Sink = sink

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	rep := siteReport(t, report, "gamesjobsdirect")
	assert.ErrorIs(t, rep.Err, scraper.ErrBlocked)
	assert.Equal(t, 1, rep.Inserted)
	assert.Len(t, sink.rows["gamesjobsdirect_jobs"], 1)
	assert.Len(t, report.Failed(), 1)
}

func TestRunAllSitesFailed(t *testing.T) {
	boom := errors.New("boom")
	r := newRunner(
		&fakeScraper{name: "indeed", err: boom},
		&fakeScraper{name: "glassdoor", err: boom},
	)
	r.Keywords = []string{"go"}

	report, err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrAllSitesFailed)
	assert.Len(t, report.Failed(), 2)
}

func TestRunOneSiteFailureIsNotFatal(t *testing.T) {
	r := newRunner(
		&fakeScraper{name: "indeed", err: errors.New("boom")},
		&fakeScraper{name: "remoteok", results: map[string][]models.Job{"go": {{JobID: "remoteok_1"}}}},
	)
	r.Keywords = []string{"go"}

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Jobs, 1)
}

func TestRunFiltersSeenJobs(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	site := &fakeScraper{name: "remoteok", results: map[string][]models.Job{
		"go": {{JobID: "remoteok_1"}, {JobID: "remoteok_2"}},
	}}
	sink := &fakeSink{}
	r := newRunner(site)
	r.Keywords = []string{"go"}
	r.Sink = sink
	r.Dedup = dedup.New(client, "test", time.Hour)

	first, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, first.Jobs, 2)

	second, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second.Jobs)
	assert.Equal(t, 2, siteReport(t, second, "remoteok").Scraped)
	assert.Len(t, sink.rows["remoteok"], 2)
}

func TestRunForgetsJobsThatFailedToStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	d := dedup.New(client, "test", time.Hour)

	site := &fakeScraper{name: "themuse", results: map[string][]models.Job{
		"go": {{JobID: "1"}},
	}}
	r := newRunner(site)
	r.Keywords = []string{"go"}
	r.Sink = &fakeSink{failFor: "themuse"}
	r.Dedup = d
	r.BatchSize = 1

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Error(t, siteReport(t, report, "themuse").Err)

	seen, err := d.IsSeen(context.Background(), "themuse", "1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRunForgetsJobsLostInFinalFlush(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	d := dedup.New(client, "test", time.Hour)

	site := &fakeScraper{name: "themuse", results: map[string][]models.Job{
		"go": {{JobID: "1"}},
	}}
	r := newRunner(site)
	r.Keywords = []string{"go"}
	r.Sink = &fakeSink{failFor: "themuse"}
	r.Dedup = d

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Error(t, siteReport(t, report, "themuse").Err)
	assert.Empty(t, report.Jobs)
	assert.Zero(t, siteReport(t, report, "themuse").Inserted)

	seen, err := d.IsSeen(context.Background(), "themuse", "1")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Empty(t, mr.Keys())
}

func TestRunForgetsEveryKeywordInFailedBatch(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	d := dedup.New(client, "test", time.Hour)

	site := &fakeScraper{name: "themuse", results: map[string][]models.Job{
		"go":   {{JobID: "1"}, {JobID: "2"}},
		"rust": {{JobID: "3"}},
	}}
	sink := &fakeSink{failFor: "themuse"}
	r := newRunner(site)
	r.Keywords = []string{"go", "rust"}
	r.Sink = sink
	r.Dedup = d

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Error(t, siteReport(t, report, "themuse").Err)
	assert.Equal(t, 3, siteReport(t, report, "themuse").Scraped)
	assert.Empty(t, report.Jobs)

	for _, id := range []string{"1", "2", "3"} {
		seen, err := d.IsSeen(context.Background(), "themuse", id)
		require.NoError(t, err)
		assert.False(t, seen, "job %s still marked seen", id)
	}
	assert.Empty(t, mr.Keys())
}

func TestRunKeepsJobsFromLaterBatchAfterFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	d := dedup.New(client, "test", time.Hour)

	site := &fakeScraper{name: "themuse", results: map[string][]models.Job{
		"go":   {{JobID: "1"}, {JobID: "2"}},
		"rust": {{JobID: "3"}, {JobID: "4"}},
	}}
	sink := &fakeSink{failFirst: 1}
	indexer := &fakeIndexer{}
	r := newRunner(site)
	r.Keywords = []string{"go", "rust"}
	r.Sink = sink
	r.Indexer = indexer
	r.Dedup = d
	r.BatchSize = 3

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	rep := siteReport(t, report, "themuse")
	assert.Error(t, rep.Err)
	assert.Equal(t, 1, rep.Inserted)
	assert.Equal(t, 1, rep.Indexed)

	require.Len(t, report.Jobs, 1)
	assert.Equal(t, "4", report.Jobs[0].JobID)
	assert.Len(t, sink.rows["themuse"], 1)

	for id, want := range map[string]bool{"1": false, "2": false, "3": false, "4": true} {
		seen, err := d.IsSeen(context.Background(), "themuse", id)
		require.NoError(t, err)
		assert.Equal(t, want, seen, "job %s", id)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	site := &fakeScraper{name: "indeed", results: map[string][]models.Job{"a": {{JobID: "1"}}}}
	r := newRunner(site)
	r.Keywords = []string{"a", "b", "c"}
	r.Params.Sleep = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, site.calls, 1)
}

func TestRunWithoutScrapers(t *testing.T) {
	report, err := newRunner().Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Sites)
}
