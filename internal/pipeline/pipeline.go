// Package pipeline runs several scrapers at once and moves what they find
// through the seen-cache, the database and the search index.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/iticjobs/jobscrape/internal/normalize"
	"github.com/iticjobs/jobscrape/internal/scraper"
	"github.com/iticjobs/jobscrape/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 4

// ErrAllSitesFailed is returned when no selected site produced a job and
// every one of them reported an error.
var ErrAllSitesFailed = errors.New("every site failed")

// Sink persists jobs into per-site tables. *store.Store implements it.
type Sink interface {
	store.Inserter
	EnsureJobTable(ctx context.Context, table string) error
}

// Filter drops jobs seen by earlier runs. *dedup.Deduplicator implements it.
type Filter interface {
	FilterNew(ctx context.Context, jobs []models.Job) ([]models.Job, error)
	Forget(ctx context.Context, jobs []models.Job) error
}

// Indexer mirrors new jobs into a search index. *indexer.Indexer implements it.
type Indexer interface {
	BulkIndex(ctx context.Context, jobs []models.Job) (int, error)
}

// Runner wires scrapers to the storage layers. Sink, Dedup and Indexer are
// optional.
type Runner struct {
	Scrapers    []scraper.Scraper
	Keywords    []string
	Sink        Sink
	Dedup       Filter
	Indexer     Indexer
	Logger      zerolog.Logger
	Concurrency int
	BatchSize   int
	// Params is the template for every search; Query and Keywords are
	// filled per call and Sleep is also the pause between keywords.
	Params models.SearchParams
	Now    func() time.Time
}

type SiteReport struct {
	Site     string
	Scraped  int
	Inserted int
	Indexed  int
	Err      error
}

type Report struct {
	RunID uuid.UUID
	Sites []SiteReport
	// Jobs are the jobs that passed the seen-cache, in site order.
	Jobs []models.Job
}

// Failed lists the sites that reported an error.
func (r Report) Failed() []SiteReport {
	var out []SiteReport
	for _, site := range r.Sites {
		if site.Err != nil {
			out = append(out, site)
		}
	}
	return out
}

// Run scrapes every site and returns a report. Site failures are recorded
// in the report; Run itself fails only on cancellation or when all sites
// failed.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.New()}
	if len(r.Scrapers) == 0 {
		return report, nil
	}

	logger := r.Logger.With().Str("run_id", report.RunID.String()).Logger()
	limit := r.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	reports := make([]SiteReport, len(r.Scrapers))
	jobs := make([][]models.Job, len(r.Scrapers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, sc := range r.Scrapers {
		g.Go(func() error {
			reports[i], jobs[i] = r.runSite(gctx, sc, logger.With().Str("site", sc.Name()).Logger())
			return nil
		})
	}
	_ = g.Wait()

	report.Sites = reports
	for _, siteJobs := range jobs {
		report.Jobs = append(report.Jobs, siteJobs...)
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}

	failed := 0
	for _, site := range reports {
		if site.Err != nil && site.Scraped == 0 {
			failed++
		}
	}
	if failed == len(reports) {
		return report, ErrAllSitesFailed
	}
	return report, nil
}

func (r *Runner) runSite(ctx context.Context, sc scraper.Scraper, logger zerolog.Logger) (SiteReport, []models.Job) {
	site := sc.Name()
	rep := SiteReport{Site: site}

	var batcher *store.Batcher
	if r.Sink != nil {
		table := store.TableFor(site)
		if err := r.Sink.EnsureJobTable(ctx, table); err != nil {
			rep.Err = err
			logger.Error().Err(err).Msg("prepare table")
			return rep, nil
		}
		batcher = store.NewBatcher(r.Sink, table, r.BatchSize)
	}

	var (
		collected []models.Job
		errs      []error
		keys      = map[string]struct{}{}
	)
	// keep indexes and collects jobs that made it into the table, or every
	// fresh job on a dry run.
	keep := func(jobs []models.Job) {
		if len(jobs) == 0 {
			return
		}
		if r.Indexer != nil {
			n, err := r.Indexer.BulkIndex(ctx, jobs)
			if err != nil {
				logger.Warn().Err(err).Msg("index jobs")
			}
			rep.Indexed += n
		}
		collected = append(collected, jobs...)
	}
	// settle handles the batches flushed so far. Jobs from a failed batch
	// are dropped from the seen-cache so the next run retries them.
	settle := func() {
		written, failed := batcher.Drain()
		keep(written)
		if len(failed) > 0 {
			r.forget(context.WithoutCancel(ctx), failed, logger)
		}
	}
	for i, params := range r.searches(sc) {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if i > 0 {
			if err := sleep(ctx, r.Params.Sleep); err != nil {
				errs = append(errs, err)
				break
			}
		}

		found, err := sc.Search(ctx, params)
		if err != nil {
			// Scrapers may return what they collected before failing.
			logger.Warn().Err(err).Str("keyword", params.Query).Int("partial", len(found)).Msg("search failed")
			errs = append(errs, fmt.Errorf("%s %q: %w", site, params.Query, err))
		}

		found = r.prepare(site, found, keys)
		rep.Scraped += len(found)
		if len(found) == 0 {
			continue
		}

		fresh := found
		if r.Dedup != nil {
			filtered, err := r.Dedup.FilterNew(ctx, found)
			if err != nil {
				logger.Warn().Err(err).Msg("seen-cache unavailable, storing all")
			} else {
				fresh = filtered
			}
		}
		if len(fresh) == 0 {
			continue
		}

		if batcher == nil {
			keep(fresh)
			continue
		}
		if err := batcher.Add(ctx, fresh...); err != nil {
			errs = append(errs, fmt.Errorf("store %s: %w", site, err))
			logger.Error().Err(err).Msg("insert batch")
		}
		settle()
	}

	if batcher != nil {
		if err := batcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("store %s: %w", site, err))
			logger.Error().Err(err).Msg("flush batch")
		}
		settle()
		rep.Inserted = batcher.Inserted()
	}

	rep.Err = errors.Join(errs...)
	logger.Info().
		Int("scraped", rep.Scraped).
		Int("new", len(collected)).
		Int("inserted", rep.Inserted).
		Msg("site done")
	return rep, collected
}

// searches expands the keyword list into the calls made against sc.
func (r *Runner) searches(sc scraper.Scraper) []models.SearchParams {
	if lister, ok := sc.(scraper.Lister); ok && lister.ListsAll() {
		params := r.Params
		params.Query = ""
		params.Keywords = r.Keywords
		return []models.SearchParams{params}
	}

	out := make([]models.SearchParams, 0, len(r.Keywords))
	for _, kw := range r.Keywords {
		params := r.Params
		params.Query = kw
		params.Keywords = []string{kw}
		out = append(out, params)
	}
	return out
}

// prepare fills defaults and drops jobs without an id or already seen in
// this run of the site.
func (r *Runner) prepare(site string, jobs []models.Job, keys map[string]struct{}) []models.Job {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	out := make([]models.Job, 0, len(jobs))
	for _, job := range jobs {
		if job.JobID == "" {
			continue
		}
		if job.Source == "" {
			job.Source = site
		}
		if job.PostedDate.IsZero() {
			job.PostedDate = normalize.Day(now())
		}
		key := job.Source + "\x00" + job.JobID
		if _, dup := keys[key]; dup {
			continue
		}
		keys[key] = struct{}{}
		out = append(out, job)
	}
	return out
}

func (r *Runner) forget(ctx context.Context, jobs []models.Job, logger zerolog.Logger) {
	if r.Dedup == nil {
		return
	}
	if err := r.Dedup.Forget(ctx, jobs); err != nil {
		logger.Warn().Err(err).Msg("forget unstored jobs")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
