package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/iticjobs/jobscrape/internal/export"
	"github.com/iticjobs/jobscrape/internal/keywords"
	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/iticjobs/jobscrape/internal/pipeline"
	"github.com/iticjobs/jobscrape/internal/scraper"
	"github.com/iticjobs/jobscrape/internal/seen"
	"github.com/muesli/termenv"
)

type ScrapeCmd struct {
	Keywords string `arg:"" optional:"" help:"Keywords (comma-separated). Merged with --keywords-file."`
	Sites    string `help:"Comma-separated list of sites (default: all)." default:"all"`
	ScrapeOptions
}

type SiteCmd struct {
	Keywords string `arg:"" optional:"" help:"Keywords (comma-separated). Merged with --keywords-file."`
	ScrapeOptions
	Site string `kong:"-"`
}

type ScrapeOptions struct {
	KeywordsFile string  `name:"keywords-file" help:"JSON file with keywords (string array or object with job_titles). Defaults to JOBS_PATH or job_list.json."`
	Location     string  `help:"Job location." env:"JOBSCRAPE_DEFAULT_LOCATION"`
	Country      string  `help:"Country code (Indeed/Glassdoor)." env:"JOBSCRAPE_DEFAULT_COUNTRY"`
	MaxPages     int     `name:"max-pages" help:"Maximum pages per keyword (default: MAX_PAGES)."`
	Limit        int     `help:"Maximum results per keyword."`
	Sleep        float64 `help:"Seconds between page requests (default: PAGE_SLEEP)."`
	Concurrency  int     `help:"Sites scraped at once (default: JOBSCRAPE_CONCURRENCY)."`
	BatchSize    int     `name:"batch-size" help:"Rows per insert batch (default: BATCH_SIZE)."`
	RateLimit    float64 `name:"rate-limit" help:"Requests per second per host." default:"2"`
	Browser      bool    `help:"Fetch browser-driven sites through Chrome." env:"JOBSCRAPE_BROWSER"`
	DryRun       bool    `name:"dry-run" help:"Scrape without touching the database."`
	NoCache      bool    `name:"no-cache" help:"Skip the Redis seen-cache."`
	NoIndex      bool    `name:"no-index" help:"Skip Elasticsearch indexing."`
	Format       string  `help:"Output format: table, csv, tsv, json, md." enum:",table,csv,tsv,json,md" default:""`
	Links        string  `help:"Table link display: short or full." enum:"short,full" default:"full"`
	Output       string  `name:"output" short:"o" help:"Write scraped jobs to a file."`
	Proxies      string  `help:"Comma-separated proxy URLs." env:"JOBSCRAPE_PROXIES"`
	Seen         string  `help:"Path to seen jobs JSON file."`
	NewOnly      bool    `name:"new-only" help:"Output only jobs missing from --seen."`
	SeenUpdate   bool    `name:"seen-update" help:"Merge unseen jobs into --seen after the run."`
}

func (s *ScrapeCmd) Run(ctx *Context) error {
	return runScrape(ctx, s.Keywords, s.Sites, s.ScrapeOptions)
}

func (s *SiteCmd) Run(ctx *Context) error {
	return runScrape(ctx, s.Keywords, s.Site, s.ScrapeOptions)
}

func runScrape(ctx *Context, raw string, sitesArg string, opts ScrapeOptions) error {
	hasSeen := strings.TrimSpace(opts.Seen) != ""
	if opts.NewOnly && !hasSeen {
		return fmt.Errorf("--new-only requires --seen")
	}
	if opts.SeenUpdate && !hasSeen {
		return fmt.Errorf("--seen-update requires --seen")
	}
	if hasSeen && pathsEqual(opts.Output, opts.Seen) {
		return fmt.Errorf("--output path must differ from --seen")
	}

	cfg := ctx.Config
	kw, err := resolveKeywords(raw, opts.KeywordsFile, cfg.KeywordsFile)
	if err != nil {
		return err
	}

	svc := &services{}
	defer svc.Close()

	if err := svc.openNetwork(opts.Proxies, opts.RateLimit); err != nil {
		return err
	}
	deps := scraper.Deps{
		NewClient: svc.newClient(ctx),
		Limiter:   svc.limiter,
		Logger:    ctx.Logger,
		Config: scraper.Config{
			Email:         cfg.Email,
			EmailPassword: cfg.EmailPassword,
			AdzunaAppID:   cfg.AdzunaAppID,
			AdzunaAppKey:  cfg.AdzunaAppKey,
			AdzunaCountry: cfg.AdzunaCountry,
			Proxies:       svc.proxies,
		},
	}
	if opts.Browser {
		if err := svc.openBrowser(ctx); err != nil {
			return fmt.Errorf("start browser: %w", err)
		}
		deps.Browser = svc.browser
	}

	registry, err := scraper.Registry(deps)
	if err != nil {
		return err
	}
	selected, err := selectScrapers(registry, sitesArg)
	if err != nil {
		return err
	}

	runner := &pipeline.Runner{
		Scrapers:    selected,
		Keywords:    kw,
		Logger:      ctx.Logger,
		Concurrency: defaultInt(opts.Concurrency, cfg.Concurrency),
		BatchSize:   defaultInt(opts.BatchSize, cfg.BatchSize),
		Params: models.SearchParams{
			Location: opts.Location,
			Country:  opts.Country,
			MaxPages: defaultInt(opts.MaxPages, cfg.MaxPages),
			Limit:    opts.Limit,
			Sleep:    sleepFor(opts.Sleep, cfg.PageSleepDuration()),
		},
	}
	if !opts.DryRun {
		if err := svc.openStore(ctx); err != nil {
			return err
		}
		runner.Sink = svc.store
	}
	if !opts.NoCache && !opts.DryRun {
		svc.openDedup(ctx)
		if svc.dedup != nil {
			runner.Dedup = svc.dedup
		}
	}
	if !opts.NoIndex && !opts.DryRun {
		svc.openIndexer(ctx)
		if svc.index != nil {
			runner.Indexer = svc.index
		}
	}

	ctx.Logger.Info().
		Int("sites", len(selected)).
		Int("keywords", len(kw)).
		Bool("dry_run", opts.DryRun).
		Msg("scrape started")

	stopIndicator := startIndicator(ctx)
	report, runErr := runner.Run(ctx.context())
	if stopIndicator != nil {
		stopIndicator()
	}
	printSiteReports(ctx, report)
	if runErr != nil && !errors.Is(runErr, pipeline.ErrAllSitesFailed) {
		return runErr
	}

	jobs := report.Jobs
	sortJobsBySource(jobs)

	unseenJobs := jobs
	if hasSeen {
		seenJobs, err := seen.ReadJobsAllowMissing(opts.Seen)
		if err != nil {
			return fmt.Errorf("read --seen: %w", err)
		}
		unseenJobs, _ = seen.Diff(jobs, seenJobs)
	}
	outputJobs := jobs
	if opts.NewOnly {
		outputJobs = unseenJobs
	}

	if wantsExport(ctx, opts) {
		if err := writeJobsOutput(ctx, opts, outputJobs); err != nil {
			return err
		}
	}

	if opts.SeenUpdate {
		if err := updateSeenHistory(opts.Seen, unseenJobs); err != nil {
			return err
		}
	}

	printSummary(ctx, unseenJobs)
	if runErr != nil {
		return fmt.Errorf("scrape: %w", runErr)
	}
	return nil
}

// resolveKeywords merges positional keywords with the keywords file. An
// explicitly named file must exist; the configured default may be missing
// when keywords were given on the command line.
func resolveKeywords(raw, flagFile, defaultFile string) ([]string, error) {
	positional := keywords.Split(raw)

	path := strings.TrimSpace(flagFile)
	explicit := path != ""
	if !explicit {
		path = strings.TrimSpace(defaultFile)
	}

	var fromFile []string
	if path != "" {
		loaded, err := keywords.Load(path)
		switch {
		case err == nil:
			fromFile = loaded
		case explicit || len(positional) == 0 || !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}
	return keywords.Merge(0, positional, fromFile)
}

func selectScrapers(registry map[string]scraper.Scraper, sitesArg string) ([]scraper.Scraper, error) {
	requested := scraper.NormalizeSites(strings.Split(sitesArg, ","))
	if len(requested) == 0 || (len(requested) == 1 && requested[0] == "all") {
		requested = scraper.Sites()
	}

	selected := make([]scraper.Scraper, 0, len(requested))
	for _, site := range requested {
		sc, ok := registry[site]
		if !ok {
			return nil, unknownSite(site)
		}
		selected = append(selected, sc)
	}
	return selected, nil
}

func unknownSite(site string) error {
	return fmt.Errorf("unknown site: %s (known: %s)", site, strings.Join(scraper.Sites(), ", "))
}

func printSiteReports(ctx *Context, report pipeline.Report) {
	if ctx.UI == nil {
		return
	}
	for _, site := range report.Sites {
		ctx.UI.SiteLine(site.Site, site.Scraped, site.Inserted, site.Err)
	}
	ctx.UI.Muted("run %s", report.RunID)
}

func wantsExport(ctx *Context, opts ScrapeOptions) bool {
	return opts.Output != "" || opts.Format != "" || opts.DryRun || ctx.JSONOutput || ctx.PlainText
}

func writeJobsOutput(ctx *Context, opts ScrapeOptions, jobs []models.Job) error {
	format, err := resolveFormat(ctx, opts.Format, opts.Output)
	if err != nil {
		return err
	}

	writer := ctx.Out
	if opts.Output != "" {
		file, err := os.Create(opts.Output)
		if err != nil {
			return err
		}
		defer file.Close()
		writer = file
	}

	colorEnabled := ctx.UI != nil && ctx.UI.ColorEnabled
	linkStyle := export.LinkStyleShort
	if strings.EqualFold(opts.Links, string(export.LinkStyleFull)) {
		linkStyle = export.LinkStyleFull
	}
	return export.WriteJobs(writer, jobs, format, export.WriteOptions{
		ColorEnabled: colorEnabled,
		Hyperlinks:   colorEnabled && isTTY(writer),
		LinkStyle:    linkStyle,
	})
}

// resolveFormat picks the export format. Global --json/--plain win, then
// --format, then the output file extension.
func resolveFormat(ctx *Context, flag string, outputPath string) (export.Format, error) {
	if ctx.JSONOutput {
		return export.FormatJSON, nil
	}
	if ctx.PlainText {
		return export.FormatTSV, nil
	}
	if flag != "" {
		return export.ParseFormat(flag)
	}
	if outputPath != "" {
		if format, err := export.ParseFormat(filepath.Ext(outputPath)); err == nil && format != export.FormatTable {
			return format, nil
		}
		return export.FormatCSV, nil
	}
	if isTTY(ctx.Out) {
		return export.FormatTable, nil
	}
	return export.FormatCSV, nil
}

func pathsEqual(a, b string) bool {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA == nil && errB == nil {
		return absA == absB
	}
	return filepath.Clean(a) == filepath.Clean(b)
}

func updateSeenHistory(seenPath string, inputJobs []models.Job) error {
	seenJobs, err := seen.ReadJobsAllowMissing(seenPath)
	if err != nil {
		return fmt.Errorf("read --seen: %w", err)
	}

	mergedJobs, _ := seen.Merge(seenJobs, inputJobs)
	if err := seen.WriteJobs(seenPath, mergedJobs); err != nil {
		return fmt.Errorf("write --seen: %w", err)
	}
	return nil
}

func printSummary(ctx *Context, jobs []models.Job) {
	if ctx == nil || ctx.Err == nil {
		return
	}
	_, _ = fmt.Fprintf(ctx.Err, "%s\n", formatSummary(jobs))
}

func formatSummary(jobs []models.Job) string {
	counts := countJobsBySource(jobs)
	if len(counts) == 0 {
		return "summary: new_jobs=0 by_source=none"
	}

	parts := make([]string, 0, len(counts))
	for _, count := range counts {
		parts = append(parts, fmt.Sprintf("%s:%d", count.source, count.total))
	}
	return fmt.Sprintf("summary: new_jobs=%d by_source=%s", len(jobs), strings.Join(parts, ", "))
}

type sourceCount struct {
	source string
	total  int
}

func countJobsBySource(jobs []models.Job) []sourceCount {
	totals := make(map[string]int, len(jobs))
	for _, job := range jobs {
		source := strings.ToLower(strings.TrimSpace(job.Source))
		if source == "" {
			source = "unknown"
		}
		totals[source]++
	}

	counts := make([]sourceCount, 0, len(totals))
	for source, total := range totals {
		counts = append(counts, sourceCount{source: source, total: total})
	}
	sort.Slice(counts, func(i, j int) bool {
		return counts[i].source < counts[j].source
	})
	return counts
}

func sortJobsBySource(jobs []models.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return strings.ToLower(jobs[i].Source) < strings.ToLower(jobs[j].Source)
	})
}

func defaultInt(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func sleepFor(flag float64, fallback time.Duration) time.Duration {
	if flag > 0 {
		return seconds(flag)
	}
	return fallback
}

func isTTY(out io.Writer) bool {
	output := termenv.NewOutput(out)
	return output.ColorProfile() != termenv.Ascii
}

func startIndicator(ctx *Context) func() {
	if ctx == nil || ctx.Err == nil || ctx.UI == nil {
		return nil
	}
	if !isTTY(ctx.Err) {
		return nil
	}

	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		start := time.Now()
		frames := []string{"|", "/", "-", "\\"}
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		index := 0

		for {
			select {
			case <-done:
				fmt.Fprint(ctx.Err, "\r\033[2K")
				return
			case <-ticker.C:
				elapsed := int(time.Since(start).Seconds())
				fmt.Fprintf(ctx.Err, "\r\033[2KScraping... %ds %s", elapsed, frames[index%len(frames)])
				index++
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}
