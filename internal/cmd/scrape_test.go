package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/iticjobs/jobscrape/internal/config"
	"github.com/iticjobs/jobscrape/internal/export"
	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/iticjobs/jobscrape/internal/scraper"
	"github.com/iticjobs/jobscrape/internal/seen"
	"github.com/iticjobs/jobscrape/internal/ui"
	"github.com/rs/zerolog"
)

func writeKeywordFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job_list.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write keywords: %v", err)
	}
	return path
}

func TestResolveKeywordsMergesPositionalAndFile(t *testing.T) {
	path := writeKeywordFile(t, `{"job_titles": ["Go Developer", "QA Engineer"]}`)

	got, err := resolveKeywords("qa engineer, Data Analyst", path, "")
	if err != nil {
		t.Fatalf("resolveKeywords() error = %v", err)
	}
	want := []string{"qa engineer", "Data Analyst", "Go Developer"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("resolveKeywords() = %#v, want %#v", got, want)
	}
}

func TestResolveKeywordsUsesDefaultFile(t *testing.T) {
	path := writeKeywordFile(t, `["Backend"]`)

	got, err := resolveKeywords("", "", path)
	if err != nil {
		t.Fatalf("resolveKeywords() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"Backend"}) {
		t.Fatalf("resolveKeywords() = %#v", got)
	}
}

func TestResolveKeywordsMissingFiles(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.json")

	got, err := resolveKeywords("golang", "", missing)
	if err != nil {
		t.Fatalf("missing default file should be ignored: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"golang"}) {
		t.Fatalf("resolveKeywords() = %#v", got)
	}

	if _, err := resolveKeywords("golang", missing, ""); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("explicit missing file: err = %v, want ErrNotExist", err)
	}
	if _, err := resolveKeywords("", "", missing); err == nil {
		t.Fatalf("expected error without any keywords")
	}
}

func TestResolveFormat(t *testing.T) {
	cases := []struct {
		name   string
		ctx    *Context
		flag   string
		output string
		want   export.Format
	}{
		{"json flag wins", &Context{Out: io.Discard, JSONOutput: true}, "csv", "jobs.md", export.FormatJSON},
		{"plain flag", &Context{Out: io.Discard, PlainText: true}, "", "", export.FormatTSV},
		{"format flag", &Context{Out: io.Discard}, "md", "jobs.csv", export.FormatMarkdown},
		{"output extension", &Context{Out: io.Discard}, "", "jobs.json", export.FormatJSON},
		{"unknown extension", &Context{Out: io.Discard}, "", "jobs.out", export.FormatCSV},
		{"piped stdout", &Context{Out: &bytes.Buffer{}}, "", "", export.FormatCSV},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveFormat(tc.ctx, tc.flag, tc.output)
			if err != nil {
				t.Fatalf("resolveFormat() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("resolveFormat() = %q, want %q", got, tc.want)
			}
		})
	}
}

type namedScraper string

func (n namedScraper) Name() string { return string(n) }

func (n namedScraper) Search(context.Context, models.SearchParams) ([]models.Job, error) {
	return nil, nil
}

func testRegistry() map[string]scraper.Scraper {
	registry := map[string]scraper.Scraper{}
	for _, site := range scraper.Sites() {
		registry[site] = namedScraper(site)
	}
	return registry
}

func TestSelectScrapers(t *testing.T) {
	selected, err := selectScrapers(testRegistry(), "all")
	if err != nil {
		t.Fatalf("selectScrapers(all) error = %v", err)
	}
	if len(selected) != len(scraper.Sites()) {
		t.Fatalf("selected %d sites, want %d", len(selected), len(scraper.Sites()))
	}
	if selected[0].Name() != scraper.Sites()[0] {
		t.Fatalf("expected display order, got %s first", selected[0].Name())
	}

	selected, err = selectScrapers(testRegistry(), "hh, Indeed")
	if err != nil {
		t.Fatalf("selectScrapers() error = %v", err)
	}
	if len(selected) != 2 || selected[0].Name() != scraper.SiteHH || selected[1].Name() != scraper.SiteIndeed {
		t.Fatalf("unexpected selection: %v", selected)
	}

	_, err = selectScrapers(testRegistry(), "linkedin")
	if err == nil || !strings.Contains(err.Error(), "unknown site: linkedin") {
		t.Fatalf("expected unknown site error, got %v", err)
	}
}

func TestFormatSummary(t *testing.T) {
	if got := formatSummary(nil); got != "summary: new_jobs=0 by_source=none" {
		t.Fatalf("formatSummary(nil) = %q", got)
	}
	jobs := []models.Job{
		{JobID: "1", Source: "indeed"},
		{JobID: "2", Source: "hh.uz"},
		{JobID: "3", Source: "Indeed"},
		{JobID: "4"},
	}
	want := "summary: new_jobs=4 by_source=hh.uz:1, indeed:2, unknown:1"
	if got := formatSummary(jobs); got != want {
		t.Fatalf("formatSummary() = %q, want %q", got, want)
	}
}

func TestUpdateSeenHistoryCreatesFileAndMerges(t *testing.T) {
	seenPath := filepath.Join(t.TempDir(), "seen.json")
	first := []models.Job{{JobID: "1", Source: "remotive", Title: "Go Developer"}}

	if err := updateSeenHistory(seenPath, first); err != nil {
		t.Fatalf("updateSeenHistory() error = %v", err)
	}
	if err := updateSeenHistory(seenPath, first); err != nil {
		t.Fatalf("updateSeenHistory() (2nd) error = %v", err)
	}
	got, err := seen.ReadJobs(seenPath)
	if err != nil {
		t.Fatalf("ReadJobs() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}

	second := append(first, models.Job{JobID: "2", Source: "remotive", Title: "SRE"})
	if err := updateSeenHistory(seenPath, second); err != nil {
		t.Fatalf("updateSeenHistory() (3rd) error = %v", err)
	}
	got, err = seen.ReadJobs(seenPath)
	if err != nil {
		t.Fatalf("ReadJobs() (3rd) error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) after 3rd update = %d, want 2", len(got))
	}
}

func TestRunScrapeValidatesSeenFlags(t *testing.T) {
	ctx := &Context{Out: io.Discard, Err: io.Discard, Logger: zerolog.Nop()}

	err := runScrape(ctx, "go", "all", ScrapeOptions{NewOnly: true})
	if err == nil || err.Error() != "--new-only requires --seen" {
		t.Fatalf("unexpected error: %v", err)
	}
	err = runScrape(ctx, "go", "all", ScrapeOptions{SeenUpdate: true})
	if err == nil || err.Error() != "--seen-update requires --seen" {
		t.Fatalf("unexpected error: %v", err)
	}
	err = runScrape(ctx, "go", "all", ScrapeOptions{Seen: "a.json", Output: "./a.json"})
	if err == nil || err.Error() != "--output path must differ from --seen" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOpenStoreWithoutDatabase(t *testing.T) {
	ctx := &Context{Config: config.Config{}, Logger: zerolog.Nop()}
	svc := &services{}
	if err := svc.openStore(ctx); !errors.Is(err, errNoDatabase) {
		t.Fatalf("openStore() error = %v, want errNoDatabase", err)
	}
}

func TestDBInitRejectsUnknownSite(t *testing.T) {
	ctx := &Context{Logger: zerolog.Nop()}
	err := (&DBInitCmd{Sites: "indeed,monster"}).Run(ctx)
	if err == nil || !strings.Contains(err.Error(), "unknown site: monster") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPrintSummaryGoesToStderr(t *testing.T) {
	var out, errOut bytes.Buffer
	ctx := &Context{Out: &out, Err: &errOut, UI: ui.New(&out, &errOut, ui.ColorNever, true)}

	printSummary(ctx, []models.Job{{JobID: "1", Source: "hh.uz"}})
	if out.Len() != 0 {
		t.Fatalf("summary leaked to stdout: %q", out.String())
	}
	if !strings.Contains(errOut.String(), "by_source=hh.uz:1") {
		t.Fatalf("unexpected summary: %q", errOut.String())
	}
}

func TestMaskSecrets(t *testing.T) {
	cfg := config.Config{
		DatabaseURL:  "postgres://jobs:hunter2@db:5432/jobs",
		DB:           config.DB{Password: "pw"},
		GeminiAPIKey: "key",
	}
	got := maskSecrets(cfg)
	if got.DB.Password != "xxxxx" || got.GeminiAPIKey != "xxxxx" {
		t.Fatalf("secrets not masked: %+v", got)
	}
	if got.AdzunaAppKey != "" {
		t.Fatalf("empty secret should stay empty")
	}
	if strings.Contains(got.DatabaseURL, "hunter2") {
		t.Fatalf("database url leaked password: %s", got.DatabaseURL)
	}
}

func TestWriteStats(t *testing.T) {
	var out bytes.Buffer
	stats := []stat{{"added", 2}, {"total_out", 5}}

	if err := writeStats(&Context{Out: &out}, stats); err != nil {
		t.Fatalf("writeStats() error = %v", err)
	}
	if out.String() != "added=2 total_out=5\n" {
		t.Fatalf("unexpected stats line %q", out.String())
	}

	out.Reset()
	if err := writeStats(&Context{Out: &out, JSONOutput: true}, stats); err != nil {
		t.Fatalf("writeStats() json error = %v", err)
	}
	var decoded map[string]int
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json %q: %v", out.String(), err)
	}
	if decoded["added"] != 2 || decoded["total_out"] != 5 {
		t.Fatalf("unexpected stats %v", decoded)
	}
}

func TestSleepFor(t *testing.T) {
	if got := sleepFor(0, 3e9); got != 3e9 {
		t.Fatalf("sleepFor fallback = %v", got)
	}
	if got := sleepFor(0.5, 3e9); got != 5e8 {
		t.Fatalf("sleepFor(0.5) = %v", got)
	}
}
