package scraper

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/iticjobs/jobscrape/internal/normalize"
	"github.com/iticjobs/jobscrape/internal/textseg"
	xhtml "golang.org/x/net/html"
)

var blockedMarkers = []string{
	"access denied",
	"forbidden",
	"captcha",
	"cloudflare",
	"verify you are human",
	"attention required",
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

func fetchDocument(ctx context.Context, fetcher Fetcher, target string, headers map[string]string) (*goquery.Document, error) {
	body, err := fetcher.Fetch(ctx, target, headers)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// fetchUnblocked is fetchDocument that fails with ErrBlocked on captcha or
// access-denied pages.
func fetchUnblocked(ctx context.Context, fetcher Fetcher, target string, headers map[string]string) (*goquery.Document, error) {
	body, err := fetcher.Fetch(ctx, target, headers)
	if err != nil {
		return nil, err
	}
	if DetectBlocked(string(body)) {
		return nil, fmt.Errorf("%w: %s", ErrBlocked, target)
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

func fetchJSON(ctx context.Context, fetcher Fetcher, target string, headers map[string]string, out any) error {
	if headers == nil {
		headers = map[string]string{}
	}
	if _, ok := headers["accept"]; !ok {
		headers["accept"] = "application/json"
	}
	body, err := fetcher.Fetch(ctx, target, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}
	return nil
}

// DetectBlocked reports whether a page looks like a captcha, Cloudflare
// challenge or access-denied response.
func DetectBlocked(page string) bool {
	low := strings.ToLower(page)
	for _, marker := range blockedMarkers {
		if strings.Contains(low, marker) {
			return true
		}
	}
	return false
}

// JobHash is the id for sites that expose none: the sha256 hex digest of the
// lowercased, "|"-joined parts.
func JobHash(parts ...string) string {
	raw := strings.TrimSpace(strings.ToLower(strings.Join(parts, "|")))
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func cleanText(value string) string {
	value = html.UnescapeString(value)
	return strings.Join(strings.Fields(value), " ")
}

func absoluteURL(base string, href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}

// pageLines flattens the text nodes under sel into cleaned lines, one per
// text node, skipping scripts and styles.
func pageLines(sel *goquery.Selection) []string {
	var b strings.Builder
	var walk func(n *xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		if n.Type == xhtml.TextNode {
			b.WriteString(n.Data)
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return textseg.Lines(b.String())
}

func slugify(keyword string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(keyword), "-"), "-")
}

func maxPages(params models.SearchParams, fallback int) int {
	if params.MaxPages > 0 {
		return params.MaxPages
	}
	return fallback
}

func limitReached(params models.SearchParams, n int) bool {
	return params.Limit > 0 && n >= params.Limit
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

func parseJSONLDJobs(doc *goquery.Document, site string, now time.Time) []models.Job {
	var jobs []models.Job
	seen := map[string]struct{}{}

	doc.Find("script[type='application/ld+json']").Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}

		data, err := decodeJSONLD(raw)
		if err != nil {
			return
		}

		for _, job := range extractJobsFromJSONLD(data, site, now) {
			key := job.URL
			if key == "" {
				key = strings.ToLower(job.Title + "|" + job.Company + "|" + job.Location)
			}
			if key == "||" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			jobs = append(jobs, job)
		}
	})

	return jobs
}

func decodeJSONLD(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "<!--")
	raw = strings.TrimSuffix(raw, "-->")
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, "\u2028", "")
	raw = strings.ReplaceAll(raw, "\u2029", "")

	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, err
	}
	return data, nil
}

func extractJobsFromJSONLD(data any, site string, now time.Time) []models.Job {
	var jobs []models.Job

	switch value := data.(type) {
	case []any:
		for _, item := range value {
			jobs = append(jobs, extractJobsFromJSONLD(item, site, now)...)
		}
	case map[string]any:
		if typ := strings.ToLower(stringValue(value["@type"], value["type"])); typ != "" {
			switch typ {
			case "jobposting":
				jobs = append(jobs, jobFromJobPosting(value, site, now))
				return jobs
			case "itemlist":
				jobs = append(jobs, jobsFromItemList(value, site, now)...)
			}
		}
		if graph, ok := value["@graph"]; ok {
			jobs = append(jobs, extractJobsFromJSONLD(graph, site, now)...)
		}
		if main, ok := value["mainEntity"]; ok {
			jobs = append(jobs, extractJobsFromJSONLD(main, site, now)...)
		}
	}

	return jobs
}

func jobsFromItemList(value map[string]any, site string, now time.Time) []models.Job {
	items, ok := value["itemListElement"]
	if !ok {
		return nil
	}

	var jobs []models.Job
	switch list := items.(type) {
	case []any:
		for _, item := range list {
			jobs = append(jobs, extractJobsFromJSONLD(item, site, now)...)
		}
	case map[string]any:
		jobs = append(jobs, extractJobsFromJSONLD(list, site, now)...)
	}
	return jobs
}

func jobFromJobPosting(value map[string]any, site string, now time.Time) models.Job {
	description := cleanText(stripTags(stringValue(value["description"])))
	job := models.Job{
		Source:      site,
		JobID:       stringValue(mapValue(value["identifier"], "value"), value["identifier"]),
		Title:       stringValue(value["title"], value["name"]),
		Company:     stringValue(mapValue(value["hiringOrganization"], "name")),
		URL:         stringValue(value["url"], value["@id"]),
		JobType:     employmentType(value["employmentType"]),
		Salary:      salaryFromJSONLD(value["baseSalary"]),
		Location:    normalize.Location(locationFromJSONLD(value["jobLocation"])),
		Education:   stringValue(mapValue(value["educationRequirements"], "credentialCategory"), value["educationRequirements"]),
		Skills:      stringValue(value["skills"]),
		Description: description,
		PostedDate:  normalize.PostedDate(stringValue(value["datePosted"]), now),
	}
	if job.Location == "" && strings.EqualFold(stringValue(value["jobLocationType"]), "TELECOMMUTE") {
		job.Location = "Remote"
	}
	return job
}

func employmentType(value any) string {
	switch v := value.(type) {
	case []any:
		var parts []string
		for _, item := range v {
			if s := stringValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return stringValue(v)
	}
}

func salaryFromJSONLD(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case map[string]any:
		currency := stringValue(v["currency"])
		if amount := mapValue(v["value"], "value"); amount != nil {
			return strings.TrimSpace(stringValue(amount) + " " + currency)
		}
		if amount := mapValue(v["value"], "minValue"); amount != nil {
			minStr := stringValue(amount)
			maxStr := stringValue(mapValue(v["value"], "maxValue"))
			if maxStr != "" {
				return strings.TrimSpace(minStr + " - " + maxStr + " " + currency)
			}
			return strings.TrimSpace(minStr + " " + currency)
		}
	case string:
		return v
	}
	return ""
}

func locationFromJSONLD(value any) string {
	if value == nil {
		return ""
	}

	switch v := value.(type) {
	case []any:
		var parts []string
		for _, item := range v {
			loc := locationFromJSONLD(item)
			if loc != "" {
				parts = append(parts, loc)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		address := v["address"]
		if addressMap, ok := address.(map[string]any); ok {
			return joinAddress(addressMap)
		}
		return joinAddress(v)
	case string:
		return v
	}

	return ""
}

func joinAddress(value map[string]any) string {
	parts := []string{
		stringValue(value["streetAddress"]),
		stringValue(value["addressLocality"]),
		stringValue(value["addressRegion"]),
		stringValue(value["postalCode"]),
		stringValue(value["addressCountry"]),
	}
	var cleaned []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cleaned = append(cleaned, part)
	}
	return strings.Join(cleaned, ", ")
}

func stringValue(values ...any) string {
	for _, value := range values {
		switch v := value.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		case float64:
			return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
		case int:
			return fmt.Sprintf("%d", v)
		case int64:
			return fmt.Sprintf("%d", v)
		case json.Number:
			return v.String()
		case fmt.Stringer:
			if v.String() != "" {
				return strings.TrimSpace(v.String())
			}
		case map[string]any:
			if name := stringValue(v["name"]); name != "" {
				return name
			}
		}
	}
	return ""
}

func mapValue(value any, key string) any {
	if value == nil {
		return nil
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	return m[key]
}

func truncate(value string, limit int) string {
	if limit <= 0 {
		return value
	}
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return strings.TrimSpace(value[:cut]) + "..."
}

// stripTags drops markup from JSON-LD descriptions, which are often HTML.
func stripTags(value string) string {
	if !strings.Contains(value, "<") {
		return value
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(value))
	if err != nil {
		return value
	}
	return strings.Join(pageLines(doc.Selection), " ")
}

func dedupeJobs(jobs []models.Job) []models.Job {
	seen := map[string]struct{}{}
	out := make([]models.Job, 0, len(jobs))
	for _, job := range jobs {
		key := job.JobID
		if key == "" {
			key = job.URL
		}
		if key == "" {
			key = strings.ToLower(job.Title + "|" + job.Company + "|" + job.Location)
		}
		if key == "||" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, job)
	}
	return out
}
