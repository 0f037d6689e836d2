package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/muesli/termenv"
)

type Format string

const (
	FormatTable    Format = "table"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
	FormatTSV      Format = "tsv"
)

const dateLayout = "2006-01-02"

type WriteOptions struct {
	ColorEnabled bool
	Hyperlinks   bool
	LinkStyle    LinkStyle
}

type LinkStyle string

const (
	LinkStyleShort LinkStyle = "short"
	LinkStyleFull  LinkStyle = "full"
)

// ParseFormat maps a user-supplied name or file extension to a Format.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value), ".")) {
	case "", "table", "txt":
		return FormatTable, nil
	case "csv":
		return FormatCSV, nil
	case "tsv":
		return FormatTSV, nil
	case "json":
		return FormatJSON, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown format %q (use table, csv, tsv, json or md)", value)
}

type column struct {
	name  string
	value func(models.Job) string
}

// columns are the stored job fields in table order.
var columns = []column{
	{"job_id", func(j models.Job) string { return j.JobID }},
	{"job_title", func(j models.Job) string { return j.Title }},
	{"location", func(j models.Job) string { return j.Location }},
	{"skills", func(j models.Job) string { return j.Skills }},
	{"salary", func(j models.Job) string { return j.Salary }},
	{"education", func(j models.Job) string { return j.Education }},
	{"job_type", func(j models.Job) string { return j.JobType }},
	{"company_name", func(j models.Job) string { return j.Company }},
	{"job_url", func(j models.Job) string { return j.URL }},
	{"source", func(j models.Job) string { return j.Source }},
	{"description", func(j models.Job) string { return j.Description }},
	{"job_subtitle", func(j models.Job) string { return j.Subtitle }},
	{"posted_date", postedDate},
}

func postedDate(j models.Job) string {
	if j.PostedDate.IsZero() {
		return ""
	}
	return j.PostedDate.Format(dateLayout)
}

func WriteJobs(w io.Writer, jobs []models.Job, format Format, opts WriteOptions) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, jobs)
	case FormatCSV:
		return writeCSV(w, jobs, ',')
	case FormatTSV:
		return writeCSV(w, jobs, '\t')
	case FormatMarkdown:
		return writeMarkdown(w, jobs)
	default:
		return writeTable(w, jobs, opts)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func writeCSV(w io.Writer, jobs []models.Job, delim rune) error {
	writer := csv.NewWriter(w)
	writer.Comma = delim

	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.name
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	row := make([]string, len(columns))
	for _, job := range jobs {
		for i, col := range columns {
			row[i] = col.value(job)
			if delim == '\t' {
				row[i] = strings.Join(strings.Fields(row[i]), " ")
			}
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeTable(w io.Writer, jobs []models.Job, opts WriteOptions) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "source\tjob_title\tcompany_name\tlocation\tposted_date\tjob_url")
	output := termenv.NewOutput(w)
	for _, job := range jobs {
		fmt.Fprintln(tw, strings.Join([]string{
			orDash(job.Source),
			orDash(truncate(job.Title, 60)),
			orDash(truncate(job.Company, 40)),
			orDash(truncate(job.Location, 30)),
			orDash(postedDate(job)),
			linkCell(job.URL, output, opts),
		}, "\t"))
	}
	return tw.Flush()
}

func writeMarkdown(w io.Writer, jobs []models.Job) error {
	if len(jobs) == 0 {
		_, err := fmt.Fprintln(w, "No results.")
		return err
	}
	for _, job := range jobs {
		lines := []string{fmt.Sprintf("- **%s** (%s)", safe(job.Title), orDash(job.Company))}
		add := func(label, value string) {
			if value = safe(value); value != "" {
				lines = append(lines, fmt.Sprintf("  %s: %s", label, value))
			}
		}
		add("Source", job.Source)
		add("Location", job.Location)
		if u := safe(job.URL); u != "" {
			lines = append(lines, fmt.Sprintf("  URL: [Open listing](<%s>)", u))
		}
		add("Type", job.JobType)
		add("Salary", job.Salary)
		add("Education", job.Education)
		add("Skills", job.Skills)
		add("Posted", postedDate(job))
		add("Subtitle", job.Subtitle)
		for _, line := range lines {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteRates prints exchange rates as JSON or as an aligned table.
func WriteRates(w io.Writer, rates []models.CurrencyRate, format Format) error {
	if format == FormatJSON {
		return writeJSON(w, rates)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ccy\tnominal\trate\tuzs_per_unit\tusd_ratio\trate_date")
	for _, r := range rates {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Ccy,
			nullDecimal(r.Nominal.Valid, r.Nominal.Decimal.String()),
			nullDecimal(r.Rate.Valid, r.Rate.Decimal.String()),
			nullDecimal(r.UZSPerUnit.Valid, r.UZSPerUnit.Decimal.StringFixed(4)),
			nullDecimal(r.USDRatio.Valid, r.USDRatio.Decimal.StringFixed(6)),
			r.RateDate.Format(dateLayout),
		)
	}
	return tw.Flush()
}

func nullDecimal(valid bool, s string) string {
	if !valid {
		return "-"
	}
	return s
}

func safe(value string) string {
	return strings.TrimSpace(value)
}

func orDash(value string) string {
	if value = safe(value); value == "" {
		return "-"
	}
	return value
}

func truncate(value string, limit int) string {
	runes := []rune(safe(value))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit-3]) + "..."
}

func linkCell(raw string, output *termenv.Output, opts WriteOptions) string {
	const linkColor = "#87CEEB"

	link := safe(raw)
	if link == "" {
		return "-"
	}
	display := link
	if opts.LinkStyle == LinkStyleShort && opts.Hyperlinks {
		display = shortURLLabel(link)
	}
	if opts.ColorEnabled {
		display = output.String(display).Foreground(output.Color(linkColor)).String()
	}
	if opts.Hyperlinks {
		display = hyperlink(link, display)
	}
	return display
}

func hyperlink(url string, text string) string {
	const esc = "\x1b"
	return esc + "]8;;" + url + esc + "\\" + text + esc + "]8;;" + esc + "\\"
}

func shortURLLabel(raw string) string {
	const maxLen = 60
	label := raw
	if parsed, err := url.Parse(raw); err == nil && parsed.Host != "" {
		label = strings.TrimPrefix(parsed.Host, "www.") + parsed.Path
	}
	if len(label) > maxLen {
		label = label[:maxLen-3] + "..."
	}
	return label
}
