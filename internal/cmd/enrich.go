package cmd

import (
	"errors"
	"fmt"

	"github.com/iticjobs/jobscrape/internal/enrich"
	"github.com/iticjobs/jobscrape/internal/network"
)

type EnrichCmd struct {
	Keywords     string  `arg:"" optional:"" help:"Job titles (comma-separated). Merged with --keywords-file."`
	KeywordsFile string  `name:"keywords-file" help:"JSON file with job titles (default: JOBS_PATH or job_list.json)."`
	Output       string  `name:"output" short:"o" help:"Output JSON path." default:"job_with_skills.json"`
	Sleep        float64 `help:"Seconds between model calls." default:"1"`
	Model        string  `help:"Gemini model (default: GEMINI_MODEL)."`
}

func (e *EnrichCmd) Run(ctx *Context) error {
	cfg := ctx.Config
	if cfg.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY is not set")
	}

	titles, err := resolveKeywords(e.Keywords, e.KeywordsFile, cfg.KeywordsFile)
	if err != nil {
		return err
	}

	httpClient, err := network.NewClient(network.Options{Logger: ctx.Logger})
	if err != nil {
		return err
	}
	client := &enrich.Client{
		Model:  firstNonEmpty(e.Model, cfg.GeminiModel, enrich.DefaultModel),
		APIKey: cfg.GeminiAPIKey,
		HTTP:   httpClient,
		Logger: ctx.Logger.With().Str("component", "enrich").Logger(),
	}

	sets := client.Enrich(ctx.context(), titles, seconds(e.Sleep))
	output := firstNonEmpty(e.Output, enrich.DefaultOutput)
	if err := enrich.WriteFile(output, sets); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}

	empty := 0
	for _, set := range sets {
		if len(set.Skills) == 0 {
			empty++
		}
	}
	ctx.UI.Successf("Wrote %d titles to %s", len(sets), output)
	if empty > 0 {
		ctx.UI.Warnf("%d titles came back without skills", empty)
	}
	return ctx.context().Err()
}
