package cmd

import (
	"fmt"
	"time"

	"github.com/iticjobs/jobscrape/internal/export"
	"github.com/iticjobs/jobscrape/internal/network"
	"github.com/iticjobs/jobscrape/internal/rates"
)

type RatesCmd struct {
	URL    string `help:"Rates endpoint (default: CBU_URL or the CBU archive)."`
	DryRun bool   `name:"dry-run" help:"Print rates instead of storing them."`
	Format string `help:"Output format for --dry-run: table, csv, tsv, json." enum:",table,csv,tsv,json" default:""`
}

func (r *RatesCmd) Run(ctx *Context) error {
	client, err := network.NewClient(network.Options{Logger: ctx.Logger})
	if err != nil {
		return err
	}

	url := firstNonEmpty(r.URL, ctx.Config.RatesURL, rates.DefaultURL)
	raw, err := rates.Fetch(ctx.context(), client, url)
	if err != nil {
		return err
	}
	normalized, err := rates.Normalize(raw, time.Now())
	if err != nil {
		return err
	}
	ctx.Logger.Info().Int("rates", len(normalized)).Str("url", url).Msg("rates fetched")

	if r.DryRun {
		format, err := resolveFormat(ctx, r.Format, "")
		if err != nil {
			return err
		}
		return export.WriteRates(ctx.Out, normalized, format)
	}

	svc := &services{}
	defer svc.Close()
	if err := svc.openStore(ctx); err != nil {
		return err
	}
	if err := svc.store.EnsureRatesTable(ctx.context()); err != nil {
		return err
	}
	n, err := svc.store.UpsertRates(ctx.context(), normalized)
	if err != nil {
		return fmt.Errorf("store rates: %w", err)
	}
	ctx.UI.Successf("Stored %d rates", n)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
