package cmd

import (
	"strings"

	"github.com/iticjobs/jobscrape/internal/scraper"
	"github.com/iticjobs/jobscrape/internal/store"
)

type DBCmd struct {
	Init DBInitCmd `cmd:"" help:"Create the per-site job tables and the rates table."`
}

type DBInitCmd struct {
	Sites string `help:"Comma-separated list of sites (default: all)." default:"all"`
}

func (d *DBInitCmd) Run(ctx *Context) error {
	sites := scraper.NormalizeSites(strings.Split(d.Sites, ","))
	if len(sites) == 0 || (len(sites) == 1 && sites[0] == "all") {
		sites = scraper.Sites()
	}
	for _, site := range sites {
		if !scraper.Known(site) {
			return unknownSite(site)
		}
	}

	svc := &services{}
	defer svc.Close()
	if err := svc.openStore(ctx); err != nil {
		return err
	}

	for _, site := range sites {
		table := store.TableFor(site)
		if err := svc.store.EnsureJobTable(ctx.context(), table); err != nil {
			return err
		}
		ctx.Logger.Debug().Str("table", table).Msg("table ready")
	}
	if err := svc.store.EnsureRatesTable(ctx.context()); err != nil {
		return err
	}
	ctx.UI.Successf("Initialized %d job tables and %s", len(sites), store.RatesTable)
	return nil
}
