package cmd

import (
	"github.com/alecthomas/kong"
	"github.com/iticjobs/jobscrape/internal/scraper"
)

type CLI struct {
	Color   string `help:"Color output: auto, always, never." enum:"auto,always,never" default:"auto"`
	JSON    bool   `help:"JSON output to stdout; disables colors."`
	Plain   bool   `help:"TSV output to stdout; disables colors."`
	Verbose bool   `help:"Enable debug logging."`
	EnvFile string `name:"env-file" help:"Path to a .env file." default:".env" env:"JOBSCRAPE_ENV_FILE"`

	VersionFlag kong.VersionFlag `help:"Print version."`

	Version         VersionCmd `cmd:"" help:"Print version."`
	Config          ConfigCmd  `cmd:"" help:"Manage configuration."`
	Scrape          ScrapeCmd  `cmd:"" help:"Scrape several sites concurrently."`
	ITMarket        SiteCmd    `cmd:"" name:"it-market" help:"Scrape it-market.uz."`
	Indeed          SiteCmd    `cmd:"" name:"indeed" help:"Scrape Indeed."`
	Glassdoor       SiteCmd    `cmd:"" name:"glassdoor" help:"Scrape Glassdoor."`
	HH              SiteCmd    `cmd:"" name:"hh" help:"Scrape hh.uz."`
	RemoteOK        SiteCmd    `cmd:"" name:"remoteok" help:"Scrape RemoteOK."`
	TheMuse         SiteCmd    `cmd:"" name:"themuse" help:"Scrape The Muse."`
	Adzuna          SiteCmd    `cmd:"" name:"adzuna" help:"Scrape Adzuna (falls back to RemoteOK without API keys)."`
	Hitmarker       SiteCmd    `cmd:"" name:"hitmarker" help:"Scrape Hitmarker."`
	GamesJobsDirect SiteCmd    `cmd:"" name:"gamesjobsdirect" help:"Scrape GamesJobsDirect."`
	Remotive        SiteCmd    `cmd:"" name:"remotive" help:"Scrape Remotive."`
	Rates           RatesCmd   `cmd:"" help:"Fetch CBU exchange rates."`
	Enrich          EnrichCmd  `cmd:"" help:"Ask Gemini for the skills of each keyword."`
	DB              DBCmd      `cmd:"" name:"db" help:"Database utilities."`
	Seen            SeenCmd    `cmd:"" help:"Seen jobs utilities."`
	Proxies         ProxiesCmd `cmd:"" help:"Proxy utilities."`
}

func NewCLI() *CLI {
	return &CLI{
		ITMarket:        SiteCmd{Site: scraper.SiteITMarket},
		Indeed:          SiteCmd{Site: scraper.SiteIndeed},
		Glassdoor:       SiteCmd{Site: scraper.SiteGlassdoor},
		HH:              SiteCmd{Site: scraper.SiteHH},
		RemoteOK:        SiteCmd{Site: scraper.SiteRemoteOK},
		TheMuse:         SiteCmd{Site: scraper.SiteTheMuse},
		Adzuna:          SiteCmd{Site: scraper.SiteAdzuna},
		Hitmarker:       SiteCmd{Site: scraper.SiteHitmarker},
		GamesJobsDirect: SiteCmd{Site: scraper.SiteGamesJobsDirect},
		Remotive:        SiteCmd{Site: scraper.SiteRemotive},
	}
}
