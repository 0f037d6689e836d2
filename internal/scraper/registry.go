package scraper

import (
	"slices"
	"strings"
	"time"

	"github.com/iticjobs/jobscrape/internal/cleaner"
	"github.com/iticjobs/jobscrape/internal/network"
	"github.com/rs/zerolog"
)

const (
	SiteITMarket        = "it-market"
	SiteIndeed          = "indeed"
	SiteGlassdoor       = "glassdoor"
	SiteHH              = "hh.uz"
	SiteRemoteOK        = "remoteok"
	SiteTheMuse         = "themuse"
	SiteAdzuna          = "adzuna"
	SiteHitmarker       = "hitmarker"
	SiteGamesJobsDirect = "gamesjobsdirect"
	SiteRemotive        = "remotive"
)

var aliases = map[string]string{
	"itmarket":       SiteITMarket,
	"it_market":      SiteITMarket,
	"itpark":         SiteITMarket,
	"hh":             SiteHH,
	"headhunter":     SiteHH,
	"muse":           SiteTheMuse,
	"games":          SiteGamesJobsDirect,
	"gjd":            SiteGamesJobsDirect,
	"gamesjobs":      SiteGamesJobsDirect,
	"remote-ok":      SiteRemoteOK,
	"it-market.uz":   SiteITMarket,
	"remoteok.com":   SiteRemoteOK,
	"remotive.com":   SiteRemotive,
	"hitmarker.net":  SiteHitmarker,
	"themuse.com":    SiteTheMuse,
	"indeed.com":     SiteIndeed,
	"glassdoor.com":  SiteGlassdoor,
	"adzuna.com":     SiteAdzuna,
	"tashkent.hh.uz": SiteHH,
}

// Config carries site credentials and shared helpers.
type Config struct {
	Email         string
	EmailPassword string
	AdzunaAppID   string
	AdzunaAppKey  string
	AdzunaCountry string
	// Proxies are used by collectors that do not go through network.Client.
	Proxies []string
	Cleaner *cleaner.Cleaner
	Now     func() time.Time
}

// Deps are the shared resources scrapers are built from. Browser may be nil,
// in which case browser-driven sites fetch over HTTP.
type Deps struct {
	NewClient func() (*network.Client, error)
	Browser   BrowserFetcher
	// Limiter throttles collectors that do not go through network.Client.
	Limiter *network.HostLimiter
	Logger  zerolog.Logger
	Config  Config
}

// Sites lists every supported site in display order.
func Sites() []string {
	return []string{
		SiteITMarket, SiteIndeed, SiteGlassdoor, SiteHH, SiteRemoteOK,
		SiteTheMuse, SiteAdzuna, SiteHitmarker, SiteGamesJobsDirect, SiteRemotive,
	}
}

func Registry(deps Deps) (map[string]Scraper, error) {
	if deps.Config.Now == nil {
		deps.Config.Now = time.Now
	}
	if deps.Config.Cleaner == nil {
		deps.Config.Cleaner = cleaner.New()
	}
	if deps.NewClient == nil {
		deps.NewClient = func() (*network.Client, error) {
			return network.NewClient(network.Options{Logger: deps.Logger})
		}
	}

	clients := map[string]*network.Client{}
	for _, site := range Sites() {
		client, err := deps.NewClient()
		if err != nil {
			return nil, err
		}
		clients[site] = client
	}

	pages := func(site string) Fetcher {
		if deps.Browser != nil {
			return deps.Browser
		}
		return clients[site]
	}
	siteDeps := func(site string) siteBase {
		return siteBase{
			logger: deps.Logger.With().Str("site", site).Logger(),
			now:    deps.Config.Now,
		}
	}

	return map[string]Scraper{
		SiteITMarket:        NewITMarket(clients[SiteITMarket], siteDeps(SiteITMarket)),
		SiteIndeed:          NewIndeed(pages(SiteIndeed), deps.Config.Cleaner, siteDeps(SiteIndeed)),
		SiteGlassdoor:       NewGlassdoor(pages(SiteGlassdoor), deps.Browser, deps.Config, siteDeps(SiteGlassdoor)),
		SiteHH:              NewHH(deps.Config.Proxies, deps.Limiter, siteDeps(SiteHH)),
		SiteRemoteOK:        NewRemoteOK(pages(SiteRemoteOK), siteDeps(SiteRemoteOK)),
		SiteTheMuse:         NewTheMuse(pages(SiteTheMuse), siteDeps(SiteTheMuse)),
		SiteAdzuna:          NewAdzuna(clients[SiteAdzuna], pages(SiteAdzuna), deps.Config, siteDeps(SiteAdzuna)),
		SiteHitmarker:       NewHitmarker(pages(SiteHitmarker), clients[SiteHitmarker], siteDeps(SiteHitmarker)),
		SiteGamesJobsDirect: NewGamesJobsDirect(pages(SiteGamesJobsDirect), siteDeps(SiteGamesJobsDirect)),
		SiteRemotive:        NewRemotive(clients[SiteRemotive], deps.Config.Cleaner, siteDeps(SiteRemotive)),
	}, nil
}

// siteBase is what every scraper needs besides its fetchers.
type siteBase struct {
	logger zerolog.Logger
	now    func() time.Time
}

func (b siteBase) today() time.Time {
	if b.now == nil {
		return time.Now()
	}
	return b.now()
}

func NormalizeSites(sites []string) []string {
	out := make([]string, 0, len(sites))
	for _, site := range sites {
		site = strings.ToLower(strings.TrimSpace(site))
		if site == "" {
			continue
		}
		site = strings.TrimPrefix(site, "www.")
		if canonical, ok := aliases[site]; ok {
			site = canonical
		}
		out = append(out, site)
	}
	return out
}

// Known reports whether site is a supported site name after normalization.
func Known(site string) bool {
	return slices.Contains(Sites(), site)
}
