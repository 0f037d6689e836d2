package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iticjobs/jobscrape/internal/browser"
	"github.com/iticjobs/jobscrape/internal/config"
	"github.com/iticjobs/jobscrape/internal/dedup"
	"github.com/iticjobs/jobscrape/internal/indexer"
	"github.com/iticjobs/jobscrape/internal/network"
	"github.com/iticjobs/jobscrape/internal/store"
	"github.com/redis/go-redis/v9"
)

const proxyBanDuration = 10 * time.Minute

var errNoDatabase = errors.New("no database configured: set DATABASE_URL or DB_HOST/DB_NAME (or use --dry-run)")

// services holds the connections a command opened; Close releases them.
type services struct {
	store   *store.Store
	redis   *redis.Client
	dedup   *dedup.Deduplicator
	index   *indexer.Indexer
	browser *browser.Browser
	rotator *network.Rotator
	limiter *network.HostLimiter
	proxies []string
}

func (s *services) Close() {
	if s.browser != nil {
		_ = s.browser.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

func (s *services) openStore(ctx *Context) error {
	dsn := ctx.Config.DSN()
	if dsn == "" {
		return errNoDatabase
	}
	st, err := store.Open(ctx.context(), dsn, ctx.Logger.With().Str("component", "store").Logger())
	if err != nil {
		return fmt.Errorf("%w (%s)", err, ctx.Config.Redacted())
	}
	s.store = st
	return nil
}

// openDedup connects to Redis when REDIS_ADDR is set. A failed connection
// only disables the cache.
func (s *services) openDedup(ctx *Context) {
	addr := strings.TrimSpace(ctx.Config.RedisAddr)
	if addr == "" {
		return
	}
	client, err := dedup.Connect(ctx.context(), addr)
	if err != nil {
		ctx.Logger.Warn().Err(err).Msg("redis unavailable, seen-cache disabled")
		return
	}
	s.redis = client
	s.dedup = dedup.New(client, dedup.DefaultPrefix, dedup.DefaultTTL)
}

// openIndexer connects to Elasticsearch when ELASTICSEARCH_URL is set. A
// failed connection only disables indexing.
func (s *services) openIndexer(ctx *Context) {
	raw := strings.TrimSpace(ctx.Config.ElasticsearchURL)
	if raw == "" {
		return
	}
	logger := ctx.Logger.With().Str("component", "indexer").Logger()
	idx, err := indexer.New(splitList(raw), ctx.Config.ElasticsearchIndex, logger)
	if err == nil {
		err = idx.EnsureIndex(ctx.context())
	}
	if err != nil {
		ctx.Logger.Warn().Err(err).Msg("elasticsearch unavailable, indexing disabled")
		return
	}
	s.index = idx
}

func (s *services) openNetwork(proxiesFlag string, reqPerSec float64) error {
	proxies, err := config.LoadProxies(proxiesFlag)
	if err != nil {
		return err
	}
	if len(proxies) > 0 {
		s.proxies = proxies
		s.rotator, err = network.NewRotator(proxies, proxyBanDuration)
		if err != nil {
			return err
		}
	}
	s.limiter = network.NewHostLimiter(reqPerSec, 2)
	return nil
}

func (s *services) newClient(ctx *Context) func() (*network.Client, error) {
	return func() (*network.Client, error) {
		return network.NewClient(network.Options{
			Rotator: s.rotator,
			Limiter: s.limiter,
			Logger:  ctx.Logger,
		})
	}
}

func (s *services) openBrowser(ctx *Context) error {
	cfg := ctx.Config
	cookies := cfg.CookiesPath
	if cookies == "" {
		cookies, _ = config.CookiesPath()
	}
	opts := browser.Options{
		Headless:    cfg.Headless,
		ExecPath:    cfg.ChromePath,
		CookiesPath: cookies,
		Logger:      ctx.Logger.With().Str("component", "browser").Logger(),
	}
	if s.rotator != nil {
		if proxy, err := s.rotator.Next(); err == nil {
			opts.ProxyURL = proxy.String()
		}
	}

	b, err := browser.New(ctx.context(), opts)
	if err != nil {
		return err
	}
	s.browser = b
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func seconds(value float64) time.Duration {
	if value <= 0 {
		return 0
	}
	return time.Duration(value * float64(time.Second))
}
