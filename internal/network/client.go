package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/url"
	"sync"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	fhttpcookiejar "github.com/bogdanfinn/fhttp/cookiejar"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	"github.com/rs/zerolog"
)

var ErrRequestFailed = errors.New("request failed")

const (
	defaultTimeoutSeconds = 30
	defaultRetries        = 3
	defaultBackoff        = 1200 * time.Millisecond
	maxBodyBytes          = 16 << 20
)

// StatusError is returned for responses with a status of 400 or above.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.URL)
}

// Options configures a Client. Zero values pick the defaults.
type Options struct {
	Rotator *Rotator
	Limiter *HostLimiter
	// Retries is the total number of attempts per Fetch.
	Retries int
	Backoff time.Duration
	Logger  zerolog.Logger
}

type httpDoer interface {
	Do(req *fhttp.Request) (*fhttp.Response, error)
	SetProxy(rawURL string) error
}

// Client is a browser-fingerprinted HTTP client. Each scraper owns one so
// cookie jars are not shared between sites.
type Client struct {
	http       httpDoer
	rotator    *Rotator
	limiter    *HostLimiter
	retries    int
	backoff    time.Duration
	logger     zerolog.Logger
	userAgents []string

	mu   sync.Mutex
	rand *rand.Rand
}

func NewClient(opts Options) (*Client, error) {
	jar, _ := fhttpcookiejar.New(nil)

	client, err := tls_client.NewHttpClient(
		tls_client.NewNoopLogger(),
		tls_client.WithClientProfile(profiles.Chrome_120),
		tls_client.WithTimeoutSeconds(defaultTimeoutSeconds),
		tls_client.WithCookieJar(jar),
	)
	if err != nil {
		return nil, err
	}
	return newClient(client, opts), nil
}

func newClient(doer httpDoer, opts Options) *Client {
	retries := opts.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	return &Client{
		http:       doer,
		rotator:    opts.Rotator,
		limiter:    opts.Limiter,
		retries:    retries,
		backoff:    backoff,
		logger:     opts.Logger,
		userAgents: append([]string{}, userAgents...),
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *Client) Do(req *fhttp.Request) (*fhttp.Response, error) {
	proxy, _ := c.rotateProxy()
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.randomUA())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if proxy != nil {
		c.rotator.Report(proxy, resp.StatusCode)
	}
	return resp, nil
}

// Fetch GETs target and returns the body. Transport errors, 429 and 5xx are
// retried with a linear backoff; other 4xx fail immediately.
func (c *Client) Fetch(ctx context.Context, target string, headers map[string]string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		body, err := c.fetchOnce(ctx, target, headers)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !retryable(err) || attempt == c.retries {
			break
		}
		c.logger.Debug().Err(err).Str("url", target).Int("attempt", attempt).Msg("retrying request")
		if err := sleep(ctx, c.backoff*time.Duration(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, target string, headers map[string]string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.WaitURL(ctx, target); err != nil {
			return nil, err
		}
	}

	req, err := fhttp.NewRequestWithContext(ctx, fhttp.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	ApplyHeaders(req, headers)

	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &StatusError{URL: target, Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrRequestFailed, err)
	}
	return body, nil
}

// PostJSON sends body as JSON and decodes the response into out when out is
// not nil.
func (c *Client) PostJSON(ctx context.Context, target string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if c.limiter != nil {
		if err := c.limiter.WaitURL(ctx, target); err != nil {
			return err
		}
	}

	req, err := fhttp.NewRequestWithContext(ctx, fhttp.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &StatusError{URL: target, Code: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ApplyHeaders sets browser-like accept headers unless headers overrides them.
func ApplyHeaders(req *fhttp.Request, headers map[string]string) {
	if _, ok := headers["accept"]; !ok {
		req.Header.Set("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}
	if _, ok := headers["accept-language"]; !ok {
		req.Header.Set("accept-language", "en-US,en;q=0.9")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
}

func retryable(err error) bool {
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code == fhttp.StatusTooManyRequests || status.Code >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) rotateProxy() (*url.URL, error) {
	if c.rotator == nil {
		return nil, nil
	}
	proxy, err := c.rotator.Next()
	if err != nil {
		return nil, err
	}

	if proxy != nil {
		_ = c.http.SetProxy(proxy.String())
	}
	return proxy, nil
}

func (c *Client) randomUA() string {
	if len(c.userAgents) == 0 {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userAgents[c.rand.Intn(len(c.userAgents))]
}
