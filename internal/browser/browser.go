// Package browser drives a shared headless Chrome through chromedp for sites
// that only render listings client-side or require a login.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

const defaultNavTimeout = 45 * time.Second

var ErrClosed = errors.New("browser closed")

type Options struct {
	Headless    bool
	ExecPath    string
	UserAgent   string
	CookiesPath string
	ProxyURL    string
	NavTimeout  time.Duration
	Logger      zerolog.Logger
}

// LoginForm describes an email/password form. ContinueSelector is clicked
// between the two fields on two-step forms and may be empty.
type LoginForm struct {
	URL              string
	EmailSelector    string
	ContinueSelector string
	PasswordSelector string
	SubmitSelector   string
}

// Browser is one Chrome instance. Tabs are opened per request and requests
// are serialized.
type Browser struct {
	mu          sync.Mutex
	opts        Options
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	closed      bool
}

func New(ctx context.Context, opts Options) (*Browser, error) {
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = defaultNavTimeout
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOptions(opts)...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// The first Run starts the browser process.
	if err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return emulation.SetDeviceMetricsOverride(1280, 900, 1.0, false).Do(ctx)
	})); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	b := &Browser{
		opts:        opts,
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
	}
	if opts.CookiesPath != "" {
		if err := b.LoadCookies(ctx, opts.CookiesPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			opts.Logger.Warn().Err(err).Str("path", opts.CookiesPath).Msg("load cookies")
		}
	}
	return b, nil
}

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	out = append(out,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if opts.UserAgent != "" {
		out = append(out, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.ProxyURL != "" {
		out = append(out, chromedp.ProxyServer(opts.ProxyURL))
	}
	return out
}

// Fetch opens target in a new tab, waits for the body and returns the
// rendered document.
func (b *Browser) Fetch(ctx context.Context, target string, headers map[string]string) ([]byte, error) {
	var html string
	err := b.run(ctx, func(tab context.Context) error {
		actions := []chromedp.Action{network.Enable()}
		if len(headers) > 0 {
			h := network.Headers{}
			for key, value := range headers {
				h[key] = value
			}
			actions = append(actions, network.SetExtraHTTPHeaders(h))
		}
		actions = append(actions,
			chromedp.Navigate(target),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
		return chromedp.Run(tab, actions...)
	})
	if err != nil {
		return nil, fmt.Errorf("browser fetch %s: %w", target, err)
	}
	return []byte(html), nil
}

// Login submits form with the given credentials and persists the resulting
// session cookies.
func (b *Browser) Login(ctx context.Context, form LoginForm, email, password string) error {
	if email == "" || password == "" {
		return errors.New("login: email and password are required")
	}
	err := b.run(ctx, func(tab context.Context) error {
		actions := []chromedp.Action{
			chromedp.Navigate(form.URL),
			chromedp.WaitVisible(form.EmailSelector, chromedp.ByQuery),
			chromedp.SendKeys(form.EmailSelector, email, chromedp.ByQuery),
		}
		if form.ContinueSelector != "" {
			actions = append(actions, chromedp.Click(form.ContinueSelector, chromedp.ByQuery))
		}
		actions = append(actions,
			chromedp.WaitVisible(form.PasswordSelector, chromedp.ByQuery),
			chromedp.SendKeys(form.PasswordSelector, password, chromedp.ByQuery),
			chromedp.Click(form.SubmitSelector, chromedp.ByQuery),
			chromedp.Sleep(3*time.Second),
		)
		return chromedp.Run(tab, actions...)
	})
	if err != nil {
		return fmt.Errorf("login %s: %w", form.URL, err)
	}
	if b.opts.CookiesPath != "" {
		return b.SaveCookies(ctx, b.opts.CookiesPath)
	}
	return nil
}

// SaveCookies writes every browser cookie to path as JSON.
func (b *Browser) SaveCookies(ctx context.Context, path string) error {
	var cookies []*network.Cookie
	err := b.run(ctx, func(tab context.Context) error {
		return chromedp.Run(tab, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}))
	})
	if err != nil {
		return fmt.Errorf("read cookies: %w", err)
	}
	return writeCookieFile(path, fromNetwork(cookies))
}

// LoadCookies installs the cookies stored at path.
func (b *Browser) LoadCookies(ctx context.Context, path string) error {
	stored, err := readCookieFile(path)
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		return nil
	}
	params := toParams(stored, time.Now())
	return b.run(ctx, func(tab context.Context) error {
		return chromedp.Run(tab, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCookies(params).Do(ctx)
		}))
	})
}

// Close saves cookies when a cookie path is configured and stops Chrome.
func (b *Browser) Close() error {
	var saveErr error
	if b.opts.CookiesPath != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		saveErr = b.SaveCookies(ctx, b.opts.CookiesPath)
		cancel()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.cancel()
	b.allocCancel()
	return saveErr
}

// run executes fn in a fresh tab bounded by the navigation timeout and by
// ctx.
func (b *Browser) run(ctx context.Context, fn func(tab context.Context) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	tab, cancelTab := chromedp.NewContext(b.ctx)
	defer cancelTab()
	tab, cancelTimeout := context.WithTimeout(tab, b.opts.NavTimeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	return fn(tab)
}
