package scraper

import (
	"context"
	"errors"

	"github.com/iticjobs/jobscrape/internal/browser"
	"github.com/iticjobs/jobscrape/internal/models"
)

var (
	ErrNotImplemented = errors.New("scraper not implemented")
	// ErrBlocked means the site answered with a captcha or access-denied page.
	ErrBlocked = errors.New("blocked by site")
)

type Scraper interface {
	Name() string
	Search(ctx context.Context, params models.SearchParams) ([]models.Job, error)
}

// Lister is implemented by scrapers that walk the whole listing once and
// filter by every keyword, instead of searching keyword by keyword.
type Lister interface {
	ListsAll() bool
}

// Fetcher returns the body of a page. network.Client and browser.Browser
// both implement it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// BrowserFetcher is a Fetcher that can also sign in.
type BrowserFetcher interface {
	Fetcher
	Login(ctx context.Context, form browser.LoginForm, email, password string) error
}
