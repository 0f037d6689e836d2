package browser

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
)

func TestCookieFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cookies.json")
	cookies := fromNetwork([]*network.Cookie{
		{Name: "session", Value: "abc", Domain: ".glassdoor.com", Path: "/", Expires: 4102444800, Secure: true, SameSite: network.CookieSameSiteLax},
		nil,
	})
	if err := writeCookieFile(path, cookies); err != nil {
		t.Fatalf("writeCookieFile() error: %v", err)
	}

	got, err := readCookieFile(path)
	if err != nil {
		t.Fatalf("readCookieFile() error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "session" || got[0].SameSite != "Lax" {
		t.Fatalf("unexpected cookies: %+v", got)
	}
}

func TestToParamsDropsExpired(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	params := toParams([]storedCookie{
		{Name: "fresh", Value: "1", Domain: "example.com", Expires: float64(now.Add(time.Hour).Unix())},
		{Name: "stale", Value: "2", Domain: "example.com", Expires: float64(now.Add(-time.Hour).Unix())},
		{Name: "session", Value: "3", Domain: "example.com"},
		{Name: "", Value: "4", Domain: "example.com"},
	}, now)

	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(params))
	}
	if params[0].Name != "fresh" || params[0].Expires == nil {
		t.Fatalf("unexpected first param: %+v", params[0])
	}
	if params[1].Name != "session" || params[1].Expires != nil {
		t.Fatalf("unexpected session param: %+v", params[1])
	}
}

func TestReadCookieFileMissing(t *testing.T) {
	if _, err := readCookieFile(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestAllocatorOptions(t *testing.T) {
	base := allocatorOptions(Options{Headless: true})
	full := allocatorOptions(Options{Headless: true, UserAgent: "ua", ExecPath: "/usr/bin/chromium", ProxyURL: "http://proxy:8080"})
	if len(full) != len(base)+3 {
		t.Fatalf("expected 3 extra options, got %d", len(full)-len(base))
	}
}
