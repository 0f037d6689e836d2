package network

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

var ErrNoProxies = errors.New("no proxies available")

// Rotator hands out proxies round-robin and benches a proxy for banDuration
// after a request through it answers 403, 407 or 429.
type Rotator struct {
	proxies     []*url.URL
	banDuration time.Duration
	bannedUntil map[string]time.Time
	index       int
	mu          sync.Mutex
	now         func() time.Time
}

func NewRotator(raw []string, banDuration time.Duration) (*Rotator, error) {
	rotator := &Rotator{
		banDuration: banDuration,
		bannedUntil: map[string]time.Time{},
		now:         time.Now,
	}

	for _, proxy := range raw {
		proxy = strings.TrimSpace(proxy)
		if proxy == "" {
			continue
		}
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", proxy, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("parse proxy %q: scheme and host are required", proxy)
		}
		rotator.proxies = append(rotator.proxies, u)
	}

	return rotator, nil
}

// Len reports how many proxies are configured.
func (r *Rotator) Len() int {
	if r == nil {
		return 0
	}
	return len(r.proxies)
}

// Next returns the next proxy that is not benched.
func (r *Rotator) Next() (*url.URL, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.proxies)
	for i := 0; i < n; i++ {
		proxy := r.proxies[r.index]
		r.index = (r.index + 1) % n
		if !r.benched(proxy) {
			return proxy, nil
		}
	}
	return nil, ErrNoProxies
}

// Report benches proxy when status says the site or the proxy refused us.
func (r *Rotator) Report(proxy *url.URL, status int) {
	if proxy == nil || !banStatus(status) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.bannedUntil[proxy.String()] = r.now().Add(r.banDuration)
}

func banStatus(status int) bool {
	switch status {
	case 403, 407, 429:
		return true
	}
	return false
}

func (r *Rotator) benched(proxy *url.URL) bool {
	key := proxy.String()
	until, ok := r.bannedUntil[key]
	if !ok {
		return false
	}
	if r.now().After(until) {
		delete(r.bannedUntil, key)
		return false
	}
	return true
}
