package network

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	"github.com/rs/zerolog"
)

type fakeResponse struct {
	status int
	body   string
	err    error
}

type fakeDoer struct {
	responses []fakeResponse
	requests  []*fhttp.Request
	proxies   []string
}

func (f *fakeDoer) Do(req *fhttp.Request) (*fhttp.Response, error) {
	f.requests = append(f.requests, req)
	idx := len(f.requests) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	r := f.responses[idx]
	if r.err != nil {
		return nil, r.err
	}
	return &fhttp.Response{
		StatusCode: r.status,
		Header:     fhttp.Header{},
		Body:       io.NopCloser(strings.NewReader(r.body)),
	}, nil
}

func (f *fakeDoer) SetProxy(rawURL string) error {
	f.proxies = append(f.proxies, rawURL)
	return nil
}

func testClient(doer *fakeDoer, rotator *Rotator) *Client {
	return newClient(doer, Options{
		Rotator: rotator,
		Backoff: time.Millisecond,
		Logger:  zerolog.Nop(),
	})
}

func TestFetchRetriesServerErrors(t *testing.T) {
	doer := &fakeDoer{responses: []fakeResponse{
		{status: 503},
		{status: 429},
		{status: 200, body: "<html>ok</html>"},
	}}
	client := testClient(doer, nil)

	body, err := client.Fetch(context.Background(), "https://example.com/jobs", nil)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if string(body) != "<html>ok</html>" {
		t.Fatalf("unexpected body %q", body)
	}
	if len(doer.requests) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(doer.requests))
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	doer := &fakeDoer{responses: []fakeResponse{{status: 404}}}
	client := testClient(doer, nil)

	_, err := client.Fetch(context.Background(), "https://example.com/missing", nil)
	var status *StatusError
	if !errors.As(err, &status) || status.Code != 404 {
		t.Fatalf("expected StatusError 404, got %v", err)
	}
	if len(doer.requests) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(doer.requests))
	}
}

func TestFetchTransportErrorExhaustsRetries(t *testing.T) {
	doer := &fakeDoer{responses: []fakeResponse{{err: errors.New("connection reset")}}}
	client := testClient(doer, nil)

	_, err := client.Fetch(context.Background(), "https://example.com/", nil)
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
	if len(doer.requests) != defaultRetries {
		t.Fatalf("expected %d attempts, got %d", defaultRetries, len(doer.requests))
	}
}

func TestFetchHeaders(t *testing.T) {
	doer := &fakeDoer{responses: []fakeResponse{{status: 200}}}
	client := testClient(doer, nil)

	if _, err := client.Fetch(context.Background(), "https://example.com/", map[string]string{"referer": "https://example.com"}); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	req := doer.requests[0]
	if req.Header.Get("User-Agent") == "" {
		t.Fatalf("expected a user agent")
	}
	if req.Header.Get("accept-language") == "" || req.Header.Get("referer") != "https://example.com" {
		t.Fatalf("unexpected headers: %v", req.Header)
	}
}

func TestFetchRotatesAndBansProxies(t *testing.T) {
	rotator, err := NewRotator([]string{"http://p1:8080", "http://p2:8080"}, time.Hour)
	if err != nil {
		t.Fatalf("NewRotator() error: %v", err)
	}
	doer := &fakeDoer{responses: []fakeResponse{{status: 403}, {status: 200}, {status: 200}}}
	client := newClient(doer, Options{Rotator: rotator, Retries: 1, Logger: zerolog.Nop()})

	_, _ = client.Fetch(context.Background(), "https://example.com/a", nil)
	_, _ = client.Fetch(context.Background(), "https://example.com/b", nil)
	_, _ = client.Fetch(context.Background(), "https://example.com/c", nil)

	want := []string{"http://p1:8080", "http://p2:8080", "http://p2:8080"}
	if strings.Join(doer.proxies, ",") != strings.Join(want, ",") {
		t.Fatalf("proxies = %v, want %v", doer.proxies, want)
	}
}

func TestFetchCanceledContext(t *testing.T) {
	doer := &fakeDoer{responses: []fakeResponse{{status: 500}}}
	client := newClient(doer, Options{Backoff: time.Hour, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := client.Fetch(ctx, "https://example.com/", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPostJSON(t *testing.T) {
	doer := &fakeDoer{responses: []fakeResponse{{status: 200, body: `{"ok":true}`}}}
	client := testClient(doer, nil)

	var out struct {
		OK bool `json:"ok"`
	}
	if err := client.PostJSON(context.Background(), "https://example.com/api", map[string]string{"q": "go"}, &out); err != nil {
		t.Fatalf("PostJSON() error: %v", err)
	}
	if !out.OK {
		t.Fatalf("expected decoded response")
	}
	if doer.requests[0].Method != fhttp.MethodPost || doer.requests[0].Header.Get("content-type") != "application/json" {
		t.Fatalf("unexpected request: %s %v", doer.requests[0].Method, doer.requests[0].Header)
	}
}
