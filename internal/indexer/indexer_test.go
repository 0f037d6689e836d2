package indexer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeES answers the handful of endpoints the indexer uses.
type fakeES struct {
	mu          sync.Mutex
	indexExists bool
	created     string
	bulkLines   []string
	bulkReply   string
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/" && r.Method == http.MethodGet:
		fmt.Fprint(w, `{"version":{"number":"8.15.0","build_flavor":"default"},"tagline":"You Know, for Search"}`)
	case r.URL.Path == "/_bulk":
		scanner := bufio.NewScanner(r.Body)
		scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				f.bulkLines = append(f.bulkLines, line)
			}
		}
		fmt.Fprint(w, f.bulkReply)
	case r.Method == http.MethodHead:
		if f.indexExists {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodPut:
		body := new(strings.Builder)
		_, _ = bufio.NewReader(r.Body).WriteTo(body)
		f.created = body.String()
		fmt.Fprint(w, `{"acknowledged":true}`)
	default:
		http.NotFound(w, r)
	}
}

func newTestIndexer(t *testing.T, es *fakeES) *Indexer {
	t.Helper()
	srv := httptest.NewServer(es)
	t.Cleanup(srv.Close)

	idx, err := New([]string{srv.URL}, "", zerolog.Nop())
	require.NoError(t, err)
	return idx
}

func TestEnsureIndexCreatesMissingIndex(t *testing.T) {
	es := &fakeES{}
	idx := newTestIndexer(t, es)

	require.NoError(t, idx.EnsureIndex(context.Background()))
	assert.Contains(t, es.created, `"posted_date": {"type": "date"}`)
}

func TestEnsureIndexKeepsExistingIndex(t *testing.T) {
	es := &fakeES{indexExists: true}
	idx := newTestIndexer(t, es)

	require.NoError(t, idx.EnsureIndex(context.Background()))
	assert.Empty(t, es.created)
}

func TestBulkIndex(t *testing.T) {
	es := &fakeES{bulkReply: `{
		"errors": true,
		"items": [
			{"index": {"_id": "indeed:a1", "status": 201}},
			{"index": {"_id": "indeed:a2", "status": 400, "error": {"type": "mapper_parsing_exception", "reason": "bad date"}}}
		]
	}`}
	idx := newTestIndexer(t, es)

	jobs := []models.Job{
		{JobID: "a1", Title: "Go Developer", Source: "indeed"},
		{JobID: "a2", Title: "Data Engineer", Source: "indeed"},
	}
	n, err := idx.BulkIndex(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, es.bulkLines, 4)
	var meta struct {
		Index struct {
			Index string `json:"_index"`
			ID    string `json:"_id"`
		} `json:"index"`
	}
	require.NoError(t, json.Unmarshal([]byte(es.bulkLines[0]), &meta))
	assert.Equal(t, DefaultIndex, meta.Index.Index)
	assert.Equal(t, "indeed:a1", meta.Index.ID)
	assert.Contains(t, es.bulkLines[1], `"job_title":"Go Developer"`)
}

func TestBulkIndexEmpty(t *testing.T) {
	idx := newTestIndexer(t, &fakeES{})
	n, err := idx.BulkIndex(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
