// Package indexer mirrors stored jobs into an Elasticsearch index for
// full-text search.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/rs/zerolog"
)

const DefaultIndex = "jobs"

const jobMapping = `{
	"mappings": {
		"properties": {
			"job_id": {"type": "keyword"},
			"job_title": {
				"type": "text",
				"fields": {"keyword": {"type": "keyword"}}
			},
			"location": {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
			"skills": {"type": "text"},
			"salary": {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
			"education": {"type": "keyword"},
			"job_type": {"type": "keyword"},
			"company_name": {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
			"job_url": {"type": "keyword"},
			"source": {"type": "keyword"},
			"description": {"type": "text"},
			"job_subtitle": {"type": "text"},
			"posted_date": {"type": "date"}
		}
	}
}`

// Indexer writes jobs to one Elasticsearch index.
type Indexer struct {
	client *elasticsearch.Client
	index  string
	logger zerolog.Logger
}

// New connects to the given addresses and checks the cluster answers.
func New(addresses []string, index string, logger zerolog.Logger) (*Indexer, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("create es client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("es info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("es error: %s", res.Status())
	}

	if index == "" {
		index = DefaultIndex
	}
	return &Indexer{client: client, index: index, logger: logger}, nil
}

// DocumentID is the document id of a job: source and job id joined by ":".
func DocumentID(job models.Job) string {
	return job.Source + ":" + job.JobID
}

// EnsureIndex creates the index with the job mapping unless it exists.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	res, err := i.client.Indices.Exists([]string{i.index}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = i.client.Indices.Create(
		i.index,
		i.client.Indices.Create.WithBody(strings.NewReader(jobMapping)),
		i.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index error: %s", res.Status())
	}
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

// BulkIndex indexes jobs in one bulk request and returns how many documents
// were accepted. Rejected documents are logged, not returned as errors.
func (i *Indexer) BulkIndex(ctx context.Context, jobs []models.Job) (int, error) {
	if len(jobs) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	sent := 0
	for _, job := range jobs {
		doc, err := json.Marshal(job)
		if err != nil {
			i.logger.Debug().Err(err).Str("job_id", job.JobID).Msg("marshal job")
			continue
		}
		meta, _ := json.Marshal(map[string]any{
			"index": map[string]any{"_index": i.index, "_id": DocumentID(job)},
		})
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(doc)
		buf.WriteByte('\n')
		sent++
	}

	res, err := i.client.Bulk(bytes.NewReader(buf.Bytes()), i.client.Bulk.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("bulk error: %s", res.Status())
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("parse bulk response: %w", err)
	}

	indexed := sent
	if parsed.Errors {
		for _, item := range parsed.Items {
			if item.Index.Status >= 400 {
				indexed--
				i.logger.Warn().
					Str("id", item.Index.ID).
					Str("type", item.Index.Error.Type).
					Msg(item.Index.Error.Reason)
			}
		}
	}
	return indexed, nil
}
