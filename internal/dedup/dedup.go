// Package dedup keeps a Redis cache of jobs already stored, so repeated runs
// skip postings before they reach the database. The SQL unique constraint
// remains authoritative; the cache only saves work.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "jobscrape"
	DefaultTTL    = 30 * 24 * time.Hour
)

// Deduplicator checks and tracks seen jobs using Redis.
type Deduplicator struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func New(client redis.Cmdable, prefix string, ttl time.Duration) *Deduplicator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Deduplicator{client: client, prefix: prefix, ttl: ttl}
}

// Connect parses a redis:// URL or a bare host:port and pings the server.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

func (d *Deduplicator) Key(source, id string) string {
	return fmt.Sprintf("%s:%s:%s", d.prefix, source, id)
}

func (d *Deduplicator) IsSeen(ctx context.Context, source, id string) (bool, error) {
	n, err := d.client.Exists(ctx, d.Key(source, id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (d *Deduplicator) MarkSeen(ctx context.Context, source, id string) error {
	if err := d.client.Set(ctx, d.Key(source, id), time.Now().Unix(), d.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// FilterNew returns the jobs not seen before and marks them as seen. SETNX
// makes the check and the mark one step, so concurrent sites cannot both
// claim the same job.
func (d *Deduplicator) FilterNew(ctx context.Context, jobs []models.Job) ([]models.Job, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	pipe := d.client.Pipeline()
	cmds := make([]*redis.BoolCmd, len(jobs))
	now := time.Now().Unix()
	for i, job := range jobs {
		cmds[i] = pipe.SetNX(ctx, d.Key(job.Source, job.JobID), now, d.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis pipeline: %w", err)
	}

	fresh := make([]models.Job, 0, len(jobs))
	for i, cmd := range cmds {
		if cmd.Val() {
			fresh = append(fresh, jobs[i])
		}
	}
	return fresh, nil
}

// Forget removes the keys of jobs, used when storing them failed.
func (d *Deduplicator) Forget(ctx context.Context, jobs []models.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(jobs))
	for _, job := range jobs {
		keys = append(keys, d.Key(job.Source, job.JobID))
	}
	if err := d.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
