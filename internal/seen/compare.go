// Package seen keeps a JSON history of jobs already reported, for runs that
// do not use the database or Redis.
package seen

import (
	"strings"

	"github.com/iticjobs/jobscrape/internal/models"
)

const keySeparator = "::"

// DiffStats describes one Diff call.
type DiffStats struct {
	TotalNew    int
	TotalSeen   int
	InvalidNew  int
	InvalidSeen int
	Unseen      int
}

func (s DiffStats) InvalidSkipped() int {
	return s.InvalidNew + s.InvalidSeen
}

// MergeStats describes one Merge call.
type MergeStats struct {
	TotalSeen    int
	TotalInput   int
	InvalidSeen  int
	InvalidInput int
	Added        int
	TotalOut     int
}

func (s MergeStats) InvalidSkipped() int {
	return s.InvalidSeen + s.InvalidInput
}

// Normalize lowercases value and collapses its whitespace.
func Normalize(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), " ")
}

// Key identifies a job across runs. Jobs with both a source and an id use
// "source::id"; others fall back to "title::company". Jobs with neither
// pair have no key.
func Key(job models.Job) (string, bool) {
	source, id := Normalize(job.Source), strings.TrimSpace(job.JobID)
	if source != "" && id != "" {
		return source + keySeparator + id, true
	}

	title, company := Normalize(job.Title), Normalize(job.Company)
	if title == "" || company == "" {
		return "", false
	}
	return title + keySeparator + company, true
}

type keySet map[string]struct{}

// add reports whether key was new.
func (s keySet) add(key string) bool {
	if _, ok := s[key]; ok {
		return false
	}
	s[key] = struct{}{}
	return true
}

func (s keySet) has(key string) bool {
	_, ok := s[key]
	return ok
}

// Diff returns the jobs of newJobs whose key is not in seenJobs, keeping the
// first of any repeated key.
func Diff(newJobs []models.Job, seenJobs []models.Job) ([]models.Job, DiffStats) {
	stats := DiffStats{TotalNew: len(newJobs), TotalSeen: len(seenJobs)}

	history := make(keySet, len(seenJobs))
	for _, job := range seenJobs {
		key, ok := Key(job)
		if !ok {
			stats.InvalidSeen++
			continue
		}
		history.add(key)
	}

	batch := make(keySet, len(newJobs))
	unseen := make([]models.Job, 0, len(newJobs))
	for _, job := range newJobs {
		key, ok := Key(job)
		switch {
		case !ok:
			stats.InvalidNew++
		case !batch.add(key), history.has(key):
		default:
			unseen = append(unseen, job)
		}
	}

	stats.Unseen = len(unseen)
	return unseen, stats
}

// Merge appends inputJobs to existingSeen without duplicating keys. Entries
// already in the history win; history entries without a key are preserved.
func Merge(existingSeen []models.Job, inputJobs []models.Job) ([]models.Job, MergeStats) {
	stats := MergeStats{TotalSeen: len(existingSeen), TotalInput: len(inputJobs)}

	keys := make(keySet, len(existingSeen)+len(inputJobs))
	out := make([]models.Job, 0, len(existingSeen)+len(inputJobs))

	for _, job := range existingSeen {
		key, ok := Key(job)
		if !ok {
			stats.InvalidSeen++
			out = append(out, job)
			continue
		}
		if keys.add(key) {
			out = append(out, job)
		}
	}

	for _, job := range inputJobs {
		key, ok := Key(job)
		if !ok {
			stats.InvalidInput++
			continue
		}
		if keys.add(key) {
			out = append(out, job)
			stats.Added++
		}
	}

	stats.TotalOut = len(out)
	return out, stats
}
