package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/iticjobs/jobscrape/internal/normalize"
)

const createJobTableSQL = `
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	job_id TEXT NOT NULL,
	job_title TEXT,
	location TEXT,
	skills TEXT,
	salary TEXT,
	education TEXT,
	job_type TEXT,
	company_name TEXT,
	job_url TEXT,
	source TEXT NOT NULL,
	description TEXT,
	job_subtitle TEXT,
	posted_date DATE,
	created_at TIMESTAMP DEFAULT NOW(),
	UNIQUE (job_id, source)
)`

const insertJobSQL = `
INSERT INTO %s (
	job_id, job_title, location, skills, salary, education, job_type,
	company_name, job_url, source, description, job_subtitle, posted_date
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (job_id, source) DO NOTHING`

// EnsureJobTable creates table with the job columns if it does not exist.
func (s *Store) EnsureJobTable(ctx context.Context, table string) error {
	if err := validTable(table); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(createJobTableSQL, table)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// InsertJobs inserts jobs in one transaction and returns how many rows were
// actually added. Existing (job_id, source) pairs are left untouched. A row
// that fails is rolled back to its savepoint, logged and skipped.
func (s *Store) InsertJobs(ctx context.Context, table string, jobs []models.Job) (int, error) {
	if err := validTable(table); err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(insertJobSQL, table))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	today := normalize.Day(s.now())
	inserted := 0
	for _, job := range jobs {
		if strings.TrimSpace(job.JobID) == "" {
			s.logger.Debug().Str("title", job.Title).Msg("skip job without id")
			continue
		}
		posted := job.PostedDate
		if posted.IsZero() {
			posted = today
		}

		if _, err := tx.ExecContext(ctx, "SAVEPOINT job_row"); err != nil {
			return inserted, fmt.Errorf("savepoint: %w", err)
		}
		res, err := stmt.ExecContext(ctx,
			job.JobID, job.Title, job.Location, job.Skills, job.Salary, job.Education, job.JobType,
			job.Company, job.URL, job.Source, job.Description, job.Subtitle, posted,
		)
		if err != nil {
			s.logger.Debug().Err(err).Str("job_id", job.JobID).Str("table", table).Msg("insert failed")
			if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT job_row"); err != nil {
				return inserted, fmt.Errorf("rollback to savepoint: %w", err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT job_row"); err != nil {
			return inserted, fmt.Errorf("release savepoint: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return inserted, nil
}
