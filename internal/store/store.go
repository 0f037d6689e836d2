// Package store persists scraped jobs and currency rates in Postgres.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// ErrInvalidTable is returned for table names that are not plain lowercase
// identifiers. Table names are interpolated into SQL and never come from
// user input unchecked.
var ErrInvalidTable = errors.New("invalid table name")

var tableNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// siteTables are the table names that differ from the site name.
var siteTables = map[string]string{
	"it-market":       "it_market",
	"hh.uz":           "hh",
	"hitmarker":       "hitmarker_jobs",
	"gamesjobsdirect": "gamesjobsdirect_jobs",
}

type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Open connects to Postgres and pings it.
func Open(ctx context.Context, dsn string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db, logger), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger, now: time.Now}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// TableFor returns the table a site's jobs are stored in.
func TableFor(site string) string {
	site = strings.ToLower(strings.TrimSpace(site))
	if table, ok := siteTables[site]; ok {
		return table
	}
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, site)
}

func validTable(table string) error {
	if !tableNameRe.MatchString(table) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return nil
}
