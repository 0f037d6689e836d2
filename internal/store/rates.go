package store

import (
	"context"
	"fmt"

	"github.com/iticjobs/jobscrape/internal/models"
)

const RatesTable = "cbu_currency_rates"

var createRatesSQL = []string{
	`CREATE TABLE IF NOT EXISTS ` + RatesTable + ` (
	id BIGSERIAL PRIMARY KEY,
	ccy TEXT NOT NULL,
	code TEXT NULL,
	ccy_nm_uz TEXT NULL,
	ccy_nm_ru TEXT NULL,
	ccy_nm_en TEXT NULL,
	nominal NUMERIC(18,6) NULL,
	rate NUMERIC(18,6) NULL,
	diff NUMERIC(18,6) NULL,
	rate_date DATE NOT NULL,
	uzs_per_unit NUMERIC(24,12) NULL,
	usd_ratio NUMERIC(24,12) NULL,
	retrieved_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	source TEXT NOT NULL DEFAULT 'cbu.uz'
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_` + RatesTable + `_ccy_date ON ` + RatesTable + ` (ccy, rate_date)`,
	`CREATE INDEX IF NOT EXISTS ix_` + RatesTable + `_rate_date ON ` + RatesTable + ` (rate_date)`,
}

const upsertRateSQL = `
INSERT INTO ` + RatesTable + ` (
	ccy, code, ccy_nm_uz, ccy_nm_ru, ccy_nm_en,
	nominal, rate, diff, rate_date, uzs_per_unit, usd_ratio, retrieved_at, source
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (ccy, rate_date) DO UPDATE SET
	code = EXCLUDED.code,
	ccy_nm_uz = EXCLUDED.ccy_nm_uz,
	ccy_nm_ru = EXCLUDED.ccy_nm_ru,
	ccy_nm_en = EXCLUDED.ccy_nm_en,
	nominal = EXCLUDED.nominal,
	rate = EXCLUDED.rate,
	diff = EXCLUDED.diff,
	uzs_per_unit = EXCLUDED.uzs_per_unit,
	usd_ratio = EXCLUDED.usd_ratio,
	retrieved_at = EXCLUDED.retrieved_at,
	source = EXCLUDED.source`

func (s *Store) EnsureRatesTable(ctx context.Context) error {
	for _, stmt := range createRatesSQL {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create %s: %w", RatesTable, err)
		}
	}
	return nil
}

// UpsertRates writes rates in one transaction, replacing rows with the same
// currency and date. Any failure aborts the whole batch.
func (s *Store) UpsertRates(ctx context.Context, rates []models.CurrencyRate) (int, error) {
	if len(rates) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertRateSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rates {
		_, err := stmt.ExecContext(ctx,
			r.Ccy, r.Code, r.NameUZ, r.NameRU, r.NameEN,
			r.Nominal, r.Rate, r.Diff, r.RateDate, r.UZSPerUnit, r.USDRatio, r.RetrievedAt, r.Source,
		)
		if err != nil {
			return 0, fmt.Errorf("upsert %s %s: %w", r.Ccy, r.RateDate.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return len(rates), nil
}
