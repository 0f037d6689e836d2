// Package rates downloads the Central Bank of Uzbekistan daily exchange
// rates and derives per-unit and dollar-relative values.
package rates

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/shopspring/decimal"
)

const (
	DefaultURL = "https://cbu.uz/oz/arkhiv-kursov-valyut/json/"
	Source     = "cbu.uz"
)

// ErrNoUSD means the response had no usable USD row, so dollar ratios
// cannot be computed.
var ErrNoUSD = errors.New("usd rate not found")

var dateLayouts = []string{"02.01.2006", "2006-01-02", "02/01/2006"}

// RawRate is one item of the CBU JSON list as decoded.
type RawRate map[string]any

type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// Fetch downloads the rate list from url.
func Fetch(ctx context.Context, client Fetcher, url string) ([]RawRate, error) {
	if url == "" {
		url = DefaultURL
	}
	body, err := client.Fetch(ctx, url, map[string]string{"accept": "application/json"})
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw []RawRate
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unexpected rates payload, expected a list: %w", err)
	}
	return raw, nil
}

// Normalize converts raw items into rates. Items without a currency code are
// skipped; an unparseable date fails the whole batch.
func Normalize(raw []RawRate, retrievedAt time.Time) ([]models.CurrencyRate, error) {
	out := make([]models.CurrencyRate, 0, len(raw))
	for _, item := range raw {
		ccy := strings.ToUpper(strings.TrimSpace(item.str("Ccy")))
		if ccy == "" {
			continue
		}

		dateStr := item.str("Date")
		rateDate, ok := parseDate(dateStr)
		if !ok {
			return nil, fmt.Errorf("could not parse date %q for %s", dateStr, ccy)
		}

		rate := models.CurrencyRate{
			Ccy:         ccy,
			Code:        item.str("Code"),
			NameUZ:      item.str("CcyNm_UZ"),
			NameRU:      item.str("CcyNm_RU"),
			NameEN:      item.str("CcyNm_EN"),
			Nominal:     item.decimal("Nominal"),
			Rate:        item.decimal("Rate"),
			Diff:        item.decimal("Diff"),
			RateDate:    rateDate,
			RetrievedAt: retrievedAt.UTC(),
			Source:      Source,
		}
		if rate.Rate.Valid && rate.Nominal.Valid && !rate.Nominal.Decimal.IsZero() {
			rate.UZSPerUnit = decimal.NewNullDecimal(rate.Rate.Decimal.Div(rate.Nominal.Decimal))
		}
		out = append(out, rate)
	}

	var usd decimal.NullDecimal
	for _, rate := range out {
		if rate.Ccy == "USD" {
			usd = rate.UZSPerUnit
			break
		}
	}
	if !usd.Valid || usd.Decimal.IsZero() {
		return nil, ErrNoUSD
	}

	for i := range out {
		switch {
		case out[i].Ccy == "USD":
			out[i].USDRatio = decimal.NewNullDecimal(decimal.NewFromInt(1))
		case out[i].UZSPerUnit.Valid:
			out[i].USDRatio = decimal.NewNullDecimal(out[i].UZSPerUnit.Decimal.Div(usd.Decimal))
		}
	}
	return out, nil
}

// get looks key up exactly, then case-insensitively.
func (r RawRate) get(key string) (any, bool) {
	if v, ok := r[key]; ok {
		return v, true
	}
	for k, v := range r {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func (r RawRate) str(key string) string {
	v, ok := r.get(key)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func (r RawRate) decimal(key string) decimal.NullDecimal {
	return parseDecimal(r.str(key))
}

// parseDecimal accepts "12 345,67" style numbers. Anything unparseable is
// treated as missing.
func parseDecimal(s string) decimal.NullDecimal {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
