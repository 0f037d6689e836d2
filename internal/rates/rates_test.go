package rates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cbuPayload = `[
	{"id":69,"Code":"840","Ccy":"USD","CcyNm_RU":"Доллар США","CcyNm_UZ":"AQSH dollari","CcyNm_EN":"US Dollar","Nominal":"1","Rate":"12500","Diff":"-12.5","Date":"17.10.2026"},
	{"id":21,"Code":"978","Ccy":"EUR","CcyNm_RU":"Евро","CcyNm_UZ":"EVRO","CcyNm_EN":"Euro","Nominal":"1","Rate":"13 750","Diff":"3,1","Date":"17.10.2026"},
	{"id":57,"code":"392","ccy":"jpy","ccynm_en":"Japan Yen","nominal":100,"rate":"8500,5","diff":"","date":"2026-10-17"},
	{"id":0,"Code":"000","Ccy":"","Rate":"1","Date":"17.10.2026"}
]`

var retrieved = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	body string
	err  error
	url  string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, _ map[string]string) ([]byte, error) {
	f.url = url
	return []byte(f.body), f.err
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFetchAndNormalize(t *testing.T) {
	client := &fakeFetcher{body: cbuPayload}
	raw, err := Fetch(context.Background(), client, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, client.url)
	require.Len(t, raw, 4)

	rates, err := Normalize(raw, retrieved)
	require.NoError(t, err)
	require.Len(t, rates, 3, "rows without a currency are skipped")

	usd := rates[0]
	assert.Equal(t, "USD", usd.Ccy)
	assert.Equal(t, "840", usd.Code)
	assert.Equal(t, "US Dollar", usd.NameEN)
	assert.Equal(t, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), usd.RateDate)
	assert.True(t, usd.USDRatio.Decimal.Equal(dec("1")))
	assert.True(t, usd.Diff.Decimal.Equal(dec("-12.5")))
	assert.Equal(t, Source, usd.Source)
	assert.Equal(t, retrieved, usd.RetrievedAt)

	eur := rates[1]
	assert.True(t, eur.Rate.Decimal.Equal(dec("13750")))
	assert.True(t, eur.Diff.Decimal.Equal(dec("3.1")))
	assert.True(t, eur.USDRatio.Decimal.Equal(dec("1.1")))

	jpy := rates[2]
	assert.Equal(t, "JPY", jpy.Ccy)
	assert.Equal(t, "392", jpy.Code)
	assert.True(t, jpy.Nominal.Decimal.Equal(dec("100")))
	assert.True(t, jpy.UZSPerUnit.Decimal.Equal(dec("85.005")))
	assert.True(t, jpy.USDRatio.Decimal.Equal(dec("0.0068004")))
	assert.False(t, jpy.Diff.Valid)
}

func TestNormalizeWithoutUSD(t *testing.T) {
	raw := []RawRate{{"Ccy": "EUR", "Nominal": "1", "Rate": "13750", "Date": "17.10.2026"}}
	_, err := Normalize(raw, retrieved)
	assert.ErrorIs(t, err, ErrNoUSD)
}

func TestNormalizeBadDate(t *testing.T) {
	raw := []RawRate{{"Ccy": "USD", "Nominal": "1", "Rate": "12500", "Date": "tomorrow"}}
	_, err := Normalize(raw, retrieved)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tomorrow")
}

func TestNormalizeZeroNominal(t *testing.T) {
	raw := []RawRate{
		{"Ccy": "USD", "Nominal": "1", "Rate": "12500", "Date": "17/10/2026"},
		{"Ccy": "XDR", "Nominal": "0", "Rate": "17000", "Date": "17/10/2026"},
	}
	rates, err := Normalize(raw, retrieved)
	require.NoError(t, err)
	assert.False(t, rates[1].UZSPerUnit.Valid)
	assert.False(t, rates[1].USDRatio.Valid)
}

func TestFetchRejectsObject(t *testing.T) {
	_, err := Fetch(context.Background(), &fakeFetcher{body: `{"error":"maintenance"}`}, DefaultURL)
	assert.Error(t, err)
}

func TestFetchError(t *testing.T) {
	_, err := Fetch(context.Background(), &fakeFetcher{err: errors.New("timeout")}, DefaultURL)
	assert.ErrorContains(t, err, "timeout")
}

func TestParseDecimal(t *testing.T) {
	tests := map[string]string{
		"12 345,67":  "12345.67",
		"1\u00a0000": "1000",
		" 42 ":       "42",
	}
	for in, want := range tests {
		got := parseDecimal(in)
		if !got.Valid || !got.Decimal.Equal(dec(want)) {
			t.Fatalf("parseDecimal(%q) = %v, want %s", in, got, want)
		}
	}
	if parseDecimal("n/a").Valid {
		t.Fatalf("expected invalid decimal for garbage input")
	}
}
