package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyRate is one CBU exchange rate row. Nominal units of Ccy cost Rate UZS.
type CurrencyRate struct {
	Ccy         string
	Code        string
	NameUZ      string
	NameRU      string
	NameEN      string
	Nominal     decimal.NullDecimal
	Rate        decimal.NullDecimal
	Diff        decimal.NullDecimal
	RateDate    time.Time
	UZSPerUnit  decimal.NullDecimal
	USDRatio    decimal.NullDecimal
	RetrievedAt time.Time
	Source      string
}
