package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// FactKey addresses at most one PriceFact. ValidityDate is always UTC midnight
// so keys compare equal when used in maps.
type FactKey struct {
	ProductID    int64
	MarketID     int64
	ValidityDate time.Time
}

// PriceFact is the price of a product at a market on one calendar date.
type PriceFact struct {
	ProductID    int64
	MarketID     int64
	Price        decimal.Decimal
	UnitText     string
	ValidityDate time.Time
	Annotation   *string
}

// Key returns the composite key of the fact.
func (f PriceFact) Key() FactKey {
	return FactKey{ProductID: f.ProductID, MarketID: f.MarketID, ValidityDate: f.ValidityDate}
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
