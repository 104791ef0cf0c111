// Package offer parses tab-delimited promotional price listings into
// normalized offer records.
package offer

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is one offer valid on a single calendar date. A listing line with a
// date range yields one Record per day.
type Record struct {
	Market     string
	Category   string
	Product    string
	Annotation *string
	Price      decimal.Decimal
	Unit       string
	Date       time.Time
}

// Listing is the result of parsing a raw listing.
type Listing struct {
	Records []Record
	Lines   int // non-blank lines seen
	Skipped int // non-blank lines that produced no records
}
