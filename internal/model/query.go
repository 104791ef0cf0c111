package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OfferFilter narrows ListOffers. Zero values disable a filter, except Date
// which is required.
type OfferFilter struct {
	Date       time.Time
	Search     string
	MarketID   int64
	CategoryID int64
}

// Offer is one price fact joined with its reference names.
type Offer struct {
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Price        decimal.Decimal `json:"price"`
	UnitText     string          `json:"unit_text"`
	Annotation   *string         `json:"annotation"`
	MarketName   string          `json:"market_name"`
	CategoryName string          `json:"category_name"`
}

// PricePoint is one entry of a product's price history.
type PricePoint struct {
	Price        decimal.Decimal `json:"price"`
	ValidityDate string          `json:"validity_date"`
	RecordedDate string          `json:"recorded_date"`
	MarketName   string          `json:"market_name"`
}

// CheapestOffer is the lowest price found for a product on a given date.
type CheapestOffer struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	MarketName  string          `json:"market_name"`
}

// MarketPrice is a product's price at one market.
type MarketPrice struct {
	Price      decimal.Decimal `json:"price"`
	MarketName string          `json:"market_name"`
}
