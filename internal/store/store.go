// Package store persists markets, categories, products and price facts.
// Two drivers are provided: Postgres (pgx) and SQLite (modernc.org/sqlite).
package store

import (
	"context"
	"time"

	"github.com/sells-group/offers-cli/internal/model"
)

// DefaultImportLimit caps ListImports when no limit is given.
const DefaultImportLimit = 50

// Batch is the write surface of one open ingestion transaction. Reference
// inserts tolerate rows that already exist, including rows committed by a
// concurrent transaction after the last load.
type Batch interface {
	Markets(ctx context.Context) (map[string]int64, error)
	Categories(ctx context.Context) (map[string]int64, error)
	InsertMarkets(ctx context.Context, names []string) error
	InsertCategories(ctx context.Context, names []string) error

	Products(ctx context.Context) (map[model.ProductKey]int64, error)
	InsertProducts(ctx context.Context, keys []model.ProductKey) error

	// DeleteFacts removes every price fact matching one of keys and returns
	// the number of rows removed.
	DeleteFacts(ctx context.Context, keys []model.FactKey) (int64, error)
	InsertFacts(ctx context.Context, facts []model.PriceFact) (int64, error)
}

// Store defines the persistence interface for offer ingestion and queries.
type Store interface {
	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(Batch) error) error

	// Queries
	Filters(ctx context.Context) (*model.Filters, error)
	ListOffers(ctx context.Context, filter model.OfferFilter) ([]model.Offer, error)
	PriceHistory(ctx context.Context, productID int64) ([]model.PricePoint, error)
	CheapestOffers(ctx context.Context, date time.Time) ([]model.CheapestOffer, error)
	ProductOffers(ctx context.Context, productID int64, date time.Time) ([]model.MarketPrice, error)

	// Import log
	StartImport(ctx context.Context, source string) (string, error)
	CompleteImport(ctx context.Context, id string, parsed, written int64) error
	FailImport(ctx context.Context, id string, errMsg string) error
	ListImports(ctx context.Context, limit int) ([]model.ImportRun, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
