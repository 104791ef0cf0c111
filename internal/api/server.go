// Package api serves the offer import endpoint and the read-only query
// surface over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/offers-cli/internal/ingest"
	"github.com/sells-group/offers-cli/internal/model"
)

func init() {
	// Prices are exact decimals; emit them as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Store is the query surface the API reads from.
type Store interface {
	Filters(ctx context.Context) (*model.Filters, error)
	ListOffers(ctx context.Context, filter model.OfferFilter) ([]model.Offer, error)
	PriceHistory(ctx context.Context, productID int64) ([]model.PricePoint, error)
	CheapestOffers(ctx context.Context, date time.Time) ([]model.CheapestOffer, error)
	ProductOffers(ctx context.Context, productID int64, date time.Time) ([]model.MarketPrice, error)
	ListImports(ctx context.Context, limit int) ([]model.ImportRun, error)
	Ping(ctx context.Context) error
}

// Importer ingests one raw listing.
type Importer interface {
	Ingest(ctx context.Context, source, text string) (*ingest.Result, error)
}

// Config holds the server settings.
type Config struct {
	CORSOrigins  []string
	RateLimit    float64 // import requests per second
	Burst        int
	MaxBodyBytes int64
}

// Server routes HTTP requests to the store and the importer.
type Server struct {
	store    Store
	importer Importer
	cfg      Config
	limiter  *rate.Limiter
	log      *zap.Logger
	now      func() time.Time
}

// NewServer creates a Server. Zero limits fall back to permissive defaults.
func NewServer(st Store, imp Importer, cfg Config) *Server {
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.Burst < 1 {
		cfg.Burst = 10
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 16 << 20
	}
	return &Server{
		store:    st,
		importer: imp,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		log:      zap.L().With(zap.String("component", "api")),
		now:      time.Now,
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         3600,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.With(s.rateLimit).Post("/import", s.handleImport)
		r.Get("/filters", s.handleFilters)
		r.Get("/offers", s.handleOffers)
		r.Get("/imports", s.handleImports)

		r.Route("/products", func(r chi.Router) {
			r.Get("/on-sale", s.handleOnSale)
			r.Get("/offers-today", s.handleOffersToday)
			r.Get("/{id}/history", s.handleHistory)
		})
	})

	return r
}

// today is the current calendar date as a UTC midnight.
func (s *Server) today() time.Time {
	return model.DateOnly(s.now())
}
