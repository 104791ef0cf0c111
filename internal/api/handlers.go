package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/offers-cli/internal/ingest"
	"github.com/sells-group/offers-cli/internal/model"
	"github.com/sells-group/offers-cli/internal/offer"
)

const maxImportListLimit = 500

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Error("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		respondError(w, http.StatusBadRequest, "could not read request body")
		return
	}
	if len(body) == 0 {
		respondError(w, http.StatusBadRequest, "no data received")
		return
	}

	text, err := offer.DecodeText(body, offer.CharsetFromContentType(r.Header.Get("Content-Type")))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unsupported request body encoding")
		return
	}

	res, err := s.importer.Ingest(r.Context(), "api", text)
	if errors.Is(err, ingest.ErrEmptyInput) {
		respondError(w, http.StatusBadRequest, "no data received")
		return
	}
	if err != nil {
		s.log.Error("import failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "server error while importing offers")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:  "success",
		Message: fmt.Sprintf("%d offer records processed", res.Written),
	})
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	filters, err := s.store.Filters(r.Context())
	if err != nil {
		s.queryFailed(w, "filters", err)
		return
	}
	writeJSON(w, http.StatusOK, filters)
}

func (s *Server) handleOffers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	date, err := s.parseDate(q.Get("date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be formatted YYYY-MM-DD")
		return
	}
	marketID, err := parseOptionalID(q.Get("market"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "market must be a positive integer")
		return
	}
	categoryID, err := parseOptionalID(q.Get("category"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "category must be a positive integer")
		return
	}

	offers, err := s.store.ListOffers(r.Context(), model.OfferFilter{
		Date:       date,
		Search:     q.Get("search"),
		MarketID:   marketID,
		CategoryID: categoryID,
	})
	if err != nil {
		s.queryFailed(w, "offers", err)
		return
	}
	writeJSON(w, http.StatusOK, offers)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "product id must be a positive integer")
		return
	}

	points, err := s.store.PriceHistory(r.Context(), id)
	if err != nil {
		s.queryFailed(w, "price history", err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleOnSale(w http.ResponseWriter, r *http.Request) {
	offers, err := s.store.CheapestOffers(r.Context(), s.today())
	if err != nil {
		s.queryFailed(w, "cheapest offers", err)
		return
	}
	writeJSON(w, http.StatusOK, offers)
}

func (s *Server) handleOffersToday(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("id")
	if raw == "" {
		respondError(w, http.StatusBadRequest, "product id is required")
		return
	}
	id, err := parseID(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "product id must be a positive integer")
		return
	}

	prices, err := s.store.ProductOffers(r.Context(), id, s.today())
	if err != nil {
		s.queryFailed(w, "product offers", err)
		return
	}
	writeJSON(w, http.StatusOK, prices)
}

func (s *Server) handleImports(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxImportListLimit {
			respondError(w, http.StatusBadRequest,
				fmt.Sprintf("limit must be between 1 and %d", maxImportListLimit))
			return
		}
		limit = n
	}

	runs, err := s.store.ListImports(r.Context(), limit)
	if err != nil {
		s.queryFailed(w, "import runs", err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) queryFailed(w http.ResponseWriter, what string, err error) {
	s.log.Error("query failed", zap.String("query", what), zap.Error(err))
	respondError(w, http.StatusInternalServerError, "server error while reading "+what)
}

// parseDate returns today when raw is empty.
func (s *Server) parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return s.today(), nil
	}
	return time.Parse(model.DateLayout, raw)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if id < 1 {
		return 0, eris.Errorf("api: id %d out of range", id)
	}
	return id, nil
}

// parseOptionalID returns 0 for an empty value.
func parseOptionalID(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return parseID(raw)
}
