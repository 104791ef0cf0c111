package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/offers-cli/internal/offer"
	"github.com/sells-group/offers-cli/internal/store"
)

// ErrEmptyInput is returned when a listing has no content.
var ErrEmptyInput = eris.New("ingest: empty input")

// Store is the persistence surface the Ingester needs.
type Store interface {
	InTx(ctx context.Context, fn func(store.Batch) error) error
	StartImport(ctx context.Context, source string) (string, error)
	CompleteImport(ctx context.Context, id string, parsed, written int64) error
	FailImport(ctx context.Context, id string, errMsg string) error
}

// Ingester parses listings and writes them to a Store, recording each run in
// the import log.
type Ingester struct {
	store Store
	log   *zap.Logger
}

// NewIngester creates an Ingester backed by st.
func NewIngester(st Store) *Ingester {
	return &Ingester{
		store: st,
		log:   zap.L().With(zap.String("component", "ingest")),
	}
}

// Ingest parses text and applies it in a single transaction. source names the
// origin of the listing in the import log. Import log failures are logged and
// never fail the ingestion.
func (i *Ingester) Ingest(ctx context.Context, source, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	start := time.Now()
	listing := offer.ParseListing(text)

	runID, err := i.store.StartImport(ctx, source)
	if err != nil {
		i.log.Warn("ingest: failed to record import start", zap.String("source", source), zap.Error(err))
		runID = ""
	}

	var res *Result
	err = i.store.InTx(ctx, func(b store.Batch) error {
		r, err := Apply(ctx, b, listing.Records)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		if runID != "" {
			if ferr := i.store.FailImport(ctx, runID, err.Error()); ferr != nil {
				i.log.Warn("ingest: failed to record import failure", zap.String("run_id", runID), zap.Error(ferr))
			}
		}
		return nil, eris.Wrap(err, "ingest: apply listing")
	}

	res.Lines = listing.Lines
	res.Skipped = listing.Skipped

	if runID != "" {
		if cerr := i.store.CompleteImport(ctx, runID, int64(res.Parsed), res.Written); cerr != nil {
			i.log.Warn("ingest: failed to record import completion", zap.String("run_id", runID), zap.Error(cerr))
		}
	}

	i.log.Info("listing ingested",
		zap.String("source", source),
		zap.String("run_id", runID),
		zap.Int("lines", res.Lines),
		zap.Int("skipped", res.Skipped),
		zap.Int("parsed", res.Parsed),
		zap.Int("dropped", res.Dropped),
		zap.Int("superseded", res.Superseded),
		zap.Int64("replaced", res.Replaced),
		zap.Int64("written", res.Written),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}
