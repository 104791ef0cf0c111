package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/offers-cli/internal/model"
	"github.com/sells-group/offers-cli/internal/offer"
	"github.com/sells-group/offers-cli/internal/store"
)

func newSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "offers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_SingleDayLine(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	res, err := NewIngester(st).Ingest(ctx, "test", arrozLine)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Written)

	offers, err := st.ListOffers(ctx, model.OfferFilter{Date: day(2025, 3, 5)})
	require.NoError(t, err)
	require.Len(t, offers, 1)

	o := offers[0]
	assert.Equal(t, "Arroz", o.ProductName)
	assert.Equal(t, "Alimentos", o.CategoryName)
	assert.Equal(t, "Mercado A", o.MarketName)
	assert.True(t, o.Price.Equal(decimal.RequireFromString("12.90")))
	assert.Equal(t, "kg", o.UnitText)
	require.NotNil(t, o.Annotation)
	assert.Equal(t, "tipo 1", *o.Annotation)
}

func TestSQLite_RangeLine(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	res, err := NewIngester(st).Ingest(ctx, "test", "10-12/04/2025\tMercado B\tFeijão\tR$ 7,50\tAlimentos")
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Written)

	for d := 10; d <= 12; d++ {
		offers, err := st.ListOffers(ctx, model.OfferFilter{Date: day(2025, 4, d)})
		require.NoError(t, err)
		require.Len(t, offers, 1, "day %d", d)
		assert.Equal(t, "Feijão", offers[0].ProductName)
		assert.True(t, offers[0].Price.Equal(decimal.RequireFromString("7.50")))
		assert.Equal(t, "", offers[0].UnitText)
		assert.Nil(t, offers[0].Annotation)
	}

	offers, err := st.ListOffers(ctx, model.OfferFilter{Date: day(2025, 4, 13)})
	require.NoError(t, err)
	assert.NotNil(t, offers)
	assert.Empty(t, offers)
}

func TestSQLite_ReingestReplaces(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()
	ing := NewIngester(st)

	_, err := ing.Ingest(ctx, "first", arrozLine)
	require.NoError(t, err)

	res, err := ing.Ingest(ctx, "second", strings.Replace(arrozLine, "12,90", "10,00", 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Replaced)

	offers, err := st.ListOffers(ctx, model.OfferFilter{Date: day(2025, 3, 5)})
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.True(t, offers[0].Price.Equal(decimal.RequireFromString("10.00")))

	history, err := st.PriceHistory(ctx, offers[0].ProductID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	filters, err := st.Filters(ctx)
	require.NoError(t, err)
	assert.Len(t, filters.Markets, 1)
	assert.Len(t, filters.Categories, 1)
}

func TestSQLite_IdenticalLineTwiceInOneBatch(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	text := arrozLine + "\n" + strings.Replace(arrozLine, "12,90", "11,00", 1)
	res, err := NewIngester(st).Ingest(ctx, "test", text)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Superseded)
	assert.Equal(t, int64(1), res.Written)

	offers, err := st.ListOffers(ctx, model.OfferFilter{Date: day(2025, 3, 5)})
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.True(t, offers[0].Price.Equal(decimal.RequireFromString("11.00")))
}

func TestSQLite_FailedBatchRollsBack(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	err := st.InTx(ctx, func(b store.Batch) error {
		if _, err := Apply(ctx, b, []offer.Record{rec("Mercado Z", "Alimentos", "Arroz", "1.00", day(2025, 3, 5))}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	filters, err := st.Filters(ctx)
	require.NoError(t, err)
	assert.Empty(t, filters.Markets, "reference inserts must roll back with the batch")
	assert.Empty(t, filters.Categories)
}

func TestSQLite_ImportLogRecorded(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	_, err := NewIngester(st).Ingest(ctx, "weekly.txt", arrozLine)
	require.NoError(t, err)

	runs, err := st.ListImports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "weekly.txt", runs[0].Source)
	assert.Equal(t, model.ImportStatusComplete, runs[0].Status)
	assert.Equal(t, int64(1), runs[0].RecordsParsed)
	assert.Equal(t, int64(1), runs[0].FactsWritten)
	assert.NotNil(t, runs[0].CompletedAt)
}
