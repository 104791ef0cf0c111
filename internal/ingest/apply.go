// Package ingest reconciles parsed offer records against the reference
// tables and replaces the price facts they touch, inside one transaction.
package ingest

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/offers-cli/internal/model"
	"github.com/sells-group/offers-cli/internal/offer"
	"github.com/sells-group/offers-cli/internal/store"
)

// Result summarizes one ingestion.
type Result struct {
	Lines      int   `json:"lines"`      // non-blank input lines
	Skipped    int   `json:"skipped"`    // lines that produced no records
	Parsed     int   `json:"parsed"`     // records produced by the parser
	Dropped    int   `json:"dropped"`    // records whose references could not be resolved
	Superseded int   `json:"superseded"` // earlier duplicates of a key within the batch
	Replaced   int64 `json:"replaced"`   // existing facts deleted before insert
	Written    int64 `json:"written"`    // facts stored by this batch
}

// Apply resolves the references of records, creating missing markets,
// categories and products, then deletes every stored fact whose key the batch
// touches and inserts the batch's facts. When the batch holds several records
// for one key, the last one in input order is stored.
//
// Apply does not commit; b belongs to a transaction owned by the caller.
func Apply(ctx context.Context, b store.Batch, records []offer.Record) (*Result, error) {
	res := &Result{Parsed: len(records)}
	if len(records) == 0 {
		return res, nil
	}

	markets, err := ensureNames(ctx, distinct(records, func(r offer.Record) string { return r.Market }),
		b.Markets, b.InsertMarkets)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: reconcile markets")
	}
	categories, err := ensureNames(ctx, distinct(records, func(r offer.Record) string { return r.Category }),
		b.Categories, b.InsertCategories)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: reconcile categories")
	}

	products, err := ensureProducts(ctx, b, records, categories)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: reconcile products")
	}

	facts, keys := resolve(records, markets, categories, products, res)
	if len(facts) == 0 {
		return res, nil
	}

	res.Replaced, err = b.DeleteFacts(ctx, keys)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: delete replaced facts")
	}

	res.Written, err = b.InsertFacts(ctx, facts)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: insert facts")
	}

	return res, nil
}

// ensureNames loads a name mapping, inserts the names it lacks and reloads it.
func ensureNames(
	ctx context.Context,
	names []string,
	load func(context.Context) (map[string]int64, error),
	insert func(context.Context, []string) error,
) (map[string]int64, error) {
	ids, err := load(ctx)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, n := range names {
		if _, ok := ids[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) == 0 {
		return ids, nil
	}

	if err := insert(ctx, missing); err != nil {
		return nil, err
	}
	return load(ctx)
}

func ensureProducts(ctx context.Context, b store.Batch, records []offer.Record, categories map[string]int64) (map[model.ProductKey]int64, error) {
	ids, err := b.Products(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[model.ProductKey]bool)
	var missing []model.ProductKey
	for _, r := range records {
		catID, ok := categories[r.Category]
		if !ok {
			continue
		}
		key := model.ProductKey{Name: r.Product, CategoryID: catID}
		if _, ok := ids[key]; ok || seen[key] {
			continue
		}
		seen[key] = true
		missing = append(missing, key)
	}
	if len(missing) == 0 {
		return ids, nil
	}

	if err := b.InsertProducts(ctx, missing); err != nil {
		return nil, err
	}
	return b.Products(ctx)
}

// resolve maps records to facts, dropping unresolvable records and collapsing
// duplicate keys to the last record seen. keys lists each fact's key once.
func resolve(
	records []offer.Record,
	markets, categories map[string]int64,
	products map[model.ProductKey]int64,
	res *Result,
) ([]model.PriceFact, []model.FactKey) {
	facts := make([]model.PriceFact, 0, len(records))
	index := make(map[model.FactKey]int, len(records))

	for _, r := range records {
		marketID, ok := markets[r.Market]
		if !ok {
			res.Dropped++
			continue
		}
		catID, ok := categories[r.Category]
		if !ok {
			res.Dropped++
			continue
		}
		productID, ok := products[model.ProductKey{Name: r.Product, CategoryID: catID}]
		if !ok {
			res.Dropped++
			continue
		}

		f := model.PriceFact{
			ProductID:    productID,
			MarketID:     marketID,
			Price:        r.Price,
			UnitText:     r.Unit,
			ValidityDate: model.DateOnly(r.Date),
			Annotation:   r.Annotation,
		}
		if i, dup := index[f.Key()]; dup {
			facts[i] = f
			res.Superseded++
			continue
		}
		index[f.Key()] = len(facts)
		facts = append(facts, f)
	}

	keys := make([]model.FactKey, len(facts))
	for i, f := range facts {
		keys[i] = f.Key()
	}
	return facts, keys
}

// distinct returns the values of field over records, first occurrence order.
func distinct(records []offer.Record, field func(offer.Record) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		v := field(r)
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
