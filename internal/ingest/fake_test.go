package ingest

import (
	"context"
	"errors"

	"github.com/sells-group/offers-cli/internal/model"
	"github.com/sells-group/offers-cli/internal/store"
)

// fakeBatch is an in-memory store.Batch.
type fakeBatch struct {
	markets    map[string]int64
	categories map[string]int64
	products   map[model.ProductKey]int64
	facts      map[model.FactKey]model.PriceFact
	nextID     int64

	// ignoreMarkets are silently not inserted, leaving them unresolvable.
	ignoreMarkets map[string]bool
	failInsert    error

	marketLoads    int
	insertedNames  [][]string
	deletedKeys    []model.FactKey
	insertedFacts  []model.PriceFact
	insertProducts [][]model.ProductKey
}

func newFakeBatch() *fakeBatch {
	return &fakeBatch{
		markets:    map[string]int64{},
		categories: map[string]int64{},
		products:   map[model.ProductKey]int64{},
		facts:      map[model.FactKey]model.PriceFact{},
	}
}

var _ store.Batch = (*fakeBatch)(nil)

func (f *fakeBatch) id() int64 {
	f.nextID++
	return f.nextID
}

func copyNames(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (f *fakeBatch) Markets(context.Context) (map[string]int64, error) {
	f.marketLoads++
	return copyNames(f.markets), nil
}

func (f *fakeBatch) Categories(context.Context) (map[string]int64, error) {
	return copyNames(f.categories), nil
}

func (f *fakeBatch) InsertMarkets(_ context.Context, names []string) error {
	f.insertedNames = append(f.insertedNames, names)
	for _, n := range names {
		if f.ignoreMarkets[n] {
			continue
		}
		if _, ok := f.markets[n]; !ok {
			f.markets[n] = f.id()
		}
	}
	return nil
}

func (f *fakeBatch) InsertCategories(_ context.Context, names []string) error {
	f.insertedNames = append(f.insertedNames, names)
	for _, n := range names {
		if _, ok := f.categories[n]; !ok {
			f.categories[n] = f.id()
		}
	}
	return nil
}

func (f *fakeBatch) Products(context.Context) (map[model.ProductKey]int64, error) {
	out := make(map[model.ProductKey]int64, len(f.products))
	for k, v := range f.products {
		out[k] = v
	}
	return out, nil
}

func (f *fakeBatch) InsertProducts(_ context.Context, keys []model.ProductKey) error {
	f.insertProducts = append(f.insertProducts, keys)
	for _, k := range keys {
		if _, ok := f.products[k]; !ok {
			f.products[k] = f.id()
		}
	}
	return nil
}

func (f *fakeBatch) DeleteFacts(_ context.Context, keys []model.FactKey) (int64, error) {
	f.deletedKeys = append(f.deletedKeys, keys...)
	var n int64
	for _, k := range keys {
		if _, ok := f.facts[k]; ok {
			delete(f.facts, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeBatch) InsertFacts(_ context.Context, facts []model.PriceFact) (int64, error) {
	if f.failInsert != nil {
		return 0, f.failInsert
	}
	for _, fact := range facts {
		if _, ok := f.facts[fact.Key()]; ok {
			return 0, errors.New("duplicate fact key")
		}
		f.facts[fact.Key()] = fact
	}
	f.insertedFacts = append(f.insertedFacts, facts...)
	return int64(len(facts)), nil
}

// fakeStore runs InTx against a fakeBatch and records the import log.
type fakeStore struct {
	batch *fakeBatch

	txCount   int
	startErr  error
	completed map[string][2]int64
	failed    map[string]string
	started   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		batch:     newFakeBatch(),
		completed: map[string][2]int64{},
		failed:    map[string]string{},
	}
}

func (s *fakeStore) InTx(_ context.Context, fn func(store.Batch) error) error {
	s.txCount++
	return fn(s.batch)
}

func (s *fakeStore) StartImport(_ context.Context, source string) (string, error) {
	if s.startErr != nil {
		return "", s.startErr
	}
	s.started = append(s.started, source)
	return "run-1", nil
}

func (s *fakeStore) CompleteImport(_ context.Context, id string, parsed, written int64) error {
	s.completed[id] = [2]int64{parsed, written}
	return nil
}

func (s *fakeStore) FailImport(_ context.Context, id string, errMsg string) error {
	s.failed[id] = errMsg
	return nil
}
