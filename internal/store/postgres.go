package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/offers-cli/internal/db"
	"github.com/sells-group/offers-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller keeps ownership of it.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return db.Migrate(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(Batch) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgBatch{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit transaction")
	}
	return nil
}

// pgBatch implements Batch on an open pgx transaction. Missing reference rows
// and fact keys travel through COPY-filled temp tables dropped on commit.
type pgBatch struct {
	tx pgx.Tx
}

func (b *pgBatch) Markets(ctx context.Context) (map[string]int64, error) {
	return loadNames(ctx, b.tx, "markets")
}

func (b *pgBatch) Categories(ctx context.Context) (map[string]int64, error) {
	return loadNames(ctx, b.tx, "categories")
}

func (b *pgBatch) InsertMarkets(ctx context.Context, names []string) error {
	return insertNames(ctx, b.tx, "markets", names)
}

func (b *pgBatch) InsertCategories(ctx context.Context, names []string) error {
	return insertNames(ctx, b.tx, "categories", names)
}

func (b *pgBatch) Products(ctx context.Context) (map[model.ProductKey]int64, error) {
	rows, err := b.tx.Query(ctx, `SELECT id, name, category_id FROM products`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load products")
	}
	defer rows.Close()

	ids := make(map[model.ProductKey]int64)
	for rows.Next() {
		var id int64
		var key model.ProductKey
		if err := rows.Scan(&id, &key.Name, &key.CategoryID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		ids[key] = id
	}
	return ids, eris.Wrap(rows.Err(), "postgres: load products iterate")
}

func (b *pgBatch) InsertProducts(ctx context.Context, keys []model.ProductKey) error {
	rows := make([][]any, len(keys))
	for i, k := range keys {
		rows[i] = []any{k.Name, k.CategoryID}
	}
	_, err := db.InsertMissing(ctx, b.tx, db.InsertMissingConfig{
		Table:        "products",
		Columns:      []string{"name", "category_id"},
		ConflictKeys: []string{"name", "category_id"},
	}, rows)
	return err
}

const factKeyTable = "_tmp_fact_keys"

func (b *pgBatch) DeleteFacts(ctx context.Context, keys []model.FactKey) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	if _, err := b.tx.Exec(ctx, fmt.Sprintf(
		`CREATE TEMP TABLE %s (product_id INTEGER, market_id INTEGER, validity_date DATE) ON COMMIT DROP`,
		factKeyTable,
	)); err != nil {
		return 0, eris.Wrap(err, "postgres: create fact key table")
	}

	rows := make([][]any, len(keys))
	for i, k := range keys {
		rows[i] = []any{k.ProductID, k.MarketID, k.ValidityDate}
	}
	if _, err := db.CopyFrom(ctx, b.tx, factKeyTable, []string{"product_id", "market_id", "validity_date"}, rows); err != nil {
		return 0, err
	}

	tag, err := b.tx.Exec(ctx, fmt.Sprintf(
		`DELETE FROM price_facts f USING %s k
		 WHERE f.product_id = k.product_id
		   AND f.market_id = k.market_id
		   AND f.validity_date = k.validity_date`,
		factKeyTable,
	))
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete price facts")
	}
	return tag.RowsAffected(), nil
}

var factColumns = []string{"product_id", "market_id", "price", "unit_text", "validity_date", "annotation"}

func (b *pgBatch) InsertFacts(ctx context.Context, facts []model.PriceFact) (int64, error) {
	rows := make([][]any, len(facts))
	for i, f := range facts {
		rows[i] = []any{f.ProductID, f.MarketID, toNumeric(f.Price), f.UnitText, f.ValidityDate, f.Annotation}
	}
	return db.CopyFrom(ctx, b.tx, "price_facts", factColumns, rows)
}

func loadNames(ctx context.Context, q db.Querier, table string) (map[string]int64, error) {
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT id, name FROM %s`, pgx.Identifier{table}.Sanitize()))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load %s", table)
	}
	defer rows.Close()

	ids := make(map[string]int64)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s row", table)
		}
		ids[name] = id
	}
	return ids, eris.Wrapf(rows.Err(), "postgres: load %s iterate", table)
}

func insertNames(ctx context.Context, q db.Querier, table string, names []string) error {
	rows := make([][]any, len(names))
	for i, n := range names {
		rows[i] = []any{n}
	}
	_, err := db.InsertMissing(ctx, q, db.InsertMissingConfig{
		Table:        table,
		Columns:      []string{"name"},
		ConflictKeys: []string{"name"},
	}, rows)
	return err
}

// toNumeric encodes an exact decimal for NUMERIC columns.
func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

// --- Queries ---

func (s *PostgresStore) Filters(ctx context.Context) (*model.Filters, error) {
	markets, err := listRefs(ctx, s.pool, "markets")
	if err != nil {
		return nil, err
	}
	categories, err := listRefs(ctx, s.pool, "categories")
	if err != nil {
		return nil, err
	}
	return &model.Filters{Markets: markets, Categories: categories}, nil
}

func listRefs(ctx context.Context, q db.Querier, table string) ([]model.NamedRef, error) {
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT id, name FROM %s ORDER BY name`, pgx.Identifier{table}.Sanitize()))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list %s", table)
	}
	defer rows.Close()

	refs := []model.NamedRef{}
	for rows.Next() {
		var r model.NamedRef
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s ref", table)
		}
		refs = append(refs, r)
	}
	return refs, eris.Wrapf(rows.Err(), "postgres: list %s iterate", table)
}

func (s *PostgresStore) ListOffers(ctx context.Context, filter model.OfferFilter) ([]model.Offer, error) {
	query := `SELECT p.id, p.name, f.price, COALESCE(f.unit_text, ''), f.annotation, m.name, c.name
		FROM price_facts f
		JOIN products p ON p.id = f.product_id
		JOIN markets m ON m.id = f.market_id
		JOIN categories c ON c.id = p.category_id
		WHERE f.validity_date = $1`
	args := []any{model.DateOnly(filter.Date)}
	argIdx := 2

	if filter.Search != "" {
		query += fmt.Sprintf(` AND p.name ILIKE '%%' || $%d || '%%'`, argIdx)
		args = append(args, filter.Search)
		argIdx++
	}
	if filter.MarketID != 0 {
		query += fmt.Sprintf(` AND f.market_id = $%d`, argIdx)
		args = append(args, filter.MarketID)
		argIdx++
	}
	if filter.CategoryID != 0 {
		query += fmt.Sprintf(` AND p.category_id = $%d`, argIdx)
		args = append(args, filter.CategoryID)
	}
	query += ` ORDER BY p.name, m.name`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list offers")
	}
	defer rows.Close()

	offers := []model.Offer{}
	for rows.Next() {
		var o model.Offer
		if err := rows.Scan(&o.ProductID, &o.ProductName, &o.Price, &o.UnitText, &o.Annotation, &o.MarketName, &o.CategoryName); err != nil {
			return nil, eris.Wrap(err, "postgres: scan offer")
		}
		offers = append(offers, o)
	}
	return offers, eris.Wrap(rows.Err(), "postgres: list offers iterate")
}

func (s *PostgresStore) PriceHistory(ctx context.Context, productID int64) ([]model.PricePoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT f.price, f.validity_date, f.recorded_date, m.name
		 FROM price_facts f
		 JOIN markets m ON m.id = f.market_id
		 WHERE f.product_id = $1
		 ORDER BY f.recorded_date, f.validity_date, m.name`,
		productID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: price history %d", productID)
	}
	defer rows.Close()

	points := []model.PricePoint{}
	for rows.Next() {
		var p model.PricePoint
		var validity, recorded time.Time
		if err := rows.Scan(&p.Price, &validity, &recorded, &p.MarketName); err != nil {
			return nil, eris.Wrap(err, "postgres: scan price point")
		}
		p.ValidityDate = validity.Format(model.DateLayout)
		p.RecordedDate = recorded.Format(model.DateLayout)
		points = append(points, p)
	}
	return points, eris.Wrap(rows.Err(), "postgres: price history iterate")
}

func (s *PostgresStore) CheapestOffers(ctx context.Context, date time.Time) ([]model.CheapestOffer, error) {
	rows, err := s.pool.Query(ctx, cheapestOffersSQL("$1", "f.price"), model.DateOnly(date))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: cheapest offers")
	}
	defer rows.Close()

	offers := []model.CheapestOffer{}
	for rows.Next() {
		var o model.CheapestOffer
		if err := rows.Scan(&o.ProductID, &o.ProductName, &o.Price, &o.MarketName); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cheapest offer")
		}
		offers = append(offers, o)
	}
	return offers, eris.Wrap(rows.Err(), "postgres: cheapest offers iterate")
}

func (s *PostgresStore) ProductOffers(ctx context.Context, productID int64, date time.Time) ([]model.MarketPrice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT f.price, m.name
		 FROM price_facts f
		 JOIN markets m ON m.id = f.market_id
		 WHERE f.product_id = $1 AND f.validity_date = $2
		 ORDER BY f.price, m.name`,
		productID, model.DateOnly(date),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: product offers %d", productID)
	}
	defer rows.Close()

	prices := []model.MarketPrice{}
	for rows.Next() {
		var p model.MarketPrice
		if err := rows.Scan(&p.Price, &p.MarketName); err != nil {
			return nil, eris.Wrap(err, "postgres: scan market price")
		}
		prices = append(prices, p)
	}
	return prices, eris.Wrap(rows.Err(), "postgres: product offers iterate")
}

// --- Import log ---

func (s *PostgresStore) StartImport(ctx context.Context, source string) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO import_runs (id, source, status, started_at) VALUES ($1, $2, $3, $4)`,
		id, source, string(model.ImportStatusRunning), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: start import for %s", source)
	}
	return id, nil
}

func (s *PostgresStore) CompleteImport(ctx context.Context, id string, parsed, written int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE import_runs
		 SET status = $1, completed_at = $2, records_parsed = $3, facts_written = $4
		 WHERE id = $5`,
		string(model.ImportStatusComplete), time.Now().UTC(), parsed, written, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete import %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("import run not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) FailImport(ctx context.Context, id string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE import_runs SET status = $1, completed_at = $2, error = $3 WHERE id = $4`,
		string(model.ImportStatusFailed), time.Now().UTC(), errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail import %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("import run not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ListImports(ctx context.Context, limit int) ([]model.ImportRun, error) {
	if limit <= 0 {
		limit = DefaultImportLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, status, started_at, completed_at, records_parsed, facts_written, error
		 FROM import_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list imports")
	}
	defer rows.Close()

	runs := []model.ImportRun{}
	for rows.Next() {
		var r model.ImportRun
		var status string
		var errStr *string
		if err := rows.Scan(&r.ID, &r.Source, &status, &r.StartedAt, &r.CompletedAt, &r.RecordsParsed, &r.FactsWritten, &errStr); err != nil {
			return nil, eris.Wrap(err, "postgres: scan import run")
		}
		r.Status = model.ImportStatus(status)
		if errStr != nil {
			r.Error = *errStr
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list imports iterate")
}
