package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/offers-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Prices are stored as
// decimal text and calendar dates as YYYY-MM-DD text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS markets (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS categories (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS products (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	category_id INTEGER NOT NULL REFERENCES categories(id),
	UNIQUE (name, category_id)
);

CREATE TABLE IF NOT EXISTS price_facts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id    INTEGER NOT NULL REFERENCES products(id),
	market_id     INTEGER NOT NULL REFERENCES markets(id),
	price         TEXT NOT NULL,
	unit_text     TEXT,
	validity_date TEXT NOT NULL,
	annotation    TEXT,
	recorded_date TEXT NOT NULL DEFAULT (date('now'))
);

CREATE INDEX IF NOT EXISTS idx_price_facts_key ON price_facts(product_id, market_id, validity_date);
CREATE INDEX IF NOT EXISTS idx_price_facts_validity ON price_facts(validity_date);

CREATE TABLE IF NOT EXISTS import_runs (
	id             TEXT PRIMARY KEY,
	source         TEXT NOT NULL,
	status         TEXT NOT NULL,
	started_at     DATETIME NOT NULL,
	completed_at   DATETIME,
	records_parsed INTEGER NOT NULL DEFAULT 0,
	facts_written  INTEGER NOT NULL DEFAULT 0,
	error          TEXT
);

CREATE INDEX IF NOT EXISTS idx_import_runs_started ON import_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InTx(ctx context.Context, fn func(Batch) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&sqliteBatch{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit transaction")
	}
	return nil
}

// sqliteBatch implements Batch with prepared statements looped inside one
// *sql.Tx. SQLite has no COPY equivalent and serializes writers anyway.
type sqliteBatch struct {
	tx *sql.Tx
}

func (b *sqliteBatch) Markets(ctx context.Context) (map[string]int64, error) {
	return b.loadNames(ctx, `SELECT id, name FROM markets`, "markets")
}

func (b *sqliteBatch) Categories(ctx context.Context) (map[string]int64, error) {
	return b.loadNames(ctx, `SELECT id, name FROM categories`, "categories")
}

func (b *sqliteBatch) loadNames(ctx context.Context, query, table string) (map[string]int64, error) {
	rows, err := b.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load %s", table)
	}
	defer rows.Close()

	ids := make(map[string]int64)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s row", table)
		}
		ids[name] = id
	}
	return ids, eris.Wrapf(rows.Err(), "sqlite: load %s iterate", table)
}

func (b *sqliteBatch) InsertMarkets(ctx context.Context, names []string) error {
	return b.insertNames(ctx, `INSERT INTO markets (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, "markets", names)
}

func (b *sqliteBatch) InsertCategories(ctx context.Context, names []string) error {
	return b.insertNames(ctx, `INSERT INTO categories (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, "categories", names)
}

func (b *sqliteBatch) insertNames(ctx context.Context, query, table string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	stmt, err := b.tx.PrepareContext(ctx, query)
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare insert %s", table)
	}
	defer stmt.Close()

	for _, name := range names {
		if _, err := stmt.ExecContext(ctx, name); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s %q", table, name)
		}
	}
	return nil
}

func (b *sqliteBatch) Products(ctx context.Context) (map[model.ProductKey]int64, error) {
	rows, err := b.tx.QueryContext(ctx, `SELECT id, name, category_id FROM products`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load products")
	}
	defer rows.Close()

	ids := make(map[model.ProductKey]int64)
	for rows.Next() {
		var id int64
		var key model.ProductKey
		if err := rows.Scan(&id, &key.Name, &key.CategoryID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		ids[key] = id
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: load products iterate")
}

func (b *sqliteBatch) InsertProducts(ctx context.Context, keys []model.ProductKey) error {
	if len(keys) == 0 {
		return nil
	}
	stmt, err := b.tx.PrepareContext(ctx,
		`INSERT INTO products (name, category_id) VALUES (?, ?) ON CONFLICT (name, category_id) DO NOTHING`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert products")
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k.Name, k.CategoryID); err != nil {
			return eris.Wrapf(err, "sqlite: insert product %q", k.Name)
		}
	}
	return nil
}

func (b *sqliteBatch) DeleteFacts(ctx context.Context, keys []model.FactKey) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	stmt, err := b.tx.PrepareContext(ctx,
		`DELETE FROM price_facts WHERE product_id = ? AND market_id = ? AND validity_date = ?`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare delete price facts")
	}
	defer stmt.Close()

	var deleted int64
	for _, k := range keys {
		res, err := stmt.ExecContext(ctx, k.ProductID, k.MarketID, k.ValidityDate.Format(model.DateLayout))
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: delete price facts")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		deleted += n
	}
	return deleted, nil
}

func (b *sqliteBatch) InsertFacts(ctx context.Context, facts []model.PriceFact) (int64, error) {
	if len(facts) == 0 {
		return 0, nil
	}
	stmt, err := b.tx.PrepareContext(ctx,
		`INSERT INTO price_facts (product_id, market_id, price, unit_text, validity_date, annotation)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert price facts")
	}
	defer stmt.Close()

	for _, f := range facts {
		var annotation sql.NullString
		if f.Annotation != nil {
			annotation = sql.NullString{String: *f.Annotation, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			f.ProductID, f.MarketID, f.Price.String(), f.UnitText,
			f.ValidityDate.Format(model.DateLayout), annotation,
		); err != nil {
			return 0, eris.Wrap(err, "sqlite: insert price fact")
		}
	}
	return int64(len(facts)), nil
}

// --- Queries ---

func (s *SQLiteStore) Filters(ctx context.Context) (*model.Filters, error) {
	markets, err := s.listRefs(ctx, `SELECT id, name FROM markets ORDER BY name`, "markets")
	if err != nil {
		return nil, err
	}
	categories, err := s.listRefs(ctx, `SELECT id, name FROM categories ORDER BY name`, "categories")
	if err != nil {
		return nil, err
	}
	return &model.Filters{Markets: markets, Categories: categories}, nil
}

func (s *SQLiteStore) listRefs(ctx context.Context, query, table string) ([]model.NamedRef, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list %s", table)
	}
	defer rows.Close()

	refs := []model.NamedRef{}
	for rows.Next() {
		var r model.NamedRef
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s ref", table)
		}
		refs = append(refs, r)
	}
	return refs, eris.Wrapf(rows.Err(), "sqlite: list %s iterate", table)
}

func (s *SQLiteStore) ListOffers(ctx context.Context, filter model.OfferFilter) ([]model.Offer, error) {
	query := `SELECT p.id, p.name, f.price, COALESCE(f.unit_text, ''), f.annotation, m.name, c.name
		FROM price_facts f
		JOIN products p ON p.id = f.product_id
		JOIN markets m ON m.id = f.market_id
		JOIN categories c ON c.id = p.category_id
		WHERE f.validity_date = ?`
	args := []any{filter.Date.Format(model.DateLayout)}

	if filter.Search != "" {
		query += ` AND p.name LIKE '%' || ? || '%'`
		args = append(args, filter.Search)
	}
	if filter.MarketID != 0 {
		query += ` AND f.market_id = ?`
		args = append(args, filter.MarketID)
	}
	if filter.CategoryID != 0 {
		query += ` AND p.category_id = ?`
		args = append(args, filter.CategoryID)
	}
	query += ` ORDER BY p.name, m.name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list offers")
	}
	defer rows.Close()

	offers := []model.Offer{}
	for rows.Next() {
		var o model.Offer
		var annotation sql.NullString
		if err := rows.Scan(&o.ProductID, &o.ProductName, &o.Price, &o.UnitText, &annotation, &o.MarketName, &o.CategoryName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan offer")
		}
		if annotation.Valid {
			o.Annotation = &annotation.String
		}
		offers = append(offers, o)
	}
	return offers, eris.Wrap(rows.Err(), "sqlite: list offers iterate")
}

func (s *SQLiteStore) PriceHistory(ctx context.Context, productID int64) ([]model.PricePoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.price, f.validity_date, f.recorded_date, m.name
		 FROM price_facts f
		 JOIN markets m ON m.id = f.market_id
		 WHERE f.product_id = ?
		 ORDER BY f.recorded_date, f.validity_date, m.name`,
		productID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: price history %d", productID)
	}
	defer rows.Close()

	points := []model.PricePoint{}
	for rows.Next() {
		var p model.PricePoint
		if err := rows.Scan(&p.Price, &p.ValidityDate, &p.RecordedDate, &p.MarketName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan price point")
		}
		points = append(points, p)
	}
	return points, eris.Wrap(rows.Err(), "sqlite: price history iterate")
}

func (s *SQLiteStore) CheapestOffers(ctx context.Context, date time.Time) ([]model.CheapestOffer, error) {
	rows, err := s.db.QueryContext(ctx, cheapestOffersSQL("?", "CAST(f.price AS REAL)"), date.Format(model.DateLayout))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: cheapest offers")
	}
	defer rows.Close()

	offers := []model.CheapestOffer{}
	for rows.Next() {
		var o model.CheapestOffer
		if err := rows.Scan(&o.ProductID, &o.ProductName, &o.Price, &o.MarketName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cheapest offer")
		}
		offers = append(offers, o)
	}
	return offers, eris.Wrap(rows.Err(), "sqlite: cheapest offers iterate")
}

func (s *SQLiteStore) ProductOffers(ctx context.Context, productID int64, date time.Time) ([]model.MarketPrice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.price, m.name
		 FROM price_facts f
		 JOIN markets m ON m.id = f.market_id
		 WHERE f.product_id = ? AND f.validity_date = ?
		 ORDER BY CAST(f.price AS REAL), m.name`,
		productID, date.Format(model.DateLayout),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: product offers %d", productID)
	}
	defer rows.Close()

	prices := []model.MarketPrice{}
	for rows.Next() {
		var p model.MarketPrice
		if err := rows.Scan(&p.Price, &p.MarketName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan market price")
		}
		prices = append(prices, p)
	}
	return prices, eris.Wrap(rows.Err(), "sqlite: product offers iterate")
}

// --- Import log ---

func (s *SQLiteStore) StartImport(ctx context.Context, source string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_runs (id, source, status, started_at) VALUES (?, ?, ?, ?)`,
		id, source, string(model.ImportStatusRunning), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: start import for %s", source)
	}
	return id, nil
}

func (s *SQLiteStore) CompleteImport(ctx context.Context, id string, parsed, written int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE import_runs
		 SET status = ?, completed_at = ?, records_parsed = ?, facts_written = ?
		 WHERE id = ?`,
		string(model.ImportStatusComplete), time.Now().UTC(), parsed, written, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete import %s", id)
	}
	return checkRowsAffected(res, "import run", id)
}

func (s *SQLiteStore) FailImport(ctx context.Context, id string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE import_runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(model.ImportStatusFailed), time.Now().UTC(), errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail import %s", id)
	}
	return checkRowsAffected(res, "import run", id)
}

func (s *SQLiteStore) ListImports(ctx context.Context, limit int) ([]model.ImportRun, error) {
	if limit <= 0 {
		limit = DefaultImportLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, status, started_at, completed_at, records_parsed, facts_written, error
		 FROM import_runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list imports")
	}
	defer rows.Close()

	runs := []model.ImportRun{}
	for rows.Next() {
		var r model.ImportRun
		var status string
		var completedAt sql.NullTime
		var errStr sql.NullString
		if err := rows.Scan(&r.ID, &r.Source, &status, &r.StartedAt, &completedAt, &r.RecordsParsed, &r.FactsWritten, &errStr); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan import run")
		}
		r.Status = model.ImportStatus(status)
		if completedAt.Valid {
			t := completedAt.Time
			r.CompletedAt = &t
		}
		r.Error = errStr.String
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list imports iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
