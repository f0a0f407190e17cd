package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"bizgraph-bot/backend/internal/graph"
	apperrors "bizgraph-bot/backend/pkg/errors"
	"bizgraph-bot/backend/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const maxConnections = 5

// Ledger is a relational mirror of the graph's products and transactions,
// used for tabular reporting and as a recovery copy.
type Ledger struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Entry is one row of the transactions table joined with its product
type Entry struct {
	ID         string          `db:"id" json:"id"`
	Type       string          `db:"type" json:"type"`
	Date       time.Time       `db:"date" json:"date"`
	Product    sql.NullString  `db:"product" json:"-"`
	Quantity   float64         `db:"quantity" json:"quantity"`
	UnitPrice  sql.NullFloat64 `db:"unit_price" json:"-"`
	Amount     float64         `db:"amount" json:"amount"`
	Vendor     string          `db:"vendor" json:"vendor,omitempty"`
	Customer   string          `db:"customer" json:"customer,omitempty"`
	UserID     string          `db:"user_id" json:"user_id,omitempty"`
	RawMessage string          `db:"raw_message" json:"raw_message,omitempty"`
}

// Open connects to Postgres and verifies connectivity
func Open(ctx context.Context, dsn string) (*Ledger, error) {
	if dsn == "" {
		return nil, apperrors.ErrLedgerUnavailable
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(connectCtx, "postgres", dsn)
	if err != nil {
		return nil, apperrors.NewBaseError(apperrors.ErrorTypeLedger, "db connect", err)
	}
	db.SetMaxOpenConns(maxConnections)
	db.SetMaxIdleConns(maxConnections)

	l := &Ledger{db: db, logger: logger.Get()}
	l.logger.Info("Ledger connected",
		zap.Int("pool_open", maxConnections),
		zap.Duration("duration", time.Since(start)),
	)
	return l, nil
}

// Migrate applies all embedded up migrations. dsn must be a postgres:// URL.
func Migrate(dsn string) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	log := logger.Get()
	fromVer, _, _ := m.Version()

	start := time.Now()
	switch upErr := m.Up(); {
	case upErr == nil:
	case errors.Is(upErr, migrate.ErrNoChange):
		log.Info("Ledger migrations up to date", zap.Uint("version", fromVer))
		return nil
	default:
		return fmt.Errorf("migration execution failed: %w", upErr)
	}

	toVer, _, _ := m.Version()
	log.Info("Ledger migrations applied",
		zap.Uint("from_ver", fromVer),
		zap.Uint("to_ver", toVer),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Close closes the connection pool
func (l *Ledger) Close() error {
	return l.db.Close()
}

// UpsertProduct mirrors a catalog product, keyed on its normalized name
func (l *Ledger) UpsertProduct(ctx context.Context, p graph.Product) (int64, error) {
	query := `
		INSERT INTO products (name, price, description, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE
		SET price = EXCLUDED.price,
		    description = CASE WHEN EXCLUDED.description = '' THEN products.description ELSE EXCLUDED.description END,
		    updated_at = now()
		RETURNING id
	`

	var id int64
	if err := l.db.GetContext(ctx, &id, query, graph.Normalize(p.Name), p.Price, p.Description); err != nil {
		return 0, apperrors.NewLedgerWriteFailed("products", err)
	}
	return id, nil
}

// RecordTransaction mirrors a logged transaction. Re-recording the same ID is a no-op.
func (l *Ledger) RecordTransaction(ctx context.Context, t graph.Transaction, rawMessage string) error {
	query := `
		INSERT INTO transactions
			(id, type, date, product_id, quantity, unit_price, amount, vendor, customer, user_id, raw_message)
		VALUES
			(:id, :type, :date, (SELECT id FROM products WHERE name = :product_key), :quantity,
			 :unit_price, :amount, :vendor, :customer, :user_id, :raw_message)
		ON CONFLICT (id) DO NOTHING
	`

	date := t.Date
	if date.IsZero() {
		date = time.Now()
	}
	var unitPrice sql.NullFloat64
	if t.UnitPrice > 0 {
		unitPrice = sql.NullFloat64{Float64: t.UnitPrice, Valid: true}
	}

	_, err := l.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":          t.ID,
		"type":        t.Type,
		"date":        date.Format("2006-01-02"),
		"product_key": graph.Normalize(t.Product),
		"quantity":    t.Quantity,
		"unit_price":  unitPrice,
		"amount":      t.Amount,
		"vendor":      t.Vendor,
		"customer":    t.Customer,
		"user_id":     t.UserID,
		"raw_message": rawMessage,
	})
	if err != nil {
		return apperrors.NewLedgerWriteFailed("transactions", err)
	}
	return nil
}

// RecentTransactions returns the newest entries first
func (l *Ledger) RecentTransactions(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `
		SELECT t.id, t.type, t.date, p.name AS product, t.quantity, t.unit_price, t.amount,
		       t.vendor, t.customer, t.user_id, t.raw_message
		FROM transactions t
		LEFT JOIN products p ON p.id = t.product_id
		ORDER BY t.date DESC, t.created_at DESC
		LIMIT $1
	`

	entries := []Entry{}
	if err := l.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, apperrors.NewBaseError(apperrors.ErrorTypeLedger, "query recent transactions", err)
	}
	return entries, nil
}

// ToTransaction converts a ledger row into the graph shape used by the rest of the bot
func (e Entry) ToTransaction() graph.Transaction {
	return graph.Transaction{
		ID:        e.ID,
		Type:      e.Type,
		Amount:    e.Amount,
		Quantity:  e.Quantity,
		UnitPrice: e.UnitPrice.Float64,
		Date:      e.Date,
		Product:   e.Product.String,
		Vendor:    e.Vendor,
		Customer:  e.Customer,
		UserID:    e.UserID,
	}
}
