package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nextcoding/saas-api/pkg/domain"
)

// Config locates the database file and its migrations.
type Config struct {
	DatabasePath   string
	MigrationsPath string
}

// SQLiteStore is the durable Store implementation.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database, runs pending migrations and returns the
// store.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	m, err := migrate.New("file://"+cfg.MigrationsPath, "sqlite3://"+cfg.DatabasePath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewSQLiteStoreFromDB wraps an existing connection without running
// migrations. Used by tests and by the dead-letter store sharing the file.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection so other repositories can share it.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

const userColumns = `id, email, premium, stripe_customer_id, is_active, premium_event_ts, updated_at`

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLiteStore) GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, customerID))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var customerID sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.Premium, &customerID, &u.IsActive, &u.PremiumEventTS, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	if customerID.Valid {
		u.StripeCustomerID = &customerID.String
	}
	return &u, nil
}

func (s *SQLiteStore) ApplyEntitlementByID(ctx context.Context, id string, premium int64, stripeCustomerID *string, eventTS int64) error {
	query := `
		UPDATE users
		SET premium = ?,
		    stripe_customer_id = COALESCE(?, stripe_customer_id),
		    premium_event_ts = ?,
		    updated_at = ?
		WHERE id = ? AND premium_event_ts <= ?`
	return s.applyEntitlement(ctx, query, id,
		premium, stripeCustomerID, eventTS, time.Now().UTC(), id, eventTS)
}

func (s *SQLiteStore) ApplyEntitlementByCustomer(ctx context.Context, customerID string, premium int64, eventTS int64) error {
	query := `
		UPDATE users
		SET premium = ?,
		    premium_event_ts = ?,
		    updated_at = ?
		WHERE stripe_customer_id = ? AND premium_event_ts <= ?`
	return s.applyEntitlement(ctx, query, customerID,
		premium, eventTS, time.Now().UTC(), customerID, eventTS)
}

// applyEntitlement runs the guarded update and, when no row was touched,
// distinguishes a missing row from a stale event.
func (s *SQLiteStore) applyEntitlement(ctx context.Context, query, key string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update entitlement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	probe := `SELECT 1 FROM users WHERE id = ? OR stripe_customer_id = ?`
	err = s.db.QueryRowContext(ctx, probe, key, key).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to probe user: %w", err)
	}
	return ErrStaleEvent
}

func (s *SQLiteStore) Create(ctx context.Context, user *domain.User) error {
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO users (id, email, premium, stripe_customer_id, is_active, premium_event_ts, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Premium, user.StripeCustomerID, user.IsActive, user.PremiumEventTS, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}
