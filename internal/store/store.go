package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/service"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

var (
	_ service.CatalogStore    = (*Store)(nil)
	_ service.OrderStore      = (*Store)(nil)
	_ service.TransitionStore = (*Store)(nil)
	_ service.CounterStore    = (*Store)(nil)
	_ service.EventStore      = (*Store)(nil)
	_ service.IdentityStore   = (*Store)(nil)
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Migrate creates the schema if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// inTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// unique index name -> conflict reason
var uniqueReasons = map[string]apperr.Reason{
	"items_name_key":         apperr.ReasonDuplicateName,
	"categories_name_key":    apperr.ReasonDuplicateName,
	"reviews_item_user_key":  apperr.ReasonDuplicateReview,
	"orders_idempotency_key": apperr.ReasonConcurrentEdit,
}

// mapError turns unique violations into conflicts and wraps everything else.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		reason, ok := uniqueReasons[pqErr.Constraint]
		if !ok {
			reason = apperr.ReasonInvalidInput
		}
		return apperr.Conflict(reason, op, "record already exists").Wrap(err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
