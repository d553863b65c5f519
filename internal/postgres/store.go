// Package postgres is the pgx implementation of store.TxRunner. Contended
// rows are locked with SELECT ... FOR UPDATE inside the caller's transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-checkout-orders/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct{ DB *pgxpool.Pool }

var _ store.TxRunner = (*Store)(nil)

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, q store.Queries) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := &queries{tx: tx}
	if err := fn(ctx, q); err != nil {
		q.Discard()
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		q.Discard()
		return fmt.Errorf("commit: %w", err)
	}
	q.Run(ctx)
	return nil
}

type queries struct {
	store.Hooks
	tx pgx.Tx
}

var _ store.Queries = (*queries)(nil)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func noRows(err error, notFound error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
