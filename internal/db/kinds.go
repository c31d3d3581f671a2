package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wellywell/skborders/internal/types"
)

type KindRepository struct {
	pool *pgxpool.Pool
}

var _ Store[types.OrderKind] = (*KindRepository)(nil)

func (r *KindRepository) Get(ctx context.Context, id int) (*types.OrderKind, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, code, name, created_at FROM order_kinds WHERE id = $1`, id)
	var k types.OrderKind
	if err := row.Scan(&k.ID, &k.Code, &k.Name, &k.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w", &OrderKindNotFoundError{Code: fmt.Sprintf("#%d", id)})
		}
		return nil, fmt.Errorf("unexpected DB error %w", err)
	}
	return &k, nil
}

func (r *KindRepository) GetByCode(ctx context.Context, code string) (*types.OrderKind, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, code, name, created_at FROM order_kinds WHERE code = $1`, code)
	var k types.OrderKind
	if err := row.Scan(&k.ID, &k.Code, &k.Name, &k.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w", &OrderKindNotFoundError{Code: code})
		}
		return nil, fmt.Errorf("unexpected DB error %w", err)
	}
	return &k, nil
}

// Save upserts by code.
func (r *KindRepository) Save(ctx context.Context, k *types.OrderKind) error {
	query := `
		INSERT INTO order_kinds (code, name)
		VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, created_at`
	if err := r.pool.QueryRow(ctx, query, k.Code, k.Name).Scan(&k.ID, &k.CreatedAt); err != nil {
		return fmt.Errorf("unexpected DB error %w", err)
	}
	return nil
}

func (r *KindRepository) Delete(ctx context.Context, id int) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM order_kinds WHERE id = $1`, id)
	return err
}

func (r *KindRepository) List(ctx context.Context) ([]types.OrderKind, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, created_at FROM order_kinds ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed collecting rows %w", err)
	}
	kinds, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.OrderKind, error) {
		var k types.OrderKind
		err := row.Scan(&k.ID, &k.Code, &k.Name, &k.CreatedAt)
		return k, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed unpacking rows %w", err)
	}
	return kinds, nil
}

// Upsert replaces names of known codes and inserts new ones in one transaction.
func (r *KindRepository) Upsert(ctx context.Context, kinds []types.OrderKind) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, k := range kinds {
		batch.Queue(`
			INSERT INTO order_kinds (code, name)
			VALUES ($1, $2)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name`, k.Code, k.Name)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("unexpected DB error %w", err)
	}
	return tx.Commit(ctx)
}
