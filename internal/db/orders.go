package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wellywell/skborders/internal/types"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

var _ Store[types.Order] = (*OrderRepository)(nil)

const selectOrder = `
	SELECT o.id, o.uuid, o.pledge_id, o.cadastral_number, o.order_kind_id, k.code,
	       o.answer_email, o.state, o.is_active, o.is_send_to_gd, o.is_send_request_to_skb,
	       o.response_data, o.errors, o.created_at, o.updated_at
	FROM orders o
	JOIN order_kinds k ON k.id = o.order_kind_id`

func scanOrder(row pgx.Row) (*types.Order, error) {
	var (
		o     types.Order
		state string
		raw   []byte
	)
	err := row.Scan(&o.ID, &o.UUID, &o.PledgeID, &o.CadastralNumber, &o.OrderKindID, &o.OrderKindCode,
		&o.AnswerEmail, &state, &o.IsActive, &o.IsSendToGD, &o.IsSendRequestToSKB,
		&raw, &o.Errors, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.State = types.State(state)
	if raw != nil {
		o.ResponseData = json.RawMessage(raw)
	}
	return &o, nil
}

func (r *OrderRepository) Get(ctx context.Context, id int) (*types.Order, error) {
	row := r.pool.QueryRow(ctx, selectOrder+` WHERE o.id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
		}
		return nil, fmt.Errorf("unexpected DB error %w", err)
	}
	return order, nil
}

func (r *OrderRepository) List(ctx context.Context, limit int, offset int) ([]types.Order, error) {
	rows, err := r.pool.Query(ctx, selectOrder+` ORDER BY o.id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed collecting rows %w", err)
	}
	defer rows.Close()

	orders := make([]types.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed unpacking rows %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// Save inserts a new order (ID == 0) or overwrites every mutable column.
func (r *OrderRepository) Save(ctx context.Context, o *types.Order) error {
	if o.ID == 0 {
		return r.insert(ctx, o)
	}
	query := `
		UPDATE orders
		SET state = $1, is_active = $2, is_send_to_gd = $3, is_send_request_to_skb = $4,
		    response_data = $5, errors = $6, answer_email = $7, updated_at = NOW()
		WHERE id = $8
		RETURNING updated_at`
	row := r.pool.QueryRow(ctx, query, string(o.State), o.IsActive, o.IsSendToGD, o.IsSendRequestToSKB,
		rawJSON(o.ResponseData), o.Errors, o.AnswerEmail, o.ID)
	if err := row.Scan(&o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("order %d: %w", o.ID, ErrOrderNotFound)
		}
		return fmt.Errorf("unexpected DB error %w", err)
	}
	return nil
}

func (r *OrderRepository) insert(ctx context.Context, o *types.Order) error {
	query := `
		INSERT INTO orders (uuid, pledge_id, cadastral_number, order_kind_id, answer_email,
		                    state, is_active, is_send_to_gd, is_send_request_to_skb, response_data, errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`

	row := r.pool.QueryRow(ctx, query, o.UUID, o.PledgeID, o.CadastralNumber, o.OrderKindID, o.AnswerEmail,
		string(o.State), o.IsActive, o.IsSendToGD, o.IsSendRequestToSKB, rawJSON(o.ResponseData), o.Errors)

	if err := row.Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
			if pgErr.Code == pgerrcode.ForeignKeyViolation {
				return fmt.Errorf("%w", &OrderKindNotFoundError{Code: o.OrderKindCode})
			}
			return fmt.Errorf("%w", &OrderExistsError{UUID: o.UUID.String()})
		}
		return fmt.Errorf("unexpected DB error %w", err)
	}
	return nil
}

func (r *OrderRepository) Delete(ctx context.Context, id int) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("unexpected DB error %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
	}
	return nil
}

// Update writes only the fields set in upd. When from is given, the row is
// updated only if its current state is one of them; otherwise ErrStaleOrder.
// A state change must be allowed by the state machine from the current state,
// otherwise types.ErrInvalidTransition.
func (r *OrderRepository) Update(ctx context.Context, id int, upd types.OrderUpdate, from ...types.State) error {
	if upd.Empty() {
		return nil
	}

	guard := from
	if upd.State != nil {
		guard = types.Sources(*upd.State, from...)
		if len(guard) == 0 {
			return fmt.Errorf("order %d to %s: %w", id, *upd.State, types.ErrInvalidTransition)
		}
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.State != nil {
		set("state", string(*upd.State))
	}
	if upd.IsActive != nil {
		set("is_active", *upd.IsActive)
	}
	if upd.IsSendToGD != nil {
		set("is_send_to_gd", *upd.IsSendToGD)
	}
	if upd.IsSendRequestToSKB != nil {
		set("is_send_request_to_skb", *upd.IsSendRequestToSKB)
	}
	if upd.ResponseData != nil {
		set("response_data", []byte(upd.ResponseData))
	}
	if upd.Errors != nil {
		set("errors", *upd.Errors)
	}
	sets = append(sets, "updated_at = NOW()")

	args = append(args, id)
	query := fmt.Sprintf("UPDATE orders SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	if len(guard) > 0 {
		states := make([]string, 0, len(guard))
		for _, s := range guard {
			states = append(states, string(s))
		}
		args = append(args, states)
		query += fmt.Sprintf(" AND state = ANY($%d)", len(args))
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("unexpected DB error %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current string
		err := tx.QueryRow(ctx, `SELECT state FROM orders WHERE id = $1`, id).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
			}
			return fmt.Errorf("unexpected DB error %w", err)
		}
		return rejected(id, types.State(current), upd, from)
	}

	return tx.Commit(ctx)
}

// rejected explains why a guarded update of an existing order matched no row.
func rejected(id int, current types.State, upd types.OrderUpdate, from []types.State) error {
	expected := len(from) == 0
	for _, s := range from {
		if s == current {
			expected = true
		}
	}
	if expected && upd.State != nil && !current.CanTransition(*upd.State) {
		return fmt.Errorf("order %d from %s to %s: %w", id, current, *upd.State, types.ErrInvalidTransition)
	}
	return fmt.Errorf("order %d in %s: %w", id, current, ErrStaleOrder)
}

func (r *OrderRepository) AddFile(ctx context.Context, f *types.OrderFile) error {
	query := `
		INSERT INTO order_files (order_id, object_key, filename, content_type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id, object_key)
		DO UPDATE SET filename = EXCLUDED.filename, content_type = EXCLUDED.content_type
		RETURNING id, created_at`
	row := r.pool.QueryRow(ctx, query, f.OrderID, f.ObjectKey, f.Filename, f.ContentType)
	if err := row.Scan(&f.ID, &f.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return fmt.Errorf("order %d: %w", f.OrderID, ErrOrderNotFound)
		}
		return fmt.Errorf("unexpected DB error %w", err)
	}
	return nil
}

func (r *OrderRepository) Files(ctx context.Context, orderID int) ([]types.OrderFile, error) {
	query := `
		SELECT id, order_id, object_key, filename, content_type, created_at
		FROM order_files
		WHERE order_id = $1
		ORDER BY id`
	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed collecting rows %w", err)
	}
	files, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.OrderFile, error) {
		var f types.OrderFile
		err := row.Scan(&f.ID, &f.OrderID, &f.ObjectKey, &f.Filename, &f.ContentType, &f.CreatedAt)
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed unpacking rows %w", err)
	}
	return files, nil
}

func rawJSON(data json.RawMessage) []byte {
	if data == nil {
		return nil
	}
	return []byte(data)
}
