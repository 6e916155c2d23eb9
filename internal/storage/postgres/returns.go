package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ornara/commerce-api/internal/domain/returns"
)

const (
	createReturnSQL = `INSERT INTO returns (id, return_number, order_id, user_id, items,
		status, refund, pickup, timeline, created_at)
		VALUES ($1, 'RET-' || nextval('return_number_seq'), $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING return_number`

	returnColumns = `id, return_number, order_id, user_id, items, status, refund, pickup,
		timeline, created_at`

	getReturnByIDSQL = `SELECT ` + returnColumns + ` FROM returns WHERE id = $1`

	getReturnByOrderIDSQL = `SELECT ` + returnColumns + ` FROM returns WHERE order_id = $1`

	listReturnsByUserSQL = `SELECT ` + returnColumns + ` FROM returns
		WHERE user_id = $1 ORDER BY created_at DESC`

	saveReturnTransitionSQL = `UPDATE returns
		SET status = $3, refund = $4, pickup = $5, timeline = $6
		WHERE id = $1 AND status = $2`
)

// uniqueViolation is the PostgreSQL error code raised when the UNIQUE
// constraint on returns.order_id rejects a second return for the same order.
const uniqueViolation = "23505"

var _ returns.Repository = (*ReturnRepository)(nil)

// ReturnRepository implements returns.Repository backed by PostgreSQL.
type ReturnRepository struct {
	pool *pgxpool.Pool
}

// NewReturnRepository returns a ReturnRepository that uses the given pool.
func NewReturnRepository(pool *pgxpool.Pool) *ReturnRepository {
	return &ReturnRepository{pool: pool}
}

// Create persists a new return and assigns its sequential return number.
// The one-return-per-order rule is enforced by the database constraint, so a
// duplicate surfaces as returns.ErrDuplicate regardless of request timing.
func (r *ReturnRepository) Create(ctx context.Context, ret *returns.Return) error {
	items, err := json.Marshal(ret.Items)
	if err != nil {
		return fmt.Errorf("marshaling return items: %w", err)
	}
	refund, err := json.Marshal(ret.Refund)
	if err != nil {
		return fmt.Errorf("marshaling refund: %w", err)
	}
	pickup, err := json.Marshal(ret.Pickup)
	if err != nil {
		return fmt.Errorf("marshaling pickup: %w", err)
	}
	timeline, err := json.Marshal(ret.Timeline)
	if err != nil {
		return fmt.Errorf("marshaling timeline: %w", err)
	}

	err = r.pool.QueryRow(ctx, createReturnSQL,
		ret.ID, ret.OrderID, ret.UserID, items,
		ret.Status, refund, pickup, timeline, ret.CreatedAt,
	).Scan(&ret.ReturnNumber)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return returns.ErrDuplicate
		}
		return fmt.Errorf("creating return %q: %w", ret.ID, err)
	}
	return nil
}

// GetByID returns a single return by its identifier.
func (r *ReturnRepository) GetByID(ctx context.Context, id string) (*returns.Return, error) {
	rows, err := r.pool.Query(ctx, getReturnByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting return %q: %w", id, err)
	}

	ret, err := pgx.CollectExactlyOneRow(rows, scanReturn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, returns.ErrNotFound
		}
		return nil, fmt.Errorf("getting return %q: %w", id, err)
	}
	return &ret, nil
}

// GetByOrderID returns the return opened against the given order, if any.
func (r *ReturnRepository) GetByOrderID(ctx context.Context, orderID string) (*returns.Return, error) {
	rows, err := r.pool.Query(ctx, getReturnByOrderIDSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting return for order %q: %w", orderID, err)
	}

	ret, err := pgx.CollectExactlyOneRow(rows, scanReturn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, returns.ErrNotFound
		}
		return nil, fmt.Errorf("getting return for order %q: %w", orderID, err)
	}
	return &ret, nil
}

// ListByUser returns the user's returns, newest first.
func (r *ReturnRepository) ListByUser(ctx context.Context, userID string) ([]returns.Return, error) {
	rows, err := r.pool.Query(ctx, listReturnsByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing returns for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanReturn)
}

// SaveTransition persists a completed transition conditioned on the return
// still being in the given prior status. Returns returns.ErrStale when
// another writer got there first.
func (r *ReturnRepository) SaveTransition(ctx context.Context, ret *returns.Return, from returns.Status) error {
	refund, err := json.Marshal(ret.Refund)
	if err != nil {
		return fmt.Errorf("marshaling refund: %w", err)
	}
	pickup, err := json.Marshal(ret.Pickup)
	if err != nil {
		return fmt.Errorf("marshaling pickup: %w", err)
	}
	timeline, err := json.Marshal(ret.Timeline)
	if err != nil {
		return fmt.Errorf("marshaling timeline: %w", err)
	}

	tag, err := r.pool.Exec(ctx, saveReturnTransitionSQL,
		ret.ID, from, ret.Status, refund, pickup, timeline,
	)
	if err != nil {
		return fmt.Errorf("saving transition for return %q: %w", ret.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return returns.ErrStale
	}
	return nil
}

func scanReturn(row pgx.CollectableRow) (returns.Return, error) {
	var (
		ret                             returns.Return
		items, refund, pickup, timeline []byte
		status                          string
	)
	err := row.Scan(
		&ret.ID, &ret.ReturnNumber, &ret.OrderID, &ret.UserID, &items,
		&status, &refund, &pickup, &timeline, &ret.CreatedAt,
	)
	if err != nil {
		return ret, err
	}
	ret.Status = returns.Status(status)

	if err := json.Unmarshal(items, &ret.Items); err != nil {
		return ret, fmt.Errorf("unmarshaling return items: %w", err)
	}
	if err := json.Unmarshal(refund, &ret.Refund); err != nil {
		return ret, fmt.Errorf("unmarshaling refund: %w", err)
	}
	if err := json.Unmarshal(pickup, &ret.Pickup); err != nil {
		return ret, fmt.Errorf("unmarshaling pickup: %w", err)
	}
	if err := json.Unmarshal(timeline, &ret.Timeline); err != nil {
		return ret, fmt.Errorf("unmarshaling timeline: %w", err)
	}
	return ret, nil
}
