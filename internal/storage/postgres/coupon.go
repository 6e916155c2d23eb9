package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ornara/commerce-api/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, discount_kind, value, min_order_value, max_discount,
		usage_limit, used_count, per_user_limit, valid_from, valid_until,
		categories, product_ids, description, active
		FROM coupons WHERE code = UPPER($1)`

	createCouponSQL = `INSERT INTO coupons (code, discount_kind, value, min_order_value, max_discount,
		usage_limit, per_user_limit, valid_from, valid_until, categories, product_ids, description, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (code) DO UPDATE
		SET discount_kind = EXCLUDED.discount_kind,
			value = EXCLUDED.value,
			min_order_value = EXCLUDED.min_order_value,
			max_discount = EXCLUDED.max_discount,
			usage_limit = EXCLUDED.usage_limit,
			per_user_limit = EXCLUDED.per_user_limit,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			categories = EXCLUDED.categories,
			product_ids = EXCLUDED.product_ids,
			description = EXCLUDED.description,
			active = EXCLUDED.active`

	countUserUsageSQL = `SELECT count(*) FROM coupon_usages
		WHERE coupon_code = $1 AND user_id = $2`

	// The WHERE clause makes the increment conditional on the global limit, so
	// of two transactions racing for the last use exactly one sees a row
	// updated. usage_limit = 0 means unlimited.
	consumeCouponUseSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE code = $1 AND (usage_limit = 0 OR used_count < usage_limit)`

	insertCouponUsageSQL = `INSERT INTO coupon_usages (id, coupon_code, user_id, order_id, discount, used_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (case-insensitive). Returns
// coupon.ErrNotFound when no coupon exists for the code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	return &c, nil
}

// Create upserts a coupon definition. Usage counters are never touched here.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, createCouponSQL,
		c.Code, c.Kind, c.Value, c.MinOrderValue, c.MaxDiscount,
		c.UsageLimit, c.PerUserLimit, c.ValidFrom, c.ValidUntil,
		c.Categories, c.ProductIDs, c.Description, c.Active,
	)
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// CountUserUsage returns the number of ledger entries for the coupon and user.
func (r *CouponRepository) CountUserUsage(ctx context.Context, code, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, countUserUsageSQL, code, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting usage of %q by %q: %w", code, userID, err)
	}
	return count, nil
}

// ConsumeUse increments the coupon's used_count under the global limit and
// appends the ledger entry, both in one transaction. Returns
// coupon.ErrGlobalLimitReached when the conditional increment matches no row.
func (r *CouponRepository) ConsumeUse(ctx context.Context, u coupon.Usage) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning coupon consumption: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, consumeCouponUseSQL, u.CouponCode)
	if err != nil {
		return fmt.Errorf("incrementing used_count for %q: %w", u.CouponCode, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrGlobalLimitReached
	}

	_, err = tx.Exec(ctx, insertCouponUsageSQL,
		u.ID, u.CouponCode, u.UserID, u.OrderID, u.Discount, u.UsedAt,
	)
	if err != nil {
		return fmt.Errorf("appending usage ledger entry for %q: %w", u.CouponCode, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing coupon consumption: %w", err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c                           coupon.Coupon
		kind                        string
		value, minOrder, maxDisc    decimal.Decimal
		usageLimit, used, userLimit int32
		validFrom, validUntil       *time.Time
	)
	err := row.Scan(
		&c.Code, &kind, &value, &minOrder, &maxDisc,
		&usageLimit, &used, &userLimit, &validFrom, &validUntil,
		&c.Categories, &c.ProductIDs, &c.Description, &c.Active,
	)
	c.Kind = coupon.DiscountKind(kind)
	c.Value = value
	c.MinOrderValue = minOrder
	c.MaxDiscount = maxDisc
	c.UsageLimit = int(usageLimit)
	c.UsedCount = int(used)
	c.PerUserLimit = int(userLimit)
	c.ValidFrom = validFrom
	c.ValidUntil = validUntil
	return c, err
}
