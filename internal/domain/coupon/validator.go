package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderContext carries everything about the prospective order that the
// applicability checks look at.
type OrderContext struct {
	OrderValue decimal.Decimal
	UserID     string
	Category   string
	ProductIDs []string
}

// Result reports the outcome of a validation or application attempt.
// Inapplicability is normal control flow: Valid is false and Reason is set,
// no error is returned.
type Result struct {
	Valid    bool
	Reason   Reason
	Message  string
	Code     string
	Kind     DiscountKind
	Discount decimal.Decimal
}

func rejected(reason Reason) *Result {
	return &Result{Reason: reason, Message: reason.Message()}
}

// Validator evaluates coupon applicability and consumes uses through the
// ledger. It is safe for concurrent use.
type Validator struct {
	repo Repository
	now  func() time.Time
}

// NewValidator creates a Validator backed by the given repository.
func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo, now: time.Now}
}

// Validate runs the applicability checks in order, short-circuiting on the
// first failure, and computes the discount when all checks pass. Errors are
// returned only for infrastructure faults; every business outcome is a Result.
func (v *Validator) Validate(ctx context.Context, code string, oc OrderContext) (*Result, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return rejected(ReasonCodeNotFound), nil
	}

	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return rejected(ReasonCodeNotFound), nil
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	now := v.now()
	if !c.Active {
		return rejected(ReasonExpiredOrInactive), nil
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return rejected(ReasonExpiredOrInactive), nil
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return rejected(ReasonExpiredOrInactive), nil
	}

	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return rejected(ReasonGlobalLimitReached), nil
	}

	if oc.OrderValue.LessThan(c.MinOrderValue) {
		return rejected(ReasonBelowMinimum), nil
	}

	if !categoryEligible(c.Categories, oc.Category) {
		return rejected(ReasonCategoryNotEligible), nil
	}

	if !productEligible(c.ProductIDs, oc.ProductIDs) {
		return rejected(ReasonProductNotEligible), nil
	}

	used, err := v.repo.CountUserUsage(ctx, code, oc.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "count user usage")
	}
	if used >= c.PerUserLimit {
		return rejected(ReasonUserLimitReached), nil
	}

	return &Result{
		Valid:    true,
		Code:     code,
		Kind:     c.Kind,
		Discount: discountFor(c, oc.OrderValue),
	}, nil
}

// Apply consumes one use of the coupon for the given user and order,
// recording it in the usage ledger. Only the per-user check is re-run here;
// the caller is expected to have validated value and eligibility immediately
// before charging. A lost race on the global limit is reported as
// GLOBAL_LIMIT_REACHED.
func (v *Validator) Apply(ctx context.Context, code, userID, orderID string, discount decimal.Decimal) (*Result, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return rejected(ReasonCodeNotFound), nil
	}

	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return rejected(ReasonCodeNotFound), nil
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	used, err := v.repo.CountUserUsage(ctx, code, userID)
	if err != nil {
		return nil, errors.Wrap(err, "count user usage")
	}
	if used >= c.PerUserLimit {
		return rejected(ReasonUserLimitReached), nil
	}

	err = v.repo.ConsumeUse(ctx, Usage{
		ID:         uuid.New().String(),
		CouponCode: code,
		UserID:     userID,
		OrderID:    orderID,
		Discount:   discount,
		UsedAt:     v.now(),
	})
	if err != nil {
		if errors.Is(err, ErrGlobalLimitReached) {
			return rejected(ReasonGlobalLimitReached), nil
		}
		return nil, errors.Wrap(err, "consume coupon use")
	}

	return &Result{Valid: true, Code: code, Kind: c.Kind, Discount: discount}, nil
}

// Register stores a coupon definition. The code must already be normalized.
func (v *Validator) Register(ctx context.Context, c *Coupon) error {
	if err := v.repo.Create(ctx, c); err != nil {
		return errors.Wrap(err, "create coupon")
	}
	return nil
}

func categoryEligible(allowed []string, category string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, c := range allowed {
		if c == CategoryAll || c == category {
			return true
		}
	}
	return false
}

func productEligible(allowed, requested []string) bool {
	if len(allowed) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		set[id] = struct{}{}
	}
	for _, id := range requested {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}
