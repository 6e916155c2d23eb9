// Package coupon implements coupon applicability rules and the append-only
// usage ledger behind them.
package coupon

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountKind enumerates the supported coupon discount strategies.
type DiscountKind string

const (
	// KindPercentage applies a percentage of the order value.
	KindPercentage DiscountKind = "percentage"
	// KindFixed applies a fixed monetary amount, clamped to the order value.
	KindFixed DiscountKind = "fixed"
)

// CategoryAll is the wildcard entry making a coupon applicable to every
// product category.
const CategoryAll = "all"

// Reason is a stable machine-readable code explaining why a coupon is not
// applicable. Clients branch on these instead of matching message strings.
type Reason string

const (
	ReasonCodeNotFound        Reason = "CODE_NOT_FOUND"
	ReasonExpiredOrInactive   Reason = "EXPIRED_OR_INACTIVE"
	ReasonGlobalLimitReached  Reason = "GLOBAL_LIMIT_REACHED"
	ReasonBelowMinimum        Reason = "BELOW_MINIMUM"
	ReasonCategoryNotEligible Reason = "CATEGORY_NOT_ELIGIBLE"
	ReasonProductNotEligible  Reason = "PRODUCT_NOT_ELIGIBLE"
	ReasonUserLimitReached    Reason = "USER_LIMIT_REACHED"
)

// Message returns the human-readable text paired with the reason code.
func (r Reason) Message() string {
	switch r {
	case ReasonCodeNotFound:
		return "coupon code not found"
	case ReasonExpiredOrInactive:
		return "coupon is expired or inactive"
	case ReasonGlobalLimitReached:
		return "coupon usage limit reached"
	case ReasonBelowMinimum:
		return "order value is below the coupon minimum"
	case ReasonCategoryNotEligible:
		return "coupon is not applicable to this category"
	case ReasonProductNotEligible:
		return "coupon is not applicable to these products"
	case ReasonUserLimitReached:
		return "you have already used this coupon"
	default:
		return "coupon not applicable"
	}
}

var (
	// ErrNotFound is returned by repositories when no coupon exists for a code.
	ErrNotFound = errors.New("coupon not found")
	// ErrGlobalLimitReached is returned by ConsumeUse when the conditional
	// counter increment finds the global usage limit already exhausted.
	ErrGlobalLimitReached = errors.New("coupon global usage limit reached")
	// ErrInvalidCode is returned when a code fails syntactic validation.
	ErrInvalidCode = errors.New("coupon code must be 3-16 uppercase letters or digits")
)

// Coupon defines a discount code's behaviour and eligibility constraints.
// Zero values of MaxDiscount and UsageLimit mean "no cap" and "unlimited".
type Coupon struct {
	Code          string
	Kind          DiscountKind
	Value         decimal.Decimal
	MinOrderValue decimal.Decimal
	MaxDiscount   decimal.Decimal
	UsageLimit    int
	UsedCount     int
	PerUserLimit  int
	ValidFrom     *time.Time
	ValidUntil    *time.Time
	Categories    []string
	ProductIDs    []string
	Description   string
	Active        bool
}

// Usage is one entry in the append-only usage ledger.
type Usage struct {
	ID         string
	CouponCode string
	UserID     string
	OrderID    string
	Discount   decimal.Decimal
	UsedAt     time.Time
}

// Application is the snapshot of an applied coupon embedded in a cart or
// order. Transient on carts, immutable once copied onto an order.
type Application struct {
	Code     string          `json:"code"`
	Kind     DiscountKind    `json:"kind"`
	Discount decimal.Decimal `json:"discount"`
}

// Repository provides coupon lookup and the atomic consumption primitive.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	// CountUserUsage returns the number of ledger entries for the given
	// coupon and user.
	CountUserUsage(ctx context.Context, code, userID string) (int, error)
	// ConsumeUse appends a ledger entry and increments the denormalized
	// used_count in one transaction. The increment is conditional on the
	// global limit, so two racing consumers of the last slot resolve to
	// exactly one winner; the loser gets ErrGlobalLimitReached.
	ConsumeUse(ctx context.Context, u Usage) error
}

var codeRe = regexp.MustCompile(`^[A-Z0-9]{3,16}$`)

// NormalizeCode uppercases and validates a coupon code.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !codeRe.MatchString(code) {
		return "", ErrInvalidCode
	}
	return code, nil
}
