// Package cart implements the per-user shopping cart.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// MaxQuantityPerItem is the hard ceiling on a single line's quantity.
// Quantities above it are clamped, not rejected.
const MaxQuantityPerItem = 10

var (
	// ErrItemNotFound is returned when mutating a line that is not in the cart.
	ErrItemNotFound = errors.New("item not in cart")
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// LineItem is a product reference with the unit price snapshotted at the
// time the item was added.
type LineItem struct {
	ProductID string          `json:"product_id"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Cart is a user's cart. There is exactly one per user, created on first
// access. CouponCode is transient: the discount it yields is recomputed
// every time the cart is priced, never stored.
type Cart struct {
	UserID         string
	Items          []LineItem
	CouponCode     string
	LastModifiedAt time.Time
}

func (c *Cart) findItem(productID string) *LineItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// Repository defines cart persistence. Carts are last-writer-wins documents
// keyed by user.
type Repository interface {
	// GetByUser returns the user's cart, creating an empty one on first access.
	GetByUser(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
}
