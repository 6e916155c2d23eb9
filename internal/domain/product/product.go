package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID         string
	Name       string
	Price      decimal.Decimal
	Category   string
	Image      Image
	Stock      int
	SalesCount int
	Active     bool
}

// Image holds image URLs for a product.
type Image struct {
	Thumbnail string
	Full      string
}

// Available reports whether the product can currently be sold in the
// requested quantity.
func (p Product) Available(quantity int) bool {
	return p.Active && p.Stock >= quantity
}

// StockAdjustment describes a signed change to a product's stock and sales
// counters. Positive quantities restock (a completed return), negative
// quantities consume stock (a sale).
type StockAdjustment struct {
	ProductID string
	Quantity  int
}

// Repository defines catalog operations.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	// AdjustStock applies each adjustment atomically: stock += qty and
	// sales_count -= qty. Used with negative quantities at checkout and
	// positive quantities when a return completes.
	AdjustStock(ctx context.Context, adjustments []StockAdjustment) error
}
