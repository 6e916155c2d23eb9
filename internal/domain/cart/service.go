package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/ornara/commerce-api/internal/domain/pricing"
	"github.com/ornara/commerce-api/internal/domain/product"
)

// Service implements cart mutations and materialization.
type Service struct {
	carts    Repository
	products product.Repository
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository) *Service {
	return &Service{carts: carts, products: products, now: time.Now}
}

// Get returns the user's cart, creating it on first access.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	return s.carts.GetByUser(ctx, userID)
}

// AddItem adds a product to the cart, snapshotting its current price. Adding
// an already-present product increases its quantity. Quantities clamp at
// MaxQuantityPerItem.
func (s *Service) AddItem(ctx context.Context, userID, productID string, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}

	c, err := s.carts.GetByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	if item := c.findItem(productID); item != nil {
		item.Quantity = clampQuantity(item.Quantity + quantity)
	} else {
		c.Items = append(c.Items, LineItem{
			ProductID: productID,
			UnitPrice: p.Price,
			Quantity:  clampQuantity(quantity),
		})
	}

	return s.save(ctx, c)
}

// UpdateQuantity sets the quantity of an existing line, clamped at
// MaxQuantityPerItem.
func (s *Service) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	c, err := s.carts.GetByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	item := c.findItem(productID)
	if item == nil {
		return nil, ErrItemNotFound
	}
	item.Quantity = clampQuantity(quantity)

	return s.save(ctx, c)
}

// RemoveItem deletes a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (*Cart, error) {
	c, err := s.carts.GetByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	kept := c.Items[:0]
	found := false
	for _, item := range c.Items {
		if item.ProductID == productID {
			found = true
			continue
		}
		kept = append(kept, item)
	}
	if !found {
		return nil, ErrItemNotFound
	}
	c.Items = kept

	return s.save(ctx, c)
}

// SetCouponCode stores a coupon code on the cart. The code is only a hint;
// it is re-validated every time the cart is priced and again at checkout.
func (s *Service) SetCouponCode(ctx context.Context, userID, code string) (*Cart, error) {
	c, err := s.carts.GetByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	c.CouponCode = code
	return s.save(ctx, c)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	c, err := s.carts.GetByUser(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "get cart")
	}
	c.Items = nil
	c.CouponCode = ""
	_, err = s.save(ctx, c)
	return err
}

func (s *Service) save(ctx context.Context, c *Cart) (*Cart, error) {
	c.LastModifiedAt = s.now()
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// ViewLine is a cart line joined with live product state for display and
// pricing. Unavailable lines (inactive product, insufficient stock, or a
// product that no longer exists) stay visible but are excluded from totals.
type ViewLine struct {
	LineItem
	Name        string
	Image       string
	Category    string
	Unavailable bool
}

// View is a materialized cart.
type View struct {
	Cart  *Cart
	Lines []ViewLine
}

// Materialize joins the cart's lines with the live catalog. Lines referencing
// missing, inactive, or understocked products are flagged, not deleted; an
// explicit RemoveItem is the only thing that drops a stored line.
func (s *Service) Materialize(ctx context.Context, userID string) (*View, error) {
	c, err := s.carts.GetByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	if len(c.Items) == 0 {
		return &View{Cart: c}, nil
	}

	ids := make([]string, len(c.Items))
	for i, item := range c.Items {
		ids[i] = item.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]ViewLine, len(c.Items))
	for i, item := range c.Items {
		line := ViewLine{LineItem: item}
		p, ok := byID[item.ProductID]
		if !ok {
			line.Unavailable = true
		} else {
			line.Name = p.Name
			line.Image = p.Image.Thumbnail
			line.Category = p.Category
			line.Unavailable = !p.Available(item.Quantity)
		}
		lines[i] = line
	}

	return &View{Cart: c, Lines: lines}, nil
}

// PricingLines converts the view into pricing engine input.
func (v *View) PricingLines() []pricing.Line {
	lines := make([]pricing.Line, len(v.Lines))
	for i, l := range v.Lines {
		lines[i] = pricing.Line{
			ProductID:   l.ProductID,
			UnitPrice:   l.UnitPrice,
			Quantity:    l.Quantity,
			Unavailable: l.Unavailable,
		}
	}
	return lines
}

// AvailableProductIDs returns the product IDs of purchasable lines.
func (v *View) AvailableProductIDs() []string {
	var ids []string
	for _, l := range v.Lines {
		if !l.Unavailable {
			ids = append(ids, l.ProductID)
		}
	}
	return ids
}

// SoleCategory returns the category shared by every purchasable line, or ""
// when the cart is empty or spans multiple categories.
func (v *View) SoleCategory() string {
	category := ""
	for _, l := range v.Lines {
		if l.Unavailable {
			continue
		}
		if category == "" {
			category = l.Category
			continue
		}
		if l.Category != category {
			return ""
		}
	}
	return category
}

func clampQuantity(q int) int {
	if q > MaxQuantityPerItem {
		return MaxQuantityPerItem
	}
	return q
}
