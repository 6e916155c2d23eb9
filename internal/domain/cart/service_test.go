package cart

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ornara/commerce-api/internal/domain/product"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type mockCartRepo struct {
	carts map[string]*Cart
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{carts: make(map[string]*Cart)}
}

func (m *mockCartRepo) GetByUser(_ context.Context, userID string) (*Cart, error) {
	c, ok := m.carts[userID]
	if !ok {
		c = &Cart{UserID: userID}
		m.carts[userID] = c
	}
	return c, nil
}

func (m *mockCartRepo) Save(_ context.Context, c *Cart) error {
	m.carts[c.UserID] = c
	return nil
}

type mockProductRepo struct {
	byID map[string]product.Product
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) { return nil, nil }

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) AdjustStock(_ context.Context, _ []product.StockAdjustment) error {
	return nil
}

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(products map[string]product.Product) (*Service, *mockCartRepo) {
	carts := newMockCartRepo()
	s := NewService(carts, &mockProductRepo{byID: products})
	s.now = func() time.Time { return fixedNow }
	return s, carts
}

func catalog() map[string]product.Product {
	return map[string]product.Product{
		"ring-1": {
			ID: "ring-1", Name: "Gold Ring", Price: dec("1000"),
			Category: "rings", Stock: 5, Active: true,
		},
		"stud-2": {
			ID: "stud-2", Name: "Pearl Stud", Price: dec("250"),
			Category: "earrings", Stock: 1, Active: true,
		},
		"retired-3": {
			ID: "retired-3", Name: "Old Pendant", Price: dec("400"),
			Category: "necklaces", Stock: 3, Active: false,
		},
	}
}

func TestAddItemSnapshotsPrice(t *testing.T) {
	s, _ := newTestService(catalog())

	c, err := s.AddItem(context.Background(), "user-1", "ring-1", 2)
	require.NoError(t, err)

	require.Len(t, c.Items, 1)
	assert.True(t, dec("1000").Equal(c.Items[0].UnitPrice))
	assert.Equal(t, 2, c.Items[0].Quantity)
	assert.Equal(t, fixedNow, c.LastModifiedAt)
}

func TestAddItemAccumulatesAndClamps(t *testing.T) {
	s, _ := newTestService(catalog())

	_, err := s.AddItem(context.Background(), "user-1", "ring-1", 7)
	require.NoError(t, err)
	c, err := s.AddItem(context.Background(), "user-1", "ring-1", 7)
	require.NoError(t, err)

	require.Len(t, c.Items, 1)
	assert.Equal(t, MaxQuantityPerItem, c.Items[0].Quantity)
}

func TestAddItemRejectsBadInput(t *testing.T) {
	s, _ := newTestService(catalog())

	_, err := s.AddItem(context.Background(), "user-1", "ring-1", 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = s.AddItem(context.Background(), "user-1", "nope", 1)
	assert.ErrorIs(t, err, product.ErrNotFound)
}

func TestUpdateQuantity(t *testing.T) {
	s, _ := newTestService(catalog())
	_, err := s.AddItem(context.Background(), "user-1", "ring-1", 1)
	require.NoError(t, err)

	c, err := s.UpdateQuantity(context.Background(), "user-1", "ring-1", 25)
	require.NoError(t, err)
	assert.Equal(t, MaxQuantityPerItem, c.Items[0].Quantity)

	_, err = s.UpdateQuantity(context.Background(), "user-1", "stud-2", 1)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestRemoveItem(t *testing.T) {
	s, _ := newTestService(catalog())
	_, err := s.AddItem(context.Background(), "user-1", "ring-1", 1)
	require.NoError(t, err)
	_, err = s.AddItem(context.Background(), "user-1", "stud-2", 1)
	require.NoError(t, err)

	c, err := s.RemoveItem(context.Background(), "user-1", "ring-1")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "stud-2", c.Items[0].ProductID)

	_, err = s.RemoveItem(context.Background(), "user-1", "ring-1")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestGetCreatesCartOnFirstAccess(t *testing.T) {
	s, repo := newTestService(catalog())

	c, err := s.Get(context.Background(), "fresh-user")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.Contains(t, repo.carts, "fresh-user")
}

func TestMaterializeFlagsUnavailableLines(t *testing.T) {
	s, _ := newTestService(catalog())
	_, err := s.AddItem(context.Background(), "user-1", "ring-1", 2)
	require.NoError(t, err)
	// Inactive product and an overdrawn stock line go in directly to bypass
	// the add-time product check.
	repoCart, err := s.Get(context.Background(), "user-1")
	require.NoError(t, err)
	repoCart.Items = append(repoCart.Items,
		LineItem{ProductID: "retired-3", UnitPrice: dec("400"), Quantity: 1},
		LineItem{ProductID: "stud-2", UnitPrice: dec("250"), Quantity: 5},
		LineItem{ProductID: "deleted-9", UnitPrice: dec("100"), Quantity: 1},
	)

	view, err := s.Materialize(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, view.Lines, 4, "unavailable lines stay visible")

	assert.False(t, view.Lines[0].Unavailable, "active in-stock line")
	assert.True(t, view.Lines[1].Unavailable, "inactive product")
	assert.True(t, view.Lines[2].Unavailable, "insufficient stock")
	assert.True(t, view.Lines[3].Unavailable, "product no longer exists")

	assert.Equal(t, []string{"ring-1"}, view.AvailableProductIDs())
	assert.Equal(t, "rings", view.SoleCategory())
}

func TestSoleCategoryMixedCart(t *testing.T) {
	s, _ := newTestService(catalog())
	_, err := s.AddItem(context.Background(), "user-1", "ring-1", 1)
	require.NoError(t, err)
	_, err = s.AddItem(context.Background(), "user-1", "stud-2", 1)
	require.NoError(t, err)

	view, err := s.Materialize(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "", view.SoleCategory())
}

func TestClear(t *testing.T) {
	s, _ := newTestService(catalog())
	_, err := s.AddItem(context.Background(), "user-1", "ring-1", 1)
	require.NoError(t, err)
	_, err = s.SetCouponCode(context.Background(), "user-1", "GEMS10")
	require.NoError(t, err)

	require.NoError(t, s.Clear(context.Background(), "user-1"))

	c, err := s.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.Empty(t, c.CouponCode)
}
