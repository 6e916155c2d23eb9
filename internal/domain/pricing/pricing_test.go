package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name         string
		lines        []Line
		discount     decimal.Decimal
		charges      Charges
		wantSubtotal string
		wantDiscount string
		wantTotal    string
		wantCount    int
	}{
		{
			name:         "empty cart yields all zeros",
			lines:        nil,
			discount:     decimal.Zero,
			wantSubtotal: "0",
			wantDiscount: "0",
			wantTotal:    "0",
			wantCount:    0,
		},
		{
			name: "single line no discount",
			lines: []Line{
				{ProductID: "ring-1", UnitPrice: dec("1250.50"), Quantity: 2},
			},
			discount:     decimal.Zero,
			wantSubtotal: "2501",
			wantDiscount: "0",
			wantTotal:    "2501",
			wantCount:    2,
		},
		{
			name: "unavailable lines excluded from subtotal but not the count of available items",
			lines: []Line{
				{ProductID: "ring-1", UnitPrice: dec("100"), Quantity: 1},
				{ProductID: "necklace-2", UnitPrice: dec("900"), Quantity: 3, Unavailable: true},
			},
			discount:     decimal.Zero,
			wantSubtotal: "100",
			wantDiscount: "0",
			wantTotal:    "100",
			wantCount:    1,
		},
		{
			name: "discount clamped to subtotal",
			lines: []Line{
				{ProductID: "stud-1", UnitPrice: dec("150"), Quantity: 2},
			},
			discount:     dec("500"),
			wantSubtotal: "300",
			wantDiscount: "300",
			wantTotal:    "0",
			wantCount:    2,
		},
		{
			name: "negative discount treated as zero",
			lines: []Line{
				{ProductID: "stud-1", UnitPrice: dec("150"), Quantity: 1},
			},
			discount:     dec("-10"),
			wantSubtotal: "150",
			wantDiscount: "0",
			wantTotal:    "150",
			wantCount:    1,
		},
		{
			name: "discount rounded half up to 2 decimals",
			lines: []Line{
				{ProductID: "band-1", UnitPrice: dec("33.33"), Quantity: 1},
			},
			discount:     dec("3.333"),
			wantSubtotal: "33.33",
			wantDiscount: "3.33",
			wantTotal:    "30",
			wantCount:    1,
		},
		{
			name: "shipping and tax added after discount",
			lines: []Line{
				{ProductID: "pendant-1", UnitPrice: dec("1000"), Quantity: 2},
			},
			discount:     dec("200"),
			charges:      Charges{Shipping: dec("50"), Tax: decimal.Zero},
			wantSubtotal: "2000",
			wantDiscount: "200",
			wantTotal:    "1850",
			wantCount:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTotals(tt.lines, tt.discount, tt.charges)

			assert.True(t, dec(tt.wantSubtotal).Equal(got.Subtotal),
				"subtotal: want %s, got %s", tt.wantSubtotal, got.Subtotal)
			assert.True(t, dec(tt.wantDiscount).Equal(got.Discount),
				"discount: want %s, got %s", tt.wantDiscount, got.Discount)
			assert.True(t, dec(tt.wantTotal).Equal(got.Total),
				"total: want %s, got %s", tt.wantTotal, got.Total)
			assert.Equal(t, tt.wantCount, got.TotalItemCount)
		})
	}
}

func TestComputeTotalsIsPure(t *testing.T) {
	lines := []Line{
		{ProductID: "ring-1", UnitPrice: dec("100"), Quantity: 3},
	}

	first := ComputeTotals(lines, dec("30"), Charges{})
	second := ComputeTotals(lines, dec("30"), Charges{})

	assert.True(t, first.Total.Equal(second.Total))
	assert.Equal(t, first.TotalItemCount, second.TotalItemCount)
	assert.Equal(t, 3, lines[0].Quantity, "input must not be mutated")
}
