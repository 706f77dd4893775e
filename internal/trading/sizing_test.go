package trading

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

func TestComputeOrderQuantity(t *testing.T) {
	tests := []struct {
		name      string
		direction domain.Direction
		pct       string
		quote     string
		base      string
		want      string
	}{
		{"buy zero percent", domain.DirectionBuy, "0", "500", "0.1", "0"},
		{"buy full balance", domain.DirectionBuy, "100", "500", "0.1", "500"},
		{"buy quarter", domain.DirectionBuy, "25", "500", "0.1", "125"},
		{"sell half", domain.DirectionSell, "50", "500", "0.1", "0.05"},
		{"sell full balance", domain.DirectionSell, "100", "500", "0.1", "0.1"},
		{"clamps above hundred", domain.DirectionBuy, "150", "500", "0.1", "500"},
		{"clamps below zero", domain.DirectionSell, "-10", "500", "0.1", "0"},
		{"rounds down below half", domain.DirectionSell, "50", "0", "0.00025", "0.0001"},
		{"rounds to four places", domain.DirectionBuy, "33.333", "100", "0", "33.333"},
		{"rounds long fraction", domain.DirectionBuy, "33.33333", "1", "0", "0.3333"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeOrderQuantity(tt.direction, d(tt.pct), d(tt.quote), d(tt.base))
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestComputeOrderQuantity_HalfAwayFromZero(t *testing.T) {
	// 0.00015 * 100 / 100 = 0.00015 rounds up to 0.0002.
	got := ComputeOrderQuantity(domain.DirectionSell, d("100"), d("0"), d("0.00015"))
	assert.True(t, got.Equal(d("0.0002")), "got %s", got)
}

func TestMaxBuy(t *testing.T) {
	assert.True(t, MaxBuy(domain.DirectionBuy, d("500"), d("50000")).Equal(d("0.01")))
	assert.True(t, MaxBuy(domain.DirectionBuy, d("100"), d("30000")).Equal(d("0.0033")))
	assert.True(t, MaxBuy(domain.DirectionSell, d("500"), d("50000")).IsZero())
	assert.True(t, MaxBuy(domain.DirectionBuy, d("500"), d("0")).IsZero())
}
