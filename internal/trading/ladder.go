package trading

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// DefaultLadderDepth is the number of rows shown per side.
const DefaultLadderDepth = 5

// ProjectLadder turns raw depth into display rows. It keeps the top depth
// entries of each side (the feed delivers them best-first), parses them, and
// reverses the asks so the lowest ask is adjacent to the current price.
// Rows whose price or quantity cannot be parsed are dropped. Short input is
// returned as-is without padding.
func ProjectLadder(bids, asks []domain.RawLevel, depth int) domain.Ladder {
	if depth <= 0 {
		depth = DefaultLadderDepth
	}
	ladder := domain.Ladder{
		Bids: projectSide(bids, depth),
		Asks: projectSide(asks, depth),
	}
	slices.Reverse(ladder.Asks)
	return ladder
}

func projectSide(levels []domain.RawLevel, depth int) []domain.LadderRow {
	if len(levels) > depth {
		levels = levels[:depth]
	}
	rows := make([]domain.LadderRow, 0, len(levels))
	for _, lvl := range levels {
		price, err := decimal.NewFromString(lvl.Price())
		if err != nil {
			continue
		}
		amount, err := decimal.NewFromString(lvl.Quantity())
		if err != nil {
			continue
		}
		rows = append(rows, domain.LadderRow{Price: price, Amount: amount})
	}
	return rows
}
