package trading

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestLedger(t *testing.T, quote, base string) *Ledger {
	t.Helper()
	l, err := NewLedger(domain.Balances{Quote: d(quote), Base: d(base)})
	require.NoError(t, err)
	return l
}

func TestNewLedger_RejectsNegativeSeed(t *testing.T) {
	_, err := NewLedger(domain.Balances{Quote: d("-1"), Base: d("0")})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestLedger_Credit(t *testing.T) {
	l := newTestLedger(t, "500", "0.1")

	require.NoError(t, l.Credit(domain.AssetQuote, d("25.5")))
	require.NoError(t, l.Credit(domain.AssetBase, d("0")))

	b := l.Balances()
	assert.True(t, b.Quote.Equal(d("525.5")))
	assert.True(t, b.Base.Equal(d("0.1")))
}

func TestLedger_CreditNegative(t *testing.T) {
	l := newTestLedger(t, "500", "0.1")

	err := l.Credit(domain.AssetBase, d("-0.01"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.True(t, l.Balances().Base.Equal(d("0.1")))
}

func TestLedger_DebitExactBalance(t *testing.T) {
	l := newTestLedger(t, "500", "0.1")

	require.NoError(t, l.Debit(domain.AssetQuote, d("500")))
	assert.True(t, l.Balances().Quote.IsZero())
}

func TestLedger_DebitInsufficient(t *testing.T) {
	l := newTestLedger(t, "500", "0.1")

	err := l.Debit(domain.AssetBase, d("0.1001"))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.True(t, l.Balances().Base.Equal(d("0.1")))
}

func TestLedger_DebitNegative(t *testing.T) {
	l := newTestLedger(t, "500", "0.1")

	err := l.Debit(domain.AssetQuote, d("-5"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.True(t, l.Balances().Quote.Equal(d("500")))
}

func TestLedger_UnknownAsset(t *testing.T) {
	l := newTestLedger(t, "500", "0.1")

	assert.ErrorIs(t, l.Credit("eth", d("1")), domain.ErrInvalidAmount)
	assert.ErrorIs(t, l.Debit("eth", d("1")), domain.ErrInvalidAmount)
}

func TestLedger_Adjust(t *testing.T) {
	l := newTestLedger(t, "10", "1")

	require.NoError(t, l.adjust(domain.AssetQuote, d("-4")))
	require.NoError(t, l.adjust(domain.AssetBase, d("0.5")))
	assert.True(t, l.Balances().Quote.Equal(d("6")))
	assert.True(t, l.Balances().Base.Equal(d("1.5")))

	assert.True(t, l.covers(domain.AssetQuote, d("-6")))
	assert.False(t, l.covers(domain.AssetQuote, d("-6.0001")))
}
