package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPercentRoundsHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, int64(7500), Percent(100_000, decimal.RequireFromString("7.5")))
	assert.Equal(t, int64(2), Percent(150, decimal.RequireFromString("1.5")))   // 2.25
	assert.Equal(t, int64(3), Percent(250, decimal.RequireFromString("1")))     // 2.5
	assert.Equal(t, int64(0), Percent(10, decimal.RequireFromString("2.5")))    // 0.25
	assert.Equal(t, int64(1500), Percent(100_000, decimal.RequireFromString("1.5")))
}

func TestProRata(t *testing.T) {
	assert.Equal(t, int64(9750), ProRata(19_500, 10_000, 20_000))
	assert.Equal(t, int64(1), ProRata(1, 1, 2))
	assert.Equal(t, int64(0), ProRata(100, 1, 0))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1141.00", Format(114_100, 2))
	assert.Equal(t, "500", Format(500, 0))
	assert.Equal(t, "0.05", Format(5, 2))
}

func TestShareOf(t *testing.T) {
	assert.True(t, decimal.RequireFromString("2.5").Equal(ShareOf(2_500, 100_000)))
	assert.True(t, decimal.Zero.Equal(ShareOf(1, 0)))
}
