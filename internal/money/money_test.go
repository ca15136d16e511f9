package money

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{29732.618852891435, "$29,732.62"},
		{6002.912217261018, "$6,002.91"},
		{0, "$0.00"},
		{0.004, "$0.00"},
		{0.005, "$0.01"},
		{999.999, "$1,000.00"},
		{1234567.5, "$1,234,567.50"},
		{-5.5, "-$5.50"},
		{1e20, "$100,000,000,000,000,000,000.00"},
		{-1e20, "-$100,000,000,000,000,000,000.00"},
		{9.5e18, "$9,500,000,000,000,000,000.00"},
		{math.NaN(), "n/a"},
		{math.Inf(1), "n/a"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.in), "Format(%v)", tt.in)
	}
}

func TestRound(t *testing.T) {
	d, err := Round(1121.8739)
	require.NoError(t, err)
	assert.Equal(t, "1121.87", d.StringFixed(2))

	d, err = Round(-2.345)
	require.NoError(t, err)
	assert.Equal(t, "-2.35", d.StringFixed(2))

	_, err = Round(math.Inf(-1))
	assert.True(t, errors.Is(err, ErrNotFinite))
}
