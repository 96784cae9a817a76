package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"1500.50", 150050},
		{"0.01", 1},
		{"2000", 200000},
		{"2000.00", 200000},
		{"0.10", 10},
		{"999999999.99", 99999999999},
	}
	for _, tc := range cases {
		amt, err := decimal.NewFromString(tc.in)
		require.NoError(t, err)
		got, err := ToMinorUnits(amt)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestToMinorUnitsRejectsSubMinorPrecision(t *testing.T) {
	for _, in := range []string{"10.005", "0.001", "1.999"} {
		amt, err := decimal.NewFromString(in)
		require.NoError(t, err)
		_, err = ToMinorUnits(amt)
		assert.ErrorIs(t, err, ErrPrecision, in)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, in := range []string{"1500.50", "0.01", "12345.67", "5000.00"} {
		amt, err := decimal.NewFromString(in)
		require.NoError(t, err)
		minor, err := ToMinorUnits(amt)
		require.NoError(t, err)
		assert.True(t, FromMinorUnits(minor).Equal(amt), in)
	}
}
