package units

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEtherToWei(t *testing.T) {
	tests := []struct {
		name string
		eth  string
		want string
	}{
		{name: "whole ether", eth: "1000", want: "1000000000000000000000"},
		{name: "fraction", eth: "0.5", want: "500000000000000000"},
		{name: "zero", eth: "0", want: "0"},
		{name: "below one wei truncates", eth: "0.0000000000000000001", want: "0"},
		{name: "one wei", eth: "0.000000000000000001", want: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EtherToWei(decimal.RequireFromString(tt.eth))
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestGweiRoundTrip(t *testing.T) {
	wei := GweiToWei(decimal.NewFromInt(2))
	assert.Equal(t, big.NewInt(2_000_000_000), wei)
	assert.Equal(t, "2", FormatGwei(wei))
}

func TestFormatEther(t *testing.T) {
	wei, ok := new(big.Int).SetString("1500000000000000000", 10)
	require.True(t, ok)
	assert.Equal(t, "1.5", FormatEther(wei))
	assert.Equal(t, "0", FormatEther(nil))
}

func TestParseEther(t *testing.T) {
	d, err := ParseEther("12.25")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("12.25")))

	_, err = ParseEther("-1")
	assert.Error(t, err)

	_, err = ParseEther("abc")
	assert.Error(t, err)

	d, err = ParseEther("0.000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1), EtherToWei(d))

	_, err = ParseEther("0.0000000000000000001")
	assert.ErrorIs(t, err, ErrBelowOneWei)

	// trailing zeros past 18 places are still a whole number of wei
	_, err = ParseEther("1.00000000000000000000")
	assert.NoError(t, err)
}

func TestParseAmountGwei(t *testing.T) {
	d, err := ParseAmount("1.5", GweiDecimals)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_500_000_000), GweiToWei(d))

	_, err = ParseAmount("0.0000000001", GweiDecimals)
	assert.ErrorIs(t, err, ErrBelowOneWei)
}
