// Package helpers provides small formatting and encoding utilities shared by
// the daemon packages.
package helpers

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// StatusDecimals is the precision used when amounts are shown to users.
const StatusDecimals = 12

// FormatUnits converts an amount in smallest units to a coin amount with a
// fixed number of decimals. For example FormatUnits(1500000000000, 1e12, 12)
// returns "1.500000000000".
func FormatUnits(amount, unitsPerCoin uint64, decimals int32) string {
	if unitsPerCoin == 0 {
		unitsPerCoin = 1
	}
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0).
		Div(decimal.NewFromBigInt(new(big.Int).SetUint64(unitsPerCoin), 0))
	return d.StringFixed(decimals)
}

// ParseBigAmount parses a non-negative integer amount given as a decimal
// string, as used for EVM smallest-unit amounts that do not fit in uint64.
func ParseBigAmount(s string) (*big.Int, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil || d.Sign() < 0 || !d.Equal(d.Truncate(0)) {
		return nil, false
	}
	return d.BigInt(), true
}
