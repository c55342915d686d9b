package swap

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Lookback margins subtracted from the current height when searching for a
// contract coin. Funding and solution searches tolerate node lag; claim and
// cancel lookups reach further back since the coin may be old.
const (
	FundingLookback = 1000
	ClaimLookback   = 10000
)

// CancelTokenPrefix marks a solution that returns a deposit to its sender.
const CancelTokenPrefix = "CANCEL-"

// HeightLookback returns the start height for a coin search, clamped at 0.
func HeightLookback(height, margin, maxBlockHeight uint32) uint32 {
	back := uint64(margin) + uint64(maxBlockHeight)
	if uint64(height) <= back {
		return 0
	}
	return height - uint32(back)
}

// CancelWindow is the number of blocks after confirmation from which a leg
// is cancelled instead of claimed: three quarters of its timeout.
func CancelWindow(maxBlockHeight uint64) int64 {
	return int64(maxBlockHeight * 3 / 4)
}

// EarlyCancelThreshold is the budget of the paired leg that may be used up
// while this leg's deposit has not appeared yet. It reserves the paired
// leg's share of this leg's confirmation depth, scaled by the ratio of the
// two timeouts. The result can be negative, which cancels at once.
func EarlyCancelThreshold(otherMax, minConf, max uint64) int64 {
	if otherMax == 0 {
		return 0
	}
	reserve := (minConf*max + otherMax - 1) / otherMax
	return CancelWindow(otherMax) - int64(reserve)
}

// WindowConsumed reports whether the blocks elapsed since confirmed have
// reached threshold.
func WindowConsumed(height, confirmed uint64, threshold int64) bool {
	return int64(height)-int64(confirmed) >= threshold
}

var cancelTokenLimit = new(big.Int).Lsh(big.NewInt(1), 128)

// NewCancelToken returns a fresh "CANCEL-<128-bit decimal>" solution.
func NewCancelToken() (string, error) {
	n, err := rand.Int(rand.Reader, cancelTokenLimit)
	if err != nil {
		return "", fmt.Errorf("failed to generate cancel token: %w", err)
	}
	return CancelTokenPrefix + n.String(), nil
}
