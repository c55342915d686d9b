// Package chain encodes Chia-family addresses. An address is the bech32m
// encoding of a 32 byte puzzle hash under a per-chain prefix.
package chain

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrWrongPrefix    = errors.New("address prefix mismatch")
)

// EncodePuzzleHash returns the bech32m address for a puzzle hash.
func EncodePuzzleHash(puzzleHash [32]byte, prefix string) (string, error) {
	data, err := bech32.ConvertBits(puzzleHash[:], 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("failed to convert puzzle hash: %w", err)
	}
	addr, err := bech32.EncodeM(prefix, data)
	if err != nil {
		return "", fmt.Errorf("failed to encode address: %w", err)
	}
	return addr, nil
}

// DecodeAddress returns the puzzle hash and prefix of a bech32m address.
func DecodeAddress(addr string) ([32]byte, string, error) {
	var ph [32]byte
	hrp, data, version, err := bech32.DecodeGeneric(addr)
	if err != nil {
		return ph, "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if version != bech32.VersionM {
		return ph, "", fmt.Errorf("%w: not bech32m", ErrInvalidAddress)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return ph, "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != 32 {
		return ph, "", fmt.Errorf("%w: payload is %d bytes", ErrInvalidAddress, len(raw))
	}
	copy(ph[:], raw)
	return ph, hrp, nil
}

// DecodeAddressWithPrefix decodes addr and checks it belongs to prefix.
func DecodeAddressWithPrefix(addr, prefix string) ([32]byte, error) {
	ph, hrp, err := DecodeAddress(addr)
	if err != nil {
		return ph, err
	}
	if hrp != prefix {
		return ph, fmt.Errorf("%w: got %s, want %s", ErrWrongPrefix, hrp, prefix)
	}
	return ph, nil
}
