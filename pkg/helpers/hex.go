package helpers

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex0x encodes b as lowercase hex with a 0x prefix, the form full nodes use
// in JSON payloads.
func Hex0x(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// DecodeHex decodes a hex string with or without 0x prefix.
func DecodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
}

// DecodeBytes32 decodes a 32 byte hex value with or without 0x prefix.
func DecodeBytes32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := DecodeHex(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
