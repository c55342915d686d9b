package chain

import (
	"errors"
	"testing"
)

const devFeeAddress = "xch1k6mv3caj73akwp0ygpqhjpat20mu3akc3f6xdrc5ahcqkynl7ejq2z74n3"

func TestDecodeEncodeRoundTrip(t *testing.T) {
	ph, prefix, err := DecodeAddress(devFeeAddress)
	if err != nil {
		t.Fatalf("DecodeAddress() error = %v", err)
	}
	if prefix != "xch" {
		t.Errorf("prefix = %s, want xch", prefix)
	}

	addr, err := EncodePuzzleHash(ph, "xch")
	if err != nil {
		t.Fatalf("EncodePuzzleHash() error = %v", err)
	}
	if addr != devFeeAddress {
		t.Errorf("EncodePuzzleHash() = %s, want %s", addr, devFeeAddress)
	}
}

func TestEncodeOtherPrefix(t *testing.T) {
	var ph [32]byte
	ph[0] = 0xaa
	addr, err := EncodePuzzleHash(ph, "xfx")
	if err != nil {
		t.Fatalf("EncodePuzzleHash() error = %v", err)
	}
	got, err := DecodeAddressWithPrefix(addr, "xfx")
	if err != nil {
		t.Fatalf("DecodeAddressWithPrefix() error = %v", err)
	}
	if got != ph {
		t.Errorf("puzzle hash = %x, want %x", got, ph)
	}
	if _, err := DecodeAddressWithPrefix(addr, "xch"); !errors.Is(err, ErrWrongPrefix) {
		t.Errorf("DecodeAddressWithPrefix(xch) error = %v, want ErrWrongPrefix", err)
	}
}

func TestDecodeAddressInvalid(t *testing.T) {
	tests := []string{
		"",
		"xch1invalid",
		// valid bech32 (not bech32m) segwit address
		"bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",
	}
	for _, addr := range tests {
		if _, _, err := DecodeAddress(addr); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("DecodeAddress(%q) error = %v, want ErrInvalidAddress", addr, err)
		}
	}
}
