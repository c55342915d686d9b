package clvm

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/klingon-exchange/htlcswap/internal/chain"
)

func TestIntBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, ""},
		{1, "01"},
		{127, "7f"},
		{128, "0080"},
		{255, "00ff"},
		{256, "0100"},
		{-1, "ff"},
		{-128, "80"},
		{-129, "ff7f"},
	}
	for _, tt := range tests {
		got := hex.EncodeToString(IntBytes(big.NewInt(tt.n)))
		if got != tt.want {
			t.Errorf("IntBytes(%d) = %s, want %s", tt.n, got, tt.want)
		}
	}
}

func TestSerialize(t *testing.T) {
	long := bytes.Repeat([]byte{0xab}, 64)
	tests := []struct {
		name string
		v    *SExp
		want string
	}{
		{"nil", Nil, "80"},
		{"small atom", Atom([]byte{0x01}), "01"},
		{"high byte atom", Atom([]byte{0x80}), "8180"},
		{"string list", List(String("abc")), "ff8361626380"},
		{"pair", Cons(Atom([]byte{1}), Atom([]byte{2})), "ff0102"},
		{"two byte length", Atom(long), "c040" + hex.EncodeToString(long)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hex.EncodeToString(tt.v.Serialize())
			if got != tt.want {
				t.Errorf("Serialize() = %s, want %s", got, tt.want)
			}
			back, err := Deserialize(tt.v.Serialize())
			if err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}
			if !back.Equal(tt.v) {
				t.Error("Deserialize(Serialize(v)) != v")
			}
		})
	}
}

func TestDeserializeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", ErrTruncated},
		{"open pair", "ff01", ErrTruncated},
		{"short atom", "8361", ErrTruncated},
		{"trailing", "0101", ErrTrailing},
		{"bad prefix", "fc", ErrAtomLength},
	}
	for _, tt := range tests {
		b, _ := hex.DecodeString(tt.input)
		if _, err := Deserialize(b); !errors.Is(err, tt.want) {
			t.Errorf("%s: Deserialize() error = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestTreeHash(t *testing.T) {
	// sha256(0x01) is the well known hash of the empty atom.
	got := Nil.TreeHash()
	if hex.EncodeToString(got[:]) != "4bf5122f344554c53bde2ebb8cd2b7e3d1600ad631c385a5d7cce23c7785459a" {
		t.Errorf("TreeHash(nil) = %x", got)
	}

	pair := Cons(Atom([]byte{1}), Nil)
	l := sha256.Sum256([]byte{1, 1})
	r := Nil.TreeHash()
	want := sha256.Sum256(append(append([]byte{2}, l[:]...), r[:]...))
	if pair.TreeHash() != want {
		t.Errorf("TreeHash(pair) = %x, want %x", pair.TreeHash(), want)
	}
}

func TestCurryShape(t *testing.T) {
	mod := Atom([]byte{0x42})
	got := Curry(mod, Atom([]byte{7}))
	// (a (q . mod) (c (q . 7) 1))
	want := List(opApply, Cons(opQuote, mod), List(opCons, Cons(opQuote, Atom([]byte{7})), envRef))
	if !got.Equal(want) {
		t.Errorf("Curry() = %x, want %x", got.Serialize(), want.Serialize())
	}
}

func testAddress(t *testing.T, b byte) string {
	t.Helper()
	var ph [32]byte
	for i := range ph {
		ph[i] = b
	}
	addr, err := chain.EncodePuzzleHash(ph, "xch")
	if err != nil {
		t.Fatalf("EncodePuzzleHash() error = %v", err)
	}
	return addr
}

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	mod := List(opQuote, Atom([]byte("swap"))).Serialize()
	c, err := NewCodec(mod, "xch1k6mv3caj73akwp0ygpqhjpat20mu3akc3f6xdrc5ahcqkynl7ejq2z74n3")
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestDeriveContractDeterministic(t *testing.T) {
	params := ContractParams{
		SecretHash:     "0x" + hex.EncodeToString(bytes.Repeat([]byte{0x11}, 32)),
		TotalAmount:    1000,
		Fee:            10,
		FromAddress:    testAddress(t, 1),
		ToAddress:      testAddress(t, 2),
		MaxBlockHeight: 192,
	}

	a, err := newTestCodec(t).DeriveContract(params)
	if err != nil {
		t.Fatalf("DeriveContract() error = %v", err)
	}
	// A fresh codec (as after a restart) derives the same puzzle hash.
	b, err := newTestCodec(t).DeriveContract(params)
	if err != nil {
		t.Fatalf("DeriveContract() error = %v", err)
	}
	if a.PuzzleHash != b.PuzzleHash || !bytes.Equal(a.Program, b.Program) {
		t.Error("DeriveContract() is not deterministic")
	}

	prog, err := Deserialize(a.Program)
	if err != nil {
		t.Fatalf("Deserialize(program) error = %v", err)
	}
	if prog.TreeHash() != a.PuzzleHash {
		t.Error("PuzzleHash does not match program tree hash")
	}

	params.TotalAmount++
	c, err := newTestCodec(t).DeriveContract(params)
	if err != nil {
		t.Fatalf("DeriveContract() error = %v", err)
	}
	if c.PuzzleHash == a.PuzzleHash {
		t.Error("different terms produced the same puzzle hash")
	}
}

func TestDeriveContractErrors(t *testing.T) {
	codec := newTestCodec(t)
	good := ContractParams{
		SecretHash:  "abcd",
		TotalAmount: 10,
		Fee:         1,
		FromAddress: testAddress(t, 1),
		ToAddress:   testAddress(t, 2),
	}

	bad := good
	bad.SecretHash = "zz"
	if _, err := codec.DeriveContract(bad); !errors.Is(err, ErrBadSecretHash) {
		t.Errorf("bad secret hash error = %v", err)
	}

	bad = good
	bad.Fee = 11
	if _, err := codec.DeriveContract(bad); err == nil {
		t.Error("fee above total should fail")
	}

	bad = good
	bad.ToAddress = "nope"
	if _, err := codec.DeriveContract(bad); !errors.Is(err, chain.ErrInvalidAddress) {
		t.Errorf("bad address error = %v", err)
	}
}

func TestClaimSolutionRoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	for _, secret := range []string{"my secret", "CANCEL-123456789", "x", ""} {
		got, err := codec.ExtractSecret(codec.ClaimSolution(secret))
		if err != nil {
			t.Fatalf("ExtractSecret() error = %v", err)
		}
		if got != secret {
			t.Errorf("ExtractSecret(ClaimSolution(%q)) = %q", secret, got)
		}
	}

	if _, err := codec.ExtractSecret(Nil.Serialize()); !errors.Is(err, ErrEmptySolution) {
		t.Errorf("ExtractSecret(nil) error = %v, want ErrEmptySolution", err)
	}
}

func TestCoinID(t *testing.T) {
	var parent, ph [32]byte
	parent[0], ph[0] = 1, 2
	got := CoinID(parent, ph, 128)
	want := sha256.Sum256(append(append(parent[:], ph[:]...), 0x00, 0x80))
	if got != want {
		t.Errorf("CoinID() = %x, want %x", got, want)
	}
}
