// Package clvm implements the subset of the Chia Lisp value model needed to
// build swap contracts: canonical serialization, tree hashing, currying and
// solution handling.
package clvm

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"
)

var (
	ErrTruncated  = errors.New("clvm: truncated input")
	ErrTrailing   = errors.New("clvm: trailing bytes after program")
	ErrAtomLength = errors.New("clvm: invalid atom length prefix")
	ErrNotList    = errors.New("clvm: value is not a list")
)

const consBox = 0xff

// SExp is a CLVM value: either an atom or a pair.
type SExp struct {
	atom  []byte
	first *SExp
	rest  *SExp
}

// Nil is the empty atom, which also terminates lists.
var Nil = &SExp{atom: []byte{}}

// Atom builds an atom from raw bytes.
func Atom(b []byte) *SExp {
	if b == nil {
		b = []byte{}
	}
	return &SExp{atom: b}
}

// String builds an atom holding a UTF-8 string.
func String(s string) *SExp {
	return Atom([]byte(s))
}

// Int builds an atom holding the canonical encoding of n.
func Int(n *big.Int) *SExp {
	return Atom(IntBytes(n))
}

// Uint builds an atom holding the canonical encoding of n.
func Uint(n uint64) *SExp {
	return Atom(UintBytes(n))
}

// Cons builds a pair.
func Cons(first, rest *SExp) *SExp {
	return &SExp{first: first, rest: rest}
}

// List builds a proper list terminated by Nil.
func List(items ...*SExp) *SExp {
	out := Nil
	for i := len(items) - 1; i >= 0; i-- {
		out = Cons(items[i], out)
	}
	return out
}

// IsPair reports whether v is a pair.
func (v *SExp) IsPair() bool { return v.first != nil }

// AtomBytes returns the bytes of an atom, or nil for a pair.
func (v *SExp) AtomBytes() []byte {
	if v.IsPair() {
		return nil
	}
	return v.atom
}

// First returns the left element of a pair.
func (v *SExp) First() *SExp { return v.first }

// Rest returns the right element of a pair.
func (v *SExp) Rest() *SExp { return v.rest }

// Equal reports structural equality.
func (v *SExp) Equal(o *SExp) bool {
	if v.IsPair() != o.IsPair() {
		return false
	}
	if !v.IsPair() {
		return bytes.Equal(v.atom, o.atom)
	}
	return v.first.Equal(o.first) && v.rest.Equal(o.rest)
}

// IntBytes encodes n as a minimal big-endian two's complement number, the
// way CLVM stores integers. Zero is the empty atom.
func IntBytes(n *big.Int) []byte {
	switch n.Sign() {
	case 0:
		return []byte{}
	case 1:
		b := n.Bytes()
		if b[0]&0x80 != 0 {
			b = append([]byte{0}, b...)
		}
		return b
	}
	size := (n.BitLen() + 8) / 8
	mod := new(big.Int).Lsh(big.NewInt(1), uint(size*8))
	b := new(big.Int).Add(mod, n).Bytes()
	for len(b) < size {
		b = append([]byte{0xff}, b...)
	}
	for len(b) > 1 && b[0] == 0xff && b[1]&0x80 != 0 {
		b = b[1:]
	}
	return b
}

// UintBytes is IntBytes for unsigned values.
func UintBytes(n uint64) []byte {
	return IntBytes(new(big.Int).SetUint64(n))
}

// Serialize returns the canonical byte form of v.
func (v *SExp) Serialize() []byte {
	var buf bytes.Buffer
	v.serialize(&buf)
	return buf.Bytes()
}

func (v *SExp) serialize(w *bytes.Buffer) {
	if v.IsPair() {
		w.WriteByte(consBox)
		v.first.serialize(w)
		v.rest.serialize(w)
		return
	}
	a := v.atom
	n := len(a)
	switch {
	case n == 0:
		w.WriteByte(0x80)
		return
	case n == 1 && a[0] <= 0x7f:
		w.WriteByte(a[0])
		return
	case n < 0x40:
		w.WriteByte(0x80 | byte(n))
	case n < 0x2000:
		w.Write([]byte{0xc0 | byte(n>>8), byte(n)})
	case n < 0x100000:
		w.Write([]byte{0xe0 | byte(n>>16), byte(n >> 8), byte(n)})
	case n < 0x8000000:
		w.Write([]byte{0xf0 | byte(n>>24), byte(n >> 16), byte(n >> 8), byte(n)})
	default:
		w.Write([]byte{0xf8 | byte(n>>32), byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
	}
	w.Write(a)
}

// Deserialize parses a single serialized program and rejects trailing data.
func Deserialize(b []byte) (*SExp, error) {
	r := bytes.NewReader(b)
	v, err := deserialize(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, ErrTrailing
	}
	return v, nil
}

// deserialize keeps an explicit stack of open pairs so deeply nested input
// cannot exhaust the goroutine stack.
func deserialize(r *bytes.Reader) (*SExp, error) {
	type open struct {
		pair      *SExp
		haveFirst bool
	}
	var stack []*open

	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, ErrTruncated
		}
		if b == consBox {
			stack = append(stack, &open{pair: &SExp{}})
			continue
		}
		v, err := readAtom(r, b)
		if err != nil {
			return nil, err
		}

		for {
			if len(stack) == 0 {
				return v, nil
			}
			top := stack[len(stack)-1]
			if !top.haveFirst {
				top.pair.first = v
				top.haveFirst = true
				break
			}
			top.pair.rest = v
			v = top.pair
			stack = stack[:len(stack)-1]
		}
	}
}

func readAtom(r *bytes.Reader, b byte) (*SExp, error) {
	if b == 0x80 {
		return Atom(nil), nil
	}
	if b <= 0x7f {
		return Atom([]byte{b}), nil
	}

	var size, extra int
	switch {
	case b&0xc0 == 0x80:
		size = int(b & 0x3f)
	case b&0xe0 == 0xc0:
		size, extra = int(b&0x1f), 1
	case b&0xf0 == 0xe0:
		size, extra = int(b&0x0f), 2
	case b&0xf8 == 0xf0:
		size, extra = int(b&0x07), 3
	case b&0xfc == 0xf8:
		size, extra = int(b&0x03), 4
	default:
		return nil, ErrAtomLength
	}
	for i := 0; i < extra; i++ {
		nb, err := r.ReadByte()
		if err != nil {
			return nil, ErrTruncated
		}
		size = size<<8 | int(nb)
	}
	if size > r.Len() {
		return nil, ErrTruncated
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, ErrTruncated
	}
	return Atom(buf), nil
}

// TreeHash computes the sha256 tree hash of v: atoms hash as
// sha256(1 || atom) and pairs as sha256(2 || left || right).
func (v *SExp) TreeHash() [32]byte {
	if !v.IsPair() {
		return sha256.Sum256(append([]byte{1}, v.atom...))
	}
	l := v.first.TreeHash()
	r := v.rest.TreeHash()
	buf := make([]byte, 0, 65)
	buf = append(buf, 2)
	buf = append(buf, l[:]...)
	buf = append(buf, r[:]...)
	return sha256.Sum256(buf)
}

// ListItems returns the elements of a proper list.
func (v *SExp) ListItems() ([]*SExp, error) {
	var out []*SExp
	cur := v
	for cur.IsPair() {
		out = append(out, cur.first)
		cur = cur.rest
	}
	if len(cur.atom) != 0 {
		return nil, fmt.Errorf("%w: improper terminator", ErrNotList)
	}
	return out, nil
}
