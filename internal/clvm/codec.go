package clvm

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/ristretto"

	"github.com/klingon-exchange/htlcswap/internal/chain"
	"github.com/klingon-exchange/htlcswap/pkg/helpers"
)

// Operator atoms used by curried programs.
var (
	opQuote = Atom([]byte{0x01})
	opApply = Atom([]byte{0x02})
	opCons  = Atom([]byte{0x04})
	envRef  = Atom([]byte{0x01})
)

var (
	ErrEmptySolution = errors.New("solution has no arguments")
	ErrBadSecretHash = errors.New("invalid secret hash")
)

// Curry binds args to mod, producing
// (a (q . mod) (c (q . arg1) (c (q . arg2) ... 1))).
func Curry(mod *SExp, args ...*SExp) *SExp {
	env := envRef
	for i := len(args) - 1; i >= 0; i-- {
		env = List(opCons, Cons(opQuote, args[i]), env)
	}
	return List(opApply, Cons(opQuote, mod), env)
}

// ContractParams are the swap terms curried into a leg's contract.
type ContractParams struct {
	SecretHash     string
	TotalAmount    uint64
	Fee            uint64
	FromAddress    string
	ToAddress      string
	MaxBlockHeight uint32
}

func (p ContractParams) cacheKey() string {
	return fmt.Sprintf("%s|%d|%d|%s|%s|%d", p.SecretHash, p.TotalAmount, p.Fee, p.FromAddress, p.ToAddress, p.MaxBlockHeight)
}

// Contract is a derived leg contract.
type Contract struct {
	Program    []byte
	PuzzleHash [32]byte
}

// Codec derives swap contracts from the compiled contract module.
type Codec struct {
	mod      *SExp
	devFeePH [32]byte
	cache    *ristretto.Cache
}

// LoadModuleFile reads a hex encoded serialized contract module.
func LoadModuleFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contract module: %w", err)
	}
	mod, err := helpers.DecodeHex(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("contract module is not hex: %w", err)
	}
	return mod, nil
}

// NewCodec parses the serialized module and resolves the fee address.
func NewCodec(module []byte, devFeeAddress string) (*Codec, error) {
	mod, err := Deserialize(module)
	if err != nil {
		return nil, fmt.Errorf("invalid contract module: %w", err)
	}
	devPH, _, err := chain.DecodeAddress(devFeeAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid dev fee address: %w", err)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 10,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create contract cache: %w", err)
	}
	return &Codec{mod: mod, devFeePH: devPH, cache: cache}, nil
}

// DeriveContract curries the swap terms into the module. The result only
// depends on p, so a restarted run finds the same puzzle hash.
func (c *Codec) DeriveContract(p ContractParams) (*Contract, error) {
	key := p.cacheKey()
	if v, ok := c.cache.Get(key); ok {
		return v.(*Contract), nil
	}

	secretHash, err := helpers.DecodeHex(p.SecretHash)
	if err != nil || len(secretHash) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrBadSecretHash, p.SecretHash)
	}
	if p.Fee > p.TotalAmount {
		return nil, fmt.Errorf("fee %d exceeds total amount %d", p.Fee, p.TotalAmount)
	}
	fromPH, _, err := chain.DecodeAddress(p.FromAddress)
	if err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	toPH, _, err := chain.DecodeAddress(p.ToAddress)
	if err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}

	prog := Curry(c.mod,
		Atom(secretHash),
		Uint(p.TotalAmount-p.Fee),
		Uint(p.Fee),
		Atom(fromPH[:]),
		Atom(toPH[:]),
		Atom(c.devFeePH[:]),
		Uint(uint64(p.MaxBlockHeight)),
	)
	out := &Contract{Program: prog.Serialize(), PuzzleHash: prog.TreeHash()}
	c.cache.Set(key, out, 1)
	return out, nil
}

// ClaimSolution returns the serialized solution (secret) that spends a
// contract. Cancel tokens use the same shape.
func (c *Codec) ClaimSolution(secret string) []byte {
	return List(String(secret)).Serialize()
}

// ExtractSecret recovers the secret from a serialized claim solution.
func (c *Codec) ExtractSecret(solution []byte) (string, error) {
	v, err := Deserialize(solution)
	if err != nil {
		return "", err
	}
	items, err := v.ListItems()
	if err != nil {
		return "", err
	}
	if len(items) == 0 || items[0].IsPair() {
		return "", ErrEmptySolution
	}
	return string(items[0].AtomBytes()), nil
}

// Close releases the contract cache.
func (c *Codec) Close() {
	c.cache.Close()
}

// CoinID computes a coin's id: sha256(parent || puzzle_hash || amount).
func CoinID(parent, puzzleHash [32]byte, amount uint64) [32]byte {
	buf := make([]byte, 0, 72)
	buf = append(buf, parent[:]...)
	buf = append(buf, puzzleHash[:]...)
	buf = append(buf, UintBytes(amount)...)
	return sha256.Sum256(buf)
}
