// Package backend provides the chain gateway used by the trade engine: a
// client for Chia-family full node RPC, one per currency.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/klingon-exchange/htlcswap/internal/clvm"
	"github.com/klingon-exchange/htlcswap/pkg/helpers"
)

// Common errors
var (
	ErrNotSynced      = errors.New("full node is not synced")
	ErrNodeError      = errors.New("full node returned an error")
	ErrUnknownChain   = errors.New("no gateway for currency")
	ErrBadCertificate = errors.New("failed to load full node certificate")
)

// PushStatus is the outcome of submitting a spend.
type PushStatus int

const (
	PushRejected PushStatus = iota
	PushAccepted
	PushPending
)

func (s PushStatus) String() string {
	switch s {
	case PushAccepted:
		return "accepted"
	case PushPending:
		return "pending"
	default:
		return "rejected"
	}
}

// Coin identifies an on-chain coin. Hex fields keep the node's 0x form so
// they can be echoed back unchanged when pushing a spend.
type Coin struct {
	ParentCoinInfo string `json:"parent_coin_info"`
	PuzzleHash     string `json:"puzzle_hash"`
	Amount         uint64 `json:"amount"`
}

// ID computes the coin id.
func (c Coin) ID() ([32]byte, error) {
	parent, err := helpers.DecodeBytes32(c.ParentCoinInfo)
	if err != nil {
		return [32]byte{}, fmt.Errorf("parent coin info: %w", err)
	}
	ph, err := helpers.DecodeBytes32(c.PuzzleHash)
	if err != nil {
		return [32]byte{}, fmt.Errorf("puzzle hash: %w", err)
	}
	return clvm.CoinID(parent, ph, c.Amount), nil
}

// CoinRecord is the node's view of a coin.
type CoinRecord struct {
	Coin                Coin   `json:"coin"`
	Coinbase            bool   `json:"coinbase"`
	ConfirmedBlockIndex uint32 `json:"confirmed_block_index"`
	Spent               bool   `json:"spent"`
	SpentBlockIndex     uint32 `json:"spent_block_index"`
	Timestamp           uint64 `json:"timestamp"`
}

// BlockchainState is the subset of get_blockchain_state the engine reads.
type BlockchainState struct {
	Synced bool
	Height uint32
}

// Gateway is a chain client for one currency. Implementations must be safe
// for concurrent use.
type Gateway interface {
	BlockchainState(ctx context.Context) (*BlockchainState, error)

	// Height returns the peak height, or ErrNotSynced while the node is
	// syncing or reports height 0.
	Height(ctx context.Context) (uint32, error)

	// CoinRecord returns the first coin at puzzleHash confirmed at or after
	// start, or nil if there is none.
	CoinRecord(ctx context.Context, puzzleHash [32]byte, start uint32, includeSpent bool) (*CoinRecord, error)

	// CoinSolution returns the serialized solution a coin was spent with.
	// A node that does not know the spend yet returns nil or an error
	// matching ErrNodeError.
	CoinSolution(ctx context.Context, coinID [32]byte, height uint32) ([]byte, error)

	PushTransaction(ctx context.Context, puzzle, solution []byte, coin Coin) (PushStatus, error)
}

// Endpoint locates a currency's full node RPC.
type Endpoint struct {
	Prefix       string
	Host         string
	Port         int
	SSLDirectory string
}

// Factory builds a gateway for an endpoint.
type Factory func(Endpoint) (Gateway, error)

// Registry holds one gateway per currency prefix, rebuilding it when the
// currency's endpoint changes.
type Registry struct {
	mu       sync.Mutex
	factory  Factory
	gateways map[string]registered
}

type registered struct {
	ep Endpoint
	gw Gateway
}

// NewRegistry creates a registry that builds gateways with factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory:  factory,
		gateways: make(map[string]registered),
	}
}

// For returns the gateway for ep, creating it on first use.
func (r *Registry) For(ep Endpoint) (Gateway, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reg, ok := r.gateways[ep.Prefix]; ok && reg.ep == ep {
		return reg.gw, nil
	}
	if r.factory == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, ep.Prefix)
	}
	gw, err := r.factory(ep)
	if err != nil {
		return nil, err
	}
	r.gateways[ep.Prefix] = registered{ep: ep, gw: gw}
	return gw, nil
}
