// Package swap - Collaborators consumed by the trade engine.
package swap

import (
	"context"
	"fmt"

	"github.com/klingon-exchange/htlcswap/internal/backend"
	"github.com/klingon-exchange/htlcswap/internal/clvm"
	"github.com/klingon-exchange/htlcswap/internal/config"
	"github.com/klingon-exchange/htlcswap/internal/storage"
)

// Store is the part of the trade record store the engine reads and writes.
// Step is the only field the engine ever changes.
type Store interface {
	GetTrade(id string) (*storage.Trade, error)
	UpdateTradeStep(id string, step int) error
	GetEthTrade(id string) (*storage.EthTrade, error)
	UpdateEthTradeStep(id string, step int) error
}

// Codec derives leg contracts and their solutions.
type Codec interface {
	DeriveContract(p clvm.ContractParams) (*clvm.Contract, error)
	ClaimSolution(secret string) []byte
	ExtractSecret(solution []byte) (string, error)
}

// Gateways resolves a currency prefix to its profile and chain gateway.
type Gateways interface {
	Gateway(prefix string) (*storage.Currency, backend.Gateway, error)
}

// CurrencyStore reads currency profiles.
type CurrencyStore interface {
	GetCurrency(prefix string) (*storage.Currency, error)
}

// CurrencyGateways builds gateways from stored currency profiles. Editing a
// currency's endpoint takes effect on the next lookup.
type CurrencyGateways struct {
	Currencies CurrencyStore
	Backends   *backend.Registry
}

// Gateway implements Gateways.
func (g *CurrencyGateways) Gateway(prefix string) (*storage.Currency, backend.Gateway, error) {
	cur, err := g.Currencies.GetCurrency(prefix)
	if err != nil {
		return nil, nil, fmt.Errorf("currency %s: %w", prefix, err)
	}
	gw, err := g.Backends.For(backend.Endpoint{
		Prefix:       cur.AddressPrefix,
		Host:         cur.Host,
		Port:         cur.Port,
		SSLDirectory: config.ExpandPath(cur.SSLDirectory),
	})
	if err != nil {
		return nil, nil, err
	}
	return cur, gw, nil
}

// ConfirmationSource reports the depth of an EVM transaction.
type ConfirmationSource interface {
	Confirmations(ctx context.Context, txHash string) (uint64, error)
}

// WatcherFunc returns a confirmation source for a network, or nil when the
// network cannot be watched from the daemon.
type WatcherFunc func(ctx context.Context, network *config.Network) (ConfirmationSource, error)

// EthSettings configures EVM-paired trades.
type EthSettings struct {
	Networks              config.Networks
	RequiredConfirmations uint64
	MaxBlockHeight        uint64
	Watchers              WatcherFunc
}
