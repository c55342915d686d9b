package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrTxFailed is returned for a mined transaction that reverted.
var ErrTxFailed = errors.New("transaction reverted")

// ChainReader is the part of ethclient.Client the watcher uses.
type ChainReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Watcher reads transaction depth from an EVM node.
type Watcher struct {
	reader ChainReader
	closer func()
}

// Dial connects a Watcher to a JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*Watcher, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return &Watcher{reader: client, closer: client.Close}, nil
}

// NewWatcher wraps an existing reader.
func NewWatcher(reader ChainReader) *Watcher {
	return &Watcher{reader: reader}
}

// Confirmations returns how many blocks include txHash, counting its own
// block. A transaction that is not mined yet has zero confirmations.
func (w *Watcher) Confirmations(ctx context.Context, txHash string) (uint64, error) {
	if len(common.FromHex(txHash)) != common.HashLength {
		return 0, fmt.Errorf("invalid transaction hash %q", txHash)
	}
	receipt, err := w.reader.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return 0, nil
		}
		return 0, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return 0, fmt.Errorf("%w: %s", ErrTxFailed, txHash)
	}
	head, err := w.reader.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	mined := receipt.BlockNumber
	if mined == nil || mined.Cmp(new(big.Int).SetUint64(head)) > 0 {
		return 0, nil
	}
	return head - mined.Uint64() + 1, nil
}

// Close releases the RPC connection.
func (w *Watcher) Close() {
	if w.closer != nil {
		w.closer()
	}
}
