package evm

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	testContract = common.HexToAddress("0x628c677e7b8889e64564d3f381565a9e6656aade")
	testToken    = common.HexToAddress("0xC8515f07b08b586a2Fd6A389585D9a182D03adFB")
	testHash     = "0x" + strings.Repeat("ab", 32)
)

func testParams(t *testing.T) *SwapParams {
	t.Helper()
	p, err := NewSwapParams(testContract, testToken,
		"0x1111111111111111111111111111111111111111",
		"0x2222222222222222222222222222222222222222",
		"1000000000000000000", testHash, 256)
	if err != nil {
		t.Fatalf("NewSwapParams() error = %v", err)
	}
	return p
}

func TestNewSwapParamsValidation(t *testing.T) {
	good := "0x1111111111111111111111111111111111111111"
	tests := []struct {
		name     string
		from, to string
		amount   string
		hash     string
		wantErr  error
	}{
		{"bad from", "0x123", good, "1", testHash, ErrInvalidAddress},
		{"bad to", good, "not-an-address", "1", testHash, ErrInvalidAddress},
		{"zero amount", good, good, "0", testHash, ErrInvalidAmount},
		{"fractional amount", good, good, "1.5", testHash, ErrInvalidAmount},
		{"short hash", good, good, "1", "0xab", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSwapParams(testContract, common.Address{}, tt.from, tt.to, tt.amount, tt.hash, 256)
			if err == nil {
				t.Fatal("NewSwapParams() error = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("NewSwapParams() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSwapIDDeterministic(t *testing.T) {
	a := testParams(t)
	b := testParams(t)
	if a.SwapID() != b.SwapID() {
		t.Error("SwapID differs for identical params")
	}

	b.Amount = new(big.Int).Add(b.Amount, big.NewInt(1))
	if a.SwapID() == b.SwapID() {
		t.Error("SwapID unchanged after amount change")
	}

	c := testParams(t)
	c.MaxBlockHeight++
	if a.SwapID() == c.SwapID() {
		t.Error("SwapID unchanged after timeout change")
	}
}

func TestCommands(t *testing.T) {
	p := testParams(t)
	id := HexID(p.SwapID())

	create := CreateSwap(p)
	if create.Code != CodeCreateSwap {
		t.Errorf("Code = %s, want %s", create.Code, CodeCreateSwap)
	}
	if create.Args["swap_id"] != id || create.Args["amount"] != "1000000000000000000" {
		t.Errorf("CreateSwap args = %v", create.Args)
	}
	if create.Args["max_block_height"] != "256" {
		t.Errorf("max_block_height = %s, want 256", create.Args["max_block_height"])
	}

	watch := WatchSwap(p, 7)
	if watch.Args["required_confirmations"] != "7" || watch.Args["swap_id"] != id {
		t.Errorf("WatchSwap args = %v", watch.Args)
	}

	claim := ClaimSwap(p, "s3cret")
	if claim.Code != CodeClaimSwap || claim.Args["secret"] != "s3cret" {
		t.Errorf("ClaimSwap = %+v", claim)
	}

	cancel := CancelSwap(p)
	if _, ok := cancel.Args["secret"]; ok {
		t.Error("CancelSwap carries a secret")
	}

	if p.IsNativeToken() {
		t.Error("IsNativeToken() = true for a token swap")
	}
	if NoCommand().Code != CodeNone {
		t.Errorf("NoCommand().Code = %s", NoCommand().Code)
	}
}

type fakeReader struct {
	receipt *types.Receipt
	err     error
	head    uint64
}

func (f *fakeReader) TransactionReceipt(ctx context.Context, h common.Hash) (*types.Receipt, error) {
	return f.receipt, f.err
}

func (f *fakeReader) BlockNumber(ctx context.Context) (uint64, error) {
	return f.head, nil
}

func TestWatcherConfirmations(t *testing.T) {
	tx := "0x" + strings.Repeat("01", 32)
	ok := types.ReceiptStatusSuccessful

	tests := []struct {
		name    string
		reader  *fakeReader
		want    uint64
		wantErr error
	}{
		{"mined", &fakeReader{receipt: &types.Receipt{Status: ok, BlockNumber: big.NewInt(100)}, head: 106}, 7, nil},
		{"same block", &fakeReader{receipt: &types.Receipt{Status: ok, BlockNumber: big.NewInt(100)}, head: 100}, 1, nil},
		{"pending", &fakeReader{err: ethereum.NotFound}, 0, nil},
		{"reverted", &fakeReader{receipt: &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(1)}, head: 5}, 0, ErrTxFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewWatcher(tt.reader).Confirmations(context.Background(), tx)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Confirmations() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Confirmations() = %d, want %d", got, tt.want)
			}
		})
	}

	if _, err := NewWatcher(&fakeReader{}).Confirmations(context.Background(), "0x12"); err == nil {
		t.Error("Confirmations() accepted a short hash")
	}
}

func TestPool(t *testing.T) {
	dials := 0
	closed := 0
	pool := NewPool(func(ctx context.Context, rpcURL string) (*Watcher, error) {
		dials++
		if rpcURL == "http://down" {
			return nil, errors.New("connection refused")
		}
		return &Watcher{reader: &fakeReader{}, closer: func() { closed++ }}, nil
	})
	ctx := context.Background()

	a, err := pool.Get(ctx, "http://a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	again, _ := pool.Get(ctx, "http://a")
	if a != again {
		t.Error("Get() should reuse the watcher for the same endpoint")
	}
	if _, err := pool.Get(ctx, "http://b"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := pool.Get(ctx, "http://down"); err == nil {
		t.Error("Get() should fail for an unreachable endpoint")
	}
	if _, err := pool.Get(ctx, "http://down"); err == nil {
		t.Error("Get() should retry the failed endpoint and fail again")
	}
	if dials != 4 {
		t.Errorf("dials = %d, want 4", dials)
	}
	if pool.Len() != 2 {
		t.Errorf("Len() = %d, want 2", pool.Len())
	}

	pool.Close()
	if closed != 2 {
		t.Errorf("closed = %d, want 2", closed)
	}
	if _, err := pool.Get(ctx, "http://a"); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Get() after Close error = %v, want ErrPoolClosed", err)
	}
}
