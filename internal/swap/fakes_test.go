package swap

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/klingon-exchange/htlcswap/internal/backend"
	"github.com/klingon-exchange/htlcswap/internal/chain"
	"github.com/klingon-exchange/htlcswap/internal/clvm"
	"github.com/klingon-exchange/htlcswap/internal/config"
	"github.com/klingon-exchange/htlcswap/internal/storage"
	"github.com/klingon-exchange/htlcswap/pkg/helpers"
	"github.com/klingon-exchange/htlcswap/pkg/logging"
)

const testDevFeeAddress = "xch1k6mv3caj73akwp0ygpqhjpat20mu3akc3f6xdrc5ahcqkynl7ejq2z74n3"

func testTiming() config.TimingConfig {
	return config.TimingConfig{
		DepositGrace:     time.Millisecond,
		DepositPoll:      time.Millisecond,
		ConfirmationPoll: time.Millisecond,
		StepSettle:       time.Millisecond,
		SolutionPoll:     time.Millisecond,
		SolutionRefetch:  time.Millisecond,
		PushRetry:        time.Millisecond,
		PendingResubmit:  time.Millisecond,
		SyncRetry:        time.Millisecond,
		StoreRetry:       time.Millisecond,
		EthResponsePoll:  time.Millisecond,
	}
}

func quietLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "error", Output: io.Discard})
}

type pushed struct {
	puzzle   []byte
	solution []byte
	coin     backend.Coin
}

// fakeChain is an in-memory node whose height grows by one on every
// height query.
type fakeChain struct {
	mu        sync.Mutex
	height    uint32
	coins     map[[32]byte]*backend.CoinRecord
	solutions map[[32]byte][]byte
	pushes    []pushed
	calls     int
	attempts  int

	// pushResults is consumed one status per push of an unspent coin.
	// Only an accepted push spends the coin. An empty queue accepts.
	pushResults []backend.PushStatus
	// nodeErrors is the number of coin record queries that fail before
	// the node answers again.
	nodeErrors int
}

func newFakeChain(height uint32) *fakeChain {
	return &fakeChain{
		height:    height,
		coins:     make(map[[32]byte]*backend.CoinRecord),
		solutions: make(map[[32]byte][]byte),
	}
}

func (c *fakeChain) BlockchainState(ctx context.Context) (*backend.BlockchainState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return &backend.BlockchainState{Synced: true, Height: c.height}, nil
}

func (c *fakeChain) Height(ctx context.Context) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.height++
	return c.height, nil
}

func (c *fakeChain) CoinRecord(ctx context.Context, ph [32]byte, start uint32, includeSpent bool) (*backend.CoinRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.nodeErrors > 0 {
		c.nodeErrors--
		return nil, &backend.RejectionError{Endpoint: "get_coin_records_by_puzzle_hash", Message: "internal error"}
	}
	rec, ok := c.coins[ph]
	if !ok || rec.ConfirmedBlockIndex < start || (rec.Spent && !includeSpent) {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (c *fakeChain) CoinSolution(ctx context.Context, coinID [32]byte, height uint32) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.solutions[coinID], nil
}

func (c *fakeChain) PushTransaction(ctx context.Context, puzzle, solution []byte, coin backend.Coin) (backend.PushStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	ph, err := helpers.DecodeBytes32(coin.PuzzleHash)
	if err != nil {
		return backend.PushRejected, err
	}
	rec, ok := c.coins[ph]
	if !ok || rec.Spent {
		return backend.PushRejected, nil
	}
	c.attempts++
	if len(c.pushResults) > 0 {
		status := c.pushResults[0]
		c.pushResults = c.pushResults[1:]
		if status != backend.PushAccepted {
			return status, nil
		}
	}
	c.spendLocked(rec, solution)
	c.pushes = append(c.pushes, pushed{puzzle: puzzle, solution: solution, coin: coin})
	return backend.PushAccepted, nil
}

func (c *fakeChain) spendLocked(rec *backend.CoinRecord, solution []byte) {
	rec.Spent = true
	rec.SpentBlockIndex = c.height
	id, _ := rec.Coin.ID()
	c.solutions[id] = solution
}

// deposit creates an unspent coin at the current height.
func (c *fakeChain) deposit(ph [32]byte, amount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	parent := sha256.Sum256(ph[:])
	c.coins[ph] = &backend.CoinRecord{
		Coin: backend.Coin{
			ParentCoinInfo: helpers.Hex0x(parent[:]),
			PuzzleHash:     helpers.Hex0x(ph[:]),
			Amount:         amount,
		},
		ConfirmedBlockIndex: c.height,
	}
}

// spend marks the coin at ph as spent by someone else.
func (c *fakeChain) spend(ph [32]byte, solution []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.coins[ph]; ok {
		c.spendLocked(rec, solution)
	}
}

func (c *fakeChain) lastPush() (pushed, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pushes) == 0 {
		return pushed{}, false
	}
	return c.pushes[len(c.pushes)-1], true
}

// scriptPushes queues the statuses returned by the next pushes.
func (c *fakeChain) scriptPushes(statuses ...backend.PushStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushResults = append(c.pushResults, statuses...)
}

func (c *fakeChain) failCoinRecords(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodeErrors = n
}

func (c *fakeChain) pushAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *fakeChain) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

var _ backend.Gateway = (*fakeChain)(nil)

type fakeGateways map[string]*fakeChain

func (g fakeGateways) Gateway(prefix string) (*storage.Currency, backend.Gateway, error) {
	c, ok := g[prefix]
	if !ok {
		return nil, nil, fmt.Errorf("currency %s: %w", prefix, storage.ErrCurrencyNotFound)
	}
	return &storage.Currency{
		AddressPrefix: prefix,
		Name:          prefix + "coin",
		UnitsPerCoin:  1000000000000,
	}, c, nil
}

type fakeStore struct {
	mu     sync.Mutex
	trades map[string]*storage.Trade
	eth    map[string]*storage.EthTrade
	steps  map[string][]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		trades: make(map[string]*storage.Trade),
		eth:    make(map[string]*storage.EthTrade),
		steps:  make(map[string][]int),
	}
}

func (s *fakeStore) GetTrade(id string) (*storage.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return nil, storage.ErrTradeNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *fakeStore) UpdateTradeStep(id string, step int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return storage.ErrTradeNotFound
	}
	t.Step = step
	s.steps[id] = append(s.steps[id], step)
	return nil
}

func (s *fakeStore) GetEthTrade(id string) (*storage.EthTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.eth[id]
	if !ok {
		return nil, storage.ErrEthTradeNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *fakeStore) UpdateEthTradeStep(id string, step int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.eth[id]
	if !ok {
		return storage.ErrEthTradeNotFound
	}
	t.Step = step
	s.steps[id] = append(s.steps[id], step)
	return nil
}

func (s *fakeStore) putTrade(t *storage.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[t.ID] = t
}

func (s *fakeStore) putEthTrade(t *storage.EthTrade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eth[t.ID] = t
}

// step returns the persisted step of a trade of either kind.
func (s *fakeStore) step(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.trades[id]; ok {
		return t.Step
	}
	if t, ok := s.eth[id]; ok {
		return t.Step
	}
	return -1
}

func (s *fakeStore) history(id string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.steps[id]...)
}

// harness holds a codec, two fake chains and a store.
type harness struct {
	t          *testing.T
	codec      *clvm.Codec
	store      *fakeStore
	chains     fakeGateways
	secret     string
	secretHash string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mod := clvm.List(clvm.Atom([]byte{0x01}), clvm.String("swap")).Serialize()
	codec, err := clvm.NewCodec(mod, testDevFeeAddress)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	t.Cleanup(codec.Close)

	secret := "correct horse battery staple"
	hash := sha256.Sum256([]byte(secret))
	return &harness{
		t:     t,
		codec: codec,
		store: newFakeStore(),
		chains: fakeGateways{
			"xch": newFakeChain(100),
			"xfx": newFakeChain(5000),
		},
		secret:     secret,
		secretHash: helpers.Hex0x(hash[:]),
	}
}

func testAddress(t *testing.T, b byte, prefix string) string {
	t.Helper()
	var ph [32]byte
	for i := range ph {
		ph[i] = b
	}
	addr, err := chain.EncodePuzzleHash(ph, prefix)
	if err != nil {
		t.Fatalf("EncodePuzzleHash() error = %v", err)
	}
	return addr
}

func (h *harness) leg(prefix string, total, fee uint64, maxBlockHeight, minConf uint32) *storage.TradeCurrency {
	return &storage.TradeCurrency{
		ID:                    prefix + "-terms",
		AddressPrefix:         prefix,
		Fee:                   fee,
		MaxBlockHeight:        maxBlockHeight,
		MinConfirmationHeight: minConf,
		FromAddress:           testAddress(h.t, 0x0a, prefix),
		ToAddress:             testAddress(h.t, 0x0b, prefix),
		TotalAmount:           total,
	}
}

func (h *harness) contract(tc *storage.TradeCurrency) *clvm.Contract {
	h.t.Helper()
	c, err := h.codec.DeriveContract(clvm.ContractParams{
		SecretHash:     h.secretHash,
		TotalAmount:    tc.TotalAmount,
		Fee:            tc.Fee,
		FromAddress:    tc.FromAddress,
		ToAddress:      tc.ToAddress,
		MaxBlockHeight: tc.MaxBlockHeight,
	})
	if err != nil {
		h.t.Fatalf("DeriveContract() error = %v", err)
	}
	return c
}

func (h *harness) deposit(tc *storage.TradeCurrency, amount uint64) {
	h.chains[tc.AddressPrefix].deposit(h.contract(tc).PuzzleHash, amount)
}

func (h *harness) runner(id string, kind Kind) *legRunner {
	return &legRunner{
		gateways: h.chains,
		codec:    h.codec,
		timing:   testTiming(),
		state:    newRunState(id, kind, nil),
		log:      quietLogger(),
	}
}

func (h *harness) tradeRun(id string) *tradeRun {
	return &tradeRun{legRunner: h.runner(id, KindTrade), store: h.store, tradeID: id}
}

func (h *harness) registry(eth EthSettings) *Registry {
	r := NewRegistry(RegistryConfig{
		Store:       h.store,
		Gateways:    h.chains,
		Codec:       h.codec,
		Timing:      testTiming(),
		Ethereum:    eth,
		TradeLogDir: h.t.TempDir(),
		Logger:      quietLogger(),
	})
	h.t.Cleanup(func() { r.Close() })
	return r
}

func (h *harness) pushedSecret(prefix string) (string, bool) {
	h.t.Helper()
	p, ok := h.chains[prefix].lastPush()
	if !ok {
		return "", false
	}
	secret, err := h.codec.ExtractSecret(p.solution)
	if err != nil {
		h.t.Fatalf("ExtractSecret() error = %v", err)
	}
	return secret, true
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
