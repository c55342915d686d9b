package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klingon-exchange/htlcswap/internal/config"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "htlcswap-storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testTrade(id string) *Trade {
	return &Trade{
		ID: id,
		TradeCurrencyOne: &TradeCurrency{
			ID:                    id + "-1",
			AddressPrefix:         "xch",
			Fee:                   1000,
			MaxBlockHeight:        192,
			MinConfirmationHeight: 32,
			FromAddress:           "xch1from",
			ToAddress:             "xch1to",
			TotalAmount:           1000001000,
		},
		TradeCurrencyTwo: &TradeCurrency{
			ID:                    id + "-2",
			AddressPrefix:         "xfx",
			Fee:                   10,
			MaxBlockHeight:        96,
			MinConfirmationHeight: 16,
			FromAddress:           "xfx1from",
			ToAddress:             "xfx1to",
			TotalAmount:           510,
		},
		SecretHash: "ab",
		IsBuyer:    true,
		Secret:     "s3cret",
	}
}

func TestNew(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "htlcswap-storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	store, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	dbPath := filepath.Join(tmpDir, DBFileName)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if store.Path() != dbPath {
		t.Errorf("Path() = %s, want %s", store.Path(), dbPath)
	}

	for _, table := range []string{"currencies", "trade_currencies", "trades", "eth_trades"} {
		var name string
		err := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("%s table not found: %v", table, err)
		}
	}
}

func TestCurrencyCRUD(t *testing.T) {
	store := newTestStorage(t)

	c := &Currency{
		AddressPrefix:                "xch",
		Name:                         "Chia",
		UnitsPerCoin:                 1000000000000,
		MinFee:                       1,
		DefaultMaxBlockHeight:        192,
		DefaultMinConfirmationHeight: 32,
		Host:                         "localhost",
		Port:                         8555,
		SSLDirectory:                 "/tmp/ssl",
	}
	if err := store.PutCurrency(c); err != nil {
		t.Fatalf("PutCurrency() error = %v", err)
	}

	got, err := store.GetCurrency("xch")
	if err != nil {
		t.Fatalf("GetCurrency() error = %v", err)
	}
	if *got != *c {
		t.Errorf("GetCurrency() = %+v, want %+v", got, c)
	}

	c.Port = 9000
	if err := store.PutCurrency(c); err != nil {
		t.Fatalf("PutCurrency() overwrite error = %v", err)
	}
	got, _ = store.GetCurrency("xch")
	if got.Port != 9000 {
		t.Errorf("Port = %d, want 9000", got.Port)
	}

	if err := store.DeleteCurrency("xch"); err != nil {
		t.Fatalf("DeleteCurrency() error = %v", err)
	}
	if _, err := store.GetCurrency("xch"); !errors.Is(err, ErrCurrencyNotFound) {
		t.Errorf("GetCurrency() after delete error = %v, want ErrCurrencyNotFound", err)
	}
	if err := store.DeleteCurrency("xch"); err != nil {
		t.Errorf("DeleteCurrency() of missing prefix error = %v", err)
	}
}

func TestSeedCurrencies(t *testing.T) {
	store := newTestStorage(t)

	if err := store.PutCurrency(&Currency{AddressPrefix: "xch", Name: "Custom", Port: 1}); err != nil {
		t.Fatalf("PutCurrency() error = %v", err)
	}

	added, err := store.SeedCurrencies(config.SeedCurrencies, "/home/test")
	if err != nil {
		t.Fatalf("SeedCurrencies() error = %v", err)
	}
	if added != len(config.SeedCurrencies)-1 {
		t.Errorf("added = %d, want %d", added, len(config.SeedCurrencies)-1)
	}

	xch, _ := store.GetCurrency("xch")
	if xch.Name != "Custom" {
		t.Errorf("seeding overwrote existing currency: %+v", xch)
	}

	list, err := store.ListCurrencies()
	if err != nil {
		t.Fatalf("ListCurrencies() error = %v", err)
	}
	if len(list) != len(config.SeedCurrencies) {
		t.Errorf("len(ListCurrencies()) = %d, want %d", len(list), len(config.SeedCurrencies))
	}

	again, _ := store.SeedCurrencies(config.SeedCurrencies, "/home/test")
	if again != 0 {
		t.Errorf("second seed added %d, want 0", again)
	}
}

func TestTradeCRUD(t *testing.T) {
	store := newTestStorage(t)

	tr := testTrade("t1")
	if err := store.PutTrade(tr); err != nil {
		t.Fatalf("PutTrade() error = %v", err)
	}

	got, err := store.GetTrade("t1")
	if err != nil {
		t.Fatalf("GetTrade() error = %v", err)
	}
	if *got.TradeCurrencyOne != *tr.TradeCurrencyOne || *got.TradeCurrencyTwo != *tr.TradeCurrencyTwo {
		t.Errorf("legs mismatch: got %+v / %+v", got.TradeCurrencyOne, got.TradeCurrencyTwo)
	}
	if got.SecretHash != "ab" || !got.IsBuyer || got.Secret != "s3cret" || got.Step != 0 {
		t.Errorf("GetTrade() = %+v", got)
	}

	if err := store.UpdateTradeStep("t1", 2); err != nil {
		t.Fatalf("UpdateTradeStep() error = %v", err)
	}
	got, _ = store.GetTrade("t1")
	if got.Step != 2 {
		t.Errorf("Step = %d, want 2", got.Step)
	}

	if err := store.UpdateTradeStep("missing", 1); !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("UpdateTradeStep(missing) error = %v, want ErrTradeNotFound", err)
	}

	if err := store.PutTrade(testTrade("t2")); err != nil {
		t.Fatalf("PutTrade() error = %v", err)
	}
	list, err := store.ListTrades()
	if err != nil {
		t.Fatalf("ListTrades() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != "t1" || list[1].ID != "t2" {
		t.Errorf("ListTrades() returned %d trades", len(list))
	}

	if err := store.DeleteTrade("t1"); err != nil {
		t.Fatalf("DeleteTrade() error = %v", err)
	}
	if _, err := store.GetTrade("t1"); !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("GetTrade() after delete error = %v, want ErrTradeNotFound", err)
	}
	// Legs outlive the trade.
	if _, err := store.GetTradeCurrency("t1-1"); err != nil {
		t.Errorf("GetTradeCurrency() after trade delete error = %v", err)
	}
}

func TestPutTradeOverwrites(t *testing.T) {
	store := newTestStorage(t)

	tr := testTrade("t1")
	store.PutTrade(tr)

	tr.TradeCurrencyOne.TotalAmount = 42
	tr.Step = 1
	if err := store.PutTrade(tr); err != nil {
		t.Fatalf("PutTrade() overwrite error = %v", err)
	}
	got, _ := store.GetTrade("t1")
	if got.TradeCurrencyOne.TotalAmount != 42 || got.Step != 1 {
		t.Errorf("overwrite not applied: %+v", got.TradeCurrencyOne)
	}
}

func TestTradeCurrencyNetAmount(t *testing.T) {
	tests := []struct {
		total, fee, want uint64
	}{
		{1000, 10, 990},
		{10, 10, 0},
		{5, 10, 0},
	}
	for _, tt := range tests {
		tc := &TradeCurrency{TotalAmount: tt.total, Fee: tt.fee}
		if got := tc.NetAmount(); got != tt.want {
			t.Errorf("NetAmount(%d, %d) = %d, want %d", tt.total, tt.fee, got, tt.want)
		}
	}
}

func TestEthTradeCRUD(t *testing.T) {
	store := newTestStorage(t)

	et := &EthTrade{
		ID:             "e1",
		TradeCurrency:  testTrade("e1").TradeCurrencyOne,
		EthFromAddress: "0x1111111111111111111111111111111111111111",
		EthToAddress:   "0x2222222222222222222222222222222222222222",
		TotalGwei:      "123456789012345678901234567890",
		SecretHash:     "cd",
		IsBuyer:        false,
		Network:        "sepolia",
		Token:          "USDC",
	}
	if err := store.PutEthTrade(et); err != nil {
		t.Fatalf("PutEthTrade() error = %v", err)
	}

	got, err := store.GetEthTrade("e1")
	if err != nil {
		t.Fatalf("GetEthTrade() error = %v", err)
	}
	if got.TotalGwei != et.TotalGwei {
		t.Errorf("TotalGwei = %s, want %s", got.TotalGwei, et.TotalGwei)
	}
	if got.Network != "sepolia" || got.Token != "USDC" || got.IsBuyer {
		t.Errorf("GetEthTrade() = %+v", got)
	}
	if *got.TradeCurrency != *et.TradeCurrency {
		t.Errorf("TradeCurrency = %+v, want %+v", got.TradeCurrency, et.TradeCurrency)
	}

	if err := store.UpdateEthTradeStep("e1", 4); err != nil {
		t.Fatalf("UpdateEthTradeStep() error = %v", err)
	}
	list, err := store.ListEthTrades()
	if err != nil {
		t.Fatalf("ListEthTrades() error = %v", err)
	}
	if len(list) != 1 || list[0].Step != 4 {
		t.Errorf("ListEthTrades() = %+v", list)
	}

	if err := store.DeleteEthTrade("e1"); err != nil {
		t.Fatalf("DeleteEthTrade() error = %v", err)
	}
	if _, err := store.GetEthTrade("e1"); !errors.Is(err, ErrEthTradeNotFound) {
		t.Errorf("GetEthTrade() after delete error = %v, want ErrEthTradeNotFound", err)
	}
	if err := store.UpdateEthTradeStep("e1", 1); !errors.Is(err, ErrEthTradeNotFound) {
		t.Errorf("UpdateEthTradeStep(missing) error = %v, want ErrEthTradeNotFound", err)
	}
}
