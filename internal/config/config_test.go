package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	dir, err := os.MkdirTemp("", "config-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.API.Addr != "127.0.0.1:4143" {
		t.Errorf("API.Addr = %s, want 127.0.0.1:4143", cfg.API.Addr)
	}
	if cfg.Ethereum.RequiredConfirmations != DefaultEthConfirmations {
		t.Errorf("RequiredConfirmations = %d, want %d", cfg.Ethereum.RequiredConfirmations, DefaultEthConfirmations)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		t.Errorf("config file not written: %v", err)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	dir, err := os.MkdirTemp("", "config-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	data := []byte(`
api:
  addr: 0.0.0.0:9000
timing:
  deposit_poll: 2s
ethereum:
  required_confirmations: 40
  networks:
    - name: sepolia
      address: "0x628c677e7b8889e64564d3f381565a9e6656aade"
      token_addresses:
        USDC: "0xC8515f07b08b586a2Fd6A389585D9a182D03adFB"
`)
	if err := os.WriteFile(filepath.Join(dir, FileName), data, 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.API.Addr != "0.0.0.0:9000" {
		t.Errorf("API.Addr = %s, want 0.0.0.0:9000", cfg.API.Addr)
	}
	if cfg.Timing.DepositPoll != 2*time.Second {
		t.Errorf("DepositPoll = %v, want 2s", cfg.Timing.DepositPoll)
	}
	// Untouched values keep their defaults.
	if cfg.Timing.PushRetry != 5*time.Second {
		t.Errorf("PushRetry = %v, want 5s", cfg.Timing.PushRetry)
	}
	if cfg.Ethereum.RequiredConfirmations != 40 {
		t.Errorf("RequiredConfirmations = %d, want 40", cfg.Ethereum.RequiredConfirmations)
	}

	nets, err := cfg.EVMNetworks()
	if err != nil {
		t.Fatalf("EVMNetworks() error = %v", err)
	}
	n, err := nets.Lookup("sepolia")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if _, err := n.TokenAddress("USDC"); err != nil {
		t.Errorf("TokenAddress(USDC) error = %v", err)
	}
	if _, err := n.TokenAddress("DAI"); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("TokenAddress(DAI) error = %v, want ErrUnknownToken", err)
	}
	// Unknown networks fall back to the first one.
	if fb, _ := nets.Lookup("mainnet"); fb != n {
		t.Error("Lookup(unknown) should fall back to the first network")
	}
}

func TestValidateRejectsZeroConfirmations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ethereum.RequiredConfirmations = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject zero confirmations")
	}
}

func TestResolveNetworkInvalidAddress(t *testing.T) {
	_, err := NetworkConfig{Name: "x", Address: "not-an-address"}.Resolve()
	if !errors.Is(err, ErrInvalidContract) {
		t.Errorf("Resolve() error = %v, want ErrInvalidContract", err)
	}
	var empty Networks
	if _, err := empty.Lookup("x"); !errors.Is(err, ErrNoNetworks) {
		t.Errorf("Lookup() error = %v, want ErrNoNetworks", err)
	}
}

func TestLoadNetworksFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "config-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "networks.json")
	body := `{"networks":[{"name":"bsc","address":"0xC8515f07b08b586a2Fd6A389585D9a182D03adFB","token_addresses":{}}]}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	nets, err := LoadNetworksFile(path)
	if err != nil {
		t.Fatalf("LoadNetworksFile() error = %v", err)
	}
	if len(nets) != 1 || nets[0].Name != "bsc" {
		t.Errorf("LoadNetworksFile() = %+v", nets)
	}
}

func TestSeedCurrencies(t *testing.T) {
	seen := make(map[string]bool)
	for _, c := range SeedCurrencies {
		if seen[c.Prefix] {
			t.Errorf("duplicate prefix %s", c.Prefix)
		}
		seen[c.Prefix] = true
		if c.UnitsPerCoin == 0 || c.Port == 0 {
			t.Errorf("%s has incomplete profile", c.Prefix)
		}
	}
	if !seen["xch"] || len(SeedCurrencies) != 24 {
		t.Errorf("unexpected seed list: %d entries", len(SeedCurrencies))
	}

	xch := SeedCurrencies[0]
	want := filepath.Join("/home/u", ".chia", "mainnet", "config", "ssl")
	if got := xch.SSLDirectory("/home/u"); got != want {
		t.Errorf("SSLDirectory = %s, want %s", got, want)
	}
}
