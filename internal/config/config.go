package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the default config file name inside the data directory.
const FileName = "config.yaml"

// DefaultDevFeeAddress receives the contract's service fee output.
const DefaultDevFeeAddress = "xch1k6mv3caj73akwp0ygpqhjpat20mu3akc3f6xdrc5ahcqkynl7ejq2z74n3"

// Config holds all daemon configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	Contract ContractConfig `yaml:"contract"`
	Timing   TimingConfig   `yaml:"timing"`
	Backend  BackendConfig  `yaml:"backend"`
	Ethereum EthereumConfig `yaml:"ethereum"`
}

// APIConfig holds the listen address of the JSON-RPC / WebSocket server.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory for the database and trade logs.
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`

	// TradeLogDir holds one append-only log per trade. Relative paths are
	// resolved against the data directory.
	TradeLogDir string `yaml:"trade_log_dir"`
}

// ContractConfig locates the compiled swap contract.
type ContractConfig struct {
	// ProgramFile contains the serialized contract module as hex.
	ProgramFile   string `yaml:"program_file"`
	DevFeeAddress string `yaml:"dev_fee_address"`
}

// TimingConfig holds every fixed delay used by the trade engine.
type TimingConfig struct {
	DepositGrace     time.Duration `yaml:"deposit_grace"`
	DepositPoll      time.Duration `yaml:"deposit_poll"`
	ConfirmationPoll time.Duration `yaml:"confirmation_poll"`
	StepSettle       time.Duration `yaml:"step_settle"`
	SolutionPoll     time.Duration `yaml:"solution_poll"`
	SolutionRefetch  time.Duration `yaml:"solution_refetch"`
	PushRetry        time.Duration `yaml:"push_retry"`
	PendingResubmit  time.Duration `yaml:"pending_resubmit"`
	SyncRetry        time.Duration `yaml:"sync_retry"`
	StoreRetry       time.Duration `yaml:"store_retry"`
	EthResponsePoll  time.Duration `yaml:"eth_response_poll"`
}

// BackendConfig tunes the full node clients.
type BackendConfig struct {
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RequestsPerSecond int           `yaml:"requests_per_second"`

	// BreakerMinRequests and BreakerFailureRatio decide when a node is
	// considered down and requests short-circuit.
	BreakerMinRequests  uint32        `yaml:"breaker_min_requests"`
	BreakerFailureRatio float64       `yaml:"breaker_failure_ratio"`
	BreakerOpenTimeout  time.Duration `yaml:"breaker_open_timeout"`
}

// EthereumConfig holds EVM leg settings.
type EthereumConfig struct {
	RequiredConfirmations uint64          `yaml:"required_confirmations"`
	MaxBlockHeight        uint64          `yaml:"max_block_height"`
	NetworksFile          string          `yaml:"networks_file,omitempty"`
	Networks              []NetworkConfig `yaml:"networks,omitempty"`
}

// DefaultConfig returns a Config with the engine's standard delays.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Addr: "127.0.0.1:4143",
		},
		Storage: StorageConfig{
			DataDir: "~/.htlcswap",
		},
		Logging: LoggingConfig{
			Level:       "info",
			TradeLogDir: "trade-logs",
		},
		Contract: ContractConfig{
			ProgramFile:   "contract.clvm.hex",
			DevFeeAddress: DefaultDevFeeAddress,
		},
		Timing: DefaultTiming(),
		Backend: BackendConfig{
			RequestTimeout:      30 * time.Second,
			RequestsPerSecond:   10,
			BreakerMinRequests:  20,
			BreakerFailureRatio: 0.7,
			BreakerOpenTimeout:  60 * time.Second,
		},
		Ethereum: EthereumConfig{
			RequiredConfirmations: DefaultEthConfirmations,
			MaxBlockHeight:        EthMaxBlockHeight,
		},
	}
}

// DefaultTiming returns the production delays.
func DefaultTiming() TimingConfig {
	return TimingConfig{
		DepositGrace:     120 * time.Second,
		DepositPoll:      60 * time.Second,
		ConfirmationPoll: 10 * time.Second,
		StepSettle:       5 * time.Second,
		SolutionPoll:     15 * time.Second,
		SolutionRefetch:  30 * time.Second,
		PushRetry:        5 * time.Second,
		PendingResubmit:  30 * time.Second,
		SyncRetry:        20 * time.Second,
		StoreRetry:       5 * time.Second,
		EthResponsePoll:  10 * time.Second,
	}
}

// LoadConfig loads configuration from the data directory.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(dataDir string) (*Config, error) {
	return LoadConfigFile(ConfigPath(dataDir), dataDir)
}

// LoadConfigFile loads configuration from an explicit path, creating it with
// defaults when missing.
func LoadConfigFile(path, dataDir string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Ethereum.RequiredConfirmations == 0 {
		return fmt.Errorf("ethereum.required_confirmations must be positive")
	}
	if c.Ethereum.MaxBlockHeight == 0 {
		return fmt.Errorf("ethereum.max_block_height must be positive")
	}
	if c.Backend.RequestsPerSecond <= 0 {
		return fmt.Errorf("backend.requests_per_second must be positive")
	}
	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# HTLC swap daemon configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ConfigPath returns the full path to the config file for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(ExpandPath(dataDir), FileName)
}

// ResolvePath resolves p against the data directory unless it is absolute.
func (c *Config) ResolvePath(p string) string {
	p = ExpandPath(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(ExpandPath(c.Storage.DataDir), p)
}

// EVMNetworks returns the validated networks from the networks file (if
// any) followed by the inline ones.
func (c *Config) EVMNetworks() (Networks, error) {
	var cfgs []NetworkConfig
	if c.Ethereum.NetworksFile != "" {
		fromFile, err := LoadNetworksFile(c.ResolvePath(c.Ethereum.NetworksFile))
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, fromFile...)
	}
	cfgs = append(cfgs, c.Ethereum.Networks...)
	return ResolveNetworks(cfgs)
}
