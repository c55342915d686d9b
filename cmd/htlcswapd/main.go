// Package main provides htlcswapd, the atomic swap daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/klingon-exchange/htlcswap/internal/backend"
	"github.com/klingon-exchange/htlcswap/internal/clvm"
	"github.com/klingon-exchange/htlcswap/internal/config"
	"github.com/klingon-exchange/htlcswap/internal/evm"
	"github.com/klingon-exchange/htlcswap/internal/rpc"
	"github.com/klingon-exchange/htlcswap/internal/storage"
	"github.com/klingon-exchange/htlcswap/internal/swap"
	"github.com/klingon-exchange/htlcswap/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

type options struct {
	dataDir     string
	configFile  string
	apiAddr     string
	logLevel    string
	showVersion bool
}

func main() {
	var opts options
	cmd := &cobra.Command{
		Use:           "htlcswapd",
		Short:         "Cross-chain atomic swap daemon for Chia-family chains and EVM networks",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				fmt.Printf("htlcswapd %s (commit: %s)\n", version, commit)
				return nil
			}
			return run(opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.dataDir, "data-dir", "~/.htlcswap", "Data directory")
	flags.StringVar(&opts.configFile, "config", "", "Config file path (default: <data-dir>/config.yaml)")
	flags.StringVar(&opts.apiAddr, "api", "", "JSON-RPC API address, overrides config")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error), overrides config")
	flags.BoolVar(&opts.showVersion, "version", false, "Show version and exit")

	if err := cmd.Execute(); err != nil {
		logging.Fatal("htlcswapd failed", "error", err)
	}
}

func run(opts options) error {
	// Initial logger until the config is loaded.
	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	dataDir := config.ExpandPath(opts.dataDir)
	configPath := config.ConfigPath(dataDir)
	if opts.configFile != "" {
		configPath = config.ExpandPath(opts.configFile)
	}
	cfg, err := config.LoadConfigFile(configPath, dataDir)
	if err != nil {
		return err
	}
	cfg.Storage.DataDir = dataDir
	if opts.apiAddr != "" {
		cfg.API.Addr = opts.apiAddr
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
		JSON:       cfg.Logging.JSON,
	})
	logging.SetDefault(log)
	log.Info("Config loaded", "path", configPath)

	store, err := storage.New(&storage.Config{DataDir: dataDir})
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	seeded, err := store.SeedCurrencies(config.SeedCurrencies, config.UserHome())
	if err != nil {
		return fmt.Errorf("failed to seed currencies: %w", err)
	}
	log.Info("Storage initialized", "path", dataDir, "seeded_currencies", seeded)

	module, err := clvm.LoadModuleFile(cfg.ResolvePath(cfg.Contract.ProgramFile))
	if err != nil {
		return err
	}
	codec, err := clvm.NewCodec(module, cfg.Contract.DevFeeAddress)
	if err != nil {
		return err
	}
	defer codec.Close()

	backends := backend.NewRegistry(backend.NewFactory(backend.Options{
		Timeout:             cfg.Backend.RequestTimeout,
		RequestsPerSecond:   cfg.Backend.RequestsPerSecond,
		BreakerMinRequests:  cfg.Backend.BreakerMinRequests,
		BreakerFailureRatio: cfg.Backend.BreakerFailureRatio,
		BreakerOpenTimeout:  cfg.Backend.BreakerOpenTimeout,
		Logger:              log.Component("backend"),
	}))
	gateways := &swap.CurrencyGateways{Currencies: store, Backends: backends}

	networks, err := cfg.EVMNetworks()
	if err != nil {
		return err
	}
	watchers := evm.NewPool(nil)
	defer watchers.Close()

	registry := swap.NewRegistry(swap.RegistryConfig{
		Store:    store,
		Gateways: gateways,
		Codec:    codec,
		Timing:   cfg.Timing,
		Ethereum: swap.EthSettings{
			Networks:              networks,
			RequiredConfirmations: cfg.Ethereum.RequiredConfirmations,
			MaxBlockHeight:        cfg.Ethereum.MaxBlockHeight,
			Watchers: func(ctx context.Context, n *config.Network) (swap.ConfirmationSource, error) {
				if n.RPCURL == "" {
					return nil, nil
				}
				w, err := watchers.Get(ctx, n.RPCURL)
				if err != nil {
					return nil, err
				}
				return w, nil
			},
		},
		TradeLogDir: cfg.ResolvePath(cfg.Logging.TradeLogDir),
		Logger:      log.Component("swap"),
	})
	defer registry.Close()

	resumed, err := resumeTrades(store, registry)
	if err != nil {
		log.Warn("Failed to resume trades", "error", err)
	}
	log.Info("Pending trades resumed", "count", resumed)

	server := rpc.NewServer(rpc.Config{
		Store:    store,
		Registry: registry,
		Gateways: gateways,
		Networks: networks,
	})
	if err := server.Start(cfg.API.Addr); err != nil {
		return err
	}

	printBanner(log, cfg, server.Addr(), networks)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("Shutting down...")

	if err := server.Stop(); err != nil {
		log.Error("Error stopping RPC server", "error", err)
	}
	if err := registry.Close(); err != nil {
		log.Error("Error stopping trades", "error", err)
	}

	log.Info("Goodbye!")
	return nil
}

// resumeTrades restarts every trade that has not reached a terminal step.
func resumeTrades(store *storage.Storage, registry *swap.Registry) (int, error) {
	n := 0
	trades, err := store.ListTrades()
	if err != nil {
		return n, err
	}
	for _, t := range trades {
		if swap.Step(t.Step).Terminal() {
			continue
		}
		if _, err := registry.EnsureStarted(t.ID, swap.KindTrade); err != nil {
			return n, err
		}
		n++
	}

	ethTrades, err := store.ListEthTrades()
	if err != nil {
		return n, err
	}
	for _, t := range ethTrades {
		if swap.Step(t.Step).Terminal() {
			continue
		}
		if _, err := registry.EnsureStarted(t.ID, swap.KindEthTrade); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func printBanner(log *logging.Logger, cfg *config.Config, apiAddr string, networks config.Networks) {
	log.Info("")
	log.Info("=================================================")
	log.Infof("  HTLC Swap Daemon %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  API: http://%s", apiAddr)
	log.Infof("  WS:  ws://%s/ws", apiAddr)
	log.Infof("  Metrics: http://%s/metrics", apiAddr)
	log.Info("")
	for _, n := range networks {
		log.Infof("  EVM network: %s (%s)", n.Name, n.Contract.Hex())
	}
	log.Infof("  Data dir: %s", cfg.Storage.DataDir)
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
