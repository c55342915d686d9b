package rpc

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/klingon-exchange/htlcswap/internal/storage"
)

// probeTimeout bounds a single connection_status probe.
const probeTimeout = 10 * time.Second

// ========================================
// Node handlers
// ========================================

// PingResult is the response for ping.
type PingResult struct {
	Version   string `json:"version"`
	WSClients int    `json:"ws_clients"`
}

func (s *Server) ping(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return &PingResult{
		Version:   Version,
		WSClients: s.wsHub.ClientCount(),
	}, nil
}

// ========================================
// Currency handlers
// ========================================

func (s *Server) currenciesList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	currencies, err := s.store.ListCurrencies()
	if err != nil {
		return nil, err
	}
	if currencies == nil {
		currencies = []*storage.Currency{}
	}
	return currencies, nil
}

func (s *Server) currencyPut(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var c storage.Currency
	if err := decodeParams(params, &c); err != nil {
		return nil, err
	}
	c.AddressPrefix = strings.TrimSpace(c.AddressPrefix)
	switch {
	case c.AddressPrefix == "":
		return nil, invalidParams("address_prefix is required")
	case c.UnitsPerCoin == 0:
		return nil, invalidParams("units_per_coin must be positive")
	case c.Port <= 0 || c.Port > 65535:
		return nil, invalidParams("port %d out of range", c.Port)
	}
	if err := s.store.PutCurrency(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// PrefixParams selects a currency.
type PrefixParams struct {
	AddressPrefix string `json:"address_prefix"`
}

func (s *Server) currencyDelete(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p PrefixParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.AddressPrefix == "" {
		return nil, invalidParams("address_prefix is required")
	}
	if err := s.store.DeleteCurrency(p.AddressPrefix); err != nil {
		return nil, err
	}
	return map[string]bool{"deleted": true}, nil
}

// ConnectionStatus is one currency's entry in connection_status.
type ConnectionStatus struct {
	AddressPrefix string `json:"address_prefix"`
	Connected     bool   `json:"connected"`
	Synced        bool   `json:"synced"`
	Height        uint32 `json:"height"`
	Error         string `json:"error,omitempty"`
}

// connectionStatus probes every currency's full node in parallel. A node
// that cannot be reached is reported, not returned as an error.
func (s *Server) connectionStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	currencies, err := s.store.ListCurrencies()
	if err != nil {
		return nil, err
	}

	out := make([]ConnectionStatus, len(currencies))
	var g errgroup.Group
	g.SetLimit(8)
	for i, c := range currencies {
		i, prefix := i, c.AddressPrefix
		g.Go(func() error {
			out[i] = s.probe(ctx, prefix)
			return nil
		})
	}
	g.Wait()
	return out, nil
}

func (s *Server) probe(ctx context.Context, prefix string) ConnectionStatus {
	st := ConnectionStatus{AddressPrefix: prefix}
	_, gw, err := s.gateways.Gateway(prefix)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	state, err := gw.BlockchainState(ctx)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Connected = true
	st.Synced = state.Synced
	st.Height = state.Height
	return st
}
