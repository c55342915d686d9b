package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/klingon-exchange/htlcswap/internal/evm"
	"github.com/klingon-exchange/htlcswap/internal/storage"
	"github.com/klingon-exchange/htlcswap/internal/swap"
	"github.com/klingon-exchange/htlcswap/pkg/helpers"
)

// ========================================
// EVM-paired trade handlers
// ========================================

// EthTradeResult is the response for eth_trade_get.
type EthTradeResult struct {
	Trade  *storage.EthTrade `json:"trade"`
	Status swap.Snapshot     `json:"status"`
}

func (s *Server) ethTradesList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	trades, err := s.store.ListEthTrades()
	if err != nil {
		return nil, err
	}
	if trades == nil {
		trades = []*storage.EthTrade{}
	}
	return trades, nil
}

func (s *Server) ethTradeGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	id, err := decodeID(params)
	if err != nil {
		return nil, err
	}
	trade, err := s.store.GetEthTrade(id)
	if err != nil {
		return nil, err
	}
	if _, err := s.registry.EnsureStarted(id, swap.KindEthTrade); err != nil {
		return nil, err
	}
	status, _ := s.registry.Status(id)
	return &EthTradeResult{Trade: trade, Status: status}, nil
}

func (s *Server) ethTradePut(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var t storage.EthTrade
	if err := decodeParams(params, &t); err != nil {
		return nil, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := s.validateSwapTerms(t.SecretHash, t.IsBuyer, t.Secret, t.Step); err != nil {
		return nil, err
	}
	if err := s.validateTradeCurrency("trade_currency", t.TradeCurrency); err != nil {
		return nil, err
	}
	if _, err := evm.ParseAddress(t.EthFromAddress); err != nil {
		return nil, invalidParams("eth_from_address: %v", err)
	}
	if _, err := evm.ParseAddress(t.EthToAddress); err != nil {
		return nil, invalidParams("eth_to_address: %v", err)
	}
	if amt, ok := helpers.ParseBigAmount(t.TotalGwei); !ok || amt.Sign() <= 0 {
		return nil, invalidParams("total_gwei %q is not a positive integer", t.TotalGwei)
	}
	network, err := s.networks.Lookup(t.Network)
	if err != nil {
		return nil, err
	}
	if _, err := network.TokenAddress(t.Token); err != nil {
		return nil, invalidParams("%v", err)
	}
	if err := s.store.PutEthTrade(&t); err != nil {
		return nil, err
	}
	return map[string]string{"id": t.ID}, nil
}

func (s *Server) ethTradeDelete(ctx context.Context, params json.RawMessage) (interface{}, error) {
	id, err := decodeID(params)
	if err != nil {
		return nil, err
	}
	if s.registry.Running(id) {
		return nil, fmt.Errorf("trade %s is running", id)
	}
	if err := s.store.DeleteEthTrade(id); err != nil {
		return nil, err
	}
	return map[string]bool{"deleted": true}, nil
}

// RespondParams carries values reported by the wallet client.
type RespondParams struct {
	ID     string            `json:"id"`
	Values map[string]string `json:"values"`
}

// ethTradeRespond merges wallet-reported values (transaction hashes,
// confirmation counts) into a running trade.
func (s *Server) ethTradeRespond(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p RespondParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, invalidParams("id is required")
	}
	if len(p.Values) == 0 {
		return nil, invalidParams("values are required")
	}
	if err := s.registry.SubmitResponse(p.ID, p.Values); err != nil {
		return nil, err
	}
	status, _ := s.registry.Status(p.ID)
	return status, nil
}

// NetworkInfo describes a configured EVM network.
type NetworkInfo struct {
	Name     string            `json:"name"`
	RPCURL   string            `json:"rpc_url,omitempty"`
	Contract string            `json:"contract"`
	Tokens   map[string]string `json:"tokens"`
}

func (s *Server) ethNetworks(ctx context.Context, params json.RawMessage) (interface{}, error) {
	out := make([]NetworkInfo, 0, len(s.networks))
	for _, n := range s.networks {
		info := NetworkInfo{
			Name:     n.Name,
			RPCURL:   n.RPCURL,
			Contract: n.Contract.Hex(),
			Tokens:   make(map[string]string, len(n.Tokens)),
		}
		for symbol, addr := range n.Tokens {
			info.Tokens[symbol] = addr.Hex()
		}
		out = append(out, info)
	}
	return out, nil
}
