package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/klingon-exchange/htlcswap/internal/chain"
	"github.com/klingon-exchange/htlcswap/internal/storage"
	"github.com/klingon-exchange/htlcswap/internal/swap"
	"github.com/klingon-exchange/htlcswap/pkg/helpers"
)

// ========================================
// Trade handlers
// ========================================

// IDParams selects a trade.
type IDParams struct {
	ID string `json:"id"`
}

func decodeID(params json.RawMessage) (string, error) {
	var p IDParams
	if err := decodeParams(params, &p); err != nil {
		return "", err
	}
	if p.ID == "" {
		return "", invalidParams("id is required")
	}
	return p.ID, nil
}

// TradeResult is the response for trade_get.
type TradeResult struct {
	Trade  *storage.Trade `json:"trade"`
	Status swap.Snapshot  `json:"status"`
}

func (s *Server) tradesList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	trades, err := s.store.ListTrades()
	if err != nil {
		return nil, err
	}
	if trades == nil {
		trades = []*storage.Trade{}
	}
	return trades, nil
}

// tradeGet returns a trade and its run status, starting the run if it is
// not running yet.
func (s *Server) tradeGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	id, err := decodeID(params)
	if err != nil {
		return nil, err
	}
	trade, err := s.store.GetTrade(id)
	if err != nil {
		return nil, err
	}
	if _, err := s.registry.EnsureStarted(id, swap.KindTrade); err != nil {
		return nil, err
	}
	status, _ := s.registry.Status(id)
	return &TradeResult{Trade: trade, Status: status}, nil
}

func (s *Server) tradePut(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var t storage.Trade
	if err := decodeParams(params, &t); err != nil {
		return nil, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := s.validateSwapTerms(t.SecretHash, t.IsBuyer, t.Secret, t.Step); err != nil {
		return nil, err
	}
	if err := s.validateTradeCurrency("trade_currency_one", t.TradeCurrencyOne); err != nil {
		return nil, err
	}
	if err := s.validateTradeCurrency("trade_currency_two", t.TradeCurrencyTwo); err != nil {
		return nil, err
	}
	if err := s.store.PutTrade(&t); err != nil {
		return nil, err
	}
	return map[string]string{"id": t.ID}, nil
}

func (s *Server) tradeDelete(ctx context.Context, params json.RawMessage) (interface{}, error) {
	id, err := decodeID(params)
	if err != nil {
		return nil, err
	}
	if s.registry.Running(id) {
		return nil, fmt.Errorf("trade %s is running", id)
	}
	if err := s.store.DeleteTrade(id); err != nil {
		return nil, err
	}
	return map[string]bool{"deleted": true}, nil
}

// validateSwapTerms checks the fields shared by both trade kinds.
func (s *Server) validateSwapTerms(secretHash string, isBuyer bool, secret string, step int) error {
	if _, err := helpers.DecodeBytes32(secretHash); err != nil {
		return invalidParams("secret_hash: %v", err)
	}
	if isBuyer && secret == "" {
		return invalidParams("secret is required for the buyer")
	}
	if !swap.Step(step).Valid() {
		return invalidParams("step %d out of range", step)
	}
	return nil
}

// validateTradeCurrency checks one leg's terms against its currency.
func (s *Server) validateTradeCurrency(name string, tc *storage.TradeCurrency) error {
	if tc == nil {
		return invalidParams("%s is required", name)
	}
	if tc.ID == "" {
		tc.ID = uuid.NewString()
	}
	if _, err := s.store.GetCurrency(tc.AddressPrefix); err != nil {
		if errors.Is(err, storage.ErrCurrencyNotFound) {
			return invalidParams("%s: unknown currency %q", name, tc.AddressPrefix)
		}
		return err
	}
	if tc.Fee > tc.TotalAmount {
		return invalidParams("%s: fee exceeds total_amount", name)
	}
	if tc.TotalAmount == 0 {
		return invalidParams("%s: total_amount must be positive", name)
	}
	// Amounts are stored as signed 64-bit integers; fee is bounded by total.
	if tc.TotalAmount > math.MaxInt64 {
		return invalidParams("%s: total_amount exceeds %d", name, int64(math.MaxInt64))
	}
	if tc.MaxBlockHeight == 0 {
		return invalidParams("%s: max_block_height must be positive", name)
	}
	if _, err := chain.DecodeAddressWithPrefix(tc.FromAddress, tc.AddressPrefix); err != nil {
		return invalidParams("%s: from_address: %v", name, err)
	}
	if _, err := chain.DecodeAddressWithPrefix(tc.ToAddress, tc.AddressPrefix); err != nil {
		return invalidParams("%s: to_address: %v", name, err)
	}
	return nil
}
