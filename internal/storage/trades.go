package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Trade errors
var (
	ErrTradeNotFound         = errors.New("trade not found")
	ErrTradeCurrencyNotFound = errors.New("trade currency not found")
)

// TradeCurrency holds one party's deposit terms for a trade.
type TradeCurrency struct {
	ID                    string `json:"id"`
	AddressPrefix         string `json:"address_prefix"`
	Fee                   uint64 `json:"fee"`
	MaxBlockHeight        uint32 `json:"max_block_height"`
	MinConfirmationHeight uint32 `json:"min_confirmation_height"`
	FromAddress           string `json:"from_address"`
	ToAddress             string `json:"to_address"`
	TotalAmount           uint64 `json:"total_amount"`
}

// NetAmount is the amount the contract coin must hold.
func (tc *TradeCurrency) NetAmount() uint64 {
	if tc.Fee > tc.TotalAmount {
		return 0
	}
	return tc.TotalAmount - tc.Fee
}

// Trade is a symmetric swap between two Chia-family chains.
type Trade struct {
	ID               string         `json:"id"`
	TradeCurrencyOne *TradeCurrency `json:"trade_currency_one"`
	TradeCurrencyTwo *TradeCurrency `json:"trade_currency_two"`
	SecretHash       string         `json:"secret_hash"`
	IsBuyer          bool           `json:"is_buyer"`
	Secret           string         `json:"secret"`
	Step             int            `json:"step"`
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// putTradeCurrency overwrites a leg by id. Callers hold s.mu.
func putTradeCurrency(exec execer, tc *TradeCurrency) error {
	_, err := exec.Exec(`
		INSERT INTO trade_currencies (
			id, address_prefix, fee, max_block_height, min_confirmation_height,
			from_address, to_address, total_amount
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			address_prefix = excluded.address_prefix,
			fee = excluded.fee,
			max_block_height = excluded.max_block_height,
			min_confirmation_height = excluded.min_confirmation_height,
			from_address = excluded.from_address,
			to_address = excluded.to_address,
			total_amount = excluded.total_amount
	`,
		tc.ID, tc.AddressPrefix, tc.Fee, tc.MaxBlockHeight, tc.MinConfirmationHeight,
		tc.FromAddress, tc.ToAddress, tc.TotalAmount,
	)
	if err != nil {
		return fmt.Errorf("failed to put trade currency %s: %w", tc.ID, err)
	}
	return nil
}

// PutTradeCurrency inserts or overwrites a trade leg.
func (s *Storage) PutTradeCurrency(tc *TradeCurrency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putTradeCurrency(s.db, tc)
}

func (s *Storage) getTradeCurrency(id string) (*TradeCurrency, error) {
	var tc TradeCurrency
	var prefix, from, to sql.NullString
	var fee, maxBlocks, minConf, total sql.NullInt64
	err := s.db.QueryRow(`
		SELECT id, address_prefix, fee, max_block_height, min_confirmation_height,
			from_address, to_address, total_amount
		FROM trade_currencies WHERE id = ?
	`, id).Scan(&tc.ID, &prefix, &fee, &maxBlocks, &minConf, &from, &to, &total)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrTradeCurrencyNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade currency: %w", err)
	}
	tc.AddressPrefix = prefix.String
	tc.Fee = uint64(fee.Int64)
	tc.MaxBlockHeight = uint32(maxBlocks.Int64)
	tc.MinConfirmationHeight = uint32(minConf.Int64)
	tc.FromAddress = from.String
	tc.ToAddress = to.String
	tc.TotalAmount = uint64(total.Int64)
	return &tc, nil
}

// GetTradeCurrency retrieves a trade leg by id.
func (s *Storage) GetTradeCurrency(id string) (*TradeCurrency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getTradeCurrency(id)
}

// PutTrade stores both legs and the trade in one transaction, overwriting
// any previous record with the same ids.
func (s *Storage) PutTrade(t *Trade) error {
	if t.TradeCurrencyOne == nil || t.TradeCurrencyTwo == nil {
		return fmt.Errorf("trade %s is missing a trade currency", t.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := putTradeCurrency(tx, t.TradeCurrencyOne); err != nil {
		return err
	}
	if err := putTradeCurrency(tx, t.TradeCurrencyTwo); err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO trades (
			id, trade_currency_one, trade_currency_two, secret_hash, is_buyer, secret, step, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			trade_currency_one = excluded.trade_currency_one,
			trade_currency_two = excluded.trade_currency_two,
			secret_hash = excluded.secret_hash,
			is_buyer = excluded.is_buyer,
			secret = excluded.secret,
			step = excluded.step,
			updated_at = excluded.updated_at
	`,
		t.ID, t.TradeCurrencyOne.ID, t.TradeCurrencyTwo.ID,
		t.SecretHash, t.IsBuyer, t.Secret, t.Step, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to put trade: %w", err)
	}
	return tx.Commit()
}

type tradeRow struct {
	id, one, two, secretHash, secret sql.NullString
	isBuyer                          sql.NullBool
	step                             sql.NullInt64
}

func (s *Storage) loadTrade(r tradeRow) (*Trade, error) {
	one, err := s.getTradeCurrency(r.one.String)
	if err != nil {
		return nil, err
	}
	two, err := s.getTradeCurrency(r.two.String)
	if err != nil {
		return nil, err
	}
	return &Trade{
		ID:               r.id.String,
		TradeCurrencyOne: one,
		TradeCurrencyTwo: two,
		SecretHash:       r.secretHash.String,
		IsBuyer:          r.isBuyer.Bool,
		Secret:           r.secret.String,
		Step:             int(r.step.Int64),
	}, nil
}

// GetTrade retrieves a trade and both of its legs.
func (s *Storage) GetTrade(id string) (*Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r tradeRow
	err := s.db.QueryRow(`
		SELECT id, trade_currency_one, trade_currency_two, secret_hash, is_buyer, secret, step
		FROM trades WHERE id = ?
	`, id).Scan(&r.id, &r.one, &r.two, &r.secretHash, &r.isBuyer, &r.secret, &r.step)
	if err == sql.ErrNoRows {
		return nil, ErrTradeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return s.loadTrade(r)
}

// ListTrades returns all trades.
func (s *Storage) ListTrades() ([]*Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, trade_currency_one, trade_currency_two, secret_hash, is_buyer, secret, step
		FROM trades ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	var raw []tradeRow
	for rows.Next() {
		var r tradeRow
		if err := rows.Scan(&r.id, &r.one, &r.two, &r.secretHash, &r.isBuyer, &r.secret, &r.step); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		raw = append(raw, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Legs are loaded after the cursor is closed: the pool has a single
	// connection.
	out := make([]*Trade, 0, len(raw))
	for _, r := range raw {
		t, err := s.loadTrade(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// UpdateTradeStep persists the orchestrator's step.
func (s *Storage) UpdateTradeStep(id string, step int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE trades SET step = ?, updated_at = ? WHERE id = ?`, step, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update trade step: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTradeNotFound
	}
	return nil
}

// DeleteTrade removes a trade. Its legs are kept.
func (s *Storage) DeleteTrade(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM trades WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete trade: %w", err)
	}
	return nil
}
