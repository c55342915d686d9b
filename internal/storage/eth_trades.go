package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrEthTradeNotFound is returned when no EVM trade has the given id.
var ErrEthTradeNotFound = errors.New("eth trade not found")

// EthTrade swaps a Chia-family leg against an EVM contract leg.
// TotalGwei is a decimal integer string since it can exceed 64 bits.
type EthTrade struct {
	ID             string         `json:"id"`
	TradeCurrency  *TradeCurrency `json:"trade_currency"`
	EthFromAddress string         `json:"eth_from_address"`
	EthToAddress   string         `json:"eth_to_address"`
	TotalGwei      string         `json:"total_gwei"`
	SecretHash     string         `json:"secret_hash"`
	IsBuyer        bool           `json:"is_buyer"`
	Secret         string         `json:"secret"`
	Step           int            `json:"step"`
	Network        string         `json:"network"`
	Token          string         `json:"token"`
}

const ethTradeColumns = `id, trade_currency, eth_from_address, eth_to_address, total_gwei,
	secret_hash, is_buyer, secret, step, network, token`

// PutEthTrade stores the Chia leg and the trade in one transaction.
func (s *Storage) PutEthTrade(t *EthTrade) error {
	if t.TradeCurrency == nil {
		return fmt.Errorf("eth trade %s is missing its trade currency", t.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := putTradeCurrency(tx, t.TradeCurrency); err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO eth_trades (`+ethTradeColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			trade_currency = excluded.trade_currency,
			eth_from_address = excluded.eth_from_address,
			eth_to_address = excluded.eth_to_address,
			total_gwei = excluded.total_gwei,
			secret_hash = excluded.secret_hash,
			is_buyer = excluded.is_buyer,
			secret = excluded.secret,
			step = excluded.step,
			network = excluded.network,
			token = excluded.token,
			updated_at = excluded.updated_at
	`,
		t.ID, t.TradeCurrency.ID, t.EthFromAddress, t.EthToAddress, t.TotalGwei,
		t.SecretHash, t.IsBuyer, t.Secret, t.Step, t.Network, t.Token, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to put eth trade: %w", err)
	}
	return tx.Commit()
}

type ethTradeRow struct {
	t      EthTrade
	leg    sql.NullString
	from   sql.NullString
	to     sql.NullString
	gwei   sql.NullString
	hash   sql.NullString
	buyer  sql.NullBool
	secret sql.NullString
	step   sql.NullInt64
	net    sql.NullString
	token  sql.NullString
}

func scanEthTrade(row rowScanner) (*ethTradeRow, error) {
	var r ethTradeRow
	err := row.Scan(&r.t.ID, &r.leg, &r.from, &r.to, &r.gwei, &r.hash, &r.buyer, &r.secret, &r.step, &r.net, &r.token)
	if err != nil {
		return nil, err
	}
	r.t.EthFromAddress = r.from.String
	r.t.EthToAddress = r.to.String
	r.t.TotalGwei = r.gwei.String
	r.t.SecretHash = r.hash.String
	r.t.IsBuyer = r.buyer.Bool
	r.t.Secret = r.secret.String
	r.t.Step = int(r.step.Int64)
	r.t.Network = r.net.String
	r.t.Token = r.token.String
	return &r, nil
}

func (s *Storage) loadEthTrade(r *ethTradeRow) (*EthTrade, error) {
	tc, err := s.getTradeCurrency(r.leg.String)
	if err != nil {
		return nil, err
	}
	t := r.t
	t.TradeCurrency = tc
	return &t, nil
}

// GetEthTrade retrieves an EVM trade and its Chia leg.
func (s *Storage) GetEthTrade(id string) (*EthTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := scanEthTrade(s.db.QueryRow(`SELECT `+ethTradeColumns+` FROM eth_trades WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrEthTradeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get eth trade: %w", err)
	}
	return s.loadEthTrade(r)
}

// ListEthTrades returns all EVM trades.
func (s *Storage) ListEthTrades() ([]*EthTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT ` + ethTradeColumns + ` FROM eth_trades ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list eth trades: %w", err)
	}
	var raw []*ethTradeRow
	for rows.Next() {
		r, err := scanEthTrade(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan eth trade: %w", err)
		}
		raw = append(raw, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*EthTrade, 0, len(raw))
	for _, r := range raw {
		t, err := s.loadEthTrade(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// UpdateEthTradeStep persists the EVM orchestrator's step.
func (s *Storage) UpdateEthTradeStep(id string, step int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE eth_trades SET step = ?, updated_at = ? WHERE id = ?`, step, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update eth trade step: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEthTradeNotFound
	}
	return nil
}

// DeleteEthTrade removes an EVM trade. Its Chia leg is kept.
func (s *Storage) DeleteEthTrade(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM eth_trades WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete eth trade: %w", err)
	}
	return nil
}
