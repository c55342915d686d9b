package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/klingon-exchange/htlcswap/internal/config"
)

// ErrCurrencyNotFound is returned when no currency has the given prefix.
var ErrCurrencyNotFound = errors.New("currency not found")

// Currency is a supported chain's connection and economic profile.
type Currency struct {
	AddressPrefix                string `json:"address_prefix"`
	Name                         string `json:"name"`
	PhotoURL                     string `json:"photo_url"`
	UnitsPerCoin                 uint64 `json:"units_per_coin"`
	MinFee                       uint64 `json:"min_fee"`
	DefaultMaxBlockHeight        uint32 `json:"default_max_block_height"`
	DefaultMinConfirmationHeight uint32 `json:"default_min_confirmation_height"`
	Host                         string `json:"host"`
	Port                         int    `json:"port"`
	SSLDirectory                 string `json:"ssl_directory"`
}

const currencyColumns = `address_prefix, name, photo_url, units_per_coin, min_fee,
	default_max_block_height, default_min_confirmation_height, host, port, ssl_directory`

// PutCurrency inserts or replaces a currency.
func (s *Storage) PutCurrency(c *Currency) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO currencies (`+currencyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address_prefix) DO UPDATE SET
			name = excluded.name,
			photo_url = excluded.photo_url,
			units_per_coin = excluded.units_per_coin,
			min_fee = excluded.min_fee,
			default_max_block_height = excluded.default_max_block_height,
			default_min_confirmation_height = excluded.default_min_confirmation_height,
			host = excluded.host,
			port = excluded.port,
			ssl_directory = excluded.ssl_directory
	`,
		c.AddressPrefix, c.Name, c.PhotoURL, c.UnitsPerCoin, c.MinFee,
		c.DefaultMaxBlockHeight, c.DefaultMinConfirmationHeight,
		c.Host, c.Port, c.SSLDirectory,
	)
	if err != nil {
		return fmt.Errorf("failed to put currency: %w", err)
	}
	return nil
}

// SeedCurrencies inserts the given profiles, leaving existing rows alone.
// It returns the number of currencies added.
func (s *Storage) SeedCurrencies(profiles []config.CurrencyProfile, home string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, p := range profiles {
		res, err := s.db.Exec(`
			INSERT OR IGNORE INTO currencies (`+currencyColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			p.Prefix, p.Name, p.PhotoURL, p.UnitsPerCoin, config.DefaultMinFee,
			config.DefaultMaxBlockHeight, config.DefaultMinConfirmationHeight,
			config.DefaultNodeHost, p.Port, p.SSLDirectory(home),
		)
		if err != nil {
			return added, fmt.Errorf("failed to seed currency %s: %w", p.Prefix, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	return added, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCurrency(row rowScanner) (*Currency, error) {
	var c Currency
	var name, photo, host, ssl sql.NullString
	var units, minFee sql.NullInt64
	var maxBlocks, minConf, port sql.NullInt64
	if err := row.Scan(&c.AddressPrefix, &name, &photo, &units, &minFee, &maxBlocks, &minConf, &host, &port, &ssl); err != nil {
		return nil, err
	}
	c.Name = name.String
	c.PhotoURL = photo.String
	c.UnitsPerCoin = uint64(units.Int64)
	c.MinFee = uint64(minFee.Int64)
	c.DefaultMaxBlockHeight = uint32(maxBlocks.Int64)
	c.DefaultMinConfirmationHeight = uint32(minConf.Int64)
	c.Host = host.String
	c.Port = int(port.Int64)
	c.SSLDirectory = ssl.String
	return &c, nil
}

// GetCurrency retrieves a currency by address prefix.
func (s *Storage) GetCurrency(prefix string) (*Currency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := scanCurrency(s.db.QueryRow(`SELECT `+currencyColumns+` FROM currencies WHERE address_prefix = ?`, prefix))
	if err == sql.ErrNoRows {
		return nil, ErrCurrencyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get currency: %w", err)
	}
	return c, nil
}

// ListCurrencies returns all currencies ordered by prefix.
func (s *Storage) ListCurrencies() ([]*Currency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT ` + currencyColumns + ` FROM currencies ORDER BY address_prefix`)
	if err != nil {
		return nil, fmt.Errorf("failed to list currencies: %w", err)
	}
	defer rows.Close()

	var out []*Currency
	for rows.Next() {
		c, err := scanCurrency(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan currency: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCurrency removes a currency. Deleting an unknown prefix is not an
// error.
func (s *Storage) DeleteCurrency(prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM currencies WHERE address_prefix = ?`, prefix); err != nil {
		return fmt.Errorf("failed to delete currency: %w", err)
	}
	return nil
}
