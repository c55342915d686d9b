package evm

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/klingon-exchange/htlcswap/pkg/helpers"
)

var (
	ErrInvalidAddress = errors.New("invalid evm address")
	ErrInvalidAmount  = errors.New("invalid evm amount")
)

// SwapParams are the terms of an EVM swap. A zero Token means the chain's
// native coin.
type SwapParams struct {
	Contract       common.Address
	Token          common.Address
	From           common.Address
	To             common.Address
	Amount         *big.Int
	SecretHash     [32]byte
	MaxBlockHeight uint64
}

// ParseAddress validates a hex address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// NewSwapParams validates the string form of a swap's terms.
func NewSwapParams(contract, token common.Address, from, to, amount, secretHash string, maxBlockHeight uint64) (*SwapParams, error) {
	fromAddr, err := ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	toAddr, err := ParseAddress(to)
	if err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	amt, ok := helpers.ParseBigAmount(amount)
	if !ok || amt.Sign() == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	hash, err := helpers.DecodeBytes32(secretHash)
	if err != nil {
		return nil, fmt.Errorf("secret hash: %w", err)
	}
	return &SwapParams{
		Contract:       contract,
		Token:          token,
		From:           fromAddr,
		To:             toAddr,
		Amount:         amt,
		SecretHash:     hash,
		MaxBlockHeight: maxBlockHeight,
	}, nil
}

// IsNativeToken reports whether the swap locks the chain's native coin.
func (p *SwapParams) IsNativeToken() bool {
	return p.Token == common.Address{}
}

// SwapID is keccak256(from || to || token || amount || secretHash || maxBlockHeight)
// with the numbers as 32-byte big-endian words.
func (p *SwapParams) SwapID() [32]byte {
	var id [32]byte
	copy(id[:], crypto.Keccak256(
		p.From.Bytes(),
		p.To.Bytes(),
		p.Token.Bytes(),
		common.LeftPadBytes(p.Amount.Bytes(), 32),
		p.SecretHash[:],
		common.LeftPadBytes(new(big.Int).SetUint64(p.MaxBlockHeight).Bytes(), 32),
	))
	return id
}

func (p *SwapParams) args() map[string]string {
	return map[string]string{
		"contract":         p.Contract.Hex(),
		"token_address":    p.Token.Hex(),
		"from_address":     p.From.Hex(),
		"to_address":       p.To.Hex(),
		"amount":           p.Amount.String(),
		"secret_hash":      helpers.Hex0x(p.SecretHash[:]),
		"max_block_height": uintString(p.MaxBlockHeight),
	}
}

// HexID formats a swap id.
func HexID(id [32]byte) string {
	return helpers.Hex0x(id[:])
}

func uintString(n uint64) string {
	return strconv.FormatUint(n, 10)
}
