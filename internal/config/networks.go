package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
)

// =============================================================================
// EVM networks
// =============================================================================

const (
	// EthMaxBlockHeight is the timeout window of the EVM swap contract in blocks.
	EthMaxBlockHeight = 256

	// DefaultEthConfirmations is the default depth an EVM deposit must reach.
	DefaultEthConfirmations = 7
)

var (
	ErrNoNetworks      = errors.New("no evm networks configured")
	ErrUnknownToken    = errors.New("unknown token for network")
	ErrInvalidContract = errors.New("invalid contract address")
)

// NetworkConfig is the on-disk description of an EVM network. Addresses are
// kept as strings so a malformed file yields a clear error on Resolve.
type NetworkConfig struct {
	Name           string            `yaml:"name" json:"name"`
	RPCURL         string            `yaml:"rpc_url,omitempty" json:"rpc_url,omitempty"`
	Address        string            `yaml:"address" json:"address"`
	TokenAddresses map[string]string `yaml:"token_addresses,omitempty" json:"token_addresses,omitempty"`
}

// Network is a validated EVM network.
type Network struct {
	Name     string
	RPCURL   string
	Contract common.Address
	Tokens   map[string]common.Address
}

// Resolve validates the addresses of a network entry.
func (n NetworkConfig) Resolve() (*Network, error) {
	if !common.IsHexAddress(n.Address) {
		return nil, fmt.Errorf("%w: network %s: %q", ErrInvalidContract, n.Name, n.Address)
	}
	out := &Network{
		Name:     n.Name,
		RPCURL:   n.RPCURL,
		Contract: common.HexToAddress(n.Address),
		Tokens:   make(map[string]common.Address, len(n.TokenAddresses)),
	}
	for symbol, addr := range n.TokenAddresses {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("%w: token %s on %s: %q", ErrInvalidContract, symbol, n.Name, addr)
		}
		out.Tokens[symbol] = common.HexToAddress(addr)
	}
	return out, nil
}

// TokenAddress returns the ERC-20 address for a token symbol. An empty
// symbol means the native coin and returns the zero address.
func (n *Network) TokenAddress(token string) (common.Address, error) {
	if token == "" {
		return common.Address{}, nil
	}
	addr, ok := n.Tokens[token]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s on %s", ErrUnknownToken, token, n.Name)
	}
	return addr, nil
}

// Networks is an ordered set of EVM networks.
type Networks []*Network

// ResolveNetworks validates every configured network.
func ResolveNetworks(cfgs []NetworkConfig) (Networks, error) {
	out := make(Networks, 0, len(cfgs))
	for _, c := range cfgs {
		n, err := c.Resolve()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Lookup finds a network by name. Unknown names fall back to the first
// configured network, matching how wallets pick a default chain.
func (ns Networks) Lookup(name string) (*Network, error) {
	if len(ns) == 0 {
		return nil, ErrNoNetworks
	}
	for _, n := range ns {
		if n.Name == name {
			return n, nil
		}
	}
	return ns[0], nil
}

// networksFile is the layout of a standalone networks.json.
type networksFile struct {
	Networks []NetworkConfig `json:"networks"`
}

// LoadNetworksFile reads a networks.json file.
func LoadNetworksFile(path string) ([]NetworkConfig, error) {
	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read networks file: %w", err)
	}
	var f networksFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse networks file: %w", err)
	}
	return f.Networks, nil
}
