// Package config holds the daemon configuration and the static reference
// data (Chia-family currencies, EVM networks) the swap engine relies on.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// =============================================================================
// Chia-family currency defaults
// =============================================================================

// Defaults shared by every seeded currency.
const (
	DefaultMinFee                = 1
	DefaultMaxBlockHeight        = 192
	DefaultMinConfirmationHeight = 32
	DefaultNodeHost              = "127.0.0.1"
)

// CurrencyProfile is the seed description of a supported Chia-family chain.
type CurrencyProfile struct {
	Prefix       string // bech32m address prefix, also the currency key
	Name         string
	PhotoURL     string
	UnitsPerCoin uint64
	Port         int
	DataDirName  string // ~/.<lowercased>/mainnet holds the node's config
}

// SSLDirectory guesses where the full node keeps its certificates.
func (p CurrencyProfile) SSLDirectory(home string) string {
	return filepath.Join(home, "."+strings.ToLower(p.DataDirName), "mainnet", "config", "ssl")
}

// SeedCurrencies is the list of chains known at first start.
var SeedCurrencies = []CurrencyProfile{
	{Prefix: "xch", Name: "Chia", PhotoURL: "https://raw.githubusercontent.com/Chia-Network/chia-blockchain-gui/main/src/assets/img/chia_circle.svg", UnitsPerCoin: 1000000000000, Port: 8555, DataDirName: "Chia"},
	{Prefix: "xfx", Name: "Flax", PhotoURL: "https://raw.githubusercontent.com/Flax-Network/flax-blockchain-gui/main/src/assets/img/flax_circle.svg", UnitsPerCoin: 1000000000000, Port: 6755, DataDirName: "Flax"},
	{Prefix: "cgn", Name: "Chaingreen", PhotoURL: "https://raw.githubusercontent.com/ChainGreenOrg/chaingreen-blockchain-gui/main/src/assets/img/chia_circle.svg", UnitsPerCoin: 1000000000000, Port: 8855, DataDirName: "Chaingreen"},
	{Prefix: "xcc", Name: "Chives", PhotoURL: "https://raw.githubusercontent.com/HiveProject2021/chives-blockchain-gui/main/src/assets/img/chives_circle.png", UnitsPerCoin: 100000000, Port: 9755, DataDirName: "Chives"},
	{Prefix: "spare", Name: "Spare", PhotoURL: "https://raw.githubusercontent.com/Spare-Network/spare-blockchain/master/spare-blockchain-gui/src/assets/img/spare.ico", UnitsPerCoin: 1000000000000, Port: 9555, DataDirName: "spare-blockchain"},
	{Prefix: "xfl", Name: "Flora", PhotoURL: "https://raw.githubusercontent.com/Flora-Network/flora-blockchain-gui/main/src/assets/img/flora_circle.png", UnitsPerCoin: 1000000000000, Port: 18755, DataDirName: "Flora"},
	{Prefix: "xdg", Name: "DogeChia", PhotoURL: "https://raw.githubusercontent.com/DogeChia/dogechia-blockchain-gui/main/src/assets/img/dogechia.png", UnitsPerCoin: 1000000000000, Port: 6769, DataDirName: "DogeChia"},
	{Prefix: "xse", Name: "Seno", PhotoURL: "https://raw.githubusercontent.com/Chia-Network/chia-blockchain-gui/main/src/assets/img/chia_circle.svg", UnitsPerCoin: 1000000000000, Port: 18555, DataDirName: "Seno2"},
	{Prefix: "xcr", Name: "Chiarose", PhotoURL: "https://raw.githubusercontent.com/snight1983/chia-rosechain/main/chia-rosechain-gui/src/assets/img/chia_circle.png", UnitsPerCoin: 1000000000, Port: 8025, DataDirName: "Chiarose"},
	{Prefix: "hdd", Name: "HDDCoin", PhotoURL: "https://raw.githubusercontent.com/HDDcoin-Network/hddcoin-blockchain/main/hddcoin-blockchain-gui/src/assets/img/hddcoin_circle.svg", UnitsPerCoin: 1000000000000, Port: 28555, DataDirName: "HDDCoin"},
	{Prefix: "sit", Name: "Silicoin", PhotoURL: "https://raw.githubusercontent.com/silicoin-network/silicoin-blockchain-gui/main/src/assets/img/chia_circle.png", UnitsPerCoin: 1000000000000, Port: 10555, DataDirName: "Silicoin"},
	{Prefix: "gdog", Name: "GreenDoge", PhotoURL: "https://raw.githubusercontent.com/GreenDoge-Network/greendoge-blockchain/main/greendoge-blockchain-gui/src/assets/img/greendoge_circle.png", UnitsPerCoin: 1000000000000, Port: 6655, DataDirName: "GreenDoge"},
	{Prefix: "avo", Name: "Avocado", PhotoURL: "https://raw.githubusercontent.com/Avocado-Network/avocado-blockchain-gui/main/src/assets/img/avocado_circle.png", UnitsPerCoin: 1000000000000, Port: 7544, DataDirName: "Avocado"},
	{Prefix: "xka", Name: "Kale", PhotoURL: "https://raw.githubusercontent.com/Kale-Network/kale-blockchain/main/kale-blockchain-gui/src/assets/img/kale_circle.svg", UnitsPerCoin: 1000000000000, Port: 6355, DataDirName: "Kale"},
	{Prefix: "xtx", Name: "Taco", PhotoURL: "https://raw.githubusercontent.com/Taco-Network/taco-blockchain/main/taco-blockchain-gui/src/assets/img/taco_circle.svg", UnitsPerCoin: 1000000000000, Port: 18735, DataDirName: "Taco"},
	{Prefix: "xeq", Name: "Equality", PhotoURL: "https://raw.githubusercontent.com/Equality-Network/equality-blockchain-gui/master/src/assets/img/equality_circle.png", UnitsPerCoin: 1000000000000, Port: 9547, DataDirName: "Equality"},
	{Prefix: "sock", Name: "Socks", PhotoURL: "https://bitbucket.org/Socks-Network/socks-blockchain-gui/raw/aefb284f40a2ff521591d79702b478317581ce94/src/assets/img/socks_circle.svg", UnitsPerCoin: 1000000000000, Port: 58455, DataDirName: "Socks"},
	{Prefix: "wheat", Name: "Wheat", PhotoURL: "https://raw.githubusercontent.com/wheatnetwork/wheat-blockchain-gui/main/src/assets/img/wheat_circle.svg", UnitsPerCoin: 1000000000000, Port: 21555, DataDirName: "Wheat"},
	{Prefix: "xmx", Name: "Melati", PhotoURL: "https://raw.githubusercontent.com/Melati-Network/melati-blockchain-gui/main/src/assets/img/melati_circle.svg", UnitsPerCoin: 1000000000000, Port: 2555, DataDirName: "Melati"},
	{Prefix: "tad", Name: "Tad", PhotoURL: "https://raw.githubusercontent.com/Tad-Network/tad-blockchain-gui/main/src/assets/img/tad_circle.png", UnitsPerCoin: 1000000000000, Port: 4555, DataDirName: "Tad"},
	{Prefix: "xsc", Name: "Sector", PhotoURL: "https://raw.githubusercontent.com/Sector-Network/sector-blockchain-gui/main/src/assets/img/sector_circle.svg", UnitsPerCoin: 1000000000000, Port: 5555, DataDirName: "Sector"},
	{Prefix: "cac", Name: "Cactus", PhotoURL: "https://raw.githubusercontent.com/Cactus-Network/cactus-blockchain/main/cactus-blockchain-gui/src/assets/img/cactus_circle.svg", UnitsPerCoin: 1000000000000, Port: 11555, DataDirName: "Cactus"},
	{Prefix: "cans", Name: "Cannabis", PhotoURL: "https://raw.githubusercontent.com/CannabisChain/cannabis-blockchain-gui/main/src/assets/img/cannabis_circle.png", UnitsPerCoin: 1000000000000, Port: 5540, DataDirName: "Cannabis"},
	{Prefix: "xmz", Name: "Maize", PhotoURL: "https://raw.githubusercontent.com/Maize-Network/maize-blockchain/main/maize-blockchain-gui/src/assets/img/chia_circle.svg", UnitsPerCoin: 1000000000000, Port: 8655, DataDirName: "Maize"},
}

// UserHome returns the current user's home directory, or "." if unknown.
func UserHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// ExpandPath expands a leading ~ to the home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		return filepath.Join(UserHome(), path[1:])
	}
	return path
}
