package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"salechain/crypto"
)

// Config is the saled daemon configuration.
type Config struct {
	RPCAddress       string        `toml:"RPCAddress"`
	DataDir          string        `toml:"DataDir"`
	NetworkName      string        `toml:"NetworkName"`
	AuthorityAddress string        `toml:"AuthorityAddress"`
	TreasuryAddress  string        `toml:"TreasuryAddress"`
	WhitelistSigner  string        `toml:"WhitelistSigner"`
	Assets           []AssetConfig `toml:"Assets"`
	Sale             SaleConfig    `toml:"Sale"`
}

// AssetConfig declares a payment asset registered at startup.
type AssetConfig struct {
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

// SaleConfig carries the initial sale parameters. Amounts are decimal strings
// in base units; PriceUSD is an 18-decimal fixed-point string.
type SaleConfig struct {
	StartTime         int64  `toml:"StartTime"`
	EndTime           int64  `toml:"EndTime"`
	PriceUSD          string `toml:"PriceUSD"`
	TotalAllocation   string `toml:"TotalAllocation"`
	SoftCap           string `toml:"SoftCap"`
	HardCap           string `toml:"HardCap"`
	MinimumPurchase   string `toml:"MinimumPurchase"`
	SoldTokenDecimals uint8  `toml:"SoldTokenDecimals"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./saled-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "sale-local"
	}
	if cfg.Assets == nil {
		cfg.Assets = defaultAssets()
	}
}

func defaultAssets() []AssetConfig {
	return []AssetConfig{
		{Symbol: "USDC", Name: "USD Coin", Decimals: 6},
		{Symbol: "USDT", Name: "Tether USD", Decimals: 6},
	}
}

// Validate checks address encodings and amount strings without touching the
// time window, which the engine validates against its own clock.
func (c *Config) Validate() error {
	for name, value := range map[string]string{
		"AuthorityAddress": c.AuthorityAddress,
		"TreasuryAddress":  c.TreasuryAddress,
		"WhitelistSigner":  c.WhitelistSigner,
	} {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, err := crypto.DecodeAddress(value); err != nil {
			return fmt.Errorf("config: invalid %s: %w", name, err)
		}
	}
	if len(c.Assets) == 0 {
		return fmt.Errorf("config: at least one asset must be configured")
	}
	seen := make(map[string]struct{}, len(c.Assets))
	for _, asset := range c.Assets {
		symbol := strings.ToUpper(strings.TrimSpace(asset.Symbol))
		if symbol == "" {
			return fmt.Errorf("config: asset symbol must not be empty")
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("config: duplicate asset %s", symbol)
		}
		seen[symbol] = struct{}{}
	}
	for name, value := range map[string]string{
		"Sale.PriceUSD":        c.Sale.PriceUSD,
		"Sale.TotalAllocation": c.Sale.TotalAllocation,
		"Sale.SoftCap":         c.Sale.SoftCap,
		"Sale.HardCap":         c.Sale.HardCap,
		"Sale.MinimumPurchase": c.Sale.MinimumPurchase,
	} {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, err := parseAmount(value); err != nil {
			return fmt.Errorf("config: invalid %s: %w", name, err)
		}
	}
	return nil
}

// Authority returns the decoded authority address, or false when unset.
func (c *Config) Authority() (crypto.Address, bool, error) {
	return c.decodeOptional(c.AuthorityAddress)
}

// Treasury returns the decoded settlement destination, or false when unset.
func (c *Config) Treasury() (crypto.Address, bool, error) {
	return c.decodeOptional(c.TreasuryAddress)
}

// Signer returns the decoded whitelist verifying address, or false when
// unset.
func (c *Config) Signer() (crypto.Address, bool, error) {
	return c.decodeOptional(c.WhitelistSigner)
}

func (c *Config) decodeOptional(value string) (crypto.Address, bool, error) {
	if strings.TrimSpace(value) == "" {
		return crypto.Address{}, false, nil
	}
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return crypto.Address{}, false, err
	}
	return addr, true, nil
}

// SaleAmounts parses the configured sale amount strings into big integers.
// Empty fields come back nil so callers can tell "unset" from zero.
func (c *Config) SaleAmounts() (price, allocation, softCap, hardCap, minimum *big.Int, err error) {
	fields := []struct {
		name  string
		value string
		out   **big.Int
	}{
		{"Sale.PriceUSD", c.Sale.PriceUSD, &price},
		{"Sale.TotalAllocation", c.Sale.TotalAllocation, &allocation},
		{"Sale.SoftCap", c.Sale.SoftCap, &softCap},
		{"Sale.HardCap", c.Sale.HardCap, &hardCap},
		{"Sale.MinimumPurchase", c.Sale.MinimumPurchase, &minimum},
	}
	for _, field := range fields {
		if strings.TrimSpace(field.value) == "" {
			continue
		}
		parsed, perr := parseAmount(field.value)
		if perr != nil {
			return nil, nil, nil, nil, nil, fmt.Errorf("config: invalid %s: %w", field.name, perr)
		}
		*field.out = parsed
	}
	return price, allocation, softCap, hardCap, minimum, nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a base-10 integer", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", value)
	}
	return amount, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
