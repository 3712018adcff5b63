package state

import (
	"fmt"
	"math/big"
	"strings"
)

// Token ledger state. Balances and spender allowances for every registered
// asset live here; the sale engine pulls contributions and pushes refunds
// through these primitives.

var (
	tokenMetaPrefix      = []byte("token/meta/")
	tokenBalancePrefix   = []byte("token/balance/")
	tokenAllowancePrefix = []byte("token/allowance/")
)

// TokenMetadata describes a registered payment or payout asset.
type TokenMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

func tokenMetaKey(symbol string) []byte {
	return append(append([]byte(nil), tokenMetaPrefix...), symbol...)
}

func tokenBalanceKey(symbol string, addr [20]byte) []byte {
	key := make([]byte, 0, len(tokenBalancePrefix)+len(symbol)+1+len(addr))
	key = append(key, tokenBalancePrefix...)
	key = append(key, symbol...)
	key = append(key, ':')
	key = append(key, addr[:]...)
	return key
}

func tokenAllowanceKey(symbol string, owner, spender [20]byte) []byte {
	key := make([]byte, 0, len(tokenAllowancePrefix)+len(symbol)+1+len(owner)+len(spender))
	key = append(key, tokenAllowancePrefix...)
	key = append(key, symbol...)
	key = append(key, ':')
	key = append(key, owner[:]...)
	key = append(key, spender[:]...)
	return key
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// RegisterToken stores the metadata for an asset. Registration is
// idempotent as long as the definition does not change.
func (m *Manager) RegisterToken(symbol, name string, decimals uint8) error {
	normalized := normalizeSymbol(symbol)
	if normalized == "" {
		return fmt.Errorf("token symbol must not be empty")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("token %s: name must not be empty", normalized)
	}
	var existing TokenMetadata
	ok, err := m.KVGet(tokenMetaKey(normalized), &existing)
	if err != nil {
		return err
	}
	if ok {
		if existing.Name != name || existing.Decimals != decimals {
			return fmt.Errorf("token %s already registered with different definition", normalized)
		}
		return nil
	}
	return m.KVPut(tokenMetaKey(normalized), &TokenMetadata{Symbol: normalized, Name: name, Decimals: decimals})
}

// Token retrieves metadata for a registered asset.
func (m *Manager) Token(symbol string) (*TokenMetadata, error) {
	normalized := normalizeSymbol(symbol)
	meta := new(TokenMetadata)
	ok, err := m.KVGet(tokenMetaKey(normalized), meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("token %s not registered", normalized)
	}
	return meta, nil
}

// Balance retrieves the asset balance for the provided account.
func (m *Manager) Balance(addr [20]byte, symbol string) (*big.Int, error) {
	normalized := normalizeSymbol(symbol)
	amount := new(big.Int)
	ok, err := m.KVGet(tokenBalanceKey(normalized, addr), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (m *Manager) setBalance(addr [20]byte, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("negative balance not allowed")
	}
	return m.KVPut(tokenBalanceKey(symbol, addr), amount)
}

// Mint credits freshly issued units to the provided account. Restricted to
// operational tooling; the sale engine never mints.
func (m *Manager) Mint(addr [20]byte, symbol string, amount *big.Int) error {
	normalized := normalizeSymbol(symbol)
	if _, err := m.Token(normalized); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("mint amount must be positive")
	}
	balance, err := m.Balance(addr, normalized)
	if err != nil {
		return err
	}
	return m.setBalance(addr, normalized, new(big.Int).Add(balance, amount))
}

// Approve sets the spender allowance for the owner account.
func (m *Manager) Approve(owner, spender [20]byte, symbol string, amount *big.Int) error {
	normalized := normalizeSymbol(symbol)
	if _, err := m.Token(normalized); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("allowance must not be negative")
	}
	return m.KVPut(tokenAllowanceKey(normalized, owner, spender), amount)
}

// Allowance retrieves the remaining spender allowance for the owner account.
func (m *Manager) Allowance(owner, spender [20]byte, symbol string) (*big.Int, error) {
	normalized := normalizeSymbol(symbol)
	amount := new(big.Int)
	ok, err := m.KVGet(tokenAllowanceKey(normalized, owner, spender), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// Transfer moves units between accounts, enforcing the sender balance.
func (m *Manager) Transfer(from, to [20]byte, symbol string, amount *big.Int) error {
	normalized := normalizeSymbol(symbol)
	if _, err := m.Token(normalized); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("transfer amount must be positive")
	}
	fromBalance, err := m.Balance(from, normalized)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance")
	}
	toBalance, err := m.Balance(to, normalized)
	if err != nil {
		return err
	}
	if err := m.setBalance(from, normalized, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return m.setBalance(to, normalized, new(big.Int).Add(toBalance, amount))
}

// TransferFrom moves units from the owner to the recipient on behalf of the
// spender, debiting the spender allowance. Balance and allowance are checked
// before either side is written.
func (m *Manager) TransferFrom(owner, spender, to [20]byte, symbol string, amount *big.Int) error {
	normalized := normalizeSymbol(symbol)
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("transfer amount must be positive")
	}
	allowance, err := m.Allowance(owner, spender, normalized)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient allowance")
	}
	if err := m.Transfer(owner, to, normalized, amount); err != nil {
		return err
	}
	return m.KVPut(tokenAllowanceKey(normalized, owner, spender), new(big.Int).Sub(allowance, amount))
}
