package state

import "math/big"

// BoundToken is a view of one registered asset with a fixed spender, wired
// into the sale engine as its per-asset token service. Allowance and
// TransferFrom act on behalf of the bound spender (the sale vault).
type BoundToken struct {
	manager  *Manager
	symbol   string
	decimals uint8
	spender  [20]byte
}

// BindToken resolves the asset metadata and returns a spender-bound view.
func (m *Manager) BindToken(symbol string, spender [20]byte) (*BoundToken, error) {
	meta, err := m.Token(symbol)
	if err != nil {
		return nil, err
	}
	return &BoundToken{manager: m, symbol: meta.Symbol, decimals: meta.Decimals, spender: spender}, nil
}

// Decimals returns the asset's decimal precision, queried once at bind time
// and treated as fixed thereafter.
func (t *BoundToken) Decimals() uint8 { return t.decimals }

// BalanceOf returns the account's balance in asset base units.
func (t *BoundToken) BalanceOf(addr [20]byte) (*big.Int, error) {
	return t.manager.Balance(addr, t.symbol)
}

// Allowance returns the amount the owner has pre-authorized the bound
// spender to pull.
func (t *BoundToken) Allowance(owner [20]byte) (*big.Int, error) {
	return t.manager.Allowance(owner, t.spender, t.symbol)
}

// TransferFrom pulls funds from the owner to the recipient using the bound
// spender's allowance.
func (t *BoundToken) TransferFrom(owner, to [20]byte, amount *big.Int) error {
	return t.manager.TransferFrom(owner, t.spender, to, t.symbol, amount)
}

// Transfer moves funds directly between accounts, enforcing the sender
// balance only. Used for custody-outbound movements.
func (t *BoundToken) Transfer(from, to [20]byte, amount *big.Int) error {
	return t.manager.Transfer(from, to, t.symbol, amount)
}
