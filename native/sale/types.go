package sale

import "math/big"

// PaymentAsset enumerates the fiat-backed stablecoins accepted as payment.
type PaymentAsset string

const (
	// PaymentAssetUSDC represents USD Coin contributions.
	PaymentAssetUSDC PaymentAsset = "USDC"
	// PaymentAssetUSDT represents Tether USD contributions.
	PaymentAssetUSDT PaymentAsset = "USDT"
)

// PaymentAssets fixes the ledger ordering of the two accepted assets.
var PaymentAssets = [...]PaymentAsset{PaymentAssetUSDC, PaymentAssetUSDT}

// Valid reports whether the asset is one of the configured payment assets.
func (a PaymentAsset) Valid() bool {
	_, ok := assetIndex(a)
	return ok
}

func assetIndex(a PaymentAsset) (int, bool) {
	for i, asset := range PaymentAssets {
		if asset == a {
			return i, true
		}
	}
	return 0, false
}

// SalePhase is derived from wall-clock time plus the latched ended bit.
type SalePhase uint8

const (
	PhaseNotStarted SalePhase = iota
	PhaseActive
	PhaseEnded
)

func (p SalePhase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// SaleConfig holds the sale parameters. Mutable only before activation;
// after the start time only EndTime and MinimumPurchase may change via the
// restricted schedule update.
type SaleConfig struct {
	StartTime         int64
	EndTime           int64
	PriceUSD          *big.Int // 18-decimal USD per whole sold token
	TotalAllocation   *big.Int // sold-token base units
	SoftCap           *big.Int // stable base units
	HardCap           *big.Int // stable base units
	MinimumPurchase   *big.Int // stable base units
	SoldTokenDecimals uint8
}

// Clone returns a deep copy of the configuration.
func (c *SaleConfig) Clone() *SaleConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.PriceUSD = cloneBigInt(c.PriceUSD)
	clone.TotalAllocation = cloneBigInt(c.TotalAllocation)
	clone.SoftCap = cloneBigInt(c.SoftCap)
	clone.HardCap = cloneBigInt(c.HardCap)
	clone.MinimumPurchase = cloneBigInt(c.MinimumPurchase)
	return &clone
}

// SaleTotals aggregates the monotonic sale counters plus the two terminal
// flags. Collected is derived, never stored.
type SaleTotals struct {
	CollectedByAsset []*big.Int // indexed by PaymentAssets order
	TokensSold       *big.Int
	Ended            bool
	Withdrawn        bool
}

// Collected sums the per-asset totals.
func (t *SaleTotals) Collected() *big.Int {
	sum := big.NewInt(0)
	if t == nil {
		return sum
	}
	for _, amount := range t.CollectedByAsset {
		if amount != nil {
			sum.Add(sum, amount)
		}
	}
	return sum
}

// Clone returns a deep copy of the totals.
func (t *SaleTotals) Clone() *SaleTotals {
	if t == nil {
		return nil
	}
	clone := &SaleTotals{
		TokensSold: cloneBigInt(t.TokensSold),
		Ended:      t.Ended,
		Withdrawn:  t.Withdrawn,
	}
	clone.CollectedByAsset = make([]*big.Int, len(t.CollectedByAsset))
	for i, amount := range t.CollectedByAsset {
		clone.CollectedByAsset[i] = cloneBigInt(amount)
	}
	return clone
}

func newSaleTotals() *SaleTotals {
	totals := &SaleTotals{
		CollectedByAsset: make([]*big.Int, len(PaymentAssets)),
		TokensSold:       big.NewInt(0),
	}
	for i := range totals.CollectedByAsset {
		totals.CollectedByAsset[i] = big.NewInt(0)
	}
	return totals
}

// UserAccount tracks a buyer's running totals. Created lazily on first
// purchase; RefundClaimed stays zero until the one-shot refund.
type UserAccount struct {
	Address             [20]byte
	ContributionByAsset []*big.Int // indexed by PaymentAssets order
	TokenAllocation     *big.Int
	RefundClaimed       *big.Int
}

// TotalContribution sums the per-asset contributions.
func (u *UserAccount) TotalContribution() *big.Int {
	sum := big.NewInt(0)
	if u == nil {
		return sum
	}
	for _, amount := range u.ContributionByAsset {
		if amount != nil {
			sum.Add(sum, amount)
		}
	}
	return sum
}

// Clone returns a deep copy of the account.
func (u *UserAccount) Clone() *UserAccount {
	if u == nil {
		return nil
	}
	clone := &UserAccount{
		Address:         u.Address,
		TokenAllocation: cloneBigInt(u.TokenAllocation),
		RefundClaimed:   cloneBigInt(u.RefundClaimed),
	}
	clone.ContributionByAsset = make([]*big.Int, len(u.ContributionByAsset))
	for i, amount := range u.ContributionByAsset {
		clone.ContributionByAsset[i] = cloneBigInt(amount)
	}
	return clone
}

func newUserAccount(addr [20]byte) *UserAccount {
	account := &UserAccount{
		Address:             addr,
		ContributionByAsset: make([]*big.Int, len(PaymentAssets)),
		TokenAllocation:     big.NewInt(0),
		RefundClaimed:       big.NewInt(0),
	}
	for i := range account.ContributionByAsset {
		account.ContributionByAsset[i] = big.NewInt(0)
	}
	return account
}

// ContributionRecord is the immutable audit entry appended for every
// accepted purchase.
type ContributionRecord struct {
	Buyer              [20]byte
	Asset              PaymentAsset
	UsdAmount          *big.Int
	TokenAmount        *big.Int
	ContributionBefore *big.Int
	ContributionAfter  *big.Int
	AllocationBefore   *big.Int
	AllocationAfter    *big.Int
	Timestamp          int64
}

// Clone returns a deep copy of the record.
func (r *ContributionRecord) Clone() *ContributionRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.UsdAmount = cloneBigInt(r.UsdAmount)
	clone.TokenAmount = cloneBigInt(r.TokenAmount)
	clone.ContributionBefore = cloneBigInt(r.ContributionBefore)
	clone.ContributionAfter = cloneBigInt(r.ContributionAfter)
	clone.AllocationBefore = cloneBigInt(r.AllocationBefore)
	clone.AllocationAfter = cloneBigInt(r.AllocationAfter)
	return &clone
}

// SaleStatus is the outward status summary.
type SaleStatus struct {
	IsActive       bool
	IsEnded        bool
	SoftCapReached bool
	HardCapReached bool
}

// UserInfo is the outward per-buyer summary.
type UserInfo struct {
	Address             [20]byte
	ContributionByAsset []*big.Int
	TotalContribution   *big.Int
	TokenAllocation     *big.Int
	RefundClaimed       *big.Int
	RefundEligible      bool
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
