package sale

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
)

// Storage abstracts the subset of state manager functionality required by
// the contribution ledger. KVWriteBatch takes raw (pre-hash) keys mapped to
// pre-encoded values and applies every write in one atomic commit; append
// values extend the byte-slice list under their key with KVAppend's dedupe
// rule.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	KVWriteBatch(puts map[string][]byte, appends map[string][][]byte) error
}

// Ledger persists the sale configuration, running totals, per-buyer
// accounts and the append-only contribution trail in the key-value store.
type Ledger struct {
	store Storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

// Stored representations use RLP-safe field types: unsigned timestamps,
// big.Int amounts, no maps.

type storedSaleConfig struct {
	StartTime         uint64
	EndTime           uint64
	PriceUSD          *big.Int
	TotalAllocation   *big.Int
	SoftCap           *big.Int
	HardCap           *big.Int
	MinimumPurchase   *big.Int
	SoldTokenDecimals uint8
}

type storedSaleTotals struct {
	CollectedByAsset []*big.Int
	TokensSold       *big.Int
	Ended            bool
	Withdrawn        bool
}

type storedUserAccount struct {
	ContributionByAsset []*big.Int
	TokenAllocation     *big.Int
	RefundClaimed       *big.Int
}

type storedContributionRecord struct {
	Asset              string
	UsdAmount          *big.Int
	TokenAmount        *big.Int
	ContributionBefore *big.Int
	ContributionAfter  *big.Int
	AllocationBefore   *big.Int
	AllocationAfter    *big.Int
	Timestamp          uint64
}

func storedTotals(totals *SaleTotals) storedSaleTotals {
	stored := storedSaleTotals{
		CollectedByAsset: make([]*big.Int, len(PaymentAssets)),
		TokensSold:       cloneBigInt(totals.TokensSold),
		Ended:            totals.Ended,
		Withdrawn:        totals.Withdrawn,
	}
	for i := range stored.CollectedByAsset {
		if i < len(totals.CollectedByAsset) {
			stored.CollectedByAsset[i] = cloneBigInt(totals.CollectedByAsset[i])
		} else {
			stored.CollectedByAsset[i] = big.NewInt(0)
		}
	}
	return stored
}

func storedUser(account *UserAccount) storedUserAccount {
	stored := storedUserAccount{
		ContributionByAsset: make([]*big.Int, len(PaymentAssets)),
		TokenAllocation:     cloneBigInt(account.TokenAllocation),
		RefundClaimed:       cloneBigInt(account.RefundClaimed),
	}
	for i := range stored.ContributionByAsset {
		if i < len(account.ContributionByAsset) {
			stored.ContributionByAsset[i] = cloneBigInt(account.ContributionByAsset[i])
		} else {
			stored.ContributionByAsset[i] = big.NewInt(0)
		}
	}
	return stored
}

func storedRecord(record *ContributionRecord) storedContributionRecord {
	return storedContributionRecord{
		Asset:              string(record.Asset),
		UsdAmount:          cloneBigInt(record.UsdAmount),
		TokenAmount:        cloneBigInt(record.TokenAmount),
		ContributionBefore: cloneBigInt(record.ContributionBefore),
		ContributionAfter:  cloneBigInt(record.ContributionAfter),
		AllocationBefore:   cloneBigInt(record.AllocationBefore),
		AllocationAfter:    cloneBigInt(record.AllocationAfter),
		Timestamp:          uint64(record.Timestamp),
	}
}

// PutConfig persists the sale configuration.
func (l *Ledger) PutConfig(cfg *SaleConfig) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("sale ledger not initialised")
	}
	if cfg == nil {
		return fmt.Errorf("sale ledger: config must not be nil")
	}
	stored := storedSaleConfig{
		StartTime:         uint64(cfg.StartTime),
		EndTime:           uint64(cfg.EndTime),
		PriceUSD:          cloneBigInt(cfg.PriceUSD),
		TotalAllocation:   cloneBigInt(cfg.TotalAllocation),
		SoftCap:           cloneBigInt(cfg.SoftCap),
		HardCap:           cloneBigInt(cfg.HardCap),
		MinimumPurchase:   cloneBigInt(cfg.MinimumPurchase),
		SoldTokenDecimals: cfg.SoldTokenDecimals,
	}
	return l.store.KVPut(configKey, stored)
}

// Config retrieves the sale configuration. The boolean reports whether the
// sale has been configured yet.
func (l *Ledger) Config() (*SaleConfig, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, fmt.Errorf("sale ledger not initialised")
	}
	var stored storedSaleConfig
	ok, err := l.store.KVGet(configKey, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	cfg := &SaleConfig{
		StartTime:         int64(stored.StartTime),
		EndTime:           int64(stored.EndTime),
		PriceUSD:          cloneBigInt(stored.PriceUSD),
		TotalAllocation:   cloneBigInt(stored.TotalAllocation),
		SoftCap:           cloneBigInt(stored.SoftCap),
		HardCap:           cloneBigInt(stored.HardCap),
		MinimumPurchase:   cloneBigInt(stored.MinimumPurchase),
		SoldTokenDecimals: stored.SoldTokenDecimals,
	}
	return cfg, true, nil
}

// PutTotals persists the sale totals.
func (l *Ledger) PutTotals(totals *SaleTotals) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("sale ledger not initialised")
	}
	if totals == nil {
		return fmt.Errorf("sale ledger: totals must not be nil")
	}
	return l.store.KVPut(totalsKey, storedTotals(totals))
}

// Totals retrieves the sale totals, defaulting to zeroed counters when the
// sale has seen no activity.
func (l *Ledger) Totals() (*SaleTotals, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("sale ledger not initialised")
	}
	var stored storedSaleTotals
	ok, err := l.store.KVGet(totalsKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newSaleTotals(), nil
	}
	totals := newSaleTotals()
	for i := range totals.CollectedByAsset {
		if i < len(stored.CollectedByAsset) && stored.CollectedByAsset[i] != nil {
			totals.CollectedByAsset[i] = cloneBigInt(stored.CollectedByAsset[i])
		}
	}
	totals.TokensSold = cloneBigInt(stored.TokensSold)
	totals.Ended = stored.Ended
	totals.Withdrawn = stored.Withdrawn
	return totals, nil
}

// PutUser persists a buyer account.
func (l *Ledger) PutUser(account *UserAccount) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("sale ledger not initialised")
	}
	if account == nil {
		return fmt.Errorf("sale ledger: account must not be nil")
	}
	return l.store.KVPut(userKey(account.Address), storedUser(account))
}

// User retrieves a buyer account. The boolean reports whether the buyer has
// contributed before.
func (l *Ledger) User(addr [20]byte) (*UserAccount, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, fmt.Errorf("sale ledger not initialised")
	}
	var stored storedUserAccount
	ok, err := l.store.KVGet(userKey(addr), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	account := newUserAccount(addr)
	for i := range account.ContributionByAsset {
		if i < len(stored.ContributionByAsset) && stored.ContributionByAsset[i] != nil {
			account.ContributionByAsset[i] = cloneBigInt(stored.ContributionByAsset[i])
		}
	}
	account.TokenAllocation = cloneBigInt(stored.TokenAllocation)
	account.RefundClaimed = cloneBigInt(stored.RefundClaimed)
	return account, true, nil
}

// AppendRecord appends an immutable contribution entry to the buyer's audit
// trail.
func (l *Ledger) AppendRecord(record *ContributionRecord) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("sale ledger not initialised")
	}
	if record == nil {
		return fmt.Errorf("sale ledger: record must not be nil")
	}
	encoded, err := rlp.EncodeToBytes(storedRecord(record))
	if err != nil {
		return err
	}
	return l.store.KVAppend(recordsKey(record.Buyer), encoded)
}

// Records returns the buyer's contribution history in insertion order.
func (l *Ledger) Records(addr [20]byte) ([]*ContributionRecord, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("sale ledger not initialised")
	}
	var encoded [][]byte
	if err := l.store.KVGetList(recordsKey(addr), &encoded); err != nil {
		return nil, err
	}
	records := make([]*ContributionRecord, 0, len(encoded))
	for _, raw := range encoded {
		var stored storedContributionRecord
		if err := rlp.DecodeBytes(raw, &stored); err != nil {
			return nil, err
		}
		records = append(records, &ContributionRecord{
			Buyer:              addr,
			Asset:              PaymentAsset(stored.Asset),
			UsdAmount:          cloneBigInt(stored.UsdAmount),
			TokenAmount:        cloneBigInt(stored.TokenAmount),
			ContributionBefore: cloneBigInt(stored.ContributionBefore),
			ContributionAfter:  cloneBigInt(stored.ContributionAfter),
			AllocationBefore:   cloneBigInt(stored.AllocationBefore),
			AllocationAfter:    cloneBigInt(stored.AllocationAfter),
			Timestamp:          int64(stored.Timestamp),
		})
	}
	return records, nil
}

// AddContributor records the buyer in the enumerable contributor index. The
// underlying append deduplicates, so a buyer appears exactly once.
func (l *Ledger) AddContributor(addr [20]byte) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("sale ledger not initialised")
	}
	return l.store.KVAppend(contributorsKey, addr[:])
}

// Contributors returns the full contributor index in first-purchase order.
func (l *Ledger) Contributors() ([][20]byte, error) {
	return l.addressIndex(contributorsKey)
}

// AddRefunded records the buyer in the refunded index.
func (l *Ledger) AddRefunded(addr [20]byte) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("sale ledger not initialised")
	}
	return l.store.KVAppend(refundedKey, addr[:])
}

// Refunded returns the refunded-buyer index in claim order.
func (l *Ledger) Refunded() ([][20]byte, error) {
	return l.addressIndex(refundedKey)
}

// CommitPurchase persists the buyer account, audit record, contributor index
// entry and running totals as one atomic write, so a storage failure cannot
// leave the totals disagreeing with the recorded contributions.
func (l *Ledger) CommitPurchase(account *UserAccount, record *ContributionRecord, totals *SaleTotals, firstContribution bool) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("sale ledger not initialised")
	}
	if account == nil || record == nil || totals == nil {
		return fmt.Errorf("sale ledger: purchase state must not be nil")
	}
	userEncoded, err := rlp.EncodeToBytes(storedUser(account))
	if err != nil {
		return err
	}
	totalsEncoded, err := rlp.EncodeToBytes(storedTotals(totals))
	if err != nil {
		return err
	}
	recordEncoded, err := rlp.EncodeToBytes(storedRecord(record))
	if err != nil {
		return err
	}
	puts := map[string][]byte{
		string(userKey(account.Address)): userEncoded,
		string(totalsKey):                totalsEncoded,
	}
	appends := map[string][][]byte{
		string(recordsKey(record.Buyer)): {recordEncoded},
	}
	if firstContribution {
		appends[string(contributorsKey)] = [][]byte{account.Address[:]}
	}
	return l.store.KVWriteBatch(puts, appends)
}

// CommitRefund latches the buyer's claimed amount and the refunded index
// entry in one atomic write.
func (l *Ledger) CommitRefund(account *UserAccount) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("sale ledger not initialised")
	}
	if account == nil {
		return fmt.Errorf("sale ledger: account must not be nil")
	}
	userEncoded, err := rlp.EncodeToBytes(storedUser(account))
	if err != nil {
		return err
	}
	puts := map[string][]byte{
		string(userKey(account.Address)): userEncoded,
	}
	appends := map[string][][]byte{
		string(refundedKey): {account.Address[:]},
	}
	return l.store.KVWriteBatch(puts, appends)
}

func (l *Ledger) addressIndex(key []byte) ([][20]byte, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("sale ledger not initialised")
	}
	var raw [][]byte
	if err := l.store.KVGetList(key, &raw); err != nil {
		return nil, err
	}
	addrs := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 20 {
			return nil, fmt.Errorf("sale ledger: malformed address entry")
		}
		var addr [20]byte
		copy(addr[:], entry)
		addrs = append(addrs, addr)
	}
	return addrs, nil
}
