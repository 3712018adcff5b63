package sale

import (
	"errors"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"salechain/core/events"
	"salechain/core/types"
	"salechain/native/common"
)

const moduleName = "sale"

var errNilState = errors.New("sale engine: state not configured")

// TokenService is the boundary contract required of each payment asset: a
// balance query, an allowance query scoped to the sale vault, and transfer
// primitives with standard pull semantics.
type TokenService interface {
	Decimals() uint8
	BalanceOf(addr [20]byte) (*big.Int, error)
	Allowance(owner [20]byte) (*big.Int, error)
	TransferFrom(owner, to [20]byte, amount *big.Int) error
	Transfer(from, to [20]byte, amount *big.Int) error
}

// VaultAddress derives the custody address holding contributed funds until
// settlement or refund.
func VaultAddress() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("sale/module/vault"))[12:])
	return addr
}

// Engine orchestrates the sale: configuration, purchases, and terminal
// settlement or refund. Every public operation runs under a single mutex so
// callers observe strictly serialized state, with a call guard as a backstop
// against re-entry from transfer callbacks.
type Engine struct {
	mu    sync.Mutex
	guard common.CallGuard

	ledger      *Ledger
	tokens      map[PaymentAsset]TokenService
	authorizer  Authorizer
	emitter     events.Emitter
	pauses      common.PauseView
	authority   [20]byte
	destination [20]byte
	vault       [20]byte
	nowFn       func() int64
}

// NewEngine creates a sale engine bound to the provided storage backend.
func NewEngine(store Storage) *Engine {
	return &Engine{
		ledger:  NewLedger(store),
		tokens:  make(map[PaymentAsset]TokenService),
		emitter: events.NoopEmitter{},
		vault:   VaultAddress(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetAuthority configures the operating authority allowed to run restricted
// operations.
func (e *Engine) SetAuthority(addr [20]byte) { e.authority = addr }

// SetDestination configures the settlement recipient.
func (e *Engine) SetDestination(addr [20]byte) { e.destination = addr }

// SetAuthorizer installs the whitelist verifier used during purchases.
func (e *Engine) SetAuthorizer(authorizer Authorizer) { e.authorizer = authorizer }

// RotateAuthorizer swaps the whitelist verifier. Restricted to the operating
// authority; not part of the purchase hot path.
func (e *Engine) RotateAuthorizer(caller [20]byte, authorizer Authorizer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.authority {
		return ErrUnauthorized
	}
	if authorizer == nil {
		return ErrInvalidSignature
	}
	e.authorizer = authorizer
	return nil
}

// SetPauses configures the administrative pause view consulted before every
// mutating operation.
func (e *Engine) SetPauses(pauses common.PauseView) { e.pauses = pauses }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// RegisterToken binds a payment asset to its token service.
func (e *Engine) RegisterToken(asset PaymentAsset, svc TokenService) {
	if !asset.Valid() || svc == nil {
		return
	}
	e.tokens[asset] = svc
}

// Vault returns the custody address.
func (e *Engine) Vault() [20]byte { return e.vault }

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(saleEvent{evt: event})
}

func (e *Engine) enter() error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		e.guard.Exit()
		return err
	}
	return nil
}

// Configure accepts the sale parameters. Reconfiguration is permitted until
// the sale activates; once the start time has passed only the restricted
// schedule update may touch the configuration.
func (e *Engine) Configure(caller [20]byte, cfg *SaleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if e.ledger == nil {
		return errNilState
	}
	if caller != e.authority {
		return ErrUnauthorized
	}
	if cfg == nil {
		return ErrInvalidAmount
	}
	now := e.now()
	if cfg.StartTime >= cfg.EndTime || cfg.StartTime < now {
		return ErrInvalidTimeRange
	}
	for _, amount := range []*big.Int{cfg.PriceUSD, cfg.TotalAllocation, cfg.SoftCap, cfg.HardCap, cfg.MinimumPurchase} {
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
	}
	if cfg.SoftCap.Cmp(cfg.HardCap) >= 0 {
		return ErrInvalidAmount
	}
	if existing, ok, err := e.ledger.Config(); err != nil {
		return err
	} else if ok && now >= existing.StartTime {
		return ErrSaleAlreadyStarted
	}
	if err := e.ledger.PutConfig(cfg); err != nil {
		return err
	}
	e.emit(newConfiguredEvent(cfg))
	return nil
}

// UpdateSchedule adjusts the end time and minimum purchase after activation.
// The new end time can neither precede the start time nor sit in the past.
func (e *Engine) UpdateSchedule(caller [20]byte, newEndTime int64, newMinimumPurchase *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if caller != e.authority {
		return ErrUnauthorized
	}
	cfg, ok, err := e.ledger.Config()
	if err != nil {
		return err
	}
	if !ok {
		return ErrSaleNotConfigured
	}
	if newEndTime <= cfg.StartTime || newEndTime <= e.now() {
		return ErrInvalidTimeRange
	}
	if newMinimumPurchase == nil || newMinimumPurchase.Sign() <= 0 {
		return ErrInvalidAmount
	}
	cfg.EndTime = newEndTime
	cfg.MinimumPurchase = cloneBigInt(newMinimumPurchase)
	if err := e.ledger.PutConfig(cfg); err != nil {
		return err
	}
	e.emit(newScheduleUpdatedEvent(cfg))
	return nil
}

// Phase derives the current sale phase from wall-clock time, the configured
// window, and the latched ended bit.
func (e *Engine) Phase() (SalePhase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phaseLocked()
}

func (e *Engine) phaseLocked() (SalePhase, error) {
	cfg, ok, err := e.ledger.Config()
	if err != nil {
		return PhaseNotStarted, err
	}
	if !ok {
		return PhaseNotStarted, nil
	}
	totals, err := e.ledger.Totals()
	if err != nil {
		return PhaseNotStarted, err
	}
	if totals.Ended {
		return PhaseEnded, nil
	}
	now := e.now()
	switch {
	case now < cfg.StartTime:
		return PhaseNotStarted, nil
	case now >= cfg.EndTime:
		return PhaseEnded, nil
	default:
		return PhaseActive, nil
	}
}

// Close latches the ended flag ahead of the scheduled end time. Restricted
// to the operating authority.
func (e *Engine) Close(caller [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if caller != e.authority {
		return ErrUnauthorized
	}
	if _, ok, err := e.ledger.Config(); err != nil {
		return err
	} else if !ok {
		return ErrSaleNotConfigured
	}
	totals, err := e.ledger.Totals()
	if err != nil {
		return err
	}
	if totals.Ended {
		return ErrSaleAlreadyEnded
	}
	totals.Ended = true
	if err := e.ledger.PutTotals(totals); err != nil {
		return err
	}
	e.emit(newEndedEvent(totals))
	return nil
}

// Buy executes a single purchase: phase, cap, authorization and funds checks
// in order, then the asset pull, then the ledger mutations. Any failure
// aborts the whole operation.
func (e *Engine) Buy(buyer [20]byte, asset PaymentAsset, usdAmount *big.Int, assertion []byte) (*ContributionRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.guard.Exit()

	cfg, ok, err := e.ledger.Config()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSaleNotActive
	}
	totals, err := e.ledger.Totals()
	if err != nil {
		return nil, err
	}
	if totals.Ended {
		return nil, ErrSaleAlreadyEnded
	}
	now := e.now()
	if now < cfg.StartTime {
		return nil, ErrSaleNotActive
	}
	if now >= cfg.EndTime {
		return nil, ErrSaleAlreadyEnded
	}
	if usdAmount == nil || usdAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if usdAmount.Cmp(cfg.MinimumPurchase) < 0 {
		return nil, ErrBelowMinimumPurchase
	}
	assetIdx, ok := assetIndex(asset)
	if !ok {
		return nil, ErrInvalidPaymentToken
	}
	token, ok := e.tokens[asset]
	if !ok {
		return nil, ErrInvalidPaymentToken
	}
	// Cap check precedes signature verification so over-cap attempts fail
	// before the more expensive recovery.
	collected := totals.Collected()
	if new(big.Int).Add(collected, usdAmount).Cmp(cfg.HardCap) > 0 {
		return nil, ErrExceedsHardCap
	}
	if e.authorizer == nil {
		return nil, ErrInvalidSignature
	}
	if err := e.authorizer.Verify(buyer, assertion); err != nil {
		return nil, err
	}
	// Pre-flight funds checks make failures attributable before the pull.
	balance, err := token.BalanceOf(buyer)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(usdAmount) < 0 {
		return nil, ErrInsufficientBalance
	}
	allowance, err := token.Allowance(buyer)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(usdAmount) < 0 {
		return nil, ErrInsufficientAllowance
	}
	tokenAmount, err := ConvertUSDToTokens(usdAmount, token.Decimals(), cfg.SoldTokenDecimals, cfg.PriceUSD)
	if err != nil {
		return nil, err
	}
	newSold := new(big.Int).Add(totals.TokensSold, tokenAmount)
	if newSold.Cmp(cfg.TotalAllocation) > 0 {
		return nil, ErrTotalAllocationExceeded
	}

	if err := token.TransferFrom(buyer, e.vault, usdAmount); err != nil {
		return nil, err
	}

	account, existed, err := e.ledger.User(buyer)
	if err != nil {
		return nil, err
	}
	if !existed {
		account = newUserAccount(buyer)
	}
	firstContribution := account.TotalContribution().Sign() == 0

	record := &ContributionRecord{
		Buyer:              buyer,
		Asset:              asset,
		UsdAmount:          cloneBigInt(usdAmount),
		TokenAmount:        tokenAmount,
		ContributionBefore: account.TotalContribution(),
		AllocationBefore:   cloneBigInt(account.TokenAllocation),
		Timestamp:          now,
	}

	account.ContributionByAsset[assetIdx] = new(big.Int).Add(account.ContributionByAsset[assetIdx], usdAmount)
	account.TokenAllocation = new(big.Int).Add(account.TokenAllocation, tokenAmount)
	record.ContributionAfter = account.TotalContribution()
	record.AllocationAfter = cloneBigInt(account.TokenAllocation)

	totals.CollectedByAsset[assetIdx] = new(big.Int).Add(totals.CollectedByAsset[assetIdx], usdAmount)
	totals.TokensSold = newSold
	if totals.Collected().Cmp(cfg.HardCap) >= 0 {
		totals.Ended = true
	}

	// All ledger writes land in one atomic commit. If the commit fails the
	// pulled funds go back to the buyer so neither side is left holding a
	// half-recorded purchase.
	if err := e.ledger.CommitPurchase(account, record, totals, firstContribution); err != nil {
		if returnErr := token.Transfer(e.vault, buyer, usdAmount); returnErr != nil {
			return nil, errors.Join(err, returnErr)
		}
		return nil, err
	}

	e.emit(newPurchasedEvent(record))
	if totals.Ended {
		e.emit(newEndedEvent(totals))
	}
	return record.Clone(), nil
}
