package sale

import (
	"errors"
	"math/big"
	"testing"
)

// faultTransferToken rejects a configurable number of transfers before
// delegating to the wrapped token.
type faultTransferToken struct {
	*memToken
	faults int
}

func (t *faultTransferToken) Transfer(from, to [20]byte, amount *big.Int) error {
	if t.faults > 0 {
		t.faults--
		return errors.New("token: transfer rejected")
	}
	return t.memToken.Transfer(from, to, amount)
}

func (env *testEnv) buy(t *testing.T, token *memToken, asset PaymentAsset, buyer [20]byte, amount *big.Int) {
	t.Helper()
	env.fund(token, buyer, amount)
	if _, err := env.engine.Buy(buyer, asset, amount, env.assertion(t, buyer)); err != nil {
		t.Fatalf("buy: %v", err)
	}
}

func (env *testEnv) endByTime(t *testing.T) {
	t.Helper()
	env.now = env.defaultConfig(t).EndTime + 1
}

func TestWithdrawMovesFullCustody(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t)

	softCap := bigFromString(t, "1000000000000")
	usdtLeg := bigFromString(t, "250000000000")
	env.buy(t, env.usdc, PaymentAssetUSDC, [20]byte{0x01}, softCap)
	env.buy(t, env.usdt, PaymentAssetUSDT, [20]byte{0x02}, usdtLeg)
	env.endByTime(t)

	if err := env.engine.Withdraw(env.destination); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := env.engine.Withdraw(env.authority); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	destUSDC, _ := env.usdc.BalanceOf(env.destination)
	destUSDT, _ := env.usdt.BalanceOf(env.destination)
	if destUSDC.Cmp(softCap) != 0 || destUSDT.Cmp(usdtLeg) != 0 {
		t.Fatalf("destination balances %s/%s, want %s/%s", destUSDC, destUSDT, softCap, usdtLeg)
	}
	vaultUSDC, _ := env.usdc.BalanceOf(env.engine.Vault())
	vaultUSDT, _ := env.usdt.BalanceOf(env.engine.Vault())
	if vaultUSDC.Sign() != 0 || vaultUSDT.Sign() != 0 {
		t.Fatalf("vault not emptied: %s/%s", vaultUSDC, vaultUSDT)
	}
	totals, _ := env.engine.ledger.Totals()
	if !totals.Withdrawn || !totals.Ended {
		t.Fatalf("terminal flags not latched: %+v", totals)
	}
	if !env.emitter.has(EventTypeSaleWithdrawn) {
		t.Fatalf("expected withdrawn event, got %v", env.emitter.types)
	}

	if err := env.engine.Withdraw(env.authority); err != ErrFundsAlreadyWithdrawn {
		t.Fatalf("expected ErrFundsAlreadyWithdrawn, got %v", err)
	}
}

func TestWithdrawRetriesAfterTransferFault(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t)
	faulty := &faultTransferToken{memToken: env.usdt}
	env.engine.RegisterToken(PaymentAssetUSDT, faulty)

	softCap := bigFromString(t, "1000000000000")
	usdtLeg := bigFromString(t, "250000000000")
	env.buy(t, env.usdc, PaymentAssetUSDC, [20]byte{0x01}, softCap)
	env.buy(t, env.usdt, PaymentAssetUSDT, [20]byte{0x02}, usdtLeg)
	env.endByTime(t)

	// The second leg fails mid-withdrawal. The terminal flags must stay
	// clear so the remaining custody is not stranded behind the one-shot
	// check.
	faulty.faults = 1
	if err := env.engine.Withdraw(env.authority); err == nil {
		t.Fatalf("expected withdraw to fail on transfer fault")
	}
	totals, err := env.engine.ledger.Totals()
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Withdrawn {
		t.Fatalf("withdrawn flag latched despite transfer fault")
	}
	vaultUSDT, _ := env.usdt.BalanceOf(env.engine.Vault())
	if vaultUSDT.Cmp(usdtLeg) != 0 {
		t.Fatalf("vault USDT %s after failed withdraw, want %s", vaultUSDT, usdtLeg)
	}

	// With the fault cleared the retry completes the withdrawal.
	if err := env.engine.Withdraw(env.authority); err != nil {
		t.Fatalf("withdraw retry: %v", err)
	}
	destUSDC, _ := env.usdc.BalanceOf(env.destination)
	destUSDT, _ := env.usdt.BalanceOf(env.destination)
	if destUSDC.Cmp(softCap) != 0 || destUSDT.Cmp(usdtLeg) != 0 {
		t.Fatalf("destination balances %s/%s, want %s/%s", destUSDC, destUSDT, softCap, usdtLeg)
	}
	totals, _ = env.engine.ledger.Totals()
	if !totals.Withdrawn || !totals.Ended {
		t.Fatalf("terminal flags not latched after retry: %+v", totals)
	}
	if err := env.engine.Withdraw(env.authority); err != ErrFundsAlreadyWithdrawn {
		t.Fatalf("expected ErrFundsAlreadyWithdrawn, got %v", err)
	}
}

func TestWithdrawGating(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t)
	softCap := bigFromString(t, "1000000000000")
	env.buy(t, env.usdc, PaymentAssetUSDC, [20]byte{0x01}, softCap)

	// Sale still running.
	if err := env.engine.Withdraw(env.authority); err != ErrSaleNotEnded {
		t.Fatalf("expected ErrSaleNotEnded, got %v", err)
	}
	// Manual close latches ended ahead of schedule; withdrawal unblocks.
	if err := env.engine.Close(env.authority); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := env.engine.Withdraw(env.authority); err != nil {
		t.Fatalf("withdraw after close: %v", err)
	}
}

func TestWithdrawRequiresSoftCap(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t)
	env.buy(t, env.usdc, PaymentAssetUSDC, [20]byte{0x01}, bigFromString(t, "500000000000"))
	env.endByTime(t)
	if err := env.engine.Withdraw(env.authority); err != ErrSoftCapNotReached {
		t.Fatalf("expected ErrSoftCapNotReached, got %v", err)
	}
}

func TestClaimRefundReturnsBothLegs(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t)
	buyer := [20]byte{0x01}
	usdcLeg := bigFromString(t, "500000000")
	usdtLeg := bigFromString(t, "300000000")
	env.buy(t, env.usdc, PaymentAssetUSDC, buyer, usdcLeg)
	env.buy(t, env.usdt, PaymentAssetUSDT, buyer, usdtLeg)

	if err := env.engine.ClaimRefund(buyer, buyer); err != ErrSaleNotEnded {
		t.Fatalf("expected ErrSaleNotEnded, got %v", err)
	}
	env.endByTime(t)

	if err := env.engine.ClaimRefund([20]byte{0x99}, buyer); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for stranger, got %v", err)
	}
	if err := env.engine.ClaimRefund(buyer, buyer); err != nil {
		t.Fatalf("claim: %v", err)
	}

	gotUSDC, _ := env.usdc.BalanceOf(buyer)
	gotUSDT, _ := env.usdt.BalanceOf(buyer)
	if gotUSDC.Cmp(usdcLeg) != 0 || gotUSDT.Cmp(usdtLeg) != 0 {
		t.Fatalf("refunded %s/%s, want %s/%s", gotUSDC, gotUSDT, usdcLeg, usdtLeg)
	}
	account, _, err := env.engine.ledger.User(buyer)
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	wantTotal := new(big.Int).Add(usdcLeg, usdtLeg)
	if account.RefundClaimed.Cmp(wantTotal) != 0 {
		t.Fatalf("refundClaimed %s, want %s", account.RefundClaimed, wantTotal)
	}
	refunded, total, err := env.engine.RefundedBuyers(0, 0)
	if err != nil {
		t.Fatalf("refunded: %v", err)
	}
	if total != 1 || len(refunded) != 1 || refunded[0] != buyer {
		t.Fatalf("unexpected refunded index: total=%d %v", total, refunded)
	}
	if !env.emitter.has(EventTypeSaleRefundClaimed) {
		t.Fatalf("expected refund event, got %v", env.emitter.types)
	}

	if err := env.engine.ClaimRefund(buyer, buyer); err != ErrRefundAlreadyClaimed {
		t.Fatalf("expected ErrRefundAlreadyClaimed, got %v", err)
	}
}

func TestClaimRefundByAuthority(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t)
	buyer := [20]byte{0x02}
	amount := bigFromString(t, "500000000")
	env.buy(t, env.usdc, PaymentAssetUSDC, buyer, amount)
	env.endByTime(t)
	if err := env.engine.ClaimRefund(env.authority, buyer); err != nil {
		t.Fatalf("authority claim: %v", err)
	}
	balance, _ := env.usdc.BalanceOf(buyer)
	if balance.Cmp(amount) != 0 {
		t.Fatalf("refund went to %s, want %s at buyer", balance, amount)
	}
}

func TestClaimRefundBlockedAboveSoftCap(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t)
	buyer := [20]byte{0x03}
	env.buy(t, env.usdc, PaymentAssetUSDC, buyer, bigFromString(t, "1000000000000"))
	env.endByTime(t)
	if err := env.engine.ClaimRefund(buyer, buyer); err != ErrSoftCapReached {
		t.Fatalf("expected ErrSoftCapReached, got %v", err)
	}
}

func TestClaimRefundWithoutContribution(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t)
	env.buy(t, env.usdc, PaymentAssetUSDC, [20]byte{0x04}, bigFromString(t, "500000000"))
	env.endByTime(t)
	stranger := [20]byte{0x05}
	if err := env.engine.ClaimRefund(stranger, stranger); err != ErrNoUserContribution {
		t.Fatalf("expected ErrNoUserContribution, got %v", err)
	}
}

func TestClaimRefundAbortsOnCustodyShortfall(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t)
	buyer := [20]byte{0x06}
	usdcLeg := bigFromString(t, "500000000")
	usdtLeg := bigFromString(t, "300000000")
	env.buy(t, env.usdc, PaymentAssetUSDC, buyer, usdcLeg)
	env.buy(t, env.usdt, PaymentAssetUSDT, buyer, usdtLeg)
	env.endByTime(t)

	// Drain the second leg's custody so the claim cannot be fully served.
	drained := env.usdt.balances[env.engine.Vault()]
	env.usdt.balances[env.engine.Vault()] = big.NewInt(0)

	if err := env.engine.ClaimRefund(buyer, buyer); err != ErrInsufficientCustody {
		t.Fatalf("expected ErrInsufficientCustody, got %v", err)
	}
	account, _, _ := env.engine.ledger.User(buyer)
	if account.RefundClaimed.Sign() != 0 {
		t.Fatalf("claim latched despite shortfall: %s", account.RefundClaimed)
	}
	balance, _ := env.usdc.BalanceOf(buyer)
	if balance.Sign() != 0 {
		t.Fatalf("partial refund paid out: %s", balance)
	}

	// Restoring custody lets the same claim succeed in full.
	env.usdt.balances[env.engine.Vault()] = drained
	if err := env.engine.ClaimRefund(buyer, buyer); err != nil {
		t.Fatalf("claim after top-up: %v", err)
	}
	gotUSDC, _ := env.usdc.BalanceOf(buyer)
	gotUSDT, _ := env.usdt.BalanceOf(buyer)
	if gotUSDC.Cmp(usdcLeg) != 0 || gotUSDT.Cmp(usdtLeg) != 0 {
		t.Fatalf("refunded %s/%s, want %s/%s", gotUSDC, gotUSDT, usdcLeg, usdtLeg)
	}
}
