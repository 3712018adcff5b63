package sale

import "math/big"

// Withdraw resolves the sale on the success path: once the sale has ended
// with the soft cap met, the entire custodied balance of both payment assets
// moves to the destination account. One-shot; never partially withdraws.
func (e *Engine) Withdraw(caller [20]byte) error {
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
	totals, err := e.ledger.Totals()
	if err != nil {
		return err
	}
	if totals.Withdrawn {
		return ErrFundsAlreadyWithdrawn
	}
	if !totals.Ended && e.now() < cfg.EndTime {
		return ErrSaleNotEnded
	}
	if totals.Collected().Cmp(cfg.SoftCap) < 0 {
		return ErrSoftCapNotReached
	}

	// Move the full custodied balance of every asset before latching the
	// one-shot flags. The mutex and call guard keep re-entry out while funds
	// move, and a transfer failure leaves the flags clear so the withdrawal
	// can be retried once the fault is resolved.
	for _, asset := range PaymentAssets {
		token, ok := e.tokens[asset]
		if !ok {
			continue
		}
		balance, err := token.BalanceOf(e.vault)
		if err != nil {
			return err
		}
		if balance.Sign() == 0 {
			continue
		}
		if err := token.Transfer(e.vault, e.destination, balance); err != nil {
			return err
		}
	}
	totals.Ended = true
	totals.Withdrawn = true
	if err := e.ledger.PutTotals(totals); err != nil {
		return err
	}
	e.emit(newWithdrawnEvent(totals, e.destination))
	return nil
}

// ClaimRefund resolves a single buyer on the failure path: once the sale has
// ended below the soft cap, the buyer recovers exactly their own per-asset
// contributions. Callable by the buyer or by the authority on the buyer's
// behalf. A custody shortfall on either asset aborts the whole claim before
// anything is marked claimed.
func (e *Engine) ClaimRefund(caller, buyer [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if caller != buyer && caller != e.authority {
		return ErrUnauthorized
	}
	cfg, ok, err := e.ledger.Config()
	if err != nil {
		return err
	}
	if !ok {
		return ErrSaleNotConfigured
	}
	totals, err := e.ledger.Totals()
	if err != nil {
		return err
	}
	if !totals.Ended && e.now() < cfg.EndTime {
		return ErrSaleNotEnded
	}
	if totals.Collected().Cmp(cfg.SoftCap) >= 0 {
		return ErrSoftCapReached
	}
	account, exists, err := e.ledger.User(buyer)
	if err != nil {
		return err
	}
	total := account.TotalContribution()
	if !exists || total.Sign() == 0 {
		return ErrNoUserContribution
	}
	if account.RefundClaimed.Sign() > 0 {
		return ErrRefundAlreadyClaimed
	}

	// Confirm custody covers every leg before mutating anything, so a
	// shortfall cannot strand part of the refund behind a claimed flag.
	refunds := make([]*big.Int, len(PaymentAssets))
	for i, asset := range PaymentAssets {
		amount := account.ContributionByAsset[i]
		refunds[i] = cloneBigInt(amount)
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		token, ok := e.tokens[asset]
		if !ok {
			return ErrInvalidPaymentToken
		}
		balance, err := token.BalanceOf(e.vault)
		if err != nil {
			return err
		}
		if balance.Cmp(amount) < 0 {
			return ErrInsufficientCustody
		}
	}

	account.RefundClaimed = total
	if err := e.ledger.CommitRefund(account); err != nil {
		return err
	}
	for i, asset := range PaymentAssets {
		if refunds[i].Sign() == 0 {
			continue
		}
		if err := e.tokens[asset].Transfer(e.vault, buyer, refunds[i]); err != nil {
			return err
		}
	}
	e.emit(newRefundClaimedEvent(buyer, refunds, total))
	return nil
}
