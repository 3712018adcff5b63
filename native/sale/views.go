package sale

import "math/big"

// Read-only reporting accessors. Pagination uses offset/limit and always
// returns the total count alongside the page.

func paginate(total, offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return offset, end
}

// Status reports the derived sale status flags.
func (e *Engine) Status() (*SaleStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg, ok, err := e.ledger.Config()
	if err != nil {
		return nil, err
	}
	if !ok {
		return &SaleStatus{}, nil
	}
	totals, err := e.ledger.Totals()
	if err != nil {
		return nil, err
	}
	phase, err := e.phaseLocked()
	if err != nil {
		return nil, err
	}
	collected := totals.Collected()
	return &SaleStatus{
		IsActive:       phase == PhaseActive,
		IsEnded:        phase == PhaseEnded,
		SoftCapReached: collected.Cmp(cfg.SoftCap) >= 0,
		HardCapReached: collected.Cmp(cfg.HardCap) >= 0,
	}, nil
}

// UserInfo reports a buyer's contributions, allocation, refund state, and
// current refund eligibility.
func (e *Engine) UserInfo(buyer [20]byte) (*UserInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	account, exists, err := e.ledger.User(buyer)
	if err != nil {
		return nil, err
	}
	if !exists {
		account = newUserAccount(buyer)
	}
	info := &UserInfo{
		Address:             buyer,
		ContributionByAsset: make([]*big.Int, len(account.ContributionByAsset)),
		TotalContribution:   account.TotalContribution(),
		TokenAllocation:     cloneBigInt(account.TokenAllocation),
		RefundClaimed:       cloneBigInt(account.RefundClaimed),
	}
	for i, amount := range account.ContributionByAsset {
		info.ContributionByAsset[i] = cloneBigInt(amount)
	}
	cfg, ok, err := e.ledger.Config()
	if err != nil {
		return nil, err
	}
	if ok {
		totals, err := e.ledger.Totals()
		if err != nil {
			return nil, err
		}
		phase, err := e.phaseLocked()
		if err != nil {
			return nil, err
		}
		info.RefundEligible = phase == PhaseEnded &&
			totals.Collected().Cmp(cfg.SoftCap) < 0 &&
			info.TotalContribution.Sign() > 0 &&
			info.RefundClaimed.Sign() == 0
	}
	return info, nil
}

// QuoteTokens previews the sold-token amount for a prospective contribution.
// Pure with respect to sale state: it reads only the configured price and
// asset precision.
func (e *Engine) QuoteTokens(asset PaymentAsset, usdAmount *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg, ok, err := e.ledger.Config()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSaleNotConfigured
	}
	token, registered := e.tokens[asset]
	if !asset.Valid() || !registered {
		return nil, ErrInvalidPaymentToken
	}
	return ConvertUSDToTokens(usdAmount, token.Decimals(), cfg.SoldTokenDecimals, cfg.PriceUSD)
}

// Contributors returns a page of the contributor list plus the total count.
func (e *Engine) Contributors(offset, limit int) ([][20]byte, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	addrs, err := e.ledger.Contributors()
	if err != nil {
		return nil, 0, err
	}
	start, end := paginate(len(addrs), offset, limit)
	return addrs[start:end], len(addrs), nil
}

// RefundedBuyers returns a page of the refunded-buyer list plus the total
// count.
func (e *Engine) RefundedBuyers(offset, limit int) ([][20]byte, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	addrs, err := e.ledger.Refunded()
	if err != nil {
		return nil, 0, err
	}
	start, end := paginate(len(addrs), offset, limit)
	return addrs[start:end], len(addrs), nil
}

// PurchaseHistory returns a page of the buyer's contribution records plus
// the total count.
func (e *Engine) PurchaseHistory(buyer [20]byte, offset, limit int) ([]*ContributionRecord, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	records, err := e.ledger.Records(buyer)
	if err != nil {
		return nil, 0, err
	}
	start, end := paginate(len(records), offset, limit)
	page := make([]*ContributionRecord, 0, end-start)
	for _, record := range records[start:end] {
		page = append(page, record.Clone())
	}
	return page, len(records), nil
}
