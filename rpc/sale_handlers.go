package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"salechain/native/common"
	"salechain/native/sale"
)

const (
	codeSaleInvalidParams = -32041
	codeSaleNotFound      = -32042
	codeSaleForbidden     = -32043
	codeSaleConflict      = -32044
	codeSaleInternal      = -32045
)

type saleConfigureParams struct {
	Caller            string `json:"caller"`
	StartTime         int64  `json:"startTime"`
	EndTime           int64  `json:"endTime"`
	PriceUSD          string `json:"priceUsd"`
	TotalAllocation   string `json:"totalAllocation"`
	SoftCap           string `json:"softCap"`
	HardCap           string `json:"hardCap"`
	MinimumPurchase   string `json:"minimumPurchase"`
	SoldTokenDecimals uint8  `json:"soldTokenDecimals"`
}

type saleUpdateScheduleParams struct {
	Caller          string `json:"caller"`
	EndTime         int64  `json:"endTime"`
	MinimumPurchase string `json:"minimumPurchase"`
}

type saleCallerParams struct {
	Caller string `json:"caller"`
}

type saleBuyParams struct {
	Buyer     string `json:"buyer"`
	Asset     string `json:"asset"`
	UsdAmount string `json:"usdAmount"`
	Assertion string `json:"assertion"`
}

type saleClaimRefundParams struct {
	Caller string `json:"caller"`
	Buyer  string `json:"buyer"`
}

type saleBuyerParams struct {
	Buyer string `json:"buyer"`
}

type saleQuoteParams struct {
	Asset     string `json:"asset"`
	UsdAmount string `json:"usdAmount"`
}

type salePageParams struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

type saleHistoryParams struct {
	Buyer  string `json:"buyer"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

type saleStatusResult struct {
	Phase          string `json:"phase"`
	IsActive       bool   `json:"isActive"`
	IsEnded        bool   `json:"isEnded"`
	SoftCapReached bool   `json:"softCapReached"`
	HardCapReached bool   `json:"hardCapReached"`
}

type saleUserInfoResult struct {
	Address             string            `json:"address"`
	ContributionByAsset map[string]string `json:"contributionByAsset"`
	TotalContribution   string            `json:"totalContribution"`
	TokenAllocation     string            `json:"tokenAllocation"`
	RefundClaimed       string            `json:"refundClaimed"`
	RefundEligible      bool              `json:"refundEligible"`
}

type saleQuoteResult struct {
	TokenAmount string `json:"tokenAmount"`
}

type saleRecordJSON struct {
	Buyer              string `json:"buyer"`
	Asset              string `json:"asset"`
	UsdAmount          string `json:"usdAmount"`
	TokenAmount        string `json:"tokenAmount"`
	ContributionBefore string `json:"contributionBefore"`
	ContributionAfter  string `json:"contributionAfter"`
	AllocationBefore   string `json:"allocationBefore"`
	AllocationAfter    string `json:"allocationAfter"`
	Timestamp          int64  `json:"timestamp"`
}

type saleAddressPageResult struct {
	Addresses []string `json:"addresses"`
	Total     int      `json:"total"`
}

type saleHistoryResult struct {
	Records []saleRecordJSON `json:"records"`
	Total   int              `json:"total"`
}

func writeSaleError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, sale.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeSaleForbidden, "forbidden", err.Error())
	case errors.Is(err, sale.ErrSaleNotConfigured) || errors.Is(err, sale.ErrNoUserContribution):
		writeError(w, http.StatusNotFound, id, codeSaleNotFound, "not_found", err.Error())
	case errors.Is(err, sale.ErrInvalidAmount) ||
		errors.Is(err, sale.ErrInvalidTimeRange) ||
		errors.Is(err, sale.ErrBelowMinimumPurchase) ||
		errors.Is(err, sale.ErrInvalidPaymentToken) ||
		errors.Is(err, sale.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, id, codeSaleInvalidParams, "invalid_params", err.Error())
	case errors.Is(err, sale.ErrSaleAlreadyStarted) ||
		errors.Is(err, sale.ErrSaleNotActive) ||
		errors.Is(err, sale.ErrSaleAlreadyEnded) ||
		errors.Is(err, sale.ErrSaleNotEnded) ||
		errors.Is(err, sale.ErrExceedsHardCap) ||
		errors.Is(err, sale.ErrTotalAllocationExceeded) ||
		errors.Is(err, sale.ErrInsufficientBalance) ||
		errors.Is(err, sale.ErrInsufficientAllowance) ||
		errors.Is(err, sale.ErrSoftCapNotReached) ||
		errors.Is(err, sale.ErrSoftCapReached) ||
		errors.Is(err, sale.ErrFundsAlreadyWithdrawn) ||
		errors.Is(err, sale.ErrRefundAlreadyClaimed) ||
		errors.Is(err, sale.ErrInsufficientCustody) ||
		errors.Is(err, common.ErrModulePaused) ||
		errors.Is(err, common.ErrReentrantCall):
		writeError(w, http.StatusConflict, id, codeSaleConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeSaleInternal, "internal_error", err.Error())
	}
}

func decodeSaleParams(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", "exactly one parameter object expected")
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return false
	}
	return true
}

func (s *Server) handleSaleConfigure(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params saleConfigureParams
	if !decodeSaleParams(w, req, &params) {
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	cfg := &sale.SaleConfig{
		StartTime:         params.StartTime,
		EndTime:           params.EndTime,
		SoldTokenDecimals: params.SoldTokenDecimals,
	}
	if cfg.PriceUSD, err = parsePositiveBigInt(params.PriceUSD); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	if cfg.TotalAllocation, err = parsePositiveBigInt(params.TotalAllocation); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	if cfg.SoftCap, err = parsePositiveBigInt(params.SoftCap); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	if cfg.HardCap, err = parsePositiveBigInt(params.HardCap); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	if cfg.MinimumPurchase, err = parsePositiveBigInt(params.MinimumPurchase); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.Configure(caller, cfg); err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleSaleUpdateSchedule(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params saleUpdateScheduleParams
	if !decodeSaleParams(w, req, &params) {
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	minimum, err := parsePositiveBigInt(params.MinimumPurchase)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.UpdateSchedule(caller, params.EndTime, minimum); err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleSaleClose(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params saleCallerParams
	if !decodeSaleParams(w, req, &params) {
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.Close(caller); err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleSaleBuy(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params saleBuyParams
	if !decodeSaleParams(w, req, &params) {
		return
	}
	buyer, err := parseBech32Address(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.UsdAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	assertion, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(params.Assertion), "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", "assertion must be hex encoded")
		return
	}
	record, err := s.engine.Buy(buyer, sale.PaymentAsset(strings.ToUpper(strings.TrimSpace(params.Asset))), amount, assertion)
	if err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, recordToJSON(record))
}

func (s *Server) handleSaleWithdraw(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params saleCallerParams
	if !decodeSaleParams(w, req, &params) {
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.Withdraw(caller); err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleSaleClaimRefund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params saleClaimRefundParams
	if !decodeSaleParams(w, req, &params) {
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	buyerValue := params.Buyer
	if strings.TrimSpace(buyerValue) == "" {
		buyerValue = params.Caller
	}
	buyer, err := parseBech32Address(buyerValue)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	// Self-claims stay open; claiming on another buyer's behalf needs the
	// operator bearer token since the caller address is self-declared.
	if caller != buyer {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}
	if err := s.engine.ClaimRefund(caller, buyer); err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleSaleStatus(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	status, err := s.engine.Status()
	if err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	phase, err := s.engine.Phase()
	if err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, saleStatusResult{
		Phase:          phase.String(),
		IsActive:       status.IsActive,
		IsEnded:        status.IsEnded,
		SoftCapReached: status.SoftCapReached,
		HardCapReached: status.HardCapReached,
	})
}

func (s *Server) handleSaleUserInfo(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params saleBuyerParams
	if !decodeSaleParams(w, req, &params) {
		return
	}
	buyer, err := parseBech32Address(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	info, err := s.engine.UserInfo(buyer)
	if err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	byAsset := make(map[string]string, len(sale.PaymentAssets))
	for i, asset := range sale.PaymentAssets {
		if i < len(info.ContributionByAsset) && info.ContributionByAsset[i] != nil {
			byAsset[string(asset)] = info.ContributionByAsset[i].String()
		} else {
			byAsset[string(asset)] = "0"
		}
	}
	writeResult(w, req.ID, saleUserInfoResult{
		Address:             formatAddress(info.Address),
		ContributionByAsset: byAsset,
		TotalContribution:   info.TotalContribution.String(),
		TokenAllocation:     info.TokenAllocation.String(),
		RefundClaimed:       info.RefundClaimed.String(),
		RefundEligible:      info.RefundEligible,
	})
}

func (s *Server) handleSaleQuote(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params saleQuoteParams
	if !decodeSaleParams(w, req, &params) {
		return
	}
	amount, err := parsePositiveBigInt(params.UsdAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	quote, err := s.engine.QuoteTokens(sale.PaymentAsset(strings.ToUpper(strings.TrimSpace(params.Asset))), amount)
	if err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, saleQuoteResult{TokenAmount: quote.String()})
}

func (s *Server) handleSaleContributors(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params salePageParams
	if len(req.Params) > 0 && !decodeSaleParams(w, req, &params) {
		return
	}
	addrs, total, err := s.engine.Contributors(params.Offset, params.Limit)
	if err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, addressPage(addrs, total))
}

func (s *Server) handleSaleRefundedBuyers(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params salePageParams
	if len(req.Params) > 0 && !decodeSaleParams(w, req, &params) {
		return
	}
	addrs, total, err := s.engine.RefundedBuyers(params.Offset, params.Limit)
	if err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, addressPage(addrs, total))
}

func (s *Server) handleSalePurchaseHistory(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params saleHistoryParams
	if !decodeSaleParams(w, req, &params) {
		return
	}
	buyer, err := parseBech32Address(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	records, total, err := s.engine.PurchaseHistory(buyer, params.Offset, params.Limit)
	if err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	page := make([]saleRecordJSON, 0, len(records))
	for _, record := range records {
		page = append(page, recordToJSON(record))
	}
	writeResult(w, req.ID, saleHistoryResult{Records: page, Total: total})
}

func addressPage(addrs [][20]byte, total int) saleAddressPageResult {
	result := saleAddressPageResult{Addresses: make([]string, 0, len(addrs)), Total: total}
	for _, addr := range addrs {
		result.Addresses = append(result.Addresses, formatAddress(addr))
	}
	return result
}

func recordToJSON(record *sale.ContributionRecord) saleRecordJSON {
	return saleRecordJSON{
		Buyer:              formatAddress(record.Buyer),
		Asset:              string(record.Asset),
		UsdAmount:          record.UsdAmount.String(),
		TokenAmount:        record.TokenAmount.String(),
		ContributionBefore: record.ContributionBefore.String(),
		ContributionAfter:  record.ContributionAfter.String(),
		AllocationBefore:   record.AllocationBefore.String(),
		AllocationAfter:    record.AllocationAfter.String(),
		Timestamp:          record.Timestamp,
	}
}
