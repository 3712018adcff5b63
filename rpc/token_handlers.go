package rpc

import (
	"net/http"
	"strings"
)

const codeTokenInvalidParams = -32051

type tokenBalanceParams struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

type tokenBalanceResult struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Balance string `json:"balance"`
}

type tokenApproveParams struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Symbol  string `json:"symbol"`
	Amount  string `json:"amount"`
}

type tokenMintParams struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Amount  string `json:"amount"`
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params tokenBalanceParams
	if !decodeSaleParams(w, req, &params) {
		return
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(params.Symbol))
	if _, err := s.tokens.Token(symbol); err != nil {
		writeError(w, http.StatusNotFound, req.ID, codeSaleNotFound, "not_found", err.Error())
		return
	}
	balance, err := s.tokens.Balance(addr, symbol)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeSaleInternal, "internal_error", err.Error())
		return
	}
	writeResult(w, req.ID, tokenBalanceResult{
		Address: params.Address,
		Symbol:  symbol,
		Balance: balance.String(),
	})
}

func (s *Server) handleTokenApprove(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params tokenApproveParams
	if !decodeSaleParams(w, req, &params) {
		return
	}
	owner, err := parseBech32Address(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	// Defaults to the sale vault so buyers do not need to derive it.
	spender := s.engine.Vault()
	if strings.TrimSpace(params.Spender) != "" {
		if spender, err = parseBech32Address(params.Spender); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.tokens.Approve(owner, spender, params.Symbol, amount); err != nil {
		writeError(w, http.StatusConflict, req.ID, codeSaleConflict, "conflict", err.Error())
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleTokenMint(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params tokenMintParams
	if !decodeSaleParams(w, req, &params) {
		return
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.tokens.Mint(addr, params.Symbol, amount); err != nil {
		writeError(w, http.StatusConflict, req.ID, codeSaleConflict, "conflict", err.Error())
		return
	}
	writeResult(w, req.ID, true)
}
