package rpc

import (
	"errors"
	"net/http"

	"idopool/native/token"
)

const (
	codeTokenMintNotFound    = -41001
	codeTokenAccountNotFound = -41002
	codeTokenExists          = -41003
	codeTokenUnauthorized    = -41004
	codeTokenLowBalance      = -41005
)

type createMintParams struct {
	MintID    string `json:"mintId"`
	Authority string `json:"authority"`
	Decimals  uint8  `json:"decimals"`
}

type createAccountParams struct {
	AccountID string `json:"accountId"`
	Mint      string `json:"mint"`
	Owner     string `json:"owner"`
}

type mintToParams struct {
	Mint      string `json:"mint"`
	To        string `json:"to"`
	Authority string `json:"authority"`
	Amount    string `json:"amount"`
}

type accountQueryParams struct {
	Account string `json:"account"`
}

type mintQueryParams struct {
	Mint string `json:"mint"`
}

func (s *Server) handleCreateMint(w http.ResponseWriter, req *RPCRequest) {
	var params createMintParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	mintID, err := parseID32(params.MintID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid mintId", err.Error())
		return
	}
	authority, err := parseAddr(params.Authority)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid authority", err.Error())
		return
	}
	if err := s.node.Ledger().CreateMint(mintID, authority, params.Decimals); err != nil {
		writeTokenError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "created", "mintId": params.MintID})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, req *RPCRequest) {
	var params createAccountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	accountID, err := parseID32(params.AccountID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid accountId", err.Error())
		return
	}
	mintID, err := parseID32(params.Mint)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid mint", err.Error())
		return
	}
	owner, err := parseAddr(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner", err.Error())
		return
	}
	if err := s.node.Ledger().CreateAccount(accountID, mintID, owner); err != nil {
		writeTokenError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "created", "accountId": params.AccountID})
}

func (s *Server) handleMintTo(w http.ResponseWriter, req *RPCRequest) {
	var params mintToParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	mintID, err := parseID32(params.Mint)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid mint", err.Error())
		return
	}
	to, err := parseID32(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid to", err.Error())
		return
	}
	authority, err := parseAddr(params.Authority)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid authority", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.node.Ledger().MintTo(mintID, to, authority, amount); err != nil {
		writeTokenError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "minted", "amount": amount.String()})
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, req *RPCRequest) {
	var params accountQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	accountID, err := parseID32(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid account", err.Error())
		return
	}
	balance, err := s.node.Ledger().BalanceOf(accountID)
	if err != nil {
		writeTokenError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"balance": balance.String()})
}

func (s *Server) handleSupplyOf(w http.ResponseWriter, req *RPCRequest) {
	var params mintQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	mintID, err := parseID32(params.Mint)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid mint", err.Error())
		return
	}
	supply, err := s.node.Ledger().SupplyOf(mintID)
	if err != nil {
		writeTokenError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"supply": supply.String()})
}

func writeTokenError(w http.ResponseWriter, id int, err error) {
	switch {
	case errors.Is(err, token.ErrMintNotFound):
		writeError(w, http.StatusNotFound, id, codeTokenMintNotFound, err.Error(), "")
	case errors.Is(err, token.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, id, codeTokenAccountNotFound, err.Error(), "")
	case errors.Is(err, token.ErrMintExists), errors.Is(err, token.ErrAccountExists):
		writeError(w, http.StatusConflict, id, codeTokenExists, err.Error(), "")
	case errors.Is(err, token.ErrNotMintAuthority), errors.Is(err, token.ErrNotAccountOwner):
		writeError(w, http.StatusForbidden, id, codeTokenUnauthorized, err.Error(), "")
	case errors.Is(err, token.ErrInsufficientBalance):
		writeError(w, http.StatusBadRequest, id, codeTokenLowBalance, err.Error(), "")
	case errors.Is(err, token.ErrMintMismatch), errors.Is(err, token.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), "")
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", err.Error())
	}
}
