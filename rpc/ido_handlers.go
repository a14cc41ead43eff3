package rpc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"idopool/crypto"
	"idopool/native/ido"
	"idopool/native/token"
)

const (
	codeIdoPoolNotFound  = -40001
	codeIdoPoolExists    = -40002
	codeIdoSeqTimes      = -40003
	codeIdoSaleFuture    = -40004
	codeIdoSaleNotOpen   = -40005
	codeIdoDepositsEnded = -40006
	codeIdoSaleNotOver   = -40007
	codeIdoLowBalance    = -40008
	codeIdoCapReached    = -40009
	codeIdoInvalidBump   = -40010
	codeIdoInvariant     = -40011
)

type initializePoolParams struct {
	PoolID                string `json:"poolId"`
	Caller                string `json:"caller"`
	DistributionAuthority string `json:"distributionAuthority"`
	AuthorityBump         uint8  `json:"authorityBump"`
	RedeemableMint        string `json:"redeemableMint"`
	SaleMint              string `json:"saleMint"`
	PaymentMint           string `json:"paymentMint"`
	PoolSaleAccount       string `json:"poolSaleAccount"`
	PoolPaymentAccount    string `json:"poolPaymentAccount"`
	CreatorSaleAccount    string `json:"creatorSaleAccount"`
	NumSaleTokens         string `json:"numSaleTokens"`
	MaxPaymentTokens      string `json:"maxPaymentTokens"`
	StartTs               int64  `json:"startTs"`
	EndTs                 int64  `json:"endTs"`
	WithdrawTs            int64  `json:"withdrawTs"`
}

func (p initializePoolParams) toEngine() (ido.InitializePoolParams, error) {
	out := ido.InitializePoolParams{
		AuthorityBump: p.AuthorityBump,
		StartTs:       p.StartTs,
		EndTs:         p.EndTs,
		WithdrawTs:    p.WithdrawTs,
	}
	var err error
	if out.PoolID, err = parseID32(p.PoolID); err != nil {
		return out, fmt.Errorf("poolId: %w", err)
	}
	if out.Caller, err = parseAddr(p.Caller); err != nil {
		return out, fmt.Errorf("caller: %w", err)
	}
	if out.DistributionAuthority, err = parseAddr(p.DistributionAuthority); err != nil {
		return out, fmt.Errorf("distributionAuthority: %w", err)
	}
	if out.RedeemableMint, err = parseID32(p.RedeemableMint); err != nil {
		return out, fmt.Errorf("redeemableMint: %w", err)
	}
	if out.SaleMint, err = parseID32(p.SaleMint); err != nil {
		return out, fmt.Errorf("saleMint: %w", err)
	}
	if out.PaymentMint, err = parseID32(p.PaymentMint); err != nil {
		return out, fmt.Errorf("paymentMint: %w", err)
	}
	if out.PoolSaleAccount, err = parseID32(p.PoolSaleAccount); err != nil {
		return out, fmt.Errorf("poolSaleAccount: %w", err)
	}
	if out.PoolPaymentAccount, err = parseID32(p.PoolPaymentAccount); err != nil {
		return out, fmt.Errorf("poolPaymentAccount: %w", err)
	}
	if out.CreatorSaleAccount, err = parseID32(p.CreatorSaleAccount); err != nil {
		return out, fmt.Errorf("creatorSaleAccount: %w", err)
	}
	if out.NumSaleTokens, err = parseAmount(p.NumSaleTokens); err != nil {
		return out, fmt.Errorf("numSaleTokens: %w", err)
	}
	if out.MaxPaymentTokens, err = parseAmount(p.MaxPaymentTokens); err != nil {
		return out, fmt.Errorf("maxPaymentTokens: %w", err)
	}
	return out, nil
}

type setSaleWindowParams struct {
	PoolID     string `json:"poolId"`
	Caller     string `json:"caller"`
	StartTs    int64  `json:"startTs"`
	EndTs      int64  `json:"endTs"`
	WithdrawTs int64  `json:"withdrawTs"`
}

type setPaymentCapParams struct {
	PoolID           string `json:"poolId"`
	Caller           string `json:"caller"`
	MaxPaymentTokens string `json:"maxPaymentTokens"`
}

type depositParams struct {
	PoolID         string `json:"poolId"`
	Caller         string `json:"caller"`
	UserPayment    string `json:"userPayment"`
	UserRedeemable string `json:"userRedeemable"`
	Amount         string `json:"amount"`
}

type refundParams struct {
	PoolID         string `json:"poolId"`
	Caller         string `json:"caller"`
	UserRedeemable string `json:"userRedeemable"`
	UserPayment    string `json:"userPayment"`
	Amount         string `json:"amount"`
}

type claimParams struct {
	PoolID         string `json:"poolId"`
	Caller         string `json:"caller"`
	UserRedeemable string `json:"userRedeemable"`
	UserSale       string `json:"userSale"`
	Amount         string `json:"amount"`
}

type withdrawParams struct {
	PoolID    string `json:"poolId"`
	Caller    string `json:"caller"`
	ToAccount string `json:"toAccount"`
	Amount    string `json:"amount"`
}

type poolQueryParams struct {
	PoolID string `json:"poolId"`
}

type poolResult struct {
	ID                    string `json:"id"`
	RedeemableMint        string `json:"redeemableMint"`
	SaleMint              string `json:"saleMint"`
	PaymentMint           string `json:"paymentMint"`
	PoolSaleAccount       string `json:"poolSaleAccount"`
	PoolPaymentAccount    string `json:"poolPaymentAccount"`
	DistributionAuthority string `json:"distributionAuthority"`
	PoolAuthority         string `json:"poolAuthority"`
	AuthorityBump         uint8  `json:"authorityBump"`
	NumSaleTokens         string `json:"numSaleTokens"`
	MaxPaymentTokens      string `json:"maxPaymentTokens"`
	NumPaymentCollected   string `json:"numPaymentCollected"`
	StartTs               int64  `json:"startTs"`
	EndTs                 int64  `json:"endTs"`
	WithdrawTs            int64  `json:"withdrawTs"`
	Phase                 string `json:"phase,omitempty"`
}

type depositResult struct {
	Requested string `json:"requested"`
	Effective string `json:"effective"`
}

type claimResult struct {
	Burned string `json:"burned"`
	Payout string `json:"payout"`
}

func (s *Server) handleInitializePool(w http.ResponseWriter, req *RPCRequest) {
	var params initializePoolParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	engineParams, err := params.toEngine()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}

	pool, err := s.node.InitializePool(engineParams)
	if err != nil {
		writeIdoError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, poolToResult(pool, ""))
}

func (s *Server) handleSetSaleWindow(w http.ResponseWriter, req *RPCRequest) {
	var params setSaleWindowParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	poolID, caller, err := parsePoolAndCaller(params.PoolID, params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	pool, err := s.node.SetSaleWindow(poolID, caller, params.StartTs, params.EndTs, params.WithdrawTs)
	if err != nil {
		writeIdoError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, poolToResult(pool, ""))
}

func (s *Server) handleSetPaymentCap(w http.ResponseWriter, req *RPCRequest) {
	var params setPaymentCapParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	poolID, caller, err := parsePoolAndCaller(params.PoolID, params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	cap, err := parseAmount(params.MaxPaymentTokens)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid maxPaymentTokens", err.Error())
		return
	}
	pool, err := s.node.SetPaymentCap(poolID, caller, cap)
	if err != nil {
		writeIdoError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, poolToResult(pool, ""))
}

func (s *Server) handleDeposit(w http.ResponseWriter, req *RPCRequest) {
	var params depositParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	poolID, caller, err := parsePoolAndCaller(params.PoolID, params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	userPayment, err := parseID32(params.UserPayment)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid userPayment", err.Error())
		return
	}
	userRedeemable, err := parseID32(params.UserRedeemable)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid userRedeemable", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	effective, err := s.node.Deposit(poolID, caller, userPayment, userRedeemable, amount)
	if err != nil {
		writeIdoError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, depositResult{Requested: amount.String(), Effective: effective.String()})
}

func (s *Server) handleRefund(w http.ResponseWriter, req *RPCRequest) {
	var params refundParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	poolID, caller, err := parsePoolAndCaller(params.PoolID, params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	userRedeemable, err := parseID32(params.UserRedeemable)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid userRedeemable", err.Error())
		return
	}
	userPayment, err := parseID32(params.UserPayment)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid userPayment", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.node.Refund(poolID, caller, userRedeemable, userPayment, amount); err != nil {
		writeIdoError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "refunded", "amount": amount.String()})
}

func (s *Server) handleClaim(w http.ResponseWriter, req *RPCRequest) {
	var params claimParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	poolID, caller, err := parsePoolAndCaller(params.PoolID, params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	userRedeemable, err := parseID32(params.UserRedeemable)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid userRedeemable", err.Error())
		return
	}
	userSale, err := parseID32(params.UserSale)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid userSale", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	payout, err := s.node.Claim(poolID, caller, userRedeemable, userSale, amount)
	if err != nil {
		writeIdoError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, claimResult{Burned: amount.String(), Payout: payout.String()})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, req *RPCRequest) {
	var params withdrawParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	poolID, caller, err := parsePoolAndCaller(params.PoolID, params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	toAccount, err := parseID32(params.ToAccount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid toAccount", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.node.WithdrawProceeds(poolID, caller, toAccount, amount); err != nil {
		writeIdoError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "withdrawn", "amount": amount.String()})
}

func (s *Server) handleGetPool(w http.ResponseWriter, req *RPCRequest) {
	var params poolQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	poolID, err := parseID32(params.PoolID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid poolId", err.Error())
		return
	}
	pool, err := s.node.GetPool(poolID)
	if err != nil {
		writeIdoError(w, req.ID, err)
		return
	}
	phase, err := s.node.PhaseOf(poolID)
	if err != nil {
		writeIdoError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, poolToResult(pool, phase.String()))
}

func (s *Server) handlePhase(w http.ResponseWriter, req *RPCRequest) {
	var params poolQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	poolID, err := parseID32(params.PoolID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid poolId", err.Error())
		return
	}
	phase, err := s.node.PhaseOf(poolID)
	if err != nil {
		writeIdoError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"phase": phase.String()})
}

func (s *Server) handleListPools(w http.ResponseWriter, req *RPCRequest) {
	ids, err := s.node.PoolIDs()
	if err != nil {
		writeIdoError(w, req.ID, err)
		return
	}
	encoded := make([]string, 0, len(ids))
	for _, id := range ids {
		encoded = append(encoded, hex.EncodeToString(id[:]))
	}
	writeResult(w, req.ID, encoded)
}

func poolToResult(p *ido.Pool, phase string) poolResult {
	return poolResult{
		ID:                    hex.EncodeToString(p.ID[:]),
		RedeemableMint:        hex.EncodeToString(p.RedeemableMint[:]),
		SaleMint:              hex.EncodeToString(p.SaleMint[:]),
		PaymentMint:           hex.EncodeToString(p.PaymentMint[:]),
		PoolSaleAccount:       hex.EncodeToString(p.PoolSaleAccount[:]),
		PoolPaymentAccount:    hex.EncodeToString(p.PoolPaymentAccount[:]),
		DistributionAuthority: encodeAddr(p.DistributionAuthority),
		PoolAuthority:         encodeAddr(p.PoolAuthority),
		AuthorityBump:         p.AuthorityBump,
		NumSaleTokens:         p.NumSaleTokens.String(),
		MaxPaymentTokens:      p.MaxPaymentTokens.String(),
		NumPaymentCollected:   p.NumPaymentCollected.String(),
		StartTs:               p.StartTs,
		EndTs:                 p.EndTs,
		WithdrawTs:            p.WithdrawTs,
		Phase:                 phase,
	}
}

// writeIdoError maps engine sentinels onto module error codes. Invariant
// violations surface as server errors: they signal corrupted pool state, not
// a bad request.
func writeIdoError(w http.ResponseWriter, id int, err error) {
	switch {
	case errors.Is(err, ido.ErrPoolNotFound):
		writeError(w, http.StatusNotFound, id, codeIdoPoolNotFound, err.Error(), "")
	case errors.Is(err, ido.ErrPoolExists):
		writeError(w, http.StatusConflict, id, codeIdoPoolExists, err.Error(), "")
	case errors.Is(err, ido.ErrSeqTimes):
		writeError(w, http.StatusBadRequest, id, codeIdoSeqTimes, err.Error(), "")
	case errors.Is(err, ido.ErrSaleFuture):
		writeError(w, http.StatusBadRequest, id, codeIdoSaleFuture, err.Error(), "")
	case errors.Is(err, ido.ErrSaleNotStarted):
		writeError(w, http.StatusConflict, id, codeIdoSaleNotOpen, err.Error(), "")
	case errors.Is(err, ido.ErrDepositsEnded):
		writeError(w, http.StatusConflict, id, codeIdoDepositsEnded, err.Error(), "")
	case errors.Is(err, ido.ErrSaleNotOver):
		writeError(w, http.StatusConflict, id, codeIdoSaleNotOver, err.Error(), "")
	case errors.Is(err, ido.ErrLowPayment), errors.Is(err, ido.ErrLowRedeemable):
		writeError(w, http.StatusBadRequest, id, codeIdoLowBalance, err.Error(), "")
	case errors.Is(err, ido.ErrCapReached):
		writeError(w, http.StatusConflict, id, codeIdoCapReached, err.Error(), "")
	case errors.Is(err, ido.ErrInvalidBump):
		writeError(w, http.StatusBadRequest, id, codeIdoInvalidBump, err.Error(), "")
	case errors.Is(err, ido.ErrInvalidParam):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), "")
	case errors.Is(err, ido.ErrInvariant):
		writeError(w, http.StatusInternalServerError, id, codeIdoInvariant, err.Error(), "")
	case errors.Is(err, token.ErrMintNotFound), errors.Is(err, token.ErrAccountNotFound),
		errors.Is(err, token.ErrMintMismatch), errors.Is(err, token.ErrNotAccountOwner),
		errors.Is(err, token.ErrNotMintAuthority), errors.Is(err, token.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), "")
	case errors.Is(err, token.ErrInsufficientBalance):
		writeError(w, http.StatusBadRequest, id, codeIdoLowBalance, err.Error(), "")
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", err.Error())
	}
}

func parsePoolAndCaller(poolID, caller string) ([32]byte, [20]byte, error) {
	id, err := parseID32(poolID)
	if err != nil {
		return [32]byte{}, [20]byte{}, err
	}
	addr, err := parseAddr(caller)
	if err != nil {
		return [32]byte{}, [20]byte{}, err
	}
	return id, addr, nil
}

func parseID32(value string) ([32]byte, error) {
	var id [32]byte
	raw, err := hex.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return id, fmt.Errorf("identifier must be hex encoded: %w", err)
	}
	if len(raw) != 32 {
		return id, fmt.Errorf("identifier must be 32 bytes, got %d", len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func parseAddr(value string) ([20]byte, error) {
	var addr [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return addr, err
	}
	copy(addr[:], decoded.Bytes())
	return addr, nil
}

func encodeAddr(addr [20]byte) string {
	return crypto.NewAddress(crypto.IDOPrefix, append([]byte(nil), addr[:]...)).String()
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, errors.New("amount must not be empty")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a base-10 integer", value)
	}
	return amount, nil
}
