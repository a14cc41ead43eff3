package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"idopool/core"
)

const maxRequestBytes = 1 << 20

// Server exposes the pool node over a single JSON-RPC 2.0 POST endpoint.
// Administrative methods require the bearer token from IDO_RPC_TOKEN; read
// and participant methods are open but rate limited per source address.
type Server struct {
	node      *core.Node
	authToken string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewServer constructs an RPC server over the node. The privileged-method
// token is read from the IDO_RPC_TOKEN environment variable; when unset,
// privileged methods are rejected outright.
func NewServer(node *core.Node) *Server {
	return &Server{
		node:      node,
		authToken: strings.TrimSpace(os.Getenv("IDO_RPC_TOKEN")),
		limiters:  make(map[string]*rate.Limiter),
		rate:      rate.Limit(20),
		burst:     40,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, 0, codeInvalidRequest, "POST required", "")
		return
	}
	if !s.allow(clientID(r)) {
		writeError(w, http.StatusTooManyRequests, 0, codeRateLimited, "rate limit exceeded", "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, 0, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported JSON-RPC version", "")
		return
	}
	s.dispatch(w, r, &req)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	switch req.Method {
	case "ido_initializePool":
		if !s.requireAuth(w, r, req) {
			return
		}
		s.handleInitializePool(w, req)
	case "ido_setSaleWindow":
		if !s.requireAuth(w, r, req) {
			return
		}
		s.handleSetSaleWindow(w, req)
	case "ido_setPaymentCap":
		if !s.requireAuth(w, r, req) {
			return
		}
		s.handleSetPaymentCap(w, req)
	case "ido_withdraw":
		if !s.requireAuth(w, r, req) {
			return
		}
		s.handleWithdraw(w, req)
	case "ido_deposit":
		s.handleDeposit(w, req)
	case "ido_refund":
		s.handleRefund(w, req)
	case "ido_claim":
		s.handleClaim(w, req)
	case "ido_getPool":
		s.handleGetPool(w, req)
	case "ido_phase":
		s.handlePhase(w, req)
	case "ido_listPools":
		s.handleListPools(w, req)
	case "token_createMint":
		if !s.requireAuth(w, r, req) {
			return
		}
		s.handleCreateMint(w, req)
	case "token_mint":
		if !s.requireAuth(w, r, req) {
			return
		}
		s.handleMintTo(w, req)
	case "token_createAccount":
		s.handleCreateAccount(w, req)
	case "token_balanceOf":
		s.handleBalanceOf(w, req)
	case "token_supplyOf":
		s.handleSupplyOf(w, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), "")
	}
}

// requireAuth enforces the bearer token on privileged methods. The comparison
// is constant time so the token cannot be probed byte by byte.
func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request, req *RPCRequest) bool {
	if s.authToken == "" {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "server has no RPC token configured", "")
		return false
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const scheme = "Bearer "
	if !strings.HasPrefix(header, scheme) {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "missing bearer token", "")
		return false
	}
	presented := strings.TrimSpace(header[len(scheme):])
	if subtle.ConstantTimeCompare([]byte(presented), []byte(s.authToken)) != 1 {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "invalid bearer token", "")
		return false
	}
	return true
}

func (s *Server) allow(client string) bool {
	s.mu.Lock()
	limiter, ok := s.limiters[client]
	if !ok {
		limiter = rate.NewLimiter(s.rate, s.burst)
		s.limiters[client] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

func clientID(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// decodeParams unmarshals the single positional parameter object every method
// expects.
func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("expected exactly one parameter object")
	}
	return json.Unmarshal(req.Params[0], out)
}
