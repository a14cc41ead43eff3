package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http/httptest"
	"testing"

	"idopool/core"
	"idopool/crypto"
	"idopool/storage"
)

const testToken = "test-rpc-token"

type testResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

type rpcHarness struct {
	t      *testing.T
	server *Server
	node   *core.Node
	now    int64

	admin        [20]byte
	distribution [20]byte
	bump         uint8
	authority    [20]byte

	poolID         [32]byte
	saleMint       [32]byte
	paymentMint    [32]byte
	redeemableMint [32]byte
	poolSale       [32]byte
	poolPayment    [32]byte
	creatorSale    [32]byte
}

func fillAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func fillID(fill byte) [32]byte {
	var id [32]byte
	for i := range id {
		id[i] = fill
	}
	return id
}

func hexID(id [32]byte) string {
	return hex.EncodeToString(id[:])
}

func bech(addr [20]byte) string {
	return crypto.NewAddress(crypto.IDOPrefix, append([]byte(nil), addr[:]...)).String()
}

func newRPCHarness(t *testing.T) *rpcHarness {
	t.Helper()
	t.Setenv("IDO_RPC_TOKEN", testToken)

	h := &rpcHarness{
		t:              t,
		now:            500,
		admin:          fillAddr(0x01),
		distribution:   fillAddr(0x02),
		bump:           5,
		poolID:         fillID(0xF0),
		saleMint:       fillID(0xA1),
		paymentMint:    fillID(0xA2),
		redeemableMint: fillID(0xA3),
		poolSale:       fillID(0xB1),
		poolPayment:    fillID(0xB2),
		creatorSale:    fillID(0xB3),
	}
	h.authority = crypto.DeriveAuthority(h.saleMint, h.bump)

	node := core.NewNode(storage.NewMemDB(), h.admin)
	node.SetNowFunc(func() int64 { return h.now })
	h.node = node
	h.server = NewServer(node)

	ledger := node.Ledger()
	if err := ledger.CreateMint(h.saleMint, h.distribution, 6); err != nil {
		t.Fatalf("create sale mint: %v", err)
	}
	if err := ledger.CreateMint(h.paymentMint, h.admin, 6); err != nil {
		t.Fatalf("create payment mint: %v", err)
	}
	if err := ledger.CreateMint(h.redeemableMint, h.authority, 6); err != nil {
		t.Fatalf("create redeemable mint: %v", err)
	}
	if err := ledger.CreateAccount(h.poolSale, h.saleMint, h.authority); err != nil {
		t.Fatalf("create pool sale account: %v", err)
	}
	if err := ledger.CreateAccount(h.poolPayment, h.paymentMint, h.authority); err != nil {
		t.Fatalf("create pool payment account: %v", err)
	}
	if err := ledger.CreateAccount(h.creatorSale, h.saleMint, h.admin); err != nil {
		t.Fatalf("create creator sale account: %v", err)
	}
	if err := ledger.MintTo(h.saleMint, h.creatorSale, h.distribution, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("fund creator: %v", err)
	}
	return h
}

func (h *rpcHarness) call(token, method string, params interface{}) testResponse {
	h.t.Helper()
	var rawParams []json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			h.t.Fatalf("marshal params: %v", err)
		}
		rawParams = []json.RawMessage{encoded}
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: rawParams, ID: 1})
	if err != nil {
		h.t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest("POST", "/", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	h.server.ServeHTTP(recorder, req)

	var resp testResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		h.t.Fatalf("decode response: %v (%s)", err, recorder.Body.String())
	}
	return resp
}

func (h *rpcHarness) initializePool() {
	h.t.Helper()
	resp := h.call(testToken, "ido_initializePool", initializePoolParams{
		PoolID:                hexID(h.poolID),
		Caller:                bech(h.admin),
		DistributionAuthority: bech(h.distribution),
		AuthorityBump:         h.bump,
		RedeemableMint:        hexID(h.redeemableMint),
		SaleMint:              hexID(h.saleMint),
		PaymentMint:           hexID(h.paymentMint),
		PoolSaleAccount:       hexID(h.poolSale),
		PoolPaymentAccount:    hexID(h.poolPayment),
		CreatorSaleAccount:    hexID(h.creatorSale),
		NumSaleTokens:         "1000000",
		MaxPaymentTokens:      "500000",
		StartTs:               1_000,
		EndTs:                 2_000,
		WithdrawTs:            3_000,
	})
	if resp.Error != nil {
		h.t.Fatalf("initialize pool: %+v", resp.Error)
	}
}

func TestPrivilegedMethodsRequireToken(t *testing.T) {
	h := newRPCHarness(t)
	resp := h.call("", "ido_initializePool", initializePoolParams{})
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", resp.Error)
	}
	resp = h.call("wrong-token", "ido_setPaymentCap", setPaymentCapParams{})
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized for bad token, got %+v", resp.Error)
	}
}

func TestMethodNotFound(t *testing.T) {
	h := newRPCHarness(t)
	resp := h.call("", "ido_unknown", map[string]string{})
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp.Error)
	}
}

func TestRejectsMalformedRequests(t *testing.T) {
	h := newRPCHarness(t)

	req := httptest.NewRequest("POST", "/", bytes.NewReader([]byte("{not json")))
	recorder := httptest.NewRecorder()
	h.server.ServeHTTP(recorder, req)
	var resp testResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != codeParseError {
		t.Fatalf("expected parse error, got %+v", resp.Error)
	}

	body, _ := json.Marshal(RPCRequest{JSONRPC: "1.0", Method: "ido_phase", ID: 2})
	req = httptest.NewRequest("POST", "/", bytes.NewReader(body))
	recorder = httptest.NewRecorder()
	h.server.ServeHTTP(recorder, req)
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("expected invalid request, got %+v", resp.Error)
	}
}

func TestGetPoolNotFound(t *testing.T) {
	h := newRPCHarness(t)
	resp := h.call("", "ido_getPool", poolQueryParams{PoolID: hexID(fillID(0xEE))})
	if resp.Error == nil || resp.Error.Code != codeIdoPoolNotFound {
		t.Fatalf("expected pool not found, got %+v", resp.Error)
	}
}

func TestDepositClaimFlowOverRPC(t *testing.T) {
	h := newRPCHarness(t)
	h.initializePool()

	alice := fillAddr(0x40)
	alicePayment := fillID(0x41)
	aliceRedeemable := fillID(0x42)
	aliceSale := fillID(0x43)
	ledger := h.node.Ledger()
	if err := ledger.CreateAccount(alicePayment, h.paymentMint, alice); err != nil {
		t.Fatalf("create payment account: %v", err)
	}
	if err := ledger.CreateAccount(aliceRedeemable, h.redeemableMint, alice); err != nil {
		t.Fatalf("create redeemable account: %v", err)
	}
	if err := ledger.CreateAccount(aliceSale, h.saleMint, alice); err != nil {
		t.Fatalf("create sale account: %v", err)
	}
	if err := ledger.MintTo(h.paymentMint, alicePayment, h.admin, big.NewInt(250_000)); err != nil {
		t.Fatalf("fund alice: %v", err)
	}

	h.now = 1_500
	resp := h.call("", "ido_deposit", depositParams{
		PoolID:         hexID(h.poolID),
		Caller:         bech(alice),
		UserPayment:    hexID(alicePayment),
		UserRedeemable: hexID(aliceRedeemable),
		Amount:         "200000",
	})
	if resp.Error != nil {
		t.Fatalf("deposit: %+v", resp.Error)
	}
	var deposited depositResult
	if err := json.Unmarshal(resp.Result, &deposited); err != nil {
		t.Fatalf("decode deposit result: %v", err)
	}
	if deposited.Effective != "200000" {
		t.Fatalf("unexpected effective amount: %s", deposited.Effective)
	}

	resp = h.call("", "ido_getPool", poolQueryParams{PoolID: hexID(h.poolID)})
	if resp.Error != nil {
		t.Fatalf("get pool: %+v", resp.Error)
	}
	var pool poolResult
	if err := json.Unmarshal(resp.Result, &pool); err != nil {
		t.Fatalf("decode pool: %v", err)
	}
	if pool.NumPaymentCollected != "200000" || pool.Phase != "open" {
		t.Fatalf("unexpected pool state: collected=%s phase=%s", pool.NumPaymentCollected, pool.Phase)
	}

	// Claims are rejected until distribution opens.
	claim := claimParams{
		PoolID:         hexID(h.poolID),
		Caller:         bech(alice),
		UserRedeemable: hexID(aliceRedeemable),
		UserSale:       hexID(aliceSale),
		Amount:         "200000",
	}
	resp = h.call("", "ido_claim", claim)
	if resp.Error == nil || resp.Error.Code != codeIdoSaleNotOver {
		t.Fatalf("expected sale not over, got %+v", resp.Error)
	}

	h.now = 3_000
	resp = h.call("", "ido_claim", claim)
	if resp.Error != nil {
		t.Fatalf("claim: %+v", resp.Error)
	}
	var claimed claimResult
	if err := json.Unmarshal(resp.Result, &claimed); err != nil {
		t.Fatalf("decode claim result: %v", err)
	}
	if claimed.Payout != "1000000" {
		t.Fatalf("unexpected payout: %s", claimed.Payout)
	}

	resp = h.call("", "token_balanceOf", accountQueryParams{Account: hexID(aliceSale)})
	if resp.Error != nil {
		t.Fatalf("balance of: %+v", resp.Error)
	}
	var balance map[string]string
	if err := json.Unmarshal(resp.Result, &balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance["balance"] != "1000000" {
		t.Fatalf("unexpected sale balance: %s", balance["balance"])
	}
}

func TestTokenAdministrationOverRPC(t *testing.T) {
	h := newRPCHarness(t)
	mintID := fillID(0xC1)
	accountID := fillID(0xC2)
	owner := fillAddr(0x60)

	resp := h.call(testToken, "token_createMint", createMintParams{
		MintID:    hexID(mintID),
		Authority: bech(h.admin),
		Decimals:  6,
	})
	if resp.Error != nil {
		t.Fatalf("create mint: %+v", resp.Error)
	}
	resp = h.call("", "token_createAccount", createAccountParams{
		AccountID: hexID(accountID),
		Mint:      hexID(mintID),
		Owner:     bech(owner),
	})
	if resp.Error != nil {
		t.Fatalf("create account: %+v", resp.Error)
	}
	resp = h.call(testToken, "token_mint", mintToParams{
		Mint:      hexID(mintID),
		To:        hexID(accountID),
		Authority: bech(h.admin),
		Amount:    "12345",
	})
	if resp.Error != nil {
		t.Fatalf("mint: %+v", resp.Error)
	}
	resp = h.call("", "token_supplyOf", mintQueryParams{Mint: hexID(mintID)})
	if resp.Error != nil {
		t.Fatalf("supply of: %+v", resp.Error)
	}
	var supply map[string]string
	if err := json.Unmarshal(resp.Result, &supply); err != nil {
		t.Fatalf("decode supply: %v", err)
	}
	if supply["supply"] != "12345" {
		t.Fatalf("unexpected supply: %s", supply["supply"])
	}
}

func TestListPools(t *testing.T) {
	h := newRPCHarness(t)
	h.initializePool()
	resp := h.call("", "ido_listPools", map[string]string{})
	if resp.Error != nil {
		t.Fatalf("list pools: %+v", resp.Error)
	}
	var ids []string
	if err := json.Unmarshal(resp.Result, &ids); err != nil {
		t.Fatalf("decode ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != fmt.Sprintf("%x", h.poolID) {
		t.Fatalf("unexpected pool list: %v", ids)
	}
}
