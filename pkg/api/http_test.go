package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/certusone/wormhole/custody/pkg/bridge"
	"github.com/certusone/wormhole/custody/pkg/db"
	"github.com/certusone/wormhole/custody/pkg/instruction"
	"github.com/certusone/wormhole/custody/pkg/readiness"
	"github.com/certusone/wormhole/custody/pkg/token"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	handler http.Handler
	bridge  *bridge.Bridge
	mint    solana.PublicKey
	admin   solana.PrivateKey
	relayer solana.PrivateKey
	user    solana.PrivateKey
}

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	d, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	tokens, err := token.NewLedger(token.DefaultCacheSize)
	require.NoError(t, err)
	b, err := bridge.New(zap.NewNop(), d, tokens)
	require.NoError(t, err)

	return &testServer{
		handler: NewRouter(b, zap.NewNop(), cfg),
		bridge:  b,
		mint:    newKey(t).PublicKey(),
		admin:   newKey(t),
		relayer: newKey(t),
		user:    newKey(t),
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func (s *testServer) submit(t *testing.T, key solana.PrivateKey, recipient solana.PublicKey, ix instruction.Discriminator, args interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := instruction.Encode(ix, args)
	require.NoError(t, err)
	signed, err := instruction.NewTransaction(key.PublicKey(), s.mint, recipient, data, time.Now()).Sign(key)
	require.NoError(t, err)
	msg, sig := signed.Encode()
	return s.do(t, http.MethodPost, "/v1/transactions", &submitRequest{Transaction: msg, Signature: sig})
}

func (s *testServer) initialize(t *testing.T) {
	t.Helper()
	rec := s.submit(t, s.admin, solana.PublicKey{}, instruction.Initialize, &instruction.InitializeArgs{
		DestinationChainID: 1,
		DestinationBridge:  [20]byte{0x12, 0x34},
		Relayer:            s.relayer.PublicKey(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Config{})
	rec := s.do(t, http.MethodGet, "/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	_, err := uuid.Parse(rec.Header().Get(requestIDHeader))
	assert.NoError(t, err)
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t, Config{})
	id := uuid.New().String()
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(requestIDHeader, id)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(requestIDHeader))
}

func TestSubmitLifecycle(t *testing.T) {
	s := newTestServer(t, Config{})
	s.initialize(t)
	require.NoError(t, s.bridge.Airdrop(context.Background(), s.mint, s.user.PublicKey(), 1000))

	rec := s.submit(t, s.user, solana.PublicKey{}, instruction.LockTokens, &instruction.LockTokensArgs{Amount: 1000, DestinationAddress: [20]byte{0x11}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var lockResp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lockResp))
	assert.Equal(t, "lock_tokens", lockResp.Instruction)
	require.NotNil(t, lockResp.Lock)
	assert.Equal(t, uint64(0), lockResp.Lock.Nonce)
	assert.Equal(t, uint64(1000), lockResp.Lock.Amount)

	recipient := newKey(t).PublicKey()
	rec = s.submit(t, s.relayer, recipient, instruction.UnlockFromEvm, &instruction.UnlockFromEvmArgs{SrcChainID: 1, Nonce: 42, Amount: 500})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// A different recipient makes this a new transaction, so it is the message key that is rejected.
	rec = s.submit(t, s.relayer, newKey(t).PublicKey(), instruction.UnlockFromEvm, &instruction.UnlockFromEvmArgs{SrcChainID: 1, Nonce: 42, Amount: 500})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "AlreadyProcessed", decodeError(t, rec).Name)
	assert.Equal(t, bridge.ErrAlreadyProcessed.Code, decodeError(t, rec).Code)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/v1/bridges/%s/balances/%s", s.mint, recipient), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bal balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bal))
	assert.Equal(t, uint64(500), bal.Balance)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/v1/bridges/%s/vault", s.mint), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bal))
	assert.Equal(t, uint64(500), bal.Balance)

	rec = s.do(t, http.MethodGet, "/v1/processed/1/42", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var processed processedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &processed))
	assert.True(t, processed.Processed)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/v1/bridges/%s/audit", s.mint), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var audit auditResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &audit))
	assert.True(t, audit.Balanced)
	assert.Equal(t, "1000", audit.TotalLocked)
	assert.Equal(t, "500", audit.TotalUnlocked)
}

func TestGetConfig(t *testing.T) {
	s := newTestServer(t, Config{})
	rec := s.do(t, http.MethodGet, "/v1/bridges/"+s.mint.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "BridgeNotInitialized", decodeError(t, rec).Name)

	s.initialize(t)
	rec = s.do(t, http.MethodGet, "/v1/bridges/"+s.mint.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg configResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, s.admin.PublicKey().String(), cfg.Admin)
	assert.Equal(t, s.relayer.PublicKey().String(), cfg.Relayer)
	assert.Equal(t, "0x1234000000000000000000000000000000000000", cfg.DestinationBridge)
	assert.False(t, cfg.Paused)

	addrs, err := s.bridge.Addresses(s.mint)
	require.NoError(t, err)
	assert.Equal(t, addrs.Config.String(), cfg.Addresses.Config)
}

func TestLocksAndMessage(t *testing.T) {
	s := newTestServer(t, Config{})
	s.initialize(t)
	require.NoError(t, s.bridge.Airdrop(context.Background(), s.mint, s.user.PublicKey(), 100))
	for i := 0; i < 3; i++ {
		rec := s.submit(t, s.user, solana.PublicKey{}, instruction.LockTokens, &instruction.LockTokensArgs{Amount: uint64(i + 1)})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := s.do(t, http.MethodGet, fmt.Sprintf("/v1/bridges/%s/locks?from=1&limit=5", s.mint), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var locks locksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &locks))
	require.Len(t, locks.Locks, 2)
	assert.Equal(t, uint64(1), locks.Locks[0].Nonce)
	assert.Equal(t, uint64(3), locks.Next)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/v1/bridges/%s/locks?limit=0", s.mint), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BadRequest", decodeError(t, rec).Name)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/v1/bridges/%s/locks/2", s.mint), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var lock lockResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lock))
	assert.Equal(t, uint64(3), lock.Amount)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/v1/bridges/%s/locks/9", s.mint), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/v1/bridges/%s/locks/0/message?srcChainId=900", s.mint), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var msg messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, uint64(900), msg.SrcChainID)
	assert.Equal(t, uint64(1), msg.DestinationChainID)
	assert.Len(t, msg.Calldata, 2+2*(4+7*32))

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/v1/bridges/%s/locks/0/message", s.mint), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitErrors(t *testing.T) {
	s := newTestServer(t, Config{})
	s.initialize(t)

	tests := []struct {
		name   string
		key    solana.PrivateKey
		ix     instruction.Discriminator
		args   interface{}
		status int
		error  string
	}{
		{"zero amount", s.user, instruction.LockTokens, &instruction.LockTokensArgs{}, http.StatusBadRequest, "InvalidAmount"},
		{"insufficient funds", s.user, instruction.LockTokens, &instruction.LockTokensArgs{Amount: 1}, http.StatusUnprocessableEntity, "InsufficientFunds"},
		{"wrong relayer", s.user, instruction.UnlockFromEvm, &instruction.UnlockFromEvmArgs{SrcChainID: 1, Nonce: 1, Amount: 1}, http.StatusForbidden, "Unauthorized"},
		{"wrong admin", s.user, instruction.PauseBridge, nil, http.StatusForbidden, "UnauthorizedAdmin"},
		{"not paused", s.admin, instruction.ResumeBridge, nil, http.StatusConflict, "NotPaused"},
		{"unknown instruction", s.admin, instruction.Sighash("emergency_withdraw"), nil, http.StatusBadRequest, "UnknownInstruction"},
		{"undercollateralized", s.relayer, instruction.UnlockFromEvm, &instruction.UnlockFromEvmArgs{SrcChainID: 1, Nonce: 1, Amount: 1}, http.StatusInternalServerError, "VaultUndercollateralized"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.submit(t, tc.key, newKey(t).PublicKey(), tc.ix, tc.args)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.error, decodeError(t, rec).Name)
		})
	}
}

func TestSubmitMalformed(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := s.do(t, http.MethodPost, "/v1/transactions", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/transactions", &submitRequest{Transaction: "0OIl", Signature: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BadRequest", decodeError(t, rec).Name)
}

func TestSubmitForgedSignature(t *testing.T) {
	s := newTestServer(t, Config{})
	data, err := instruction.Encode(instruction.PauseBridge, nil)
	require.NoError(t, err)
	signed, err := instruction.NewTransaction(s.admin.PublicKey(), s.mint, solana.PublicKey{}, data, time.Now()).Sign(s.admin)
	require.NoError(t, err)
	forged, err := s.user.Sign(signed.Message)
	require.NoError(t, err)
	signed.Signature = forged

	msg, sig := signed.Encode()
	rec := s.do(t, http.MethodPost, "/v1/transactions", &submitRequest{Transaction: msg, Signature: sig})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "InvalidSignature", decodeError(t, rec).Name)
}

func TestInvalidPathParameters(t *testing.T) {
	s := newTestServer(t, Config{})
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/bridges/not-a-key", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, fmt.Sprintf("/v1/bridges/%s/locks/abc", s.mint), nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/processed/x/1", nil).Code)
}

func TestFaucet(t *testing.T) {
	s := newTestServer(t, Config{})
	owner := newKey(t).PublicKey()
	req := &airdropRequest{Mint: s.mint.String(), Owner: owner.String(), Amount: 50}

	// Not routed unless enabled.
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/v1/devnet/airdrop", req).Code)

	s.handler = NewRouter(s.bridge, zap.NewNop(), Config{EnableFaucet: true})
	rec := s.do(t, http.MethodPost, "/v1/devnet/airdrop", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var bal balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bal))
	assert.Equal(t, uint64(50), bal.Balance)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, Config{RequestsPerSecond: 0.001, Burst: 2})
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/health", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/health", nil).Code)
	rec := s.do(t, http.MethodGet, "/v1/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RateLimited", decodeError(t, rec).Name)
}

func TestStatusServer(t *testing.T) {
	registry := readiness.NewRegistry()
	require.NoError(t, registry.RegisterComponent("database"))
	srv := NewStatusServer(":0", registry)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	registry.SetReady("database")
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, families, "go_goroutines")
	require.Contains(t, families, "custody_vault_undercollateralized_total")
	assert.Equal(t, dto.MetricType_COUNTER, families["custody_vault_undercollateralized_total"].GetType())
}

func TestSubmitReplay(t *testing.T) {
	s := newTestServer(t, Config{})
	s.initialize(t)

	data, err := instruction.Encode(instruction.PauseBridge, nil)
	require.NoError(t, err)
	signed, err := instruction.NewTransaction(s.admin.PublicKey(), s.mint, solana.PublicKey{}, data, time.Now()).Sign(s.admin)
	require.NoError(t, err)
	msg, sig := signed.Encode()
	req := &submitRequest{Transaction: msg, Signature: sig}

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/transactions", req).Code)
	rec := s.do(t, http.MethodPost, "/v1/transactions", req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DuplicateTransaction", decodeError(t, rec).Name)
}
