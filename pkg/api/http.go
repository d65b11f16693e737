// Package api serves the bridge over HTTP: signed transactions go in through POST /v1/transactions and
// every account the bridge keeps can be read back.
package api

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/certusone/wormhole/custody/pkg/bridge"
	"github.com/certusone/wormhole/custody/pkg/instruction"
	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const MAX_BODY_SIZE = 64 * 1024

type Config struct {
	// RequestsPerSecond across all clients. Zero disables rate limiting.
	RequestsPerSecond float64
	Burst             int
	// EnableFaucet exposes POST /v1/devnet/airdrop. Only ever set on devnet.
	EnableFaucet bool
}

type httpServer struct {
	logger *zap.Logger
	bridge *bridge.Bridge
}

type (
	submitRequest struct {
		Transaction string `json:"transaction"`
		Signature   string `json:"signature"`
	}

	submitResponse struct {
		Signature   string        `json:"signature"`
		Instruction string        `json:"instruction"`
		Lock        *lockResponse `json:"lock,omitempty"`
	}

	addressesResponse struct {
		Config             string `json:"config"`
		VaultAuthority     string `json:"vaultAuthority"`
		VaultAuthorityBump uint8  `json:"vaultAuthorityBump"`
		Vault              string `json:"vault"`
		Stats              string `json:"stats"`
	}

	configResponse struct {
		Mint               string            `json:"mint"`
		Admin              string            `json:"admin"`
		Relayer            string            `json:"relayer"`
		Nonce              uint64            `json:"nonce"`
		DestinationChainID uint64            `json:"destinationChainId"`
		DestinationBridge  string            `json:"destinationBridge"`
		Paused             bool              `json:"paused"`
		Addresses          addressesResponse `json:"addresses"`
	}

	lockResponse struct {
		Config             string `json:"config"`
		Nonce              uint64 `json:"nonce"`
		User               string `json:"user"`
		Amount             uint64 `json:"amount"`
		DestinationAddress string `json:"destinationAddress"`
		CreatedAt          int64  `json:"createdAt"`
	}

	locksResponse struct {
		Locks []*lockResponse `json:"locks"`
		// Next is the nonce to continue the scan from.
		Next uint64 `json:"next"`
	}

	messageResponse struct {
		SrcChainID         uint64 `json:"srcChainId"`
		DestinationChainID uint64 `json:"destinationChainId"`
		DestinationBridge  string `json:"destinationBridge"`
		Recipient          string `json:"recipient"`
		Calldata           string `json:"calldata"`
		Digest             string `json:"digest"`
	}

	balanceResponse struct {
		Mint    string `json:"mint"`
		Owner   string `json:"owner"`
		Balance uint64 `json:"balance"`
	}

	auditResponse struct {
		Mint          string `json:"mint"`
		VaultBalance  uint64 `json:"vaultBalance"`
		TotalLocked   string `json:"totalLocked"`
		TotalUnlocked string `json:"totalUnlocked"`
		Balanced      bool   `json:"balanced"`
	}

	processedResponse struct {
		SrcChainID uint64 `json:"srcChainId"`
		Nonce      uint64 `json:"nonce"`
		Processed  bool   `json:"processed"`
	}

	airdropRequest struct {
		Mint   string `json:"mint"`
		Owner  string `json:"owner"`
		Amount uint64 `json:"amount"`
	}
)

func evmHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func toLockResponse(rec *bridge.LockRecord) *lockResponse {
	return &lockResponse{
		Config:             rec.Config.String(),
		Nonce:              rec.Nonce,
		User:               rec.User.String(),
		Amount:             rec.Amount,
		DestinationAddress: evmHex(rec.DestinationAddress[:]),
		CreatedAt:          rec.CreatedAt,
	}
}

func (s *httpServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MAX_BODY_SIZE)).Decode(&req); err != nil {
		s.badRequest(w, r, fmt.Sprintf("failed to decode body: %v", err))
		return
	}
	signed, err := instruction.DecodeSigned(req.Transaction, req.Signature)
	if err != nil {
		s.badRequest(w, r, err.Error())
		return
	}

	receipt, err := s.bridge.Process(r.Context(), signed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := &submitResponse{Signature: receipt.Signature.String(), Instruction: receipt.Instruction}
	if receipt.Lock != nil {
		resp.Lock = toLockResponse(receipt.Lock)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// pathKey parses the named route variable as a base58 public key.
func (s *httpServer) pathKey(w http.ResponseWriter, r *http.Request, name string) (solana.PublicKey, bool) {
	key, err := solana.PublicKeyFromBase58(mux.Vars(r)[name])
	if err != nil {
		s.badRequest(w, r, fmt.Sprintf("invalid %s: %v", name, err))
		return solana.PublicKey{}, false
	}
	return key, true
}

func (s *httpServer) parseUint(w http.ResponseWriter, r *http.Request, name, value string) (uint64, bool) {
	v, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		s.badRequest(w, r, fmt.Sprintf("invalid %s: %v", name, err))
		return 0, false
	}
	return v, true
}

func (s *httpServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	mint, ok := s.pathKey(w, r, "mint")
	if !ok {
		return
	}
	cfg, addrs, err := s.bridge.Config(mint)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &configResponse{
		Mint:               cfg.TokenMint.String(),
		Admin:              cfg.Admin.String(),
		Relayer:            cfg.Relayer.String(),
		Nonce:              cfg.Nonce,
		DestinationChainID: cfg.DestinationChainID,
		DestinationBridge:  evmHex(cfg.DestinationBridge[:]),
		Paused:             cfg.IsPaused(),
		Addresses: addressesResponse{
			Config:             addrs.Config.String(),
			VaultAuthority:     addrs.VaultAuthority.String(),
			VaultAuthorityBump: addrs.VaultAuthorityBump,
			Vault:              addrs.Vault.String(),
			Stats:              addrs.Stats.String(),
		},
	})
}

func (s *httpServer) handleLocks(w http.ResponseWriter, r *http.Request) {
	mint, ok := s.pathKey(w, r, "mint")
	if !ok {
		return
	}
	var from uint64
	if v := r.URL.Query().Get("from"); v != "" {
		if from, ok = s.parseUint(w, r, "from", v); !ok {
			return
		}
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		l, ok := s.parseUint(w, r, "limit", v)
		if !ok {
			return
		}
		if l == 0 {
			s.badRequest(w, r, "invalid limit: must be at least 1")
			return
		}
		if l < bridge.MaxLockRecordsPerQuery {
			limit = int(l)
		} else {
			limit = bridge.MaxLockRecordsPerQuery
		}
	}

	records, err := s.bridge.LockRecords(mint, from, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := &locksResponse{Locks: make([]*lockResponse, 0, len(records)), Next: from}
	for _, rec := range records {
		resp.Locks = append(resp.Locks, toLockResponse(rec))
		resp.Next = rec.Nonce + 1
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *httpServer) handleLock(w http.ResponseWriter, r *http.Request) {
	mint, ok := s.pathKey(w, r, "mint")
	if !ok {
		return
	}
	nonce, ok := s.parseUint(w, r, "nonce", mux.Vars(r)["nonce"])
	if !ok {
		return
	}
	rec, err := s.bridge.LockRecord(mint, nonce)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toLockResponse(rec))
}

func (s *httpServer) handleLockMessage(w http.ResponseWriter, r *http.Request) {
	mint, ok := s.pathKey(w, r, "mint")
	if !ok {
		return
	}
	nonce, ok := s.parseUint(w, r, "nonce", mux.Vars(r)["nonce"])
	if !ok {
		return
	}
	srcChainID, ok := s.parseUint(w, r, "srcChainId", r.URL.Query().Get("srcChainId"))
	if !ok {
		return
	}
	msg, err := s.bridge.LockMessage(mint, nonce, srcChainID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &messageResponse{
		SrcChainID:         msg.SrcChainID,
		DestinationChainID: msg.DestinationChainID,
		DestinationBridge:  msg.DestinationBridge.Hex(),
		Recipient:          msg.Recipient.Hex(),
		Calldata:           evmHex(msg.Calldata),
		Digest:             msg.Digest.Hex(),
	})
}

func (s *httpServer) handleVault(w http.ResponseWriter, r *http.Request) {
	mint, ok := s.pathKey(w, r, "mint")
	if !ok {
		return
	}
	_, addrs, err := s.bridge.Config(mint)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	balance, err := s.bridge.VaultBalance(mint)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &balanceResponse{Mint: mint.String(), Owner: addrs.VaultAuthority.String(), Balance: balance})
}

func (s *httpServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	mint, ok := s.pathKey(w, r, "mint")
	if !ok {
		return
	}
	report, err := s.bridge.Audit(mint)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &auditResponse{
		Mint:          mint.String(),
		VaultBalance:  report.VaultBalance,
		TotalLocked:   report.TotalLocked.ToBig().String(),
		TotalUnlocked: report.TotalUnlocked.ToBig().String(),
		Balanced:      report.Balanced,
	})
}

func (s *httpServer) handleBalance(w http.ResponseWriter, r *http.Request) {
	mint, ok := s.pathKey(w, r, "mint")
	if !ok {
		return
	}
	owner, ok := s.pathKey(w, r, "owner")
	if !ok {
		return
	}
	balance, err := s.bridge.Balance(mint, owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &balanceResponse{Mint: mint.String(), Owner: owner.String(), Balance: balance})
}

func (s *httpServer) handleProcessed(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	srcChainID, ok := s.parseUint(w, r, "srcChainId", vars["srcChainId"])
	if !ok {
		return
	}
	nonce, ok := s.parseUint(w, r, "nonce", vars["nonce"])
	if !ok {
		return
	}
	processed, err := s.bridge.IsProcessed(srcChainID, nonce)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &processedResponse{SrcChainID: srcChainID, Nonce: nonce, Processed: processed})
}

func (s *httpServer) handleAirdrop(w http.ResponseWriter, r *http.Request) {
	var req airdropRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MAX_BODY_SIZE)).Decode(&req); err != nil {
		s.badRequest(w, r, fmt.Sprintf("failed to decode body: %v", err))
		return
	}
	mint, err := solana.PublicKeyFromBase58(req.Mint)
	if err != nil {
		s.badRequest(w, r, fmt.Sprintf("invalid mint: %v", err))
		return
	}
	owner, err := solana.PublicKeyFromBase58(req.Owner)
	if err != nil {
		s.badRequest(w, r, fmt.Sprintf("invalid owner: %v", err))
		return
	}
	if err := s.bridge.Airdrop(r.Context(), mint, owner, req.Amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	balance, err := s.bridge.Balance(mint, owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &balanceResponse{Mint: mint.String(), Owner: owner.String(), Balance: balance})
}

func (s *httpServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("health check")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ok")
}

// NewRouter returns the API routes. Exposed separately from NewHTTPServer for httptest.
func NewRouter(b *bridge.Bridge, logger *zap.Logger, cfg Config) http.Handler {
	s := &httpServer{
		logger: logger.Named("api"),
		bridge: b,
	}
	r := mux.NewRouter()
	r.Use(s.withRequestID, s.withRateLimit(cfg.RequestsPerSecond, cfg.Burst))

	r.HandleFunc("/v1/transactions", s.handleSubmit).Methods("POST")
	r.HandleFunc("/v1/bridges/{mint}", s.handleConfig).Methods("GET")
	r.HandleFunc("/v1/bridges/{mint}/locks", s.handleLocks).Methods("GET")
	r.HandleFunc("/v1/bridges/{mint}/locks/{nonce}", s.handleLock).Methods("GET")
	r.HandleFunc("/v1/bridges/{mint}/locks/{nonce}/message", s.handleLockMessage).Methods("GET")
	r.HandleFunc("/v1/bridges/{mint}/vault", s.handleVault).Methods("GET")
	r.HandleFunc("/v1/bridges/{mint}/audit", s.handleAudit).Methods("GET")
	r.HandleFunc("/v1/bridges/{mint}/balances/{owner}", s.handleBalance).Methods("GET")
	r.HandleFunc("/v1/processed/{srcChainId}/{nonce}", s.handleProcessed).Methods("GET")
	r.HandleFunc("/v1/health", s.handleHealth).Methods("GET")
	if cfg.EnableFaucet {
		s.logger.Warn("devnet faucet enabled")
		r.HandleFunc("/v1/devnet/airdrop", s.handleAirdrop).Methods("POST")
	}
	return r
}

func NewHTTPServer(addr string, b *bridge.Bridge, logger *zap.Logger, cfg Config) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(b, logger, cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
