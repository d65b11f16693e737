package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/certusone/wormhole/custody/pkg/bridge"
	"go.uber.org/zap"
)

type errorBody struct {
	Code    uint32 `json:"code,omitempty"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// httpStatus maps a bridge failure to the status code returned to the client.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, bridge.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, bridge.ErrUnauthorized),
		errors.Is(err, bridge.ErrUnauthorizedAdmin):
		return http.StatusForbidden
	case errors.Is(err, bridge.ErrBridgeNotInitialized),
		errors.Is(err, bridge.ErrLockRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, bridge.ErrAlreadyInitialized),
		errors.Is(err, bridge.ErrAlreadyPaused),
		errors.Is(err, bridge.ErrNotPaused),
		errors.Is(err, bridge.ErrAlreadyProcessed),
		errors.Is(err, bridge.ErrBridgePaused),
		errors.Is(err, bridge.ErrTransactionExpired),
		errors.Is(err, bridge.ErrDuplicateTransaction):
		return http.StatusConflict
	case errors.Is(err, bridge.ErrInvalidAmount),
		errors.Is(err, bridge.ErrNonceOverflow),
		errors.Is(err, bridge.ErrInvalidRecipient),
		errors.Is(err, bridge.ErrInvalidSender),
		errors.Is(err, bridge.ErrUnknownInstruction),
		errors.Is(err, bridge.ErrInvalidInstructionData),
		errors.Is(err, bridge.ErrFaucetRecipient):
		return http.StatusBadRequest
	case errors.Is(err, bridge.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *httpServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	body := errorBody{Name: http.StatusText(status), Message: err.Error()}
	var bErr *bridge.Error
	if errors.As(err, &bErr) {
		body.Code = bErr.Code
		body.Name = bErr.Name
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("requestId", requestID(r.Context())), zap.Stringer("url", r.URL), zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.String("requestId", requestID(r.Context())), zap.Stringer("url", r.URL), zap.Error(err))
	}
	s.writeJSON(w, status, &errorResponse{Error: body})
}

// badRequest reports a malformed request that never reached the bridge.
func (s *httpServer) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	s.logger.Debug("bad request", zap.String("requestId", requestID(r.Context())), zap.Stringer("url", r.URL), zap.String("reason", msg))
	s.writeJSON(w, http.StatusBadRequest, &errorResponse{Error: errorBody{Name: "BadRequest", Message: msg}})
}

func (s *httpServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}
