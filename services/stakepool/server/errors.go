package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"stakepool/native/stakepool"
)

var (
	errBadAddress     = errors.New("invalid address")
	errBadAmount      = errors.New("amount must be a positive decimal integer")
	errMissingCaller  = errors.New("caller identity missing")
	errNoJournal      = errors.New("event journal not configured")
	errLedgerMissing  = errors.New("ledger not configured")
	errMalformedInput = errors.New("malformed request body")
)

// statusFor maps ledger error categories onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, stakepool.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, stakepool.ErrPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, stakepool.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, stakepool.ErrState):
		return http.StatusConflict
	case errors.Is(err, stakepool.ErrConfig):
		return http.StatusUnprocessableEntity
	case errors.Is(err, stakepool.ErrTransfer):
		return http.StatusBadGateway
	case errors.Is(err, errBadAddress), errors.Is(err, errBadAmount), errors.Is(err, errMalformedInput):
		return http.StatusBadRequest
	case errors.Is(err, errMissingCaller):
		return http.StatusUnauthorized
	case errors.Is(err, errNoJournal), errors.Is(err, errLedgerMissing):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// outcome is the metrics label for an engine result.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, stakepool.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, stakepool.ErrPaused):
		return "paused"
	case errors.Is(err, stakepool.ErrValidation):
		return "validation"
	case errors.Is(err, stakepool.ErrState):
		return "state"
	case errors.Is(err, stakepool.ErrConfig):
		return "config"
	case errors.Is(err, stakepool.ErrTransfer):
		return "transfer"
	default:
		return "internal"
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}
