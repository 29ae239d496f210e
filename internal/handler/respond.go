package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/qrtrail/qrtrail/internal/chunker"
	"github.com/qrtrail/qrtrail/internal/quota"
	"github.com/qrtrail/qrtrail/internal/store"
	"github.com/qrtrail/qrtrail/internal/token"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the engine's validation taxonomy to HTTP statuses and
// surfaces the failure verbatim. Anything unmapped is an internal error
// and the message is not leaked.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrMalformed),
		errors.Is(err, chunker.ErrMalformedPart):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, token.ErrInvalidSignature):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
	case errors.Is(err, token.ErrExpired),
		errors.Is(err, store.ErrCodeExpired):
		writeJSON(w, http.StatusGone, map[string]string{"error": err.Error()})
	case errors.Is(err, token.ErrAlreadyConsumed),
		errors.Is(err, chunker.ErrConflict),
		errors.Is(err, chunker.ErrIncompleteGroup):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, chunker.ErrChecksumMismatch):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, store.ErrUnknownCode),
		errors.Is(err, token.ErrUnknownToken):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, quota.ErrQuotaExceeded):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
