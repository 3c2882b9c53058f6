package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"sanatrack/safety-engine/internal/domain"
	"sanatrack/safety-engine/internal/ledger"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// errorStatus maps a domain error to its HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnknownEntity):
		return http.StatusNotFound, "unknown_entity"
	case errors.Is(err, domain.ErrUnknownContact):
		return http.StatusNotFound, "unknown_contact"
	case errors.Is(err, ledger.ErrUnknownAlert):
		return http.StatusNotFound, "unknown_alert"
	case errors.Is(err, domain.ErrNoData):
		return http.StatusNotFound, "no_data"
	case errors.Is(err, domain.ErrOutOfOrder):
		return http.StatusConflict, "out_of_order"
	case errors.Is(err, domain.ErrDuplicateEntity):
		return http.StatusConflict, "duplicate_entity"
	case errors.Is(err, domain.ErrActiveAlerts):
		return http.StatusConflict, "active_alerts"
	case errors.Is(err, domain.ErrInvalidSample):
		return http.StatusBadRequest, "invalid_sample"
	case errors.Is(err, domain.ErrInvalidZone):
		return http.StatusBadRequest, "invalid_zone"
	case errors.Is(err, domain.ErrInvalidExport):
		return http.StatusBadRequest, "invalid_export"
	case errors.Is(err, domain.ErrInvalidEntity):
		return http.StatusBadRequest, "invalid_entity"
	case errors.Is(err, domain.ErrInvalidManualAlert):
		return http.StatusBadRequest, "invalid_manual_alert"
	case errors.Is(err, domain.ErrInvalidDispatchTarget):
		return http.StatusUnprocessableEntity, "invalid_dispatch_target"
	case errors.Is(err, domain.ErrNotResolvable):
		return http.StatusUnprocessableEntity, "not_resolvable"
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: "bad_request"})
}
