package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
)

// statusForKind maps an error kind to the HTTP status surfaced to API callers.
func statusForKind(kind coredomain.ErrorKind) int {
	switch kind {
	case coredomain.KindInvalid:
		return http.StatusBadRequest
	case coredomain.KindForbidden:
		return http.StatusForbidden
	case coredomain.KindNotFound:
		return http.StatusNotFound
	case coredomain.KindConflict:
		return http.StatusConflict
	case coredomain.KindPrecondition:
		return http.StatusUnprocessableEntity
	case coredomain.KindNotImplemented:
		return http.StatusNotImplemented
	case coredomain.KindDispatch, coredomain.KindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, message string, statusCode int) {
	logger.WarnContext(ctx, "API Error Response", "status_code", statusCode, "message", message)
	writeJSON(w, statusCode, GenericErrorResponse{Error: message})
}

// writeError renders an application error with its kind. Internal errors are logged and masked.
func writeError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := coredomain.KindOf(err)
	statusCode := statusForKind(kind)
	if statusCode == http.StatusInternalServerError {
		logger.ErrorContext(ctx, "Request failed", "error", err)
		writeJSON(w, statusCode, GenericErrorResponse{Error: "Internal server error", Kind: string(kind)})
		return
	}

	logger.WarnContext(ctx, "Request rejected", "status_code", statusCode, "kind", kind, "error", err)
	resp := GenericErrorResponse{Error: err.Error(), Kind: string(kind)}
	var perr *coredomain.ParameterError
	if errors.As(err, &perr) {
		resp.MissingVariables = perr.Missing
		resp.UnknownParameters = perr.Unknown
		resp.SuggestedParameters = perr.Suggested
	}
	writeJSON(w, statusCode, resp)
}
