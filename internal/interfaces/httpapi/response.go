package httpapi

import (
	"context"
	"errors"
	"net/http"

	sonic "github.com/bytedance/sonic"

	"github.com/fortifiedfantasy/duels/internal/usecase"
)

// Error codes carried in the `error` field of failure envelopes. Clients
// branch on the code; the message is advisory.
const (
	codeBadArgs           = "BAD_ARGS"
	codeUnauthorized      = "UNAUTHORIZED"
	codeForbidden         = "FORBIDDEN"
	codeNotFound          = "NOT_FOUND"
	codeConflict          = "CONFLICT"
	codeBadState          = "BAD_STATE"
	codeInsufficientFunds = "INSUFFICIENT_FUNDS"
	codePastWeek          = "PAST_WEEK"
	codeUpstream          = "UPSTREAM"
	codeUpstreamTimeout   = "UPSTREAM_TIMEOUT"
	codeInternal          = "INTERNAL"
)

type errorEnvelope struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type mappedError struct {
	HTTPStatus int
	Code       string
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	ctx, span := startSpan(ctx, "httpapi.writeJSON")
	defer span.End()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(payload)
}

// writeSuccess flattens the payload's fields beside `"ok": true` so success
// bodies read {"ok":true, ...payload} rather than nesting under a data key.
func writeSuccess(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	ctx, span := startSpan(ctx, "httpapi.writeSuccess")
	defer span.End()

	body := map[string]any{"ok": true}
	if payload != nil {
		raw, err := sonic.Marshal(payload)
		if err != nil {
			writeInternalError(ctx, w)
			return
		}
		var fields map[string]any
		if err := sonic.Unmarshal(raw, &fields); err != nil {
			writeInternalError(ctx, w)
			return
		}
		for key, value := range fields {
			body[key] = value
		}
	}

	writeJSON(ctx, w, status, body)
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	ctx, span := startSpan(ctx, "httpapi.writeError")
	defer span.End()

	mapped := mapError(ctx, err)
	if mapped.Code == codeInternal {
		// Internal details stay in logs, not response bodies.
		writeInternalError(ctx, w)
		return
	}

	writeJSON(ctx, w, mapped.HTTPStatus, errorEnvelope{
		OK:      false,
		Error:   mapped.Code,
		Message: err.Error(),
	})
}

func writeInternalError(ctx context.Context, w http.ResponseWriter) {
	ctx, span := startSpan(ctx, "httpapi.writeInternalError")
	defer span.End()

	writeJSON(ctx, w, http.StatusInternalServerError, errorEnvelope{
		OK:      false,
		Error:   codeInternal,
		Message: "internal server error",
	})
}

func mapError(ctx context.Context, err error) mappedError {
	_, span := startSpan(ctx, "httpapi.mapError")
	defer span.End()

	switch {
	case errors.Is(err, usecase.ErrBadArgs):
		return mappedError{HTTPStatus: http.StatusBadRequest, Code: codeBadArgs}
	case errors.Is(err, usecase.ErrPastWeek):
		return mappedError{HTTPStatus: http.StatusBadRequest, Code: codePastWeek}
	case errors.Is(err, usecase.ErrUnauthorized):
		return mappedError{HTTPStatus: http.StatusUnauthorized, Code: codeUnauthorized}
	case errors.Is(err, usecase.ErrForbidden):
		return mappedError{HTTPStatus: http.StatusForbidden, Code: codeForbidden}
	case errors.Is(err, usecase.ErrNotFound):
		return mappedError{HTTPStatus: http.StatusNotFound, Code: codeNotFound}
	case errors.Is(err, usecase.ErrConflict):
		return mappedError{HTTPStatus: http.StatusConflict, Code: codeConflict}
	case errors.Is(err, usecase.ErrBadState):
		return mappedError{HTTPStatus: http.StatusConflict, Code: codeBadState}
	case errors.Is(err, usecase.ErrInsufficientFunds):
		return mappedError{HTTPStatus: http.StatusConflict, Code: codeInsufficientFunds}
	case errors.Is(err, usecase.ErrUpstreamTimeout):
		return mappedError{HTTPStatus: http.StatusGatewayTimeout, Code: codeUpstreamTimeout}
	case errors.Is(err, usecase.ErrUpstream):
		return mappedError{HTTPStatus: http.StatusBadGateway, Code: codeUpstream}
	default:
		return mappedError{HTTPStatus: http.StatusInternalServerError, Code: codeInternal}
	}
}
