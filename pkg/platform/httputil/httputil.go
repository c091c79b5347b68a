// Package httputil centralizes JSON encoding, decoding, and error mapping for
// HTTP handlers.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "agentvault/pkg/domain-errors"
)

// Validatable is implemented by request types that validate and parse their
// own fields after decoding.
type Validatable interface {
	Validate() error
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the wire shape for all error responses.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteError maps a domain error code to an HTTP status and writes the error
// body. Internal errors omit the description so infrastructure detail never
// leaks to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := errorBody{Error: string(code)}

	if code != dErrors.CodeInternal {
		var de *dErrors.Error
		if errors.As(err, &de) {
			body.ErrorDescription = de.Message
		} else {
			body.ErrorDescription = err.Error()
		}
	}

	WriteJSON(w, statusFor(code), body)
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidAmount:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusForbidden
	case dErrors.CodeNotFound, dErrors.CodePendingNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeExceedsPerTxLimit,
		dErrors.CodeExceedsDailyLimit,
		dErrors.CodeRecipientDenylisted,
		dErrors.CodeInsufficientBalance:
		// Hard blocks abort the operation; 422 distinguishes a policy abort
		// from a malformed request.
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// DecodeAndPrepare decodes the request body into T and runs its validation.
// On failure it writes the error response and returns ok=false; the handler
// should simply return.
func DecodeAndPrepare[T any, PT interface {
	Validatable
	*T
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (PT, bool) {
	req := PT(new(T))
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "request decode failed", "request_id", requestID, "error", err)
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return nil, false
	}
	if err := req.Validate(); err != nil {
		WriteError(w, err)
		return nil, false
	}
	return req, true
}
