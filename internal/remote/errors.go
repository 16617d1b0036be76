package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"tillsync/internal/core/apperror"
)

// apiError is the wire shape of remote rejections.
type apiError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// normalizeTransportErr classifies errors raised before a response arrived.
// These are the transient errors eligible for queueing.
func normalizeTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.NewTimeout(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperror.NewTimeout(err)
	}
	return apperror.NewNetwork(err)
}

// normalizeResponseErr maps a non-2xx response to the error taxonomy.
// The server speaks the same {code, message, details} shape we use locally;
// when it does, the code wins over the status line.
func normalizeResponseErr(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var wire apiError
	if err := json.Unmarshal(body, &wire); err == nil && wire.Code != "" {
		return &apperror.AppError{
			Code:       wire.Code,
			Message:    wire.Message,
			Details:    wire.Details,
			HTTPStatus: resp.StatusCode,
		}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return apperror.NewUnauthorized("session invalid or expired")
	case http.StatusForbidden:
		return apperror.NewForbidden("access denied")
	case http.StatusNotFound:
		return apperror.NewNotFound("resource", resp.Request.URL.Path)
	case http.StatusConflict:
		return apperror.NewConflict("remote rejected: conflict")
	case http.StatusUnprocessableEntity:
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, "remote rejected: business rule violation")
	default:
		if resp.StatusCode >= 500 {
			// A 5xx without a structured code is a server-side outage, not a
			// verdict on the mutation: transient, eligible for replay.
			return apperror.NewNetwork(errors.New(resp.Status))
		}
		return apperror.NewValidation(resp.Status)
	}
}
