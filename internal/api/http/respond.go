package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"pickup-backend/internal/domain"
	"pickup-backend/internal/logger"
)

// apiError is the body of every failed request.
type apiError struct {
	Kind      string `json:"kind"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

const (
	reasonUnauthenticated = "UNAUTHENTICATED"
	reasonRateLimited     = "RATE_LIMITED"
	reasonTimeout         = "TIMEOUT"
	reasonInternal        = "INTERNAL"
	reasonRouteNotFound   = "ROUTE_NOT_FOUND"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		logger.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logger.Debug("Failed to write JSON response", "error", err)
	}
}

func writeAPIError(w http.ResponseWriter, status int, e apiError) {
	writeJSON(w, status, errorEnvelope{Error: e})
}

// writeError maps err onto a status code and the error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeAPIError(w, status, body)
}

func classify(err error) (int, apiError) {
	var de *domain.Error
	if errors.As(err, &de) {
		body := apiError{
			Kind:      string(de.Kind),
			Reason:    string(de.Reason),
			Message:   de.Message,
			Retryable: domain.IsRetryable(err),
		}
		switch de.Kind {
		case domain.KindValidation:
			return http.StatusBadRequest, body
		case domain.KindNotFound:
			return http.StatusNotFound, body
		case domain.KindPolicy:
			if de.Reason == domain.ReasonNotActivityCreator {
				return http.StatusForbidden, body
			}
			return http.StatusConflict, body
		case domain.KindStorage:
			// Driver detail stays in the log.
			body.Message = "storage is temporarily unavailable"
			return http.StatusServiceUnavailable, body
		default:
			return http.StatusServiceUnavailable, body
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable, apiError{
			Kind: string(domain.KindTransport), Reason: reasonTimeout,
			Message: "request did not complete in time", Retryable: true,
		}
	}
	return http.StatusInternalServerError, apiError{
		Kind: "internal", Reason: reasonInternal, Message: "internal error",
	}
}

// decodeJSON reads a request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return domain.Invalid("request body is required")
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		msg := err.Error()
		if i := strings.Index(msg, "\n"); i > 0 {
			msg = msg[:i]
		}
		return domain.Invalid("malformed request body: %s", msg)
	}
	return nil
}
