package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrorKind is the failure taxonomy shared by the executor, the validator and
// the enrichment workflow.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindQuotaDenied        ErrorKind = "quota_denied"
	KindTransientNetwork   ErrorKind = "transient_network"
	KindRateLimited        ErrorKind = "rate_limited"
	KindAuthOrConfig       ErrorKind = "auth_or_config"
	KindMalformedResponse  ErrorKind = "malformed_response"
	KindValidationRejected ErrorKind = "validation_rejected"
	KindCallFailed         ErrorKind = "call_failed"
)

// Retryable reports whether a call failing with k may be attempted again.
func (k ErrorKind) Retryable() bool {
	return k == KindTransientNetwork || k == KindRateLimited
}

var ErrMissingCredential = errors.New("missing_credential")

// StatusError is returned by HTTP providers for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	if body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, body)
}

// StatusCodeOf extracts an HTTP status code from err, or 0.
func StatusCodeOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

var (
	rateLimitSignals = []string{"rate limit", "rate_limit", "too many requests", "quota"}
	transientSignals = []string{"timeout", "timed out", "temporarily unavailable", "connection reset", "connection refused"}
	authSignals      = []string{"api key", "api_key", "unauthorized", "forbidden", "invalid credentials"}
)

// Classify maps a call failure onto the taxonomy. Only rate limits and
// transient network failures are retryable.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrMissingCredential) {
		return KindAuthOrConfig
	}
	if errors.Is(err, context.Canceled) {
		return KindCallFailed
	}

	switch code := StatusCodeOf(err); {
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuthOrConfig
	case code == http.StatusRequestTimeout || code >= http.StatusInternalServerError:
		return KindTransientNetwork
	case code >= http.StatusBadRequest:
		if containsAny(strings.ToLower(err.Error()), rateLimitSignals) {
			return KindRateLimited
		}
		return KindCallFailed
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return KindTransientNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransientNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, rateLimitSignals):
		return KindRateLimited
	case containsAny(msg, transientSignals):
		return KindTransientNetwork
	case containsAny(msg, authSignals):
		return KindAuthOrConfig
	}
	return KindCallFailed
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// CallError is the error form of a failed Outcome.
type CallError struct {
	Call       string
	Kind       ErrorKind
	LastKind   ErrorKind
	Attempts   int
	StatusCode int
	Err        error
}

func (e *CallError) Error() string {
	msg := fmt.Sprintf("%s failed after %d attempt(s) [%s]", e.Call, e.Attempts, e.Kind)
	if e.LastKind != "" && e.LastKind != e.Kind {
		msg += " last=" + string(e.LastKind)
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CallError) Unwrap() error { return e.Err }

func (e *CallError) ErrorType() string { return string(e.Kind) }
