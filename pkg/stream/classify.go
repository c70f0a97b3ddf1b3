package stream

import (
	"errors"
	"net/http"
	"strings"
)

// configurationMarkers are substrings of backend error types and messages
// that point at bad credentials or an invalid provider configuration.
var configurationMarkers = []string{
	"api key",
	"api_key",
	"apikey",
	"unauthorized",
	"authentication",
	"invalid credential",
	"invalid config",
	"configuration",
	"permission denied",
	"forbidden",
}

// Classify maps any failure produced while opening or consuming a stream
// into the closed StreamError taxonomy. A nil err yields nil.
func Classify(err error) *StreamError {
	if err == nil {
		return nil
	}

	var serr *StreamError
	if errors.As(err, &serr) {
		return serr
	}

	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return ClassifyBackend(backendErr.Type, backendErr.Message).withCause(err)
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return NewStreamError(KindMalformedPayload, validationErr.Error()).withCause(err)
	}

	var openErr *OpenError
	if errors.As(err, &openErr) {
		return classifyOpen(openErr).withCause(err)
	}

	if errors.Is(err, ErrConfiguration) {
		return NewStreamError(KindConfiguration, err.Error()).withCause(err)
	}

	// Transport failures, dropped connections and transport-level timeouts.
	return NewStreamError(KindConnection, err.Error()).withCause(err)
}

// ClassifyBackend classifies a backend-reported error by its type and message.
// Uncategorized backend errors are server errors that neither retry nor fall
// back.
func ClassifyBackend(errorType, message string) *StreamError {
	if message == "" {
		message = "the gateway reported an error"
	}
	haystack := strings.ToLower(errorType + " " + message)

	if strings.Contains(haystack, "quota") {
		return NewStreamError(KindQuotaExceeded, message)
	}

	for _, marker := range configurationMarkers {
		if strings.Contains(haystack, marker) {
			return NewStreamError(KindConfiguration, message)
		}
	}

	serr := NewStreamError(KindServer, message)
	serr.ShouldFallback = false
	return serr
}

// FallbackFailed classifies the failure of the non-streaming fallback call.
// It is terminal: neither retryable nor eligible for further fallback.
func FallbackFailed(err error) *StreamError {
	serr := NewStreamError(KindServer, "fallback request failed: "+err.Error())
	serr.Retryable = false
	serr.ShouldFallback = false
	return serr.withCause(err)
}

func classifyOpen(err *OpenError) *StreamError {
	msg := err.Error()
	switch {
	case err.StatusCode == http.StatusUnauthorized, err.StatusCode == http.StatusForbidden:
		return NewStreamError(KindConfiguration, msg)
	case err.StatusCode == http.StatusPaymentRequired:
		return NewStreamError(KindQuotaExceeded, msg)
	case err.StatusCode == http.StatusTooManyRequests && strings.Contains(strings.ToLower(err.Message), "quota"):
		return NewStreamError(KindQuotaExceeded, msg)
	default:
		return NewStreamError(KindConnection, msg)
	}
}
