package cliui

import (
	"errors"

	"github.com/papercomputeco/chatstream/pkg/stream"
)

// ErrorMessage returns the message shown to a user for a failed chat turn.
// The detail of the underlying error is left to debug logs.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var serr *stream.StreamError
	if !errors.As(err, &serr) {
		serr = stream.Classify(err)
	}

	switch serr.Kind {
	case stream.KindConnection:
		return "Could not reach the chat gateway. Check your connection and try again."
	case stream.KindMalformedPayload:
		return "The gateway sent a response that could not be read. Please try again."
	case stream.KindQuotaExceeded:
		return "Your usage quota has been exceeded. Contact your administrator to raise it."
	case stream.KindConfiguration:
		return "The gateway rejected the request configuration. Run \"chatstream auth\" or check \"chatstream config list\"."
	default:
		if serr.Message != "" {
			return "The gateway reported an error: " + serr.Message
		}
		return "The gateway reported an error."
	}
}
