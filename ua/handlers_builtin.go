package ua

import (
	"github.com/rs/zerolog"

	"github.com/sipstack/sipstack/sip"
)

// LoggingHandlers returns the request/response/error hooks that log one
// line per outbound request, inbound response, and surfaced error.
// Grounded on original_source/sipx/_handlers/_utility.py's LoggingHandler,
// translated into the three-hook Go idiom instead of a class with
// on_request/on_response/on_error methods.
func LoggingHandlers(log zerolog.Logger) (RequestHandler, ResponseHandler, ErrorHandler) {
	onReq := func(req *sip.Request) error {
		log.Info().Str("method", string(req.Method)).Str("recipient", req.Recipient.String()).Msg("ua: sending request")
		return nil
	}
	onRes := func(res *sip.Response) {
		log.Info().Int("status", res.StatusCode).Str("reason", res.Reason).Msg("ua: received response")
	}
	onErr := func(err error) {
		log.Error().Err(err).Msg("ua: error")
	}
	return onReq, onRes, onErr
}

// ContactInjector returns a RequestHandler that appends a copy of contact
// if the request doesn't already carry a Contact header — every
// dialog-forming request (INVITE, REGISTER, SUBSCRIBE) needs one.
// Grounded on the teacher's client.go clientRequestBuildReq, which fills
// in the same mandatory-header gap-filling role for To/From/CSeq/Via.
func ContactInjector(contact *sip.ContactHeader) RequestHandler {
	return func(req *sip.Request) error {
		if req.Contact() != nil {
			return nil
		}
		req.AppendHeader(contact.Clone())
		return nil
	}
}

// UserAgentInjector returns a RequestHandler that stamps every outbound
// request with a User-Agent header, unless the caller already set one.
func UserAgentInjector(name string) RequestHandler {
	return func(req *sip.Request) error {
		if req.GetHeader("User-Agent") != nil {
			return nil
		}
		req.AppendHeader(sip.NewHeader("User-Agent", name))
		return nil
	}
}

// RetryableStatus reports whether status is one worth resending on:
// 408 Request Timeout, 500 Internal Server Error, 503 Service
// Unavailable. It is a predicate only; no handler in this package
// resends a request. Grounded on original_source/sipx/_handlers/_response.py's
// RetryHandler status set.
func RetryableStatus(status int) bool {
	switch status {
	case sip.StatusRequestTimeout, sip.StatusInternalServerError, sip.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}
