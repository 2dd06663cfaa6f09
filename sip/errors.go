package sip

import "errors"

// Error kinds from spec section 7. They are sentinel errors so callers
// can use errors.Is against them even after wrapping with context.
var (
	// ErrMalformed is returned by the codec when it cannot parse inbound bytes.
	// Parse is total: this error is always returned instead of panicking.
	ErrMalformed = errors.New("sip: malformed message")

	// ErrTransactionTimeout fires when Timer B/F expires, or a caller deadline elapses.
	ErrTransactionTimeout = errors.New("sip: transaction timeout")

	// ErrTransactionTransport wraps a transport-level write/read failure surfaced through a transaction.
	ErrTransactionTransport = errors.New("sip: transaction transport error")

	// ErrTransactionCanceled marks a transaction torn down by a CANCEL.
	ErrTransactionCanceled = errors.New("sip: transaction canceled")

	// ErrTransactionTerminated marks a transaction that reached its Terminated state.
	ErrTransactionTerminated = errors.New("sip: transaction terminated")

	// ErrTransportClosed is returned by transport operations after Close.
	ErrTransportClosed = errors.New("sip: transport closed")

	// ErrTransportWrite wraps OS-level write failures.
	ErrTransportWrite = errors.New("sip: transport write error")

	// ErrTransportRead wraps OS-level read failures.
	ErrTransportRead = errors.New("sip: transport read error")

	// ErrNetworkNotSupported is returned for an unknown transport network name.
	ErrNetworkNotSupported = errors.New("sip: network not supported")
)
