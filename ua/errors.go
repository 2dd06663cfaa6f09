package ua

import "errors"

// Error kinds from spec section 7, extending the sip package's transport/
// transaction sentinels with the errors only the UA layer can produce.
var (
	// ErrTimeout marks a final response that did not arrive in time. No
	// operation in this package returns it: when a caller's context
	// deadline elapses, Client operations return the context's own error.
	ErrTimeout = errors.New("ua: timeout waiting for response")

	// ErrProtocol marks a transaction outcome this layer cannot accept: a
	// non-2xx final response to INVITE, a 2xx it cannot build a dialog
	// from, or a transaction that ended without a final response.
	ErrProtocol = errors.New("ua: protocol violation")

	// ErrAuthFailed is returned when a 401/407 challenge could not be
	// answered (no usable challenge, no credentials, or a digest error),
	// or when the retried request was challenged again.
	ErrAuthFailed = errors.New("ua: authentication failed")

	// ErrClosed marks an operation on a closed Client/Server. No operation
	// in this package returns it: closing a Client stops only its loop.
	ErrClosed = errors.New("ua: closed")

	// ErrNoDialog is returned when an operation that requires an
	// established dialog (Bye, Ack) is attempted on a Call that never
	// reached one.
	ErrNoDialog = errors.New("ua: no dialog established")

	// ErrCallNotCancelable is returned by Call.Cancel before a provisional
	// response has arrived and once the call has received a final response.
	ErrCallNotCancelable = errors.New("ua: call can no longer be canceled")
)
