package ua

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/looplab/fsm"

	"github.com/sipstack/sipstack/sip"
)

// errLocalHangup marks a Call's err field when this side ended the call
// (Cancel or Bye), so the CallHangup event's ByRemote field can tell local
// teardown apart from a remote BYE or an INVITE failure response.
var errLocalHangup = errors.New("ua: call ended locally")

// Call is the public handle for an INVITE the client originated: the
// convenience FSM layered on top of the dialog/transaction state, per
// spec.md §3.
type Call struct {
	client *Client

	mu       sync.Mutex
	fsm      *fsm.FSM
	dialog   *Dialog
	inviteTx *sip.ClientTx

	lastResponse *sip.Response
	err          error

	rp reliableProvisional

	done chan struct{}
}

func newCall(c *Client) *Call {
	call := &Call{client: c, done: make(chan struct{})}
	call.fsm = newCallFSM(call.onEnterState)
	return call
}

func (call *Call) onEnterState(ctx context.Context, e *fsm.Event) {
	switch e.Dst {
	case CallStateConnected:
		if call.dialog != nil && call.client != nil {
			if sdp := call.lastResponse.Body(); len(sdp) > 0 && isSDP(call.lastResponse) {
				call.client.events.emit(EventSDPNegotiated, SDPNegotiated{Call: call, SDP: sdp}, call.client.ua)
			}
		}
	case CallStateFailed, CallStateTerminated:
		close(call.done)
		if call.client != nil {
			call.client.events.emit(EventCallHangup, CallHangup{Call: call, ByRemote: !errors.Is(call.err, errLocalHangup)}, call.client.ua)
		}
	}
}

// State returns the call's current convenience state
// (CallStateInitiating/Proceeding/Connected/Failed/Terminated).
func (call *Call) State() string {
	call.mu.Lock()
	defer call.mu.Unlock()
	return call.fsm.Current()
}

// Dialog returns the established dialog, or nil before a 2xx arrives.
func (call *Call) Dialog() *Dialog {
	call.mu.Lock()
	defer call.mu.Unlock()
	return call.dialog
}

// LastResponse returns the most recent response seen for this call's
// INVITE, which may be provisional.
func (call *Call) LastResponse() *sip.Response {
	call.mu.Lock()
	defer call.mu.Unlock()
	return call.lastResponse
}

// Done closes once the call reaches Failed or Terminated.
func (call *Call) Done() <-chan struct{} { return call.done }

// Err is the error that ended the call, if any. A call ended locally by
// Bye or Cancel reports a non-nil error marking that local hangup.
func (call *Call) Err() error {
	call.mu.Lock()
	defer call.mu.Unlock()
	return call.err
}

func (call *Call) fireLocked(event string) {
	if err := call.fsm.Event(context.Background(), event); err != nil {
		// Invalid transition for the current state: nothing to retry,
		// every caller of fireLocked already checked fsm.Current() or is
		// feeding events strictly in protocol order.
		_ = err
	}
}

// Cancel abandons a call in Proceeding, after a provisional response has
// arrived (RFC 3261 9.1). Returns ErrCallNotCancelable before any
// provisional response and once a final response has already arrived.
func (call *Call) Cancel(ctx context.Context) error {
	call.mu.Lock()
	state := call.fsm.Current()
	tx := call.inviteTx
	call.mu.Unlock()

	if state != CallStateProceeding {
		return ErrCallNotCancelable
	}
	if tx == nil {
		return ErrCallNotCancelable
	}

	cancelReq := sip.NewCancelRequest(tx.Origin())
	cancelTx, err := call.client.ua.Transaction().Request(ctx, cancelReq)
	if err != nil {
		return fmt.Errorf("ua: send CANCEL: %w", err)
	}
	defer cancelTx.Terminate()

	select {
	case <-cancelTx.Responses():
	case <-cancelTx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	call.mu.Lock()
	call.err = errLocalHangup
	call.fireLocked(callEventCancel)
	call.mu.Unlock()
	return nil
}

// Bye terminates an established call (RFC 3261 15.1.1).
func (call *Call) Bye(ctx context.Context) (*sip.Response, error) {
	call.mu.Lock()
	d := call.dialog
	state := call.fsm.Current()
	call.mu.Unlock()

	if d == nil || state != CallStateConnected {
		return nil, ErrNoDialog
	}

	res, err := call.client.sendInDialog(ctx, d, sip.BYE, nil)
	if err != nil {
		return nil, err
	}

	call.mu.Lock()
	call.err = errLocalHangup
	call.fireLocked(callEventBye)
	call.mu.Unlock()
	return res, nil
}

// isSDP reports whether res's Content-Type is application/sdp.
func isSDP(res *sip.Response) bool {
	ct := res.ContentType()
	if ct == nil {
		return false
	}
	return string(*ct) == "application/sdp"
}
