package ua

import (
	"sync/atomic"

	"github.com/sipstack/sipstack/sip"
)

// DialogState is a dialog's position in RFC 3261 12's lifecycle.
type DialogState int

const (
	DialogStateEarly DialogState = iota
	DialogStateConfirmed
	DialogStateTerminated
)

func (s DialogState) String() string {
	switch s {
	case DialogStateEarly:
		return "early"
	case DialogStateConfirmed:
		return "confirmed"
	case DialogStateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Dialog is one RFC 3261 12 dialog, keyed by (Call-ID, local tag, remote
// tag) via sip.DialogIDMake. Grounded on the teacher's Dialog (dialog.go):
// same fields (invite request/response, local/remote CSeq, route set,
// remote target), but the atomic.Pointer[DialogStateFn] compare-and-swap
// callback chain is replaced by a plain callback slice. The dialog tables
// holding Dialogs are guarded by the owning Client's or Server's mutex;
// the onState slice itself is not synchronized.
type Dialog struct {
	ID string

	CallID    string
	LocalTag  string
	RemoteTag string

	InviteRequest  *sip.Request
	InviteResponse *sip.Response

	// RemoteTarget is the URI subsequent in-dialog requests route to,
	// refreshed from the remote party's Contact (RFC 3261 12.2.1.2).
	RemoteTarget sip.Uri
	RouteSet     []*sip.RouteHeader

	localSeq  atomic.Uint32
	remoteSeq atomic.Uint32
	state     atomic.Int32

	onState []func(DialogState)
}

func newDialogFromInvite(req *sip.Request, res *sip.Response) (*Dialog, error) {
	id, err := sip.DialogIDFromResponse(res)
	if err != nil {
		return nil, err
	}
	toTag, _ := res.To().Tag()
	fromTag, _ := req.From().Tag()

	d := &Dialog{
		ID:             id,
		CallID:         string(*req.CallID()),
		LocalTag:       fromTag,
		RemoteTag:      toTag,
		InviteRequest:  req,
		InviteResponse: res,
	}
	if cseq := req.CSeq(); cseq != nil {
		d.localSeq.Store(cseq.SeqNo)
	}
	if cont := res.Contact(); cont != nil {
		d.RemoteTarget = *cont.Address.Clone()
	} else {
		d.RemoteTarget = *req.Recipient.Clone()
	}
	for rr := res.RecordRoute(); rr != nil; rr = rr.Next {
		d.RouteSet = append([]*sip.RouteHeader{{Address: *rr.Address.Clone()}}, d.RouteSet...)
	}
	return d, nil
}

func (d *Dialog) State() DialogState { return DialogState(d.state.Load()) }

func (d *Dialog) setState(s DialogState) {
	d.state.Store(int32(s))
	for _, cb := range d.onState {
		cb(s)
	}
}

// OnState registers a callback fired, on the goroutine that changes the
// state, every time the dialog's state changes.
func (d *Dialog) OnState(f func(DialogState)) { d.onState = append(d.onState, f) }

// NextLocalSeq returns the CSeq number for the next in-dialog request this
// side originates (RFC 3261 12.2.1.1: strictly increasing).
func (d *Dialog) NextLocalSeq() uint32 { return d.localSeq.Add(1) }

// ObserveRemoteSeq records an in-dialog request's CSeq, reporting whether
// it is in order (strictly greater than any previously seen). Out-of-order
// or replayed in-dialog requests should be rejected with 500 (RFC 3261
// 12.2.2).
func (d *Dialog) ObserveRemoteSeq(seq uint32) bool {
	for {
		prev := d.remoteSeq.Load()
		if seq <= prev {
			return false
		}
		if d.remoteSeq.CompareAndSwap(prev, seq) {
			return true
		}
	}
}
