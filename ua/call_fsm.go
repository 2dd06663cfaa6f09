package ua

import (
	"context"

	"github.com/looplab/fsm"
)

// Call convenience states (spec.md §3): Initiating -> Proceeding ->
// Connected -> Terminated, with Failed as Connected's unsuccessful
// sibling. Grounded on arzzra-soft_phone/pkg/dialog/refer_fsm.go's use of
// looplab/fsm for a business-level state machine, distinct from the
// low-level transaction FSMs in sip/transaction_client_tx.go and
// sip/transaction_server_tx.go (those stay a
// hand-rolled switch dispatcher since they are timing-critical and that
// is what the teacher itself does there).
const (
	CallStateInitiating = "initiating"
	CallStateProceeding = "proceeding"
	CallStateConnected  = "connected"
	CallStateFailed     = "failed"
	CallStateTerminated = "terminated"
)

const (
	callEvent1xx       = "1xx"
	callEvent2xx       = "2xx"
	callEventFinalFail = "final_fail"
	callEventCancel    = "cancel"
	callEventBye       = "bye"
)

func newCallFSM(onEnter func(ctx context.Context, e *fsm.Event)) *fsm.FSM {
	return fsm.NewFSM(
		CallStateInitiating,
		fsm.Events{
			{Name: callEvent1xx, Src: []string{CallStateInitiating, CallStateProceeding}, Dst: CallStateProceeding},
			{Name: callEvent2xx, Src: []string{CallStateInitiating, CallStateProceeding}, Dst: CallStateConnected},
			{Name: callEventFinalFail, Src: []string{CallStateInitiating, CallStateProceeding}, Dst: CallStateFailed},
			{Name: callEventCancel, Src: []string{CallStateInitiating, CallStateProceeding}, Dst: CallStateTerminated},
			{Name: callEventBye, Src: []string{CallStateConnected}, Dst: CallStateTerminated},
		},
		fsm.Callbacks{
			"enter_state": onEnter,
		},
	)
}
