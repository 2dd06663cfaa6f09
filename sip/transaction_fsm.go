package sip

// fsmInput is a transaction FSM event (RFC 3261 17 Figures 5-8).
type fsmInput int

// fsmState is one action function, invoked with no input, that performs a
// transition's side effect and yields the next input to feed the FSM (or
// FsmInputNone to stop spinning).
type fsmState func() fsmInput

// fsmTransition is a state's dispatch table: given an input, pick the next
// state/action pair and run it.
type fsmTransition func(in fsmInput) fsmInput

const (
	FsmInputNone fsmInput = iota

	// Server transaction inputs.
	serverInputRequest
	serverInputAck
	serverInputCancel
	serverInputUser1xx
	serverInputUser2xx
	serverInputUser300Plus
	serverInputTimerG
	serverInputTimerH
	serverInputTimerI
	serverInputTimerJ
	serverInputTimerL
	serverInputTransportErr
	serverInputDelete

	// Client transaction inputs.
	clientInput1xx
	clientInput2xx
	clientInput300Plus
	clientInputTimerA
	clientInputTimerB
	clientInputTimerD
	clientInputTimerM
	clientInputTransportErr
	clientInputDelete
)

func (f fsmInput) String() string {
	switch f {
	case FsmInputNone:
		return "none"
	case serverInputRequest:
		return "server_input_request"
	case serverInputAck:
		return "server_input_ack"
	case serverInputCancel:
		return "server_input_cancel"
	case serverInputUser1xx:
		return "server_input_user_1xx"
	case serverInputUser2xx:
		return "server_input_user_2xx"
	case serverInputUser300Plus:
		return "server_input_user_300_plus"
	case serverInputTimerG:
		return "server_input_timer_g"
	case serverInputTimerH:
		return "server_input_timer_h"
	case serverInputTimerI:
		return "server_input_timer_i"
	case serverInputTimerJ:
		return "server_input_timer_j"
	case serverInputTimerL:
		return "server_input_timer_l"
	case serverInputTransportErr:
		return "server_input_transport_err"
	case serverInputDelete:
		return "server_input_delete"
	case clientInput1xx:
		return "client_input_1xx"
	case clientInput2xx:
		return "client_input_2xx"
	case clientInput300Plus:
		return "client_input_300_plus"
	case clientInputTimerA:
		return "client_input_timer_a"
	case clientInputTimerB:
		return "client_input_timer_b"
	case clientInputTimerD:
		return "client_input_timer_d"
	case clientInputTimerM:
		return "client_input_timer_m"
	case clientInputTransportErr:
		return "client_input_transport_err"
	case clientInputDelete:
		return "client_input_delete"
	}
	return "unknown"
}
