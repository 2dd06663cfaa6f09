package ua

import "github.com/sipstack/sipstack/sip"

// EventHandler receives one event payload. Which concrete type it receives
// depends on which name it was registered under (see the Event* constants).
type EventHandler func(event any)

// Event names a Client/Server's On registers against. Grounded on
// original_source/sipx/_events.py's three event names.
const (
	EventCallHangup      = "call_hangup"
	EventSDPNegotiated   = "sdp_negotiated"
	EventOptionsResponse = "options_response"
)

// CallHangup fires once a Call's dialog is torn down, either by the local
// side (Bye) or the remote side (an inbound BYE or an early failure).
type CallHangup struct {
	Call     *Call
	ByRemote bool
}

// SDPNegotiated fires once a Call's INVITE transaction completes with a
// 2xx response carrying an SDP body.
type SDPNegotiated struct {
	Call *Call
	SDP  []byte
}

// OptionsResponse fires once a client-initiated OPTIONS transaction
// completes.
type OptionsResponse struct {
	Response *sip.Response
}

// eventBus is an instance-owned (not package-level) handler registry: the
// spec's REDESIGN away from "dynamic handler registration via decorators
// on a class attribute" towards per-instance state, per SPEC_FULL.md §4.4.
type eventBus struct {
	handlers map[string][]EventHandler
}

func newEventBus() *eventBus {
	return &eventBus{handlers: make(map[string][]EventHandler)}
}

func (b *eventBus) on(event string, h EventHandler) {
	b.handlers[event] = append(b.handlers[event], h)
}

// emit runs handlers synchronously on the caller's goroutine and in
// registration order, recovering any panic so one misbehaving handler
// cannot take down its caller.
func (b *eventBus) emit(event string, payload any, log logPanicker) {
	for _, h := range b.handlers[event] {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.logPanic(event, r)
				}
			}()
			h(payload)
		}()
	}
}

// logPanicker is the minimal logging surface emit needs; *UserAgent
// satisfies it, keeping events.go decoupled from the zerolog type itself.
type logPanicker interface {
	logPanic(event string, r any)
}
