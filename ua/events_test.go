package ua

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingLogPanicker struct {
	events []string
}

func (r *recordingLogPanicker) logPanic(event string, v any) {
	r.events = append(r.events, event)
}

func TestEventBusRunsHandlersInRegistrationOrder(t *testing.T) {
	b := newEventBus()
	var order []int
	b.on(EventCallHangup, func(event any) { order = append(order, 1) })
	b.on(EventCallHangup, func(event any) { order = append(order, 2) })

	b.emit(EventCallHangup, CallHangup{ByRemote: true}, &recordingLogPanicker{})

	assert.Equal(t, []int{1, 2}, order)
}

func TestEventBusOnlyRunsHandlersForMatchingEventName(t *testing.T) {
	b := newEventBus()
	called := false
	b.on(EventSDPNegotiated, func(event any) { called = true })

	b.emit(EventOptionsResponse, OptionsResponse{}, &recordingLogPanicker{})

	assert.False(t, called)
}

func TestEventBusRecoversPanicAndContinuesToNextHandler(t *testing.T) {
	b := newEventBus()
	secondRan := false
	b.on(EventCallHangup, func(event any) { panic("boom") })
	b.on(EventCallHangup, func(event any) { secondRan = true })

	logger := &recordingLogPanicker{}
	assert.NotPanics(t, func() {
		b.emit(EventCallHangup, CallHangup{}, logger)
	})

	assert.True(t, secondRan)
	assert.Equal(t, []string{EventCallHangup}, logger.events)
}

func TestEventBusEmitWithNoHandlersIsNoop(t *testing.T) {
	b := newEventBus()
	assert.NotPanics(t, func() {
		b.emit(EventCallHangup, CallHangup{}, &recordingLogPanicker{})
	})
}
