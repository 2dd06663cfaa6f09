package ua

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipstack/sipstack/sip"
)

func TestHandlerChainRunRequestStopsAtFirstError(t *testing.T) {
	var c handlerChain
	var calls []int
	errBoom := errors.New("boom")

	c.addRequest(func(req *sip.Request) error { calls = append(calls, 1); return nil })
	c.addRequest(func(req *sip.Request) error { calls = append(calls, 2); return errBoom })
	c.addRequest(func(req *sip.Request) error { calls = append(calls, 3); return nil })

	req := sip.NewRequest(sip.OPTIONS, sip.Uri{Scheme: "sip", Host: "127.0.0.1"})
	err := c.runRequest(req)

	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, []int{1, 2}, calls)
}

func TestHandlerChainRunRequestAllPassThrough(t *testing.T) {
	var c handlerChain
	var calls []int
	c.addRequest(func(req *sip.Request) error { calls = append(calls, 1); return nil })
	c.addRequest(func(req *sip.Request) error { calls = append(calls, 2); return nil })

	req := sip.NewRequest(sip.OPTIONS, sip.Uri{Scheme: "sip", Host: "127.0.0.1"})
	require.NoError(t, c.runRequest(req))
	assert.Equal(t, []int{1, 2}, calls)
}

func TestHandlerChainRunResponseRunsAllWithoutShortCircuit(t *testing.T) {
	var c handlerChain
	var calls []int
	c.addResponse(func(res *sip.Response) { calls = append(calls, 1) })
	c.addResponse(func(res *sip.Response) { calls = append(calls, 2) })
	c.addResponse(func(res *sip.Response) { calls = append(calls, 3) })

	req := sip.NewRequest(sip.OPTIONS, sip.Uri{Scheme: "sip", Host: "127.0.0.1"})
	res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
	c.runResponse(res)

	assert.Equal(t, []int{1, 2, 3}, calls)
}

func TestHandlerChainRunErrorRunsAllHandlers(t *testing.T) {
	var c handlerChain
	var seen []error
	errA := errors.New("a")
	c.addError(func(err error) { seen = append(seen, err) })
	c.addError(func(err error) { seen = append(seen, err) })

	c.runError(errA)

	require.Len(t, seen, 2)
	assert.Equal(t, errA, seen[0])
	assert.Equal(t, errA, seen[1])
}

func TestHandlerChainEmptyChainIsNoop(t *testing.T) {
	var c handlerChain
	req := sip.NewRequest(sip.OPTIONS, sip.Uri{Scheme: "sip", Host: "127.0.0.1"})
	assert.NoError(t, c.runRequest(req))

	res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
	assert.NotPanics(t, func() { c.runResponse(res) })
	assert.NotPanics(t, func() { c.runError(errors.New("x")) })
}
