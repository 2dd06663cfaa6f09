package ua

import "github.com/sipstack/sipstack/sip"

// RequestHandler inspects or mutates an outbound request before it is
// sent. Returning a non-nil error aborts the send and fails the caller's
// operation with that error.
type RequestHandler func(req *sip.Request) error

// ResponseHandler inspects an inbound response before the dialog/
// transaction layer acts on it.
type ResponseHandler func(res *sip.Response)

// ErrorHandler observes a transport or transaction error that the core
// could not recover from on its own.
type ErrorHandler func(err error)

// handlerChain is the generalized form of the teacher's
// Server.requestMiddlewares/responseMiddlewares []func(r) slices
// (server.go): same "plain func slice, synchronous, insertion order"
// idiom, split into the three hooks spec.md §4.6 names.
type handlerChain struct {
	onRequest  []RequestHandler
	onResponse []ResponseHandler
	onError    []ErrorHandler
}

func (c *handlerChain) addRequest(h RequestHandler)   { c.onRequest = append(c.onRequest, h) }
func (c *handlerChain) addResponse(h ResponseHandler) { c.onResponse = append(c.onResponse, h) }
func (c *handlerChain) addError(h ErrorHandler)       { c.onError = append(c.onError, h) }

// runRequest runs every registered RequestHandler in order, stopping at
// the first error.
func (c *handlerChain) runRequest(req *sip.Request) error {
	for _, h := range c.onRequest {
		if err := h(req); err != nil {
			return err
		}
	}
	return nil
}

func (c *handlerChain) runResponse(res *sip.Response) {
	for _, h := range c.onResponse {
		h(res)
	}
}

func (c *handlerChain) runError(err error) {
	for _, h := range c.onError {
		h(err)
	}
}
