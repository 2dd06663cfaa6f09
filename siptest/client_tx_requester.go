package siptest

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sipstack/sipstack/sip"
)

// ClientTxRequester fakes a transaction sender for tests that just need to
// see a request and hand back one canned response: OnRequest runs
// synchronously and its return value is delivered to the resulting
// ClientTx as if it had arrived off the wire.
type ClientTxRequester struct {
	OnRequest func(req *sip.Request) *sip.Response
}

func (r *ClientTxRequester) Request(ctx context.Context, req *sip.Request) (*sip.ClientTx, error) {
	key, _ := sip.ClientTxKeyMake(req)
	rec := newConnRecorder()
	tx := sip.NewClientTx(key, req, rec, zerolog.Nop())
	if err := tx.Init(); err != nil {
		return nil, err
	}

	resp := r.OnRequest(req)
	go tx.Receive(resp)

	return tx, nil
}

// ClientTxResponder lets a test feed a ClientTx responses over time instead
// of a single canned one.
type ClientTxResponder struct {
	tx *sip.ClientTx
}

func (r *ClientTxResponder) Receive(res *sip.Response) {
	r.tx.Receive(res)
}

// ClientTxRequesterResponder is ClientTxRequester's streaming counterpart:
// OnRequest runs in its own goroutine and drives the transaction through w
// for as long as the test needs (multiple provisionals, a final, etc.).
type ClientTxRequesterResponder struct {
	OnRequest func(req *sip.Request, w *ClientTxResponder)
}

func (r *ClientTxRequesterResponder) Request(ctx context.Context, req *sip.Request) (*sip.ClientTx, error) {
	key, _ := sip.ClientTxKeyMake(req)
	rec := newConnRecorder()
	tx := sip.NewClientTx(key, req, rec, zerolog.Nop())
	if err := tx.Init(); err != nil {
		return nil, err
	}
	w := ClientTxResponder{tx: tx}
	go r.OnRequest(req, &w)
	return tx, nil
}
