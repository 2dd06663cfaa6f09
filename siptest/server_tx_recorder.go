package siptest

import (
	"github.com/rs/zerolog"

	"github.com/sipstack/sipstack/sip"
)

// NewServerTxRecorder builds a ServerTx wired to an in-memory connection,
// for driving transaction FSM tests (INVITE retransmission, ACK/CANCEL
// correlation, response handling) without a real socket.
func NewServerTxRecorder(req *sip.Request) *ServerTxRecorder {
	key, err := sip.ServerTxKeyMake(req)
	if err != nil {
		panic(err)
	}
	conn := newConnRecorder()
	stx := sip.NewServerTx(key, req, conn, zerolog.Nop())
	if err := stx.Init(); err != nil {
		panic(err)
	}
	return &ServerTxRecorder{
		ServerTx: stx,
		c:        conn,
	}
}

// ServerTxRecorder wraps a ServerTx, exposing the responses it wrote.
type ServerTxRecorder struct {
	*sip.ServerTx
	c *connRecorder
}

// Result returns the responses sent so far, newest last. Nil if none yet.
func (r *ServerTxRecorder) Result() []*sip.Response {
	if len(r.c.msgs) == 0 {
		return nil
	}
	resps := make([]*sip.Response, len(r.c.msgs))
	for i, m := range r.c.msgs {
		resps[i] = m.(*sip.Response).Clone()
	}
	return resps
}
