package siptest

import (
	"net"
	"sync/atomic"

	"github.com/sipstack/sipstack/sip"
)

// connRecorder is a sip.Connection that appends every written message to a
// slice instead of touching a socket, so a transaction test can inspect
// exactly what a ServerTx/ClientTx tried to send.
type connRecorder struct {
	msgs []sip.Message

	ref atomic.Int32
}

func newConnRecorder() *connRecorder {
	return &connRecorder{}
}

func (c *connRecorder) LocalAddr() net.Addr  { return nil }
func (c *connRecorder) RemoteAddr() net.Addr { return nil }

func (c *connRecorder) WriteMsg(msg sip.Message) error {
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *connRecorder) Ref(i int) int {
	return int(c.ref.Add(int32(i)))
}

func (c *connRecorder) TryClose() (int, error) {
	n := c.ref.Add(int32(-1))
	return int(n), nil
}

func (c *connRecorder) Close() error { return nil }
