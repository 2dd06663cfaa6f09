package sip

import (
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
)

// Transport network tokens. SIP messages carry these uppercase, per
// RFC 3261 18.1, even though Go network names are lowercase.
const (
	TransportUDP = "UDP"
	TransportTCP = "TCP"
	TransportTLS = "TLS"
	TransportWS  = "WS"
	TransportWSS = "WSS"

	transportBufferSize uint16 = 65535

	// TransportFixedLengthMessage, when nonzero, bypasses stream framing
	// and treats every read as one complete message; used by tests that
	// drive a transport with pre-framed fixtures.
	TransportFixedLengthMessage uint16 = 0
)

// IdleConnection controls what happens to a connection-oriented transport's
// socket once the transaction that opened it terminates:
//
//	-1 close immediately after the single request/response it carried
//	 0 close immediately after transaction termination
//	 1 keep it idle, ready for reuse by a later request to the same peer
var IdleConnection = 1

// Transport is a network-specific send/receive implementation (UDP, TCP,
// TLS, WS, WSS). A Layer multiplexes one Transport per network.
type Transport interface {
	Network() string
	// GetConnection returns an existing pooled connection to addr, if any.
	GetConnection(addr string) (Connection, error)
	// CreateConnection dials addr and starts reading from it into handler.
	CreateConnection(ctx context.Context, laddr Addr, raddr Addr, handler MessageHandler) (Connection, error)
	String() string
	Close() error
}

// Connection is a single pooled socket, reference-counted across the
// transactions currently using it.
type Connection interface {
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	WriteMsg(msg Message) error
	// Ref adjusts the reference count by i and returns the new count.
	Ref(i int) int
	// TryClose decrements the reference count and closes the connection
	// once it reaches zero. Returns the count after the decrement.
	TryClose() (int, error)
	Close() error
}

var bufPool = sync.Pool{
	New: func() any {
		b := new(bytes.Buffer)
		b.Grow(2048)
		return b
	},
}

func getBuffer() *bytes.Buffer {
	return bufPool.Get().(*bytes.Buffer)
}

func putBuffer(b *bytes.Buffer) {
	b.Reset()
	bufPool.Put(b)
}

// IsReliable reports whether network guarantees in-order delivery, which
// governs whether a transaction needs retransmission timers (RFC 3261
// 17.1.1.2, 17.2.1): only UDP does not.
func IsReliable(network string) bool {
	switch NetworkToLower(network) {
	case "udp":
		return false
	default:
		return true
	}
}

// NetworkToLower normalizes a transport token ("UDP", "Udp", "udp") to its
// canonical lowercase Go network name, with fast paths for the common
// exact-case forms.
func NetworkToLower(network string) string {
	switch network {
	case "UDP":
		return "udp"
	case "TCP":
		return "tcp"
	case "TLS":
		return "tls"
	case "WS":
		return "ws"
	case "WSS":
		return "wss"
	}
	return strings.ToLower(network)
}
