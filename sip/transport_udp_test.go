package sip

import (
	"io"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sipstack/sipstack/fakes"
)

func TestTransportLayerServeUDPDispatchesParsedRequest(t *testing.T) {
	incoming := newPipeReader(t, "OPTIONS sip:bob@127.0.0.1:5060 SIP/2.0\r\n"+
		"Via: SIP/2.0/UDP 127.0.0.2:5060;branch=z9hG4bKtest\r\n"+
		"From: <sip:alice@127.0.0.2>;tag=abc\r\n"+
		"To: <sip:bob@127.0.0.1:5060>\r\n"+
		"Call-ID: udptest@127.0.0.2\r\n"+
		"CSeq: 1 OPTIONS\r\n"+
		"Max-Forwards: 70\r\n"+
		"Content-Length: 0\r\n\r\n")

	conn := &fakes.UDPConn{
		LAddr:   net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5060},
		RAddr:   net.UDPAddr{IP: net.ParseIP("127.0.0.2"), Port: 5060},
		Reader:  incoming,
		Writers: map[string]io.Writer{},
	}

	layer := NewTransportLayer(net.DefaultResolver, NewParser(), nil)
	defer layer.Close()

	var mu sync.Mutex
	var got Message
	done := make(chan struct{})
	layer.OnMessage(func(msg Message) {
		mu.Lock()
		got = msg
		mu.Unlock()
		close(done)
	})

	go layer.ServeUDP(conn)
	<-done

	mu.Lock()
	defer mu.Unlock()
	req, ok := got.(*Request)
	require.True(t, ok)
	require.Equal(t, OPTIONS, req.Method)
	require.Equal(t, "bob", req.Recipient.User)
}

// newPipeReader returns a Reader that yields data once, then blocks
// forever, so TransportUDP's read loop doesn't busy-spin once the first
// fake datagram has been consumed.
func newPipeReader(t *testing.T, data string) io.Reader {
	t.Helper()
	pr, pw := io.Pipe()
	go func() {
		pw.Write([]byte(data))
		// leave the pipe open so a second ReadFrom blocks instead of EOFing
	}()
	return pr
}
