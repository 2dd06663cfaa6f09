package sip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// TransportTCP is a connection-oriented transport: every peer gets its own
// socket, pooled by both local and remote address so a later request to
// the same peer reuses it (RFC 3261 18.1.1 "SHOULD attempt to reuse").
type TransportTCP struct {
	transport       string
	parser          *Parser
	log             zerolog.Logger
	connectionReuse bool
	pool            *connectionPool

	dialer net.Dialer
}

func NewTransportTCP(log zerolog.Logger, connectionReuse bool) *TransportTCP {
	return &TransportTCP{
		transport:       "TCP",
		log:             log.With().Str("transport", "TCP").Logger(),
		connectionReuse: connectionReuse,
		dialer:          net.Dialer{Timeout: 1 * time.Minute},
	}
}

func (t *TransportTCP) init(parser *Parser) {
	t.parser = parser
	t.pool = newConnectionPool(t.log)
}

func (t *TransportTCP) String() string  { return "transport<TCP>" }
func (t *TransportTCP) Network() string { return t.transport }

func (t *TransportTCP) Close() error {
	t.pool.CloseAndDeleteAll()
	return nil
}

func (t *TransportTCP) Serve(l net.Listener, handler MessageHandler) error {
	t.log.Debug().Str("laddr", l.Addr().String()).Msg("sip: TCP transport listening")
	for {
		conn, err := l.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				t.log.Debug().Err(err).Msg("sip: TCP accept failed")
			}
			return err
		}
		t.acceptConnection(conn, handler)
	}
}

func (t *TransportTCP) GetConnection(addr string) (Connection, error) {
	return t.pool.Get(addr), nil
}

func (t *TransportTCP) CreateConnection(ctx context.Context, laddr Addr, raddr Addr, handler MessageHandler) (Connection, error) {
	dialer := t.dialer
	if laddr.IP != nil {
		dialer.LocalAddr = &net.TCPAddr{IP: laddr.IP, Port: laddr.Port}
	}

	addr := raddr.String()
	t.log.Debug().Str("raddr", addr).Msg("sip: dialing TCP connection")
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%s dial: %w", t, err)
	}

	c := t.newConnection(conn)
	t.pool.Add(c.LocalAddr().String(), c)
	if t.connectionReuse {
		t.pool.Add(addr, c)
	}
	go t.readConnection(c, c.LocalAddr().String(), addr, handler)
	return c, nil
}

func (t *TransportTCP) acceptConnection(conn net.Conn, handler MessageHandler) Connection {
	laddr := conn.LocalAddr().String()
	raddr := conn.RemoteAddr().String()
	t.log.Debug().Str("raddr", raddr).Msg("sip: TCP connection accepted")

	c := t.newConnection(conn)
	t.pool.Add(laddr, c)
	t.pool.Add(raddr, c)
	go t.readConnection(c, laddr, raddr, handler)
	return c
}

func (t *TransportTCP) newConnection(conn net.Conn) *tcpConnection {
	c := &tcpConnection{conn: conn}
	c.Ref(1 + IdleConnection)
	return c
}

func (t *TransportTCP) readConnection(conn *tcpConnection, laddr, raddr string, handler MessageHandler) {
	buf := make([]byte, transportBufferSize)
	defer t.pool.Delete(laddr)
	defer t.pool.Delete(raddr)
	defer t.log.Debug().Str("raddr", raddr).Msg("sip: TCP read loop stopped")

	stream := t.parser.NewSIPStream()
	for {
		n, err := conn.conn.Read(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
				return
			}
			t.log.Error().Err(err).Str("raddr", raddr).Msg("sip: TCP read error")
			return
		}

		data := buf[:n]
		if len(bytes.Trim(data, "\x00")) == 0 {
			continue
		}
		if len(data) <= 4 && len(bytes.Trim(data, "\r\n")) == 0 {
			// RFC 5626 4.4.1 keepalive ping/pong.
			if len(data) == 4 {
				conn.conn.Write(data[:2])
			}
			continue
		}

		if err := stream.ParseSIPStream(data, func(msg Message) {
			msg.SetTransport(t.Network())
			msg.SetSource(raddr)
			handler(msg)
		}); err != nil {
			t.log.Error().Err(err).Str("raddr", raddr).Msg("sip: failed to parse TCP stream")
		}
	}
}

type tcpConnection struct {
	refcountedConn
	conn net.Conn
}

func (c *tcpConnection) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *tcpConnection) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
func (c *tcpConnection) Close() error         { return c.conn.Close() }

func (c *tcpConnection) TryClose() (int, error) {
	ref := c.Ref(-1)
	if ref > 0 {
		return ref, nil
	}
	if ref < 0 {
		return 0, nil
	}
	return ref, c.conn.Close()
}

func (c *tcpConnection) WriteMsg(msg Message) error {
	buf := getBuffer()
	defer putBuffer(buf)
	msg.StringWrite(buf)
	data := buf.Bytes()

	n, err := c.conn.Write(data)
	if err != nil {
		return fmt.Errorf("sip: TCP write to %s: %w", c.conn.RemoteAddr(), err)
	}
	if n != len(data) {
		return fmt.Errorf("sip: short TCP write to %s", c.conn.RemoteAddr())
	}
	return nil
}
