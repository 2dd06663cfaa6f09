package sip

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"
)

// WebSocketProtocols advertises "sip" as the websocket subprotocol
// (RFC 7118 4).
var WebSocketProtocols = []string{"sip"}

// TransportWS carries SIP framed as websocket text messages (RFC 7118).
type TransportWS struct {
	parser    *Parser
	log       zerolog.Logger
	transport string
	pool      *connectionPool
	dialer    ws.Dialer
}

func NewTransportWS(log zerolog.Logger, connectionReuse bool) *TransportWS {
	d := ws.DefaultDialer
	d.Protocols = WebSocketProtocols
	return &TransportWS{transport: "WS", log: log.With().Str("transport", "WS").Logger(), dialer: d}
}

func (t *TransportWS) init(parser *Parser) {
	t.parser = parser
	t.pool = newConnectionPool(t.log)
}

func (t *TransportWS) String() string  { return "transport<WS>" }
func (t *TransportWS) Network() string { return t.transport }

func (t *TransportWS) Close() error {
	t.pool.CloseAndDeleteAll()
	return nil
}

func (t *TransportWS) Serve(l net.Listener, handler MessageHandler) error {
	t.log.Debug().Str("laddr", l.Addr().String()).Msg("sip: WS transport listening")

	header := ws.HandshakeHeaderHTTP(http.Header{"Sec-WebSocket-Protocol": WebSocketProtocols})
	upgrader := ws.Upgrader{OnBeforeUpgrade: func() (ws.HandshakeHeader, error) { return header, nil }}

	for {
		conn, err := l.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				t.log.Error().Err(err).Msg("sip: WS accept failed")
			}
			return err
		}

		raddr := conn.RemoteAddr().String()
		if _, err := upgrader.Upgrade(conn); err != nil {
			t.log.Error().Err(err).Str("raddr", raddr).Msg("sip: WS upgrade failed")
			conn.Close()
			continue
		}
		t.acceptConnection(conn, false, handler)
	}
}

func (t *TransportWS) GetConnection(addr string) (Connection, error) {
	return t.pool.Get(addr), nil
}

func (t *TransportWS) CreateConnection(ctx context.Context, laddr Addr, raddr Addr, handler MessageHandler) (Connection, error) {
	if laddr.IP != nil {
		t.log.Warn().Str("laddr", laddr.String()).Msg("sip: WS transport ignores local address selection")
	}

	addr := raddr.String()
	t.log.Debug().Str("raddr", addr).Msg("sip: dialing WS connection")
	conn, _, _, err := t.dialer.Dial(ctx, "ws://"+addr)
	if err != nil {
		return nil, fmt.Errorf("%s dial: %w", t, err)
	}
	return t.acceptConnection(conn, true, handler), nil
}

func (t *TransportWS) acceptConnection(conn net.Conn, clientSide bool, handler MessageHandler) Connection {
	laddr := conn.LocalAddr().String()
	raddr := conn.RemoteAddr().String()
	c := &wsConnection{conn: conn, clientSide: clientSide}
	c.Ref(1 + IdleConnection)

	t.pool.Add(laddr, c)
	t.pool.Add(raddr, c)
	go t.readConnection(c, laddr, raddr, handler)
	return c
}

func (t *TransportWS) readConnection(conn *wsConnection, laddr, raddr string, handler MessageHandler) {
	buf := make([]byte, transportBufferSize)
	defer t.pool.Delete(laddr)
	defer t.pool.Delete(raddr)
	defer t.log.Debug().Str("raddr", raddr).Msg("sip: WS read loop stopped")

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
				return
			}
			t.log.Error().Err(err).Str("raddr", raddr).Msg("sip: WS read error")
			return
		}
		data := buf[:n]
		if len(bytes.Trim(data, "\x00\r\n")) == 0 {
			continue
		}

		msg, err := t.parser.ParseSIP(data)
		if err != nil {
			t.log.Error().Err(err).Str("raddr", raddr).Msg("sip: failed to parse WS frame")
			continue
		}
		msg.SetTransport(t.transport)
		msg.SetSource(raddr)
		handler(msg)
	}
}

type wsConnection struct {
	refcountedConn
	conn       net.Conn
	clientSide bool
}

func (c *wsConnection) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *wsConnection) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
func (c *wsConnection) Close() error         { return c.conn.Close() }

func (c *wsConnection) TryClose() (int, error) {
	ref := c.Ref(-1)
	if ref > 0 {
		return ref, nil
	}
	if ref < 0 {
		return 0, nil
	}
	return ref, c.conn.Close()
}

func (c *wsConnection) Read(b []byte) (int, error) {
	state := ws.StateServerSide
	if c.clientSide {
		state = ws.StateClientSide
	}
	reader := wsutil.NewReader(c.conn, state)
	n := 0
	for {
		header, err := reader.NextFrame()
		if err != nil {
			if errors.Is(err, io.EOF) && n > 0 {
				return n, nil
			}
			return n, err
		}
		if header.OpCode.IsControl() {
			if header.OpCode == ws.OpClose {
				return n, net.ErrClosed
			}
			continue
		}
		if header.OpCode&ws.OpText == 0 {
			if err := reader.Discard(); err != nil {
				return 0, err
			}
			continue
		}

		data := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, data); err != nil {
			return n, err
		}
		if header.Masked {
			ws.Cipher(data, header.Mask, 0)
		}
		n += copy(b[n:], data)
		if header.Fin {
			break
		}
	}
	return n, nil
}

func (c *wsConnection) Write(b []byte) (int, error) {
	frame := ws.NewFrame(ws.OpText, true, b)
	if c.clientSide {
		frame = ws.MaskFrameInPlace(frame)
	}
	if err := ws.WriteFrame(c.conn, frame); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *wsConnection) WriteMsg(msg Message) error {
	buf := getBuffer()
	defer putBuffer(buf)
	msg.StringWrite(buf)
	data := buf.Bytes()

	n, err := c.Write(data)
	if err != nil {
		return fmt.Errorf("sip: WS write to %s: %w", c.conn.RemoteAddr(), err)
	}
	if n != len(data) {
		return fmt.Errorf("sip: short WS write to %s", c.conn.RemoteAddr())
	}
	return nil
}

// TransportWSS is TransportWS over TLS (RFC 7118 7).
type TransportWSS struct {
	*TransportWS
	tlsConfig *tls.Config
}

func NewTransportWSS(log zerolog.Logger, connectionReuse bool) *TransportWSS {
	ws := NewTransportWS(log.With().Str("transport", "WSS").Logger(), connectionReuse)
	ws.transport = "WSS"
	return &TransportWSS{TransportWS: ws}
}

func (t *TransportWSS) init(parser *Parser, tlsConfig *tls.Config) {
	t.TransportWS.init(parser)
	t.tlsConfig = tlsConfig
	t.dialer.TLSConfig = tlsConfig
}

func (t *TransportWSS) String() string { return "transport<WSS>" }

func (t *TransportWSS) CreateConnection(ctx context.Context, laddr Addr, raddr Addr, handler MessageHandler) (Connection, error) {
	addr := raddr.String()
	conn, _, _, err := t.dialer.Dial(ctx, "wss://"+addr)
	if err != nil {
		return nil, fmt.Errorf("%s dial: %w", t, err)
	}
	return t.acceptConnection(conn, true, handler), nil
}
