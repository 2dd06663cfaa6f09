package sip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
)

// UDPMTUSize bounds a single datagram; a message that would not fit is
// rejected rather than silently fragmented (SIP expects UDP to be
// datagram-preserving, RFC 3261 18.1.1).
var UDPMTUSize = 1500

var ErrUDPMTUCongestion = errors.New("sip: message larger than UDP MTU")

// TransportUDP is a connectionless transport: one listener socket serves
// every peer, and "connections" handed out by GetConnection/CreateConnection
// are thin wrappers around that same socket keyed by remote address.
type TransportUDP struct {
	parser          *Parser
	pool            *connectionPool
	log             zerolog.Logger
	connectionReuse bool
}

func NewTransportUDP(log zerolog.Logger, connectionReuse bool) *TransportUDP {
	return &TransportUDP{log: log.With().Str("transport", "UDP").Logger(), connectionReuse: connectionReuse}
}

func (t *TransportUDP) init(parser *Parser) {
	t.parser = parser
	t.pool = newConnectionPool(t.log)
}

func (t *TransportUDP) String() string  { return "transport<UDP>" }
func (t *TransportUDP) Network() string { return "UDP" }

func (t *TransportUDP) Close() error {
	t.pool.CloseAndDeleteAll()
	return nil
}

// Serve reads from an already-bound listener socket until it closes.
func (t *TransportUDP) Serve(conn net.PacketConn, handler MessageHandler) error {
	t.log.Debug().Str("laddr", conn.LocalAddr().String()).Msg("sip: UDP transport listening")
	c := &udpConnection{packetConn: conn, listenerAddr: conn.LocalAddr().String(), listener: true}
	t.pool.Add(c.listenerAddr, c)
	t.readListener(c, handler)
	return nil
}

func (t *TransportUDP) GetConnection(addr string) (Connection, error) {
	return t.pool.Get(addr), nil
}

func (t *TransportUDP) CreateConnection(ctx context.Context, laddr Addr, raddr Addr, handler MessageHandler) (Connection, error) {
	protocol := "udp"
	if laddr.IP == nil && raddr.IP != nil && raddr.IP.To4() != nil {
		protocol = "udp4"
	}

	lc := net.ListenConfig{}
	pconn, err := lc.ListenPacket(ctx, protocol, laddr.String())
	if err != nil {
		return nil, fmt.Errorf("sip: UDP listen %q: %w", laddr.String(), err)
	}

	c := &udpConnection{packetConn: pconn, listenerAddr: pconn.LocalAddr().String()}
	c.Ref(1 + IdleConnection)

	addr := raddr.String()
	t.log.Debug().Str("raddr", addr).Msg("sip: UDP connection created")
	go t.readDialed(c, addr, handler)
	return c, nil
}

func (t *TransportUDP) readDialed(conn *udpConnection, raddr string, handler MessageHandler) {
	defer t.pool.Delete(raddr)
	t.readListener(conn, handler)
}

func (t *TransportUDP) readListener(conn *udpConnection, handler MessageHandler) {
	buf := make([]byte, transportBufferSize)
	laddr := conn.LocalAddr().String()
	defer t.log.Debug().Str("laddr", laddr).Msg("sip: UDP read loop stopped")

	var lastSrc string
	seen := make([]string, 0, 64)
	defer func() {
		for _, a := range seen {
			t.pool.Delete(a)
		}
	}()

	for {
		n, src, err := conn.packetConn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.log.Error().Err(err).Str("laddr", laddr).Msg("sip: UDP read error")
			return
		}

		data := buf[:n]
		if len(bytes.Trim(data, "\x00\r\n")) == 0 {
			continue
		}

		srcStr := src.String()
		if srcStr != lastSrc {
			t.pool.Add(srcStr, conn)
			seen = append(seen, srcStr)
			lastSrc = srcStr
		}

		t.parseAndHandle(data, srcStr, handler)
	}
}

func (t *TransportUDP) parseAndHandle(data []byte, src string, handler MessageHandler) {
	msg, err := t.parser.ParseSIP(data)
	if err != nil {
		t.log.Error().Err(err).Str("src", src).Msg("sip: failed to parse UDP datagram")
		return
	}
	msg.SetTransport(t.Network())
	// RFC 3581 6: the apparent source is trusted as-is; rport/received
	// correction happens at the transaction layer, not here.
	msg.SetSource(src)
	handler(msg)
}

type udpConnection struct {
	refcountedConn

	packetConn   net.PacketConn
	listenerAddr string
	listener     bool
}

func (c *udpConnection) LocalAddr() net.Addr  { return c.packetConn.LocalAddr() }
func (c *udpConnection) RemoteAddr() net.Addr { return c.packetConn.LocalAddr() }

func (c *udpConnection) Close() error {
	if c.listener {
		return nil
	}
	return c.packetConn.Close()
}

func (c *udpConnection) TryClose() (int, error) {
	ref := c.Ref(-1)
	if c.listener || ref > 0 {
		return ref, nil
	}
	if ref < 0 {
		return 0, nil
	}
	return ref, c.packetConn.Close()
}

func (c *udpConnection) WriteMsg(msg Message) error {
	buf := getBuffer()
	defer putBuffer(buf)
	msg.StringWrite(buf)
	data := buf.Bytes()

	if len(data) > UDPMTUSize-200 {
		return ErrUDPMTUCongestion
	}

	dst := msg.Destination()
	host, port, err := ParseAddr(dst)
	if err != nil {
		return fmt.Errorf("sip: parse UDP destination %q: %w", dst, err)
	}
	if port == 0 {
		port = DefaultPort("udp")
	}

	n, err := c.packetConn.WriteTo(data, &net.UDPAddr{IP: net.ParseIP(host), Port: port})
	if err != nil {
		return fmt.Errorf("sip: UDP write to %s: %w", dst, err)
	}
	if n != len(data) {
		return fmt.Errorf("sip: short UDP write to %s", dst)
	}
	return nil
}
