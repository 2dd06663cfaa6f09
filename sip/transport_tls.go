package sip

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/rs/zerolog"
)

// TransportTLS reuses TransportTCP's connection pool and read loop; only
// dialing/handshake and the network token differ.
type TransportTLS struct {
	*TransportTCP

	tlsConfig *tls.Config
}

func NewTransportTLS(log zerolog.Logger, connectionReuse bool) *TransportTLS {
	tcp := NewTransportTCP(log.With().Str("transport", "TLS").Logger(), connectionReuse)
	tcp.transport = "TLS"
	return &TransportTLS{TransportTCP: tcp}
}

func (t *TransportTLS) init(parser *Parser, tlsConfig *tls.Config) {
	t.TransportTCP.init(parser)
	t.tlsConfig = tlsConfig
}

func (t *TransportTLS) String() string { return "transport<TLS>" }

// Serve expects an already-TLS-wrapped listener (tls.NewListener).
func (t *TransportTLS) Serve(l net.Listener, handler MessageHandler) error {
	return t.TransportTCP.Serve(l, handler)
}

func (t *TransportTLS) CreateConnection(ctx context.Context, laddr Addr, raddr Addr, handler MessageHandler) (Connection, error) {
	hostname := raddr.Hostname
	if hostname == "" && raddr.IP != nil {
		hostname = raddr.IP.String()
	}

	dialer := t.dialer
	if laddr.IP != nil {
		dialer.LocalAddr = &net.TCPAddr{IP: laddr.IP, Port: laddr.Port}
	}

	addr := raddr.String()
	t.log.Debug().Str("raddr", addr).Msg("sip: dialing TLS connection")
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%s dial: %w", t, err)
	}

	config := t.tlsConfig
	if config.ServerName == "" {
		config = config.Clone()
		config.ServerName = hostname
	}
	tlsConn := tls.Client(rawConn, config)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("%s handshake: %w", t, err)
	}

	c := t.newConnection(tlsConn)
	t.pool.Add(c.LocalAddr().String(), c)
	if t.connectionReuse {
		t.pool.Add(addr, c)
	}
	go t.readConnection(c, c.LocalAddr().String(), addr, handler)
	return c, nil
}
