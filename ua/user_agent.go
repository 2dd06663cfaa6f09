// Package ua implements the dialog/user-agent core above sip: clients and
// servers that place calls, register, probe capabilities, exchange
// messages, and answer a minimal set of inbound requests. Operations run
// on the caller's goroutine (or, for inbound requests, the transaction
// layer's); dialog tables and each Call are guarded by mutexes, and the
// internal/loop.Loop a Client creates runs none of this work.
package ua

import (
	"crypto/tls"
	"net"

	"github.com/rs/zerolog"

	"github.com/sipstack/sipstack/sip"
)

// UserAgent is the shared identity (name, advertised address, transport,
// transaction layer) a Client and/or Server is built on top of. Grounded
// on _examples/emiago-sipgo/ua.go's UserAgent.
type UserAgent struct {
	name string
	ip   net.IP
	host string

	dnsResolver *net.Resolver
	tlsConfig   *tls.Config

	transport   *sip.TransportLayer
	transaction *sip.TransactionLayer

	log zerolog.Logger
}

type UserAgentOption func(*UserAgent)

// WithUserAgentName overrides the name sent in the User-Agent header.
func WithUserAgentName(name string) UserAgentOption {
	return func(ua *UserAgent) { ua.name = name }
}

// WithUserAgentIP pins the advertised contact IP instead of letting
// NewUserAgent resolve one from the host's interfaces.
func WithUserAgentIP(ip net.IP) UserAgentOption {
	return func(ua *UserAgent) { ua.ip = ip }
}

// WithUserAgentDNSResolver overrides the resolver used for SRV/A lookups.
func WithUserAgentDNSResolver(r *net.Resolver) UserAgentOption {
	return func(ua *UserAgent) { ua.dnsResolver = r }
}

// WithUserAgentTLSConfig supplies the client/server TLS configuration used
// by the TLS and WSS transports.
func WithUserAgentTLSConfig(cfg *tls.Config) UserAgentOption {
	return func(ua *UserAgent) { ua.tlsConfig = cfg }
}

// WithUserAgentLogger sets the base logger every Client/Server built on
// this UserAgent inherits unless it sets its own.
func WithUserAgentLogger(log zerolog.Logger) UserAgentOption {
	return func(ua *UserAgent) { ua.log = log }
}

// NewUserAgent builds the shared transport and transaction layers. name
// identifies this agent in the User-Agent header and in logs.
func NewUserAgent(name string, opts ...UserAgentOption) (*UserAgent, error) {
	ua := &UserAgent{
		name:        name,
		dnsResolver: net.DefaultResolver,
		log:         zerolog.Nop(),
	}
	for _, o := range opts {
		o(ua)
	}

	if ua.ip == nil {
		ip, err := resolveSelfIP()
		if err != nil {
			return nil, err
		}
		ua.ip = ip
	}
	ua.host = ua.ip.String()

	parser := sip.NewParser()
	ua.transport = sip.NewTransportLayer(ua.dnsResolver, parser, ua.tlsConfig,
		sip.WithTransportLayerLogger(ua.log))
	ua.transaction = sip.NewTransactionLayer(ua.transport,
		sip.WithTransactionLayerLogger(ua.log))

	return ua, nil
}

func (ua *UserAgent) Name() string                      { return ua.name }
func (ua *UserAgent) Host() string                       { return ua.host }
func (ua *UserAgent) IP() net.IP                         { return ua.ip }
func (ua *UserAgent) Transport() *sip.TransportLayer     { return ua.transport }
func (ua *UserAgent) Transaction() *sip.TransactionLayer { return ua.transaction }

// Close tears down the transaction and transport layers, terminating every
// in-flight transaction. Clients/Servers built on this UserAgent must be
// closed first.
func (ua *UserAgent) Close() error {
	ua.transaction.Close()
	return ua.transport.Close()
}

// logPanic satisfies the logPanicker interface eventBus.emit uses to
// report a handler that panicked, so a bad EventHandler can't take the
// whole loop goroutine down.
func (ua *UserAgent) logPanic(event string, r any) {
	ua.log.Error().Str("event", event).Interface("panic", r).Msg("ua: event handler panicked")
}

// resolveSelfIP returns the local address of a UDP socket dialed against a
// public address, without sending any packet — the same trick the
// teacher's sip.ResolveSelfIP() uses — or 127.0.0.1 when that dial fails.
func resolveSelfIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return net.IPv4(127, 0, 0, 1), nil
	}
	defer conn.Close()
	addr := conn.LocalAddr().(*net.UDPAddr)
	return addr.IP, nil
}
