package sip

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	tlsEmptyConfig tls.Config

	ErrTransportNotSupported           = errors.New("sip: transport not supported")
	errTransportConnectionDoesNotExist = errors.New("sip: connection does not exist")
)

// TransportLayer multiplexes the five transports SIP runs over (RFC 3261
// 18) behind one send/receive API, resolving destinations per RFC 3263.
type TransportLayer struct {
	udp *TransportUDP
	tcp *TransportTCP
	tls *TransportTLS
	ws  *TransportWS
	wss *TransportWSS

	listenPortsMu sync.Mutex
	listenPorts   map[string][]int

	dnsResolver *net.Resolver

	handlersMu sync.Mutex
	handlers   []MessageHandler

	log zerolog.Logger

	connectionReuse bool
	dnsPreferSRV    bool
	dnsPreferIP     int // 0 none, 1 ipv4, 2 ipv6
}

type TransportLayerOption func(l *TransportLayer)

func WithTransportLayerLogger(logger zerolog.Logger) TransportLayerOption {
	return func(l *TransportLayer) { l.log = logger }
}

func WithTransportLayerConnectionReuse(reuse bool) TransportLayerOption {
	return func(l *TransportLayer) { l.connectionReuse = reuse }
}

// WithTransportLayerDNSLookupSRV makes destination resolution try an SRV
// lookup before a plain A/AAAA lookup (RFC 3263 4).
func WithTransportLayerDNSLookupSRV(preferSRV bool) TransportLayerOption {
	return func(l *TransportLayer) { l.dnsPreferSRV = preferSRV }
}

type TransportsConfig struct {
	UDP *TransportUDP
	TCP *TransportTCP
	TLS *TransportTLS
	WS  *TransportWS
	WSS *TransportWSS
}

func WithTransportLayerTransports(conf TransportsConfig) TransportLayerOption {
	return func(l *TransportLayer) { l.withTransports(conf) }
}

func NewTransportLayer(dnsResolver *net.Resolver, parser *Parser, tlsConfig *tls.Config, options ...TransportLayerOption) *TransportLayer {
	l := &TransportLayer{
		listenPorts:     make(map[string][]int),
		dnsResolver:     dnsResolver,
		connectionReuse: true,
		log:             zerolog.Nop(),
		dnsPreferIP:     1,
	}
	for _, o := range options {
		o(l)
	}

	if tlsConfig == nil {
		tlsConfig = &tlsEmptyConfig
	}

	l.withTransports(TransportsConfig{
		UDP: NewTransportUDP(l.log, l.connectionReuse),
		TCP: NewTransportTCP(l.log, l.connectionReuse),
		TLS: NewTransportTLS(l.log, l.connectionReuse),
		WS:  NewTransportWS(l.log, l.connectionReuse),
		WSS: NewTransportWSS(l.log, l.connectionReuse),
	})

	l.udp.init(parser)
	l.tcp.init(parser)
	l.tls.init(parser, tlsConfig)
	l.ws.init(parser)
	l.wss.init(parser, tlsConfig)

	return l
}

func (l *TransportLayer) withTransports(conf TransportsConfig) {
	if conf.UDP != nil && l.udp == nil {
		l.udp = conf.UDP
	}
	if conf.TCP != nil && l.tcp == nil {
		l.tcp = conf.TCP
	}
	if conf.TLS != nil && l.tls == nil {
		l.tls = conf.TLS
	}
	if conf.WS != nil && l.ws == nil {
		l.ws = conf.WS
	}
	if conf.WSS != nil && l.wss == nil {
		l.wss = conf.WSS
	}
}

// OnMessage registers a handler invoked for every inbound message on any
// transport. Handlers run synchronously on the transport's read path:
// don't block here for long.
func (l *TransportLayer) OnMessage(h MessageHandler) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.handlers = append(l.handlers, h)
}

func (l *TransportLayer) handleMessage(msg Message) {
	l.handlersMu.Lock()
	handlers := l.handlers
	l.handlersMu.Unlock()
	for _, h := range handlers {
		h(msg)
	}
}

func (l *TransportLayer) ServeUDP(c net.PacketConn) error {
	_, port, err := ParseAddr(c.LocalAddr().String())
	if err != nil {
		return err
	}
	l.addListenPort("udp", port)
	return l.udp.Serve(c, l.handleMessage)
}

func (l *TransportLayer) ServeTCP(c net.Listener) error {
	_, port, err := ParseAddr(c.Addr().String())
	if err != nil {
		return err
	}
	l.addListenPort("tcp", port)
	return l.tcp.Serve(c, l.handleMessage)
}

func (l *TransportLayer) ServeTLS(c net.Listener) error {
	_, port, err := ParseAddr(c.Addr().String())
	if err != nil {
		return err
	}
	l.addListenPort("tls", port)
	return l.tls.Serve(c, l.handleMessage)
}

func (l *TransportLayer) ServeWS(c net.Listener) error {
	_, port, err := ParseAddr(c.Addr().String())
	if err != nil {
		return err
	}
	l.addListenPort("ws", port)
	return l.ws.Serve(c, l.handleMessage)
}

func (l *TransportLayer) ServeWSS(c net.Listener) error {
	_, port, err := ParseAddr(c.Addr().String())
	if err != nil {
		return err
	}
	l.addListenPort("wss", port)
	return l.wss.Serve(c, l.handleMessage)
}

func (l *TransportLayer) addListenPort(network string, port int) {
	l.listenPortsMu.Lock()
	defer l.listenPortsMu.Unlock()
	l.listenPorts[network] = append(l.listenPorts[network], port)
}

func (l *TransportLayer) GetListenPort(network string) int {
	l.listenPortsMu.Lock()
	defer l.listenPortsMu.Unlock()
	ports := l.listenPorts[NetworkToLower(network)]
	if len(ports) > 0 {
		return ports[0]
	}
	return 0
}

// WriteMsg sends msg using its own Transport()/Destination() to pick the
// connection.
func (l *TransportLayer) WriteMsg(msg Message) error {
	return l.WriteMsgTo(msg, msg.Destination(), msg.Transport())
}

func (l *TransportLayer) WriteMsgTo(msg Message, addr string, network string) error {
	var conn Connection
	var err error

	switch m := msg.(type) {
	case *Request:
		conn, err = l.ClientRequestConnection(context.Background(), m)
		if err != nil {
			return err
		}
		defer conn.TryClose()
	case *Response:
		conn, err = l.GetConnection(network, addr)
		if err != nil {
			return err
		}
		defer conn.TryClose()
	}

	return conn.WriteMsg(msg)
}

// ClientRequestConnection gets or creates the connection a client
// transaction sends req on (RFC 3261 18.1.1), resolving the destination
// and filling in sent-by on the top Via if the caller left it blank.
func (l *TransportLayer) ClientRequestConnection(ctx context.Context, req *Request) (Connection, error) {
	network := NetworkToLower(req.Transport())
	transport := l.getTransport(network)
	if transport == nil {
		return nil, fmt.Errorf("%w: %s", ErrTransportNotSupported, network)
	}

	var raddr Addr
	if err := l.resolveRemoteAddr(ctx, network, req.Destination(), req.Recipient.Scheme, &raddr); err != nil {
		return nil, err
	}

	viaHop := req.Via()
	if viaHop == nil {
		return nil, fmt.Errorf("sip: request has no Via header")
	}

	laddr := req.Laddr
	req.raddr = raddr

	var conn Connection
	if laddr.IP != nil && laddr.Port > 0 {
		conn, _ = transport.GetConnection(laddr.String())
	} else if l.connectionReuse {
		conn, _ = transport.GetConnection(raddr.String())
	}

	if conn == nil {
		l.log.Debug().Str("laddr", laddr.String()).Str("raddr", raddr.String()).Str("network", network).Msg("sip: creating connection")
		c, err := transport.CreateConnection(ctx, laddr, raddr, l.handleMessage)
		if err != nil {
			return nil, err
		}
		conn = c
	}

	if err := l.overrideSentBy(conn, viaHop); err != nil {
		return nil, err
	}
	return conn, nil
}

// ServerRequestConnection finds the connection a server transaction should
// use to answer req (RFC 3261 18.2.2): existing connections win on
// reliable transports, otherwise the response goes back to the packet's
// source address (corrected by rport, RFC 3581).
func (l *TransportLayer) ServerRequestConnection(ctx context.Context, req *Request) (Connection, error) {
	network := NetworkToLower(req.Transport())
	transport := l.getTransport(network)
	if transport == nil {
		return nil, fmt.Errorf("%w: %s", ErrTransportNotSupported, network)
	}

	sourceAddr := req.Source()
	if IsReliable(network) && sourceAddr != "" {
		if conn, _ := transport.GetConnection(sourceAddr); conn != nil {
			return conn, nil
		}
	}

	viaHop := req.Via()
	if viaHop == nil {
		return nil, fmt.Errorf("sip: request has no Via header")
	}

	viaHost, viaPort := req.sourceViaHostPort()
	if sourceAddr != "" {
		sourceHost, sourcePort, err := ParseAddr(sourceAddr)
		if err != nil {
			return nil, err
		}
		raddr := Addr{IP: net.ParseIP(sourceHost), Port: viaPort, Hostname: sourceHost}
		if rport, ok := viaHop.Params.Get("rport"); ok && rport == "" {
			raddr.Port = sourcePort
		}
		if raddr.Port == 0 {
			raddr.Port = DefaultPort(network)
		}
		req.raddr = raddr

		if c, _ := transport.GetConnection(sourceAddr); c != nil {
			return c, nil
		}
		if c, _ := transport.GetConnection(raddr.String()); c != nil {
			return c, nil
		}
	}

	if viaPort == 0 {
		viaPort = DefaultPort(network)
	}
	var raddr Addr
	if err := l.resolveRemoteAddr(ctx, network, net.JoinHostPort(uriNetIP(viaHost), strconv.Itoa(viaPort)), req.Recipient.Scheme, &raddr); err != nil {
		return nil, err
	}
	req.raddr = raddr

	if c, _ := transport.GetConnection(raddr.String()); c != nil {
		return c, nil
	}

	l.log.Debug().Str("raddr", raddr.String()).Str("network", network).Msg("sip: creating server-side connection")
	return transport.CreateConnection(ctx, Addr{}, raddr, l.handleMessage)
}

func (l *TransportLayer) resolveRemoteAddr(ctx context.Context, network, addr, sipScheme string, raddr *Addr) error {
	host, port, err := ParseAddr(addr)
	if err != nil {
		return fmt.Errorf("sip: parse address %q: %w", addr, err)
	}
	raddr.Hostname = host
	raddr.Port = port
	if raddr.Port == 0 {
		raddr.Port = DefaultPort(network)
	}

	if ip, err := netip.ParseAddr(host); err == nil && ip.IsValid() {
		raddr.IP = net.IP(ip.AsSlice())
		return nil
	}
	return l.resolveAddr(ctx, network, host, sipScheme, raddr)
}

func (l *TransportLayer) overrideSentBy(c Connection, viaHop *ViaHeader) error {
	if viaHop.Host != "" && viaHop.Port > 0 {
		return nil
	}
	laddr := c.LocalAddr().String()
	host, port, err := ParseAddr(laddr)
	if err != nil {
		return fmt.Errorf("sip: parse local connection address %q: %w", laddr, err)
	}
	if viaHop.Host == "" {
		viaHop.Host = host
	}
	if viaHop.Port == 0 {
		viaHop.Port = port
	}
	return nil
}

func (l *TransportLayer) resolveAddr(ctx context.Context, network, host, sipScheme string, addr *Addr) error {
	start := time.Now()
	defer func() {
		if dur := time.Since(start); dur > 50*time.Millisecond {
			l.log.Warn().Dur("dur", dur).Msg("sip: DNS resolution slow")
		}
	}()

	if l.dnsPreferSRV {
		if err := l.resolveAddrSRV(ctx, network, host, sipScheme, addr); err == nil {
			return nil
		}
		return l.resolveAddrIP(ctx, host, addr)
	}
	if err := l.resolveAddrIP(ctx, host, addr); err == nil {
		return nil
	}
	return l.resolveAddrSRV(ctx, network, host, sipScheme, addr)
}

func (l *TransportLayer) resolveAddrIP(ctx context.Context, hostname string, addr *Addr) error {
	ips, err := l.dnsResolver.LookupIPAddr(ctx, hostname)
	if err != nil {
		return err
	}
	if len(ips) == 0 {
		return fmt.Errorf("sip: no IP address for %q", hostname)
	}
	if l.dnsPreferIP > 0 {
		wantV4 := l.dnsPreferIP == 1
		for _, ip := range ips {
			if (ip.IP.To4() != nil) == wantV4 {
				addr.IP = ip.IP
				return nil
			}
		}
	}
	addr.IP = ips[0].IP
	return nil
}

func (l *TransportLayer) resolveAddrSRV(ctx context.Context, network, hostname, sipScheme string, addr *Addr) error {
	var proto string
	switch network {
	case "udp", "udp4", "udp6":
		proto = "udp"
	case "tls":
		proto = "tls"
	default:
		proto = "tcp"
	}

	_, srvs, err := l.dnsResolver.LookupSRV(ctx, sipScheme, proto, hostname)
	if err != nil {
		return fmt.Errorf("sip: SRV lookup for %q: %w", hostname, err)
	}
	if len(srvs) == 0 {
		return fmt.Errorf("sip: SRV lookup for %q returned no records", hostname)
	}
	record := srvs[0]

	ips, err := l.dnsResolver.LookupIP(ctx, "ip", record.Target)
	if err != nil {
		return err
	}
	if len(ips) == 0 {
		return fmt.Errorf("sip: SRV target %q has no address", record.Target)
	}
	addr.IP = ips[0]
	addr.Port = int(record.Port)
	return nil
}

func (l *TransportLayer) GetConnection(network, addr string) (Connection, error) {
	network = NetworkToLower(network)
	transport := l.getTransport(network)
	if transport == nil {
		return nil, fmt.Errorf("%w: %s", ErrTransportNotSupported, network)
	}
	conn, err := transport.GetConnection(addr)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, errTransportConnectionDoesNotExist
	}
	return conn, nil
}

func (l *TransportLayer) Close() error {
	var werr error
	for _, t := range l.allTransports() {
		if t == nil {
			continue
		}
		if err := t.Close(); err != nil {
			werr = errors.Join(werr, err)
		}
	}
	return werr
}

func (l *TransportLayer) getTransport(network string) Transport {
	switch network {
	case "udp":
		return l.udp
	case "tcp":
		return l.tcp
	case "tls":
		return l.tls
	case "ws":
		return l.ws
	case "wss":
		return l.wss
	}
	return nil
}

func (l *TransportLayer) allTransports() []Transport {
	return []Transport{l.udp, l.tcp, l.tls, l.ws, l.wss}
}
