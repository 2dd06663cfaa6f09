package ua

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sipstack/sipstack/sip"
)

// InboundRequestHandler answers one inbound request on its own
// ServerTx. The handler owns responding (tx.Respond); it must not block
// past what a SIP response timer would tolerate.
type InboundRequestHandler func(req *sip.Request, tx *sip.ServerTx)

// Server is a minimal UAS answering BYE/ACK/CANCEL/OPTIONS (spec.md §1):
// it routes inbound requests by method to registered handlers and falls
// back to 501 Not Implemented. Grounded on
// _examples/emiago-sipgo/server.go's Server/NewServer/ListenAndServe*,
// generalizing its single global dispatch table to spec.md's smaller,
// explicitly-named method set.
type Server struct {
	ua  *UserAgent
	log zerolog.Logger

	mu       sync.RWMutex
	handlers map[sip.RequestMethod]InboundRequestHandler

	middlewares []RequestHandler

	dialogs map[string]*Dialog

	events *eventBus
}

type ServerOption func(*Server)

func WithServerLogger(log zerolog.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

func NewServer(ua *UserAgent, opts ...ServerOption) (*Server, error) {
	s := &Server{
		ua:       ua,
		log:      ua.log,
		handlers: make(map[sip.RequestMethod]InboundRequestHandler),
		dialogs:  make(map[string]*Dialog),
		events:   newEventBus(),
	}
	for _, o := range opts {
		o(s)
	}

	s.handlers[sip.OPTIONS] = s.handleOptions
	s.handlers[sip.ACK] = func(req *sip.Request, tx *sip.ServerTx) {
		s.respond(tx, req, sip.StatusOK, "OK")
	}
	s.handlers[sip.BYE] = s.handleBye
	s.handlers[sip.CANCEL] = s.handleCancel

	ua.Transaction().OnRequest(s.dispatch)
	return s, nil
}

// OnInvite registers h for inbound INVITE. There is no built-in default:
// a server that never calls this rejects every INVITE with 501.
func (s *Server) OnInvite(h InboundRequestHandler) { s.on(sip.INVITE, h) }

// OnBye overrides the default BYE handler (which looks up the dialog,
// replies 200 OK, and emits EventCallHangup with ByRemote true).
func (s *Server) OnBye(h InboundRequestHandler) { s.on(sip.BYE, h) }

// OnCancel overrides the default CANCEL handler (replies 200 OK). It sees
// only CANCELs the transaction layer could not match to an INVITE server
// transaction; matched ones are answered there (RFC 3261 9.2).
func (s *Server) OnCancel(h InboundRequestHandler) { s.on(sip.CANCEL, h) }

// OnOptions overrides the default OPTIONS handler (replies 200 OK with no
// body — a bare capability probe response).
func (s *Server) OnOptions(h InboundRequestHandler) { s.on(sip.OPTIONS, h) }

// OnRegister registers h for inbound REGISTER. There is no built-in
// default: a registrar's binding store is application-specific.
func (s *Server) OnRegister(h InboundRequestHandler) { s.on(sip.REGISTER, h) }

// OnMessage registers h for inbound MESSAGE (RFC 3428).
func (s *Server) OnMessage(h InboundRequestHandler) { s.on(sip.MESSAGE, h) }

func (s *Server) on(method sip.RequestMethod, h InboundRequestHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Use appends a request middleware run (in registration order) before
// dispatch, mirroring the teacher's requestMiddlewares slice.
func (s *Server) Use(h RequestHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, h)
}

// On registers a Server-level event handler (EventCallHangup is the only
// one a Server itself emits today, for inbound BYE).
func (s *Server) On(event string, handler EventHandler) { s.events.on(event, handler) }

func (s *Server) dispatch(req *sip.Request, tx *sip.ServerTx) {
	s.mu.RLock()
	mws := append([]RequestHandler(nil), s.middlewares...)
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	for _, mw := range mws {
		if err := mw(req); err != nil {
			s.log.Error().Err(err).Str("req", req.Short()).Msg("ua: server middleware rejected request")
			s.respond(tx, req, sip.StatusInternalServerError, "Internal Server Error")
			return
		}
	}

	if !ok {
		s.respond(tx, req, sip.StatusNotImplemented, "Not Implemented")
		return
	}
	handler(req, tx)
}

func (s *Server) respond(tx *sip.ServerTx, req *sip.Request, status int, reason string) {
	res := sip.NewResponseFromRequest(req, status, reason, nil)
	if err := tx.Respond(res); err != nil {
		s.log.Error().Err(err).Msg("ua: failed to send response")
	}
}

func (s *Server) handleOptions(req *sip.Request, tx *sip.ServerTx) {
	s.respond(tx, req, sip.StatusOK, "OK")
}

func (s *Server) handleBye(req *sip.Request, tx *sip.ServerTx) {
	id, err := sip.DialogIDFromRequestUAS(req)
	if err == nil {
		s.mu.Lock()
		d, found := s.dialogs[id]
		if found {
			delete(s.dialogs, id)
		}
		s.mu.Unlock()
		if found {
			d.setState(DialogStateTerminated)
			s.events.emit(EventCallHangup, CallHangup{ByRemote: true}, s.ua)
		}
	}
	s.respond(tx, req, sip.StatusOK, "OK")
}

// handleCancel replies 200 OK to a CANCEL that reaches the TU. A CANCEL
// matching an INVITE server transaction never gets here: the transaction
// layer answers it 200 itself and that INVITE transaction sends its own
// 487 Request Terminated (RFC 3261 9.2).
func (s *Server) handleCancel(req *sip.Request, tx *sip.ServerTx) {
	s.respond(tx, req, sip.StatusOK, "OK")
}

// storeDialog registers a dialog this server accepted as UAS, so a later
// BYE can find it. Server does not call it itself: answering an INVITE
// through an OnInvite handler registers no dialog, so handleBye finds only
// dialogs stored here.
func (s *Server) storeDialog(d *Dialog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogs[d.ID] = d
}

// ListenAndServe starts one listener (network: udp, tcp, ws) and blocks
// serving it until ctx is canceled or the listener errors. Grounded on
// _examples/emiago-sipgo/server.go's ListenAndServe.
func (s *Server) ListenAndServe(ctx context.Context, network, addr string) error {
	network = strings.ToLower(network)

	switch network {
	case "udp":
		laddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return fmt.Errorf("ua: resolve udp address: %w", err)
		}
		conn, err := net.ListenUDP("udp", laddr)
		if err != nil {
			return fmt.Errorf("ua: listen udp: %w", err)
		}
		go closeOnDone(ctx, conn)
		return s.ua.Transport().ServeUDP(conn)

	case "tcp", "ws":
		laddr, err := net.ResolveTCPAddr("tcp", addr)
		if err != nil {
			return fmt.Errorf("ua: resolve tcp address: %w", err)
		}
		conn, err := net.ListenTCP("tcp", laddr)
		if err != nil {
			return fmt.Errorf("ua: listen tcp: %w", err)
		}
		go closeOnDone(ctx, conn)
		if network == "ws" {
			return s.ua.Transport().ServeWS(conn)
		}
		return s.ua.Transport().ServeTCP(conn)

	default:
		return sip.ErrNetworkNotSupported
	}
}

// ListenAndServeTLS starts one TLS-secured listener (network: tls, wss).
func (s *Server) ListenAndServeTLS(ctx context.Context, network, addr string, conf *tls.Config) error {
	network = strings.ToLower(network)
	switch network {
	case "tls", "wss":
		laddr, err := net.ResolveTCPAddr("tcp", addr)
		if err != nil {
			return fmt.Errorf("ua: resolve tcp address: %w", err)
		}
		listener, err := tls.Listen("tcp", laddr.String(), conf)
		if err != nil {
			return fmt.Errorf("ua: listen tls: %w", err)
		}
		go closeOnDone(ctx, listener)
		if network == "wss" {
			return s.ua.Transport().ServeWSS(listener)
		}
		return s.ua.Transport().ServeTLS(listener)
	default:
		return sip.ErrNetworkNotSupported
	}
}

func closeOnDone(ctx context.Context, c interface{ Close() error }) {
	<-ctx.Done()
	_ = c.Close()
}
