package ua

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/sipstack/sipstack/auth"
	"github.com/sipstack/sipstack/internal/loop"
	"github.com/sipstack/sipstack/sip"
)

// Client is a SIP user agent client (UAC): it places calls, registers,
// sends instant messages, and probes OPTIONS capabilities. Every operation
// runs on the caller's goroutine and goes straight through the
// transaction layer; the dialog table is guarded by mu and each Call by
// its own mutex. The internal/loop.Loop a Client creates is stopped by
// Close and runs none of these operations.
//
// Grounded on _examples/emiago-sipgo/client.go's Client/ClientOption/
// Do/DoDigestAuth and dialog_client.go's DialogClient/Invite/WaitAnswer.
type Client struct {
	ua  *UserAgent
	log zerolog.Logger

	loop *loop.Loop

	handlers handlerChain
	events   *eventBus

	contact sip.ContactHeader
	creds   *auth.CredentialResolver
	nonces  *auth.NonceCounter

	mu      sync.Mutex
	dialogs map[string]*Dialog

	cseq atomic.Uint32

	metrics *Metrics
}

type ClientOption func(*Client)

func WithClientLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// WithClientContactUser sets the user part of the Contact URI this client
// advertises on dialog-forming requests.
func WithClientContactUser(user string) ClientOption {
	return func(c *Client) { c.contact.Address.User = user }
}

// WithClientContactPort overrides the Contact port, for clients that
// listen on a fixed port rather than an ephemeral one.
func WithClientContactPort(port int) ClientOption {
	return func(c *Client) { c.contact.Address.Port = port }
}

// WithClientDefaultCredentials registers the fallback digest credentials
// used when no realm/method-specific entry matches a challenge.
func WithClientDefaultCredentials(creds auth.Credentials) ClientOption {
	return func(c *Client) { c.creds.SetDefault(creds) }
}

// WithClientRealmCredentials scopes credentials to one realm, overriding
// the default for challenges from that realm.
func WithClientRealmCredentials(realm string, creds auth.Credentials) ClientOption {
	return func(c *Client) { c.creds.SetForRealm(realm, creds) }
}

// WithClientMethodRealmCredentials scopes credentials to one
// (method, realm) pair, the highest-priority match (SPEC_FULL.md §4.5).
func WithClientMethodRealmCredentials(method, realm string, creds auth.Credentials) ClientOption {
	return func(c *Client) { c.creds.SetForMethodRealm(method, realm, creds) }
}

// WithClientMetrics attaches a Metrics instance; without this option
// transaction/dialog counters are simply not recorded.
func WithClientMetrics(m *Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

func NewClient(ua *UserAgent, opts ...ClientOption) (*Client, error) {
	c := &Client{
		ua:      ua,
		log:     ua.log,
		events:  newEventBus(),
		creds:   auth.NewCredentialResolver(),
		nonces:  auth.NewNonceCounter(),
		dialogs: make(map[string]*Dialog),
		contact: sip.ContactHeader{Address: sip.Uri{Scheme: "sip", Host: ua.Host()}},
	}
	for _, o := range opts {
		o(c)
	}
	c.loop = loop.New(context.Background(), loop.WithLogger(c.log))

	onReq, onRes, onErr := LoggingHandlers(c.log)
	c.handlers.addRequest(UserAgentInjector(ua.name))
	c.handlers.addRequest(onReq)
	c.handlers.addResponse(onRes)
	c.handlers.addError(onErr)

	return c, nil
}

// On registers handler against the named event (EventCallHangup,
// EventSDPNegotiated, EventOptionsResponse). Instance-owned per
// SPEC_FULL.md §4.4's REDESIGN away from class-attribute decorators.
func (c *Client) On(event string, handler EventHandler) {
	c.events.on(event, handler)
}

// OnRequest/OnResponse/OnError extend this client's handler chain
// (spec.md §4.6). Handlers run in registration order.
func (c *Client) OnRequest(h RequestHandler)   { c.handlers.addRequest(h) }
func (c *Client) OnResponse(h ResponseHandler) { c.handlers.addResponse(h) }
func (c *Client) OnError(h ErrorHandler)       { c.handlers.addError(h) }

// Close stops this client's loop goroutine. It does not terminate
// in-flight transactions or fail pending operations; those end when their
// context is done or their transaction terminates.
func (c *Client) Close() error {
	return c.loop.Close()
}

type requestAddressing struct {
	fromDisplay string
	toDisplay   string
}

// newOutboundRequest builds the mandatory header set for a dialog-forming
// or stateless request (RFC 3261 8.1.1): Via/From/To/Call-ID/CSeq/
// Max-Forwards, plus whatever the handler chain's onRequest hooks add
// (by default a User-Agent header). Grounded on
// _examples/emiago-sipgo/client.go's clientRequestBuildReq.
func (c *Client) newOutboundRequest(method sip.RequestMethod, recipient sip.Uri, addr requestAddressing) (*sip.Request, error) {
	req := sip.NewRequest(method, recipient)

	fromURI := sip.Uri{Scheme: "sip", User: c.contact.Address.User, Host: c.ua.Host(), Port: c.contact.Address.Port}
	fromParams := sip.NewParams()
	fromParams.Add("tag", sip.GenerateTagN(8))
	req.AppendHeader(&sip.FromHeader{DisplayName: addr.fromDisplay, Address: fromURI, Params: fromParams})
	req.AppendHeader(&sip.ToHeader{DisplayName: addr.toDisplay, Address: recipient, Params: sip.NewParams()})

	callID := sip.CallIDHeader(sip.NextMessageID())
	req.AppendHeader(&callID)

	seq := c.cseq.Add(1)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: seq, MethodName: method})

	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)

	via := &sip.ViaHeader{
		ProtocolName:    "SIP",
		ProtocolVersion: "2.0",
		Transport:       sip.DefaultProtocol,
		Host:            c.ua.Host(),
		Params:          sip.NewParams(),
	}
	via.Params.Add("branch", sip.GenerateBranch())
	via.Params.Add("rport", "")
	req.AppendHeader(via)

	if err := c.handlers.runRequest(req); err != nil {
		return nil, fmt.Errorf("ua: request handler chain: %w", err)
	}
	return req, nil
}

// doRequest sends req as its own client transaction, waits for a final
// response (absorbing provisionals), and answers one 401/407 challenge if
// credentials resolve for it. This is the primitive Options, Register,
// Message, Prack and in-dialog requests (sendInDialog) build on; Invite
// drives its own transaction and shares only retryWithAuth.
func (c *Client) doRequest(ctx context.Context, req *sip.Request) (*sip.Response, error) {
	res, err := c.roundTrip(ctx, req)
	if err != nil {
		c.handlers.runError(err)
		return nil, err
	}

	if res.StatusCode == sip.StatusUnauthorized || res.StatusCode == sip.StatusProxyAuthRequired {
		_, retriedRes, err := c.retryWithAuth(ctx, req, res)
		if err != nil {
			return res, err
		}
		return retriedRes, nil
	}

	c.handlers.runResponse(res)
	return res, nil
}

func (c *Client) roundTrip(ctx context.Context, req *sip.Request) (*sip.Response, error) {
	tx, err := c.ua.Transaction().Request(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("ua: send %s: %w", req.Method, err)
	}
	defer tx.Terminate()

	if c.metrics != nil {
		c.metrics.transactionsStarted.WithLabelValues(string(req.Method)).Inc()
	}

	for {
		select {
		case res, ok := <-tx.Responses():
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrProtocol, "transaction closed its responses channel")
			}
			if res.IsProvisional() {
				continue
			}
			if c.metrics != nil {
				c.metrics.transactionsFinal.WithLabelValues(string(req.Method), fmt.Sprint(res.StatusCode)).Inc()
			}
			return res, nil
		case <-tx.Done():
			if err := tx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: transaction terminated with no response", ErrProtocol)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// retryWithAuth answers one digest challenge and resends req with a fresh
// branch/CSeq. Grounded on _examples/emiago-sipgo/client.go's
// digestAuthApply/digestProxyAuthApply/digestTransactionRequest.
func (c *Client) retryWithAuth(ctx context.Context, req *sip.Request, challengeRes *sip.Response) (*sip.Request, *sip.Response, error) {
	chal, err := auth.ParseChallenge(challengeRes)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrAuthFailed, err)
	}

	creds, err := c.creds.Resolve(string(req.Method), chal.Realm)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrAuthFailed, err)
	}

	header, err := auth.Authorize(chal, creds, string(req.Method), req.Recipient.String(), c.nonces, string(*req.CallID()))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrAuthFailed, err)
	}

	retry := req.Clone()
	retry.AppendHeader(header)
	if via := retry.Via(); via != nil {
		via.Params.Add("branch", sip.GenerateBranch())
	}
	if cseq := retry.CSeq(); cseq != nil {
		cseq.SeqNo = c.cseq.Add(1)
	}

	if c.metrics != nil {
		c.metrics.retries.WithLabelValues(string(req.Method)).Inc()
	}

	res, err := c.roundTrip(ctx, retry)
	if err != nil {
		return retry, nil, err
	}
	if res.StatusCode == sip.StatusUnauthorized || res.StatusCode == sip.StatusProxyAuthRequired {
		return retry, res, fmt.Errorf("%w: challenged again after retry", ErrAuthFailed)
	}
	c.handlers.runResponse(res)
	return retry, res, nil
}

type OptionsOptions struct {
	FromDisplay, ToDisplay string
}

// Options probes capabilities (RFC 3261 11).
func (c *Client) Options(ctx context.Context, uri sip.Uri, opts OptionsOptions) (*sip.Response, error) {
	req, err := c.newOutboundRequest(sip.OPTIONS, uri, requestAddressing{opts.FromDisplay, opts.ToDisplay})
	if err != nil {
		return nil, err
	}
	res, err := c.doRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	c.events.emit(EventOptionsResponse, OptionsResponse{Response: res}, c.ua)
	return res, nil
}

type RegisterOptions struct {
	Registrar       sip.Uri
	AOR             sip.Uri
	ExpiresSeconds  uint32
}

// Register registers the AOR with Registrar (RFC 3261 10).
func (c *Client) Register(ctx context.Context, opts RegisterOptions) (*sip.Response, error) {
	req, err := c.newOutboundRequest(sip.REGISTER, opts.Registrar, requestAddressing{})
	if err != nil {
		return nil, err
	}
	contact := c.contact.Clone()
	if opts.ExpiresSeconds > 0 {
		contact.Params.Add("expires", fmt.Sprint(opts.ExpiresSeconds))
	}
	req.AppendHeader(contact)
	return c.doRequest(ctx, req)
}

type MessageOptions struct {
	ContentType            string
	FromDisplay, ToDisplay string
}

// Message sends a MESSAGE (RFC 3428) carrying content opaquely.
func (c *Client) Message(ctx context.Context, content []byte, uri sip.Uri, opts MessageOptions) (*sip.Response, error) {
	req, err := c.newOutboundRequest(sip.MESSAGE, uri, requestAddressing{opts.FromDisplay, opts.ToDisplay})
	if err != nil {
		return nil, err
	}
	ct := opts.ContentType
	if ct == "" {
		ct = "text/plain"
	}
	ctHeader := sip.ContentTypeHeader(ct)
	req.AppendHeader(&ctHeader)
	req.SetBody(content)
	return c.doRequest(ctx, req)
}

type InviteOptions struct {
	SDP                    []byte
	FromDisplay, ToDisplay string
}

// Invite places a call (RFC 3261 13). It returns once the INVITE
// transaction reaches a final response; the returned Call tracks dialog
// and convenience-FSM state for the rest of the call's life.
func (c *Client) Invite(ctx context.Context, uri sip.Uri, opts InviteOptions) (*Call, error) {
	req, err := c.newOutboundRequest(sip.INVITE, uri, requestAddressing{opts.FromDisplay, opts.ToDisplay})
	if err != nil {
		return nil, err
	}
	req.AppendHeader(c.contact.Clone())
	if len(opts.SDP) > 0 {
		ct := sip.ContentTypeHeader("application/sdp")
		req.AppendHeader(&ct)
		req.SetBody(opts.SDP)
	}

	call := newCall(c)

	tx, err := c.ua.Transaction().Request(ctx, req)
	if err != nil {
		c.handlers.runError(err)
		return nil, fmt.Errorf("ua: send INVITE: %w", err)
	}
	call.mu.Lock()
	call.inviteTx = tx
	call.mu.Unlock()

	for {
		select {
		case res, ok := <-tx.Responses():
			if !ok {
				return call, fmt.Errorf("%w: INVITE transaction closed", ErrProtocol)
			}
			call.mu.Lock()
			call.lastResponse = res
			call.mu.Unlock()

			switch {
			case res.IsProvisional():
				call.mu.Lock()
				call.fireLocked(callEvent1xx)
				call.mu.Unlock()
				// Prack runs on its own transaction and must not hold up
				// draining tx.Responses(): a slow PRACK round trip would
				// otherwise stall processing of the INVITE's next provisional.
				go func(provisional *sip.Response) {
					if _, err := c.Prack(ctx, call, provisional); err != nil {
						c.handlers.runError(fmt.Errorf("ua: PRACK: %w", err))
					}
				}(res)
				continue
			case res.IsSuccess():
				d, err := newDialogFromInvite(req, res)
				if err != nil {
					return call, fmt.Errorf("%w: %s", ErrProtocol, err)
				}
				c.storeDialog(d)
				call.mu.Lock()
				call.dialog = d
				call.fireLocked(callEvent2xx)
				call.mu.Unlock()
				if err := c.ackInvite(req, res); err != nil {
					c.handlers.runError(err)
				}
				return call, nil
			case res.StatusCode == sip.StatusUnauthorized || res.StatusCode == sip.StatusProxyAuthRequired:
				retriedReq, retried, err := c.retryWithAuth(ctx, req, res)
				if err != nil {
					call.mu.Lock()
					call.err = err
					call.fireLocked(callEventFinalFail)
					call.mu.Unlock()
					return call, err
				}
				call.mu.Lock()
				call.lastResponse = retried
				call.mu.Unlock()
				if retried.IsSuccess() {
					d, err := newDialogFromInvite(retriedReq, retried)
					if err != nil {
						return call, fmt.Errorf("%w: %s", ErrProtocol, err)
					}
					c.storeDialog(d)
					call.mu.Lock()
					call.dialog = d
					call.fireLocked(callEvent2xx)
					call.mu.Unlock()
					if err := c.ackInvite(retriedReq, retried); err != nil {
						c.handlers.runError(err)
					}
					return call, nil
				}
				call.mu.Lock()
				call.err = fmt.Errorf("%w: %s", ErrProtocol, retried.Short())
				call.fireLocked(callEventFinalFail)
				call.mu.Unlock()
				return call, nil
			default:
				call.mu.Lock()
				call.err = fmt.Errorf("%w: %s", ErrProtocol, res.Short())
				call.fireLocked(callEventFinalFail)
				call.mu.Unlock()
				return call, nil
			}
		case <-tx.Done():
			err := tx.Err()
			call.mu.Lock()
			call.err = err
			call.fireLocked(callEventFinalFail)
			call.mu.Unlock()
			return call, err
		case <-ctx.Done():
			return call, ctx.Err()
		}
	}
}

// ackInvite sends the dialog-level 2xx ACK directly through the
// transport, bypassing the transaction layer (RFC 3261 13.2.2.4: this ACK
// is not part of the INVITE transaction).
func (c *Client) ackInvite(inviteReq *sip.Request, inviteRes *sip.Response) error {
	ack := sip.NewAckRequest(inviteReq, inviteRes, nil)
	if err := c.ua.Transport().WriteMsg(ack); err != nil {
		return fmt.Errorf("ua: send ACK: %w", err)
	}
	return nil
}

func (c *Client) storeDialog(d *Dialog) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialogs[d.ID] = d
	if c.metrics != nil {
		c.metrics.dialogs.Inc()
	}
}

func (c *Client) dropDialog(d *Dialog) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.dialogs[d.ID]; ok {
		delete(c.dialogs, d.ID)
		if c.metrics != nil {
			c.metrics.dialogs.Dec()
		}
	}
}

// sendInDialog builds and sends an in-dialog request (BYE today; the same
// helper serves any future in-dialog method) addressed to d's remote
// target through d's route set, with d's next local CSeq.
func (c *Client) sendInDialog(ctx context.Context, d *Dialog, method sip.RequestMethod, body []byte) (*sip.Response, error) {
	req := sip.NewRequest(method, d.RemoteTarget)

	fromParams := sip.NewParams()
	fromParams.Add("tag", d.LocalTag)
	req.AppendHeader(&sip.FromHeader{Address: *d.InviteRequest.From().Address.Clone(), Params: fromParams})

	toParams := sip.NewParams()
	toParams.Add("tag", d.RemoteTag)
	req.AppendHeader(&sip.ToHeader{Address: d.InviteRequest.Recipient, Params: toParams})

	callID := sip.CallIDHeader(d.CallID)
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: d.NextLocalSeq(), MethodName: method})

	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)

	for _, r := range d.RouteSet {
		req.AppendHeader(sip.NewHeader("Route", r.Value()))
	}

	via := &sip.ViaHeader{
		ProtocolName: "SIP", ProtocolVersion: "2.0",
		Transport: sip.DefaultProtocol, Host: c.ua.Host(),
		Params: sip.NewParams(),
	}
	via.Params.Add("branch", sip.GenerateBranch())
	req.AppendHeader(via)

	if len(body) > 0 {
		req.SetBody(body)
	}
	if err := c.handlers.runRequest(req); err != nil {
		return nil, err
	}

	res, err := c.doRequest(ctx, req)
	if err == nil && method == sip.BYE {
		c.dropDialog(d)
	}
	return res, err
}
