package sip

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// Request is a SIP request (RFC 3261 7.1).
type Request struct {
	MessageData
	Method    RequestMethod
	Recipient Uri

	// Laddr is the local connection address the request was/will be sent from.
	Laddr Addr
	// raddr is the address resolved from the Via header or from GRUU routing.
	raddr Addr
}

// NewRequest builds the Request-Line only; callers must AppendHeader the
// mandatory header set (Via/From/To/Call-ID/CSeq/Max-Forwards) themselves,
// and call SetBody if there is one.
func NewRequest(method RequestMethod, recipient Uri) *Request {
	recipient.UriParams = recipient.UriParams.Clone()
	recipient.Headers = recipient.Headers.Clone()

	req := &Request{}
	req.SipVersion = "SIP/2.0"
	req.headers = newHeaders()
	req.Method = method
	req.Recipient = recipient
	return req
}

func (req *Request) Short() string {
	if req == nil {
		return "<nil>"
	}
	return fmt.Sprintf("request method=%s recipient=%s transport=%s source=%s",
		req.Method, req.Recipient.String(), req.Transport(), req.Source())
}

// StartLine renders the Request-Line (RFC 3261 7.1).
func (req *Request) StartLine() string {
	var b strings.Builder
	req.StartLineWrite(&b)
	return b.String()
}

func (req *Request) StartLineWrite(buffer io.StringWriter) {
	buffer.WriteString(string(req.Method))
	buffer.WriteString(" ")
	buffer.WriteString(req.Recipient.String())
	buffer.WriteString(" ")
	buffer.WriteString(req.SipVersion)
}

func (req *Request) String() string {
	var b strings.Builder
	req.StringWrite(&b)
	return b.String()
}

func (req *Request) StringWrite(buffer io.StringWriter) {
	req.StartLineWrite(buffer)
	buffer.WriteString("\r\n")
	req.headers.StringWrite(buffer)
	buffer.WriteString("\r\n")
	if req.body != nil {
		buffer.WriteString(string(req.body))
	}
}

// Clone copies the request: headers are cloned and the body slice is
// copied, so mutating either on the clone leaves the original untouched.
func (req *Request) Clone() *Request {
	newReq := NewRequest(req.Method, *req.Recipient.Clone())
	newReq.SipVersion = req.SipVersion
	for _, h := range req.CloneHeaders() {
		newReq.AppendHeader(h)
	}
	newReq.SetBody(slices.Clone(req.Body()))
	newReq.SetTransport(req.Transport())
	newReq.SetSource(req.Source())
	newReq.SetDestination(req.Destination())
	newReq.raddr = req.raddr
	newReq.Laddr = req.Laddr
	return newReq
}

func (req *Request) IsInvite() bool { return req.Method == INVITE }
func (req *Request) IsAck() bool    { return req.Method == ACK }
func (req *Request) IsCancel() bool { return req.Method == CANCEL }

// Transport resolves the network this request travels (or travelled) over,
// following the precedence: explicit transport set on parse/send, then the
// recipient URI's transport param, then the top Via transport, and UDP
// when none of those is set.
func (req *Request) Transport() string {
	if tp := req.MessageData.Transport(); tp != "" {
		return tp
	}

	tp := DefaultProtocol
	if via := req.Via(); via != nil && via.Transport != "" {
		tp = via.Transport
	}

	uri := req.Recipient
	if hdr := req.Route(); hdr != nil {
		uri = hdr.Address
	}
	if val, ok := uri.UriParams.Get("transport"); ok && val != "" {
		tp = strings.ToUpper(val)
	}

	if uri.IsEncrypted() {
		if tp == TransportTCP {
			tp = TransportTLS
		} else if tp == TransportWS {
			tp = TransportWSS
		}
	}

	return tp
}

// Source returns the host:port this request was received from, or (for a
// locally built request) the address derived from the top Via.
func (req *Request) Source() string {
	if src := req.MessageData.Source(); src != "" {
		return src
	}
	host, port := req.sourceViaHostPort()
	return fmt.Sprintf("%s:%d", uriNetIP(host), port)
}

func (req *Request) sourceViaHostPort() (string, int) {
	via := req.Via()
	if via == nil {
		return "", 0
	}

	host := via.Host
	port := via.Port
	if port == 0 {
		port = DefaultPort(req.Transport())
	}

	// RFC 3581 4: symmetric-response routing via rport/received.
	if received, ok := via.Params.Get("received"); ok && received != "" {
		host = received
	}
	if rport, ok := via.Params.Get("rport"); ok && rport != "" {
		if p, err := strconv.Atoi(rport); err == nil {
			port = p
		}
	}

	return host, port
}

// Destination returns the host:port this request should be/was sent to.
func (req *Request) Destination() string {
	if dest := req.MessageData.Destination(); dest != "" {
		return dest
	}

	uri := &req.Recipient
	if hdr := req.Route(); hdr != nil {
		uri = &hdr.Address
	}

	port := uri.Port
	if port == 0 {
		port = DefaultPort(req.Transport())
	}
	return fmt.Sprintf("%s:%d", uri.Host, port)
}

func (req *Request) remoteAddress() Addr { return req.raddr }

// newAckRequestNon2xx builds the transaction-level ACK for a non-2xx final
// response (RFC 3261 17.1.1.3). This ACK belongs to the INVITE transaction
// and is never itself a separate transaction, so it reuses the INVITE's
// branch.
func newAckRequestNon2xx(inviteRequest *Request, inviteResponse *Response, body []byte) *Request {
	ackRequest := NewRequest(ACK, *inviteRequest.Recipient.Clone())
	ackRequest.SipVersion = inviteRequest.SipVersion

	CopyHeaders("Via", inviteRequest, ackRequest)

	if len(inviteRequest.GetHeaders("Route")) > 0 {
		CopyHeaders("Route", inviteRequest, ackRequest)
	} else {
		hdrs := inviteResponse.GetHeaders("Record-Route")
		for i := len(hdrs) - 1; i >= 0; i-- {
			ackRequest.AppendHeader(NewHeader("Route", hdrs[i].Value()))
		}
	}

	maxForwards := MaxForwardsHeader(70)
	ackRequest.AppendHeader(&maxForwards)
	if h := inviteRequest.From(); h != nil {
		ackRequest.AppendHeader(h.headerClone())
	}
	if h := inviteResponse.To(); h != nil {
		ackRequest.AppendHeader(h.headerClone())
	}
	if h := inviteRequest.CallID(); h != nil {
		ackRequest.AppendHeader(h.headerClone())
	}
	if h := inviteRequest.CSeq(); h != nil {
		ackRequest.AppendHeader(h.headerClone())
	}

	if cseq := ackRequest.CSeq(); cseq != nil {
		cseq.MethodName = ACK
	}

	if h := inviteRequest.Contact(); h != nil {
		ackRequest.AppendHeader(h.headerClone())
	}

	ackRequest.SetBody(body)
	ackRequest.SetTransport(inviteRequest.Transport())
	ackRequest.SetSource(inviteRequest.Source())
	ackRequest.Laddr = inviteRequest.Laddr
	return ackRequest
}

// newAck2xxRequest builds the dialog-level ACK that follows a 2xx final
// response to INVITE (RFC 3261 13.2.2.4). Unlike the non-2xx ACK, this is a
// transaction of its own: it carries a fresh branch and is never matched to
// the original INVITE transaction.
func newAck2xxRequest(inviteRequest *Request, inviteResponse *Response, recipient Uri, routeSet []*RouteHeader) *Request {
	ackRequest := NewRequest(ACK, recipient)
	ackRequest.SipVersion = inviteRequest.SipVersion

	via := inviteRequest.Via().cloneFirst()
	via.Params.Add("branch", GenerateBranch())
	ackRequest.AppendHeader(via)

	for _, r := range routeSet {
		ackRequest.AppendHeader(NewHeader("Route", r.Value()))
	}

	maxForwards := MaxForwardsHeader(70)
	ackRequest.AppendHeader(&maxForwards)
	if h := inviteRequest.From(); h != nil {
		ackRequest.AppendHeader(h.headerClone())
	}
	if h := inviteResponse.To(); h != nil {
		ackRequest.AppendHeader(h.headerClone())
	}
	if h := inviteRequest.CallID(); h != nil {
		ackRequest.AppendHeader(h.headerClone())
	}
	if cseq := inviteRequest.CSeq(); cseq != nil {
		ackRequest.AppendHeader(&CSeqHeader{SeqNo: cseq.SeqNo, MethodName: ACK})
	}
	ackRequest.SetTransport(inviteRequest.Transport())
	return ackRequest
}

// newCancelRequest builds a CANCEL for an outstanding INVITE (RFC 3261
// 9.1): same Call-ID/To/From/CSeq number and the INVITE's single Via, but
// its own transaction.
func newCancelRequest(requestForCancel *Request) *Request {
	cancelReq := NewRequest(CANCEL, requestForCancel.Recipient)
	cancelReq.SipVersion = requestForCancel.SipVersion

	if via := requestForCancel.Via(); via != nil {
		cancelReq.AppendHeader(via.cloneFirst())
	}
	CopyHeaders("Route", requestForCancel, cancelReq)

	maxForwards := MaxForwardsHeader(70)
	cancelReq.AppendHeader(&maxForwards)

	if h := requestForCancel.From(); h != nil {
		cancelReq.AppendHeader(h.headerClone())
	}
	if h := requestForCancel.To(); h != nil {
		cancelReq.AppendHeader(h.headerClone())
	}
	if h := requestForCancel.CallID(); h != nil {
		cancelReq.AppendHeader(h.headerClone())
	}
	if h := requestForCancel.CSeq(); h != nil {
		cancelReq.AppendHeader(h.headerClone())
	}
	if cseq := cancelReq.CSeq(); cseq != nil {
		cseq.MethodName = CANCEL
	}

	cancelReq.SetTransport(requestForCancel.Transport())
	cancelReq.SetSource(requestForCancel.Source())
	cancelReq.SetDestination(requestForCancel.Destination())
	return cancelReq
}

// newPrackRequest builds a PRACK acknowledging a reliable provisional
// response (RFC 3262 7.2).
func newPrackRequest(dialogRecipient Uri, inviteRequest *Request, provisional *Response, rseq uint32) *Request {
	prackReq := NewRequest(PRACK, dialogRecipient)
	prackReq.SipVersion = inviteRequest.SipVersion

	via := &ViaHeader{
		ProtocolName:    "SIP",
		ProtocolVersion: "2.0",
		Transport:       inviteRequest.Transport(),
		Host:            inviteRequest.Laddr.Hostname,
		Port:            inviteRequest.Laddr.Port,
		Params:          NewParams(),
	}
	via.Params.Add("branch", GenerateBranch())
	prackReq.AppendHeader(via)

	maxForwards := MaxForwardsHeader(70)
	prackReq.AppendHeader(&maxForwards)
	if h := inviteRequest.From(); h != nil {
		prackReq.AppendHeader(h.headerClone())
	}
	if h := provisional.To(); h != nil {
		prackReq.AppendHeader(h.headerClone())
	}
	if h := inviteRequest.CallID(); h != nil {
		prackReq.AppendHeader(h.headerClone())
	}
	if cseq := inviteRequest.CSeq(); cseq != nil {
		prackReq.AppendHeader(&CSeqHeader{SeqNo: cseq.SeqNo + 1, MethodName: PRACK})
	}

	rack := &RAckHeader{RSeq: rseq}
	if icseq := inviteRequest.CSeq(); icseq != nil {
		rack.CSeq = icseq.SeqNo
		rack.MethodName = icseq.MethodName
	}
	prackReq.AppendHeader(rack)

	prackReq.SetTransport(inviteRequest.Transport())
	return prackReq
}

func cloneRequest(req *Request) *Request { return req.Clone() }

// NewAckRequest builds the dialog-level ACK following a 2xx response to
// INVITE (RFC 3261 13.2.2.4): its own transaction, fresh branch, routed to
// the remote target (the response's Contact, falling back to the original
// request-URI) via the route set computed from the response's
// Record-Route chain (RFC 3261 12.1.2: reversed, Record-Route closest to
// the UAS first). Used above the transaction layer, once a dialog is
// established — the non-2xx ACK is generated automatically inside ClientTx.
func NewAckRequest(inviteRequest *Request, inviteResponse *Response, body []byte) *Request {
	recipient := *inviteRequest.Recipient.Clone()
	if cont := inviteResponse.Contact(); cont != nil {
		recipient = *cont.Address.Clone()
	}

	var routeSet []*RouteHeader
	for rr := inviteResponse.RecordRoute(); rr != nil; rr = rr.Next {
		routeSet = append([]*RouteHeader{{Address: *rr.Address.Clone()}}, routeSet...)
	}

	req := newAck2xxRequest(inviteRequest, inviteResponse, recipient, routeSet)
	req.SetBody(body)
	return req
}

// NewCancelRequest builds a CANCEL for an outstanding INVITE (RFC 3261
// 9.1). Used above the transaction layer to abandon a call still in the
// early dialog state; it is sent as its own client transaction with
// TransactionLayer.Request, never through the INVITE's transaction.
func NewCancelRequest(requestForCancel *Request) *Request {
	return newCancelRequest(requestForCancel)
}

// NewPrackRequest builds a PRACK acknowledging a reliable provisional
// response (RFC 3262 7.2), routed to the provisional's Contact (falling
// back to the INVITE's request-URI, same rule as NewAckRequest).
func NewPrackRequest(inviteRequest *Request, provisional *Response, rseq uint32) *Request {
	recipient := *inviteRequest.Recipient.Clone()
	if cont := provisional.Contact(); cont != nil {
		recipient = *cont.Address.Clone()
	}
	return newPrackRequest(recipient, inviteRequest, provisional, rseq)
}
