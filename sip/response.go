package sip

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
)

// Response is a SIP response (RFC 3261 7.2).
type Response struct {
	MessageData

	Reason     string
	StatusCode int

	raddr Addr
}

// NewResponse builds a bare status line; callers append headers themselves.
func NewResponse(statusCode int, reason string) *Response {
	if reason == "" {
		reason = ReasonPhraseForCode(statusCode)
	}
	res := &Response{}
	res.SipVersion = "SIP/2.0"
	res.headers = newHeaders()
	res.StatusCode = statusCode
	res.Reason = reason
	return res
}

func (res *Response) Short() string {
	if res == nil {
		return "<nil>"
	}
	return fmt.Sprintf("response status=%d reason=%s transport=%s source=%s",
		res.StatusCode, res.Reason, res.Transport(), res.Source())
}

// StartLine renders the Status-Line (RFC 3261 7.2).
func (res *Response) StartLine() string {
	var b strings.Builder
	res.StartLineWrite(&b)
	return b.String()
}

func (res *Response) StartLineWrite(buffer io.StringWriter) {
	buffer.WriteString(res.SipVersion)
	buffer.WriteString(" ")
	buffer.WriteString(strconv.Itoa(res.StatusCode))
	buffer.WriteString(" ")
	buffer.WriteString(res.Reason)
}

func (res *Response) String() string {
	var b strings.Builder
	res.StringWrite(&b)
	return b.String()
}

func (res *Response) StringWrite(buffer io.StringWriter) {
	res.StartLineWrite(buffer)
	buffer.WriteString("\r\n")
	res.headers.StringWrite(buffer)
	buffer.WriteString("\r\n")
	if res.body != nil {
		buffer.WriteString(string(res.body))
	}
}

func (res *Response) Clone() *Response {
	newRes := NewResponse(res.StatusCode, res.Reason)
	newRes.SipVersion = res.SipVersion
	for _, h := range res.CloneHeaders() {
		newRes.AppendHeader(h)
	}
	newRes.SetBody(res.Body())
	newRes.SetTransport(res.Transport())
	newRes.SetSource(res.Source())
	newRes.SetDestination(res.Destination())
	return newRes
}

func (res *Response) IsProvisional() bool  { return res.StatusCode < 200 }
func (res *Response) IsSuccess() bool      { return res.StatusCode >= 200 && res.StatusCode < 300 }
func (res *Response) IsRedirection() bool  { return res.StatusCode >= 300 && res.StatusCode < 400 }
func (res *Response) IsClientError() bool  { return res.StatusCode >= 400 && res.StatusCode < 500 }
func (res *Response) IsServerError() bool  { return res.StatusCode >= 500 && res.StatusCode < 600 }
func (res *Response) IsGlobalError() bool  { return res.StatusCode >= 600 }

func (res *Response) IsAck() bool {
	if cseq := res.CSeq(); cseq != nil {
		return cseq.MethodName == ACK
	}
	return false
}

func (res *Response) IsCancel() bool {
	if cseq := res.CSeq(); cseq != nil {
		return cseq.MethodName == CANCEL
	}
	return false
}

func (res *Response) Transport() string {
	if tp := res.MessageData.Transport(); tp != "" {
		return tp
	}
	if via := res.Via(); via != nil && via.Transport != "" {
		return via.Transport
	}
	return DefaultProtocol
}

// Destination returns where this response should be/was sent: the same
// address and port the request arrived on, per RFC 3581 4's symmetric
// response routing, falling back to the Via sent-by host/port.
func (res *Response) Destination() string {
	if dest := res.MessageData.Destination(); dest != "" {
		return dest
	}

	via := res.Via()
	if via == nil {
		return ""
	}

	host := via.Host
	port := via.Port
	if port == 0 {
		port = DefaultPort(res.Transport())
	}
	if received, ok := via.Params.Get("received"); ok && received != "" {
		host = received
	}
	if rport, ok := via.Params.Get("rport"); ok && rport != "" {
		if p, err := strconv.Atoi(rport); err == nil {
			port = p
		}
	}
	return fmt.Sprintf("%s:%d", host, port)
}

func (res *Response) remoteAddress() Addr {
	host, port, _ := ParseAddr(res.dest)
	return Addr{IP: net.ParseIP(host), Port: port, Hostname: res.dest}
}

// NewResponseFromRequest builds the skeleton of a response to req per RFC
// 3261 8.2.6: copies Via/Record-Route/From/To/Call-ID/CSeq, assigns a To
// tag for every response except 100 Trying, and mirrors the rport/received
// params for symmetric routing.
func NewResponseFromRequest(req *Request, statusCode int, reason string, body []byte) *Response {
	res := NewResponse(statusCode, reason)
	res.SipVersion = req.SipVersion

	CopyHeaders("Record-Route", req, res)
	CopyHeaders("Via", req, res)
	if h := req.From(); h != nil {
		res.AppendHeader(h.headerClone())
	}
	if h := req.To(); h != nil {
		res.AppendHeader(h.headerClone())
	}
	if h := req.CallID(); h != nil {
		res.AppendHeader(h.headerClone())
	}
	if h := req.CSeq(); h != nil {
		res.AppendHeader(h.headerClone())
	}

	if via := res.Via(); via != nil {
		if val, exists := via.Params.Get("rport"); exists && val == "" {
			host, port, err := net.SplitHostPort(req.Source())
			if err == nil {
				via.Params.Add("rport", port)
				via.Params.Add("received", host)
			}
		}
	}

	switch statusCode {
	case StatusTrying:
		// RFC 3261 8.2.6.1: 100 Trying need not carry a To tag.
	default:
		if to := res.To(); to != nil {
			if _, ok := to.Tag(); !ok {
				to.Params.Add("tag", GenerateTagN(8))
			}
		}
	}

	res.SetBody(body)
	res.SetTransport(req.Transport())

	if req.raddr.IP != nil {
		res.SetDestination(req.raddr.String())
	} else {
		res.SetDestination(req.Source())
	}

	return res
}

// NewSDPResponseFromRequest wraps NewResponseFromRequest for a 200 OK
// carrying an SDP answer body.
func NewSDPResponseFromRequest(req *Request, body []byte) *Response {
	res := NewResponseFromRequest(req, StatusOK, "", body)
	ct := ContentTypeHeader("application/sdp")
	res.AppendHeader(&ct)
	res.SetBody(body)
	return res
}

func cloneResponse(res *Response) *Response { return res.Clone() }

func CopyResponse(res *Response) *Response { return res.Clone() }
