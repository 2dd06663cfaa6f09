package sip

import (
	"io"

	"github.com/google/uuid"
)

type MessageHandler func(msg Message)

// RequestMethod is a SIP method token (RFC 3261 7.1).
type RequestMethod string

func (r RequestMethod) String() string { return string(r) }

const (
	INVITE    RequestMethod = "INVITE"
	ACK       RequestMethod = "ACK"
	CANCEL    RequestMethod = "CANCEL"
	BYE       RequestMethod = "BYE"
	REGISTER  RequestMethod = "REGISTER"
	OPTIONS   RequestMethod = "OPTIONS"
	SUBSCRIBE RequestMethod = "SUBSCRIBE"
	NOTIFY    RequestMethod = "NOTIFY"
	REFER     RequestMethod = "REFER"
	INFO      RequestMethod = "INFO"
	MESSAGE   RequestMethod = "MESSAGE"
	PRACK     RequestMethod = "PRACK"
	UPDATE    RequestMethod = "UPDATE"
	PUBLISH   RequestMethod = "PUBLISH"
)

// MessageID uniquely tags a Request/Response pair for correlation in logs
// and in the event bus; it has no wire representation.
type MessageID string

func NextMessageID() MessageID {
	return MessageID(uuid.NewString())
}

// Message is implemented by *Request and *Response. Header accessors that
// return a concrete header type return nil, not an error, when the header
// is absent: callers check with a nil comparison the way they already do
// for Via/From/To.
type Message interface {
	StartLine() string
	StartLineWrite(io.StringWriter)
	String() string
	StringWrite(io.StringWriter)
	Short() string

	Headers() []Header
	GetHeaders(name string) []Header
	GetHeader(name string) Header
	PrependHeader(header ...Header)
	AppendHeader(header Header)
	AppendHeaderAfter(header Header, name string)
	RemoveHeader(name string)
	ReplaceHeader(header Header)

	CallID() *CallIDHeader
	Via() *ViaHeader
	From() *FromHeader
	To() *ToHeader
	CSeq() *CSeqHeader
	ContentLength() *ContentLengthHeader
	ContentType() *ContentTypeHeader
	Route() *RouteHeader
	RecordRoute() *RecordRouteHeader
	Contact() *ContactHeader

	CloneHeaders() []Header

	Body() []byte
	SetBody(body []byte)

	Transport() string
	SetTransport(tp string)
	Source() string
	SetSource(src string)
	Destination() string
	SetDestination(dest string)
}

// MessageData is the common state embedded by Request and Response.
type MessageData struct {
	headers
	SipVersion string
	body       []byte
	tp         string
	src        string
	dest       string
}

func (msg *MessageData) Body() []byte { return msg.body }

// SetBody sets the body and synchronizes the Content-Length header.
func (msg *MessageData) SetBody(body []byte) {
	msg.body = body
	length := ContentLengthHeader(len(body))

	if hdr := msg.ContentLength(); hdr != nil {
		if *hdr == length {
			return
		}
		msg.ReplaceHeader(&length)
		return
	}
	msg.AppendHeader(&length)
}

func (msg *MessageData) Transport() string      { return msg.tp }
func (msg *MessageData) SetTransport(tp string) { msg.tp = tp }
func (msg *MessageData) Source() string         { return msg.src }
func (msg *MessageData) SetSource(src string)   { msg.src = src }
func (msg *MessageData) Destination() string    { return msg.dest }
func (msg *MessageData) SetDestination(dest string) { msg.dest = dest }

// MessageShortString dumps a short version of msg, used only for logging.
func MessageShortString(msg Message) string {
	switch m := msg.(type) {
	case *Request:
		return m.Short()
	case *Response:
		return m.Short()
	}
	return "unknown message type"
}
