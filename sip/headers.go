package sip

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Header is a single SIP header field.
type Header interface {
	Name() string
	Value() string
	String() string
	// StringWrite lets callers reuse a single buffer across many headers.
	StringWrite(w io.StringWriter)

	headerClone() Header
}

func HeaderClone(h Header) Header {
	return h.headerClone()
}

// headers is the per-message header container. It keeps headers in wire
// order for rendering while caching pointers to the handful of header
// types every message path needs (Via, From, To, CSeq, ...) so looking
// them up does not walk the ordered slice.
type headers struct {
	headerOrder []Header

	via           *ViaHeader
	from          *FromHeader
	to            *ToHeader
	callID        *CallIDHeader
	contact       *ContactHeader
	cseq          *CSeqHeader
	contentLength *ContentLengthHeader
	contentType   *ContentTypeHeader
	route         *RouteHeader
	recordRoute   *RecordRouteHeader
}

func newHeaders() headers {
	return headers{headerOrder: make([]Header, 0, 10)}
}

func (hs *headers) String() string {
	var buffer strings.Builder
	hs.StringWrite(&buffer)
	return buffer.String()
}

func (hs *headers) StringWrite(buffer io.StringWriter) {
	for i, header := range hs.headerOrder {
		if i > 0 {
			buffer.WriteString("\r\n")
		}
		header.StringWrite(buffer)
	}
	buffer.WriteString("\r\n")
}

// AppendHeader adds a header to the end of the message and refreshes the
// well-known cache if the header is one of the cached types.
func (hs *headers) AppendHeader(header Header) {
	hs.headerOrder = append(hs.headerOrder, header)
	hs.cache(header)
}

func (hs *headers) cache(header Header) {
	switch h := header.(type) {
	case *ViaHeader:
		if hs.via == nil {
			hs.via = h
		}
	case *FromHeader:
		hs.from = h
	case *ToHeader:
		hs.to = h
	case *CallIDHeader:
		hs.callID = h
	case *CSeqHeader:
		hs.cseq = h
	case *ContactHeader:
		hs.contact = h
	case *ContentLengthHeader:
		hs.contentLength = h
	case *ContentTypeHeader:
		hs.contentType = h
	case *RouteHeader:
		if hs.route == nil {
			hs.route = h
		}
	case *RecordRouteHeader:
		if hs.recordRoute == nil {
			hs.recordRoute = h
		}
	}
}

// PrependHeader adds headers to the front of the message, in the order given.
func (hs *headers) PrependHeader(headers ...Header) {
	offset := len(headers)
	newOrder := make([]Header, len(hs.headerOrder)+offset)
	copy(newOrder, headers)
	copy(newOrder[offset:], hs.headerOrder)
	hs.headerOrder = newOrder
	for _, h := range headers {
		hs.cache(h)
	}
}

// AppendHeaderAfter inserts header immediately after the last header named name.
func (hs *headers) AppendHeaderAfter(header Header, name string) {
	nameLower := HeaderToLower(name)
	ind := -1
	for i, h := range hs.headerOrder {
		if HeaderToLower(h.Name()) == nameLower {
			ind = i
		}
	}
	if ind < 0 {
		hs.AppendHeader(header)
		return
	}
	newOrder := make([]Header, 0, len(hs.headerOrder)+1)
	newOrder = append(newOrder, hs.headerOrder[:ind+1]...)
	newOrder = append(newOrder, header)
	newOrder = append(newOrder, hs.headerOrder[ind+1:]...)
	hs.headerOrder = newOrder
	hs.cache(header)
}

// ReplaceHeader replaces the first header with the same name, or appends if absent.
func (hs *headers) ReplaceHeader(header Header) {
	nameLower := HeaderToLower(header.Name())
	for i, h := range hs.headerOrder {
		if HeaderToLower(h.Name()) == nameLower {
			hs.headerOrder[i] = header
			hs.cache(header)
			return
		}
	}
	hs.AppendHeader(header)
}

// Headers returns all headers in wire order.
func (hs *headers) Headers() []Header {
	return hs.headerOrder
}

// GetHeaders returns all headers matching name, in wire order.
func (hs *headers) GetHeaders(name string) []Header {
	nameLower := HeaderToLower(name)
	var hds []Header
	for _, h := range hs.headerOrder {
		if HeaderToLower(h.Name()) == nameLower {
			hds = append(hds, h)
		}
	}
	return hds
}

// GetHeader returns the first header matching name, or nil.
func (hs *headers) GetHeader(name string) Header {
	return hs.getHeader(HeaderToLower(name))
}

func (hs *headers) getHeader(nameLower string) Header {
	for _, h := range hs.headerOrder {
		if HeaderToLower(h.Name()) == nameLower {
			return h
		}
	}
	return nil
}

// RemoveHeader removes the first header matching name.
func (hs *headers) RemoveHeader(name string) {
	nameLower := HeaderToLower(name)
	for idx, h := range hs.headerOrder {
		if HeaderToLower(h.Name()) == nameLower {
			hs.headerOrder = append(hs.headerOrder[:idx], hs.headerOrder[idx+1:]...)
			break
		}
	}
}

// CloneHeaders returns all headers cloned, in wire order.
func (hs *headers) CloneHeaders() []Header {
	hdrs := make([]Header, 0, len(hs.headerOrder))
	for _, h := range hs.headerOrder {
		hdrs = append(hdrs, h.headerClone())
	}
	return hdrs
}

func (hs *headers) CallID() *CallIDHeader             { return hs.callID }
func (hs *headers) Via() *ViaHeader                    { return hs.via }
func (hs *headers) From() *FromHeader                  { return hs.from }
func (hs *headers) To() *ToHeader                      { return hs.to }
func (hs *headers) CSeq() *CSeqHeader                  { return hs.cseq }
func (hs *headers) ContentLength() *ContentLengthHeader { return hs.contentLength }
func (hs *headers) ContentType() *ContentTypeHeader    { return hs.contentType }
func (hs *headers) Contact() *ContactHeader            { return hs.contact }
func (hs *headers) Route() *RouteHeader                { return hs.route }
func (hs *headers) RecordRoute() *RecordRouteHeader    { return hs.recordRoute }

// CopyHeaders clones every header named name from one message to another, preserving order.
func CopyHeaders(name string, from, to Message) {
	for _, h := range from.GetHeaders(name) {
		to.AppendHeader(h.headerClone())
	}
}

// GenericHeader carries a header this package does not natively model, transparently.
type GenericHeader struct {
	HeaderName string
	Contents   string
}

// NewHeader builds a GenericHeader from a raw name/value pair.
func NewHeader(name, value string) *GenericHeader {
	return &GenericHeader{HeaderName: name, Contents: value}
}

func (h *GenericHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}

func (h *GenericHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	buffer.WriteString(h.Value())
}

func (h *GenericHeader) Name() string  { return h.HeaderName }
func (h *GenericHeader) Value() string { return h.Contents }

func (h *GenericHeader) headerClone() Header {
	if h == nil {
		return (*GenericHeader)(nil)
	}
	return &GenericHeader{HeaderName: h.HeaderName, Contents: h.Contents}
}

// ToHeader is the 'To' header (RFC 3261 20.39).
type ToHeader struct {
	DisplayName string
	Address     Uri
	Params      HeaderParams
}

func (h *ToHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}

func (h *ToHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	h.ValueStringWrite(buffer)
}

func (h *ToHeader) Name() string { return "To" }

func (h *ToHeader) Value() string {
	var b strings.Builder
	h.ValueStringWrite(&b)
	return b.String()
}

func (h *ToHeader) ValueStringWrite(buffer io.StringWriter) {
	if h.DisplayName != "" {
		buffer.WriteString("\"")
		buffer.WriteString(h.DisplayName)
		buffer.WriteString("\" ")
	}
	buffer.WriteString("<")
	h.Address.StringWrite(buffer)
	buffer.WriteString(">")
	if h.Params.Length() > 0 {
		buffer.WriteString(";")
		h.Params.ToStringWrite(';', buffer)
	}
}

// Tag returns the To tag param, if present.
func (h *ToHeader) Tag() (string, bool) { return h.Params.Get("tag") }

func (h *ToHeader) headerClone() Header {
	if h == nil {
		return (*ToHeader)(nil)
	}
	return &ToHeader{DisplayName: h.DisplayName, Address: *h.Address.Clone(), Params: h.Params.Clone()}
}

// FromHeader is the 'From' header (RFC 3261 20.20).
type FromHeader struct {
	DisplayName string
	Address     Uri
	Params      HeaderParams
}

func (h *FromHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}

func (h *FromHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	h.ValueStringWrite(buffer)
}

func (h *FromHeader) Name() string { return "From" }

func (h *FromHeader) Value() string {
	var b strings.Builder
	h.ValueStringWrite(&b)
	return b.String()
}

func (h *FromHeader) ValueStringWrite(buffer io.StringWriter) {
	if h.DisplayName != "" {
		buffer.WriteString("\"")
		buffer.WriteString(h.DisplayName)
		buffer.WriteString("\" ")
	}
	buffer.WriteString("<")
	h.Address.StringWrite(buffer)
	buffer.WriteString(">")
	if h.Params.Length() > 0 {
		buffer.WriteString(";")
		h.Params.ToStringWrite(';', buffer)
	}
}

// Tag returns the From tag param, if present.
func (h *FromHeader) Tag() (string, bool) { return h.Params.Get("tag") }

func (h *FromHeader) headerClone() Header {
	if h == nil {
		return (*FromHeader)(nil)
	}
	return &FromHeader{DisplayName: h.DisplayName, Address: *h.Address.Clone(), Params: h.Params.Clone()}
}

// ContactHeader is the 'Contact' header (RFC 3261 20.10). Next chains
// additional contacts parsed from a single comma-separated header line.
type ContactHeader struct {
	DisplayName string
	Address     Uri
	Params      HeaderParams
	Next        *ContactHeader
}

func (h *ContactHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}

func (h *ContactHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	h.ValueStringWrite(buffer)
}

func (h *ContactHeader) Name() string { return "Contact" }

func (h *ContactHeader) Value() string {
	var b strings.Builder
	h.ValueStringWrite(&b)
	return b.String()
}

func (h *ContactHeader) ValueStringWrite(buffer io.StringWriter) {
	for hop := h; hop != nil; hop = hop.Next {
		hop.valueWrite(buffer)
		if hop.Next != nil {
			buffer.WriteString(", ")
		}
	}
}

func (h *ContactHeader) valueWrite(buffer io.StringWriter) {
	if h.Address.Wildcard {
		buffer.WriteString("*")
		return
	}
	if h.DisplayName != "" {
		buffer.WriteString("\"")
		buffer.WriteString(h.DisplayName)
		buffer.WriteString("\" ")
	}
	buffer.WriteString("<")
	h.Address.StringWrite(buffer)
	buffer.WriteString(">")
	if h.Params.Length() > 0 {
		buffer.WriteString(";")
		h.Params.ToStringWrite(';', buffer)
	}
}

func (h *ContactHeader) headerClone() Header { return h.Clone() }

func (h *ContactHeader) Clone() *ContactHeader {
	if h == nil {
		return nil
	}
	newCnt := h.cloneFirst()
	tail := newCnt
	for hop := h.Next; hop != nil; hop = hop.Next {
		tail.Next = hop.cloneFirst()
		tail = tail.Next
	}
	return newCnt
}

func (h *ContactHeader) cloneFirst() *ContactHeader {
	return &ContactHeader{DisplayName: h.DisplayName, Address: *h.Address.Clone(), Params: h.Params.Clone()}
}

// CallIDHeader is the 'Call-ID' header (RFC 3261 20.8).
type CallIDHeader string

func (h *CallIDHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}

func (h *CallIDHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	buffer.WriteString(h.Value())
}

func (h *CallIDHeader) Name() string  { return "Call-ID" }
func (h *CallIDHeader) Value() string { return string(*h) }

func (h *CallIDHeader) headerClone() Header {
	if h == nil {
		return (*CallIDHeader)(nil)
	}
	n := *h
	return &n
}

// CSeqHeader is the 'CSeq' header (RFC 3261 20.16).
type CSeqHeader struct {
	SeqNo      uint32
	MethodName RequestMethod
}

func (h *CSeqHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}

func (h *CSeqHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	h.ValueStringWrite(buffer)
}

func (h *CSeqHeader) Name() string { return "CSeq" }

func (h *CSeqHeader) Value() string {
	return fmt.Sprintf("%d %s", h.SeqNo, h.MethodName)
}

func (h *CSeqHeader) ValueStringWrite(buffer io.StringWriter) {
	buffer.WriteString(strconv.Itoa(int(h.SeqNo)))
	buffer.WriteString(" ")
	buffer.WriteString(string(h.MethodName))
}

func (h *CSeqHeader) headerClone() Header {
	if h == nil {
		return (*CSeqHeader)(nil)
	}
	return &CSeqHeader{SeqNo: h.SeqNo, MethodName: h.MethodName}
}

// MaxForwardsHeader is the 'Max-Forwards' header (RFC 3261 20.22).
type MaxForwardsHeader uint32

func (h *MaxForwardsHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}

func (h *MaxForwardsHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	buffer.WriteString(h.Value())
}

func (h *MaxForwardsHeader) Name() string  { return "Max-Forwards" }
func (h *MaxForwardsHeader) Value() string { return strconv.Itoa(int(*h)) }

func (h *MaxForwardsHeader) headerClone() Header {
	if h == nil {
		return (*MaxForwardsHeader)(nil)
	}
	n := *h
	return &n
}

// ExpiresHeader is the 'Expires' header (RFC 3261 20.19).
type ExpiresHeader uint32

func (h *ExpiresHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}

func (h *ExpiresHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	buffer.WriteString(h.Value())
}

func (h *ExpiresHeader) Name() string  { return "Expires" }
func (h *ExpiresHeader) Value() string { return strconv.Itoa(int(*h)) }

func (h *ExpiresHeader) headerClone() Header {
	if h == nil {
		return (*ExpiresHeader)(nil)
	}
	n := *h
	return &n
}

// ContentLengthHeader is the 'Content-Length' header (RFC 3261 20.14).
type ContentLengthHeader uint32

func (h *ContentLengthHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}

func (h *ContentLengthHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	buffer.WriteString(h.Value())
}

func (h *ContentLengthHeader) Name() string  { return "Content-Length" }
func (h *ContentLengthHeader) Value() string { return strconv.Itoa(int(*h)) }

func (h *ContentLengthHeader) headerClone() Header {
	if h == nil {
		return (*ContentLengthHeader)(nil)
	}
	n := *h
	return &n
}

// ContentTypeHeader is the 'Content-Type' header (RFC 3261 20.15).
type ContentTypeHeader string

func (h *ContentTypeHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}

func (h *ContentTypeHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	buffer.WriteString(h.Value())
}

func (h *ContentTypeHeader) Name() string  { return "Content-Type" }
func (h *ContentTypeHeader) Value() string { return string(*h) }

func (h *ContentTypeHeader) headerClone() Header {
	if h == nil {
		return (*ContentTypeHeader)(nil)
	}
	n := *h
	return &n
}

// ViaHeader is the 'Via' header (RFC 3261 20.42). Next chains additional
// hops parsed from a single comma-separated header line.
type ViaHeader struct {
	ProtocolName    string
	ProtocolVersion string
	Transport       string
	Host            string
	Port            int
	Params          HeaderParams
	Next            *ViaHeader
}

// SentBy renders "host[:port]" as used in the branch/received matching rules.
func (h *ViaHeader) SentBy() string {
	var buf bytes.Buffer
	buf.WriteString(h.Host)
	if h.Port > 0 {
		fmt.Fprintf(&buf, ":%d", h.Port)
	}
	return buf.String()
}

func (h *ViaHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}

func (h *ViaHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	h.ValueStringWrite(buffer)
}

func (h *ViaHeader) Name() string { return "Via" }

func (h *ViaHeader) Value() string {
	var b strings.Builder
	h.ValueStringWrite(&b)
	return b.String()
}

func (h *ViaHeader) ValueStringWrite(buffer io.StringWriter) {
	for hop := h; hop != nil; hop = hop.Next {
		buffer.WriteString(hop.ProtocolName)
		buffer.WriteString("/")
		buffer.WriteString(hop.ProtocolVersion)
		buffer.WriteString("/")
		buffer.WriteString(hop.Transport)
		buffer.WriteString(" ")
		buffer.WriteString(hop.Host)
		if hop.Port > 0 {
			buffer.WriteString(":")
			buffer.WriteString(strconv.Itoa(hop.Port))
		}
		if hop.Params.Length() > 0 {
			buffer.WriteString(";")
			hop.Params.ToStringWrite(';', buffer)
		}
		if hop.Next != nil {
			buffer.WriteString(", ")
		}
	}
}

func (h *ViaHeader) headerClone() Header { return h.Clone() }

func (h *ViaHeader) Clone() *ViaHeader {
	if h == nil {
		return nil
	}
	newHop := h.cloneFirst()
	tail := newHop
	for hop := h.Next; hop != nil; hop = hop.Next {
		tail.Next = hop.cloneFirst()
		tail = tail.Next
	}
	return newHop
}

func (h *ViaHeader) cloneFirst() *ViaHeader {
	return &ViaHeader{
		ProtocolName:    h.ProtocolName,
		ProtocolVersion: h.ProtocolVersion,
		Transport:       h.Transport,
		Host:            h.Host,
		Port:            h.Port,
		Params:          h.Params.Clone(),
	}
}

// RouteHeader is the 'Route' header (RFC 3261 20.34). Next chains
// additional route hops from one comma-separated header line.
type RouteHeader struct {
	Address Uri
	Next    *RouteHeader
}

func (h *RouteHeader) Name() string { return "Route" }

func (h *RouteHeader) Value() string {
	var b strings.Builder
	h.ValueStringWrite(&b)
	return b.String()
}

func (h *RouteHeader) ValueStringWrite(buffer io.StringWriter) {
	for hop := h; hop != nil; hop = hop.Next {
		buffer.WriteString("<")
		hop.Address.StringWrite(buffer)
		buffer.WriteString(">")
		if hop.Next != nil {
			buffer.WriteString(", ")
		}
	}
}

func (h *RouteHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}

func (h *RouteHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	h.ValueStringWrite(buffer)
}

func (h *RouteHeader) headerClone() Header { return h.Clone() }

func (h *RouteHeader) Clone() *RouteHeader {
	if h == nil {
		return nil
	}
	newRoute := &RouteHeader{Address: *h.Address.Clone()}
	tail := newRoute
	for hop := h.Next; hop != nil; hop = hop.Next {
		tail.Next = &RouteHeader{Address: *hop.Address.Clone()}
		tail = tail.Next
	}
	return newRoute
}

// RecordRouteHeader is the 'Record-Route' header (RFC 3261 20.30).
type RecordRouteHeader struct {
	Address Uri
	Next    *RecordRouteHeader
}

func (h *RecordRouteHeader) Name() string { return "Record-Route" }

func (h *RecordRouteHeader) Value() string {
	var b strings.Builder
	h.ValueStringWrite(&b)
	return b.String()
}

func (h *RecordRouteHeader) ValueStringWrite(buffer io.StringWriter) {
	for hop := h; hop != nil; hop = hop.Next {
		buffer.WriteString("<")
		hop.Address.StringWrite(buffer)
		buffer.WriteString(">")
		if hop.Next != nil {
			buffer.WriteString(", ")
		}
	}
}

func (h *RecordRouteHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}

func (h *RecordRouteHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	h.ValueStringWrite(buffer)
}

func (h *RecordRouteHeader) headerClone() Header { return h.Clone() }

func (h *RecordRouteHeader) Clone() *RecordRouteHeader {
	if h == nil {
		return nil
	}
	newRoute := &RecordRouteHeader{Address: *h.Address.Clone()}
	tail := newRoute
	for hop := h.Next; hop != nil; hop = hop.Next {
		tail.Next = &RecordRouteHeader{Address: *hop.Address.Clone()}
		tail = tail.Next
	}
	return newRoute
}

// UserAgentHeader is the 'User-Agent' header (RFC 3261 20.41).
type UserAgentHeader string

func (h *UserAgentHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}

func (h *UserAgentHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	buffer.WriteString(h.Value())
}

func (h *UserAgentHeader) Name() string { return "User-Agent" }

func (h *UserAgentHeader) Value() string {
	if h == nil {
		return ""
	}
	return string(*h)
}

func (h *UserAgentHeader) headerClone() Header {
	if h == nil {
		return (*UserAgentHeader)(nil)
	}
	n := *h
	return &n
}

// AllowHeader is the 'Allow' header (RFC 3261 20.5), a list of methods.
type AllowHeader []RequestMethod

func (h AllowHeader) Name() string { return "Allow" }

func (h AllowHeader) Value() string {
	methods := make([]string, len(h))
	for i, m := range h {
		methods[i] = string(m)
	}
	return strings.Join(methods, ", ")
}

func (h AllowHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}

func (h AllowHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	buffer.WriteString(h.Value())
}

func (h AllowHeader) headerClone() Header {
	return append(AllowHeader(nil), h...)
}

// SupportedHeader is the 'Supported' header (RFC 3261 20.37), a list of option tags.
type SupportedHeader []string

func (h SupportedHeader) Name() string  { return "Supported" }
func (h SupportedHeader) Value() string { return strings.Join(h, ", ") }

func (h SupportedHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}

func (h SupportedHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	buffer.WriteString(h.Value())
}

func (h SupportedHeader) headerClone() Header {
	return append(SupportedHeader(nil), h...)
}

// RequireHeader is the 'Require' header (RFC 3261 20.32), a list of option tags.
type RequireHeader []string

func (h RequireHeader) Name() string  { return "Require" }
func (h RequireHeader) Value() string { return strings.Join(h, ", ") }

func (h RequireHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}

func (h RequireHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	buffer.WriteString(h.Value())
}

func (h RequireHeader) headerClone() Header {
	return append(RequireHeader(nil), h...)
}

// RSeqHeader is the 'RSeq' header used by PRACK (RFC 3262 7.1).
type RSeqHeader uint32

func (h *RSeqHeader) Name() string  { return "RSeq" }
func (h *RSeqHeader) Value() string { return strconv.Itoa(int(*h)) }

func (h *RSeqHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}

func (h *RSeqHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	buffer.WriteString(h.Value())
}

func (h *RSeqHeader) headerClone() Header {
	if h == nil {
		return (*RSeqHeader)(nil)
	}
	n := *h
	return &n
}

// RAckHeader is the 'RAck' header used by PRACK (RFC 3262 7.2):
// "RAck: <RSeq-response> <CSeq-number> <CSeq-method>".
type RAckHeader struct {
	RSeq       uint32
	CSeq       uint32
	MethodName RequestMethod
}

func (h *RAckHeader) Name() string { return "RAck" }

func (h *RAckHeader) Value() string {
	return fmt.Sprintf("%d %d %s", h.RSeq, h.CSeq, h.MethodName)
}

func (h *RAckHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}

func (h *RAckHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	buffer.WriteString(h.Value())
}

func (h *RAckHeader) headerClone() Header {
	if h == nil {
		return (*RAckHeader)(nil)
	}
	n := *h
	return &n
}

// challengeHeader is shared rendering logic for WWW-Authenticate and
// Proxy-Authenticate (RFC 7616 3.3). Scheme holds whatever auth scheme
// token the header carried ("Digest" or any other); Params are its
// comma-separated auth-params.
type challengeHeader struct {
	name   string
	Scheme string
	Params HeaderParams
}

func (h *challengeHeader) Name() string { return h.name }

func (h *challengeHeader) Value() string {
	var b strings.Builder
	h.ValueStringWrite(&b)
	return b.String()
}

func (h *challengeHeader) ValueStringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Scheme)
	buffer.WriteString(" ")
	h.Params.ToStringWrite(',', buffer)
}

func (h *challengeHeader) String() string {
	var b strings.Builder
	buffer := &b
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	h.ValueStringWrite(buffer)
	return b.String()
}

func (h *challengeHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	h.ValueStringWrite(buffer)
}

// WWWAuthenticateHeader is the 'WWW-Authenticate' header (RFC 3261 20.44).
type WWWAuthenticateHeader struct{ challengeHeader }

func NewWWWAuthenticateHeader(scheme string, params HeaderParams) *WWWAuthenticateHeader {
	return &WWWAuthenticateHeader{challengeHeader{name: "WWW-Authenticate", Scheme: scheme, Params: params}}
}

func (h *WWWAuthenticateHeader) headerClone() Header {
	if h == nil {
		return (*WWWAuthenticateHeader)(nil)
	}
	return &WWWAuthenticateHeader{challengeHeader{name: h.name, Scheme: h.Scheme, Params: h.Params.Clone()}}
}

// ProxyAuthenticateHeader is the 'Proxy-Authenticate' header (RFC 3261 20.27).
type ProxyAuthenticateHeader struct{ challengeHeader }

func NewProxyAuthenticateHeader(scheme string, params HeaderParams) *ProxyAuthenticateHeader {
	return &ProxyAuthenticateHeader{challengeHeader{name: "Proxy-Authenticate", Scheme: scheme, Params: params}}
}

func (h *ProxyAuthenticateHeader) headerClone() Header {
	if h == nil {
		return (*ProxyAuthenticateHeader)(nil)
	}
	return &ProxyAuthenticateHeader{challengeHeader{name: h.name, Scheme: h.Scheme, Params: h.Params.Clone()}}
}

// credentialsHeader is shared rendering logic for Authorization and
// Proxy-Authorization (RFC 7616 3.4).
type credentialsHeader struct {
	name   string
	Scheme string
	Params HeaderParams
}

func (h *credentialsHeader) Name() string { return h.name }

func (h *credentialsHeader) Value() string {
	var b strings.Builder
	h.ValueStringWrite(&b)
	return b.String()
}

func (h *credentialsHeader) ValueStringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Scheme)
	buffer.WriteString(" ")
	h.Params.ToStringWrite(',', buffer)
}

func (h *credentialsHeader) String() string {
	var b strings.Builder
	buffer := &b
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	h.ValueStringWrite(buffer)
	return b.String()
}

func (h *credentialsHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString(h.Name())
	buffer.WriteString(": ")
	h.ValueStringWrite(buffer)
}

// AuthorizationHeader is the 'Authorization' header (RFC 3261 20.7).
type AuthorizationHeader struct{ credentialsHeader }

func NewAuthorizationHeader(scheme string, params HeaderParams) *AuthorizationHeader {
	return &AuthorizationHeader{credentialsHeader{name: "Authorization", Scheme: scheme, Params: params}}
}

func (h *AuthorizationHeader) headerClone() Header {
	if h == nil {
		return (*AuthorizationHeader)(nil)
	}
	return &AuthorizationHeader{credentialsHeader{name: h.name, Scheme: h.Scheme, Params: h.Params.Clone()}}
}

// ProxyAuthorizationHeader is the 'Proxy-Authorization' header (RFC 3261 20.28).
type ProxyAuthorizationHeader struct{ credentialsHeader }

func NewProxyAuthorizationHeader(scheme string, params HeaderParams) *ProxyAuthorizationHeader {
	return &ProxyAuthorizationHeader{credentialsHeader{name: "Proxy-Authorization", Scheme: scheme, Params: params}}
}

func (h *ProxyAuthorizationHeader) headerClone() Header {
	if h == nil {
		return (*ProxyAuthorizationHeader)(nil)
	}
	return &ProxyAuthorizationHeader{credentialsHeader{name: h.name, Scheme: h.Scheme, Params: h.Params.Clone()}}
}
