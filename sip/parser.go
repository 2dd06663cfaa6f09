package sip

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxCseq is the maximum permissible CSeq number (RFC 3261 8.1.1.5): 2**31-1.
const maxCseq = 2147483647

var (
	ErrParseLineNoCRLF     = fmt.Errorf("%w: line has no CRLF", ErrMalformed)
	ErrParseInvalidMessage = fmt.Errorf("%w: invalid SIP message", ErrMalformed)
)

var bufReader = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// ParseMessage parses one complete SIP message using a throwaway default Parser.
func ParseMessage(msgData []byte) (Message, error) {
	return NewParser().ParseSIP(msgData)
}

// HeaderParser turns one header's raw text into a Header. name is the
// lowercased header name; HeaderToLower expands the compact forms i, m, c
// and l to their long names, while v, f, t and k arrive as written.
type HeaderParser func(name, text string) (Header, error)

// headerParsers is the default registry, keyed on the lowercased long and
// compact header names (RFC 3261 7.3.3).
var headerParsers = map[string]HeaderParser{
	"via":                 headerParserVia,
	"v":                   headerParserVia,
	"from":                headerParserFrom,
	"f":                   headerParserFrom,
	"to":                  headerParserTo,
	"t":                   headerParserTo,
	"contact":             headerParserContact,
	"m":                   headerParserContact,
	"call-id":             headerParserCallID,
	"i":                   headerParserCallID,
	"cseq":                headerParserCSeq,
	"max-forwards":        headerParserMaxForwards,
	"content-length":      headerParserContentLength,
	"l":                   headerParserContentLength,
	"content-type":        headerParserContentType,
	"c":                   headerParserContentType,
	"route":               headerParserRoute,
	"record-route":        headerParserRecordRoute,
	"expires":             headerParserExpires,
	"www-authenticate":    headerParserWWWAuthenticate,
	"proxy-authenticate":  headerParserProxyAuthenticate,
	"authorization":       headerParserAuthorization,
	"proxy-authorization": headerParserProxyAuthorization,
	"allow":               headerParserAllow,
	"supported":           headerParserSupported,
	"k":                   headerParserSupported,
	"require":             headerParserRequire,
	"rseq":                headerParserRSeq,
	"rack":                headerParserRAck,
	"user-agent":          headerParserUserAgent,
}

// DefaultHeaderParsers returns the built-in registry, for callers building
// a ParserOption that extends it.
func DefaultHeaderParsers() map[string]HeaderParser {
	return headerParsers
}

// Parser turns wire bytes into Message values.
type Parser struct {
	log            zerolog.Logger
	headerParsers  map[string]HeaderParser
}

type ParserOption func(p *Parser)

func NewParser(options ...ParserOption) *Parser {
	p := &Parser{
		log:           log.Logger,
		headerParsers: headerParsers,
	}
	for _, o := range options {
		o(p)
	}
	return p
}

func WithParserLogger(logger zerolog.Logger) ParserOption {
	return func(p *Parser) { p.log = logger }
}

// WithHeaderParsers overrides the header parser registry. Add entries only
// for headers that appear in nearly every message; anything else still
// round-trips fine as a GenericHeader.
func WithHeaderParsers(m map[string]HeaderParser) ParserOption {
	return func(p *Parser) { p.headerParsers = m }
}

// ParseSIP parses one complete SIP message. data must contain the full
// message, headers and body included (the stream framer is responsible
// for that invariant on connection-oriented transports).
func (p *Parser) ParseSIP(data []byte) (Message, error) {
	reader := bufReader.Get().(*bytes.Buffer)
	defer bufReader.Put(reader)
	reader.Reset()
	reader.Write(data)

	startLine, err := nextLine(reader)
	if err != nil {
		return nil, err
	}

	msg, err := ParseLine(startLine)
	if err != nil {
		return nil, err
	}

	var pending string
	for {
		line, err := nextLine(reader)
		if err != nil {
			if err == io.EOF {
				return nil, ErrParseInvalidMessage
			}
			return nil, err
		}
		// RFC 3261 7.3.1: a line starting with whitespace continues the
		// previous header's value.
		if pending != "" && len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
			pending += " " + strings.TrimSpace(line)
			continue
		}
		if pending != "" {
			if err := p.parseHeaderLine(msg, pending); err != nil {
				p.log.Debug().Err(err).Str("line", pending).Msg("sip: skipping unparsable header")
			}
		}
		if len(line) == 0 {
			break
		}
		pending = line
	}

	contentLength := getBodyLength(data)
	if contentLength <= 0 {
		return msg, nil
	}

	body := make([]byte, contentLength)
	n, err := io.ReadFull(reader, body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %s", ErrMalformed, err)
	}
	if n != contentLength {
		return nil, fmt.Errorf("%w: incomplete body: read %d of %d bytes", ErrMalformed, n, contentLength)
	}
	msg.SetBody(body)
	return msg, nil
}

func (p *Parser) parseHeaderLine(msg Message, line string) error {
	colon := strings.IndexByte(line, ':')
	if colon == -1 {
		return fmt.Errorf("%w: header with no colon: %q", ErrMalformed, line)
	}

	name := strings.TrimSpace(line[:colon])
	nameLower := HeaderToLower(name)
	value := strings.TrimSpace(line[colon+1:])

	parse, ok := p.headerParsers[nameLower]
	if !ok {
		msg.AppendHeader(NewHeader(name, value))
		return nil
	}

	h, err := parse(nameLower, value)
	if err != nil {
		return err
	}
	msg.AppendHeader(h)
	return nil
}

// NewSIPStream returns a stream-oriented parser for one connection.
func (p *Parser) NewSIPStream() *ParserStream {
	return &ParserStream{parser: p}
}

// ParseLine parses just the Request-Line or Status-Line into an empty
// Request/Response shell (no headers, no body).
func ParseLine(startLine string) (Message, error) {
	if isRequest(startLine) {
		var recipient Uri
		method, sipVersion, err := ParseRequestLine(startLine, &recipient)
		if err != nil {
			return nil, err
		}
		m := NewRequest(method, recipient)
		m.SipVersion = sipVersion
		return m, nil
	}

	if isResponse(startLine) {
		sipVersion, statusCode, reason, err := ParseStatusLine(startLine)
		if err != nil {
			return nil, err
		}
		m := NewResponse(statusCode, reason)
		m.SipVersion = sipVersion
		return m, nil
	}

	return nil, fmt.Errorf("%w: not a SIP start line: %q", ErrMalformed, startLine)
}

// nextLine reads one CRLF-terminated line, consuming the CRLF.
func nextLine(reader *bytes.Buffer) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return line, err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return line, ErrParseLineNoCRLF
	}
	return line[:len(line)-2], nil
}

// getBodyLength returns how many bytes of data follow the header/body
// separator, or -1 if no separator is present yet.
func getBodyLength(data []byte) int {
	idx := bytes.Index(data, []byte("\r\n\r\n"))
	if idx == -1 {
		return -1
	}
	return len(data) - (idx + 4)
}

// isRequest is a cheap heuristic: exactly two spaces and a trailing SIP version.
func isRequest(startLine string) bool {
	ind := strings.IndexByte(startLine, ' ')
	if ind <= 0 {
		return false
	}
	ind1 := strings.IndexByte(startLine[ind+1:], ' ')
	if ind1 <= 0 {
		return false
	}
	part2 := startLine[ind+1+ind1+1:]
	if strings.IndexByte(part2, ' ') >= 0 {
		return false
	}
	return len(part2) >= 3 && UriIsSIP(part2[:3])
}

// isResponse is a cheap heuristic: starts with "SIP" and has at least two spaces.
func isResponse(startLine string) bool {
	ind := strings.IndexByte(startLine, ' ')
	if ind <= 0 {
		return false
	}
	ind1 := strings.IndexByte(startLine[ind+1:], ' ')
	if ind1 <= 0 {
		return false
	}
	return len(startLine) >= 3 && UriIsSIP(startLine[:3])
}

// ParseRequestLine parses "METHOD Request-URI SIP/2.0".
func ParseRequestLine(requestLine string, recipient *Uri) (method RequestMethod, sipVersion string, err error) {
	parts := strings.SplitN(requestLine, " ", 3)
	if len(parts) != 3 {
		return "", "", fmt.Errorf("%w: request line must have 2 spaces: %q", ErrMalformed, requestLine)
	}

	method = RequestMethod(strings.ToUpper(parts[0]))
	if err := ParseUri(parts[1], recipient); err != nil {
		return "", "", err
	}
	sipVersion = parts[2]

	if recipient.Wildcard {
		return "", "", fmt.Errorf("%w: wildcard URI not permitted in request line", ErrMalformed)
	}
	return method, sipVersion, nil
}

// ParseStatusLine parses "SIP/2.0 200 OK".
func ParseStatusLine(statusLine string) (sipVersion string, statusCode int, reasonPhrase string, err error) {
	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 3 {
		return "", 0, "", fmt.Errorf("%w: status line has too few spaces: %q", ErrMalformed, statusLine)
	}

	sipVersion = parts[0]
	code, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return "", 0, "", fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	return sipVersion, int(code), parts[2], nil
}

func headerParserCallID(name, text string) (Header, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty Call-ID", ErrMalformed)
	}
	h := CallIDHeader(text)
	return &h, nil
}

func headerParserMaxForwards(name, text string) (Header, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(text), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: Max-Forwards: %s", ErrMalformed, err)
	}
	h := MaxForwardsHeader(v)
	return &h, nil
}

func headerParserExpires(name, text string) (Header, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(text), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: Expires: %s", ErrMalformed, err)
	}
	h := ExpiresHeader(v)
	return &h, nil
}

func headerParserCSeq(name, text string) (Header, error) {
	ind := strings.IndexByte(text, ' ')
	if ind < 1 || len(text)-ind < 2 {
		return nil, fmt.Errorf("%w: CSeq must have one whitespace section: %q", ErrMalformed, text)
	}
	seqno, err := strconv.ParseUint(text[:ind], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	if seqno > maxCseq {
		return nil, fmt.Errorf("%w: CSeq %d exceeds 2**31-1", ErrMalformed, seqno)
	}
	return &CSeqHeader{SeqNo: uint32(seqno), MethodName: RequestMethod(text[ind+1:])}, nil
}

func headerParserContentLength(name, text string) (Header, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(text), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: Content-Length: %s", ErrMalformed, err)
	}
	h := ContentLengthHeader(v)
	return &h, nil
}

func headerParserContentType(name, text string) (Header, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty Content-Type", ErrMalformed)
	}
	h := ContentTypeHeader(text)
	return &h, nil
}

func headerParserUserAgent(name, text string) (Header, error) {
	h := UserAgentHeader(strings.TrimSpace(text))
	return &h, nil
}

func headerParserAllow(name, text string) (Header, error) {
	var h AllowHeader
	for _, m := range strings.Split(text, ",") {
		m = strings.TrimSpace(m)
		if m != "" {
			h = append(h, RequestMethod(strings.ToUpper(m)))
		}
	}
	return h, nil
}

func headerParserSupported(name, text string) (Header, error) {
	var h SupportedHeader
	for _, tag := range strings.Split(text, ",") {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			h = append(h, tag)
		}
	}
	return h, nil
}

func headerParserRequire(name, text string) (Header, error) {
	var h RequireHeader
	for _, tag := range strings.Split(text, ",") {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			h = append(h, tag)
		}
	}
	return h, nil
}

func headerParserRSeq(name, text string) (Header, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(text), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: RSeq: %s", ErrMalformed, err)
	}
	h := RSeqHeader(v)
	return &h, nil
}

func headerParserRAck(name, text string) (Header, error) {
	parts := strings.SplitN(strings.TrimSpace(text), " ", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: RAck must have 3 fields: %q", ErrMalformed, text)
	}
	rseq, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	cseq, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	return &RAckHeader{RSeq: uint32(rseq), CSeq: uint32(cseq), MethodName: RequestMethod(parts[2])}, nil
}

func parseChallengeParams(text string) (scheme string, params HeaderParams, err error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(text), " ")
	if !ok {
		return "", HeaderParams{}, fmt.Errorf("%w: missing auth scheme: %q", ErrMalformed, text)
	}
	params = NewParams()
	if _, err := UnmarshalParams(rest, ',', 0, &params); err != nil {
		return "", HeaderParams{}, err
	}
	return scheme, params, nil
}

func headerParserWWWAuthenticate(name, text string) (Header, error) {
	scheme, params, err := parseChallengeParams(text)
	if err != nil {
		return nil, err
	}
	return NewWWWAuthenticateHeader(scheme, params), nil
}

func headerParserProxyAuthenticate(name, text string) (Header, error) {
	scheme, params, err := parseChallengeParams(text)
	if err != nil {
		return nil, err
	}
	return NewProxyAuthenticateHeader(scheme, params), nil
}

func headerParserAuthorization(name, text string) (Header, error) {
	scheme, params, err := parseChallengeParams(text)
	if err != nil {
		return nil, err
	}
	return NewAuthorizationHeader(scheme, params), nil
}

func headerParserProxyAuthorization(name, text string) (Header, error) {
	scheme, params, err := parseChallengeParams(text)
	if err != nil {
		return nil, err
	}
	return NewProxyAuthorizationHeader(scheme, params), nil
}
