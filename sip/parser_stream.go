package sip

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// MaxStreamMessageLength bounds how large a single buffered message may grow
// before ParserStream gives up, so a peer sending an endless header section
// over TCP/TLS/WS cannot pin memory.
const MaxStreamMessageLength = 1 << 20 // 1 MiB

var ErrMessageTooLarge = fmt.Errorf("%w: message exceeds stream limit", ErrMalformed)

var streamBufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// ParserStream frames SIP messages out of a connection-oriented transport
// (TCP, TLS, WS, WSS), where message boundaries are not implied by datagram
// boundaries the way they are for UDP. One ParserStream belongs to exactly
// one connection.
type ParserStream struct {
	parser *Parser
	buf    *bytes.Buffer
}

func (p *ParserStream) buffer() *bytes.Buffer {
	if p.buf == nil {
		p.buf = streamBufPool.Get().(*bytes.Buffer)
		p.buf.Reset()
	}
	return p.buf
}

// Write appends newly read bytes to the stream buffer.
func (p *ParserStream) Write(data []byte) (int, error) {
	p.buffer().Write(data)
	return len(data), nil
}

// Reset discards any buffered partial message.
func (p *ParserStream) Reset() {
	if p.buf != nil {
		p.buf.Reset()
	}
}

// Close releases the stream's buffer back to the pool. Call once when the
// connection closes.
func (p *ParserStream) Close() {
	buf := p.buf
	p.buf = nil
	if buf != nil {
		streamBufPool.Put(buf)
	}
}

// ParseSIPStream drains as many complete messages as are currently buffered,
// invoking cb for each in arrival order. When the buffer holds only a
// partial message it returns nil and keeps those bytes buffered, so the
// next Write and call can complete it.
func (p *ParserStream) ParseSIPStream(data []byte, cb func(msg Message)) error {
	if _, err := p.Write(data); err != nil {
		return err
	}
	for {
		msg, n, err := p.ParseNext()
		if err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
		_ = n
		cb(msg)
	}
}

// ParseNext extracts and parses one complete message from the buffer, if
// one is fully present. It returns io.ErrUnexpectedEOF if more data is
// needed.
func (p *ParserStream) ParseNext() (Message, int, error) {
	buf := p.buffer()
	data := buf.Bytes()

	headerEnd := bytes.Index(data, []byte("\r\n\r\n"))
	if headerEnd == -1 {
		if buf.Len() > MaxStreamMessageLength {
			return nil, 0, ErrMessageTooLarge
		}
		return nil, 0, io.ErrUnexpectedEOF
	}

	contentLength, err := scanContentLength(data[:headerEnd])
	if err != nil {
		// No usable Content-Length: RFC 3261 7.5 requires one on stream
		// transports, but a malformed peer gets discarded rather than
		// wedging the connection forever.
		buf.Next(headerEnd + 4)
		return nil, 0, fmt.Errorf("%w: stream message missing Content-Length", ErrMalformed)
	}

	total := headerEnd + 4 + contentLength
	if buf.Len() < total {
		if total > MaxStreamMessageLength {
			return nil, 0, ErrMessageTooLarge
		}
		return nil, 0, io.ErrUnexpectedEOF
	}

	raw := make([]byte, total)
	copy(raw, data[:total])
	buf.Next(total)

	msg, err := p.parser.ParseSIP(raw)
	if err != nil {
		return nil, total, err
	}
	return msg, total, nil
}

// scanContentLength finds the Content-Length header within a raw header
// block without running the full header-parser registry, since the stream
// framer only needs the wire length, not a typed header.
func scanContentLength(header []byte) (int, error) {
	for _, line := range bytes.Split(header, []byte("\r\n")) {
		s := string(line)
		name, value, ok := strings.Cut(s, ":")
		if !ok {
			continue
		}
		switch HeaderToLower(strings.TrimSpace(name)) {
		case "content-length", "l":
			n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
			if err != nil {
				return 0, fmt.Errorf("%w: Content-Length: %s", ErrMalformed, err)
			}
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("%w: no Content-Length header", ErrMalformed)
}
