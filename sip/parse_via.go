package sip

import (
	"fmt"
	"strconv"
	"strings"
)

// headerParserVia parses a Via header (RFC 3261 20.42). A single header
// line may carry multiple comma-separated hops; these are NOT separate
// logical headers, so they chain through ViaHeader.Next.
func headerParserVia(headerName, headerText string) (Header, error) {
	var head, tail *ViaHeader
	for _, hop := range splitTopLevel(headerText) {
		hop = strings.TrimSpace(hop)
		if hop == "" {
			continue
		}
		h := &ViaHeader{Params: NewParams()}
		if err := parseViaHop(hop, h); err != nil {
			return nil, err
		}
		if head == nil {
			head, tail = h, h
		} else {
			tail.Next = h
			tail = h
		}
	}
	if head == nil {
		return nil, fmt.Errorf("%w: empty Via header", ErrMalformed)
	}
	return head, nil
}

// parseViaHop parses "SIP/2.0/UDP host:port;params" for a single hop.
func parseViaHop(s string, h *ViaHeader) error {
	i := strings.IndexByte(s, '/')
	if i < 0 {
		return fmt.Errorf("%w: malformed Via protocol name", ErrMalformed)
	}
	h.ProtocolName = strings.TrimSpace(s[:i])
	s = s[i+1:]

	i = strings.IndexByte(s, '/')
	if i < 0 {
		return fmt.Errorf("%w: malformed Via protocol version", ErrMalformed)
	}
	h.ProtocolVersion = strings.TrimSpace(s[:i])
	s = s[i+1:]

	i = strings.IndexAny(s, " \t")
	if i < 0 {
		return fmt.Errorf("%w: malformed Via transport", ErrMalformed)
	}
	h.Transport = strings.ToUpper(strings.TrimSpace(s[:i]))
	s = strings.TrimLeft(s[i+1:], " \t")

	sentBy, params, hasParams := strings.Cut(s, ";")
	sentBy = strings.TrimSpace(sentBy)
	if host, portStr, ok := strings.Cut(sentBy, ":"); ok {
		h.Host = host
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("%w: malformed Via port: %s", ErrMalformed, err)
		}
		h.Port = port
	} else {
		h.Host = sentBy
	}

	if hasParams {
		if _, err := UnmarshalParams(params, ';', 0, &h.Params); err != nil {
			return err
		}
	}
	return nil
}
