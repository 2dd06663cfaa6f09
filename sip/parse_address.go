package sip

import (
	"fmt"
	"strings"
)

// ParseAddressValue parses a single name-addr / addr-spec, such as found in
// a From, To, or Contact header (RFC 3261 20.10). It does not accept a
// comma-separated list of addresses; splitTopLevel handles that first.
func ParseAddressValue(addressText string, uri *Uri, headerParams *HeaderParams) (displayName string, err error) {
	var semicolon, equal, startQuote, endQuote int = -1, -1, -1, -1
	var name string
	var uriStart, uriEnd int = 0, -1
	var inBrackets, inQuotesParamValue bool

	for i, c := range addressText {
		if inQuotesParamValue {
			if c == '"' {
				inQuotesParamValue = false
			}
			continue
		}

		switch c {
		case '"':
			if equal > 0 {
				inQuotesParamValue = true
				continue
			}
			if startQuote < 0 {
				startQuote = i
			} else {
				endQuote = i
			}
		case '<':
			if uriStart > 0 {
				continue
			}
			if endQuote > 0 {
				displayName = addressText[startQuote+1 : endQuote]
				startQuote, endQuote = -1, -1
			} else {
				displayName = strings.TrimSpace(addressText[:i])
			}
			uriStart = i + 1
			inBrackets = true
		case '>':
			uriEnd = i
			equal = -1
			semicolon = -1
			inBrackets = false
		case ';':
			if inBrackets {
				semicolon = i
				continue
			}
			if uriEnd < 0 {
				uriEnd = i
				semicolon = i
				continue
			}
			if headerParams != nil {
				if equal > 0 {
					headerParams.Add(name, addressText[equal+1:i])
				} else if semicolon > 0 {
					name = addressText[semicolon+1 : i]
					headerParams.Add(name, "")
				}
			}
			name = ""
			equal = 0
			semicolon = i
		case '=':
			name = addressText[semicolon+1 : i]
			equal = i
		case '*':
			if startQuote > 0 || uriStart > 0 {
				continue
			}
			*uri = Uri{Wildcard: true, Host: "*"}
			return "", nil
		}
	}

	if uriEnd < 0 {
		uriEnd = len(addressText)
	}
	if uriStart > uriEnd {
		return "", fmt.Errorf("%w: malformed address %q", ErrMalformed, addressText)
	}

	if err := ParseUri(addressText[uriStart:uriEnd], uri); err != nil {
		return "", err
	}

	if headerParams != nil && equal > 0 {
		headerParams.Add(name, addressText[equal+1:])
	}

	return displayName, nil
}

// splitTopLevel splits a comma-separated header value on commas that are
// not inside <...> or "...", used for the multi-valued Contact/Route/
// Record-Route/Via header grammars.
func splitTopLevel(s string) []string {
	var parts []string
	inBrackets, inQuotes := false, false
	start := 0
	for i, c := range s {
		switch c {
		case '"':
			inQuotes = !inQuotes
		case '<':
			if !inQuotes {
				inBrackets = true
			}
		case '>':
			if !inQuotes {
				inBrackets = false
			}
		case ',':
			if !inQuotes && !inBrackets {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func headerParserTo(headerName, headerText string) (Header, error) {
	h := &ToHeader{Params: NewParams()}
	displayName, err := ParseAddressValue(headerText, &h.Address, &h.Params)
	if err != nil {
		return nil, err
	}
	h.DisplayName = displayName
	if h.Address.Wildcard {
		return nil, fmt.Errorf("%w: wildcard URI not permitted in To header", ErrMalformed)
	}
	return h, nil
}

func headerParserFrom(headerName, headerText string) (Header, error) {
	h := &FromHeader{Params: NewParams()}
	displayName, err := ParseAddressValue(headerText, &h.Address, &h.Params)
	if err != nil {
		return nil, err
	}
	h.DisplayName = displayName
	if h.Address.Wildcard {
		return nil, fmt.Errorf("%w: wildcard URI not permitted in From header", ErrMalformed)
	}
	return h, nil
}

func headerParserContact(headerName, headerText string) (Header, error) {
	var head, tail *ContactHeader
	for _, part := range splitTopLevel(headerText) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		h := &ContactHeader{Params: NewParams()}
		displayName, err := ParseAddressValue(part, &h.Address, &h.Params)
		if err != nil {
			return nil, err
		}
		h.DisplayName = displayName
		if head == nil {
			head, tail = h, h
		} else {
			tail.Next = h
			tail = h
		}
	}
	if head == nil {
		return nil, fmt.Errorf("%w: empty Contact header", ErrMalformed)
	}
	return head, nil
}

func headerParserRoute(headerName, headerText string) (Header, error) {
	var head, tail *RouteHeader
	for _, part := range splitTopLevel(headerText) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		h := &RouteHeader{}
		if _, err := ParseAddressValue(part, &h.Address, nil); err != nil {
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
		return nil, fmt.Errorf("%w: empty Route header", ErrMalformed)
	}
	return head, nil
}

func headerParserRecordRoute(headerName, headerText string) (Header, error) {
	var head, tail *RecordRouteHeader
	for _, part := range splitTopLevel(headerText) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		h := &RecordRouteHeader{}
		if _, err := ParseAddressValue(part, &h.Address, nil); err != nil {
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
		return nil, fmt.Errorf("%w: empty Record-Route header", ErrMalformed)
	}
	return head, nil
}
