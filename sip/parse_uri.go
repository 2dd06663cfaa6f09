package sip

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type uriFSM func(uri *Uri, s string) (uriFSM, string, error)

// ParseUri converts a string representation of a SIP/SIPS URI into uri.
// sip:user:password@host:port;uri-parameters?headers (RFC 3261 19.1.1).
func ParseUri(uriStr string, uri *Uri) error {
	if len(uriStr) == 0 {
		return fmt.Errorf("%w: empty URI", ErrMalformed)
	}

	state := uriStateStart
	str := uriStr
	var err error
	for state != nil {
		state, str, err = state(uri, str)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrMalformed, err)
		}
	}
	return nil
}

func uriStateStart(uri *Uri, s string) (uriFSM, string, error) {
	if s == "*" {
		uri.Host = "*"
		uri.Wildcard = true
		return nil, "", nil
	}
	return uriStateScheme(uri, s)
}

func uriStateScheme(uri *Uri, s string) (uriFSM, string, error) {
	colInd := strings.Index(s, ":")
	if colInd == -1 {
		return nil, "", errors.New("missing scheme")
	}

	uri.Scheme = strings.ToLower(s[:colInd])
	s = s[colInd+1:]

	if err := validateScheme(uri.Scheme); err != nil {
		return nil, "", err
	}

	// Hierarchical slashes (sip://...) are accepted but not preserved;
	// almost no SIP deployment emits them.
	if len(s) >= 2 && s[:2] == "//" {
		s = s[2:]
	}

	return uriStateUser, s, nil
}

func uriStateUser(uri *Uri, s string) (uriFSM, string, error) {
	userEnd := 0
	for i, c := range s {
		if c == ':' {
			userEnd = i
		}
		if c == '@' {
			if userEnd > 0 {
				uri.User = s[:userEnd]
				uri.Password = s[userEnd+1 : i]
			} else {
				uri.User = s[:i]
			}
			return uriStateHost, s[i+1:], nil
		}
	}
	return uriStateHost, s, nil
}

func uriStateHost(uri *Uri, s string) (uriFSM, string, error) {
	for i, c := range s {
		switch c {
		case ':':
			uri.Host = s[:i]
			return uriStatePort, s[i+1:], nil
		case ';':
			uri.Host = s[:i]
			return uriStateUriParams, s[i+1:], nil
		case '?':
			uri.Host = s[:i]
			return uriStateHeaders, s[i+1:], nil
		}
	}
	uri.Host = s
	uri.Wildcard = s == "*"
	return uriStateUriParams, "", nil
}

func uriStatePort(uri *Uri, s string) (uriFSM, string, error) {
	var err error
	for i, c := range s {
		if c == ';' {
			uri.Port, err = strconv.Atoi(s[:i])
			return uriStateUriParams, s[i+1:], err
		}
		if c == '?' {
			uri.Port, err = strconv.Atoi(s[:i])
			return uriStateHeaders, s[i+1:], err
		}
	}
	uri.Port, err = strconv.Atoi(s)
	return nil, s, err
}

func uriStateUriParams(uri *Uri, s string) (uriFSM, string, error) {
	uri.UriParams = NewParams()
	uri.Headers = NewParams()
	if len(s) == 0 {
		return nil, s, nil
	}

	n, err := UnmarshalParams(s, ';', '?', &uri.UriParams)
	if err != nil {
		return nil, s, err
	}
	if n == len(s) {
		n--
	}
	if n < 0 || n >= len(s) || s[n] != '?' {
		return nil, s, nil
	}
	return uriStateHeaders, s[n+1:], nil
}

func uriStateHeaders(uri *Uri, s string) (uriFSM, string, error) {
	uri.Headers = NewParams()
	_, err := UnmarshalParams(s, '&', 0, &uri.Headers)
	return nil, s, err
}

// validateScheme is a light sanity check, not a full ABNF validator: its
// job is to catch a stray colon (e.g. a port) being mistaken for a scheme
// delimiter, not to reject every malformed scheme token.
func validateScheme(scheme string) error {
	if len(scheme) == 0 {
		return errors.New("no scheme found")
	}
	for _, c := range scheme {
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '+' && c != '-' && c != '.' {
			return fmt.Errorf("invalid scheme character %q", c)
		}
	}
	return nil
}
