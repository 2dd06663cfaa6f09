package sip

import (
	"io"
	"strconv"
	"strings"
)

// Uri is a SIP or SIPS URI (RFC 3261 19.1). tel: URIs and other schemes are
// out of scope; callers that need them can stuff the raw value into a
// generic header instead of a Uri.
type Uri struct {
	// Scheme is "sip" or "sips". Defaults to "sip" when empty on render.
	Scheme string

	User     string
	Password string
	Host     string
	// Port is 0 when not explicitly present in the URI.
	Port int

	UriParams HeaderParams
	Headers   HeaderParams

	// Wildcard marks the special "*" URI used in Contact: * (RFC 3261
	// 10.2.2). When set, every other field is meaningless.
	Wildcard bool
}

// IsEncrypted reports whether the URI scheme is sips.
func (uri *Uri) IsEncrypted() bool {
	return strings.EqualFold(uri.Scheme, "sips")
}

// Addr renders "user@host:port" suitable for use as a digest auth-uri or
// a transaction key component. It omits scheme and params deliberately.
func (uri *Uri) Addr() string {
	var b strings.Builder
	if uri.User != "" {
		b.WriteString(uri.User)
		b.WriteString("@")
	}
	b.WriteString(uri.Host)
	if uri.Port > 0 {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(uri.Port))
	}
	return b.String()
}

func (uri *Uri) String() string {
	var b strings.Builder
	uri.StringWrite(&b)
	return b.String()
}

func (uri *Uri) StringWrite(buffer io.StringWriter) {
	if uri.Wildcard {
		buffer.WriteString("*")
		return
	}

	scheme := uri.Scheme
	if scheme == "" {
		scheme = "sip"
	}
	buffer.WriteString(scheme)
	buffer.WriteString(":")

	if uri.User != "" {
		buffer.WriteString(uri.User)
		if uri.Password != "" {
			buffer.WriteString(":")
			buffer.WriteString(uri.Password)
		}
		buffer.WriteString("@")
	}

	buffer.WriteString(uri.Host)

	if uri.Port > 0 {
		buffer.WriteString(":")
		buffer.WriteString(strconv.Itoa(uri.Port))
	}

	if uri.UriParams.Length() > 0 {
		buffer.WriteString(";")
		uri.UriParams.ToStringWrite(';', buffer)
	}

	if uri.Headers.Length() > 0 {
		buffer.WriteString("?")
		uri.Headers.ToStringWrite('&', buffer)
	}
}

// Clone returns a deep-enough copy; UriParams/Headers are copied so mutating
// the clone's params never affects the original.
func (uri *Uri) Clone() *Uri {
	if uri == nil {
		return nil
	}
	c := *uri
	c.UriParams = uri.UriParams.Clone()
	c.Headers = uri.Headers.Clone()
	return &c
}

// Equals reports RFC 3261 19.1.4 "equal enough for our purposes" comparison:
// scheme, user, host and port must match exactly (case-insensitive host).
func (uri *Uri) Equals(other *Uri) bool {
	if uri == nil || other == nil {
		return uri == other
	}
	return strings.EqualFold(uri.Scheme, other.Scheme) &&
		uri.User == other.User &&
		strings.EqualFold(uri.Host, other.Host) &&
		uri.Port == other.Port
}
