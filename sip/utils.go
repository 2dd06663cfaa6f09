package sip

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const letterBytes = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandStringBytesMask appends n random letters/digits to sb. It uses
// crypto/rand so branch and tag values are not guessable by an on-path
// attacker trying to hijack a dialog.
func RandStringBytesMask(sb *strings.Builder, n int) string {
	sb.Grow(n)
	max := big.NewInt(int64(len(letterBytes)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		sb.WriteByte(letterBytes[idx.Int64()])
	}
	return sb.String()
}

// ASCIIToLower is a faster ASCII-only lowercase that avoids an allocation
// when s is already lowercase.
func ASCIIToLower(s string) string {
	nonLowInd := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'a' <= c && c <= 'z' {
			continue
		}
		nonLowInd = i
		break
	}
	if nonLowInd < 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	b.WriteString(s[:nonLowInd])
	for i := nonLowInd; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		b.WriteByte(c)
	}
	return b.String()
}

// HeaderToLower lowercases a header name, with a fast path for the names
// seen on almost every message so the common case allocates nothing.
func HeaderToLower(s string) string {
	switch s {
	case "Via", "via":
		return "via"
	case "From", "from":
		return "from"
	case "To", "to":
		return "to"
	case "Call-ID", "call-id", "i":
		return "call-id"
	case "Contact", "contact", "m":
		return "contact"
	case "CSeq", "CSEQ", "cseq":
		return "cseq"
	case "Content-Type", "content-type", "c":
		return "content-type"
	case "Content-Length", "content-length", "l":
		return "content-length"
	case "Route", "route":
		return "route"
	case "Record-Route", "record-route":
		return "record-route"
	case "Max-Forwards", "max-forwards":
		return "max-forwards"
	case "WWW-Authenticate", "www-authenticate":
		return "www-authenticate"
	case "Authorization", "authorization":
		return "authorization"
	case "Proxy-Authenticate", "proxy-authenticate":
		return "proxy-authenticate"
	case "Proxy-Authorization", "proxy-authorization":
		return "proxy-authorization"
	}
	return ASCIIToLower(s)
}

// UriIsSIP reports whether s is the "sip" scheme token.
func UriIsSIP(s string) bool {
	return strings.EqualFold(s, "sip")
}

// UriIsSIPS reports whether s is the "sips" scheme token.
func UriIsSIPS(s string) bool {
	return strings.EqualFold(s, "sips")
}

// SplitByWhitespace splits on runs of ABNF whitespace, dropping empty fields.
func SplitByWhitespace(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return strings.ContainsRune(abnfWS, r)
	})
}

const abnfWS = " \t\r\n"

// delimiter is a pair of characters used for quoting text during scanning.
type delimiter struct{ start, end byte }

var quotesDelim = delimiter{'"', '"'}
var anglesDelim = delimiter{'<', '>'}

// findUnescaped finds the first occurrence of target not enclosed in any of delims.
func findUnescaped(text string, target byte, delims ...delimiter) int {
	return findAnyUnescaped(text, string(target), delims...)
}

// findAnyUnescaped finds the first occurrence of any byte in targets not
// enclosed in any of delims (e.g. skipping over a quoted display-name).
func findAnyUnescaped(text string, targets string, delims ...delimiter) int {
	escaped := false
	var endEscape byte
	endChars := make(map[byte]byte, len(delims))
	for _, d := range delims {
		endChars[d.start] = d.end
	}

	for idx := 0; idx < len(text); idx++ {
		if !escaped && strings.IndexByte(targets, text[idx]) >= 0 {
			return idx
		}
		if escaped {
			escaped = text[idx] != endEscape
			continue
		}
		endEscape, escaped = endChars[text[idx]]
	}
	return -1
}
