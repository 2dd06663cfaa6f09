package sip

import (
	"fmt"
	"strings"
)

const (
	// RFC3261BranchMagicCookie prefixes every branch this stack generates,
	// marking it as RFC 3261-compliant for loop detection (RFC 3261 8.1.1.7).
	RFC3261BranchMagicCookie = "z9hG4bK"

	// TxSeperator joins the components of transaction and dialog keys.
	TxSeperator = "__"

	DefaultProtocol = TransportUDP
)

// GenerateBranch returns a random unique Via branch parameter.
func GenerateBranch() string {
	return GenerateBranchN(16)
}

// GenerateBranchN returns a branch of the form MagicCookie.<n random chars>.
func GenerateBranchN(n int) string {
	var sb strings.Builder
	sb.Grow(len(RFC3261BranchMagicCookie) + n + 1)
	sb.WriteString(RFC3261BranchMagicCookie)
	sb.WriteString(".")
	RandStringBytesMask(&sb, n)
	return sb.String()
}

// GenerateTagN returns a random From/To tag of n characters.
func GenerateTagN(n int) string {
	var sb strings.Builder
	RandStringBytesMask(&sb, n)
	return sb.String()
}

// DefaultPort returns the well-known port for a transport network name.
func DefaultPort(network string) int {
	switch strings.ToUpper(network) {
	case TransportTLS, TransportWSS:
		return 5061
	case TransportWS:
		return 80
	default:
		return 5060
	}
}

// uriNetIP strips brackets from an IPv6 literal host for use in a dial addr.
func uriNetIP(host string) string {
	return strings.Trim(host, "[]")
}

// DialogIDFromResponse builds the dialog identity carried by a response,
// from the UAC's perspective: the From tag is local and the To tag is
// remote, the same order DialogIDFromRequestUAC uses (see
// DialogIDFromRequestUAS/UAC for the role-aware request variants).
func DialogIDFromResponse(msg *Response) (string, error) {
	callID, toTag, fromTag, err := dialogComponents(msg)
	if err != nil {
		return "", err
	}
	return DialogIDMake(callID, fromTag, toTag), nil
}

// DialogIDFromRequestUAS builds the dialog ID for a request as seen by the
// side that received it (To tag is local, From tag is remote).
func DialogIDFromRequestUAS(msg *Request) (string, error) {
	callID, toTag, fromTag, err := dialogComponents(msg)
	if err != nil {
		return "", err
	}
	return DialogIDMake(callID, toTag, fromTag), nil
}

// DialogIDFromRequestUAC builds the dialog ID for a request as seen by the
// side that sent it (From tag is local, To tag is remote).
func DialogIDFromRequestUAC(msg *Request) (string, error) {
	callID, toTag, fromTag, err := dialogComponents(msg)
	if err != nil {
		return "", err
	}
	return DialogIDMake(callID, fromTag, toTag), nil
}

func dialogComponents(msg Message) (callID, toTag, fromTag string, err error) {
	cid := msg.CallID()
	if cid == nil {
		return "", "", "", fmt.Errorf("sip: missing Call-ID header")
	}

	to := msg.To()
	if to == nil {
		return "", "", "", fmt.Errorf("sip: missing To header")
	}
	toTag, ok := to.Tag()
	if !ok {
		return "", "", "", fmt.Errorf("sip: missing tag param in To header")
	}

	from := msg.From()
	if from == nil {
		return "", "", "", fmt.Errorf("sip: missing From header")
	}
	fromTag, ok = from.Tag()
	if !ok {
		return "", "", "", fmt.Errorf("sip: missing tag param in From header")
	}

	return string(*cid), toTag, fromTag, nil
}

// DialogIDMake joins the three dialog-identity components into one key.
func DialogIDMake(callID, innerTag, outerTag string) string {
	return strings.Join([]string{callID, innerTag, outerTag}, TxSeperator)
}
