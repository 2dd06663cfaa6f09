package sip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessageRequest(t *testing.T) {
	raw := "INVITE sip:bob@biloxi.com SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP pc33.atlanta.com;branch=z9hG4bK776asdhds\r\n" +
		"Max-Forwards: 70\r\n" +
		"To: Bob <sip:bob@biloxi.com>\r\n" +
		"From: Alice <sip:alice@atlanta.com>;tag=1928301774\r\n" +
		"Call-ID: a84b4c76e66710@pc33.atlanta.com\r\n" +
		"CSeq: 314159 INVITE\r\n" +
		"Contact: <sip:alice@pc33.atlanta.com>\r\n" +
		"Content-Type: application/sdp\r\n" +
		"Content-Length: 5\r\n\r\n" +
		"v=0\r\n"

	msg, err := ParseMessage([]byte(raw))
	require.NoError(t, err)

	req, ok := msg.(*Request)
	require.True(t, ok)
	assert.Equal(t, INVITE, req.Method)
	assert.Equal(t, "bob", req.Recipient.User)
	assert.Equal(t, "biloxi.com", req.Recipient.Host)

	via := req.Via()
	require.NotNil(t, via)
	assert.Equal(t, "pc33.atlanta.com", via.Host)
	branch, ok := via.Params.Get("branch")
	require.True(t, ok)
	assert.Equal(t, "z9hG4bK776asdhds", branch)

	from := req.From()
	require.NotNil(t, from)
	assert.Equal(t, "Alice", from.DisplayName)
	fromTag, ok := from.Tag()
	require.True(t, ok)
	assert.Equal(t, "1928301774", fromTag)

	to := req.To()
	require.NotNil(t, to)
	assert.Equal(t, "Bob", to.DisplayName)

	cseq := req.CSeq()
	require.NotNil(t, cseq)
	assert.Equal(t, uint32(314159), cseq.SeqNo)
	assert.Equal(t, INVITE, cseq.MethodName)

	callID := req.CallID()
	require.NotNil(t, callID)
	assert.Equal(t, "a84b4c76e66710@pc33.atlanta.com", string(*callID))

	assert.Equal(t, "v=0\r\n", string(req.Body()))
}

func TestParseMessageResponse(t *testing.T) {
	raw := "SIP/2.0 200 OK\r\n" +
		"Via: SIP/2.0/UDP pc33.atlanta.com;branch=z9hG4bK776asdhds\r\n" +
		"To: Bob <sip:bob@biloxi.com>;tag=a6c85cf\r\n" +
		"From: Alice <sip:alice@atlanta.com>;tag=1928301774\r\n" +
		"Call-ID: a84b4c76e66710@pc33.atlanta.com\r\n" +
		"CSeq: 314159 INVITE\r\n" +
		"Content-Length: 0\r\n\r\n"

	msg, err := ParseMessage([]byte(raw))
	require.NoError(t, err)

	res, ok := msg.(*Response)
	require.True(t, ok)
	assert.Equal(t, StatusOK, res.StatusCode)
	assert.Equal(t, "OK", res.Reason)

	toTag, ok := res.To().Tag()
	require.True(t, ok)
	assert.Equal(t, "a6c85cf", toTag)
}

func TestParseMessageRejectsMissingCRLF(t *testing.T) {
	_, err := ParseMessage([]byte("INVITE sip:bob@biloxi.com SIP/2.0"))
	assert.Error(t, err)
}

func TestParseMessageUnknownHeaderBecomesGeneric(t *testing.T) {
	raw := "OPTIONS sip:bob@biloxi.com SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP pc33.atlanta.com;branch=z9hG4bK776asdhds\r\n" +
		"To: <sip:bob@biloxi.com>\r\n" +
		"From: <sip:alice@atlanta.com>;tag=1928301774\r\n" +
		"Call-ID: a84b4c76e66710@pc33.atlanta.com\r\n" +
		"CSeq: 1 OPTIONS\r\n" +
		"X-Custom-Header: hello\r\n" +
		"Content-Length: 0\r\n\r\n"

	msg, err := ParseMessage([]byte(raw))
	require.NoError(t, err)

	h := msg.GetHeader("X-Custom-Header")
	require.NotNil(t, h)
	assert.Equal(t, "hello", h.Value())
}

func TestParseRequestLine(t *testing.T) {
	var uri Uri
	method, version, err := ParseRequestLine("INVITE sip:bob@biloxi.com SIP/2.0", &uri)
	require.NoError(t, err)
	assert.Equal(t, INVITE, method)
	assert.Equal(t, "SIP/2.0", version)
	assert.Equal(t, "bob", uri.User)
}

func TestParseStatusLine(t *testing.T) {
	version, status, reason, err := ParseStatusLine("SIP/2.0 404 Not Found")
	require.NoError(t, err)
	assert.Equal(t, "SIP/2.0", version)
	assert.Equal(t, StatusNotFound, status)
	assert.Equal(t, "Not Found", reason)
}
