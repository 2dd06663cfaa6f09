package ua

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipstack/sipstack/sip"
)

func TestLoggingHandlersLogOneLineEach(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	onReq, onRes, onErr := LoggingHandlers(log)

	req := sip.NewRequest(sip.OPTIONS, sip.Uri{Scheme: "sip", User: "bob", Host: "127.0.0.1"})
	require.NoError(t, onReq(req))
	assert.Contains(t, buf.String(), "sending request")

	buf.Reset()
	res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
	onRes(res)
	assert.Contains(t, buf.String(), "received response")

	buf.Reset()
	onErr(ErrTimeout)
	assert.Contains(t, buf.String(), "ua: error")
}

func TestContactInjectorSkipsWhenContactAlreadySet(t *testing.T) {
	contact := &sip.ContactHeader{Address: sip.Uri{Scheme: "sip", User: "injected", Host: "127.0.0.9"}, Params: sip.NewParams()}
	inject := ContactInjector(contact)

	req := sip.NewRequest(sip.INVITE, sip.Uri{Scheme: "sip", User: "bob", Host: "127.0.0.1"})
	existing := &sip.ContactHeader{Address: sip.Uri{Scheme: "sip", User: "alice", Host: "127.0.0.2"}, Params: sip.NewParams()}
	req.AppendHeader(existing)

	require.NoError(t, inject(req))
	assert.Equal(t, "alice", req.Contact().Address.User)
}

func TestContactInjectorAppendsWhenMissing(t *testing.T) {
	contact := &sip.ContactHeader{Address: sip.Uri{Scheme: "sip", User: "injected", Host: "127.0.0.9"}, Params: sip.NewParams()}
	inject := ContactInjector(contact)

	req := sip.NewRequest(sip.INVITE, sip.Uri{Scheme: "sip", User: "bob", Host: "127.0.0.1"})
	require.NoError(t, inject(req))
	require.NotNil(t, req.Contact())
	assert.Equal(t, "injected", req.Contact().Address.User)
}

func TestUserAgentInjectorSetsHeaderOnce(t *testing.T) {
	inject := UserAgentInjector("sipstack-test/1.0")

	req := sip.NewRequest(sip.OPTIONS, sip.Uri{Scheme: "sip", Host: "127.0.0.1"})
	require.NoError(t, inject(req))
	h := req.GetHeader("User-Agent")
	require.NotNil(t, h)
	assert.Equal(t, "sipstack-test/1.0", h.Value())

	req.RemoveHeader("User-Agent")
	req.AppendHeader(sip.NewHeader("User-Agent", "custom/9.9"))
	require.NoError(t, inject(req))
	assert.Equal(t, "custom/9.9", req.GetHeader("User-Agent").Value())
}

func TestRetryableStatus(t *testing.T) {
	assert.True(t, RetryableStatus(sip.StatusRequestTimeout))
	assert.True(t, RetryableStatus(sip.StatusInternalServerError))
	assert.True(t, RetryableStatus(sip.StatusServiceUnavailable))
	assert.False(t, RetryableStatus(sip.StatusOK))
	assert.False(t, RetryableStatus(sip.StatusNotFound))
}
