package ua

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipstack/sipstack/sip"
	"github.com/sipstack/sipstack/siptest"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	agent, err := NewUserAgent("sipstack-test")
	require.NoError(t, err)
	t.Cleanup(func() { agent.Close() })

	s, err := NewServer(agent)
	require.NoError(t, err)
	return s
}

func inDialogRequest(method sip.RequestMethod, fromTag, toTag, callID string) *sip.Request {
	req := sip.NewRequest(method, sip.Uri{Scheme: "sip", User: "bob", Host: "127.0.0.1", Port: 5060})
	req.AppendHeader(&sip.ViaHeader{
		ProtocolName: "SIP", ProtocolVersion: "2.0", Transport: "UDP",
		Host: "127.0.0.2", Params: sip.NewParams(),
	})
	req.Via().Params.Add("branch", sip.GenerateBranch())
	fromParams := sip.NewParams()
	fromParams.Add("tag", fromTag)
	req.AppendHeader(&sip.FromHeader{Address: sip.Uri{Scheme: "sip", User: "alice", Host: "127.0.0.2"}, Params: fromParams})
	toParams := sip.NewParams()
	if toTag != "" {
		toParams.Add("tag", toTag)
	}
	req.AppendHeader(&sip.ToHeader{Address: sip.Uri{Scheme: "sip", User: "bob", Host: "127.0.0.1"}, Params: toParams})
	cid := sip.CallIDHeader(callID)
	req.AppendHeader(&cid)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: 2, MethodName: method})
	return req
}

func TestServerDispatchOptionsRespondsOK(t *testing.T) {
	s := newTestServer(t)
	req := inDialogRequest(sip.OPTIONS, "alicetag", "bobtag", "server-test-options")
	rec := siptest.NewServerTxRecorder(req)

	s.dispatch(req, rec.ServerTx)

	results := rec.Result()
	require.Len(t, results, 1)
	assert.Equal(t, sip.StatusOK, results[0].StatusCode)
}

func TestServerDispatchUnhandledMethodReturns501(t *testing.T) {
	s := newTestServer(t)
	req := inDialogRequest(sip.SUBSCRIBE, "alicetag", "bobtag", "server-test-subscribe")
	rec := siptest.NewServerTxRecorder(req)

	s.dispatch(req, rec.ServerTx)

	results := rec.Result()
	require.Len(t, results, 1)
	assert.Equal(t, sip.StatusNotImplemented, results[0].StatusCode)
}

func TestServerDispatchByeTerminatesStoredDialogAndEmitsHangup(t *testing.T) {
	s := newTestServer(t)
	req := inDialogRequest(sip.BYE, "alicetag", "bobtag", "server-test-bye")

	id, err := sip.DialogIDFromRequestUAS(req)
	require.NoError(t, err)

	d := &Dialog{ID: id}
	s.storeDialog(d)

	var hangups []CallHangup
	s.On(EventCallHangup, func(event any) { hangups = append(hangups, event.(CallHangup)) })

	rec := siptest.NewServerTxRecorder(req)
	s.dispatch(req, rec.ServerTx)

	results := rec.Result()
	require.Len(t, results, 1)
	assert.Equal(t, sip.StatusOK, results[0].StatusCode)
	assert.Equal(t, DialogStateTerminated, d.State())
	require.Len(t, hangups, 1)
	assert.True(t, hangups[0].ByRemote)

	s.mu.RLock()
	_, stillPresent := s.dialogs[id]
	s.mu.RUnlock()
	assert.False(t, stillPresent)
}

func TestServerDispatchByeWithoutStoredDialogStillAnswersOK(t *testing.T) {
	s := newTestServer(t)
	req := inDialogRequest(sip.BYE, "alicetag", "bobtag", "server-test-bye-unknown")
	rec := siptest.NewServerTxRecorder(req)

	s.dispatch(req, rec.ServerTx)

	results := rec.Result()
	require.Len(t, results, 1)
	assert.Equal(t, sip.StatusOK, results[0].StatusCode)
}

func TestServerUseMiddlewareRejectionReturns500(t *testing.T) {
	s := newTestServer(t)
	s.Use(func(req *sip.Request) error { return assert.AnError })

	req := inDialogRequest(sip.OPTIONS, "alicetag", "bobtag", "server-test-middleware")
	rec := siptest.NewServerTxRecorder(req)

	s.dispatch(req, rec.ServerTx)

	results := rec.Result()
	require.Len(t, results, 1)
	assert.Equal(t, sip.StatusInternalServerError, results[0].StatusCode)
}

func TestServerOnInviteOverridesDefault(t *testing.T) {
	s := newTestServer(t)
	called := false
	s.OnInvite(func(req *sip.Request, tx *sip.ServerTx) {
		called = true
		res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
		_ = tx.Respond(res)
	})

	req := inDialogRequest(sip.INVITE, "alicetag", "", "server-test-invite")
	rec := siptest.NewServerTxRecorder(req)
	s.dispatch(req, rec.ServerTx)

	assert.True(t, called)
}
