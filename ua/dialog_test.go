package ua

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipstack/sipstack/sip"
)

func testInviteRequest() *sip.Request {
	req := sip.NewRequest(sip.INVITE, sip.Uri{Scheme: "sip", User: "bob", Host: "127.0.0.1", Port: 5060})
	req.AppendHeader(&sip.ViaHeader{
		ProtocolName: "SIP", ProtocolVersion: "2.0", Transport: "UDP",
		Host: "127.0.0.2", Params: sip.NewParams(),
	})
	req.Via().Params.Add("branch", sip.GenerateBranch())
	fromParams := sip.NewParams()
	fromParams.Add("tag", "alicetag")
	req.AppendHeader(&sip.FromHeader{Address: sip.Uri{Scheme: "sip", User: "alice", Host: "127.0.0.2"}, Params: fromParams})
	req.AppendHeader(&sip.ToHeader{Address: sip.Uri{Scheme: "sip", User: "bob", Host: "127.0.0.1"}, Params: sip.NewParams()})
	callID := sip.CallIDHeader("dialog-test-call")
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.INVITE})
	return req
}

func TestNewDialogFromInviteUsesContactAndRecordRoute(t *testing.T) {
	req := testInviteRequest()
	res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
	res.To().Params.Add("tag", "bobtag")
	res.AppendHeader(&sip.ContactHeader{Address: sip.Uri{Scheme: "sip", User: "bob", Host: "127.0.0.1", Port: 5070}, Params: sip.NewParams()})
	res.AppendHeader(&sip.RecordRouteHeader{Address: sip.Uri{Scheme: "sip", Host: "proxy1.example.com"}})

	d, err := newDialogFromInvite(req, res)
	require.NoError(t, err)

	assert.Equal(t, "dialog-test-call", d.CallID)
	assert.Equal(t, "alicetag", d.LocalTag)
	assert.Equal(t, "bobtag", d.RemoteTag)
	assert.Equal(t, "bob", d.RemoteTarget.User)
	assert.Equal(t, 5070, d.RemoteTarget.Port)
	require.Len(t, d.RouteSet, 1)
	assert.Equal(t, "proxy1.example.com", d.RouteSet[0].Address.Host)
}

func TestNewDialogFromInviteFallsBackToRequestURIWithoutContact(t *testing.T) {
	req := testInviteRequest()
	res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
	res.To().Params.Add("tag", "bobtag")

	d, err := newDialogFromInvite(req, res)
	require.NoError(t, err)
	assert.Equal(t, req.Recipient.Host, d.RemoteTarget.Host)
}

func TestDialogNextLocalSeqIsStrictlyIncreasing(t *testing.T) {
	req := testInviteRequest()
	res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
	res.To().Params.Add("tag", "bobtag")
	d, err := newDialogFromInvite(req, res)
	require.NoError(t, err)

	first := d.NextLocalSeq()
	second := d.NextLocalSeq()
	assert.Greater(t, second, first)
}

func TestDialogObserveRemoteSeqRejectsOutOfOrder(t *testing.T) {
	d := &Dialog{}
	assert.True(t, d.ObserveRemoteSeq(1))
	assert.True(t, d.ObserveRemoteSeq(2))
	assert.False(t, d.ObserveRemoteSeq(2))
	assert.False(t, d.ObserveRemoteSeq(1))
	assert.True(t, d.ObserveRemoteSeq(5))
}

func TestDialogStateTransitionsNotifyObservers(t *testing.T) {
	d := &Dialog{}
	var seen []DialogState
	d.OnState(func(s DialogState) { seen = append(seen, s) })

	d.setState(DialogStateConfirmed)
	d.setState(DialogStateTerminated)

	require.Equal(t, []DialogState{DialogStateConfirmed, DialogStateTerminated}, seen)
	assert.Equal(t, DialogStateTerminated, d.State())
	assert.Equal(t, "terminated", d.State().String())
}
