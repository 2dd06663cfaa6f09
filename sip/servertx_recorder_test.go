package sip_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sipstack/sipstack/sip"
	"github.com/sipstack/sipstack/siptest"
)

func TestServerTxRecorderCapturesRespond(t *testing.T) {
	req := sip.NewRequest(sip.OPTIONS, sip.Uri{Scheme: "sip", User: "bob", Host: "127.0.0.1"})
	req.AppendHeader(&sip.ViaHeader{
		ProtocolName: "SIP", ProtocolVersion: "2.0", Transport: "UDP",
		Host: "127.0.0.2", Params: sip.NewParams(),
	})
	req.Via().Params.Add("branch", sip.GenerateBranch())
	fromParams := sip.NewParams()
	fromParams.Add("tag", "alicetag")
	req.AppendHeader(&sip.FromHeader{Address: sip.Uri{Scheme: "sip", User: "alice", Host: "127.0.0.2"}, Params: fromParams})
	req.AppendHeader(&sip.ToHeader{Address: sip.Uri{Scheme: "sip", User: "bob", Host: "127.0.0.1"}, Params: sip.NewParams()})
	callID := sip.CallIDHeader("servertx-recorder-test")
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.OPTIONS})

	rec := siptest.NewServerTxRecorder(req)
	res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
	require.NoError(t, rec.Respond(res))

	results := rec.Result()
	require.Len(t, results, 1)
	require.Equal(t, sip.StatusOK, results[0].StatusCode)
}
