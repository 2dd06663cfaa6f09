package sip_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sipstack/sipstack/sip"
	"github.com/sipstack/sipstack/siptest"
)

func TestClientTxRequesterDeliversCannedResponse(t *testing.T) {
	requester := &siptest.ClientTxRequester{
		OnRequest: func(req *sip.Request) *sip.Response {
			return sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
		},
	}

	req := sip.NewRequest(sip.OPTIONS, sip.Uri{Scheme: "sip", User: "bob", Host: "127.0.0.1"})
	req.AppendHeader(&sip.ViaHeader{
		ProtocolName: "SIP", ProtocolVersion: "2.0", Transport: "UDP",
		Host: "127.0.0.2", Params: sip.NewParams(),
	})
	req.Via().Params.Add("branch", sip.GenerateBranch())
	callID := sip.CallIDHeader("clienttx-requester-test")
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.OPTIONS})

	tx, err := requester.Request(context.Background(), req)
	require.NoError(t, err)

	res := <-tx.Responses()
	require.Equal(t, sip.StatusOK, res.StatusCode)
}
