package ua

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipstack/sipstack/sip"
)

func TestNewCallStartsInitiating(t *testing.T) {
	call := newCall(nil)
	assert.Equal(t, CallStateInitiating, call.State())
	assert.Nil(t, call.Dialog())
	assert.Nil(t, call.LastResponse())
	assert.NoError(t, call.Err())
}

func TestCallDoneClosesOnTermination(t *testing.T) {
	call := newCall(nil)
	select {
	case <-call.Done():
		t.Fatal("done should not be closed yet")
	default:
	}

	call.fireLocked(callEventCancel)

	select {
	case <-call.Done():
	default:
		t.Fatal("done should be closed after terminal transition")
	}
	assert.Equal(t, CallStateTerminated, call.State())
}

func TestCallDoneClosesOnFailure(t *testing.T) {
	call := newCall(nil)
	call.fireLocked(callEvent1xx)
	call.fireLocked(callEventFinalFail)

	select {
	case <-call.Done():
	default:
		t.Fatal("done should be closed after failure")
	}
	assert.Equal(t, CallStateFailed, call.State())
}

func TestCallCancelFailsWithoutInviteTransaction(t *testing.T) {
	call := newCall(nil)
	err := call.Cancel(context.Background())
	assert.ErrorIs(t, err, ErrCallNotCancelable)
}

func TestCallCancelFailsOnceConnected(t *testing.T) {
	call := newCall(nil)
	call.fireLocked(callEvent2xx)
	err := call.Cancel(context.Background())
	assert.ErrorIs(t, err, ErrCallNotCancelable)
}

func TestCallByeFailsWithoutDialog(t *testing.T) {
	call := newCall(nil)
	call.fireLocked(callEvent2xx)
	_, err := call.Bye(context.Background())
	assert.ErrorIs(t, err, ErrNoDialog)
}

func TestIsSDPChecksContentType(t *testing.T) {
	req := testInviteRequest()
	withSDP := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", []byte("v=0\r\n"))
	ct := sip.ContentTypeHeader("application/sdp")
	withSDP.AppendHeader(&ct)
	assert.True(t, isSDP(withSDP))

	without := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
	assert.False(t, isSDP(without))
}
