package ua

import (
	"context"
	"testing"

	"github.com/looplab/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallFSMHappyPath(t *testing.T) {
	var entered []string
	f := newCallFSM(func(ctx context.Context, e *fsm.Event) { entered = append(entered, e.Dst) })

	require.Equal(t, CallStateInitiating, f.Current())
	require.NoError(t, f.Event(context.Background(), callEvent1xx))
	assert.Equal(t, CallStateProceeding, f.Current())
	require.NoError(t, f.Event(context.Background(), callEvent2xx))
	assert.Equal(t, CallStateConnected, f.Current())
	require.NoError(t, f.Event(context.Background(), callEventBye))
	assert.Equal(t, CallStateTerminated, f.Current())

	assert.Equal(t, []string{CallStateProceeding, CallStateConnected, CallStateTerminated}, entered)
}

func TestCallFSMDirectAnswerSkipsProceeding(t *testing.T) {
	f := newCallFSM(func(ctx context.Context, e *fsm.Event) {})
	require.NoError(t, f.Event(context.Background(), callEvent2xx))
	assert.Equal(t, CallStateConnected, f.Current())
}

func TestCallFSMFinalFailureFromProceeding(t *testing.T) {
	f := newCallFSM(func(ctx context.Context, e *fsm.Event) {})
	require.NoError(t, f.Event(context.Background(), callEvent1xx))
	require.NoError(t, f.Event(context.Background(), callEventFinalFail))
	assert.Equal(t, CallStateFailed, f.Current())
}

func TestCallFSMByeRejectedBeforeConnected(t *testing.T) {
	f := newCallFSM(func(ctx context.Context, e *fsm.Event) {})
	err := f.Event(context.Background(), callEventBye)
	assert.Error(t, err)
	assert.Equal(t, CallStateInitiating, f.Current())
}

func TestCallFSMCancelFromInitiating(t *testing.T) {
	f := newCallFSM(func(ctx context.Context, e *fsm.Event) {})
	require.NoError(t, f.Event(context.Background(), callEventCancel))
	assert.Equal(t, CallStateTerminated, f.Current())
}
