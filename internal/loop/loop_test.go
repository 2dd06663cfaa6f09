package loop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRunsAsynchronously(t *testing.T) {
	l := New(context.Background())
	defer l.Close()

	done := make(chan struct{})
	err := l.Post(func(l *Loop) {
		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestPostOrdering(t *testing.T) {
	l := New(context.Background())
	defer l.Close()

	var order []int
	doneCh := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func(l *Loop) {
			order = append(order, i)
			if i == 4 {
				close(doneCh)
			}
		})
	}

	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("tasks never completed")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPostDelayedFiresAfterDuration(t *testing.T) {
	l := New(context.Background())
	defer l.Close()

	start := time.Now()
	fired := make(chan time.Time, 1)
	l.PostDelayed(50*time.Millisecond, func(l *Loop) {
		fired <- time.Now()
	})

	select {
	case at := <-fired:
		assert.GreaterOrEqual(t, at.Sub(start), 50*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("delayed task never fired")
	}
}

func TestPostDelayedCancel(t *testing.T) {
	l := New(context.Background())
	defer l.Close()

	ran := make(chan struct{}, 1)
	cancel := l.PostDelayed(50*time.Millisecond, func(l *Loop) {
		ran <- struct{}{}
	})
	ok := cancel()
	assert.True(t, ok)

	select {
	case <-ran:
		t.Fatal("canceled task should not have run")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPostAfterCloseReturnsErrLoopClosed(t *testing.T) {
	l := New(context.Background())
	require.NoError(t, l.Close())

	err := l.Post(func(l *Loop) {})
	assert.ErrorIs(t, err, ErrLoopClosed)
}

func TestClosePropagatesFromParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := New(ctx)
	cancel()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after parent context cancellation")
	}
}

func TestPanicInTaskIsRecovered(t *testing.T) {
	l := New(context.Background())
	defer l.Close()

	ran := make(chan struct{})
	l.Post(func(l *Loop) {
		panic("boom")
	})
	err := l.Post(func(l *Loop) {
		close(ran)
	})
	require.NoError(t, err)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("loop stopped processing tasks after a panic")
	}
}
