package bridge

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitPoll[T any](t *testing.T, s *Slot[T]) T {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if out, ok := s.Poll(); ok {
			return out
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("slot never completed")
	var zero T
	return zero
}

func TestPollEmptySlot(t *testing.T) {
	var s Slot[int]
	out, ok := s.Poll()
	assert.False(t, ok)
	assert.Zero(t, out)
	assert.False(t, s.Pending())
}

func TestPollDoesNotBlockWhileRunning(t *testing.T) {
	var s Slot[int]
	release := make(chan struct{})
	require.True(t, s.Start(func() int {
		<-release
		return 7
	}))

	_, ok := s.Poll()
	assert.False(t, ok)
	assert.True(t, s.Pending())

	close(release)
	assert.Equal(t, 7, waitPoll(t, &s))
	assert.False(t, s.Pending())

	_, ok = s.Poll()
	assert.False(t, ok, "result is delivered once")
}

func TestStartRefusedWhilePending(t *testing.T) {
	var s Slot[string]
	release := make(chan struct{})
	require.True(t, s.Start(func() string {
		<-release
		return "first"
	}))
	assert.False(t, s.Start(func() string { return "second" }))

	close(release)
	assert.Equal(t, "first", waitPoll(t, &s))

	require.True(t, s.Start(func() string { return "third" }))
	assert.Equal(t, "third", waitPoll(t, &s))
}

func TestUndrainedResultKeepsSlotPending(t *testing.T) {
	var s Slot[int]
	require.True(t, s.Start(func() int { return 1 }))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, s.Start(func() int { return 2 }))
	assert.Equal(t, 1, waitPoll(t, &s))
}

type outcome struct {
	value int
	err   error
}

func TestPanicConvertedToResult(t *testing.T) {
	s := New(func(r *panics.Recovered) outcome {
		return outcome{err: fmt.Errorf("task crashed: %w", r.AsError())}
	})
	require.True(t, s.Start(func() outcome {
		panic(errors.New("boom"))
	}))

	out := waitPoll(t, s)
	require.Error(t, out.err)
	assert.Contains(t, out.err.Error(), "boom")
	assert.False(t, s.Pending())
}

func TestPanicWithoutConverterYieldsZero(t *testing.T) {
	var s Slot[outcome]
	require.True(t, s.Start(func() outcome {
		panic("boom")
	}))
	assert.Equal(t, outcome{}, waitPoll(t, &s))
}
