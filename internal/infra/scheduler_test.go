package infra

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestScheduler_Every(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(context.Background())
	defer s.Stop()

	var n atomic.Int32
	s.Every("tick", 5*time.Millisecond, func() { n.Add(1) })

	assert.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)
}

func TestScheduler_CancelOneTask(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(context.Background())
	defer s.Stop()

	var a, b atomic.Int32
	cancelA := s.Every("a", 2*time.Millisecond, func() { a.Add(1) })
	s.Every("b", 2*time.Millisecond, func() { b.Add(1) })

	assert.Eventually(t, func() bool { return a.Load() > 0 }, time.Second, time.Millisecond)
	cancelA()
	assert.Equal(t, 1, s.Len())

	// Let an in-flight run of a finish before sampling.
	time.Sleep(10 * time.Millisecond)
	frozen := a.Load()
	before := b.Load()

	assert.Eventually(t, func() bool { return b.Load() > before+2 }, time.Second, time.Millisecond)
	assert.Equal(t, frozen, a.Load())
}

func TestScheduler_ReplaceByName(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(context.Background())
	defer s.Stop()

	cancelOld := s.Every("job", time.Hour, func() {})
	s.Every("job", time.Hour, func() {})
	assert.Equal(t, 1, s.Len())

	// Cancelling the replaced task must not drop the new one.
	cancelOld()
	assert.Equal(t, 1, s.Len())
}

func TestScheduler_Jittered(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(context.Background())

	var calls, draws atomic.Int32
	s.Jittered("feed", func() time.Duration {
		draws.Add(1)
		return time.Millisecond
	}, func() { calls.Add(1) })

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	s.Stop()

	// One draw per run plus the initial wait.
	assert.GreaterOrEqual(t, draws.Load(), calls.Load())
	assert.Zero(t, s.Len())
}

func TestScheduler_ParentContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(ctx)
	s.Every("x", time.Millisecond, func() {})

	cancel()
	s.Stop()
}
