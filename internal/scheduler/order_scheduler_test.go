package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shopadmin/pkg/logger"

	"github.com/stretchr/testify/assert"
)

type fakeExpirer struct {
	mu      sync.Mutex
	befores []time.Time
	err     error
}

func (f *fakeExpirer) ExpirePendingOrders(ctx context.Context, before time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.befores = append(f.befores, before)
	return 1, f.err
}

func (f *fakeExpirer) calls() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.befores...)
}

func TestOrderSchedulerRunsImmediatelyAndOnTick(t *testing.T) {
	expirer := &fakeExpirer{}
	s := NewOrderScheduler(expirer, 20*time.Millisecond, logger.NewNop())
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.Start()
	assert.Eventually(t, func() bool { return len(expirer.calls()) >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	calls := expirer.calls()
	assert.Equal(t, fixed.Add(-20*time.Millisecond), calls[0])
	n := len(calls)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, expirer.calls(), n)
}

func TestOrderSchedulerKeepsRunningAfterError(t *testing.T) {
	expirer := &fakeExpirer{err: errors.New("db down")}
	s := NewOrderScheduler(expirer, 10*time.Millisecond, logger.NewNop())
	s.Start()
	defer s.Stop()
	assert.Eventually(t, func() bool { return len(expirer.calls()) >= 2 }, time.Second, 5*time.Millisecond)
}

func TestOrderSchedulerIntervalCappedAtOneMinute(t *testing.T) {
	s := NewOrderScheduler(&fakeExpirer{}, 30*time.Minute, logger.NewNop())
	assert.Equal(t, time.Minute, s.interval)
}
