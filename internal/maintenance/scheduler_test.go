package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingPurger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingPurger) PurgeExpired(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 2, c.err
}

func (c *countingPurger) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestNewRequiresAJob(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New(Config{Purger: &countingPurger{}, PurgeSchedule: "every hour"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "purge")
}

func TestDefaultsAndDisabledJobs(t *testing.T) {
	s, err := New(Config{Purger: &countingPurger{}, Snapshot: func(context.Context) {}})
	require.NoError(t, err)
	require.Equal(t, []string{"purge", "snapshot"}, s.Jobs())

	s, err = New(Config{
		Purger:           &countingPurger{},
		Snapshot:         func(context.Context) {},
		SnapshotSchedule: "off",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"purge"}, s.Jobs())
	require.True(t, s.Next("snapshot").IsZero())
}

func TestRunJobsDirectly(t *testing.T) {
	purger := &countingPurger{}
	snapshots := 0
	s, err := New(Config{
		Purger:   purger,
		Snapshot: func(ctx context.Context) { snapshots++ },
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)

	s.Purge()
	s.Snapshot()
	require.Equal(t, 1, purger.count())
	require.Equal(t, 1, snapshots)

	purger.err = errors.New("disk full")
	s.Purge()
	require.Equal(t, 2, purger.count())
}

func TestStartSchedulesJobs(t *testing.T) {
	purger := &countingPurger{}
	s, err := New(Config{Purger: purger, PurgeSchedule: "@every 1h"})
	require.NoError(t, err)

	s.Start()
	s.Start()
	defer s.Stop()

	next := s.Next("purge")
	require.False(t, next.IsZero())
	require.WithinDuration(t, time.Now().Add(time.Hour), next, 5*time.Second)
}

func TestStopWithoutStart(t *testing.T) {
	s, err := New(Config{Purger: &countingPurger{}})
	require.NoError(t, err)
	s.Stop()
}
