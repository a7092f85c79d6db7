package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func TestTickerJobRunner(t *testing.T) {
	logger, _ := test.NewNullLogger()
	runner := NewTickerJobRunner(nil, logger)
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	require.NoError(t, runner.Schedule(ctx, Job{Name: "count", Interval: 10 * time.Millisecond, Run: func(ctx context.Context) {
		runs.Add(1)
	}}))
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 5*time.Second, 5*time.Millisecond)

	cancel()
	runner.Wait()
	stoppedAt := runs.Load()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, stoppedAt, runs.Load())
}

func TestTickerJobRunnerConstraints(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var checks atomic.Int32
	checker := ConstraintCheckerFunc(func(ctx context.Context, c Constraints) bool {
		checks.Add(1)
		return !c.RequireNetwork
	})
	runner := NewTickerJobRunner(checker, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer runner.Wait()
	defer cancel()

	var runs atomic.Int32
	require.NoError(t, runner.Schedule(ctx, Job{
		Name:        "offline",
		Interval:    5 * time.Millisecond,
		Constraints: Constraints{RequireNetwork: true},
		Run:         func(ctx context.Context) { runs.Add(1) },
	}))
	require.Eventually(t, func() bool { return checks.Load() >= 3 }, 5*time.Second, 5*time.Millisecond)
	require.Equal(t, int32(0), runs.Load())
}

func TestTickerJobRunnerRejectsBadInterval(t *testing.T) {
	logger, _ := test.NewNullLogger()
	runner := NewTickerJobRunner(nil, logger)
	err := runner.Schedule(context.Background(), Job{Name: "never", Run: func(ctx context.Context) {}})
	require.ErrorContains(t, err, "non-positive interval")
}

func TestNetworkChecker(t *testing.T) {
	checker := NewNetworkChecker("https://127.0.0.1:8080")
	require.True(t, checker.Satisfied(context.Background(), Constraints{RequireNetwork: true}))

	// Without the network constraint nothing is resolved
	checker = NewNetworkChecker("https://does-not-exist.invalid")
	require.True(t, checker.Satisfied(context.Background(), Constraints{RequireBatteryNotLow: true}))
	require.False(t, checker.Satisfied(context.Background(), Constraints{RequireNetwork: true}))
}
