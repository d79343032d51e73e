package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-press/canopy-engagement/pkg/logging"
)

type countingJob struct {
	name string
	err  error
	runs atomic.Int32
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "counts invocations" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func newTestScheduler() *Scheduler {
	cfg := DefaultSchedulerConfig()
	cfg.Logger = logging.Discard()
	return NewScheduler(cfg)
}

func TestRegisterValidatesArguments(t *testing.T) {
	s := newTestScheduler()
	schedule := NewIntervalSchedule(time.Hour)

	assert.ErrorIs(t, s.Register(nil, schedule), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, nil), ErrNilSchedule)

	require.NoError(t, s.Register(&countingJob{name: "a"}, schedule))
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, schedule), ErrJobAlreadyExists)
}

func TestRunNowExecutesAndRecords(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "refresh"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "refresh")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(1), job.runs.Load())

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.Equal(t, int64(1), infos[0].RunCount)
	assert.Zero(t, infos[0].FailCount)
	require.NotNil(t, infos[0].LastResult)
	assert.True(t, infos[0].LastResult.Success)

	snapshot := s.GetMetrics().Snapshot()
	assert.Equal(t, int64(1), snapshot.TotalExecutions)
	assert.Equal(t, int64(1), snapshot.TotalSuccesses)

	_, err = s.RunNow(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRunNowPropagatesJobError(t *testing.T) {
	s := newTestScheduler()
	boom := errors.New("boom")
	job := &countingJob{name: "sweep", err: boom}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "sweep")
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, result)
	assert.False(t, result.Success)

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.Equal(t, int64(1), infos[0].FailCount)

	snapshot := s.GetMetrics().Snapshot()
	assert.Equal(t, int64(1), snapshot.TotalFailures)
}

func TestStartStopLifecycle(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Register(&countingJob{name: "purge"}, NewIntervalSchedule(time.Hour)))

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestIntervalSchedule(t *testing.T) {
	schedule := NewIntervalSchedule(5 * time.Minute)

	at := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, at.Add(5*time.Minute), schedule.Next(at))
	assert.Equal(t, "@every 5m0s", schedule.String())
}
