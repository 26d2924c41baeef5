package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielolaszy/cadence/internal/collector"
	"github.com/danielolaszy/cadence/pkg/models"
)

type fakeRunner struct {
	calls []collector.Options
	err   error
}

func (f *fakeRunner) Run(_ context.Context, opts collector.Options) (collector.Result, error) {
	f.calls = append(f.calls, opts)
	return collector.Result{}, f.err
}

type fakeLocker struct {
	held bool
	err  error
	took int
}

func (f *fakeLocker) WithAdvisoryLock(ctx context.Context, key int64, fn func(context.Context) error) (bool, error) {
	f.took++
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	return true, fn(ctx)
}

var fixedNow = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func newTestCron(t *testing.T, runner Runner, locker Locker) *Cron {
	t.Helper()
	cr, err := NewCron("0 */6 * * *", runner, locker, collector.Options{Projects: []string{"ABC"}, SprintReports: true}, 7*time.Hour, time.Minute)
	require.NoError(t, err)
	cr.now = func() time.Time { return fixedNow }
	return cr
}

func TestSyncRunsIncremental(t *testing.T) {
	runner := &fakeRunner{}
	newTestCron(t, runner, nil).sync()

	require.Len(t, runner.calls, 1)
	opts := runner.calls[0]
	assert.Equal(t, models.SyncTypeIncremental, opts.Type)
	assert.Equal(t, fixedNow.Add(-7*time.Hour), opts.Since)
	assert.Equal(t, []string{"ABC"}, opts.Projects)
	assert.True(t, opts.SprintReports)
}

func TestSyncRespectsLock(t *testing.T) {
	tests := []struct {
		name      string
		locker    *fakeLocker
		wantCalls int
	}{
		{name: "Lock free", locker: &fakeLocker{}, wantCalls: 1},
		{name: "Lock held elsewhere", locker: &fakeLocker{held: true}, wantCalls: 0},
		{name: "Lock error", locker: &fakeLocker{err: errors.New("connection refused")}, wantCalls: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			newTestCron(t, runner, tt.locker).sync()

			assert.Equal(t, 1, tt.locker.took)
			assert.Len(t, runner.calls, tt.wantCalls)
		})
	}
}

func TestSyncFailureDoesNotPanic(t *testing.T) {
	runner := &fakeRunner{err: errors.New("jira down")}
	assert.NotPanics(t, newTestCron(t, runner, &fakeLocker{}).sync)
}

func TestNewCronSchedule(t *testing.T) {
	_, err := NewCron("every now and then", &fakeRunner{}, nil, collector.Options{}, time.Hour, time.Minute)
	assert.Error(t, err)

	cr, err := NewCron("@hourly", &fakeRunner{}, nil, collector.Options{}, time.Hour, time.Minute)
	require.NoError(t, err)
	cr.Start()
	defer cr.Stop()
	assert.False(t, cr.Next().IsZero())
}

func TestNextBeforeStart(t *testing.T) {
	cr := newTestCron(t, &fakeRunner{}, nil)
	assert.Equal(t, fixedNow.Add(6*time.Hour), cr.Next())
}

func TestLookback(t *testing.T) {
	tests := []struct {
		schedule string
		want     time.Duration
		wantErr  bool
	}{
		{schedule: "0 */6 * * *", want: 12 * time.Hour},
		{schedule: "@hourly", want: 2 * time.Hour},
		{schedule: "30 2 * * *", want: 48 * time.Hour},
		{schedule: "61 * * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			got, err := Lookback(tt.schedule, fixedNow)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
