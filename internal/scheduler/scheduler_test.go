package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"weather-etl/internal/services"
	"weather-etl/pkg/logging"
)

type countingRefresher struct {
	calls  atomic.Int32
	source atomic.Value
	err    error
}

func (c *countingRefresher) RefreshTransformed(_ context.Context, sourceTable string) (*services.LoadResult, error) {
	c.calls.Add(1)
	c.source.Store(sourceTable)
	if c.err != nil {
		return nil, c.err
	}
	return &services.LoadResult{Loaded: 1, Inserted: 1}, nil
}

func testLogger() *logging.StructuredLogger {
	return logging.NewStructuredLogger("scheduler-test", "test", logging.FatalLevel)
}

func waitForCalls(r *countingRefresher, n int32) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.calls.Load() >= n {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestScheduler_RunsRefresh(t *testing.T) {
	refresher := &countingRefresher{}
	s := New(refresher, "weather_data", 50*time.Millisecond, testLogger())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if !waitForCalls(refresher, 2) {
		t.Fatalf("refresh ran %d times, want at least 2", refresher.calls.Load())
	}
	if got := refresher.source.Load(); got != "weather_data" {
		t.Errorf("source table = %v, want weather_data", got)
	}
}

func TestScheduler_SurvivesFailures(t *testing.T) {
	refresher := &countingRefresher{err: errors.New("table weather_data has no rows")}
	s := New(refresher, "weather_data", 50*time.Millisecond, testLogger())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if !waitForCalls(refresher, 2) {
		t.Fatalf("refresh ran %d times after a failure, want at least 2", refresher.calls.Load())
	}
}

func TestScheduler_Disabled(t *testing.T) {
	refresher := &countingRefresher{}
	s := New(refresher, "weather_data", 0, testLogger())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	time.Sleep(100 * time.Millisecond)
	if n := refresher.calls.Load(); n != 0 {
		t.Errorf("refresh ran %d times, want 0", n)
	}
}
