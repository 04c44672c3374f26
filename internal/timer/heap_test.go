package timer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestTimerManager_Schedule(t *testing.T) {
	defer goleak.VerifyNone(t)

	tm := NewTimerManager(2)
	tm.Start()
	defer tm.Stop()

	executed := false
	var mu sync.Mutex

	err := tm.Schedule("april", time.Now().Add(100*time.Millisecond), func(context.Context) {
		mu.Lock()
		executed = true
		mu.Unlock()
	})

	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	if !executed {
		t.Error("Job was not executed")
	}
	mu.Unlock()
}

func TestTimerManager_Cancel(t *testing.T) {
	tm := NewTimerManager(2)
	tm.Start()
	defer tm.Stop()

	executed := false
	var mu sync.Mutex

	err := tm.Schedule("april", time.Now().Add(100*time.Millisecond), func(context.Context) {
		mu.Lock()
		executed = true
		mu.Unlock()
	})

	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	// Cancel the task
	cancelled := tm.Cancel("april")
	if !cancelled {
		t.Error("Cancel returned false")
	}

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	if executed {
		t.Error("Job was executed despite being cancelled")
	}
	mu.Unlock()
}

func TestTimerManager_MultipleTasksOrdering(t *testing.T) {
	tm := NewTimerManager(1)
	tm.Start()
	defer tm.Stop()

	var results []int
	var mu sync.Mutex

	record := func(n int) Job {
		return func(context.Context) {
			mu.Lock()
			results = append(results, n)
			mu.Unlock()
		}
	}

	// Schedule tasks in reverse order
	tm.Schedule("month3", time.Now().Add(150*time.Millisecond), record(3))
	tm.Schedule("month1", time.Now().Add(50*time.Millisecond), record(1))
	tm.Schedule("month2", time.Now().Add(100*time.Millisecond), record(2))

	time.Sleep(250 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if results[0] != 1 || results[1] != 2 || results[2] != 3 {
		t.Errorf("Jobs executed in wrong order: %v", results)
	}
}

func TestTimerManager_RescheduleExisting(t *testing.T) {
	tm := NewTimerManager(2)
	tm.Start()
	defer tm.Stop()

	count := 0
	var mu sync.Mutex

	tm.Schedule("april", time.Now().Add(100*time.Millisecond), func(context.Context) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	// Reschedule with same ID (should replace)
	tm.Schedule("april", time.Now().Add(50*time.Millisecond), func(context.Context) {
		mu.Lock()
		count += 10
		mu.Unlock()
	})

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	if count != 10 {
		t.Errorf("Expected count=10 (only second job), got %d", count)
	}
	mu.Unlock()
}

func TestTimerManager_Recurring(t *testing.T) {
	defer goleak.VerifyNone(t)

	tm := NewTimerManager(1)
	tm.Start()
	defer tm.Stop()

	runs := make(chan struct{}, 10)
	next := func(after time.Time) (time.Time, error) {
		now := time.Now()
		if after.After(now) {
			now = after
		}
		return now.Add(30 * time.Millisecond), nil
	}

	first, err := tm.ScheduleRecurring("monthly", next, func(context.Context) {
		runs <- struct{}{}
	})
	if err != nil {
		t.Fatalf("ScheduleRecurring failed: %v", err)
	}
	if !first.After(time.Now().Add(-time.Second)) {
		t.Errorf("Unexpected first run %v", first)
	}

	for i := 0; i < 3; i++ {
		select {
		case <-runs:
		case <-time.After(time.Second):
			t.Fatalf("Expected run %d", i+1)
		}
	}

	if _, ok := tm.NextRun("monthly"); !ok {
		t.Error("Recurring task should stay scheduled")
	}
}

func TestTimerManager_RecurringInvalidNext(t *testing.T) {
	tm := NewTimerManager(1)
	defer tm.Stop()

	_, err := tm.ScheduleRecurring("monthly", func(time.Time) (time.Time, error) {
		return time.Time{}, errors.New("invalid time format")
	}, func(context.Context) {})
	if err == nil {
		t.Error("Expected error from next function")
	}
}

func TestTimerManager_StopCancelsRunningJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	tm := NewTimerManager(1)
	tm.Start()

	started := make(chan struct{})
	cancelled := make(chan struct{})
	tm.Schedule("april", time.Now(), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	})

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("Job did not start")
	}

	tm.Stop()

	select {
	case <-cancelled:
	default:
		t.Error("Stop returned before the running job observed cancellation")
	}

	if err := tm.Schedule("may", time.Now(), func(context.Context) {}); err != ErrManagerStopped {
		t.Errorf("Expected ErrManagerStopped, got %v", err)
	}
}

func TestTimerManager_Stats(t *testing.T) {
	tm := NewTimerManager(5)
	tm.Start()
	defer tm.Stop()

	tm.Schedule("month1", time.Now().Add(1*time.Hour), func(context.Context) {})
	tm.Schedule("month2", time.Now().Add(2*time.Hour), func(context.Context) {})
	tm.Schedule("month3", time.Now().Add(3*time.Hour), func(context.Context) {})

	stats := tm.Stats()
	if stats.ScheduledTasks != 3 {
		t.Errorf("Expected 3 scheduled tasks, got %d", stats.ScheduledTasks)
	}
	if stats.MaxRunning != 5 {
		t.Errorf("Expected 5 max running, got %d", stats.MaxRunning)
	}
	if stats.RunningJobs != 0 || stats.CompletedJobs != 0 {
		t.Errorf("Expected no jobs run yet, got %+v", stats)
	}
}
