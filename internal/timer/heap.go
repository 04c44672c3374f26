package timer

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Job is the work run when a task expires
type Job func(ctx context.Context)

// NextFunc returns the run time following the given one
type NextFunc func(after time.Time) (time.Time, error)

// TimerTask represents a job scheduled for future execution
type TimerTask struct {
	ID       string
	ExpiryAt time.Time
	Job      Job
	next     NextFunc // non-nil for recurring tasks
	index    int      // index in the heap (for heap.Interface)
}

// timerHeap is a min-heap of TimerTasks ordered by ExpiryAt
type timerHeap []*TimerTask

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	return h[i].ExpiryAt.Before(h[j].ExpiryAt)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	n := len(*h)
	task := x.(*TimerTask)
	task.index = n
	*h = append(*h, task)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil  // avoid memory leak
	task.index = -1 // for safety
	*h = old[0 : n-1]
	return task
}

// TimerManager runs scheduled jobs using a min-heap. At most maxRunning
// jobs run at once; expired jobs wait for a free slot.
type TimerManager struct {
	heap      timerHeap
	mu        sync.Mutex
	wakeup    chan struct{}
	tasks     map[string]*TimerTask // for O(1) lookup by ID
	slots     chan struct{}
	jobWg     sync.WaitGroup
	loopDone  chan struct{}
	running   int
	completed int
	started   bool
	stopped   bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewTimerManager creates a new timer manager
func NewTimerManager(maxRunning int) *TimerManager {
	if maxRunning < 1 {
		maxRunning = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	tm := &TimerManager{
		heap:     make(timerHeap, 0),
		wakeup:   make(chan struct{}, 1),
		tasks:    make(map[string]*TimerTask),
		slots:    make(chan struct{}, maxRunning),
		loopDone: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	heap.Init(&tm.heap)
	return tm
}

// Start starts the scheduler loop
func (tm *TimerManager) Start() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.started || tm.stopped {
		return
	}
	tm.started = true
	go tm.run()
}

// Stop cancels running jobs and waits for them to return
func (tm *TimerManager) Stop() {
	tm.mu.Lock()
	if tm.stopped {
		tm.mu.Unlock()
		return
	}
	tm.stopped = true
	tm.cancel()
	if !tm.started {
		close(tm.loopDone)
	}
	tm.mu.Unlock()

	<-tm.loopDone
	tm.jobWg.Wait()
}

// Schedule adds a one-shot job to be executed at the specified time
func (tm *TimerManager) Schedule(id string, expiryAt time.Time, job Job) error {
	return tm.schedule(&TimerTask{ID: id, ExpiryAt: expiryAt, Job: job})
}

// ScheduleRecurring runs job at next(now), then again at next of every
// run time, until cancelled or stopped
func (tm *TimerManager) ScheduleRecurring(id string, next NextFunc, job Job) (time.Time, error) {
	at, err := next(time.Now())
	if err != nil {
		return time.Time{}, err
	}
	if err := tm.schedule(&TimerTask{ID: id, ExpiryAt: at, Job: job, next: next}); err != nil {
		return time.Time{}, err
	}
	return at, nil
}

func (tm *TimerManager) schedule(task *TimerTask) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.stopped {
		return ErrManagerStopped
	}

	// Remove existing task with same ID if present
	if existing, ok := tm.tasks[task.ID]; ok {
		heap.Remove(&tm.heap, existing.index)
		delete(tm.tasks, task.ID)
	}

	heap.Push(&tm.heap, task)
	tm.tasks[task.ID] = task

	// Wake up the scheduler if this is the earliest task
	if tm.heap[0] == task {
		select {
		case tm.wakeup <- struct{}{}:
		default:
		}
	}

	return nil
}

// Cancel removes a scheduled task
func (tm *TimerManager) Cancel(id string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task, ok := tm.tasks[id]
	if !ok {
		return false
	}

	heap.Remove(&tm.heap, task.index)
	delete(tm.tasks, id)
	return true
}

// NextRun returns when the task with id is due
func (tm *TimerManager) NextRun(id string) (time.Time, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task, ok := tm.tasks[id]
	if !ok {
		return time.Time{}, false
	}
	return task.ExpiryAt, true
}

// run is the main scheduler loop
func (tm *TimerManager) run() {
	defer close(tm.loopDone)

	for {
		tm.mu.Lock()

		if tm.stopped {
			tm.mu.Unlock()
			return
		}

		var waitDuration time.Duration
		if tm.heap.Len() == 0 {
			// No tasks, wait indefinitely
			waitDuration = 24 * time.Hour
		} else {
			nextTask := tm.heap[0]
			waitDuration = time.Until(nextTask.ExpiryAt)

			if waitDuration <= 0 {
				task := heap.Pop(&tm.heap).(*TimerTask)
				delete(tm.tasks, task.ID)
				tm.reschedule(task)
				tm.mu.Unlock()

				tm.dispatch(task)
				continue
			}
		}

		tm.mu.Unlock()

		// Wait for either timeout or wakeup signal
		timer := time.NewTimer(waitDuration)
		select {
		case <-timer.C:
			// Time to check for expired tasks
		case <-tm.wakeup:
			// New task added or existing task updated
			timer.Stop()
		case <-tm.ctx.Done():
			timer.Stop()
			return
		}
	}
}

// reschedule queues the following run of a recurring task. Caller holds mu.
func (tm *TimerManager) reschedule(task *TimerTask) {
	if task.next == nil {
		return
	}
	at, err := task.next(task.ExpiryAt)
	if err != nil || !at.After(task.ExpiryAt) {
		return
	}
	following := &TimerTask{ID: task.ID, ExpiryAt: at, Job: task.Job, next: task.next}
	heap.Push(&tm.heap, following)
	tm.tasks[task.ID] = following
}

// dispatch runs the job once a slot is free
func (tm *TimerManager) dispatch(task *TimerTask) {
	select {
	case tm.slots <- struct{}{}:
	case <-tm.ctx.Done():
		return
	}

	tm.mu.Lock()
	tm.running++
	tm.mu.Unlock()

	tm.jobWg.Add(1)
	go func() {
		defer tm.jobWg.Done()
		defer func() {
			<-tm.slots
			tm.mu.Lock()
			tm.running--
			tm.completed++
			tm.mu.Unlock()
		}()
		task.Job(tm.ctx)
	}()
}

// Stats returns statistics about the timer manager
func (tm *TimerManager) Stats() TimerStats {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	return TimerStats{
		ScheduledTasks: len(tm.tasks),
		RunningJobs:    tm.running,
		CompletedJobs:  tm.completed,
		MaxRunning:     cap(tm.slots),
	}
}

// TimerStats contains statistics about the timer manager
type TimerStats struct {
	ScheduledTasks int
	RunningJobs    int
	CompletedJobs  int
	MaxRunning     int
}

var (
	ErrManagerStopped = &TimerError{"timer manager is stopped"}
)

// TimerError represents a timer error
type TimerError struct {
	msg string
}

func (e *TimerError) Error() string {
	return e.msg
}
