// Package orchestrator implements the priority-aware command scheduler
// (C4): it queues tool invocations by priority, enforces a concurrency
// cap with a counting semaphore, and returns futures for results. The
// worker-pool-over-a-channel-backed-semaphore shape follows the
// goroutine/mutex idiom hector uses throughout pkg/runtime and
// pkg/registry, generalized here into an explicit scheduler since hector
// itself has no standalone priority queue to ground on directly.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kadirpekel/forge/pkg/logger"
	"github.com/kadirpekel/forge/pkg/process"
	"github.com/kadirpekel/forge/pkg/recovery"
	"github.com/kadirpekel/forge/pkg/tool"
)

// Task is a submitted ToolInvocation tracked by the Orchestrator from
// submission on. Retrieving its result does not remove it from the
// Orchestrator's task map.
type Task struct {
	ID         string
	Invocation tool.Invocation

	mu     sync.Mutex
	done   chan struct{}
	result *tool.Result
}

func (t *Task) publish(r *tool.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.done:
		return // already published; publication is idempotent
	default:
	}
	t.result = r
	close(t.done)
}

// Metrics is the counter snapshot spec.md §4.4 requires at minimum.
type Metrics struct {
	Submitted         int64
	CompletedSuccess  int64
	CompletedFailure  int64
	Cancelled         int64
	InFlight          int64
	QueueDepthByBand  map[string]int
}

// Registry is the subset of *tool.Registry the Orchestrator depends on,
// named so tests can stub it.
type Registry interface {
	Execute(ctx context.Context, name string, args map[string]any) (*tool.Result, error)
}

// Recoverer is the subset of *recovery.Module the Orchestrator depends
// on, named so tests can stub it without constructing a full Module.
type Recoverer interface {
	Recover(ctx context.Context, fc recovery.FailureContext) recovery.Outcome
}

// Orchestrator is the priority scheduler. Construct with New, then call
// Start before Submit; Stop drains the queue and tears down workers.
type Orchestrator struct {
	registry    Registry
	concurrency int
	processes   *process.Manager
	log         *slog.Logger

	mu        sync.Mutex
	queue     *priorityQueue
	inFlight  map[string]*Task
	notify    chan struct{}
	seq       uint64
	stopping  bool
	stopped   chan struct{}
	wg        sync.WaitGroup
	sem       chan struct{}
	recovery  Recoverer

	submitted, success, failure, cancelled atomic.Int64

	metricSubmitted prometheus.Counter
	metricSuccess   prometheus.Counter
	metricFailure   prometheus.Counter
}

// Option configures an Orchestrator at construction.
type Option func(*Orchestrator)

// WithProcessManager attaches the Process Manager used for
// cleanup-on-shutdown (spec.md §4.4 "Cancellation").
func WithProcessManager(pm *process.Manager) Option {
	return func(o *Orchestrator) { o.processes = pm }
}

// WithLogger overrides the package default logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithRecovery attaches the Error-Recovery Module (C6) the Orchestrator
// consults when a tool returns a non-success, recovery-eligible Result
// (spec.md §4.6 "Trigger"). Left unset, failures are returned as-is.
func WithRecovery(r Recoverer) Option {
	return func(o *Orchestrator) { o.recovery = r }
}

// SetRecovery attaches a Recoverer after construction. recovery.New
// itself requires a live Orchestrator to resubmit through, so the usual
// wiring order is New(...), then recovery.New(..., orch, ...), then
// orch.SetRecovery(recoveryModule) — this setter closes that cycle
// without either package needing a forward declaration of the other.
func (o *Orchestrator) SetRecovery(r Recoverer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recovery = r
}

// New builds an Orchestrator with the given concurrency cap N (default 5
// if n<=0, matching spec.md §4.4).
func New(registry Registry, n int, opts ...Option) *Orchestrator {
	if n <= 0 {
		n = 5
	}
	o := &Orchestrator{
		registry:    registry,
		concurrency: n,
		processes:   process.NewManager(),
		log:         logger.Default(),
		queue:       newPriorityQueue(),
		inFlight:    make(map[string]*Task),
		notify:      make(chan struct{}, 1),
		stopped:     make(chan struct{}),
		sem:         make(chan struct{}, n),
		metricSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forge_orchestrator_tasks_submitted_total",
		}),
		metricSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forge_orchestrator_tasks_success_total",
		}),
		metricFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forge_orchestrator_tasks_failure_total",
		}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start spawns N worker loops that dequeue and execute tasks.
func (o *Orchestrator) Start() {
	for i := 0; i < o.concurrency; i++ {
		o.wg.Add(1)
		go o.worker()
	}
}

// Submit enqueues a tool invocation and returns its task id immediately;
// the task is dispatched according to the priority/FIFO ordering spec.md
// §4.4 specifies.
func (o *Orchestrator) Submit(toolName string, args map[string]any, priority tool.Priority, timeout time.Duration) string {
	taskID := uuid.NewString()
	inv := tool.Invocation{
		Tool:      toolName,
		Args:      args,
		Priority:  priority,
		TaskID:    taskID,
		Submitted: time.Now(),
		Timeout:   timeout,
	}
	task := &Task{ID: taskID, Invocation: inv, done: make(chan struct{})}

	o.mu.Lock()
	o.inFlight[taskID] = task
	o.seq++
	o.queue.push(&queuedTask{task: task, seq: o.seq})
	stopping := o.stopping
	o.mu.Unlock()

	o.metricSubmitted.Inc()
	o.submitted.Add(1)

	if stopping {
		task.publish(tool.Failure(tool.ErrCancelled, "orchestrator is stopping"))
		return taskID
	}

	select {
	case o.notify <- struct{}{}:
	default:
	}
	return taskID
}

// Result blocks (up to timeout, if positive) for a task's result.
// Returns (result, true) on completion, (nil, false) on timeout.
func (o *Orchestrator) Result(taskID string, timeout time.Duration) (*tool.Result, bool) {
	o.mu.Lock()
	task, ok := o.inFlight[taskID]
	o.mu.Unlock()
	if !ok {
		return nil, false
	}

	if timeout <= 0 {
		<-task.done
		return task.result, true
	}

	select {
	case <-task.done:
		return task.result, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Metrics returns a point-in-time counter snapshot.
func (o *Orchestrator) Metrics() Metrics {
	o.mu.Lock()
	defer o.mu.Unlock()
	depth := make(map[string]int, len(o.queue.depth))
	for band, n := range o.queue.depth {
		depth[band.String()] = n
	}
	return Metrics{
		Submitted:        o.submitted.Load(),
		CompletedSuccess: o.success.Load(),
		CompletedFailure: o.failure.Load(),
		Cancelled:        o.cancelled.Load(),
		InFlight:         int64(len(o.sem)),
		QueueDepthByBand: depth,
	}
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		qt := o.dequeue()
		if qt == nil {
			return // Stop() closed stopped and drained the queue
		}
		o.execute(qt.task)
	}
}

// dequeue blocks until a task is ready or the orchestrator has stopped.
// Dequeuing itself never blocks on a task's execution: the semaphore
// acquisition happens inside execute, after the task has already left
// the queue, so a long-running tool never starves the queue (spec.md
// §4.4 "Workers never block the queue on a long I/O tool").
func (o *Orchestrator) dequeue() *queuedTask {
	for {
		o.mu.Lock()
		qt := o.queue.pop()
		o.mu.Unlock()
		if qt != nil {
			return qt
		}

		select {
		case <-o.stopped:
			return nil
		case <-o.notify:
			continue
		}
	}
}

func (o *Orchestrator) execute(task *Task) {
	select {
	case o.sem <- struct{}{}:
	case <-o.stopped:
		task.publish(tool.Failure(tool.ErrCancelled, "orchestrator stopped before dispatch"))
		o.cancelled.Add(1)
		return
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if task.Invocation.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, task.Invocation.Timeout)
	}

	resultCh := make(chan *tool.Result, 1)
	go func() {
		start := time.Now()
		result, err := o.registry.Execute(ctx, task.Invocation.Tool, task.Invocation.Args)
		if err != nil {
			result = tool.Failure(tool.ErrInternal, err.Error())
		}
		if result.Metadata == nil {
			result.Metadata = map[string]any{}
		}
		result.Metadata["execution_time"] = time.Since(start).String()
		resultCh <- result
	}()

	var result *tool.Result
	select {
	case result = <-resultCh:
	case <-ctx.Done():
		// The task's own context is already cancelled; any process it
		// spawned via the Process Manager sees ctx.Done and is escalated
		// by its own Spawn/Wait pairing. Other in-flight tasks are
		// unaffected.
		result = tool.Failure(tool.ErrTimeout, fmt.Sprintf("task %s timed out", task.ID))
	}
	if cancel != nil {
		cancel()
	}

	// Release the slot before recovery ever resubmits anything: recovery
	// runs on its own goroutine below so a saturated semaphore (even
	// N=1) can still dequeue and execute the resubmitted attempt instead
	// of deadlocking against the worker that is awaiting it.
	<-o.sem

	o.maybeRecover(task, result)
}

// maybeRecover hands a non-success, recovery-eligible result to the
// Error-Recovery Module (spec.md §4.6 "Trigger") on a dedicated
// goroutine so the worker that ran the original attempt returns
// immediately to dequeue the next task. The goroutine is tracked by the
// same WaitGroup Stop() drains, so shutdown still waits for any
// in-flight recovery session.
func (o *Orchestrator) maybeRecover(task *Task, result *tool.Result) {
	o.mu.Lock()
	rec := o.recovery
	o.mu.Unlock()

	if rec == nil || !recovery.ShouldRecover(result) {
		o.publishResult(task, result)
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fc := recovery.FailureContext{
			Goal:       task.Invocation.Tool,
			Invocation: task.Invocation,
			Result:     result,
		}
		outcome := rec.Recover(context.Background(), fc)
		o.publishResult(task, outcome.Result)
	}()
}

func (o *Orchestrator) publishResult(task *Task, result *tool.Result) {
	if result.Success {
		o.success.Add(1)
		o.metricSuccess.Inc()
	} else {
		o.failure.Add(1)
		o.metricFailure.Inc()
	}
	task.publish(result)
}

// Stop drains the queue (each remaining task completes with a
// cancellation result), signals workers to exit after their current
// task, and tears down every live child process via the Process Manager.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopping {
		o.mu.Unlock()
		return
	}
	o.stopping = true
	pending := o.queue.drain()
	o.mu.Unlock()

	for _, qt := range pending {
		qt.task.publish(tool.Failure(tool.ErrCancelled, "orchestrator stopped"))
		o.cancelled.Add(1)
	}

	close(o.stopped)
	o.wg.Wait()
	o.processes.CleanupAll()
}
