// Package orchestrator runs the fusion engine alongside independently paced
// periodic tasks.
//
// Tasks never wait on each other. Each reads the newest orientation and
// shared telemetry when it wakes up; nothing is queued.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"dogspeed/internal/metrics"
)

// Task is one periodic job. Run is called once per Period; a returned error
// (or a panic) ends that task only.
type Task struct {
	Name   string
	Period time.Duration
	Run    func(ctx context.Context) error
}

// Fusion is the engine lifecycle the orchestrator drives.
type Fusion interface {
	Start(ctx context.Context) error
	Done() <-chan struct{}
	Err() error
}

type TaskStatus struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	Runs      uint64    `json:"runs"`
	LastRunAt time.Time `json:"last_run_utc,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

type Orchestrator struct {
	fusion  Fusion
	metrics *metrics.Metrics

	mu     sync.RWMutex
	tasks  []Task
	status map[string]*TaskStatus
	ran    bool
}

// New returns an orchestrator for f. f may be nil for task-only use.
func New(f Fusion, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{fusion: f, metrics: m, status: make(map[string]*TaskStatus)}
}

func (o *Orchestrator) Add(t Task) error {
	if t.Name == "" {
		return fmt.Errorf("orchestrator: task name is empty")
	}
	if t.Period <= 0 {
		return fmt.Errorf("orchestrator: task %s: period must be > 0", t.Name)
	}
	if t.Run == nil {
		return fmt.Errorf("orchestrator: task %s: run is nil", t.Name)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ran {
		return fmt.Errorf("orchestrator: task %s: already running", t.Name)
	}
	if _, ok := o.status[t.Name]; ok {
		return fmt.Errorf("orchestrator: duplicate task %s", t.Name)
	}
	o.tasks = append(o.tasks, t)
	o.status[t.Name] = &TaskStatus{Name: t.Name}
	return nil
}

// Tasks returns per-task status sorted by name.
func (o *Orchestrator) Tasks() []TaskStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]TaskStatus, 0, len(o.status))
	for _, st := range o.status {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run starts the fusion engine (blocking for its first sample), then every
// task, and returns after ctx is cancelled and all tasks have stopped. A
// fusion start failure is returned before any task runs.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.ran {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: already running")
	}
	o.ran = true
	tasks := append([]Task(nil), o.tasks...)
	o.mu.Unlock()

	if o.fusion != nil {
		if err := o.fusion.Start(ctx); err != nil {
			return fmt.Errorf("orchestrator: start fusion: %w", err)
		}
		go func() {
			select {
			case <-o.fusion.Done():
				if ctx.Err() == nil {
					log.Printf("fusion ended err=%v", o.fusion.Err())
				}
			case <-ctx.Done():
			}
		}()
	}

	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			o.runTask(ctx, t)
		}(t)
	}
	log.Printf("orchestrator running tasks=%d", len(tasks))
	<-ctx.Done()
	wg.Wait()
	return nil
}

func (o *Orchestrator) runTask(ctx context.Context, t Task) {
	o.update(t.Name, func(st *TaskStatus) { st.Running = true })
	defer o.update(t.Name, func(st *TaskStatus) { st.Running = false })
	defer func() {
		if r := recover(); r != nil {
			o.fail(t.Name, fmt.Errorf("panic: %v", r))
		}
	}()

	tick := time.NewTicker(t.Period)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		err := t.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.fail(t.Name, err)
			return
		}
		o.update(t.Name, func(st *TaskStatus) {
			st.Runs++
			st.LastRunAt = time.Now().UTC()
		})
	}
}

func (o *Orchestrator) fail(name string, err error) {
	log.Printf("task stopped name=%s err=%v", name, err)
	o.metrics.TaskFailed(name)
	o.update(name, func(st *TaskStatus) { st.LastError = err.Error() })
}

func (o *Orchestrator) update(name string, fn func(*TaskStatus)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.status[name]; ok {
		fn(st)
	}
}
