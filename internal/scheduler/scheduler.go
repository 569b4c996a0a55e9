// Package scheduler owns the job catalog: interval arming, single-flight
// execution, history recording, and post-execute chaining.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mfleet/streamvault/internal/models"
)

var (
	// ErrJobAlreadyRunning rejects a trigger for a job with a run in flight.
	ErrJobAlreadyRunning = errors.New("job already running")
	// ErrJobBlocked rejects a trigger whose CanRun gate said no.
	ErrJobBlocked = errors.New("job blocked")
	// ErrUnknownJob rejects a trigger for a name not in the catalog.
	ErrUnknownJob = errors.New("unknown job")
)

// Job is one catalog entry. Run does the work and reports counts through the
// returned result; a non-nil error marks the run failed.
type Job struct {
	Name         string
	ProviderID   string
	Interval     time.Duration
	InitialDelay time.Duration
	Run          func(ctx context.Context) (*models.JobResult, error)

	// PostExecute names jobs chained after a successful run. Chain failures
	// are logged, never propagated.
	PostExecute []string

	// CanRun, when set, gates every trigger. Returning an error blocks the
	// run without recording history.
	CanRun func() error
}

// History is the job_history surface the scheduler records through.
type History interface {
	GetJobHistory(name, providerID string) (*models.JobHistory, error)
	UpdateJobStatus(name string, status models.JobStatus, providerID string) error
	UpdateJobHistory(name string, result *models.JobResult, providerID string) error
}

// Enqueuer hands due jobs to the task queue; execution comes back through
// Execute from the queue's worker.
type Enqueuer interface {
	Enqueue(jobName string) error
}

type Scheduler struct {
	history History
	queue   Enqueuer

	mu      sync.Mutex
	jobs    map[string]*Job
	order   []string
	running map[string]context.CancelFunc
	started time.Time
	stop    chan struct{}
	wg      sync.WaitGroup
}

func New(history History, queue Enqueuer) *Scheduler {
	return &Scheduler{
		history: history,
		queue:   queue,
		jobs:    make(map[string]*Job),
		running: make(map[string]context.CancelFunc),
	}
}

// Register adds a job to the catalog. Registration order is preserved: when
// several jobs come due on the same poll, they enqueue in that order.
func (s *Scheduler) Register(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[j.Name]; !dup {
		s.order = append(s.order, j.Name)
	}
	s.jobs[j.Name] = j
}

// Unregister drops a job from the catalog (provider deleted).
func (s *Scheduler) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; !ok {
		return
	}
	delete(s.jobs, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Jobs returns the catalog snapshot in registration order.
func (s *Scheduler) Jobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.jobs[name])
	}
	return out
}

// Start arms the interval poll. Due checks run once per pollInterval; actual
// execution happens on the queue's workers.
func (s *Scheduler) Start(pollInterval time.Duration) {
	s.mu.Lock()
	s.started = time.Now()
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.poll()
			case <-stop:
				return
			}
		}
	}()
	log.Printf("[scheduler] started, polling every %s", pollInterval)
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// poll enqueues every due job. A job with no history row (or one whose last
// execution is older than its interval) is due once its initial delay from
// process start has passed.
func (s *Scheduler) poll() {
	now := time.Now()
	for _, j := range s.Jobs() {
		if j.Interval <= 0 {
			continue
		}
		due, err := s.isDue(j, now)
		if err != nil {
			log.Printf("[scheduler] %s: due check: %v", j.Name, err)
			continue
		}
		if !due {
			continue
		}
		if err := s.queue.Enqueue(j.Name); err != nil {
			log.Printf("[scheduler] %s: enqueue: %v", j.Name, err)
		}
	}
}

func (s *Scheduler) isDue(j *Job, now time.Time) (bool, error) {
	s.mu.Lock()
	started := s.started
	_, inFlight := s.running[j.Name]
	s.mu.Unlock()
	if inFlight {
		return false, nil
	}
	if now.Sub(started) < j.InitialDelay {
		return false, nil
	}
	h, err := s.history.GetJobHistory(j.Name, j.ProviderID)
	if err != nil {
		return false, err
	}
	if h == nil || h.LastExecution == nil {
		return true, nil
	}
	return now.Sub(*h.LastExecution) >= j.Interval, nil
}

// Execute runs one job now: single-flight guard, CanRun gate, history
// bookkeeping, then the post-execute chain on success.
func (s *Scheduler) Execute(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if _, inFlight := s.running[name]; inFlight {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobAlreadyRunning, name)
	}
	if j.CanRun != nil {
		if err := j.CanRun(); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s: %v", ErrJobBlocked, name, err)
		}
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running[name] = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	if err := s.history.UpdateJobStatus(name, models.JobRunning, j.ProviderID); err != nil {
		log.Printf("[scheduler] %s: mark running: %v", name, err)
	}

	start := time.Now()
	result, err := j.Run(runCtx)
	if result == nil {
		result = &models.JobResult{}
	}
	result.DurationS = time.Since(start).Seconds()
	if err != nil {
		result.Error = err.Error()
	}
	if herr := s.history.UpdateJobHistory(name, result, j.ProviderID); herr != nil {
		log.Printf("[scheduler] %s: record history: %v", name, herr)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// A cancelled run is not a failure; last_execution stays put
			// either way, so the next armed tick retries the same window.
			if herr := s.history.UpdateJobStatus(name, models.JobCancelled, j.ProviderID); herr != nil {
				log.Printf("[scheduler] %s: mark cancelled: %v", name, herr)
			}
			log.Printf("[scheduler] %s cancelled after %.1fs", name, result.DurationS)
			return err
		}
		log.Printf("[scheduler] %s failed after %.1fs: %v", name, result.DurationS, err)
		return err
	}
	log.Printf("[scheduler] %s completed in %.1fs", name, result.DurationS)

	for _, next := range j.PostExecute {
		if cerr := s.Execute(ctx, next); cerr != nil {
			log.Printf("[scheduler] %s: post-execute %s: %v", name, next, cerr)
		}
	}
	return nil
}

// Cancel aborts an in-flight run by cancelling its context. The run records
// its failure through the normal path, so last_execution does not advance.
// Reports whether anything was in flight.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	cancel, ok := s.running[name]
	s.mu.Unlock()
	if ok {
		log.Printf("[scheduler] cancelling %s", name)
		cancel()
	}
	return ok
}

// RunningWithPrefix reports whether any in-flight job's name starts with
// prefix. The merge job gates on this to stay out of active ingestions.
func (s *Scheduler) RunningWithPrefix(prefix string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range s.running {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// ProviderJobNames lists the catalog entries bound to one provider, sorted
// for stable control-plane output.
func (s *Scheduler) ProviderJobNames(providerID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for name, j := range s.jobs {
		if j.ProviderID == providerID {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
