package generator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/errors"
)

// Scheduler owns every periodic task of the generator. Each task has its
// own cancel function; Stop cancels them all in one sweep and waits.
type Scheduler struct {
	clock  clockwork.Clock
	logger *zap.Logger

	mu    sync.Mutex
	tasks map[string]context.CancelFunc
	wg    sync.WaitGroup
}

func NewScheduler(clock clockwork.Clock, logger *zap.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		clock:  clock,
		logger: logger.Named("scheduler"),
		tasks:  make(map[string]context.CancelFunc),
	}
}

// Every runs fn each interval until the task is cancelled or ctx ends.
// The first run happens one interval after scheduling.
func (s *Scheduler) Every(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context)) error {
	if interval <= 0 {
		return errors.NewValidationError("INVALID_INTERVAL", "task interval must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return errors.NewValidationError("TASK_EXISTS", "task already scheduled: "+name)
	}

	taskCtx, cancel := context.WithCancel(ctx)
	s.tasks[name] = cancel
	ticker := s.clock.NewTicker(interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				fn(taskCtx)
			case <-taskCtx.Done():
				return
			}
		}
	}()

	s.logger.Debug("task scheduled", zap.String("task", name), zap.Duration("interval", interval))
	return nil
}

// Cancel stops one task without waiting for it. Reports whether it existed.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel, ok := s.tasks[name]
	if !ok {
		return false
	}
	cancel()
	delete(s.tasks, name)
	return true
}

// Names returns the scheduled task names, sorted
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Stop cancels every task and waits for all task goroutines to return.
// No task runs after Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for name, cancel := range s.tasks {
		cancel()
		delete(s.tasks, name)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
