// Package scheduler runs periodic maintenance tasks on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task is a unit of periodic work. It receives a context cancelled on Stop.
type Task func(ctx context.Context) error

// Scheduler wraps a cron runner with named tasks and structured logging.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	tasks   map[string]Task
	entries map[string]cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
}

// New builds a scheduler. Specs use the standard five-field syntax or descriptors like "@every 10m".
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger))),
		logger:  logger,
		tasks:   make(map[string]Task),
		entries: make(map[string]cron.EntryID),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register schedules task under name, replacing any previous registration.
func (s *Scheduler) Register(name, spec string, task Task) error {
	if task == nil {
		return fmt.Errorf("task %s is nil", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	id, err := s.cron.AddFunc(spec, func() { s.run(name, task) })
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.entries[name] = id
	s.tasks[name] = task
	return nil
}

// RunNow executes a registered task synchronously.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	task, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("task %s not registered", name)
	}
	return s.run(name, task)
}

// Next reports the next activation of a task, zero if unknown.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Start begins firing scheduled tasks.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("tasks", len(s.entries)))
}

// Stop halts the cron loop and waits for running tasks.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(name string, task Task) error {
	start := time.Now()
	err := task(s.ctx)
	if err != nil {
		s.logger.Warn("scheduled task failed", zap.String("task", name), zap.Error(err))
		return err
	}
	s.logger.Debug("scheduled task done", zap.String("task", name), zap.Duration("took", time.Since(start)))
	return nil
}
