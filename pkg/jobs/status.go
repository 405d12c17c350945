package jobs

import (
	"sync"
	"time"
)

// State is the lifecycle position of a tracked job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateRetrying  State = "retrying"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Status is the externally visible record of a job.
type Status struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Owner      string      `json:"-"`
	State      State       `json:"state"`
	Attempts   int         `json:"attempts"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// Done reports whether the job reached a terminal state.
func (s Status) Done() bool {
	return s.State == StateSucceeded || s.State == StateFailed
}

type tracker struct {
	mu        sync.RWMutex
	items     map[string]*Status
	retention time.Duration
}

func newTracker(retention time.Duration) *tracker {
	return &tracker{items: make(map[string]*Status), retention: retention}
}

func (t *tracker) queued(job Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[job.ID] = &Status{
		ID:         job.ID,
		Type:       job.Type,
		Owner:      job.Owner,
		State:      StateQueued,
		EnqueuedAt: job.Enqueued,
	}
}

func (t *tracker) running(id string, attempt int) {
	t.update(id, func(s *Status) {
		s.State = StateRunning
		s.Attempts = attempt + 1
	})
}

func (t *tracker) retrying(id string, attempt int, err error) {
	t.update(id, func(s *Status) {
		s.State = StateRetrying
		s.Attempts = attempt
		s.Error = err.Error()
	})
}

func (t *tracker) finish(id string, state State, result interface{}, err error) {
	now := time.Now().UTC()
	t.update(id, func(s *Status) {
		s.State = state
		s.Result = result
		s.FinishedAt = &now
		s.Error = ""
		if err != nil {
			s.Error = err.Error()
		}
	})
}

func (t *tracker) update(id string, fn func(*Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.items[id]; ok {
		fn(s)
	}
}

func (t *tracker) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.items, id)
}

func (t *tracker) get(id string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.items[id]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

func (t *tracker) prune(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, s := range t.items {
		if s.FinishedAt != nil && now.Sub(*s.FinishedAt) > t.retention {
			delete(t.items, id)
			removed++
		}
	}
	return removed
}
