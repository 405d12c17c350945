package service

import (
	"context"
	"encoding/json"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noah-isme/studycal-api/internal/models"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
	"github.com/noah-isme/studycal-api/pkg/lms"
)

type stubSource struct {
	kind    models.SourceKind
	events  []models.Event
	err     error
	offline bool
	block   bool
	calls   atomic.Int32
	onFetch func()
}

func (s *stubSource) Kind() models.SourceKind { return s.kind }

func (s *stubSource) Available() bool { return !s.offline }

func (s *stubSource) FetchEvents(ctx context.Context, _ models.TimeWindow) ([]models.Event, error) {
	s.calls.Add(1)
	if s.onFetch != nil {
		s.onFetch()
	}
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return append([]models.Event(nil), s.events...), nil
}

type stubLocalRepo struct {
	events []models.Event
	err    error
}

func (r *stubLocalRepo) ListInRange(context.Context, string, time.Time, time.Time) ([]models.Event, error) {
	return append([]models.Event(nil), r.events...), r.err
}

type stubLMS struct {
	mu          sync.Mutex
	courses     []lms.Course
	assignments map[string][]lms.Assignment
	err         error
	courseCalls int
}

func (s *stubLMS) Courses(context.Context, string) ([]lms.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courseCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.courses, nil
}

func (s *stubLMS) Assignments(_ context.Context, _ string, courseID string) ([]lms.Assignment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.assignments[courseID], nil
}

type stubCreds struct{ token string }

func (c stubCreds) Resolve(context.Context, string, string) (string, error) { return c.token, nil }

func connectedRegistry(providers ...models.Provider) *IntegrationRegistry {
	reg := NewIntegrationRegistry()
	for _, p := range providers {
		ref := "ref-" + string(p)
		_ = reg.SetStatus(p, models.IntegrationStatus{Connected: true, CredentialRef: &ref})
	}
	return reg
}

func at(raw string) time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		panic(err)
	}
	return t
}

func localEvent(id, title string, start time.Time, category models.Category) models.Event {
	return models.Event{ID: id, Title: title, StartTime: start, EndTime: start.Add(time.Hour), Category: category}
}

type memoryCacheRepo struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{data: make(map[string][]byte)}
}

func (r *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = raw
	return nil
}

func (r *memoryCacheRepo) Delete(_ context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.data, k)
	}
	return nil
}

func (r *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(r.data, k)
		}
	}
	return nil
}

func (r *memoryCacheRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

func strPtr(s string) *string { return &s }
