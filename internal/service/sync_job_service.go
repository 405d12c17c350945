package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
	"github.com/noah-isme/studycal-api/pkg/jobs"
)

const (
	// JobSyncAll pushes the configured scope.
	JobSyncAll = "sync.all"
	// JobSyncRetry pushes the subset rejected by the previous push.
	JobSyncRetry = "sync.retry"
)

// SyncJobService runs calendar pushes on the background queue and tracks them per owner.
type SyncJobService struct {
	sessions sessionProvider
	queue    *jobs.Queue
	logger   *zap.Logger
}

// NewSyncJobService builds the service and its queue. Start must be called before jobs are accepted.
func NewSyncJobService(sessions sessionProvider, cfg jobs.QueueConfig) *SyncJobService {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &SyncJobService{sessions: sessions, logger: cfg.Logger}
	s.queue = jobs.NewQueue("calendar-sync", s.handle, cfg)
	return s
}

// Start launches the workers.
func (s *SyncJobService) Start(ctx context.Context) { s.queue.Start(ctx) }

// Stop waits for running pushes to return.
func (s *SyncJobService) Stop() { s.queue.Stop() }

// Enqueue schedules a push for userID and returns the job id.
func (s *SyncJobService) Enqueue(userID, jobType string) (string, error) {
	if jobType != JobSyncAll && jobType != JobSyncRetry {
		return "", appErrors.Clone(appErrors.ErrUnsupported, fmt.Sprintf("unknown sync job %q", jobType))
	}
	id, err := s.queue.Enqueue(jobs.Job{Type: jobType, Owner: userID})
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue sync")
	}
	return id, nil
}

// AutoSync queues a full push, logging instead of failing.
func (s *SyncJobService) AutoSync(userID string) {
	if _, err := s.Enqueue(userID, JobSyncAll); err != nil {
		s.logger.Warn("failed to queue automatic sync", zap.String("user_id", userID), zap.Error(err))
	}
}

// Status returns a job owned by userID.
func (s *SyncJobService) Status(userID, id string) (jobs.Status, error) {
	status, ok := s.queue.Status(id)
	if !ok || status.Owner != userID {
		return jobs.Status{}, appErrors.Clone(appErrors.ErrNotFound, "sync job not found")
	}
	return status, nil
}

// PruneTask drops finished job records for the scheduler.
func (s *SyncJobService) PruneTask(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n := s.queue.Prune(time.Now()); n > 0 {
		s.logger.Debug("pruned sync jobs", zap.Int("removed", n))
	}
	return nil
}

func (s *SyncJobService) handle(ctx context.Context, job jobs.Job) (interface{}, error) {
	sess, err := s.sessions.Get(ctx, job.Owner)
	if err != nil {
		return nil, err
	}
	run := sess.Sync.SyncAll
	if job.Type == JobSyncRetry {
		run = sess.Sync.RetryFailed
	}
	outcome, err := run(ctx)
	if err == nil {
		return outcome, nil
	}

	var notConnected *appErrors.NotConnectedError
	var syncErr *appErrors.SyncError
	switch {
	case errors.As(err, &notConnected), errors.As(err, &syncErr):
		// Rejected items wait for an explicit retry.
		return outcome, jobs.Permanent(err)
	default:
		return outcome, err
	}
}
