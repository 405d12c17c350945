package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studycal-api/internal/models"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
)

const eventColumns = `id, user_id, title, description, start_time, end_time, location, category, weight, course_id, recurrence, origin_ref, created_at, updated_at`

// EventRepository persists the local events of every user.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs an event repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// ListInRange returns the user's events overlapping [start, end] plus every recurring
// series that began before end; recurrences are expanded by the caller.
func (r *EventRepository) ListInRange(ctx context.Context, userID string, start, end time.Time) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + `
FROM events WHERE user_id = $1 AND start_time <= $3 AND (recurrence <> '' OR end_time >= $2)
ORDER BY start_time ASC, id ASC`
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, userID, start, end); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// GetByID fetches one of the user's events.
func (r *EventRepository) GetByID(ctx context.Context, userID, id string) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1 AND user_id = $2`
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &event, nil
}

// Create inserts an event.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	query := `INSERT INTO events (` + eventColumns + `)
VALUES (:id, :user_id, :title, :description, :start_time, :end_time, :location, :category, :weight, :course_id, :recurrence, :origin_ref, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// Update modifies an event owned by event.UserID.
func (r *EventRepository) Update(ctx context.Context, event *models.Event) error {
	event.UpdatedAt = time.Now().UTC()
	query := `UPDATE events SET title = :title, description = :description, start_time = :start_time, end_time = :end_time,
location = :location, category = :category, weight = :weight, course_id = :course_id, recurrence = :recurrence,
origin_ref = :origin_ref, updated_at = :updated_at
WHERE id = :id AND user_id = :user_id`
	res, err := r.db.NamedExecContext(ctx, query, event)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return expectAffected(res, "event not found")
}

// Delete removes one of the user's events.
func (r *EventRepository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM events WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return expectAffected(res, "event not found")
}

func expectAffected(res sql.Result, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, msg)
	}
	return nil
}
