package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studycal-api/internal/models"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
)

var eventCols = []string{"id", "user_id", "title", "description", "start_time", "end_time", "location", "category", "weight", "course_id", "recurrence", "origin_ref", "created_at", "updated_at"}

func TestEventRepositoryListInRange(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 23, 59, 0, 0, time.UTC)
	rows := sqlmock.NewRows(eventCols).
		AddRow("e1", "u1", "Lecture", "", start.Add(9*time.Hour), start.Add(10*time.Hour), "Hall A", "class", nil, "c1", "FREQ=WEEKLY", nil, start, start)
	mock.ExpectQuery(regexp.QuoteMeta("FROM events WHERE user_id = $1 AND start_time <= $3 AND (recurrence <> '' OR end_time >= $2)")).
		WithArgs("u1", start, end).
		WillReturnRows(rows)

	events, err := repo.ListInRange(context.Background(), "u1", start, end)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Lecture", events[0].Title)
	assert.Equal(t, models.CategoryClass, events[0].Category)
	require.NotNil(t, events[0].Location)
	assert.Equal(t, "Hall A", *events[0].Location)
	assert.Nil(t, events[0].Weight)
	assert.Equal(t, "FREQ=WEEKLY", events[0].Recurrence)
	assert.Nil(t, events[0].Overrides)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM events WHERE id = $1 AND user_id = $2")).
		WithArgs("missing", "u1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	mock.ExpectExec("INSERT INTO events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	event := &models.Event{UserID: "u1", Title: "Study", Category: models.CategoryStudy,
		StartTime: time.Now(), EndTime: time.Now().Add(time.Hour)}
	require.NoError(t, repo.Create(context.Background(), event))
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryUpdateAndDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	mock.ExpectExec("UPDATE events SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Update(context.Background(), &models.Event{ID: "e1", UserID: "u2"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM events WHERE id = $1 AND user_id = $2")).
		WithArgs("e1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "u1", "e1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
