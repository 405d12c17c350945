package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/studycal-api/internal/models"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
	"github.com/noah-isme/studycal-api/pkg/storage"
)

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewExportService(store, signer, ExportConfig{APIPrefix: "/api/v1"}, zap.NewNop(), nil, nil, nil)
	return svc, store
}

func exportWindow() *stubWindow {
	room := "Hall B"
	start := at("2026-03-12T09:00:00Z")
	return &stubWindow{window: &models.AggregatedWindow{
		RangeStart: at("2026-03-01T00:00:00Z"),
		RangeEnd:   at("2026-03-31T00:00:00Z"),
		Events: []models.Event{
			{ID: "syl-1", Title: "Midterm", StartTime: start, EndTime: start.Add(2 * time.Hour), Category: models.CategoryExam, ColorHex: "#c95603", SourceKind: models.SourceSyllabus, Location: &room, OriginRef: "syllabus:abc"},
			{ID: "lms-42", Title: "=cmd|' /C calc'!A0", StartTime: start.Add(24 * time.Hour), EndTime: start.Add(24 * time.Hour), Category: models.CategoryAssignment, ColorHex: "#e2711d", SourceKind: models.SourceLMS, OriginRef: "lms:42"},
		},
		Partial:       true,
		FailedSources: []models.SourceKind{models.SourceLMS},
	}}
}

func TestExportCSV(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	file, err := svc.Export(context.Background(), exportWindow(), at("2026-03-01T00:00:00Z"), at("2026-03-31T00:00:00Z"), ExportCSV)
	require.NoError(t, err)
	assert.Equal(t, "studycal_20260301_20260331.csv", file.Filename)
	body := string(file.Data)
	assert.True(t, strings.HasPrefix(body, "Date,Start,End,Title,Category,Source,Location"))
	assert.Contains(t, body, "Midterm")
	assert.Contains(t, body, "Hall B")
	assert.Contains(t, body, "'=cmd")
}

func TestExportPDF(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	file, err := svc.Export(context.Background(), exportWindow(), at("2026-03-01T00:00:00Z"), at("2026-03-31T00:00:00Z"), ExportPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Data), "%PDF"))
}

func TestExportICSUsesSyncKeys(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	file, err := svc.Export(context.Background(), exportWindow(), at("2026-03-01T00:00:00Z"), at("2026-03-31T00:00:00Z"), ExportICS)
	require.NoError(t, err)
	body := string(file.Data)
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, ExternalKey("lms:42")+"@studycal")
	assert.Equal(t, 2, strings.Count(body, "BEGIN:VEVENT"))
}

func TestParseExportFormat(t *testing.T) {
	f, err := ParseExportFormat("PDF")
	require.NoError(t, err)
	assert.Equal(t, ExportPDF, f)
	f, err = ParseExportFormat("")
	require.NoError(t, err)
	assert.Equal(t, ExportCSV, f)
	_, err = ParseExportFormat("xlsx")
	assert.ErrorIs(t, err, appErrors.ErrUnsupported)
}

func TestFeedLinkRoundTrip(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	link, err := svc.FeedLink("user-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link.URL, "/api/v1/feeds/"))

	_, err = svc.OpenFeed(link.Token)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = store.Save(storage.FeedPath("user-1"), []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	require.NoError(t, err)
	file, err := svc.OpenFeed(link.Token)
	require.NoError(t, err)
	defer file.Close()
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "VCALENDAR")

	_, err = svc.OpenFeed(link.Token + "x")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCleanupDocumentsKeepsFeeds(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	svc.cfg.DocumentTTL = time.Nanosecond
	_, err := store.Save(storage.DocumentPath("user-1", "7", "syllabus.pdf"), []byte("%PDF"))
	require.NoError(t, err)
	_, err = store.Save(storage.FeedPath("user-1"), []byte("feed"))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, svc.CleanupDocuments(context.Background()))
	_, err = store.Open(storage.FeedPath("user-1"))
	assert.NoError(t, err)
}
