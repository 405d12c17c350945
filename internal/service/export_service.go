package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/studycal-api/internal/models"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
	"github.com/noah-isme/studycal-api/pkg/export"
	"github.com/noah-isme/studycal-api/pkg/extcal"
	"github.com/noah-isme/studycal-api/pkg/storage"
)

// ExportFormat names a calendar export encoding.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
	ExportICS ExportFormat = "ics"
)

// ParseExportFormat accepts a format name case-insensitively.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(raw))); f {
	case ExportCSV, ExportPDF, ExportICS:
		return f, nil
	case "":
		return ExportCSV, nil
	default:
		return "", appErrors.Clone(appErrors.ErrUnsupported, fmt.Sprintf("unsupported export format %q", raw))
	}
}

type fileStorage interface {
	Open(filename string) (*os.File, error)
	CleanupOlderThan(prefix string, ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title, subtitle string) ([]byte, error)
}

type icsRenderer interface {
	Render(name string, events []export.ICSEvent) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix    string
	CalendarName string
	DocumentTTL  time.Duration
	Location     *time.Location
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// FeedLink is a signed subscription URL for a user's published ICS feed.
type FeedLink struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExportService renders calendar windows and hands out signed links to published feeds.
type ExportService struct {
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	ics     icsRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer, ics icsRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DocumentTTL <= 0 {
		cfg.DocumentTTL = 30 * 24 * time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.CalendarName == "" {
		cfg.CalendarName = "StudyCal"
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if ics == nil {
		ics = export.NewICSExporter("")
	}
	return &ExportService{
		storage: store,
		csv:     csv,
		pdf:     pdf,
		ics:     ics,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Export renders the aggregated window [start, end] in format.
func (s *ExportService) Export(ctx context.Context, calendar windowReader, start, end time.Time, format ExportFormat) (*ExportFile, error) {
	window, err := calendar.Collect(ctx, start, end)
	if err != nil {
		return nil, err
	}
	base := fmt.Sprintf("studycal_%s_%s", start.In(s.cfg.Location).Format("20060102"), end.In(s.cfg.Location).Format("20060102"))

	switch format {
	case ExportCSV:
		data, err := s.csv.Render(s.buildDataset(window))
		if err != nil {
			return nil, err
		}
		return &ExportFile{Filename: base + ".csv", ContentType: "text/csv; charset=utf-8", Data: data}, nil
	case ExportPDF:
		data, err := s.pdf.Render(s.buildDataset(window), s.cfg.CalendarName, s.subtitle(window))
		if err != nil {
			return nil, err
		}
		return &ExportFile{Filename: base + ".pdf", ContentType: "application/pdf", Data: data}, nil
	case ExportICS:
		updated := s.now()
		events := make([]export.ICSEvent, 0, len(window.Events))
		for _, ev := range window.Events {
			events = append(events, extcal.ICSEventFromItem(pushItem(ev, updated)))
		}
		data, err := s.ics.Render(s.cfg.CalendarName, events)
		if err != nil {
			return nil, err
		}
		return &ExportFile{Filename: base + ".ics", ContentType: "text/calendar; charset=utf-8", Data: data}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrUnsupported, fmt.Sprintf("unsupported export format %q", format))
	}
}

// FeedLink signs a subscription URL for userID's published feed.
func (s *ExportService) FeedLink(userID string) (*FeedLink, error) {
	token, expiresAt, err := s.signer.Generate(userID, storage.FeedPath(userID))
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &FeedLink{Token: token, URL: fmt.Sprintf("%s/feeds/%s", prefix, token), ExpiresAt: expiresAt}, nil
}

// OpenFeed validates a feed token and opens the published file.
func (s *ExportService) OpenFeed(token string) (*os.File, error) {
	owner, relPath, _, err := s.signer.Parse(token)
	switch {
	case errors.Is(err, storage.ErrTokenExpired):
		return nil, appErrors.Clone(appErrors.ErrForbidden, "feed link expired")
	case err != nil:
		return nil, appErrors.Clone(appErrors.ErrNotFound, "feed not found")
	}
	if relPath != storage.FeedPath(owner) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "feed not found")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "feed has not been published yet")
		}
		return nil, err
	}
	return file, nil
}

// CleanupDocuments removes uploaded syllabus documents older than the configured TTL.
func (s *ExportService) CleanupDocuments(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	removed, err := s.storage.CleanupOlderThan("documents", s.cfg.DocumentTTL)
	if err != nil {
		return err
	}
	if len(removed) > 0 {
		s.logger.Info("removed expired documents", zap.Int("count", len(removed)))
	}
	return nil
}

func (s *ExportService) buildDataset(window *models.AggregatedWindow) export.Dataset {
	rows := make([]map[string]string, 0, len(window.Events))
	colors := make([]string, 0, len(window.Events))
	for _, ev := range window.Events {
		start := ev.StartTime.In(s.cfg.Location)
		end := ev.EndTime.In(s.cfg.Location)
		location := ""
		if ev.Location != nil {
			location = *ev.Location
		}
		rows = append(rows, map[string]string{
			"Date":     start.Format("Mon 02 Jan 2006"),
			"Start":    start.Format("15:04"),
			"End":      end.Format("15:04"),
			"Title":    ev.Title,
			"Category": string(ev.Category),
			"Source":   string(ev.SourceKind),
			"Location": location,
		})
		colors = append(colors, ev.ColorHex)
	}
	return export.Dataset{
		Headers:   []string{"Date", "Start", "End", "Title", "Category", "Source", "Location"},
		Rows:      rows,
		RowColors: colors,
		Widths:    []float64{1.4, 0.6, 0.6, 3, 1, 0.8, 1.6},
	}
}

func (s *ExportService) subtitle(window *models.AggregatedWindow) string {
	text := fmt.Sprintf("%s to %s, %d events",
		window.RangeStart.In(s.cfg.Location).Format("02 Jan 2006"),
		window.RangeEnd.In(s.cfg.Location).Format("02 Jan 2006"),
		len(window.Events))
	if window.Partial {
		failed := make([]string, 0, len(window.FailedSources))
		for _, src := range window.FailedSources {
			failed = append(failed, string(src))
		}
		text += fmt.Sprintf(" (incomplete: %s unavailable)", strings.Join(failed, ", "))
	}
	return text
}
