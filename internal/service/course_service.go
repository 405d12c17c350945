package service

import (
	"context"
	"io"

	"github.com/noah-isme/studycal-api/internal/models"
)

// CourseSummary is an LMS course with the state of its syllabus analysis.
type CourseSummary struct {
	models.Course
	AnalysisStatus models.AnalysisStatus `json:"analysis_status"`
}

// CourseService exposes LMS courses and their syllabus analyses.
type CourseService struct {
	sessions sessionProvider
}

// NewCourseService constructs the service.
func NewCourseService(sessions sessionProvider) *CourseService {
	return &CourseService{sessions: sessions}
}

// List returns the user's LMS courses. It fails with *NotConnectedError when the LMS is not connected.
func (s *CourseService) List(ctx context.Context, userID string) ([]CourseSummary, error) {
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	courses, err := sess.LMS.FetchCourses(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CourseSummary, 0, len(courses))
	for _, c := range courses {
		out = append(out, CourseSummary{Course: c, AnalysisStatus: sess.Analysis.GetResult(ctx, c.ID).Status})
	}
	return out, nil
}

// Analysis returns the cached analysis of courseID.
func (s *CourseService) Analysis(ctx context.Context, userID, courseID string) (*models.AnalysisResult, error) {
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Analysis.GetResult(ctx, courseID), nil
}

// Analyze triggers analysis of courseID, joining any run already in flight.
func (s *CourseService) Analyze(ctx context.Context, userID, courseID string) (*models.AnalysisResult, error) {
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Analysis.Trigger(ctx, courseID)
}

// Invalidate resets courseID to unanalyzed, keeping its current document.
func (s *CourseService) Invalidate(ctx context.Context, userID, courseID string) (*models.AnalysisResult, error) {
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Analysis.Invalidate(ctx, courseID, nil)
}

// UploadSyllabus stores a new syllabus document and invalidates the analysis.
func (s *CourseService) UploadSyllabus(ctx context.Context, userID, courseID, filename, contentType string, body io.Reader) (*models.AnalysisResult, error) {
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Analysis.UploadDocument(ctx, courseID, filename, contentType, body)
}
