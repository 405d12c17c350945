package models

// Course is an LMS course visible to the user.
type Course struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	CourseCode          string  `json:"course_code,omitempty"`
	SyllabusDocumentRef *string `json:"syllabus_document_ref,omitempty"`
	SyllabusText        string  `json:"-"`
}
