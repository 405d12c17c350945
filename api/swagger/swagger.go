package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "StudyCal API",
        "description": "Unified study calendar over LMS assignments, syllabus analysis and personal events",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "Bearer": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Integrations", "description": "LMS and external calendar connections"},
        {"name": "Calendar", "description": "Aggregated calendar windows and exports"},
        {"name": "Events", "description": "Personal events and study sessions"},
        {"name": "Courses", "description": "LMS courses and syllabus analysis"},
        {"name": "Sync", "description": "External calendar push"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/metrics": {
            "get": {
                "summary": "Prometheus metrics",
                "produces": ["text/plain"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/integrations": {
            "get": {
                "tags": ["Integrations"],
                "summary": "List integration statuses",
                "security": [{"Bearer": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/integrations/{provider}": {
            "put": {
                "tags": ["Integrations"],
                "summary": "Connect a provider",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"name": "provider", "in": "path", "required": true, "type": "string", "enum": ["lms", "external_calendar"]},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ConnectRequest"}}
                ],
                "responses": {
                    "200": {"description": "Connected", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Token rejected by provider", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Integrations"],
                "summary": "Disconnect a provider",
                "security": [{"Bearer": []}],
                "parameters": [{"name": "provider", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "Disconnected", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/calendar/window": {
            "get": {
                "tags": ["Calendar"],
                "summary": "Aggregated events between start and end",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"name": "start", "in": "query", "required": true, "type": "string", "description": "RFC3339 instant or YYYY-MM-DD"},
                    {"name": "end", "in": "query", "required": true, "type": "string", "description": "RFC3339 instant or YYYY-MM-DD (whole day)"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid range", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/calendar/upcoming": {
            "get": {
                "tags": ["Calendar"],
                "summary": "Upcoming events",
                "security": [{"Bearer": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/calendar/export": {
            "get": {
                "tags": ["Calendar"],
                "summary": "Download a calendar window",
                "security": [{"Bearer": []}],
                "produces": ["text/csv", "application/pdf", "text/calendar"],
                "parameters": [
                    {"name": "start", "in": "query", "required": true, "type": "string"},
                    {"name": "end", "in": "query", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf", "ics"]}
                ],
                "responses": {"200": {"description": "File"}}
            }
        },
        "/api/v1/calendar/feed-link": {
            "get": {
                "tags": ["Calendar"],
                "summary": "Signed subscription URL for the published ICS feed",
                "security": [{"Bearer": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/feeds/{token}": {
            "get": {
                "tags": ["Calendar"],
                "summary": "Published ICS feed",
                "produces": ["text/calendar"],
                "parameters": [{"name": "token", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "Feed"}, "404": {"description": "Unknown or expired token"}}
            }
        },
        "/api/v1/events": {
            "post": {
                "tags": ["Events"],
                "summary": "Create a personal event",
                "security": [{"Bearer": []}],
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EventRequest"}}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/events/{id}": {
            "put": {
                "tags": ["Events"],
                "summary": "Update a personal event",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EventRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "delete": {
                "tags": ["Events"],
                "summary": "Delete a personal event",
                "security": [{"Bearer": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"204": {"description": "Deleted"}}
            }
        },
        "/api/v1/events/free-slots": {
            "get": {
                "tags": ["Events"],
                "summary": "Free slots on a day",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"name": "date", "in": "query", "required": true, "type": "string"},
                    {"name": "duration", "in": "query", "type": "string", "description": "minutes or Go duration, default 1h"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/events/{id}/study-session": {
            "post": {
                "tags": ["Events"],
                "summary": "Book a study session before an event",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "body", "in": "body", "schema": {"type": "object", "properties": {"duration_minutes": {"type": "integer"}}}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/courses": {
            "get": {
                "tags": ["Courses"],
                "summary": "LMS courses with analysis status",
                "security": [{"Bearer": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/courses/{id}/analysis": {
            "get": {
                "tags": ["Courses"],
                "summary": "Latest syllabus analysis",
                "security": [{"Bearer": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Courses"],
                "summary": "Analyze the LMS syllabus",
                "security": [{"Bearer": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "delete": {
                "tags": ["Courses"],
                "summary": "Invalidate the analysis",
                "security": [{"Bearer": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/courses/{id}/syllabus": {
            "post": {
                "tags": ["Courses"],
                "summary": "Upload and analyze a syllabus document",
                "security": [{"Bearer": []}],
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/sync": {
            "post": {
                "tags": ["Sync"],
                "summary": "Push the calendar to the connected external calendar",
                "security": [{"Bearer": []}],
                "parameters": [{"name": "async", "in": "query", "type": "boolean"}],
                "responses": {
                    "200": {"description": "Synced", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "207": {"description": "Partially synced", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Calendar not connected", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/sync/retry": {
            "post": {
                "tags": ["Sync"],
                "summary": "Retry the failed items of the last push",
                "security": [{"Bearer": []}],
                "parameters": [{"name": "async", "in": "query", "type": "boolean"}],
                "responses": {"200": {"description": "Synced", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/sync/jobs/{id}": {
            "get": {
                "tags": ["Sync"],
                "summary": "Background sync job status",
                "security": [{"Bearer": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "ConnectRequest": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"}
            }
        },
        "EventRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "start_time": {"type": "string", "format": "date-time"},
                "end_time": {"type": "string", "format": "date-time"},
                "location": {"type": "string"},
                "category": {"type": "string", "enum": ["exam", "assignment", "class", "study", "travel", "event"]},
                "weight": {"type": "number"},
                "course_id": {"type": "string"},
                "recurrence": {"type": "string", "description": "RFC 5545 RRULE"},
                "overrides": {"type": "string", "description": "LMS or syllabus origin this event replaces, e.g. lms:42"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
