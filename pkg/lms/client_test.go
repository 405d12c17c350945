package lms

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoursesFollowsPagination(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"id":8,"name":"Chemistry","course_code":"CHEM1"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/api/v1/courses?page=2>; rel="next", <%s/api/v1/courses?page=1>; rel="first"`, srv.URL, srv.URL))
		fmt.Fprint(w, `[{"id":7,"name":"Writing","course_code":"WRIT2"}]`)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, srv.Client())
	courses, err := client.Courses(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, int64(7), courses[0].ID)
	assert.Equal(t, "Chemistry", courses[1].Name)
}

func TestPaginationStaysOnConfiguredHost(t *testing.T) {
	var foreignHits int
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		foreignHits++
		fmt.Fprint(w, `[]`)
	}))
	defer foreign.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Link", fmt.Sprintf(`<%s/api/v1/courses?page=2>; rel="next"`, foreign.URL))
		fmt.Fprint(w, `[{"id":7,"name":"Writing"}]`)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}, srv.Client()).Courses(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrForeignLink)
	assert.Zero(t, foreignHits)
}

func TestPaginationResolvesRelativeLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"id":8,"name":"Chemistry"}]`)
			return
		}
		w.Header().Set("Link", `</api/v1/courses?page=2>; rel="next"`)
		fmt.Fprint(w, `[{"id":7,"name":"Writing"}]`)
	}))
	defer srv.Close()

	courses, err := NewClient(Config{BaseURL: srv.URL + "/"}, srv.Client()).Courses(context.Background(), "tok")
	require.NoError(t, err)
	assert.Len(t, courses, 2)
}

func TestAssignmentsKeepsNullDueDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/courses/7/assignments", r.URL.Path)
		fmt.Fprint(w, `[{"id":42,"course_id":7,"name":"Essay","due_at":"2026-03-01T23:59:00Z"},{"id":43,"course_id":7,"name":"Reading","due_at":null}]`)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, srv.Client())
	items, err := client.Assignments(context.Background(), "tok", "7")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.NotNil(t, items[0].DueAt)
	assert.Equal(t, 2026, items[0].DueAt.Year())
	assert.Nil(t, items[1].DueAt)
}

func TestUnauthorizedIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}, srv.Client()).Courses(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestServerErrorIncludesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}, srv.Client()).Courses(context.Background(), "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestNextLink(t *testing.T) {
	assert.Equal(t, "https://x/p2", nextLink(`<https://x/p2>; rel="next", <https://x/p9>; rel="last"`))
	assert.Empty(t, nextLink(`<https://x/p9>; rel="last"`))
	assert.Empty(t, nextLink(""))
}
