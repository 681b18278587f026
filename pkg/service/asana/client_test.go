package asana_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/tributary/pkg/service/asana"
	"github.com/secmon-lab/tributary/pkg/service/restapi"
)

func newService(t *testing.T, handler http.HandlerFunc) asana.Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := asana.New(asana.Config{BaseURL: srv.URL + "/api/1.0", Token: "token"},
		restapi.WithHTTPClient(srv.Client()), restapi.WithRetry(-1, time.Millisecond))
	gt.NoError(t, err).Required()
	return svc
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew(t *testing.T) {
	_, err := asana.New(asana.Config{})
	gt.Bool(t, errors.Is(err, asana.ErrInvalidConfig)).True()
}

func TestTestConnection(t *testing.T) {
	t.Run("bearer token", func(t *testing.T) {
		svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
			gt.Value(t, r.URL.Path).Equal("/api/1.0/users/me")
			if r.Header.Get("Authorization") != "Bearer token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeJSON(w, map[string]any{"data": map[string]string{"gid": "1", "name": "me"}})
		})
		gt.Bool(t, svc.TestConnection(context.Background())).True()
	})

	t.Run("unauthorized", func(t *testing.T) {
		svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]any{"errors": []map[string]string{{"message": "Not Authorized"}}})
		})
		gt.Bool(t, svc.TestConnection(context.Background())).False()
	})
}

func TestListProjects_ErrorMessage(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		writeJSON(w, map[string]any{"errors": []map[string]string{
			{"message": "workspace: Not a recognized ID"},
			{"message": "second problem"},
		}})
	})

	_, err := svc.ListProjects(context.Background(), "ws-1")
	gt.Error(t, err)
	gt.Value(t, restapi.StatusCode(err)).Equal(http.StatusForbidden)
	gt.String(t, err.Error()).Contains("workspace: Not a recognized ID; second problem")
}

func TestListProjects(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		gt.Value(t, r.URL.Path).Equal("/api/1.0/projects")
		gt.Value(t, r.URL.Query().Get("workspace")).Equal("ws-1")
		gt.Value(t, r.URL.Query().Get("archived")).Equal("false")
		writeJSON(w, map[string]any{"data": []map[string]any{{"gid": "p1", "name": "Launch"}}})
	})

	projects, err := svc.ListProjects(context.Background(), "ws-1")
	gt.NoError(t, err).Required()
	gt.A(t, projects).Length(1)
	gt.Value(t, projects[0].Name).Equal("Launch")
}

func TestListTasks_Paging(t *testing.T) {
	var offsets []string
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gt.Value(t, r.URL.Path).Equal("/api/1.0/tasks")
		gt.Value(t, q.Get("project")).Equal("p1")
		gt.Value(t, q.Get("modified_since")).Equal("2024-05-01T00:00:00Z")
		gt.Value(t, q.Get("completed_since")).Equal("2024-05-01T00:00:00Z")
		gt.String(t, q.Get("opt_fields")).Contains("memberships.section.name")
		offsets = append(offsets, q.Get("offset"))

		if q.Get("offset") == "" {
			writeJSON(w, map[string]any{
				"data": []map[string]any{{
					"gid":        "t1",
					"name":       "Write docs",
					"created_at": "2024-05-02T10:00:00Z",
					"due_on":     "2024-06-01",
					"assignee":   map[string]string{"gid": "u1", "email": "alice@example.com"},
					"tags":       []map[string]string{{"gid": "g1", "name": "docs"}},
				}},
				"next_page": map[string]string{"offset": "abc"},
			})
			return
		}
		writeJSON(w, map[string]any{
			"data":      []map[string]any{{"gid": "t2", "name": "Ship", "completed": true}},
			"next_page": nil,
		})
	})

	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var tasks []*asana.Task
	for task, err := range svc.ListTasks(context.Background(), "p1", asana.TaskFilter{ModifiedSince: &since}) {
		gt.NoError(t, err).Required()
		tasks = append(tasks, task)
	}

	gt.Value(t, offsets).Equal([]string{"", "abc"})
	gt.A(t, tasks).Length(2)
	gt.Value(t, tasks[0].Assignee.Email).Equal("alice@example.com")
	gt.Value(t, tasks[0].DueDate().Month()).Equal(time.June)
	gt.Value(t, tasks[0].TagNames()).Equal([]string{"docs"})
	gt.Value(t, tasks[0].Raw["name"]).Equal(any("Write docs"))
	gt.Bool(t, tasks[1].Completed).True()
}

func TestListUsers(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		gt.Value(t, r.URL.Path).Equal("/api/1.0/workspaces/ws-1/users")
		writeJSON(w, map[string]any{"data": []map[string]string{
			{"gid": "u1", "name": "Alice", "email": "alice@example.com"},
		}})
	})

	users, err := svc.ListUsers(context.Background(), "ws-1")
	gt.NoError(t, err).Required()
	gt.A(t, users).Length(1)
	gt.Value(t, users[0].Email).Equal("alice@example.com")
}

func TestGetTask(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		gt.Value(t, r.URL.Path).Equal("/api/1.0/tasks/t9")
		writeJSON(w, map[string]any{"data": map[string]any{"gid": "t9", "name": "Single"}})
	})

	task, err := svc.GetTask(context.Background(), "t9")
	gt.NoError(t, err).Required()
	gt.Value(t, task.Name).Equal("Single")
}
