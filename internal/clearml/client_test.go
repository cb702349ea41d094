package clearml_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/signalnine/bestgate/internal/clearml"
	"github.com/signalnine/bestgate/internal/tracker"
)

// fakeServer answers ClearML endpoints from canned data payloads and records request bodies.
type fakeServer struct {
	t         *testing.T
	mu        sync.Mutex
	responses map[string]any
	requests  map[string][]map[string]any
	logins    int
}

func newFakeServer(t *testing.T, responses map[string]any) (*fakeServer, *clearml.Client) {
	t.Helper()
	fs := &fakeServer{t: t, responses: responses, requests: map[string][]map[string]any{}}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	client := clearml.New(clearml.Options{
		APIHost:   srv.URL + "/",
		AccessKey: "access",
		SecretKey: "secret",
		Timeout:   5 * time.Second,
	})
	return fs, client
}

func (fs *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	endpoint := strings.TrimPrefix(r.URL.Path, "/")
	if endpoint == "auth.login" {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "access" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"meta": map[string]any{"result_code": 401, "result_msg": "Unauthorized"}})
			return
		}
		fs.logins++
		writeEnvelope(w, map[string]any{"token": "tok-1"})
		return
	}
	if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
		fs.t.Errorf("%s: authorization header %q", endpoint, got)
	}

	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)
	fs.requests[endpoint] = append(fs.requests[endpoint], body)

	resp, ok := fs.responses[endpoint]
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"meta": map[string]any{"result_code": 400, "result_msg": "Invalid request path " + endpoint}})
		return
	}
	writeEnvelope(w, resp)
}

func writeEnvelope(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"meta": map[string]any{"id": "req", "result_code": 200, "result_msg": "OK"},
		"data": data,
	})
}

func (fs *fakeServer) bodies(endpoint string) []map[string]any {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.requests[endpoint]
}

func TestQueryRecords(t *testing.T) {
	fs, client := newFakeServer(t, map[string]any{
		"projects.get_all": map[string]any{"projects": []any{
			map[string]any{"id": "p-1", "name": "Github CICD Video"},
		}},
		"tasks.get_all": map[string]any{"tasks": []any{
			map[string]any{
				"id": "t-2", "name": "cicd_test", "project": "p-1", "status": "completed",
				"last_update": "2024-03-02T12:00:00.123+00:00", "tags": []string{},
				"script": map[string]any{"version_num": "abc123def", "diff": "--- a\n+++ b\n"},
			},
			map[string]any{
				"id": "t-1", "name": "cicd_test", "project": "p-1", "status": "completed",
				"last_update": "2024-03-02T11:00:00+00:00", "tags": []string{"nightly"},
				"script": map[string]any{"version_num": "abc123def", "diff": ""},
			},
		}},
	})

	records, err := client.QueryRecords(context.Background(), tracker.Filter{
		Project:  "Github CICD Video",
		TaskName: "cicd_test",
		Revision: "abc123",
		Status:   []tracker.Status{tracker.StatusCompleted},
		OrderBy:  []string{tracker.OrderNewestFirst},
	})
	if err != nil {
		t.Fatalf("QueryRecords: %v", err)
	}

	want := []tracker.Record{
		{
			ID: "t-2", Name: "cicd_test", Project: "Github CICD Video", Revision: "abc123def",
			Diff: "--- a\n+++ b\n", Status: tracker.StatusCompleted,
			LastUpdate: time.Date(2024, 3, 2, 12, 0, 0, 123_000_000, time.UTC), Tags: []string{},
		},
		{
			ID: "t-1", Name: "cicd_test", Project: "Github CICD Video", Revision: "abc123def",
			Status: tracker.StatusCompleted, LastUpdate: time.Date(2024, 3, 2, 11, 0, 0, 0, time.UTC),
			Tags: []string{"nightly"},
		},
	}
	if diff := cmp.Diff(want, records, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	wantProject := map[string]any{
		"name":        "^Github CICD Video$",
		"only_fields": []any{"id", "name"},
	}
	if diff := cmp.Diff(wantProject, fs.bodies("projects.get_all")[0]); diff != "" {
		t.Errorf("projects.get_all body (-want +got):\n%s", diff)
	}

	body := fs.bodies("tasks.get_all")[0]
	wantTasks := map[string]any{
		"project":  []any{"p-1"},
		"name":     "^cicd_test$",
		"status":   []any{"completed"},
		"order_by": []any{"-last_update"},
		"_all_": map[string]any{
			"fields":  []any{"script.version_num"},
			"pattern": "^abc123",
		},
	}
	delete(body, "only_fields")
	if diff := cmp.Diff(wantTasks, body); diff != "" {
		t.Errorf("tasks.get_all body (-want +got):\n%s", diff)
	}
}

func TestQueryRecordsUnknownProject(t *testing.T) {
	fs, client := newFakeServer(t, map[string]any{
		"projects.get_all": map[string]any{"projects": []any{}},
	})
	records, err := client.QueryRecords(context.Background(), tracker.Filter{Project: "missing", TaskName: "x"})
	if err != nil {
		t.Fatalf("QueryRecords: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
	if n := len(fs.bodies("tasks.get_all")); n != 0 {
		t.Errorf("tasks.get_all should not be called, got %d calls", n)
	}
}

func TestQueryRecordsTagsAndLimit(t *testing.T) {
	fs, client := newFakeServer(t, map[string]any{
		"tasks.get_all": map[string]any{"tasks": []any{}},
	})
	_, err := client.QueryRecords(context.Background(), tracker.Filter{Tags: []string{"Best Performance"}, Limit: 1})
	if err != nil {
		t.Fatalf("QueryRecords: %v", err)
	}
	body := fs.bodies("tasks.get_all")[0]
	if diff := cmp.Diff([]any{"Best Performance"}, body["tags"]); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
	if body["page_size"] != float64(1) {
		t.Errorf("page_size: got %v, want 1", body["page_size"])
	}
	if _, ok := body["_all_"]; ok {
		t.Error("no revision filter expected")
	}
}

func TestReportedScalars(t *testing.T) {
	fs, client := newFakeServer(t, map[string]any{
		"events.scalar_metrics_iter_histogram": map[string]any{
			"Performance Metric": map[string]any{
				"Series 1": map[string]any{"name": "Series 1", "x": []float64{0, 1, 2}, "y": []float64{0.7, 0.85, 0.8}},
			},
		},
	})
	set, err := client.ReportedScalars(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("ReportedScalars: %v", err)
	}
	ser, ok := set.Series("Performance Metric", "Series 1")
	if !ok {
		t.Fatal("series not found")
	}
	if diff := cmp.Diff([]float64{0.7, 0.85, 0.8}, ser.Y); diff != "" {
		t.Errorf("y (-want +got):\n%s", diff)
	}
	if got := fs.bodies("events.scalar_metrics_iter_histogram")[0]["task"]; got != "t-1" {
		t.Errorf("task: got %v", got)
	}
}

func TestAddTags(t *testing.T) {
	fs, client := newFakeServer(t, map[string]any{
		"tasks.get_by_id": map[string]any{"task": map[string]any{"tags": []string{"nightly"}}},
		"tasks.edit":      map[string]any{"updated": 1},
	})
	if err := client.AddTags(context.Background(), "t-1", "Best Performance"); err != nil {
		t.Fatalf("AddTags: %v", err)
	}
	edits := fs.bodies("tasks.edit")
	if len(edits) != 1 {
		t.Fatalf("expected 1 edit, got %d", len(edits))
	}
	want := map[string]any{"task": "t-1", "tags": []any{"nightly", "Best Performance"}, "force": true}
	if diff := cmp.Diff(want, edits[0]); diff != "" {
		t.Errorf("tasks.edit body (-want +got):\n%s", diff)
	}
	if fs.logins != 1 {
		t.Errorf("expected a single login, got %d", fs.logins)
	}
}

func TestAddTagsAlreadyPresent(t *testing.T) {
	fs, client := newFakeServer(t, map[string]any{
		"tasks.get_by_id": map[string]any{"task": map[string]any{"tags": []string{"Best Performance"}}},
	})
	if err := client.AddTags(context.Background(), "t-1", "Best Performance"); err != nil {
		t.Fatalf("AddTags: %v", err)
	}
	if n := len(fs.bodies("tasks.edit")); n != 0 {
		t.Errorf("expected no edit, got %d", n)
	}
}

func TestAPIError(t *testing.T) {
	_, client := newFakeServer(t, map[string]any{})
	_, err := client.ReportedScalars(context.Background(), "t-1")
	var apiErr *clearml.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.ResultCode != 400 {
		t.Errorf("got status=%d result_code=%d", apiErr.StatusCode, apiErr.ResultCode)
	}
	if !strings.Contains(apiErr.Error(), "events.scalar_metrics_iter_histogram") {
		t.Errorf("error should name the endpoint: %v", apiErr)
	}
}

func TestLoginFailure(t *testing.T) {
	srv := httptest.NewServer(&fakeServer{t: t, responses: map[string]any{}, requests: map[string][]map[string]any{}})
	t.Cleanup(srv.Close)
	client := clearml.New(clearml.Options{APIHost: srv.URL, AccessKey: "wrong", SecretKey: "creds"})

	_, err := client.QueryRecords(context.Background(), tracker.Filter{})
	var apiErr *clearml.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
}

func TestEnvelopeResultCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := 200
		msg := "OK"
		data := map[string]any{"token": "tok-1"}
		if r.URL.Path != "/auth.login" {
			code, msg = 400, "Validation error"
		}
		json.NewEncoder(w).Encode(map[string]any{
			"meta": map[string]any{"result_code": code, "result_msg": msg},
			"data": data,
		})
	}))
	t.Cleanup(srv.Close)
	client := clearml.New(clearml.Options{APIHost: srv.URL, AccessKey: "a", SecretKey: "b"})

	err := client.AddTags(context.Background(), "t-1", "best")
	var apiErr *clearml.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Validation error" {
		t.Fatalf("expected result-code APIError, got %v", err)
	}
}
