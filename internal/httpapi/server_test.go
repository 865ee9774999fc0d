package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marketsync/cycledlist/catalogue"
	"github.com/marketsync/cycledlist/cycle"
	"github.com/marketsync/cycledlist/jobstore"
	"github.com/marketsync/cycledlist/workflow"
)

func newTestServer(t *testing.T) (*Server, *cycle.Controller) {
	t.Helper()
	store := jobstore.NewMemoryStore()
	cat := catalogue.New()
	_ = cat.Register(catalogue.Entry{Name: "A", Function: func(ctx context.Context, p catalogue.ProgressSink) (any, error) {
		return "a", nil
	}})
	def := workflow.Definition{Steps: []workflow.Step{{Name: "A", FunctionName: "A"}}}

	ctrl, err := cycle.New(cycle.Config{Name: "eodhd-sync", Definition: def}, cat, cycle.WithStore(store))
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return &Server{Controller: ctrl, Store: store, Definition: def, CycleIntervalMS: 3600_000}, ctrl
}

func TestHandleGetStatus_NotInitialized(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/cycled-list-status", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !contains(w.Body.String(), `"overallStatus":"not_initialized"`) {
		t.Fatalf("expected not_initialized status, got %s", w.Body.String())
	}
}

func TestHandlePauseResume(t *testing.T) {
	srv, ctrl := newTestServer(t)
	_ = ctrl.Start(context.Background())

	req := httptest.NewRequest(http.MethodPost, "/cycled-list-status/pause", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("pause: expected 200, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/cycled-list-status/resume", nil)
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("resume: expected 200, got %d", w.Code)
	}
}

func TestHandleRunAdHoc_ConflictWhenRunning(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()
	id, _ := srv.Store.Create(ctx, "A", nil, time.Now())
	_ = srv.Store.Transition(ctx, id, jobstore.StatusScheduled, jobstore.StatusRunning, jobstore.Patch{})

	req := httptest.NewRequest(http.MethodPost, "/jobs/A/run", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleRunAdHoc_SucceedsWhenIdle(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/jobs/A/run", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
