package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marketsync/cycledlist/cycle"
	"github.com/marketsync/cycledlist/jobstore"
	"github.com/marketsync/cycledlist/status"
)

type pauseRequest struct {
	Reason string `json:"reason"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	cs := s.Controller.Status()
	doc, err := status.Project(r.Context(), s.Store, s.Definition, cs, s.CycleIntervalMS)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "operator requested pause via HTTP"
	}
	s.Controller.PauseManually(req.Reason)
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.Controller.ResumeManually()
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleRunAdHoc(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "id")
	outcome, err := s.Controller.RunAdHoc(r.Context(), name)
	if err != nil {
		var conflict *cycle.ErrAdHocConflict
		if errors.As(err, &conflict) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"recordId": outcome.RecordID,
		"outcome":  outcome.Kind.String(),
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var records []jobstore.JobRecord
	var err error

	switch {
	case q.Get("name") != "":
		records, err = s.Store.FindByName(r.Context(), q.Get("name"), 100)
	case q.Get("running") == "true":
		records, err = s.Store.FindRunning(r.Context())
	default:
		records, err = s.Store.FindRecent(r.Context(), time.Now().Add(-24*time.Hour))
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.DeleteByID(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
