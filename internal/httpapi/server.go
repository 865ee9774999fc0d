// Package httpapi adapts a cycle.Controller to HTTP: status, pause/resume,
// ad hoc runs, and history/CRUD over JobRecords. No business logic lives
// here — every handler is a thin JSON wrapper around the controller,
// status projector, and job store.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marketsync/cycledlist/cycle"
	"github.com/marketsync/cycledlist/jobstore"
	"github.com/marketsync/cycledlist/workflow"
)

// Server wires one cycled list's controller and store onto an HTTP mux.
type Server struct {
	Controller      *cycle.Controller
	Store           jobstore.Store
	Definition      workflow.Definition
	CycleIntervalMS int64
}

// Router builds the chi router exposing the status/control/history surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/cycled-list-status", s.handleGetStatus)
	r.Post("/cycled-list-status/pause", s.handlePause)
	r.Post("/cycled-list-status/resume", s.handleResume)
	r.Post("/jobs/{id}/run", s.handleRunAdHoc)
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{id}", s.handleGetJob)
	r.Delete("/jobs/{id}", s.handleDeleteJob)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
