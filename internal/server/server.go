// Package server exposes the engine over HTTP: a webhook endpoint that
// accepts push and pull_request payloads and starts runs, a status surface
// serving run reports, and a health endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pipewright/pipewright/internal/ctxlog"
	"github.com/pipewright/pipewright/internal/event"
	"github.com/pipewright/pipewright/internal/report"
)

// Dispatcher starts pipeline runs for an accepted event. It is satisfied by
// the orchestrator; tests substitute fakes.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev event.Event) ([]*report.RunReport, error)
}

// Server is the HTTP layer over a dispatcher and a report store.
type Server struct {
	dispatcher Dispatcher
	store      *report.Store
	httpServer *http.Server
}

// New creates a Server listening on addr once Start is called.
func New(addr string, dispatcher Dispatcher, store *report.Store) *Server {
	s := &Server{
		dispatcher: dispatcher,
		store:      store,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes builds the chi router. Exposed separately so tests can drive the
// handlers through httptest without binding a socket.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/events", s.handleEvent)
	r.Get("/runs", s.handleListRuns)
	r.Get("/runs/{runID}", s.handleGetRun)

	return r
}

// Start runs the server until the context is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening.", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("Shutting down HTTP server.")
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// handleEvent accepts a webhook delivery. The event type travels in the
// X-Event-Type header, the delivery ID in X-Delivery; the body is the JSON
// payload. Runs execute in the background; the response carries the
// accepted event so senders can correlate.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(r.Context())

	ev, err := event.ParsePayload(r.Header.Get("X-Event-Type"), r.Header.Get("X-Delivery"), r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The dispatch must outlive this request: webhook senders time out long
	// before a pipeline finishes.
	dispatchCtx := ctxlog.WithLogger(context.Background(), logger)
	go func() {
		if _, err := s.dispatcher.Dispatch(dispatchCtx, ev); err != nil {
			logger.Error("Dispatch failed.", "event", ev.Type, "branch", ev.Branch, "error", err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(ev)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := s.store.Get(runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
