package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/core"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/logger"
)

// StatusSource provides the snapshot served on /status.
type StatusSource interface {
	Snapshot() core.Snapshot
}

// StatusResponse is the JSON body of /status. The password is never exposed.
type StatusResponse struct {
	Connected   bool       `json:"connected"`
	HasIdentity bool       `json:"has_identity"`
	Username    string     `json:"username,omitempty"`
	Changes     uint64     `json:"changes"`
	Label       string     `json:"label"`
	LastChange  *time.Time `json:"last_change,omitempty"`
}

type HealthServer struct {
	server     *http.Server
	ready      atomic.Bool
	source     StatusSource
	lastChange atomic.Pointer[time.Time]
	events     *eventHub
}

func NewHealthServer(addr string, source StatusSource) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		source: source,
		events: newEventHub(),
	}

	mux.HandleFunc("/health", hs.handleHealth)
	mux.HandleFunc("/ready", hs.handleReady)
	mux.HandleFunc("/status", hs.handleStatus)
	mux.HandleFunc("/events", hs.handleEvents)

	return hs
}

// Handler exposes the mux, mainly for tests.
func (s *HealthServer) Handler() http.Handler { return s.server.Handler }

func (s *HealthServer) Start() {
	go func() {
		logger.Info("Health server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error", "error", err)
		}
	}()
}

func (s *HealthServer) Stop(ctx context.Context) error {
	s.events.stop()
	return s.server.Shutdown(ctx)
}

func (s *HealthServer) SetReady(ready bool) {
	s.ready.Store(ready)
}

// ObserveChange records the time of a status change and pushes it to /events
// clients. It is meant to be subscribed to the owner's status notifications.
func (s *HealthServer) ObserveChange(snap core.Snapshot) {
	now := time.Now().UTC()
	s.lastChange.Store(&now)
	s.events.publish(s.status(snap))
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
	}
}

func (s *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		http.Error(w, "no status source", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.status(s.source.Snapshot()))
}

// handleEvents streams a StatusResponse per status change over a websocket,
// starting with the current one.
func (s *HealthServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	var snap core.Snapshot
	if s.source != nil {
		snap = s.source.Snapshot()
	}
	s.events.handle(w, r, s.status(snap))
}

func (s *HealthServer) status(snap core.Snapshot) StatusResponse {
	return StatusResponse{
		Connected:   snap.Connected,
		HasIdentity: snap.HasIdentity,
		Username:    snap.Identity.Username,
		Changes:     snap.Changes,
		Label:       core.StatusLabel(snap.Connected),
		LastChange:  s.lastChange.Load(),
	}
}
