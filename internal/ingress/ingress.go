// Package ingress implements the status ingress HTTP server (C8): a
// loopback-only endpoint the sidecar POSTs session status updates to,
// which either forwards them straight to the frontend event bus or
// buffers them until the session is registered.
package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/marlowe-finch/corral/internal/eventbus"
)

const (
	portRangeStart = 9900
	portRangeEnd   = 9999
	maxPending     = 100
)

// StatusPayload is the JSON body the sidecar POSTs to /status.
type StatusPayload struct {
	SessionID        uint32 `json:"session_id"`
	InstanceID       string `json:"instance_id"`
	State            string `json:"state"`
	Message          string `json:"message"`
	NeedsInputPrompt string `json:"needs_input_prompt,omitempty"`
	Timestamp        int64  `json:"timestamp"`
}

// StatusChanged is the event payload published on
// eventbus.TopicSessionStatusChanged.
type StatusChanged struct {
	SessionID        uint32 `json:"session_id"`
	ProjectPath      string `json:"project_path"`
	Status           string `json:"status"`
	Message          string `json:"message"`
	NeedsInputPrompt string `json:"needs_input_prompt,omitempty"`
}

// canonicalState maps the sidecar's lowercase wire vocabulary to the
// registry's canonical state set.
var canonicalState = map[string]string{
	"idle":        "Idle",
	"working":     "Working",
	"needs_input": "NeedsInput",
	"finished":    "Done",
	"error":       "Error",
}

// Server is the loopback status ingress. The zero value is not ready to
// use; construct one with New.
type Server struct {
	instanceID string
	bus        *eventbus.Bus

	mu      sync.RWMutex
	routing map[uint32]string // session id -> project path
	pending map[uint32]StatusPayload

	listener net.Listener
	httpSrv  *http.Server
	port     int
}

// New constructs a Server bound to no port yet; call Start to bind.
func New(instanceID string, bus *eventbus.Bus) *Server {
	return &Server{
		instanceID: instanceID,
		bus:        bus,
		routing:    make(map[uint32]string),
		pending:    make(map[uint32]StatusPayload),
	}
}

// Start binds sequentially across the 9900-9999 loopback range, keeping
// the first successful bind, then begins serving in the background.
func (s *Server) Start() error {
	var lastErr error
	for port := portRangeStart; port <= portRangeEnd; port++ {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		s.listener = ln
		s.port = port
		break
	}
	if s.listener == nil {
		return fmt.Errorf("ingress: no free port in %d-%d: %w", portRangeStart, portRangeEnd, lastErr)
	}

	r := chi.NewRouter()
	r.Post("/status", s.handleStatus)
	s.httpSrv = &http.Server{Handler: r}

	go func() {
		if err := s.httpSrv.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			log.Printf("ingress: serve error: %v", err)
		}
	}()
	return nil
}

// Port returns the bound loopback port.
func (s *Server) Port() int { return s.port }

// URL returns the full status endpoint URL.
func (s *Server) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/status", s.port)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var payload StatusPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if payload.InstanceID != s.instanceID {
		http.Error(w, "wrong instance", http.StatusForbidden)
		return
	}

	s.mu.RLock()
	project, registered := s.routing[payload.SessionID]
	s.mu.RUnlock()

	if registered {
		s.publish(project, payload)
		w.WriteHeader(http.StatusOK)
		return
	}

	s.bufferPending(payload)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) publish(project string, payload StatusPayload) {
	state, ok := canonicalState[payload.State]
	if !ok {
		state = payload.State
	}
	s.bus.Publish(eventbus.TopicSessionStatusChanged, StatusChanged{
		SessionID:        payload.SessionID,
		ProjectPath:      project,
		Status:           state,
		Message:          payload.Message,
		NeedsInputPrompt: payload.NeedsInputPrompt,
	})
}

func (s *Server) bufferPending(payload StatusPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[payload.SessionID]; !exists && len(s.pending) >= maxPending {
		log.Printf("ingress: pending buffer full (%d entries), dropping status for session %d", maxPending, payload.SessionID)
		return
	}
	s.pending[payload.SessionID] = payload
}

// RegisterSession records id's project path in the routing map. If a
// status update was buffered for id while it was unregistered, that
// update is published immediately, before any subsequently arriving one.
func (s *Server) RegisterSession(id uint32, projectPath string) {
	s.mu.Lock()
	s.routing[id] = projectPath
	pending, had := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()

	if had {
		s.publish(projectPath, pending)
	}
}

// UnregisterSession drops id's routing entry and any buffered pending
// status for it.
func (s *Server) UnregisterSession(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.routing, id)
	delete(s.pending, id)
}
