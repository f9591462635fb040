package uplink

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// HealthResponse is the /health body.
type HealthResponse struct {
	Status string `json:"status"`

	// Uptime is seconds since Start succeeded.
	Uptime float64 `json:"uptime"`
}

// InfoResponse is the /api/info body.
type InfoResponse struct {
	Name             string   `json:"name"`
	Version          string   `json:"version"`
	Actions          []string `json:"actions"`
	ClientsConnected int      `json:"clientsConnected"`
}

// StatsResponse is the /api/stats body.
type StatsResponse struct {
	TotalInvocations int64            `json:"totalInvocations"`
	Failures         int64            `json:"failures"`
	ByAction         map[string]int64 `json:"byAction"`
	Uptime           float64          `json:"uptime"`
}

// createMux creates the HTTP mux with all endpoints. The WebSocket
// upgrade and the side endpoints share one listener.
func (s *Server) createMux() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket connections upgrade at /ws
	mux.HandleFunc("/ws", s.handleWebSocket)

	// Health check endpoint for monitoring
	mux.HandleFunc("/health", s.handleHealth)

	// Server info endpoint: name, version, actions, connected clients
	mux.HandleFunc("/api/info", s.handleInfo)

	// Invocation metrics endpoint
	mux.HandleFunc("/api/stats", s.handleStats)

	// Everything else is a JSON 404. The root pattern catches all
	// unmatched paths including "/" itself.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	})

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	startedAt := s.startedAt
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(startedAt).Seconds(),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, InfoResponse{
		Name:             s.opts.Name,
		Version:          s.opts.Version,
		Actions:          s.opts.Registry.Names(),
		ClientsConnected: s.ClientCount(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	startedAt := s.startedAt
	s.mu.RUnlock()

	resp := StatsResponse{
		ByAction: make(map[string]int64),
		Uptime:   time.Since(startedAt).Seconds(),
	}

	if s.opts.Stats != nil {
		sum, err := s.opts.Stats.Summary()
		if err != nil {
			log.Printf("uplink: stats summary failed: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
			return
		}
		resp.TotalInvocations = sum.TotalInvocations
		resp.Failures = sum.Failures
		resp.ByAction = sum.ByAction
	} else {
		// No persistent log: report the in-process counters instead.
		for _, name := range s.opts.Registry.Names() {
			if count := s.opts.Registry.Count(name); count > 0 {
				resp.ByAction[name] = int64(count)
				resp.TotalInvocations += int64(count)
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeJSON writes a JSON response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("uplink: failed to encode response: %v", err)
	}
}
