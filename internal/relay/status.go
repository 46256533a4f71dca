package relay

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rickgao/phone-relay/internal/router"
)

// HealthResponse is the body of GET /.
type HealthResponse struct {
	Status         string    `json:"status"`
	Clients        int       `json:"clients"`
	PhoneConnected bool      `json:"phoneConnected"`
	Timestamp      time.Time `json:"timestamp"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	ConnectedClients int          `json:"connectedClients"`
	PhoneConnected   bool         `json:"phoneConnected"`
	Clients          []string     `json:"clients"`
	Stats            router.Stats `json:"stats"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{
		Status:         "Server is running",
		Clients:        s.registry.Len(),
		PhoneConnected: s.registry.SourceConnected(),
		Timestamp:      time.Now().UTC(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ids := s.registry.IDs()
	clients := make([]string, len(ids))
	for i, id := range ids {
		clients[i] = string(id)
	}

	writeJSON(w, StatusResponse{
		ConnectedClients: len(clients),
		PhoneConnected:   s.registry.SourceConnected(),
		Clients:          clients,
		Stats:            s.router.Stats(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
