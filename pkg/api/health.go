package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/formthefog/formation-sub001/pkg/metrics"
)

// ReadyChecker reports the node's bootstrap status for the /ready probe.
// pkg/node implements it: "ready" has no leader concept here (spec.md has
// no Raft), it means the node's Start has run and its Operation Log
// bootstrap (snapshot plus catch-up from a peer, or nothing for a node
// with no peers) is complete.
type ReadyChecker interface {
	Ready() (ok bool, checks map[string]string)
}

// HealthServer provides the /health (liveness), /ready (readiness), and
// /metrics endpoints, grounded on warren's pkg/api/health.go with the
// Raft/manager-specific readiness checks replaced by ReadyChecker.
type HealthServer struct {
	ready ReadyChecker
	mux   *http.ServeMux
}

func NewHealthServer(ready ReadyChecker) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{ready: ready, mux: mux}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

func (hs *HealthServer) Handler() http.Handler {
	return hs.mux
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// healthHandler is a bare liveness probe: it returns 200 as long as the
// process can accept connections at all.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "healthy", Timestamp: time.Now()})
}

func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ok, checks := hs.ready.Ready()
	status := "ready"
	statusCode := http.StatusOK
	if !ok {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ReadyResponse{Status: status, Timestamp: time.Now(), Checks: checks})
}
