package netaio

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminServer exposes a small read-only HTTP surface over a node's
// peer registry and metrics, for operators poking at a running node
// the way they'd curl a relay's /health or /hosts endpoint.
type AdminServer struct {
	peers    *PeerRegistry
	gatherer prometheus.Gatherer
}

// NewAdminServer builds an AdminServer over the given peer registry.
// gatherer may be nil, in which case /metrics is omitted; pass the
// same *prometheus.Registry that Metrics.MustRegister was called with
// so /metrics actually reflects this node's collectors rather than
// the global default registry.
func NewAdminServer(peers *PeerRegistry, gatherer prometheus.Gatherer) *AdminServer {
	return &AdminServer{peers: peers, gatherer: gatherer}
}

// Router builds the chi router for this admin surface: GET /healthz,
// GET /peers, and GET /metrics (when a gatherer was supplied).
func (a *AdminServer) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", a.handleHealthz)
	r.Get("/peers", a.handlePeers)
	if a.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (a *AdminServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (a *AdminServer) handlePeers(w http.ResponseWriter, r *http.Request) {
	peers := a.peers.All()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(peers)
}
