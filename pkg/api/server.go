package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/psantana5/nodehost/pkg/auth"
	"github.com/psantana5/nodehost/pkg/bond"
	"github.com/psantana5/nodehost/pkg/host"
	"github.com/psantana5/nodehost/pkg/metrics"
	"github.com/psantana5/nodehost/pkg/models"
	"github.com/psantana5/nodehost/pkg/plugin"
	"github.com/psantana5/nodehost/pkg/ratelimit"
	tlsutil "github.com/psantana5/nodehost/pkg/tls"
	"github.com/psantana5/nodehost/pkg/tracing"
)

// Handler serves the control surface over a running host
type Handler struct {
	loader    *host.Loader
	namespace string
}

// NewHandler creates a control surface handler. The namespace for
// relative remap names defaults to the root namespace.
func NewHandler(loader *host.Loader) *Handler {
	return &Handler{
		loader:    loader,
		namespace: "/",
	}
}

// SetNamespace sets the namespace relative remap names are joined under
func (h *Handler) SetNamespace(ns string) {
	if ns == "" {
		ns = "/"
	}
	h.namespace = ns
}

// RegisterRoutes registers all control surface routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/nodelets", h.LoadNodelet).Methods("POST")
	r.HandleFunc("/nodelets", h.ListNodelets).Methods("GET")
	r.HandleFunc("/nodelets/{name:.+}", h.GetNodelet).Methods("GET")
	r.HandleFunc("/nodelets/{name:.+}", h.UnloadNodelet).Methods("DELETE")
	r.HandleFunc("/instances", h.ListInstances).Methods("GET")
	r.HandleFunc("/bonds/{id}/heartbeat", h.BondHeartbeat).Methods("POST")
	r.HandleFunc("/events", h.ListEvents).Methods("GET")
	r.HandleFunc("/status", h.GetStatus).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
}

// LoadNodelet instantiates a plugin instance from a load request
func (h *Handler) LoadNodelet(w http.ResponseWriter, r *http.Request) {
	var req models.LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Type == "" {
		http.Error(w, "name and type are required", http.StatusBadRequest)
		return
	}

	remappings := h.buildRemappings(req.Name, req.RemapSource, req.RemapTarget)

	if err := h.loader.Load(req.Name, req.Type, remappings, req.Args, req.LivenessID); err != nil {
		log.Printf("Load %s failed: %v", req.Name, err)
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, host.ErrDuplicateName):
			status = http.StatusConflict
		case errors.Is(err, plugin.ErrUnknownType):
			status = http.StatusBadRequest
		case errors.Is(err, host.ErrShuttingDown):
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(models.LoadResponse{Success: false, Error: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.LoadResponse{Success: true})
}

// buildRemappings turns the parallel remap arrays into a resolved table.
// Mismatched lengths are reported and degrade to an empty table; the load
// itself proceeds.
func (h *Handler) buildRemappings(name string, sources, targets []string) map[string]string {
	if len(sources) != len(targets) {
		log.Printf("Load %s: remap_source and remap_target count mismatch (%d vs %d), proceeding with no remappings",
			name, len(sources), len(targets))
		return map[string]string{}
	}
	remappings := make(map[string]string, len(sources))
	for i := range sources {
		remappings[h.resolveName(sources[i])] = h.resolveName(targets[i])
	}
	return remappings
}

// resolveName returns the fully-qualified form of a name: absolute names
// pass through, relative names are joined under the configured namespace.
func (h *Handler) resolveName(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	ns := h.namespace
	if !strings.HasPrefix(ns, "/") {
		ns = "/" + ns
	}
	if !strings.HasSuffix(ns, "/") {
		ns += "/"
	}
	return ns + name
}

// UnloadNodelet stops and removes a named instance
func (h *Handler) UnloadNodelet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]

	if err := h.loader.Unload(name); err != nil {
		if errors.Is(err, host.ErrNotFound) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(models.UnloadResponse{Success: false, Error: err.Error()})
			return
		}
		if errors.Is(err, host.ErrShuttingDown) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(models.UnloadResponse{Success: false, Error: err.Error()})
			return
		}
		log.Printf("Unload %s failed: %v", name, err)
		http.Error(w, "Failed to unload instance", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.UnloadResponse{Success: true})
}

// ListNodelets returns the loaded instance names
func (h *Handler) ListNodelets(w http.ResponseWriter, r *http.Request) {
	names := h.loader.List()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.ListResponse{Names: names, Count: len(names)})
}

// ListInstances returns detailed information about every loaded instance
func (h *Handler) ListInstances(w http.ResponseWriter, r *http.Request) {
	instances := h.loader.Instances()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.InstanceListResponse{Instances: instances, Count: len(instances)})
}

// GetNodelet returns detailed information about one instance
func (h *Handler) GetNodelet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]

	info, err := h.loader.Instance(name)
	if err != nil {
		if errors.Is(err, host.ErrNotFound) {
			http.Error(w, "Instance not found", http.StatusNotFound)
			return
		}
		log.Printf("Error getting instance %s: %v", name, err)
		http.Error(w, "Failed to get instance", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

// BondHeartbeat refreshes a liveness bond. A 404 tells the peer its bond
// is gone and it should stop heartbeating.
func (h *Handler) BondHeartbeat(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	if err := h.loader.Heartbeat(id); err != nil {
		if errors.Is(err, bond.ErrUnknownBond) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(models.HeartbeatResponse{OK: false})
			return
		}
		log.Printf("Heartbeat %s failed: %v", id, err)
		http.Error(w, "Failed to refresh bond", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.HeartbeatResponse{OK: true})
}

// ListEvents returns recent journal events, newest first
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := h.loader.Events(limit)
	if err != nil {
		log.Printf("Error reading journal: %v", err)
		http.Error(w, "Failed to read events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []models.Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.EventsResponse{Events: events, Count: len(events)})
}

// GetStatus reports the host's lifecycle phase and current load
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.loader.Status())
}

// Health returns the health status of the control surface
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

// Config controls the HTTP server wrapping the control surface
type Config struct {
	Addr      string // listen address
	APIKey    string // static bearer token; empty disables authentication
	Namespace string // namespace for relative remap names

	// Serve over TLS when both are set
	TLSCertFile string
	TLSKeyFile  string

	// Per-client rate limiting; zero disables it
	RateLimitRPS   float64
	RateLimitBurst int

	EnableMetrics bool              // mount the prometheus endpoint on /metrics
	Tracing       *tracing.Provider // wrap the router with request tracing when set

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns the standard control surface configuration
func DefaultConfig() Config {
	return Config{
		Addr:         ":8420",
		Namespace:    "/",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server runs the control surface as an HTTP server. It satisfies the
// host's Service interface so the loader can stop it in the first
// shutdown stage.
type Server struct {
	cfg Config
	srv *http.Server
}

// NewServer assembles the router, middleware and HTTP server around a
// host. Nothing listens until Start.
func NewServer(cfg Config, loader *host.Loader) *Server {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}

	h := NewHandler(loader)
	h.SetNamespace(cfg.Namespace)

	router := mux.NewRouter()
	h.RegisterRoutes(router)
	if cfg.EnableMetrics {
		router.Handle("/metrics", metrics.Handler()).Methods("GET")
	}

	var handler http.Handler = router
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 10
		}
		limiter := ratelimit.NewLimiter(cfg.RateLimitRPS, burst)
		handler = limiter.Middleware(ratelimit.IPKeyFunc)(handler)
	}
	if cfg.APIKey != "" {
		handler = requireAuth(cfg.APIKey, handler)
	}
	if cfg.Tracing != nil {
		handler = tracing.HTTPMiddleware(cfg.Tracing)(handler)
	}

	return &Server{
		cfg: cfg,
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// requireAuth checks the Authorization header on every route except the
// health probe
func requireAuth(apiKey string, next http.Handler) http.Handler {
	expected := "Bearer " + apiKey
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}
		if !auth.SecureCompare(authHeader, expected) {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start opens the listen socket and serves in the background, so bind
// failures surface to the caller
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	scheme := "http"
	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		tlsCfg, err := tlsutil.LoadServerTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		if err != nil {
			ln.Close()
			return fmt.Errorf("load TLS config: %w", err)
		}
		ln = tls.NewListener(ln, tlsCfg)
		scheme = "https"
	}
	go func() {
		log.Printf("[API] Control surface listening on %s (%s)", s.srv.Addr, scheme)
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[API] Server error: %v", err)
		}
	}()
	return nil
}

// Shutdown stops the server, waiting for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	log.Printf("[API] Shutting down control surface")
	return s.srv.Shutdown(ctx)
}
