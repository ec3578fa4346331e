package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/stormstack/control-plane/pkg/clusterview"
	"github.com/stormstack/control-plane/pkg/distributor"
	"github.com/stormstack/control-plane/pkg/events"
	"github.com/stormstack/control-plane/pkg/log"
	"github.com/stormstack/control-plane/pkg/modules"
	"github.com/stormstack/control-plane/pkg/nodes"
	"github.com/stormstack/control-plane/pkg/router"
)

// Deps are the components the admin surface sits in front of.
type Deps struct {
	Nodes       *nodes.Registry
	Router      *router.Router
	Modules     *modules.Registry
	Distributor *distributor.Distributor
	View        *clusterview.View

	// Events, if set, is published to on node deletion so the match
	// router's orphan sweeper (§4.F) can react. Nil is valid: the admin
	// surface works without it, it just won't trigger orphan sweeps.
	Events *events.Broker
}

// Server is the admin HTTP surface (§6).
type Server struct {
	deps       Deps
	router     *mux.Router
	httpServer *http.Server
}

// NewServer builds the gorilla/mux router and wires every route to its
// handler, wrapped in the standard logging/metrics/rate-limit middleware
// chain (§5).
func NewServer(deps Deps, limiter *RateLimiter) *Server {
	s := &Server{deps: deps, router: mux.NewRouter()}

	s.router.Use(loggingMiddleware)
	s.router.Use(metricsMiddleware)

	admin := s.router.NewRoute().Subrouter()
	admin.Use(limiter.middleware)

	admin.HandleFunc("/nodes", s.handleRegisterNode).Methods(http.MethodPost)
	admin.HandleFunc("/nodes", s.handleListNodes).Methods(http.MethodGet)
	admin.HandleFunc("/nodes/{id}/heartbeat", s.handleHeartbeat).Methods(http.MethodPost)
	admin.HandleFunc("/nodes/{id}", s.handleUpdateNode).Methods(http.MethodPatch)
	admin.HandleFunc("/nodes/{id}", s.handleDeleteNode).Methods(http.MethodDelete)

	admin.HandleFunc("/matches", s.handleCreateMatch).Methods(http.MethodPost)
	admin.HandleFunc("/matches", s.handleListMatches).Methods(http.MethodGet)
	admin.HandleFunc("/matches/{id}", s.handleGetMatch).Methods(http.MethodGet)
	admin.HandleFunc("/matches/{id}/finish", s.handleFinishMatch).Methods(http.MethodPost)
	admin.HandleFunc("/matches/{id}/playerCount", s.handleUpdatePlayerCount).Methods(http.MethodPatch)
	admin.HandleFunc("/matches/{id}", s.handleDeleteMatch).Methods(http.MethodDelete)

	admin.HandleFunc("/modules", s.handleUploadModule).Methods(http.MethodPost)
	admin.HandleFunc("/modules", s.handleListModules).Methods(http.MethodGet)
	admin.HandleFunc("/modules/{name}", s.handleListModuleVersions).Methods(http.MethodGet)
	admin.HandleFunc("/modules/{name}/{version}", s.handleGetModule).Methods(http.MethodGet)
	admin.HandleFunc("/modules/{name}/{version}/download", s.handleDownloadModule).Methods(http.MethodGet)
	admin.HandleFunc("/modules/{name}/{version}", s.handleDeleteModule).Methods(http.MethodDelete)
	admin.HandleFunc("/modules/{name}/{version}/distribute", s.handleDistributeModule).Methods(http.MethodPost)
	admin.HandleFunc("/modules/{name}/{version}/distribute/{nodeId}", s.handleDistributeModuleToNode).Methods(http.MethodPost)

	admin.HandleFunc("/dashboard/overview", s.handleDashboardOverview).Methods(http.MethodGet)
	admin.HandleFunc("/dashboard/nodes", s.handleDashboardNodes).Methods(http.MethodGet)
	admin.HandleFunc("/dashboard/matches", s.handleDashboardMatches).Methods(http.MethodGet)

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.Handle("/metrics", metricsHandler()).Methods(http.MethodGet)

	return s
}

// Start runs the HTTP server until Stop is called or it fails to bind.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	log.WithComponent("api").Info().Str("addr", addr).Msg("admin HTTP surface listening")
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts the server down, waiting up to ctx's deadline for
// in-flight requests to finish.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the underlying mux.Router, mainly for tests that want to
// drive requests through httptest without a real listener.
func (s *Server) Router() *mux.Router {
	return s.router
}
