// Package server wires the module runtime to its outer surfaces: MCP on
// stdio, or an HTTP listener carrying MCP, Prometheus metrics and health.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zot/modrt/internal/config"
	"github.com/zot/modrt/internal/lua"
	"github.com/zot/modrt/internal/mcp"
)

// Server owns a runtime and the endpoints that expose it.
type Server struct {
	config     *config.Config
	registry   *prometheus.Registry
	luaRuntime *lua.Runtime
	mcpServer  *mcp.Server
	hotLoader  *lua.HotLoader
	httpServer *http.Server
}

// New creates a server with a runtime built from cfg.
// Extra options are passed to the runtime after the metrics option.
func New(cfg *config.Config, opts ...lua.Option) (*Server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts = append([]lua.Option{lua.WithMetrics(lua.NewMetrics(registry))}, opts...)
	rt, err := lua.NewRuntime(cfg, opts...)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:     cfg,
		registry:   registry,
		luaRuntime: rt,
		mcpServer:  mcp.NewServer(cfg, rt),
	}

	if cfg.Modules.HotReload {
		if err := s.setupHotLoader(); err != nil {
			rt.Shutdown()
			return nil, err
		}
	}
	return s, nil
}

func (s *Server) setupHotLoader() error {
	hl, err := lua.NewHotLoader(s.config, s.luaRuntime)
	if err != nil {
		return fmt.Errorf("hot loader: %w", err)
	}
	if err := hl.Start(); err != nil {
		hl.Stop()
		return fmt.Errorf("hot loader: %w", err)
	}
	s.hotLoader = hl
	return nil
}

// Runtime returns the server's module runtime.
func (s *Server) Runtime() *lua.Runtime {
	return s.luaRuntime
}

// Router returns the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	r.Get("/modules", s.handleModules)
	r.Handle("/mcp", s.mcpServer.Handler())
	return r
}

// handleModules lists the load registry as JSON.
func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.luaRuntime.Loaded())
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.config.Log(2, "http: %s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

// Start serves MCP on stdio, or HTTP when an address is configured.
// It blocks until stdin closes for stdio; HTTP serves in the background.
func (s *Server) Start() error {
	if s.config.Server.HTTP == "" {
		if err := s.mcpServer.ServeStdio(); err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	}
	_, err := s.StartHTTP(s.config.Server.HTTP)
	return err
}

// StartHTTP listens on addr and serves the router in the background.
// It returns the base URL, with the real port if addr asked for port 0.
func (s *Server) StartHTTP(addr string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.config.Log(1, "HTTP server listening on %s", listener.Addr())
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.config.Log(0, "HTTP server error: %v", err)
		}
	}()

	host, port, _ := net.SplitHostPort(listener.Addr().String())
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hotLoader != nil {
		s.hotLoader.Stop()
	}

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	s.luaRuntime.Shutdown()
	return err
}
