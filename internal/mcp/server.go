// Package mcp exposes the module runtime as MCP tools and resources, so an
// AI client can validate names, load modules and inspect the registry.
package mcp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/zot/modrt/internal/config"
	"github.com/zot/modrt/internal/lua"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// Runtime is the part of lua.Runtime the server drives.
type Runtime interface {
	RequireValue(name string) (any, error)
	UseModule(name, version string) (string, error)
	UsePackageOptimistically(name, version string) (string, error)
	TryRequireModule(name, version string) (bool, error)
	Loaded() []lua.ModuleInfo
	SearchPath() []string
}

// Server implements an MCP server for the module runtime.
type Server struct {
	config *config.Config
	rt     Runtime
	mcp    *server.MCPServer
}

// NewServer creates an MCP server with the module tools and resources registered.
func NewServer(cfg *config.Config, rt Runtime) *Server {
	s := &Server{
		config: cfg,
		rt:     rt,
		mcp: server.NewMCPServer("modrt", Version,
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
			server.WithRecovery(),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves MCP on stdin and stdout until stdin closes.
func (s *Server) ServeStdio() error {
	s.config.Log(1, "mcp: serving on stdio")
	return server.ServeStdio(s.mcp)
}

// Handler returns an http.Handler serving MCP over streamable HTTP.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

// registerResources adds the read-only registry views.
func (s *Server) registerResources() {
	s.mcp.AddResource(
		mcp.NewResource("modrt://loaded", "Loaded modules",
			mcp.WithResourceDescription("Modules in the load registry with their origin and declared version"),
			mcp.WithMIMEType("application/json"),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return jsonResource(req.Params.URI, s.rt.Loaded())
		},
	)
	s.mcp.AddResource(
		mcp.NewResource("modrt://search-path", "Search path",
			mcp.WithResourceDescription("Ordered list of places modules are looked up"),
			mcp.WithMIMEType("application/json"),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return jsonResource(req.Params.URI, s.rt.SearchPath())
		},
	)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(data)},
	}, nil
}
