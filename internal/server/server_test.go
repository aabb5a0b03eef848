package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-quicktest/qt"
	"github.com/zot/modrt/internal/config"
	"github.com/zot/modrt/internal/lua"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	qt.Assert(t, qt.IsNil(os.WriteFile(filepath.Join(dir, "Hello.pm"), []byte(`return { VERSION = "2" }`), 0o644)))

	cfg := config.DefaultConfig()
	cfg.Modules.Path = []string{dir}
	cfg.Modules.Bundle = false
	s, err := New(cfg)
	qt.Assert(t, qt.IsNil(err))
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	qt.Assert(t, qt.IsNil(err))
	return rec.Code, string(body)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	code, body := get(t, s.Router(), "/healthz")
	qt.Assert(t, qt.Equals(code, http.StatusOK))
	qt.Assert(t, qt.Equals(body, "ok\n"))
}

func TestMetricsAndModules(t *testing.T) {
	s := newTestServer(t)
	_, err := s.Runtime().UseModule("Hello", "1")
	qt.Assert(t, qt.IsNil(err))
	ok, err := s.Runtime().TryRequireModule("Absent", "")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsFalse(ok))

	router := s.Router()
	code, body := get(t, router, "/metrics")
	qt.Assert(t, qt.Equals(code, http.StatusOK))
	qt.Assert(t, qt.StringContains(body, `modrt_loads_total{outcome="loaded"} 1`))
	qt.Assert(t, qt.StringContains(body, `modrt_loads_total{outcome="not_found"} 1`))
	qt.Assert(t, qt.StringContains(body, "modrt_modules_loaded 1"))
	qt.Assert(t, qt.StringContains(body, "go_goroutines"))

	code, body = get(t, router, "/modules")
	qt.Assert(t, qt.Equals(code, http.StatusOK))
	var loaded []lua.ModuleInfo
	qt.Assert(t, qt.IsNil(json.Unmarshal([]byte(body), &loaded)))
	qt.Assert(t, qt.HasLen(loaded, 1))
	qt.Assert(t, qt.Equals(loaded[0].Name, "Hello"))
	qt.Assert(t, qt.Equals(loaded[0].Version, "2"))
}

func TestStartHTTP(t *testing.T) {
	s := newTestServer(t)
	base, err := s.StartHTTP("127.0.0.1:0")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(strings.HasPrefix(base, "http://127.0.0.1:")))

	resp, err := http.Get(base + "/healthz")
	qt.Assert(t, qt.IsNil(err))
	defer resp.Body.Close()
	qt.Assert(t, qt.Equals(resp.StatusCode, http.StatusOK))

	// MCP over HTTP answers an initialize request
	initMsg := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`
	req, err := http.NewRequest(http.MethodPost, base+"/mcp", strings.NewReader(initMsg))
	qt.Assert(t, qt.IsNil(err))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	mcpResp, err := http.DefaultClient.Do(req)
	qt.Assert(t, qt.IsNil(err))
	defer mcpResp.Body.Close()
	qt.Assert(t, qt.Equals(mcpResp.StatusCode, http.StatusOK))
	body, err := io.ReadAll(mcpResp.Body)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.StringContains(string(body), `"name":"modrt"`))
}

func TestHotReloadConfigured(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Modules.Path = []string{dir}
	cfg.Modules.Bundle = false
	cfg.Modules.HotReload = true

	s, err := New(cfg)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsNotNil(s.hotLoader))
	qt.Assert(t, qt.IsNil(s.Shutdown(context.Background())))
}
