package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/zot/modrt/internal/modname"
)

func nameParam() mcp.ToolOption {
	return mcp.WithString("name", mcp.Required(), mcp.Description("Module name, such as Foo::Bar"))
}

func versionParam() mcp.ToolOption {
	return mcp.WithString("version", mcp.Description("Minimum declared VERSION; omit for no check"))
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("is_module_name",
		mcp.WithDescription("Report whether a string is a syntactically valid module name"),
		nameParam(),
	), s.handleIsModuleName)

	s.mcp.AddTool(mcp.NewTool("module_notional_filename",
		mcp.WithDescription("Map a module name to the relative path it is loaded from"),
		nameParam(),
	), s.handleNotionalFilename)

	s.mcp.AddTool(mcp.NewTool("require_module",
		mcp.WithDescription("Load a module once and return the value its file returned"),
		nameParam(),
	), s.handleRequireModule)

	s.mcp.AddTool(mcp.NewTool("use_module",
		mcp.WithDescription("Load a module and check its version; every failure is an error"),
		nameParam(), versionParam(),
	), s.handleUseModule)

	s.mcp.AddTool(mcp.NewTool("use_package_optimistically",
		mcp.WithDescription("Load a module if it is installed; a missing module is not an error"),
		nameParam(), versionParam(),
	), s.handleUseOptimistically)

	s.mcp.AddTool(mcp.NewTool("try_require_module",
		mcp.WithDescription("Load a module if it is installed and report whether it is usable"),
		nameParam(), versionParam(),
	), s.handleTryRequire)

	s.mcp.AddTool(mcp.NewTool("loaded_modules",
		mcp.WithDescription("List the modules in the load registry"),
	), s.handleLoaded)
}

func (s *Server) handleIsModuleName(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strconv.FormatBool(modname.IsModuleName(name))), nil
}

func (s *Server) handleNotionalFilename(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := modname.NotionalFilename(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(path), nil
}

func (s *Server) handleRequireModule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.rt.RequireValue(name)
	if err != nil {
		return s.failed("require_module", err), nil
	}
	return jsonResult(v)
}

func (s *Server) handleUseModule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	version, err := versionArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err = s.rt.UseModule(name, version)
	if err != nil {
		return s.failed("use_module", err), nil
	}
	return mcp.NewToolResultText(name), nil
}

func (s *Server) handleUseOptimistically(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	version, err := versionArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err = s.rt.UsePackageOptimistically(name, version)
	if err != nil {
		return s.failed("use_package_optimistically", err), nil
	}
	return mcp.NewToolResultText(name), nil
}

func (s *Server) handleTryRequire(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	version, err := versionArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ok, err := s.rt.TryRequireModule(name, version)
	if err != nil {
		return s.failed("try_require_module", err), nil
	}
	return mcp.NewToolResultText(strconv.FormatBool(ok)), nil
}

func (s *Server) handleLoaded(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.rt.Loaded())
}

// failed reports a load failure to the client as a tool error.
func (s *Server) failed(tool string, err error) *mcp.CallToolResult {
	s.config.Log(2, "mcp: %s: %v", tool, err)
	return mcp.NewToolResultError(err.Error())
}

// versionArg reads the optional version argument, which must be a string.
func versionArg(req mcp.CallToolRequest) (string, error) {
	switch v := req.GetArguments()["version"].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("version must be a string, not %T", v)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
