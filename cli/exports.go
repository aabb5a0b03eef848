package cli

import (
	"github.com/zot/modrt/internal/bundle"
	"github.com/zot/modrt/internal/lua"
	"github.com/zot/modrt/internal/modname"
	"github.com/zot/modrt/internal/server"
)

// Re-export runtime types for embedding
type (
	Runtime    = lua.Runtime
	Option     = lua.Option
	Source     = lua.Source
	DirSource  = lua.DirSource
	FSSource   = lua.FSSource
	ModuleInfo = lua.ModuleInfo
	Server     = server.Server

	InvalidNameError     = modname.InvalidNameError
	NotFoundError        = lua.NotFoundError
	CompilationError     = lua.CompilationError
	VersionMismatchError = lua.VersionMismatchError
)

// Re-export constructors and options
var (
	NewRuntime  = lua.NewRuntime
	NewServer   = server.New
	WithSources = lua.WithSources
	WithMetrics = lua.WithMetrics
	NewMetrics  = lua.NewMetrics
)

// Re-export name functions
var (
	IsModuleName     = modname.IsModuleName
	CheckModuleName  = modname.CheckModuleName
	NotionalFilename = modname.NotionalFilename
	IsOwnNotFound    = lua.IsOwnNotFound
	LuaToGo          = lua.LuaToGo
)

// Re-export bundle functions
var (
	IsBundled    = bundle.IsBundled
	CreateBundle = bundle.CreateBundle
)
