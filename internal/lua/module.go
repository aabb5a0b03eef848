package lua

import (
	"time"

	lua "github.com/yuin/gopher-lua"
)

// Module tracks one file in the load registry.
// Only the executor goroutine touches a Module; callers get a ModuleInfo copy.
type Module struct {
	// Path is the notional path, the registry key
	Path string
	// Name is the module name Path maps back to, if any
	Name string
	// Origin is where the source was read from (file path or bundle entry)
	Origin string
	// Env is the module's private global environment
	Env *lua.LTable
	// Result is the chunk's return value once loading finished
	Result lua.LValue
	// Version is the declared VERSION, if any
	Version string
	// NumericVersion is set when VERSION was a number rather than a string
	NumericVersion bool
	// Loading is true while the chunk is running
	Loading bool
	// LoadedAt is when loading finished
	LoadedAt time.Time
}

// ModuleInfo is a snapshot of a loaded module safe to use off the executor.
type ModuleInfo struct {
	Path     string    `json:"path"`
	Name     string    `json:"name,omitempty"`
	Origin   string    `json:"origin"`
	Version  string    `json:"version,omitempty"`
	LoadedAt time.Time `json:"loadedAt"`
}

// NewModule creates a Module for a file that is about to be loaded.
func NewModule(path, name, origin string) *Module {
	return &Module{
		Path:    path,
		Name:    name,
		Origin:  origin,
		Loading: true,
	}
}

// Info returns a snapshot of the module.
func (m *Module) Info() ModuleInfo {
	return ModuleInfo{
		Path:     m.Path,
		Name:     m.Name,
		Origin:   m.Origin,
		Version:  m.Version,
		LoadedAt: m.LoadedAt,
	}
}

// finish records a successful load.
func (m *Module) finish(result lua.LValue) {
	m.Result = result
	m.Version, m.NumericVersion = declaredVersion(result, m.Env)
	m.Loading = false
	m.LoadedAt = time.Now()
}
