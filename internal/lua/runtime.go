// Package lua provides the module runtime: an embedded Lua VM that loads
// module files by name, at most once each, from an ordered search path.
//
// The VM is owned by a single executor goroutine. Public methods queue work
// on it and block, so the load registry is only ever touched from one
// goroutine and each path is loaded at most once even with concurrent callers.
package lua

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/zot/modrt/internal/config"
	"github.com/zot/modrt/internal/modname"
)

// WorkItem represents a unit of work for the executor.
type WorkItem struct {
	fn     func() (any, error)
	result chan WorkResult
}

// WorkResult holds the result of a work item.
type WorkResult struct {
	Value any
	Err   error
}

// Runtime loads module files into a Lua state and memoizes them by notional path.
type Runtime struct {
	State    *lua.LState
	registry *lua.LTable        // notional path -> result, true while loading
	modules  map[string]*Module // notional path -> tracking record
	sources  []Source
	explicit bool // sources came from WithSources
	config   *config.Config
	metrics  *Metrics

	executorChan chan WorkItem
	done         chan struct{}
	closeOnce    sync.Once
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithSources replaces the search path built from the config.
func WithSources(sources ...Source) Option {
	return func(r *Runtime) {
		r.sources = sources
		r.explicit = true
	}
}

// WithMetrics records load metrics.
func WithMetrics(m *Metrics) Option {
	return func(r *Runtime) {
		r.metrics = m
	}
}

// NewRuntime creates a Runtime and starts its executor goroutine.
// Unless WithSources is given, the search path comes from cfg.
func NewRuntime(cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	r := &Runtime{
		config:       cfg,
		State:        L,
		registry:     L.NewTable(),
		modules:      make(map[string]*Module),
		executorChan: make(chan WorkItem, 100),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if !r.explicit {
		sources, err := SourcesFromConfig(cfg)
		if err != nil {
			L.Close()
			return nil, err
		}
		r.sources = sources
	}

	// Load standard libraries
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	lua.OpenOs(L)

	r.registerModuleAPI()

	r.startExecutor()
	r.Log(2, "runtime: search path %s", strings.Join(r.SearchPath(), " "))

	return r, nil
}

// Log logs a message via the config.
func (r *Runtime) Log(level int, format string, args ...any) {
	r.config.Log(level, format, args...)
}

// startExecutor creates the goroutine that processes work items.
func (r *Runtime) startExecutor() {
	go func() {
		for {
			select {
			case <-r.done:
				return
			case work := <-r.executorChan:
				result, err := work.fn()
				work.result <- WorkResult{Value: result, Err: err}
			}
		}
	}()
}

// execute queues a function on the executor and blocks until complete.
// Must not be called from the executor itself.
func (r *Runtime) execute(fn func() (any, error)) (any, error) {
	result := make(chan WorkResult, 1)
	select {
	case <-r.done:
		return nil, ErrClosed
	case r.executorChan <- WorkItem{fn: fn, result: result}:
	}
	select {
	case <-r.done:
		return nil, ErrClosed
	case res := <-result:
		return res.Value, res.Err
	}
}

// Shutdown stops the executor and closes the Lua state.
func (r *Runtime) Shutdown() {
	r.closeOnce.Do(func() {
		// Close the state on the executor so it never races a running load.
		r.execute(func() (any, error) {
			r.State.Close()
			return nil, nil
		})
		close(r.done)
	})
}

// RequireFile loads the file at a notional path once and returns the value
// its chunk returned. Later calls return the cached value without running
// the file again. A failed load leaves no registry entry behind, so a retry
// runs the file again and fails again rather than reporting success.
//
// The returned value belongs to the Lua state. Only read it inside Call;
// other goroutines should use RequireFileValue.
func (r *Runtime) RequireFile(path string) (lua.LValue, error) {
	v, err := r.execute(func() (any, error) {
		return r.requireFile(path)
	})
	if err != nil {
		return lua.LNil, err
	}
	return v.(lua.LValue), nil
}

// RequireModule maps a module name to its notional path and loads it with
// RequireFile. As with RequireFile the result must only be read inside Call;
// use RequireValue to get a Go value.
func (r *Runtime) RequireModule(name string) (lua.LValue, error) {
	v, err := r.execute(func() (any, error) {
		return r.requireModule(name)
	})
	if err != nil {
		return lua.LNil, err
	}
	return v.(lua.LValue), nil
}

// RequireValue is RequireModule with the result converted to Go values on
// the executor (see LuaToGo).
func (r *Runtime) RequireValue(name string) (any, error) {
	return r.execute(func() (any, error) {
		v, err := r.requireModule(name)
		if err != nil {
			return nil, err
		}
		return LuaToGo(v), nil
	})
}

// RequireFileValue is RequireFile with the result converted to Go values.
func (r *Runtime) RequireFileValue(path string) (any, error) {
	return r.execute(func() (any, error) {
		v, err := r.requireFile(path)
		if err != nil {
			return nil, err
		}
		return LuaToGo(v), nil
	})
}

func (r *Runtime) requireModule(name string) (lua.LValue, error) {
	path, err := modname.NotionalFilename(name)
	if err != nil {
		return lua.LNil, err
	}
	return r.requireFile(path)
}

// requireFile is the executor-side load. It is re-entered when a module
// requires another module while its chunk is running.
func (r *Runtime) requireFile(path string) (lua.LValue, error) {
	L := r.State

	// A hit while the file is still running is a circular require; the
	// loading marker (true) is returned, as for a finished bare chunk.
	if cached := L.GetField(r.registry, path); cached != lua.LNil {
		r.metrics.load(OutcomeCached)
		return cached, nil
	}

	code, origin, err := r.locate(path)
	if err != nil {
		r.metrics.load(OutcomeNotFound)
		r.Log(2, "runtime: %s not found", path)
		return lua.LNil, err
	}

	name, _ := modname.ModuleNameFromFilename(path)
	mod := NewModule(path, name, origin)

	// Mark as loading BEFORE executing (handles circular dependencies)
	L.SetField(r.registry, path, lua.LTrue)
	r.modules[path] = mod

	start := time.Now()
	result, err := r.run(mod, code)
	r.metrics.ran(time.Since(start))
	if err != nil {
		// Unmark on error so a retry runs the file again
		L.SetField(r.registry, path, lua.LNil)
		delete(r.modules, path)
		r.metrics.load(OutcomeFailed)
		r.Log(1, "runtime: loading %s from %s failed: %v", path, origin, errorText(err))
		return lua.LNil, &CompilationError{Path: path, Err: err}
	}

	// A chunk that returns nothing still counts as loaded
	if result == lua.LNil {
		result = lua.LTrue
	}
	mod.finish(result)
	L.SetField(r.registry, path, result)
	r.metrics.load(OutcomeLoaded)
	r.metrics.registered(len(r.modules))
	r.Log(1, "runtime: loaded %s from %s", path, origin)

	return result, nil
}

// run compiles and runs a module chunk in its own environment. Globals the
// chunk assigns stay in that environment; reads fall through to the shared
// globals. The caller's environment never leaks into the module.
func (r *Runtime) run(mod *Module, code []byte) (lua.LValue, error) {
	L := r.State

	fn, err := L.Load(strings.NewReader(string(code)), mod.Path)
	if err != nil {
		return lua.LNil, err
	}

	env := L.NewTable()
	meta := L.NewTable()
	L.SetField(meta, "__index", L.G.Global)
	L.SetMetatable(env, meta)
	L.SetField(env, "_PATH", lua.LString(mod.Path))
	if mod.Name != "" {
		L.SetField(env, "_NAME", lua.LString(mod.Name))
	}
	fn.Env = env
	mod.Env = env

	top := L.GetTop()
	defer L.SetTop(top)

	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		return lua.LNil, loadFailure(err)
	}
	return L.Get(-1), nil
}

// IsFileLoaded reports whether a notional path has finished loading.
func (r *Runtime) IsFileLoaded(path string) bool {
	v, _ := r.execute(func() (any, error) {
		mod := r.modules[path]
		return mod != nil && !mod.Loading, nil
	})
	loaded, _ := v.(bool)
	return loaded
}

// Module returns a snapshot of a loaded module.
func (r *Runtime) Module(path string) (ModuleInfo, bool) {
	v, _ := r.execute(func() (any, error) {
		mod := r.modules[path]
		if mod == nil || mod.Loading {
			return nil, nil
		}
		return mod.Info(), nil
	})
	info, ok := v.(ModuleInfo)
	return info, ok
}

// Loaded returns snapshots of all loaded modules sorted by path.
func (r *Runtime) Loaded() []ModuleInfo {
	v, _ := r.execute(func() (any, error) {
		infos := make([]ModuleInfo, 0, len(r.modules))
		for _, mod := range r.modules {
			if !mod.Loading {
				infos = append(infos, mod.Info())
			}
		}
		slices.SortFunc(infos, func(a, b ModuleInfo) int {
			return strings.Compare(a.Path, b.Path)
		})
		return infos, nil
	})
	infos, _ := v.([]ModuleInfo)
	return infos
}

// Forget drops a finished registry entry so the next require loads the
// file again. Entries that are still loading are left alone.
func (r *Runtime) Forget(path string) bool {
	v, _ := r.execute(func() (any, error) {
		return r.forget(path), nil
	})
	forgotten, _ := v.(bool)
	return forgotten
}

func (r *Runtime) forget(path string) bool {
	mod := r.modules[path]
	if mod == nil || mod.Loading {
		return false
	}
	r.State.SetField(r.registry, path, lua.LNil)
	delete(r.modules, path)
	r.metrics.registered(len(r.modules))
	r.Log(2, "runtime: forgot %s", path)
	return true
}

// Reload forgets a loaded file and loads it again.
// If the new load fails the file stays unloaded.
func (r *Runtime) Reload(path string) error {
	_, err := r.execute(func() (any, error) {
		if !r.forget(path) {
			return nil, fmt.Errorf("%s is not loaded", path)
		}
		_, err := r.requireFile(path)
		r.metrics.reload(err)
		return nil, err
	})
	return err
}

// Call runs fn on the executor with the Lua state. Lua values must not
// escape fn; convert them first (see LuaToGo).
func (r *Runtime) Call(fn func(L *lua.LState) (any, error)) (any, error) {
	return r.execute(func() (any, error) {
		return fn(r.State)
	})
}
