package lua

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"github.com/zot/modrt/internal/modname"
)

const errorTypeName = "modrt.error"

// registerModuleAPI adds the modrt.* table and a global require() to Lua.
//
//	modrt.is_module_name(value) -> bool
//	modrt.check_module_name(value)
//	modrt.module_notional_filename(name) -> path
//	modrt.require_module(name) -> result
//	modrt.require_file(path) -> result
//	modrt.use_module(name [, version]) -> name
//	modrt.use_package_optimistically(name [, version]) -> name
//	modrt.try_require_module(name [, version]) -> bool
//
// Errors are raised as userdata wrapping the Go error; tostring() gives the
// message. Keeping the Go error lets a module that fails because of a
// dependency report a structured nested failure.
func (r *Runtime) registerModuleAPI() {
	L := r.State

	errMeta := L.NewTypeMetatable(errorTypeName)
	L.SetField(errMeta, "__tostring", L.NewFunction(func(L *lua.LState) int {
		ud := L.CheckUserData(1)
		if err, ok := ud.Value.(error); ok {
			L.Push(lua.LString(err.Error()))
		} else {
			L.Push(lua.LString(errorTypeName))
		}
		return 1
	}))

	api := L.NewTable()

	L.SetField(api, "is_module_name", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(modname.IsModuleName(luaArg(L, 1))))
		return 1
	}))

	L.SetField(api, "check_module_name", L.NewFunction(func(L *lua.LState) int {
		if err := modname.CheckModuleName(luaArg(L, 1)); err != nil {
			return raise(L, err)
		}
		return 0
	}))

	L.SetField(api, "module_notional_filename", L.NewFunction(func(L *lua.LState) int {
		name, err := nameArg(L, 1)
		if err != nil {
			return raise(L, err)
		}
		path, err := modname.NotionalFilename(name)
		if err != nil {
			return raise(L, err)
		}
		L.Push(lua.LString(path))
		return 1
	}))

	requireModule := L.NewFunction(func(L *lua.LState) int {
		name, err := nameArg(L, 1)
		if err != nil {
			return raise(L, err)
		}
		result, err := r.requireModule(name)
		if err != nil {
			return raise(L, err)
		}
		L.Push(result)
		return 1
	})
	L.SetField(api, "require_module", requireModule)

	L.SetField(api, "require_file", L.NewFunction(func(L *lua.LState) int {
		result, err := r.requireFile(L.CheckString(1))
		if err != nil {
			return raise(L, err)
		}
		L.Push(result)
		return 1
	}))

	L.SetField(api, "use_module", L.NewFunction(func(L *lua.LState) int {
		name, err := nameArg(L, 1)
		if err != nil {
			return raise(L, err)
		}
		version, err := versionArg(L, 2)
		if err != nil {
			return raise(L, err)
		}
		used, err := r.useModule(name, version)
		if err != nil {
			return raise(L, err)
		}
		L.Push(lua.LString(used))
		return 1
	}))

	L.SetField(api, "use_package_optimistically", L.NewFunction(func(L *lua.LState) int {
		name, err := nameArg(L, 1)
		if err != nil {
			return raise(L, err)
		}
		version, err := versionArg(L, 2)
		if err != nil {
			return raise(L, err)
		}
		used, err := r.usePackageOptimistically(name, version)
		if err != nil {
			return raise(L, err)
		}
		L.Push(lua.LString(used))
		return 1
	}))

	L.SetField(api, "try_require_module", L.NewFunction(func(L *lua.LState) int {
		name, err := nameArg(L, 1)
		if err != nil {
			return raise(L, err)
		}
		version, err := versionArg(L, 2)
		if err != nil {
			return raise(L, err)
		}
		ok, err := r.tryRequireModule(name, version)
		if err != nil {
			return raise(L, err)
		}
		L.Push(lua.LBool(ok))
		return 1
	}))

	L.SetGlobal("modrt", api)
	L.SetGlobal("require", requireModule)
}

// raise raises err in Lua as userdata so it can be recovered unchanged.
func raise(L *lua.LState, err error) int {
	ud := L.NewUserData()
	ud.Value = err
	ud.Metatable = L.GetTypeMetatable(errorTypeName)
	L.Error(ud, 0)
	return 0
}

// luaArg converts argument n for name validation: strings stay strings,
// nil and absent arguments become nil, anything else is passed through
// and fails validation.
func luaArg(L *lua.LState, n int) any {
	switch v := L.Get(n).(type) {
	case lua.LString:
		return string(v)
	case *lua.LNilType:
		return nil
	default:
		return v
	}
}

func nameArg(L *lua.LState, n int) (string, error) {
	v := luaArg(L, n)
	if err := modname.CheckModuleName(v); err != nil {
		return "", err
	}
	return v.(string), nil
}

// versionArg returns an optional version argument, which must be a string.
func versionArg(L *lua.LState, n int) (string, error) {
	switch v := L.Get(n).(type) {
	case *lua.LNilType:
		return "", nil
	case lua.LString:
		return string(v), nil
	default:
		return "", fmt.Errorf("version requirement must be a string, not %s", v.Type())
	}
}
