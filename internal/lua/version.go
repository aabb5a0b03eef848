package lua

import (
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"golang.org/x/mod/semver"
)

// declaredVersion reads VERSION from a module's result table, falling back
// to the VERSION global of its environment. numeric is true when VERSION is
// a Lua number, whose written form (1.10 versus 1.1) is already lost.
func declaredVersion(result lua.LValue, env *lua.LTable) (version string, numeric bool) {
	var v lua.LValue = lua.LNil
	if tbl, ok := result.(*lua.LTable); ok {
		v = tbl.RawGetString("VERSION")
	}
	if v == lua.LNil && env != nil {
		v = env.RawGetString("VERSION")
	}
	switch v := v.(type) {
	case lua.LString:
		return string(v), false
	case lua.LNumber:
		return v.String(), true
	}
	return "", false
}

// canonicalVersion turns "1.2" or "v1.2.3" into a comparable semver string.
func canonicalVersion(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return "", false
	}
	return v, true
}

// checkVersion checks the module loaded from path against a required version.
// Runs on the executor.
func (r *Runtime) checkVersion(name, path, required string) error {
	want, ok := canonicalVersion(required)
	if !ok {
		return fmt.Errorf("invalid version requirement %q for %s", required, name)
	}

	mod := r.modules[path]
	if mod == nil || mod.Loading {
		return &VersionMismatchError{Module: name, Required: required}
	}
	if mod.NumericVersion {
		return fmt.Errorf("%s declares VERSION as the number %s; declare it as a string to check a version", name, mod.Version)
	}
	mismatch := &VersionMismatchError{Module: name, Required: required, Declared: mod.Version, Loaded: true}
	have, ok := canonicalVersion(mod.Version)
	if !ok {
		return mismatch
	}
	if semver.Compare(have, want) < 0 {
		return mismatch
	}
	return nil
}
