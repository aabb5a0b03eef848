package lua

import (
	"errors"

	"github.com/zot/modrt/internal/modname"
)

// UseModule loads a module and, if version is not empty, checks its declared
// version. Every failure is returned. On success the module name is returned.
func (r *Runtime) UseModule(name, version string) (string, error) {
	v, err := r.execute(func() (any, error) {
		return r.useModule(name, version)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// UsePackageOptimistically loads a module if it exists. When the module's
// own file is not on the search path the failure is ignored; anything else
// (a broken module, a missing dependency) is returned. A version, if given,
// is checked afterwards and a mismatch is returned as an error even when the
// module was not found.
func (r *Runtime) UsePackageOptimistically(name, version string) (string, error) {
	v, err := r.execute(func() (any, error) {
		return r.usePackageOptimistically(name, version)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// TryRequireModule loads a module if it exists and reports whether it is
// loaded and satisfies version. A missing module or a version mismatch is
// false; a broken module or missing dependency is an error.
func (r *Runtime) TryRequireModule(name, version string) (bool, error) {
	v, err := r.execute(func() (any, error) {
		return r.tryRequireModule(name, version)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (r *Runtime) useModule(name, version string) (string, error) {
	path, err := modname.NotionalFilename(name)
	if err != nil {
		return "", err
	}
	if _, err := r.requireFile(path); err != nil {
		return "", err
	}
	if version != "" {
		if err := r.checkVersion(name, path, version); err != nil {
			return "", err
		}
	}
	return name, nil
}

func (r *Runtime) usePackageOptimistically(name, version string) (string, error) {
	path, err := modname.NotionalFilename(name)
	if err != nil {
		return "", err
	}
	if _, err := r.requireFile(path); err != nil {
		if !IsOwnNotFound(err, path) {
			return "", err
		}
		r.Log(2, "runtime: %s not installed, continuing", name)
	}
	if version != "" {
		if err := r.checkVersion(name, path, version); err != nil {
			return "", err
		}
	}
	return name, nil
}

func (r *Runtime) tryRequireModule(name, version string) (bool, error) {
	path, err := modname.NotionalFilename(name)
	if err != nil {
		return false, err
	}
	if _, err := r.requireFile(path); err != nil {
		if IsOwnNotFound(err, path) {
			return false, nil
		}
		return false, err
	}
	if version != "" {
		if err := r.checkVersion(name, path, version); err != nil {
			var mismatch *VersionMismatchError
			if errors.As(err, &mismatch) {
				return false, nil
			}
			return false, err
		}
	}
	return true, nil
}
