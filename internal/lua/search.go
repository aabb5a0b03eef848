package lua

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/zot/modrt/internal/bundle"
	"github.com/zot/modrt/internal/config"
	"github.com/zot/modrt/internal/modname"
)

// Source is one entry of the module search path.
type Source interface {
	// ReadModule returns the contents of the file at the slash-separated
	// notional path and a description of where it was read from.
	// The error wraps fs.ErrNotExist when the source has no such file.
	ReadModule(notional string) (code []byte, origin string, err error)
	String() string
}

// DirSource reads modules from a directory on disk.
type DirSource string

func (d DirSource) ReadModule(notional string) ([]byte, string, error) {
	p := filepath.Join(string(d), filepath.FromSlash(notional))
	info, err := os.Stat(p)
	if err != nil {
		return nil, "", err
	}
	if info.IsDir() {
		return nil, "", &fs.PathError{Op: "read", Path: p, Err: fs.ErrNotExist}
	}
	code, err := os.ReadFile(p)
	if err != nil {
		return nil, "", err
	}
	return code, p, nil
}

func (d DirSource) String() string { return string(d) }

// FSSource reads modules from an fs.FS, such as the bundle appended to the executable.
type FSSource struct {
	FS   fs.FS
	Name string
}

func (s FSSource) ReadModule(notional string) ([]byte, string, error) {
	if !fs.ValidPath(notional) {
		return nil, "", &fs.PathError{Op: "read", Path: notional, Err: fs.ErrNotExist}
	}
	code, err := fs.ReadFile(s.FS, notional)
	if err != nil {
		return nil, "", err
	}
	return code, s.Name + ":" + notional, nil
}

func (s FSSource) String() string { return s.Name }

// SourcesFromConfig builds the search path from the [modules] settings:
// each configured directory in order, then the bundle if enabled and present.
func SourcesFromConfig(cfg *config.Config) ([]Source, error) {
	sources := make([]Source, 0, len(cfg.Modules.Path)+1)
	for _, dir := range cfg.Modules.Path {
		sources = append(sources, DirSource(dir))
	}
	if !cfg.Modules.Bundle {
		return sources, nil
	}
	bundled, err := bundle.IsBundled()
	if err != nil {
		cfg.Log(1, "search: cannot inspect executable for a bundle: %v", err)
		return sources, nil
	}
	if !bundled {
		return sources, nil
	}
	fsys, err := bundle.FS()
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	return append(sources, FSSource{FS: fsys, Name: "(bundle)"}), nil
}

// isExplicitPath reports whether p names a file directly rather than a
// path to look up on the search path.
func isExplicitPath(p string) bool {
	return filepath.IsAbs(p) || strings.HasPrefix(p, "./") || strings.HasPrefix(p, "../")
}

// locate finds the module file for a notional path. Explicit paths are read
// directly; everything else is looked up on each source in order.
func (r *Runtime) locate(notional string) ([]byte, string, error) {
	if isExplicitPath(notional) {
		code, err := os.ReadFile(notional)
		if err == nil {
			return code, notional, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", r.notFound(notional)
		}
		return nil, "", fmt.Errorf("read %s: %w", notional, err)
	}

	for _, src := range r.sources {
		code, origin, err := src.ReadModule(notional)
		if err == nil {
			return code, origin, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("read %s from %s: %w", notional, src, err)
		}
	}
	return nil, "", r.notFound(notional)
}

func (r *Runtime) notFound(notional string) *NotFoundError {
	e := &NotFoundError{Path: notional, SearchPath: r.SearchPath()}
	if name, ok := modname.ModuleNameFromFilename(notional); ok {
		e.Module = name
	}
	return e
}

// SearchPath returns the search path entries in order.
func (r *Runtime) SearchPath() []string {
	entries := make([]string, len(r.sources))
	for i, src := range r.sources {
		entries[i] = src.String()
	}
	return entries
}
