package lua

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zot/modrt/internal/config"
	"github.com/zot/modrt/internal/modname"
)

// reloader is the part of Runtime the hot loader drives.
type reloader interface {
	Module(path string) (ModuleInfo, bool)
	Reload(path string) error
	Forget(path string) bool
}

// HotLoader watches the search directories and reloads loaded modules
// whose files change. Removed files are forgotten so the next require
// searches again. Files that were never loaded are ignored.
type HotLoader struct {
	config  *config.Config
	dirs    []string
	watcher *fsnotify.Watcher
	target  reloader

	watchedDirs map[string]bool
	mu          sync.Mutex

	// Debouncing
	pendingReloads map[string]time.Time
	debounceMu     sync.Mutex
	debounceDelay  time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// NewHotLoader creates a hot loader for the directory sources of rt.
func NewHotLoader(cfg *config.Config, rt *Runtime) (*HotLoader, error) {
	return newHotLoader(cfg, SearchDirs(rt.sources), rt)
}

func newHotLoader(cfg *config.Config, dirs []string, target reloader) (*HotLoader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	delay := cfg.Modules.Debounce.Duration()
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	return &HotLoader{
		config:         cfg,
		dirs:           dirs,
		watcher:        watcher,
		target:         target,
		watchedDirs:    make(map[string]bool),
		pendingReloads: make(map[string]time.Time),
		debounceDelay:  delay,
		done:           make(chan struct{}),
	}, nil
}

// SearchDirs returns the directories among sources.
func SearchDirs(sources []Source) []string {
	var dirs []string
	for _, src := range sources {
		if d, ok := src.(DirSource); ok {
			dirs = append(dirs, filepath.Clean(string(d)))
		}
	}
	return dirs
}

// Start begins watching for file changes.
func (h *HotLoader) Start() error {
	for _, dir := range h.dirs {
		if err := h.addTree(dir); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				h.config.Log(2, "HotLoader: %s does not exist, not watching", dir)
				continue
			}
			return err
		}
	}

	go h.eventLoop()
	go h.debounceLoop()

	h.config.Log(1, "HotLoader: watching %s for changes", strings.Join(h.dirs, " "))
	return nil
}

// Stop stops the hot loader.
func (h *HotLoader) Stop() error {
	var err error
	h.stopOnce.Do(func() {
		close(h.done)
		err = h.watcher.Close()
	})
	return err
}

// addTree watches dir and every directory below it.
func (h *HotLoader) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return h.addWatch(p)
	})
}

// addWatch adds a directory to the watch list.
func (h *HotLoader) addWatch(dir string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.watchedDirs[dir] {
		return nil
	}
	if err := h.watcher.Add(dir); err != nil {
		return err
	}
	h.watchedDirs[dir] = true
	h.config.Log(2, "HotLoader: added watch for %s", dir)
	return nil
}

// eventLoop processes file system events.
func (h *HotLoader) eventLoop() {
	for {
		select {
		case <-h.done:
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			h.handleEvent(event)
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.config.Log(1, "HotLoader: watcher error: %v", err)
		}
	}
}

// handleEvent processes a single file system event.
func (h *HotLoader) handleEvent(event fsnotify.Event) {
	h.config.Log(3, "HotLoader: event %s on %s", event.Op, event.Name)

	// New directories are watched so modules created inside them are seen
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := h.addTree(event.Name); err != nil {
				h.config.Log(1, "HotLoader: cannot watch %s: %v", event.Name, err)
			}
			return
		}
	}

	if !strings.HasSuffix(event.Name, modname.Suffix) {
		return
	}

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		h.forgetFile(event.Name)
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		h.queueReload(event.Name)
	}
}

// queueReload queues a file for reload with debouncing.
func (h *HotLoader) queueReload(filePath string) {
	h.debounceMu.Lock()
	h.pendingReloads[filePath] = time.Now()
	h.debounceMu.Unlock()
}

// debounceLoop processes pending reloads after the debounce delay.
func (h *HotLoader) debounceLoop() {
	ticker := time.NewTicker(max(h.debounceDelay/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.processPendingReloads()
		}
	}
}

// processPendingReloads reloads files that have been pending for longer than debounceDelay.
func (h *HotLoader) processPendingReloads() {
	h.debounceMu.Lock()
	now := time.Now()
	var toReload []string
	for path, queuedAt := range h.pendingReloads {
		if now.Sub(queuedAt) >= h.debounceDelay {
			toReload = append(toReload, path)
			delete(h.pendingReloads, path)
		}
	}
	h.debounceMu.Unlock()

	for _, path := range toReload {
		h.reloadFile(path)
	}
}

// loadedAs returns the notional path under which filePath is loaded, if any.
// A file shadowed by an earlier search directory is not the loaded one.
func (h *HotLoader) loadedAs(filePath string) (string, bool) {
	filePath = filepath.Clean(filePath)
	for _, dir := range h.dirs {
		rel, err := filepath.Rel(dir, filePath)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		notional := filepath.ToSlash(rel)
		info, ok := h.target.Module(notional)
		if ok && filepath.Clean(info.Origin) == filePath {
			return notional, true
		}
	}
	return "", false
}

// reloadFile reloads a changed module file.
// Wraps execution in panic recovery so a bad file cannot stop the watcher.
func (h *HotLoader) reloadFile(filePath string) {
	notional, ok := h.loadedAs(filePath)
	if !ok {
		h.config.Log(2, "HotLoader: skipping %s (not loaded)", filePath)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			h.config.Log(0, "HotLoader: PANIC reloading %s: %v", notional, r)
		}
	}()

	h.config.Log(1, "HotLoader: reloading %s", notional)
	if err := h.target.Reload(notional); err != nil {
		h.config.Log(0, "HotLoader: error reloading %s: %v", notional, err)
		return
	}
	h.config.Log(2, "HotLoader: reloaded %s", notional)
}

// forgetFile drops a removed module file from the registry.
func (h *HotLoader) forgetFile(filePath string) {
	h.debounceMu.Lock()
	delete(h.pendingReloads, filePath)
	h.debounceMu.Unlock()

	if notional, ok := h.loadedAs(filePath); ok && h.target.Forget(notional) {
		h.config.Log(1, "HotLoader: %s removed, forgotten", notional)
	}
}
