package lua

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/zot/modrt/internal/modname"
)

// InvalidNameError is returned when a value is not a module name.
type InvalidNameError = modname.InvalidNameError

// ErrClosed is returned by calls made after Shutdown.
var ErrClosed = errors.New("module runtime is shut down")

const (
	notFoundPrefix          = "Can't locate "
	compilationFailedPrefix = "Compilation failed in require"
)

var compilationFailedLine = regexp.MustCompile(`(?m)^` + compilationFailedPrefix)

// NotFoundError reports a module file that is not on the search path.
type NotFoundError struct {
	Path       string   // notional path that was searched for
	Module     string   // module name, if Path maps back to one
	SearchPath []string // sources that were checked, in order
}

func (e *NotFoundError) Error() string {
	var b strings.Builder
	b.WriteString(notFoundPrefix)
	b.WriteString(e.Path)
	b.WriteString(" in search path")
	if e.Module != "" {
		fmt.Fprintf(&b, " (you may need to install the %s module)", e.Module)
	}
	fmt.Fprintf(&b, " (search path contains: %s)", strings.Join(e.SearchPath, " "))
	return b.String()
}

// CompilationError reports a module file that was found but failed while
// compiling or running its top level. Err is the underlying failure, which
// is itself a *NotFoundError or *CompilationError when a module the file
// required could not be loaded.
type CompilationError struct {
	Path string
	Err  error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("%s\n%s of %s", errorText(e.Err), compilationFailedPrefix, e.Path)
}

func (e *CompilationError) Unwrap() error { return e.Err }

// VersionMismatchError reports a loaded module whose declared version does
// not satisfy a requirement.
type VersionMismatchError struct {
	Module   string
	Required string
	Declared string // empty when the module declares no version
	Loaded   bool
}

func (e *VersionMismatchError) Error() string {
	switch {
	case !e.Loaded:
		return fmt.Sprintf("%s is not loaded--version %s check failed", e.Module, e.Required)
	case e.Declared == "":
		return fmt.Sprintf("%s does not declare a VERSION--version %s check failed", e.Module, e.Required)
	default:
		return fmt.Sprintf("%s version %s required--this is only version %s", e.Module, e.Required, e.Declared)
	}
}

// errorText returns the message of err without any Lua stack trace.
func errorText(err error) string {
	if apiErr, ok := err.(*lua.ApiError); ok && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return err.Error()
}

// IsOwnNotFound reports whether err means that the file at path itself is
// missing, as opposed to a file it depends on or a load that failed.
//
// A *NotFoundError is matched by its Path. A *CompilationError never
// matches, even if it wraps a not-found for the same path, because the file
// was found and something inside it failed. Other errors fall back to their
// text: they must start with "Can't locate <path> " and have no line
// starting with "Compilation failed in require".
func IsOwnNotFound(err error, path string) bool {
	switch e := err.(type) {
	case nil:
		return false
	case *NotFoundError:
		return e.Path == path
	case *CompilationError:
		return false
	}
	msg := errorText(err)
	return strings.HasPrefix(msg, notFoundPrefix+path+" ") && !compilationFailedLine.MatchString(msg)
}

// loadFailure unwraps a Lua error raised while running a chunk. Errors
// raised by the module API carry the original Go error as userdata.
func loadFailure(err error) error {
	apiErr, ok := err.(*lua.ApiError)
	if !ok {
		return err
	}
	if ud, ok := apiErr.Object.(*lua.LUserData); ok {
		if inner, ok := ud.Value.(error); ok {
			return inner
		}
	}
	return apiErr
}
