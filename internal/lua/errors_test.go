package lua

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-quicktest/qt"
)

func TestIsOwnNotFound(t *testing.T) {
	own := &NotFoundError{Path: "Foo/Bar.pm", Module: "Foo::Bar", SearchPath: []string{"lib"}}
	dep := &NotFoundError{Path: "Dep.pm", SearchPath: []string{"lib"}}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"own not found", own, true},
		{"other path", dep, false},
		{"wrapped dependency", &CompilationError{Path: "Foo/Bar.pm", Err: dep}, false},
		{"wrapped own path", &CompilationError{Path: "Foo/Bar.pm", Err: own}, false},
		{"text own", errors.New("Can't locate Foo/Bar.pm in search path (search path contains: lib)"), true},
		{"text other", errors.New("Can't locate Foo/Baz.pm in search path"), false},
		{"text prefix only", errors.New("Can't locate Foo/Bar.pmx in search path"), false},
		{"text nested", errors.New("Can't locate Foo/Bar.pm in search path\nCompilation failed in require of Other.pm"), false},
		{"text compilation mid-line", errors.New("Can't locate Foo/Bar.pm in x; Compilation failed in require"), true},
		{"text unrelated", errors.New("boom"), false},
		{"fmt wrapped own", fmt.Errorf("loading: %w", own), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qt.Check(t, qt.Equals(IsOwnNotFound(tt.err, "Foo/Bar.pm"), tt.want))
		})
	}
}

func TestNotFoundErrorText(t *testing.T) {
	err := &NotFoundError{Path: "A/B.pm", Module: "A::B", SearchPath: []string{"lib", "(bundle)"}}
	qt.Assert(t, qt.Equals(err.Error(),
		"Can't locate A/B.pm in search path (you may need to install the A::B module) (search path contains: lib (bundle))"))

	err = &NotFoundError{Path: "/abs/x.lua"}
	qt.Assert(t, qt.Equals(err.Error(), "Can't locate /abs/x.lua in search path (search path contains: )"))
}

func TestCompilationErrorUnwrap(t *testing.T) {
	inner := &NotFoundError{Path: "Dep.pm"}
	err := &CompilationError{Path: "Top.pm", Err: inner}

	var notFound *NotFoundError
	qt.Assert(t, qt.IsTrue(errors.As(err, &notFound)))
	qt.Assert(t, qt.Equals(notFound, inner))
	qt.Assert(t, qt.Matches(err.Error(), `(?s)Can't locate Dep\.pm .*\nCompilation failed in require of Top\.pm`))
}

func TestVersionMismatchErrorText(t *testing.T) {
	qt.Assert(t, qt.Equals((&VersionMismatchError{Module: "M", Required: "2"}).Error(),
		"M is not loaded--version 2 check failed"))
}
