package modname

import (
	"errors"
	"testing"

	"github.com/go-quicktest/qt"
)

func TestIsModuleName(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"simple", "Foo", true},
		{"nested", "Foo::Bar::Baz", true},
		{"underscore", "_private", true},
		{"digits inside", "Foo2::Bar3", true},
		{"digit segment", "Foo::123", true},
		{"apostrophe", "Foo'Bar", true},
		{"apostrophe chain", "A'B'C::D", true},
		{"bare separator", "::", true},
		{"leading separator", "::Foo", true},
		{"trailing separator", "Foo::", true},
		{"doubled separator", "Foo::::Bar", true},
		{"unicode", "Café::Ñandú", true},
		{"letter number", "Ⅻ::Foo", true},
		{"letter number after apostrophe", "Foo'Ⅻ", true},
		{"other alphabetic", "Ⓐ::Ⓑ", true},
		{"zero width joiner", "Foo\u200dBar", true},
		{"symbol", "Foo☃", false},
		{"nil", nil, false},
		{"empty", "", false},
		{"non-string", 42, false},
		{"leading digit", "1Foo", false},
		{"leading apostrophe", "'Foo", false},
		{"trailing apostrophe", "Foo'", false},
		{"digit after apostrophe", "Foo'1Bar", false},
		{"double apostrophe", "Foo''Bar", false},
		{"single colon", "Foo:Bar", false},
		{"triple colon", "Foo:::Bar", false},
		{"dash", "Foo-Bar", false},
		{"slash", "Foo/Bar", false},
		{"space", "Foo Bar", false},
		{"unicode leading digit", "٣Foo", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qt.Check(t, qt.Equals(IsModuleName(tt.in), tt.want))
		})
	}
}

func TestCheckModuleName(t *testing.T) {
	qt.Assert(t, qt.IsNil(CheckModuleName("Foo::Bar")))

	err := CheckModuleName("Foo-Bar")
	var nameErr *InvalidNameError
	qt.Assert(t, qt.IsTrue(errors.As(err, &nameErr)))
	qt.Assert(t, qt.Equals(err.Error(), `"Foo-Bar" is not a module name`))

	err = CheckModuleName("")
	qt.Assert(t, qt.Equals(err.Error(), `"" is not a module name`))

	err = CheckModuleName(nil)
	qt.Assert(t, qt.Equals(err.Error(), "argument is not a module name"))
}

func TestNotionalFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Foo", "Foo.pm"},
		{"Foo::Bar", "Foo/Bar.pm"},
		{"A'B", "A/B.pm"},
		{"A'B::C", "A/B/C.pm"},
		{"Foo::::Bar", "Foo//Bar.pm"},
	}
	for _, tt := range tests {
		got, err := NotionalFilename(tt.in)
		qt.Assert(t, qt.IsNil(err))
		qt.Check(t, qt.Equals(got, tt.want), qt.Commentf("name %q", tt.in))
	}

	_, err := NotionalFilename("1Foo")
	var nameErr *InvalidNameError
	qt.Assert(t, qt.IsTrue(errors.As(err, &nameErr)))
}

func TestModuleNameFromFilename(t *testing.T) {
	name, ok := ModuleNameFromFilename("Foo/Bar.pm")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(name, "Foo::Bar"))

	_, ok = ModuleNameFromFilename("Foo/Bar.lua")
	qt.Assert(t, qt.IsFalse(ok))

	_, ok = ModuleNameFromFilename("Foo-Bar.pm")
	qt.Assert(t, qt.IsFalse(ok))
}
