// Package modname validates module names and maps them to notional file paths.
//
// A module name is a sequence of units, each either the namespace separator
// "::" or a word optionally followed by apostrophe-joined words:
//
//	Foo::Bar
//	Foo'Bar
//	::Foo::::Bar::
//
// Words are Unicode alphabetic characters (letters, letter numbers and
// other alphabetic symbols), marks, decimal digits, connector punctuation
// and the join controls. A name may not start with a digit or an apostrophe, and a
// word following an apostrophe may not start with a digit.
package modname

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// Separator joins the segments of a module name.
	Separator = "::"
	// Quote is the alternate separator accepted inside a segment.
	Quote = "'"
	// Suffix is appended to every notional filename.
	Suffix = ".pm"
)

var (
	wordStartClass = `\p{L}\p{Nl}\p{M}\p{Pc}\x{200C}\x{200D}` + rangeClass(unicode.Other_Alphabetic)
	wordClass      = wordStartClass + `\p{Nd}`

	namePattern      = regexp.MustCompile(`^(?:::|[` + wordClass + `]+(?:'[` + wordStartClass + `][` + wordClass + `]*)*)+$`)
	separatorPattern = regexp.MustCompile(`::|'`)
)

// rangeClass renders a Unicode range table as the body of a regexp
// character class.
func rangeClass(t *unicode.RangeTable) string {
	var b strings.Builder
	add := func(lo, hi, stride uint32) {
		if stride == 1 {
			fmt.Fprintf(&b, `\x{%X}-\x{%X}`, lo, hi)
			return
		}
		for r := lo; r <= hi; r += stride {
			fmt.Fprintf(&b, `\x{%X}`, r)
		}
	}
	for _, r := range t.R16 {
		add(uint32(r.Lo), uint32(r.Hi), uint32(r.Stride))
	}
	for _, r := range t.R32 {
		add(r.Lo, r.Hi, r.Stride)
	}
	return b.String()
}

// InvalidNameError reports a value that is not a module name.
type InvalidNameError struct {
	Value  any
	Absent bool // no value was supplied
}

func (e *InvalidNameError) Error() string {
	if e.Absent {
		return "argument is not a module name"
	}
	return describe(e.Value) + " is not a module name"
}

func describe(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return strconv.Quote(fmt.Sprint(v))
}

// IsModuleName reports whether v is a string holding a valid module name.
// It never panics; nil and non-string values are not module names.
func IsModuleName(v any) bool {
	s, ok := v.(string)
	if !ok || s == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(s)
	if unicode.IsDigit(first) || first == '\'' {
		return false
	}
	return namePattern.MatchString(s)
}

// CheckModuleName returns an *InvalidNameError unless v is a module name.
func CheckModuleName(v any) error {
	if IsModuleName(v) {
		return nil
	}
	return &InvalidNameError{Value: v, Absent: v == nil}
}

// NotionalFilename maps a module name to the relative path it is loaded from.
// Every "::" and every apostrophe becomes "/" and Suffix is appended:
//
//	Foo::Bar -> Foo/Bar.pm
//	A'B      -> A/B.pm
func NotionalFilename(name string) (string, error) {
	if err := CheckModuleName(name); err != nil {
		return "", err
	}
	return separatorPattern.ReplaceAllString(name, "/") + Suffix, nil
}

// ModuleNameFromFilename reverses NotionalFilename for display purposes.
// The result is false when path does not carry Suffix or does not map back
// to a valid name.
func ModuleNameFromFilename(path string) (string, bool) {
	base, ok := strings.CutSuffix(path, Suffix)
	if !ok {
		return "", false
	}
	name := strings.ReplaceAll(base, "/", Separator)
	if !IsModuleName(name) {
		return "", false
	}
	return name, true
}
