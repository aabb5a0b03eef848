package lua

import (
	"testing"

	"github.com/go-quicktest/qt"
	golua "github.com/yuin/gopher-lua"
)

func convertLua(t *testing.T, expr string) any {
	t.Helper()
	L := golua.NewState()
	defer L.Close()
	qt.Assert(t, qt.IsNil(L.DoString("value = "+expr)))
	return LuaToGo(L.GetGlobal("value"))
}

func TestLuaToGoTables(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want any
	}{
		{"sequence", `{ "a", "b", 3 }`, []any{"a", "b", 3.0}},
		{"record", `{ name = "x", ok = true }`, map[string]any{"name": "x", "ok": true}},
		{"empty", `{}`, map[string]any{}},
		{"hole", `{ [1] = "a", [3] = "c" }`, map[string]any{"1": "a", "3": "c"}},
		{"sparse", `{ [2000000000] = 1 }`, map[string]any{"2000000000": 1.0}},
		{"zero index", `{ [0] = "z", [1] = "a" }`, map[string]any{"0": "z", "1": "a"}},
		{"fractional", `{ [1.5] = "x" }`, map[string]any{"1.5": "x"}},
		{"mixed", `{ "a", name = "n" }`, map[string]any{"1": "a", "name": "n"}},
		{"private fields", `{ _hidden = 1, shown = 2 }`, map[string]any{"shown": 2.0}},
		{"function", `{ f = function() end }`, map[string]any{"f": "function"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qt.Assert(t, qt.DeepEquals(convertLua(t, tt.expr), tt.want))
		})
	}
}

func TestLuaToGoDepth(t *testing.T) {
	got := convertLua(t, `{ a = { a = { a = { a = { a = { a = { a = { a = { a = 1 } } } } } } } } }`)
	for i := 0; i < maxDepth; i++ {
		got = got.(map[string]any)["a"]
	}
	qt.Assert(t, qt.Equals(got, any("table")))
}

func TestRequireValueSparseTable(t *testing.T) {
	rt := newTestRuntime(t, writeTree(t, `
-- Sparse.pm --
return { [2000000000] = 1 }
`))
	v, err := rt.RequireValue("Sparse")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(v, any(map[string]any{"2000000000": 1.0})))
}
