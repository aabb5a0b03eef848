package lua

import (
	"math"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// LuaToGo converts a Lua value to Go for display and JSON encoding.
// Functions become "function", fields prefixed with "_" are skipped and
// tables nested deeper than maxDepth are elided.
func LuaToGo(val lua.LValue) any {
	return luaToGo(val, 0)
}

const maxDepth = 8

func luaToGo(val lua.LValue, depth int) any {
	switch v := val.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LFunction:
		return "function"
	case *lua.LTable:
		if depth >= maxDepth {
			return "table"
		}
		// A table is an array only when its keys are exactly 1..n
		count, maxN := 0, 0
		sequence := true
		v.ForEach(func(key, _ lua.LValue) {
			n, ok := key.(lua.LNumber)
			if !ok || n < 1 || n != lua.LNumber(math.Trunc(float64(n))) {
				sequence = false
				return
			}
			count++
			if int(n) > maxN {
				maxN = int(n)
			}
		})
		if sequence && count > 0 && maxN == count {
			arr := make([]any, count)
			for i := 1; i <= count; i++ {
				arr[i-1] = luaToGo(v.RawGetInt(i), depth+1)
			}
			return arr
		}

		m := make(map[string]any)
		v.ForEach(func(key, value lua.LValue) {
			switch k := key.(type) {
			case lua.LString:
				if !strings.HasPrefix(string(k), "_") {
					m[string(k)] = luaToGo(value, depth+1)
				}
			case lua.LNumber:
				m[k.String()] = luaToGo(value, depth+1)
			}
		})
		return m
	case *lua.LUserData:
		return "userdata"
	default:
		return nil
	}
}
