package sandbox

import (
	"encoding/json"
	"math"
	"math/rand"
	"regexp"
	"sort"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// builtinModules are the Go-implemented safe modules bound into every
// environment alongside the Lua-native math/string/table libraries.
var builtinModules = map[string]ModuleBuilder{
	"json":     jsonModule,
	"re":       reModule,
	"datetime": datetimeModule,
	"random":   randomModule,
	"stats":    statsModule,
}

func jsonModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	mod.RawSetString("encode", L.NewFunction(func(L *lua.LState) int {
		v := luaToGo(L.CheckAny(1))
		data, err := json.Marshal(v)
		if err != nil {
			L.RaiseError("json.encode: %v", err)
		}
		L.Push(lua.LString(data))
		return 1
	}))
	mod.RawSetString("decode", L.NewFunction(func(L *lua.LState) int {
		var v any
		if err := json.Unmarshal([]byte(L.CheckString(1)), &v); err != nil {
			L.RaiseError("json.decode: %v", err)
		}
		L.Push(goToLua(L, v))
		return 1
	}))
	return mod
}

func reModule(L *lua.LState) *lua.LTable {
	compile := func(L *lua.LState, pat string) *regexp.Regexp {
		re, err := regexp.Compile(pat)
		if err != nil {
			L.RaiseError("re: invalid pattern: %v", err)
		}
		return re
	}
	mod := L.NewTable()
	mod.RawSetString("match", L.NewFunction(func(L *lua.LState) int {
		re := compile(L, L.CheckString(2))
		L.Push(lua.LBool(re.MatchString(L.CheckString(1))))
		return 1
	}))
	mod.RawSetString("find", L.NewFunction(func(L *lua.LState) int {
		re := compile(L, L.CheckString(2))
		if m := re.FindString(L.CheckString(1)); m != "" {
			L.Push(lua.LString(m))
		} else {
			L.Push(lua.LNil)
		}
		return 1
	}))
	mod.RawSetString("findall", L.NewFunction(func(L *lua.LState) int {
		re := compile(L, L.CheckString(2))
		t := L.NewTable()
		for _, m := range re.FindAllString(L.CheckString(1), -1) {
			t.Append(lua.LString(m))
		}
		L.Push(t)
		return 1
	}))
	mod.RawSetString("gsub", L.NewFunction(func(L *lua.LState) int {
		re := compile(L, L.CheckString(2))
		L.Push(lua.LString(re.ReplaceAllString(L.CheckString(1), L.CheckString(3))))
		return 1
	}))
	return mod
}

func datetimeModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	mod.RawSetString("now", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(time.Now().UTC().Format(time.RFC3339)))
		return 1
	}))
	mod.RawSetString("timestamp", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(time.Now().Unix()))
		return 1
	}))
	mod.RawSetString("format", L.NewFunction(func(L *lua.LState) int {
		ts := int64(L.CheckNumber(1))
		layout := L.OptString(2, time.RFC3339)
		L.Push(lua.LString(time.Unix(ts, 0).UTC().Format(layout)))
		return 1
	}))
	mod.RawSetString("parse", L.NewFunction(func(L *lua.LState) int {
		value := L.CheckString(1)
		layout := L.OptString(2, time.RFC3339)
		t, err := time.Parse(layout, value)
		if err != nil {
			L.RaiseError("datetime.parse: %v", err)
		}
		L.Push(lua.LNumber(t.Unix()))
		return 1
	}))
	mod.RawSetString("diff", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(int64(L.CheckNumber(1)) - int64(L.CheckNumber(2))))
		return 1
	}))
	return mod
}

func randomModule(L *lua.LState) *lua.LTable {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	mod := L.NewTable()
	mod.RawSetString("seed", L.NewFunction(func(L *lua.LState) int {
		rng = rand.New(rand.NewSource(int64(L.CheckNumber(1))))
		return 0
	}))
	mod.RawSetString("random", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(rng.Float64()))
		return 1
	}))
	mod.RawSetString("randint", L.NewFunction(func(L *lua.LState) int {
		lo := int(L.CheckNumber(1))
		hi := int(L.CheckNumber(2))
		if hi < lo {
			L.RaiseError("random.randint: empty range [%d, %d]", lo, hi)
		}
		L.Push(lua.LNumber(lo + rng.Intn(hi-lo+1)))
		return 1
	}))
	mod.RawSetString("choice", L.NewFunction(func(L *lua.LState) int {
		t := L.CheckTable(1)
		n := t.Len()
		if n == 0 {
			L.RaiseError("random.choice: empty table")
		}
		L.Push(t.RawGetInt(rng.Intn(n) + 1))
		return 1
	}))
	return mod
}

// numbersFrom collects the array part of a table as float64 values.
func numbersFrom(L *lua.LState, t *lua.LTable) []float64 {
	n := t.Len()
	out := make([]float64, 0, n)
	for i := 1; i <= n; i++ {
		num, ok := t.RawGetInt(i).(lua.LNumber)
		if !ok {
			L.RaiseError("stats: element %d is not a number", i)
		}
		out = append(out, float64(num))
	}
	if len(out) == 0 {
		L.RaiseError("stats: empty series")
	}
	return out
}

func statsModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()

	reduce := func(name string, fn func([]float64) float64) {
		mod.RawSetString(name, L.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LNumber(fn(numbersFrom(L, L.CheckTable(1)))))
			return 1
		}))
	}

	reduce("sum", func(xs []float64) float64 {
		var s float64
		for _, x := range xs {
			s += x
		}
		return s
	})
	reduce("mean", func(xs []float64) float64 {
		var s float64
		for _, x := range xs {
			s += x
		}
		return s / float64(len(xs))
	})
	reduce("min", func(xs []float64) float64 {
		m := xs[0]
		for _, x := range xs[1:] {
			if x < m {
				m = x
			}
		}
		return m
	})
	reduce("max", func(xs []float64) float64 {
		m := xs[0]
		for _, x := range xs[1:] {
			if x > m {
				m = x
			}
		}
		return m
	})
	reduce("median", func(xs []float64) float64 {
		s := append([]float64(nil), xs...)
		sort.Float64s(s)
		mid := len(s) / 2
		if len(s)%2 == 0 {
			return (s[mid-1] + s[mid]) / 2
		}
		return s[mid]
	})
	reduce("variance", variance)
	reduce("stdev", func(xs []float64) float64 {
		return math.Sqrt(variance(xs))
	})

	mod.RawSetString("percentile", L.NewFunction(func(L *lua.LState) int {
		xs := numbersFrom(L, L.CheckTable(1))
		p := float64(L.CheckNumber(2))
		if p < 0 || p > 100 {
			L.RaiseError("stats.percentile: p must be in [0, 100]")
		}
		s := append([]float64(nil), xs...)
		sort.Float64s(s)
		rank := p / 100 * float64(len(s)-1)
		lo := int(math.Floor(rank))
		hi := int(math.Ceil(rank))
		frac := rank - float64(lo)
		L.Push(lua.LNumber(s[lo] + (s[hi]-s[lo])*frac))
		return 1
	}))

	mod.RawSetString("correlation", L.NewFunction(func(L *lua.LState) int {
		xs := numbersFrom(L, L.CheckTable(1))
		ys := numbersFrom(L, L.CheckTable(2))
		if len(xs) != len(ys) {
			L.RaiseError("stats.correlation: series lengths differ (%d vs %d)", len(xs), len(ys))
		}
		L.Push(lua.LNumber(correlation(xs, ys)))
		return 1
	}))

	return mod
}

func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return ss / float64(len(xs)-1)
}

func correlation(xs, ys []float64) float64 {
	n := float64(len(xs))
	var sx, sy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
	}
	mx, my := sx/n, sy/n
	var cov, vx, vy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}
