package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
)

func buildTestEnv(t *testing.T, cfg EnvConfig) *Environment {
	t.Helper()
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	cfg.CaptureOutput = true
	env, err := NewEnvironment(cfg)
	require.NoError(t, err)
	t.Cleanup(env.Close)
	return env
}

func TestEnvironment_StrippedBuiltins(t *testing.T) {
	t.Parallel()
	env := buildTestEnv(t, EnvConfig{Identity: "tester"})

	for _, name := range strippedBuiltins {
		assert.Equal(t, lua.LNil, env.L.GetGlobal(name), "builtin %s should be stripped", name)
	}
	// the safe base stays
	assert.NotEqual(t, lua.LNil, env.L.GetGlobal("tostring"))
	assert.NotEqual(t, lua.LNil, env.L.GetGlobal("pairs"))
}

func TestEnvironment_PrintCapture(t *testing.T) {
	t.Parallel()
	env := buildTestEnv(t, EnvConfig{Identity: "tester"})

	require.NoError(t, env.L.DoString(`print("hello", 42)`))
	assert.Equal(t, "hello\t42\n", env.Output())
}

func TestEnvironment_OutputCap(t *testing.T) {
	t.Parallel()
	env := buildTestEnv(t, EnvConfig{Identity: "tester", MaxOutputBytes: 16})

	require.NoError(t, env.L.DoString(`for i = 1, 100 do print("xxxxxxxxxx") end`))
	assert.True(t, env.Truncated())
	assert.LessOrEqual(t, len(env.Output()), 16)
}

func TestEnvironment_BuiltinModules(t *testing.T) {
	t.Parallel()
	env := buildTestEnv(t, EnvConfig{Identity: "tester"})

	require.NoError(t, env.L.DoString(`
		encoded = json.encode({a = 1})
		decoded = json.decode('{"b": 2}')
		matched = re.match("hello123", "[0-9]+")
		avg = stats.mean({2, 4, 6})
	`))
	assert.Equal(t, `{"a":1}`, env.L.GetGlobal("encoded").String())
	assert.Equal(t, lua.LTrue, env.L.GetGlobal("matched"))
	assert.Equal(t, lua.LNumber(4), env.L.GetGlobal("avg"))
}

func TestEnvironment_DegradedProxyRaises(t *testing.T) {
	t.Parallel()
	env := buildTestEnv(t, EnvConfig{Identity: "tester"})

	err := env.L.DoString(`plot.bar({1, 2, 3})`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), unavailableMarker)
	assert.Contains(t, err.Error(), "plot")
}

func TestEnvironment_RegisteredProviderReplacesProxy(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	registry.Register("plot", func(L *lua.LState) *lua.LTable {
		mod := L.NewTable()
		mod.RawSetString("bar", L.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LString("rendered"))
			return 1
		}))
		return mod
	})
	env := buildTestEnv(t, EnvConfig{Identity: "tester", Registry: registry})

	require.NoError(t, env.L.DoString(`result = plot.bar({1, 2})`))
	assert.Equal(t, "rendered", env.L.GetGlobal("result").String())
	assert.True(t, env.Availability().Has("plot"))
}

func TestEnvironment_CapabilitiesHelper(t *testing.T) {
	t.Parallel()
	env := buildTestEnv(t, EnvConfig{Identity: "tester"})

	require.NoError(t, env.L.DoString(`has_json = capabilities().json; has_plot = capabilities().plot`))
	assert.Equal(t, lua.LTrue, env.L.GetGlobal("has_json"))
	assert.Equal(t, lua.LFalse, env.L.GetGlobal("has_plot"))
}

func TestEnvironment_IdentityAndData(t *testing.T) {
	t.Parallel()
	env := buildTestEnv(t, EnvConfig{
		Identity: "analyst@example.com",
		Data:     []map[string]any{{"name": "a"}, {"name": "b"}},
	})

	require.NoError(t, env.L.DoString(`who = current_user; rows = #data`))
	assert.Equal(t, "analyst@example.com", env.L.GetGlobal("who").String())
	assert.Equal(t, lua.LNumber(2), env.L.GetGlobal("rows"))
}

func TestEnvironment_BaselineSnapshot(t *testing.T) {
	t.Parallel()
	env := buildTestEnv(t, EnvConfig{Identity: "tester"})

	assert.True(t, env.IsBaseline("print"))
	assert.True(t, env.IsBaseline("json"))
	assert.True(t, env.IsBaseline("current_user"))
	assert.False(t, env.IsBaseline("my_variable"))
}
