package script

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// LuaEngine runs Lua scripts in a fresh sandboxed state per run.
type LuaEngine struct {
	securityLimits SecurityLimits
}

var _ Engine = (*LuaEngine)(nil)

// NewLuaEngine creates a new Lua engine with default security limits.
func NewLuaEngine() *LuaEngine {
	return &LuaEngine{securityLimits: GetDefaultSecurityLimits()}
}

// SetSecurityLimits configures resource and security constraints
func (e *LuaEngine) SetSecurityLimits(limits SecurityLimits) {
	e.securityLimits = limits
}

func (e *LuaEngine) Language() Language { return LanguageLua }

// Run executes prog with the same globals as the Tengo engine: args, vars,
// props, log(msg) and emit(name, content).
func (e *LuaEngine) Run(ctx context.Context, prog *Program, in *Input) (*Output, error) {
	start := time.Now()
	capt := newCapture(prog.Name)

	chunk, err := parse.Parse(strings.NewReader(prog.Source), prog.Name)
	if err != nil {
		return nil, NewScriptError(ErrorTypeCompilation, prog.Name, "failed to parse Lua script", err)
	}
	proto, err := lua.Compile(chunk, prog.Name)
	if err != nil {
		return nil, NewScriptError(ErrorTypeCompilation, prog.Name, "failed to compile Lua script", err)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	defer L.Close()
	sandbox(L)

	if e.securityLimits.MaxExecutionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.securityLimits.MaxExecutionTime)
		defer cancel()
	}
	L.SetContext(ctx)

	setLuaInput(L, in, capt)

	err = runRecovered(func() error {
		L.Push(L.NewFunctionFromProto(proto))
		return L.PCall(0, lua.MultRet, nil)
	})
	if err != nil {
		return nil, capt.failure(ctx, err)
	}

	logs, files := capt.snapshot()
	out := &Output{Logs: logs, Files: files, Elapsed: time.Since(start)}
	out.Result = luaToGo(L.GetGlobal("result"))

	slog.DebugContext(ctx, "Lua script finished", "event", "script_finished",
		"script", prog.Name, "elapsed", out.Elapsed)
	return out, nil
}

// sandbox removes libraries that reach outside the process.
func sandbox(L *lua.LState) {
	for _, name := range []string{"os", "io", "loadfile", "dofile", "require", "load", "debug", "package"} {
		L.SetGlobal(name, lua.LNil)
	}
}

func setLuaInput(L *lua.LState, in *Input, capt *capture) {
	if in == nil {
		in = &Input{}
	}

	args := L.NewTable()
	for i, a := range in.Args {
		args.RawSetInt(i+1, lua.LString(a))
	}
	L.SetGlobal("args", args)
	L.SetGlobal("vars", luaStringTable(L, in.Vars))
	L.SetGlobal("props", luaStringTable(L, in.Properties))

	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		capt.log(L.CheckString(1))
		return 0
	}))
	L.SetGlobal("emit", L.NewFunction(func(L *lua.LState) int {
		capt.emit(L.CheckString(1), L.ToString(2))
		return 0
	}))
}

func luaStringTable(L *lua.LState, m map[string]string) *lua.LTable {
	t := L.NewTable()
	for k, v := range m {
		t.RawSetString(k, lua.LString(v))
	}
	return t
}

// luaToGo converts a Lua value to a plain Go value.
func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case *lua.LTable:
		if n := val.Len(); n > 0 {
			arr := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				arr = append(arr, luaToGo(val.RawGetInt(i)))
			}
			return arr
		}
		m := map[string]any{}
		val.ForEach(func(k, vv lua.LValue) {
			m[k.String()] = luaToGo(vv)
		})
		return m
	default:
		if v == lua.LNil {
			return nil
		}
		return fmt.Sprint(v)
	}
}
