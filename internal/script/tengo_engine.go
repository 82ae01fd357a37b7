package script

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
)

// TengoEngine runs Tengo scripts.
type TengoEngine struct {
	securityLimits SecurityLimits
}

var _ Engine = (*TengoEngine)(nil)

// NewTengoEngine creates a new Tengo engine with default security limits
func NewTengoEngine() *TengoEngine {
	return &TengoEngine{securityLimits: GetDefaultSecurityLimits()}
}

// SetSecurityLimits configures resource and security constraints
func (e *TengoEngine) SetSecurityLimits(limits SecurityLimits) {
	e.securityLimits = limits
}

func (e *TengoEngine) Language() Language { return LanguageTengo }

// Run compiles and executes prog. The script sees args, vars and props, and
// may call log(msg) and emit(name, content).
func (e *TengoEngine) Run(ctx context.Context, prog *Program, in *Input) (*Output, error) {
	start := time.Now()
	capt := newCapture(prog.Name)

	s := tengo.NewScript([]byte(prog.Source))
	s.SetImports(stdlib.GetModuleMap(e.securityLimits.AllowedPackages...))

	if err := e.setInputVariables(s, in, capt); err != nil {
		return nil, NewScriptError(ErrorTypeExecution, prog.Name, "failed to set input variables", err)
	}

	compiled, err := s.Compile()
	if err != nil {
		return nil, NewScriptError(ErrorTypeCompilation, prog.Name, "failed to compile Tengo script", err)
	}

	if e.securityLimits.MaxExecutionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.securityLimits.MaxExecutionTime)
		defer cancel()
	}

	if err := runRecovered(func() error { return compiled.RunContext(ctx) }); err != nil {
		return nil, capt.failure(ctx, err)
	}

	logs, files := capt.snapshot()
	out := &Output{Logs: logs, Files: files, Elapsed: time.Since(start)}
	if v := compiled.Get("result"); v != nil {
		out.Result = v.Value()
	}

	slog.DebugContext(ctx, "Tengo script finished", "event", "script_finished",
		"script", prog.Name, "elapsed", out.Elapsed)
	return out, nil
}

func (e *TengoEngine) setInputVariables(s *tengo.Script, in *Input, capt *capture) error {
	if in == nil {
		in = &Input{}
	}

	args := make([]interface{}, 0, len(in.Args))
	for _, a := range in.Args {
		args = append(args, a)
	}
	if err := s.Add("args", args); err != nil {
		return fmt.Errorf("failed to set args: %w", err)
	}
	if err := s.Add("vars", stringMap(in.Vars)); err != nil {
		return fmt.Errorf("failed to set vars: %w", err)
	}
	if err := s.Add("props", stringMap(in.Properties)); err != nil {
		return fmt.Errorf("failed to set props: %w", err)
	}

	logFunc := &tengo.UserFunction{
		Name: "log",
		Value: func(args ...tengo.Object) (tengo.Object, error) {
			if len(args) != 1 {
				return nil, tengo.ErrWrongNumArguments
			}
			msg, ok := tengo.ToString(args[0])
			if !ok {
				return nil, tengo.ErrInvalidArgumentType{Name: "message", Expected: "string", Found: args[0].TypeName()}
			}
			capt.log(msg)
			return tengo.UndefinedValue, nil
		},
	}
	if err := s.Add("log", logFunc); err != nil {
		return fmt.Errorf("failed to add log function: %w", err)
	}

	emitFunc := &tengo.UserFunction{
		Name: "emit",
		Value: func(args ...tengo.Object) (tengo.Object, error) {
			if len(args) != 2 {
				return nil, tengo.ErrWrongNumArguments
			}
			name, ok := tengo.ToString(args[0])
			if !ok {
				return nil, tengo.ErrInvalidArgumentType{Name: "name", Expected: "string", Found: args[0].TypeName()}
			}
			content, _ := tengo.ToString(args[1])
			capt.emit(name, content)
			return tengo.UndefinedValue, nil
		},
	}
	if err := s.Add("emit", emitFunc); err != nil {
		return fmt.Errorf("failed to add emit function: %w", err)
	}
	return nil
}

func stringMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// runRecovered converts a panic in fn into an error.
func runRecovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("script panic: %v", r)
		}
	}()
	return fn()
}
