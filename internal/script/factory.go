package script

import (
	"slices"
	"strings"
	"time"
)

// Factory resolves an Engine by language name.
type Factory struct {
	engines map[Language]Engine
}

// NewFactory creates a factory with the Tengo and Lua engines, each bounded by timeout.
func NewFactory(timeout time.Duration) *Factory {
	limits := GetDefaultSecurityLimits()
	if timeout > 0 {
		limits.MaxExecutionTime = timeout
	}
	tengoEngine := NewTengoEngine()
	tengoEngine.SetSecurityLimits(limits)
	luaEngine := NewLuaEngine()
	luaEngine.SetSecurityLimits(limits)
	return NewFactoryWith(tengoEngine, luaEngine)
}

// NewFactoryWith creates a factory from the given engines.
func NewFactoryWith(engines ...Engine) *Factory {
	f := &Factory{engines: make(map[Language]Engine, len(engines))}
	for _, e := range engines {
		f.engines[e.Language()] = e
	}
	return f
}

// Engine returns the engine for language, matched case-insensitively.
func (f *Factory) Engine(language string) (Engine, error) {
	lang := Language(strings.ToLower(strings.TrimSpace(language)))
	if e, ok := f.engines[lang]; ok {
		return e, nil
	}
	return nil, NewScriptError(ErrorTypeUnsupported, "", "unsupported script language: "+language, nil)
}

// SupportedLanguages returns all supported script languages, sorted.
func (f *Factory) SupportedLanguages() []Language {
	langs := make([]Language, 0, len(f.engines))
	for l := range f.engines {
		langs = append(langs, l)
	}
	slices.Sort(langs)
	return langs
}
