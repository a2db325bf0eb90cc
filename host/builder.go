package host

import "github.com/pulseengine/wrt-sub014/wrterr"

// Builder fluently configures a Registry, mirroring HostBuilder's
// with_host_function/require_builtin/with_strict_validation/build chain.
type Builder struct {
	registry         *Registry
	requiredBuiltins map[BuiltinType]bool
	strictValidation bool
	componentName    string
	hostID           string
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		registry:         newRegistry(),
		requiredBuiltins: make(map[BuiltinType]bool),
	}
}

// RequireBuiltin marks b as required; Build fails in strict mode unless
// b ends up implemented (a direct handler or a fallback).
func (b *Builder) RequireBuiltin(builtin BuiltinType) *Builder {
	b.requiredBuiltins[builtin] = true
	return b
}

// WithHostFunction registers handler for the (module, name) import.
func (b *Builder) WithHostFunction(module, name string, handler Handler) *Builder {
	b.registry.mu.Lock()
	b.registry.handlers[key{module, name}] = handler
	b.registry.mu.Unlock()
	return b
}

// WithBuiltinHandler registers handler for builtin under the reserved
// builtin import module.
func (b *Builder) WithBuiltinHandler(builtin BuiltinType, handler Handler) *Builder {
	return b.WithHostFunction(builtinModule, builtin.Name(), handler)
}

// WithFallbackHandler registers a fallback invoked only when builtin has
// no direct handler at call time.
func (b *Builder) WithFallbackHandler(builtin BuiltinType, handler Handler) *Builder {
	b.registry.mu.Lock()
	b.registry.fallbacks[builtin] = handler
	b.registry.mu.Unlock()
	return b
}

// BuiltinImplemented marks builtin as satisfied without registering a
// handler through this builder (e.g. wired by another subsystem).
func (b *Builder) BuiltinImplemented(builtin BuiltinType) *Builder {
	delete(b.requiredBuiltins, builtin)
	return b
}

// WithInterceptor appends an interceptor to the call chain, in
// registration order.
func (b *Builder) WithInterceptor(ic Interceptor) *Builder {
	b.registry.interceptors = append(b.registry.interceptors, ic)
	return b
}

// WithObserver appends an observer notified, concurrently and after the
// fact, of every completed host call.
func (b *Builder) WithObserver(o Observer) *Builder {
	b.registry.observers = append(b.registry.observers, o)
	return b
}

// WithStrictValidation toggles whether Build fails on unimplemented
// required builtins.
func (b *Builder) WithStrictValidation(strict bool) *Builder {
	b.strictValidation = strict
	return b
}

// WithComponentName/WithHostID attach identifying metadata, carried for
// diagnostics only.
func (b *Builder) WithComponentName(name string) *Builder { b.componentName = name; return b }
func (b *Builder) WithHostID(id string) *Builder           { b.hostID = id; return b }

// Validate checks every required builtin is implemented, when strict
// validation is enabled.
func (b *Builder) Validate() error {
	if !b.strictValidation {
		return nil
	}
	for builtin := range b.requiredBuiltins {
		if !b.registry.IsBuiltinImplemented(builtin) {
			return wrterr.New(wrterr.CategorySafety, wrterr.CodeValidationError, "required builtin not implemented: "+builtin.Name())
		}
	}
	return nil
}

// Build validates and returns the configured Registry.
func (b *Builder) Build() (*Registry, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	for builtin := range b.requiredBuiltins {
		b.registry.required[builtin] = true
	}
	return b.registry, nil
}

// ComponentName/HostID expose the metadata set via WithComponentName/
// WithHostID.
func (b *Builder) ComponentName() string { return b.componentName }
func (b *Builder) HostID() string        { return b.hostID }
