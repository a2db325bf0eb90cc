// Package host implements the Component Model host registry: required
// builtin declarations, (module, name)-keyed function handlers, fallback
// handlers for critical builtins, an ordered interceptor chain, and a
// fluent Builder enforcing strict-mode validation.
//
// Grounded on original_source/wrt-host/src/builder.rs (HostBuilder,
// require_builtin/with_host_function/with_strict_validation/validate/
// build_builtin_host) structure-for-structure.
package host

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pulseengine/wrt-sub014/wrterr"
)

// observerFanoutLimit bounds how many Observer.Observe calls run
// concurrently for one host call: unbounded fan-out across many link
// interceptors would let one call's diagnostics starve the next call's
// dispatch of goroutine scheduling.
const observerFanoutLimit = 4

// BuiltinType enumerates the Component Model resource builtins named in
// spec.md §4.9.
type BuiltinType uint8

const (
	ResourceCreate BuiltinType = iota
	ResourceDrop
	ResourceRep
	ResourceGet
)

func (b BuiltinType) Name() string {
	switch b {
	case ResourceCreate:
		return "resource.create"
	case ResourceDrop:
		return "resource.drop"
	case ResourceRep:
		return "resource.rep"
	case ResourceGet:
		return "resource.get"
	default:
		return "unknown"
	}
}

// Value is a single Wasm-level call argument or result.
type Value struct {
	I32 int32
	I64 int64
	F32 float32
	F64 float64
	Ref any
}

// Handler implements one host function call.
type Handler func(args []Value) ([]Value, error)

// key identifies a handler by its (module, name) import pair.
type key struct{ module, name string }

// InterceptVerdict lets an Interceptor short-circuit a call.
type InterceptVerdict uint8

const (
	Proceed InterceptVerdict = iota
	Bypass
)

// Interceptor observes and may rewrite a host call's arguments before
// invocation and its results after, or bypass the underlying handler
// entirely by returning Bypass from Before (its Results become the call's
// result).
type Interceptor interface {
	Before(module, name string, args []Value) (InterceptVerdict, []Value, []Value, error)
	After(module, name string, results []Value, err error) ([]Value, error)
}

// Observer is notified, after the fact, of every completed host call —
// for link-level diagnostics (call-rate accounting, tracing) that must
// never affect a call's arguments, result, or error the way an
// Interceptor can.
type Observer interface {
	Observe(module, name string, args, results []Value, err error)
}

// Registry holds host-function handlers, required builtins, fallback
// handlers, an ordered interceptor chain, and a set of observers.
type Registry struct {
	mu           sync.RWMutex
	handlers     map[key]Handler
	fallbacks    map[BuiltinType]Handler
	required     map[BuiltinType]bool
	interceptors []Interceptor
	observers    []Observer
}

func newRegistry() *Registry {
	return &Registry{
		handlers:  make(map[key]Handler),
		fallbacks: make(map[BuiltinType]Handler),
		required:  make(map[BuiltinType]bool),
	}
}

// HasHostFunction reports whether module.name has a registered handler.
func (r *Registry) HasHostFunction(module, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[key{module, name}]
	return ok
}

// builtinModule is the reserved import module name builtin handlers are
// registered under, matching the source's "wasi_builtin" convention.
const builtinModule = "wasi_builtin"

// IsBuiltinImplemented reports whether a builtin has either a direct
// handler or a fallback.
func (r *Registry) IsBuiltinImplemented(b BuiltinType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.handlers[key{builtinModule, b.Name()}]; ok {
		return true
	}
	_, ok := r.fallbacks[b]
	return ok
}

// Call invokes module.name, running the interceptor chain around it. A
// missing handler fails with CodeNotImplemented; registered fallback
// handlers are used only by CallBuiltin.
func (r *Registry) Call(module, name string, args []Value) ([]Value, error) {
	r.mu.RLock()
	h, ok := r.handlers[key{module, name}]
	interceptors := r.interceptors
	observers := r.observers
	r.mu.RUnlock()

	if !ok {
		return nil, wrterr.New(wrterr.CategoryRuntime, wrterr.CodeNotImplemented, "no host function registered for "+module+"."+name)
	}

	callArgs := args
	for _, ic := range interceptors {
		verdict, rewritten, bypassResult, err := ic.Before(module, name, callArgs)
		if err != nil {
			return nil, err
		}
		callArgs = rewritten
		if verdict == Bypass {
			results, err := ic.After(module, name, bypassResult, nil)
			r.notifyObservers(observers, module, name, callArgs, results, err)
			return results, err
		}
	}

	results, err := h(callArgs)

	for i := len(interceptors) - 1; i >= 0; i-- {
		results, err = interceptors[i].After(module, name, results, err)
	}
	r.notifyObservers(observers, module, name, callArgs, results, err)
	return results, err
}

// notifyObservers runs every registered Observer's Observe call for one
// completed host call, bounded to observerFanoutLimit concurrent
// goroutines via errgroup — observers never affect the call's outcome,
// so their errors (Observe returns none) are not possible and Wait only
// serves to bound fan-out, not to propagate failure.
func (r *Registry) notifyObservers(observers []Observer, module, name string, args, results []Value, err error) {
	if len(observers) == 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(observerFanoutLimit)
	for _, o := range observers {
		o := o
		g.Go(func() error {
			o.Observe(module, name, args, results, err)
			return nil
		})
	}
	_ = g.Wait()
}

// CallBuiltin invokes a builtin by type, falling back to its registered
// fallback handler if no direct handler is registered.
func (r *Registry) CallBuiltin(b BuiltinType, args []Value) ([]Value, error) {
	r.mu.RLock()
	h, ok := r.handlers[key{builtinModule, b.Name()}]
	fallback, hasFallback := r.fallbacks[b]
	r.mu.RUnlock()

	if ok {
		return r.Call(builtinModule, b.Name(), args)
	}
	if hasFallback {
		return fallback(args)
	}
	return nil, wrterr.New(wrterr.CategoryRuntime, wrterr.CodeNotImplemented, "builtin "+b.Name()+" has no handler or fallback")
}
