package eventually

import (
	"context"
	"reflect"
)

type outcomeState uint8

const (
	statePending outcomeState = iota
	stateReady
	stateFailed
)

// Outcome is the result of one probe invocation: pending (nothing usable
// yet), ready with a value, or failed with an error.
//
// The zero Outcome is pending.
type Outcome[T any] struct {
	value T
	err   error
	state outcomeState
}

// Ready returns a present Outcome holding v.
func Ready[T any](v T) Outcome[T] {
	return Outcome[T]{value: v, state: stateReady}
}

// Pending returns an Outcome meaning "not yet available".
func Pending[T any]() Outcome[T] {
	return Outcome[T]{}
}

// Failed returns an Outcome carrying err. A nil err yields a pending Outcome.
func Failed[T any](err error) Outcome[T] {
	if err == nil {
		return Outcome[T]{}
	}
	return Outcome[T]{err: err, state: stateFailed}
}

// Optional converts a comma-ok pair: ok yields Ready(v), otherwise Pending.
func Optional[T any](v T, ok bool) Outcome[T] {
	if !ok {
		return Pending[T]()
	}
	return Ready(v)
}

// NonNil returns Ready(p) for a non-nil pointer and Pending otherwise.
func NonNil[T any](p *T) Outcome[*T] {
	if p == nil {
		return Pending[*T]()
	}
	return Ready(p)
}

// Present reports whether the Outcome holds a value.
func (o Outcome[T]) Present() bool {
	return o.state == stateReady
}

// Get returns the value and whether it is present.
func (o Outcome[T]) Get() (T, bool) {
	return o.value, o.state == stateReady
}

// Err returns the failure, or nil unless the Outcome failed.
func (o Outcome[T]) Err() error {
	return o.err
}

func (o Outcome[T]) String() string {
	switch o.state {
	case stateReady:
		return "ready"
	case stateFailed:
		return "failed: " + o.err.Error()
	default:
		return "pending"
	}
}

// Probe observes external state once. It is invoked repeatedly by
// [KeepTrying] and must be safe to call again after any result.
//
// The context passed to a probe carries the poll depth: pass it on to any
// nested [KeepTrying] call so the nested poll collapses into a single attempt.
type Probe[T any] func(ctx context.Context) Outcome[T]

// Try adapts a conventional function into a [Probe]. A non-nil error fails
// the attempt; a nil pointer, map, slice, channel, func or interface is
// treated as not yet present; anything else is ready.
func Try[T any](fn func(ctx context.Context) (T, error)) Probe[T] {
	return func(ctx context.Context) Outcome[T] {
		v, err := fn(ctx)
		if err != nil {
			return Failed[T](err)
		}
		if isNil(v) {
			return Pending[T]()
		}
		return Ready(v)
	}
}

// Check adapts a condition into a [Probe]: true is ready, false is pending.
func Check(fn func(ctx context.Context) (bool, error)) Probe[bool] {
	return func(ctx context.Context) Outcome[bool] {
		ok, err := fn(ctx)
		if err != nil {
			return Failed[bool](err)
		}
		return Optional(true, ok)
	}
}

// isNil reports whether v is nil or a nil value of a nilable kind.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
