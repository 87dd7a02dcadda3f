// Package result provides a two-variant container used as the return type of
// fallible operations in the outbound client and its callers.
//
// A Result built by Ok or Err holds either a success value or an error
// value, never both and never neither. The variant is fixed by the
// constructor and a Result cannot be changed after construction. Helpers that need a second type parameter
// (Map, FlatMap) are package functions because Go methods cannot introduce
// new type parameters.
//
// Usage:
//
//	r := result.Ok[int, *apperr.Error](21)
//	doubled := result.Map(r, func(v int) int { return v * 2 })
//	n := doubled.UnwrapOr(0) // 42
package result

// Result is either a success value of type T or an error of type E.
//
// The zero Result is not a valid value: it reports false from both IsOk and
// IsErr, Match calls neither callback, and Map and FlatMap return it as is.
type Result[T any, E error] struct {
	value T
	err   E
	v     variant
}

type variant uint8

const (
	unset variant = iota
	okVariant
	errVariant
)

// Ok constructs a success Result.
func Ok[T any, E error](v T) Result[T, E] {
	return Result[T, E]{value: v, v: okVariant}
}

// Err constructs an error Result.
func Err[T any, E error](e E) Result[T, E] {
	return Result[T, E]{err: e, v: errVariant}
}

// IsOk reports whether r holds a success value.
func (r Result[T, E]) IsOk() bool { return r.v == okVariant }

// IsErr reports whether r holds an error.
func (r Result[T, E]) IsErr() bool { return r.v == errVariant }

// Value returns the success value and true, or the zero value and false.
func (r Result[T, E]) Value() (T, bool) {
	if r.v != okVariant {
		var zero T
		return zero, false
	}
	return r.value, true
}

// Error returns the error and true, or the zero error and false.
func (r Result[T, E]) Error() (E, bool) {
	if r.v != errVariant {
		var zero E
		return zero, false
	}
	return r.err, true
}

// Unpack returns the pair in the (value, error) form used by ordinary Go code.
// The error is the zero value of E on success.
func (r Result[T, E]) Unpack() (T, E) {
	return r.value, r.err
}

// UnwrapOr returns the success value, or def otherwise.
func (r Result[T, E]) UnwrapOr(def T) T {
	if r.v == okVariant {
		return r.value
	}
	return def
}

// Match calls onOk or onErr depending on the variant. Nil callbacks are skipped.
func (r Result[T, E]) Match(onOk func(T), onErr func(E)) {
	switch r.v {
	case okVariant:
		if onOk != nil {
			onOk(r.value)
		}
	case errVariant:
		if onErr != nil {
			onErr(r.err)
		}
	}
}

// Map transforms the success value with fn. Errors pass through unchanged and
// fn is not called.
func Map[T, U any, E error](r Result[T, E], fn func(T) U) Result[U, E] {
	switch r.v {
	case okVariant:
		return Ok[U, E](fn(r.value))
	case errVariant:
		return Err[U](r.err)
	}
	return Result[U, E]{}
}

// FlatMap chains a fallible step. The first error short-circuits the chain.
func FlatMap[T, U any, E error](r Result[T, E], fn func(T) Result[U, E]) Result[U, E] {
	switch r.v {
	case okVariant:
		return fn(r.value)
	case errVariant:
		return Err[U](r.err)
	}
	return Result[U, E]{}
}
