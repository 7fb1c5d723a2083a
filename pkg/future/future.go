// Package future provides single-assignment asynchronous results and a
// serial executor for running their continuations.
//
// A Future is completed exactly once, either with a value or with an error.
// Continuations registered with Then are never run on the goroutine that
// completed the future; they are posted to an Executor (usually a Loop) so
// that state owned by the executor is only touched from one goroutine.
package future

import (
	"context"
	"fmt"
	"sync"
)

// Future is the read side of an asynchronous result.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Promise is the write side of a Future. Only the first completion counts.
type Promise[T any] struct {
	f    *Future[T]
	once sync.Once
}

// Executor runs posted functions, in order, on a goroutine it owns.
type Executor interface {
	Post(fn func())
}

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// New returns an incomplete future and the promise that completes it.
func New[T any]() (*Future[T], *Promise[T]) {
	f := &Future[T]{done: make(chan struct{})}
	return f, &Promise[T]{f: f}
}

// Complete sets the result. It reports false if the future was already completed.
func (p *Promise[T]) Complete(val T, err error) bool {
	completed := false
	p.once.Do(func() {
		p.f.val = val
		p.f.err = err
		close(p.f.done)
		completed = true
	})
	return completed
}

// Resolve completes the future with a value.
func (p *Promise[T]) Resolve(val T) bool {
	return p.Complete(val, nil)
}

// Reject completes the future with an error.
func (p *Promise[T]) Reject(err error) bool {
	var zero T
	return p.Complete(zero, err)
}

// Future returns the read side of the promise.
func (p *Promise[T]) Future() *Future[T] {
	return p.f
}

// Ready returns an already completed future holding val.
func Ready[T any](val T) *Future[T] {
	f, p := New[T]()
	p.Resolve(val)
	return f
}

// Failed returns an already completed future holding err.
func Failed[T any](err error) *Future[T] {
	f, p := New[T]()
	p.Reject(err)
	return f
}

// Go runs fn on a new goroutine and returns a future for its result.
// A panic inside fn completes the future with a *PanicError.
func Go[T any](fn func() (T, error)) *Future[T] {
	f, p := New[T]()
	go func() {
		p.Complete(Call(fn))
	}()
	return f
}

// Call invokes fn, converting a panic into a *PanicError.
func Call[T any](fn func() (T, error)) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			val, err = zero, &PanicError{Value: r}
		}
	}()
	return fn()
}

// Done is closed once the future is complete.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the future has completed.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get blocks until the future completes and returns its result.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.val, f.err
}

// Wait blocks until the future completes or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then posts cb to exec once f completes.
func Then[T any](f *Future[T], exec Executor, cb func(T, error)) {
	go func() {
		<-f.done
		exec.Post(func() {
			cb(f.val, f.err)
		})
	}()
}

// Map returns a future holding fn applied to the value of f. Errors from f
// pass through without calling fn. fn runs on a background goroutine.
func Map[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	out, p := New[U]()
	go func() {
		val, err := f.Get()
		if err != nil {
			p.Reject(err)
			return
		}
		p.Complete(Call(func() (U, error) { return fn(val) }))
	}()
	return out
}
