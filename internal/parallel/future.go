package parallel

import (
	"context"
	"sync"
)

// future is a value that becomes available once. Continuations registered
// with then run on the goroutine that resolves it.
type future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	resolved  bool
	value     T
	err       error
	callbacks []func(T, error)
}

func newFuture[T any]() *future[T] {
	return &future[T]{
		done: make(chan struct{}),
	}
}

// resolve sets the result and reports whether this call was the first one.
func (f *future[T]) resolve(value T, err error) bool {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return false
	}

	f.resolved = true
	f.value = value
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, callback := range callbacks {
		callback(value, err)
	}
	return true
}

func (f *future[T]) then(callback func(T, error)) {
	f.mu.Lock()
	if !f.resolved {
		f.callbacks = append(f.callbacks, callback)
		f.mu.Unlock()
		return
	}
	value, err := f.value, f.err
	f.mu.Unlock()

	callback(value, err)
}

func (f *future[T]) ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *future[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// whenAll resolves once every input resolved. It carries the values in input
// order and the first error in the order the inputs resolved.
func whenAll[T any](futures []*future[T]) *future[[]T] {
	result := newFuture[[]T]()
	if len(futures) == 0 {
		result.resolve(nil, nil)
		return result
	}

	var mu sync.Mutex
	values := make([]T, len(futures))
	remaining := len(futures)
	var firstErr error

	for i, f := range futures {
		f.then(func(value T, err error) {
			mu.Lock()
			values[i] = value
			if err != nil && firstErr == nil {
				firstErr = err
			}
			remaining--
			last := remaining == 0
			mu.Unlock()

			if last {
				result.resolve(values, firstErr)
			}
		})
	}
	return result
}
