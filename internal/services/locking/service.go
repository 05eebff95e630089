package locking

import (
	"context"
	"sync"
)

// Service serializes writers of the same object so generation preconditions
// are checked and applied atomically.
type Service interface {
	// Lock blocks until key is free or ctx is done. The returned function
	// releases the lock.
	Lock(ctx context.Context, key string) (func(), error)
}

type entry struct {
	ch   chan struct{}
	refs int
}

type service struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewService() Service {
	return &service{
		entries: make(map[string]*entry),
	}
}

func (s *service) acquire(key string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		s.entries[key] = e
	}
	e.refs++
	return e
}

func (s *service) release(key string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(s.entries, key)
	}
}

func (s *service) Lock(ctx context.Context, key string) (func(), error) {
	e := s.acquire(key)

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		s.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			s.release(key, e)
		})
	}, nil
}
