package clock

import (
	"sync"
	"time"
)

// Service is the time source of the emulator. Object generations are
// derived from it, so tests pin it with NewMockService.
type Service interface {
	Now() time.Time
}

type TimeSetterFn func(time.Time)

type mockService struct {
	mu  sync.Mutex
	now time.Time
}

func (m *mockService) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	// every call observes a distinct instant so generations stay unique
	m.now = m.now.Add(time.Microsecond)
	return m.now
}

func NewMockServiceNow() (Service, TimeSetterFn) {
	return NewMockService(time.Now())
}

func NewMockService(now time.Time) (Service, TimeSetterFn) {
	service := &mockService{
		now: now,
	}
	return service, func(t time.Time) {
		service.mu.Lock()
		defer service.mu.Unlock()

		service.now = t
	}
}

type clockService struct {
	mu   sync.Mutex
	last time.Time
}

func NewClockService() Service {
	return &clockService{}
}

// Now never returns the same instant twice, even on coarse clocks.
func (c *clockService) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if !now.After(c.last) {
		now = c.last.Add(time.Microsecond)
	}
	c.last = now
	return now
}
