package util

import (
	"log/slog"
	"sync"
)

// Subscribers is a typed list of callbacks for one channel. A panicking
// callback is recovered and logged so the others still run.
type Subscribers[T any] struct {
	mu     sync.Mutex
	nextID int
	ids    []int
	subs   map[int]func(T)
	name   string
	logger *slog.Logger
}

func NewSubscribers[T any](name string, logger *slog.Logger) *Subscribers[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscribers[T]{
		subs:   make(map[int]func(T)),
		name:   name,
		logger: logger,
	}
}

// Subscribe registers fn and returns a func that removes it. Calling the
// returned func more than once is fine.
func (s *Subscribers[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.ids = append(s.ids, id)
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; !ok {
			return
		}
		delete(s.subs, id)
		for i, v := range s.ids {
			if v == id {
				s.ids = append(s.ids[:i], s.ids[i+1:]...)
				break
			}
		}
	}
}

// Publish calls every subscriber in registration order. The list is copied
// first so callbacks may subscribe or unsubscribe.
func (s *Subscribers[T]) Publish(v T) {
	s.mu.Lock()
	fns := make([]func(T), 0, len(s.ids))
	for _, id := range s.ids {
		fns = append(fns, s.subs[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		s.call(fn, v)
	}
}

func (s *Subscribers[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

func (s *Subscribers[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = nil
	s.subs = make(map[int]func(T))
}

func (s *Subscribers[T]) call(fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("subscriber panicked", "channel", s.name, "panic", r)
		}
	}()
	fn(v)
}
