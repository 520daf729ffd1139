package relay

import (
	"context"
	"sync"

	"github.com/philsphicas/iotrelay/internal/cloud"
)

// mockSession records submissions and lets tests settle them on demand.
type mockSession struct {
	mu        sync.Mutex
	handler   cloud.ReceiveHandler
	submitted []*cloud.Message
	dones     []cloud.CompletionFunc
	submitErr error
	closed    bool
}

func (s *mockSession) Submit(_ context.Context, msg *cloud.Message, done cloud.CompletionFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return s.submitErr
	}
	s.submitted = append(s.submitted, msg)
	s.dones = append(s.dones, done)
	return nil
}

func (s *mockSession) SetReceiveHandler(h cloud.ReceiveHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
	return nil
}

func (s *mockSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *mockSession) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submitted)
}

func (s *mockSession) message(i int) *cloud.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted[i]
}

// settle invokes the i-th completion callback with err.
func (s *mockSession) settle(i int, err error) {
	s.mu.Lock()
	done := s.dones[i]
	s.mu.Unlock()
	done(err)
}
