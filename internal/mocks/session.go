package mocks

import (
	"sync"

	"github.com/meerabeer/nfo-agent/internal/session"
)

// StaticSession is a session.Reader whose value can be swapped by tests.
type StaticSession struct {
	mu  sync.Mutex
	ctx session.Context
}

// NewStaticSession creates a StaticSession holding ctx.
func NewStaticSession(ctx session.Context) *StaticSession {
	return &StaticSession{ctx: ctx}
}

// Current implements session.Reader.
func (s *StaticSession) Current() session.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Set replaces the session value.
func (s *StaticSession) Set(ctx session.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
}
