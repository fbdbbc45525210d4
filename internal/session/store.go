package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Listener receives lifecycle events. Listeners run synchronously in event
// order and must not call back into Store.Apply.
type Listener func(Event)

// Persister saves the last applied session so it survives restarts.
type Persister interface {
	SaveSession(ctx Context) error
}

// Store owns the current session value and publishes lifecycle events.
type Store struct {
	mu        sync.RWMutex
	current   Context
	listeners []Listener

	applyMu   sync.Mutex
	persister Persister
	now       func() time.Time
	logger    zerolog.Logger
}

// NewStore creates a Store seeded with initial. No events are emitted for the seed.
func NewStore(initial Context, persister Persister, logger zerolog.Logger) *Store {
	initial.OnShift = initial.OnShift && initial.LoggedIn
	return &Store{
		current:   initial,
		persister: persister,
		now:       time.Now,
		logger:    logger,
	}
}

// Current implements Reader.
func (s *Store) Current() Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe registers a listener for subsequent events.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Apply replaces the session with next and delivers the resulting events.
func (s *Store) Apply(next Context) []Event {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	next.OnShift = next.OnShift && next.LoggedIn

	s.mu.Lock()
	prev := s.current
	s.current = next
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	events := diff(prev, next, s.now())
	if prev != next && s.persister != nil {
		if err := s.persister.SaveSession(next); err != nil {
			s.logger.Error().Err(err).Msg("Failed to persist session")
		}
	}

	for _, ev := range events {
		s.logger.Info().
			Str("event", string(ev.Kind)).
			Str("actor_id", ev.Current.ActorID).
			Bool("on_shift", ev.Current.OnShift).
			Bool("logged_in", ev.Current.LoggedIn).
			Msg("Session lifecycle event")
		for _, l := range listeners {
			l(ev)
		}
	}
	return events
}

// RequestRelaunch emits EventRelaunchRequested when the session is on shift.
func (s *Store) RequestRelaunch() bool {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.RLock()
	cur := s.current
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()

	if !cur.Active() {
		s.logger.Debug().Msg("Ignoring sampling relaunch request outside a shift")
		return false
	}

	ev := Event{Kind: EventRelaunchRequested, Previous: cur, Current: cur, At: s.now()}
	s.logger.Info().Str("actor_id", cur.ActorID).Msg("Sampling relaunch requested")
	for _, l := range listeners {
		l(ev)
	}
	return true
}

// diff translates a session change into ordered lifecycle events. A change of
// actor while logged in is reported as the old actor leaving and the new one
// arriving.
func diff(prev, next Context, at time.Time) []Event {
	var events []Event
	emit := func(kind EventKind, to Context) {
		events = append(events, Event{Kind: kind, Previous: prev, Current: to, At: at})
		prev = to
	}

	actorChanged := prev.LoggedIn && next.LoggedIn && prev.ActorID != next.ActorID

	if prev.OnShift && (!next.OnShift || actorChanged) {
		to := prev
		to.OnShift = false
		emit(EventShiftEnd, to)
	}
	if prev.LoggedIn && (!next.LoggedIn || actorChanged) {
		to := prev
		to.LoggedIn = false
		emit(EventLogout, to)
	}
	if !prev.LoggedIn && next.LoggedIn {
		to := next
		to.OnShift = false
		emit(EventLogin, to)
	}
	if !prev.OnShift && next.OnShift {
		emit(EventShiftStart, next)
	}
	if next.LoggedIn && prev.LoggedIn && prev.assignmentDiffers(next) {
		emit(EventContextUpdate, next)
	}
	return events
}
