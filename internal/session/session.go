// Package session provides the request-scoped unit of work threaded through
// every sync operation.
//
// A Session carries:
//   - the acting user and the current privilege elevation
//   - the per-consumer ProcessedSet
//   - the buffer of change events produced by writes in this session
//
// One Session is created per delivered event batch or per API/CLI request,
// passed explicitly to every call, and ended once its events are drained.
// Sessions are not shared between goroutines.
package session

import (
	"slices"

	"github.com/roach88/dirsync/internal/model"
)

// SystemActor is the actor used for engine-initiated sessions.
const SystemActor = "system"

// Actor identifies who performs the session's operations.
type Actor struct {
	ID    string `json:"id"`
	Admin bool   `json:"admin,omitempty"`
}

// Session is one unit of work.
type Session struct {
	ID    string
	Actor Actor

	elevated  bool
	processed *ProcessedSet
	events    []model.Event
	ended     bool
}

// New creates a session for actor.
func New(id string, actor Actor) *Session {
	return &Session{
		ID:        id,
		Actor:     actor,
		processed: NewProcessedSet(),
	}
}

// System creates a session for engine-initiated work.
func System(id string) *Session {
	return New(id, Actor{ID: SystemActor})
}

// Elevate grants full privileges until the returned restore func is called.
// The restore func puts back whatever state was in effect before, so nested
// elevations unwind correctly. Always defer it:
//
//	restore := sess.Elevate()
//	defer restore()
func (s *Session) Elevate() (restore func()) {
	prev := s.elevated
	s.elevated = true
	return func() { s.elevated = prev }
}

// Elevated reports whether privileges are currently elevated.
func (s *Session) Elevated() bool {
	return s.elevated
}

// CanWrite reports whether the session may modify it.
func (s *Session) CanWrite(it *model.Item) bool {
	return s.elevated || s.Actor.Admin || (it.Owner != "" && it.Owner == s.Actor.ID)
}

// Claim marks itemID as processed by consumer in this session.
// Returns false if it was already claimed.
func (s *Session) Claim(consumer, itemID string) bool {
	return s.processed.Claim(consumer, itemID)
}

// Processed reports whether consumer already handled itemID.
func (s *Session) Processed(consumer, itemID string) bool {
	return s.processed.Contains(consumer, itemID)
}

// Emit buffers a change event for dispatch at the end of the operation.
func (s *Session) Emit(ev model.Event) {
	s.events = append(s.events, ev)
}

// Pending returns the number of buffered events.
func (s *Session) Pending() int {
	return len(s.events)
}

// Drain returns and clears the buffered events.
func (s *Session) Drain() []model.Event {
	out := slices.Clone(s.events)
	s.events = s.events[:0]
	return out
}

// End clears the processed sets. It is the end-of-batch hook: once a batch
// of events is fully consumed, items may be processed again by a later batch.
func (s *Session) End() {
	s.processed.Clear()
	s.ended = true
}

// Ended reports whether End was called.
func (s *Session) Ended() bool {
	return s.ended
}
