// ABOUTME: Timer messages consumed by the session state machine.
// ABOUTME: Registry callbacks only post messages here; all decisions happen under the session lock.
package session

import "time"

// Message is something the session reacts to outside of a direct call.
type Message interface {
	message()
}

// RestTick is posted every second while resting.
type RestTick struct {
	At time.Time
}

// ElapsedTick is posted every second while the workout clock runs.
type ElapsedTick struct {
	At time.Time
}

func (RestTick) message()    {}
func (ElapsedTick) message() {}

// Dispatch applies a message. Ticks that no longer match the current state
// are ignored.
func (s *Session) Dispatch(msg Message) {
	s.mu.Lock()
	switch m := msg.(type) {
	case RestTick:
		if s.status == Resting && s.rest.remaining(m.At) <= 0 {
			s.endRestLocked()
			s.persistLocked()
			s.logger.Debug("rest finished", "session", s.id)
		}
	case ElapsedTick:
	}

	notify := s.onTick
	var v View
	if notify != nil {
		v = s.viewLocked(s.now())
	}
	s.mu.Unlock()

	if notify != nil {
		notify(v)
	}
}
