// Package notify delivers appointment lifecycle events to live sessions.
// Delivery is best-effort: a slow or gone session never blocks the
// publisher, and a briefly disconnected client is expected to re-fetch
// state on reconnect rather than rely on guaranteed delivery.
package notify

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const sessionBuffer = 64

// Session is one live connection for one user. A user may hold several
// sessions at once (multi-device); each gets its own send buffer.
type Session struct {
	ID          string
	UserID      uuid.UUID
	ConnectedAt time.Time
	Send        chan []byte

	hub *Hub
}

// Hub is the session registry and fan-out point. All operations are safe
// for concurrent use.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[*Session]struct{}
	log      zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		sessions: make(map[uuid.UUID]map[*Session]struct{}),
		log:      log.With().Str("component", "notify").Logger(),
	}
}

// Register creates a session for the user and adds it to the registry.
func (h *Hub) Register(userID uuid.UUID) *Session {
	s := &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		ConnectedAt: time.Now(),
		Send:        make(chan []byte, sessionBuffer),
		hub:         h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[userID] == nil {
		h.sessions[userID] = make(map[*Session]struct{})
	}
	h.sessions[userID][s] = struct{}{}

	h.log.Debug().Str("session_id", s.ID).Str("user_id", userID.String()).Msg("session registered")
	return s
}

// Unregister removes the session and closes its send channel. Safe to call
// more than once; repeat calls are no-ops.
func (h *Hub) Unregister(s *Session) {
	if s == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.sessions[s.UserID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}

	delete(set, s)
	if len(set) == 0 {
		delete(h.sessions, s.UserID)
	}
	close(s.Send)

	h.log.Debug().Str("session_id", s.ID).Str("user_id", s.UserID.String()).Msg("session unregistered")
}

// Publish delivers the event to every live session of the affected doctor
// and patient. Full session buffers are skipped.
func (h *Hub) Publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal event")
		return
	}

	recipients := []uuid.UUID{event.DoctorID}
	if event.PatientID != event.DoctorID {
		recipients = append(recipients, event.PatientID)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, userID := range recipients {
		for s := range h.sessions[userID] {
			select {
			case s.Send <- data:
			default:
				// Session buffer full; drop rather than block.
				h.log.Debug().Str("session_id", s.ID).Msg("session buffer full, event dropped")
			}
		}
	}
}

// SessionCount returns the number of live sessions for one user.
func (h *Hub) SessionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

// Count returns the total number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, set := range h.sessions {
		n += len(set)
	}
	return n
}
