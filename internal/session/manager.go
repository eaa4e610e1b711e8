// Package session owns the state machine of a tutoring session: creation,
// transcript appends, the hard time limit, early end, escalation to a
// human, and cost computation. Sessions are billed a flat fee regardless
// of how early they end.
package session

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/mentora-ai/mentora/internal/storage"
)

// Turn roles.
const (
	RoleLearner = "learner"
	RolePersona = "persona"
)

// EndReason describes why a session ended.
type EndReason string

const (
	ReasonClientEnd EndReason = "client_end"
	ReasonTimeout   EndReason = "timeout"
	ReasonCancel    EndReason = "cancel"
)

// SessionLimit is the hard wall-clock limit on a session.
const SessionLimit = 60 * time.Minute

// Store is the persistence surface the manager needs. *storage.Store
// satisfies it.
type Store interface {
	CreateSession(storage.Session) error
	GetSession(id string) (storage.Session, error)
	FinalizeSession(id string, status storage.SessionStatus, endedAt time.Time, durationMinutes, costMinor int, escalated bool) (bool, error)
	AppendTurn(sessionID, role, content string, at time.Time) (storage.Turn, error)
	ListTurns(sessionID string) ([]storage.Turn, error)
}

// Manager drives session lifecycle transitions. It is passive: timeout
// detection only happens when CheckTimeout is called, either on turn
// append or by an external poller.
type Manager struct {
	store        Store
	flatFeeMinor int
	now          func() time.Time
	logger       *slog.Logger
}

// NewManager creates a Manager charging flatFeeMinor (in the platform's
// minor currency unit) per completed or escalated session.
func NewManager(store Store, flatFeeMinor int) *Manager {
	return &Manager{
		store:        store,
		flatFeeMinor: flatFeeMinor,
		now:          time.Now,
		logger:       slog.Default(),
	}
}

// Start creates a new active session for the (persona, learner) pair.
// Returns storage.ErrActiveSessionExists if the pair already has one; the
// store enforces this atomically.
func (m *Manager) Start(personaID, learnerID string) (storage.Session, error) {
	if personaID == "" || learnerID == "" {
		return storage.Session{}, fmt.Errorf("persona and learner ids are required")
	}

	sess := storage.Session{
		ID:        uuid.New().String(),
		PersonaID: personaID,
		LearnerID: learnerID,
		Status:    storage.SessionActive,
		StartedAt: m.now().UTC(),
	}
	if err := m.store.CreateSession(sess); err != nil {
		return storage.Session{}, err
	}

	m.logger.Info("session started", "session_id", sess.ID, "persona_id", personaID, "learner_id", learnerID)
	return sess, nil
}

// AppendTurn appends one timestamped turn to the transcript. Returns
// storage.ErrSessionNotActive once the session has reached a terminal
// status.
func (m *Manager) AppendTurn(sessionID, role, content string) (storage.Turn, error) {
	if role != RoleLearner && role != RolePersona {
		return storage.Turn{}, fmt.Errorf("invalid turn role %q", role)
	}
	if content == "" {
		return storage.Turn{}, fmt.Errorf("turn content is required")
	}
	return m.store.AppendTurn(sessionID, role, content, m.now())
}

// Transcript returns the session's ordered turn sequence.
func (m *Manager) Transcript(sessionID string) ([]storage.Turn, error) {
	return m.store.ListTurns(sessionID)
}

// Get returns the session by ID.
func (m *Manager) Get(sessionID string) (storage.Session, error) {
	return m.store.GetSession(sessionID)
}

// CheckTimeout ends the session as a timeout if it is still active and
// its wall-clock limit has elapsed, pinning the recorded duration to the
// limit. Safe to call repeatedly and on terminal sessions.
func (m *Manager) CheckTimeout(sessionID string) (storage.Session, error) {
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		return storage.Session{}, err
	}
	if sess.Status != storage.SessionActive {
		return sess, nil
	}
	if m.now().Sub(sess.StartedAt) < SessionLimit {
		return sess, nil
	}

	limitMinutes := int(SessionLimit / time.Minute)
	return m.finalize(sessionID, storage.SessionCompleted, limitMinutes, m.flatFeeMinor, false, "timeout")
}

// End transitions an active session to its terminal status. Reasons
// client_end and timeout complete the session at the flat fee; cancel
// cancels it at zero cost. Calling End on an already-terminal session is
// an idempotent no-op returning the existing final state.
func (m *Manager) End(sessionID string, reason EndReason) (storage.Session, error) {
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		return storage.Session{}, err
	}
	if sess.Status != storage.SessionActive {
		return sess, nil
	}

	var status storage.SessionStatus
	cost := m.flatFeeMinor
	switch reason {
	case ReasonClientEnd, ReasonTimeout:
		status = storage.SessionCompleted
	case ReasonCancel:
		status = storage.SessionCancelled
		cost = 0 // no value delivered
	default:
		return storage.Session{}, fmt.Errorf("invalid end reason %q", reason)
	}

	duration := m.elapsedMinutes(sess)
	if reason == ReasonTimeout && duration > int(SessionLimit/time.Minute) {
		duration = int(SessionLimit / time.Minute)
	}
	return m.finalize(sessionID, status, duration, cost, false, string(reason))
}

// Escalate hands an active session to a human: status escalated, flat fee
// charged, transcript preserved untouched. Idempotent on terminal
// sessions like End.
func (m *Manager) Escalate(sessionID string) (storage.Session, error) {
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		return storage.Session{}, err
	}
	if sess.Status != storage.SessionActive {
		return sess, nil
	}

	return m.finalize(sessionID, storage.SessionEscalated, m.elapsedMinutes(sess), m.flatFeeMinor, true, "escalate")
}

func (m *Manager) elapsedMinutes(sess storage.Session) int {
	return int(math.Round(m.now().Sub(sess.StartedAt).Minutes()))
}

// finalize applies the terminal transition and re-reads the session. A
// lost race (another caller finalized first) is not an error: the
// existing final state is returned.
func (m *Manager) finalize(sessionID string, status storage.SessionStatus, durationMinutes, costMinor int, escalated bool, reason string) (storage.Session, error) {
	transitioned, err := m.store.FinalizeSession(sessionID, status, m.now(), durationMinutes, costMinor, escalated)
	if err != nil {
		return storage.Session{}, fmt.Errorf("finalizing session: %w", err)
	}
	if transitioned {
		m.logger.Info("session ended",
			"session_id", sessionID,
			"status", string(status),
			"reason", reason,
			"duration_minutes", durationMinutes,
			"cost_minor", costMinor,
		)
	}
	return m.store.GetSession(sessionID)
}
