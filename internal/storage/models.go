package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Sentinel errors for the uniqueness constraints enforced by the schema.
// These are mapped from SQLite constraint violations so that callers can
// use errors.Is instead of parsing driver error strings.
var (
	// ErrDuplicateLink is returned when a persona already has a link with
	// the same URL.
	ErrDuplicateLink = errors.New("link already exists for this persona")

	// ErrActiveSessionExists is returned when a second active session is
	// started for the same (persona, learner) pair.
	ErrActiveSessionExists = errors.New("an active session already exists for this persona and learner")

	// ErrDuplicateReview is returned when a session already has a review.
	ErrDuplicateReview = errors.New("session already has a review")

	// ErrSessionNotActive is returned when an operation requires an active
	// session but the session has already reached a terminal status.
	ErrSessionNotActive = errors.New("session is not active")
)

// MaterialStatus is the lifecycle status of an uploaded knowledge material.
type MaterialStatus string

const (
	MaterialProcessing MaterialStatus = "processing"
	MaterialReady      MaterialStatus = "ready"
	MaterialFailed     MaterialStatus = "failed"
)

// Material is one uploaded content item owned by a persona. ExtractedText
// and Embedding are empty until the ingest pipeline has processed the
// upload; Embedding is non-nil if and only if Status is MaterialReady.
type Material struct {
	ID            string
	PersonaID     string
	SourceName    string
	ExtractedText string
	Embedding     []float32
	Status        MaterialStatus
	ErrorMessage  string
	CreatedAt     time.Time
}

// Link is a reference URL owned by a persona. (PersonaID, URL) is unique.
type Link struct {
	ID          string
	PersonaID   string
	URL         string
	Title       string
	Description string
	CreatedAt   time.Time
}

// SessionStatus is the lifecycle status of a tutoring session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionEscalated SessionStatus = "escalated"
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal reports whether s is a terminal status.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionEscalated || s == SessionCancelled
}

// Session is one conversation instance between a learner and a persona.
// EndedAt, DurationMinutes and CostMinor are nil while the session is
// active and are set together when the session reaches a terminal status.
type Session struct {
	ID              string
	PersonaID       string
	LearnerID       string
	Status          SessionStatus
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationMinutes *int
	CostMinor       *int
	Escalated       bool
}

// Turn is a single conversation turn. Seq is assigned by the store and is
// strictly increasing within a session; turns are never reordered.
type Turn struct {
	SessionID string
	Seq       int
	Role      string // "learner" or "persona"
	Content   string
	CreatedAt time.Time
}

// Review is a learner's rating of one finished session. At most one review
// exists per session.
type Review struct {
	ID         string
	SessionID  string
	ReviewerID string
	Rating     int
	Comment    string
	CreatedAt  time.Time
}

// Job is a queued background task (material extraction).
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
