// Package review enforces the constraints under which a learner may rate
// a finished tutoring session: a rating from 1 to 5, one review per session, and
// only after the session reached a terminal status.
package review

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mentora-ai/mentora/internal/storage"
)

var (
	// ErrInvalidRating is returned for ratings outside [1, 5].
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrSessionNotFinished is returned when the session is still active.
	// Reviewing a conversation that is still in progress is not
	// meaningful.
	ErrSessionNotFinished = errors.New("session has not finished")
)

// Store is the persistence surface the validator needs. *storage.Store
// satisfies it.
type Store interface {
	GetSession(id string) (storage.Session, error)
	CreateReview(storage.Review) error
}

// Validator accepts or rejects review submissions.
type Validator struct {
	store Store
	now   func() time.Time
}

// NewValidator creates a Validator backed by the given store.
func NewValidator(store Store) *Validator {
	return &Validator{store: store, now: time.Now}
}

// SubmitReview records a learner's rating of a finished session. Comment
// may be empty: a rating alone is a valid review. Returns
// storage.ErrDuplicateReview if the session already has one; the store's
// uniqueness constraint makes the check atomic with the insert.
func (v *Validator) SubmitReview(sessionID, reviewerID string, rating int, comment string) (storage.Review, error) {
	if rating < 1 || rating > 5 {
		return storage.Review{}, fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}

	sess, err := v.store.GetSession(sessionID)
	if err != nil {
		return storage.Review{}, fmt.Errorf("loading session: %w", err)
	}
	if !sess.Status.Terminal() {
		return storage.Review{}, ErrSessionNotFinished
	}

	r := storage.Review{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		ReviewerID: reviewerID,
		Rating:     rating,
		Comment:    comment,
		CreatedAt:  v.now().UTC(),
	}
	if err := v.store.CreateReview(r); err != nil {
		return storage.Review{}, err
	}
	return r, nil
}
