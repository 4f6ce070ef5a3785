package ports

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/credport/reset-service/internal/domain"
)

var (
	// ErrActiveRequestExists is returned by Create when the account already
	// has an unused, unexpired reset request.
	ErrActiveRequestExists = errors.New("active reset request already exists")

	// ErrRequestConsumed is returned by Redeem when the request was already
	// marked used by a concurrent redemption.
	ErrRequestConsumed = errors.New("reset request already consumed")

	// ErrDuplicateToken is returned by Create when the token digest collides
	// with a stored one.
	ErrDuplicateToken = errors.New("duplicate reset token digest")
)

// ResetRequestRepository owns persistence of reset requests and is their sole
// writer. Create and Redeem are the two serialization points: both must hold
// under concurrent service instances, so they are implemented with the
// store's own locking, not in-process mutexes.
type ResetRequestRepository interface {
	// Create inserts a new request after re-checking, under a lock on the
	// account row, that no active request exists for the account.
	Create(ctx context.Context, accountID uuid.UUID, tokenHash, tokenSalt []byte, expiresAt time.Time) (*domain.ResetRequest, error)

	// HasActive reports whether the account has an unused, unexpired request.
	HasActive(ctx context.Context, accountID uuid.UUID, now time.Time) (bool, error)

	// ListActive returns every unused, unexpired request. This is the
	// matcher's candidate set; it is bounded by one request per account.
	ListActive(ctx context.Context, now time.Time) ([]domain.ResetRequest, error)

	// FindByID loads a single request regardless of state. Diagnostic use only.
	FindByID(ctx context.Context, id int64) (*domain.ResetRequest, error)

	// ListSince returns every request created after the given instant,
	// consumed and expired ones included. Diagnostic use only: redemption
	// failure logging classifies the miss with it, the external contract
	// never sees the distinction.
	ListSince(ctx context.Context, since time.Time) ([]domain.ResetRequest, error)

	// Redeem atomically marks the request used and replaces the owning
	// account's credential. Exactly one of two concurrent redemptions of the
	// same request succeeds; the loser gets ErrRequestConsumed.
	Redeem(ctx context.Context, id int64, accountID uuid.UUID, credentialHash, credentialSalt []byte, usedAt time.Time) error
}
