package domain

import (
	"time"

	"github.com/google/uuid"
)

// ResetRequest is one issued credential-reset token. Only the salted digest
// of the token is stored; the plaintext exists solely in the issuance response.
type ResetRequest struct {
	ID        int64      `db:"id" json:"id"`
	AccountID uuid.UUID  `db:"account_id" json:"account_id"`
	TokenHash []byte     `db:"token_hash" json:"-"`
	TokenSalt []byte     `db:"token_salt" json:"-"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	Used      bool       `db:"used" json:"used"`
	UsedAt    *time.Time `db:"used_at" json:"used_at,omitempty"`
}

// Active reports whether the request can still be redeemed at the given instant.
func (r *ResetRequest) Active(now time.Time) bool {
	return !r.Used && r.ExpiresAt.After(now)
}

// Expired reports whether the request lapsed without ever being redeemed.
func (r *ResetRequest) Expired(now time.Time) bool {
	return !r.Used && !r.ExpiresAt.After(now)
}
