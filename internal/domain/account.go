package domain

import (
	"time"

	"github.com/google/uuid"
)

type Account struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	CredentialHash []byte    `db:"credential_hash" json:"-"`
	CredentialSalt []byte    `db:"credential_salt" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
