package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/credport/reset-service/internal/domain"
)

// AccountRepository is the account directory: lookup by natural identifier
// and credential replacement. Accounts are created and destroyed elsewhere.
type AccountRepository interface {
	Create(ctx context.Context, email string, credentialHash, credentialSalt []byte) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	ReplaceCredential(ctx context.Context, id uuid.UUID, credentialHash, credentialSalt []byte) error
}
