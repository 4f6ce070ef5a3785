package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/credport/reset-service/internal/domain"
)

type AccountRepository struct {
	db *sqlx.DB
}

func NewAccountRepo(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, email string, credentialHash, credentialSalt []byte) (*domain.Account, error) {
	const query = `
        INSERT INTO account (email, credential_hash, credential_salt)
        VALUES ($1, $2, $3)
        RETURNING id, email, credential_hash, credential_salt, created_at, updated_at
    `
	row := r.db.QueryRowxContext(ctx, query, email, credentialHash, credentialSalt)
	var account domain.Account
	if err := row.StructScan(&account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	const query = `
        SELECT id, email, credential_hash, credential_salt, created_at, updated_at
        FROM account
        WHERE email = $1
    `
	var account domain.Account
	if err := r.db.GetContext(ctx, &account, query, email); err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	const query = `
        SELECT id, email, credential_hash, credential_salt, created_at, updated_at
        FROM account
        WHERE id = $1
    `
	var account domain.Account
	if err := r.db.GetContext(ctx, &account, query, id); err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) ReplaceCredential(ctx context.Context, id uuid.UUID, credentialHash, credentialSalt []byte) error {
	const query = `
        UPDATE account
        SET credential_hash = $2,
            credential_salt = $3,
            updated_at = NOW()
        WHERE id = $1
    `
	_, err := r.db.ExecContext(ctx, query, id, credentialHash, credentialSalt)
	return err
}
