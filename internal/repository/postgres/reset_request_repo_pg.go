package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/credport/reset-service/internal/domain"
	"github.com/credport/reset-service/internal/repository/ports"
)

const uniqueViolation = "23505"

type ResetRequestRepository struct {
	db *sqlx.DB
}

func NewResetRequestRepo(db *sqlx.DB) *ResetRequestRepository {
	return &ResetRequestRepository{db: db}
}

// Create inserts a new reset request. The account row is locked for the
// duration of the transaction so two concurrent issuances for the same
// account serialize here; the second one sees the first insert and fails
// with ErrActiveRequestExists.
func (r *ResetRequestRepository) Create(ctx context.Context, accountID uuid.UUID, tokenHash, tokenSalt []byte, expiresAt time.Time) (*domain.ResetRequest, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create tx: %w", err)
	}
	defer tx.Rollback()

	const lockQuery = `SELECT id FROM account WHERE id = $1 FOR UPDATE`
	var lockedID uuid.UUID
	if err := tx.GetContext(ctx, &lockedID, lockQuery, accountID); err != nil {
		return nil, fmt.Errorf("lock account row: %w", err)
	}

	const activeQuery = `
        SELECT EXISTS (
            SELECT 1 FROM password_reset_request
            WHERE account_id = $1 AND used = FALSE AND expires_at > NOW()
        )
    `
	var active bool
	if err := tx.GetContext(ctx, &active, activeQuery, accountID); err != nil {
		return nil, fmt.Errorf("check active request: %w", err)
	}
	if active {
		return nil, ports.ErrActiveRequestExists
	}

	const insertQuery = `
        INSERT INTO password_reset_request (account_id, token_hash, token_salt, expires_at)
        VALUES ($1, $2, $3, $4)
        RETURNING id, account_id, token_hash, token_salt, created_at, expires_at, used, used_at
    `
	row := tx.QueryRowxContext(ctx, insertQuery, accountID, tokenHash, tokenSalt, expiresAt)
	var request domain.ResetRequest
	if err := row.StructScan(&request); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ports.ErrDuplicateToken
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create tx: %w", err)
	}
	return &request, nil
}

func (r *ResetRequestRepository) HasActive(ctx context.Context, accountID uuid.UUID, now time.Time) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM password_reset_request
            WHERE account_id = $1 AND used = FALSE AND expires_at > $2
        )
    `
	var active bool
	if err := r.db.GetContext(ctx, &active, query, accountID, now); err != nil {
		return false, err
	}
	return active, nil
}

func (r *ResetRequestRepository) ListActive(ctx context.Context, now time.Time) ([]domain.ResetRequest, error) {
	const query = `
        SELECT id, account_id, token_hash, token_salt, created_at, expires_at, used, used_at
        FROM password_reset_request
        WHERE used = FALSE AND expires_at > $1
        ORDER BY created_at DESC
    `
	var requests []domain.ResetRequest
	if err := r.db.SelectContext(ctx, &requests, query, now); err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *ResetRequestRepository) FindByID(ctx context.Context, id int64) (*domain.ResetRequest, error) {
	const query = `
        SELECT id, account_id, token_hash, token_salt, created_at, expires_at, used, used_at
        FROM password_reset_request
        WHERE id = $1
    `
	var request domain.ResetRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *ResetRequestRepository) ListSince(ctx context.Context, since time.Time) ([]domain.ResetRequest, error) {
	const query = `
        SELECT id, account_id, token_hash, token_salt, created_at, expires_at, used, used_at
        FROM password_reset_request
        WHERE created_at > $1
        ORDER BY created_at DESC
    `
	var requests []domain.ResetRequest
	if err := r.db.SelectContext(ctx, &requests, query, since); err != nil {
		return nil, err
	}
	return requests, nil
}

// Redeem flips the request to used and replaces the account credential in one
// transaction. The conditional update is the single-writer point: RowsAffected
// is zero for every caller but the first, and the credential write never
// commits without the consumption.
func (r *ResetRequestRepository) Redeem(ctx context.Context, id int64, accountID uuid.UUID, credentialHash, credentialSalt []byte, usedAt time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin redeem tx: %w", err)
	}
	defer tx.Rollback()

	const consumeQuery = `
        UPDATE password_reset_request
        SET used = TRUE,
            used_at = $2
        WHERE id = $1 AND used = FALSE
    `
	res, err := tx.ExecContext(ctx, consumeQuery, id, usedAt)
	if err != nil {
		return fmt.Errorf("consume reset request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ports.ErrRequestConsumed
	}

	const credentialQuery = `
        UPDATE account
        SET credential_hash = $2,
            credential_salt = $3,
            updated_at = NOW()
        WHERE id = $1
    `
	if _, err := tx.ExecContext(ctx, credentialQuery, accountID, credentialHash, credentialSalt); err != nil {
		return fmt.Errorf("replace credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit redeem tx: %w", err)
	}
	return nil
}
