package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/credport/reset-service/internal/domain"
	"github.com/credport/reset-service/internal/repository/ports"
	"github.com/credport/reset-service/internal/util"
)

var (
	ErrInvalidEmail        = errors.New("invalid email format")
	ErrAccountNotFound     = errors.New("account not found")
	ErrActiveRequestExists = errors.New("active password reset request already exists")
	ErrInvalidToken        = errors.New("invalid or expired reset token")
	ErrPasswordTooWeak     = errors.New("new password does not meet the minimum policy")
)

// maxTokenAttempts bounds regeneration after a token digest collision.
const maxTokenAttempts = 3

// ResetMailer delivers the plaintext token out-of-band.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// ResetService issues and redeems single-use credential-reset tokens. It is
// stateless between calls; every invariant is enforced by the store.
type ResetService struct {
	accounts ports.AccountRepository
	resets   ports.ResetRequestRepository
	mailer   ResetMailer
	tokenTTL time.Duration
}

func NewResetService(accounts ports.AccountRepository, resets ports.ResetRequestRepository, mailer ResetMailer, tokenTTL time.Duration) *ResetService {
	if tokenTTL <= 0 {
		tokenTTL = 30 * time.Minute
	}
	return &ResetService{accounts: accounts, resets: resets, mailer: mailer, tokenTTL: tokenTTL}
}

// Issue generates a new reset token for the account behind email. The
// returned plaintext is the only copy that ever leaves this method; the store
// keeps a salted digest.
func (s *ResetService) Issue(ctx context.Context, email string) (string, time.Time, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if !util.ValidEmail(email) {
		return "", time.Time{}, ErrInvalidEmail
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn().Str("email", email).Msg("password reset requested for unknown account")
			return "", time.Time{}, ErrAccountNotFound
		}
		return "", time.Time{}, fmt.Errorf("find account: %w", err)
	}

	active, err := s.resets.HasActive(ctx, account.ID, time.Now())
	if err != nil {
		return "", time.Time{}, fmt.Errorf("check active request: %w", err)
	}
	if active {
		log.Warn().Str("email", email).Msg("password reset already in flight")
		return "", time.Time{}, ErrActiveRequestExists
	}

	var request *domain.ResetRequest
	var token string
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token = util.GenerateResetToken()
		tokenHash, tokenSalt, derr := util.DeriveSecret(token)
		if derr != nil {
			return "", time.Time{}, fmt.Errorf("derive token digest: %w", derr)
		}

		request, err = s.resets.Create(ctx, account.ID, tokenHash, tokenSalt, time.Now().Add(s.tokenTTL))
		if err == nil {
			break
		}
		if errors.Is(err, ports.ErrActiveRequestExists) {
			// Lost the race against a concurrent issuance for the same account.
			return "", time.Time{}, ErrActiveRequestExists
		}
		if errors.Is(err, ports.ErrDuplicateToken) {
			log.Warn().Int("attempt", attempt+1).Msg("token digest collision, regenerating")
			continue
		}
		return "", time.Time{}, fmt.Errorf("store reset request: %w", err)
	}
	if request == nil {
		return "", time.Time{}, fmt.Errorf("store reset request: %w", ports.ErrDuplicateToken)
	}

	if s.mailer != nil {
		if merr := s.mailer.SendPasswordReset(ctx, account.Email, token); merr != nil {
			log.Warn().Err(merr).Str("email", email).Msg("reset token email delivery failed")
		}
	}

	log.Info().Str("email", email).Time("expires_at", request.ExpiresAt).Msg("reset token issued")
	return token, request.ExpiresAt, nil
}

// Redeem consumes the request matching token and replaces the owning
// account's credential. Not-found, expired and already-used all collapse to
// ErrInvalidToken so a caller cannot probe which one it was.
func (s *ResetService) Redeem(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	if err := util.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordTooWeak, err)
	}

	request, err := s.matchToken(ctx, token)
	if err != nil {
		return err
	}
	if request == nil {
		s.logRedeemMiss(ctx, token)
		return ErrInvalidToken
	}

	credentialHash, credentialSalt, err := util.DeriveSecret(newPassword)
	if err != nil {
		return fmt.Errorf("derive credential digest: %w", err)
	}

	if err := s.resets.Redeem(ctx, request.ID, request.AccountID, credentialHash, credentialSalt, time.Now()); err != nil {
		if errors.Is(err, ports.ErrRequestConsumed) {
			log.Debug().Int64("request_id", request.ID).Msg("redemption lost the race, request already consumed")
			return ErrInvalidToken
		}
		return fmt.Errorf("redeem reset request: %w", err)
	}

	log.Info().Stringer("account_id", request.AccountID).Msg("credential reset completed")
	return nil
}

// matchToken scans the active candidate set and verifies the presented token
// against each salted digest. There is no equality index to use: the same
// token digests differently per record, so this stays O(active requests),
// bounded by one request per account.
func (s *ResetService) matchToken(ctx context.Context, token string) (*domain.ResetRequest, error) {
	candidates, err := s.resets.ListActive(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("list active requests: %w", err)
	}
	for i := range candidates {
		if util.VerifySecret(token, candidates[i].TokenSalt, candidates[i].TokenHash) {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

// logRedeemMiss records why a token failed to match. Strictly a logging
// side-channel: the caller sees ErrInvalidToken no matter what is found here.
func (s *ResetService) logRedeemMiss(ctx context.Context, token string) {
	now := time.Now()
	recent, err := s.resets.ListSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		log.Debug().Err(err).Msg("redemption failed: token not matched, diagnostics unavailable")
		return
	}
	for i := range recent {
		if !util.VerifySecret(token, recent[i].TokenSalt, recent[i].TokenHash) {
			continue
		}
		switch {
		case recent[i].Used:
			log.Debug().Int64("request_id", recent[i].ID).Msg("redemption failed: token already used")
		case recent[i].Expired(now):
			log.Debug().Int64("request_id", recent[i].ID).Msg("redemption failed: token expired")
		}
		return
	}
	log.Debug().Msg("redemption failed: token unknown")
}
