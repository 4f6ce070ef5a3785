package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/credport/reset-service/internal/domain"
	"github.com/credport/reset-service/internal/repository/ports"
	"github.com/credport/reset-service/internal/util"
)

type fakeAccountRepo struct {
	findByEmailInput  string
	findByEmailResult *domain.Account
	findByEmailErr    error
}

func (f *fakeAccountRepo) Create(ctx context.Context, email string, credentialHash, credentialSalt []byte) (*domain.Account, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAccountRepo) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	f.findByEmailInput = email
	return f.findByEmailResult, f.findByEmailErr
}

func (f *fakeAccountRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAccountRepo) ReplaceCredential(ctx context.Context, id uuid.UUID, credentialHash, credentialSalt []byte) error {
	return errors.New("not implemented")
}

type redeemedCredential struct {
	hash []byte
	salt []byte
}

// fakeResetRepo mirrors the store contract in memory: Create re-checks the
// active predicate under a lock and Redeem lets exactly one caller win.
type fakeResetRepo struct {
	mu          sync.Mutex
	nextID      int64
	rows        map[int64]*domain.ResetRequest
	collisions  int
	createCalls int
	credentials map[uuid.UUID]redeemedCredential
}

func newFakeResetRepo() *fakeResetRepo {
	return &fakeResetRepo{
		rows:        make(map[int64]*domain.ResetRequest),
		credentials: make(map[uuid.UUID]redeemedCredential),
	}
}

func (f *fakeResetRepo) Create(ctx context.Context, accountID uuid.UUID, tokenHash, tokenSalt []byte, expiresAt time.Time) (*domain.ResetRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.collisions > 0 {
		f.collisions--
		return nil, ports.ErrDuplicateToken
	}
	now := time.Now()
	for _, row := range f.rows {
		if row.AccountID == accountID && row.Active(now) {
			return nil, ports.ErrActiveRequestExists
		}
	}
	f.nextID++
	row := &domain.ResetRequest{
		ID:        f.nextID,
		AccountID: accountID,
		TokenHash: append([]byte(nil), tokenHash...),
		TokenSalt: append([]byte(nil), tokenSalt...),
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	f.rows[row.ID] = row
	copied := *row
	return &copied, nil
}

func (f *fakeResetRepo) HasActive(ctx context.Context, accountID uuid.UUID, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.AccountID == accountID && row.Active(now) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeResetRepo) ListActive(ctx context.Context, now time.Time) ([]domain.ResetRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ResetRequest
	for _, row := range f.rows {
		if row.Active(now) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeResetRepo) FindByID(ctx context.Context, id int64) (*domain.ResetRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *row
	return &copied, nil
}

func (f *fakeResetRepo) ListSince(ctx context.Context, since time.Time) ([]domain.ResetRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ResetRequest
	for _, row := range f.rows {
		if row.CreatedAt.After(since) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeResetRepo) Redeem(ctx context.Context, id int64, accountID uuid.UUID, credentialHash, credentialSalt []byte, usedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	if row.Used {
		return ports.ErrRequestConsumed
	}
	row.Used = true
	row.UsedAt = &usedAt
	f.credentials[accountID] = redeemedCredential{
		hash: append([]byte(nil), credentialHash...),
		salt: append([]byte(nil), credentialSalt...),
	}
	return nil
}

// expire rewrites a stored row's expiry, simulating the passage of time.
func (f *fakeResetRepo) expire(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[id].ExpiresAt = time.Now().Add(-time.Minute)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []struct {
		email string
		token string
	}
	err error
}

func (f *fakeMailer) SendPasswordReset(ctx context.Context, email, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, struct {
		email string
		token string
	}{email: email, token: token})
	return f.err
}

func testAccount() *domain.Account {
	return &domain.Account{ID: uuid.New(), Email: "a@x.com"}
}

func TestIssueAndRedeemRoundTrip(t *testing.T) {
	ctx := context.Background()
	account := testAccount()
	accounts := &fakeAccountRepo{findByEmailResult: account}
	resets := newFakeResetRepo()
	svc := NewResetService(accounts, resets, nil, 30*time.Minute)

	token, expiresAt, err := svc.Issue(ctx, account.Email)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if token == "" {
		t.Fatal("expected a plaintext token")
	}
	window := time.Until(expiresAt)
	if window < 29*time.Minute || window > 31*time.Minute {
		t.Fatalf("expected ~30m expiry window, got %v", window)
	}

	row := resets.rows[1]
	if string(row.TokenHash) == token {
		t.Fatal("token must not be stored in plaintext")
	}
	if !util.VerifySecret(token, row.TokenSalt, row.TokenHash) {
		t.Fatal("stored digest should verify against the issued token")
	}

	if err := svc.Redeem(ctx, token, "Pw123456"); err != nil {
		t.Fatalf("unexpected redeem error: %v", err)
	}
	if !row.Used || row.UsedAt == nil {
		t.Fatal("expected request to be marked used with a timestamp")
	}
	cred, ok := resets.credentials[account.ID]
	if !ok {
		t.Fatal("expected credential to be replaced")
	}
	if !util.VerifySecret("Pw123456", cred.salt, cred.hash) {
		t.Fatal("replaced credential digest should verify against the new password")
	}
}

func TestIssueInvalidEmail(t *testing.T) {
	svc := NewResetService(&fakeAccountRepo{}, newFakeResetRepo(), nil, 30*time.Minute)
	for _, email := range []string{"", "not-an-email", "user@host"} {
		if _, _, err := svc.Issue(context.Background(), email); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("email %q: expected ErrInvalidEmail, got %v", email, err)
		}
	}
}

func TestIssueNormalizesEmail(t *testing.T) {
	account := testAccount()
	accounts := &fakeAccountRepo{findByEmailResult: account}
	svc := NewResetService(accounts, newFakeResetRepo(), nil, 30*time.Minute)

	if _, _, err := svc.Issue(context.Background(), "  A@X.com "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accounts.findByEmailInput != "a@x.com" {
		t.Fatalf("expected normalized lookup, got %q", accounts.findByEmailInput)
	}
}

func TestIssueUnknownAccount(t *testing.T) {
	accounts := &fakeAccountRepo{findByEmailErr: sql.ErrNoRows}
	svc := NewResetService(accounts, newFakeResetRepo(), nil, 30*time.Minute)

	if _, _, err := svc.Issue(context.Background(), "none@x.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestIssueTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	account := testAccount()
	svc := NewResetService(&fakeAccountRepo{findByEmailResult: account}, newFakeResetRepo(), nil, 30*time.Minute)

	if _, _, err := svc.Issue(ctx, account.Email); err != nil {
		t.Fatalf("first issue failed: %v", err)
	}
	if _, _, err := svc.Issue(ctx, account.Email); !errors.Is(err, ErrActiveRequestExists) {
		t.Fatalf("expected ErrActiveRequestExists, got %v", err)
	}
}

func TestIssueAfterExpiry(t *testing.T) {
	ctx := context.Background()
	account := testAccount()
	resets := newFakeResetRepo()
	svc := NewResetService(&fakeAccountRepo{findByEmailResult: account}, resets, nil, 30*time.Minute)

	if _, _, err := svc.Issue(ctx, account.Email); err != nil {
		t.Fatalf("first issue failed: %v", err)
	}
	resets.expire(1)
	if _, _, err := svc.Issue(ctx, account.Email); err != nil {
		t.Fatalf("expected issuance after expiry to succeed, got %v", err)
	}
}

func TestIssueRetriesOnDigestCollision(t *testing.T) {
	ctx := context.Background()
	account := testAccount()
	resets := newFakeResetRepo()
	resets.collisions = 2
	svc := NewResetService(&fakeAccountRepo{findByEmailResult: account}, resets, nil, 30*time.Minute)

	if _, _, err := svc.Issue(ctx, account.Email); err != nil {
		t.Fatalf("expected issuance to recover from collisions, got %v", err)
	}
	if resets.createCalls != 3 {
		t.Fatalf("expected 3 create attempts, got %d", resets.createCalls)
	}

	t.Run("gives up after bounded attempts", func(t *testing.T) {
		resets := newFakeResetRepo()
		resets.collisions = maxTokenAttempts
		svc := NewResetService(&fakeAccountRepo{findByEmailResult: account}, resets, nil, 30*time.Minute)
		if _, _, err := svc.Issue(ctx, account.Email); err == nil {
			t.Fatal("expected error once retries are exhausted")
		}
	})
}

func TestIssueDeliversTokenByMail(t *testing.T) {
	ctx := context.Background()
	account := testAccount()
	mailer := &fakeMailer{}
	svc := NewResetService(&fakeAccountRepo{findByEmailResult: account}, newFakeResetRepo(), mailer, 30*time.Minute)

	token, _, err := svc.Issue(ctx, account.Email)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected one mail, got %d", len(mailer.sent))
	}
	if mailer.sent[0].email != account.Email || mailer.sent[0].token != token {
		t.Fatalf("expected mail to carry the issued token, got %+v", mailer.sent[0])
	}

	t.Run("delivery failure does not fail issuance", func(t *testing.T) {
		mailer := &fakeMailer{err: errors.New("smtp down")}
		svc := NewResetService(&fakeAccountRepo{findByEmailResult: account}, newFakeResetRepo(), mailer, 30*time.Minute)
		if _, _, err := svc.Issue(ctx, account.Email); err != nil {
			t.Fatalf("expected issuance to succeed despite mail failure, got %v", err)
		}
	})
}

func TestRedeemTwice(t *testing.T) {
	ctx := context.Background()
	account := testAccount()
	svc := NewResetService(&fakeAccountRepo{findByEmailResult: account}, newFakeResetRepo(), nil, 30*time.Minute)

	token, _, err := svc.Issue(ctx, account.Email)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if err := svc.Redeem(ctx, token, "Pw123456"); err != nil {
		t.Fatalf("first redeem failed: %v", err)
	}
	if err := svc.Redeem(ctx, token, "Pw123456"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on second redeem, got %v", err)
	}
}

func TestRedeemExpiredToken(t *testing.T) {
	ctx := context.Background()
	account := testAccount()
	resets := newFakeResetRepo()
	svc := NewResetService(&fakeAccountRepo{findByEmailResult: account}, resets, nil, 30*time.Minute)

	token, _, err := svc.Issue(ctx, account.Email)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	resets.expire(1)
	if err := svc.Redeem(ctx, token, "Pw123456"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestRedeemUnknownToken(t *testing.T) {
	svc := NewResetService(&fakeAccountRepo{}, newFakeResetRepo(), nil, 30*time.Minute)
	if err := svc.Redeem(context.Background(), "never-issued", "Pw123456"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRedeemWeakPassword(t *testing.T) {
	svc := NewResetService(&fakeAccountRepo{}, newFakeResetRepo(), nil, 30*time.Minute)
	if err := svc.Redeem(context.Background(), "some-token", "short"); !errors.Is(err, ErrPasswordTooWeak) {
		t.Fatalf("expected ErrPasswordTooWeak, got %v", err)
	}
}

func TestConcurrentIssueSingleWinner(t *testing.T) {
	ctx := context.Background()
	account := testAccount()
	svc := NewResetService(&fakeAccountRepo{findByEmailResult: account}, newFakeResetRepo(), nil, 30*time.Minute)

	results := make(chan error, 2)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < 2; i++ {
		go func() {
			start.Wait()
			_, _, err := svc.Issue(ctx, account.Email)
			results <- err
		}()
	}
	start.Done()

	var successes, conflicts int
	for i := 0; i < 2; i++ {
		switch err := <-results; {
		case err == nil:
			successes++
		case errors.Is(err, ErrActiveRequestExists):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d conflicts", successes, conflicts)
	}

	active, err := svc.resets.ListActive(ctx, time.Now())
	if err != nil {
		t.Fatalf("listing active requests failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected exactly one active request for the account, got %d", len(active))
	}
}

func TestConcurrentRedeemSingleWinner(t *testing.T) {
	ctx := context.Background()
	account := testAccount()
	svc := NewResetService(&fakeAccountRepo{findByEmailResult: account}, newFakeResetRepo(), nil, 30*time.Minute)

	token, _, err := svc.Issue(ctx, account.Email)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	results := make(chan error, 2)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < 2; i++ {
		go func() {
			start.Wait()
			results <- svc.Redeem(ctx, token, "Pw123456")
		}()
	}
	start.Done()

	var successes, invalid int
	for i := 0; i < 2; i++ {
		switch err := <-results; {
		case err == nil:
			successes++
		case errors.Is(err, ErrInvalidToken):
			invalid++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || invalid != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d invalid", successes, invalid)
	}
}
