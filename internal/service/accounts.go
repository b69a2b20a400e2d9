package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Naiemjoy1/mfs-server/internal/domain"
	"github.com/Naiemjoy1/mfs-server/internal/store"
)

var pinPattern = regexp.MustCompile(`^[0-9]{4,}$`)

// Registration is the payload of a new account.
type Registration struct {
	Name         string
	PIN          string
	Mobile       string
	Email        string
	ProfileImage string
	Role         domain.Role
}

// Session is the outcome of a successful login.
type Session struct {
	Token   string
	Account domain.Account
}

// Accounts provisions and administers accounts. It sits outside the ledger
// core and never touches balances after creation.
type Accounts struct {
	store  AccountStore
	pins   PINHasher
	tokens TokenIssuer
	logins throttle
	logger *slog.Logger
	now    func() time.Time
}

// NewAccounts wires the provisioning service. limiter may be nil; policy
// applies to failed sign-ins per identifier.
func NewAccounts(s AccountStore, pins PINHasher, tokens TokenIssuer, limiter AttemptLimiter, policy AttemptPolicy, logger *slog.Logger) *Accounts {
	return &Accounts{
		store:  s,
		pins:   pins,
		tokens: tokens,
		logins: throttle{
			limiter: limiter,
			policy:  policy,
			scope:   "login",
			message: "Too many login attempts",
			logger:  logger,
		},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a pending account with the opening balance of its role.
func (s *Accounts) Register(ctx context.Context, reg Registration) (*domain.Account, error) {
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))
	reg.Mobile = strings.TrimSpace(reg.Mobile)
	reg.Name = strings.TrimSpace(reg.Name)

	switch {
	case reg.Email == "" || !strings.Contains(reg.Email, "@"):
		return nil, newError(KindInvalidRequest, "A valid email is required")
	case reg.Mobile == "" || strings.Contains(reg.Mobile, "@"):
		return nil, newError(KindInvalidRequest, "A valid mobile number is required")
	case !pinPattern.MatchString(reg.PIN):
		return nil, newError(KindInvalidRequest, "PIN must be at least 4 digits")
	case !reg.Role.Valid():
		return nil, newError(KindInvalidRequest, fmt.Sprintf("Unknown user type %q", reg.Role))
	}

	hash, err := s.pins.Hash(reg.PIN)
	if err != nil {
		s.logger.Error("failed to hash pin", "error", err)
		return nil, newError(KindInternal, "Internal server error")
	}

	a := &domain.Account{
		ID:           uuid.New(),
		Name:         reg.Name,
		Email:        reg.Email,
		Mobile:       reg.Mobile,
		PINHash:      hash,
		Role:         reg.Role,
		Balance:      domain.InitialBalance(reg.Role),
		Status:       domain.AccountPending,
		ProfileImage: reg.ProfileImage,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, newError(KindAlreadyExists, "User already exists")
		}
		return nil, s.internal("create account", err)
	}

	s.logger.Info("account registered", "account_id", a.ID, "role", a.Role)
	return a, nil
}

// Login authenticates by email or mobile plus PIN and issues a token.
// Failed attempts are throttled per identifier; a successful login clears
// them.
func (s *Accounts) Login(ctx context.Context, identifier, pin string) (*Session, error) {
	identifier = strings.TrimSpace(identifier)

	failures, err := s.logins.check(ctx, identifier)
	if err != nil {
		return nil, err
	}

	a, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		if KindOf(err) == KindNotFound {
			s.logins.fail(ctx, identifier)
		}
		return nil, err
	}
	if !s.pins.Verify(a.PINHash, pin) {
		s.logins.fail(ctx, identifier)
		return nil, newError(KindUnauthorized, "Invalid credentials")
	}
	s.logins.succeed(ctx, identifier, failures)

	token, err := s.tokens.Generate(*a)
	if err != nil {
		return nil, s.internal("issue token", err)
	}
	return &Session{Token: token, Account: *a}, nil
}

func (s *Accounts) findByIdentifier(ctx context.Context, identifier string) (*domain.Account, error) {
	if identifier == "" {
		return nil, newError(KindNotFound, "User not found")
	}
	a, err := s.store.FindAccountByEmail(ctx, strings.ToLower(identifier))
	if errors.Is(err, store.ErrNotFound) {
		a, err = s.store.FindAccountByMobile(ctx, identifier)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotFound, "User not found")
	}
	if err != nil {
		return nil, s.internal("find account", err)
	}
	return a, nil
}

// List returns every account.
func (s *Accounts) List(ctx context.Context) ([]domain.Account, error) {
	out, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, s.internal("list accounts", err)
	}
	return out, nil
}

// Lookup returns the account registered under email.
func (s *Accounts) Lookup(ctx context.Context, email string) (*domain.Account, error) {
	a, err := s.store.FindAccountByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotFound, "User not found")
	}
	if err != nil {
		return nil, s.internal("find account", err)
	}
	return a, nil
}

// UpdateStatus sets an account's status. Admin only.
func (s *Accounts) UpdateStatus(ctx context.Context, caller domain.Identity, email string, status domain.AccountStatus) error {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if !status.Valid() {
		return newError(KindInvalidRequest, fmt.Sprintf("Unknown status %q", status))
	}
	err := s.store.UpdateAccountStatus(ctx, strings.ToLower(strings.TrimSpace(email)), status)
	if errors.Is(err, store.ErrNotFound) {
		return newError(KindNotFound, "User not found or status not updated")
	}
	if err != nil {
		return s.internal("update status", err)
	}
	s.logger.Info("account status updated", "email", email, "status", status, "by", caller.Email)
	return nil
}

// ChangeRole sets an account's role. Admin only.
func (s *Accounts) ChangeRole(ctx context.Context, caller domain.Identity, rawID string, role domain.Role) error {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if !role.Valid() {
		return newError(KindInvalidRequest, fmt.Sprintf("Unknown user type %q", role))
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return newError(KindNotFound, "User not found or role not updated")
	}
	err = s.store.UpdateAccountRole(ctx, id, role)
	if errors.Is(err, store.ErrNotFound) {
		return newError(KindNotFound, "User not found or role not updated")
	}
	if err != nil {
		return s.internal("update role", err)
	}
	s.logger.Info("account role changed", "account_id", id, "role", role, "by", caller.Email)
	return nil
}

// Delete removes an account. Transaction records keep their copied emails.
// Admin only.
func (s *Accounts) Delete(ctx context.Context, caller domain.Identity, rawID string) error {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return newError(KindNotFound, "User not found")
	}
	err = s.store.DeleteAccount(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return newError(KindNotFound, "User not found")
	}
	if err != nil {
		return s.internal("delete account", err)
	}
	s.logger.Info("account deleted", "account_id", id, "by", caller.Email)
	return nil
}

func (s *Accounts) requireAdmin(ctx context.Context, caller domain.Identity) error {
	a, err := s.store.FindAccountByEmail(ctx, caller.Email)
	if err != nil || a.Role != domain.RoleAdmin {
		return newError(KindForbidden, "Access denied")
	}
	return nil
}

func (s *Accounts) internal(op string, err error) error {
	s.logger.Error("account store failure", "op", op, "error", err)
	return newError(KindInternal, "Internal server error")
}
