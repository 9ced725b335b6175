package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"roamly/internal/auth"
	"roamly/internal/cache"
	"roamly/internal/email"
	"roamly/internal/model"
	"roamly/internal/repository"
)

var (
	// ErrInvalidCredentials is returned when email or password is incorrect.
	// Deliberately the same for both cases so accounts cannot be enumerated.
	ErrInvalidCredentials = errors.New("incorrect email or password")
	// ErrEmailTaken is returned when signing up with a registered email.
	ErrEmailTaken = errors.New("email is already registered")
	// ErrPasswordMismatch is returned when password and confirmation differ.
	ErrPasswordMismatch = errors.New("passwords do not match")
	// ErrUserNotFound is returned by ForgotPassword for an unknown email.
	ErrUserNotFound = errors.New("no user with this email address")
	// ErrResetTokenInvalid covers both a digest matching no user and an
	// expired match, so callers cannot tell which occurred.
	ErrResetTokenInvalid = errors.New("token is invalid or has expired")
	// ErrResetInProgress is returned when another reset request for the same
	// email is still being processed.
	ErrResetInProgress = errors.New("a reset request is already being processed")
	// ErrEmailDelivery is returned when the recovery mail could not be sent.
	ErrEmailDelivery = errors.New("could not send the email, try again later")
)

// passwordChangedSkew backdates PasswordChangedAt so the session token
// issued in the same request is not itself stale.
const passwordChangedSkew = time.Second

const resetLockTTL = 30 * time.Second

// Session is a freshly issued session token with its expiry.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// AuthService orchestrates the credential lifecycle.
type AuthService interface {
	Signup(ctx context.Context, name, email, password, passwordConfirm string) (*model.User, *Session, error)
	Signin(ctx context.Context, email, password string) (*model.User, *Session, error)
	ForgotPassword(ctx context.Context, emailAddr string) error
	ResetPassword(ctx context.Context, secret, password, passwordConfirm string) (*model.User, *Session, error)
	ChangePassword(ctx context.Context, user *model.User, current, password, passwordConfirm string) (*Session, error)
}

type authService struct {
	users   repository.UserRepository
	hasher  auth.PasswordHasher
	tokens  *auth.JWTService
	resets  *auth.ResetTokenService
	mailer  email.Mailer
	cache   *cache.Client
	baseURL string
}

// NewAuthService creates the credential lifecycle service.
func NewAuthService(
	users repository.UserRepository,
	hasher auth.PasswordHasher,
	tokens *auth.JWTService,
	resets *auth.ResetTokenService,
	mailer email.Mailer,
	cacheClient *cache.Client,
	baseURL string,
) AuthService {
	return &authService{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		resets:  resets,
		mailer:  mailer,
		cache:   cacheClient,
		baseURL: baseURL,
	}
}

// Signup registers a new member account and logs it in.
func (s *authService) Signup(ctx context.Context, name, emailAddr, password, passwordConfirm string) (*model.User, *Session, error) {
	if password != passwordConfirm {
		return nil, nil, ErrPasswordMismatch
	}

	existing, err := s.users.FindByEmail(ctx, emailAddr)
	if err == nil && existing != nil {
		return nil, nil, ErrEmailTaken
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("check email: %w", err)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Name:         name,
		Email:        emailAddr,
		PasswordHash: digest,
		Role:         model.RoleMember,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Two signups can race past the existence check; the unique index on
		// email decides, and its violation is still "email taken".
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	// Best effort: a failed welcome mail must not fail the signup.
	go func(u model.User) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.mailer.SendWelcome(ctx, &u, s.baseURL+"/me"); err != nil {
			log.Printf("welcome email to %s failed: %v", u.Email, err)
		}
	}(*user)

	session, err := s.issueSession(user)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// Signin authenticates by email and password.
func (s *authService) Signin(ctx context.Context, emailAddr, password string) (*model.User, *Session, error) {
	user, err := s.users.FindByEmail(ctx, emailAddr)
	if err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.issueSession(user)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// ForgotPassword mints a single-use recovery secret and mails it. Only the
// digest and expiry are persisted; if the mail cannot be delivered they are
// rolled back so no live undelivered token remains.
func (s *authService) ForgotPassword(ctx context.Context, emailAddr string) error {
	user, err := s.users.FindByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("find user: %w", err)
	}

	// Single writer per email: concurrent requests would otherwise silently
	// invalidate each other's secrets, last write winning.
	lockKey := "pwreset:" + repository.NormalizeEmail(emailAddr)
	if !s.cache.AcquireLock(ctx, lockKey, resetLockTTL) {
		return ErrResetInProgress
	}
	defer s.cache.ReleaseLock(ctx, lockKey)

	plaintext, digest, expiresAt, err := s.resets.Generate()
	if err != nil {
		return err
	}
	if err := s.users.SetResetToken(ctx, user.ID, digest, expiresAt); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	recoveryURL := fmt.Sprintf("%s/api/auth/reset-password/%s", s.baseURL, plaintext)
	if err := s.mailer.SendPasswordReset(ctx, user, recoveryURL); err != nil {
		// The secret never reached the user; clear it rather than leave a
		// live token nobody can use.
		if clearErr := s.users.ClearResetToken(ctx, user.ID); clearErr != nil {
			log.Printf("clear reset token for %s failed: %v", user.Email, clearErr)
		}
		return ErrEmailDelivery
	}
	return nil
}

// ResetPassword redeems a recovery secret and sets a new password. Reset
// implies login, so a fresh session is issued.
func (s *authService) ResetPassword(ctx context.Context, secret, password, passwordConfirm string) (*model.User, *Session, error) {
	digest := s.resets.Resolve(secret)
	user, err := s.users.FindByResetDigest(ctx, digest, time.Now())
	if err != nil {
		return nil, nil, ErrResetTokenInvalid
	}
	if password != passwordConfirm {
		return nil, nil, ErrPasswordMismatch
	}

	if err := s.setPassword(ctx, user, password); err != nil {
		return nil, nil, err
	}

	session, err := s.issueSession(user)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// ChangePassword rotates the password of an authenticated user.
func (s *authService) ChangePassword(ctx context.Context, user *model.User, current, password, passwordConfirm string) (*Session, error) {
	if !s.hasher.Verify(current, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if password != passwordConfirm {
		return nil, ErrPasswordMismatch
	}

	if err := s.setPassword(ctx, user, password); err != nil {
		return nil, err
	}
	return s.issueSession(user)
}

// setPassword writes a fresh digest, bumps PasswordChangedAt and clears any
// pending reset token. Outstanding session tokens go stale at this point.
func (s *authService) setPassword(ctx context.Context, user *model.User, password string) error {
	digest, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	changedAt := time.Now().Add(-passwordChangedSkew)
	user.PasswordHash = digest
	user.PasswordChangedAt = &changedAt
	user.ResetTokenHash = nil
	user.ResetTokenExpiresAt = nil

	if err := s.users.Save(ctx, user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	_ = s.cache.Delete(ctx, userCacheKey(user.ID))
	return nil
}

func (s *authService) issueSession(user *model.User) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: expiresAt}, nil
}
