package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"roamly/internal/auth"
	"roamly/internal/model"
)

// MockUserRepository is a mock implementation of repository.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) FindByResetDigest(ctx context.Context, digest string, now time.Time) (*model.User, error) {
	args := m.Called(ctx, digest, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) Save(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) SetResetToken(ctx context.Context, id uuid.UUID, digest string, expiresAt time.Time) error {
	args := m.Called(ctx, id, digest, expiresAt)
	return args.Error(0)
}

func (m *MockUserRepository) ClearResetToken(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUserRepository) List(ctx context.Context) ([]model.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.User), args.Error(1)
}

// MockMailer is a mock implementation of email.Mailer.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendWelcome(ctx context.Context, user *model.User, contextURL string) error {
	args := m.Called(ctx, user, contextURL)
	return args.Error(0)
}

func (m *MockMailer) SendPasswordReset(ctx context.Context, user *model.User, recoveryURL string) error {
	args := m.Called(ctx, user, recoveryURL)
	return args.Error(0)
}

const testBaseURL = "https://app.example.com"

func newTestService(repo *MockUserRepository, mailer *MockMailer) (AuthService, *auth.JWTService, *auth.ResetTokenService) {
	hasher := &auth.BcryptHasher{Cost: bcrypt.MinCost}
	tokens := auth.NewJWTService("test-secret", time.Hour)
	resets := auth.NewResetTokenService(10 * time.Minute)
	svc := NewAuthService(repo, hasher, tokens, resets, mailer, nil, testBaseURL)
	return svc, tokens, resets
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	digest, err := (&auth.BcryptHasher{Cost: bcrypt.MinCost}).Hash(password)
	require.NoError(t, err)
	return digest
}

func TestSignup_PasswordMismatch(t *testing.T) {
	repo := new(MockUserRepository)
	mailer := new(MockMailer)
	svc, _, _ := newTestService(repo, mailer)

	_, _, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "password123", "password124")
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	// Nothing persisted, nothing mailed.
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	mailer.AssertNotCalled(t, "SendWelcome", mock.Anything, mock.Anything, mock.Anything)
}

func TestSignup_EmailTaken(t *testing.T) {
	repo := new(MockUserRepository)
	mailer := new(MockMailer)
	svc, _, _ := newTestService(repo, mailer)

	existing := &model.User{ID: uuid.New(), Email: "ada@example.com"}
	repo.On("FindByEmail", mock.Anything, "ada@example.com").Return(existing, nil)

	_, _, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "password123", "password123")
	assert.ErrorIs(t, err, ErrEmailTaken)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSignup_DuplicateKeyRace(t *testing.T) {
	repo := new(MockUserRepository)
	mailer := new(MockMailer)
	svc, _, _ := newTestService(repo, mailer)

	// Both racers see no existing row, then the unique index on email
	// rejects the slower insert. That is still an email conflict.
	repo.On("FindByEmail", mock.Anything, "ada@example.com").Return(nil, gorm.ErrRecordNotFound)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*model.User")).Return(gorm.ErrDuplicatedKey)

	_, _, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "password123", "password123")
	assert.ErrorIs(t, err, ErrEmailTaken)
	mailer.AssertNotCalled(t, "SendWelcome", mock.Anything, mock.Anything, mock.Anything)
}

func TestSignup_Success(t *testing.T) {
	repo := new(MockUserRepository)
	mailer := new(MockMailer)
	svc, tokens, _ := newTestService(repo, mailer)

	repo.On("FindByEmail", mock.Anything, "ada@example.com").Return(nil, gorm.ErrRecordNotFound)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*model.User")).Run(func(args mock.Arguments) {
		args.Get(1).(*model.User).ID = uuid.New()
	}).Return(nil)

	welcomed := make(chan struct{})
	mailer.On("SendWelcome", mock.Anything, mock.AnythingOfType("*model.User"), testBaseURL+"/me").
		Run(func(mock.Arguments) { close(welcomed) }).
		Return(nil).Once()

	user, session, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "password123", "password123")
	require.NoError(t, err)
	require.NotNil(t, session)

	assert.Equal(t, model.RoleMember, user.Role)
	assert.NotEqual(t, "password123", user.PasswordHash)
	assert.Nil(t, user.PasswordChangedAt)

	// The issued token resolves back to the new user.
	claims, err := tokens.Verify(session.Token)
	require.NoError(t, err)
	gotID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, user.ID, gotID)

	select {
	case <-welcomed:
	case <-time.After(2 * time.Second):
		t.Fatal("welcome email was never attempted")
	}
	repo.AssertExpectations(t)
	mailer.AssertExpectations(t)
}

func TestSignup_SurvivesWelcomeMailFailure(t *testing.T) {
	repo := new(MockUserRepository)
	mailer := new(MockMailer)
	svc, _, _ := newTestService(repo, mailer)

	repo.On("FindByEmail", mock.Anything, "ada@example.com").Return(nil, gorm.ErrRecordNotFound)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*model.User")).Return(nil)

	attempted := make(chan struct{})
	mailer.On("SendWelcome", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { close(attempted) }).
		Return(errors.New("smtp down")).Once()

	_, session, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "password123", "password123")
	require.NoError(t, err)
	assert.NotNil(t, session)

	select {
	case <-attempted:
	case <-time.After(2 * time.Second):
		t.Fatal("welcome email was never attempted")
	}
}

func TestSignin_UnknownEmail(t *testing.T) {
	repo := new(MockUserRepository)
	svc, _, _ := newTestService(repo, new(MockMailer))

	repo.On("FindByEmail", mock.Anything, "ghost@example.com").Return(nil, gorm.ErrRecordNotFound)

	_, _, err := svc.Signin(context.Background(), "ghost@example.com", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignin_WrongPassword(t *testing.T) {
	repo := new(MockUserRepository)
	svc, _, _ := newTestService(repo, new(MockMailer))

	user := &model.User{ID: uuid.New(), Email: "ada@example.com", PasswordHash: hashPassword(t, "correct-password")}
	repo.On("FindByEmail", mock.Anything, "ada@example.com").Return(user, nil)

	_, _, err := svc.Signin(context.Background(), "ada@example.com", "wrong-password")
	// Same error as an unknown email, no enumeration.
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignin_Success(t *testing.T) {
	repo := new(MockUserRepository)
	svc, tokens, _ := newTestService(repo, new(MockMailer))

	user := &model.User{ID: uuid.New(), Email: "ada@example.com", PasswordHash: hashPassword(t, "correct-password")}
	repo.On("FindByEmail", mock.Anything, "ada@example.com").Return(user, nil)

	got, session, err := svc.Signin(context.Background(), "ada@example.com", "correct-password")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = tokens.Verify(session.Token)
	assert.NoError(t, err)
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	repo := new(MockUserRepository)
	svc, _, _ := newTestService(repo, new(MockMailer))

	repo.On("FindByEmail", mock.Anything, "ghost@example.com").Return(nil, gorm.ErrRecordNotFound)

	err := svc.ForgotPassword(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestForgotPassword_Success(t *testing.T) {
	repo := new(MockUserRepository)
	mailer := new(MockMailer)
	svc, _, resets := newTestService(repo, mailer)

	user := &model.User{ID: uuid.New(), Email: "ada@example.com", Name: "Ada"}
	repo.On("FindByEmail", mock.Anything, "ada@example.com").Return(user, nil)

	var storedDigest string
	repo.On("SetResetToken", mock.Anything, user.ID, mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).
		Run(func(args mock.Arguments) {
			storedDigest = args.String(2)
			expiresAt := args.Get(3).(time.Time)
			assert.WithinDuration(t, time.Now().Add(10*time.Minute), expiresAt, 5*time.Second)
		}).
		Return(nil)

	var recoveryURL string
	mailer.On("SendPasswordReset", mock.Anything, user, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { recoveryURL = args.String(2) }).
		Return(nil)

	require.NoError(t, svc.ForgotPassword(context.Background(), "ada@example.com"))

	// The mailed link carries the plaintext secret whose digest was stored.
	require.True(t, strings.HasPrefix(recoveryURL, testBaseURL+"/api/auth/reset-password/"))
	secret := strings.TrimPrefix(recoveryURL, testBaseURL+"/api/auth/reset-password/")
	assert.Equal(t, storedDigest, resets.Resolve(secret))
	assert.NotEqual(t, secret, storedDigest)

	repo.AssertNotCalled(t, "ClearResetToken", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
	mailer.AssertExpectations(t)
}

func TestForgotPassword_DeliveryFailureRollsBack(t *testing.T) {
	repo := new(MockUserRepository)
	mailer := new(MockMailer)
	svc, _, _ := newTestService(repo, mailer)

	user := &model.User{ID: uuid.New(), Email: "ada@example.com"}
	repo.On("FindByEmail", mock.Anything, "ada@example.com").Return(user, nil)
	repo.On("SetResetToken", mock.Anything, user.ID, mock.Anything, mock.Anything).Return(nil)
	mailer.On("SendPasswordReset", mock.Anything, user, mock.Anything).Return(errors.New("smtp down"))
	repo.On("ClearResetToken", mock.Anything, user.ID).Return(nil)

	err := svc.ForgotPassword(context.Background(), "ada@example.com")
	assert.ErrorIs(t, err, ErrEmailDelivery)

	// No live, undelivered token may remain.
	repo.AssertCalled(t, "ClearResetToken", mock.Anything, user.ID)
}

func TestResetPassword_InvalidOrExpired(t *testing.T) {
	repo := new(MockUserRepository)
	svc, _, _ := newTestService(repo, new(MockMailer))

	// A digest matching no user and an expired match surface identically:
	// the repository filters on expiry, so both are a not-found.
	repo.On("FindByResetDigest", mock.Anything, mock.Anything, mock.Anything).Return(nil, gorm.ErrRecordNotFound)

	_, _, err := svc.ResetPassword(context.Background(), "some-secret", "newpassword1", "newpassword1")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestResetPassword_ConfirmMismatch(t *testing.T) {
	repo := new(MockUserRepository)
	svc, _, resets := newTestService(repo, new(MockMailer))

	digest := resets.Resolve("the-secret")
	user := &model.User{ID: uuid.New(), Email: "ada@example.com"}
	repo.On("FindByResetDigest", mock.Anything, digest, mock.Anything).Return(user, nil)

	_, _, err := svc.ResetPassword(context.Background(), "the-secret", "newpassword1", "newpassword2")
	assert.ErrorIs(t, err, ErrPasswordMismatch)
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestResetPassword_Success(t *testing.T) {
	repo := new(MockUserRepository)
	svc, tokens, resets := newTestService(repo, new(MockMailer))

	digest := resets.Resolve("the-secret")
	expiry := time.Now().Add(5 * time.Minute)
	oldHash := hashPassword(t, "old-password")
	user := &model.User{
		ID:                  uuid.New(),
		Email:               "ada@example.com",
		PasswordHash:        oldHash,
		ResetTokenHash:      &digest,
		ResetTokenExpiresAt: &expiry,
	}

	repo.On("FindByResetDigest", mock.Anything, digest, mock.Anything).Return(user, nil).Once()
	repo.On("Save", mock.Anything, user).Return(nil).Once()

	got, session, err := svc.ResetPassword(context.Background(), "the-secret", "new-password1", "new-password1")
	require.NoError(t, err)
	require.NotNil(t, session)

	// New digest, reset fields cleared, staleness marker set in the past.
	assert.NotEqual(t, oldHash, got.PasswordHash)
	assert.Nil(t, got.ResetTokenHash)
	assert.Nil(t, got.ResetTokenExpiresAt)
	require.NotNil(t, got.PasswordChangedAt)
	assert.True(t, got.PasswordChangedAt.Before(time.Now()))

	// Reset implies login.
	claims, err := tokens.Verify(session.Token)
	require.NoError(t, err)
	gotID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, user.ID, gotID)

	// A second redemption of the now-cleared secret fails the same way as
	// garbage input.
	repo.On("FindByResetDigest", mock.Anything, digest, mock.Anything).Return(nil, gorm.ErrRecordNotFound).Once()
	_, _, err = svc.ResetPassword(context.Background(), "the-secret", "another-pass1", "another-pass1")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)

	repo.AssertExpectations(t)
}

func TestChangePassword_WrongCurrent(t *testing.T) {
	repo := new(MockUserRepository)
	svc, _, _ := newTestService(repo, new(MockMailer))

	user := &model.User{ID: uuid.New(), PasswordHash: hashPassword(t, "current-password")}

	_, err := svc.ChangePassword(context.Background(), user, "not-the-current", "new-password1", "new-password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestChangePassword_ConfirmMismatch(t *testing.T) {
	repo := new(MockUserRepository)
	svc, _, _ := newTestService(repo, new(MockMailer))

	user := &model.User{ID: uuid.New(), PasswordHash: hashPassword(t, "current-password")}

	_, err := svc.ChangePassword(context.Background(), user, "current-password", "new-password1", "new-password2")
	assert.ErrorIs(t, err, ErrPasswordMismatch)
}

func TestChangePassword_Success(t *testing.T) {
	repo := new(MockUserRepository)
	svc, tokens, _ := newTestService(repo, new(MockMailer))

	oldHash := hashPassword(t, "current-password")
	user := &model.User{ID: uuid.New(), PasswordHash: oldHash}
	repo.On("Save", mock.Anything, user).Return(nil).Once()

	session, err := svc.ChangePassword(context.Background(), user, "current-password", "new-password1", "new-password1")
	require.NoError(t, err)

	assert.NotEqual(t, oldHash, user.PasswordHash)
	require.NotNil(t, user.PasswordChangedAt)

	// The fresh token postdates the recorded change, so it is not stale.
	claims, err := tokens.Verify(session.Token)
	require.NoError(t, err)
	assert.False(t, user.PasswordChangedAfter(claims.IssuedAt.Time))

	repo.AssertExpectations(t)
}
