package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"roamly/internal/auth"
	"roamly/internal/model"
	"roamly/internal/repository"
)

// userContextKey is where the resolved identity lives on the echo context.
const userContextKey = "user"

var (
	// ErrUserGone means the token's subject no longer exists.
	ErrUserGone = errors.New("the user belonging to this token no longer exists")
	// ErrTokenStale means the token predates the user's last password change.
	ErrTokenStale = errors.New("password changed recently, please log in again")

	// errNoToken means neither transport carried a session token.
	errNoToken = errors.New("no session token in request")
	// errStoreUnavailable marks a storage fault during subject resolution,
	// an infrastructure failure rather than an auth decision.
	errStoreUnavailable = errors.New("user store unavailable")
)

// extractSessionToken yields exactly one candidate token: the Bearer header
// when present, else the session cookie. A present-but-invalid header must
// deny, never fall through to the cookie, so once a Bearer header exists the
// cookie is not consulted.
func extractSessionToken(c echo.Context) ([]string, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return []string{strings.TrimPrefix(header, "Bearer ")}, nil
	}
	cookie, err := c.Cookie(auth.SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, errNoToken
	}
	return []string{cookie.Value}, nil
}

// notLoggedInMessage is deliberately uniform across every denial mode so a
// caller cannot probe which check failed.
const notLoggedInMessage = "you are not logged in, please log in to get access"

// Auth builds the route-protection middleware. Both variants run the same
// pipeline: extract token, verify signature and expiry, resolve the subject,
// reject tokens issued before the last password change.
type Auth struct {
	tokens *auth.JWTService
	users  repository.UserRepository
}

// NewAuth creates auth middleware over the token service and user store.
func NewAuth(tokens *auth.JWTService, users repository.UserRepository) *Auth {
	return &Auth{tokens: tokens, users: users}
}

// RequireAuth denies the request unless a valid session token resolves to a
// live, non-stale user. The identity is attached to the request context.
func (a *Auth) RequireAuth() echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:       userContextKey,
		TokenLookupFuncs: []echomw.ValuesExtractor{extractSessionToken},
		ParseTokenFunc:   a.resolveUser,
		ErrorHandler:     denyOrFail,
	})
}

// denyOrFail translates pipeline failures for RequireAuth. Everything is a
// uniform 401 except storage faults, which are the server's problem, not the
// caller's.
func denyOrFail(c echo.Context, err error) error {
	if errors.Is(err, errStoreUnavailable) {
		return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong, please try again later")
	}
	return echo.NewHTTPError(http.StatusUnauthorized, notLoggedInMessage)
}

// OptionalAuth runs the same pipeline but never denies: any failure, from a
// missing token to a stale one, degrades to an anonymous request.
func (a *Auth) OptionalAuth() echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:             userContextKey,
		TokenLookupFuncs:       []echomw.ValuesExtractor{extractSessionToken},
		ParseTokenFunc:         a.resolveUser,
		ContinueOnIgnoredError: true,
		ErrorHandler: func(c echo.Context, err error) error {
			return nil
		},
	})
}

// RequireRole allows only the given roles through. It must be composed after
// RequireAuth; without an attached identity it denies rather than panics.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := CurrentUser(c)
			if user == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, notLoggedInMessage)
			}
			if !user.HasAnyRole(roles...) {
				return echo.NewHTTPError(http.StatusForbidden, "you do not have permission to perform this action")
			}
			return next(c)
		}
	}
}

// CurrentUser returns the identity attached by RequireAuth or OptionalAuth,
// or nil for an anonymous request.
func CurrentUser(c echo.Context) *model.User {
	user, _ := c.Get(userContextKey).(*model.User)
	return user
}

// resolveUser is the verification pipeline shared by both middleware modes.
func (a *Auth) resolveUser(c echo.Context, tokenString string) (interface{}, error) {
	claims, err := a.tokens.Verify(tokenString)
	if err != nil {
		return nil, err
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, auth.ErrTokenInvalid
	}

	user, err := a.users.FindByID(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserGone
		}
		return nil, fmt.Errorf("%w: %v", errStoreUnavailable, err)
	}

	if claims.IssuedAt == nil || user.PasswordChangedAfter(claims.IssuedAt.Time) {
		return nil, ErrTokenStale
	}
	return user, nil
}
