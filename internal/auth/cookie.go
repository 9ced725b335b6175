package auth

import (
	"net/http"
	"time"
)

// SessionCookieName is the cookie the session token travels in.
const SessionCookieName = "jwt"

// loggedOutSentinel replaces the token on logout. It never verifies, so any
// later request carrying it is simply anonymous.
const loggedOutSentinel = "logged-out"

// SessionCookie builds the HTTP-only session cookie carrying the token.
func SessionCookie(token string, expires time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	}
}

// LogoutCookie overwrites the session cookie with a sentinel that expires
// almost immediately. Tokens a client holds out-of-band stay valid until
// their natural expiry.
func LogoutCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    loggedOutSentinel,
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Now().Add(10 * time.Second),
	}
}
