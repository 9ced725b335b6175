package email

import (
	"context"

	"roamly/internal/model"
)

// Mailer delivers account notifications. Welcome mail is best-effort;
// password-reset delivery failures must reach the caller so the pending
// reset token can be rolled back.
type Mailer interface {
	SendWelcome(ctx context.Context, user *model.User, contextURL string) error
	SendPasswordReset(ctx context.Context, user *model.User, recoveryURL string) error
}
