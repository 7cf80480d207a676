package session

import (
	"context"
	"log/slog"
	"time"
)

const logoutTimeout = 10 * time.Second

// Authenticator is the part of a session that WithSession drives.
type Authenticator interface {
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
}

// WithSession logs in, runs fn, and logs out whatever fn returns. Logout
// errors are logged and never replace fn's result.
func WithSession(
	ctx context.Context,
	a Authenticator,
	logger *slog.Logger,
	fn func(ctx context.Context) error,
) error {
	if err := a.Login(ctx); err != nil {
		return err
	}

	defer func() {
		logoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
		defer cancel()
		if err := a.Logout(logoutCtx); err != nil {
			logger.Warn("logout failed", "error", err)
		}
	}()

	return fn(ctx)
}
