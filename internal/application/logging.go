package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/digital-lending/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", "lending"}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, ErrAlreadyBorrowed):
		return "already_borrowed"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrRenewalLimitReached):
		return "renewal_limit_reached"
	case errors.Is(err, ErrWaitlisted):
		return "waitlisted"
	case errors.Is(err, ErrAlreadyWaitlisted):
		return "already_waitlisted"
	case errors.Is(err, ErrBookAvailable):
		return "book_available"
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrNotLendable):
		return "not_lendable"
	case errors.Is(err, ErrSourceCorrupt):
		return "source_corrupt"
	case errors.Is(err, ErrGone):
		return "gone"
	}
	return "unexpected"
}
