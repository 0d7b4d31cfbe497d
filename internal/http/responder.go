package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/digital-lending/internal/application"
)

var (
	errInvalidBookID   = errors.New("invalid book id")
	errInvalidLoanID   = errors.New("invalid loan id")
	errMissingPatronID = errors.New("patron identity header is required")
)

type errorResponse struct {
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message"`
}

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleServiceError translates the lending error taxonomy into statuses.
// Unmapped errors are internal faults and deliberately stay opaque.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	status := http.StatusInternalServerError
	code := ""
	message := "An internal error occurred."

	switch {
	case errors.Is(err, application.ErrNotFound):
		status, message = http.StatusNotFound, "The requested resource was not found."
	case errors.Is(err, application.ErrUnauthorized):
		status, code = http.StatusForbidden, "AUTH_FORBIDDEN"
		message = "You are not allowed to perform this operation."
	case errors.Is(err, application.ErrUnavailable):
		status, code = http.StatusConflict, "NO_COPIES_AVAILABLE"
		message = "All copies of this book are currently on loan."
	case errors.Is(err, application.ErrLimitExceeded):
		status, code = http.StatusForbidden, "LOAN_LIMIT_REACHED"
		message = "You have reached your loan limit."
	case errors.Is(err, application.ErrAlreadyBorrowed):
		status, code = http.StatusConflict, "ALREADY_BORROWED"
		message = "You already have this book on loan."
	case errors.Is(err, application.ErrInvalidState):
		status, code = http.StatusConflict, "INVALID_LOAN_STATE"
		message = "This operation is not valid for the loan's current state."
	case errors.Is(err, application.ErrRenewalLimitReached):
		status, code = http.StatusConflict, "RENEWAL_LIMIT_REACHED"
		message = "No renewals remain for this loan."
	case errors.Is(err, application.ErrWaitlisted):
		status, code = http.StatusConflict, "BOOK_WAITLISTED"
		message = "Other patrons are waiting for this book, so it cannot be renewed."
	case errors.Is(err, application.ErrAlreadyWaitlisted):
		status, code = http.StatusConflict, "ALREADY_WAITLISTED"
		message = "You are already on the waitlist for this book."
	case errors.Is(err, application.ErrBookAvailable):
		status, code = http.StatusConflict, "BOOK_AVAILABLE"
		message = "This book is available now; borrow it instead of waiting."
	case errors.Is(err, application.ErrNotEligible):
		status, code = http.StatusForbidden, "BORROWING_SUSPENDED"
		message = "Your account is not currently allowed to borrow."
	case errors.Is(err, application.ErrNotLendable):
		status, code = http.StatusForbidden, "NOT_LENDABLE"
		message = "This title is not available for digital lending."
	case errors.Is(err, application.ErrGone):
		status, code = http.StatusGone, "LOAN_ENDED"
		message = "This loan has ended and the copy is no longer accessible."
	case errors.Is(err, application.ErrSourceCorrupt):
		status, code = http.StatusBadGateway, "MASTER_UNREADABLE"
		message = "The book's master file could not be processed."
	}

	if status == http.StatusInternalServerError {
		r.loggerFor(ctx).ErrorContext(ctx, "unhandled service error", "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: code, Message: message})
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}
