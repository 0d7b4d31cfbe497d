package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/digital-lending/internal/application"
)

type lendingService interface {
	Checkout(ctx context.Context, principal application.Principal, bookID string) (application.Loan, error)
	Return(ctx context.Context, principal application.Principal, loanID string) (application.Loan, error)
	Renew(ctx context.Context, principal application.Principal, loanID string) (application.Loan, error)
	JoinWaitlist(ctx context.Context, principal application.Principal, bookID string) (int, error)
	RedeemAccessToken(ctx context.Context, principal application.Principal, token string) (application.LoanFile, error)
}

// LendingHandler exposes the lending operations over HTTP.
type LendingHandler struct {
	service   lendingService
	responder responder
}

// NewLendingHandler wires a handler over the lending service.
func NewLendingHandler(service lendingService, logger *slog.Logger) *LendingHandler {
	return &LendingHandler{service: service, responder: newResponder(logger)}
}

type loanResponse struct {
	ID           string  `json:"id"`
	BookID       string  `json:"book_id"`
	Status       string  `json:"status"`
	Title        string  `json:"title"`
	Author       string  `json:"author"`
	CheckedOutAt string  `json:"checked_out_at"`
	DueAt        string  `json:"due_at"`
	ReturnedAt   *string `json:"returned_at,omitempty"`
	RenewalCount int     `json:"renewal_count"`
	MaxRenewals  int     `json:"max_renewals"`
	AccessToken  string  `json:"access_token,omitempty"`
	DownloadURL  string  `json:"download_url,omitempty"`
}

func toLoanResponse(loan application.Loan, includeToken bool) loanResponse {
	resp := loanResponse{
		ID:           loan.ID,
		BookID:       loan.BookID,
		Status:       string(loan.Status),
		Title:        loan.TitleSnapshot,
		Author:       loan.AuthorSnapshot,
		CheckedOutAt: loan.CheckedOutAt.Format(time.RFC3339),
		DueAt:        loan.DueAt.Format(time.RFC3339),
		RenewalCount: loan.RenewalCount,
		MaxRenewals:  loan.MaxRenewals,
	}
	if loan.ReturnedAt != nil {
		returned := loan.ReturnedAt.Format(time.RFC3339)
		resp.ReturnedAt = &returned
	}
	if includeToken {
		resp.AccessToken = loan.AccessToken
		resp.DownloadURL = "/loans/" + loan.AccessToken + "/download"
	}
	return resp
}

// Checkout handles POST /api/books/{id}/checkout.
func (h *LendingHandler) Checkout(w http.ResponseWriter, r *http.Request, bookID string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if bookID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidBookID)
		return
	}
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingPatronID)
		return
	}

	loan, err := h.service.Checkout(r.Context(), principal, bookID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toLoanResponse(loan, true))
}

// Return handles POST /api/loans/{id}/return.
func (h *LendingHandler) Return(w http.ResponseWriter, r *http.Request, loanID string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if loanID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidLoanID)
		return
	}
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingPatronID)
		return
	}

	loan, err := h.service.Return(r.Context(), principal, loanID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toLoanResponse(loan, false))
}

// Renew handles POST /api/loans/{id}/renew.
func (h *LendingHandler) Renew(w http.ResponseWriter, r *http.Request, loanID string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if loanID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidLoanID)
		return
	}
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingPatronID)
		return
	}

	loan, err := h.service.Renew(r.Context(), principal, loanID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toLoanResponse(loan, false))
}

type waitlistResponse struct {
	BookID   string `json:"book_id"`
	Position int    `json:"position"`
}

// JoinWaitlist handles POST /api/books/{id}/waitlist.
func (h *LendingHandler) JoinWaitlist(w http.ResponseWriter, r *http.Request, bookID string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if bookID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidBookID)
		return
	}
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingPatronID)
		return
	}

	position, err := h.service.JoinWaitlist(r.Context(), principal, bookID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, waitlistResponse{BookID: bookID, Position: position})
}

// Download handles GET /loans/{token}/download, streaming the circulation
// copy. Ended loans answer 410 so clients stop retrying a dead link.
func (h *LendingHandler) Download(w http.ResponseWriter, r *http.Request, token string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingPatronID)
		return
	}

	file, err := h.service.RedeemAccessToken(r.Context(), principal, token)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(file.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(file.Data); err != nil {
		h.responder.loggerFor(r.Context()).ErrorContext(r.Context(), "failed to stream circulation copy", "error", err)
	}
}
