package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/digital-lending/internal/application"
	"github.com/example/digital-lending/internal/scheduler"
)

type lendingServiceStub struct {
	loan     application.Loan
	file     application.LoanFile
	position int
	err      error

	checkoutBook string
	returnLoan   string
	renewLoan    string
	waitlistBook string
	redeemToken  string
	principal    application.Principal
}

func (s *lendingServiceStub) Checkout(_ context.Context, principal application.Principal, bookID string) (application.Loan, error) {
	s.principal = principal
	s.checkoutBook = bookID
	return s.loan, s.err
}

func (s *lendingServiceStub) Return(_ context.Context, principal application.Principal, loanID string) (application.Loan, error) {
	s.principal = principal
	s.returnLoan = loanID
	return s.loan, s.err
}

func (s *lendingServiceStub) Renew(_ context.Context, principal application.Principal, loanID string) (application.Loan, error) {
	s.principal = principal
	s.renewLoan = loanID
	return s.loan, s.err
}

func (s *lendingServiceStub) JoinWaitlist(_ context.Context, principal application.Principal, bookID string) (int, error) {
	s.principal = principal
	s.waitlistBook = bookID
	return s.position, s.err
}

func (s *lendingServiceStub) RedeemAccessToken(_ context.Context, principal application.Principal, token string) (application.LoanFile, error) {
	s.principal = principal
	s.redeemToken = token
	return s.file, s.err
}

func newTestRouter(stub *lendingServiceStub) http.Handler {
	return NewRouter(RouterConfig{
		Lending:    NewLendingHandler(stub, nil),
		Middleware: []func(http.Handler) http.Handler{ResolvePrincipal()},
	})
}

func sampleLoan() application.Loan {
	file := "loan_loan-1.pdf"
	return application.Loan{
		ID:              "loan-1",
		AccessToken:     "token-1",
		PatronID:        "patron-1",
		BookID:          "book-1",
		CheckedOutAt:    time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC),
		DueAt:           time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC),
		MaxRenewals:     2,
		CirculationFile: &file,
		Status:          application.LoanStatusActive,
		TitleSnapshot:   "Dune",
		AuthorSnapshot:  "Frank Herbert",
	}
}

func TestLendingHandler_Checkout_Created(t *testing.T) {
	t.Parallel()

	stub := &lendingServiceStub{loan: sampleLoan()}
	router := newTestRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/api/books/book-1/checkout", nil)
	req.Header.Set("X-Patron-ID", "patron-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if stub.checkoutBook != "book-1" {
		t.Fatalf("handler passed book id %q", stub.checkoutBook)
	}
	if stub.principal.PatronID != "patron-1" || stub.principal.IsAdmin {
		t.Fatalf("unexpected principal %+v", stub.principal)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp["access_token"] != "token-1" {
		t.Fatalf("checkout response must include the access token, got %v", resp["access_token"])
	}
	if resp["download_url"] != "/loans/token-1/download" {
		t.Fatalf("unexpected download URL %v", resp["download_url"])
	}
}

func TestLendingHandler_Checkout_RequiresIdentity(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&lendingServiceStub{loan: sampleLoan()})

	req := httptest.NewRequest(http.MethodPost, "/api/books/book-1/checkout", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity headers, got %d", rec.Code)
	}
}

func TestLendingHandler_AdminHeaderSetsPrincipal(t *testing.T) {
	t.Parallel()

	stub := &lendingServiceStub{loan: sampleLoan()}
	router := newTestRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/api/loans/loan-1/return", nil)
	req.Header.Set("X-Patron-ID", "admin-1")
	req.Header.Set("X-Patron-Admin", "true")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !stub.principal.IsAdmin {
		t.Fatal("admin header should mark the principal as admin")
	}
	if stub.returnLoan != "loan-1" {
		t.Fatalf("handler passed loan id %q", stub.returnLoan)
	}
}

func TestLendingHandler_ErrorStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unavailable", application.ErrUnavailable, http.StatusConflict},
		{"limit exceeded", application.ErrLimitExceeded, http.StatusForbidden},
		{"already borrowed", application.ErrAlreadyBorrowed, http.StatusConflict},
		{"invalid state", application.ErrInvalidState, http.StatusConflict},
		{"renewal limit", application.ErrRenewalLimitReached, http.StatusConflict},
		{"waitlisted", application.ErrWaitlisted, http.StatusConflict},
		{"not found", application.ErrNotFound, http.StatusNotFound},
		{"unauthorized", application.ErrUnauthorized, http.StatusForbidden},
		{"not eligible", application.ErrNotEligible, http.StatusForbidden},
		{"source corrupt", application.ErrSourceCorrupt, http.StatusBadGateway},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&lendingServiceStub{err: tc.err})

			req := httptest.NewRequest(http.MethodPost, "/api/books/book-1/checkout", nil)
			req.Header.Set("X-Patron-ID", "patron-1")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d for %v, got %d", tc.wantStatus, tc.err, rec.Code)
			}
		})
	}
}

func TestLendingHandler_Download_StreamsPDF(t *testing.T) {
	t.Parallel()

	stub := &lendingServiceStub{
		file: application.LoanFile{Filename: "Dune.pdf", Data: []byte("%PDF-1.7 fake")},
	}
	router := newTestRouter(stub)

	req := httptest.NewRequest(http.MethodGet, "/loans/token-1/download", nil)
	req.Header.Set("X-Patron-ID", "patron-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if stub.redeemToken != "token-1" {
		t.Fatalf("handler passed token %q", stub.redeemToken)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="Dune.pdf"` {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	if rec.Body.String() != "%PDF-1.7 fake" {
		t.Fatal("body does not match the circulation copy")
	}
}

func TestLendingHandler_Download_GoneLoan(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&lendingServiceStub{err: application.ErrGone})

	req := httptest.NewRequest(http.MethodGet, "/loans/token-1/download", nil)
	req.Header.Set("X-Patron-ID", "patron-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusGone {
		t.Fatalf("expected 410 for an ended loan, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct == "application/pdf" {
		t.Fatal("an ended loan must never answer with file content")
	}
}

func TestLendingHandler_JoinWaitlist_ReturnsPosition(t *testing.T) {
	t.Parallel()

	stub := &lendingServiceStub{position: 3}
	router := newTestRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/api/books/book-1/waitlist", nil)
	req.Header.Set("X-Patron-ID", "patron-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp waitlistResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp.Position != 3 || resp.BookID != "book-1" {
		t.Fatalf("unexpected waitlist response %+v", resp)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&lendingServiceStub{})

	req := httptest.NewRequest(http.MethodGet, "/api/books/book-1/checkout", nil)
	req.Header.Set("X-Patron-ID", "patron-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
		t.Fatalf("unexpected Allow header %q", allow)
	}
}

func TestRouter_UnknownAction(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&lendingServiceStub{})

	req := httptest.NewRequest(http.MethodPost, "/api/books/book-1/burn", nil)
	req.Header.Set("X-Patron-ID", "patron-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown action, got %d", rec.Code)
	}
}

type jobReporterStub struct {
	statuses []scheduler.JobStatus
}

func (s *jobReporterStub) Snapshot() []scheduler.JobStatus {
	return s.statuses
}

type pingerStub struct {
	err error
}

func (p *pingerStub) Ping(context.Context) error {
	return p.err
}

func TestHealthHandler_ReportsOK(t *testing.T) {
	t.Parallel()

	handler := NewHealthHandler(&jobReporterStub{statuses: []scheduler.JobStatus{
		{Name: "expire_loans", Runs: 4, LastRun: time.Now()},
	}}, &pingerStub{}, nil)
	router := NewRouter(RouterConfig{Health: handler})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp.Status != "ok" || resp.Storage != "ok" || len(resp.Jobs) != 1 {
		t.Fatalf("unexpected health response %+v", resp)
	}
}

func TestHealthHandler_DegradedOnRepeatedJobFailures(t *testing.T) {
	t.Parallel()

	handler := NewHealthHandler(&jobReporterStub{statuses: []scheduler.JobStatus{
		{Name: "expire_loans", ConsecutiveFailures: 3, LastError: "database locked"},
	}}, &pingerStub{}, nil)
	router := NewRouter(RouterConfig{Health: handler})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestHealthHandler_DegradedOnStorageFailure(t *testing.T) {
	t.Parallel()

	handler := NewHealthHandler(nil, &pingerStub{err: errors.New("no such file")}, nil)
	router := NewRouter(RouterConfig{Health: handler})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
