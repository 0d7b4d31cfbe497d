package http

import (
	"net/http"
	"strings"
)

// RouterConfig lists the handlers and middleware to mount. Nil handlers
// leave their routes unregistered.
type RouterConfig struct {
	Lending    *LendingHandler
	Health     *HealthHandler
	Metrics    http.Handler
	Middleware []func(http.Handler) http.Handler
}

// NewRouter assembles the service's HTTP surface.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Lending != nil {
		mux.HandleFunc("/api/books/", func(w http.ResponseWriter, r *http.Request) {
			bookID, action, ok := splitResourcePath(r.URL.Path, "/api/books/")
			if !ok {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			switch action {
			case "checkout":
				cfg.Lending.Checkout(w, r, bookID)
			case "waitlist":
				cfg.Lending.JoinWaitlist(w, r, bookID)
			default:
				http.NotFound(w, r)
			}
		})

		mux.HandleFunc("/api/loans/", func(w http.ResponseWriter, r *http.Request) {
			loanID, action, ok := splitResourcePath(r.URL.Path, "/api/loans/")
			if !ok {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			switch action {
			case "return":
				cfg.Lending.Return(w, r, loanID)
			case "renew":
				cfg.Lending.Renew(w, r, loanID)
			default:
				http.NotFound(w, r)
			}
		})

		mux.HandleFunc("/loans/", func(w http.ResponseWriter, r *http.Request) {
			token, action, ok := splitResourcePath(r.URL.Path, "/loans/")
			if !ok || action != "download" {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Lending.Download(w, r, token)
		})
	}

	if cfg.Health != nil {
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Health.Report(w, r)
		})
	}

	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics)
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		handler = cfg.Middleware[i](handler)
	}
	return handler
}

// splitResourcePath parses "<prefix>{id}/{action}" into its parts.
func splitResourcePath(path, prefix string) (id, action string, ok bool) {
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
