package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"ledgerpos/backend/internal/cache"
	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/service"
)

type Options struct {
	AllowedOrigin    string
	Limiter          cache.KV
	LoginMaxAttempts int
	Logger           logrus.FieldLogger
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	log           logrus.FieldLogger
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Limiter == nil {
		opts.Limiter = cache.NewMemory()
	}
	log := opts.Logger.WithField("module", "httpapi")

	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: opts.AllowedOrigin,
		loginLimiter:  newAttemptLimiter(opts.Limiter, "login:", opts.LoginMaxAttempts, time.Minute, log),
		log:           log,
	}
}

// attemptLimiter counts attempts per key in a fixed window held in the KV
// store, so every instance behind a shared Redis sees the same counts.
type attemptLimiter struct {
	kv     cache.KV
	prefix string
	max    int
	window time.Duration
	log    logrus.FieldLogger
}

func newAttemptLimiter(kv cache.KV, prefix string, max int, window time.Duration, log logrus.FieldLogger) *attemptLimiter {
	if max < 1 {
		max = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{kv: kv, prefix: prefix, max: max, window: window, log: log}
}

// Allow fails open when the counter store is unreachable.
func (l *attemptLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil {
		return true
	}
	n, err := l.kv.Incr(ctx, l.prefix+key, l.window)
	if err != nil {
		l.log.WithError(err).Warn("attempt limiter unavailable")
		return true
	}
	return n <= int64(l.max)
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{a.allowedOrigin},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(limitJSONBody)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "", errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(domain.RoleSeller, domain.RoleManager))
			manager := r.With(requireRole(domain.RoleManager))

			r.Get("/operations/lock", a.handleCheckLock)
			r.Get("/operations", a.handleListOperations)
			r.Post("/operations", a.handleOpenOperation)
			r.Get("/operations/{id}", a.handleGetOperation)
			manager.Delete("/operations/{id}", a.handleCancelOperation)
			r.Post("/operations/{id}/changes", a.handleAppendChange)
			r.Post("/operations/{id}/sales", a.handleSellItem)
			r.Post("/operations/{id}/transfers", a.handleTransferItem)
			r.Post("/operations/{id}/corrections", a.handleParkCorrection)
			r.Delete("/operations/{id}/corrections/{correctionId}", a.handleResolveCorrection)

			r.Get("/state", a.handleListStateItems)
			r.Get("/sales", a.handleListSales)
			r.Get("/transfers", a.handleListTransfers)
			r.Get("/corrections", a.handleListCorrections)

			r.Get("/history", a.handleListHistory)
			r.Post("/history", a.handleRecordHistory)
			manager.Post("/history/purge", a.handlePurgeHistory)
			r.Get("/history/{id}", a.handleGetHistory)
			r.Get("/history/{id}/chain", a.handleHistoryChain)
			r.Patch("/history/{id}", a.handleUpdateHistory)
			manager.Delete("/history/{id}", a.handleDeactivateHistory)

			r.Get("/deferred-sales", a.handleListDeferredSales)
			r.Post("/deferred-sales", a.handleEnqueueDeferredSale)
			r.Get("/deferred-sales/summary", a.handleDeferredSummary)
			manager.Post("/deferred-sales/pay-all", a.handlePayAll)

			manager.Get("/audit-logs", a.handleAuditLogs)
			manager.Get("/users", a.handleListUsers)
			manager.Post("/users", a.handleCreateUser)
		})
	})

	return r
}

func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				writeError(w, http.StatusUnauthorized, "", errors.New("missing bearer token"))
				return
			}

			token := strings.TrimSpace(authorization[len("Bearer "):])
			actor, err := a.auth.ParseToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "", err)
				return
			}
			if !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, "", errors.New("forbidden role"))
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

// requireRole narrows an authenticated route; it runs after requireAuth.
func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok || !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, "", errors.New("forbidden role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(r.Context(), clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "", errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "", err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListUsers(r.Context())})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "", err)
		return
	}
	user, err := a.auth.CreateUser(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), date, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		a.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      status,
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Info("request")
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

func limitJSONBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		next.ServeHTTP(w, r)
	})
}

// fail maps a service error onto its status. Persistence failures and
// untyped errors are logged and hidden behind a generic 500.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusForKind(kind)
	if status >= 500 {
		a.log.WithFields(logrus.Fields{
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).WithError(err).Error("request failed")
	}
	writeError(w, status, kind, err)
}

func statusForKind(kind string) int {
	switch kind {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "ambiguous_snapshot":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "", errors.New("method not allowed"))
}

// writeError keeps the cause of a 5xx out of the body. A domain error
// still names the operation that failed, e.g. "list history: persistence
// failure".
func writeError(w http.ResponseWriter, status int, kind string, err error) {
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
		var derr *domain.Error
		if errors.As(err, &derr) && derr.Op != "" && derr.Kind != nil {
			msg = derr.Op + ": " + derr.Kind.Error()
		}
	}
	body := map[string]any{"error": msg}
	if kind != "" {
		body["kind"] = kind
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
