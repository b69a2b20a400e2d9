package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Naiemjoy1/mfs-server/internal/auth"
	"github.com/Naiemjoy1/mfs-server/internal/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

const maxBodyBytes = 1 << 20

type Handler struct {
	engine   *service.Engine
	accounts *service.Accounts
	tokens   auth.TokenParser
	logger   *slog.Logger
}

func NewHandler(engine *service.Engine, accounts *service.Accounts, tokens auth.TokenParser, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, accounts: accounts, tokens: tokens, logger: logger}
}

// Routes builds the HTTP surface. Every response passes through the
// metrics middleware and the CORS handler.
func (h *Handler) Routes(corsOrigins []string) http.Handler {
	r := mux.NewRouter()
	r.Use(h.instrument)

	authed := auth.Middleware(h.tokens)
	protect := func(fn http.HandlerFunc) http.Handler { return authed(fn) }

	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Accounts
	r.HandleFunc("/users", h.RegisterHandler).Methods(http.MethodPost)
	r.HandleFunc("/login", h.LoginHandler).Methods(http.MethodPost)
	r.Handle("/users", protect(h.ListAccountsHandler)).Methods(http.MethodGet)
	r.HandleFunc("/user/{email}", h.LookupAccountHandler).Methods(http.MethodGet)
	r.Handle("/users/status/{email}", protect(h.UpdateStatusHandler)).Methods(http.MethodPatch)
	r.Handle("/users/admin/{id}", protect(h.ChangeRoleHandler)).Methods(http.MethodPatch)
	r.Handle("/users/{id}", protect(h.DeleteAccountHandler)).Methods(http.MethodDelete)

	// Ledger
	for path, op := range transferRoutes {
		r.Handle(path, protect(h.transferHandler(op))).Methods(http.MethodPost)
	}
	r.Handle("/history", protect(h.HistoryHandler)).Methods(http.MethodGet)
	r.Handle("/history/{id}", protect(h.GetTransactionHandler)).Methods(http.MethodGet)
	r.Handle("/history/{id}", protect(h.SettleHandler)).Methods(http.MethodPatch)

	return cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Location"},
		AllowCredentials: true,
		MaxAge:           300,
	})(r)
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument labels metrics with the route template so ids do not explode
// cardinality.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}

		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method, endpoint))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		timer.ObserveDuration()

		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

// statusFor maps service error kinds onto HTTP status codes.
func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindInvalidAmount, service.KindInsufficientBalance:
		return http.StatusUnprocessableEntity
	case service.KindConflict, service.KindAlreadyExists:
		return http.StatusConflict
	case service.KindRateLimited:
		return http.StatusTooManyRequests
	case service.KindInvalidRequest:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.KindOf(err)
	msg := err.Error()
	if kind == service.KindInternal {
		msg = "Internal server error"
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondWithJSON(w, statusFor(kind), map[string]string{"error": msg, "kind": string(kind)})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
