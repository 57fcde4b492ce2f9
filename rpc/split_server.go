package rpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"daosplit/core/events"
	"daosplit/gateway/middleware"
	"daosplit/native/split"
	"daosplit/observability/metrics"
)

const (
	// ScopeRead guards the read routes when authentication is enabled.
	ScopeRead = "split:read"
	// ScopeWrite guards the state-changing routes.
	ScopeWrite = "split:write"

	maxBodyBytes      = 1 << 20
	defaultPendingCap = 500
)

var errCallerRequired = errors.New("caller account required")

// Config captures the dependencies of the split HTTP surface.
type Config struct {
	Engine *split.Engine
	// Buffer receives every event emitted during an operation. It is flushed
	// when the operation succeeds and dropped when it fails.
	Buffer        *events.Buffer
	Feed          *events.Recorder
	Metrics       *metrics.SplitMetrics
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
}

// Server exposes the split engine over HTTP. Engine calls are serialised
// behind a single mutex.
type Server struct {
	mu      sync.Mutex
	engine  *split.Engine
	buffer  *events.Buffer
	feed    *events.Recorder
	metrics *metrics.SplitMetrics
	logger  *slog.Logger
	router  http.Handler
}

// NewServer builds the router. Engine and Buffer are required.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("rpc: split engine required")
	}
	if cfg.Buffer == nil {
		return nil, errors.New("rpc: event buffer required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		engine:  cfg.Engine,
		buffer:  cfg.Buffer,
		feed:    cfg.Feed,
		metrics: cfg.Metrics,
		logger:  logger,
	}
	srv.router = srv.buildRouter(cfg)
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.CORS))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	route := func(router chi.Router, name string, scope string, limited bool) chi.Router {
		chain := router.With()
		if cfg.Observability != nil {
			chain = chain.With(cfg.Observability.Middleware(name))
		}
		if cfg.Authenticator != nil {
			chain = chain.With(cfg.Authenticator.Middleware(scope))
		}
		if limited && cfg.RateLimiter != nil {
			chain = chain.With(cfg.RateLimiter.Middleware(name))
		}
		return chain
	}

	r.Route("/v1/split", func(api chi.Router) {
		route(api, "status", ScopeRead, false).Get("/status", s.handleStatus)
		route(api, "deposit_info", ScopeRead, false).Get("/deposits/{token}", s.handleDepositInfo)
		route(api, "account", ScopeRead, false).Get("/accounts/{account}", s.handleAccount)
		route(api, "treasury", ScopeRead, false).Get("/treasury", s.handleTreasury)
		route(api, "pending", ScopeRead, false).Get("/pending", s.handlePending)
		route(api, "events", ScopeRead, false).Get("/events", s.handleEvents)

		route(api, "deposit", ScopeWrite, true).Post("/deposit", s.handleDeposit)
		route(api, "withdraw", ScopeWrite, true).Post("/withdraw", s.handleWithdraw)
		route(api, "move", ScopeWrite, true).Post("/move", s.handleMove)
		route(api, "trigger", ScopeWrite, true).Post("/trigger", s.handleTrigger)
		route(api, "redeem", ScopeWrite, true).Post("/redeem", s.handleRedeem)
	})
	return r
}

// exec runs a state-changing engine call and settles the buffered events.
func (s *Server) exec(operation string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := fn()
	if err != nil {
		s.buffer.Drop()
	} else {
		s.buffer.Flush()
	}
	if s.metrics != nil {
		s.metrics.ObserveOperation(operation, err)
		if status, statusErr := s.engine.Status(); statusErr == nil {
			s.metrics.ObserveStatus(status)
		}
	}
	if err != nil {
		s.logger.Info("split operation rejected",
			slog.String("operation", operation),
			slog.String("reason", split.Reason(err)),
			slog.Any("error", err))
	}
	return err
}

// read runs a read-only engine call under the same lock as exec.
func (s *Server) read(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	w.Header().Set(middleware.ReasonHeader, reason)
	writeJSON(w, status, errorBody{Error: errorDetail{Reason: reason, Message: message}})
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	reason := split.Reason(err)
	status := statusForReason(reason)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("split engine failure", slog.Any("error", err))
		message = "internal error"
	}
	writeError(w, status, reason, message)
}

func statusForReason(reason string) int {
	switch reason {
	case "not_authorized", "not_depositor":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "empty_batch", "duplicate_token", "note_too_long":
		return http.StatusBadRequest
	case "withdrawals_closed", "not_in_post_split_period", "already_triggered",
		"already_redeemed", "split_not_triggered", "no_eligible_deposits",
		"already_deposited", "split_not_reached", "reentrant_call":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

func requireCaller(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok || caller == ([20]byte{}) {
		writeError(w, http.StatusUnauthorized, "caller_required", errCallerRequired.Error())
		return [20]byte{}, false
	}
	return caller, true
}
