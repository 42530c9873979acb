package rpc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"github.com/escrow-payments/escrow-server/pkg/escrow/engine"
	"github.com/escrow-payments/escrow-server/pkg/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000

	codeNotFound          = -32021
	codeUnauthorized      = -32022
	codeConflict          = -32023
	codeInsufficientFunds = -32024
)

// Server exposes the escrow engine over JSON-RPC 2.0.
type Server struct {
	log        *logrus.Entry
	engine     *engine.Engine
	router     chi.Router
	metricsApp *newrelic.Application
}

type ServerOption func(*Server)

// WithMetricsApplication attaches a New Relic application to the server. It
// gets injected into every request context so downstream metrics calls
// report against it.
func WithMetricsApplication(app *newrelic.Application) ServerOption {
	return func(s *Server) {
		s.metricsApp = app
	}
}

func NewServer(eng *engine.Engine, opts ...ServerOption) *Server {
	s := &Server{
		log:    logrus.StandardLogger().WithField("type", "escrow/rpc"),
		engine: eng,
	}

	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(newRelicMiddleware(s.metricsApp))
	r.Get("/health", s.handleHealth)
	r.Post("/", s.handleRPC)
	s.router = r

	return s
}

// newRelicMiddleware starts a transaction per request and injects the
// application to allow for any custom metrics, events, etc in downstream
// code. With no application configured the middleware is a passthrough.
func newRelicMiddleware(app *newrelic.Application) func(http.Handler) http.Handler {
	if app == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			txn := app.StartTransaction(r.Method + " " + r.URL.Path)
			defer txn.End()

			txn.SetWebRequestHTTP(r)
			w = txn.SetWebResponse(w)

			ctx := context.WithValue(r.Context(), metrics.NewRelicContextKey, app)
			ctx = newrelic.NewContext(ctx, txn)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Router returns the HTTP handler for the server, for mounting and testing.
func (s *Server) Router() http.Handler {
	return s.router
}

// Serve starts serving requests on the provided listen address. It blocks
// until the context is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errChan := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("serving json-rpc")
		errChan <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	requestID := uuid.New().String()
	log := s.log.WithField("request_id", requestID)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, nil, codeParseError, "failed to read request body")
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, codeParseError, "invalid json")
		return
	}
	if req.JSONRPC != jsonRPCVersion {
		writeError(w, req.ID, codeInvalidRequest, "jsonrpc version must be 2.0")
		return
	}

	log = log.WithField("method", req.Method)

	handler, ok := s.handlers()[req.Method]
	if !ok {
		writeError(w, req.ID, codeMethodNotFound, "method not found")
		return
	}

	start := time.Now()
	result, err := handler(r.Context(), req.Params)
	metrics.RecordCount(r.Context(), "escrow/rpc/"+req.Method+"/requests", 1)
	metrics.RecordDuration(r.Context(), "escrow/rpc/"+req.Method+"/latency", time.Since(start))
	if err != nil {
		code, message := mapEngineError(err)
		if code == codeServerError {
			log.WithError(err).Warn("failure handling rpc request")
		}
		writeError(w, req.ID, code, message)
		return
	}

	writeResult(w, req.ID, result)
}

type handlerFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

func (s *Server) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"escrow_create":       s.handleCreate,
		"escrow_complete":     s.handleComplete,
		"escrow_cancel":       s.handleCancel,
		"escrow_get":          s.handleGet,
		"escrow_getByVault":   s.handleGetByVault,
		"escrow_listByBuyer":  s.handleListByBuyer,
		"escrow_listBySeller": s.handleListBySeller,
		"escrow_countByBuyer": s.handleCountByBuyer,
	}
}

func mapEngineError(err error) (int, string) {
	switch err {
	case engine.ErrInvalidAmount, engine.ErrInvalidItemLabel, errInvalidParams:
		return codeInvalidParams, err.Error()
	case engine.ErrRecordNotFound:
		return codeNotFound, err.Error()
	case engine.ErrUnauthorized:
		return codeUnauthorized, err.Error()
	case engine.ErrRecordExists, engine.ErrAlreadyResolved:
		return codeConflict, err.Error()
	case engine.ErrInsufficientFunds:
		return codeInsufficientFunds, err.Error()
	case engine.ErrDerivationCollision:
		// Surfaced verbatim so the caller knows to retry with fresh inputs
		return codeServerError, err.Error()
	default:
		return codeServerError, "internal error"
	}
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	resp := rpcResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error: &rpcError{
			Code:    code,
			Message: message,
		},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := rpcResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Result:  result,
	}
	_ = json.NewEncoder(w).Encode(resp)
}
