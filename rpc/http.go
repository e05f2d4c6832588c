package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"viewledger/core"
	"viewledger/core/types"
	"viewledger/native/paywall"
	"viewledger/services/eventindex"
)

const (
	jsonRPCVersion         = "2.0"
	defaultMaxRequestBytes = 1 << 20 // 1 MiB
	idempotencyHeader      = "Idempotency-Key"
	maxIdempotencyKeyLen   = 128
)

const (
	codeParseError          = -32700
	codeInvalidRequest      = -32600
	codeMethodNotFound      = -32601
	codeInvalidParams       = -32602
	codeUnauthorized        = -32001
	codeServerError         = -32000
	codeIdempotencyConflict = -32010
	codeRateLimited         = -32020
)

// Ledger is the slice of core.Processor the RPC surface needs.
type Ledger interface {
	Apply(ctx context.Context, tx *types.Transaction) (*core.Result, error)
	Video(id uint64, caller [20]byte) (*paywall.VideoView, error)
	ListVideos(offset, limit uint64) ([]paywall.VideoSummary, error)
	VideosByCreator(creator [20]byte) ([]uint64, error)
	HasAccess(id uint64, identity [20]byte) (bool, error)
	PlatformBalance() (*big.Int, error)
	Account(addr [20]byte) (*types.Account, error)
	Events(afterSeq uint64, limit int) ([]*types.EventRecord, error)
	Height() uint64
}

// EventIndex answers filtered event queries.
type EventIndex interface {
	Query(ctx context.Context, filter eventindex.Filter) ([]*types.EventRecord, error)
}

// ModuleObserver records per-method outcomes.
type ModuleObserver interface {
	Observe(module, method string, code int, duration time.Duration)
	RecordThrottle(module, reason string)
}

type noopObserver struct{}

func (noopObserver) Observe(string, string, int, time.Duration) {}
func (noopObserver) RecordThrottle(string, string)              {}

// ServerConfig wires the optional collaborators of a Server.
type ServerConfig struct {
	Auth         *Authenticator
	RateLimit    RateLimitConfig
	Idempotency  *IdempotencyStore
	Hub          *Hub
	Index        EventIndex
	Metrics      ModuleObserver
	Logger       *slog.Logger
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	ledger  Ledger
	auth    *Authenticator
	limiter *RateLimiter
	idem    *IdempotencyStore
	hub     *Hub
	index   EventIndex
	metrics ModuleObserver
	logger  *slog.Logger
	maxBody int64
	readTO  time.Duration
	writeTO time.Duration
	methods map[string]method
}

func NewServer(ledger Ledger, cfg ServerConfig) *Server {
	s := &Server{
		ledger:  ledger,
		auth:    cfg.Auth,
		idem:    cfg.Idempotency,
		hub:     cfg.Hub,
		index:   cfg.Index,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		maxBody: cfg.MaxBodyBytes,
		readTO:  cfg.ReadTimeout,
		writeTO: cfg.WriteTimeout,
	}
	if s.metrics == nil {
		s.metrics = noopObserver{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.maxBody <= 0 {
		s.maxBody = defaultMaxRequestBytes
	}
	if s.readTO <= 0 {
		s.readTO = 15 * time.Second
	}
	if s.writeTO <= 0 {
		s.writeTO = 15 * time.Second
	}
	s.limiter = NewRateLimiter(cfg.RateLimit, s.metrics)
	s.methods = s.routes()
	return s
}

// Handler returns the HTTP surface: JSON-RPC on POST /, health, metrics and
// the committed event stream.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.With(s.limiter.Middleware).Post("/", s.handle)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	if s.hub != nil {
		r.Get("/ws/events", s.hub.ServeHTTP)
	}
	return otelhttp.NewHandler(r, "viewledger-rpc")
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve is ListenAndServe over an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.readTO,
		WriteTimeout:      s.writeTO,
		IdleTimeout:       2 * time.Minute,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc server listening", slog.String("address", listener.Addr().String()))
		errCh <- srv.Serve(listener)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if s.hub != nil {
			s.hub.Close()
		}
		return srv.Shutdown(shutdownCtx)
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`

	status int
}

func (e *RPCError) httpStatus() int {
	if e == nil || e.status == 0 {
		return http.StatusBadRequest
	}
	return e.status
}

func newError(status, code int, message string, data interface{}) *RPCError {
	return &RPCError{Code: code, Message: message, Data: data, status: status}
}

func invalidParams(message string, data interface{}) *RPCError {
	return newError(http.StatusBadRequest, codeInvalidParams, message, data)
}

func encodeResponse(resp RPCResponse) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(RPCResponse{
			JSONRPC: jsonRPCVersion,
			ID:      resp.ID,
			Error:   &RPCError{Code: codeServerError, Message: "failed to encode response"},
		})
	}
	return append(data, '\n')
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	writeRaw(w, status, encodeResponse(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}))
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	writeRaw(w, http.StatusOK, encodeResponse(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"height": s.ledger.Height(),
	})
}

// handle decodes the JSON-RPC envelope, authenticates the caller as the
// method requires and dispatches.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, s.maxBody)
	defer func() {
		_ = reader.Close()
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.maxBody)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	m, ok := s.methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return
	}

	start := time.Now()
	module := moduleOf(req.Method)

	caller, authErr := s.authenticate(r, m.auth)
	if authErr != nil {
		s.metrics.Observe(module, req.Method, authErr.Code, time.Since(start))
		writeError(w, authErr.httpStatus(), req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if m.mutating && key != "" && s.idem != nil {
		s.handleIdempotent(w, r, req, m, caller, key, body, start)
		return
	}

	status, payload, code := s.invoke(r.Context(), req, m, caller)
	s.metrics.Observe(module, req.Method, code, time.Since(start))
	writeRaw(w, status, payload)
}

func (s *Server) handleIdempotent(w http.ResponseWriter, r *http.Request, req *RPCRequest, m method, caller [20]byte, key string, body []byte, start time.Time) {
	module := moduleOf(req.Method)
	if len(key) > maxIdempotencyKeyLen {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "idempotency key too long", nil)
		return
	}
	scoped := scopeIdempotencyKey(caller, req.Method, key)
	fingerprint := requestFingerprint(req)

	release := s.idem.lock(scoped)
	defer release()

	cached, found, err := s.idem.Get(scoped, time.Now())
	if err != nil {
		s.logger.Error("rpc: idempotency lookup failed", slog.String("method", req.Method), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "idempotency store unavailable", nil)
		return
	}
	if found {
		if cached.Fingerprint != fingerprint {
			s.metrics.Observe(module, req.Method, codeIdempotencyConflict, time.Since(start))
			writeError(w, http.StatusConflict, req.ID, codeIdempotencyConflict, "idempotency key reused with different parameters", nil)
			return
		}
		w.Header().Set("Idempotent-Replayed", "true")
		writeRaw(w, cached.StatusCode, withResponseID(cached.Body, req.ID))
		return
	}

	status, payload, code := s.invoke(r.Context(), req, m, caller)
	s.metrics.Observe(module, req.Method, code, time.Since(start))
	if status < http.StatusInternalServerError {
		if err := s.idem.Put(scoped, IdempotencyRecord{
			StatusCode:  status,
			Body:        payload,
			Fingerprint: fingerprint,
		}, time.Now()); err != nil {
			s.logger.Warn("rpc: idempotency store failed", slog.String("method", req.Method), slog.Any("error", err))
		}
	}
	writeRaw(w, status, payload)
}

// invoke runs the method and renders the response envelope. code is zero on
// success.
func (s *Server) invoke(ctx context.Context, req *RPCRequest, m method, caller [20]byte) (int, []byte, int) {
	result, rpcErr := m.handler(ctx, caller, req)
	if rpcErr != nil {
		return rpcErr.httpStatus(), encodeResponse(RPCResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Error: rpcErr}), rpcErr.Code
	}
	return http.StatusOK, encodeResponse(RPCResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result}), 0
}

func (s *Server) authenticate(r *http.Request, mode authMode) ([20]byte, *RPCError) {
	var zero [20]byte
	if mode == authNone {
		return zero, nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" && mode == authOptional {
		return zero, nil
	}
	if s.auth == nil {
		return zero, newError(http.StatusUnauthorized, codeUnauthorized, "RPC authentication not configured", nil)
	}
	caller, err := s.auth.Identity(header)
	if err != nil {
		s.logger.Debug("rpc: token rejected", slog.Any("error", err))
		return zero, newError(http.StatusUnauthorized, codeUnauthorized, "invalid credentials", err.Error())
	}
	return caller, nil
}

func moduleOf(method string) string {
	if idx := strings.IndexByte(method, '_'); idx > 0 {
		return method[:idx]
	}
	return method
}

// decodeParams unmarshals the single parameter object into dst. A missing
// parameter leaves dst untouched when optional is true.
func decodeParams(req *RPCRequest, dst interface{}, optional bool) *RPCError {
	switch len(req.Params) {
	case 0:
		if optional {
			return nil
		}
		return invalidParams("exactly one parameter object expected", nil)
	case 1:
		dec := json.NewDecoder(bytes.NewReader(req.Params[0]))
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil {
			return invalidParams("invalid parameter object", err.Error())
		}
		return nil
	default:
		return invalidParams("exactly one parameter object expected", nil)
	}
}
