package rpc

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tolelom/tolask/metrics"
)

// ServerOptions configures a Server. Zero values disable the feature.
type ServerOptions struct {
	// AuthToken, if set, must be sent as "Authorization: Bearer <token>".
	AuthToken string
	Logger    logrus.FieldLogger
	Metrics   *metrics.Metrics
	// Gatherer is served at /metrics when set.
	Gatherer prometheus.Gatherer
	// TLS, if set, serves HTTPS instead of plain HTTP.
	TLS *tls.Config
}

// Server is a JSON-RPC 2.0 HTTP server.
type Server struct {
	handler *Handler
	addr    string
	opts    ServerOptions
	log     logrus.FieldLogger
	srv     *http.Server
	ln      net.Listener
}

// NewServer creates a Server on addr.
func NewServer(addr string, handler *Handler, opts ServerOptions) *Server {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{handler: handler, addr: addr, opts: opts, log: log}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Routes returns the HTTP handler serving RPC requests and, if configured,
// the metrics endpoint.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveHTTP)
	if s.opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start binds the port synchronously (so callers know immediately if binding
// fails) then serves requests in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	if s.opts.TLS != nil {
		ln = tls.NewListener(ln, s.opts.TLS)
	}
	s.ln = ln
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("rpc server error")
		}
	}()
	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the HTTP server, waiting up to 5 seconds for
// in-flight requests to complete.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.opts.AuthToken == "" {
		return true
	}
	got := []byte(r.Header.Get("Authorization"))
	want := []byte("Bearer " + s.opts.AuthToken)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)
	log := s.log.WithField("request_id", requestID)

	if !s.authorized(r) {
		log.Warn("unauthorized rpc request")
		writeJSON(w, errResponse(nil, CodeUnauthorized, "unauthorized"))
		return
	}

	// Limit request body to 1 MB to prevent memory exhaustion.
	r.Body = http.MaxBytesReader(w, r.Body, 1*1024*1024)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, errResponse(nil, CodeParseError, err.Error()))
		return
	}
	if req.JSONRPC != "2.0" {
		writeJSON(w, errResponse(req.ID, CodeInvalidRequest, "jsonrpc must be '2.0'"))
		return
	}

	start := time.Now()
	resp := s.handler.Dispatch(req)
	elapsed := time.Since(start)
	if s.opts.Metrics != nil {
		s.opts.Metrics.RequestDuration.WithLabelValues(req.Method).Observe(elapsed.Seconds())
	}

	entry := log.WithFields(logrus.Fields{"method": req.Method, "duration": elapsed})
	if resp.Error != nil {
		entry.WithField("code", resp.Error.Code).Info(resp.Error.Message)
	} else {
		entry.Debug("rpc request served")
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
