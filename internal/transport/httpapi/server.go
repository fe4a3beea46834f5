// Package httpapi accepts send commands over HTTP and serves health,
// metrics and optional pprof endpoints.
//
//	POST /v1/send   body: {"message": ..., "callback": ...}
//	GET  /healthz
//	GET  /metrics
//	     /debug/*   (pprof, when enabled)
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"pushbridge/internal/bridge"
	"pushbridge/internal/transport"
	logx "pushbridge/pkg/logx"
)

const maxBody = 1 << 20

type Config struct {
	Addr         string
	JWTSecret    string
	JWTIssuer    string
	CORSOrigins  []string
	Pprof        bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// HealthFunc reports readiness and a JSON-serializable body.
type HealthFunc func() (ready bool, body any)

type Options struct {
	Handler transport.Handler
	Metrics http.Handler
	Health  HealthFunc
	Logger  logx.Logger
}

type Server struct {
	cfg  Config
	opts Options
	log  logx.Logger
	mux  http.Handler
}

func New(cfg Config, opts Options) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	log := opts.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{cfg: cfg, opts: opts, log: log}
	s.mux = s.routes()
	return s
}

func (s *Server) Name() string { return "http" }

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.healthz)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		if s.cfg.JWTSecret != "" {
			r.Use(JWTAuth(s.cfg.JWTSecret, s.cfg.JWTIssuer))
		}
		r.Post("/v1/send", s.send)
		if s.cfg.Pprof {
			r.Mount("/debug", middleware.Profiler())
		}
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("rid", middleware.GetReqID(r.Context())),
		)
	})
}

// sendBody is the POST /v1/send payload. Command defaults to "send".
type sendBody struct {
	Command  string          `json:"command,omitempty"`
	Message  json.RawMessage `json:"message"`
	Callback json.RawMessage `json:"callback,omitempty"`
}

func (s *Server) send(w http.ResponseWriter, r *http.Request) {
	var body sendBody
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if body.Command == "" {
		body.Command = bridge.CommandSend
	}
	from := Subject(r.Context())
	if from == "" {
		from = r.RemoteAddr
	}
	cmd := bridge.Command{
		Command:  body.Command,
		Message:  body.Message,
		From:     transport.Source("http", from),
		Callback: body.Callback,
	}

	out, reply, err := s.opts.Handler.Handle(r.Context(), cmd)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	switch out {
	case bridge.Ignored:
		writeError(w, http.StatusBadRequest, "command ignored: expected send with a message")
	case bridge.Suppressed:
		writeJSON(w, http.StatusAccepted, map[string]any{"suppressed": true})
	default:
		status := http.StatusOK
		if reply.Error != nil {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, reply)
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ready": true})
		return
	}
	ready, body := s.opts.Health()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

// Run listens on cfg.Addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("http api listening", logx.String("addr", ln.Addr().String()), logx.Bool("auth", s.cfg.JWTSecret != ""))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		<-errCh
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
