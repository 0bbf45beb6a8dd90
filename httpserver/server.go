package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"

	"github.com/wuxxin/serve-once/config"
	"github.com/wuxxin/serve-once/credstage"
	"github.com/wuxxin/serve-once/cryptoutils"
)

// Per-connection I/O deadlines. A stalled client must not be able to consume
// the whole service budget; the overall timeout only bounds the wait for an
// admitted request.
const (
	readTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second

	// shutdownTimeout bounds the graceful drain after a delivery.
	shutdownTimeout = 5 * time.Second
)

// Outcome is the terminal state of a delivery run.
type Outcome int

const (
	// OutcomeDelivered means exactly one request passed all admission
	// checks and received the payload.
	OutcomeDelivered Outcome = iota

	// OutcomeTimedOut means no request passed admission within the
	// configured wait budget.
	OutcomeTimedOut

	// OutcomeFatal means setup failed before the wait began, or the run
	// was interrupted.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "fatal"
	}
}

// Server owns the single TLS listener for one delivery run and drives it to
// a terminal state: exactly one successful delivery, a timeout, or a fatal
// setup error.
type Server struct {
	cfg    *config.Config
	log    *slog.Logger
	stdout io.Writer

	handler  *Handler
	stager   *credstage.Stager
	listener net.Listener
	srv      *http.Server
}

// New creates a server for one run of the given configuration.
func New(cfg *config.Config, log *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		log:    log,
		stdout: os.Stdout,
	}
}

// Listen stages the credential, assembles the TLS context and binds the
// listening socket. Any error here is fatal: it happens before the wait
// loop, and the run never enters the waiting state.
func (s *Server) Listen() error {
	keyPEM, certPEM, err := s.credential()
	if err != nil {
		return err
	}

	stager, err := credstage.New(s.log, keyPEM, certPEM)
	if err != nil {
		return err
	}

	tlsConfig, err := s.buildTLSConfig(stager)
	if err != nil {
		stager.Close()
		return err
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		stager.Close()
		return fmt.Errorf("failed to bind %s: %w", s.cfg.ListenAddr(), err)
	}

	s.handler = NewHandler(s.cfg, s.log, s.stdout)
	s.stager = stager
	s.listener = tls.NewListener(ln, tlsConfig)
	s.srv = &http.Server{
		Handler:      s.getRouter(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		ErrorLog:     slog.NewLogLogger(s.log.Handler(), slog.LevelDebug),
	}
	return nil
}

// Addr returns the bound listen address. Only valid after Listen; with
// serve_port 0 this carries the kernel-assigned port.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve waits for the one admitted request or the timeout, whichever comes
// first, then tears the listener down. The staging directory is removed on
// every path.
func (s *Server) Serve(ctx context.Context) (Outcome, error) {
	defer s.stager.Close()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.srv.Serve(s.listener)
	}()

	s.log.Info("waiting for request",
		"addr", s.Addr(), "timeoutSeconds", s.cfg.TimeoutSeconds, "mtls", s.cfg.MutualTLS)

	timeout := time.NewTimer(time.Duration(s.cfg.TimeoutSeconds) * time.Second)
	defer timeout.Stop()

	select {
	case <-s.handler.Done():
		s.shutdown()
		return OutcomeDelivered, nil

	case <-timeout.C:
		// A delivery racing the timeout edge still counts.
		select {
		case <-s.handler.Done():
			s.shutdown()
			return OutcomeDelivered, nil
		default:
		}
		s.srv.Close()
		return OutcomeTimedOut, fmt.Errorf("no request passed admission within %d seconds", s.cfg.TimeoutSeconds)

	case <-ctx.Done():
		s.srv.Close()
		return OutcomeFatal, fmt.Errorf("interrupted: %w", ctx.Err())

	case err := <-serveErr:
		return OutcomeFatal, fmt.Errorf("accept loop failed: %w", err)
	}
}

// Run performs a complete delivery run: setup, wait, teardown.
func (s *Server) Run(ctx context.Context) (Outcome, error) {
	if err := s.Listen(); err != nil {
		return OutcomeFatal, err
	}
	return s.Serve(ctx)
}

// credential returns the configured key and certificate, or a freshly
// generated self-signed pair when either is missing.
func (s *Server) credential() ([]byte, []byte, error) {
	if s.cfg.Key != "" && s.cfg.Cert != "" {
		key, err := cryptoutils.NewTLSKey([]byte(s.cfg.Key))
		if err != nil {
			return nil, nil, err
		}
		cert, err := cryptoutils.NewTLSCert([]byte(s.cfg.Cert))
		if err != nil {
			return nil, nil, err
		}
		return key, cert, nil
	}

	s.log.Warn("no credential configured, generating self-signed certificate",
		"hostname", s.cfg.Hostname)
	key, cert, err := cryptoutils.SelfSignedCertificate(s.cfg.Hostname)
	if err != nil {
		return nil, nil, err
	}
	return key, cert, nil
}

// buildTLSConfig assembles the server TLS context from the staged credential
// pipes. Certificate presence for clients is enforced here, at the handshake;
// the identity value is an admission concern.
func (s *Server) buildTLSConfig(stager *credstage.Stager) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(stager.CertPath(), stager.KeyPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load staged credential: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if s.cfg.CACert != "" {
		ca, err := cryptoutils.NewCACert([]byte(s.cfg.CACert))
		if err != nil {
			return nil, err
		}
		pool, err := ca.CertPool()
		if err != nil {
			return nil, err
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	}

	if s.cfg.MutualTLS {
		if tlsConfig.ClientCAs == nil {
			return nil, errors.New("mutual TLS requires a CA certificate")
		}
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return tlsConfig, nil
}

// getRouter mounts the admission handler on a catch-all route so every
// method and path goes through the same pipeline.
func (s *Server) getRouter() http.Handler {
	mux := chi.NewRouter()
	mux.Use(s.httpLogger)
	mux.Handle("/*", s.handler)
	return mux
}

func (s *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(s.log, next)
}

// shutdown drains the delivered response, falling back to a hard close when
// the client lingers past the grace period.
func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Debug("graceful shutdown failed, closing", "err", err)
		s.srv.Close()
	}
}
