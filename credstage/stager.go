// Package credstage hands PEM-encoded key and certificate material to a
// path-based consumer without ever writing the bytes to a regular file.
//
// The material is exposed through two named pipes inside a private,
// owner-only temporary directory. One writer goroutine per pipe blocks until
// the consumer opens the read side, writes the PEM exactly once, and closes.
// The directory and both pipes are removed on Close regardless of whether
// the consumer ever read them.
package credstage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// closeTimeout bounds how long Close waits for the writer goroutines after
// their pipes have been drained.
const closeTimeout = 2 * time.Second

// Stager exposes one key and one certificate through single-use named pipes.
type Stager struct {
	dir      string
	keyPath  string
	certPath string
	log      *slog.Logger
	done     chan struct{}
	pending  int
}

// New creates the private directory and both pipes, and starts the writers.
// The caller must call Close on every exit path.
func New(log *slog.Logger, keyPEM, certPEM []byte) (*Stager, error) {
	dir, err := os.MkdirTemp("", "serve-once-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	// MkdirTemp creates 0700 directories, but the process umask does not
	// apply retroactively; pin the mode so group/other never gain access.
	if err := os.Chmod(dir, 0o700); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to restrict staging directory: %w", err)
	}

	s := &Stager{
		dir:      dir,
		keyPath:  filepath.Join(dir, "key.pem"),
		certPath: filepath.Join(dir, "cert.pem"),
		log:      log,
		done:     make(chan struct{}, 2),
	}

	for _, p := range []struct {
		path string
		data []byte
	}{
		{s.keyPath, keyPEM},
		{s.certPath, certPEM},
	} {
		if err := unix.Mkfifo(p.path, 0o600); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("failed to create pipe %s: %w", filepath.Base(p.path), err)
		}
		s.pending++
		go s.write(p.path, p.data)
	}

	return s, nil
}

// KeyPath returns the pipe path carrying the private key PEM. Single use.
func (s *Stager) KeyPath() string { return s.keyPath }

// CertPath returns the pipe path carrying the certificate PEM. Single use.
func (s *Stager) CertPath() string { return s.certPath }

// write blocks on the open until the read side of the pipe is opened, then
// delivers the PEM bytes in one pass and closes.
func (s *Stager) write(path string, data []byte) {
	defer func() { s.done <- struct{}{} }()

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		s.log.Debug("staging pipe writer aborted", "pipe", filepath.Base(path), "err", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		s.log.Error("failed to write staged credential", "pipe", filepath.Base(path), "err", err)
	}
}

// Close releases both writers and removes the staging directory. If a
// consumer never opened a pipe (TLS setup failed upstream), the blocked
// writer is released by draining the pipe non-blocking; the join is bounded
// so teardown can never hang. Removal failures are logged, not returned:
// cleanup is best-effort and must not override a decided outcome.
func (s *Stager) Close() {
	s.drain(s.keyPath)
	s.drain(s.certPath)

	deadline := time.After(closeTimeout)
	remaining := s.pending
	for remaining > 0 {
		select {
		case <-s.done:
			remaining--
		case <-deadline:
			s.log.Warn("staging pipe writer did not finish before teardown deadline")
			remaining = 0
		}
	}

	if err := os.RemoveAll(s.dir); err != nil {
		s.log.Warn("failed to remove staging directory", "dir", s.dir, "err", err)
	}
}

// drain opens the read side without blocking and consumes whatever the
// writer delivers, releasing a writer still parked in its blocking open.
// A pipe that was already consumed fails the open; that is fine.
func (s *Stager) drain(path string) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return
	}
	f := os.NewFile(uintptr(fd), path)
	defer f.Close()

	buf := make([]byte, 4096)
	for {
		if _, err := f.Read(buf); err != nil {
			return
		}
	}
}
