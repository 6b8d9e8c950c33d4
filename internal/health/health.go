// Package health serves the daemon's status and manual trigger over a unix
// socket, and provides the matching client used by --healthcheck and
// --trigger.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/go-errors/errors"

	"github.com/tis24dev/drivesave/internal/logging"
	"github.com/tis24dev/drivesave/internal/scheduler"
	"github.com/tis24dev/drivesave/internal/types"
)

// ErrNotReady is returned by Healthcheck when the daemon answers but is
// not serving yet.
var ErrNotReady = errors.New("drivesave not ready")

// ErrBusy is returned by Trigger when a run is already active.
var ErrBusy = errors.New("a backup is already running")

// Daemon is what the server exposes.
type Daemon interface {
	Status() scheduler.Status
	TriggerNow(ctx context.Context, kind types.BackupKind) bool
}

// Response is the JSON body of GET /health.
type Response struct {
	Status  string           `json:"status"`
	Version string           `json:"version,omitempty"`
	Daemon  scheduler.Status `json:"daemon"`
}

// Server is the unix-socket HTTP endpoint.
type Server struct {
	socket  string
	daemon  Daemon
	version string
	logger  *logging.Logger

	ready atomic.Bool
	mux   *http.ServeMux
}

// NewServer creates a server for daemon on socket.
func NewServer(socket string, daemon Daemon, version string, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	s := &Server{socket: socket, daemon: daemon, version: version, logger: logger}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /trigger", s.handleTrigger)
	return s
}

// SetReady marks the daemon as serving.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	resp := Response{Status: "idle", Version: s.version, Daemon: s.daemon.Status()}
	if resp.Daemon.Running {
		resp.Status = "running"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	kind := types.BackupIncremental
	if k := r.URL.Query().Get("kind"); k != "" {
		parsed, err := types.ParseBackupKind(k)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		kind = parsed
	}
	if !s.ready.Load() || !s.daemon.TriggerNow(r.Context(), kind) {
		http.Error(w, ErrBusy.Error(), http.StatusConflict)
		return
	}
	s.logger.Info("Manual %s backup triggered over %s", kind, s.socket)
	w.WriteHeader(http.StatusAccepted)
}

// Serve listens on the socket until ctx is cancelled. A stale socket file
// from a previous run is removed first.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socket), 0o755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.Remove(s.socket); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", s.socket)
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}
	defer os.Remove(s.socket)

	srv := &http.Server{Handler: s, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Debug("Health endpoint listening on %s", s.socket)
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func client(socket string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socket)
			},
		},
	}
}

// Healthcheck queries a running daemon.
func Healthcheck(ctx context.Context, socket string) (Response, error) {
	var out Response
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/health", nil)
	if err != nil {
		return out, err
	}
	response, err := client(socket, 2*time.Second).Do(req)
	if err != nil {
		return out, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return out, ErrNotReady
	}
	if err := json.NewDecoder(response.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode health response: %w", err)
	}
	return out, nil
}

// Trigger asks a running daemon to start a run of kind.
func Trigger(ctx context.Context, socket string, kind types.BackupKind) error {
	url := "http://unix/trigger?kind=" + kind.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	response, err := client(socket, 5*time.Second).Do(req)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	switch response.StatusCode {
	case http.StatusAccepted:
		return nil
	case http.StatusConflict:
		return ErrBusy
	default:
		return errors.Errorf("unexpected trigger response: %s", response.Status)
	}
}
