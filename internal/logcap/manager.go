// Copyright 2025 Joseph Cumines
//
// Session lifecycle

package logcap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	"github.com/google/uuid"
	"github.com/joeycumines/xcodebuild-mcp/internal/executor"
	"github.com/joeycumines/xcodebuild-mcp/internal/fsys"
	"github.com/joeycumines/xcodebuild-mcp/internal/poll"
	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
)

// DefaultRetention is how long stale log files are kept on disk.
const DefaultRetention = 72 * time.Hour

const (
	defaultStopTimeout = 2 * time.Second
	stopPollInterval   = 50 * time.Millisecond
)

// StartRequest describes a capture to start. Each command is spawned with
// its output appended to the session log file.
type StartRequest struct {
	Target   Target
	DeviceID string
	BundleID string
	Commands []executor.CommandSpec
}

// Manager starts and stops capture sessions.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Manager struct {
	Store   Store
	Spawner executor.Spawner
	FS      fsys.FS
	Logger  *slog.Logger
	// Dir receives log files. Defaults to FS.TempDir().
	Dir string
	// Retention is the maximum age of log files kept by pruning.
	Retention time.Duration
	// StopTimeout bounds the wait for signalled processes to exit.
	StopTimeout time.Duration
	Now         func() time.Time
	// OnChange, if set, is called with the active session count after each
	// start or stop.
	OnChange func(active int)

	// mu makes lookup-then-delete on Store atomic across concurrent stops.
	mu sync.Mutex
}

// NewManager returns a Manager with an in-memory store.
func NewManager(spawner executor.Spawner, fs fsys.FS, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		Store:     NewMemoryStore(),
		Spawner:   spawner,
		FS:        fs,
		Logger:    logger,
		Retention: DefaultRetention,
		Now:       time.Now,
	}
}

func (m *Manager) dir() string {
	if m.Dir != "" {
		return m.Dir
	}
	return m.FS.TempDir()
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Manager) notify() {
	if m.OnChange != nil {
		m.OnChange(len(m.Store.List()))
	}
}

// Start prunes stale logs, then spawns the capture commands and registers
// a new session.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Session, error) {
	if len(req.Commands) == 0 {
		return nil, toolerr.Validation("no capture command")
	}

	m.Prune()

	id := uuid.NewString()
	logPath := filepath.Join(m.dir(), req.Target.FilePrefix()+id+".log")
	out, err := m.FS.OpenAppend(logPath)
	if err != nil {
		return nil, toolerr.Wrap(toolerr.KindSystem, err, "failed to create log file")
	}

	s := &Session{
		ID:        id,
		Target:    req.Target,
		DeviceID:  req.DeviceID,
		BundleID:  req.BundleID,
		LogPath:   logPath,
		StartedAt: m.now(),
		out:       out,
	}
	for _, cmd := range req.Commands {
		p, err := m.Spawner.Spawn(ctx, cmd, out)
		if err != nil {
			for _, started := range s.Processes {
				_ = started.Signal(syscall.SIGTERM)
			}
			_ = out.Close()
			return nil, err
		}
		m.Logger.Debug("log capture process started",
			slog.String("session", id),
			slog.String("command", cmd.String()),
			slog.Int("pid", p.PID()))
		s.Processes = append(s.Processes, p)
	}

	m.Store.Set(s)
	m.notify()
	return s, nil
}

// Stop terminates the session and returns the captured log. A second stop
// of the same id reports not found. The session is removed even when the
// log file cannot be read.
func (m *Manager) Stop(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	s, ok := m.Store.Get(id)
	if !ok {
		m.mu.Unlock()
		return "", toolerr.NotFound("Log capture session", id)
	}
	for _, p := range s.Processes {
		if executor.Terminated(p) {
			continue
		}
		if err := p.Signal(syscall.SIGTERM); err != nil {
			m.Logger.Warn("failed to signal log capture process",
				slog.String("session", id),
				slog.Int("pid", p.PID()),
				slog.Any("error", err))
		}
	}
	m.Store.Delete(id)
	m.mu.Unlock()
	m.notify()

	m.awaitExit(ctx, s)
	if s.out != nil {
		if err := s.out.Close(); err != nil {
			m.Logger.Warn("failed to close log file", slog.String("path", s.LogPath), slog.Any("error", err))
		}
	}

	data, err := m.FS.ReadFile(s.LogPath)
	if err != nil {
		return "", toolerr.Wrap(toolerr.KindSystem, err, "failed to read log file")
	}
	return string(data), nil
}

func (m *Manager) awaitExit(ctx context.Context, s *Session) {
	timeout := m.StopTimeout
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if s.Exited() {
		return
	}
	_, err := poll.UntilOperationDone(ctx, stopPollInterval, func() (*longrunningpb.Operation, error) {
		return s.Operation(), nil
	})
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		m.Logger.Warn("log capture process did not exit",
			slog.String("session", s.ID),
			slog.Any("error", err))
	default:
		m.Logger.Debug("log capture ended with error",
			slog.String("session", s.ID),
			slog.Any("error", err))
	}
}

// List returns the active sessions.
func (m *Manager) List() []*Session {
	return m.Store.List()
}

// Get returns an active session.
func (m *Manager) Get(id string) (*Session, bool) {
	return m.Store.Get(strings.TrimPrefix(id, OperationPrefix))
}

// StopAll stops every active session, discarding their logs.
func (m *Manager) StopAll(ctx context.Context) error {
	var errs []error
	for _, s := range m.List() {
		if _, err := m.Stop(ctx, s.ID); err != nil && toolerr.KindOf(err) != toolerr.KindNotFound {
			errs = append(errs, fmt.Errorf("session %s: %w", s.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Prune deletes log files older than the retention window. Failures are
// logged and otherwise ignored. Files of active sessions are kept.
func (m *Manager) Prune() {
	retention := m.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	dir := m.dir()
	entries, err := m.FS.ReadDir(dir)
	if err != nil {
		m.Logger.Warn("failed to list log directory", slog.String("dir", dir), slog.Any("error", err))
		return
	}

	active := make(map[string]struct{})
	for _, s := range m.Store.List() {
		active[s.LogPath] = struct{}{}
	}

	cutoff := m.now().Add(-retention)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".log") ||
			!(strings.HasPrefix(name, TargetSimulator.FilePrefix()) || strings.HasPrefix(name, TargetDevice.FilePrefix())) {
			continue
		}
		path := filepath.Join(dir, name)
		if _, ok := active[path]; ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			m.Logger.Warn("failed to stat log file", slog.String("path", path), slog.Any("error", err))
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := m.FS.Remove(path); err != nil {
			m.Logger.Warn("failed to remove stale log file", slog.String("path", path), slog.Any("error", err))
			continue
		}
		m.Logger.Debug("removed stale log file", slog.String("path", path))
	}
}
