// Copyright 2025 Joseph Cumines
//
// Package logcap tracks background log capture sessions for simulators and
// physical devices.
//
// A session owns one or more detached capture processes whose combined output
// streams into a log file in the temp directory. Sessions are addressable as
// long-running operations named "logSessions/<id>"; an operation is done once
// every capture process has exited.
package logcap

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	"github.com/joeycumines/xcodebuild-mcp/internal/executor"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Target distinguishes simulator and device sessions.
type Target string

const (
	TargetSimulator Target = "simulator"
	TargetDevice    Target = "device"
)

// FilePrefix returns the log file name prefix for the target.
func (t Target) FilePrefix() string {
	if t == TargetDevice {
		return "xcodemcp_device_log_"
	}
	return "xcodemcp_sim_log_"
}

// OperationPrefix is the resource name prefix of session operations.
const OperationPrefix = "logSessions/"

// Session is an in-progress background log capture.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Session struct {
	ID        string
	Target    Target
	DeviceID  string
	BundleID  string
	LogPath   string
	StartedAt time.Time
	Processes []executor.Process

	out io.Closer
}

// Name returns the operation resource name.
func (s *Session) Name() string {
	return OperationPrefix + s.ID
}

// Exited reports whether every capture process has exited.
func (s *Session) Exited() bool {
	for _, p := range s.Processes {
		if _, ok := p.ExitCode(); !ok {
			return false
		}
	}
	return true
}

// Operation describes the session as a long-running operation. Capture
// processes that exit non-zero without having been signalled mark the
// operation as failed.
func (s *Session) Operation() *longrunningpb.Operation {
	pids := make([]any, 0, len(s.Processes))
	for _, p := range s.Processes {
		pids = append(pids, p.PID())
	}
	op := &longrunningpb.Operation{Name: s.Name()}
	if meta, err := structpb.NewStruct(map[string]any{
		"target":    string(s.Target),
		"deviceId":  s.DeviceID,
		"bundleId":  s.BundleID,
		"logPath":   s.LogPath,
		"startTime": s.StartedAt.UTC().Format(time.RFC3339),
		"pids":      pids,
	}); err == nil {
		op.Metadata, _ = anypb.New(meta)
	}

	if !s.Exited() {
		return op
	}
	op.Done = true
	for _, p := range s.Processes {
		if code, _ := p.ExitCode(); code != 0 && !p.Killed() {
			op.Result = &longrunningpb.Operation_Error{
				Error: status.New(codes.Aborted, fmt.Sprintf("capture process %d exited with status %d", p.PID(), code)).Proto(),
			}
			return op
		}
	}
	if resp, err := structpb.NewStruct(map[string]any{"logPath": s.LogPath}); err == nil {
		if a, err := anypb.New(resp); err == nil {
			op.Result = &longrunningpb.Operation_Response{Response: a}
		}
	}
	return op
}

// Store holds active sessions by id.
type Store interface {
	Get(id string) (*Session, bool)
	Set(s *Session)
	// Delete removes id, reporting whether it was present.
	Delete(id string) bool
	List() []*Session
}

// MemoryStore is an in-memory Store safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *MemoryStore) Set(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

func (m *MemoryStore) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok
}

// List returns sessions ordered by start time, then id.
func (m *MemoryStore) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
