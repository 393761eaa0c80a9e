// Copyright 2025 Joseph Cumines
//
// Handler dependencies

package plugin

import (
	"log/slog"
	"time"

	"github.com/joeycumines/xcodebuild-mcp/internal/axe"
	"github.com/joeycumines/xcodebuild-mcp/internal/executor"
	"github.com/joeycumines/xcodebuild-mcp/internal/fsys"
	"github.com/joeycumines/xcodebuild-mcp/internal/logcap"
	"github.com/joeycumines/xcodebuild-mcp/internal/xcodebuild"
)

// Deps are the collaborators handed to every handler. Production wiring
// builds one instance for the process; tests build their own.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Deps struct {
	Executor executor.Executor
	Spawner  executor.Spawner
	FS       fsys.FS
	Sessions *logcap.Manager
	Axe      *axe.Locator
	UI       *axe.Tracker
	Logger   *slog.Logger
	Now      func() time.Time
	// Version is reported by diagnostics.
	Version string
}

// Log returns the logger, falling back to slog.Default.
func (d *Deps) Log() *slog.Logger {
	if d != nil && d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Clock returns the current time.
func (d *Deps) Clock() time.Time {
	if d != nil && d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Xcodebuild returns a runner sharing these dependencies.
func (d *Deps) Xcodebuild() xcodebuild.Runner {
	return xcodebuild.Runner{Executor: d.Executor, FS: d.FS, Logger: d.Log()}
}
