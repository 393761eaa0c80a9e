// Copyright 2025 Joseph Cumines
//
// Package axe locates and invokes the AXe UI automation binary, used to
// drive simulators (tap, swipe, type, describe-ui).
package axe

import (
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/joeycumines/xcodebuild-mcp/internal/executor"
	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
)

// Binary is a resolved axe executable, with the environment it needs.
type Binary struct {
	Path string
	Env  map[string]string
}

// Locator resolves the axe binary. Lookups go, in order: the explicit Path
// (AXE_PATH), the copy bundled next to the server executable, then PATH.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Locator struct {
	Path string

	Executable func() (string, error)
	LookPath   func(file string) (string, error)
	Stat       func(name string) (fs.FileInfo, error)
}

// NewLocator returns a Locator on the host environment.
func NewLocator(path string) *Locator {
	return &Locator{
		Path:       path,
		Executable: os.Executable,
		LookPath:   exec.LookPath,
		Stat:       os.Stat,
	}
}

func (l *Locator) exists(name string) bool {
	stat := l.Stat
	if stat == nil {
		stat = os.Stat
	}
	_, err := stat(name)
	return err == nil
}

const remediation = "Install AXe with `brew tap cameroncooke/axe && brew install axe`, or set AXE_PATH to the axe binary."

// Locate resolves the binary.
func (l *Locator) Locate() (Binary, error) {
	if l.Path != "" {
		if !l.exists(l.Path) {
			return Binary{}, toolerr.DependencyMissing("AXE_PATH does not point to an axe binary: "+l.Path, remediation)
		}
		return Binary{Path: l.Path}, nil
	}

	if l.Executable != nil {
		if exe, err := l.Executable(); err == nil {
			bundled := filepath.Join(filepath.Dir(exe), "bundled")
			p := filepath.Join(bundled, "axe")
			if l.exists(p) {
				return Binary{
					Path: p,
					Env:  map[string]string{"DYLD_FRAMEWORK_PATH": filepath.Join(bundled, "Frameworks")},
				}, nil
			}
		}
	}

	if l.LookPath != nil {
		if p, err := l.LookPath("axe"); err == nil {
			return Binary{Path: p}, nil
		}
	}

	return Binary{}, toolerr.DependencyMissing("Bundled axe tool not found. UI automation features are not available.", remediation)
}

// Command builds an axe invocation targeting the simulator udid.
func Command(bin Binary, udid string, args ...string) executor.CommandSpec {
	argv := append([]string{bin.Path}, args...)
	argv = append(argv, "--udid", udid)
	label := "[AXe]"
	if len(args) > 0 {
		label += ": " + args[0]
	}
	return executor.CommandSpec{Args: argv, Label: label, Env: bin.Env}
}

// DefaultMaxAge is how long a UI description is considered current.
const DefaultMaxAge = 60 * time.Second

// Tracker remembers when each simulator's UI hierarchy was last described,
// so coordinate-based actions can warn about stale coordinates.
type Tracker struct {
	MaxAge time.Duration
	Now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewTracker returns a Tracker using the wall clock.
func NewTracker() *Tracker {
	return &Tracker{MaxAge: DefaultMaxAge, Now: time.Now}
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Described records a describe_ui call.
func (t *Tracker) Described(udid string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		t.last = make(map[string]time.Time)
	}
	t.last[udid] = t.now()
}

// Warning returns a hint for udid, or "" if the last description is
// recent enough.
func (t *Tracker) Warning(udid string) string {
	t.mu.Lock()
	at, ok := t.last[udid]
	t.mu.Unlock()

	if !ok {
		return "Warning: describe_ui has not been called yet. Consider using describe_ui for precise coordinates instead of guessing from screenshots."
	}
	maxAge := t.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	age := t.now().Sub(at)
	if age <= maxAge {
		return ""
	}
	return "Warning: describe_ui was last called " + age.Round(time.Second).String() +
		" ago. Consider refreshing UI coordinates with describe_ui instead of using potentially stale coordinates."
}
