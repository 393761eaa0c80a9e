// Copyright 2025 Joseph Cumines
//
// Package fsys is the file system accessor used for scratch artifacts:
// test result bundles, devicectl JSON output, screenshots and log files.
package fsys

import (
	"io"
	"io/fs"
	"os"
)

// FS is the subset of file system operations plugins rely on.
type FS interface {
	// TempDir returns the directory used for temporary files.
	TempDir() string
	// MkdirTemp creates a new temporary directory with the given name prefix.
	MkdirTemp(dir, pattern string) (string, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error
	// OpenAppend opens name for appending, creating it if needed.
	OpenAppend(name string) (io.WriteCloser, error)
	Remove(name string) error
	RemoveAll(path string) error
	Stat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.DirEntry, error)
}

// OS implements FS on the host file system. If Root is set it replaces the
// platform temp directory.
type OS struct {
	Root string
}

var _ FS = OS{}

func (o OS) TempDir() string {
	if o.Root != "" {
		return o.Root
	}
	return os.TempDir()
}

func (o OS) MkdirTemp(dir, pattern string) (string, error) {
	if dir == "" {
		dir = o.TempDir()
	}
	return os.MkdirTemp(dir, pattern)
}

func (OS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (OS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// OpenAppend returns an *os.File, so child processes given it as stdout write
// to the file directly.
func (OS) OpenAppend(name string) (io.WriteCloser, error) {
	return os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

func (OS) Remove(name string) error {
	return os.Remove(name)
}

func (OS) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (OS) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

func (OS) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(name)
}
