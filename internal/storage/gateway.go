// Package storage confines all lending-core file access to fixed roots.
// Master scans and circulation copies live under separate gateways; nothing
// reachable from a download path can resolve a master.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidID is returned when a logical file id would escape the root.
var ErrInvalidID = errors.New("storage: invalid file id")

// Error wraps a failed file operation with enough context for the caller to
// log it without losing the typed cause.
type Error struct {
	Op  string
	ID  string
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("storage: %s %q: %v", e.Op, e.ID, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Gateway resolves logical file ids to paths strictly beneath one root.
type Gateway struct {
	root string
}

// NewGateway validates the root directory and returns a gateway bound to it.
// The directory is created if missing.
func NewGateway(root string) (*Gateway, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage: root directory is required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to resolve root %q: %w", root, err)
	}

	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("storage: failed to create root %q: %w", abs, err)
	}

	return &Gateway{root: abs}, nil
}

// Root reports the absolute root directory.
func (g *Gateway) Root() string {
	return g.root
}

// Resolve maps a logical id to an absolute path beneath the root, rejecting
// empty ids, path separators, and dot segments. This is the only place path
// construction happens.
func (g *Gateway) Resolve(id string) (string, error) {
	if id == "" || id != filepath.Base(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	resolved := filepath.Join(g.root, id)
	if !strings.HasPrefix(resolved, g.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return resolved, nil
}

// Write stores bytes under the id, replacing any existing file.
func (g *Gateway) Write(id string, data []byte) error {
	path, err := g.Resolve(id)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return &Error{Op: "write", ID: id, Err: err}
	}
	return nil
}

// Read returns the file's contents.
func (g *Gateway) Read(id string) ([]byte, error) {
	path, err := g.Resolve(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Op: "read", ID: id, Err: err}
	}
	return data, nil
}

// Delete removes the file. A file that is already gone is not an error; the
// cleanup paths that call this must stay idempotent.
func (g *Gateway) Delete(id string) error {
	path, err := g.Resolve(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &Error{Op: "delete", ID: id, Err: err}
	}
	return nil
}

// Exists reports whether a regular file is stored under the id.
func (g *Gateway) Exists(id string) bool {
	path, err := g.Resolve(id)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
