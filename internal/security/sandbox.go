// Package security restricts which local files model-driven tools may read.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"voice2action/internal/domain"
)

// Sandbox confines file access to a set of directory roots.
type Sandbox struct {
	roots []string // absolute, resolved
}

// NewSandbox creates a sandbox allowing files under any of roots. Every root
// must be an existing directory.
func NewSandbox(roots ...string) (*Sandbox, error) {
	if len(roots) == 0 {
		return nil, errors.New("sandbox needs at least one root")
	}
	s := &Sandbox{}
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve sandbox root: %w", err)
		}
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, fmt.Errorf("eval symlinks for sandbox root: %w", err)
		}
		info, err := os.Stat(resolved)
		if err != nil {
			return nil, fmt.Errorf("stat sandbox root: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("sandbox root %q is not a directory", resolved)
		}
		s.roots = append(s.roots, resolved)
	}
	return s, nil
}

// ValidatePath resolves requested, following symlinks, and checks it lies
// within one of the roots. A missing file fails with domain.ErrAudioNotFound
// and a path outside every root with domain.ErrPermissionDenied.
func (s *Sandbox) ValidatePath(requested string) (string, error) {
	const op = "Sandbox.ValidatePath"

	abs, err := filepath.Abs(requested)
	if err != nil {
		return "", domain.NewSubSystemError("sandbox", op, domain.ErrInvalidInput, err.Error())
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", domain.NewDomainError(op, domain.ErrAudioNotFound, abs)
		}
		return "", domain.NewSubSystemError("sandbox", op, domain.ErrPermissionDenied, err.Error())
	}

	for _, root := range s.roots {
		if resolved == root || strings.HasPrefix(resolved, root+string(os.PathSeparator)) {
			return resolved, nil
		}
	}
	return "", domain.NewSubSystemError("sandbox", op, domain.ErrPermissionDenied,
		fmt.Sprintf("%q is outside the allowed directories", resolved))
}

// Roots returns the resolved root directories.
func (s *Sandbox) Roots() []string { return append([]string(nil), s.roots...) }
