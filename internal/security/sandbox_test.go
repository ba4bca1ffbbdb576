package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"voice2action/internal/domain"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSandboxValidPath(t *testing.T) {
	dir := t.TempDir()
	sandbox, err := NewSandbox(dir)
	if err != nil {
		t.Fatal(err)
	}

	memo := filepath.Join(dir, "memo.wav")
	writeFile(t, memo)

	resolved, err := sandbox.ValidatePath(memo)
	if err != nil {
		t.Errorf("valid path should pass: %v", err)
	}
	if resolved != memo {
		t.Errorf("resolved = %q, want %q", resolved, memo)
	}
}

func TestSandboxSecondRoot(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	sandbox, err := NewSandbox(first, second)
	if err != nil {
		t.Fatal(err)
	}

	memo := filepath.Join(second, "memo.mp3")
	writeFile(t, memo)
	if _, err := sandbox.ValidatePath(memo); err != nil {
		t.Errorf("file in second root should pass: %v", err)
	}
	if got := len(sandbox.Roots()); got != 2 {
		t.Errorf("Roots() has %d entries, want 2", got)
	}
}

func TestSandboxPathTraversal(t *testing.T) {
	dir := t.TempDir()
	sandbox, err := NewSandbox(filepath.Join(dir))
	if err != nil {
		t.Fatal(err)
	}

	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.wav")
	writeFile(t, secret)

	tests := []string{
		secret,
		filepath.Join(dir, "..", filepath.Base(outside), "secret.wav"),
	}
	for _, path := range tests {
		_, err := sandbox.ValidatePath(path)
		if !errors.Is(err, domain.ErrPermissionDenied) {
			t.Errorf("path %q: expected ErrPermissionDenied, got %v", path, err)
		}
	}
}

func TestSandboxMissingFile(t *testing.T) {
	dir := t.TempDir()
	sandbox, err := NewSandbox(dir)
	if err != nil {
		t.Fatal(err)
	}

	_, err = sandbox.ValidatePath(filepath.Join(dir, "nope.mp3"))
	if !errors.Is(err, domain.ErrAudioNotFound) {
		t.Errorf("expected ErrAudioNotFound, got %v", err)
	}
}

func TestSandboxSymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	sandbox, err := NewSandbox(dir)
	if err != nil {
		t.Fatal(err)
	}

	outside := t.TempDir()
	target := filepath.Join(outside, "file.wav")
	writeFile(t, target)
	link := filepath.Join(dir, "escape.wav")
	if err := os.Symlink(target, link); err != nil {
		t.Skip("cannot create symlinks")
	}

	_, err = sandbox.ValidatePath(link)
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("symlink escape: expected ErrPermissionDenied, got %v", err)
	}
	if code := domain.ErrorCodeOf(err); code != domain.CodePermissionDenied {
		t.Errorf("code = %s, want %s", code, domain.CodePermissionDenied)
	}
}

func TestNewSandboxErrors(t *testing.T) {
	if _, err := NewSandbox(); err == nil {
		t.Error("expected error without roots")
	}
	if _, err := NewSandbox("/nonexistent/path/that/does/not/exist"); err == nil {
		t.Error("expected error for non-existent path")
	}

	file := filepath.Join(t.TempDir(), "notadir.txt")
	writeFile(t, file)
	if _, err := NewSandbox(file); err == nil {
		t.Error("expected error for regular file")
	}
}

func TestNewSandboxSymlinkRoot(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(t.TempDir(), "link_to_dir")
	if err := os.Symlink(dir, link); err != nil {
		t.Skip("cannot create symlinks")
	}

	sandbox, err := NewSandbox(link)
	if err != nil {
		t.Fatalf("NewSandbox with symlink: %v", err)
	}
	if roots := sandbox.Roots(); roots[0] != dir {
		t.Errorf("Roots()[0] = %q, want %q", roots[0], dir)
	}
}
