package auth

import (
	"os"
	"path/filepath"
	"testing"
)

func TestVerifyPluginDigest_NoopWhenDisabled(t *testing.T) {
	digest, err := VerifyPluginDigest("/nonexistent/path", false)
	if err != nil {
		t.Fatalf("expected no error when verification disabled, got %v", err)
	}
	if digest != "" {
		t.Fatalf("expected empty digest when verification disabled, got %q", digest)
	}
}

func TestVerifyPluginDigest_ComputesSHA256(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugin.py")
	if err := os.WriteFile(path, []byte("print('hello')"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	digest, err := VerifyPluginDigest(path, true)
	if err != nil {
		t.Fatalf("VerifyPluginDigest: %v", err)
	}
	if len(digest) != 64 {
		t.Fatalf("expected 64-char hex digest, got %d chars", len(digest))
	}
}

func TestVerifyPluginDigest_ErrorsOnMissingFile(t *testing.T) {
	_, err := VerifyPluginDigest("/nonexistent/path", true)
	if err == nil {
		t.Fatal("expected error for missing file when verification enabled")
	}
}
