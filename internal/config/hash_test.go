package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("service:\n  name: demo\n"), 0644); err != nil {
		t.Fatal(err)
	}

	fp, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("Fingerprint() failed: %v", err)
	}
	if !strings.HasPrefix(fp, "blake3:") || len(fp) != len("blake3:")+64 {
		t.Fatalf("Fingerprint() = %q, want blake3:<64 hex>", fp)
	}

	again, _ := Fingerprint(path)
	if again != fp {
		t.Error("fingerprint is not stable")
	}

	if err := VerifyFingerprint(path, fp); err != nil {
		t.Errorf("VerifyFingerprint(prefixed) failed: %v", err)
	}
	if err := VerifyFingerprint(path, strings.TrimPrefix(fp, "blake3:")); err != nil {
		t.Errorf("VerifyFingerprint(bare) failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("service:\n  name: changed\n"), 0644); err != nil {
		t.Fatal(err)
	}
	err = VerifyFingerprint(path, fp)
	if err == nil || !strings.Contains(err.Error(), "hash mismatch for config.yaml") {
		t.Fatalf("VerifyFingerprint() error = %v, want mismatch", err)
	}
}

func TestFingerprintMissingFile(t *testing.T) {
	if _, err := Fingerprint(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Fingerprint() succeeded for missing file")
	}
}
