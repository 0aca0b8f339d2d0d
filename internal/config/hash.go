package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

const fingerprintPrefix = "blake3:"

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Fingerprint identifies a config file's exact contents as "blake3:<hex>".
func Fingerprint(filePath string) (string, error) {
	hash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return "", err
	}
	return fingerprintPrefix + hash, nil
}

// VerifyFingerprint compares a file against an expected fingerprint. The
// "blake3:" prefix is optional in expected.
func VerifyFingerprint(filePath, expected string) error {
	actual, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}

	want := strings.TrimPrefix(strings.TrimSpace(expected), fingerprintPrefix)
	if actual != want {
		return fmt.Errorf("hash mismatch for %s: expected %s%s, got %s%s",
			filepath.Base(filePath), fingerprintPrefix, want, fingerprintPrefix, actual)
	}
	return nil
}
