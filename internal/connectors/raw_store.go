package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// rawStore keeps each raw message once under <dir>/<provider>/<hash[:2]>/<hash>.eml.
type rawStore struct {
	dir string
}

// save returns the content hash and the path the message lives at. Files are
// written to a temp name first so a crash never leaves a truncated .eml.
func (r rawStore) save(provider string, raw []byte) (string, string, error) {
	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	dir := filepath.Join(r.dir, providerDir(provider), hash[:2])
	path := filepath.Join(dir, hash+".eml")
	if _, err := os.Stat(path); err == nil {
		return hash, path, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}

	tmp, err := os.CreateTemp(dir, hash+".*.tmp")
	if err != nil {
		return "", "", err
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", "", fmt.Errorf("write raw message: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", "", err
	}
	return hash, path, nil
}

func providerDir(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	if p == "" || strings.ContainsAny(p, `/\.`) {
		return "unknown"
	}
	return p
}
