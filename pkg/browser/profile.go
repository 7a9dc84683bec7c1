package browser

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// profileDir returns (and creates) the persistent profile directory for id.
// The id is sanitized so it can never escape root. When sanitizing changes
// the id, a hash of the raw id is appended so distinct ids never share a
// profile.
func profileDir(root, id string) (string, error) {
	name := sanitizeID(id)
	if name == "" {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	if name != id {
		name += "~" + idHash(id)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve profile root: %w", err)
	}

	dir := filepath.Join(absRoot, name)
	if !strings.HasPrefix(dir, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("profile path escapes root for id %q", id)
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create profile directory: %w", err)
	}
	return dir, nil
}

func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.', r == '@':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), ".")
	return name
}

// idHash is a short digest of the raw id. The '~' separator is never kept by
// sanitizeID, so a hashed name cannot equal an unchanged id.
func idHash(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:6])
}
