// Package docsnap hashes the immutable document snapshot a signature
// binds to. The renderer produces the bytes; this package only fixes
// their identity.
package docsnap

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Snapshot records what was hashed and when. The hash is stored on the
// SignatureRecord and never recomputed from mutable state.
type Snapshot struct {
	Hash    string    `json:"hash"`
	Size    int64     `json:"size"`
	TakenAt time.Time `json:"taken_at"`
}

// Take hashes a rendered document stream.
func Take(r io.Reader, now time.Time) (Snapshot, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("hash document: %w", err)
	}
	return Snapshot{
		Hash:    "sha256:" + hex.EncodeToString(h.Sum(nil)),
		Size:    n,
		TakenAt: now.UTC(),
	}, nil
}

// CanonicalSHA256 hashes the JSON encoding of v. Used when the signed
// document is assembled from structured terms rather than a rendered
// byte stream.
func CanonicalSHA256(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
