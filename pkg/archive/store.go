// Package archive is a content-addressed blob store for step outputs and raw
// model answers.
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Ref points at an archived object.
type Ref struct {
	Kind   string `json:"kind"`
	SHA256 string `json:"sha256"`
}

// ErrNotFound is returned by Load for an unknown hash.
var ErrNotFound = errors.New("archive object not found")

var hashRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Store manages the content-addressed archive.
type Store struct {
	BasePath string
}

// NewStore creates a store rooted at basePath.
func NewStore(basePath string) (*Store, error) {
	if basePath == "" {
		return nil, fmt.Errorf("archive path is required")
	}
	if err := os.MkdirAll(filepath.Join(basePath, "objects"), 0755); err != nil {
		return nil, err
	}
	return &Store{BasePath: basePath}, nil
}

// StoreObject stores the JSON form of obj.
func (s *Store) StoreObject(obj any, kind string) (Ref, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return Ref{}, err
	}
	return s.StoreBlob(kind, data)
}

// StoreBlob stores data under its SHA256 in a directory sharded by the first
// two hex characters. Storing the same bytes twice is a no-op.
func (s *Store) StoreBlob(kind string, data []byte) (Ref, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	dir := filepath.Join(s.BasePath, "objects", hash[:2])
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Ref{}, err
	}
	path := filepath.Join(dir, hash)
	if _, err := os.Stat(path); err != nil {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return Ref{}, err
		}
	}
	if kind == "" {
		kind = "blob"
	}
	return Ref{Kind: kind, SHA256: hash}, nil
}

// Load returns the bytes stored under ref.
func (s *Store) Load(ref Ref) ([]byte, error) {
	if !hashRe.MatchString(ref.SHA256) {
		return nil, fmt.Errorf("invalid hash %q", ref.SHA256)
	}
	data, err := os.ReadFile(filepath.Join(s.BasePath, "objects", ref.SHA256[:2], ref.SHA256))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref.SHA256)
	}
	return data, err
}
