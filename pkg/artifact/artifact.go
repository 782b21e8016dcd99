// Package artifact records the raw text a model produced for a prompt step.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Artifact is one model answer, kept verbatim before any JSON decoding or
// schema coercion happens.
type Artifact struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Adapter   string            `json:"adapter"`
	Model     string            `json:"model"`
	Prompt    string            `json:"prompt"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Hash      string            `json:"hash"`
}

// New creates a new Artifact with computed hash.
func New(content, adapter, model, prompt string) *Artifact {
	a := &Artifact{
		ID:        uuid.NewString(),
		Content:   content,
		Adapter:   adapter,
		Model:     model,
		Prompt:    prompt,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now().UTC(),
	}
	a.Hash = a.computeHash()
	return a
}

// WithMetadata returns a copy of the artifact with key set to value.
func (a *Artifact) WithMetadata(key, value string) *Artifact {
	cp := *a
	cp.Metadata = make(map[string]string, len(a.Metadata)+1)
	for k, v := range a.Metadata {
		cp.Metadata[k] = v
	}
	cp.Metadata[key] = value
	return &cp
}

// Same reports whether two artifacts carry the same answer from the same
// model.
func (a *Artifact) Same(other *Artifact) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.Hash == other.Hash
}

func (a *Artifact) computeHash() string {
	h := sha256.New()
	h.Write([]byte(a.Content))
	h.Write([]byte(a.Adapter))
	h.Write([]byte(a.Model))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
