// Package handoff carries the confirmed face image between pages of a capture
// session. Pages exchange the session id; the image itself stays server side.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/ekyc-capture/internal/kyc"
)

// ErrNotFound is returned when no source image is stored for the session.
var ErrNotFound = errors.New("handoff: source image not found")

// Entry is the confirmed face image of a session and the operator who captured it.
type Entry struct {
	Image    kyc.CapturedImage
	Operator string
}

// Store abstracts the key-value operations the workflow needs.
type Store interface {
	Put(ctx context.Context, sessionID string, entry Entry) error
	Get(ctx context.Context, sessionID string) (Entry, error)
	Delete(ctx context.Context, sessionID string) error
}

// Key returns the storage key of a session's source image.
func Key(sessionID string) string {
	return fmt.Sprintf("capture:%s:sourceImage", sessionID)
}

type record struct {
	Encoded  string `json:"encoded"`
	MIMEType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Operator string `json:"operator,omitempty"`
}

func toRecord(entry Entry) record {
	return record{
		Encoded:  string(entry.Image.Encoded()),
		MIMEType: entry.Image.MIMEType(),
		Width:    entry.Image.Width(),
		Height:   entry.Image.Height(),
		Operator: entry.Operator,
	}
}

func (r record) entry() Entry {
	return Entry{
		Image:    kyc.NewCapturedImage([]byte(r.Encoded), r.MIMEType, r.Width, r.Height),
		Operator: r.Operator,
	}
}

// MemoryStore is a process-local Store used when no Redis address is configured.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	entry   Entry
	expires time.Time
}

// NewMemoryStore returns an in-memory store whose entries expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Put(_ context.Context, sessionID string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[Key(sessionID)] = memoryEntry{entry: entry, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key(sessionID)
	entry, ok := s.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if s.now().After(entry.expires) {
		delete(s.entries, key)
		return Entry{}, ErrNotFound
	}
	return entry.entry, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, Key(sessionID))
	return nil
}
