// Package history keeps an in-memory record of recent uploads for the tray
// menu and the HTTP API. A Record moves through a linear lifecycle:
//
//	pending → running → complete | failed.
//
// Nothing is persisted; the store only lives as long as the process.
package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is the number of records kept when none is configured.
const DefaultCapacity = 100

// Status represents the lifecycle state of a record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Record represents a single upload attempt.
type Record struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// URL and ObjectKey are populated once the record reaches StatusComplete.
	URL       string `json:"url,omitempty"`
	ObjectKey string `json:"object_key,omitempty"`

	// Error is non-empty if the upload failed, or if a side effect failed
	// after a successful upload.
	Error string `json:"error,omitempty"`
}

// Store is a concurrency-safe in-memory record store. When full, the oldest
// record is evicted.
type Store struct {
	mu       sync.RWMutex
	capacity int
	order    []string
	records  map[string]*Record
	now      func() time.Time
}

// NewStore returns a Store holding up to capacity records. A non-positive
// capacity selects DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		records:  make(map[string]*Record),
		now:      time.Now,
	}
}

// Create adds a pending record for an upload from source.
func (s *Store) Create(source string) *Record {
	now := s.now()
	r := &Record{
		ID:        uuid.New().String(),
		Status:    StatusPending,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.records, oldest)
	}
	s.order = append(s.order, r.ID)
	s.records[r.ID] = r

	c := *r
	return &c
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("record %q not found", id)
	}
	c := *r
	return &c, nil
}

// Recent returns copies of up to n records, newest first. A non-positive n
// returns every record.
func (s *Store) Recent(n int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.order) {
		n = len(s.order)
	}
	out := make([]Record, 0, n)
	for i := len(s.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *s.records[s.order[i]])
	}
	return out
}

// RecentComplete returns up to n successful records, newest first.
func (s *Store) RecentComplete(n int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for i := len(s.order) - 1; i >= 0 && len(out) < n; i-- {
		if r := s.records[s.order[i]]; r.Status == StatusComplete {
			out = append(out, *r)
		}
	}
	return out
}

func (s *Store) MarkRunning(id string) error {
	return s.update(id, func(r *Record) {
		r.Status = StatusRunning
	})
}

func (s *Store) MarkComplete(id, url, objectKey string) error {
	return s.update(id, func(r *Record) {
		r.Status = StatusComplete
		r.URL = url
		r.ObjectKey = objectKey
	})
}

func (s *Store) MarkFailed(id string, err error) error {
	return s.update(id, func(r *Record) {
		r.Status = StatusFailed
		r.Error = err.Error()
	})
}

// AnnotateError attaches an error to a record without changing its status.
func (s *Store) AnnotateError(id string, err error) error {
	return s.update(id, func(r *Record) {
		r.Error = err.Error()
	})
}

func (s *Store) update(id string, fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return fmt.Errorf("record %q not found", id)
	}
	fn(r)
	r.UpdatedAt = s.now()
	return nil
}
