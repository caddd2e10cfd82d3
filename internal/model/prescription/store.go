package prescription

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("prescription not found")
	ErrStoreUnavailable = errors.New("prescription store unavailable")
	ErrEmptyText        = errors.New("prescription text is empty")
)

// Store persists prescription records.
type Store interface {
	// Create persists normalizedText as a new record. Failures are reported,
	// never retried, so a caller cannot end up with duplicates.
	Create(ctx context.Context, normalizedText string) (Record, error)
	// List returns summaries ordered by CreatedAt descending.
	List(ctx context.Context) ([]Summary, error)
	// Get returns the record with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

// MemoryStore implements Store with an in-process slice.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Record
	now   func() time.Time
}

// NewMemoryStore returns an empty MemoryStore using the wall clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryStoreWithClock returns an empty MemoryStore stamping records with now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{now: now}
}

// Create appends a new record.
func (s *MemoryStore) Create(_ context.Context, normalizedText string) (Record, error) {
	if strings.TrimSpace(normalizedText) == "" {
		return Record{}, ErrEmptyText
	}

	record := Record{
		ID:        uuid.NewString(),
		RawText:   normalizedText,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.items = append(s.items, record)
	s.mu.Unlock()

	return record, nil
}

// List returns record summaries, newest first.
func (s *MemoryStore) List(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	summaries := make([]Summary, 0, len(s.items))
	for _, item := range s.items {
		summaries = append(summaries, item.Summary())
	}
	s.mu.RUnlock()

	sort.SliceStable(summaries, func(i, j int) bool {
		return Newer(summaries[i], summaries[j])
	})
	return summaries, nil
}

// Get looks up a record by identifier.
func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.ID == id {
			return item, nil
		}
	}
	return Record{}, ErrNotFound
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// UnavailableStore implements Store for a backend that could not be opened.
// Every call reports ErrStoreUnavailable wrapping the original cause.
type UnavailableStore struct {
	cause error
}

// NewUnavailableStore returns a Store that fails every call with cause.
func NewUnavailableStore(cause error) *UnavailableStore {
	return &UnavailableStore{cause: cause}
}

func (s *UnavailableStore) err() error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, s.cause)
}

func (s *UnavailableStore) Create(context.Context, string) (Record, error) { return Record{}, s.err() }

func (s *UnavailableStore) List(context.Context) ([]Summary, error) { return nil, s.err() }

func (s *UnavailableStore) Get(context.Context, string) (Record, error) { return Record{}, s.err() }

func (s *UnavailableStore) Ping(context.Context) error { return s.err() }
