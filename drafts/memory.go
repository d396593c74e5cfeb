package drafts

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// expiredGrace keeps expired drafts around long enough to report ErrExpired.
const expiredGrace = 10 * time.Minute

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu    sync.Mutex // serializes removals
	items *cache.Cache
	now   func() time.Time
}

// NewMemoryStore creates a MemoryStore purging expired drafts every cleanup interval.
func NewMemoryStore(cleanup time.Duration) *MemoryStore {
	if cleanup <= 0 {
		cleanup = 10 * time.Minute
	}
	return &MemoryStore{
		items: cache.New(cache.NoExpiration, cleanup),
		now:   time.Now,
	}
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Put(_ context.Context, d *Draft) error {
	if err := validate(d); err != nil {
		return err
	}
	ttl := cache.NoExpiration
	if !d.ExpiresAt.IsZero() {
		ttl = d.ExpiresAt.Sub(s.now()) + expiredGrace
		if ttl <= 0 {
			ttl = time.Nanosecond
		}
	}
	cp := *d
	if err := s.items.Add(d.ID, &cp, ttl); err != nil {
		return ErrDuplicateKey
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Draft, error) {
	v, ok := s.items.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	d := *(v.(*Draft))
	if d.Expired(s.now()) {
		return nil, ErrExpired
	}
	return &d, nil
}

func (s *MemoryStore) Claim(_ context.Context, id, owner string) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.items.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	d := *(v.(*Draft))
	if d.Owner != owner {
		return nil, ErrNotFound
	}
	if d.Expired(s.now()) {
		return nil, ErrExpired
	}
	s.items.Delete(id)
	return &d, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items.Get(id); !ok {
		return ErrNotFound
	}
	s.items.Delete(id)
	return nil
}

// Len is the number of stored drafts, expired ones included until purged.
func (s *MemoryStore) Len() int {
	return s.items.ItemCount()
}
