package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haavardst/solar-estimation/internal/solar"
)

var (
	// ErrNotFound is returned when no saved location exists for an ID.
	ErrNotFound = errors.New("no saved location for id")
	// ErrRoofNotFound is returned when a named roof surface does not exist.
	ErrRoofNotFound = errors.New("no roof surface with that name")
)

// SavedLocation is a user-saved location with its registered roof surfaces.
type SavedLocation struct {
	ID        string              `json:"id"`
	Location  solar.Location      `json:"location"`
	Roofs     []solar.RoofSurface `json:"roofs"`
	Favorite  bool                `json:"favorite"`
	CreatedAt time.Time           `json:"createdAt"`
}

// MemoryStore is a concurrency-safe in-memory store of saved locations.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*SavedLocation
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*SavedLocation),
	}
}

// Save stores a new location and returns it with a generated ID.
func (s *MemoryStore) Save(loc solar.Location) SavedLocation {
	saved := &SavedLocation{
		ID:        uuid.NewString(),
		Location:  loc,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.data[saved.ID] = saved
	s.mu.Unlock()
	return snapshot(saved)
}

// Get returns the saved location for an ID.
func (s *MemoryStore) Get(id string) (SavedLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	saved, ok := s.data[id]
	if !ok {
		return SavedLocation{}, ErrNotFound
	}
	return snapshot(saved), nil
}

// List returns all saved locations ordered by creation time.
func (s *MemoryStore) List() []SavedLocation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SavedLocation, 0, len(s.data))
	for _, saved := range s.data {
		out = append(out, snapshot(saved))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Delete removes a saved location.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[id]; !ok {
		return ErrNotFound
	}
	delete(s.data, id)
	return nil
}

// AddRoof registers a roof surface on a saved location. A surface with the
// same name is replaced wholesale; surfaces are never edited in place.
func (s *MemoryStore) AddRoof(id string, roof solar.RoofSurface) (SavedLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved, ok := s.data[id]
	if !ok {
		return SavedLocation{}, ErrNotFound
	}

	kept := saved.Roofs[:0]
	for _, r := range saved.Roofs {
		if r.Name != roof.Name {
			kept = append(kept, r)
		}
	}
	saved.Roofs = append(kept, roof)
	return snapshot(saved), nil
}

// RemoveRoof removes a named roof surface from a saved location.
func (s *MemoryStore) RemoveRoof(id, name string) (SavedLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved, ok := s.data[id]
	if !ok {
		return SavedLocation{}, ErrNotFound
	}

	for i, r := range saved.Roofs {
		if r.Name == name {
			saved.Roofs = append(saved.Roofs[:i], saved.Roofs[i+1:]...)
			return snapshot(saved), nil
		}
	}
	return SavedLocation{}, ErrRoofNotFound
}

// SetFavorite flags or unflags a saved location.
func (s *MemoryStore) SetFavorite(id string, favorite bool) (SavedLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved, ok := s.data[id]
	if !ok {
		return SavedLocation{}, ErrNotFound
	}
	saved.Favorite = favorite
	return snapshot(saved), nil
}

// snapshot copies a stored entry so callers never alias internal state.
func snapshot(saved *SavedLocation) SavedLocation {
	out := *saved
	out.Roofs = append([]solar.RoofSurface(nil), saved.Roofs...)
	return out
}
