package room

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrAlreadyExists is returned when creating a room whose ID is taken.
var ErrAlreadyExists = errors.New("room already exists")

// Room is a named channel with a set of occupant display names.
// The occupant set is owned by the Registry and mutated only through it.
type Room struct {
	ID        string
	Name      string
	occupants map[string]struct{}
}

// Info is the external view of a room for listings.
type Info struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Users int    `json:"users"`
}

// NormalizeID derives a room ID from a display name: lowercased, spaces
// collapsed to single dashes, everything outside [a-z0-9-] stripped.
// The result is deterministic; an empty result means the name cannot
// form a valid ID.
func NormalizeID(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case r == ' ' || r == '-' || r == '_':
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Registry maps room IDs to rooms. Rooms are created at startup or on
// request and are never deleted.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
	}
}

// Create adds a new room. It returns ErrAlreadyExists if the ID is taken.
func (r *Registry) Create(id, name string) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[id]; ok {
		return nil, ErrAlreadyExists
	}
	rm := &Room{
		ID:        id,
		Name:      name,
		occupants: make(map[string]struct{}),
	}
	r.rooms[id] = rm
	return rm, nil
}

// Get returns a room by ID, or nil if not found.
func (r *Registry) Get(id string) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[id]
}

// List returns all rooms sorted by ID.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Info, 0, len(r.rooms))
	for _, rm := range r.rooms {
		result = append(result, Info{ID: rm.ID, Name: rm.Name, Users: len(rm.occupants)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// AddOccupant records a display name as present in a room. It returns
// false if the room does not exist.
func (r *Registry) AddOccupant(id, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[id]
	if !ok {
		return false
	}
	rm.occupants[username] = struct{}{}
	return true
}

// RemoveOccupant removes a display name from a room's occupant set.
// Removing a name that is not present is a no-op.
func (r *Registry) RemoveOccupant(id, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[id]; ok {
		delete(rm.occupants, username)
	}
}

// Occupants returns the sorted occupant names of a room.
func (r *Registry) Occupants(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[id]
	if !ok {
		return nil
	}
	result := make([]string, 0, len(rm.occupants))
	for name := range rm.occupants {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}
