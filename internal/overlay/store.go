package overlay

import (
	"slices"

	"github.com/google/uuid"
)

// Store is the ordered set of overlays for one editing session plus the
// current selection. It is plain data; callers serialize access.
type Store struct {
	items    []Overlay
	selected string
}

func NewStore() *Store {
	return &Store{}
}

// Add appends o under a freshly generated id and returns that id.
func (s *Store) Add(o Overlay) string {
	o = o.clone()
	o.ID = uuid.NewString()
	s.items = append(s.items, o)
	return o.ID
}

// Update merges p into the overlay with the given id. It reports false when
// no such overlay exists.
func (s *Store) Update(id string, p Patch) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	p.apply(&s.items[i])
	return true
}

// Remove deletes the overlay and clears the selection if it pointed there.
func (s *Store) Remove(id string) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	if s.selected == id {
		s.selected = ""
	}
	return true
}

// Select points the selection at id. An empty id clears it.
func (s *Store) Select(id string) {
	s.selected = id
}

func (s *Store) ClearSelection() {
	s.selected = ""
}

// SelectedID returns the selection pointer, or "" if nothing is selected.
// A pointer at a removed record reads as no selection.
func (s *Store) SelectedID() string {
	if s.index(s.selected) < 0 {
		return ""
	}
	return s.selected
}

func (s *Store) Selected() (Overlay, bool) {
	return s.Get(s.selected)
}

func (s *Store) Get(id string) (Overlay, bool) {
	i := s.index(id)
	if i < 0 {
		return Overlay{}, false
	}
	return s.items[i].clone(), true
}

// List returns copies of every overlay in insertion order.
func (s *Store) List() []Overlay {
	out := make([]Overlay, len(s.items))
	for i, o := range s.items {
		out[i] = o.clone()
	}
	return out
}

func (s *Store) Len() int {
	return len(s.items)
}

// Clear drops every overlay and the selection.
func (s *Store) Clear() {
	s.items = nil
	s.selected = ""
}

func (s *Store) index(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.items, func(o Overlay) bool { return o.ID == id })
}
