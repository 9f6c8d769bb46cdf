package persona

// Store exposes the bot profiles a session can be opened with.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
	// Resolve picks the persona a new session answers as. An empty id
	// selects fallback, and an empty fallback selects DefaultID.
	Resolve(id, fallback string) (Persona, bool)
}

// MemoryStore keeps personas indexed by id. List preserves seed order and
// the first occurrence of a duplicated id wins.
type MemoryStore struct {
	order []string
	byID  map[string]Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
// Entries without an id are skipped.
func NewMemoryStore(items []Persona) *MemoryStore {
	s := &MemoryStore{byID: make(map[string]Persona, len(items))}
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		if _, dup := s.byID[item.ID]; dup {
			continue
		}
		s.order = append(s.order, item.ID)
		s.byID[item.ID] = item
	}
	return s
}

// List returns the personas in seed order.
func (s *MemoryStore) List() []Persona {
	out := make([]Persona, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// Resolve implements Store.
func (s *MemoryStore) Resolve(id, fallback string) (Persona, bool) {
	if id == "" {
		id = fallback
	}
	if id == "" {
		id = DefaultID
	}
	return s.FindByID(id)
}
