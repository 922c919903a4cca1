package model

// Vocabulary maps names to dense integer ids.
// Ids below the reserved count are never handed out for names.
type Vocabulary struct {
	ids   map[string]int
	names []string
}

// NewVocabulary creates a vocabulary whose first ids are taken by the reserved names
func NewVocabulary(reserved ...string) *Vocabulary {
	v := &Vocabulary{
		ids: make(map[string]int, len(reserved)),
	}
	for _, name := range reserved {
		v.ids[name] = len(v.names)
		v.names = append(v.names, name)
	}
	return v
}

// Add returns the id of name, assigning the next free id if unseen
func (v *Vocabulary) Add(name string) int {
	if id, ok := v.ids[name]; ok {
		return id
	}
	id := len(v.names)
	v.ids[name] = id
	v.names = append(v.names, name)
	return id
}

// ID returns the id of name
func (v *Vocabulary) ID(name string) (int, bool) {
	id, ok := v.ids[name]
	return id, ok
}

// Name returns the name of id or an empty string
func (v *Vocabulary) Name(id int) string {
	if id < 0 || id >= len(v.names) {
		return ""
	}
	return v.names[id]
}

// Len returns the number of ids including reserved ones
func (v *Vocabulary) Len() int {
	return len(v.names)
}
