package utils

// IDSet is a set of listing identifiers.
type IDSet struct {
	seen map[string]struct{}
}

// NewIDSet creates an empty IDSet.
func NewIDSet() IDSet {
	return IDSet{seen: make(map[string]struct{})}
}

// Add returns true if id was newly added, false if already present.
func (s IDSet) Add(id string) bool {
	if _, exists := s.seen[id]; exists {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

// Contains returns true if id is in the set.
func (s IDSet) Contains(id string) bool {
	_, exists := s.seen[id]
	return exists
}

// Size returns the number of unique identifiers tracked.
func (s IDSet) Size() int {
	return len(s.seen)
}

// Union returns a new set holding the members of s plus ids.
func (s IDSet) Union(ids ...string) IDSet {
	out := IDSet{seen: make(map[string]struct{}, len(s.seen)+len(ids))}
	for id := range s.seen {
		out.seen[id] = struct{}{}
	}
	for _, id := range ids {
		out.seen[id] = struct{}{}
	}
	return out
}
