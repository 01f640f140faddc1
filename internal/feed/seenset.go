package feed

// seenSet tracks identities already delivered on one category this session,
// so transport redelivery never double-inserts. It keeps insertion order and
// evicts the oldest identity once capacity is exceeded, which bounds memory
// for long-lived sessions.
type seenSet struct {
	capacity int
	order    []Identity
	members  map[Identity]struct{}
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{
		capacity: capacity,
		members:  make(map[Identity]struct{}),
	}
}

func (s *seenSet) Has(id Identity) bool {
	_, ok := s.members[id]
	return ok
}

func (s *seenSet) Add(id Identity) {
	if _, ok := s.members[id]; ok {
		return
	}
	s.members[id] = struct{}{}
	s.order = append(s.order, id)
	if s.capacity > 0 && len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.members, oldest)
	}
}

func (s *seenSet) Len() int {
	return len(s.members)
}
