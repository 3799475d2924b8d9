package memory

import "time"

// Image is a point-in-time copy of the keyspace in a plain, encodable
// shape. Used by the snapshot layer to persist the store across restarts.
type Image struct {
	Entries map[string]ImageEntry
}

// ImageEntry mirrors one keyspace slot.
type ImageEntry struct {
	Kind     uint8
	Str      string
	List     []string
	Hash     map[string]string
	ExpireAt time.Time
}

// Dump copies the live keyspace into an Image. Expired keys are dropped
// on the way out.
func (s *Store) Dump() Image {
	s.mu.Lock()
	defer s.mu.Unlock()

	img := Image{Entries: make(map[string]ImageEntry, len(s.data))}
	now := s.clock()
	for key, e := range s.data {
		if !e.expireAt.IsZero() && now.After(e.expireAt) {
			continue
		}

		ie := ImageEntry{Kind: uint8(e.kind), ExpireAt: e.expireAt}
		switch e.kind {
		case kindString:
			ie.Str = e.str
		case kindList:
			ie.List = append([]string(nil), e.list...)
		case kindHash:
			ie.Hash = make(map[string]string, len(e.hash))
			for f, v := range e.hash {
				ie.Hash[f] = v
			}
		}
		img.Entries[key] = ie
	}

	return img
}

// Restore replaces the keyspace with the image's contents. Waiters blocked
// on lists that became non-empty are woken.
func (s *Store) Restore(img Image) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]*entry, len(img.Entries))
	for key, ie := range img.Entries {
		e := &entry{kind: valueKind(ie.Kind), expireAt: ie.ExpireAt}
		switch e.kind {
		case kindString:
			e.str = ie.Str
		case kindList:
			e.list = append([]string(nil), ie.List...)
		case kindHash:
			e.hash = make(map[string]string, len(ie.Hash))
			for f, v := range ie.Hash {
				e.hash[f] = v
			}
		default:
			continue
		}
		s.data[key] = e

		if e.kind == kindList && len(e.list) > 0 {
			s.wakeLocked(key, len(e.list))
		}
	}
}
