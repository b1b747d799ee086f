package ephemeris

import (
	"sync"
)

// DefaultDepth is the number of versions kept for each satellite.
const DefaultDepth = 2

// Store caches the most recent ephemerides for each satellite, newest first.
// It's safe for concurrent use, so decoders for several streams can share
// one.
type Store struct {
	mutex sync.RWMutex
	depth int
	sats  map[string][]Ephemeris
}

// NewStore creates a Store keeping depth versions per satellite.  A depth
// less than one gives DefaultDepth.
func NewStore(depth int) *Store {
	if depth < 1 {
		depth = DefaultDepth
	}
	return &Store{depth: depth, sats: make(map[string][]Ephemeris)}
}

// Put adds an ephemeris.  It returns false if the store already holds a
// version with the same IOD or the new one is older than every version held
// and the list is full.
func (s *Store) Put(eph Ephemeris) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	name := eph.Satellite()
	list := s.sats[name]
	for _, e := range list {
		if e.IOD() == eph.IOD() {
			return false
		}
	}

	pos := len(list)
	for i, e := range list {
		if eph.IsNewerThan(e) {
			pos = i
			break
		}
	}
	if pos >= s.depth {
		return false
	}

	list = append(list, nil)
	copy(list[pos+1:], list[pos:])
	list[pos] = eph
	if len(list) > s.depth {
		list = list[:s.depth]
	}
	s.sats[name] = list
	return true
}

// Get returns the cached version of the satellite's ephemeris with the given
// IOD.
func (s *Store) Get(satellite string, iod int) (Ephemeris, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, e := range s.sats[satellite] {
		if e.IOD() == iod {
			return e, true
		}
	}
	return nil, false
}

// Latest returns the newest ephemeris for the satellite.
func (s *Store) Latest(satellite string) (Ephemeris, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	list := s.sats[satellite]
	if len(list) == 0 {
		return nil, false
	}
	return list[0], true
}

// Satellites returns the number of satellites with at least one ephemeris.
func (s *Store) Satellites() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.sats)
}

// Reset empties the store.
func (s *Store) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.sats = make(map[string][]Ephemeris)
}
