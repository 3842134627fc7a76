// Package room tracks per-room read cursors for the sync engine. The store
// is the only holder of cursor state; the poll loop and the history loader
// mutate it exclusively through Upsert and Advance.
package room

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Cursor holds the forward read position for a single room.
//
// NextSeq is the continuation value to send as from_seq on the next forward
// poll; zero means "unset, let the server pick its default start point".
// LastSeenSeq is the highest sequence number actually observed and delivered.
// It never moves backward, even when a fetch returns overlapping or
// out-of-order entries. NextSeq is a server-assigned continuation token, so
// no numeric relationship with LastSeenSeq is assumed.
type Cursor struct {
	RoomID      string
	Name        string
	NextSeq     int64
	LastSeenSeq int64
}

// Store is a goroutine-safe map of room ID to cursor.
type Store struct {
	mu      sync.RWMutex
	cursors map[string]*Cursor
	log     zerolog.Logger
}

// NewStore creates an empty cursor store.
func NewStore(log zerolog.Logger) *Store {
	return &Store{
		cursors: make(map[string]*Cursor),
		log:     log,
	}
}

// Get returns a copy of the cursor for roomID, or false if the room is not
// tracked.
func (s *Store) Get(roomID string) (Cursor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cursors[roomID]
	if !ok {
		return Cursor{}, false
	}
	return *c, true
}

// Upsert registers a room. If the room is already tracked, only the display
// name is refreshed and the cursor is left untouched, so re-listing rooms
// never resets sync progress. Returns a copy of the resulting cursor.
func (s *Store) Upsert(roomID, name string) Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cursors[roomID]
	if !ok {
		c = &Cursor{RoomID: roomID, Name: name}
		s.cursors[roomID] = c
	} else if name != "" {
		c.Name = name
	}
	return *c
}

// Advance merges the result of a fetch into the room's cursor. NextSeq is
// raised to max(current, nextSeq) and LastSeenSeq to max(current,
// max(observedSeqs)). The max-merge is commutative and idempotent, so
// concurrent advances from the poll loop and the history loader converge to
// the same state regardless of interleaving.
//
// Advancing an unknown room indicates a caller bug; it is logged and
// ignored rather than treated as fatal.
func (s *Store) Advance(roomID string, nextSeq int64, observedSeqs []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cursors[roomID]
	if !ok {
		s.log.Warn().Str("room", roomID).Msg("advance on untracked room ignored")
		return
	}
	if nextSeq > c.NextSeq {
		c.NextSeq = nextSeq
	}
	for _, seq := range observedSeqs {
		if seq > c.LastSeenSeq {
			c.LastSeenSeq = seq
		}
	}
}

// Remove drops a room from the tracked set.
func (s *Store) Remove(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cursors, roomID)
}

// Snapshot returns copies of all tracked cursors, sorted by room ID for
// stable listing output.
func (s *Store) Snapshot() []Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Cursor, 0, len(s.cursors))
	for _, c := range s.cursors {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}
