// Package session keeps per-connection streaming diarization state.
package session

import (
	"sync"
	"time"

	"github.com/codebuildervaibhav/voice-annotation/internal/types"
)

type state struct {
	segments []types.Segment
	offset   float64
	total    int
	lastSeen time.Time
}

// Store maps realtime session ids to their accumulated segments. Each
// session keeps at most maxSegments segments, oldest dropped first.
type Store struct {
	mu          sync.Mutex
	sessions    map[string]*state
	maxSegments int
	now         func() time.Time
}

func NewStore(maxSegments int) *Store {
	return &Store{
		sessions:    make(map[string]*state),
		maxSegments: maxSegments,
		now:         time.Now,
	}
}

// Append shifts segments by the session's running offset, stores them and
// advances the offset by duration. It returns the shifted segments and the
// number of segments appended to the session so far, including any that
// were dropped by the bound.
func (s *Store) Append(id string, segments []types.Segment, duration float64) ([]types.Segment, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[id]
	if !ok {
		st = &state{}
		s.sessions[id] = st
	}

	shifted := make([]types.Segment, len(segments))
	for i, seg := range segments {
		seg.Start += st.offset
		seg.End += st.offset
		shifted[i] = seg
	}
	st.segments = append(st.segments, shifted...)
	st.total += len(shifted)
	if s.maxSegments > 0 && len(st.segments) > s.maxSegments {
		st.segments = append([]types.Segment(nil), st.segments[len(st.segments)-s.maxSegments:]...)
	}
	st.offset += duration
	st.lastSeen = s.now()

	return shifted, st.total
}

// Segments returns a copy of the session's accumulated segments
func (s *Store) Segments(id string) []types.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return append([]types.Segment(nil), st.segments...)
}

// Clear drops all state of a session
func (s *Store) Clear(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// EvictIdle removes sessions not appended to within ttl and returns how
// many were removed.
func (s *Store) EvictIdle(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-ttl)
	removed := 0
	for id, st := range s.sessions {
		if st.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
