// Package memstore is the default Metadata Store backend: a
// mutex-guarded, in-process map. A single sync.Mutex per store instance
// makes UpdateSessionStatus's compare-and-set linearizable per key, which
// is the only guarantee the Session Coordinator depends on.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"resumable-upload-core/pkg/metadata"
)

type sessionEntry struct {
	session metadata.UploadSession
	chunks  map[int]metadata.ChunkRecord
}

// Store is an in-memory metadata.Store.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{sessions: make(map[string]*sessionEntry)}
}

var _ metadata.Store = (*Store)(nil)

func (s *Store) PutSessionIfAbsent(_ context.Context, session metadata.UploadSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return metadata.ErrSessionExists
	}
	s.sessions[session.ID] = &sessionEntry{
		session: session,
		chunks:  make(map[int]metadata.ChunkRecord),
	}
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (metadata.UploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.sessions[id]
	if !exists {
		return metadata.UploadSession{}, metadata.ErrSessionNotFound
	}
	return entry.session, nil
}

func (s *Store) UpdateSessionStatus(_ context.Context, id string, from, to metadata.Status, patch metadata.StatusPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.sessions[id]
	if !exists {
		return false, metadata.ErrSessionNotFound
	}
	if entry.session.Status != from {
		return false, nil
	}

	entry.session.Status = to
	entry.session.UpdatedAt = patch.UpdatedAt
	if patch.FinalHash != "" {
		entry.session.FinalHash = patch.FinalHash
	}
	return true, nil
}

func (s *Store) PutChunksIfAbsent(_ context.Context, chunks []metadata.ChunkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		entry, exists := s.sessions[c.UploadID]
		if !exists {
			return metadata.ErrSessionNotFound
		}
		if _, already := entry.chunks[c.ChunkIndex]; already {
			continue
		}
		entry.chunks[c.ChunkIndex] = c
	}
	return nil
}

func (s *Store) SetChunkReceived(_ context.Context, uploadID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.sessions[uploadID]
	if !exists {
		return metadata.ErrSessionNotFound
	}
	now := time.Now()
	rec, exists := entry.chunks[index]
	if !exists {
		rec = metadata.ChunkRecord{UploadID: uploadID, ChunkIndex: index}
	}
	rec.Status = metadata.ChunkReceived
	rec.ReceivedAt = &now
	entry.chunks[index] = rec
	return nil
}

func (s *Store) GetChunk(_ context.Context, uploadID string, index int) (metadata.ChunkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.sessions[uploadID]
	if !exists {
		return metadata.ChunkRecord{}, metadata.ErrSessionNotFound
	}
	rec, exists := entry.chunks[index]
	if !exists {
		return metadata.ChunkRecord{}, metadata.ErrSessionNotFound
	}
	return rec, nil
}

func (s *Store) ListChunks(_ context.Context, uploadID string) ([]metadata.ChunkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.sessions[uploadID]
	if !exists {
		return nil, metadata.ErrSessionNotFound
	}
	out := make([]metadata.ChunkRecord, 0, len(entry.chunks))
	for _, rec := range entry.chunks {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (s *Store) CountReceived(_ context.Context, uploadID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.sessions[uploadID]
	if !exists {
		return 0, metadata.ErrSessionNotFound
	}
	count := 0
	for _, rec := range entry.chunks {
		if rec.Status == metadata.ChunkReceived {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListSessionsWhere(_ context.Context, statusIn []metadata.Status, olderThan time.Time) ([]metadata.UploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []metadata.UploadSession
	for _, entry := range s.sessions {
		if matchesSweep(entry.session, statusIn, olderThan) {
			out = append(out, entry.session)
		}
	}
	return out, nil
}

func (s *Store) DeleteSessionsWhere(_ context.Context, statusIn []metadata.Status, olderThan time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.sessions {
		if matchesSweep(entry.session, statusIn, olderThan) {
			delete(s.sessions, id)
		}
	}
	return nil
}

func matchesSweep(session metadata.UploadSession, statusIn []metadata.Status, olderThan time.Time) bool {
	if !session.CreatedAt.Before(olderThan) {
		return false
	}
	for _, st := range statusIn {
		if session.Status == st {
			return true
		}
	}
	return false
}
