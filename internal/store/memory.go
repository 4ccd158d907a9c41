package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process RoomStore with the same versioned replace
// semantics as the Redis and Postgres backends. It backs local development
// when no backend is configured, and the service tests.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string]Room
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: map[string]Room{}}
}

func (s *MemoryStore) CreateRoom(ctx context.Context, room Room) (Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[room.ID]; ok {
		return Room{}, fmt.Errorf("create room %s: %w", room.ID, ErrAlreadyExists)
	}
	room.Version = 1
	now := time.Now().UTC()
	room.CreatedAt = now
	room.UpdatedAt = now
	s.rooms[room.ID] = room.Clone()
	return room, nil
}

func (s *MemoryStore) GetRoom(ctx context.Context, roomID string) (Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return Room{}, fmt.Errorf("get room %s: %w", roomID, ErrNotFound)
	}
	return room.Clone(), nil
}

func (s *MemoryStore) ReplaceRoom(ctx context.Context, room Room) (Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rooms[room.ID]
	if !ok {
		return Room{}, fmt.Errorf("replace room %s: %w", room.ID, ErrNotFound)
	}
	if current.Version != room.Version {
		return Room{}, fmt.Errorf("replace room %s: %w", room.ID, ErrVersionMismatch)
	}
	next := room.Clone()
	next.Version = current.Version + 1
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	s.rooms[room.ID] = next
	return next.Clone(), nil
}

func (s *MemoryStore) DeleteRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return fmt.Errorf("delete room %s: %w", roomID, ErrNotFound)
	}
	delete(s.rooms, roomID)
	return nil
}

func (s *MemoryStore) ListRooms(ctx context.Context, identity string) ([]Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rooms []Room
	for _, room := range s.rooms {
		if accessible(room, identity) {
			rooms = append(rooms, room.Clone())
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].UpdatedAt.Equal(rooms[j].UpdatedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
	return rooms, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
