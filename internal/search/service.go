package search

import (
	"context"
	"log"
	"strings"

	"roomsync/api/internal/access"
	"roomsync/api/internal/store"
)

// Service searches room titles. It tries Meilisearch when healthy and falls
// back to a title scan over the caller's accessible rooms. Results are always
// access-filtered against the live room records, never against the index.
type Service struct {
	meili *Meili
	store store.RoomStore
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, s store.RoomStore) *Service {
	return &Service{meili: meili, store: s}
}

// Search returns rooms whose title matches the query and which the identity
// may read.
func (s *Service) Search(ctx context.Context, identity, query string, limit int) ([]store.Room, error) {
	if limit <= 0 {
		limit = 20
	}

	if s.meili != nil && s.meili.Healthy() {
		ids, err := s.meili.Search(query, limit)
		if err == nil {
			return s.resolve(ctx, identity, ids, limit)
		}
		log.Printf("search: meilisearch error, falling back to scan: %v", err)
	}

	return s.scan(ctx, identity, query, limit)
}

// resolve fetches each hit and drops rooms the identity cannot read, plus
// index entries that outlived their room.
func (s *Service) resolve(ctx context.Context, identity string, ids []string, limit int) ([]store.Room, error) {
	rooms := make([]store.Room, 0, len(ids))
	for _, id := range ids {
		room, err := s.store.GetRoom(ctx, id)
		if err != nil {
			continue
		}
		if access.LevelFor(room, identity) == access.LevelNone {
			continue
		}
		rooms = append(rooms, room)
		if len(rooms) == limit {
			break
		}
	}
	return rooms, nil
}

func (s *Service) scan(ctx context.Context, identity, query string, limit int) ([]store.Room, error) {
	all, err := s.store.ListRooms(ctx, identity)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	rooms := make([]store.Room, 0, limit)
	for _, room := range all {
		if needle != "" && !strings.Contains(strings.ToLower(room.Metadata.Title), needle) {
			continue
		}
		if access.LevelFor(room, identity) == access.LevelNone {
			continue
		}
		rooms = append(rooms, room)
		if len(rooms) == limit {
			break
		}
	}
	return rooms, nil
}

// IndexRoom indexes a room title (fire-and-forget to Meilisearch).
func (s *Service) IndexRoom(room store.Room) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := RoomRecord{
		ID:        room.ID,
		Title:     room.Metadata.Title,
		CreatorID: room.Metadata.CreatorID,
		UpdatedAt: room.UpdatedAt.Unix(),
	}
	go func() {
		if err := s.meili.IndexRoom(record); err != nil {
			log.Printf("search: index room %s: %v", record.ID, err)
		}
	}()
}

// RemoveRoom removes a room from the search index (fire-and-forget).
func (s *Service) RemoveRoom(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteRoom(id); err != nil {
			log.Printf("search: delete room %s: %v", id, err)
		}
	}()
}
