package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	rs, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return rs, s
}

func testRoom(id, email string) Room {
	return Room{
		ID: id,
		Metadata: Metadata{
			CreatorID: "user-1",
			Email:     email,
			Title:     "Untitled",
		},
		UsersAccesses:   map[string][]string{email: {ScopeWrite}},
		DefaultAccesses: []string{},
	}
}

func TestRedisCreateAndGetRoom(t *testing.T) {
	rs, s := setupTestRedis(t)
	defer rs.Close()
	defer s.Close()

	ctx := context.Background()
	created, err := rs.CreateRoom(ctx, testRoom("room-1", "a@x.com"))
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if created.Version != 1 {
		t.Errorf("expected version 1, got %d", created.Version)
	}

	got, err := rs.GetRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if got.Metadata.Title != "Untitled" {
		t.Errorf("expected title Untitled, got %q", got.Metadata.Title)
	}
	if got.UsersAccesses["a@x.com"][0] != ScopeWrite {
		t.Errorf("expected creator write scope, got %v", got.UsersAccesses["a@x.com"])
	}
}

func TestRedisCreateDuplicateRoom(t *testing.T) {
	rs, s := setupTestRedis(t)
	defer rs.Close()
	defer s.Close()

	ctx := context.Background()
	if _, err := rs.CreateRoom(ctx, testRoom("room-1", "a@x.com")); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	_, err := rs.CreateRoom(ctx, testRoom("room-1", "b@x.com"))
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestRedisGetMissingRoom(t *testing.T) {
	rs, s := setupTestRedis(t)
	defer rs.Close()
	defer s.Close()

	_, err := rs.GetRoom(context.Background(), "no-such-room")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisReplaceRoomBumpsVersion(t *testing.T) {
	rs, s := setupTestRedis(t)
	defer rs.Close()
	defer s.Close()

	ctx := context.Background()
	room, err := rs.CreateRoom(ctx, testRoom("room-1", "a@x.com"))
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	room.Metadata.Title = "Renamed"
	committed, err := rs.ReplaceRoom(ctx, room)
	if err != nil {
		t.Fatalf("ReplaceRoom failed: %v", err)
	}
	if committed.Version != 2 {
		t.Errorf("expected version 2, got %d", committed.Version)
	}

	got, err := rs.GetRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if got.Metadata.Title != "Renamed" {
		t.Errorf("expected title Renamed, got %q", got.Metadata.Title)
	}
}

func TestRedisReplaceRoomStaleVersion(t *testing.T) {
	rs, s := setupTestRedis(t)
	defer rs.Close()
	defer s.Close()

	ctx := context.Background()
	room, err := rs.CreateRoom(ctx, testRoom("room-1", "a@x.com"))
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	// Two writers read the same snapshot; the first commit wins.
	first := room.Clone()
	first.Metadata.Title = "First"
	if _, err := rs.ReplaceRoom(ctx, first); err != nil {
		t.Fatalf("first ReplaceRoom failed: %v", err)
	}

	second := room.Clone()
	second.Metadata.Title = "Second"
	_, err = rs.ReplaceRoom(ctx, second)
	if !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("expected ErrVersionMismatch, got %v", err)
	}

	got, err := rs.GetRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if got.Metadata.Title != "First" {
		t.Errorf("stale write clobbered the room, title %q", got.Metadata.Title)
	}
}

func TestRedisDeleteRoomIsTerminal(t *testing.T) {
	rs, s := setupTestRedis(t)
	defer rs.Close()
	defer s.Close()

	ctx := context.Background()
	if _, err := rs.CreateRoom(ctx, testRoom("room-1", "a@x.com")); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if err := rs.DeleteRoom(ctx, "room-1"); err != nil {
		t.Fatalf("DeleteRoom failed: %v", err)
	}

	if _, err := rs.GetRoom(ctx, "room-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := rs.DeleteRoom(ctx, "room-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestRedisListRoomsFiltersByAccess(t *testing.T) {
	rs, s := setupTestRedis(t)
	defer rs.Close()
	defer s.Close()

	ctx := context.Background()
	if _, err := rs.CreateRoom(ctx, testRoom("room-a", "a@x.com")); err != nil {
		t.Fatalf("CreateRoom room-a failed: %v", err)
	}
	if _, err := rs.CreateRoom(ctx, testRoom("room-b", "b@x.com")); err != nil {
		t.Fatalf("CreateRoom room-b failed: %v", err)
	}

	open := testRoom("room-open", "c@x.com")
	open.DefaultAccesses = []string{ScopeRead}
	if _, err := rs.CreateRoom(ctx, open); err != nil {
		t.Fatalf("CreateRoom room-open failed: %v", err)
	}

	rooms, err := rs.ListRooms(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("ListRooms failed: %v", err)
	}
	ids := map[string]bool{}
	for _, room := range rooms {
		ids[room.ID] = true
	}
	if !ids["room-a"] || !ids["room-open"] || ids["room-b"] {
		t.Errorf("unexpected listing for a@x.com: %v", ids)
	}
}

func TestRedisRoundTripPreservesExtraFields(t *testing.T) {
	rs, s := setupTestRedis(t)
	defer rs.Close()
	defer s.Close()

	ctx := context.Background()
	room := testRoom("room-1", "a@x.com")
	room.Metadata.Extra = map[string]json.RawMessage{
		"theme": json.RawMessage(`"dark"`),
	}
	if _, err := rs.CreateRoom(ctx, room); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	got, err := rs.GetRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if string(got.Metadata.Extra["theme"]) != `"dark"` {
		t.Errorf("extra field lost, got %v", got.Metadata.Extra)
	}
}
