// Package store persists room records. The backends expose get and
// whole-record replace only; there is no partial-field update primitive, so
// callers read a snapshot, compute a full replacement, and write it back
// guarded by the room's version token.
package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a room does not exist (or was deleted).
	ErrNotFound = errors.New("room not found")
	// ErrAlreadyExists is returned by CreateRoom on an id collision.
	ErrAlreadyExists = errors.New("room already exists")
	// ErrVersionMismatch is returned by ReplaceRoom when the room changed
	// since the caller's snapshot was read. Callers re-read and retry.
	ErrVersionMismatch = errors.New("room version mismatch")
	// ErrUnavailable wraps transient backend failures. The store never
	// retries on its own; retry policy belongs to the caller.
	ErrUnavailable = errors.New("store unavailable")
)

// RoomStore is the persistence surface for rooms.
type RoomStore interface {
	// CreateRoom persists a new room and returns it with Version set.
	CreateRoom(ctx context.Context, room Room) (Room, error)
	// GetRoom returns the current record, ErrNotFound if absent.
	GetRoom(ctx context.Context, roomID string) (Room, error)
	// ReplaceRoom writes the full record if the stored version still equals
	// room.Version, and returns the committed record with the new version.
	ReplaceRoom(ctx context.Context, room Room) (Room, error)
	// DeleteRoom removes the room permanently. Deleting an absent room
	// returns ErrNotFound.
	DeleteRoom(ctx context.Context, roomID string) error
	// ListRooms returns every room the identity can access, newest first.
	ListRooms(ctx context.Context, identity string) ([]Room, error)
	Ping(ctx context.Context) error
}

const maxApplyAttempts = 5

// Apply runs a read-merge-write cycle against the freshest snapshot: it
// fetches the room, passes a deep copy to mutate, and replaces the record
// under the version token, retrying from a fresh read on a concurrent write.
// The mutation itself is purely in-memory; only the final replace touches
// durable state, so a cancelled call never leaves a partial write.
func Apply(ctx context.Context, s RoomStore, roomID string, mutate func(Room) (Room, error)) (Room, error) {
	var lastErr error
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		room, err := s.GetRoom(ctx, roomID)
		if err != nil {
			return Room{}, err
		}
		next, err := mutate(room.Clone())
		if err != nil {
			return Room{}, err
		}
		next.ID = room.ID
		next.Version = room.Version
		committed, err := s.ReplaceRoom(ctx, next)
		if err == nil {
			return committed, nil
		}
		if !errors.Is(err, ErrVersionMismatch) {
			return Room{}, err
		}
		lastErr = err
	}
	return Room{}, fmt.Errorf("apply room %s: too much contention: %w", roomID, lastErr)
}

// accessible reports whether identity may see the room at all: an explicit
// usersAccesses entry, or a non-empty defaultAccesses list.
func accessible(room Room, identity string) bool {
	if _, ok := room.UsersAccesses[identity]; ok {
		return true
	}
	return len(room.DefaultAccesses) > 0
}
