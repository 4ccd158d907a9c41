package room

import (
	"context"
	"fmt"

	"roomsync/api/internal/access"
	"roomsync/api/internal/store"
)

// withCollection returns the metadata with exactly the named collection
// replaced by entries. Every other field, including sibling collections and
// unknown Extra fields, is carried through by value. The store offers no
// partial-field update, so this merge is what keeps independent features
// from clobbering each other's collections on a whole-record replace.
func withCollection(meta store.Metadata, collection string, entries []string) (store.Metadata, error) {
	next := meta.Clone()
	switch collection {
	case store.CollectionChats:
		next.Chats = append([]string(nil), entries...)
	case store.CollectionTasks:
		next.Tasks = append([]string(nil), entries...)
	default:
		return store.Metadata{}, fmt.Errorf("unknown collection %q: %w", collection, access.ErrInvalidOperation)
	}
	return next, nil
}

// transformCollection runs the read-merge-write cycle for one collection on
// the freshest snapshot, retrying on version conflicts, and returns the
// committed room. Two callers mutating different collections on the same
// room both land; the loser of the race re-reads and re-merges over the
// winner's write. Entry-level operations (append a chat, toggle a task) pass
// a transform so that a retry recomputes against the other writer's entries
// instead of resurrecting a stale snapshot. The access check runs inside the
// cycle, against the same snapshot that gets replaced, so a revocation
// landing mid-retry still takes effect.
func (s *Service) transformCollection(ctx context.Context, roomID, identity, collection string, transform func([]string) ([]string, error)) (store.Room, error) {
	room, err := store.Apply(ctx, s.store, roomID, func(r store.Room) (store.Room, error) {
		if !access.Can(access.LevelFor(r, identity), access.ActionWrite) {
			return store.Room{}, fmt.Errorf("write room %s as %s: %w", roomID, identity, access.ErrForbidden)
		}
		current := r.Metadata.Chats
		if collection == store.CollectionTasks {
			current = r.Metadata.Tasks
		}
		entries, err := transform(current)
		if err != nil {
			return store.Room{}, err
		}
		merged, err := withCollection(r.Metadata, collection, entries)
		if err != nil {
			return store.Room{}, err
		}
		r.Metadata = merged
		return r, nil
	})
	if err != nil {
		return store.Room{}, err
	}
	s.invalidate(ctx, roomID)
	return room, nil
}

// updateCollection replaces the named collection wholesale, as the
// presentation layer does after a local mutation.
func (s *Service) updateCollection(ctx context.Context, roomID, identity, collection string, entries []string) (store.Room, error) {
	return s.transformCollection(ctx, roomID, identity, collection, func([]string) ([]string, error) {
		return entries, nil
	})
}
