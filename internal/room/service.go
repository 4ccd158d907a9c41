// Package room implements the lifecycle of collaborative rooms: create,
// read, rename, delete, listing, and the per-collection merge path that chat
// and task features mutate the shared metadata record through.
package room

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"roomsync/api/internal/access"
	"roomsync/api/internal/codec"
	"roomsync/api/internal/search"
	"roomsync/api/internal/store"
	"roomsync/api/internal/util"
)

// DefaultTitle is the title of a freshly created room.
const DefaultTitle = "Untitled"

// Invalidator receives the id of a room whose cached presentation is stale.
// Fired after every successful durable write; delivery is best-effort.
type Invalidator interface {
	Invalidate(ctx context.Context, roomID string) error
}

// InvalidatorFunc adapts a function to the Invalidator interface.
type InvalidatorFunc func(ctx context.Context, roomID string) error

func (f InvalidatorFunc) Invalidate(ctx context.Context, roomID string) error {
	return f(ctx, roomID)
}

// Service is the room lifecycle manager. Every access decision is taken
// against the record read for that very request; levels are never cached.
type Service struct {
	store       store.RoomStore
	access      *access.Manager
	invalidator Invalidator
	search      *search.Service
}

// NewService wires the lifecycle manager. invalidator and searcher may be
// nil when the deployment has no cache layer or search backend.
func NewService(s store.RoomStore, acl *access.Manager, invalidator Invalidator, searcher *search.Service) *Service {
	return &Service{store: s, access: acl, invalidator: invalidator, search: searcher}
}

// Create allocates a fresh room owned by the creator. The creator's email is
// the sole usersAccesses entry, with write scope; defaultAccesses starts
// empty so the room is private until shared.
func (s *Service) Create(ctx context.Context, creatorID, email string) (store.Room, error) {
	if creatorID == "" || email == "" {
		return store.Room{}, fmt.Errorf("create room: creator id and email required: %w", access.ErrInvalidOperation)
	}

	room := store.Room{
		ID: uuid.NewString(),
		Metadata: store.Metadata{
			CreatorID: creatorID,
			Email:     email,
			Title:     DefaultTitle,
		},
		UsersAccesses:   map[string][]string{email: {store.ScopeWrite}},
		DefaultAccesses: []string{},
	}

	created, err := s.store.CreateRoom(ctx, room)
	if err != nil {
		return store.Room{}, err
	}
	if s.search != nil {
		s.search.IndexRoom(created)
	}
	s.invalidate(ctx, created.ID)
	return created, nil
}

// Get fetches the room and refuses identities with no access. The check runs
// against the record just read, so a revocation is effective immediately.
func (s *Service) Get(ctx context.Context, roomID, identity string) (store.Room, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return store.Room{}, err
	}
	if !access.Can(access.LevelFor(room, identity), access.ActionRead) {
		return store.Room{}, fmt.Errorf("read room %s as %s: %w", roomID, identity, access.ErrForbidden)
	}
	return room, nil
}

// List returns the rooms the identity can access, newest first.
func (s *Service) List(ctx context.Context, identity string) ([]store.Room, error) {
	return s.store.ListRooms(ctx, identity)
}

// Rename replaces only the title field; collections and access mappings ride
// through the merge untouched.
func (s *Service) Rename(ctx context.Context, roomID, identity, title string) (store.Room, error) {
	if title == "" {
		return store.Room{}, fmt.Errorf("rename room: empty title: %w", access.ErrInvalidOperation)
	}
	room, err := store.Apply(ctx, s.store, roomID, func(r store.Room) (store.Room, error) {
		if !access.Can(access.LevelFor(r, identity), access.ActionWrite) {
			return store.Room{}, fmt.Errorf("rename room %s as %s: %w", roomID, identity, access.ErrForbidden)
		}
		r.Metadata.Title = title
		return r, nil
	})
	if err != nil {
		return store.Room{}, err
	}
	if s.search != nil {
		s.search.IndexRoom(room)
	}
	s.invalidate(ctx, roomID)
	return room, nil
}

// Delete removes the room permanently. All subsequent reads return NotFound.
func (s *Service) Delete(ctx context.Context, roomID, identity string) error {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !access.Can(access.LevelFor(room, identity), access.ActionDelete) {
		return fmt.Errorf("delete room %s as %s: %w", roomID, identity, access.ErrForbidden)
	}
	if err := s.store.DeleteRoom(ctx, roomID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.RemoveRoom(roomID)
	}
	s.invalidate(ctx, roomID)
	return nil
}

// Chats returns the decoded chat collection. Malformed entries are skipped
// by the codec, never fatal.
func (s *Service) Chats(ctx context.Context, roomID, identity string) ([]store.ChatMessage, error) {
	room, err := s.Get(ctx, roomID, identity)
	if err != nil {
		return nil, err
	}
	return codec.DecodeChats(room.Metadata.Chats), nil
}

// ReplaceChats persists the entire chat collection. Clients always send the
// whole collection, never a delta; the merge keeps sibling fields intact.
func (s *Service) ReplaceChats(ctx context.Context, roomID, identity string, messages []store.ChatMessage) ([]store.ChatMessage, error) {
	entries, err := codec.EncodeChats(messages)
	if err != nil {
		return nil, err
	}
	room, err := s.updateCollection(ctx, roomID, identity, store.CollectionChats, entries)
	if err != nil {
		return nil, err
	}
	return codec.DecodeChats(room.Metadata.Chats), nil
}

// Tasks returns the decoded task collection.
func (s *Service) Tasks(ctx context.Context, roomID, identity string) ([]store.Task, error) {
	room, err := s.Get(ctx, roomID, identity)
	if err != nil {
		return nil, err
	}
	return codec.DecodeTasks(room.Metadata.Tasks), nil
}

// ReplaceTasks persists the entire task collection.
func (s *Service) ReplaceTasks(ctx context.Context, roomID, identity string, tasks []store.Task) ([]store.Task, error) {
	entries, err := codec.EncodeTasks(tasks)
	if err != nil {
		return nil, err
	}
	room, err := s.updateCollection(ctx, roomID, identity, store.CollectionTasks, entries)
	if err != nil {
		return nil, err
	}
	return codec.DecodeTasks(room.Metadata.Tasks), nil
}

// AppendChat adds one message to the chat log. The append is applied to the
// freshest collection inside the merge cycle, so two concurrent senders both
// land even when they started from the same snapshot.
func (s *Service) AppendChat(ctx context.Context, roomID, identity string, message store.ChatMessage) ([]store.ChatMessage, error) {
	if message.ID == "" {
		message.ID = util.NewID("msg")
	}
	if message.User == "" {
		message.User = identity
	}
	if message.Timestamp == 0 {
		message.Timestamp = time.Now().UnixMilli()
	}

	room, err := s.transformCollection(ctx, roomID, identity, store.CollectionChats, func(raw []string) ([]string, error) {
		return codec.EncodeChats(append(codec.DecodeChats(raw), message))
	})
	if err != nil {
		return nil, err
	}
	return codec.DecodeChats(room.Metadata.Chats), nil
}

// AddTask appends a new task, assigning it an id and starting uncompleted.
func (s *Service) AddTask(ctx context.Context, roomID, identity string, task store.Task) ([]store.Task, error) {
	if task.ID == "" {
		task.ID = util.NewID("task")
	}
	if task.Priority == "" {
		task.Priority = store.PriorityMedium
	}
	task.Completed = false

	room, err := s.transformCollection(ctx, roomID, identity, store.CollectionTasks, func(raw []string) ([]string, error) {
		return codec.EncodeTasks(append(codec.DecodeTasks(raw), task))
	})
	if err != nil {
		return nil, err
	}
	return codec.DecodeTasks(room.Metadata.Tasks), nil
}

// ToggleTask flips the completion state of one task. Concurrent toggles of
// different tasks both survive: the second writer re-reads and re-applies
// its toggle over the first writer's committed collection.
func (s *Service) ToggleTask(ctx context.Context, roomID, identity, taskID string) ([]store.Task, error) {
	room, err := s.transformCollection(ctx, roomID, identity, store.CollectionTasks, func(raw []string) ([]string, error) {
		tasks := codec.DecodeTasks(raw)
		found := false
		for i := range tasks {
			if tasks[i].ID == taskID {
				tasks[i].Completed = !tasks[i].Completed
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("task %s: %w", taskID, store.ErrNotFound)
		}
		return codec.EncodeTasks(tasks)
	})
	if err != nil {
		return nil, err
	}
	return codec.DecodeTasks(room.Metadata.Tasks), nil
}

// RemoveTask deletes one task from the collection.
func (s *Service) RemoveTask(ctx context.Context, roomID, identity, taskID string) ([]store.Task, error) {
	room, err := s.transformCollection(ctx, roomID, identity, store.CollectionTasks, func(raw []string) ([]string, error) {
		tasks := codec.DecodeTasks(raw)
		kept := tasks[:0]
		for _, task := range tasks {
			if task.ID != taskID {
				kept = append(kept, task)
			}
		}
		if len(kept) == len(tasks) {
			return nil, fmt.Errorf("task %s: %w", taskID, store.ErrNotFound)
		}
		return codec.EncodeTasks(kept)
	})
	if err != nil {
		return nil, err
	}
	return codec.DecodeTasks(room.Metadata.Tasks), nil
}

// Share grants scopes to an email on behalf of the grantor, who must hold
// write or better. The grant notification is queued by the access manager
// after the write commits.
func (s *Service) Share(ctx context.Context, roomID string, grantor access.Grantor, email string, scopes []string) (store.Room, error) {
	level, err := s.access.CheckAccess(ctx, roomID, grantor.Email)
	if err != nil {
		return store.Room{}, err
	}
	if !access.Can(level, access.ActionShare) {
		return store.Room{}, fmt.Errorf("share room %s as %s: %w", roomID, grantor.Email, access.ErrForbidden)
	}
	room, err := s.access.Grant(ctx, roomID, email, scopes, grantor)
	if err != nil {
		return store.Room{}, err
	}
	s.invalidate(ctx, roomID)
	return room, nil
}

// Unshare removes an email's explicit access. The room owner can never be
// removed, not even by themselves.
func (s *Service) Unshare(ctx context.Context, roomID, requester, email string) (store.Room, error) {
	level, err := s.access.CheckAccess(ctx, roomID, requester)
	if err != nil {
		return store.Room{}, err
	}
	if !access.Can(level, access.ActionShare) {
		return store.Room{}, fmt.Errorf("unshare room %s as %s: %w", roomID, requester, access.ErrForbidden)
	}
	room, err := s.access.Revoke(ctx, roomID, email)
	if err != nil {
		return store.Room{}, err
	}
	s.invalidate(ctx, roomID)
	return room, nil
}

func (s *Service) invalidate(ctx context.Context, roomID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, roomID); err != nil {
		log.Printf("room: invalidate %s: %v", roomID, err)
	}
}
