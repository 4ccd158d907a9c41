package access

import (
	"context"
	"fmt"
	"strings"

	"roomsync/api/internal/notify"
	"roomsync/api/internal/store"
	"roomsync/api/internal/util"
)

// Grantor identifies who issued a grant, for the notification text.
type Grantor struct {
	Name  string
	Email string
}

// Notifier queues a best-effort notification. Delivery failures never roll
// back the grant that triggered them.
type Notifier interface {
	Enqueue(notice notify.Notice)
}

// Manager mutates a room's access mapping through the versioned replace
// path, so concurrent grants and collection writes cannot clobber each other.
type Manager struct {
	store    store.RoomStore
	notifier Notifier
}

func NewManager(s store.RoomStore, n Notifier) *Manager {
	return &Manager{store: s, notifier: n}
}

// CheckAccess fetches the current record and resolves the identity's level.
// Always reads fresh state; revocations are visible on the next call.
func (m *Manager) CheckAccess(ctx context.Context, roomID, identity string) (Level, error) {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return LevelNone, err
	}
	return LevelFor(room, identity), nil
}

// Grant sets the identity's scopes on the room and queues one notification
// to the recipient once the write has committed. The caller boundary is
// responsible for verifying the grantor holds write on the room.
func (m *Manager) Grant(ctx context.Context, roomID, email string, scopes []string, grantor Grantor) (store.Room, error) {
	scopes = NormalizeScopes(scopes)
	if len(scopes) == 0 {
		return store.Room{}, fmt.Errorf("grant to %s: no valid scopes: %w", email, ErrInvalidOperation)
	}

	room, err := store.Apply(ctx, m.store, roomID, func(r store.Room) (store.Room, error) {
		if r.UsersAccesses == nil {
			r.UsersAccesses = map[string][]string{}
		}
		r.UsersAccesses[email] = scopes
		return r, nil
	})
	if err != nil {
		return store.Room{}, err
	}

	if m.notifier != nil {
		m.notifier.Enqueue(notify.Notice{
			ID:        util.NewID("ntf"),
			Recipient: email,
			Kind:      notify.KindDocumentAccess,
			Payload: map[string]string{
				"roomId":    roomID,
				"scope":     strings.Join(scopes, ","),
				"updatedBy": grantor.Name,
				"email":     grantor.Email,
				"title": fmt.Sprintf("You have been granted %s access to the document by %s",
					levelFromScopes(scopes), grantor.Name),
			},
		})
	}
	return room, nil
}

// Revoke removes the identity's explicit entry. The recorded owner can never
// be revoked, not even by themselves.
func (m *Manager) Revoke(ctx context.Context, roomID, email string) (store.Room, error) {
	return store.Apply(ctx, m.store, roomID, func(r store.Room) (store.Room, error) {
		if email == r.Metadata.Email {
			return store.Room{}, fmt.Errorf("revoke %s: owner cannot be removed: %w", email, ErrInvalidOperation)
		}
		delete(r.UsersAccesses, email)
		return r, nil
	})
}
