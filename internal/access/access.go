// Package access decides who may do what on a room. Levels are derived from
// the scope tokens in the room record on every check; nothing is cached, so a
// grant or revocation takes effect on the very next request.
package access

import (
	"errors"

	"roomsync/api/internal/store"
)

type Level string
type Action string

const (
	LevelNone  Level = "none"
	LevelRead  Level = "read"
	LevelWrite Level = "write"
	LevelOwner Level = "owner"
)

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionShare  Action = "share"
	ActionDelete Action = "delete"
)

var (
	// ErrForbidden means the identity's level does not allow the action.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidOperation marks a structurally invalid request, such as
	// revoking the room owner's own access.
	ErrInvalidOperation = errors.New("invalid operation")
)

// LevelFor resolves the identity's level on a room snapshot. The owner is
// the creator identity recorded in the metadata at creation and outranks any
// explicit entry. Everyone else gets their usersAccesses entry if present,
// otherwise the room's defaultAccesses.
func LevelFor(room store.Room, identity string) Level {
	if identity != "" && identity == room.Metadata.Email {
		return LevelOwner
	}
	scopes, ok := room.UsersAccesses[identity]
	if !ok {
		scopes = room.DefaultAccesses
	}
	return levelFromScopes(scopes)
}

func levelFromScopes(scopes []string) Level {
	level := LevelNone
	for _, scope := range scopes {
		switch scope {
		case store.ScopeWrite:
			return LevelWrite
		case store.ScopeRead:
			level = LevelRead
		}
	}
	return level
}

func Can(level Level, action Action) bool {
	switch level {
	case LevelOwner:
		return true
	case LevelWrite:
		return action == ActionRead || action == ActionWrite || action == ActionShare || action == ActionDelete
	case LevelRead:
		return action == ActionRead
	default:
		return false
	}
}

// ScopesForRole maps the user-facing role names to scope tokens.
func ScopesForRole(role string) []string {
	switch role {
	case "creator", "editor":
		return []string{store.ScopeWrite}
	case "viewer":
		return []string{store.ScopeRead}
	default:
		return nil
	}
}

// ScopesForLevel maps a resolved level back to the scope tokens a room
// token should carry.
func ScopesForLevel(level Level) []string {
	switch level {
	case LevelOwner, LevelWrite:
		return []string{store.ScopeWrite}
	case LevelRead:
		return []string{store.ScopeRead}
	default:
		return nil
	}
}

// NormalizeScopes keeps known scope tokens only, preserving order.
func NormalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		if scope == store.ScopeWrite || scope == store.ScopeRead {
			out = append(out, scope)
		}
	}
	return out
}
