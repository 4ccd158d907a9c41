package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// Scope tokens as persisted in usersAccesses / defaultAccesses.
const (
	ScopeWrite = "room:write"
	ScopeRead  = "room:read"
)

// Collection field names inside room metadata.
const (
	CollectionChats = "chats"
	CollectionTasks = "tasks"
)

// Metadata is the per-room metadata record. The schema is fixed: the named
// fields below are the only ones the service mutates. Unknown fields written
// by older or newer clients land in Extra and are carried through every
// whole-record replace untouched.
type Metadata struct {
	CreatorID string
	Email     string
	Title     string
	Chats     []string
	Tasks     []string
	Extra     map[string]json.RawMessage
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+5)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["creatorId"] = m.CreatorID
	out["email"] = m.Email
	out["title"] = m.Title
	if m.Chats != nil {
		out["chats"] = m.Chats
	}
	if m.Tasks != nil {
		out["tasks"] = m.Tasks
	}
	return json.Marshal(out)
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal metadata: %w", err)
	}
	*m = Metadata{}
	for key, value := range raw {
		switch key {
		case "creatorId":
			if err := json.Unmarshal(value, &m.CreatorID); err != nil {
				return fmt.Errorf("metadata creatorId: %w", err)
			}
		case "email":
			if err := json.Unmarshal(value, &m.Email); err != nil {
				return fmt.Errorf("metadata email: %w", err)
			}
		case "title":
			if err := json.Unmarshal(value, &m.Title); err != nil {
				return fmt.Errorf("metadata title: %w", err)
			}
		case "chats":
			m.Chats = decodeStringList(value)
		case "tasks":
			m.Tasks = decodeStringList(value)
		default:
			if m.Extra == nil {
				m.Extra = map[string]json.RawMessage{}
			}
			m.Extra[key] = append(json.RawMessage(nil), value...)
		}
	}
	return nil
}

// decodeStringList accepts either a JSON array of strings or a single bare
// string. Some historical writers stored a one-entry collection as a string.
func decodeStringList(raw json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}
	return nil
}

// Clone returns a deep copy so callers can mutate one field without aliasing
// the snapshot they read.
func (m Metadata) Clone() Metadata {
	out := m
	out.Chats = append([]string(nil), m.Chats...)
	out.Tasks = append([]string(nil), m.Tasks...)
	if m.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// Room is the shared collaborative state container for one document.
// Version is the optimistic concurrency token: ReplaceRoom commits only when
// the stored version still equals the version the caller read.
type Room struct {
	ID              string              `json:"id"`
	Metadata        Metadata            `json:"metadata"`
	UsersAccesses   map[string][]string `json:"usersAccesses"`
	DefaultAccesses []string            `json:"defaultAccesses"`
	Version         int64               `json:"version"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func (r Room) Clone() Room {
	out := r
	out.Metadata = r.Metadata.Clone()
	out.DefaultAccesses = append([]string(nil), r.DefaultAccesses...)
	if r.UsersAccesses != nil {
		out.UsersAccesses = make(map[string][]string, len(r.UsersAccesses))
		for email, scopes := range r.UsersAccesses {
			out.UsersAccesses[email] = append([]string(nil), scopes...)
		}
	}
	return out
}

// ChatMessage is one chat entry, stored as one encoded string inside the
// chats collection.
type ChatMessage struct {
	ID        string `json:"id"`
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// Task is one task entry, stored as one encoded string inside the tasks
// collection.
type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Priority    TaskPriority `json:"priority"`
	DueDate     string       `json:"dueDate"`
	Assignee    string       `json:"assignee"`
	Completed   bool         `json:"completed"`
}
