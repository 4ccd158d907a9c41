package access

import (
	"testing"

	"roomsync/api/internal/store"
)

func roomFixture() store.Room {
	return store.Room{
		ID: "room-1",
		Metadata: store.Metadata{
			CreatorID: "user-1",
			Email:     "owner@x.com",
			Title:     "Untitled",
		},
		UsersAccesses: map[string][]string{
			"owner@x.com":  {store.ScopeWrite},
			"editor@x.com": {store.ScopeWrite},
			"viewer@x.com": {store.ScopeRead},
		},
		DefaultAccesses: []string{},
	}
}

func TestLevelFor(t *testing.T) {
	room := roomFixture()

	cases := []struct {
		identity string
		want     Level
	}{
		{"owner@x.com", LevelOwner},
		{"editor@x.com", LevelWrite},
		{"viewer@x.com", LevelRead},
		{"stranger@x.com", LevelNone},
		{"", LevelNone},
	}
	for _, tc := range cases {
		if got := LevelFor(room, tc.identity); got != tc.want {
			t.Errorf("LevelFor(%q) = %v, want %v", tc.identity, got, tc.want)
		}
	}
}

func TestLevelForDefaultAccesses(t *testing.T) {
	room := roomFixture()
	room.DefaultAccesses = []string{store.ScopeRead}

	if got := LevelFor(room, "stranger@x.com"); got != LevelRead {
		t.Errorf("expected default read for stranger, got %v", got)
	}
	// Explicit entries still win over defaults.
	if got := LevelFor(room, "editor@x.com"); got != LevelWrite {
		t.Errorf("expected explicit write for editor, got %v", got)
	}
}

func TestCan(t *testing.T) {
	cases := []struct {
		level  Level
		action Action
		want   bool
	}{
		{LevelOwner, ActionDelete, true},
		{LevelWrite, ActionWrite, true},
		{LevelWrite, ActionShare, true},
		{LevelWrite, ActionDelete, true},
		{LevelRead, ActionRead, true},
		{LevelRead, ActionWrite, false},
		{LevelRead, ActionShare, false},
		{LevelNone, ActionRead, false},
	}
	for _, tc := range cases {
		if got := Can(tc.level, tc.action); got != tc.want {
			t.Errorf("Can(%v, %v) = %v, want %v", tc.level, tc.action, got, tc.want)
		}
	}
}

func TestScopesForRole(t *testing.T) {
	if got := ScopesForRole("editor"); len(got) != 1 || got[0] != store.ScopeWrite {
		t.Errorf("editor scopes = %v", got)
	}
	if got := ScopesForRole("viewer"); len(got) != 1 || got[0] != store.ScopeRead {
		t.Errorf("viewer scopes = %v", got)
	}
	if got := ScopesForRole("unknown"); got != nil {
		t.Errorf("unknown role scopes = %v", got)
	}
}

func TestNormalizeScopes(t *testing.T) {
	got := NormalizeScopes([]string{"room:admin", store.ScopeRead, "x", store.ScopeWrite})
	if len(got) != 2 || got[0] != store.ScopeRead || got[1] != store.ScopeWrite {
		t.Errorf("NormalizeScopes = %v", got)
	}
}
