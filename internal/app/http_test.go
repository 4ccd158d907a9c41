package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"roomsync/api/internal/access"
	"roomsync/api/internal/auth"
	"roomsync/api/internal/room"
	"roomsync/api/internal/search"
	"roomsync/api/internal/store"
)

var testSecret = []byte("http-test-secret")

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	ms := store.NewMemoryStore()
	acl := access.NewManager(ms, nil)
	rooms := room.NewService(ms, acl, nil, nil)
	searcher := search.NewService(nil, ms)
	server := NewHTTPServer(rooms, searcher, ms, testSecret, 15*time.Minute, "*")
	return server.Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, identity string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if identity != "" {
		req.Header.Set("X-User-Email", identity)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func createRoom(t *testing.T, handler http.Handler, email string) store.Room {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/rooms", email, map[string]string{
		"userId": "user-1",
		"email":  email,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create room: status %d, body %s", rec.Code, rec.Body.String())
	}
	var created store.Room
	decodeInto(t, rec, &created)
	return created
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(t)
	rec := doJSON(t, handler, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCreateAndGetRoom(t *testing.T) {
	handler := newTestServer(t)
	created := createRoom(t, handler, "owner@x.com")

	if created.Metadata.Title != room.DefaultTitle {
		t.Errorf("title = %q", created.Metadata.Title)
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/rooms/"+created.ID, "owner@x.com", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get room: status %d, body %s", rec.Code, rec.Body.String())
	}
	var got store.Room
	decodeInto(t, rec, &got)
	if got.ID != created.ID {
		t.Errorf("id = %q, want %q", got.ID, created.ID)
	}
}

func TestCreateRoomRejectsMissingFields(t *testing.T) {
	handler := newTestServer(t)
	rec := doJSON(t, handler, http.MethodPost, "/api/rooms", "", map[string]string{"userId": "user-1"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetRoomForbiddenForStranger(t *testing.T) {
	handler := newTestServer(t)
	created := createRoom(t, handler, "owner@x.com")

	rec := doJSON(t, handler, http.MethodGet, "/api/rooms/"+created.ID, "stranger@x.com", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestGetMissingRoom(t *testing.T) {
	handler := newTestServer(t)
	rec := doJSON(t, handler, http.MethodGet, "/api/rooms/nope", "owner@x.com", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRenameRoom(t *testing.T) {
	handler := newTestServer(t)
	created := createRoom(t, handler, "owner@x.com")

	rec := doJSON(t, handler, http.MethodPost, "/api/rooms/"+created.ID+"/title", "owner@x.com",
		map[string]string{"title": "Launch plan"})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename: status %d, body %s", rec.Code, rec.Body.String())
	}
	var renamed store.Room
	decodeInto(t, rec, &renamed)
	if renamed.Metadata.Title != "Launch plan" {
		t.Errorf("title = %q", renamed.Metadata.Title)
	}
}

func TestRenameRejectsEmptyTitle(t *testing.T) {
	handler := newTestServer(t)
	created := createRoom(t, handler, "owner@x.com")

	rec := doJSON(t, handler, http.MethodPost, "/api/rooms/"+created.ID+"/title", "owner@x.com",
		map[string]string{"title": ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestShareGrantsAccess(t *testing.T) {
	handler := newTestServer(t)
	created := createRoom(t, handler, "owner@x.com")

	rec := doJSON(t, handler, http.MethodPost, "/api/rooms/"+created.ID+"/access", "owner@x.com",
		map[string]string{"email": "friend@x.com", "role": "editor"})
	if rec.Code != http.StatusOK {
		t.Fatalf("share: status %d, body %s", rec.Code, rec.Body.String())
	}

	// The grant is effective on the collaborator's very next request.
	rec = doJSON(t, handler, http.MethodGet, "/api/rooms/"+created.ID, "friend@x.com", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("collaborator get: status %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestShareRequiresWriteLevel(t *testing.T) {
	handler := newTestServer(t)
	created := createRoom(t, handler, "owner@x.com")

	rec := doJSON(t, handler, http.MethodPost, "/api/rooms/"+created.ID+"/access", "stranger@x.com",
		map[string]string{"email": "friend@x.com", "role": "editor"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestUnshareOwnerRejected(t *testing.T) {
	handler := newTestServer(t)
	created := createRoom(t, handler, "owner@x.com")

	rec := doJSON(t, handler, http.MethodDelete, "/api/rooms/"+created.ID+"/access", "owner@x.com",
		map[string]string{"email": "owner@x.com"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400, body %s", rec.Code, rec.Body.String())
	}
}

func TestTaskFlow(t *testing.T) {
	handler := newTestServer(t)
	created := createRoom(t, handler, "owner@x.com")

	rec := doJSON(t, handler, http.MethodPost, "/api/rooms/"+created.ID+"/tasks", "owner@x.com",
		store.Task{Title: "Ship it"})
	if rec.Code != http.StatusOK {
		t.Fatalf("add task: status %d, body %s", rec.Code, rec.Body.String())
	}
	var tasksResp struct {
		Tasks []store.Task `json:"tasks"`
	}
	decodeInto(t, rec, &tasksResp)
	if len(tasksResp.Tasks) != 1 || tasksResp.Tasks[0].Completed {
		t.Fatalf("tasks = %+v", tasksResp.Tasks)
	}
	taskID := tasksResp.Tasks[0].ID

	rec = doJSON(t, handler, http.MethodPost,
		fmt.Sprintf("/api/rooms/%s/tasks/%s/toggle", created.ID, taskID), "owner@x.com", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: status %d, body %s", rec.Code, rec.Body.String())
	}
	decodeInto(t, rec, &tasksResp)
	if !tasksResp.Tasks[0].Completed {
		t.Errorf("task not completed after toggle")
	}

	rec = doJSON(t, handler, http.MethodDelete,
		fmt.Sprintf("/api/rooms/%s/tasks/%s", created.ID, taskID), "owner@x.com", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove: status %d, body %s", rec.Code, rec.Body.String())
	}
	decodeInto(t, rec, &tasksResp)
	if len(tasksResp.Tasks) != 0 {
		t.Errorf("tasks after remove = %+v", tasksResp.Tasks)
	}
}

func TestChatAppendRequiresWrite(t *testing.T) {
	handler := newTestServer(t)
	created := createRoom(t, handler, "owner@x.com")

	rec := doJSON(t, handler, http.MethodPost, "/api/rooms/"+created.ID+"/access", "owner@x.com",
		map[string]string{"email": "viewer@x.com", "role": "viewer"})
	if rec.Code != http.StatusOK {
		t.Fatalf("share: status %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/rooms/"+created.ID+"/chats", "viewer@x.com",
		store.ChatMessage{Text: "hello"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("viewer append: status %d, want 403", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/rooms/"+created.ID+"/chats", "viewer@x.com", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("viewer read: status %d, want 200", rec.Code)
	}
}

func TestDeleteRoomIsTerminal(t *testing.T) {
	handler := newTestServer(t)
	created := createRoom(t, handler, "owner@x.com")

	rec := doJSON(t, handler, http.MethodDelete, "/api/rooms/"+created.ID, "owner@x.com", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/rooms/"+created.ID, "owner@x.com", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status %d, want 404", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/rooms/"+created.ID, "owner@x.com", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: status %d, want 404", rec.Code)
	}
}

func TestRoomTokenCarriesScopes(t *testing.T) {
	handler := newTestServer(t)
	created := createRoom(t, handler, "owner@x.com")

	rec := doJSON(t, handler, http.MethodPost, "/api/rooms/"+created.ID+"/token", "owner@x.com", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("token: status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decodeInto(t, rec, &resp)

	claims, err := auth.ParseRoomToken(testSecret, resp.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.RoomID != created.ID {
		t.Errorf("roomId = %q", claims.RoomID)
	}
	if len(claims.Scopes) != 1 || claims.Scopes[0] != store.ScopeWrite {
		t.Errorf("scopes = %v", claims.Scopes)
	}
}

func TestRoomTokenForbiddenForStranger(t *testing.T) {
	handler := newTestServer(t)
	created := createRoom(t, handler, "owner@x.com")

	rec := doJSON(t, handler, http.MethodPost, "/api/rooms/"+created.ID+"/token", "stranger@x.com", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestSearchFallsBackToScan(t *testing.T) {
	handler := newTestServer(t)
	created := createRoom(t, handler, "owner@x.com")
	rec := doJSON(t, handler, http.MethodPost, "/api/rooms/"+created.ID+"/title", "owner@x.com",
		map[string]string{"title": "Quarterly review"})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename: status %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/search?q=quarterly", "owner@x.com", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Rooms []store.Room `json:"rooms"`
	}
	decodeInto(t, rec, &resp)
	if len(resp.Rooms) != 1 || resp.Rooms[0].ID != created.ID {
		t.Errorf("rooms = %+v", resp.Rooms)
	}

	// No hit for strangers even when the title matches.
	rec = doJSON(t, handler, http.MethodGet, "/api/search?q=quarterly", "stranger@x.com", nil)
	decodeInto(t, rec, &resp)
	if len(resp.Rooms) != 0 {
		t.Errorf("stranger rooms = %+v", resp.Rooms)
	}
}

func TestListRoomsByIdentity(t *testing.T) {
	handler := newTestServer(t)
	createRoom(t, handler, "a@x.com")
	createRoom(t, handler, "b@x.com")

	rec := doJSON(t, handler, http.MethodGet, "/api/rooms", "a@x.com", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var resp struct {
		Rooms []store.Room `json:"rooms"`
	}
	decodeInto(t, rec, &resp)
	if len(resp.Rooms) != 1 {
		t.Errorf("rooms = %d, want 1", len(resp.Rooms))
	}
}

func TestUnknownRoute(t *testing.T) {
	handler := newTestServer(t)
	rec := doJSON(t, handler, http.MethodGet, "/api/unknown", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
