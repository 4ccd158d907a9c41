// Package app exposes the room service over HTTP. Request identities arrive
// resolved in headers; authenticating users is the front proxy's job, not
// this service's.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"roomsync/api/internal/access"
	"roomsync/api/internal/auth"
	"roomsync/api/internal/room"
	"roomsync/api/internal/search"
	"roomsync/api/internal/store"
)

type HTTPServer struct {
	rooms      *room.Service
	search     *search.Service
	store      store.RoomStore
	jwtSecret  []byte
	tokenTTL   time.Duration
	corsOrigin string
}

func NewHTTPServer(rooms *room.Service, searcher *search.Service, s store.RoomStore, jwtSecret []byte, tokenTTL time.Duration, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		rooms:      rooms,
		search:     searcher,
		store:      s,
		jwtSecret:  jwtSecret,
		tokenTTL:   tokenTTL,
		corsOrigin: corsOrigin,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withCORS(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-Email, X-User-Name")
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	if r.URL.Path == "/api/rooms" {
		switch r.Method {
		case http.MethodPost:
			s.handleCreateRoom(w, r)
		case http.MethodGet:
			s.handleListRooms(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
		}
		return
	}

	if rest, ok := strings.CutPrefix(r.URL.Path, "/api/rooms/"); ok {
		s.handleRoom(w, r, rest)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "No such route")
}

// handleRoom dispatches /api/rooms/{id}[/...] routes.
func (s *HTTPServer) handleRoom(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	roomID := parts[0]
	if roomID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ROOM_ID", "Room id required")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.handleGetRoom(w, r, roomID)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.handleDeleteRoom(w, r, roomID)
	case len(parts) == 2 && parts[1] == "title" && r.Method == http.MethodPost:
		s.handleRenameRoom(w, r, roomID)
	case len(parts) == 2 && parts[1] == "chats" && r.Method == http.MethodGet:
		s.handleGetChats(w, r, roomID)
	case len(parts) == 2 && parts[1] == "chats" && r.Method == http.MethodPut:
		s.handleReplaceChats(w, r, roomID)
	case len(parts) == 2 && parts[1] == "chats" && r.Method == http.MethodPost:
		s.handleAppendChat(w, r, roomID)
	case len(parts) == 2 && parts[1] == "tasks" && r.Method == http.MethodGet:
		s.handleGetTasks(w, r, roomID)
	case len(parts) == 2 && parts[1] == "tasks" && r.Method == http.MethodPut:
		s.handleReplaceTasks(w, r, roomID)
	case len(parts) == 2 && parts[1] == "tasks" && r.Method == http.MethodPost:
		s.handleAddTask(w, r, roomID)
	case len(parts) == 4 && parts[1] == "tasks" && parts[3] == "toggle" && r.Method == http.MethodPost:
		s.handleToggleTask(w, r, roomID, parts[2])
	case len(parts) == 3 && parts[1] == "tasks" && r.Method == http.MethodDelete:
		s.handleRemoveTask(w, r, roomID, parts[2])
	case len(parts) == 2 && parts[1] == "access" && r.Method == http.MethodPost:
		s.handleShare(w, r, roomID)
	case len(parts) == 2 && parts[1] == "access" && r.Method == http.MethodDelete:
		s.handleUnshare(w, r, roomID)
	case len(parts) == 2 && parts[1] == "token" && r.Method == http.MethodPost:
		s.handleRoomToken(w, r, roomID)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "No such route")
	}
}

func (s *HTTPServer) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
		Email  string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	created, err := s.rooms.Create(r.Context(), body.UserID, body.Email)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleListRooms(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	rooms, err := s.rooms.List(r.Context(), identity)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if rooms == nil {
		rooms = []store.Room{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (s *HTTPServer) handleGetRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	got, err := s.rooms.Get(r.Context(), roomID, identityFrom(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, got)
}

func (s *HTTPServer) handleDeleteRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	if err := s.rooms.Delete(r.Context(), roomID, identityFrom(r)); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *HTTPServer) handleRenameRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	var body struct {
		Title string `json:"title"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	renamed, err := s.rooms.Rename(r.Context(), roomID, identityFrom(r), body.Title)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renamed)
}

func (s *HTTPServer) handleGetChats(w http.ResponseWriter, r *http.Request, roomID string) {
	chats, err := s.rooms.Chats(r.Context(), roomID, identityFrom(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (s *HTTPServer) handleReplaceChats(w http.ResponseWriter, r *http.Request, roomID string) {
	var body struct {
		Chats []store.ChatMessage `json:"chats"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	chats, err := s.rooms.ReplaceChats(r.Context(), roomID, identityFrom(r), body.Chats)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (s *HTTPServer) handleAppendChat(w http.ResponseWriter, r *http.Request, roomID string) {
	var body store.ChatMessage
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	chats, err := s.rooms.AppendChat(r.Context(), roomID, identityFrom(r), body)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (s *HTTPServer) handleGetTasks(w http.ResponseWriter, r *http.Request, roomID string) {
	tasks, err := s.rooms.Tasks(r.Context(), roomID, identityFrom(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *HTTPServer) handleReplaceTasks(w http.ResponseWriter, r *http.Request, roomID string) {
	var body struct {
		Tasks []store.Task `json:"tasks"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	tasks, err := s.rooms.ReplaceTasks(r.Context(), roomID, identityFrom(r), body.Tasks)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *HTTPServer) handleAddTask(w http.ResponseWriter, r *http.Request, roomID string) {
	var body store.Task
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	tasks, err := s.rooms.AddTask(r.Context(), roomID, identityFrom(r), body)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *HTTPServer) handleToggleTask(w http.ResponseWriter, r *http.Request, roomID, taskID string) {
	tasks, err := s.rooms.ToggleTask(r.Context(), roomID, identityFrom(r), taskID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *HTTPServer) handleRemoveTask(w http.ResponseWriter, r *http.Request, roomID, taskID string) {
	tasks, err := s.rooms.RemoveTask(r.Context(), roomID, identityFrom(r), taskID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *HTTPServer) handleShare(w http.ResponseWriter, r *http.Request, roomID string) {
	var body struct {
		Email  string   `json:"email"`
		Role   string   `json:"role"`
		Scopes []string `json:"scopes"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	scopes := body.Scopes
	if len(scopes) == 0 {
		scopes = access.ScopesForRole(body.Role)
	}
	grantor := access.Grantor{Name: r.Header.Get("X-User-Name"), Email: identityFrom(r)}
	if grantor.Name == "" {
		grantor.Name = grantor.Email
	}
	shared, err := s.rooms.Share(r.Context(), roomID, grantor, body.Email, scopes)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shared)
}

func (s *HTTPServer) handleUnshare(w http.ResponseWriter, r *http.Request, roomID string) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	updated, err := s.rooms.Unshare(r.Context(), roomID, identityFrom(r), body.Email)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleRoomToken issues a short-lived token carrying the identity's current
// scopes on the room, for the realtime layer to verify.
func (s *HTTPServer) handleRoomToken(w http.ResponseWriter, r *http.Request, roomID string) {
	identity := identityFrom(r)
	got, err := s.rooms.Get(r.Context(), roomID, identity)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	scopes := access.ScopesForLevel(access.LevelFor(got, identity))
	token, err := auth.IssueRoomToken(s.jwtSecret, identity, roomID, scopes, s.tokenTTL)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresIn": int(s.tokenTTL.Seconds()),
	})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	rooms, err := s.search.Search(r.Context(), identityFrom(r), query, 20)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if rooms == nil {
		rooms = []store.Room{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms, "query": query})
}

func (s *HTTPServer) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	domainErr := toDomainError(err)
	if domainErr.Status >= http.StatusInternalServerError {
		log.Printf("app: %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeError(w, domainErr.Status, domainErr.Code, domainErr.Message)
}

func identityFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-Email"))
}

func decodeBody(r *http.Request, into any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("app: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}
