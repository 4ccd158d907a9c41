package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresStore persists rooms in a single table with jsonb payloads. The
// version column backs the compare-and-swap replace: an UPDATE guarded by
// WHERE version=$n either commits the whole record or touches nothing.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) CreateRoom(ctx context.Context, room Room) (Room, error) {
	metadata, accesses, defaults, err := marshalRoomFields(room)
	if err != nil {
		return Room{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO rooms (id, metadata, users_accesses, default_accesses, version)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (id) DO NOTHING
		RETURNING version, created_at, updated_at
	`, room.ID, metadata, accesses, defaults)
	if err := row.Scan(&room.Version, &room.CreatedAt, &room.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Room{}, fmt.Errorf("create room %s: %w", room.ID, ErrAlreadyExists)
		}
		return Room{}, fmt.Errorf("create room: %w", errors.Join(ErrUnavailable, err))
	}
	return room, nil
}

func (s *PostgresStore) GetRoom(ctx context.Context, roomID string) (Room, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, metadata, users_accesses, default_accesses, version, created_at, updated_at
		FROM rooms WHERE id = $1
	`, roomID)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, fmt.Errorf("get room %s: %w", roomID, ErrNotFound)
	}
	if err != nil {
		return Room{}, fmt.Errorf("get room: %w", err)
	}
	return room, nil
}

func (s *PostgresStore) ReplaceRoom(ctx context.Context, room Room) (Room, error) {
	metadata, accesses, defaults, err := marshalRoomFields(room)
	if err != nil {
		return Room{}, err
	}

	next := room
	row := s.db.QueryRowContext(ctx, `
		UPDATE rooms
		SET metadata = $2, users_accesses = $3, default_accesses = $4,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $5
		RETURNING version, created_at, updated_at
	`, room.ID, metadata, accesses, defaults, room.Version)
	err = row.Scan(&next.Version, &next.CreatedAt, &next.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Missing row or stale version; distinguish for the caller.
		var exists bool
		if checkErr := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM rooms WHERE id = $1)`, room.ID).Scan(&exists); checkErr != nil {
			return Room{}, fmt.Errorf("replace room: %w", errors.Join(ErrUnavailable, checkErr))
		}
		if !exists {
			return Room{}, fmt.Errorf("replace room %s: %w", room.ID, ErrNotFound)
		}
		return Room{}, fmt.Errorf("replace room %s: %w", room.ID, ErrVersionMismatch)
	}
	if err != nil {
		return Room{}, fmt.Errorf("replace room: %w", errors.Join(ErrUnavailable, err))
	}
	return next, nil
}

func (s *PostgresStore) DeleteRoom(ctx context.Context, roomID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, roomID)
	if err != nil {
		return fmt.Errorf("delete room: %w", errors.Join(ErrUnavailable, err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete room %s: %w", roomID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListRooms(ctx context.Context, identity string) ([]Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, metadata, users_accesses, default_accesses, version, created_at, updated_at
		FROM rooms
		WHERE users_accesses ? $1 OR jsonb_array_length(default_accesses) > 0
		ORDER BY updated_at DESC
	`, identity)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", errors.Join(ErrUnavailable, err))
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("list rooms: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func marshalRoomFields(room Room) (metadata, accesses, defaults []byte, err error) {
	metadata, err = json.Marshal(room.Metadata)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal metadata: %w", err)
	}
	userAccesses := room.UsersAccesses
	if userAccesses == nil {
		userAccesses = map[string][]string{}
	}
	accesses, err = json.Marshal(userAccesses)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal users accesses: %w", err)
	}
	defaultAccesses := room.DefaultAccesses
	if defaultAccesses == nil {
		defaultAccesses = []string{}
	}
	defaults, err = json.Marshal(defaultAccesses)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal default accesses: %w", err)
	}
	return metadata, accesses, defaults, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (Room, error) {
	var (
		room                         Room
		metadata, accesses, defaults []byte
	)
	if err := row.Scan(&room.ID, &metadata, &accesses, &defaults,
		&room.Version, &room.CreatedAt, &room.UpdatedAt); err != nil {
		return Room{}, err
	}
	if err := json.Unmarshal(metadata, &room.Metadata); err != nil {
		return Room{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if err := json.Unmarshal(accesses, &room.UsersAccesses); err != nil {
		return Room{}, fmt.Errorf("unmarshal users accesses: %w", err)
	}
	if err := json.Unmarshal(defaults, &room.DefaultAccesses); err != nil {
		return Room{}, fmt.Errorf("unmarshal default accesses: %w", err)
	}
	return room, nil
}
