package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	roomKeyPrefix = "room:"
	roomIndexKey  = "rooms:index"
	// InvalidationChannel carries room ids whose cached presentation must be
	// dropped. Published after every successful durable write.
	InvalidationChannel = "room:invalidate"
)

// RedisStore keeps each room as one JSON record under room:<id>. Replace
// safety comes from WATCH: the transaction aborts if the key changed between
// the snapshot read and the write.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func roomKey(roomID string) string {
	return roomKeyPrefix + roomID
}

func (s *RedisStore) CreateRoom(ctx context.Context, room Room) (Room, error) {
	room.Version = 1
	now := time.Now().UTC()
	room.CreatedAt = now
	room.UpdatedAt = now

	payload, err := json.Marshal(room)
	if err != nil {
		return Room{}, fmt.Errorf("marshal room: %w", err)
	}

	ok, err := s.client.SetNX(ctx, roomKey(room.ID), payload, 0).Result()
	if err != nil {
		return Room{}, fmt.Errorf("create room: %w", errors.Join(ErrUnavailable, err))
	}
	if !ok {
		return Room{}, fmt.Errorf("create room %s: %w", room.ID, ErrAlreadyExists)
	}
	if err := s.client.SAdd(ctx, roomIndexKey, room.ID).Err(); err != nil {
		return Room{}, fmt.Errorf("index room: %w", errors.Join(ErrUnavailable, err))
	}
	return room, nil
}

func (s *RedisStore) GetRoom(ctx context.Context, roomID string) (Room, error) {
	raw, err := s.client.Get(ctx, roomKey(roomID)).Result()
	if err == redis.Nil {
		return Room{}, fmt.Errorf("get room %s: %w", roomID, ErrNotFound)
	}
	if err != nil {
		return Room{}, fmt.Errorf("get room: %w", errors.Join(ErrUnavailable, err))
	}

	var room Room
	if err := json.Unmarshal([]byte(raw), &room); err != nil {
		return Room{}, fmt.Errorf("unmarshal room %s: %w", roomID, err)
	}
	return room, nil
}

func (s *RedisStore) ReplaceRoom(ctx context.Context, room Room) (Room, error) {
	key := roomKey(room.ID)
	next := room
	next.Version = room.Version + 1
	next.UpdatedAt = time.Now().UTC()

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return errors.Join(ErrUnavailable, err)
		}
		var current Room
		if err := json.Unmarshal([]byte(raw), &current); err != nil {
			return fmt.Errorf("unmarshal room %s: %w", room.ID, err)
		}
		if current.Version != room.Version {
			return ErrVersionMismatch
		}
		next.CreatedAt = current.CreatedAt
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal room: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Key changed between the watched read and EXEC.
		return Room{}, fmt.Errorf("replace room %s: %w", room.ID, ErrVersionMismatch)
	}
	if err != nil {
		return Room{}, fmt.Errorf("replace room %s: %w", room.ID, err)
	}
	return next, nil
}

func (s *RedisStore) DeleteRoom(ctx context.Context, roomID string) error {
	deleted, err := s.client.Del(ctx, roomKey(roomID)).Result()
	if err != nil {
		return fmt.Errorf("delete room: %w", errors.Join(ErrUnavailable, err))
	}
	if deleted == 0 {
		return fmt.Errorf("delete room %s: %w", roomID, ErrNotFound)
	}
	if err := s.client.SRem(ctx, roomIndexKey, roomID).Err(); err != nil {
		return fmt.Errorf("unindex room: %w", errors.Join(ErrUnavailable, err))
	}
	return nil
}

func (s *RedisStore) ListRooms(ctx context.Context, identity string) ([]Room, error) {
	ids, err := s.client.SMembers(ctx, roomIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", errors.Join(ErrUnavailable, err))
	}

	rooms := make([]Room, 0, len(ids))
	for _, id := range ids {
		room, err := s.GetRoom(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if accessible(room, identity) {
			rooms = append(rooms, room)
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
	return rooms, nil
}

// PublishInvalidation tells subscribers to drop any cached presentation of
// the room. Best-effort: a publish failure is the caller's to log, never a
// reason to fail the write that preceded it.
func (s *RedisStore) PublishInvalidation(ctx context.Context, roomID string) error {
	if err := s.client.Publish(ctx, InvalidationChannel, roomID).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// SubscribeInvalidations delivers invalidated room ids until ctx is done.
func (s *RedisStore) SubscribeInvalidations(ctx context.Context) <-chan string {
	sub := s.client.Subscribe(ctx, InvalidationChannel)
	out := make(chan string)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
