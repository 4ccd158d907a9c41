// Package codec converts logical collections (chat messages, tasks) to and
// from their wire form: an ordered sequence of independently-encoded JSON
// strings. Decoding is tolerant by design: a malformed entry is dropped and
// logged, never fatal, so one corrupt entry cannot block the rest of the
// collection from loading.
package codec

import (
	"encoding/json"
	"fmt"
	"log"

	"roomsync/api/internal/store"
)

// EncodeChats serializes messages in order, one JSON string per entry.
func EncodeChats(messages []store.ChatMessage) ([]string, error) {
	return encodeEntries("chat", messages)
}

// DecodeChats parses raw chat entries, skipping any that fail to parse.
func DecodeChats(raw []string) []store.ChatMessage {
	return decodeEntries[store.ChatMessage]("chat", raw)
}

// EncodeTasks serializes tasks in order, one JSON string per entry.
func EncodeTasks(tasks []store.Task) ([]string, error) {
	return encodeEntries("task", tasks)
}

// DecodeTasks parses raw task entries, skipping any that fail to parse.
func DecodeTasks(raw []string) []store.Task {
	return decodeEntries[store.Task]("task", raw)
}

func encodeEntries[T any](kind string, entries []T) ([]string, error) {
	out := make([]string, 0, len(entries))
	for i, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("encode %s entry %d: %w", kind, i, err)
		}
		out = append(out, string(data))
	}
	return out, nil
}

// decodeEntries parses each raw element on its own. Failures are strictly
// local: a bad entry yields nothing and the siblings still decode. A nil
// input yields an empty slice.
func decodeEntries[T any](kind string, raw []string) []T {
	out := make([]T, 0, len(raw))
	for i, element := range raw {
		var entry T
		if err := json.Unmarshal([]byte(element), &entry); err != nil {
			log.Printf("codec: skipping malformed %s entry %d: %v", kind, i, err)
			continue
		}
		out = append(out, entry)
	}
	return out
}
