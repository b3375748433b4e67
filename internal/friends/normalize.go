// Package friends owns the user friend list: the migration-aware normalizer
// for its stored shapes, and the update path that triggers the historical
// bill backfill.
package friends

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Friend is the canonical friend-list entry.
type Friend struct {
	UserID uuid.UUID `json:"userId"`
	Name   string    `json:"name,omitempty"`
}

// NormalizeList accepts either the current object form
// `[{"userId":...,"name":...}]` or the legacy plain-id form `["<uuid>",...]`
// and returns one canonical slice. Unknown shapes are an error, not a guess.
func NormalizeList(raw json.RawMessage) ([]Friend, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var current []Friend
	if err := json.Unmarshal(raw, &current); err == nil {
		return dedupe(current), nil
	}

	var legacy []string
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, fmt.Errorf("unrecognized friend list shape: %w", err)
	}

	out := make([]Friend, 0, len(legacy))
	for _, entry := range legacy {
		id, err := uuid.Parse(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid legacy friend id %q: %w", entry, err)
		}
		out = append(out, Friend{UserID: id})
	}
	return dedupe(out), nil
}

// MarshalList renders the canonical form for storage.
func MarshalList(list []Friend) (json.RawMessage, error) {
	if list == nil {
		list = []Friend{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// IDSet collapses a friend list to a membership set.
func IDSet(list []Friend) map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(list))
	for _, friend := range list {
		if friend.UserID != uuid.Nil {
			set[friend.UserID] = true
		}
	}
	return set
}

// AddedIDs returns the ids present in next but not in prev.
func AddedIDs(prev, next []Friend) []uuid.UUID {
	existing := IDSet(prev)
	added := []uuid.UUID{}
	for _, friend := range next {
		if friend.UserID == uuid.Nil || existing[friend.UserID] {
			continue
		}
		added = append(added, friend.UserID)
		existing[friend.UserID] = true
	}
	return added
}

func dedupe(list []Friend) []Friend {
	seen := map[uuid.UUID]bool{}
	out := make([]Friend, 0, len(list))
	for _, friend := range list {
		if friend.UserID == uuid.Nil || seen[friend.UserID] {
			continue
		}
		seen[friend.UserID] = true
		out = append(out, friend)
	}
	return out
}
