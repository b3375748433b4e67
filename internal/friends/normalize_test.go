package friends

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

var (
	idA = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	idB = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func TestNormalizeListCurrentShape(t *testing.T) {
	raw := json.RawMessage(`[{"userId":"` + idA.String() + `","name":"Ana"}]`)

	list, err := NormalizeList(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(list) != 1 || list[0].UserID != idA || list[0].Name != "Ana" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestNormalizeListLegacyShape(t *testing.T) {
	raw := json.RawMessage(`["` + idA.String() + `","` + idB.String() + `"]`)

	list, err := NormalizeList(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(list) != 2 || list[0].UserID != idA || list[1].UserID != idB {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestNormalizeListDedupes(t *testing.T) {
	raw := json.RawMessage(`["` + idA.String() + `","` + idA.String() + `"]`)

	list, err := NormalizeList(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected duplicates collapsed, got %+v", list)
	}
}

func TestNormalizeListRejectsGarbage(t *testing.T) {
	if _, err := NormalizeList(json.RawMessage(`{"not":"a list"}`)); err == nil {
		t.Fatal("expected error for unknown shape")
	}
	if _, err := NormalizeList(json.RawMessage(`["not-a-uuid"]`)); err == nil {
		t.Fatal("expected error for invalid legacy id")
	}
}

func TestNormalizeListEmpty(t *testing.T) {
	list, err := NormalizeList(nil)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %+v", list)
	}
}

func TestAddedIDs(t *testing.T) {
	prev := []Friend{{UserID: idA}}
	next := []Friend{{UserID: idA}, {UserID: idB}}

	added := AddedIDs(prev, next)
	if len(added) != 1 || added[0] != idB {
		t.Fatalf("expected only %s, got %v", idB, added)
	}

	if got := AddedIDs(next, prev); len(got) != 0 {
		t.Fatalf("removals are not additions, got %v", got)
	}
}
