package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// LinkedLocalIDPrefix marks a bill participant whose local id resolves to a
// real user account ("user-<uid>"). Participants without the prefix are
// unlinked guests.
const LinkedLocalIDPrefix = "user-"

// Person is one participant on a bill, identified by a bill-local id.
type Person struct {
	LocalID string `json:"localId"`
	Name    string `json:"name"`
}

// UserID resolves the participant's real user id from the local-id
// convention. ok is false for unlinked guests.
func (p Person) UserID() (uuid.UUID, bool) {
	if !strings.HasPrefix(p.LocalID, LinkedLocalIDPrefix) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(p.LocalID, LinkedLocalIDPrefix))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// LocalIDForUser renders the linked local id for a user.
func LocalIDForUser(id uuid.UUID) string {
	return LinkedLocalIDPrefix + id.String()
}

// People maps a jsonb column onto the bill participant list.
type People []Person

func (p *People) Scan(src any) error  { return scanJSON("People", src, p) }
func (p People) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Person(p))
}

// ByLocalID returns the participant with the given local id.
func (p People) ByLocalID(localID string) (Person, bool) {
	for _, person := range p {
		if person.LocalID == localID {
			return person, true
		}
	}
	return Person{}, false
}

// Item is one line item on a bill, split equally among its assignees.
type Item struct {
	Description string   `json:"description"`
	Amount      float64  `json:"amount"`
	AssignedTo  []string `json:"assignedTo"`
}

// Items maps a jsonb column onto the bill's line items.
type Items []Item

func (i *Items) Scan(src any) error { return scanJSON("Items", src, i) }
func (i Items) Value() (driver.Value, error) {
	if i == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Item(i))
}

// Transfer is one optimized payment from a debtor to a creditor.
type Transfer struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
}

// Transfers maps a jsonb column onto an optimized-debt list.
type Transfers []Transfer

func (t *Transfers) Scan(src any) error { return scanJSON("Transfers", src, t) }
func (t Transfers) Value() (driver.Value, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Transfer(t))
}

func scanJSON(name string, src any, dest any) error {
	if src == nil {
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("%s: unsupported Scan type %T", name, src)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%s: decoding jsonb: %w", name, err)
	}
	return nil
}
