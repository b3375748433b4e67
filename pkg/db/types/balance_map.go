package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// BalanceMap maps a jsonb column of user-id → signed amount onto a Go map.
// It is the stored shape of a bill's applied footprint and an event's net
// balances.
type BalanceMap map[string]float64

func (m *BalanceMap) Scan(src any) error {
	if src == nil {
		*m = BalanceMap{}
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("BalanceMap: unsupported Scan type %T", src)
	}

	if len(raw) == 0 {
		*m = BalanceMap{}
		return nil
	}

	out := map[string]float64{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("BalanceMap: decoding jsonb: %w", err)
	}
	*m = out
	return nil
}

func (m BalanceMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]float64(m))
}

// Get returns the amount for uid, defaulting missing keys to zero.
func (m BalanceMap) Get(uid string) float64 {
	if m == nil {
		return 0
	}
	return m[uid]
}

// Clone returns an independent copy of the map.
func (m BalanceMap) Clone() BalanceMap {
	out := make(BalanceMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
