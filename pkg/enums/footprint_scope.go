package enums

import "fmt"

// FootprintScope selects which of a bill's applied-footprint tokens an
// aggregate write reads and rewrites.
type FootprintScope string

const (
	// FootprintScopeGlobal targets the pairwise friend balance shared across
	// all bills between two users.
	FootprintScopeGlobal FootprintScope = "global"
	// FootprintScopeEvent targets the pairwise balance scoped to one event.
	FootprintScopeEvent FootprintScope = "event"
)

var validFootprintScopes = []FootprintScope{
	FootprintScopeGlobal,
	FootprintScopeEvent,
}

// IsValid reports whether the value is a known footprint scope.
func (s FootprintScope) IsValid() bool {
	for _, candidate := range validFootprintScopes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseFootprintScope converts raw input into FootprintScope.
func ParseFootprintScope(value string) (FootprintScope, error) {
	for _, candidate := range validFootprintScopes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid footprint scope %q", value)
}
