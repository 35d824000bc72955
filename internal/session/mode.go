package session

import (
	"fmt"
	"strings"
)

// FetchMode selects when planned associations are loaded.
type FetchMode int

const (
	// FetchEager runs every batch step before Query returns.
	FetchEager FetchMode = iota
	// FetchLazy runs a batch step when one of its owners first reads the association.
	FetchLazy
	// FetchPerRow loads every association one owner at a time.
	FetchPerRow
)

func (m FetchMode) String() string {
	switch m {
	case FetchEager:
		return "eager"
	case FetchLazy:
		return "lazy"
	case FetchPerRow:
		return "per_row"
	default:
		return fmt.Sprintf("fetch_mode(%d)", int(m))
	}
}

// ParseFetchMode parses a configured mode; the empty string means eager.
func ParseFetchMode(s string) (FetchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "eager":
		return FetchEager, nil
	case "lazy":
		return FetchLazy, nil
	case "per_row", "per-row", "perrow":
		return FetchPerRow, nil
	default:
		return 0, fmt.Errorf("unknown fetch mode %q", s)
	}
}
