// Package ids handles the platform's numeric identifiers, which appear in
// both base 10 and base 36 depending on the API surface. Stream IDs are shown
// as base 36 on the website but the chat endpoints key on base 10.
package ids

import (
	"fmt"
	"strconv"
)

// StreamID identifies a livestream. The canonical value is the base-10
// number; Base36 renders the form used in URLs and the Live Stream API.
type StreamID int64

// FromInt builds a StreamID from a base-10 number.
func FromInt(n int64) StreamID {
	return StreamID(n)
}

// Parse builds a StreamID from textual form. Strings are always parsed as
// base 36, even when only digits are present, matching how the platform
// renders them. Convert to an int and use FromInt for base-10 input.
func Parse(s string) (StreamID, error) {
	n, err := ToBase10(s)
	if err != nil {
		return 0, fmt.Errorf("parse stream id: %w", err)
	}
	return StreamID(n), nil
}

// Base10 returns the canonical numeric value, used by the chat endpoints.
func (id StreamID) Base10() int64 { return int64(id) }

// Base36 returns the textual form used on the website.
func (id StreamID) Base36() string { return ToBase36(int64(id)) }

func (id StreamID) String() string { return id.Base36() }

// ToBase36 renders a base-10 ID in base 36.
func ToBase36(n int64) string {
	return strconv.FormatInt(n, 36)
}

// ToBase10 parses a base-36 ID into its numeric value.
func ToBase10(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty id")
	}
	n, err := strconv.ParseInt(s, 36, 64)
	if err != nil {
		return 0, fmt.Errorf("id %q is not base 36: %w", s, err)
	}
	return n, nil
}
