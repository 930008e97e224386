// Package snowflake validates Discord snowflake ids.
//
// Ids are stored and passed around as strings (that is what the Discord API
// speaks), but a handful of call sites need the numeric form or at least a
// guarantee that the string is numeric before building API calls from it.
package snowflake

import (
	"fmt"
	"strconv"
)

// Parse converts a snowflake string to its numeric form.
func Parse(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed snowflake id %q: %w", s, err)
	}
	return v, nil
}

// Valid reports whether s parses as a snowflake.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}
