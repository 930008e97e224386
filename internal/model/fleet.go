package model

import "time"

// Fleet is a scheduled event with a start time, a commander, and custom
// field values keyed by ping format field id.
type Fleet struct {
	ID              int64
	CategoryID      int64
	Name            string
	CommanderID     string // Discord user id (snowflake string)
	FleetTime       time.Time
	Description     string
	Hidden          bool
	DisableReminder bool
	CreatedAt       time.Time
}

// FieldValues maps ping format field id to the raw value entered for a fleet.
type FieldValues map[int64]string
