package model

import "time"

// FleetCategory groups fleets by announcement channels, pinged roles and
// reminder timing. All ids are Discord snowflake strings.
type FleetCategory struct {
	ID           int64
	GuildID      string
	PingFormatID int64
	Name         string

	// LeadTime is how long before fleet time the reminder fires.
	// Zero means the category has no reminder configured.
	LeadTime time.Duration
	// ReminderCooldown is stored for the owning CRUD layer; the
	// notification policy does not consult it.
	ReminderCooldown time.Duration
	// MaxPrePing caps how far in advance a fleet may be scheduled.
	// Zero means no cap.
	MaxPrePing time.Duration

	ChannelIDs  []string
	PingRoleIDs []string
}
