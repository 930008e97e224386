package model

import "time"

// MessageKind tags a posted fleet notification.
type MessageKind string

const (
	KindCreation MessageKind = "creation"
	KindReminder MessageKind = "reminder"
	KindFormup   MessageKind = "formup"
)

// FleetMessage is a persisted pointer to one Discord message posted for a
// fleet. At most one row exists per (fleet, channel, kind); the storage
// layer enforces this with a unique index.
type FleetMessage struct {
	ID        int64
	FleetID   int64
	ChannelID string
	MessageID string
	Kind      MessageKind
	CreatedAt time.Time
}

// ChannelFleetList tracks the rolling "upcoming fleets" summary message in
// one channel. UpdatedAt is when the bot last posted/edited the summary;
// LastMessageAt is the most recent activity of any kind in the channel,
// fed by the transport's message watcher.
type ChannelFleetList struct {
	ChannelID     string
	MessageID     string
	LastMessageAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
