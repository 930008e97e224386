package storage

import (
	"context"
	"errors"
	"time"

	"fleetbot/internal/model"
	logx "fleetbot/pkg/logx"
)

var ErrNotFound = errors.New("not found")

// Config configures storage.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Store is the persistence API used by the notification engine, the
// scheduler and the fleet mutation service.
//
// Fleet message rows follow a reserve/finalize/release protocol: a row is
// first inserted with an empty message id (reserving the unique
// (fleet_id, channel_id, kind) slot before the external send), then either
// finalized with the posted message id or released on send failure. Reads
// only ever return finalized rows.
type Store interface {
	// Fleets
	CreateFleet(ctx context.Context, f model.Fleet, values model.FieldValues) (int64, error)
	UpdateFleet(ctx context.Context, f model.Fleet, values model.FieldValues) error
	DeleteFleet(ctx context.Context, id int64) error
	GetFleet(ctx context.Context, id int64) (model.Fleet, error)
	// ReminderCandidates returns non-hidden fleets with reminders enabled
	// whose fleet time is still in the future.
	ReminderCandidates(ctx context.Context, now time.Time) ([]model.Fleet, error)
	// FormupCandidates returns fleets whose fleet time is in [oldest, now].
	FormupCandidates(ctx context.Context, oldest, now time.Time) ([]model.Fleet, error)
	// UpcomingFleets returns non-hidden future fleets for the given
	// categories, ascending by fleet time.
	UpcomingFleets(ctx context.Context, categoryIDs []int64, now time.Time) ([]model.Fleet, error)
	FieldValues(ctx context.Context, fleetID int64) (model.FieldValues, error)

	// Categories and ping formats
	CreateCategory(ctx context.Context, c model.FleetCategory) (int64, error)
	GetCategory(ctx context.Context, id int64) (model.FleetCategory, error)
	CategoryIDsByChannel(ctx context.Context, channelID string) ([]int64, error)
	CategoryNames(ctx context.Context, ids []int64) (map[int64]string, error)
	// TrackedChannelIDs returns every channel any category posts into.
	TrackedChannelIDs(ctx context.Context) ([]string, error)
	CreatePingFormat(ctx context.Context, guildID, name string) (int64, error)
	CreateFormatField(ctx context.Context, f model.PingFormatField) (int64, error)
	FormatFields(ctx context.Context, pingFormatID int64) ([]model.PingFormatField, error)

	// Fleet messages
	ReserveMessage(ctx context.Context, fleetID int64, channelID string, kind model.MessageKind) (bool, error)
	FinalizeMessage(ctx context.Context, fleetID int64, channelID string, kind model.MessageKind, messageID string) error
	ReleaseMessage(ctx context.Context, fleetID int64, channelID string, kind model.MessageKind) error
	MessagesByFleet(ctx context.Context, fleetID int64) ([]model.FleetMessage, error)
	HasMessage(ctx context.Context, fleetID int64, kind model.MessageKind) (bool, error)

	// Channel fleet lists
	ChannelList(ctx context.Context, channelID string) (model.ChannelFleetList, bool, error)
	// UpsertChannelList records a summary post/edit: message id, updated_at
	// and last_message_at are all set to now.
	UpsertChannelList(ctx context.Context, channelID, messageID string) error
	// TouchChannelActivity bumps last_message_at (never updated_at) for a
	// tracked channel; untracked channels are a no-op.
	TouchChannelActivity(ctx context.Context, channelID string, at time.Time) error

	Close() error
}

// Open initializes the sqlite store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	return openSQLite(cfg, log)
}
