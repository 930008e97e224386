package transport

import (
	"context"
	"time"
)

// MessageRef identifies one posted message.
type MessageRef struct {
	ChannelID string
	MessageID string
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a platform-neutral rich embed. The Discord adapter maps it onto
// the wire format; tests inspect it directly.
type Embed struct {
	Title       string
	URL         string
	Description string
	Color       int
	Fields      []EmbedField
	FooterText  string
	Timestamp   time.Time
}

type SendOptions struct {
	// ReplyTo threads the new message onto an existing one.
	ReplyTo *MessageRef
}

// Messenger is the outbound messaging API. All calls may fail transiently
// (rate limit, permission loss, message already deleted); callers treat
// failures as non-fatal per item.
type Messenger interface {
	SendMessage(ctx context.Context, channelID, content string, embed *Embed, opt *SendOptions) (MessageRef, error)
	// EditMessage replaces the embed; content is replaced only when non-nil.
	EditMessage(ctx context.Context, ref MessageRef, content *string, embed *Embed) error
	DeleteMessage(ctx context.Context, ref MessageRef) error

	// MemberDisplayName resolves a guild member's display name, best-effort.
	MemberDisplayName(ctx context.Context, guildID, userID string) (string, error)
}
