package notify

import (
	"context"
	"fmt"
	"strings"

	"fleetbot/internal/model"
	"fleetbot/internal/snowflake"
	"fleetbot/internal/transport"
	logx "fleetbot/pkg/logx"
)

// Per-kind embed colors. Purely visual, nothing keys off them.
const (
	colorCreation = 0x3498db
	colorReminder = 0xf39c12
	colorFormup   = 0xe74c3c
	colorCancel   = 0x95a5a6
	colorList     = 0x5865F2
)

const eveTimeLayout = "2006-01-02 15:04"

func colorFor(kind model.MessageKind) int {
	switch kind {
	case model.KindReminder:
		return colorReminder
	case model.KindFormup:
		return colorFormup
	default:
		return colorCreation
	}
}

func titleFor(kind model.MessageKind, category string) string {
	switch kind {
	case model.KindCreation:
		return fmt.Sprintf("**.:New Upcoming %s:.**", category)
	case model.KindReminder:
		return fmt.Sprintf("**.:Reminder - Upcoming %s:.**", category)
	case model.KindFormup:
		return fmt.Sprintf("**.:%s Forming Now:.**", category)
	default:
		return fmt.Sprintf("**.:%s Notification:.**", category)
	}
}

// pingContent builds the message body above the embed: the kind title plus
// one mention per configured role. A role id equal to the guild's own id is
// the @everyone role and renders as the @everyone token instead of a role
// mention. Malformed ids abort composition.
func pingContent(kind model.MessageKind, cat model.FleetCategory) (string, error) {
	guildID, err := snowflake.Parse(cat.GuildID)
	if err != nil {
		return "", fmt.Errorf("guild id: %w", err)
	}
	var b strings.Builder
	b.WriteString(titleFor(kind, cat.Name))
	b.WriteString("\n\n")
	for _, role := range cat.PingRoleIDs {
		roleID, err := snowflake.Parse(role)
		if err != nil {
			return "", fmt.Errorf("role id: %w", err)
		}
		if roleID == guildID {
			b.WriteString("@everyone ")
		} else {
			fmt.Fprintf(&b, "<@&%d> ", roleID)
		}
	}
	return b.String(), nil
}

// commanderName resolves the fleet commander's guild display name,
// best-effort. Lookup failures fall back to a plain id placeholder so a
// departed member never blocks composition.
func (s *Service) commanderName(ctx context.Context, guildID string, f model.Fleet) string {
	name, err := s.msgr.MemberDisplayName(ctx, guildID, f.CommanderID)
	if err != nil {
		s.log.Warn("failed to resolve commander name",
			logx.Int64("fleet_id", f.ID),
			logx.String("commander_id", f.CommanderID),
			logx.Err(err))
		return fmt.Sprintf("User %s", f.CommanderID)
	}
	return name
}

// buildFleetEmbed renders the shared notification embed: commander mention,
// fleet time in both fixed-UTC and viewer-local forms, the category's custom
// fields in priority order, and an optional free-text tail.
func (s *Service) buildFleetEmbed(f model.Fleet, fields []model.PingFormatField, values model.FieldValues, color int, commanderName string) *transport.Embed {
	unix := f.FleetTime.Unix()
	e := &transport.Embed{
		Title: f.Name,
		URL:   s.appURL,
		Color: color,
		Fields: []transport.EmbedField{
			{Name: "FC", Value: fmt.Sprintf("<@%s>", f.CommanderID)},
			{Name: "Start Time (UTC)", Value: fmt.Sprintf("%s EVE Time", f.FleetTime.UTC().Format(eveTimeLayout))},
			{Name: "Start Time (Local)", Value: fmt.Sprintf("<t:%d:F> - <t:%d:R>", unix, unix)},
		},
		FooterText: fmt.Sprintf("Sent by: %s", commanderName),
		Timestamp:  s.now().UTC(),
	}

	for _, field := range fields {
		value, ok := values[field.ID]
		if !ok || value == "" {
			continue
		}
		if field.Type == model.FieldBool {
			switch value {
			case "true":
				value = "Yes"
			case "false":
				value = "No"
			}
		}
		e.Fields = append(e.Fields, transport.EmbedField{Name: field.Name, Value: value})
	}

	if f.Description != "" {
		e.Fields = append(e.Fields, transport.EmbedField{Name: "Additional Information", Value: f.Description})
	}
	return e
}

// cancelEmbed renders the gray tombstone that replaces every notification
// when a fleet is cancelled.
func (s *Service) cancelEmbed(f model.Fleet, categoryName, cancelledBy string) *transport.Embed {
	return &transport.Embed{
		Title: fmt.Sprintf(".:%s Cancelled:.", categoryName),
		URL:   s.appURL,
		Color: colorCancel,
		Description: fmt.Sprintf(
			"%s posted by <@%s>, **%s**, scheduled for **%s UTC** (<t:%d:F>) was cancelled.",
			categoryName, f.CommanderID, f.Name,
			f.FleetTime.UTC().Format(eveTimeLayout), f.FleetTime.Unix(),
		),
		FooterText: fmt.Sprintf("Cancelled by: %s", cancelledBy),
		Timestamp:  s.now().UTC(),
	}
}

// composed is one fully rendered notification ready to dispatch.
type composed struct {
	content string
	embed   *transport.Embed
}

// compose loads the fleet's category and ping format, resolves the
// commander, and renders the content plus embed for the given kind.
// Persistence and malformed-id errors propagate; directory lookup failures
// do not.
func (s *Service) compose(ctx context.Context, f model.Fleet, kind model.MessageKind) (composed, model.FleetCategory, error) {
	cat, err := s.store.GetCategory(ctx, f.CategoryID)
	if err != nil {
		return composed{}, model.FleetCategory{}, fmt.Errorf("load category %d: %w", f.CategoryID, err)
	}
	fields, err := s.store.FormatFields(ctx, cat.PingFormatID)
	if err != nil {
		return composed{}, model.FleetCategory{}, fmt.Errorf("load ping format %d: %w", cat.PingFormatID, err)
	}
	values, err := s.store.FieldValues(ctx, f.ID)
	if err != nil {
		return composed{}, model.FleetCategory{}, fmt.Errorf("load field values for fleet %d: %w", f.ID, err)
	}

	content, err := pingContent(kind, cat)
	if err != nil {
		return composed{}, model.FleetCategory{}, err
	}
	commander := s.commanderName(ctx, cat.GuildID, f)
	embed := s.buildFleetEmbed(f, fields, values, colorFor(kind), commander)
	return composed{content: content, embed: embed}, cat, nil
}

func messageLink(guildID, channelID, messageID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}
