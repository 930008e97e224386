package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fleetbot/internal/model"
	"fleetbot/internal/transport"
	logx "fleetbot/pkg/logx"
)

// repostThreshold is how long the summary may sit buried under newer
// channel activity before it is deleted and reposted instead of edited.
const repostThreshold = 10 * time.Minute

const (
	listTitle      = ".:Upcoming Events:."
	listEmptyState = "No upcoming events."
)

// RefreshUpcomingList posts or refreshes the rolling summary in one
// channel. With zero upcoming fleets it does nothing at all, not even an
// API call; a stale summary left behind is cleaned up by the next
// UpdateUpcomingList. An existing summary is edited in place unless it has
// been buried under newer channel activity for repostThreshold or longer,
// in which case it is deleted and posted fresh.
func (s *Service) RefreshUpcomingList(ctx context.Context, channelID string) error {
	embed, count, err := s.buildListEmbed(ctx, channelID)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	return s.placeList(ctx, channelID, embed, true)
}

// UpdateUpcomingList is the edit-only counterpart used after a fleet is
// edited or deleted: it never reposts, so it bumps the summary's content
// but not its visibility, and it renders an explicit empty state rather
// than leaving stale entries visible.
func (s *Service) UpdateUpcomingList(ctx context.Context, channelID string) error {
	embed, _, err := s.buildListEmbed(ctx, channelID)
	if err != nil {
		return err
	}
	return s.placeList(ctx, channelID, embed, false)
}

// placeList puts the summary embed into the channel. allowRepost selects
// the refresh behavior (delete+repost when buried); the update path always
// edits. Either path creates the summary when none exists yet.
func (s *Service) placeList(ctx context.Context, channelID string, embed *transport.Embed, allowRepost bool) error {
	list, exists, err := s.store.ChannelList(ctx, channelID)
	if err != nil {
		return fmt.Errorf("load channel list state: %w", err)
	}

	if !exists {
		return s.postList(ctx, channelID, embed)
	}

	ref := transport.MessageRef{ChannelID: channelID, MessageID: list.MessageID}
	if allowRepost && buried(list) {
		if err := s.msgr.DeleteMessage(ctx, ref); err != nil {
			s.log.Warn("failed to delete buried summary message",
				logx.String("channel_id", channelID),
				logx.String("message_id", list.MessageID),
				logx.Err(err))
		}
		return s.postList(ctx, channelID, embed)
	}

	if err := s.msgr.EditMessage(ctx, ref, nil, embed); err != nil {
		if allowRepost {
			// The summary may have been deleted out from under us.
			s.log.Warn("failed to edit summary message, reposting",
				logx.String("channel_id", channelID),
				logx.String("message_id", list.MessageID),
				logx.Err(err))
			return s.postList(ctx, channelID, embed)
		}
		return fmt.Errorf("edit summary %s in channel %s: %w", list.MessageID, channelID, err)
	}
	if err := s.store.UpsertChannelList(ctx, channelID, list.MessageID); err != nil {
		return fmt.Errorf("record summary edit: %w", err)
	}
	return nil
}

func (s *Service) postList(ctx context.Context, channelID string, embed *transport.Embed) error {
	ref, err := s.msgr.SendMessage(ctx, channelID, "", embed, nil)
	if err != nil {
		return fmt.Errorf("post summary to channel %s: %w", channelID, err)
	}
	if err := s.store.UpsertChannelList(ctx, channelID, ref.MessageID); err != nil {
		return fmt.Errorf("record summary message: %w", err)
	}
	return nil
}

// buried reports whether the summary has been sitting under newer channel
// activity for repostThreshold or longer. A summary that is still the most
// recent message in the channel is never buried.
func buried(l model.ChannelFleetList) bool {
	return l.LastMessageAt.Sub(l.UpdatedAt) >= repostThreshold
}

// buildListEmbed renders the summary for a channel: every non-hidden future
// fleet of every category posting there, ascending by fleet time, one line
// per fleet linking to its most recent creation-or-reminder message in the
// channel (formup messages are never linked). count is the number of
// qualifying fleets; with zero the embed carries the empty state.
func (s *Service) buildListEmbed(ctx context.Context, channelID string) (*transport.Embed, int, error) {
	catIDs, err := s.store.CategoryIDsByChannel(ctx, channelID)
	if err != nil {
		return nil, 0, fmt.Errorf("load categories for channel %s: %w", channelID, err)
	}

	embed := &transport.Embed{
		Title:       listTitle,
		URL:         s.appURL,
		Color:       colorList,
		Description: listEmptyState,
		Timestamp:   s.now().UTC(),
	}
	if len(catIDs) == 0 {
		return embed, 0, nil
	}

	fleets, err := s.store.UpcomingFleets(ctx, catIDs, s.now())
	if err != nil {
		return nil, 0, fmt.Errorf("load upcoming fleets: %w", err)
	}
	if len(fleets) == 0 {
		return embed, 0, nil
	}

	names, err := s.store.CategoryNames(ctx, catIDs)
	if err != nil {
		return nil, 0, fmt.Errorf("load category names: %w", err)
	}

	// All categories posting into one channel belong to one guild; the
	// first category supplies the guild id for message links.
	cat, err := s.store.GetCategory(ctx, catIDs[0])
	if err != nil {
		return nil, 0, fmt.Errorf("load category %d: %w", catIDs[0], err)
	}
	guildID := cat.GuildID

	var b strings.Builder
	for _, f := range fleets {
		name, ok := names[f.CategoryID]
		if !ok {
			name = "Unknown"
		}
		link, err := s.fleetLink(ctx, f.ID, guildID, channelID)
		if err != nil {
			return nil, 0, err
		}
		if link != "" {
			fmt.Fprintf(&b, "• %s - [%s](%s) - <t:%d:R>\n", name, f.Name, link, f.FleetTime.Unix())
		} else {
			fmt.Fprintf(&b, "• %s - %s - <t:%d:R>\n", name, f.Name, f.FleetTime.Unix())
		}
	}
	embed.Description = b.String()
	return embed, len(fleets), nil
}

// fleetLink returns the jump link to the fleet's most recent creation or
// reminder message in the channel, or "" when none was posted there.
func (s *Service) fleetLink(ctx context.Context, fleetID int64, guildID, channelID string) (string, error) {
	msgs, err := s.store.MessagesByFleet(ctx, fleetID)
	if err != nil {
		return "", fmt.Errorf("load messages for fleet %d: %w", fleetID, err)
	}
	var best *model.FleetMessage
	for i := range msgs {
		m := &msgs[i]
		if m.ChannelID != channelID {
			continue
		}
		if m.Kind != model.KindCreation && m.Kind != model.KindReminder {
			continue
		}
		if best == nil || !m.CreatedAt.Before(best.CreatedAt) {
			best = m
		}
	}
	if best == nil {
		return "", nil
	}
	return messageLink(guildID, channelID, best.MessageID), nil
}
