package notify

import (
	"context"
	"fmt"

	"fleetbot/internal/model"
	"fleetbot/internal/transport"
	logx "fleetbot/pkg/logx"
)

// PostCreation announces a newly created fleet in every channel of its
// category. Hidden fleets are never announced. Each channel is an
// independent unit of work; a send failure is recorded in the report and
// the loop continues.
func (s *Service) PostCreation(ctx context.Context, f model.Fleet) (Report, error) {
	if f.Hidden {
		return Report{}, nil
	}
	return s.post(ctx, f, model.KindCreation)
}

// PostReminder posts the lead-time reminder, threading it as a reply to the
// channel's creation message when one exists. Fleets that were hidden at
// creation time have no creation message; their reminder posts standalone
// with the announcement wording, since this is the first time readers see
// the fleet. The record kind stays reminder either way.
func (s *Service) PostReminder(ctx context.Context, f model.Fleet) (Report, error) {
	return s.post(ctx, f, model.KindReminder)
}

// PostFormup posts the "forming now" notice, replying to the most recent
// prior notification in each channel (reminder if present, else creation,
// else standalone).
func (s *Service) PostFormup(ctx context.Context, f model.Fleet) (Report, error) {
	return s.post(ctx, f, model.KindFormup)
}

func (s *Service) post(ctx context.Context, f model.Fleet, kind model.MessageKind) (Report, error) {
	var (
		replyTargets map[string]model.FleetMessage
		err          error
	)
	switch kind {
	case model.KindReminder:
		replyTargets, err = s.latestPerChannel(ctx, f.ID, model.KindCreation)
	case model.KindFormup:
		replyTargets, err = s.latestPerChannel(ctx, f.ID, model.KindReminder, model.KindCreation)
	}
	if err != nil {
		return Report{}, err
	}

	displayKind := kind
	if kind == model.KindReminder && len(replyTargets) == 0 {
		displayKind = model.KindCreation
	}
	msg, cat, err := s.compose(ctx, f, displayKind)
	if err != nil {
		return Report{}, err
	}

	var report Report
	for _, channelID := range cat.ChannelIDs {
		var opt *transport.SendOptions
		if target, ok := replyTargets[channelID]; ok {
			opt = &transport.SendOptions{ReplyTo: &transport.MessageRef{
				ChannelID: target.ChannelID,
				MessageID: target.MessageID,
			}}
		}
		ref, err := s.sendOnce(ctx, f.ID, channelID, kind, msg, opt)
		if err != nil {
			s.log.Error("failed to post fleet notification",
				logx.Int64("fleet_id", f.ID),
				logx.String("channel_id", channelID),
				logx.String("kind", string(kind)),
				logx.Err(err))
			report.add(Outcome{ChannelID: channelID, Err: err})
			continue
		}
		if ref.MessageID != "" {
			report.add(Outcome{ChannelID: channelID, MessageID: ref.MessageID})
		}
	}
	return report, nil
}

// sendOnce performs the atomic reserve-send-finalize sequence for one
// (fleet, channel, kind) slot. The reservation is taken before the external
// call so a concurrent tick cannot double-post; on send failure it is
// released so the next eligible tick retries. A lost reservation means the
// notification was already posted (or is being posted) and yields an empty
// ref with no error.
func (s *Service) sendOnce(ctx context.Context, fleetID int64, channelID string, kind model.MessageKind, msg composed, opt *transport.SendOptions) (transport.MessageRef, error) {
	reserved, err := s.store.ReserveMessage(ctx, fleetID, channelID, kind)
	if err != nil {
		return transport.MessageRef{}, fmt.Errorf("reserve message slot: %w", err)
	}
	if !reserved {
		s.log.Debug("notification already recorded, skipping",
			logx.Int64("fleet_id", fleetID),
			logx.String("channel_id", channelID),
			logx.String("kind", string(kind)))
		return transport.MessageRef{}, nil
	}

	ref, err := s.msgr.SendMessage(ctx, channelID, msg.content, msg.embed, opt)
	if err != nil {
		if relErr := s.store.ReleaseMessage(ctx, fleetID, channelID, kind); relErr != nil {
			s.log.Error("failed to release message reservation",
				logx.Int64("fleet_id", fleetID),
				logx.String("channel_id", channelID),
				logx.String("kind", string(kind)),
				logx.Err(relErr))
		}
		return transport.MessageRef{}, err
	}

	if err := s.store.FinalizeMessage(ctx, fleetID, channelID, kind, ref.MessageID); err != nil {
		return transport.MessageRef{}, fmt.Errorf("record posted message %s: %w", ref.MessageID, err)
	}
	return ref, nil
}

// latestPerChannel maps channel id to the most recently created finalized
// message of any of the given kinds, the reply target for threading.
func (s *Service) latestPerChannel(ctx context.Context, fleetID int64, kinds ...model.MessageKind) (map[string]model.FleetMessage, error) {
	msgs, err := s.store.MessagesByFleet(ctx, fleetID)
	if err != nil {
		return nil, fmt.Errorf("load fleet messages: %w", err)
	}
	out := make(map[string]model.FleetMessage)
	for _, m := range msgs {
		for _, k := range kinds {
			if m.Kind != k {
				continue
			}
			prev, ok := out[m.ChannelID]
			if !ok || !m.CreatedAt.Before(prev.CreatedAt) {
				out[m.ChannelID] = m
			}
			break
		}
	}
	return out, nil
}

// UpdateAll re-renders every previously posted notification for the fleet
// in place, keeping each message's original kind (title and color). The
// ping content is left untouched so an edit never re-mentions roles.
func (s *Service) UpdateAll(ctx context.Context, f model.Fleet) (Report, error) {
	msgs, err := s.store.MessagesByFleet(ctx, f.ID)
	if err != nil {
		return Report{}, fmt.Errorf("load fleet messages: %w", err)
	}
	if len(msgs) == 0 {
		return Report{}, nil
	}

	embeds := make(map[model.MessageKind]*transport.Embed, 3)
	var report Report
	for _, m := range msgs {
		embed, ok := embeds[m.Kind]
		if !ok {
			c, _, err := s.compose(ctx, f, m.Kind)
			if err != nil {
				return report, err
			}
			embed = c.embed
			embeds[m.Kind] = embed
		}
		ref := transport.MessageRef{ChannelID: m.ChannelID, MessageID: m.MessageID}
		if err := s.msgr.EditMessage(ctx, ref, nil, embed); err != nil {
			s.log.Error("failed to update fleet message",
				logx.Int64("fleet_id", f.ID),
				logx.String("channel_id", m.ChannelID),
				logx.String("message_id", m.MessageID),
				logx.Err(err))
			report.add(Outcome{ChannelID: m.ChannelID, MessageID: m.MessageID, Err: err})
			continue
		}
		report.add(Outcome{ChannelID: m.ChannelID, MessageID: m.MessageID})
	}
	return report, nil
}

// CancelAll edits every previously posted notification for the fleet into
// the cancellation tombstone, clearing the ping content. cancelledBy is the
// user performing the cancellation; an empty id falls back to the fleet
// commander.
func (s *Service) CancelAll(ctx context.Context, f model.Fleet, cancelledBy string) (Report, error) {
	msgs, err := s.store.MessagesByFleet(ctx, f.ID)
	if err != nil {
		return Report{}, fmt.Errorf("load fleet messages: %w", err)
	}
	if len(msgs) == 0 {
		return Report{}, nil
	}

	cat, err := s.store.GetCategory(ctx, f.CategoryID)
	if err != nil {
		return Report{}, fmt.Errorf("load category %d: %w", f.CategoryID, err)
	}
	if cancelledBy == "" {
		cancelledBy = f.CommanderID
	}
	name, err := s.msgr.MemberDisplayName(ctx, cat.GuildID, cancelledBy)
	if err != nil {
		s.log.Warn("failed to resolve cancelling user name",
			logx.Int64("fleet_id", f.ID),
			logx.String("user_id", cancelledBy),
			logx.Err(err))
		name = fmt.Sprintf("User %s", cancelledBy)
	}
	embed := s.cancelEmbed(f, cat.Name, name)
	empty := ""

	var report Report
	for _, m := range msgs {
		ref := transport.MessageRef{ChannelID: m.ChannelID, MessageID: m.MessageID}
		if err := s.msgr.EditMessage(ctx, ref, &empty, embed); err != nil {
			s.log.Error("failed to cancel fleet message",
				logx.Int64("fleet_id", f.ID),
				logx.String("channel_id", m.ChannelID),
				logx.String("message_id", m.MessageID),
				logx.Err(err))
			report.add(Outcome{ChannelID: m.ChannelID, MessageID: m.MessageID, Err: err})
			continue
		}
		report.add(Outcome{ChannelID: m.ChannelID, MessageID: m.MessageID})
	}
	return report, nil
}
