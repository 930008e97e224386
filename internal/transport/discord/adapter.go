package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"fleetbot/internal/transport"
	logx "fleetbot/pkg/logx"
)

type Config struct {
	Token string
	// RatePerSec throttles outbound API calls; 0 means 5/s.
	RatePerSec int
}

// ActivitySink receives per-channel activity timestamps observed by the
// message watcher. The storage layer implements it.
type ActivitySink interface {
	TouchChannelActivity(ctx context.Context, channelID string, at time.Time) error
}

// Adapter wraps a discordgo session behind the transport.Messenger
// interface and hosts the channel-activity watcher.
type Adapter struct {
	cfg Config
	log logx.Logger

	sess    *discordgo.Session
	limiter *rate.Limiter

	runMu   sync.Mutex
	running bool
	remove  func()
}

var _ transport.Messenger = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("discord token is empty")
	}
	sess, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	return &Adapter{
		cfg:     cfg,
		log:     log,
		sess:    sess,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// Start opens the gateway connection and, if sink is non-nil, registers the
// MessageCreate watcher that bumps per-channel last-activity timestamps.
// The bot's own messages are ignored so summary posts do not count as
// channel activity against themselves.
func (a *Adapter) Start(ctx context.Context, sink ActivitySink) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}

	a.sess.Identify.Intents = discordgo.IntentGuildMessages

	if sink != nil {
		a.remove = a.sess.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
			if m.Author != nil && s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
				return
			}
			at := time.Now().UTC()
			if ts := m.Timestamp; !ts.IsZero() {
				at = ts.UTC()
			}
			tctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := sink.TouchChannelActivity(tctx, m.ChannelID, at); err != nil {
				a.log.Warn("failed to record channel activity",
					logx.String("channel_id", m.ChannelID), logx.Err(err))
			}
		})
	}

	if err := a.sess.Open(); err != nil {
		if a.remove != nil {
			a.remove()
			a.remove = nil
		}
		return fmt.Errorf("open discord gateway: %w", err)
	}
	a.running = true
	a.log.Info("discord adapter started")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	if a.remove != nil {
		a.remove()
		a.remove = nil
	}
	err := a.sess.Close()
	a.running = false
	a.log.Info("discord adapter stopped")
	return err
}

func (a *Adapter) SendMessage(ctx context.Context, channelID, content string, embed *transport.Embed, opt *transport.SendOptions) (transport.MessageRef, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return transport.MessageRef{}, err
	}
	data := &discordgo.MessageSend{Content: content}
	if embed != nil {
		data.Embeds = []*discordgo.MessageEmbed{toDiscordEmbed(embed)}
	}
	if opt != nil && opt.ReplyTo != nil {
		data.Reference = &discordgo.MessageReference{
			ChannelID: opt.ReplyTo.ChannelID,
			MessageID: opt.ReplyTo.MessageID,
		}
	}
	msg, err := a.sess.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
	if err != nil {
		return transport.MessageRef{}, fmt.Errorf("send to channel %s: %w", channelID, err)
	}
	return transport.MessageRef{ChannelID: channelID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditMessage(ctx context.Context, ref transport.MessageRef, content *string, embed *transport.Embed) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	edit := discordgo.NewMessageEdit(ref.ChannelID, ref.MessageID)
	if content != nil {
		edit = edit.SetContent(*content)
	}
	if embed != nil {
		edit = edit.SetEmbed(toDiscordEmbed(embed))
	}
	if _, err := a.sess.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("edit message %s in channel %s: %w", ref.MessageID, ref.ChannelID, err)
	}
	return nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref transport.MessageRef) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := a.sess.ChannelMessageDelete(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete message %s in channel %s: %w", ref.MessageID, ref.ChannelID, err)
	}
	return nil
}

// MemberDisplayName prefers the guild nickname over the account username.
func (a *Adapter) MemberDisplayName(ctx context.Context, guildID, userID string) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}
	member, err := a.sess.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("fetch member %s in guild %s: %w", userID, guildID, err)
	}
	if member.Nick != "" {
		return member.Nick, nil
	}
	if member.User != nil {
		return member.User.Username, nil
	}
	return "", fmt.Errorf("member %s has no user data", userID)
}

func toDiscordEmbed(e *transport.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		URL:         e.URL,
		Description: e.Description,
		Color:       e.Color,
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	if e.FooterText != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.FooterText}
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	return out
}
