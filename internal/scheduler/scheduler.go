// Package scheduler drives the periodic notification work: a per-minute
// tick for reminder and formup passes, and a per-minute (offset by 30s)
// refresh of the upcoming-list summaries.
package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"fleetbot/internal/model"
	"fleetbot/internal/notify"
	"fleetbot/internal/storage"
	logx "fleetbot/pkg/logx"
)

type Config struct {
	Enabled  bool
	Timezone string
}

// Service owns the cron runner. Ticks are not re-entrant: a tick that
// overruns its minute is skipped rather than overlapped, so a slow Discord
// call can never cause duplicate posting within this process.
type Service struct {
	cfg    Config
	store  storage.Store
	notify *notify.Service
	log    logx.Logger

	now func() time.Time

	mu      sync.Mutex
	c       *cron.Cron
	running bool

	tickMu sync.Mutex
	listMu sync.Mutex
}

func New(cfg Config, store storage.Store, n *notify.Service, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		notify: n,
		log:    log,
		now:    time.Now,
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled by config")
		return nil
	}

	loc := time.UTC
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return err
		}
		loc = l
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc))

	if _, err := c.AddFunc("0 * * * * *", func() { s.notificationTick(ctx) }); err != nil {
		return err
	}
	if _, err := c.AddFunc("30 * * * * *", func() { s.listTick(ctx) }); err != nil {
		return err
	}

	c.Start()
	s.c = c
	s.running = true
	s.log.Info("scheduler started", logx.String("tz", loc.String()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.running = false
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// notificationTick runs the reminder pass and then the formup pass. A
// failure in one pass never blocks the other; a failure on one fleet never
// blocks the next.
func (s *Service) notificationTick(ctx context.Context) {
	if !s.tickMu.TryLock() {
		s.log.Warn("previous notification tick still running, skipping")
		return
	}
	defer s.tickMu.Unlock()

	now := s.now().UTC()
	if err := s.reminderPass(ctx, now); err != nil {
		s.log.Error("reminder pass failed", logx.Err(err))
	}
	if err := s.formupPass(ctx, now); err != nil {
		s.log.Error("formup pass failed", logx.Err(err))
	}
}

func (s *Service) reminderPass(ctx context.Context, now time.Time) error {
	fleets, err := s.store.ReminderCandidates(ctx, now)
	if err != nil {
		return err
	}
	s.log.Debug("checking fleets for reminders", logx.Int("count", len(fleets)))

	for _, f := range fleets {
		cat, err := s.store.GetCategory(ctx, f.CategoryID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return err
		}
		if !notify.ReminderDue(f, cat, now) {
			continue
		}
		sent, err := s.store.HasMessage(ctx, f.ID, model.KindReminder)
		if err != nil {
			return err
		}
		if sent {
			continue
		}
		s.log.Debug("sending fleet reminder",
			logx.Int64("fleet_id", f.ID),
			logx.String("name", f.Name),
			logx.Time("fleet_time", f.FleetTime))
		if _, err := s.notify.PostReminder(ctx, f); err != nil {
			s.log.Error("failed to send fleet reminder",
				logx.Int64("fleet_id", f.ID), logx.Err(err))
		}
	}
	return nil
}

func (s *Service) formupPass(ctx context.Context, now time.Time) error {
	fleets, err := s.store.FormupCandidates(ctx, now.Add(-5*time.Minute), now)
	if err != nil {
		return err
	}
	s.log.Debug("checking fleets for formups", logx.Int("count", len(fleets)))

	for _, f := range fleets {
		if !notify.FormupDue(f, now) {
			continue
		}
		sent, err := s.store.HasMessage(ctx, f.ID, model.KindFormup)
		if err != nil {
			return err
		}
		if sent {
			continue
		}
		s.log.Debug("sending fleet formup",
			logx.Int64("fleet_id", f.ID),
			logx.String("name", f.Name),
			logx.Time("fleet_time", f.FleetTime))
		if _, err := s.notify.PostFormup(ctx, f); err != nil {
			s.log.Error("failed to send fleet formup",
				logx.Int64("fleet_id", f.ID), logx.Err(err))
		}
	}
	return nil
}

// listTick refreshes the upcoming-list summary in every tracked channel.
// Per-channel failures are logged and do not stop the sweep.
func (s *Service) listTick(ctx context.Context) {
	if !s.listMu.TryLock() {
		s.log.Warn("previous list tick still running, skipping")
		return
	}
	defer s.listMu.Unlock()

	channels, err := s.store.TrackedChannelIDs(ctx)
	if err != nil {
		s.log.Error("failed to load tracked channels", logx.Err(err))
		return
	}
	s.log.Debug("refreshing upcoming lists", logx.Int("channels", len(channels)))

	for _, ch := range channels {
		if err := s.notify.RefreshUpcomingList(ctx, ch); err != nil {
			s.log.Error("failed to refresh upcoming list",
				logx.String("channel_id", ch), logx.Err(err))
		}
	}
}
