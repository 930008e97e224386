// Package fleet is the mutation facade the rest of the application calls
// to create, update and delete fleets. It owns validation and persistence
// ordering; notification delivery hangs off each mutation best-effort and
// never fails the mutation itself.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fleetbot/internal/model"
	"fleetbot/internal/notify"
	"fleetbot/internal/storage"
	logx "fleetbot/pkg/logx"
)

var (
	ErrFleetTimePast   = errors.New("fleet time must be in the future")
	ErrFleetTooFarOut  = errors.New("fleet time exceeds the category's maximum pre-ping window")
	ErrNameRequired    = errors.New("fleet name is required")
	ErrCommanderNeeded = errors.New("fleet commander is required")
)

type Service struct {
	store  storage.Store
	notify *notify.Service
	log    logx.Logger

	now func() time.Time
}

func New(store storage.Store, n *notify.Service, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:  store,
		notify: n,
		log:    log,
		now:    time.Now,
	}
}

// Create validates and persists a new fleet, then announces it (unless
// hidden) and refreshes the upcoming list in every category channel.
// Notification failures are logged, not returned: the fleet exists once
// persistence succeeds.
func (s *Service) Create(ctx context.Context, f model.Fleet, values model.FieldValues) (model.Fleet, error) {
	cat, err := s.store.GetCategory(ctx, f.CategoryID)
	if err != nil {
		return model.Fleet{}, fmt.Errorf("load category %d: %w", f.CategoryID, err)
	}
	if err := s.validate(f, cat); err != nil {
		return model.Fleet{}, err
	}

	f.CreatedAt = s.now().UTC()
	id, err := s.store.CreateFleet(ctx, f, values)
	if err != nil {
		return model.Fleet{}, fmt.Errorf("persist fleet: %w", err)
	}
	f.ID = id
	s.log.Info("fleet created",
		logx.Int64("fleet_id", f.ID),
		logx.String("name", f.Name),
		logx.Time("fleet_time", f.FleetTime),
		logx.Bool("hidden", f.Hidden))

	if !f.Hidden {
		if report, err := s.notify.PostCreation(ctx, f); err != nil {
			s.log.Error("failed to announce fleet", logx.Int64("fleet_id", f.ID), logx.Err(err))
		} else if n := report.Failed(); n > 0 {
			s.log.Warn("fleet announcement partially failed",
				logx.Int64("fleet_id", f.ID),
				logx.Int("attempted", report.Attempted()),
				logx.Int("failed", n))
		}
	}
	s.refreshLists(ctx, cat.ChannelIDs)
	return f, nil
}

// Update validates and persists changes to an existing fleet, then edits
// every previously posted notification in place and updates the summary in
// each channel without bumping its visibility.
func (s *Service) Update(ctx context.Context, f model.Fleet, values model.FieldValues) error {
	cat, err := s.store.GetCategory(ctx, f.CategoryID)
	if err != nil {
		return fmt.Errorf("load category %d: %w", f.CategoryID, err)
	}
	if err := s.validate(f, cat); err != nil {
		return err
	}
	if err := s.store.UpdateFleet(ctx, f, values); err != nil {
		return fmt.Errorf("persist fleet update: %w", err)
	}
	s.log.Info("fleet updated", logx.Int64("fleet_id", f.ID), logx.String("name", f.Name))

	if report, err := s.notify.UpdateAll(ctx, f); err != nil {
		s.log.Error("failed to update fleet messages", logx.Int64("fleet_id", f.ID), logx.Err(err))
	} else if n := report.Failed(); n > 0 {
		s.log.Warn("fleet message update partially failed",
			logx.Int64("fleet_id", f.ID),
			logx.Int("attempted", report.Attempted()),
			logx.Int("failed", n))
	}
	s.updateLists(ctx, cat.ChannelIDs)
	return nil
}

// Delete cancels every posted notification for the fleet, removes the
// fleet, and updates each channel's summary. cancelledBy attributes the
// cancellation embed; empty falls back to the fleet commander.
func (s *Service) Delete(ctx context.Context, id int64, cancelledBy string) error {
	f, err := s.store.GetFleet(ctx, id)
	if err != nil {
		return fmt.Errorf("load fleet %d: %w", id, err)
	}
	cat, err := s.store.GetCategory(ctx, f.CategoryID)
	if err != nil {
		return fmt.Errorf("load category %d: %w", f.CategoryID, err)
	}

	// Cancel before deleting: the message records go away with the fleet.
	if report, err := s.notify.CancelAll(ctx, f, cancelledBy); err != nil {
		s.log.Error("failed to cancel fleet messages", logx.Int64("fleet_id", id), logx.Err(err))
	} else if n := report.Failed(); n > 0 {
		s.log.Warn("fleet cancellation partially failed",
			logx.Int64("fleet_id", id),
			logx.Int("attempted", report.Attempted()),
			logx.Int("failed", n))
	}

	if err := s.store.DeleteFleet(ctx, id); err != nil {
		return fmt.Errorf("delete fleet: %w", err)
	}
	s.log.Info("fleet deleted", logx.Int64("fleet_id", id), logx.String("name", f.Name))

	s.updateLists(ctx, cat.ChannelIDs)
	return nil
}

func (s *Service) validate(f model.Fleet, cat model.FleetCategory) error {
	if f.Name == "" {
		return ErrNameRequired
	}
	if f.CommanderID == "" {
		return ErrCommanderNeeded
	}
	now := s.now()
	if !f.FleetTime.After(now) {
		return ErrFleetTimePast
	}
	if cat.MaxPrePing > 0 && f.FleetTime.Sub(now) > cat.MaxPrePing {
		return ErrFleetTooFarOut
	}
	return nil
}

func (s *Service) refreshLists(ctx context.Context, channels []string) {
	for _, ch := range channels {
		if err := s.notify.RefreshUpcomingList(ctx, ch); err != nil {
			s.log.Error("failed to refresh upcoming list",
				logx.String("channel_id", ch), logx.Err(err))
		}
	}
}

func (s *Service) updateLists(ctx context.Context, channels []string) {
	for _, ch := range channels {
		if err := s.notify.UpdateUpcomingList(ctx, ch); err != nil {
			s.log.Error("failed to update upcoming list",
				logx.String("channel_id", ch), logx.Err(err))
		}
	}
}
