// Package storagetest provides an in-memory storage.Store for tests. It
// honors the same reserve/finalize/release message protocol as the sqlite
// implementation so dispatcher idempotency can be exercised without a
// database file.
package storagetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"fleetbot/internal/model"
	"fleetbot/internal/storage"
)

type Store struct {
	mu sync.Mutex

	fleets map[int64]model.Fleet
	values map[int64]model.FieldValues
	cats   map[int64]model.FleetCategory
	fields map[int64][]model.PingFormatField
	msgs   []model.FleetMessage
	lists  map[string]model.ChannelFleetList
	nextID int64

	nowFunc    func() time.Time
	reserveErr error
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		fleets:  map[int64]model.Fleet{},
		values:  map[int64]model.FieldValues{},
		cats:    map[int64]model.FleetCategory{},
		fields:  map[int64][]model.PingFormatField{},
		lists:   map[string]model.ChannelFleetList{},
		nowFunc: time.Now,
	}
}

// SetNow fixes the clock used for record timestamps.
func (s *Store) SetNow(fn func() time.Time) {
	s.mu.Lock()
	s.nowFunc = fn
	s.mu.Unlock()
}

// FailReserve makes every subsequent ReserveMessage call fail with err
// (nil restores normal behavior).
func (s *Store) FailReserve(err error) {
	s.mu.Lock()
	s.reserveErr = err
	s.mu.Unlock()
}

// SetChannelList installs summary state directly, bypassing the upsert
// timestamp rules.
func (s *Store) SetChannelList(l model.ChannelFleetList) {
	s.mu.Lock()
	s.lists[l.ChannelID] = l
	s.mu.Unlock()
}

func (s *Store) now() time.Time { return s.nowFunc().UTC() }

func (s *Store) CreateFleet(_ context.Context, f model.Fleet, values model.FieldValues) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	f.ID = s.nextID
	s.fleets[f.ID] = f
	if values != nil {
		s.values[f.ID] = values
	}
	return f.ID, nil
}

func (s *Store) UpdateFleet(_ context.Context, f model.Fleet, values model.FieldValues) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fleets[f.ID]; !ok {
		return storage.ErrNotFound
	}
	s.fleets[f.ID] = f
	if values != nil {
		s.values[f.ID] = values
	}
	return nil
}

func (s *Store) DeleteFleet(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fleets[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.fleets, id)
	delete(s.values, id)
	kept := s.msgs[:0]
	for _, m := range s.msgs {
		if m.FleetID != id {
			kept = append(kept, m)
		}
	}
	s.msgs = kept
	return nil
}

func (s *Store) GetFleet(_ context.Context, id int64) (model.Fleet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fleets[id]
	if !ok {
		return model.Fleet{}, storage.ErrNotFound
	}
	return f, nil
}

func (s *Store) ReminderCandidates(_ context.Context, now time.Time) ([]model.Fleet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Fleet
	for _, f := range s.fleets {
		if !f.Hidden && !f.DisableReminder && f.FleetTime.After(now) {
			out = append(out, f)
		}
	}
	sortFleets(out)
	return out, nil
}

func (s *Store) FormupCandidates(_ context.Context, oldest, now time.Time) ([]model.Fleet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Fleet
	for _, f := range s.fleets {
		if !f.FleetTime.After(now) && !f.FleetTime.Before(oldest) {
			out = append(out, f)
		}
	}
	sortFleets(out)
	return out, nil
}

func (s *Store) UpcomingFleets(_ context.Context, categoryIDs []int64, now time.Time) ([]model.Fleet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := map[int64]bool{}
	for _, id := range categoryIDs {
		in[id] = true
	}
	var out []model.Fleet
	for _, f := range s.fleets {
		if in[f.CategoryID] && !f.Hidden && f.FleetTime.After(now) {
			out = append(out, f)
		}
	}
	sortFleets(out)
	return out, nil
}

func sortFleets(fs []model.Fleet) {
	sort.Slice(fs, func(i, j int) bool { return fs[i].FleetTime.Before(fs[j].FleetTime) })
}

func (s *Store) FieldValues(_ context.Context, fleetID int64) (model.FieldValues, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := model.FieldValues{}
	for k, v := range s.values[fleetID] {
		out[k] = v
	}
	return out, nil
}

func (s *Store) CreateCategory(_ context.Context, c model.FleetCategory) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c.ID = s.nextID
	s.cats[c.ID] = c
	return c.ID, nil
}

func (s *Store) GetCategory(_ context.Context, id int64) (model.FleetCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cats[id]
	if !ok {
		return model.FleetCategory{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) CategoryIDsByChannel(_ context.Context, channelID string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for id, c := range s.cats {
		for _, ch := range c.ChannelIDs {
			if ch == channelID {
				out = append(out, id)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) CategoryNames(_ context.Context, ids []int64) (map[int64]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[int64]string{}
	for _, id := range ids {
		if c, ok := s.cats[id]; ok {
			out[id] = c.Name
		}
	}
	return out, nil
}

func (s *Store) TrackedChannelIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, c := range s.cats {
		for _, ch := range c.ChannelIDs {
			if !seen[ch] {
				seen[ch] = true
				out = append(out, ch)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) CreatePingFormat(_ context.Context, _, _ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID, nil
}

func (s *Store) CreateFormatField(_ context.Context, f model.PingFormatField) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	f.ID = s.nextID
	s.fields[f.PingFormatID] = append(s.fields[f.PingFormatID], f)
	return f.ID, nil
}

func (s *Store) FormatFields(_ context.Context, pingFormatID int64) ([]model.PingFormatField, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.PingFormatField(nil), s.fields[pingFormatID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (s *Store) ReserveMessage(_ context.Context, fleetID int64, channelID string, kind model.MessageKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reserveErr != nil {
		return false, s.reserveErr
	}
	for i, m := range s.msgs {
		if m.FleetID == fleetID && m.ChannelID == channelID && m.Kind == kind {
			if m.MessageID == "" {
				s.msgs[i].CreatedAt = s.now()
				return true, nil
			}
			return false, nil
		}
	}
	s.nextID++
	s.msgs = append(s.msgs, model.FleetMessage{
		ID:        s.nextID,
		FleetID:   fleetID,
		ChannelID: channelID,
		Kind:      kind,
		CreatedAt: s.now(),
	})
	return true, nil
}

func (s *Store) FinalizeMessage(_ context.Context, fleetID int64, channelID string, kind model.MessageKind, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.msgs {
		if m.FleetID == fleetID && m.ChannelID == channelID && m.Kind == kind && m.MessageID == "" {
			s.msgs[i].MessageID = messageID
			s.msgs[i].CreatedAt = s.now()
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *Store) ReleaseMessage(_ context.Context, fleetID int64, channelID string, kind model.MessageKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.msgs {
		if m.FleetID == fleetID && m.ChannelID == channelID && m.Kind == kind && m.MessageID == "" {
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Store) MessagesByFleet(_ context.Context, fleetID int64) ([]model.FleetMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.FleetMessage
	for _, m := range s.msgs {
		if m.FleetID == fleetID && m.MessageID != "" {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) HasMessage(_ context.Context, fleetID int64, kind model.MessageKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.msgs {
		if m.FleetID == fleetID && m.Kind == kind && m.MessageID != "" {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ChannelList(_ context.Context, channelID string) (model.ChannelFleetList, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[channelID]
	return l, ok, nil
}

func (s *Store) UpsertChannelList(_ context.Context, channelID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	l, ok := s.lists[channelID]
	if !ok {
		l = model.ChannelFleetList{ChannelID: channelID, CreatedAt: now}
	}
	l.MessageID = messageID
	l.LastMessageAt = now
	l.UpdatedAt = now
	s.lists[channelID] = l
	return nil
}

func (s *Store) TouchChannelActivity(_ context.Context, channelID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[channelID]
	if !ok {
		return nil
	}
	l.LastMessageAt = at.UTC()
	s.lists[channelID] = l
	return nil
}

func (s *Store) Close() error { return nil }
