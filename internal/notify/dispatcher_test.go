package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fleetbot/internal/model"
	"fleetbot/internal/storage/storagetest"
)

// seedCategory installs a two-channel category and returns its id.
func seedCategory(t *testing.T, st *storagetest.Store, channels ...string) model.FleetCategory {
	t.Helper()
	if len(channels) == 0 {
		channels = []string{"1001", "1002"}
	}
	cat := model.FleetCategory{
		GuildID:     "900",
		Name:        "Stratop",
		LeadTime:    30 * time.Minute,
		ChannelIDs:  channels,
		PingRoleIDs: []string{"555"},
	}
	id, err := st.CreateCategory(context.Background(), cat)
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	cat.ID = id
	return cat
}

func seedFleet(t *testing.T, st *storagetest.Store, cat model.FleetCategory, at time.Time) model.Fleet {
	t.Helper()
	f := model.Fleet{
		CategoryID:  cat.ID,
		Name:        "Home Defense",
		CommanderID: "42",
		FleetTime:   at,
	}
	id, err := st.CreateFleet(context.Background(), f, nil)
	if err != nil {
		t.Fatalf("CreateFleet: %v", err)
	}
	f.ID = id
	return f
}

func TestPostCreationPostsToEveryChannel(t *testing.T) {
	t.Parallel()
	svc, st, msgr := newTestService()
	cat := seedCategory(t, st)
	f := seedFleet(t, st, cat, time.Now().Add(time.Hour))

	report, err := svc.PostCreation(context.Background(), f)
	if err != nil {
		t.Fatalf("PostCreation: %v", err)
	}
	if report.Attempted() != 2 || report.Failed() != 0 {
		t.Fatalf("report = %d attempted, %d failed", report.Attempted(), report.Failed())
	}
	if len(msgr.sends) != 2 {
		t.Fatalf("sends = %d, want 2", len(msgr.sends))
	}
	for _, sent := range msgr.sends {
		if !strings.Contains(sent.Content, "New Upcoming Stratop") {
			t.Fatalf("content = %q", sent.Content)
		}
		if sent.ReplyTo != nil {
			t.Fatal("creation must not be a reply")
		}
	}

	msgs, err := st.MessagesByFleet(context.Background(), f.ID)
	if err != nil {
		t.Fatalf("MessagesByFleet: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("persisted %d records, want 2", len(msgs))
	}
	for _, m := range msgs {
		if m.Kind != model.KindCreation || m.MessageID == "" {
			t.Fatalf("unexpected record %+v", m)
		}
	}
}

func TestPostCreationSkipsHiddenFleet(t *testing.T) {
	t.Parallel()
	svc, st, msgr := newTestService()
	cat := seedCategory(t, st)
	f := seedFleet(t, st, cat, time.Now().Add(time.Hour))
	f.Hidden = true

	report, err := svc.PostCreation(context.Background(), f)
	if err != nil {
		t.Fatalf("PostCreation: %v", err)
	}
	if report.Attempted() != 0 || len(msgr.sends) != 0 {
		t.Fatal("hidden fleet must not be announced")
	}
}

func TestPostCreationIsIdempotent(t *testing.T) {
	t.Parallel()
	svc, st, msgr := newTestService()
	cat := seedCategory(t, st)
	f := seedFleet(t, st, cat, time.Now().Add(time.Hour))

	if _, err := svc.PostCreation(context.Background(), f); err != nil {
		t.Fatalf("first PostCreation: %v", err)
	}
	if _, err := svc.PostCreation(context.Background(), f); err != nil {
		t.Fatalf("second PostCreation: %v", err)
	}
	if len(msgr.sends) != 2 {
		t.Fatalf("sends = %d, want 2 (one per channel, no duplicates)", len(msgr.sends))
	}
	msgs, _ := st.MessagesByFleet(context.Background(), f.ID)
	if len(msgs) != 2 {
		t.Fatalf("records = %d, want 2", len(msgs))
	}
}

func TestPostCreationChannelFailureIsolation(t *testing.T) {
	t.Parallel()
	svc, st, msgr := newTestService()
	cat := seedCategory(t, st)
	f := seedFleet(t, st, cat, time.Now().Add(time.Hour))
	msgr.sendErr["1001"] = errors.New("missing permissions")

	report, err := svc.PostCreation(context.Background(), f)
	if err != nil {
		t.Fatalf("PostCreation: %v", err)
	}
	if report.Attempted() != 2 || report.Failed() != 1 {
		t.Fatalf("report = %d attempted, %d failed", report.Attempted(), report.Failed())
	}
	// The failed channel's reservation must be released so a retry can post.
	msgs, _ := st.MessagesByFleet(context.Background(), f.ID)
	if len(msgs) != 1 || msgs[0].ChannelID != "1002" {
		t.Fatalf("records = %+v, want only channel 1002", msgs)
	}

	msgr.sendErr = map[string]error{}
	report, err = svc.PostCreation(context.Background(), f)
	if err != nil {
		t.Fatalf("retry PostCreation: %v", err)
	}
	if report.Failed() != 0 {
		t.Fatalf("retry failed = %d", report.Failed())
	}
	msgs, _ = st.MessagesByFleet(context.Background(), f.ID)
	if len(msgs) != 2 {
		t.Fatalf("records after retry = %d, want 2", len(msgs))
	}
}

func TestReminderRepliesToCreation(t *testing.T) {
	t.Parallel()
	svc, st, msgr := newTestService()
	cat := seedCategory(t, st)
	f := seedFleet(t, st, cat, time.Now().Add(time.Hour))

	if _, err := svc.PostCreation(context.Background(), f); err != nil {
		t.Fatalf("PostCreation: %v", err)
	}
	creationByChannel := map[string]string{}
	for _, sent := range msgr.sends {
		creationByChannel[sent.ChannelID] = sent.MessageID
	}

	if _, err := svc.PostReminder(context.Background(), f); err != nil {
		t.Fatalf("PostReminder: %v", err)
	}
	reminders := msgr.sends[2:]
	if len(reminders) != 2 {
		t.Fatalf("reminder sends = %d", len(reminders))
	}
	for _, sent := range reminders {
		if sent.ReplyTo == nil {
			t.Fatalf("reminder in %s is not a reply", sent.ChannelID)
		}
		if sent.ReplyTo.MessageID != creationByChannel[sent.ChannelID] {
			t.Fatalf("reminder replies to %s, want creation %s",
				sent.ReplyTo.MessageID, creationByChannel[sent.ChannelID])
		}
	}
}

func TestReminderStandsAloneWithoutCreation(t *testing.T) {
	t.Parallel()
	svc, st, msgr := newTestService()
	cat := seedCategory(t, st)
	// Initially hidden fleet: no creation message exists.
	f := seedFleet(t, st, cat, time.Now().Add(time.Hour))

	if _, err := svc.PostReminder(context.Background(), f); err != nil {
		t.Fatalf("PostReminder: %v", err)
	}
	if len(msgr.sends) != 2 {
		t.Fatalf("sends = %d", len(msgr.sends))
	}
	for _, sent := range msgr.sends {
		if sent.ReplyTo != nil {
			t.Fatal("reminder without creation must post standalone")
		}
		// First appearance of the fleet, so it reads as an announcement.
		if !strings.Contains(sent.Content, "New Upcoming Stratop") {
			t.Fatalf("content = %q", sent.Content)
		}
	}
	msgs, _ := st.MessagesByFleet(context.Background(), f.ID)
	for _, m := range msgs {
		if m.Kind != model.KindReminder {
			t.Fatalf("record kind = %s, want reminder", m.Kind)
		}
	}
}

func TestFormupRepliesToReminderNotCreation(t *testing.T) {
	t.Parallel()
	svc, st, msgr := newTestService()
	cat := seedCategory(t, st, "1001")
	f := seedFleet(t, st, cat, time.Now().Add(time.Hour))

	// Distinct creation timestamps so recency ordering is unambiguous.
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st.SetNow(func() time.Time { return clock })

	if _, err := svc.PostCreation(context.Background(), f); err != nil {
		t.Fatalf("PostCreation: %v", err)
	}
	clock = clock.Add(30 * time.Minute)
	if _, err := svc.PostReminder(context.Background(), f); err != nil {
		t.Fatalf("PostReminder: %v", err)
	}
	reminderID := msgr.sends[len(msgr.sends)-1].MessageID

	clock = clock.Add(30 * time.Minute)
	if _, err := svc.PostFormup(context.Background(), f); err != nil {
		t.Fatalf("PostFormup: %v", err)
	}
	formup := msgr.sends[len(msgr.sends)-1]
	if formup.ReplyTo == nil {
		t.Fatal("formup is not a reply")
	}
	if formup.ReplyTo.MessageID != reminderID {
		t.Fatalf("formup replies to %s, want reminder %s", formup.ReplyTo.MessageID, reminderID)
	}
}

func TestUpdateAllEditsEveryMessage(t *testing.T) {
	t.Parallel()
	svc, st, msgr := newTestService()
	cat := seedCategory(t, st)
	f := seedFleet(t, st, cat, time.Now().Add(time.Hour))

	if _, err := svc.PostCreation(context.Background(), f); err != nil {
		t.Fatalf("PostCreation: %v", err)
	}
	if _, err := svc.PostReminder(context.Background(), f); err != nil {
		t.Fatalf("PostReminder: %v", err)
	}

	f.Name = "Renamed Op"
	report, err := svc.UpdateAll(context.Background(), f)
	if err != nil {
		t.Fatalf("UpdateAll: %v", err)
	}
	if report.Attempted() != 4 || report.Failed() != 0 {
		t.Fatalf("report = %d attempted, %d failed", report.Attempted(), report.Failed())
	}
	if len(msgr.edits) != 4 {
		t.Fatalf("edits = %d, want 4", len(msgr.edits))
	}
	for _, e := range msgr.edits {
		if e.Content != nil {
			t.Fatal("update must not touch ping content")
		}
		if e.Embed == nil || e.Embed.Title != "Renamed Op" {
			t.Fatalf("edit embed = %+v", e.Embed)
		}
	}
}

func TestCancelAllCompleteness(t *testing.T) {
	t.Parallel()
	svc, st, msgr := newTestService()
	cat := seedCategory(t, st)
	f := seedFleet(t, st, cat, time.Now().Add(time.Hour))

	if _, err := svc.PostCreation(context.Background(), f); err != nil {
		t.Fatalf("PostCreation: %v", err)
	}
	if _, err := svc.PostReminder(context.Background(), f); err != nil {
		t.Fatalf("PostReminder: %v", err)
	}

	// One of the four messages fails to edit; the other three still go out
	// and the call still succeeds.
	msgr.editErr[msgr.sends[0].MessageID] = errors.New("message deleted")

	report, err := svc.CancelAll(context.Background(), f, "77")
	if err != nil {
		t.Fatalf("CancelAll: %v", err)
	}
	if report.Attempted() != 4 {
		t.Fatalf("attempted = %d, want 4", report.Attempted())
	}
	if report.Failed() != 1 {
		t.Fatalf("failed = %d, want 1", report.Failed())
	}
	if len(msgr.edits) != 3 {
		t.Fatalf("edits = %d, want 3", len(msgr.edits))
	}
	for _, e := range msgr.edits {
		if e.Content == nil || *e.Content != "" {
			t.Fatal("cancel must clear ping content")
		}
		if e.Embed == nil || e.Embed.Title != ".:Stratop Cancelled:." {
			t.Fatalf("cancel embed = %+v", e.Embed)
		}
	}
}
