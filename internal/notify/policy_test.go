package notify

import (
	"testing"
	"time"

	"fleetbot/internal/model"
)

func TestReminderDue(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	cat := model.FleetCategory{LeadTime: 30 * time.Minute}

	tests := []struct {
		name  string
		fleet model.Fleet
		cat   model.FleetCategory
		now   time.Time
		want  bool
	}{
		{
			name:  "inside window",
			fleet: model.Fleet{FleetTime: base},
			cat:   cat,
			now:   base.Add(-15 * time.Minute),
			want:  true,
		},
		{
			name:  "window opens exactly at lead time",
			fleet: model.Fleet{FleetTime: base},
			cat:   cat,
			now:   base.Add(-30 * time.Minute),
			want:  true,
		},
		{
			name:  "before window",
			fleet: model.Fleet{FleetTime: base},
			cat:   cat,
			now:   base.Add(-31 * time.Minute),
			want:  false,
		},
		{
			name:  "window closes at fleet time",
			fleet: model.Fleet{FleetTime: base},
			cat:   cat,
			now:   base,
			want:  false,
		},
		{
			name:  "hidden fleet",
			fleet: model.Fleet{FleetTime: base, Hidden: true},
			cat:   cat,
			now:   base.Add(-15 * time.Minute),
			want:  false,
		},
		{
			name:  "reminder disabled",
			fleet: model.Fleet{FleetTime: base, DisableReminder: true},
			cat:   cat,
			now:   base.Add(-15 * time.Minute),
			want:  false,
		},
		{
			name:  "category without lead time",
			fleet: model.Fleet{FleetTime: base},
			cat:   model.FleetCategory{},
			now:   base.Add(-15 * time.Minute),
			want:  false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := ReminderDue(tt.fleet, tt.cat, tt.now); got != tt.want {
				t.Fatalf("ReminderDue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormupDue(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		at   time.Time
		now  time.Time
		want bool
	}{
		{name: "exactly at fleet time", at: base, now: base, want: true},
		{name: "shortly after", at: base, now: base.Add(2 * time.Minute), want: true},
		{name: "at the backlog edge", at: base, now: base.Add(5 * time.Minute), want: true},
		{name: "past the backlog edge", at: base, now: base.Add(5*time.Minute + time.Second), want: false},
		{name: "still in the future", at: base, now: base.Add(-time.Second), want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := FormupDue(model.Fleet{FleetTime: tt.at}, tt.now); got != tt.want {
				t.Fatalf("FormupDue = %v, want %v", got, tt.want)
			}
		})
	}
}
