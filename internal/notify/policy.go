package notify

import (
	"time"

	"fleetbot/internal/model"
)

// formupMaxAge guards against flooding channels with stale formups after
// downtime: a fleet more than this far past its start time when first
// evaluated is skipped permanently.
const formupMaxAge = 5 * time.Minute

// ReminderDue reports whether a fleet's reminder window is open at now.
// The caller is responsible for the no-existing-reminder check; this is
// pure time-window and flag logic.
func ReminderDue(f model.Fleet, cat model.FleetCategory, now time.Time) bool {
	if f.Hidden || f.DisableReminder {
		return false
	}
	if cat.LeadTime <= 0 {
		return false
	}
	windowStart := f.FleetTime.Add(-cat.LeadTime)
	return !now.Before(windowStart) && now.Before(f.FleetTime)
}

// FormupDue reports whether a fleet should get its "forming now" notice at
// now: the fleet time has arrived and is no more than formupMaxAge in the
// past.
func FormupDue(f model.Fleet, now time.Time) bool {
	if now.Before(f.FleetTime) {
		return false
	}
	return !f.FleetTime.Before(now.Add(-formupMaxAge))
}
