package notify

import (
	"time"

	"fleetbot/internal/storage"
	"fleetbot/internal/transport"
	logx "fleetbot/pkg/logx"
)

// Service is the notification engine. All posting, editing and summary
// maintenance goes through it; persistence failures abort the call while
// messaging failures are collected per item and never abort the batch.
type Service struct {
	store  storage.Store
	msgr   transport.Messenger
	appURL string
	log    logx.Logger

	// now is swappable in tests.
	now func() time.Time
}

// New builds the notification service. appURL is the web frontend base URL
// embedded as the click-through link in every embed; it may be empty.
func New(store storage.Store, msgr transport.Messenger, appURL string, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:  store,
		msgr:   msgr,
		appURL: appURL,
		log:    log,
		now:    time.Now,
	}
}

// Outcome records one per-channel (or per-message) messaging attempt.
type Outcome struct {
	ChannelID string
	MessageID string
	Err       error
}

func (o Outcome) OK() bool { return o.Err == nil }

// Report collects the outcomes of one batch operation. Batch operations
// return a Report alongside a nil error even when some items failed;
// a non-nil error means the call could not start at all.
type Report struct {
	Outcomes []Outcome
}

func (r Report) Attempted() int { return len(r.Outcomes) }

func (r Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

func (r *Report) add(o Outcome) { r.Outcomes = append(r.Outcomes, o) }
