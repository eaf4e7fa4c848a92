package crm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultReminderSchedule runs the sweep every evening at 18:00.
const DefaultReminderSchedule = "0 18 * * *"

// ReminderJob periodically flags the next day's appointments for reminder
// calls.
type ReminderJob struct {
	store  *Store
	cron   *cron.Cron
	logger *slog.Logger
}

// NewReminderJob schedules the reminder sweep on spec (standard 5-field cron).
func NewReminderJob(store *Store, spec string, logger *slog.Logger) (*ReminderJob, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if spec == "" {
		spec = DefaultReminderSchedule
	}
	j := &ReminderJob{store: store, cron: cron.New(), logger: logger}
	if _, err := j.cron.AddFunc(spec, func() {
		if _, err := j.RunOnce(context.Background()); err != nil {
			j.logger.Error("reminder sweep failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("crm: reminder schedule %q: %w", spec, err)
	}
	return j, nil
}

// RunOnce flags tomorrow's scheduled appointments and returns how many were
// flagged.
func (j *ReminderJob) RunOnce(ctx context.Context) (int, error) {
	tomorrow := j.store.now().Add(24 * time.Hour).Format(dateLayout)
	due, err := j.store.MarkReminders(ctx, tomorrow)
	if err != nil {
		return 0, err
	}
	for _, a := range due {
		j.logger.Info("appointment reminder due",
			"appointment_id", a.ID,
			"phone", a.CustomerPhone,
			"date", a.Date,
			"slot", a.TimeSlot,
		)
	}
	return len(due), nil
}

// Start begins the schedule in the background.
func (j *ReminderJob) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to
// expire.
func (j *ReminderJob) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
