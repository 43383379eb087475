package scheduler

import (
	"context"
	"fmt"
	"time"

	"crmbot/internal/domain"
	"crmbot/internal/events"
	"crmbot/platform/logger"
)

// LedgerLookup finds the ledger of an operator.
type LedgerLookup interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (domain.Manager, error)
}

// Reminders turns captured calls with a follow-up date into scheduled tasks.
type Reminders struct {
	scheduler ReminderScheduler
	managers  LedgerLookup
	hour      int
	minute    int
	loc       *time.Location
	now       func() time.Time
	log       *logger.Logger
}

// NewReminders parses atClock as HH:MM in loc.
func NewReminders(scheduler ReminderScheduler, managers LedgerLookup, atClock string, loc *time.Location, log *logger.Logger) (*Reminders, error) {
	at, err := time.Parse("15:04", atClock)
	if err != nil {
		return nil, fmt.Errorf("reminder time %q: %w", atClock, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Reminders{
		scheduler: scheduler,
		managers:  managers,
		hour:      at.Hour(),
		minute:    at.Minute(),
		loc:       loc,
		now:       time.Now,
		log:       log,
	}, nil
}

// Subscribe registers the reminder handler on bus.
func (r *Reminders) Subscribe(bus events.Bus) {
	bus.Subscribe(events.CallCaptured{}.EventName(), events.HandlerFunc(r.Handle))
}

// RunAt is the moment a reminder for day fires.
func (r *Reminders) RunAt(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, r.hour, r.minute, 0, 0, r.loc)
}

func (r *Reminders) Handle(ctx context.Context, event events.Event) error {
	e, ok := event.(events.CallCaptured)
	if !ok || e.Record.NextContactDate == nil {
		return nil
	}
	rec := e.Record
	runAt := r.RunAt(*rec.NextContactDate)
	if runAt.Before(r.now()) {
		r.log.Debug("follow-up date already passed, no reminder", "tax_id", rec.TaxID, "date", rec.NextContactLiteral())
		return nil
	}

	mgr, err := r.managers.GetByTelegramID(ctx, rec.OperatorID)
	if err != nil {
		return fmt.Errorf("lookup operator %d: %w", rec.OperatorID, err)
	}

	chatID := e.ChatID
	if chatID == 0 {
		chatID = rec.OperatorID
	}
	payload := FollowUpReminderPayload{
		OperatorID:  rec.OperatorID,
		ChatID:      chatID,
		LedgerID:    mgr.LedgerID,
		TaxID:       rec.TaxID,
		CompanyName: rec.CompanyName,
		ContactName: rec.ContactName,
		Phone:       rec.ContactPhone,
		DueDate:     rec.NextContactLiteral(),
	}
	if err := r.scheduler.ScheduleFollowUpReminder(ctx, payload, runAt); err != nil {
		return fmt.Errorf("schedule follow-up for %s: %w", rec.TaxID, err)
	}
	r.log.Info("follow-up reminder scheduled", "tax_id", rec.TaxID, "run_at", runAt)
	return nil
}
