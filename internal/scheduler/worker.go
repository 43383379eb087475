package scheduler

import (
	"context"
	"fmt"
	"strings"

	"crmbot/internal/ledger/schema"
	"crmbot/internal/ledger/store"
	"crmbot/internal/telegram"
	"crmbot/platform/config"
	"crmbot/platform/logger"
	"crmbot/platform/sanitize"

	"github.com/hibiken/asynq"
)

// Notifier delivers the reminder text.
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *telegram.InlineKeyboardMarkup) error
}

// LedgerRows lets the worker check a reminder is still current.
type LedgerRows interface {
	FindRow(ctx context.Context, ledgerID, taxID string) (store.Row, bool, error)
	Get(row store.Row, f schema.Field) string
}

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	notifier Notifier
	ledger   LedgerRows
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, notifier Notifier, ledger LedgerRows, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		notifier: notifier,
		ledger:   ledger,
		log:      log,
	}

	mux.HandleFunc(TaskFollowUpReminder, w.handleFollowUpReminder)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleFollowUpReminder(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseFollowUpReminderPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return w.remind(ctx, payload)
}

// remind skips reminders whose ledger row was rescheduled after enqueueing.
// A ledger that cannot be read does not block the reminder.
func (w *Worker) remind(ctx context.Context, p FollowUpReminderPayload) error {
	if w.ledger != nil && p.LedgerID != "" {
		row, found, err := w.ledger.FindRow(ctx, p.LedgerID, p.TaxID)
		switch {
		case err != nil:
			w.log.Warn("reminder ledger check failed", "tax_id", p.TaxID, "error", err)
		case found && w.ledger.Get(row, schema.NextContactDate) != p.DueDate:
			w.log.Info("follow-up rescheduled, reminder dropped", "tax_id", p.TaxID, "due", p.DueDate)
			return nil
		}
	}

	if err := w.notifier.SendMessage(ctx, p.ChatID, reminderText(p), nil); err != nil {
		return fmt.Errorf("send follow-up reminder: %w", err)
	}
	w.log.Info("follow-up reminder sent", "tax_id", p.TaxID, "chat_id", p.ChatID)
	return nil
}

func reminderText(p FollowUpReminderPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 Сегодня запланирован звонок: <b>%s</b> (ИНН %s)", sanitize.EscapeHTML(p.CompanyName), p.TaxID)
	if p.ContactName != "" {
		fmt.Fprintf(&b, "\nКонтакт: %s", sanitize.EscapeHTML(p.ContactName))
	}
	if p.Phone != "" {
		fmt.Fprintf(&b, "\nТелефон: %s", sanitize.EscapeHTML(p.Phone))
	}
	return b.String()
}
