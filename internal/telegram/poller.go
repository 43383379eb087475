package telegram

import (
	"context"
	"errors"
	"time"

	"crmbot/platform/logger"

	"golang.org/x/sync/semaphore"
)

const (
	pollTimeout = 30 * time.Second
	pollBackoff = 3 * time.Second
	maxInFlight = 16
)

// UpdateHandler processes one update.
type UpdateHandler func(ctx context.Context, u Update)

type updateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
}

// Poller long-polls getUpdates and hands every update to a handler on its
// own goroutine, so a slow turn in one chat never holds back another chat.
type Poller struct {
	source  updateSource
	handler UpdateHandler
	log     *logger.Logger
	sem     *semaphore.Weighted
	backoff time.Duration
}

func NewPoller(source updateSource, handler UpdateHandler, log *logger.Logger) *Poller {
	return &Poller{
		source:  source,
		handler: handler,
		log:     log,
		sem:     semaphore.NewWeighted(maxInFlight),
		backoff: pollBackoff,
	}
}

// Run polls until ctx is cancelled, then waits for in-flight handlers.
func (p *Poller) Run(ctx context.Context) error {
	defer func() {
		_ = p.sem.Acquire(context.Background(), maxInFlight)
		p.sem.Release(maxInFlight)
	}()

	var offset int64
	for {
		updates, err := p.source.GetUpdates(ctx, offset, pollTimeout)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			p.log.Warn("telegram getUpdates failed", "error", err)
			var apiErr *APIError
			wait := p.backoff
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if err := p.sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			go func(u Update) {
				defer p.sem.Release(1)
				p.handler(context.WithoutCancel(ctx), u)
			}(u)
		}
	}
}
