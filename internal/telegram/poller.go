package telegram

import (
	"context"
	"sync"
	"time"

	"reelpost/internal/logging"
	"reelpost/internal/metrics"
)

const (
	pollTimeout  = 30 * time.Second
	pollErrorLag = 15 * time.Second
)

// offsetStore persists the update offset across restarts.
type offsetStore interface {
	GetTelegramOffset(ctx context.Context) (int64, error)
	SetTelegramOffset(ctx context.Context, offset int64) error
}

// CallbackHandler receives admin button presses.
type CallbackHandler func(ctx context.Context, query *CallbackQuery)

// Poller runs the getUpdates long-poll loop and dispatches callback
// queries. Only the configured admin's button presses are dispatched.
type Poller struct {
	client      *Client
	store       offsetStore
	adminUserID int64
	handler     CallbackHandler

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewPoller creates a poller. The handler is invoked synchronously per
// callback query, so it should hand long work off to another goroutine.
func NewPoller(client *Client, store offsetStore, adminUserID int64, handler CallbackHandler) *Poller {
	return &Poller{
		client:      client,
		store:       store,
		adminUserID: adminUserID,
		handler:     handler,
		done:        make(chan struct{}),
	}
}

// Start launches the poll loop.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)
}

// Stop terminates the loop and waits for it to exit.
func (p *Poller) Stop() {
	p.once.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		<-p.done
	})
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	offset, err := p.store.GetTelegramOffset(ctx)
	if err != nil {
		logging.Warn("Failed to load Telegram offset, starting from latest: %v", err)
	}
	logging.Info("Telegram poller started (offset %d)", offset)

	for {
		select {
		case <-ctx.Done():
			logging.Info("Telegram poller stopped")
			return
		default:
		}

		updates, err := p.client.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				logging.Info("Telegram poller stopped")
				return
			}
			metrics.TelegramPollErrors.Inc()
			logging.Warn("getUpdates failed: %v (backing off %v)", err, pollErrorLag)
			select {
			case <-ctx.Done():
			case <-time.After(pollErrorLag):
			}
			continue
		}

		for i := range updates {
			update := &updates[i]
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			p.dispatch(ctx, update)
		}

		if len(updates) > 0 {
			if err := p.store.SetTelegramOffset(ctx, offset); err != nil {
				logging.Warn("Failed to persist Telegram offset: %v", err)
			}
		}
	}
}

func (p *Poller) dispatch(ctx context.Context, update *Update) {
	metrics.TelegramUpdatesTotal.Inc()

	query := update.CallbackQuery
	if query == nil {
		return
	}

	if query.From.ID != p.adminUserID {
		logging.Warn("Ignoring callback from non-admin user %d (%s)", query.From.ID, query.From.Username)
		if err := p.client.AnswerCallbackQuery(ctx, query.ID, "Not authorized"); err != nil {
			logging.Debug("Failed to answer unauthorized callback: %v", err)
		}
		return
	}

	logging.Debug("Callback from admin: %s", query.Data)
	p.handler(ctx, query)
}
