// Package notify pushes order fills and cancellations to operator chat
// channels (Telegram, Discord). Events can be filtered by type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// sendTimeout bounds one delivery attempt per sender.
const sendTimeout = 10 * time.Second

// Sender delivers one rendered notification to a chat channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans order events out to its senders in parallel. Only events in
// the configured set are sent; an empty set lets everything through.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// NotifyOrder renders ev and sends it when ev.Event is allowed. The error
// joins every sender failure; one failing sender does not stop the others.
func (n *Notifier) NotifyOrder(ctx context.Context, ev domain.OrderEvent) error {
	if len(n.events) > 0 && !n.events[ev.Event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", ev.Event))
		return nil
	}
	title, message := FormatOrderEvent(ev)

	errs := make([]error, len(n.senders))
	var wg sync.WaitGroup
	for i, s := range n.senders {
		wg.Go(func() {
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			defer cancel()
			if err := s.Send(sendCtx, title, message); err != nil {
				n.logger.ErrorContext(ctx, "sender failed",
					slog.String("sender", s.Name()),
					slog.String("order_id", ev.Order.ID),
					slog.String("error", err.Error()),
				)
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
		})
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %s: %w", ev.Event, err)
	}
	return nil
}

// FormatOrderEvent renders the title and body of an order notification.
func FormatOrderEvent(ev domain.OrderEvent) (title, message string) {
	o := ev.Order
	verb := "Filled"
	if ev.Event == domain.EventOrderCancelled {
		verb = "Cancelled"
	}
	title = fmt.Sprintf("%s %s %s %s", verb, o.Kind, o.Direction, o.Symbol)

	var b strings.Builder
	fmt.Fprintf(&b, "order %s (session %s)\n", o.ID, o.SessionID)
	fmt.Fprintf(&b, "quantity %s @ %s\n", o.Quantity, o.Price)
	fmt.Fprintf(&b, "balances quote=%s base=%s", ev.Balances.Quote, ev.Balances.Base)
	return title, b.String()
}
