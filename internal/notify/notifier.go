// Package notify delivers fill outcomes to chat channels. Messages go to
// every registered Sender; an optional event filter limits which outcomes
// are forwarded.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/relaytaker/internal/domain"
)

// Event types understood by the filter.
const (
	EventFillConfirmed = "fill_confirmed"
	EventFillFailed    = "fill_failed"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans messages out to its senders. A sender failure does not stop
// delivery to the rest.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list forwards everything.
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

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// NotifyFill reports a terminal fill. Non-terminal fills are ignored.
func (n *Notifier) NotifyFill(ctx context.Context, fill domain.Fill) error {
	var event string
	switch fill.State {
	case domain.FillStateConfirmed:
		event = EventFillConfirmed
	case domain.FillStateFailed:
		event = EventFillFailed
	default:
		return nil
	}
	title, body := FillMessage(fill)
	return n.Notify(ctx, event, title, body)
}

// Notify sends when event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", event),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// FillMessage renders a fill as a title and a plain-text body.
func FillMessage(fill domain.Fill) (title, body string) {
	var b strings.Builder
	fmt.Fprintf(&b, "fill %s\n", fill.ID)
	fmt.Fprintf(&b, "order %s\n", fill.OrderHash.Hex())
	fmt.Fprintf(&b, "amount %s of %s\n", fill.TakerAmount.String(), fill.TakerToken.Hex())
	if fill.FillTx != nil {
		fmt.Fprintf(&b, "tx %s\n", fill.FillTx.Hex())
	}

	switch fill.State {
	case domain.FillStateConfirmed:
		title = "Fill confirmed"
		if fill.Receipt != nil {
			fmt.Fprintf(&b, "block %d, gas %d\n", fill.Receipt.BlockNumber, fill.Receipt.GasUsed)
		}
	default:
		title = "Fill failed"
		if n := len(fill.Transitions); n >= 2 {
			fmt.Fprintf(&b, "during %s\n", fill.Transitions[n-2])
		}
		if fill.Error != "" {
			fmt.Fprintf(&b, "error: %s\n", fill.Error)
		}
	}
	return title, strings.TrimRight(b.String(), "\n")
}
