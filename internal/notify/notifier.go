// Package notify forwards engine events to operators over chat webhooks and
// into the audit log.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Sender delivers one message over a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// sendTimeout bounds one dispatch to every sender.
const sendTimeout = 15 * time.Second

// Notifier is an EventSink that fans events out to senders in the background.
// Only configured event types are forwarded; an empty list forwards all.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool
	prefix  string
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewNotifier creates a Notifier. prefix, when set, leads every title.
func NewNotifier(senders []Sender, events []string, prefix string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventType(e)] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		prefix:  prefix,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Wants reports whether events of type t are forwarded.
func (n *Notifier) Wants(t domain.EventType) bool {
	return len(n.events) == 0 || n.events[t]
}

// Emit implements domain.EventSink. Delivery happens on its own goroutine so
// a slow webhook never stalls a tick.
func (n *Notifier) Emit(ctx context.Context, ev domain.Event) {
	if len(n.senders) == 0 || !n.Wants(ev.Type) {
		return
	}
	title, body := Format(n.prefix, ev)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		_ = n.Dispatch(sctx, title, body)
	}()
}

// Dispatch sends synchronously to every sender. One failing sender does not
// stop delivery to the rest.
func (n *Notifier) Dispatch(ctx context.Context, title, message string) error {
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
		n.logger.DebugContext(ctx, "notification sent", slog.String("sender", s.Name()), slog.String("title", title))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), err)
	}
	return nil
}

// Close waits for in-flight deliveries.
func (n *Notifier) Close() error {
	n.wg.Wait()
	return nil
}

// Format renders ev as a title and a body of sorted key=value lines.
func Format(prefix string, ev domain.Event) (string, string) {
	title := string(ev.Type)
	if ev.Cycle != "" {
		title += " " + ev.Cycle
	}
	if prefix != "" {
		title = "[" + prefix + "] " + title
	}

	var b strings.Builder
	b.WriteString(ev.Message)
	if ev.GroupID != "" {
		fmt.Fprintf(&b, "\ngroup=%s", ev.GroupID)
	}
	keys := make([]string, 0, len(ev.Fields))
	for k := range ev.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s=%s", k, ev.Fields[k])
	}
	return title, b.String()
}

var _ domain.EventSink = (*Notifier)(nil)
