// Package notify holds the three best-effort external sinks SPEC_FULL.md's
// Notifications component wires up: a PagerDuty trigger on session error, a
// Jira issue filed on session completion, and an OpenSearch audit index of
// every event. None of these ever block or fail the orchestrator — each
// notifier's own I/O runs in its own goroutine, and a failure is logged,
// never returned to the caller. The PagerDuty and OpenSearch calls run under
// a short timeout; the Jira client call takes no context and has none.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/shriramnat/ai-decision-council/config"
	"github.com/shriramnat/ai-decision-council/internal/eventhub"
)

const callTimeout = 10 * time.Second

// Dispatcher fans a published event out to whichever sinks are configured,
// satisfying orchestrator.Notifier.
type Dispatcher struct {
	pagerDuty  *pagerDutyNotifier
	jira       *jiraNotifier
	openSearch *openSearchNotifier
}

// NewDispatcher builds a Dispatcher from the process configuration. Each
// sink is nil when its config section is disabled, so Notify's dispatch is
// a plain nil check rather than a feature-flag lookup.
func NewDispatcher(cfg config.NotificationsConfig) (*Dispatcher, error) {
	d := &Dispatcher{}

	if cfg.PagerDuty.Enabled {
		d.pagerDuty = newPagerDutyNotifier(cfg.PagerDuty)
	}
	if cfg.Jira.Enabled {
		n, err := newJiraNotifier(cfg.Jira)
		if err != nil {
			return nil, err
		}
		d.jira = n
	}
	if cfg.OpenSearch.Enabled {
		n, err := newOpenSearchNotifier(cfg.OpenSearch)
		if err != nil {
			return nil, err
		}
		d.openSearch = n
	}
	return d, nil
}

// Notify implements orchestrator.Notifier. It never blocks: every sink call
// runs in its own goroutine, and the PagerDuty and OpenSearch calls use a
// fresh, bounded context rather than the orchestrator ctx, since the event
// that triggered them may already be past that ctx's life.
func (d *Dispatcher) Notify(ev eventhub.Event) {
	if d.openSearch != nil {
		go d.openSearch.indexEvent(ev)
	}

	switch ev.Kind {
	case eventhub.KindSessionError:
		if d.pagerDuty != nil {
			go d.pagerDuty.triggerSessionError(ev)
		}
	case eventhub.KindSessionCompleted:
		if d.jira != nil {
			go d.jira.fileSessionCompleted(ev)
		}
	}
}

func withCallTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), callTimeout)
}

func logFailure(sink string, ev eventhub.Event, err error) {
	slog.Warn("notifier call failed", "sink", sink, "session_id", ev.SessionID, "error", err)
}
