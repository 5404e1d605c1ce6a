package notify

import (
	"fmt"

	"github.com/PagerDuty/go-pagerduty"

	"github.com/shriramnat/ai-decision-council/config"
	"github.com/shriramnat/ai-decision-council/internal/eventhub"
)

type pagerDutyNotifier struct {
	routingKey string
}

func newPagerDutyNotifier(cfg config.PagerDutyConfig) *pagerDutyNotifier {
	return &pagerDutyNotifier{routingKey: cfg.RoutingKey}
}

// triggerSessionError fires a PagerDuty Events v2 trigger for a session
// that just transitioned to Error. DedupKey is the session id, so repeated
// errors on the same session coalesce into one open incident instead of
// paging once per retry.
func (n *pagerDutyNotifier) triggerSessionError(ev eventhub.Event) {
	ctx, cancel := withCallTimeout()
	defer cancel()

	_, err := pagerduty.ManageEventWithContext(ctx, pagerduty.V2Event{
		RoutingKey: n.routingKey,
		Action:     "trigger",
		DedupKey:   ev.SessionID,
		Payload: &pagerduty.V2Payload{
			Summary:  fmt.Sprintf("Decision council session %s errored: %s", ev.SessionID, ev.Reason),
			Source:   "ai-decision-council",
			Severity: "error",
		},
	})
	if err != nil {
		logFailure("pagerduty", ev, err)
	}
}
