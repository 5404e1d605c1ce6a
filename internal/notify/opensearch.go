package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/shriramnat/ai-decision-council/config"
	"github.com/shriramnat/ai-decision-council/internal/eventhub"
)

type openSearchNotifier struct {
	client *opensearch.Client
}

func newOpenSearchNotifier(cfg config.OpenSearchConfig) (*openSearchNotifier, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}
	return &openSearchNotifier{client: client}, nil
}

type auditDoc struct {
	Kind         string    `json:"kind"`
	SessionID    string    `json:"session_id"`
	Iteration    int       `json:"iteration,omitempty"`
	MessageID    string    `json:"message_id,omitempty"`
	PersonaID    string    `json:"persona_id,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	FinalContent string    `json:"final_content,omitempty"`
	IndexedAt    time.Time `json:"indexed_at"`
}

// indexEvent writes every event to a daily rolling index, independent of
// kind — this is an audit trail, not a selective alert, so nothing here is
// config-gated per event kind the way PagerDuty/Jira are.
func (n *openSearchNotifier) indexEvent(ev eventhub.Event) {
	ctx, cancel := withCallTimeout()
	defer cancel()

	doc := auditDoc{
		Kind:         string(ev.Kind),
		SessionID:    ev.SessionID,
		Iteration:    ev.Iteration,
		MessageID:    ev.MessageID,
		PersonaID:    ev.PersonaID,
		Reason:       ev.Reason,
		FinalContent: ev.FinalContent,
		IndexedAt:    time.Now().UTC(),
	}
	body, err := json.Marshal(doc)
	if err != nil {
		logFailure("opensearch", ev, err)
		return
	}

	index := fmt.Sprintf("council-events-%s", doc.IndexedAt.Format("2006.01.02"))
	req := opensearchapi.IndexRequest{
		Index: index,
		Body:  strings.NewReader(string(body)),
	}
	res, err := req.Do(ctx, n.client)
	if err != nil {
		logFailure("opensearch", ev, err)
		return
	}
	defer res.Body.Close()
	if res.IsError() {
		logFailure("opensearch", ev, fmt.Errorf("index response: %s", res.Status()))
	}
}
