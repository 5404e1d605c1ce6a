package notify

import (
	"fmt"

	jira "github.com/andygrunwald/go-jira"

	"github.com/shriramnat/ai-decision-council/config"
	"github.com/shriramnat/ai-decision-council/internal/eventhub"
)

type jiraNotifier struct {
	client  *jira.Client
	project string
}

func newJiraNotifier(cfg config.JiraConfig) (*jiraNotifier, error) {
	tp := jira.BasicAuthTransport{
		Username: cfg.Username,
		Password: cfg.APIToken,
	}
	client, err := jira.NewClient(tp.Client(), cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("create jira client: %w", err)
	}
	return &jiraNotifier{client: client, project: cfg.Project}, nil
}

// fileSessionCompleted opens a Task recording that a session finished, with
// the final content attached as the issue description. go-jira's Issue.Create
// takes no context, so this call's duration is bounded only by the
// underlying http.Client's own timeout, not by callTimeout.
func (n *jiraNotifier) fileSessionCompleted(ev eventhub.Event) {
	issue := &jira.Issue{
		Fields: &jira.IssueFields{
			Project:     jira.Project{Key: n.project},
			Type:        jira.IssueType{Name: "Task"},
			Summary:     fmt.Sprintf("Decision council session %s completed", ev.SessionID),
			Description: ev.FinalContent,
		},
	}

	if _, _, err := n.client.Issue.Create(issue); err != nil {
		logFailure("jira", ev, err)
	}
}
