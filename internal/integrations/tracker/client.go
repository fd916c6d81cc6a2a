// Package tracker opens issues in a Jira-compatible issue tracker for
// report requests and escalations.
package tracker

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spec-kit/helpdesk-pipeline/internal/config"
	"github.com/spec-kit/helpdesk-pipeline/internal/integrations"
)

const serviceName = "tracker"

// ErrNotConfigured is returned by a nil Client.
var ErrNotConfigured = errors.New("tracker: not configured")

// Escalation describes an issue to open for a helpdesk ticket.
type Escalation struct {
	Title             string
	Description       string
	ExternalTicketID  string
	ExternalTicketURL string
	Priority          string
	Customer          string
}

// Issue is the tracker's acknowledgement of a created issue.
type Issue struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

// Client creates issues with basic-auth API token credentials.
type Client struct {
	httpClient *http.Client
	cfg        config.TrackerConfig
}

// NewClient returns nil when the tracker is not configured.
func NewClient(cfg config.TrackerConfig, httpClient *http.Client) *Client {
	if !cfg.Enabled() {
		return nil
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.IssueType == "" {
		cfg.IssueType = "Task"
	}
	return &Client{httpClient: httpClient, cfg: cfg}
}

type issueFields struct {
	Project     map[string]string `json:"project"`
	Summary     string            `json:"summary"`
	Description string            `json:"description"`
	IssueType   map[string]string `json:"issuetype"`
	Priority    map[string]string `json:"priority,omitempty"`
	Labels      []string          `json:"labels,omitempty"`
}

// CreateEscalation opens one issue. It is not retried.
func (c *Client) CreateEscalation(ctx context.Context, esc Escalation) (*Issue, error) {
	if c == nil {
		return nil, ErrNotConfigured
	}

	var description strings.Builder
	description.WriteString(esc.Description)
	if esc.Customer != "" {
		fmt.Fprintf(&description, "\n\nCustomer: %s", esc.Customer)
	}
	if esc.ExternalTicketID != "" {
		fmt.Fprintf(&description, "\nHelpdesk ticket: %s", esc.ExternalTicketID)
	}
	if esc.ExternalTicketURL != "" {
		fmt.Fprintf(&description, "\nHelpdesk link: %s", esc.ExternalTicketURL)
	}

	fields := issueFields{
		Project:     map[string]string{"key": c.cfg.ProjectKey},
		Summary:     esc.Title,
		Description: description.String(),
		IssueType:   map[string]string{"name": c.cfg.IssueType},
		Labels:      []string{"helpdesk"},
	}
	if esc.Priority != "" {
		fields.Priority = map[string]string{"name": esc.Priority}
	}

	var issue Issue
	err := integrations.DoJSON(ctx, c.httpClient, serviceName, integrations.Request{
		Method:  http.MethodPost,
		URL:     strings.TrimRight(c.cfg.BaseURL, "/") + "/rest/api/2/issue",
		Body:    map[string]any{"fields": fields},
		Headers: map[string]string{"Authorization": "Basic " + basicAuth(c.cfg.Email, c.cfg.APIToken)},
	}, &issue)
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

func basicAuth(user, token string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + token))
}
