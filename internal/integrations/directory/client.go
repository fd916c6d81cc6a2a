// Package directory is a REST client for the account directory that the
// workflow scenarios verify users against and act on.
package directory

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/spec-kit/helpdesk-pipeline/internal/config"
	"github.com/spec-kit/helpdesk-pipeline/internal/integrations"
	"github.com/spec-kit/helpdesk-pipeline/internal/workflow"
)

const serviceName = "directory"

// ErrUserNotFound is returned when no account matches an email address.
var ErrUserNotFound = workflow.ErrUserNotFound

// Client implements workflow.Directory.
type Client struct {
	httpClient *http.Client
	cfg        config.DirectoryConfig
}

var _ workflow.Directory = (*Client)(nil)

// NewClient returns nil when no base URL is configured.
func NewClient(cfg config.DirectoryConfig, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		return nil
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{httpClient: httpClient, cfg: cfg}
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.cfg.APIKey
	}
	return integrations.DoJSON(ctx, c.httpClient, serviceName, integrations.Request{
		Method:  method,
		URL:     strings.TrimRight(c.cfg.BaseURL, "/") + path,
		Body:    body,
		Headers: headers,
	}, out)
}

func userPath(userID string, rest ...string) string {
	return "/users/" + url.PathEscape(userID) + strings.Join(rest, "")
}

// LookupUser finds an account by email.
func (c *Client) LookupUser(ctx context.Context, email string) (*workflow.DirectoryUser, error) {
	var user workflow.DirectoryUser
	err := c.call(ctx, http.MethodGet, "/users?email="+url.QueryEscape(email), nil, &user)
	var apiErr *integrations.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

// UnlockAccount clears a lockout.
func (c *Client) UnlockAccount(ctx context.Context, userID string) error {
	return c.call(ctx, http.MethodPost, userPath(userID, "/unlock"), nil, nil)
}

// RequestAccess files an access request and returns its reference.
func (c *Client) RequestAccess(ctx context.Context, userID, summary string) (string, error) {
	var resp struct {
		Reference string `json:"reference"`
	}
	body := map[string]string{"userId": userID, "summary": summary}
	if err := c.call(ctx, http.MethodPost, "/access-requests", body, &resp); err != nil {
		return "", err
	}
	return resp.Reference, nil
}

// CourseProgress lists a user's enrolments.
func (c *Client) CourseProgress(ctx context.Context, userID string) ([]workflow.CourseProgress, error) {
	var resp struct {
		Data []workflow.CourseProgress `json:"data"`
	}
	if err := c.call(ctx, http.MethodGet, userPath(userID, "/courses"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// MarkCourseComplete records a course as completed.
func (c *Client) MarkCourseComplete(ctx context.Context, userID, courseID string) error {
	return c.call(ctx, http.MethodPost, userPath(userID, "/courses/", url.PathEscape(courseID), "/complete"), nil, nil)
}

// EnableNotifications turns email notifications back on.
func (c *Client) EnableNotifications(ctx context.Context, userID string) error {
	return c.call(ctx, http.MethodPost, userPath(userID, "/notifications/enable"), nil, nil)
}
