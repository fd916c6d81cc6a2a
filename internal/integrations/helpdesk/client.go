// Package helpdesk is a client for the helpdesk REST API (Zoho Desk
// compatible): ticket lookup, conversation feeds and customer replies.
package helpdesk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-pipeline/internal/config"
	"github.com/spec-kit/helpdesk-pipeline/internal/integrations"
)

const serviceName = "helpdesk"

// Client talks to the helpdesk API using OAuth refresh-token credentials.
type Client struct {
	httpClient *http.Client
	cfg        config.HelpdeskConfig
	tokens     TokenCache
	logger     *zap.Logger

	mu sync.Mutex
}

// NewClient builds a helpdesk client. tokens may be nil, in which case
// access tokens are cached in process memory.
func NewClient(cfg config.HelpdeskConfig, httpClient *http.Client, tokens TokenCache, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if tokens == nil {
		tokens = NewMemoryTokenCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TokenCacheKey == "" {
		cfg.TokenCacheKey = "helpdesk:access_token"
	}
	return &Client{httpClient: httpClient, cfg: cfg, tokens: tokens, logger: logger}
}

// GetTicket fetches a ticket by its helpdesk id.
func (c *Client) GetTicket(ctx context.Context, ticketID string) (*Ticket, error) {
	var ticket Ticket
	if err := c.do(ctx, http.MethodGet, "/api/v1/tickets/"+url.PathEscape(ticketID), nil, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetConversations fetches the threads and comments of a ticket.
func (c *Client) GetConversations(ctx context.Context, ticketID string) (*ConversationList, error) {
	var list ConversationList
	path := "/api/v1/tickets/" + url.PathEscape(ticketID) + "/conversations"
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// SendReply posts a customer-visible reply on a ticket.
func (c *Client) SendReply(ctx context.Context, ticketID string, reply ReplyRequest) (*ReplyResponse, error) {
	var resp ReplyResponse
	path := "/api/v1/tickets/" + url.PathEscape(ticketID) + "/sendReply"
	if err := c.do(ctx, http.MethodPost, path, reply, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListTickets returns the most recently created tickets.
func (c *Client) ListTickets(ctx context.Context, limit int) (*TicketList, error) {
	if limit <= 0 {
		limit = 10
	}
	var list TicketList
	if err := c.Request(ctx, fmt.Sprintf("/api/v1/tickets?limit=%d&sortBy=createdTime", limit), &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// FindByNumber scans the latest tickets for a ticket number. The API has
// no lookup by number, so only the newest hundred tickets are searched.
func (c *Client) FindByNumber(ctx context.Context, ticketNumber string) (*Ticket, error) {
	var list TicketList
	if err := c.Request(ctx, "/api/v1/tickets?limit=100&sortBy=-createdTime", &list); err != nil {
		return nil, err
	}
	for i := range list.Data {
		if list.Data[i].TicketNumber == ticketNumber {
			return &list.Data[i], nil
		}
	}
	return nil, ErrTicketNotFound
}

// ErrTicketNotFound is returned by FindByNumber.
var ErrTicketNotFound = errors.New("helpdesk: ticket not found")

// Request performs a GET on an arbitrary API path and decodes the response into out.
func (c *Client) Request(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.accessToken(ctx, false)
	if err != nil {
		return err
	}
	err = integrations.DoJSON(ctx, c.httpClient, serviceName, c.request(method, path, body, token), out)

	var apiErr *integrations.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		c.logger.Info("helpdesk access token rejected, refreshing")
		if token, err = c.accessToken(ctx, true); err != nil {
			return err
		}
		err = integrations.DoJSON(ctx, c.httpClient, serviceName, c.request(method, path, body, token), out)
	}
	return err
}

func (c *Client) request(method, path string, body any, token string) integrations.Request {
	headers := map[string]string{"Authorization": "Zoho-oauthtoken " + token}
	if c.cfg.OrgID != "" {
		headers["orgId"] = c.cfg.OrgID
	}
	return integrations.Request{
		Method:  method,
		URL:     strings.TrimRight(c.cfg.BaseURL, "/") + path,
		Body:    body,
		Headers: headers,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

func (c *Client) accessToken(ctx context.Context, forceRefresh bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !forceRefresh {
		token, err := c.tokens.Get(ctx, c.cfg.TokenCacheKey)
		if err != nil {
			c.logger.Warn("helpdesk token cache read failed", zap.Error(err))
		} else if token != "" {
			return token, nil
		}
	}

	form := url.Values{}
	form.Set("refresh_token", c.cfg.RefreshToken)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("grant_type", "refresh_token")

	var resp tokenResponse
	err := integrations.DoJSON(ctx, c.httpClient, serviceName, integrations.Request{
		Method: http.MethodPost,
		URL:    strings.TrimRight(c.cfg.AccountsURL, "/") + "/oauth/v2/token?" + form.Encode(),
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("refresh access token: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("refresh access token: %s", firstNonEmpty(resp.Error, "empty token"))
	}

	ttl := time.Duration(resp.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	// Refresh a minute early so in-flight calls do not race expiry.
	if ttl > 2*time.Minute {
		ttl -= time.Minute
	}
	if err := c.tokens.Set(ctx, c.cfg.TokenCacheKey, resp.AccessToken, ttl); err != nil {
		c.logger.Warn("helpdesk token cache write failed", zap.Error(err))
	}
	return resp.AccessToken, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
