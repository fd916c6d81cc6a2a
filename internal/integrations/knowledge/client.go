// Package knowledge searches the support knowledge base (Dify-compatible
// chat API) for context to ground AI replies.
package knowledge

import (
	"context"
	"net/http"
	"strings"

	"github.com/spec-kit/helpdesk-pipeline/internal/config"
	"github.com/spec-kit/helpdesk-pipeline/internal/integrations"
)

const serviceName = "knowledge"

// Search methods reported in Result.Method.
const (
	MethodChat     = "chat"
	MethodDisabled = "disabled"
)

// Result is the outcome of a knowledge-base search.
type Result struct {
	Answer  string
	Context string
	Method  string
	Matches int
}

// Grounding returns the text handed to the reply generator.
func (r Result) Grounding() string {
	if r.Answer != "" {
		return r.Answer
	}
	return r.Context
}

// Client queries the knowledge base.
type Client struct {
	httpClient *http.Client
	cfg        config.KnowledgeConfig
}

// NewClient builds a knowledge client. Without an API key every search
// returns an empty result.
func NewClient(cfg config.KnowledgeConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{httpClient: httpClient, cfg: cfg}
}

type chatRequest struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	User           string         `json:"user"`
	ConversationID string         `json:"conversation_id"`
}

type chatResponse struct {
	Answer   string `json:"answer"`
	Metadata struct {
		RetrieverResources []struct {
			DatasetName  string  `json:"dataset_name"`
			DocumentName string  `json:"document_name"`
			Content      string  `json:"content"`
			Score        float64 `json:"score"`
		} `json:"retriever_resources"`
	} `json:"metadata"`
}

// Search asks the knowledge base about query.
func (c *Client) Search(ctx context.Context, query string) (Result, error) {
	if c.cfg.APIKey == "" || strings.TrimSpace(query) == "" {
		return Result{Method: MethodDisabled}, nil
	}

	var resp chatResponse
	err := integrations.DoJSON(ctx, c.httpClient, serviceName, integrations.Request{
		Method: http.MethodPost,
		URL:    strings.TrimRight(c.cfg.BaseURL, "/") + "/chat-messages",
		Body: chatRequest{
			Inputs:       map[string]any{},
			Query:        query,
			ResponseMode: "blocking",
			User:         c.cfg.User,
		},
		Headers: map[string]string{"Authorization": "Bearer " + c.cfg.APIKey},
	}, &resp)
	if err != nil {
		return Result{Method: MethodChat}, err
	}

	resources := resp.Metadata.RetrieverResources
	parts := make([]string, 0, len(resources))
	for _, res := range resources {
		if text := strings.TrimSpace(res.Content); text != "" {
			parts = append(parts, text)
		}
	}
	return Result{
		Answer:  strings.TrimSpace(resp.Answer),
		Context: strings.Join(parts, "\n\n"),
		Method:  MethodChat,
		Matches: len(resources),
	}, nil
}
