package ai

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Responder drafts customer replies grounded in knowledge-base context.
type Responder struct {
	provider  Provider
	model     string
	maxTokens int
}

// NewResponder creates a responder.
func NewResponder(provider Provider, model string, maxTokens int) *Responder {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &Responder{provider: provider, model: model, maxTokens: maxTokens}
}

const responderSystem = `You are a support agent for an e-learning platform. Answer the customer's question using the supplied context. If the context does not contain enough detail, say that you need to check with the team. Be concise and professional.`

// GenerateResponse returns the model's reply. An empty reply is not an error.
func (r *Responder) GenerateResponse(ctx context.Context, query, kbContext string) (string, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Question:\n%s\n\n", query)
	if strings.TrimSpace(kbContext) != "" {
		fmt.Fprintf(&prompt, "Context:\n%s\n", kbContext)
	} else {
		prompt.WriteString("Context:\n(none)\n")
	}

	text, err := r.provider.Complete(ctx, Request{
		Model:     r.model,
		System:    responderSystem,
		Prompt:    prompt.String(),
		MaxTokens: r.maxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// RenderHTML converts a markdown reply to HTML for email delivery. Raw
// HTML in the model output is dropped.
func RenderHTML(text string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render reply: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
