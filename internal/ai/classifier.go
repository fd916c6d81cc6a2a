package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-pipeline/internal/domain"
)

// Fallback reasons recorded on the classification.
const (
	ReasonParseFailed   = "failed to parse"
	ReasonRequestFailed = "classification request failed"
)

// TicketInput is the ticket context sent for classification.
type TicketInput struct {
	Subject      string
	Conversation string
	Priority     string
	Category     string
	Customer     string
	TicketNumber string
	Status       string
}

// Classifier categorises tickets with a language model.
type Classifier struct {
	provider  Provider
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewClassifier creates a classifier.
func NewClassifier(provider Provider, model string, maxTokens int, logger *zap.Logger) *Classifier {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{provider: provider, model: model, maxTokens: maxTokens, logger: logger}
}

// Classify never fails: transport errors and unusable output both yield
// domain.FallbackClassification.
func (c *Classifier) Classify(ctx context.Context, in TicketInput) domain.TicketClassification {
	text, err := c.provider.Complete(ctx, Request{
		Model:     c.model,
		System:    classifierSystem,
		Prompt:    classificationPrompt(in),
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		c.logger.Warn("classification request failed", zap.String("ticket_number", in.TicketNumber), zap.Error(err))
		return domain.FallbackClassification(ReasonRequestFailed)
	}

	classification, ok := ParseClassification(text)
	if !ok {
		c.logger.Warn("classification output unusable", zap.String("ticket_number", in.TicketNumber), zap.Int("length", len(text)))
		return domain.FallbackClassification(ReasonParseFailed)
	}
	return classification
}

const classifierSystem = "You classify customer support tickets for an e-learning platform. Reply with a single JSON object and nothing else."

func classificationPrompt(in TicketInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket #%s\nSubject: %s\nPriority: %s\nCurrent category: %s\nCustomer: %s\nStatus: %s\n\nConversation:\n%s\n\n",
		in.TicketNumber, in.Subject, in.Priority, in.Category, in.Customer, in.Status, in.Conversation)
	b.WriteString("Categories:\n")
	for _, entry := range domain.TicketCategories {
		fmt.Fprintf(&b, "- %s: %s\n", entry.Category, entry.Description)
	}
	b.WriteString(`
Respond with JSON in this shape:
{"primary_category": "CATEGORY", "secondary_categories": [], "confidence": 0.0, "reasoning": "", "required_info": [], "estimated_complexity": "low|medium|high", "auto_resolvable": false}`)
	return b.String()
}

type wireClassification struct {
	PrimaryCategory     *string  `json:"primary_category"`
	SecondaryCategories []string `json:"secondary_categories"`
	Confidence          *float64 `json:"confidence"`
	Reasoning           string   `json:"reasoning"`
	RequiredInfo        []string `json:"required_info"`
	EstimatedComplexity string   `json:"estimated_complexity"`
	AutoResolvable      bool     `json:"auto_resolvable"`
}

// ParseClassification extracts the first well-formed JSON object from
// model output. Comments and trailing commas are tolerated. It reports
// false when no object carries a known primary category and a confidence.
func ParseClassification(text string) (domain.TicketClassification, bool) {
	for offset := 0; offset < len(text); {
		start := strings.IndexByte(text[offset:], '{')
		if start < 0 {
			break
		}
		start += offset
		offset = start + 1

		candidate := jsonc.ToJSON([]byte(text[start:]))
		var wire wireClassification
		if err := json.NewDecoder(bytes.NewReader(candidate)).Decode(&wire); err != nil {
			continue
		}
		if classification, ok := wire.normalize(); ok {
			return classification, true
		}
	}
	return domain.TicketClassification{}, false
}

func (w wireClassification) normalize() (domain.TicketClassification, bool) {
	if w.PrimaryCategory == nil || w.Confidence == nil {
		return domain.TicketClassification{}, false
	}
	primary := domain.TicketCategory(strings.ToUpper(strings.TrimSpace(*w.PrimaryCategory)))
	if !primary.Valid() {
		return domain.TicketClassification{}, false
	}

	confidence := *w.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	secondary := make([]domain.TicketCategory, 0, len(w.SecondaryCategories))
	for _, s := range w.SecondaryCategories {
		cat := domain.TicketCategory(strings.ToUpper(strings.TrimSpace(s)))
		if cat.Valid() && cat != primary {
			secondary = append(secondary, cat)
		}
	}

	complexity := domain.Complexity(strings.ToLower(strings.TrimSpace(w.EstimatedComplexity)))
	switch complexity {
	case domain.ComplexityLow, domain.ComplexityMedium, domain.ComplexityHigh:
	default:
		complexity = domain.ComplexityMedium
	}

	required := w.RequiredInfo
	if required == nil {
		required = []string{}
	}

	return domain.TicketClassification{
		PrimaryCategory:     primary,
		SecondaryCategories: secondary,
		Confidence:          confidence,
		Reasoning:           w.Reasoning,
		RequiredInfo:        required,
		EstimatedComplexity: complexity,
		AutoResolvable:      w.AutoResolvable,
	}, true
}
