package conversation

import (
	"strings"

	"github.com/spec-kit/helpdesk-pipeline/internal/intent"
)

// SignalKind groups escalation phrases.
type SignalKind string

const (
	SignalFrustration     SignalKind = "frustration"
	SignalRepeatContact   SignalKind = "repeat_contact"
	SignalLegal           SignalKind = "legal"
	SignalExplicitAsk     SignalKind = "escalation_request"
	SignalUnresolvedDraft SignalKind = "unresolved_reply"
)

var escalationPhrases = []struct {
	kind    SignalKind
	phrases []string
}{
	{SignalFrustration, []string{
		"frustrated", "frustrating", "unacceptable", "ridiculous", "fed up",
		"very disappointed", "extremely disappointed", "waste of time", "terrible service",
	}},
	{SignalRepeatContact, []string{
		"still not working", "still not resolved", "still having", "still broken",
		"multiple times", "several times", "third time", "second time",
		"once again", "already reported", "already told", "as i mentioned before",
	}},
	{SignalLegal, []string{
		"lawyer", "attorney", "legal action", "lawsuit", "sue you", "breach of contract",
		"compliance", "gdpr", "regulator",
	}},
	{SignalExplicitAsk, []string{
		"speak to a manager", "speak with a manager", "talk to a manager",
		"speak to a supervisor", "speak with a supervisor", "talk to a human",
		"speak to a human", "real person", "escalate",
	}},
	{SignalUnresolvedDraft, []string{
		"check with the team", "don't have enough information", "do not have enough information",
		"unable to resolve", "need to investigate", "a member of our team will",
	}},
}

// EscalationResult lists every escalation phrase found in a text.
type EscalationResult struct {
	HasSignals bool         `json:"hasSignals"`
	Signals    []string     `json:"signals"`
	Kinds      []SignalKind `json:"kinds,omitempty"`
}

// DetectEscalationSignals scans customer or drafted text for frustration,
// repeated contact, legal threats, explicit escalation requests and
// replies that defer to a human. Every matched phrase is returned.
func DetectEscalationSignals(text string) EscalationResult {
	normalized := intent.Normalize(text)
	result := EscalationResult{Signals: []string{}}
	if normalized == "" {
		return result
	}

	for _, group := range escalationPhrases {
		matched := false
		for _, phrase := range group.phrases {
			if strings.Contains(normalized, phrase) {
				result.Signals = append(result.Signals, phrase)
				matched = true
			}
		}
		if matched {
			result.Kinds = append(result.Kinds, group.kind)
		}
	}
	result.HasSignals = len(result.Signals) > 0
	return result
}
