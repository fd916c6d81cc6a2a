package conversation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// ConsolidateOptions controls ConsolidateForAI.
type ConsolidateOptions struct {
	// MaxLength is a hard cap in bytes on the returned query; zero or
	// negative disables the cap.
	MaxLength        int
	FocusOnTechnical bool
}

var (
	sentenceBoundary = regexp.MustCompile(`[.!?]+\s+|\n+`)
	technicalTerm    = regexp.MustCompile(`(?i)\b(error|errors|fail|failed|failing|failure|bug|crash|crashed|broken|issue|code|report|reports|export|import|login|log in|password|access|account|course|page|link|button|upload|download|sync|integration|api|timeout|blank|loading|missing|permission|certificate|grade|grades|data|invalid|denied|status)\b|\b\d{3}\b`)
)

// ConsolidateForAI compresses a conversation into a single query string for
// model consumption. Customer messages are preferred over agent and system
// text, repeated sentences are dropped, and with FocusOnTechnical sentences
// carrying diagnostic terms are taken first. The result never exceeds
// MaxLength bytes.
func ConsolidateForAI(agg Aggregated, opts ConsolidateOptions) string {
	sentences := collectSentences(agg)
	if len(sentences) == 0 {
		return ""
	}

	ordered := sentences
	if opts.FocusOnTechnical {
		technical := make([]string, 0, len(sentences))
		rest := make([]string, 0, len(sentences))
		for _, s := range sentences {
			if technicalTerm.MatchString(s) {
				technical = append(technical, s)
			} else {
				rest = append(rest, s)
			}
		}
		ordered = append(technical, rest...)
	}

	var b strings.Builder
	for _, sentence := range ordered {
		candidate := sentence
		if b.Len() > 0 {
			candidate = " " + sentence
		}
		if opts.MaxLength > 0 && b.Len()+len(candidate) > opts.MaxLength {
			if b.Len() == 0 {
				b.WriteString(Truncate(sentence, opts.MaxLength))
			}
			break
		}
		b.WriteString(candidate)
	}
	return b.String()
}

func collectSentences(agg Aggregated) []string {
	source := make([]Message, 0, len(agg.Messages))
	for _, msg := range agg.Messages {
		if msg.AuthorType == AuthorCustomer {
			source = append(source, msg)
		}
	}
	if len(source) == 0 {
		source = agg.Messages
	}

	seen := map[string]struct{}{}
	var sentences []string
	for _, msg := range source {
		for _, raw := range splitSentences(msg.Text) {
			key := strings.ToLower(raw)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			sentences = append(sentences, raw)
		}
	}
	return sentences
}

func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		// keep terminal punctuation with its sentence
		end := loc[0] + len(strings.TrimRight(text[loc[0]:loc[1]], " \t\n"))
		if s := strings.Join(strings.Fields(text[last:end]), " "); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if s := strings.Join(strings.Fields(text[last:]), " "); s != "" {
		out = append(out, s)
	}
	return out
}

// Truncate shortens s to at most max bytes without splitting a rune,
// preferring to cut at a word boundary.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	clipped := s[:cut]
	if idx := strings.LastIndexAny(clipped, " \n\t"); idx > max/2 {
		clipped = clipped[:idx]
	}
	return strings.TrimSpace(clipped)
}
