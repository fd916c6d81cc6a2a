// Package conversation merges a ticket's message threads into one
// chronological view, compresses it into a bounded model query and scans
// text for escalation language.
package conversation

import (
	"sort"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk-pipeline/internal/content"
)

// AuthorType classifies the writer of a thread.
type AuthorType string

const (
	AuthorCustomer AuthorType = "customer"
	AuthorAgent    AuthorType = "agent"
	AuthorSystem   AuthorType = "system"
)

// ParseAuthorType maps helpdesk author labels onto AuthorType.
func ParseAuthorType(label string) AuthorType {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "customer", "end_user", "enduser", "contact", "user":
		return AuthorCustomer
	case "agent", "staff", "operator":
		return AuthorAgent
	default:
		return AuthorSystem
	}
}

// Thread is one raw message of a ticket conversation.
type Thread struct {
	ID          string
	Content     string
	AuthorType  AuthorType
	CreatedTime time.Time
	Channel     string
}

// Message is a thread with its cleaned body.
type Message struct {
	Thread
	Text string
}

// Aggregated is the merged chronological view of a conversation.
type Aggregated struct {
	Messages         []Message
	CustomerMessages int
	AgentMessages    int
	SystemMessages   int
	FirstContact     time.Time
	LastContact      time.Time
	Channels         []string
}

// Empty reports whether the conversation has no usable text.
func (a Aggregated) Empty() bool {
	return len(a.Messages) == 0
}

// Transcript renders the conversation as "[author] text" lines.
func (a Aggregated) Transcript() string {
	var b strings.Builder
	for i, msg := range a.Messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("[")
		b.WriteString(string(msg.AuthorType))
		b.WriteString("] ")
		b.WriteString(msg.Text)
	}
	return b.String()
}

// Aggregate cleans each thread and orders them by creation time. Threads
// whose cleaned body is empty are dropped; equal timestamps keep input order.
func Aggregate(threads []Thread) Aggregated {
	var agg Aggregated
	seenChannels := map[string]struct{}{}

	for _, thread := range threads {
		text := content.Clean(thread.Content)
		if text == "" {
			continue
		}
		agg.Messages = append(agg.Messages, Message{Thread: thread, Text: text})
	}

	sort.SliceStable(agg.Messages, func(i, j int) bool {
		return agg.Messages[i].CreatedTime.Before(agg.Messages[j].CreatedTime)
	})

	for _, msg := range agg.Messages {
		switch msg.AuthorType {
		case AuthorCustomer:
			agg.CustomerMessages++
		case AuthorAgent:
			agg.AgentMessages++
		default:
			agg.SystemMessages++
		}
		if msg.Channel != "" {
			if _, ok := seenChannels[msg.Channel]; !ok {
				seenChannels[msg.Channel] = struct{}{}
				agg.Channels = append(agg.Channels, msg.Channel)
			}
		}
	}
	if n := len(agg.Messages); n > 0 {
		agg.FirstContact = agg.Messages[0].CreatedTime
		agg.LastContact = agg.Messages[n-1].CreatedTime
	}
	return agg
}
