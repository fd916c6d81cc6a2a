package helpdesk

import (
	"bytes"
	"encoding/json"
	"time"
)

// Label decodes helpdesk fields that arrive as a string, null or an
// object carrying a name.
type Label string

// UnmarshalJSON implements json.Unmarshaler.
func (l *Label) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if len(data) > 0 && data[0] == '{' {
		var named struct {
			Name        string `json:"name"`
			ProductName string `json:"productName"`
		}
		if err := json.Unmarshal(data, &named); err != nil {
			return err
		}
		if named.Name != "" {
			*l = Label(named.Name)
		} else {
			*l = Label(named.ProductName)
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*l = Label(s)
	return nil
}

// Contact is a helpdesk requester.
type Contact struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Mobile    string `json:"mobile"`
}

// Assignee is the helpdesk agent currently owning a ticket.
type Assignee struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Ticket is a helpdesk ticket as returned by the list and detail endpoints.
type Ticket struct {
	ID           string    `json:"id"`
	TicketNumber string    `json:"ticketNumber"`
	Subject      string    `json:"subject"`
	Description  string    `json:"description"`
	Status       string    `json:"status"`
	Priority     Label     `json:"priority"`
	Email        string    `json:"email"`
	ContactID    string    `json:"contactId"`
	Channel      string    `json:"channel"`
	Category     Label     `json:"category"`
	Department   Label     `json:"department"`
	Contact      *Contact  `json:"contact"`
	Assignee     *Assignee `json:"assignee"`
	WebURL       string    `json:"webUrl"`
	Tags         []string  `json:"tags"`
	CreatedTime  time.Time `json:"createdTime"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

// CustomerEmail returns the requester address from either the ticket or its contact.
func (t Ticket) CustomerEmail() string {
	if t.Email != "" {
		return t.Email
	}
	if t.Contact != nil {
		return t.Contact.Email
	}
	return ""
}

// TicketList is the envelope of the ticket list endpoint.
type TicketList struct {
	Data  []Ticket `json:"data"`
	Count int      `json:"count"`
}

// Author describes who wrote a conversation entry.
type Author struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Type  string `json:"type"`
}

// Conversation is one entry of a ticket's conversation feed. Type is
// "thread" for messages and "comment" for internal notes.
type Conversation struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Content     string    `json:"content"`
	Summary     string    `json:"summary"`
	Direction   string    `json:"direction"`
	Channel     string    `json:"channel"`
	Author      Author    `json:"author"`
	CreatedTime time.Time `json:"createdTime"`
}

// ConversationList is the envelope of the conversations endpoint.
type ConversationList struct {
	Data []Conversation `json:"data"`
}

// Reply content types.
const (
	ContentTypeHTML      = "html"
	ContentTypePlainText = "plainText"
)

// ReplyRequest is the body of a send-reply call.
type ReplyRequest struct {
	ContentType      string `json:"contentType"`
	Content          string `json:"content"`
	FromEmailAddress string `json:"fromEmailAddress"`
	To               string `json:"to"`
	IsForward        bool   `json:"isForward"`
	Channel          string `json:"channel"`
}

// ReplyResponse acknowledges a sent reply.
type ReplyResponse struct {
	ID          string `json:"id"`
	CreatedTime string `json:"createdTime"`
}
