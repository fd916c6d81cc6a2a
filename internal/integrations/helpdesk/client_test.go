package helpdesk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/spec-kit/helpdesk-pipeline/internal/config"
	"github.com/spec-kit/helpdesk-pipeline/internal/integrations"
)

type fakeDesk struct {
	refreshes   atomic.Int32
	rejectFirst atomic.Bool
	lastReply   ReplyRequest
}

func (f *fakeDesk) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v2/token", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") != "refresh_token" {
			t.Errorf("unexpected grant type %q", r.URL.Query().Get("grant_type"))
		}
		n := f.refreshes.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-" + string(rune('0'+n)), "expires_in": 3600})
	})
	mux.HandleFunc("/api/v1/tickets/42", func(w http.ResponseWriter, r *http.Request) {
		if f.rejectFirst.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("orgId") != "org-1" {
			t.Errorf("missing orgId header")
		}
		_, _ = w.Write([]byte(`{"id":"42","ticketNumber":"1001","subject":"Help","category":{"name":"Billing"},"priority":null,"contact":{"lastName":"Rivera","email":"r@example.com"}}`))
	})
	mux.HandleFunc("/api/v1/tickets/42/conversations", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"c1","type":"thread","content":"hi","author":{"type":"END_USER"},"createdTime":"2025-03-01T10:00:00.000Z","channel":"EMAIL"}]}`))
	})
	mux.HandleFunc("/api/v1/tickets/42/sendReply", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&f.lastReply)
		_, _ = w.Write([]byte(`{"id":"r-9","createdTime":"2025-03-01T10:05:00.000Z"}`))
	})
	mux.HandleFunc("/api/v1/tickets/500", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	return mux
}

func newTestClient(t *testing.T, desk *fakeDesk) *Client {
	t.Helper()
	srv := httptest.NewServer(desk.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(config.HelpdeskConfig{
		BaseURL:     srv.URL,
		AccountsURL: srv.URL,
		OrgID:       "org-1",
	}, srv.Client(), nil, nil)
}

func TestGetTicketDecodesLabels(t *testing.T) {
	desk := &fakeDesk{}
	client := newTestClient(t, desk)

	ticket, err := client.GetTicket(context.Background(), "42")
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	if ticket.TicketNumber != "1001" || ticket.Category != "Billing" || ticket.Priority != "" {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	if ticket.CustomerEmail() != "r@example.com" {
		t.Fatalf("expected contact email, got %q", ticket.CustomerEmail())
	}

	if _, err := client.GetConversations(context.Background(), "42"); err != nil {
		t.Fatalf("GetConversations: %v", err)
	}
	if got := desk.refreshes.Load(); got != 1 {
		t.Fatalf("token should be cached, refreshed %d times", got)
	}
}

func TestUnauthorizedRefreshesOnce(t *testing.T) {
	desk := &fakeDesk{}
	desk.rejectFirst.Store(true)
	client := newTestClient(t, desk)

	if _, err := client.GetTicket(context.Background(), "42"); err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	if got := desk.refreshes.Load(); got != 2 {
		t.Fatalf("expected forced refresh, got %d refreshes", got)
	}
}

func TestSendReplyAndAPIError(t *testing.T) {
	desk := &fakeDesk{}
	client := newTestClient(t, desk)

	resp, err := client.SendReply(context.Background(), "42", ReplyRequest{
		ContentType: ContentTypeHTML, Content: "<p>hi</p>", To: "r@example.com", Channel: "EMAIL",
	})
	if err != nil {
		t.Fatalf("SendReply: %v", err)
	}
	if resp.ID != "r-9" || desk.lastReply.Content != "<p>hi</p>" {
		t.Fatalf("unexpected reply %+v / %+v", resp, desk.lastReply)
	}

	_, err = client.GetTicket(context.Background(), "500")
	var apiErr *integrations.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway || !apiErr.Temporary() {
		t.Fatalf("expected temporary APIError, got %v", err)
	}
}
