package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk-pipeline/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-pipeline/internal/auth"
	"github.com/spec-kit/helpdesk-pipeline/internal/config"
	"github.com/spec-kit/helpdesk-pipeline/internal/domain"
	"github.com/spec-kit/helpdesk-pipeline/internal/integrations/helpdesk"
	"github.com/spec-kit/helpdesk-pipeline/internal/observability"
	"github.com/spec-kit/helpdesk-pipeline/internal/persistence"
	"github.com/spec-kit/helpdesk-pipeline/internal/repository"
	"github.com/spec-kit/helpdesk-pipeline/internal/service"
)

type stubPipeline struct {
	result domain.TicketProcessingResult
	events []domain.HelpdeskEvent
}

func (s *stubPipeline) Process(_ context.Context, event domain.HelpdeskEvent) domain.TicketProcessingResult {
	s.events = append(s.events, event)
	res := s.result
	res.TicketID = event.TicketID
	return res
}

type stubFinder struct {
	ticket *helpdesk.Ticket
}

func (s *stubFinder) FindByNumber(_ context.Context, number string) (*helpdesk.Ticket, error) {
	if s.ticket == nil || s.ticket.TicketNumber != number {
		return nil, helpdesk.ErrTicketNotFound
	}
	return s.ticket, nil
}

func (s *stubFinder) GetConversations(context.Context, string) (*helpdesk.ConversationList, error) {
	return nil, errors.New("conversations unavailable")
}

type stubSyncer struct {
	limit  int
	dryRun bool
}

func (s *stubSyncer) Sync(_ context.Context, limit int, dryRun bool) (service.SyncReport, error) {
	s.limit, s.dryRun = limit, dryRun
	return service.SyncReport{DryRun: dryRun, Stats: service.SyncStats{Total: 1}, Errors: []service.SyncItemError{}}, nil
}

type testServer struct {
	app      *fiber.App
	pipeline *stubPipeline
	syncer   *stubSyncer
	store    *repository.Store
	tokens   *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	db, err := persistence.NewSQLite(ctx, config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "api.db")}, zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(db.Close)
	if err := db.Migrate(ctx, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := repository.NewSQLiteStore(db.DB)

	hash, err := auth.HashSecret("hook-secret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	tokens := auth.NewTokenManager("secret", "helpdesk-pipeline", 5)
	pipeline := &stubPipeline{result: domain.TicketProcessingResult{Status: domain.ProcessingCompleted, Timeline: []domain.ProcessingStep{}}}
	syncer := &stubSyncer{}
	finder := &stubFinder{ticket: &helpdesk.Ticket{
		ID: "ext-9", TicketNumber: "900", Subject: "Broken link", Priority: "High",
		Contact: &helpdesk.Contact{FirstName: "Ana", LastName: "Lima", Email: "ana@example.com"},
	}}
	metrics := observability.NewMetrics()

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:            handlers.NewHealthHandler("helpdesk-pipeline", "test", metrics, handlers.Dependency{Name: "sqlite", Pinger: db}),
		Webhook:           handlers.NewWebhookHandler(pipeline, time.Second, zap.NewNop()),
		Tickets:           handlers.NewTicketsHandler(store.Tickets, store.Runs, finder, zap.NewNop()),
		Sync:              handlers.NewSyncHandler(syncer),
		AuthMiddleware:    auth.NewAuthMiddleware(tokens),
		WebhookSecretHash: hash,
	})
	return &testServer{app: app, pipeline: pipeline, syncer: syncer, store: store, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path string, body []byte, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, decoded
}

func (s *testServer) bearer(t *testing.T, scopes ...string) map[string]string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken("ops", scopes)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func webhookBody(eventType string) []byte {
	body, _ := json.Marshal(map[string]any{
		"ticketId":  "ext-1",
		"eventType": eventType,
		"payload":   map[string]any{"subject": "Help", "ticketNumber": "100"},
	})
	return body
}

func TestWebhookRequiresToken(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, "POST", "/webhooks/helpdesk", webhookBody("Ticket_Add"), nil)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("status = %d", status)
	}
	if body["error"].(map[string]any)["code"] != "UNAUTHORIZED" {
		t.Fatalf("body = %v", body)
	}
	if len(s.pipeline.events) != 0 {
		t.Fatalf("pipeline should not run")
	}
}

func TestWebhookStatusFollowsResult(t *testing.T) {
	s := newTestServer(t)
	headers := map[string]string{auth.WebhookTokenHeader: "hook-secret"}

	status, body := s.do(t, "POST", "/webhooks/helpdesk", webhookBody("Ticket_Add"), headers)
	if status != fiber.StatusOK || body["status"] != "completed" || body["ticketId"] != "ext-1" {
		t.Fatalf("status = %d body = %v", status, body)
	}
	if s.pipeline.events[0].Payload.TicketNumber != "100" {
		t.Fatalf("event = %+v", s.pipeline.events[0])
	}

	s.pipeline.result.Status = domain.ProcessingFailed
	s.pipeline.result.Error = &domain.ProcessingError{Step: domain.StepSendReply, Message: "helpdesk 500"}
	status, body = s.do(t, "POST", "/webhooks/helpdesk", webhookBody("Ticket_Thread_Add"), headers)
	if status != fiber.StatusInternalServerError || body["status"] != "failed" {
		t.Fatalf("status = %d body = %v", status, body)
	}
}

func TestWebhookValidation(t *testing.T) {
	s := newTestServer(t)
	headers := map[string]string{auth.WebhookTokenHeader: "hook-secret"}

	tests := []struct {
		name string
		body []byte
	}{
		{"not json", []byte("{")},
		{"unknown event", webhookBody("Ticket_Delete")},
		{"missing ticket id", []byte(`{"eventType":"Ticket_Add","payload":{}}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.do(t, "POST", "/webhooks/helpdesk", tt.body, headers)
			if status != fiber.StatusBadRequest {
				t.Fatalf("status = %d body = %v", status, body)
			}
		})
	}
}

func TestListTickets(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	customer, err := s.store.Customers.Upsert(ctx, "ana@example.com", "Ana", time.Now())
	if err != nil {
		t.Fatalf("customer: %v", err)
	}
	for _, in := range []domain.TicketUpsert{
		{TicketNumber: "1", CustomerID: customer.ID, Subject: "a", Priority: domain.TicketPriorityLow, Status: domain.TicketStatusOpen, Tags: []string{}},
		{TicketNumber: "2", CustomerID: customer.ID, Subject: "b", Priority: domain.TicketPriorityLow, Status: domain.TicketStatusEscalated, Tags: []string{}},
	} {
		if _, err := s.store.Tickets.Upsert(ctx, in); err != nil {
			t.Fatalf("ticket: %v", err)
		}
	}

	if status, _ := s.do(t, "GET", "/api/v1/tickets", nil, nil); status != fiber.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", status)
	}
	if status, _ := s.do(t, "GET", "/api/v1/tickets", nil, s.bearer(t, auth.ScopeSyncRun)); status != fiber.StatusForbidden {
		t.Fatalf("wrong scope status = %d", status)
	}

	status, body := s.do(t, "GET", "/api/v1/tickets?status=escalated", nil, s.bearer(t, auth.ScopeTicketsRead))
	if status != fiber.StatusOK {
		t.Fatalf("status = %d body = %v", status, body)
	}
	data := body["data"].([]any)
	if len(data) != 1 || data[0].(map[string]any)["ticket_number"] != "2" {
		t.Fatalf("data = %v", data)
	}

	status, _ = s.do(t, "GET", "/api/v1/tickets?status=bogus", nil, s.bearer(t, auth.ScopeTicketsRead))
	if status != fiber.StatusBadRequest {
		t.Fatalf("bogus status = %d", status)
	}
}

func TestGetTicketDetail(t *testing.T) {
	s := newTestServer(t)
	headers := s.bearer(t, auth.ScopeTicketsRead)

	status, body := s.do(t, "GET", "/api/v1/tickets/900", nil, headers)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d body = %v", status, body)
	}
	data := body["data"].(map[string]any)
	if data["priority"] != "HIGH" || data["contact"].(map[string]any)["name"] != "Ana Lima" {
		t.Fatalf("data = %v", data)
	}
	if data["pipeline"] != nil {
		t.Fatalf("unprocessed ticket should have no pipeline state")
	}
	if convs := data["conversations"].([]any); len(convs) != 0 {
		t.Fatalf("conversations = %v", convs)
	}
	if runs := data["runs"].([]any); len(runs) != 0 {
		t.Fatalf("runs = %v", runs)
	}

	run := domain.NewProcessingRun(domain.TicketProcessingResult{TicketID: "ext-9", TicketNumber: "900", Status: domain.ProcessingCompleted})
	if err := s.store.Runs.Create(context.Background(), &run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	_, body = s.do(t, "GET", "/api/v1/tickets/900", nil, headers)
	runs := body["data"].(map[string]any)["runs"].([]any)
	if len(runs) != 1 || runs[0].(map[string]any)["status"] != "completed" {
		t.Fatalf("runs = %v", runs)
	}

	status, body = s.do(t, "GET", "/api/v1/tickets/404", nil, headers)
	if status != fiber.StatusNotFound || body["error"].(map[string]any)["code"] != "NOT_FOUND" {
		t.Fatalf("status = %d body = %v", status, body)
	}
}

func TestSyncEndpoint(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "GET", "/api/v1/sync?limit=500&dryRun=true", nil, s.bearer(t, auth.ScopeSyncRun))
	if status != fiber.StatusOK {
		t.Fatalf("status = %d body = %v", status, body)
	}
	if s.syncer.limit != 100 || !s.syncer.dryRun {
		t.Fatalf("syncer called with limit=%d dryRun=%v", s.syncer.limit, s.syncer.dryRun)
	}

	status, _ = s.do(t, "GET", "/api/v1/sync?dryRun=maybe", nil, s.bearer(t, auth.ScopeSyncRun))
	if status != fiber.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
}

func TestHealthAndUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	if status, body := s.do(t, "GET", "/health/ready", nil, nil); status != fiber.StatusOK || body["status"] != "ready" {
		t.Fatalf("ready = %d %v", status, body)
	}
	status, body := s.do(t, "GET", "/nope", nil, nil)
	if status != fiber.StatusNotFound || !strings.EqualFold(body["error"].(map[string]any)["code"].(string), "NOT_FOUND") {
		t.Fatalf("unknown route = %d %v", status, body)
	}
	status, body = s.do(t, "GET", "/api/v1/metrics", nil, s.bearer(t, auth.ScopeTicketsRead))
	if status != fiber.StatusOK {
		t.Fatalf("metrics = %d %v", status, body)
	}
}
