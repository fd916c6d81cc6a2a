package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-pipeline/internal/ai"
	"github.com/spec-kit/helpdesk-pipeline/internal/domain"
	"github.com/spec-kit/helpdesk-pipeline/internal/events"
	"github.com/spec-kit/helpdesk-pipeline/internal/integrations/helpdesk"
	"github.com/spec-kit/helpdesk-pipeline/internal/integrations/knowledge"
	"github.com/spec-kit/helpdesk-pipeline/internal/integrations/tracker"
	"github.com/spec-kit/helpdesk-pipeline/internal/observability"
	"github.com/spec-kit/helpdesk-pipeline/internal/repository"
	"github.com/spec-kit/helpdesk-pipeline/internal/templates"
	"github.com/spec-kit/helpdesk-pipeline/internal/workflow"
)

type fakeHelpdesk struct {
	ticket        *helpdesk.Ticket
	ticketErr     error
	conversations []helpdesk.Conversation
	convErr       error
	sendErr       error
	sent          []helpdesk.ReplyRequest
}

func (f *fakeHelpdesk) GetTicket(context.Context, string) (*helpdesk.Ticket, error) {
	if f.ticketErr != nil {
		return nil, f.ticketErr
	}
	if f.ticket == nil {
		return nil, helpdesk.ErrTicketNotFound
	}
	return f.ticket, nil
}

func (f *fakeHelpdesk) GetConversations(context.Context, string) (*helpdesk.ConversationList, error) {
	if f.convErr != nil {
		return nil, f.convErr
	}
	return &helpdesk.ConversationList{Data: f.conversations}, nil
}

func (f *fakeHelpdesk) SendReply(_ context.Context, _ string, reply helpdesk.ReplyRequest) (*helpdesk.ReplyResponse, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, reply)
	return &helpdesk.ReplyResponse{ID: "reply-1", CreatedTime: "2026-10-18T10:00:00Z"}, nil
}

type fakeTracker struct {
	err    error
	issues []tracker.Escalation
}

func (f *fakeTracker) CreateEscalation(_ context.Context, esc tracker.Escalation) (*tracker.Issue, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.issues = append(f.issues, esc)
	return &tracker.Issue{ID: "10001", Key: "SUP-1", Self: "https://tracker.example.com/rest/api/2/issue/10001"}, nil
}

type fakeKnowledge struct {
	result knowledge.Result
	err    error
}

func (f *fakeKnowledge) Search(context.Context, string) (knowledge.Result, error) {
	return f.result, f.err
}

type fakeClassifier struct {
	result domain.TicketClassification
	calls  int
	inputs []ai.TicketInput
}

func (f *fakeClassifier) Classify(_ context.Context, in ai.TicketInput) domain.TicketClassification {
	f.calls++
	f.inputs = append(f.inputs, in)
	return f.result
}

type fakeResponder struct {
	text    string
	err     error
	panics  bool
	queries []string
}

func (f *fakeResponder) GenerateResponse(_ context.Context, query, _ string) (string, error) {
	if f.panics {
		panic("model exploded")
	}
	f.queries = append(f.queries, query)
	return f.text, f.err
}

type fakeScenarios struct {
	name   string
	result workflow.Result
	err    error
	calls  int
}

func (f *fakeScenarios) Detect(workflow.Context) (string, bool) {
	return f.name, f.name != ""
}

func (f *fakeScenarios) Process(context.Context, string, workflow.Context) (workflow.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakeAssigner struct {
	agent  *domain.Agent
	accept bool
	roster map[string]*domain.Agent
	logged []string
}

func (f *fakeAssigner) GetAvailableAgent(context.Context) (*domain.Agent, error) {
	return f.agent, nil
}

func (f *fakeAssigner) GetAgent(_ context.Context, agentID string) (*domain.Agent, error) {
	if agent, ok := f.roster[agentID]; ok {
		return agent, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAssigner) AssignTicketToAgent(context.Context, string, string) bool {
	return f.accept
}

func (f *fakeAssigner) LogAgentAssignment(_ context.Context, ticketID, agentID, reason string) {
	f.logged = append(f.logged, ticketID+"|"+agentID+"|"+reason)
}

type memoryCustomers struct {
	byEmail map[string]*domain.Customer
}

func (m *memoryCustomers) Upsert(_ context.Context, email, name string, lastContact time.Time) (*domain.Customer, error) {
	if m.byEmail == nil {
		m.byEmail = map[string]*domain.Customer{}
	}
	if c, ok := m.byEmail[email]; ok {
		c.LastContact = lastContact
		return c, nil
	}
	c := &domain.Customer{ID: "cust-" + email, Email: email, Name: name, LastContact: lastContact}
	m.byEmail[email] = c
	return c, nil
}

func (m *memoryCustomers) GetByID(_ context.Context, id string) (*domain.Customer, error) {
	for _, c := range m.byEmail {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, repository.ErrNotFound
}

type memoryTickets struct {
	err       error
	byNumber  map[string]*domain.Ticket
	upserts   []domain.TicketUpsert
	workflows []domain.WorkflowUpdate
}

func (m *memoryTickets) Upsert(_ context.Context, in domain.TicketUpsert) (*domain.Ticket, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.byNumber == nil {
		m.byNumber = map[string]*domain.Ticket{}
	}
	m.upserts = append(m.upserts, in)
	t, ok := m.byNumber[in.TicketNumber]
	if !ok {
		t = &domain.Ticket{ID: "ticket-" + in.TicketNumber, TicketNumber: in.TicketNumber, CustomerID: in.CustomerID, Subject: in.Subject}
		m.byNumber[in.TicketNumber] = t
	}
	if t.ExternalID == "" {
		t.ExternalID = in.ExternalID
	}
	t.Status = in.Status
	t.AIProcessed = t.AIProcessed || in.AIProcessed
	if in.AssigneeID != nil {
		t.AssigneeID = in.AssigneeID
	}
	if in.AIClassification != nil {
		t.AIClassification = in.AIClassification
	}
	if in.AIResponse != nil {
		t.AIResponse = in.AIResponse
	}
	return t, nil
}

func (m *memoryTickets) Sync(context.Context, domain.TicketSync) (*domain.Ticket, error) {
	return nil, errors.New("not used")
}

func (m *memoryTickets) UpdateWorkflow(_ context.Context, in domain.WorkflowUpdate) error {
	if _, ok := m.byNumber[in.TicketNumber]; !ok {
		return repository.ErrNotFound
	}
	m.workflows = append(m.workflows, in)
	return nil
}

func (m *memoryTickets) GetByNumber(_ context.Context, number string) (*domain.Ticket, error) {
	if t, ok := m.byNumber[number]; ok {
		return t, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memoryTickets) GetByExternalID(_ context.Context, externalID string) (*domain.Ticket, error) {
	for _, t := range m.byNumber {
		if t.ExternalID == externalID {
			return t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryTickets) List(context.Context, repository.TicketFilter) ([]domain.Ticket, error) {
	return nil, nil
}

type memoryRuns struct {
	runs []domain.ProcessingRun
}

func (m *memoryRuns) Create(_ context.Context, run *domain.ProcessingRun) error {
	run.ID = fmt.Sprintf("run-%d", len(m.runs)+1)
	m.runs = append(m.runs, *run)
	return nil
}

func (m *memoryRuns) ListByTicket(context.Context, string, int) ([]domain.ProcessingRun, error) {
	return m.runs, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Type)
	}
	return out
}

type pipelineFixture struct {
	helpdesk   *fakeHelpdesk
	tracker    *fakeTracker
	knowledge  *fakeKnowledge
	classifier *fakeClassifier
	responder  *fakeResponder
	scenarios  *fakeScenarios
	assigner   *fakeAssigner
	customers  *memoryCustomers
	tickets    *memoryTickets
	runs       *memoryRuns
	dispatcher *recordingDispatcher
	metrics    *observability.Metrics
}

func newFixture() *pipelineFixture {
	return &pipelineFixture{
		helpdesk:  &fakeHelpdesk{},
		tracker:   &fakeTracker{},
		knowledge: &fakeKnowledge{result: knowledge.Result{Answer: "Reports live under Admin > Reports.", Method: knowledge.MethodChat, Matches: 2}},
		classifier: &fakeClassifier{result: domain.TicketClassification{
			PrimaryCategory:     domain.CategorySimpleResponse,
			SecondaryCategories: []domain.TicketCategory{},
			Confidence:          0.9,
			Reasoning:           "how-to question",
			RequiredInfo:        []string{},
			EstimatedComplexity: domain.ComplexityLow,
			AutoResolvable:      true,
		}},
		responder:  &fakeResponder{text: "You can export grades from the **Reports** tab."},
		scenarios:  &fakeScenarios{},
		assigner:   &fakeAssigner{},
		customers:  &memoryCustomers{},
		tickets:    &memoryTickets{},
		runs:       &memoryRuns{},
		dispatcher: &recordingDispatcher{},
		metrics:    observability.NewMetrics(),
	}
}

func (f *pipelineFixture) service(withTracker bool) *ProcessingService {
	deps := ProcessingDependencies{
		Helpdesk:         f.helpdesk,
		Knowledge:        f.knowledge,
		Classifier:       f.classifier,
		Responder:        f.responder,
		Workflows:        f.scenarios,
		Assigner:         f.assigner,
		CustomerRepo:     f.customers,
		TicketRepo:       f.tickets,
		RunRepo:          f.runs,
		Dispatcher:       f.dispatcher,
		Metrics:          f.metrics,
		ReplyFromAddress: "support@example.com",
	}
	if withTracker {
		deps.Tracker = f.tracker
	}
	return NewProcessingService(deps)
}

func newTicketEvent(subject, body string) domain.HelpdeskEvent {
	return domain.HelpdeskEvent{
		TicketID:  "ext-42",
		EventType: domain.EventTicketAdd,
		Payload: domain.HelpdeskPayload{
			Subject:      subject,
			FirstThread:  &domain.HelpdeskThread{Content: body},
			Contact:      &domain.HelpdeskContact{FirstName: "Ana", LastName: "Lima", Email: "ana@example.com"},
			Email:        "ana@example.com",
			Priority:     "High",
			TicketNumber: "1001",
			Channel:      "EMAIL",
		},
	}
}

func newThreadEvent(body string) domain.HelpdeskEvent {
	return domain.HelpdeskEvent{
		TicketID:  "ext-42",
		EventType: domain.EventTicketThreadAdd,
		Payload: domain.HelpdeskPayload{
			Subject:      "Login trouble",
			Content:      body,
			Author:       &domain.HelpdeskAuthor{Email: "ana@example.com"},
			Contact:      &domain.HelpdeskContact{LastName: "Lima"},
			TicketNumber: "1001",
		},
	}
}

func stepNames(steps []domain.ProcessingStep) []domain.StepName {
	names := make([]domain.StepName, 0, len(steps))
	for _, s := range steps {
		names = append(names, s.Step)
	}
	return names
}

func assertSteps(t *testing.T, got []domain.ProcessingStep, want ...domain.StepName) {
	t.Helper()
	names := stepNames(got)
	if len(names) != len(want) {
		t.Fatalf("timeline = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("timeline = %v, want %v", names, want)
		}
	}
}

func stepStatus(steps []domain.ProcessingStep, name domain.StepName) domain.StepStatus {
	for _, s := range steps {
		if s.Step == name {
			return s.Status
		}
	}
	return ""
}

func TestProcessPasswordResetSendsTemplate(t *testing.T) {
	f := newFixture()
	result := f.service(true).Process(context.Background(), newTicketEvent("Forgot password", "Hi, I forgot my password and cannot log in."))

	if result.Status != domain.ProcessingCompleted || result.Branch != BranchPasswordReset {
		t.Fatalf("unexpected result: status=%s branch=%s err=%+v", result.Status, result.Branch, result.Error)
	}
	assertSteps(t, result.Timeline, domain.StepExtractInfo, domain.StepGetConversations,
		domain.StepSendPasswordResetTemplate, domain.StepSaveToDatabase)
	if f.classifier.calls != 0 {
		t.Fatalf("classifier should not run on the password reset branch")
	}
	if len(f.helpdesk.sent) != 1 {
		t.Fatalf("expected one reply, got %d", len(f.helpdesk.sent))
	}
	reply := f.helpdesk.sent[0]
	if reply.ContentType != helpdesk.ContentTypeHTML || reply.To != "ana@example.com" ||
		reply.FromEmailAddress != "support@example.com" || reply.Channel != "EMAIL" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if reply.Content != templates.PasswordReset("Lima").HTMLContent {
		t.Fatalf("reply is not the password reset template")
	}
	if result.Classification.PrimaryCategory != domain.CategorySimpleResponse || result.Classification.Confidence != 0.95 {
		t.Fatalf("unexpected classification: %+v", result.Classification)
	}
	if result.AIResponse == nil || result.AIResponse.NeedsEscalation || len(result.AIResponse.EscalationSignals) != 0 {
		t.Fatalf("unexpected ai response: %+v", result.AIResponse)
	}

	stored := f.tickets.byNumber["1001"]
	if stored == nil || stored.Status != domain.TicketStatusOpen || !stored.AIProcessed {
		t.Fatalf("ticket not stored as processed: %+v", stored)
	}
	if *stored.AIClassification != string(domain.CategorySimpleResponse) {
		t.Fatalf("classification = %s", *stored.AIClassification)
	}
	if got := f.dispatcher.types(); len(got) != 1 || got[0] != events.EventTicketProcessed {
		t.Fatalf("events = %v", got)
	}
}

func TestProcessPasswordFollowUpAssignsAgent(t *testing.T) {
	f := newFixture()
	f.assigner.agent = &domain.Agent{ID: "agent-7", Name: "Maria"}
	f.assigner.accept = true

	result := f.service(true).Process(context.Background(), newThreadEvent("I still need a password reset, the link did not work."))

	if result.Status != domain.ProcessingCompleted || result.Branch != BranchPasswordFollowUp {
		t.Fatalf("unexpected result: status=%s branch=%s err=%+v", result.Status, result.Branch, result.Error)
	}
	assertSteps(t, result.Timeline, domain.StepExtractInfo, domain.StepGetConversations,
		domain.StepAssignToHumanAgent, domain.StepUpdateDatabaseAssignment)
	if result.Classification.PrimaryCategory != domain.CategoryEscalationNeeded || result.Classification.AutoResolvable {
		t.Fatalf("unexpected classification: %+v", result.Classification)
	}
	if !result.AIResponse.NeedsEscalation || result.AIResponse.EscalationSignals[0] != "follow-up detected" {
		t.Fatalf("unexpected ai response: %+v", result.AIResponse)
	}
	if !strings.Contains(f.helpdesk.sent[0].Content, "Maria") {
		t.Fatalf("assignment notice should name the agent: %s", f.helpdesk.sent[0].Content)
	}

	stored := f.tickets.byNumber["1001"]
	if stored.Status != domain.TicketStatusInProgress || stored.AssigneeID == nil || *stored.AssigneeID != "agent-7" {
		t.Fatalf("ticket not assigned: %+v", stored)
	}
	if len(f.assigner.logged) != 1 || f.assigner.logged[0] != "ticket-1001|agent-7|Follow-up on password reset issue" {
		t.Fatalf("assignment audit = %v", f.assigner.logged)
	}
	types := f.dispatcher.types()
	if len(types) != 2 || types[0] != events.EventTicketEscalated || types[1] != events.EventTicketProcessed {
		t.Fatalf("events = %v", types)
	}
}

func TestProcessPasswordFollowUpWithoutAgentQueuesEscalation(t *testing.T) {
	f := newFixture()

	result := f.service(true).Process(context.Background(), newThreadEvent("I forgot my password again"))

	if result.Status != domain.ProcessingCompleted || result.Branch != BranchPasswordFollowUp {
		t.Fatalf("unexpected result: status=%s branch=%s", result.Status, result.Branch)
	}
	if f.helpdesk.sent[0].Content != templates.EscalationQueued("Lima", "1001").HTMLContent {
		t.Fatalf("expected the escalation queued notice")
	}
	if stored := f.tickets.byNumber["1001"]; stored.Status != domain.TicketStatusEscalated || stored.AssigneeID != nil {
		t.Fatalf("ticket = %+v", stored)
	}
	if len(f.assigner.logged) != 0 {
		t.Fatalf("no assignment should be audited")
	}
}

func TestProcessPasswordFollowUpKeepsExistingAssignee(t *testing.T) {
	f := newFixture()
	assignee := "agent-7"
	f.tickets.byNumber = map[string]*domain.Ticket{
		"1001": {ID: "ticket-1001", ExternalID: "ext-42", TicketNumber: "1001", Status: domain.TicketStatusInProgress, AssigneeID: &assignee},
	}
	f.assigner.roster = map[string]*domain.Agent{"agent-7": {ID: "agent-7", Name: "Maria"}}
	f.assigner.agent = &domain.Agent{ID: "agent-9", Name: "Joao"}

	result := f.service(true).Process(context.Background(), newThreadEvent("I still need a password reset, nothing changed."))

	if result.Status != domain.ProcessingCompleted || result.Branch != BranchPasswordFollowUp {
		t.Fatalf("unexpected result: status=%s branch=%s err=%+v", result.Status, result.Branch, result.Error)
	}
	if !strings.Contains(f.helpdesk.sent[0].Content, "Maria") {
		t.Fatalf("notice should name the current agent: %s", f.helpdesk.sent[0].Content)
	}
	stored := f.tickets.byNumber["1001"]
	if stored.Status != domain.TicketStatusInProgress || *stored.AssigneeID != "agent-7" {
		t.Fatalf("ticket = %+v", stored)
	}
	if len(f.assigner.logged) != 0 {
		t.Fatalf("keeping the assignee should not be audited again: %v", f.assigner.logged)
	}
}

func TestProcessRepeatedPasswordFollowUpStaysWithAgent(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	agents := []domain.Agent{
		{Name: "Maria", Email: "maria@example.com", Active: true, Capacity: 3},
		{Name: "Joao", Email: "joao@example.com", Active: true, Capacity: 3},
	}
	seedAgents(t, store.Agents, agents...)

	f := newFixture()
	svc := NewProcessingService(ProcessingDependencies{
		Helpdesk:   f.helpdesk,
		Knowledge:  f.knowledge,
		Classifier: f.classifier,
		Responder:  f.responder,
		Workflows:  f.scenarios,
		Assigner: NewAssignmentService(AssignmentDependencies{
			AgentRepo:      store.Agents,
			AssignmentRepo: store.Assignments,
			Dispatcher:     f.dispatcher,
		}),
		CustomerRepo:     store.Customers,
		TicketRepo:       store.Tickets,
		RunRepo:          store.Runs,
		Dispatcher:       f.dispatcher,
		Metrics:          f.metrics,
		ReplyFromAddress: "support@example.com",
	})

	for i := 0; i < 2; i++ {
		result := svc.Process(ctx, newThreadEvent("I still need a password reset, the link did not work."))
		if result.Status != domain.ProcessingCompleted || result.Branch != BranchPasswordFollowUp {
			t.Fatalf("run %d: status=%s branch=%s err=%+v", i+1, result.Status, result.Branch, result.Error)
		}
		if !strings.Contains(f.helpdesk.sent[i].Content, "Maria") {
			t.Fatalf("run %d: notice should name Maria: %s", i+1, f.helpdesk.sent[i].Content)
		}
	}

	ticket, err := store.Tickets.GetByNumber(ctx, "1001")
	if err != nil {
		t.Fatalf("GetByNumber: %v", err)
	}
	if ticket.Status != domain.TicketStatusInProgress || ticket.AssigneeID == nil || *ticket.AssigneeID != agents[0].ID {
		t.Fatalf("ticket = %+v", ticket)
	}
	other, err := store.Agents.GetByID(ctx, agents[1].ID)
	if err != nil || other.ActiveTickets != 0 {
		t.Fatalf("second agent should not be reserved: %+v, %v", other, err)
	}
	entries, err := store.Assignments.ListByTicket(ctx, ticket.ID)
	if err != nil || len(entries) != 1 {
		t.Fatalf("assignment audit = %+v, %v", entries, err)
	}
}

func TestProcessThreadRecoversTicketNumber(t *testing.T) {
	f := newFixture()
	f.helpdesk.ticket = &helpdesk.Ticket{TicketNumber: "2002", Subject: "Grades export", Contact: &helpdesk.Contact{LastName: "Lima", Email: "ana@example.com"}}
	event := newThreadEvent("How do I export grades?")
	event.Payload.TicketNumber = ""
	event.Payload.Subject = ""

	result := f.service(true).Process(context.Background(), event)

	if result.Status != domain.ProcessingCompleted || result.TicketNumber != "2002" {
		t.Fatalf("unexpected result: status=%s number=%s err=%+v", result.Status, result.TicketNumber, result.Error)
	}
	if f.classifier.inputs[0].Subject != "Grades export" {
		t.Fatalf("subject not recovered: %+v", f.classifier.inputs[0])
	}
}

func TestProcessThreadFallsBackToStoredTicket(t *testing.T) {
	f := newFixture()
	f.helpdesk.ticketErr = errors.New("helpdesk down")
	f.tickets.byNumber = map[string]*domain.Ticket{
		"1001": {ID: "ticket-1001", ExternalID: "ext-42", TicketNumber: "1001", Subject: "Login trouble", Status: domain.TicketStatusOpen},
	}
	event := newThreadEvent("How do I export grades?")
	event.Payload.TicketNumber = ""

	result := f.service(true).Process(context.Background(), event)

	if result.Status != domain.ProcessingCompleted || result.TicketNumber != "1001" {
		t.Fatalf("unexpected result: status=%s number=%s err=%+v", result.Status, result.TicketNumber, result.Error)
	}
	if len(f.helpdesk.sent) != 1 {
		t.Fatalf("expected one reply, got %d", len(f.helpdesk.sent))
	}
}

func TestProcessMissingTicketNumberFails(t *testing.T) {
	f := newFixture()
	f.helpdesk.ticketErr = errors.New("helpdesk down")
	event := newThreadEvent("hello")
	event.Payload.TicketNumber = ""

	result := f.service(true).Process(context.Background(), event)

	if result.Status != domain.ProcessingFailed || result.Error == nil || result.Error.Step != domain.StepExtractInfo {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Error.Message != ErrMissingTicketNumber.Error() {
		t.Fatalf("message = %q", result.Error.Message)
	}
	if len(f.helpdesk.sent) != 0 {
		t.Fatalf("no reply should be sent")
	}
}

func TestProcessAIResponseTimeline(t *testing.T) {
	f := newFixture()

	result := f.service(true).Process(context.Background(), newTicketEvent("Exporting grades", "How do I export grades for my class?"))

	if result.Status != domain.ProcessingCompleted || result.Branch != BranchAIResponse {
		t.Fatalf("unexpected result: status=%s branch=%s err=%+v", result.Status, result.Branch, result.Error)
	}
	assertSteps(t, result.Timeline,
		domain.StepExtractInfo, domain.StepGetConversations, domain.StepClassifyTicket, domain.StepKBSearch,
		domain.StepGenerateResponse, domain.StepSendReply, domain.StepSaveToDatabase, domain.StepCheckEscalation)
	for _, step := range result.Timeline {
		if step.Status != domain.StepCompleted || step.Duration == nil {
			t.Fatalf("step %s not closed: %+v", step.Step, step)
		}
	}
	if f.classifier.calls != 1 {
		t.Fatalf("classifier calls = %d", f.classifier.calls)
	}
	reply := f.helpdesk.sent[0]
	if reply.ContentType != helpdesk.ContentTypeHTML || !strings.Contains(reply.Content, "<strong>Reports</strong>") {
		t.Fatalf("reply not rendered: %+v", reply)
	}
	if result.KBSearch == nil || result.KBSearch.Method != knowledge.MethodChat || result.KBSearch.Matches != 2 {
		t.Fatalf("kb search = %+v", result.KBSearch)
	}
	if result.AIResponse.Confidence != 0.85 || result.AIResponse.NeedsEscalation {
		t.Fatalf("ai response = %+v", result.AIResponse)
	}
	if len(f.tracker.issues) != 0 {
		t.Fatalf("no tracker issue expected")
	}
	if f.responder.queries[0] != "How do I export grades for my class?" {
		t.Fatalf("query = %q", f.responder.queries[0])
	}
	if snap := f.metrics.Snapshot(); snap.PipelineRuns["ai_response|completed"] != 1 {
		t.Fatalf("metrics = %+v", snap.PipelineRuns)
	}
	if len(f.runs.runs) != 1 || len(f.runs.runs[0].Timeline) != 8 || f.runs.runs[0].TicketNumber != "1001" {
		t.Fatalf("runs = %+v", f.runs.runs)
	}
}

func TestProcessFallbackClassificationStillReplies(t *testing.T) {
	f := newFixture()
	f.classifier.result = domain.FallbackClassification("unparseable model output")

	result := f.service(true).Process(context.Background(), newTicketEvent("Question", "Where can I see my courses?"))

	if result.Status != domain.ProcessingCompleted || len(f.helpdesk.sent) != 1 {
		t.Fatalf("expected a reply: status=%s sent=%d", result.Status, len(f.helpdesk.sent))
	}
	// Fallback classifications are not auto-resolvable, so the tracker is asked.
	if stepStatus(result.Timeline, domain.StepCreateJiraEscalation) != domain.StepCompleted {
		t.Fatalf("timeline = %v", stepNames(result.Timeline))
	}
	if result.TrackerTicket == nil || result.TrackerTicket.Key != "SUP-1" {
		t.Fatalf("tracker receipt = %+v", result.TrackerTicket)
	}
	esc := f.tracker.issues[0]
	if esc.Title != "Question" || !strings.HasPrefix(esc.Description, "User Query: ") || esc.Priority != "High" {
		t.Fatalf("escalation = %+v", esc)
	}
}

func TestProcessDataGenerationFilesReport(t *testing.T) {
	f := newFixture()
	f.classifier.result.PrimaryCategory = domain.CategoryDataGeneration

	result := f.service(true).Process(context.Background(), newTicketEvent("Quarterly completions", "Please send a report of course completions."))

	if result.Status != domain.ProcessingCompleted || result.Branch != BranchDataReport {
		t.Fatalf("unexpected result: status=%s branch=%s", result.Status, result.Branch)
	}
	assertSteps(t, result.Timeline, domain.StepExtractInfo, domain.StepGetConversations,
		domain.StepClassifyTicket, domain.StepCreateJiraReport)
	if len(f.helpdesk.sent) != 0 {
		t.Fatalf("report requests are not answered")
	}
	esc := f.tracker.issues[0]
	if esc.Title != "[REPORT] - Quarterly completions" {
		t.Fatalf("title = %q", esc.Title)
	}
	if !strings.HasPrefix(esc.Description, "Customer: Lima (ana@example.com)") {
		t.Fatalf("description = %q", esc.Description)
	}
	if result.TrackerTicket == nil || result.TrackerTicket.URL == "" {
		t.Fatalf("tracker receipt = %+v", result.TrackerTicket)
	}
}

func TestProcessDataGenerationWithoutTracker(t *testing.T) {
	f := newFixture()
	f.classifier.result.PrimaryCategory = domain.CategoryDataGeneration

	result := f.service(false).Process(context.Background(), newTicketEvent("Export", "Need a data export of all users"))

	if result.Status != domain.ProcessingCompleted || result.TrackerTicket != nil {
		t.Fatalf("unexpected result: %+v", result)
	}
	if stepStatus(result.Timeline, domain.StepCreateJiraReport) != domain.StepCompleted {
		t.Fatalf("report step should be skipped as completed")
	}
}

func TestProcessTrackerFailureDoesNotFailRun(t *testing.T) {
	f := newFixture()
	f.classifier.result.PrimaryCategory = domain.CategoryDataGeneration
	f.tracker.err = errors.New("tracker 503")

	result := f.service(true).Process(context.Background(), newTicketEvent("Export", "Need a data export"))

	if result.Status != domain.ProcessingCompleted {
		t.Fatalf("status = %s", result.Status)
	}
	if stepStatus(result.Timeline, domain.StepCreateJiraReport) != domain.StepFailed {
		t.Fatalf("report step should be failed")
	}
}

func TestProcessSendFailureFailsRun(t *testing.T) {
	f := newFixture()
	f.helpdesk.sendErr = errors.New("helpdesk 500")

	result := f.service(true).Process(context.Background(), newTicketEvent("Exporting grades", "How do I export grades?"))

	if result.Status != domain.ProcessingFailed || result.Error == nil || result.Error.Step != domain.StepSendReply {
		t.Fatalf("unexpected result: %+v", result.Error)
	}
	if result.Classification.PrimaryCategory != domain.CategoryEscalationNeeded || result.Classification.Confidence != 0 {
		t.Fatalf("classification = %+v", result.Classification)
	}
	if stepStatus(result.Timeline, domain.StepSendReply) != domain.StepFailed {
		t.Fatalf("send step should be failed: %+v", result.Timeline)
	}
	if stepStatus(result.Timeline, domain.StepSaveToDatabase) != "" {
		t.Fatalf("no step should run after a fatal failure")
	}
	if len(f.tickets.upserts) != 0 {
		t.Fatalf("nothing should be persisted")
	}
	if len(f.runs.runs) != 1 || f.runs.runs[0].Error == nil || f.runs.runs[0].Error.Step != domain.StepSendReply {
		t.Fatalf("failed run should still be recorded: %+v", f.runs.runs)
	}
}

func TestProcessDatabaseFailureStillCompletes(t *testing.T) {
	f := newFixture()
	f.tickets.err = errors.New("db gone")

	result := f.service(true).Process(context.Background(), newTicketEvent("Exporting grades", "How do I export grades?"))

	if result.Status != domain.ProcessingCompleted {
		t.Fatalf("status = %s", result.Status)
	}
	if stepStatus(result.Timeline, domain.StepSaveToDatabase) != domain.StepFailed {
		t.Fatalf("save step should be failed")
	}
	if len(f.helpdesk.sent) != 1 {
		t.Fatalf("reply should have been sent")
	}
}

func TestProcessConversationFailureIsRecoverable(t *testing.T) {
	f := newFixture()
	f.helpdesk.convErr = errors.New("timeout")

	result := f.service(true).Process(context.Background(), newTicketEvent("Exporting grades", "How do I export grades?"))

	if result.Status != domain.ProcessingCompleted {
		t.Fatalf("status = %s", result.Status)
	}
	if stepStatus(result.Timeline, domain.StepGetConversations) != domain.StepFailed {
		t.Fatalf("conversation step should be failed")
	}
}

func TestProcessKnowledgeFailureIsRecoverable(t *testing.T) {
	f := newFixture()
	f.knowledge.err = errors.New("kb down")

	result := f.service(true).Process(context.Background(), newTicketEvent("Exporting grades", "How do I export grades?"))

	if result.Status != domain.ProcessingCompleted {
		t.Fatalf("status = %s", result.Status)
	}
	if stepStatus(result.Timeline, domain.StepKBSearch) != domain.StepFailed {
		t.Fatalf("kb step should be failed")
	}
}

func TestProcessWorkflowHandled(t *testing.T) {
	f := newFixture()
	msg := templates.AccountUnlocked("Lima")
	f.scenarios.name = "account_unlock"
	f.scenarios.result = workflow.Result{
		Handled:             true,
		AIResolved:          true,
		Response:            &msg,
		SystemActions:       []string{"unlocked account u-1"},
		VerificationResults: []string{"account was locked"},
	}

	result := f.service(true).Process(context.Background(), newTicketEvent("Locked out", "My account is locked"))

	if result.Status != domain.ProcessingCompleted || result.Branch != BranchWorkflow {
		t.Fatalf("unexpected result: status=%s branch=%s err=%+v", result.Status, result.Branch, result.Error)
	}
	assertSteps(t, result.Timeline, domain.StepExtractInfo, domain.StepGetConversations,
		domain.WorkflowStep("account_unlock"), domain.StepSendWorkflowResponse, domain.StepUpdateDatabaseWorkflow)
	if result.Classification.PrimaryCategory != domain.CategorySimpleResponse || !result.Classification.AutoResolvable {
		t.Fatalf("classification = %+v", result.Classification)
	}
	if result.Classification.Reasoning != "Workflow scenario: account_unlock" {
		t.Fatalf("reasoning = %q", result.Classification.Reasoning)
	}
	if f.classifier.calls != 0 {
		t.Fatalf("classifier should not run")
	}
	if f.tickets.byNumber["1001"].Status != domain.TicketStatusResolved {
		t.Fatalf("ticket should be resolved")
	}
	if len(f.tickets.workflows) != 1 || f.tickets.workflows[0].Scenario != "account_unlock" || !f.tickets.workflows[0].Resolved {
		t.Fatalf("workflow update = %+v", f.tickets.workflows)
	}
}

func TestProcessWorkflowErrorFallsThrough(t *testing.T) {
	f := newFixture()
	f.scenarios.name = "account_unlock"
	f.scenarios.err = errors.New("directory unavailable")

	result := f.service(true).Process(context.Background(), newTicketEvent("Locked out", "My account is locked"))

	if result.Status != domain.ProcessingCompleted || result.Branch != BranchAIResponse {
		t.Fatalf("unexpected result: status=%s branch=%s", result.Status, result.Branch)
	}
	if stepStatus(result.Timeline, domain.WorkflowStep("account_unlock")) != domain.StepFailed {
		t.Fatalf("workflow step should be failed")
	}
}

func TestProcessWorkflowDeclinedFallsThrough(t *testing.T) {
	f := newFixture()
	f.scenarios.name = "printer_issue"
	f.scenarios.result = workflow.NotHandled()

	result := f.service(true).Process(context.Background(), newTicketEvent("Printer", "The printer is jammed"))

	if result.Branch != BranchAIResponse {
		t.Fatalf("branch = %s", result.Branch)
	}
	if stepStatus(result.Timeline, domain.WorkflowStep("printer_issue")) != domain.StepCompleted {
		t.Fatalf("declined workflow step should be completed")
	}
}

func TestProcessRecoversPanics(t *testing.T) {
	f := newFixture()
	f.responder.panics = true

	result := f.service(true).Process(context.Background(), newTicketEvent("Exporting grades", "How do I export grades?"))

	if result.Status != domain.ProcessingFailed || result.Error == nil {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Error.Step != domain.StepGenerateResponse || result.Error.Stack == "" {
		t.Fatalf("error = %+v", result.Error)
	}
	if !strings.Contains(result.Error.Message, "model exploded") {
		t.Fatalf("message = %q", result.Error.Message)
	}
	if got := f.dispatcher.types(); len(got) != 1 || got[0] != events.EventTicketProcessed {
		t.Fatalf("events = %v", got)
	}
}

func TestTimelineHandlesCloseOnce(t *testing.T) {
	clock := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	tl := newTimeline(func() time.Time {
		clock = clock.Add(10 * time.Millisecond)
		return clock
	})

	first := tl.Start(domain.StepExtractInfo)
	second := tl.Start(domain.StepGetConversations)
	if tl.Current() != domain.StepGetConversations {
		t.Fatalf("current = %s", tl.Current())
	}
	second.Fail(errors.New("boom"))
	second.Complete()
	first.Complete()

	steps := tl.Steps()
	if steps[1].Status != domain.StepFailed || steps[1].Error != "boom" {
		t.Fatalf("second step = %+v", steps[1])
	}
	if steps[0].Status != domain.StepCompleted || *steps[0].Duration != 30 {
		t.Fatalf("first step = %+v", steps[0])
	}
	if tl.Current() != domain.StepGetConversations {
		t.Fatalf("current after close = %s", tl.Current())
	}

	tl.Start(domain.StepSendReply)
	tl.abandon(errors.New("aborted"))
	if last := tl.Steps()[2]; last.Status != domain.StepFailed || last.Error != "aborted" {
		t.Fatalf("abandoned step = %+v", last)
	}
}
