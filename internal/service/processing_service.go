package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-pipeline/internal/ai"
	"github.com/spec-kit/helpdesk-pipeline/internal/content"
	"github.com/spec-kit/helpdesk-pipeline/internal/conversation"
	"github.com/spec-kit/helpdesk-pipeline/internal/domain"
	"github.com/spec-kit/helpdesk-pipeline/internal/events"
	"github.com/spec-kit/helpdesk-pipeline/internal/integrations/helpdesk"
	"github.com/spec-kit/helpdesk-pipeline/internal/integrations/knowledge"
	"github.com/spec-kit/helpdesk-pipeline/internal/integrations/tracker"
	"github.com/spec-kit/helpdesk-pipeline/internal/intent"
	"github.com/spec-kit/helpdesk-pipeline/internal/observability"
	"github.com/spec-kit/helpdesk-pipeline/internal/repository"
	"github.com/spec-kit/helpdesk-pipeline/internal/templates"
	"github.com/spec-kit/helpdesk-pipeline/internal/workflow"
)

// ErrMissingTicketNumber aborts runs whose ticket number cannot be resolved.
var ErrMissingTicketNumber = errors.New("ticket number could not be resolved")

// Branch names reported on the result.
const (
	BranchPasswordReset    = "password_reset"
	BranchPasswordFollowUp = "password_follow_up"
	BranchWorkflow         = "workflow"
	BranchDataReport       = "data_report"
	BranchAIResponse       = "ai_response"
)

const (
	templateConfidence = 0.95
	aiReplyConfidence  = 0.85
	replyChannel       = "EMAIL"
	followUpReason     = "Follow-up on password reset issue"
	followUpSignal     = "follow-up detected"
	workflowSignal     = "workflow_escalation"
)

// HelpdeskClient is the slice of the helpdesk API the pipeline uses.
type HelpdeskClient interface {
	GetTicket(ctx context.Context, ticketID string) (*helpdesk.Ticket, error)
	GetConversations(ctx context.Context, ticketID string) (*helpdesk.ConversationList, error)
	SendReply(ctx context.Context, ticketID string, reply helpdesk.ReplyRequest) (*helpdesk.ReplyResponse, error)
}

// TrackerClient opens issues in the engineering tracker.
type TrackerClient interface {
	CreateEscalation(ctx context.Context, esc tracker.Escalation) (*tracker.Issue, error)
}

// KnowledgeSearcher looks up grounding material for AI replies.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string) (knowledge.Result, error)
}

// TicketClassifier categorises tickets. It never fails.
type TicketClassifier interface {
	Classify(ctx context.Context, in ai.TicketInput) domain.TicketClassification
}

// ReplyGenerator drafts customer replies.
type ReplyGenerator interface {
	GenerateResponse(ctx context.Context, query, kbContext string) (string, error)
}

// ScenarioEngine detects and runs automated workflow scenarios.
type ScenarioEngine interface {
	Detect(wctx workflow.Context) (string, bool)
	Process(ctx context.Context, name string, wctx workflow.Context) (workflow.Result, error)
}

// AgentAssigner hands tickets to human agents.
type AgentAssigner interface {
	GetAvailableAgent(ctx context.Context) (*domain.Agent, error)
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)
	AssignTicketToAgent(ctx context.Context, ticketNumber, agentID string) bool
	LogAgentAssignment(ctx context.Context, ticketID, agentID, reason string)
}

// ProcessingService runs inbound helpdesk events through the pipeline.
type ProcessingService struct {
	helpdesk         HelpdeskClient
	tracker          TrackerClient
	knowledge        KnowledgeSearcher
	classifier       TicketClassifier
	responder        ReplyGenerator
	workflows        ScenarioEngine
	assigner         AgentAssigner
	customers        repository.CustomerRepository
	tickets          repository.TicketRepository
	runs             repository.ProcessingRunRepository
	dispatcher       events.Dispatcher
	metrics          *observability.Metrics
	logger           *zap.Logger
	replyFrom        string
	consolidateLimit int
	now              func() time.Time
	routes           []route
}

// ProcessingDependencies bundles collaborators. Tracker, Knowledge, RunRepo,
// Dispatcher and Metrics are optional.
type ProcessingDependencies struct {
	Helpdesk             HelpdeskClient
	Tracker              TrackerClient
	Knowledge            KnowledgeSearcher
	Classifier           TicketClassifier
	Responder            ReplyGenerator
	Workflows            ScenarioEngine
	Assigner             AgentAssigner
	CustomerRepo         repository.CustomerRepository
	TicketRepo           repository.TicketRepository
	RunRepo              repository.ProcessingRunRepository
	Dispatcher           events.Dispatcher
	Metrics              *observability.Metrics
	Logger               *zap.Logger
	ReplyFromAddress     string
	ConsolidateMaxLength int
	Now                  func() time.Time
}

// NewProcessingService creates the orchestrator.
func NewProcessingService(deps ProcessingDependencies) *ProcessingService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	limit := deps.ConsolidateMaxLength
	if limit <= 0 {
		limit = 200
	}
	s := &ProcessingService{
		helpdesk:         deps.Helpdesk,
		tracker:          deps.Tracker,
		knowledge:        deps.Knowledge,
		classifier:       deps.Classifier,
		responder:        deps.Responder,
		workflows:        deps.Workflows,
		assigner:         deps.Assigner,
		customers:        deps.CustomerRepo,
		tickets:          deps.TicketRepo,
		runs:             deps.RunRepo,
		dispatcher:       deps.Dispatcher,
		metrics:          deps.Metrics,
		logger:           logger,
		replyFrom:        deps.ReplyFromAddress,
		consolidateLimit: limit,
		now:              now,
	}
	s.routes = s.defaultRoutes()
	return s
}

// route is one branch of the decision cascade. handle reports whether the
// branch terminated the run; false falls through to the next route.
type route struct {
	name    string
	matches func(ctx context.Context, r *run) bool
	handle  func(ctx context.Context, r *run) (bool, error)
}

func (s *ProcessingService) defaultRoutes() []route {
	return []route{
		{
			name:    BranchPasswordReset,
			matches: func(_ context.Context, r *run) bool { return r.passwordIntent && !r.info.IsThread },
			handle:  s.handlePasswordReset,
		},
		{
			name:    BranchPasswordFollowUp,
			matches: func(_ context.Context, r *run) bool { return r.passwordIntent && r.info.IsThread },
			handle:  s.handlePasswordFollowUp,
		},
		{
			name:    BranchWorkflow,
			matches: func(_ context.Context, r *run) bool { return s.workflows != nil },
			handle:  s.handleWorkflow,
		},
		{
			name: BranchDataReport,
			matches: func(ctx context.Context, r *run) bool {
				return s.classify(ctx, r).PrimaryCategory == domain.CategoryDataGeneration
			},
			handle: s.handleDataReport,
		},
		{
			name:    BranchAIResponse,
			matches: func(context.Context, *run) bool { return true },
			handle:  s.handleAIResponse,
		},
	}
}

// ticketInfo is what extract_info derives from the event.
type ticketInfo struct {
	TicketID      string
	TicketNumber  string
	Subject       string
	Query         string
	FirstThread   string
	CustomerEmail string
	CustomerName  string
	Channel       string
	Priority      string
	Category      string
	Status        string
	WebURL        string
	IsThread      bool
}

// run carries the state of one invocation.
type run struct {
	event          domain.HelpdeskEvent
	info           ticketInfo
	timeline       *Timeline
	result         domain.TicketProcessingResult
	aggregated     conversation.Aggregated
	query          string
	passwordIntent bool
	classification *domain.TicketClassification
}

// Process runs one event to a terminal state. It never returns an error:
// failures are reported through Result.Status and Result.Error.
func (s *ProcessingService) Process(ctx context.Context, event domain.HelpdeskEvent) (result domain.TicketProcessingResult) {
	r := &run{event: event, timeline: newTimeline(s.now)}
	r.result = domain.TicketProcessingResult{
		TicketID:  event.TicketID,
		StartTime: s.now(),
	}
	logger := s.logger.With(zap.String("ticket_id", event.TicketID), zap.String("event_type", string(event.EventType)))

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic: %v", rec)
			stack := debug.Stack()
			logger.Error("pipeline panicked", zap.Error(err), zap.ByteString("stack", stack))
			result = s.fail(r, err, string(stack))
		}
		s.finish(ctx, &result)
	}()

	if err := s.run(ctx, r); err != nil {
		logger.Error("pipeline failed", zap.String("ticket_number", r.info.TicketNumber),
			zap.String("step", string(r.timeline.Current())), zap.Error(err))
		return s.fail(r, err, "")
	}
	return s.complete(r)
}

func (s *ProcessingService) run(ctx context.Context, r *run) error {
	if err := s.extractInfo(ctx, r); err != nil {
		return err
	}
	s.loadConversation(ctx, r)

	for _, rt := range s.routes {
		if !rt.matches(ctx, r) {
			continue
		}
		done, err := rt.handle(ctx, r)
		if err != nil {
			return err
		}
		if done {
			r.result.Branch = rt.name
			s.logger.Info("pipeline branch completed",
				zap.String("ticket_id", r.info.TicketID),
				zap.String("ticket_number", r.info.TicketNumber),
				zap.String("branch", rt.name))
			return nil
		}
	}
	return errors.New("no route handled the ticket")
}

func (s *ProcessingService) extractInfo(ctx context.Context, r *run) error {
	step := r.timeline.Start(domain.StepExtractInfo)
	p := r.event.Payload
	info := ticketInfo{
		TicketID:     r.event.TicketID,
		TicketNumber: p.TicketNumber,
		Subject:      p.Subject,
		CustomerName: p.Contact.DisplayName(),
		Channel:      p.Channel,
		Priority:     p.Priority,
		Category:     p.Category,
		Status:       p.Status,
		WebURL:       p.WebURL,
		IsThread:     r.event.IsThread(),
	}

	if info.IsThread {
		info.Query = content.Clean(p.Content)
		if p.Author != nil {
			info.CustomerEmail = p.Author.Email
		}
	} else {
		if p.FirstThread != nil {
			info.FirstThread = p.FirstThread.Content
			info.Query = content.Clean(p.FirstThread.Content)
		}
		info.CustomerEmail = p.Email
		if info.CustomerEmail == "" && p.Contact != nil {
			info.CustomerEmail = p.Contact.Email
		}
	}

	if info.IsThread && info.TicketNumber == "" {
		details, err := s.helpdesk.GetTicket(ctx, info.TicketID)
		if err != nil {
			s.logger.Warn("ticket details lookup failed", zap.String("ticket_id", info.TicketID), zap.Error(err))
		} else {
			info.TicketNumber = details.TicketNumber
			if info.Subject == "" {
				info.Subject = details.Subject
			}
			if info.CustomerName == "" && details.Contact != nil {
				info.CustomerName = firstNonEmpty(details.Contact.LastName, details.Contact.FirstName)
			}
			if info.CustomerEmail == "" {
				info.CustomerEmail = details.CustomerEmail()
			}
			if info.WebURL == "" {
				info.WebURL = details.WebURL
			}
		}
	}

	if info.IsThread && info.TicketNumber == "" && s.tickets != nil {
		if stored, err := s.tickets.GetByExternalID(ctx, info.TicketID); err == nil {
			info.TicketNumber = stored.TicketNumber
			if info.Subject == "" {
				info.Subject = stored.Subject
			}
		} else if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("stored ticket lookup failed", zap.String("ticket_id", info.TicketID), zap.Error(err))
		}
	}

	r.info = info
	r.result.TicketNumber = info.TicketNumber
	if info.TicketNumber == "" {
		step.Fail(ErrMissingTicketNumber)
		return ErrMissingTicketNumber
	}
	step.Complete()
	return nil
}

// loadConversation is recoverable: a failed fetch leaves an empty conversation.
func (s *ProcessingService) loadConversation(ctx context.Context, r *run) {
	step := r.timeline.Start(domain.StepGetConversations)
	var threads []conversation.Thread
	list, err := s.helpdesk.GetConversations(ctx, r.info.TicketID)
	if err != nil {
		s.logger.Warn("conversation fetch failed, continuing without history",
			zap.String("ticket_id", r.info.TicketID),
			zap.String("ticket_number", r.info.TicketNumber),
			zap.String("step", string(domain.StepGetConversations)),
			zap.Error(err))
		step.Fail(err)
	} else {
		for _, conv := range list.Data {
			if conv.Type != "thread" {
				continue
			}
			threads = append(threads, conversation.Thread{
				ID:          conv.ID,
				Content:     conv.Content,
				AuthorType:  conversation.ParseAuthorType(conv.Author.Type),
				CreatedTime: conv.CreatedTime,
				Channel:     conv.Channel,
			})
		}
		step.Complete()
	}

	r.aggregated = conversation.Aggregate(threads)
	r.query = conversation.ConsolidateForAI(r.aggregated, conversation.ConsolidateOptions{
		MaxLength:        s.consolidateLimit,
		FocusOnTechnical: true,
	})
	if r.query == "" {
		r.query = conversation.Truncate(r.info.Query, s.consolidateLimit)
	}
	r.passwordIntent = intent.PasswordReset(r.info.Subject, r.info.Query)
}

func (s *ProcessingService) handlePasswordReset(ctx context.Context, r *run) (bool, error) {
	step := r.timeline.Start(domain.StepSendPasswordResetTemplate)
	message := templates.PasswordReset(r.info.CustomerName)
	receipt, err := s.sendReply(ctx, r, helpdesk.ContentTypeHTML, message.HTMLContent)
	if err != nil {
		return false, err
	}
	step.Complete()
	r.result.HelpdeskReply = receipt

	s.saveTicket(ctx, r, domain.StepSaveToDatabase, domain.TicketUpsert{
		Status:           domain.TicketStatusOpen,
		AIProcessed:      true,
		AIClassification: categoryPtr(domain.CategorySimpleResponse),
		AIResponse:       &message.PlainTextFallback,
		AIConfidence:     floatPtr(templateConfidence),
	})

	r.result.Classification = fixedClassification(domain.CategorySimpleResponse,
		"Password reset request detected", domain.ComplexityLow, true)
	r.result.AIResponse = &domain.AIResponseSummary{
		Text:              message.PlainTextFallback,
		Confidence:        templateConfidence,
		EscalationSignals: []string{},
	}
	return true, nil
}

// handlePasswordFollowUp escalates a repeated password request to a human.
// Without an available agent the customer is told the ticket is queued and
// the ticket is stored as ESCALATED.
func (s *ProcessingService) handlePasswordFollowUp(ctx context.Context, r *run) (bool, error) {
	step := r.timeline.Start(domain.StepAssignToHumanAgent)

	var agent *domain.Agent
	reassigned := false
	if s.assigner != nil {
		agent = s.currentAssignee(ctx, r.info.TicketNumber)
		if agent == nil {
			candidate, err := s.assigner.GetAvailableAgent(ctx)
			if err != nil {
				s.logger.Warn("agent lookup failed", zap.String("ticket_number", r.info.TicketNumber), zap.Error(err))
			} else if candidate != nil && s.assigner.AssignTicketToAgent(ctx, r.info.TicketNumber, candidate.ID) {
				agent = candidate
				reassigned = true
			} else if candidate != nil {
				// Refused hand-offs usually mean another run assigned it first.
				agent = s.currentAssignee(ctx, r.info.TicketNumber)
			}
		}
	}

	var message templates.Message
	status := domain.TicketStatusEscalated
	var assigneeID *string
	if agent != nil {
		message = templates.AgentAssignment(r.info.CustomerName, agent.Name, r.info.TicketNumber)
		status = domain.TicketStatusInProgress
		assigneeID = &agent.ID
	} else {
		s.logger.Warn("no agent available, escalation queued", zap.String("ticket_number", r.info.TicketNumber))
		message = templates.EscalationQueued(r.info.CustomerName, r.info.TicketNumber)
	}

	receipt, err := s.sendReply(ctx, r, helpdesk.ContentTypeHTML, message.HTMLContent)
	if err != nil {
		return false, err
	}
	step.Complete()
	r.result.HelpdeskReply = receipt

	stored := s.saveTicket(ctx, r, domain.StepUpdateDatabaseAssignment, domain.TicketUpsert{
		Status:           status,
		AssigneeID:       assigneeID,
		AIProcessed:      true,
		AIClassification: categoryPtr(domain.CategoryEscalationNeeded),
		AIConfidence:     floatPtr(templateConfidence),
	})
	if stored != nil && reassigned {
		s.assigner.LogAgentAssignment(ctx, stored.ID, agent.ID, followUpReason)
	}

	r.result.Classification = fixedClassification(domain.CategoryEscalationNeeded,
		followUpReason, domain.ComplexityHigh, false)
	r.result.AIResponse = &domain.AIResponseSummary{
		Text:              message.PlainTextFallback,
		Confidence:        templateConfidence,
		NeedsEscalation:   true,
		EscalationSignals: []string{followUpSignal},
	}
	s.publishEscalation(ctx, r, followUpReason, []string{followUpSignal}, "")
	return true, nil
}

// currentAssignee returns the agent the stored ticket already belongs to,
// or nil when it is unassigned or cannot be resolved.
func (s *ProcessingService) currentAssignee(ctx context.Context, ticketNumber string) *domain.Agent {
	if s.tickets == nil {
		return nil
	}
	ticket, err := s.tickets.GetByNumber(ctx, ticketNumber)
	if err != nil || ticket.AssigneeID == nil {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("stored ticket lookup failed", zap.String("ticket_number", ticketNumber), zap.Error(err))
		}
		return nil
	}
	agent, err := s.assigner.GetAgent(ctx, *ticket.AssigneeID)
	if err != nil {
		s.logger.Warn("assigned agent lookup failed",
			zap.String("ticket_number", ticketNumber),
			zap.String("agent_id", *ticket.AssigneeID),
			zap.Error(err))
		return nil
	}
	return agent
}

// handleWorkflow runs the first matching scenario. Undetected, unhandled
// and failing scenarios fall through to classification.
func (s *ProcessingService) handleWorkflow(ctx context.Context, r *run) (bool, error) {
	wctx := workflow.Context{
		TicketID:      r.info.TicketID,
		TicketNumber:  r.info.TicketNumber,
		Subject:       r.info.Subject,
		Content:       r.info.Query,
		CustomerEmail: r.info.CustomerEmail,
		CustomerName:  r.info.CustomerName,
		IsThread:      r.info.IsThread,
	}
	name, ok := s.workflows.Detect(wctx)
	if !ok {
		return false, nil
	}

	step := r.timeline.Start(domain.WorkflowStep(name))
	outcome, err := s.workflows.Process(ctx, name, wctx)
	if err != nil {
		s.logger.Warn("workflow failed, falling back to classification",
			zap.String("ticket_number", r.info.TicketNumber),
			zap.String("scenario", name),
			zap.Error(err))
		step.Fail(err)
		return false, nil
	}
	step.Complete()
	if !outcome.Handled {
		s.logger.Info("workflow declined", zap.String("ticket_number", r.info.TicketNumber), zap.String("scenario", name))
		return false, nil
	}

	category := domain.CategoryEscalationNeeded
	if outcome.AIResolved {
		category = domain.CategorySimpleResponse
	}

	var replyText *string
	if outcome.Response != nil {
		send := r.timeline.Start(domain.StepSendWorkflowResponse)
		receipt, err := s.sendReply(ctx, r, helpdesk.ContentTypeHTML, outcome.Response.HTMLContent)
		if err != nil {
			return false, err
		}
		send.Complete()
		r.result.HelpdeskReply = receipt
		replyText = &outcome.Response.PlainTextFallback
	}

	status := domain.TicketStatusOpen
	switch {
	case outcome.RequiresHuman:
		status = domain.TicketStatusEscalated
	case outcome.AIResolved:
		status = domain.TicketStatusResolved
	}
	s.saveWorkflow(ctx, r, name, outcome, domain.TicketUpsert{
		Status:           status,
		AIProcessed:      true,
		AIClassification: categoryPtr(category),
		AIResponse:       replyText,
		AIConfidence:     floatPtr(templateConfidence),
	})

	complexity := domain.ComplexityLow
	if outcome.RequiresHuman {
		complexity = domain.ComplexityHigh
	}
	r.result.Classification = fixedClassification(category, "Workflow scenario: "+name, complexity, outcome.AIResolved)
	signals := []string{}
	if outcome.RequiresHuman {
		signals = []string{workflowSignal}
		s.publishEscalation(ctx, r, "workflow scenario "+name+" requires a human", signals, "")
	}
	if replyText != nil {
		r.result.AIResponse = &domain.AIResponseSummary{
			Text:              *replyText,
			Confidence:        templateConfidence,
			NeedsEscalation:   outcome.RequiresHuman,
			EscalationSignals: signals,
		}
	}
	return true, nil
}

// classify runs the classifier once per run.
func (s *ProcessingService) classify(ctx context.Context, r *run) domain.TicketClassification {
	if r.classification != nil {
		return *r.classification
	}
	step := r.timeline.Start(domain.StepClassifyTicket)
	conv := r.info.FirstThread
	if conv == "" {
		conv = r.info.Query
	}
	classification := s.classifier.Classify(ctx, ai.TicketInput{
		Subject:      r.info.Subject,
		Conversation: conv,
		Priority:     r.info.Priority,
		Category:     r.info.Category,
		Customer:     r.info.CustomerName,
		TicketNumber: r.info.TicketNumber,
		Status:       r.info.Status,
	})
	step.Complete()
	s.logger.Info("ticket classified",
		zap.String("ticket_number", r.info.TicketNumber),
		zap.String("category", string(classification.PrimaryCategory)),
		zap.Float64("confidence", classification.Confidence))
	r.classification = &classification
	r.result.Classification = classification
	return classification
}

// handleDataReport files a report request in the tracker. No reply is sent.
func (s *ProcessingService) handleDataReport(ctx context.Context, r *run) (bool, error) {
	title := "[REPORT] - " + r.info.Subject
	step := r.timeline.Start(domain.StepCreateJiraReport)
	receipt, err := s.createTrackerIssue(ctx, r, tracker.Escalation{
		Title:       title,
		Description: fmt.Sprintf("Customer: %s (%s)\n\nRequest:\n%s", firstNonEmpty(r.info.CustomerName, "Unknown"), r.info.CustomerEmail, r.info.Query),
	})
	if err != nil {
		step.Fail(err)
	} else {
		step.Complete()
	}
	r.result.TrackerTicket = receipt
	return true, nil
}

func (s *ProcessingService) handleAIResponse(ctx context.Context, r *run) (bool, error) {
	classification := s.classify(ctx, r)

	search := r.timeline.Start(domain.StepKBSearch)
	kb := knowledge.Result{Method: knowledge.MethodDisabled}
	if s.knowledge != nil {
		found, err := s.knowledge.Search(ctx, r.query)
		if err != nil {
			s.logger.Warn("knowledge search failed, continuing without context",
				zap.String("ticket_number", r.info.TicketNumber), zap.Error(err))
			search.Fail(err)
		} else {
			kb = found
		}
	}
	search.Complete()
	r.result.KBSearch = &domain.KBSearchSummary{Query: r.query, Method: kb.Method, Matches: kb.Matches}

	generate := r.timeline.Start(domain.StepGenerateResponse)
	text, err := s.responder.GenerateResponse(ctx, r.query, kb.Grounding())
	if err != nil {
		return false, fmt.Errorf("generate response: %w", err)
	}
	generate.Complete()

	send := r.timeline.Start(domain.StepSendReply)
	contentType, body := helpdesk.ContentTypeHTML, text
	if rendered, err := ai.RenderHTML(text); err == nil && rendered != "" {
		body = rendered
	} else {
		contentType = helpdesk.ContentTypePlainText
	}
	receipt, err := s.sendReply(ctx, r, contentType, body)
	if err != nil {
		return false, err
	}
	send.Complete()
	r.result.HelpdeskReply = receipt

	s.saveTicket(ctx, r, domain.StepSaveToDatabase, domain.TicketUpsert{
		Status:           domain.TicketStatusOpen,
		AIProcessed:      true,
		AIClassification: categoryPtr(classification.PrimaryCategory),
		AIResponse:       &text,
		AIConfidence:     floatPtr(classification.Confidence),
	})

	check := r.timeline.Start(domain.StepCheckEscalation)
	escalation := conversation.DetectEscalationSignals(text)
	if escalation.HasSignals || !classification.AutoResolvable {
		create := r.timeline.Start(domain.StepCreateJiraEscalation)
		issue, err := s.createTrackerIssue(ctx, r, tracker.Escalation{
			Title:       r.info.Subject,
			Description: fmt.Sprintf("User Query: %s\n\nAgent Response: %s", r.query, text),
		})
		if err != nil {
			create.Fail(err)
		} else {
			create.Complete()
		}
		r.result.TrackerTicket = issue
		key := ""
		if issue != nil {
			key = issue.Key
		}
		s.publishEscalation(ctx, r, "AI reply needs review", escalation.Signals, key)
	}
	check.Complete()

	r.result.AIResponse = &domain.AIResponseSummary{
		Text:              text,
		Confidence:        aiReplyConfidence,
		NeedsEscalation:   escalation.HasSignals,
		EscalationSignals: escalation.Signals,
	}
	return true, nil
}

func (s *ProcessingService) sendReply(ctx context.Context, r *run, contentType, body string) (*domain.ReplyReceipt, error) {
	resp, err := s.helpdesk.SendReply(ctx, r.info.TicketID, helpdesk.ReplyRequest{
		ContentType:      contentType,
		Content:          body,
		FromEmailAddress: s.replyFrom,
		To:               r.info.CustomerEmail,
		IsForward:        false,
		Channel:          replyChannel,
	})
	if err != nil {
		return nil, fmt.Errorf("send reply: %w", err)
	}
	return &domain.ReplyReceipt{ID: resp.ID, Sent: true, Timestamp: resp.CreatedTime}, nil
}

// createTrackerIssue is at-most-once. An unconfigured tracker is skipped
// with a warning and reports neither an issue nor an error.
func (s *ProcessingService) createTrackerIssue(ctx context.Context, r *run, esc tracker.Escalation) (*domain.TrackerReceipt, error) {
	if s.tracker == nil {
		s.logger.Warn("tracker not configured, skipping issue creation",
			zap.String("ticket_number", r.info.TicketNumber))
		return nil, nil
	}
	esc.ExternalTicketID = r.info.TicketID
	esc.ExternalTicketURL = r.info.WebURL
	esc.Priority = "Medium"
	if strings.EqualFold(r.info.Priority, "high") {
		esc.Priority = "High"
	}
	esc.Customer = fmt.Sprintf("%s (%s)", r.info.CustomerName, r.info.CustomerEmail)

	issue, err := s.tracker.CreateEscalation(ctx, esc)
	if err != nil {
		if errors.Is(err, tracker.ErrNotConfigured) {
			s.logger.Warn("tracker not configured, skipping issue creation",
				zap.String("ticket_number", r.info.TicketNumber))
			return nil, nil
		}
		s.logger.Error("tracker issue creation failed",
			zap.String("ticket_number", r.info.TicketNumber), zap.Error(err))
		return nil, err
	}
	return &domain.TrackerReceipt{
		Key:     issue.Key,
		ID:      issue.ID,
		URL:     issue.Self,
		Summary: esc.Title,
		Created: s.now(),
	}, nil
}

// saveTicket upserts the customer and ticket under its own step. Failures
// are logged and marked on the timeline only.
func (s *ProcessingService) saveTicket(ctx context.Context, r *run, name domain.StepName, up domain.TicketUpsert) *domain.Ticket {
	step := r.timeline.Start(name)
	ticket, err := s.upsertTicket(ctx, r, up)
	if err != nil {
		s.logger.Error("ticket persistence failed",
			zap.String("ticket_id", r.info.TicketID),
			zap.String("ticket_number", r.info.TicketNumber),
			zap.String("step", string(name)),
			zap.Error(err))
		step.Fail(err)
		return nil
	}
	step.Complete()
	return ticket
}

func (s *ProcessingService) saveWorkflow(ctx context.Context, r *run, scenario string, outcome workflow.Result, up domain.TicketUpsert) {
	step := r.timeline.Start(domain.StepUpdateDatabaseWorkflow)
	_, err := s.upsertTicket(ctx, r, up)
	if err == nil {
		err = s.tickets.UpdateWorkflow(ctx, domain.WorkflowUpdate{
			TicketNumber:        r.info.TicketNumber,
			Scenario:            scenario,
			Resolved:            outcome.AIResolved,
			SystemActions:       outcome.SystemActions,
			VerificationResults: outcome.VerificationResults,
		})
	}
	if err != nil {
		s.logger.Error("workflow persistence failed",
			zap.String("ticket_number", r.info.TicketNumber),
			zap.String("scenario", scenario),
			zap.Error(err))
		step.Fail(err)
		return
	}
	step.Complete()
}

func (s *ProcessingService) upsertTicket(ctx context.Context, r *run, up domain.TicketUpsert) (*domain.Ticket, error) {
	if s.customers == nil || s.tickets == nil {
		return nil, errors.New("ticket store not configured")
	}
	email := strings.TrimSpace(r.info.CustomerEmail)
	if email == "" {
		return nil, errors.New("customer email missing")
	}
	name := firstNonEmpty(r.info.CustomerName, domain.DisplayNameFromEmail(email))
	customer, err := s.customers.Upsert(ctx, email, name, s.now())
	if err != nil {
		return nil, fmt.Errorf("upsert customer: %w", err)
	}

	up.TicketNumber = r.info.TicketNumber
	up.ExternalID = r.info.TicketID
	up.CustomerID = customer.ID
	up.Subject = r.info.Subject
	up.Description = r.info.Query
	up.Priority = domain.MapHelpdeskPriority(r.info.Priority)
	up.Channel = r.info.Channel
	if r.info.Category != "" {
		category := r.info.Category
		up.Category = &category
	}
	if up.Tags == nil {
		up.Tags = []string{}
	}
	ticket, err := s.tickets.Upsert(ctx, up)
	if err != nil {
		return nil, fmt.Errorf("upsert ticket: %w", err)
	}
	return ticket, nil
}

func (s *ProcessingService) complete(r *run) domain.TicketProcessingResult {
	r.result.Status = domain.ProcessingCompleted
	r.result.Timeline = r.timeline.Steps()
	r.result.EndTime = s.now()
	r.result.TotalDuration = r.result.EndTime.Sub(r.result.StartTime).Milliseconds()
	return r.result
}

func (s *ProcessingService) fail(r *run, err error, stack string) domain.TicketProcessingResult {
	failed := r.timeline.Current()
	r.timeline.abandon(err)
	r.result.Status = domain.ProcessingFailed
	r.result.Branch = ""
	r.result.Classification = domain.TicketClassification{
		PrimaryCategory:     domain.CategoryEscalationNeeded,
		SecondaryCategories: []domain.TicketCategory{},
		Confidence:          0,
		Reasoning:           "Processing failed",
		RequiredInfo:        []string{},
		EstimatedComplexity: domain.ComplexityHigh,
		AutoResolvable:      false,
	}
	r.result.Error = &domain.ProcessingError{Step: failed, Message: err.Error(), Stack: stack}
	r.result.Timeline = r.timeline.Steps()
	r.result.EndTime = s.now()
	r.result.TotalDuration = r.result.EndTime.Sub(r.result.StartTime).Milliseconds()
	return r.result
}

func (s *ProcessingService) finish(ctx context.Context, result *domain.TicketProcessingResult) {
	s.metrics.RecordPipelineRun(result.Branch, string(result.Status), time.Duration(result.TotalDuration)*time.Millisecond)
	if s.runs != nil {
		run := domain.NewProcessingRun(*result)
		if err := s.runs.Create(context.WithoutCancel(ctx), &run); err != nil {
			s.logger.Warn("processing run not recorded",
				zap.String("ticket_number", result.TicketNumber), zap.Error(err))
		}
	}
	if s.dispatcher == nil {
		return
	}
	payload := events.TicketProcessedPayload{
		Status:     result.Status,
		Branch:     result.Branch,
		Category:   result.Classification.PrimaryCategory,
		Confidence: result.Classification.Confidence,
		DurationMS: result.TotalDuration,
	}
	if result.Error != nil {
		payload.FailedStep = result.Error.Step
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:           uuid.NewString(),
		Type:         events.EventTicketProcessed,
		TicketID:     result.TicketID,
		TicketNumber: result.TicketNumber,
		Timestamp:    s.now(),
		Payload:      payload,
	})
}

func (s *ProcessingService) publishEscalation(ctx context.Context, r *run, reason string, signals []string, trackerKey string) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:           uuid.NewString(),
		Type:         events.EventTicketEscalated,
		TicketID:     r.info.TicketID,
		TicketNumber: r.info.TicketNumber,
		Timestamp:    s.now(),
		Payload:      events.TicketEscalatedPayload{Reason: reason, Signals: signals, TrackerKey: trackerKey},
	})
}

func fixedClassification(category domain.TicketCategory, reasoning string, complexity domain.Complexity, autoResolvable bool) domain.TicketClassification {
	return domain.TicketClassification{
		PrimaryCategory:     category,
		SecondaryCategories: []domain.TicketCategory{},
		Confidence:          templateConfidence,
		Reasoning:           reasoning,
		RequiredInfo:        []string{},
		EstimatedComplexity: complexity,
		AutoResolvable:      autoResolvable,
	}
}

func categoryPtr(c domain.TicketCategory) *string {
	s := string(c)
	return &s
}

func floatPtr(f float64) *float64 {
	return &f
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
