package service

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-pipeline/internal/domain"
	"github.com/spec-kit/helpdesk-pipeline/internal/events"
	"github.com/spec-kit/helpdesk-pipeline/internal/repository"
)

// Agent selection policies.
const (
	AssignmentPolicyLeastLoaded = "least_loaded"
	AssignmentPolicyRoundRobin  = "round_robin"
)

const roundRobinKey = "helpdesk:assignment:cursor"

// AssignmentService hands tickets over to human agents.
type AssignmentService struct {
	agents      repository.AgentRepository
	assignments repository.AgentAssignmentRepository
	redis       *redis.Client
	policy      string
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	cursor      atomic.Uint64
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	AgentRepo      repository.AgentRepository
	AssignmentRepo repository.AgentAssignmentRepository
	Redis          *redis.Client
	Policy         string
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := deps.Policy
	if policy != AssignmentPolicyRoundRobin {
		policy = AssignmentPolicyLeastLoaded
	}
	return &AssignmentService{
		agents:      deps.AgentRepo,
		assignments: deps.AssignmentRepo,
		redis:       deps.Redis,
		policy:      policy,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
	}
}

// GetAvailableAgent returns an agent with spare capacity, or nil when the
// whole roster is busy.
func (s *AssignmentService) GetAvailableAgent(ctx context.Context) (*domain.Agent, error) {
	candidates, err := s.agents.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	if s.policy == AssignmentPolicyLeastLoaded {
		// Repository order is least loaded first.
		return &candidates[0], nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	next := s.nextCursor(ctx)
	agent := candidates[next%uint64(len(candidates))]
	return &agent, nil
}

// GetAgent loads an agent by id.
func (s *AssignmentService) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	return s.agents.GetByID(ctx, agentID)
}

// nextCursor advances the shared round-robin position, falling back to a
// process-local counter when Redis is unavailable.
func (s *AssignmentService) nextCursor(ctx context.Context) uint64 {
	if s.redis != nil {
		value, err := s.redis.Incr(ctx, roundRobinKey).Result()
		if err == nil && value > 0 {
			return uint64(value - 1)
		}
		s.logger.Warn("round robin cursor unavailable, using local counter", zap.Error(err))
	}
	return s.cursor.Add(1) - 1
}

// AssignTicketToAgent reports false when the hand-off could not be made,
// including when the ticket already belongs to another agent.
func (s *AssignmentService) AssignTicketToAgent(ctx context.Context, ticketNumber, agentID string) bool {
	ok, err := s.agents.AssignTicket(ctx, ticketNumber, agentID)
	if err != nil {
		s.logger.Error("assign ticket failed",
			zap.String("ticket_number", ticketNumber),
			zap.String("agent_id", agentID),
			zap.Error(err))
		return false
	}
	if !ok {
		s.logger.Info("assignment refused",
			zap.String("ticket_number", ticketNumber),
			zap.String("agent_id", agentID))
	}
	return ok
}

// LogAgentAssignment records the audit entry. Failures are logged only.
func (s *AssignmentService) LogAgentAssignment(ctx context.Context, ticketID, agentID, reason string) {
	entry := &domain.AgentAssignment{TicketID: ticketID, AgentID: agentID, Reason: reason}
	if err := s.assignments.Create(ctx, entry); err != nil {
		s.logger.Warn("agent assignment audit failed",
			zap.String("ticket_id", ticketID),
			zap.String("agent_id", agentID),
			zap.Error(err))
		return
	}
	s.publishAssignmentEvent(ctx, ticketID, events.TicketAssignedPayload{AgentID: agentID, Reason: reason})
}

func (s *AssignmentService) publishAssignmentEvent(ctx context.Context, ticketID string, payload events.TicketAssignedPayload) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketAssigned,
		TicketID:  ticketID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
