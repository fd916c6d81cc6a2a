package domain

import "time"

// StepName identifies a pipeline stage on the timeline.
type StepName string

const (
	StepExtractInfo               StepName = "extract_info"
	StepGetConversations          StepName = "get_conversations"
	StepSendPasswordResetTemplate StepName = "send_password_reset_template"
	StepAssignToHumanAgent        StepName = "assign_to_human_agent"
	StepUpdateDatabaseAssignment  StepName = "update_database_assignment"
	StepSendWorkflowResponse      StepName = "send_workflow_response"
	StepUpdateDatabaseWorkflow    StepName = "update_database_workflow"
	StepClassifyTicket            StepName = "classify_ticket"
	StepCreateJiraReport          StepName = "create_jira_report"
	StepKBSearch                  StepName = "kb_search"
	StepGenerateResponse          StepName = "generate_response"
	StepSendReply                 StepName = "send_reply"
	StepSaveToDatabase            StepName = "save_to_database"
	StepCheckEscalation           StepName = "check_escalation"
	StepCreateJiraEscalation      StepName = "create_jira_escalation"
)

// WorkflowStep names the timeline entry for a workflow scenario handler.
func WorkflowStep(scenario string) StepName {
	return StepName("process_" + scenario + "_workflow")
}

// StepStatus is the state of a timeline entry.
type StepStatus string

const (
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// ProcessingStep is one entry of the audit timeline.
type ProcessingStep struct {
	Step      StepName   `json:"step"`
	Status    StepStatus `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Duration  *int64     `json:"duration,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// ProcessingStatus is the terminal state of a pipeline run.
type ProcessingStatus string

const (
	ProcessingCompleted ProcessingStatus = "completed"
	ProcessingFailed    ProcessingStatus = "failed"
)

// ReplyReceipt acknowledges a reply accepted by the helpdesk.
type ReplyReceipt struct {
	ID        string `json:"id"`
	Sent      bool   `json:"sent"`
	Timestamp string `json:"timestamp"`
}

// TrackerReceipt describes an issue opened in the tracker.
type TrackerReceipt struct {
	Key     string    `json:"key"`
	ID      string    `json:"id"`
	URL     string    `json:"url"`
	Summary string    `json:"summary"`
	Created time.Time `json:"created"`
}

// AIResponseSummary describes the reply the customer received.
type AIResponseSummary struct {
	Text              string   `json:"text"`
	Confidence        float64  `json:"confidence"`
	NeedsEscalation   bool     `json:"needsEscalation"`
	EscalationSignals []string `json:"escalationSignals"`
}

// KBSearchSummary records the knowledge lookup behind an AI reply.
type KBSearchSummary struct {
	Query   string `json:"query"`
	Method  string `json:"method"`
	Matches int    `json:"matches"`
}

// ProcessingError describes the step that aborted a run.
type ProcessingError struct {
	Step    StepName `json:"step"`
	Message string   `json:"message"`
	Stack   string   `json:"stack,omitempty"`
}

// TicketProcessingResult is the outcome of one pipeline invocation.
type TicketProcessingResult struct {
	TicketID       string               `json:"ticketId"`
	TicketNumber   string               `json:"ticketNumber"`
	Status         ProcessingStatus     `json:"status"`
	Branch         string               `json:"branch,omitempty"`
	Classification TicketClassification `json:"classification"`
	KBSearch       *KBSearchSummary     `json:"kbSearch,omitempty"`
	AIResponse     *AIResponseSummary   `json:"aiResponse,omitempty"`
	HelpdeskReply  *ReplyReceipt        `json:"helpdeskReply,omitempty"`
	TrackerTicket  *TrackerReceipt      `json:"trackerTicket,omitempty"`
	Timeline       []ProcessingStep     `json:"timeline"`
	StartTime      time.Time            `json:"startTime"`
	EndTime        time.Time            `json:"endTime"`
	TotalDuration  int64                `json:"totalDuration"`
	Error          *ProcessingError     `json:"error,omitempty"`
}

// ProcessingRun is the persisted record of one pipeline invocation.
type ProcessingRun struct {
	ID           string           `json:"id"`
	TicketNumber string           `json:"ticketNumber"`
	TicketID     string           `json:"ticketId"`
	Branch       string           `json:"branch"`
	Status       ProcessingStatus `json:"status"`
	DurationMS   int64            `json:"durationMs"`
	Timeline     []ProcessingStep `json:"timeline"`
	Error        *ProcessingError `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// NewProcessingRun captures the auditable part of a result.
func NewProcessingRun(result TicketProcessingResult) ProcessingRun {
	timeline := result.Timeline
	if timeline == nil {
		timeline = []ProcessingStep{}
	}
	return ProcessingRun{
		TicketNumber: result.TicketNumber,
		TicketID:     result.TicketID,
		Branch:       result.Branch,
		Status:       result.Status,
		DurationMS:   result.TotalDuration,
		Timeline:     timeline,
		Error:        result.Error,
	}
}
