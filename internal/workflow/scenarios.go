package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/spec-kit/helpdesk-pipeline/internal/intent"
	"github.com/spec-kit/helpdesk-pipeline/internal/templates"
)

// Scenario names.
const (
	ScenarioAccountUnlock      = "account_unlock"
	ScenarioAccessRequest      = "access_request"
	ScenarioCourseCompletion   = "course_completion"
	ScenarioEmailNotifications = "email_notifications"
	ScenarioPrinterIssue       = "printer_issue"
)

// ErrUserNotFound is returned by a Directory when the requester has no account.
var ErrUserNotFound = errors.New("directory: user not found")

// DirectoryUser is the account record the scenarios verify against.
type DirectoryUser struct {
	ID                    string `json:"id"`
	Email                 string `json:"email"`
	Name                  string `json:"name"`
	Locked                bool   `json:"locked"`
	NotificationsDisabled bool   `json:"notificationsDisabled"`
}

// CourseProgress is one enrolment as reported by the directory.
type CourseProgress struct {
	CourseID        string `json:"courseId"`
	Title           string `json:"title"`
	Percent         int    `json:"percent"`
	MarkedComplete  bool   `json:"markedComplete"`
	AssessmentsDone bool   `json:"assessmentsDone"`
}

// Directory is the account system the workflow handlers act on.
type Directory interface {
	LookupUser(ctx context.Context, email string) (*DirectoryUser, error)
	UnlockAccount(ctx context.Context, userID string) error
	RequestAccess(ctx context.Context, userID, summary string) (string, error)
	CourseProgress(ctx context.Context, userID string) ([]CourseProgress, error)
	MarkCourseComplete(ctx context.Context, userID, courseID string) error
	EnableNotifications(ctx context.Context, userID string) error
}

// DefaultScenarios returns the built-in scenarios bound to dir. dir may be
// nil, in which case scenarios that need it decline every ticket.
func DefaultScenarios(dir Directory) []Scenario {
	h := handlers{dir: dir}
	return []Scenario{
		{Name: ScenarioAccountUnlock, Priority: 10, Detect: detector(intent.AccountUnlock), Handle: h.accountUnlock},
		{Name: ScenarioAccessRequest, Priority: 20, Detect: detector(intent.AccessRequest), Handle: h.accessRequest},
		{Name: ScenarioCourseCompletion, Priority: 30, Detect: detector(intent.CourseCompletion), Handle: h.courseCompletion},
		{Name: ScenarioEmailNotifications, Priority: 40, Detect: detector(intent.EmailNotification), Handle: h.emailNotifications},
		{Name: ScenarioPrinterIssue, Priority: 50, Detect: detector(intent.PrinterIssue), Handle: h.printerIssue},
	}
}

// NewDefaultRegistry builds a registry holding DefaultScenarios.
func NewDefaultRegistry(dir Directory) *Registry {
	return NewRegistry().MustRegister(DefaultScenarios(dir)...)
}

func detector(d intent.Detector) DetectFunc {
	return func(c Context) bool { return d(c.Subject, c.Content) }
}

type handlers struct {
	dir Directory
}

func (h handlers) lookup(ctx context.Context, wctx Context, res *Result) (*DirectoryUser, bool, error) {
	if wctx.CustomerEmail == "" {
		res.VerificationResults = append(res.VerificationResults, "no customer email on ticket")
		return nil, false, nil
	}
	user, err := h.dir.LookupUser(ctx, wctx.CustomerEmail)
	if errors.Is(err, ErrUserNotFound) {
		res.VerificationResults = append(res.VerificationResults, "user not found: "+wctx.CustomerEmail)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup user: %w", err)
	}
	res.VerificationResults = append(res.VerificationResults, "user found: "+user.ID)
	return user, true, nil
}

func (h handlers) needsReview(wctx Context, res Result) Result {
	res.Handled = true
	res.RequiresHuman = true
	msg := templates.AccountNeedsReview(wctx.CustomerName)
	res.Response = &msg
	return res
}

func (h handlers) accountUnlock(ctx context.Context, wctx Context) (Result, error) {
	if h.dir == nil {
		return NotHandled(), nil
	}
	res := NotHandled()
	user, ok, err := h.lookup(ctx, wctx, &res)
	if err != nil {
		return res, err
	}
	if !ok {
		return h.needsReview(wctx, res), nil
	}

	res.Handled = true
	if !user.Locked {
		res.VerificationResults = append(res.VerificationResults, "account not locked")
		res.AIResolved = true
		msg := templates.AccountNotLocked(wctx.CustomerName)
		res.Response = &msg
		return res, nil
	}
	if err := h.dir.UnlockAccount(ctx, user.ID); err != nil {
		return res, fmt.Errorf("unlock account: %w", err)
	}
	res.SystemActions = append(res.SystemActions, "unlocked account "+user.ID)
	res.AIResolved = true
	msg := templates.AccountUnlocked(wctx.CustomerName)
	res.Response = &msg
	return res, nil
}

func (h handlers) accessRequest(ctx context.Context, wctx Context) (Result, error) {
	if h.dir == nil {
		return NotHandled(), nil
	}
	res := NotHandled()
	user, ok, err := h.lookup(ctx, wctx, &res)
	if err != nil {
		return res, err
	}
	if !ok {
		return h.needsReview(wctx, res), nil
	}

	ref, err := h.dir.RequestAccess(ctx, user.ID, wctx.Subject)
	if err != nil {
		return res, fmt.Errorf("request access: %w", err)
	}
	res.Handled = true
	res.RequiresHuman = true
	res.SystemActions = append(res.SystemActions, "access request logged "+ref)
	msg := templates.AccessRequested(wctx.CustomerName, ref)
	res.Response = &msg
	return res, nil
}

func (h handlers) courseCompletion(ctx context.Context, wctx Context) (Result, error) {
	if h.dir == nil {
		return NotHandled(), nil
	}
	res := NotHandled()
	user, ok, err := h.lookup(ctx, wctx, &res)
	if err != nil {
		return res, err
	}
	if !ok {
		return h.needsReview(wctx, res), nil
	}

	courses, err := h.dir.CourseProgress(ctx, user.ID)
	if err != nil {
		return res, fmt.Errorf("course progress: %w", err)
	}

	var repaired, pending []string
	for _, c := range courses {
		switch {
		case c.MarkedComplete:
			continue
		case c.Percent >= 100 && c.AssessmentsDone:
			if err := h.dir.MarkCourseComplete(ctx, user.ID, c.CourseID); err != nil {
				return res, fmt.Errorf("mark course %s complete: %w", c.CourseID, err)
			}
			res.SystemActions = append(res.SystemActions, "marked course complete "+c.CourseID)
			repaired = append(repaired, c.Title)
		default:
			pending = append(pending, fmt.Sprintf("%s (%d%%)", c.Title, c.Percent))
		}
	}
	res.VerificationResults = append(res.VerificationResults,
		fmt.Sprintf("%d courses checked, %d repaired, %d in progress", len(courses), len(repaired), len(pending)))

	switch {
	case len(repaired) > 0:
		res.Handled = true
		res.AIResolved = true
		msg := templates.CourseCompleted(wctx.CustomerName, repaired)
		res.Response = &msg
	case len(pending) > 0:
		res.Handled = true
		res.AIResolved = true
		msg := templates.CourseInProgress(wctx.CustomerName, pending)
		res.Response = &msg
	default:
		// Nothing to repair and nothing in progress: let the AI path answer.
		return NotHandled(), nil
	}
	return res, nil
}

func (h handlers) emailNotifications(ctx context.Context, wctx Context) (Result, error) {
	res := NotHandled()
	res.Handled = true
	res.AIResolved = true

	reenabled := false
	if h.dir != nil && wctx.CustomerEmail != "" {
		user, err := h.dir.LookupUser(ctx, wctx.CustomerEmail)
		switch {
		case errors.Is(err, ErrUserNotFound):
			res.VerificationResults = append(res.VerificationResults, "user not found: "+wctx.CustomerEmail)
		case err != nil:
			return NotHandled(), fmt.Errorf("lookup user: %w", err)
		case user.NotificationsDisabled:
			if err := h.dir.EnableNotifications(ctx, user.ID); err != nil {
				return NotHandled(), fmt.Errorf("enable notifications: %w", err)
			}
			reenabled = true
			res.SystemActions = append(res.SystemActions, "enabled notifications "+user.ID)
		default:
			res.VerificationResults = append(res.VerificationResults, "notifications already enabled")
		}
	}

	msg := templates.EmailNotifications(wctx.CustomerName, reenabled)
	res.Response = &msg
	return res, nil
}

func (h handlers) printerIssue(_ context.Context, wctx Context) (Result, error) {
	res := NotHandled()
	res.Handled = true
	msg := templates.PrinterTroubleshooting(wctx.CustomerName)
	res.Response = &msg
	res.SystemActions = append(res.SystemActions, "sent printer troubleshooting checklist")
	return res, nil
}
