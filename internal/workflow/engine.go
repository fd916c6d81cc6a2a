// Package workflow holds the registry of automatable support scenarios.
//
// Detection is first-match-wins: scenarios are evaluated in ascending
// Priority order (ties keep registration order) and the first detector that
// matches names the scenario. A later, better-fitting scenario never
// overrides an earlier match.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/spec-kit/helpdesk-pipeline/internal/templates"
)

// ErrUnknownScenario is returned by Process for unregistered names.
var ErrUnknownScenario = errors.New("workflow: unknown scenario")

// Context is the ticket information handed to detectors and handlers.
type Context struct {
	TicketID      string
	TicketNumber  string
	Subject       string
	Content       string
	CustomerEmail string
	CustomerName  string
	IsThread      bool
}

// Result is the outcome of a scenario handler.
type Result struct {
	Handled             bool               `json:"handled"`
	AIResolved          bool               `json:"aiResolved"`
	RequiresHuman       bool               `json:"requiresHuman"`
	Response            *templates.Message `json:"response"`
	SystemActions       []string           `json:"systemActions"`
	VerificationResults []string           `json:"verificationResults"`
}

// NotHandled is the result of a handler that declines a ticket.
func NotHandled() Result {
	return Result{SystemActions: []string{}, VerificationResults: []string{}}
}

// DetectFunc reports whether a scenario applies.
type DetectFunc func(Context) bool

// HandleFunc verifies and executes a scenario.
type HandleFunc func(ctx context.Context, wctx Context) (Result, error)

// Scenario is a named, prioritised detector/handler pair.
type Scenario struct {
	Name     string
	Priority int
	Detect   DetectFunc
	Handle   HandleFunc
}

type entry struct {
	Scenario
	seq      int
	disabled bool
}

// Registry maps scenario names to detectors and handlers.
type Registry struct {
	mu      sync.RWMutex
	entries []*entry
	byName  map[string]*entry
	nextSeq int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*entry)}
}

// Register adds a scenario. Names must be unique.
func (r *Registry) Register(s Scenario) error {
	if s.Name == "" || s.Detect == nil || s.Handle == nil {
		return fmt.Errorf("workflow: scenario %q requires name, detector and handler", s.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[s.Name]; exists {
		return fmt.Errorf("workflow: scenario %q already registered", s.Name)
	}
	e := &entry{Scenario: s, seq: r.nextSeq}
	r.nextSeq++
	r.entries = append(r.entries, e)
	r.byName[s.Name] = e
	r.sortLocked()
	return nil
}

// MustRegister registers every scenario and panics on error.
func (r *Registry) MustRegister(scenarios ...Scenario) *Registry {
	for _, s := range scenarios {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *Registry) sortLocked() {
	sort.SliceStable(r.entries, func(i, j int) bool {
		if r.entries[i].Priority != r.entries[j].Priority {
			return r.entries[i].Priority < r.entries[j].Priority
		}
		return r.entries[i].seq < r.entries[j].seq
	})
}

// SetPriority changes a scenario's priority and enabled state.
func (r *Registry) SetPriority(name string, priority int, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownScenario, name)
	}
	e.Priority = priority
	e.disabled = !enabled
	r.sortLocked()
	return nil
}

// Names returns enabled scenario names in evaluation order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		if !e.disabled {
			names = append(names, e.Name)
		}
	}
	return names
}

// Detect returns the first enabled scenario whose detector matches.
func (r *Registry) Detect(wctx Context) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.disabled {
			continue
		}
		if e.Detect(wctx) {
			return e.Name, true
		}
	}
	return "", false
}

// Process invokes the named scenario's handler. Handler panics are
// converted to errors.
func (r *Registry) Process(ctx context.Context, name string, wctx Context) (result Result, err error) {
	r.mu.RLock()
	e, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return NotHandled(), fmt.Errorf("%w: %s", ErrUnknownScenario, name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = NotHandled()
			err = fmt.Errorf("workflow: scenario %s panicked: %v\n%s", name, rec, debug.Stack())
		}
	}()

	result, err = e.Handle(ctx, wctx)
	if result.SystemActions == nil {
		result.SystemActions = []string{}
	}
	if result.VerificationResults == nil {
		result.VerificationResults = []string{}
	}
	return result, err
}
