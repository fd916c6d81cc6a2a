package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-pipeline/internal/config"
	"github.com/spec-kit/helpdesk-pipeline/internal/domain"
	"github.com/spec-kit/helpdesk-pipeline/internal/events"
	"github.com/spec-kit/helpdesk-pipeline/internal/integrations/helpdesk"
	"github.com/spec-kit/helpdesk-pipeline/internal/persistence"
	"github.com/spec-kit/helpdesk-pipeline/internal/repository"
)

func newSQLiteStore(t *testing.T) *repository.Store {
	t.Helper()
	ctx := context.Background()
	db, err := persistence.NewSQLite(ctx, config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "pipeline.db")}, zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(db.Close)
	if err := db.Migrate(ctx, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repository.NewSQLiteStore(db.DB)
}

type fakeLister struct {
	list *helpdesk.TicketList
	err  error
}

func (f *fakeLister) ListTickets(context.Context, int) (*helpdesk.TicketList, error) {
	return f.list, f.err
}

func sampleHelpdeskTickets() *helpdesk.TicketList {
	created := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	return &helpdesk.TicketList{Data: []helpdesk.Ticket{
		{
			ID: "ext-1", TicketNumber: "501", Subject: "Cannot upload video", Status: "Open",
			Priority: "High", Channel: "EMAIL", Email: "bo@example.com", CreatedTime: created,
		},
		{
			ID: "ext-2", TicketNumber: "502", Subject: "Invoice copy", Status: "On Hold",
			Contact: &helpdesk.Contact{LastName: "Kim", Email: "kim@example.com"}, CreatedTime: created,
		},
		{
			ID: "ext-3", TicketNumber: "503", Subject: "No requester", Status: "Closed",
		},
	}}
}

func TestSyncStoresTicketsAndCollectsErrors(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	dispatcher := &recordingDispatcher{}
	svc := NewSyncService(SyncDependencies{
		Helpdesk:     &fakeLister{list: sampleHelpdeskTickets()},
		CustomerRepo: store.Customers,
		TicketRepo:   store.Tickets,
		Dispatcher:   dispatcher,
	})

	report, err := svc.Sync(ctx, 3, false)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Stats != (SyncStats{Total: 3, Synced: 2, Failed: 1}) {
		t.Fatalf("stats = %+v", report.Stats)
	}
	if len(report.Errors) != 1 || report.Errors[0].TicketNumber != "503" {
		t.Fatalf("errors = %+v", report.Errors)
	}

	stored, err := store.Tickets.GetByNumber(ctx, "502")
	if err != nil {
		t.Fatalf("get 502: %v", err)
	}
	if stored.Status != domain.TicketStatusPending || stored.ExternalID != "ext-2" {
		t.Fatalf("ticket = %+v", stored)
	}
	first, err := store.Tickets.GetByNumber(ctx, "501")
	if err != nil {
		t.Fatalf("get 501: %v", err)
	}
	if first.Priority != domain.TicketPriorityHigh {
		t.Fatalf("priority = %s", first.Priority)
	}

	types := dispatcher.types()
	if len(types) != 1 || types[0] != events.EventTicketsSynced {
		t.Fatalf("events = %v", types)
	}

	// A second run refreshes rows instead of duplicating them.
	again, err := svc.Sync(ctx, 3, false)
	if err != nil || again.Stats.Synced != 2 {
		t.Fatalf("second sync = %+v, %v", again.Stats, err)
	}
	listed, err := store.Tickets.List(ctx, repository.TicketFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 tickets, got %d", len(listed))
	}
}

func TestSyncDryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	svc := NewSyncService(SyncDependencies{
		Helpdesk:     &fakeLister{list: sampleHelpdeskTickets()},
		CustomerRepo: store.Customers,
		TicketRepo:   store.Tickets,
	})

	report, err := svc.Sync(ctx, 0, true)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !report.DryRun || report.Stats.Total != 3 || report.Stats.Synced != 0 || len(report.Tickets) != 3 {
		t.Fatalf("report = %+v", report)
	}
	if _, err := store.Tickets.GetByNumber(ctx, "501"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("dry run wrote a ticket: %v", err)
	}
}

func TestSyncListFailure(t *testing.T) {
	svc := NewSyncService(SyncDependencies{Helpdesk: &fakeLister{err: errors.New("unauthorized")}})
	if _, err := svc.Sync(context.Background(), 5, false); err == nil {
		t.Fatalf("expected error")
	}
}
