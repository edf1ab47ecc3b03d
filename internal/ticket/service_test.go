package ticket_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alecgard/taskara/internal/apperr"
	"github.com/alecgard/taskara/internal/auth"
	"github.com/alecgard/taskara/internal/jsontime"
	"github.com/alecgard/taskara/internal/mail"
	"github.com/alecgard/taskara/internal/project"
	"github.com/alecgard/taskara/internal/store/memory"
	"github.com/alecgard/taskara/internal/ticket"
	"github.com/alecgard/taskara/internal/user"
)

type board struct {
	svc      *ticket.Service
	projects *project.Service
	store    *memory.Store
	owner    *user.User
	dev      *user.User
	outsider *user.User
	project  *project.Project
	due      time.Time
}

func newBoard(t *testing.T) *board {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	users := user.NewService(store, auth.NewIssuer("a", "r", time.Hour, time.Hour))
	projects := project.NewService(store, mail.LogSender{}, project.Options{})

	b := &board{svc: ticket.NewService(store), projects: projects, store: store, due: time.Now().Add(72 * time.Hour)}
	var err error
	for _, acct := range []struct {
		dst   **user.User
		email string
	}{{&b.owner, "owner@example.com"}, {&b.dev, "dev@example.com"}, {&b.outsider, "out@example.com"}} {
		*acct.dst, err = users.Signup(ctx, user.SignupInput{Name: acct.email, Email: acct.email, Password: "pw"})
		if err != nil {
			t.Fatal(err)
		}
	}
	b.project, err = projects.Create(ctx, b.owner.ID, project.CreateInput{Title: "Board"})
	if err != nil {
		t.Fatal(err)
	}
	inv, err := projects.IssueInvitation(ctx, b.project.ID, "dev@example.com", "developer")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := projects.AcceptInvitation(ctx, b.project.ID, inv.Token); err != nil {
		t.Fatal(err)
	}
	return b
}

func TestCreate_Defaults(t *testing.T) {
	b := newBoard(t)
	tk, err := b.svc.Create(context.Background(), b.project.ID, ticket.CreateInput{Assignee: b.dev.ID, DueDate: jsontime.Of(b.due)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tk.Title != ticket.DefaultTitle || tk.Description != ticket.DefaultDescription {
		t.Errorf("defaults = %q / %q", tk.Title, tk.Description)
	}
	if tk.Priority != ticket.PriorityLow || tk.Status != ticket.StatusTodo {
		t.Errorf("priority/status = %s/%s", tk.Priority, tk.Status)
	}
	if tk.ProjectID != b.project.ID || tk.ID == "" {
		t.Errorf("ticket = %+v", tk)
	}
}

func TestCreate_Validation(t *testing.T) {
	b := newBoard(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		projectID string
		in        ticket.CreateInput
		kind      apperr.Kind
	}{
		{"no due date", b.project.ID, ticket.CreateInput{Assignee: b.dev.ID}, apperr.Validation},
		{"no assignee", b.project.ID, ticket.CreateInput{DueDate: jsontime.Of(b.due)}, apperr.Validation},
		{"bad priority", b.project.ID, ticket.CreateInput{Assignee: b.dev.ID, DueDate: jsontime.Of(b.due), Priority: "urgent"}, apperr.Validation},
		{"assignee not a member", b.project.ID, ticket.CreateInput{Assignee: b.outsider.ID, DueDate: jsontime.Of(b.due)}, apperr.Validation},
		{"assignee does not exist", b.project.ID, ticket.CreateInput{Assignee: "ghost", DueDate: jsontime.Of(b.due)}, apperr.NotFound},
		{"project does not exist", "nope", ticket.CreateInput{Assignee: b.dev.ID, DueDate: jsontime.Of(b.due)}, apperr.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.svc.Create(ctx, tt.projectID, tt.in)
			if !apperr.Is(err, tt.kind) {
				t.Errorf("got %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestChangeStatus_AssigneeOnly(t *testing.T) {
	b := newBoard(t)
	ctx := context.Background()
	tk, err := b.svc.Create(ctx, b.project.ID, ticket.CreateInput{Assignee: b.dev.ID, DueDate: jsontime.Of(b.due)})
	if err != nil {
		t.Fatal(err)
	}

	_, err = b.svc.ChangeStatus(ctx, tk.ID, b.owner.ID, "done")
	if !apperr.Is(err, apperr.Forbidden) {
		t.Fatalf("non-assignee admin: got %v, want forbidden", err)
	}

	got, err := b.svc.ChangeStatus(ctx, tk.ID, b.dev.ID, "in_progress")
	if err != nil {
		t.Fatalf("assignee: %v", err)
	}
	if got.Status != ticket.StatusInProgress {
		t.Errorf("status = %s", got.Status)
	}

	if _, err := b.svc.ChangeStatus(ctx, tk.ID, b.dev.ID, "archived"); !apperr.Is(err, apperr.Validation) {
		t.Errorf("invalid status: %v", err)
	}
	if _, err := b.svc.ChangeStatus(ctx, "missing", b.dev.ID, "done"); !errors.Is(err, ticket.ErrNotFound) {
		t.Errorf("missing ticket: %v", err)
	}
}

func TestUpdate(t *testing.T) {
	b := newBoard(t)
	ctx := context.Background()
	tk, _ := b.svc.Create(ctx, b.project.ID, ticket.CreateInput{Title: "Login bug", Assignee: b.dev.ID, DueDate: jsontime.Of(b.due)})

	got, err := b.svc.Update(ctx, tk.ID, ticket.UpdateInput{Priority: "high", Assignee: b.owner.ID})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Priority != ticket.PriorityHigh || got.Assignee != b.owner.ID || got.Title != "Login bug" {
		t.Errorf("updated = %+v", got)
	}
	if _, err := b.svc.Update(ctx, tk.ID, ticket.UpdateInput{Assignee: b.outsider.ID}); !apperr.Is(err, apperr.Validation) {
		t.Errorf("reassign to outsider: %v", err)
	}
	if _, err := b.svc.Update(ctx, tk.ID, ticket.UpdateInput{Priority: "meh"}); !apperr.Is(err, apperr.Validation) {
		t.Errorf("bad priority: %v", err)
	}
}

func TestDetailAndDelete(t *testing.T) {
	b := newBoard(t)
	ctx := context.Background()
	tk, _ := b.svc.Create(ctx, b.project.ID, ticket.CreateInput{Assignee: b.dev.ID, DueDate: jsontime.Of(b.due)})

	d, err := b.svc.Detail(ctx, tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if d.Assignee == nil || d.Assignee.ID != b.dev.ID || d.Project == nil || d.Project.Title != "Board" {
		t.Errorf("detail = %+v", d)
	}

	pid, err := b.svc.ProjectOfTicket(ctx, tk.ID)
	if err != nil || pid != b.project.ID {
		t.Errorf("ProjectOfTicket = %q, %v", pid, err)
	}

	if err := b.svc.Delete(ctx, tk.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := b.svc.Get(ctx, tk.ID); !errors.Is(err, ticket.ErrNotFound) {
		t.Errorf("get after delete: %v", err)
	}
	if err := b.svc.Delete(ctx, tk.ID); !errors.Is(err, ticket.ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestListsAndCounts(t *testing.T) {
	b := newBoard(t)
	ctx := context.Background()
	other, err := b.projects.Create(ctx, b.dev.ID, project.CreateInput{Title: "Side"})
	if err != nil {
		t.Fatal(err)
	}

	mk := func(projectID, assignee string) *ticket.Ticket {
		tk, err := b.svc.Create(ctx, projectID, ticket.CreateInput{Assignee: assignee, DueDate: jsontime.Of(b.due)})
		if err != nil {
			t.Fatal(err)
		}
		return tk
	}
	t1 := mk(b.project.ID, b.dev.ID)
	mk(b.project.ID, b.dev.ID)
	mk(b.project.ID, b.owner.ID)
	t4 := mk(other.ID, b.dev.ID)

	if _, err := b.svc.ChangeStatus(ctx, t1.ID, b.dev.ID, "done"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.svc.ChangeStatus(ctx, t4.ID, b.dev.ID, "in_progress"); err != nil {
		t.Fatal(err)
	}

	byProject, _ := b.svc.ListByProject(ctx, b.project.ID)
	mine, _ := b.svc.ListMine(ctx, b.project.ID, b.dev.ID)
	assigned, _ := b.svc.ListAssigned(ctx, b.dev.ID)
	if len(byProject) != 3 || len(mine) != 2 || len(assigned) != 3 {
		t.Errorf("byProject=%d mine=%d assigned=%d", len(byProject), len(mine), len(assigned))
	}

	counts, err := b.svc.Counts(ctx, b.dev.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := ticket.Counts{Total: 3, Todo: 1, InProgress: 1, Done: 1}
	if counts != want {
		t.Errorf("counts = %+v, want %+v", counts, want)
	}
}
