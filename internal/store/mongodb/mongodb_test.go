package mongodb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/event"

	"github.com/alecgard/taskara/internal/membership"
	"github.com/alecgard/taskara/internal/project"
	"github.com/alecgard/taskara/internal/ticket"
	"github.com/alecgard/taskara/internal/user"
)

func TestOID(t *testing.T) {
	valid := primitive.NewObjectID().Hex()
	tests := []struct {
		in string
		ok bool
	}{
		{valid, true},
		{"", false},
		{"not-hex", false},
		{"507f1f77bcf86cd79943901", false},
	}
	for _, tt := range tests {
		_, ok := oid(tt.in)
		if ok != tt.ok {
			t.Errorf("oid(%q) ok = %v, want %v", tt.in, ok, tt.ok)
		}
	}
}

func TestOIDs_SkipsInvalid(t *testing.T) {
	a := primitive.NewObjectID()
	got := oids([]string{a.Hex(), "bogus", ""})
	if len(got) != 1 || got[0] != a {
		t.Errorf("oids = %v, want [%v]", got, a)
	}
}

func TestHexOrEmpty(t *testing.T) {
	if got := hexOrEmpty(primitive.NilObjectID); got != "" {
		t.Errorf("hexOrEmpty(nil) = %q", got)
	}
	o := primitive.NewObjectID()
	if got := hexOrEmpty(o); got != o.Hex() {
		t.Errorf("hexOrEmpty = %q, want %q", got, o.Hex())
	}
}

func TestUserDocRoundTrip(t *testing.T) {
	pid := primitive.NewObjectID().Hex()
	u := &user.User{
		ID:               primitive.NewObjectID().Hex(),
		Name:             "Ada",
		Email:            "ada@example.com",
		PasswordHash:     "hash",
		Avatar:           user.DefaultAvatar,
		Projects:         []membership.Ref{{ProjectID: pid, Role: membership.RoleAdmin, Status: membership.StatusCreated}},
		RefreshTokenHash: "rt",
	}
	got := toUserDoc(u).toUser()
	if got.ID != u.ID || got.Email != u.Email || got.PasswordHash != "hash" || got.RefreshTokenHash != "rt" {
		t.Errorf("user fields lost: %+v", got)
	}
	if len(got.Projects) != 1 || got.Projects[0] != u.Projects[0] {
		t.Errorf("projects = %+v, want %+v", got.Projects, u.Projects)
	}
}

func TestProjectDocKeepsInvitationState(t *testing.T) {
	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := &project.Project{
		ID:            primitive.NewObjectID().Hex(),
		Title:         "Apollo",
		CreatedBy:     primitive.NewObjectID().Hex(),
		OverallStatus: project.StatusActive,
		Members: []project.Member{{
			UserID:                primitive.NewObjectID().Hex(),
			Role:                  membership.RoleDeveloper,
			Status:                membership.StatusUnseen,
			InvitationTokenHash:   "abc",
			InvitationTokenExpiry: &exp,
		}},
	}
	doc := toProjectDoc(p)
	if doc.Members[0].InvitationToken != "abc" {
		t.Errorf("invitation token not stored: %+v", doc.Members[0])
	}
	got := doc.toProject()
	if got.CreatedBy != p.CreatedBy || got.OverallStatus != project.StatusActive {
		t.Errorf("project fields lost: %+v", got)
	}
	m := got.Members[0]
	if m.UserID != p.Members[0].UserID || m.InvitationTokenExpiry == nil || !m.InvitationTokenExpiry.Equal(exp) {
		t.Errorf("member = %+v", m)
	}
}

func TestTicketDocEmptyRefs(t *testing.T) {
	got := toTicketDoc(&ticket.Ticket{Title: "t"}).toTicket()
	if got.Assignee != "" || got.ProjectID != "" {
		t.Errorf("zero refs should map to empty strings, got %+v", got)
	}
}

func TestTicketFilter(t *testing.T) {
	pid := primitive.NewObjectID()
	f := ticketFilter(ticket.Filter{ProjectID: pid.Hex()})
	if f["projectID"] != pid {
		t.Errorf("projectID filter = %v", f["projectID"])
	}
	if _, ok := f["assignee"]; ok {
		t.Error("assignee should be absent")
	}
	if len(ticketFilter(ticket.Filter{})) != 0 {
		t.Error("empty filter should match everything")
	}
}

// openTestStore connects to TASKARA_TEST_MONGO_URI and uses a throwaway
// database dropped at cleanup.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("TASKARA_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TASKARA_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	db := fmt.Sprintf("taskara_test_%d", time.Now().UnixNano())
	s, err := Open(ctx, Config{URI: uri, Database: db})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		_ = s.client.Database(db).Drop(ctx)
		_ = s.Close(ctx)
	})
	return s
}

func TestPoolStats(t *testing.T) {
	g := &poolGauge{max: 20}
	s := &Store{pool: g}
	for _, typ := range []string{
		event.ConnectionCreated, event.ConnectionCreated, event.ConnectionCreated,
		event.GetSucceeded, event.GetSucceeded, event.ConnectionReturned,
		event.ConnectionClosed, event.PoolReady,
	} {
		g.observe(&event.PoolEvent{Type: typ})
	}

	limit, idle, acquired := s.PoolStats()
	if limit != 20 || idle != 1 || acquired != 1 {
		t.Errorf("PoolStats() = (%d, %d, %d), want (20, 1, 1)", limit, idle, acquired)
	}
}

func TestIntegration_UserLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u := &user.User{Name: "Ada", Email: "ada@example.com", CreatedAt: time.Now().UTC()}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.CreateUser(ctx, &user.User{Email: "ada@example.com"}); !errors.Is(err, user.ErrEmailTaken) {
		t.Fatalf("duplicate email: got %v", err)
	}
	if _, err := s.GetUserByID(ctx, "bogus"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("bogus id: got %v", err)
	}

	pid := primitive.NewObjectID().Hex()
	ref := membership.Ref{ProjectID: pid, Role: membership.RoleViewer, Status: membership.StatusUnseen}
	if err := s.PutUserProject(ctx, u.ID, ref); err != nil {
		t.Fatalf("PutUserProject: %v", err)
	}
	ref.Status = membership.StatusAccepted
	if err := s.PutUserProject(ctx, u.ID, ref); err != nil {
		t.Fatalf("PutUserProject (update): %v", err)
	}
	got, err := s.GetUserByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if len(got.Projects) != 1 || got.Projects[0].Status != membership.StatusAccepted {
		t.Errorf("mirror = %+v, want one accepted entry", got.Projects)
	}

	n, err := s.PruneUserProjects(ctx, pid, nil)
	if err != nil || n != 1 {
		t.Fatalf("PruneUserProjects = %d, %v", n, err)
	}
}

func TestIntegration_InvitationRedeemedOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	invitee := &user.User{Name: "Bob", Email: "bob@example.com"}
	if err := s.CreateUser(ctx, invitee); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	p := &project.Project{Title: "Apollo", OverallStatus: project.StatusNotStarted, StartDate: now}
	if err := s.InsertProject(ctx, p); err != nil {
		t.Fatalf("InsertProject: %v", err)
	}

	exp := now.Add(time.Hour)
	m := project.Member{
		UserID:                invitee.ID,
		Role:                  membership.RoleDeveloper,
		Status:                membership.StatusUnseen,
		InvitationTokenHash:   "h1",
		InvitationTokenExpiry: &exp,
	}
	if err := s.AddMember(ctx, p.ID, m); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := s.AddMember(ctx, p.ID, m); !errors.Is(err, project.ErrAlreadyMember) {
		t.Fatalf("second AddMember: got %v", err)
	}

	got, err := s.RedeemInvitation(ctx, p.ID, "h1", now, membership.StatusAccepted)
	if err != nil {
		t.Fatalf("RedeemInvitation: %v", err)
	}
	if got.UserID != invitee.ID || got.Status != membership.StatusAccepted {
		t.Errorf("redeemed member = %+v", got)
	}
	if _, err := s.RedeemInvitation(ctx, p.ID, "h1", now, membership.StatusAccepted); !errors.Is(err, project.ErrInvitationInvalid) {
		t.Errorf("second redeem: got %v", err)
	}

	if err := s.RemoveMember(ctx, p.ID, invitee.ID); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if err := s.RemoveMember(ctx, p.ID, invitee.ID); !errors.Is(err, project.ErrMemberNotFound) {
		t.Errorf("second RemoveMember: got %v", err)
	}
}

func TestIntegration_TicketsByProject(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	pid := primitive.NewObjectID().Hex()
	other := primitive.NewObjectID().Hex()

	for i, proj := range []string{pid, pid, other} {
		tk := &ticket.Ticket{Title: fmt.Sprintf("t%d", i), ProjectID: proj, CreatedAt: time.Now().UTC()}
		if err := s.InsertTicket(ctx, tk); err != nil {
			t.Fatalf("InsertTicket: %v", err)
		}
	}
	list, err := s.ListTickets(ctx, ticket.Filter{ProjectID: pid})
	if err != nil {
		t.Fatalf("ListTickets: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d tickets, want 2", len(list))
	}
	n, err := s.DeleteTicketsByProject(ctx, pid)
	if err != nil || n != 2 {
		t.Fatalf("DeleteTicketsByProject = %d, %v", n, err)
	}
}
