// Package memory is an in-process store for development and tests. WithinTx
// serializes transactional callers and keeps an undo log of the rows the
// transaction writes, so a failed transaction restores only those rows.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alecgard/taskara/internal/membership"
	"github.com/alecgard/taskara/internal/project"
	"github.com/alecgard/taskara/internal/ticket"
	"github.com/alecgard/taskara/internal/user"
)

var (
	_ user.Repository    = (*Store)(nil)
	_ project.Repository = (*Store)(nil)
	_ ticket.Repository  = (*Store)(nil)
)

// Store holds users, projects and tickets in maps.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	users    map[string]*user.User
	projects map[string]*project.Project
	tickets  map[string]*ticket.Ticket
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:    make(map[string]*user.User),
		projects: make(map[string]*project.Project),
		tickets:  make(map[string]*ticket.Ticket),
	}
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (s *Store) Close(ctx context.Context) error { return nil }

type txKey struct{}

// undoLog holds the value each row had before the transaction first wrote it.
// A nil value means the row did not exist.
type undoLog struct {
	users    map[string]*user.User
	projects map[string]*project.Project
	tickets  map[string]*ticket.Ticket
}

func undoFrom(ctx context.Context) *undoLog {
	l, _ := ctx.Value(txKey{}).(*undoLog)
	return l
}

// The touch helpers must be called with s.mu held, before the row changes.

func (s *Store) touchUser(ctx context.Context, id string) {
	l := undoFrom(ctx)
	if l == nil {
		return
	}
	if _, seen := l.users[id]; seen {
		return
	}
	var prev *user.User
	if u, ok := s.users[id]; ok {
		prev = u.Clone()
	}
	l.users[id] = prev
}

func (s *Store) touchProject(ctx context.Context, id string) {
	l := undoFrom(ctx)
	if l == nil {
		return
	}
	if _, seen := l.projects[id]; seen {
		return
	}
	var prev *project.Project
	if p, ok := s.projects[id]; ok {
		prev = p.Clone()
	}
	l.projects[id] = prev
}

func (s *Store) touchTicket(ctx context.Context, id string) {
	l := undoFrom(ctx)
	if l == nil {
		return
	}
	if _, seen := l.tickets[id]; seen {
		return
	}
	var prev *ticket.Ticket
	if t, ok := s.tickets[id]; ok {
		cp := *t
		prev = &cp
	}
	l.tickets[id] = prev
}

func (s *Store) undo(l *undoLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range l.users {
		if u == nil {
			delete(s.users, id)
		} else {
			s.users[id] = u
		}
	}
	for id, p := range l.projects {
		if p == nil {
			delete(s.projects, id)
		} else {
			s.projects[id] = p
		}
	}
	for id, t := range l.tickets {
		if t == nil {
			delete(s.tickets, id)
		} else {
			s.tickets[id] = t
		}
	}
}

// WithinTx runs fn and rolls back the rows fn wrote if it returns an error.
// Writes made outside the transaction are kept.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	l := &undoLog{
		users:    make(map[string]*user.User),
		projects: make(map[string]*project.Project),
		tickets:  make(map[string]*ticket.Ticket),
	}
	if err := fn(context.WithValue(ctx, txKey{}, l)); err != nil {
		s.undo(l)
		return err
	}
	return nil
}

// --- users ---

func (s *Store) emailTaken(email, exceptID string) bool {
	for _, u := range s.users {
		if u.Email == email && u.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emailTaken(u.Email, "") {
		return user.ErrEmailTaken
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Projects == nil {
		u.Projects = []membership.Ref{}
	}
	s.touchUser(ctx, u.ID)
	s.users[u.ID] = u.Clone()
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u.Clone(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u.Clone(), nil
		}
	}
	return nil, user.ErrNotFound
}

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) ([]*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*user.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u.Clone())
		}
	}
	return out, nil
}

// UpdateProfile writes the profile fields of u. The membership mirror and
// refresh token are untouched.
func (s *Store) UpdateProfile(ctx context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok {
		return user.ErrNotFound
	}
	if s.emailTaken(u.Email, u.ID) {
		return user.ErrEmailTaken
	}
	s.touchUser(ctx, u.ID)
	cur.Name = u.Name
	cur.Email = u.Email
	cur.PasswordHash = u.PasswordHash
	cur.Avatar = u.Avatar
	cur.UpdatedAt = u.UpdatedAt
	return nil
}

func (s *Store) SetRefreshTokenHash(ctx context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	s.touchUser(ctx, id)
	u.RefreshTokenHash = hash
	return nil
}

func (s *Store) ListEmails(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	emails := make([]string, 0, len(s.users))
	for _, u := range s.users {
		emails = append(emails, u.Email)
	}
	sort.Strings(emails)
	return emails, nil
}

func (s *Store) PutUserProject(ctx context.Context, userID string, ref membership.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return user.ErrNotFound
	}
	s.touchUser(ctx, userID)
	for i, r := range u.Projects {
		if r.ProjectID == ref.ProjectID {
			u.Projects[i] = ref
			return nil
		}
	}
	u.Projects = append(u.Projects, ref)
	return nil
}

func (s *Store) RemoveUserProject(ctx context.Context, projectID string, userIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok {
			s.touchUser(ctx, id)
			u.Projects = dropRef(u.Projects, projectID)
		}
	}
	return nil
}

func (s *Store) PruneUserProjects(ctx context.Context, projectID string, keep []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, u := range s.users {
		if slices.Contains(keep, id) {
			continue
		}
		if _, ok := membership.Find(u.Projects, projectID); ok {
			s.touchUser(ctx, id)
			u.Projects = dropRef(u.Projects, projectID)
			n++
		}
	}
	return n, nil
}

func dropRef(refs []membership.Ref, projectID string) []membership.Ref {
	return slices.DeleteFunc(refs, func(r membership.Ref) bool { return r.ProjectID == projectID })
}

// --- projects ---

func (s *Store) InsertProject(ctx context.Context, p *project.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.touchProject(ctx, p.ID)
	s.projects[p.ID] = p.Clone()
	return nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, project.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *Store) ListProjectIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.projects))
	for id := range s.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) UpdateProjectFields(ctx context.Context, p *project.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.projects[p.ID]
	if !ok {
		return project.ErrNotFound
	}
	s.touchProject(ctx, p.ID)
	cur.Title = p.Title
	cur.Description = p.Description
	cur.EndDate = p.Clone().EndDate
	cur.OverallStatus = p.OverallStatus
	cur.UpdatedAt = p.UpdatedAt
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) (*project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, project.ErrNotFound
	}
	s.touchProject(ctx, id)
	delete(s.projects, id)
	return p, nil
}

func (s *Store) DeleteTicketsByProject(ctx context.Context, projectID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.tickets {
		if t.ProjectID == projectID {
			s.touchTicket(ctx, id)
			delete(s.tickets, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) AddMember(ctx context.Context, projectID string, m project.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return project.ErrNotFound
	}
	s.touchProject(ctx, projectID)
	for i, cur := range p.Members {
		if cur.UserID != m.UserID {
			continue
		}
		if cur.Status.Active() {
			return project.ErrAlreadyMember
		}
		p.Members[i] = m
		p.UpdatedAt = time.Now().UTC()
		return nil
	}
	p.Members = append(p.Members, m)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) RedeemInvitation(ctx context.Context, projectID, tokenHash string, now time.Time, status membership.Status) (*project.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, project.ErrNotFound
	}
	for i := range p.Members {
		m := &p.Members[i]
		if m.Status != membership.StatusUnseen || m.InvitationTokenHash != tokenHash {
			continue
		}
		if m.InvitationTokenExpiry == nil || !m.InvitationTokenExpiry.After(now) {
			continue
		}
		s.touchProject(ctx, projectID)
		m.Status = status
		m.InvitationTokenHash = ""
		m.InvitationTokenExpiry = nil
		p.UpdatedAt = now
		out := *m
		return &out, nil
	}
	return nil, project.ErrInvitationInvalid
}

func (s *Store) RemoveMember(ctx context.Context, projectID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return project.ErrNotFound
	}
	s.touchProject(ctx, projectID)
	before := len(p.Members)
	p.Members = slices.DeleteFunc(p.Members, func(m project.Member) bool { return m.UserID == userID })
	if len(p.Members) == before {
		return project.ErrMemberNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// --- tickets ---

func (s *Store) InsertTicket(ctx context.Context, t *ticket.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.touchTicket(ctx, t.ID)
	cp := *t
	s.tickets[t.ID] = &cp
	return nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (*ticket.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, ticket.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) UpdateTicket(ctx context.Context, t *ticket.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[t.ID]; !ok {
		return ticket.ErrNotFound
	}
	s.touchTicket(ctx, t.ID)
	cp := *t
	s.tickets[t.ID] = &cp
	return nil
}

func (s *Store) DeleteTicket(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[id]; !ok {
		return ticket.ErrNotFound
	}
	s.touchTicket(ctx, id)
	delete(s.tickets, id)
	return nil
}

func (s *Store) ListTickets(ctx context.Context, f ticket.Filter) ([]*ticket.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*ticket.Ticket{}
	for _, t := range s.tickets {
		if f.Matches(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
