package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alecgard/taskara/internal/auth"
	"github.com/alecgard/taskara/internal/mail"
	"github.com/alecgard/taskara/internal/metrics"
	"github.com/alecgard/taskara/internal/project"
	"github.com/alecgard/taskara/internal/ratelimit"
	"github.com/alecgard/taskara/internal/store/memory"
	"github.com/alecgard/taskara/internal/ticket"
	"github.com/alecgard/taskara/internal/user"
)

// ---------------------------------------------------------------------------
// Test harness
// ---------------------------------------------------------------------------

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

type outbox struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (o *outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

var invitationLink = regexp.MustCompile(`accept-invitation/([^/"]+)/([0-9a-f]{64})`)

// lastToken returns the raw invitation token from the most recent email.
func (o *outbox) lastToken(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sent) == 0 {
		t.Fatal("no invitation email sent")
	}
	m := invitationLink.FindStringSubmatch(o.sent[len(o.sent)-1].HTML)
	if m == nil {
		t.Fatalf("no invitation link in email:\n%s", o.sent[len(o.sent)-1].HTML)
	}
	return m[2]
}

type testEnv struct {
	handler http.Handler
	store   *memory.Store
	outbox  *outbox
	metrics *metrics.Metrics
}

type envOption func(*RouterDeps)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	store := memory.New()
	box := &outbox{}
	m := metrics.New()
	issuer := auth.NewIssuer("access-secret", "refresh-secret", time.Hour, 24*time.Hour)

	users := user.NewService(store, issuer)
	projects := project.NewService(store, box, project.Options{
		InvitationTTL:  7 * 24 * time.Hour,
		FrontendOrigin: "http://app.test",
		OnInvitation:   m.IncInvitationEvent,
	})
	tickets := ticket.NewService(store)
	cookies := auth.Cookies{AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour}

	deps := RouterDeps{
		Users:    users,
		Projects: projects,
		Tickets:  tickets,
		Authenticator: &auth.Authenticator{
			Issuer:   issuer,
			Sessions: user.NewAuthAdapter(users),
			Cookies:  cookies,
			OnResult: m.IncAuthResult,
		},
		Cookies:        cookies,
		Metrics:        m,
		Store:          store,
		AllowedOrigins: []string{"http://app.test"},
	}
	for _, o := range opts {
		o(&deps)
	}
	return &testEnv{handler: NewRouter(deps), store: store, outbox: box, metrics: m}
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decoding envelope: %v\n%s", method, path, err, rec.Body.String())
		}
	}
	return rec, env
}

// expect asserts the HTTP status and that the envelope agrees with it.
func expect(t *testing.T, rec *httptest.ResponseRecorder, env envelope, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (message %q)", rec.Code, status, env.Message)
	}
	if env.StatusCode != status {
		t.Errorf("envelope statusCode = %d, want %d", env.StatusCode, status)
	}
	if env.Success != (status < 400) {
		t.Errorf("envelope success = %v for status %d", env.Success, status)
	}
}

func decodeData(t *testing.T, env envelope, v any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decoding data: %v\n%s", err, env.Data)
	}
}

type account struct {
	ID    string
	Email string
	Token string
}

func (e *testEnv) register(t *testing.T, name, email string) account {
	t.Helper()
	rec, env := e.do(t, http.MethodPost, "/user/signup", "", map[string]string{
		"name": name, "email": email, "password": "s3cret",
	})
	expect(t, rec, env, http.StatusCreated)

	rec, env = e.do(t, http.MethodPost, "/user/login", "", map[string]string{
		"email": email, "password": "s3cret",
	})
	expect(t, rec, env, http.StatusOK)
	var login struct {
		User struct {
			ID string `json:"id"`
		} `json:"currentuser"`
		AccessToken string `json:"accesstoken"`
	}
	decodeData(t, env, &login)
	return account{ID: login.User.ID, Email: email, Token: login.AccessToken}
}

func (e *testEnv) createProject(t *testing.T, owner account, title string) string {
	t.Helper()
	rec, env := e.do(t, http.MethodPost, "/project/create", owner.Token, map[string]string{"title": title})
	expect(t, rec, env, http.StatusCreated)
	var p struct {
		ID string `json:"id"`
	}
	decodeData(t, env, &p)
	return p.ID
}

// invite adds invitee to the project and returns the raw token from the email.
func (e *testEnv) invite(t *testing.T, admin account, projectID, email, role string) string {
	t.Helper()
	rec, env := e.do(t, http.MethodPut, "/project/"+projectID+"/addmember", admin.Token, map[string]string{
		"useremail": email, "role": role,
	})
	expect(t, rec, env, http.StatusOK)
	return e.outbox.lastToken(t)
}

func (e *testEnv) join(t *testing.T, admin account, projectID string, member account, role string) {
	t.Helper()
	token := e.invite(t, admin, projectID, member.Email, role)
	rec, env := e.do(t, http.MethodPut, "/project/accept-invitation/"+projectID+"/"+token, "", nil)
	expect(t, rec, env, http.StatusOK)
}

func dueTomorrow() string {
	return time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)
}

// ---------------------------------------------------------------------------
// Infrastructure routes
// ---------------------------------------------------------------------------

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name    string
		store   Pinger
		status  int
		message string
	}{
		{"no store", nil, http.StatusOK, "OK"},
		{"store up", &fakePinger{}, http.StatusOK, "OK"},
		{"store down", &fakePinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "Database unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewRouter(RouterDeps{Store: tt.store})
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			var env envelope
			if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if env.Message != tt.message {
				t.Errorf("message = %q, want %q", env.Message, tt.message)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	e := newTestEnv(t)
	rec, env := e.do(t, http.MethodGet, "/nope", "", nil)
	expect(t, rec, env, http.StatusNotFound)
	if env.Message != "Route not found" {
		t.Errorf("message = %q", env.Message)
	}
}

func TestRequestID(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("echoed request id = %q", got)
	}

	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id not generated")
	}
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"http://app.test", true},
		{"http://evil.test", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/user/login", nil)
		req.Header.Set("Origin", tt.origin)
		rec := httptest.NewRecorder()
		e.handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("%s: status = %d, want 204", tt.origin, rec.Code)
		}
		got := rec.Header().Get("Access-Control-Allow-Origin")
		if tt.allowed && got != tt.origin {
			t.Errorf("%s: Allow-Origin = %q", tt.origin, got)
		}
		if !tt.allowed && got != "" {
			t.Errorf("%s: unexpected Allow-Origin %q", tt.origin, got)
		}
		if tt.allowed && rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
			t.Errorf("%s: credentials not allowed", tt.origin)
		}
	}
}

func TestMalformedBody(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/user/signup", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Accounts and sessions
// ---------------------------------------------------------------------------

func TestSignupLoginAndProfile(t *testing.T) {
	e := newTestEnv(t)
	ada := e.register(t, "Ada", "Ada@Example.com")

	rec, env := e.do(t, http.MethodPost, "/user/signup", "", map[string]string{
		"name": "Ada again", "email": "ada@example.com", "password": "x",
	})
	expect(t, rec, env, http.StatusConflict)

	rec, env = e.do(t, http.MethodPost, "/user/login", "", map[string]string{
		"email": "ada@example.com", "password": "wrong",
	})
	expect(t, rec, env, http.StatusUnauthorized)

	rec, env = e.do(t, http.MethodGet, "/user/data", ada.Token, nil)
	expect(t, rec, env, http.StatusOK)
	if strings.Contains(string(env.Data), "password") || strings.Contains(string(env.Data), "RefreshToken") {
		t.Errorf("secret fields leaked: %s", env.Data)
	}

	rec, env = e.do(t, http.MethodPut, "/user/update", ada.Token, map[string]string{"name": "Ada L."})
	expect(t, rec, env, http.StatusOK)
	var u struct {
		Name string `json:"name"`
	}
	decodeData(t, env, &u)
	if u.Name != "Ada L." {
		t.Errorf("name = %q", u.Name)
	}

	rec, env = e.do(t, http.MethodGet, "/user/"+ada.ID, "", nil)
	expect(t, rec, env, http.StatusOK)

	rec, env = e.do(t, http.MethodGet, "/user/allemails", ada.Token, nil)
	expect(t, rec, env, http.StatusOK)
	var emails []string
	decodeData(t, env, &emails)
	if len(emails) != 1 || emails[0] != "ada@example.com" {
		t.Errorf("emails = %v", emails)
	}
}

func TestLoginSetsCookies(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "Ada", "ada@example.com")

	rec, env := e.do(t, http.MethodPost, "/user/login", "", map[string]string{
		"email": "ada@example.com", "password": "s3cret",
	})
	expect(t, rec, env, http.StatusOK)

	names := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		names[c.Name] = c.HttpOnly
	}
	if !names[auth.AccessCookie] || !names[auth.RefreshCookie] {
		t.Errorf("session cookies missing or not HttpOnly: %v", names)
	}
	if !strings.Contains(string(env.Data), `"redirectUrl":"/user/dashboard"`) {
		t.Errorf("login data = %s", env.Data)
	}
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)

	rec, env := e.do(t, http.MethodGet, "/user/data", "", nil)
	expect(t, rec, env, http.StatusUnauthorized)
	if env.Message != "Unauthorized request: No token provided" {
		t.Errorf("message = %q", env.Message)
	}

	rec, env = e.do(t, http.MethodGet, "/user/data", "garbage", nil)
	expect(t, rec, env, http.StatusUnauthorized)
}

func TestRefreshRotatesAndLogoutRevokes(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "Ada", "ada@example.com")

	_, env := e.do(t, http.MethodPost, "/user/login", "", map[string]string{
		"email": "ada@example.com", "password": "s3cret",
	})
	var pair auth.TokenPair
	decodeData(t, env, &pair)

	rec, env := e.do(t, http.MethodPost, "/user/refreshaccesstoken", "", map[string]string{"refreshtoken": pair.Refresh})
	expect(t, rec, env, http.StatusOK)
	var rotated auth.TokenPair
	decodeData(t, env, &rotated)
	if rotated.Refresh == "" || rotated.Refresh == pair.Refresh {
		t.Fatal("refresh token not rotated")
	}

	// The old refresh token is single use.
	rec, env = e.do(t, http.MethodPost, "/user/refreshaccesstoken", "", map[string]string{"refreshtoken": pair.Refresh})
	expect(t, rec, env, http.StatusUnauthorized)

	rec, env = e.do(t, http.MethodGet, "/user/logout", rotated.Access, nil)
	expect(t, rec, env, http.StatusOK)

	rec, env = e.do(t, http.MethodPost, "/user/refreshaccesstoken", "", map[string]string{"refreshtoken": rotated.Refresh})
	expect(t, rec, env, http.StatusUnauthorized)
}

func TestRefreshFromCookie(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "Ada", "ada@example.com")
	_, env := e.do(t, http.MethodPost, "/user/login", "", map[string]string{
		"email": "ada@example.com", "password": "s3cret",
	})
	var pair auth.TokenPair
	decodeData(t, env, &pair)

	req := httptest.NewRequest(http.MethodPost, "/user/refreshaccesstoken", nil)
	req.AddCookie(&http.Cookie{Name: auth.RefreshCookie, Value: pair.Refresh})
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestRateLimitedLogin(t *testing.T) {
	e := newTestEnv(t, func(d *RouterDeps) {
		d.Limiter = ratelimit.New(2, time.Minute)
	})

	for i := 0; i < 2; i++ {
		rec, _ := e.do(t, http.MethodPost, "/user/login", "", map[string]string{"email": "x@example.com", "password": "p"})
		if rec.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d throttled early", i+1)
		}
	}
	rec, env := e.do(t, http.MethodPost, "/user/login", "", map[string]string{"email": "x@example.com", "password": "p"})
	expect(t, rec, env, http.StatusTooManyRequests)
	if env.Message != ratelimit.RejectMessage {
		t.Errorf("message = %q", env.Message)
	}
}

// ---------------------------------------------------------------------------
// Projects, invitations and tickets
// ---------------------------------------------------------------------------

func TestInvitationLifecycle(t *testing.T) {
	e := newTestEnv(t)
	owner := e.register(t, "Owner", "owner@example.com")
	dev := e.register(t, "Dev", "dev@example.com")
	pid := e.createProject(t, owner, "Apollo")

	token := e.invite(t, owner, pid, dev.Email, "developer")
	if strings.Contains(string(e.mustGetProject(t, owner, pid)), token) {
		t.Fatal("raw invitation token exposed in project document")
	}

	rec, env := e.do(t, http.MethodGet, "/user/pendingrequests", dev.Token, nil)
	expect(t, rec, env, http.StatusOK)
	var pending []struct {
		ProjectID string `json:"projectID"`
		Status    string `json:"status"`
	}
	decodeData(t, env, &pending)
	if len(pending) != 1 || pending[0].ProjectID != pid || pending[0].Status != "unseen" {
		t.Fatalf("pending = %+v", pending)
	}

	// Inviting again while the invitation is pending conflicts.
	rec, env = e.do(t, http.MethodPut, "/project/"+pid+"/addmember", owner.Token, map[string]string{
		"useremail": dev.Email, "role": "viewer",
	})
	expect(t, rec, env, http.StatusConflict)

	rec, env = e.do(t, http.MethodPut, "/project/accept-invitation/"+pid+"/"+token, "", nil)
	expect(t, rec, env, http.StatusOK)
	var acc struct {
		ProjectTitle string `json:"projectTitle"`
	}
	decodeData(t, env, &acc)
	if acc.ProjectTitle != "Apollo" {
		t.Errorf("projectTitle = %q", acc.ProjectTitle)
	}

	// Replaying an accepted token fails.
	rec, env = e.do(t, http.MethodPut, "/project/accept-invitation/"+pid+"/"+token, "", nil)
	expect(t, rec, env, http.StatusBadRequest)

	rec, env = e.do(t, http.MethodGet, "/project/"+pid+"/members", dev.Token, nil)
	expect(t, rec, env, http.StatusOK)
	var members []struct {
		UserID string `json:"user"`
		Role   string `json:"role"`
		Status string `json:"status"`
	}
	decodeData(t, env, &members)
	if len(members) != 2 || members[1].UserID != dev.ID || members[1].Status != "accepted" || members[1].Role != "developer" {
		t.Errorf("members = %+v", members)
	}

	rec, env = e.do(t, http.MethodGet, "/user/myprojects", dev.Token, nil)
	expect(t, rec, env, http.StatusOK)
	if !strings.Contains(string(env.Data), `"status":"accepted"`) {
		t.Errorf("mirror not accepted: %s", env.Data)
	}
}

func (e *testEnv) mustGetProject(t *testing.T, caller account, pid string) json.RawMessage {
	t.Helper()
	rec, env := e.do(t, http.MethodGet, "/project/"+pid, caller.Token, nil)
	expect(t, rec, env, http.StatusOK)
	return env.Data
}

func TestRejectInvitation(t *testing.T) {
	e := newTestEnv(t)
	owner := e.register(t, "Owner", "owner@example.com")
	guest := e.register(t, "Guest", "guest@example.com")
	pid := e.createProject(t, owner, "Apollo")

	token := e.invite(t, owner, pid, guest.Email, "viewer")
	rec, env := e.do(t, http.MethodPut, "/project/reject-invitation/"+pid+"/"+token, "", nil)
	expect(t, rec, env, http.StatusOK)

	rec, env = e.do(t, http.MethodPut, "/project/accept-invitation/"+pid+"/"+token, "", nil)
	expect(t, rec, env, http.StatusBadRequest)

	// A rejected invitee can be invited again.
	e.invite(t, owner, pid, guest.Email, "developer")
}

func TestRoleGates(t *testing.T) {
	e := newTestEnv(t)
	owner := e.register(t, "Owner", "owner@example.com")
	viewer := e.register(t, "Viewer", "viewer@example.com")
	outsider := e.register(t, "Out", "out@example.com")
	pid := e.createProject(t, owner, "Apollo")
	e.join(t, owner, pid, viewer, "viewer")

	tests := []struct {
		name   string
		who    account
		method string
		path   string
		body   any
		status int
	}{
		{"viewer cannot update project", viewer, http.MethodPut, "/project/" + pid, map[string]string{"title": "x"}, http.StatusForbidden},
		{"viewer cannot create ticket", viewer, http.MethodPost, "/project/" + pid + "/createticket", map[string]string{"title": "t"}, http.StatusForbidden},
		{"outsider sees no project", outsider, http.MethodPut, "/project/" + pid, map[string]string{"title": "x"}, http.StatusNotFound},
		{"outsider cannot list members", outsider, http.MethodGet, "/project/" + pid + "/members", nil, http.StatusNotFound},
		{"viewer lists members", viewer, http.MethodGet, "/project/" + pid + "/members", nil, http.StatusOK},
		{"admin updates project", owner, http.MethodPut, "/project/" + pid, map[string]string{"title": "Apollo 2"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := e.do(t, tt.method, tt.path, tt.who.Token, tt.body)
			expect(t, rec, env, tt.status)
			if tt.status == http.StatusForbidden && env.Message != auth.ForbiddenMessage {
				t.Errorf("message = %q", env.Message)
			}
		})
	}
}

func TestTicketWorkflow(t *testing.T) {
	e := newTestEnv(t)
	owner := e.register(t, "Owner", "owner@example.com")
	dev := e.register(t, "Dev", "dev@example.com")
	viewer := e.register(t, "Viewer", "viewer@example.com")
	pid := e.createProject(t, owner, "Apollo")
	e.join(t, owner, pid, dev, "developer")
	e.join(t, owner, pid, viewer, "viewer")

	rec, env := e.do(t, http.MethodPost, "/project/"+pid+"/createticket", owner.Token, map[string]string{
		"title": "Launch", "priority": "high", "assignee": viewer.ID, "dueDate": dueTomorrow(),
	})
	expect(t, rec, env, http.StatusCreated)
	var tk struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeData(t, env, &tk)
	if tk.Status != "todo" {
		t.Errorf("initial status = %q", tk.Status)
	}

	// Assignee must be a project member.
	rec, env = e.do(t, http.MethodPost, "/project/"+pid+"/createticket", dev.Token, map[string]string{
		"title": "x", "assignee": "someone-else", "dueDate": dueTomorrow(),
	})
	if rec.Code < 400 {
		t.Fatalf("non-member assignee accepted: %d", rec.Code)
	}

	// Only the assignee may move the ticket, even over an admin.
	rec, env = e.do(t, http.MethodPut, "/ticket/"+tk.ID+"/changestatus", owner.Token, map[string]string{"status": "in_progress"})
	expect(t, rec, env, http.StatusForbidden)

	rec, env = e.do(t, http.MethodPut, "/ticket/"+tk.ID+"/changestatus", viewer.Token, map[string]string{"status": "in_progress"})
	expect(t, rec, env, http.StatusOK)

	rec, env = e.do(t, http.MethodPut, "/ticket/"+tk.ID+"/changestatus", viewer.Token, map[string]string{"status": "bogus"})
	expect(t, rec, env, http.StatusBadRequest)

	// Viewers cannot edit ticket fields.
	rec, env = e.do(t, http.MethodPut, "/ticket/"+tk.ID, viewer.Token, map[string]string{"title": "x"})
	expect(t, rec, env, http.StatusForbidden)

	rec, env = e.do(t, http.MethodPut, "/ticket/"+tk.ID, dev.Token, map[string]string{"title": "Launch v2"})
	expect(t, rec, env, http.StatusOK)

	rec, env = e.do(t, http.MethodGet, "/ticket/"+tk.ID, viewer.Token, nil)
	expect(t, rec, env, http.StatusOK)
	var detail struct {
		Ticket struct {
			Title  string `json:"title"`
			Status string `json:"status"`
		} `json:"ticket"`
	}
	decodeData(t, env, &detail)
	if detail.Ticket.Title != "Launch v2" || detail.Ticket.Status != "in_progress" {
		t.Errorf("detail = %+v", detail)
	}

	rec, env = e.do(t, http.MethodGet, "/user/myticketslength", viewer.Token, nil)
	expect(t, rec, env, http.StatusOK)
	var counts ticket.Counts
	decodeData(t, env, &counts)
	if counts.Total != 1 || counts.InProgress != 1 {
		t.Errorf("counts = %+v", counts)
	}

	rec, env = e.do(t, http.MethodGet, "/project/"+pid+"/mytickets", viewer.Token, nil)
	expect(t, rec, env, http.StatusOK)
	var mine []json.RawMessage
	decodeData(t, env, &mine)
	if len(mine) != 1 {
		t.Errorf("mytickets = %d, want 1", len(mine))
	}

	rec, env = e.do(t, http.MethodDelete, "/ticket/"+tk.ID, dev.Token, nil)
	expect(t, rec, env, http.StatusOK)

	rec, env = e.do(t, http.MethodGet, "/ticket/"+tk.ID, viewer.Token, nil)
	expect(t, rec, env, http.StatusNotFound)
}

func TestCalendarDates(t *testing.T) {
	e := newTestEnv(t)
	owner := e.register(t, "Owner", "owner@example.com")

	rec, env := e.do(t, http.MethodPost, "/project/create", owner.Token, map[string]string{
		"title": "Dated", "endDate": "2030-06-01",
	})
	expect(t, rec, env, http.StatusCreated)
	var p struct {
		ID      string    `json:"id"`
		EndDate time.Time `json:"endDate"`
	}
	decodeData(t, env, &p)
	if want := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC); !p.EndDate.Equal(want) {
		t.Errorf("endDate = %v, want %v", p.EndDate, want)
	}

	rec, env = e.do(t, http.MethodPost, "/project/"+p.ID+"/createticket", owner.Token, map[string]string{
		"title": "Ship", "assignee": owner.ID, "dueDate": "2030-06-01",
	})
	expect(t, rec, env, http.StatusCreated)
	var tk struct {
		ID      string    `json:"id"`
		DueDate time.Time `json:"dueDate"`
	}
	decodeData(t, env, &tk)
	if tk.DueDate.Format("2006-01-02") != "2030-06-01" {
		t.Errorf("dueDate = %v", tk.DueDate)
	}

	rec, env = e.do(t, http.MethodPut, "/ticket/"+tk.ID, owner.Token, map[string]string{"dueDate": "2030-07-15"})
	expect(t, rec, env, http.StatusOK)
	decodeData(t, env, &tk)
	if tk.DueDate.Format("2006-01-02") != "2030-07-15" {
		t.Errorf("updated dueDate = %v", tk.DueDate)
	}

	rec, env = e.do(t, http.MethodPost, "/project/"+p.ID+"/createticket", owner.Token, map[string]string{
		"assignee": owner.ID, "dueDate": "June 1st",
	})
	expect(t, rec, env, http.StatusBadRequest)
}

func TestRemoveMemberAndDeleteProject(t *testing.T) {
	e := newTestEnv(t)
	owner := e.register(t, "Owner", "owner@example.com")
	dev := e.register(t, "Dev", "dev@example.com")
	pid := e.createProject(t, owner, "Apollo")
	e.join(t, owner, pid, dev, "developer")

	rec, env := e.do(t, http.MethodDelete, "/project/"+pid+"/removemember", owner.Token, map[string]string{"userId": dev.ID})
	expect(t, rec, env, http.StatusOK)

	// Removal clears the mirror, so the role gate no longer admits the user.
	rec, env = e.do(t, http.MethodGet, "/project/"+pid+"/members", dev.Token, nil)
	expect(t, rec, env, http.StatusNotFound)

	rec, env = e.do(t, http.MethodDelete, "/project/"+pid, owner.Token, nil)
	expect(t, rec, env, http.StatusOK)

	rec, env = e.do(t, http.MethodGet, "/user/myprojects", owner.Token, nil)
	expect(t, rec, env, http.StatusOK)
	if string(env.Data) != "[]" && string(env.Data) != "null" {
		t.Errorf("owner mirror after delete = %s", env.Data)
	}
}

func TestReconcileRoute(t *testing.T) {
	e := newTestEnv(t)
	owner := e.register(t, "Owner", "owner@example.com")
	pid := e.createProject(t, owner, "Apollo")

	rec, env := e.do(t, http.MethodPost, "/project/"+pid+"/reconcile", owner.Token, nil)
	expect(t, rec, env, http.StatusOK)
	var res project.ReconcileResult
	decodeData(t, env, &res)
	if res.Mirrored != 1 {
		t.Errorf("reconcile = %+v", res)
	}
}

func TestMetricsExposed(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "Ada", "ada@example.com")

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `path_pattern="/user/signup"`) {
		t.Errorf("signup request not recorded:\n%s", rec.Body.String())
	}
}
