package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/taskara/internal/auth"
	"github.com/alecgard/taskara/internal/respond"
	"github.com/alecgard/taskara/internal/ticket"
	"github.com/alecgard/taskara/internal/user"
)

// usersHandler groups account and per-user HTTP handlers.
type usersHandler struct {
	users   *user.Service
	tickets *ticket.Service
	cookies auth.Cookies
}

func newUsersHandler(users *user.Service, tickets *ticket.Service, cookies auth.Cookies) *usersHandler {
	return &usersHandler{users: users, tickets: tickets, cookies: cookies}
}

// loginResponse is the data returned on login.
type loginResponse struct {
	User         *user.User `json:"currentuser"`
	AccessToken  string     `json:"accesstoken"`
	RefreshToken string     `json:"refreshtoken"`
	RedirectURL  string     `json:"redirectUrl"`
}

// Signup handles POST /user/signup.
func (h *usersHandler) Signup(w http.ResponseWriter, r *http.Request) error {
	var req user.SignupInput
	if err := respond.Decode(r, &req); err != nil {
		return err
	}
	u, err := h.users.Signup(r.Context(), req)
	if err != nil {
		return err
	}
	respond.JSON(w, http.StatusCreated, u, "Successfully created user")
	return nil
}

// Login handles POST /user/login.
func (h *usersHandler) Login(w http.ResponseWriter, r *http.Request) error {
	var req user.LoginInput
	if err := respond.Decode(r, &req); err != nil {
		return err
	}
	sess, err := h.users.Login(r.Context(), req)
	if err != nil {
		return err
	}
	h.cookies.Set(w, sess.Tokens)
	respond.JSON(w, http.StatusOK, loginResponse{
		User:         sess.User,
		AccessToken:  sess.Tokens.Access,
		RefreshToken: sess.Tokens.Refresh,
		RedirectURL:  "/user/dashboard",
	}, "Successfully logged in")
	return nil
}

// RefreshAccessToken handles POST /user/refreshaccesstoken. The refresh
// token is read from the body first, then from the cookie.
func (h *usersHandler) RefreshAccessToken(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		RefreshToken string `json:"refreshtoken"`
	}
	if err := respond.Decode(r, &req); err != nil {
		return err
	}
	token := req.RefreshToken
	if token == "" {
		if c, err := r.Cookie(auth.RefreshCookie); err == nil {
			token = c.Value
		}
	}
	sess, err := h.users.Refresh(r.Context(), token)
	if err != nil {
		return err
	}
	h.cookies.Set(w, sess.Tokens)
	respond.JSON(w, http.StatusOK, sess.Tokens, "Successfully refreshed access token")
	return nil
}

// Logout handles GET /user/logout.
func (h *usersHandler) Logout(w http.ResponseWriter, r *http.Request) error {
	u, err := caller(r)
	if err != nil {
		return err
	}
	if err := h.users.Logout(r.Context(), u.ID); err != nil {
		return err
	}
	h.cookies.Clear(w)
	respond.JSON(w, http.StatusOK, struct{}{}, "Successfully logged out")
	return nil
}

// Update handles PUT /user/update.
func (h *usersHandler) Update(w http.ResponseWriter, r *http.Request) error {
	u, err := caller(r)
	if err != nil {
		return err
	}
	var req user.UpdateInput
	if err := respond.Decode(r, &req); err != nil {
		return err
	}
	updated, err := h.users.Update(r.Context(), u.ID, req)
	if err != nil {
		return err
	}
	respond.JSON(w, http.StatusOK, updated, "User updated successfully")
	return nil
}

// Data handles GET /user/data.
func (h *usersHandler) Data(w http.ResponseWriter, r *http.Request) error {
	u, err := caller(r)
	if err != nil {
		return err
	}
	full, err := h.users.Get(r.Context(), u.ID)
	if err != nil {
		return err
	}
	respond.JSON(w, http.StatusOK, full, "User fetched successfully")
	return nil
}

// PendingRequests handles GET /user/pendingrequests.
func (h *usersHandler) PendingRequests(w http.ResponseWriter, r *http.Request) error {
	u, err := caller(r)
	if err != nil {
		return err
	}
	pending, err := h.users.PendingInvitations(r.Context(), u.ID)
	if err != nil {
		return err
	}
	respond.JSON(w, http.StatusOK, pending, "Successfully fetched pending invitations")
	return nil
}

// MyTickets handles GET /user/mytickets.
func (h *usersHandler) MyTickets(w http.ResponseWriter, r *http.Request) error {
	u, err := caller(r)
	if err != nil {
		return err
	}
	list, err := h.tickets.ListAssigned(r.Context(), u.ID)
	if err != nil {
		return err
	}
	respond.JSON(w, http.StatusOK, list, "Tickets assigned to user fetched successfully")
	return nil
}

// MyTicketCounts handles GET /user/myticketslength.
func (h *usersHandler) MyTicketCounts(w http.ResponseWriter, r *http.Request) error {
	u, err := caller(r)
	if err != nil {
		return err
	}
	counts, err := h.tickets.Counts(r.Context(), u.ID)
	if err != nil {
		return err
	}
	respond.JSON(w, http.StatusOK, counts, "Length of tickets fetched successfully")
	return nil
}

// AllEmails handles GET /user/allemails.
func (h *usersHandler) AllEmails(w http.ResponseWriter, r *http.Request) error {
	emails, err := h.users.ListEmails(r.Context())
	if err != nil {
		return err
	}
	respond.JSON(w, http.StatusOK, emails, "All users' emails fetched successfully")
	return nil
}

// MyProjects handles GET /user/myprojects.
func (h *usersHandler) MyProjects(w http.ResponseWriter, r *http.Request) error {
	u, err := caller(r)
	if err != nil {
		return err
	}
	refs, err := h.users.Projects(r.Context(), u.ID)
	if err != nil {
		return err
	}
	respond.JSON(w, http.StatusOK, refs, "Projects fetched successfully")
	return nil
}

// GetUser handles GET /user/{userID}. Password and refresh hashes are never
// serialized.
func (h *usersHandler) GetUser(w http.ResponseWriter, r *http.Request) error {
	u, err := h.users.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		return err
	}
	respond.JSON(w, http.StatusOK, u, "User fetched successfully")
	return nil
}
