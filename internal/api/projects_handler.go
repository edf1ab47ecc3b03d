package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/taskara/internal/project"
	"github.com/alecgard/taskara/internal/respond"
)

type projectsHandler struct {
	projects *project.Service
}

func newProjectsHandler(projects *project.Service) *projectsHandler {
	return &projectsHandler{projects: projects}
}

type addMemberRequest struct {
	Email string `json:"useremail"`
	Role  string `json:"role"`
}

type removeMemberRequest struct {
	UserID string `json:"userId"`
}

// Create handles POST /project/create.
func (h *projectsHandler) Create(w http.ResponseWriter, r *http.Request) error {
	u, err := caller(r)
	if err != nil {
		return err
	}
	var req project.CreateInput
	if err := respond.Decode(r, &req); err != nil {
		return err
	}
	p, err := h.projects.Create(r.Context(), u.ID, req)
	if err != nil {
		return err
	}
	auditLog(r, "project.create", "project", p.ID, "title", p.Title)
	respond.JSON(w, http.StatusCreated, p, "Successfully created project")
	return nil
}

// Get handles GET /project/{projectID}.
func (h *projectsHandler) Get(w http.ResponseWriter, r *http.Request) error {
	p, err := h.projects.Get(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		return err
	}
	respond.JSON(w, http.StatusOK, p, "Successfully fetched project details")
	return nil
}

// Update handles PUT /project/{projectID}.
func (h *projectsHandler) Update(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "projectID")
	var req project.UpdateInput
	if err := respond.Decode(r, &req); err != nil {
		return err
	}
	p, err := h.projects.Update(r.Context(), id, req)
	if err != nil {
		return err
	}
	auditLog(r, "project.update", "project", id)
	respond.JSON(w, http.StatusOK, p, "Successfully updated the project")
	return nil
}

// Delete handles DELETE /project/{projectID}.
func (h *projectsHandler) Delete(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "projectID")
	if err := h.projects.Delete(r.Context(), id); err != nil {
		return err
	}
	auditLog(r, "project.delete", "project", id)
	respond.JSON(w, http.StatusOK, nil, "Successfully deleted the project")
	return nil
}

// AddMember handles PUT /project/{projectID}/addmember. The raw invitation
// token only travels in the email.
func (h *projectsHandler) AddMember(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "projectID")
	var req addMemberRequest
	if err := respond.Decode(r, &req); err != nil {
		return err
	}
	inv, err := h.projects.IssueInvitation(r.Context(), id, req.Email, req.Role)
	if err != nil {
		return err
	}
	auditLog(r, "member.invite", "project", id, "invitee_id", inv.Invitee.ID, "role", req.Role)
	respond.JSON(w, http.StatusOK, inv.Project, "Successfully added member to the project and sent invitation email")
	return nil
}

// RemoveMember handles DELETE /project/{projectID}/removemember.
func (h *projectsHandler) RemoveMember(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "projectID")
	var req removeMemberRequest
	if err := respond.Decode(r, &req); err != nil {
		return err
	}
	p, err := h.projects.RemoveMember(r.Context(), id, req.UserID)
	if err != nil {
		return err
	}
	auditLog(r, "member.remove", "project", id, "member_id", req.UserID)
	respond.JSON(w, http.StatusOK, p, "Successfully removed member from the project")
	return nil
}

// Members handles GET /project/{projectID}/members.
func (h *projectsHandler) Members(w http.ResponseWriter, r *http.Request) error {
	members, err := h.projects.Members(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		return err
	}
	respond.JSON(w, http.StatusOK, members, "Successfully fetched project members")
	return nil
}

// Reconcile handles POST /project/{projectID}/reconcile.
func (h *projectsHandler) Reconcile(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "projectID")
	res, err := h.projects.Reconcile(r.Context(), id)
	if err != nil {
		return err
	}
	auditLog(r, "project.reconcile", "project", id, "mirrored", res.Mirrored, "pruned", res.Pruned)
	respond.JSON(w, http.StatusOK, res, "Successfully reconciled project memberships")
	return nil
}

// AcceptInvitation handles PUT /project/accept-invitation/{projectID}/{token}.
func (h *projectsHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "projectID")
	acc, err := h.projects.AcceptInvitation(r.Context(), id, chi.URLParam(r, "token"))
	if err != nil {
		return err
	}
	auditLog(r, "invitation.accept", "project", id)
	respond.JSON(w, http.StatusOK, acc, "Successfully accepted the invitation. Please login to continue.")
	return nil
}

// RejectInvitation handles PUT /project/reject-invitation/{projectID}/{token}.
func (h *projectsHandler) RejectInvitation(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "projectID")
	if err := h.projects.RejectInvitation(r.Context(), id, chi.URLParam(r, "token")); err != nil {
		return err
	}
	auditLog(r, "invitation.reject", "project", id)
	respond.JSON(w, http.StatusOK, nil, "Successfully rejected the invitation")
	return nil
}
