package auth

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/taskara/internal/apperr"
	"github.com/alecgard/taskara/internal/membership"
	"github.com/alecgard/taskara/internal/respond"
)

// ForbiddenMessage is returned when the caller's role is not allowed.
const ForbiddenMessage = "You are not authorized to perform this action. Try contacting the project admin."

// TicketProjects resolves the project a ticket belongs to. It returns a
// NotFound error when the ticket does not exist.
type TicketProjects interface {
	ProjectOfTicket(ctx context.Context, ticketID string) (string, error)
}

// RequireProjectRole returns middleware that admits the caller only when
// their membership mirror holds one of the allowed roles for the target
// project. The project comes from the {projectID} route parameter, or from
// the parent project of {ticketID}. Must run after Authenticator.Middleware.
func RequireProjectRole(tickets TicketProjects, allowed ...membership.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r.Context())
			if user == nil {
				respond.Error(w, apperr.Unauthenticated("Unauthorized request: No token provided"))
				return
			}

			projectID := chi.URLParam(r, "projectID")
			if projectID == "" {
				ticketID := chi.URLParam(r, "ticketID")
				if ticketID == "" || tickets == nil {
					respond.Error(w, apperr.Missing("Project not found"))
					return
				}
				pid, err := tickets.ProjectOfTicket(r.Context(), ticketID)
				if err != nil {
					respond.Error(w, err)
					return
				}
				projectID = pid
			}

			role, ok := user.RoleIn(projectID)
			if !ok {
				respond.Error(w, apperr.Missing("Project not found"))
				return
			}
			if !role.In(allowed...) {
				respond.Error(w, apperr.Denied(ForbiddenMessage))
				return
			}

			ctx := ContextWithProject(r.Context(), ProjectAccess{ProjectID: projectID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
