package api

import (
	"log/slog"
	"net/http"

	"github.com/alecgard/taskara/internal/auth"
	"github.com/alecgard/taskara/internal/ratelimit"
)

// auditLog emits a structured audit log entry for a mutating project, member
// or ticket action.
func auditLog(r *http.Request, action string, resourceType string, resourceID string, detail ...any) {
	attrs := []any{
		"action", action,
		"resource_type", resourceType,
		"resource_id", resourceID,
		"ip", ratelimit.ClientIP(r),
		"request_id", RequestIDFromContext(r.Context()),
	}

	if u := auth.UserFromContext(r.Context()); u != nil {
		attrs = append(attrs, "user_id", u.ID, "user_email", u.Email)
	}
	if pa, ok := auth.ProjectFromContext(r.Context()); ok {
		attrs = append(attrs, "project_id", pa.ProjectID, "project_role", string(pa.Role))
	}

	attrs = append(attrs, detail...)
	slog.Info("audit", attrs...)
}
