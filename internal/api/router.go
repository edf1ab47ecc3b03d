package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/alecgard/taskara/internal/apperr"
	"github.com/alecgard/taskara/internal/auth"
	"github.com/alecgard/taskara/internal/membership"
	"github.com/alecgard/taskara/internal/metrics"
	"github.com/alecgard/taskara/internal/project"
	"github.com/alecgard/taskara/internal/ratelimit"
	"github.com/alecgard/taskara/internal/respond"
	"github.com/alecgard/taskara/internal/ticket"
	"github.com/alecgard/taskara/internal/user"
)

// Pinger reports store connectivity for the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Users    *user.Service
	Projects *project.Service
	Tickets  *ticket.Service

	Authenticator *auth.Authenticator
	Cookies       auth.Cookies

	// Limiter throttles the public credential and invitation routes. Nil
	// disables throttling.
	Limiter *ratelimit.Limiter
	Metrics *metrics.Metrics
	Store   Pinger

	AllowedOrigins []string
}

// handlerFunc is an HTTP handler that reports failures by returning them.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle adapts fn, writing any returned error as an envelope. Server-side
// failures are logged with the request id.
func handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}
		if apperr.StatusOf(err) >= http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), "request failed",
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", RequestIDFromContext(r.Context()),
				"error", err,
			)
		}
		respond.Error(w, err)
	}
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(accessLog(deps.Metrics))
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusNotFound, nil, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusMethodNotAllowed, nil, "Method not allowed")
	})

	users := newUsersHandler(deps.Users, deps.Tickets, deps.Cookies)
	projects := newProjectsHandler(deps.Projects)
	tickets := newTicketsHandler(deps.Tickets)

	throttle := func(next http.Handler) http.Handler { return next }
	if deps.Limiter != nil {
		var onReject []func()
		if deps.Metrics != nil {
			onReject = append(onReject, func() { deps.Metrics.IncRateLimitRejection("public") })
		}
		throttle = ratelimit.Middleware(deps.Limiter, ratelimit.ClientIP, onReject...)
	}

	r.Get("/health", healthHandler(deps.Store))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Exposition())
		r.Get("/metrics/summary", deps.Metrics.Handler())
	}

	authn := deps.Authenticator.Middleware
	ticketProjects := deps.Tickets
	anyRole := []membership.Role{membership.RoleAdmin, membership.RoleDeveloper, membership.RoleViewer}
	admin := auth.RequireProjectRole(ticketProjects, membership.RoleAdmin)
	editors := auth.RequireProjectRole(ticketProjects, membership.RoleAdmin, membership.RoleDeveloper)
	members := auth.RequireProjectRole(ticketProjects, anyRole...)

	r.Route("/user", func(ur chi.Router) {
		ur.With(throttle).Post("/signup", handle(users.Signup))
		ur.With(throttle).Post("/login", handle(users.Login))
		ur.With(throttle).Post("/refreshaccesstoken", handle(users.RefreshAccessToken))

		ur.Group(func(ar chi.Router) {
			ar.Use(authn)
			ar.Get("/logout", handle(users.Logout))
			ar.Put("/update", handle(users.Update))
			ar.Get("/data", handle(users.Data))
			ar.Get("/pendingrequests", handle(users.PendingRequests))
			ar.Get("/mytickets", handle(users.MyTickets))
			ar.Get("/myticketslength", handle(users.MyTicketCounts))
			ar.Get("/allemails", handle(users.AllEmails))
			ar.Get("/myprojects", handle(users.MyProjects))
		})

		ur.Get("/{userID}", handle(users.GetUser))
	})

	r.Route("/project", func(pr chi.Router) {
		pr.With(throttle).Put("/accept-invitation/{projectID}/{token}", handle(projects.AcceptInvitation))
		pr.With(throttle).Put("/reject-invitation/{projectID}/{token}", handle(projects.RejectInvitation))

		pr.Group(func(ar chi.Router) {
			ar.Use(authn)
			ar.Post("/create", handle(projects.Create))
			ar.Get("/{projectID}", handle(projects.Get))
			ar.With(admin).Put("/{projectID}", handle(projects.Update))
			ar.With(admin).Delete("/{projectID}", handle(projects.Delete))
			ar.With(admin).Put("/{projectID}/addmember", handle(projects.AddMember))
			ar.With(admin).Delete("/{projectID}/removemember", handle(projects.RemoveMember))
			ar.With(members).Get("/{projectID}/members", handle(projects.Members))
			ar.With(admin).Post("/{projectID}/reconcile", handle(projects.Reconcile))

			ar.With(editors).Post("/{projectID}/createticket", handle(tickets.Create))
			ar.Get("/{projectID}/tickets", handle(tickets.ListByProject))
			ar.Get("/{projectID}/mytickets", handle(tickets.ListMine))
		})
	})

	r.Route("/ticket", func(tr chi.Router) {
		tr.Use(authn)
		tr.Get("/{ticketID}", handle(tickets.Get))
		tr.With(editors).Put("/{ticketID}", handle(tickets.Update))
		tr.With(editors).Delete("/{ticketID}", handle(tickets.Delete))
		tr.With(members).Put("/{ticketID}/changestatus", handle(tickets.ChangeStatus))
	})

	return r
}

// healthHandler pings the store. A nil store reports ok.
func healthHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			if err := store.Ping(r.Context()); err != nil {
				slog.WarnContext(r.Context(), "health check failed", "error", err)
				respond.JSON(w, http.StatusServiceUnavailable,
					map[string]string{"status": "unavailable", "database": "disconnected"},
					"Database unreachable")
				return
			}
		}
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "connected"}, "OK")
	}
}

// caller returns the authenticated user. Routes using it sit behind the
// authenticator, so a missing user is a wiring error.
func caller(r *http.Request) (*auth.User, error) {
	u := auth.UserFromContext(r.Context())
	if u == nil {
		return nil, apperr.Unauthenticated("Unauthorized request: No token provided")
	}
	return u, nil
}
