package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/taskara/internal/respond"
	"github.com/alecgard/taskara/internal/ticket"
)

type ticketsHandler struct {
	tickets *ticket.Service
}

func newTicketsHandler(tickets *ticket.Service) *ticketsHandler {
	return &ticketsHandler{tickets: tickets}
}

// Create handles POST /project/{projectID}/createticket.
func (h *ticketsHandler) Create(w http.ResponseWriter, r *http.Request) error {
	pid := chi.URLParam(r, "projectID")
	var req ticket.CreateInput
	if err := respond.Decode(r, &req); err != nil {
		return err
	}
	t, err := h.tickets.Create(r.Context(), pid, req)
	if err != nil {
		return err
	}
	auditLog(r, "ticket.create", "ticket", t.ID, "assignee", t.Assignee)
	respond.JSON(w, http.StatusCreated, t, "Ticket created successfully")
	return nil
}

// ListByProject handles GET /project/{projectID}/tickets.
func (h *ticketsHandler) ListByProject(w http.ResponseWriter, r *http.Request) error {
	list, err := h.tickets.ListByProject(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		return err
	}
	respond.JSON(w, http.StatusOK, list, "Tickets of project fetched successfully")
	return nil
}

// ListMine handles GET /project/{projectID}/mytickets.
func (h *ticketsHandler) ListMine(w http.ResponseWriter, r *http.Request) error {
	u, err := caller(r)
	if err != nil {
		return err
	}
	list, err := h.tickets.ListMine(r.Context(), chi.URLParam(r, "projectID"), u.ID)
	if err != nil {
		return err
	}
	respond.JSON(w, http.StatusOK, list, "Tickets of user in project fetched successfully")
	return nil
}

// Get handles GET /ticket/{ticketID}.
func (h *ticketsHandler) Get(w http.ResponseWriter, r *http.Request) error {
	d, err := h.tickets.Detail(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		return err
	}
	respond.JSON(w, http.StatusOK, d, "Ticket fetched successfully")
	return nil
}

// Update handles PUT /ticket/{ticketID}.
func (h *ticketsHandler) Update(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "ticketID")
	var req ticket.UpdateInput
	if err := respond.Decode(r, &req); err != nil {
		return err
	}
	t, err := h.tickets.Update(r.Context(), id, req)
	if err != nil {
		return err
	}
	auditLog(r, "ticket.update", "ticket", id)
	respond.JSON(w, http.StatusOK, t, "Ticket updated successfully")
	return nil
}

// Delete handles DELETE /ticket/{ticketID}.
func (h *ticketsHandler) Delete(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "ticketID")
	if err := h.tickets.Delete(r.Context(), id); err != nil {
		return err
	}
	auditLog(r, "ticket.delete", "ticket", id)
	respond.JSON(w, http.StatusOK, nil, "Ticket deleted successfully")
	return nil
}

// ChangeStatus handles PUT /ticket/{ticketID}/changestatus.
func (h *ticketsHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) error {
	u, err := caller(r)
	if err != nil {
		return err
	}
	id := chi.URLParam(r, "ticketID")
	var req struct {
		Status string `json:"status"`
	}
	if err := respond.Decode(r, &req); err != nil {
		return err
	}
	t, err := h.tickets.ChangeStatus(r.Context(), id, u.ID, req.Status)
	if err != nil {
		return err
	}
	auditLog(r, "ticket.status", "ticket", id, "status", req.Status)
	respond.JSON(w, http.StatusOK, t, "Ticket status updated successfully")
	return nil
}
