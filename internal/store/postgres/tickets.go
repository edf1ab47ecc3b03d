package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alecgard/taskara/internal/ticket"
)

const ticketColumns = `id::text, title, description, priority, status, COALESCE(assignee::text, ''),
	project_id::text, due_date, created_at, updated_at`

func scanTicket(row pgx.Row) (*ticket.Ticket, error) {
	t := &ticket.Ticket{}
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Priority, &t.Status, &t.Assignee,
		&t.ProjectID, &t.DueDate, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) InsertTicket(ctx context.Context, t *ticket.Ticket) error {
	id := uuid.NewString()
	_, err := s.q(ctx).Exec(ctx,
		`INSERT INTO tickets (id, title, description, priority, status, assignee, project_id, due_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid, $7, $8, $9, $10)`,
		id, t.Title, t.Description, string(t.Priority), string(t.Status), t.Assignee, t.ProjectID, t.DueDate, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting ticket: %w", err)
	}
	t.ID = id
	return nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (*ticket.Ticket, error) {
	if !validID(id) {
		return nil, ticket.ErrNotFound
	}
	t, err := scanTicket(s.q(ctx).QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ticket.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting ticket: %w", err)
	}
	return t, nil
}

func (s *Store) UpdateTicket(ctx context.Context, t *ticket.Ticket) error {
	if !validID(t.ID) {
		return ticket.ErrNotFound
	}
	tag, err := s.q(ctx).Exec(ctx,
		`UPDATE tickets
		 SET title = $2, description = $3, priority = $4, status = $5, assignee = NULLIF($6, '')::uuid,
		     due_date = $7, updated_at = $8
		 WHERE id = $1`,
		t.ID, t.Title, t.Description, string(t.Priority), string(t.Status), t.Assignee, t.DueDate, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ticket.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteTicket(ctx context.Context, id string) error {
	if !validID(id) {
		return ticket.ErrNotFound
	}
	tag, err := s.q(ctx).Exec(ctx, `DELETE FROM tickets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ticket.ErrNotFound
	}
	return nil
}

// ticketWhere builds the WHERE clause and arguments for f.
func ticketWhere(f ticket.Filter) (string, []any) {
	var conds []string
	var args []any
	if f.ProjectID != "" {
		args = append(args, f.ProjectID)
		conds = append(conds, fmt.Sprintf("project_id::text = $%d", len(args)))
	}
	if f.Assignee != "" {
		args = append(args, f.Assignee)
		conds = append(conds, fmt.Sprintf("assignee::text = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) ListTickets(ctx context.Context, f ticket.Filter) ([]*ticket.Ticket, error) {
	where, args := ticketWhere(f)
	rows, err := s.q(ctx).Query(ctx,
		`SELECT `+ticketColumns+` FROM tickets`+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*ticket.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ticket row: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ticket rows: %w", err)
	}
	return tickets, nil
}
