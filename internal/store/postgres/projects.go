package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alecgard/taskara/internal/membership"
	"github.com/alecgard/taskara/internal/project"
)

// memberRecord is the stored form of a member. Unlike project.Member it keeps
// the invitation fields.
type memberRecord struct {
	UserID          string            `json:"user"`
	Role            membership.Role   `json:"role"`
	Status          membership.Status `json:"status"`
	InvitationToken string            `json:"invitationToken,omitempty"`
	InvitationExp   *time.Time        `json:"invitationTokenExpires,omitempty"`
}

func encodeMembers(members []project.Member) ([]byte, error) {
	recs := make([]memberRecord, len(members))
	for i, m := range members {
		recs[i] = memberRecord{
			UserID:          m.UserID,
			Role:            m.Role,
			Status:          m.Status,
			InvitationToken: m.InvitationTokenHash,
			InvitationExp:   m.InvitationTokenExpiry,
		}
	}
	return json.Marshal(recs)
}

func decodeMembers(raw []byte) ([]project.Member, error) {
	var recs []memberRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("decoding members: %w", err)
	}
	out := make([]project.Member, len(recs))
	for i, r := range recs {
		out[i] = project.Member{
			UserID:                r.UserID,
			Role:                  r.Role,
			Status:                r.Status,
			InvitationTokenHash:   r.InvitationToken,
			InvitationTokenExpiry: r.InvitationExp,
		}
	}
	return out, nil
}

const projectColumns = `id::text, title, description, COALESCE(created_by::text, ''), start_date, end_date,
	overall_status, members, created_at, updated_at`

func scanProject(row pgx.Row) (*project.Project, error) {
	p := &project.Project{}
	var members []byte
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.CreatedBy, &p.StartDate, &p.EndDate,
		&p.OverallStatus, &members, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.Members, err = decodeMembers(members); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) InsertProject(ctx context.Context, p *project.Project) error {
	members, err := encodeMembers(p.Members)
	if err != nil {
		return err
	}
	id := uuid.NewString()
	_, err = s.q(ctx).Exec(ctx,
		`INSERT INTO projects (id, title, description, created_by, start_date, end_date, overall_status, members, created_at, updated_at)
		 VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6, $7, $8, $9, $10)`,
		id, p.Title, p.Description, p.CreatedBy, p.StartDate, p.EndDate, string(p.OverallStatus), members, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}
	p.ID = id
	return nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	if !validID(id) {
		return nil, project.ErrNotFound
	}
	p, err := scanProject(s.q(ctx).QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, project.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return p, nil
}

func (s *Store) ListProjectIDs(ctx context.Context) ([]string, error) {
	rows, err := s.q(ctx).Query(ctx, `SELECT id::text FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning project ids: %w", err)
	}
	return ids, nil
}

func (s *Store) UpdateProjectFields(ctx context.Context, p *project.Project) error {
	if !validID(p.ID) {
		return project.ErrNotFound
	}
	tag, err := s.q(ctx).Exec(ctx,
		`UPDATE projects
		 SET title = $2, description = $3, end_date = COALESCE($4, end_date), overall_status = $5, updated_at = $6
		 WHERE id = $1`,
		p.ID, p.Title, p.Description, p.EndDate, string(p.OverallStatus), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return project.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) (*project.Project, error) {
	if !validID(id) {
		return nil, project.ErrNotFound
	}
	p, err := scanProject(s.q(ctx).QueryRow(ctx, `DELETE FROM projects WHERE id = $1 RETURNING `+projectColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, project.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("deleting project: %w", err)
	}
	return p, nil
}

func (s *Store) DeleteTicketsByProject(ctx context.Context, projectID string) (int64, error) {
	if !validID(projectID) {
		return 0, nil
	}
	tag, err := s.q(ctx).Exec(ctx, `DELETE FROM tickets WHERE project_id = $1`, projectID)
	if err != nil {
		return 0, fmt.Errorf("deleting project tickets: %w", err)
	}
	return tag.RowsAffected(), nil
}

// mutateMembers locks the project row, applies fn to its member list and
// writes the result back.
func (s *Store) mutateMembers(ctx context.Context, projectID string, now time.Time, fn func([]project.Member) ([]project.Member, error)) error {
	if !validID(projectID) {
		return project.ErrNotFound
	}
	return s.WithinTx(ctx, func(ctx context.Context) error {
		var raw []byte
		err := s.q(ctx).QueryRow(ctx, `SELECT members FROM projects WHERE id = $1 FOR UPDATE`, projectID).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			return project.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("locking project: %w", err)
		}
		members, err := decodeMembers(raw)
		if err != nil {
			return err
		}
		if members, err = fn(members); err != nil {
			return err
		}
		out, err := encodeMembers(members)
		if err != nil {
			return err
		}
		if _, err := s.q(ctx).Exec(ctx,
			`UPDATE projects SET members = $2, updated_at = $3 WHERE id = $1`,
			projectID, out, now,
		); err != nil {
			return fmt.Errorf("updating members: %w", err)
		}
		return nil
	})
}

func (s *Store) AddMember(ctx context.Context, projectID string, m project.Member) error {
	return s.mutateMembers(ctx, projectID, time.Now().UTC(), func(members []project.Member) ([]project.Member, error) {
		for i, cur := range members {
			if cur.UserID != m.UserID {
				continue
			}
			if cur.Status.Active() {
				return nil, project.ErrAlreadyMember
			}
			members[i] = m
			return members, nil
		}
		return append(members, m), nil
	})
}

func (s *Store) RedeemInvitation(ctx context.Context, projectID, tokenHash string, now time.Time, status membership.Status) (*project.Member, error) {
	var redeemed *project.Member
	err := s.mutateMembers(ctx, projectID, now, func(members []project.Member) ([]project.Member, error) {
		for i := range members {
			m := &members[i]
			if m.Status != membership.StatusUnseen || m.InvitationTokenHash != tokenHash {
				continue
			}
			if m.InvitationTokenExpiry == nil || !m.InvitationTokenExpiry.After(now) {
				continue
			}
			m.Status = status
			m.InvitationTokenHash = ""
			m.InvitationTokenExpiry = nil
			out := *m
			redeemed = &out
			return members, nil
		}
		return nil, project.ErrInvitationInvalid
	})
	if err != nil {
		return nil, err
	}
	return redeemed, nil
}

func (s *Store) RemoveMember(ctx context.Context, projectID, userID string) error {
	return s.mutateMembers(ctx, projectID, time.Now().UTC(), func(members []project.Member) ([]project.Member, error) {
		before := len(members)
		members = slices.DeleteFunc(members, func(m project.Member) bool { return m.UserID == userID })
		if len(members) == before {
			return nil, project.ErrMemberNotFound
		}
		return members, nil
	})
}
