package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alecgard/taskara/internal/membership"
	"github.com/alecgard/taskara/internal/user"
)

const userColumns = `id::text, name, email, password_hash, avatar, projects, refresh_token_hash, created_at, updated_at`

func scanUser(row pgx.Row) (*user.User, error) {
	u := &user.User{}
	var projects []byte
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Avatar, &projects, &u.RefreshTokenHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(projects, &u.Projects); err != nil {
		return nil, fmt.Errorf("decoding user projects: %w", err)
	}
	if u.Projects == nil {
		u.Projects = []membership.Ref{}
	}
	return u, nil
}

func marshalRefs(refs []membership.Ref) ([]byte, error) {
	if refs == nil {
		refs = []membership.Ref{}
	}
	return json.Marshal(refs)
}

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	projects, err := marshalRefs(u.Projects)
	if err != nil {
		return err
	}
	id := uuid.NewString()
	_, err = s.q(ctx).Exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, avatar, projects, refresh_token_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, u.Name, u.Email, u.PasswordHash, u.Avatar, projects, u.RefreshTokenHash, u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return user.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	u.ID = id
	return nil
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*user.User, error) {
	u, err := scanUser(s.q(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*user.User, error) {
	if !validID(id) {
		return nil, user.ErrNotFound
	}
	return s.getUser(ctx, `id = $1`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return s.getUser(ctx, `email = $1`, email)
}

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) ([]*user.User, error) {
	rows, err := s.q(ctx).Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE id::text = ANY($1) ORDER BY created_at, id`,
		validIDs(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return users, nil
}

func (s *Store) UpdateProfile(ctx context.Context, u *user.User) error {
	if !validID(u.ID) {
		return user.ErrNotFound
	}
	tag, err := s.q(ctx).Exec(ctx,
		`UPDATE users SET name = $2, email = $3, password_hash = $4, avatar = $5, updated_at = $6
		 WHERE id = $1`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Avatar, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return user.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (s *Store) SetRefreshTokenHash(ctx context.Context, id, hash string) error {
	if !validID(id) {
		return user.ErrNotFound
	}
	tag, err := s.q(ctx).Exec(ctx, `UPDATE users SET refresh_token_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("storing refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (s *Store) ListEmails(ctx context.Context) ([]string, error) {
	rows, err := s.q(ctx).Query(ctx, `SELECT email FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("listing emails: %w", err)
	}
	emails, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning emails: %w", err)
	}
	return emails, nil
}

// PutUserProject locks the user row and rewrites its mirror with ref upserted.
func (s *Store) PutUserProject(ctx context.Context, userID string, ref membership.Ref) error {
	if !validID(userID) {
		return user.ErrNotFound
	}
	return s.WithinTx(ctx, func(ctx context.Context) error {
		var raw []byte
		err := s.q(ctx).QueryRow(ctx, `SELECT projects FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			return user.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("locking user: %w", err)
		}
		var refs []membership.Ref
		if err := json.Unmarshal(raw, &refs); err != nil {
			return fmt.Errorf("decoding user projects: %w", err)
		}

		i := slices.IndexFunc(refs, func(r membership.Ref) bool { return r.ProjectID == ref.ProjectID })
		if i >= 0 {
			refs[i] = ref
		} else {
			refs = append(refs, ref)
		}

		out, err := marshalRefs(refs)
		if err != nil {
			return err
		}
		if _, err := s.q(ctx).Exec(ctx, `UPDATE users SET projects = $2 WHERE id = $1`, userID, out); err != nil {
			return fmt.Errorf("updating user projects: %w", err)
		}
		return nil
	})
}

// dropProjectSQL rebuilds a projects array without entries for $1.
const dropProjectSQL = `projects = COALESCE(
	(SELECT jsonb_agg(e) FROM jsonb_array_elements(projects) e WHERE e->>'projectID' <> $1),
	'[]'::jsonb)`

func (s *Store) RemoveUserProject(ctx context.Context, projectID string, userIDs ...string) error {
	ids := validIDs(userIDs)
	if len(ids) == 0 {
		return nil
	}
	_, err := s.q(ctx).Exec(ctx,
		`UPDATE users SET `+dropProjectSQL+` WHERE id::text = ANY($2)`,
		projectID, ids,
	)
	if err != nil {
		return fmt.Errorf("removing user projects: %w", err)
	}
	return nil
}

func (s *Store) PruneUserProjects(ctx context.Context, projectID string, keep []string) (int64, error) {
	tag, err := s.q(ctx).Exec(ctx,
		`UPDATE users SET `+dropProjectSQL+`
		 WHERE projects @> jsonb_build_array(jsonb_build_object('projectID', $1::text))
		   AND NOT (id::text = ANY($2))`,
		projectID, validIDs(keep),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning user projects: %w", err)
	}
	return tag.RowsAffected(), nil
}
