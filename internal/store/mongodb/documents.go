package mongodb

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/alecgard/taskara/internal/membership"
	"github.com/alecgard/taskara/internal/project"
	"github.com/alecgard/taskara/internal/ticket"
	"github.com/alecgard/taskara/internal/user"
)

// Field names follow the layout of existing deployments: project members and
// their invitation state live inline on the project document.

type refDoc struct {
	ProjectID primitive.ObjectID `bson:"projectID"`
	Role      string             `bson:"role"`
	Status    string             `bson:"status"`
}

type userDoc struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	Name             string             `bson:"name"`
	Email            string             `bson:"email"`
	Password         string             `bson:"password"`
	ProfilePic       string             `bson:"profilePic"`
	Projects         []refDoc           `bson:"projects"`
	RefreshTokenHash string             `bson:"refreshTokenHash,omitempty"`
	CreatedAt        time.Time          `bson:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt"`
}

type memberDoc struct {
	User                   primitive.ObjectID `bson:"user"`
	Role                   string             `bson:"role"`
	Status                 string             `bson:"status"`
	InvitationToken        string             `bson:"invitationToken,omitempty"`
	InvitationTokenExpires *time.Time         `bson:"invitationTokenExpires,omitempty"`
}

type projectDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Title         string             `bson:"title"`
	Description   string             `bson:"description"`
	CreatedBy     primitive.ObjectID `bson:"CreatedBy"`
	StartDate     time.Time          `bson:"startDate"`
	EndDate       *time.Time         `bson:"endDate,omitempty"`
	OverallStatus string             `bson:"overallStatus"`
	Members       []memberDoc        `bson:"Members"`
	CreatedAt     time.Time          `bson:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt"`
}

type ticketDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	Priority    string             `bson:"priority"`
	Status      string             `bson:"status"`
	Assignee    primitive.ObjectID `bson:"assignee"`
	ProjectID   primitive.ObjectID `bson:"projectID"`
	DueDate     time.Time          `bson:"DueDate"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

// oid parses a hex object id. Ids that are not valid hex cannot exist in the
// store, so callers treat !ok as not found.
func oid(id string) (primitive.ObjectID, bool) {
	o, err := primitive.ObjectIDFromHex(id)
	return o, err == nil
}

func oids(ids []string) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if o, ok := oid(id); ok {
			out = append(out, o)
		}
	}
	return out
}

func hexOrEmpty(o primitive.ObjectID) string {
	if o.IsZero() {
		return ""
	}
	return o.Hex()
}

func toRefDoc(r membership.Ref) refDoc {
	pid, _ := oid(r.ProjectID)
	return refDoc{ProjectID: pid, Role: string(r.Role), Status: string(r.Status)}
}

func toUserDoc(u *user.User) userDoc {
	d := userDoc{
		Name:             u.Name,
		Email:            u.Email,
		Password:         u.PasswordHash,
		ProfilePic:       u.Avatar,
		Projects:         make([]refDoc, 0, len(u.Projects)),
		RefreshTokenHash: u.RefreshTokenHash,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
	d.ID, _ = oid(u.ID)
	for _, r := range u.Projects {
		d.Projects = append(d.Projects, toRefDoc(r))
	}
	return d
}

func (d userDoc) toUser() *user.User {
	u := &user.User{
		ID:               d.ID.Hex(),
		Name:             d.Name,
		Email:            d.Email,
		PasswordHash:     d.Password,
		Avatar:           d.ProfilePic,
		Projects:         make([]membership.Ref, 0, len(d.Projects)),
		RefreshTokenHash: d.RefreshTokenHash,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	for _, r := range d.Projects {
		u.Projects = append(u.Projects, membership.Ref{
			ProjectID: r.ProjectID.Hex(),
			Role:      membership.Role(r.Role),
			Status:    membership.Status(r.Status),
		})
	}
	return u
}

func toMemberDoc(m project.Member) memberDoc {
	uid, _ := oid(m.UserID)
	return memberDoc{
		User:                   uid,
		Role:                   string(m.Role),
		Status:                 string(m.Status),
		InvitationToken:        m.InvitationTokenHash,
		InvitationTokenExpires: m.InvitationTokenExpiry,
	}
}

func (d memberDoc) toMember() project.Member {
	return project.Member{
		UserID:                d.User.Hex(),
		Role:                  membership.Role(d.Role),
		Status:                membership.Status(d.Status),
		InvitationTokenHash:   d.InvitationToken,
		InvitationTokenExpiry: d.InvitationTokenExpires,
	}
}

func toProjectDoc(p *project.Project) projectDoc {
	d := projectDoc{
		Title:         p.Title,
		Description:   p.Description,
		StartDate:     p.StartDate,
		EndDate:       p.EndDate,
		OverallStatus: string(p.OverallStatus),
		Members:       make([]memberDoc, 0, len(p.Members)),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	d.ID, _ = oid(p.ID)
	d.CreatedBy, _ = oid(p.CreatedBy)
	for _, m := range p.Members {
		d.Members = append(d.Members, toMemberDoc(m))
	}
	return d
}

func (d projectDoc) toProject() *project.Project {
	p := &project.Project{
		ID:            d.ID.Hex(),
		Title:         d.Title,
		Description:   d.Description,
		CreatedBy:     hexOrEmpty(d.CreatedBy),
		StartDate:     d.StartDate,
		EndDate:       d.EndDate,
		OverallStatus: project.OverallStatus(d.OverallStatus),
		Members:       make([]project.Member, 0, len(d.Members)),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	for _, m := range d.Members {
		p.Members = append(p.Members, m.toMember())
	}
	return p
}

func toTicketDoc(t *ticket.Ticket) ticketDoc {
	d := ticketDoc{
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		DueDate:     t.DueDate,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	d.ID, _ = oid(t.ID)
	d.Assignee, _ = oid(t.Assignee)
	d.ProjectID, _ = oid(t.ProjectID)
	return d
}

func (d ticketDoc) toTicket() *ticket.Ticket {
	return &ticket.Ticket{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Description: d.Description,
		Priority:    ticket.Priority(d.Priority),
		Status:      ticket.Status(d.Status),
		Assignee:    hexOrEmpty(d.Assignee),
		ProjectID:   hexOrEmpty(d.ProjectID),
		DueDate:     d.DueDate,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
