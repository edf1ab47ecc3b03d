package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alecgard/taskara/internal/membership"
	"github.com/alecgard/taskara/internal/project"
)

func (s *Store) InsertProject(ctx context.Context, p *project.Project) error {
	doc := toProjectDoc(p)
	doc.ID = primitive.NewObjectID()
	if _, err := s.projects.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}
	p.ID = doc.ID.Hex()
	return nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	pid, ok := oid(id)
	if !ok {
		return nil, project.ErrNotFound
	}
	var doc projectDoc
	err := s.projects.FindOne(ctx, bson.M{"_id": pid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, project.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return doc.toProject(), nil
}

func (s *Store) ListProjectIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.projects.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	var docs []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding projects: %w", err)
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID.Hex()
	}
	return ids, nil
}

func (s *Store) UpdateProjectFields(ctx context.Context, p *project.Project) error {
	pid, ok := oid(p.ID)
	if !ok {
		return project.ErrNotFound
	}
	set := bson.M{
		"title":         p.Title,
		"description":   p.Description,
		"overallStatus": string(p.OverallStatus),
		"updatedAt":     p.UpdatedAt,
	}
	if p.EndDate != nil {
		set["endDate"] = *p.EndDate
	}
	res, err := s.projects.UpdateOne(ctx, bson.M{"_id": pid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	if res.MatchedCount == 0 {
		return project.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) (*project.Project, error) {
	pid, ok := oid(id)
	if !ok {
		return nil, project.ErrNotFound
	}
	var doc projectDoc
	err := s.projects.FindOneAndDelete(ctx, bson.M{"_id": pid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, project.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("deleting project: %w", err)
	}
	return doc.toProject(), nil
}

func (s *Store) DeleteTicketsByProject(ctx context.Context, projectID string) (int64, error) {
	pid, ok := oid(projectID)
	if !ok {
		return 0, nil
	}
	res, err := s.tickets.DeleteMany(ctx, bson.M{"projectID": pid})
	if err != nil {
		return 0, fmt.Errorf("deleting project tickets: %w", err)
	}
	return res.DeletedCount, nil
}

// AddMember first tries to overwrite a rejected record for the user, then
// pushes a new record guarded on the user not already being listed.
func (s *Store) AddMember(ctx context.Context, projectID string, m project.Member) error {
	pid, ok := oid(projectID)
	if !ok {
		return project.ErrNotFound
	}
	doc := toMemberDoc(m)
	now := time.Now().UTC()

	res, err := s.projects.UpdateOne(ctx,
		bson.M{"_id": pid, "Members": bson.M{"$elemMatch": bson.M{
			"user":   doc.User,
			"status": string(membership.StatusRejected),
		}}},
		bson.M{"$set": bson.M{"Members.$": doc, "updatedAt": now}},
	)
	if err != nil {
		return fmt.Errorf("replacing rejected member: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	res, err = s.projects.UpdateOne(ctx,
		bson.M{"_id": pid, "Members.user": bson.M{"$ne": doc.User}},
		bson.M{"$push": bson.M{"Members": doc}, "$set": bson.M{"updatedAt": now}},
	)
	if err != nil {
		return fmt.Errorf("adding member: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	found, err := exists(ctx, s.projects, pid)
	if err != nil {
		return fmt.Errorf("checking project: %w", err)
	}
	if !found {
		return project.ErrNotFound
	}
	return project.ErrAlreadyMember
}

// RedeemInvitation matches and transitions the member in a single
// findOneAndUpdate, so a token can be redeemed at most once.
func (s *Store) RedeemInvitation(ctx context.Context, projectID, tokenHash string, now time.Time, status membership.Status) (*project.Member, error) {
	pid, ok := oid(projectID)
	if !ok {
		return nil, project.ErrNotFound
	}
	filter := bson.M{
		"_id": pid,
		"Members": bson.M{"$elemMatch": bson.M{
			"invitationToken":        tokenHash,
			"status":                 string(membership.StatusUnseen),
			"invitationTokenExpires": bson.M{"$gt": now},
		}},
	}
	update := bson.M{
		"$set": bson.M{
			"Members.$.status": string(status),
			"updatedAt":        now,
		},
		"$unset": bson.M{
			"Members.$.invitationToken":        "",
			"Members.$.invitationTokenExpires": "",
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var doc projectDoc
	err := s.projects.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		found, err := exists(ctx, s.projects, pid)
		if err != nil {
			return nil, fmt.Errorf("checking project: %w", err)
		}
		if !found {
			return nil, project.ErrNotFound
		}
		return nil, project.ErrInvitationInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("redeeming invitation: %w", err)
	}

	for _, md := range doc.Members {
		if md.InvitationToken == tokenHash {
			m := md.toMember()
			m.Status = status
			m.InvitationTokenHash = ""
			m.InvitationTokenExpiry = nil
			return &m, nil
		}
	}
	return nil, project.ErrInvitationInvalid
}

func (s *Store) RemoveMember(ctx context.Context, projectID, userID string) error {
	pid, ok := oid(projectID)
	if !ok {
		return project.ErrNotFound
	}
	uid, ok := oid(userID)
	if !ok {
		return project.ErrMemberNotFound
	}
	res, err := s.projects.UpdateOne(ctx,
		bson.M{"_id": pid, "Members.user": uid},
		bson.M{
			"$pull": bson.M{"Members": bson.M{"user": uid}},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("removing member: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	found, err := exists(ctx, s.projects, pid)
	if err != nil {
		return fmt.Errorf("checking project: %w", err)
	}
	if !found {
		return project.ErrNotFound
	}
	return project.ErrMemberNotFound
}
