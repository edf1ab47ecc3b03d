package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alecgard/taskara/internal/membership"
	"github.com/alecgard/taskara/internal/user"
)

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	doc := toUserDoc(u)
	doc.ID = primitive.NewObjectID()
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.ErrEmailTaken
		}
		return fmt.Errorf("creating user: %w", err)
	}
	u.ID = doc.ID.Hex()
	return nil
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*user.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return doc.toUser(), nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*user.User, error) {
	uid, ok := oid(id)
	if !ok {
		return nil, user.ErrNotFound
	}
	return s.findUser(ctx, bson.M{"_id": uid})
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) ([]*user.User, error) {
	cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": oids(ids)}})
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding users: %w", err)
	}
	out := make([]*user.User, len(docs))
	for i, d := range docs {
		out[i] = d.toUser()
	}
	return out, nil
}

func (s *Store) UpdateProfile(ctx context.Context, u *user.User) error {
	uid, ok := oid(u.ID)
	if !ok {
		return user.ErrNotFound
	}
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": uid}, bson.M{"$set": bson.M{
		"name":       u.Name,
		"email":      u.Email,
		"password":   u.PasswordHash,
		"profilePic": u.Avatar,
		"updatedAt":  u.UpdatedAt,
	}})
	if mongo.IsDuplicateKeyError(err) {
		return user.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (s *Store) SetRefreshTokenHash(ctx context.Context, id, hash string) error {
	uid, ok := oid(id)
	if !ok {
		return user.ErrNotFound
	}
	update := bson.M{"$set": bson.M{"refreshTokenHash": hash}}
	if hash == "" {
		update = bson.M{"$unset": bson.M{"refreshTokenHash": ""}}
	}
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": uid}, update)
	if err != nil {
		return fmt.Errorf("storing refresh token: %w", err)
	}
	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (s *Store) ListEmails(ctx context.Context) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"email": 1}).
		SetSort(bson.D{{Key: "email", Value: 1}})
	cur, err := s.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing emails: %w", err)
	}
	var docs []struct {
		Email string `bson:"email"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding emails: %w", err)
	}
	emails := make([]string, len(docs))
	for i, d := range docs {
		emails[i] = d.Email
	}
	return emails, nil
}

// PutUserProject replaces the mirror entry for ref.ProjectID in place, or
// appends it when the user has none.
func (s *Store) PutUserProject(ctx context.Context, userID string, ref membership.Ref) error {
	uid, ok := oid(userID)
	if !ok {
		return user.ErrNotFound
	}
	doc := toRefDoc(ref)

	for attempt := 0; attempt < 2; attempt++ {
		res, err := s.users.UpdateOne(ctx,
			bson.M{"_id": uid, "projects.projectID": doc.ProjectID},
			bson.M{"$set": bson.M{"projects.$": doc}},
		)
		if err != nil {
			return fmt.Errorf("updating user project: %w", err)
		}
		if res.MatchedCount > 0 {
			return nil
		}

		res, err = s.users.UpdateOne(ctx,
			bson.M{"_id": uid, "projects.projectID": bson.M{"$ne": doc.ProjectID}},
			bson.M{"$push": bson.M{"projects": doc}},
		)
		if err != nil {
			return fmt.Errorf("adding user project: %w", err)
		}
		if res.MatchedCount > 0 {
			return nil
		}

		found, err := exists(ctx, s.users, uid)
		if err != nil {
			return fmt.Errorf("checking user: %w", err)
		}
		if !found {
			return user.ErrNotFound
		}
		// A concurrent writer added the entry between the two updates.
	}
	return fmt.Errorf("updating user project: concurrent modification")
}

func (s *Store) RemoveUserProject(ctx context.Context, projectID string, userIDs ...string) error {
	pid, ok := oid(projectID)
	if !ok || len(userIDs) == 0 {
		return nil
	}
	_, err := s.users.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": oids(userIDs)}},
		bson.M{"$pull": bson.M{"projects": bson.M{"projectID": pid}}},
	)
	if err != nil {
		return fmt.Errorf("removing user projects: %w", err)
	}
	return nil
}

func (s *Store) PruneUserProjects(ctx context.Context, projectID string, keep []string) (int64, error) {
	pid, ok := oid(projectID)
	if !ok {
		return 0, nil
	}
	res, err := s.users.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$nin": oids(keep)}, "projects.projectID": pid},
		bson.M{"$pull": bson.M{"projects": bson.M{"projectID": pid}}},
	)
	if err != nil {
		return 0, fmt.Errorf("pruning user projects: %w", err)
	}
	return res.ModifiedCount, nil
}
