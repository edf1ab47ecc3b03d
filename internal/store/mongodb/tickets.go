package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alecgard/taskara/internal/ticket"
)

func (s *Store) InsertTicket(ctx context.Context, t *ticket.Ticket) error {
	doc := toTicketDoc(t)
	doc.ID = primitive.NewObjectID()
	if _, err := s.tickets.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("inserting ticket: %w", err)
	}
	t.ID = doc.ID.Hex()
	return nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (*ticket.Ticket, error) {
	tid, ok := oid(id)
	if !ok {
		return nil, ticket.ErrNotFound
	}
	var doc ticketDoc
	err := s.tickets.FindOne(ctx, bson.M{"_id": tid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ticket.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting ticket: %w", err)
	}
	return doc.toTicket(), nil
}

func (s *Store) UpdateTicket(ctx context.Context, t *ticket.Ticket) error {
	tid, ok := oid(t.ID)
	if !ok {
		return ticket.ErrNotFound
	}
	doc := toTicketDoc(t)
	doc.ID = tid
	res, err := s.tickets.ReplaceOne(ctx, bson.M{"_id": tid}, doc)
	if err != nil {
		return fmt.Errorf("updating ticket: %w", err)
	}
	if res.MatchedCount == 0 {
		return ticket.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteTicket(ctx context.Context, id string) error {
	tid, ok := oid(id)
	if !ok {
		return ticket.ErrNotFound
	}
	res, err := s.tickets.DeleteOne(ctx, bson.M{"_id": tid})
	if err != nil {
		return fmt.Errorf("deleting ticket: %w", err)
	}
	if res.DeletedCount == 0 {
		return ticket.ErrNotFound
	}
	return nil
}

func ticketFilter(f ticket.Filter) bson.M {
	filter := bson.M{}
	if f.ProjectID != "" {
		pid, _ := oid(f.ProjectID)
		filter["projectID"] = pid
	}
	if f.Assignee != "" {
		uid, _ := oid(f.Assignee)
		filter["assignee"] = uid
	}
	return filter
}

func (s *Store) ListTickets(ctx context.Context, f ticket.Filter) ([]*ticket.Ticket, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.tickets.Find(ctx, ticketFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("listing tickets: %w", err)
	}
	var docs []ticketDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding tickets: %w", err)
	}
	out := make([]*ticket.Ticket, len(docs))
	for i, d := range docs {
		out[i] = d.toTicket()
	}
	return out, nil
}
