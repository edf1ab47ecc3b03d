// Package mongodb stores users, projects and tickets in MongoDB.
package mongodb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alecgard/taskara/internal/project"
	"github.com/alecgard/taskara/internal/ticket"
	"github.com/alecgard/taskara/internal/user"
)

var (
	_ user.Repository    = (*Store)(nil)
	_ project.Repository = (*Store)(nil)
	_ ticket.Repository  = (*Store)(nil)
)

// Config holds connection settings.
type Config struct {
	URI      string
	Database string
	// Transactions enables multi-document transactions in WithinTx. It
	// requires a replica set or sharded cluster.
	Transactions bool
	// ConnectTimeout bounds the initial connect and ping.
	ConnectTimeout time.Duration
}

// Store implements the user, project and ticket repositories.
type Store struct {
	client       *mongo.Client
	users        *mongo.Collection
	projects     *mongo.Collection
	tickets      *mongo.Collection
	transactions bool
	pool         *poolGauge
}

// defaultMaxPoolSize is the driver's pool bound when the URI sets none.
const defaultMaxPoolSize = 100

// poolGauge tracks the driver's connection pool from its monitor events.
type poolGauge struct {
	max      int32
	open     atomic.Int32
	acquired atomic.Int32
}

func (g *poolGauge) observe(e *event.PoolEvent) {
	switch e.Type {
	case event.ConnectionCreated:
		g.open.Add(1)
	case event.ConnectionClosed:
		g.open.Add(-1)
	case event.GetSucceeded:
		g.acquired.Add(1)
	case event.ConnectionReturned:
		g.acquired.Add(-1)
	}
}

// PoolStats reports the pool bound and its current idle and acquired
// connections.
func (s *Store) PoolStats() (limit, idle, acquired int32) {
	open, inUse := s.pool.open.Load(), s.pool.acquired.Load()
	return s.pool.max, max(open-inUse, 0), inUse
}

// Open connects, pings and ensures indexes.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	gauge := &poolGauge{max: defaultMaxPoolSize}
	opts := options.Client().ApplyURI(cfg.URI).SetPoolMonitor(&event.PoolMonitor{Event: gauge.observe})
	if opts.MaxPoolSize != nil && *opts.MaxPoolSize > 0 {
		gauge.max = int32(*opts.MaxPoolSize)
	}
	client, err := mongo.Connect(cctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &Store{
		client:       client,
		users:        db.Collection("users"),
		projects:     db.Collection("projects"),
		tickets:      db.Collection("tickets"),
		transactions: cfg.Transactions,
		pool:         gauge,
	}
	if err := s.EnsureIndexes(cctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the indexes the queries rely on. It is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("creating users email index: %w", err)
	}
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "projects.projectID", Value: 1}},
	}); err != nil {
		return fmt.Errorf("creating users projects index: %w", err)
	}
	if _, err := s.tickets.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "projectID", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "assignee", Value: 1}, {Key: "createdAt", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("creating tickets indexes: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// WithinTx runs fn in a session transaction when transactions are enabled.
// Otherwise the writes in fn are applied sequentially and a failure part way
// through is repaired by reconciliation.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions {
		return fn(ctx)
	}
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// exists reports whether a document with the given _id is in coll.
func exists(ctx context.Context, coll *mongo.Collection, id any) (bool, error) {
	n, err := coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
