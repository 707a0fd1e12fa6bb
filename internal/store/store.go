package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/openclaw/recall/internal/logging"
)

// Options configure the MongoDB store.
type Options struct {
	// URI is the MongoDB connection string.
	URI string
	// Database is the database name (default: openclaw).
	Database string
	// CollectionPrefix is prepended to every collection name.
	CollectionPrefix string
	// MaxPoolSize caps the driver connection pool (default: 10).
	MaxPoolSize int
	// MinPoolSize keeps warm connections around (default: 2).
	MinPoolSize int
	// ConnectTimeout bounds dialing and the initial ping (default: 5s).
	ConnectTimeout time.Duration
	// ServerSelectionTimeout bounds topology discovery (default: 30s).
	ServerSelectionTimeout time.Duration
	// Logger receives store diagnostics; nil uses slog.Default.
	Logger *slog.Logger
}

func (o *Options) withDefaults() {
	if o.Database == "" {
		o.Database = "openclaw"
	}
	if o.MaxPoolSize <= 0 {
		o.MaxPoolSize = 10
	}
	if o.MinPoolSize <= 0 {
		o.MinPoolSize = 2
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.ServerSelectionTimeout <= 0 {
		o.ServerSelectionTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// CollectionNames carries the prefixed names of the logical collections so
// other components can address them without knowing the prefix rule.
type CollectionNames struct {
	Chunks     string
	Files      string
	KBDocs     string
	KBChunks   string
	Structured string
	Cache      string
	Meta       string
}

// Store wraps a MongoDB client with the collection handles and the write
// paths of the memory subsystem. All methods are safe for concurrent use.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	prefix string
	logger *slog.Logger

	// Latched on the first server error proving transactions are
	// unsupported (standalone deployment). Once set, per-file writes use
	// the sequential fallback for the rest of the process.
	txnUnsupported atomic.Bool
}

// Open connects to MongoDB and verifies the deployment with a bounded ping.
// On ping failure the client is torn down before returning.
func Open(ctx context.Context, opts Options) (*Store, error) {
	opts.withDefaults()
	logger := logging.ForSubsystem(opts.Logger, "store")

	clientOpts := options.Client().
		ApplyURI(opts.URI).
		SetMaxPoolSize(uint64(opts.MaxPoolSize)).
		SetMinPoolSize(uint64(opts.MinPoolSize)).
		SetConnectTimeout(opts.ConnectTimeout).
		SetServerSelectionTimeout(opts.ServerSelectionTimeout)

	logger.Debug("connecting to mongodb",
		slog.String("uri", logging.RedactURI(opts.URI)),
		slog.String("database", opts.Database))

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &Store{
		client: client,
		db:     client.Database(opts.Database),
		prefix: opts.CollectionPrefix,
		logger: logger,
	}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping probes the deployment.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Client exposes the underlying driver client (change streams need it).
func (s *Store) Client() *mongo.Client { return s.client }

// Names returns the prefixed collection names.
func (s *Store) Names() CollectionNames {
	return CollectionNames{
		Chunks:     s.prefix + CollChunks,
		Files:      s.prefix + CollFiles,
		KBDocs:     s.prefix + CollKBDocs,
		KBChunks:   s.prefix + CollKBChunks,
		Structured: s.prefix + CollStructured,
		Cache:      s.prefix + CollCache,
		Meta:       s.prefix + CollMeta,
	}
}

// Collection returns a handle for a prefixed collection by its base name.
func (s *Store) Collection(base string) *mongo.Collection {
	return s.db.Collection(s.prefix + base)
}

func (s *Store) chunks() *mongo.Collection     { return s.Collection(CollChunks) }
func (s *Store) files() *mongo.Collection      { return s.Collection(CollFiles) }
func (s *Store) kbDocs() *mongo.Collection     { return s.Collection(CollKBDocs) }
func (s *Store) kbChunks() *mongo.Collection   { return s.Collection(CollKBChunks) }
func (s *Store) structured() *mongo.Collection { return s.Collection(CollStructured) }
func (s *Store) cache() *mongo.Collection      { return s.Collection(CollCache) }
func (s *Store) meta() *mongo.Collection       { return s.Collection(CollMeta) }

// Aggregate runs a pipeline on a named collection and decodes all results
// into out. The search dispatcher issues its tiers through this.
func (s *Store) Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline, out any) error {
	cur, err := s.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}

// FindIDs returns up to limit _id values matching filter on a named
// collection. A limit of zero means no cap.
func (s *Store) FindIDs(ctx context.Context, collection string, filter any, limit int) ([]string, error) {
	findOpts := options.Find().SetProjection(bson.D{{Key: keyID, Value: 1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}

	cur, err := s.db.Collection(collection).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}
