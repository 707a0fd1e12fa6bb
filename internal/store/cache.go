package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CacheGet looks up a durable embedding-cache row.
func (s *Store) CacheGet(ctx context.Context, provider, model, providerKey, hash string) ([]float32, bool, error) {
	id := CacheID(provider, model, providerKey, hash)

	var entry CacheEntry
	err := s.cache().FindOne(ctx, bson.M{keyID: id}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry.Embedding, true, nil
}

// CachePut stores an embedding-cache row, replacing any previous one under
// the same composite key.
func (s *Store) CachePut(ctx context.Context, entry CacheEntry) error {
	_, err := s.cache().ReplaceOne(ctx, bson.M{keyID: entry.ID}, entry,
		options.Replace().SetUpsert(true))
	return err
}
