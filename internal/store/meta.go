package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Meta keys in use.
const (
	// MetaKBLastRefresh stores the RFC3339 time of the last knowledge base
	// auto-refresh.
	MetaKBLastRefresh = "kb_last_refresh"
)

// MetaGet reads a bookkeeping value.
func (s *Store) MetaGet(ctx context.Context, key string) (string, bool, error) {
	var entry MetaEntry
	err := s.meta().FindOne(ctx, bson.M{keyID: key}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

// MetaSet writes a bookkeeping value.
func (s *Store) MetaSet(ctx context.Context, key, value string) error {
	entry := MetaEntry{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.meta().ReplaceOne(ctx, bson.M{keyID: key}, entry,
		options.Replace().SetUpsert(true))
	return err
}
