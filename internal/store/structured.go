package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UpsertStructured writes a structured entry under its natural key.
// createdAt is only set when the entry is first inserted; updates keep the
// original.
func (s *Store) UpsertStructured(ctx context.Context, e StructuredEntry) error {
	set := bson.M{
		keyAgentID:         e.AgentID,
		keyType:            e.Type,
		keyKey:             e.Key,
		keyValue:           e.Value,
		"confidence":       e.Confidence,
		keyEmbeddingStatus: e.EmbeddingStatus,
		keyUpdatedAt:       e.UpdatedAt,
	}
	if e.Context != "" {
		set[keyContext] = e.Context
	}
	if len(e.Tags) > 0 {
		set[keyTags] = e.Tags
	}
	if e.Source != "" {
		set[keySource] = e.Source
	}
	if len(e.Embedding) > 0 {
		set[keyEmbedding] = e.Embedding
	}

	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{keyCreatedAt: e.CreatedAt},
	}

	_, err := s.structured().UpdateOne(ctx, bson.M{keyID: e.ID}, update,
		options.Update().SetUpsert(true))
	return err
}
