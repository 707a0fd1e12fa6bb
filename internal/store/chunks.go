package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/openclaw/recall/internal/embed"
)

// FailedChunks pages chunks whose embedding previously failed, oldest
// first, so the deferred re-attempt at sync start works through the backlog
// in bounded slices.
func (s *Store) FailedChunks(ctx context.Context, limit int) ([]Chunk, error) {
	findOpts := options.Find().
		SetSort(bson.D{{Key: keyUpdatedAt, Value: 1}}).
		SetProjection(bson.D{{Key: keyEmbedding, Value: 0}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}

	cur, err := s.chunks().Find(ctx, bson.M{keyEmbeddingStatus: embed.StatusFailed}, findOpts)
	if err != nil {
		return nil, err
	}

	var chunks []Chunk
	if err := cur.All(ctx, &chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// MarkEmbedded stores vectors for the given chunk ids and flips their status
// to success. ids and vectors must be index-aligned.
func (s *Store) MarkEmbedded(ctx context.Context, ids []string, vectors [][]float32, model string) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("%d vectors for %d chunk ids", len(vectors), len(ids))
	}
	if len(ids) == 0 {
		return nil
	}

	now := time.Now().UTC()
	models := make([]mongo.WriteModel, len(ids))
	for i, id := range ids {
		models[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.M{keyID: id}).
			SetUpdate(bson.M{"$set": bson.M{
				keyEmbedding:       vectors[i],
				keyEmbeddingStatus: embed.StatusSuccess,
				keyModel:           model,
				keyUpdatedAt:       now,
			}})
	}

	_, err := s.chunks().BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return err
}

// ChunkCounts returns the number of chunks per source.
func (s *Store) ChunkCounts(ctx context.Context) (map[Source]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			keyID: "$" + keySource,
			"n":   bson.M{"$sum": 1},
		}}},
	}

	cur, err := s.chunks().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Source Source `bson:"_id"`
		N      int64  `bson:"n"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[Source]int64, len(rows))
	for _, r := range rows {
		counts[r.Source] = r.N
	}
	return counts, nil
}

// EmbeddingStatusCounts returns the per-status chunk counts for a base
// collection (chunks, kb_chunks, or structured_mem).
func (s *Store) EmbeddingStatusCounts(ctx context.Context, base string) (map[embed.Status]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			keyID: "$" + keyEmbeddingStatus,
			"n":   bson.M{"$sum": 1},
		}}},
	}

	cur, err := s.Collection(base).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Status embed.Status `bson:"_id"`
		N      int64        `bson:"n"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[embed.Status]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// Count returns the document count of a base collection.
func (s *Store) Count(ctx context.Context, base string) (int64, error) {
	return s.Collection(base).CountDocuments(ctx, bson.M{})
}
