package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CollectionCounts returns the document count of every collection, keyed by
// base name.
func (s *Store) CollectionCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(allCollections()))
	for _, base := range allCollections() {
		n, err := s.Collection(base).CountDocuments(ctx, bson.M{})
		if err != nil {
			return nil, err
		}
		counts[base] = n
	}
	return counts, nil
}

// IndexAccesses sums index access operations for a base collection via
// $indexStats. Deployments that refuse the stage simply report an error;
// callers treat that as "no data".
func (s *Store) IndexAccesses(ctx context.Context, base string) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$indexStats", Value: bson.M{}}},
		{{Key: "$group", Value: bson.M{
			keyID: nil,
			"ops": bson.M{"$sum": "$accesses.ops"},
		}}},
	}

	cur, err := s.Collection(base).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}

	var rows []struct {
		Ops int64 `bson:"ops"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Ops, nil
}
