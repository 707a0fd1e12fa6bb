package store

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/openclaw/recall/internal/config"
)

// Capabilities are the search features the connected deployment actually
// supports, discovered by probing rather than trusted from configuration.
type Capabilities struct {
	VectorSearch bool `json:"vectorSearch"`
	TextSearch   bool `json:"textSearch"`
	ScoreFusion  bool `json:"scoreFusion"`
	RankFusion   bool `json:"rankFusion"`
}

// Hybrid reports whether both search index families are available.
func (c Capabilities) Hybrid() bool {
	return c.VectorSearch && c.TextSearch
}

// ServerFusion reports whether a server-side fusion tier can run at all.
func (c Capabilities) ServerFusion() bool {
	return c.Hybrid() && (c.ScoreFusion || c.RankFusion)
}

// DetectCapabilities probes the deployment. A profile without search index
// support short-circuits to all-false; otherwise mongot presence is inferred
// from listing search indexes on the searchable collections (success on any
// one is proof), and the fusion stages are probed individually.
func (s *Store) DetectCapabilities(ctx context.Context, profile config.DeploymentProfile) Capabilities {
	var caps Capabilities
	if !profile.SupportsSearchIndexes() {
		return caps
	}

	for _, base := range []string{CollChunks, CollKBChunks, CollStructured} {
		if _, err := s.listSearchIndexNames(ctx, base); err == nil {
			caps.TextSearch = true
			caps.VectorSearch = true
			break
		}
	}
	if !caps.TextSearch {
		return caps
	}

	caps.ScoreFusion = s.stageSupported(ctx, "$scoreFusion")
	caps.RankFusion = s.stageSupported(ctx, "$rankFusion")
	return caps
}

// stageSupported probes one aggregation stage against a trivial input. Only
// an unrecognized-stage error proves absence; any other server complaint
// means the stage was parsed, so the server supports it.
func (s *Store) stageSupported(ctx context.Context, stage string) bool {
	pipeline := mongo.Pipeline{
		{{Key: stage, Value: bson.M{
			"input": bson.M{
				"pipelines": bson.M{
					"probe": []bson.M{
						{"$sort": bson.M{keyID: 1}},
						{"$limit": 1},
					},
				},
			},
		}}},
	}

	cur, err := s.meta().Aggregate(ctx, pipeline)
	if err == nil {
		_ = cur.Close(ctx)
		return true
	}
	return !IsUnrecognizedStage(err)
}

// IsUnrecognizedStage reports whether err is the server rejecting a pipeline
// stage name it does not know.
func IsUnrecognizedStage(err error) bool {
	if err == nil {
		return false
	}
	if hasErrorCode(err, codeUnrecognizedStage) {
		return true
	}
	return strings.Contains(err.Error(), "nrecognized pipeline stage")
}
