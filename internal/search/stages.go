package search

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Score metadata names per stage family.
const (
	metaVectorScore = "vectorSearchScore"
	metaSearchScore = "searchScore"
	metaTextScore   = "textScore"
	metaFusedScore  = "score"
)

// VectorSearchStage is a $vectorSearch stage. Exactly one of QueryVector
// (managed mode) or QueryText (automated mode, server-side embedding) is
// set.
type VectorSearchStage struct {
	Index         string
	Path          string
	QueryVector   []float32
	QueryText     string
	NumCandidates int
	Limit         int
	Filter        bson.D
}

// D serializes the stage.
func (s VectorSearchStage) D() bson.D {
	doc := bson.D{
		{Key: "index", Value: s.Index},
		{Key: "path", Value: s.Path},
	}
	if s.QueryText != "" {
		doc = append(doc, bson.E{Key: "query", Value: bson.D{{Key: "text", Value: s.QueryText}}})
	} else {
		doc = append(doc, bson.E{Key: "queryVector", Value: s.QueryVector})
	}
	doc = append(doc,
		bson.E{Key: "numCandidates", Value: s.NumCandidates},
		bson.E{Key: "limit", Value: s.Limit},
	)
	if len(s.Filter) > 0 {
		doc = append(doc, bson.E{Key: "filter", Value: s.Filter})
	}
	return bson.D{{Key: "$vectorSearch", Value: doc}}
}

// SearchStage is a $search stage: a compound query whose must clause is the
// tokenized query string over the text field, with filter clauses alongside.
type SearchStage struct {
	Index   string
	Path    string
	Query   string // BuildFTSQuery output
	Filters []bson.D
}

// D serializes the stage.
func (s SearchStage) D() bson.D {
	compound := bson.D{
		{Key: "must", Value: bson.A{
			bson.D{{Key: "queryString", Value: bson.D{
				{Key: "defaultPath", Value: s.Path},
				{Key: "query", Value: s.Query},
			}}},
		}},
	}
	if len(s.Filters) > 0 {
		compound = append(compound, bson.E{Key: "filter", Value: s.Filters})
	}
	return bson.D{{Key: "$search", Value: bson.D{
		{Key: "index", Value: s.Index},
		{Key: "compound", Value: compound},
	}}}
}

// TextMatchStage is the last-resort $match over the plain text index, with
// any equality filters folded in.
type TextMatchStage struct {
	Query  string
	Filter bson.D
}

// D serializes the stage.
func (s TextMatchStage) D() bson.D {
	match := bson.D{{Key: "$text", Value: bson.D{{Key: "$search", Value: s.Query}}}}
	match = append(match, s.Filter...)
	return bson.D{{Key: "$match", Value: match}}
}

// NamedPipeline is one fusion input.
type NamedPipeline struct {
	Name     string
	Pipeline mongo.Pipeline
}

// NamedPipelines preserve input order, which bson.M would not.
type NamedPipelines []NamedPipeline

func (n NamedPipelines) d() bson.D {
	doc := make(bson.D, len(n))
	for i, p := range n {
		doc[i] = bson.E{Key: p.Name, Value: p.Pipeline}
	}
	return doc
}

// RankFusionStage is a $rankFusion stage merging ranked sub-pipelines by
// reciprocal rank on the server.
type RankFusionStage struct {
	Inputs NamedPipelines
}

// D serializes the stage.
func (s RankFusionStage) D() bson.D {
	return bson.D{{Key: "$rankFusion", Value: bson.D{
		{Key: "input", Value: bson.D{
			{Key: "pipelines", Value: s.Inputs.d()},
		}},
	}}}
}

// ScoreFusionStage is a $scoreFusion stage. Min-max normalization keeps the
// fused score in [0, 1] so it merges cleanly with the other sources.
type ScoreFusionStage struct {
	Inputs NamedPipelines
}

// D serializes the stage.
func (s ScoreFusionStage) D() bson.D {
	return bson.D{{Key: "$scoreFusion", Value: bson.D{
		{Key: "input", Value: bson.D{
			{Key: "pipelines", Value: s.Inputs.d()},
			{Key: "normalization", Value: "minMaxScaler"},
		}},
	}}}
}

// limitStage caps the pipeline output.
func limitStage(n int) bson.D {
	return bson.D{{Key: "$limit", Value: n}}
}

// sortByScoreStage orders by the projected score, descending.
func sortByScoreStage() bson.D {
	return bson.D{{Key: "$sort", Value: bson.D{{Key: "score", Value: -1}}}}
}

// projectStage builds the inclusion projection: the listed fields plus the
// stage-family score metadata. Everything else, the embedding field above
// all, stays server-side.
func projectStage(scoreMeta string, fields []string) bson.D {
	proj := make(bson.D, 0, len(fields)+1)
	for _, f := range fields {
		proj = append(proj, bson.E{Key: f, Value: 1})
	}
	proj = append(proj, bson.E{Key: "score", Value: bson.D{{Key: "$meta", Value: scoreMeta}}})
	return bson.D{{Key: "$project", Value: proj}}
}
