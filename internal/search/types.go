// Package search executes memory queries against MongoDB. A dispatcher
// selects the strongest aggregation pipeline the detected capabilities
// allow (server-side fusion, client-side hybrid, vector-only, text search,
// $text last resort) and cascades to weaker tiers on failure; a merger
// normalizes scores across sources, fuses ranked lists, and deduplicates.
package search

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// Kind identifies which logical collection a search targets.
type Kind string

const (
	KindMemory     Kind = "memory"
	KindKB         Kind = "kb"
	KindStructured Kind = "structured"
)

// Result is a single scored hit, shaped for cross-source merging.
type Result struct {
	// ID is the document _id.
	ID string

	// Kind is the collection family the hit came from.
	Kind Kind

	// Snippet is the rendered text (chunk text, or structured value).
	// Deduplication compares these strings directly.
	Snippet string

	// Score is normalized into [0, 1].
	Score float64

	// Path is the origin file, when the hit has one.
	Path string

	// Source distinguishes memory files from session transcripts.
	Source string

	// StartLine and EndLine are 1-based and inclusive.
	StartLine int
	EndLine   int

	// DocID is the parent knowledge base document, for KB hits.
	DocID string

	// Type, Key, and Tags carry structured entry metadata.
	Type string
	Key  string
	Tags []string
}

// Filters restrict a search. Zero values mean "no restriction".
type Filters struct {
	// Source restricts chunks to "memory" or "sessions".
	Source string

	// Path restricts chunks to one origin file.
	Path string

	// Tags restrict KB hits (resolved against kb documents) or
	// structured entries.
	Tags []string

	// Category restricts structured entries by type.
	Category string

	// AgentID restricts structured entries.
	AgentID string

	// docIDs is the resolved KB pre-filter set.
	docIDs []string
}

// Query is one search request against a target.
type Query struct {
	// Text is the query string.
	Text string

	// Vector is the query embedding; nil in automated mode, where the
	// server embeds the text itself.
	Vector []float32

	// MaxResults caps the returned hits (default: 10).
	MaxResults int

	// Filters restrict the search.
	Filters Filters
}

// Target names the collection and search indexes one dispatch runs against.
type Target struct {
	Kind        Kind
	Collection  string
	TextIndex   string
	VectorIndex string

	// TextField is the analyzed field queries run over.
	TextField string

	// Fields is the inclusion projection (the embedding field is never
	// listed, which keeps vectors out of result payloads).
	Fields []string

	// DocsCollection is the kb documents collection used to resolve the
	// tag pre-filter. KB targets only.
	DocsCollection string
}

// MemoryTarget builds the target for the core chunks collection. Search
// index names derive from the collection name.
func MemoryTarget(collection string) Target {
	return Target{
		Kind:        KindMemory,
		Collection:  collection,
		TextIndex:   collection + "_text",
		VectorIndex: collection + "_vector",
		TextField:   "text",
		Fields:      []string{"path", "source", "text", "startLine", "endLine"},
	}
}

// KBTarget builds the target for knowledge base chunks.
func KBTarget(chunksCollection, docsCollection string) Target {
	return Target{
		Kind:           KindKB,
		Collection:     chunksCollection,
		TextIndex:      chunksCollection + "_text",
		VectorIndex:    chunksCollection + "_vector",
		TextField:      "text",
		Fields:         []string{"docId", "path", "text", "startLine", "endLine"},
		DocsCollection: docsCollection,
	}
}

// StructuredTarget builds the target for structured memory entries.
func StructuredTarget(collection string) Target {
	return Target{
		Kind:        KindStructured,
		Collection:  collection,
		TextIndex:   collection + "_text",
		VectorIndex: collection + "_vector",
		TextField:   "value",
		Fields:      []string{"agentId", "type", "key", "value", "context", "tags", "confidence"},
	}
}

// Runner executes reads against named collections. The store satisfies it;
// tests substitute fakes.
type Runner interface {
	// Aggregate runs a pipeline and decodes all results into out.
	Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline, out any) error

	// FindIDs returns up to limit _id values matching filter.
	FindIDs(ctx context.Context, collection string, filter any, limit int) ([]string, error)
}

// document is the decode shape shared by every pipeline projection.
type document struct {
	ID         string   `bson:"_id"`
	Path       string   `bson:"path"`
	Source     string   `bson:"source"`
	Text       string   `bson:"text"`
	StartLine  int      `bson:"startLine"`
	EndLine    int      `bson:"endLine"`
	DocID      string   `bson:"docId"`
	AgentID    string   `bson:"agentId"`
	Type       string   `bson:"type"`
	Key        string   `bson:"key"`
	Value      string   `bson:"value"`
	Context    string   `bson:"context"`
	Tags       []string `bson:"tags"`
	Confidence float64  `bson:"confidence"`
	Score      float64  `bson:"score"`
}

// toResult maps a decoded document into the merge shape.
func (d document) toResult(kind Kind) Result {
	snippet := d.Text
	if snippet == "" {
		snippet = d.Value
	}
	return Result{
		ID:        d.ID,
		Kind:      kind,
		Snippet:   snippet,
		Score:     d.Score,
		Path:      d.Path,
		Source:    d.Source,
		StartLine: d.StartLine,
		EndLine:   d.EndLine,
		DocID:     d.DocID,
		Type:      d.Type,
		Key:       d.Key,
		Tags:      d.Tags,
	}
}

func toResults(docs []document, kind Kind) []Result {
	results := make([]Result, len(docs))
	for i, d := range docs {
		results[i] = d.toResult(kind)
	}
	return results
}
