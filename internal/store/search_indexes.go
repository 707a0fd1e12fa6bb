package store

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/openclaw/recall/internal/config"
)

// Search index type names as the server expects them.
const (
	searchIndexTypeText   = "search"
	searchIndexTypeVector = "vectorSearch"
)

// SearchIndexParams configure search index planning.
type SearchIndexParams struct {
	Profile       config.DeploymentProfile
	Mode          config.EmbeddingMode
	NumDimensions int
	Quantization  config.Quantization
	// AutoModel is the server-side embedding model for automated mode.
	AutoModel string
}

// SearchIndexSpec is one search index to ensure on a collection.
type SearchIndexSpec struct {
	Collection string // base collection name
	Name       string // full index name, prefix included
	Type       string // "search" or "vectorSearch"
	Definition bson.M
}

// IndexName returns the full search index name for a base collection and
// kind suffix ("text" or "vector").
func (s *Store) IndexName(base, kind string) string {
	return fmt.Sprintf("%s%s_%s", s.prefix, base, kind)
}

// AssertIndexBudget checks a planned index count against the profile's
// budget. A zero budget means unbounded.
func AssertIndexBudget(profile config.DeploymentProfile, planned int) error {
	budget := profile.IndexBudget()
	if budget > 0 && planned > budget {
		return fmt.Errorf("%d search indexes planned but profile %s allows %d", planned, profile, budget)
	}
	return nil
}

// PlanSearchIndexes returns the search indexes the configuration calls for,
// core chunks pair first. When the plan exceeds the profile budget it is
// reduced to the core pair and truncated is true.
func (s *Store) PlanSearchIndexes(p SearchIndexParams) (specs []SearchIndexSpec, truncated bool) {
	specs = []SearchIndexSpec{
		{
			Collection: CollChunks,
			Name:       s.IndexName(CollChunks, "text"),
			Type:       searchIndexTypeText,
			Definition: textSearchDefinition(map[string]string{
				keyText:   "string",
				keySource: "token",
				keyPath:   "token",
			}),
		},
		{
			Collection: CollChunks,
			Name:       s.IndexName(CollChunks, "vector"),
			Type:       searchIndexTypeVector,
			Definition: vectorSearchDefinition(p, keyText, []string{keySource, keyPath}),
		},
		{
			Collection: CollKBChunks,
			Name:       s.IndexName(CollKBChunks, "text"),
			Type:       searchIndexTypeText,
			Definition: textSearchDefinition(map[string]string{
				keyText:  "string",
				keyDocID: "token",
				keyPath:  "token",
			}),
		},
		{
			Collection: CollKBChunks,
			Name:       s.IndexName(CollKBChunks, "vector"),
			Type:       searchIndexTypeVector,
			Definition: vectorSearchDefinition(p, keyText, []string{keyDocID}),
		},
		{
			Collection: CollStructured,
			Name:       s.IndexName(CollStructured, "text"),
			Type:       searchIndexTypeText,
			Definition: textSearchDefinition(map[string]string{
				keyValue:   "string",
				keyContext: "string",
				keyKey:     "string",
				keyAgentID: "token",
				keyType:    "token",
				keyTags:    "token",
			}),
		},
		{
			Collection: CollStructured,
			Name:       s.IndexName(CollStructured, "vector"),
			Type:       searchIndexTypeVector,
			Definition: vectorSearchDefinition(p, keyValue, []string{keyAgentID, keyType, keyTags}),
		},
	}

	if err := AssertIndexBudget(p.Profile, len(specs)); err != nil {
		return specs[:2], true
	}
	return specs, false
}

// textSearchDefinition builds a static-mapping text search index over the
// given fields (field name -> mongot type).
func textSearchDefinition(fields map[string]string) bson.M {
	mapped := bson.M{}
	for name, typ := range fields {
		mapped[name] = bson.M{"type": typ}
	}
	return bson.M{
		"mappings": bson.M{
			"dynamic": false,
			"fields":  mapped,
		},
	}
}

// vectorSearchDefinition builds the vectorSearch index definition. Managed
// mode indexes the pre-computed embedding field; automated mode declares an
// auto-embedding index over the text field so the server embeds on write.
func vectorSearchDefinition(p SearchIndexParams, textField string, filterPaths []string) bson.M {
	var field bson.M
	if p.Mode == config.EmbeddingAutomated {
		field = bson.M{
			"type":  "text",
			"path":  textField,
			"model": p.AutoModel,
		}
	} else {
		field = bson.M{
			"type":          "vector",
			"path":          keyEmbedding,
			"numDimensions": p.NumDimensions,
			"similarity":    "cosine",
		}
		if p.Quantization != "" && p.Quantization != config.QuantizationNone {
			field["quantization"] = string(p.Quantization)
		}
	}

	fields := []bson.M{field}
	for _, path := range filterPaths {
		fields = append(fields, bson.M{"type": "filter", "path": path})
	}
	return bson.M{"fields": fields}
}

// EnsureSearchIndexes creates any missing search indexes for the profile.
// Failures downgrade rather than abort: search falls back to weaker tiers,
// so problems here are logged and nil is returned.
func (s *Store) EnsureSearchIndexes(ctx context.Context, p SearchIndexParams) error {
	if !p.Profile.SupportsSearchIndexes() {
		s.logger.Debug("profile has no search index support, skipping",
			slog.String("profile", string(p.Profile)))
		return nil
	}

	specs, truncated := s.PlanSearchIndexes(p)
	if truncated {
		s.logger.Warn("search index budget exceeded, keeping core chunk indexes only",
			slog.String("profile", string(p.Profile)),
			slog.Int("budget", p.Profile.IndexBudget()))
	}

	existing := map[string]map[string]bool{}
	for _, spec := range specs {
		names, ok := existing[spec.Collection]
		if !ok {
			listed, err := s.listSearchIndexNames(ctx, spec.Collection)
			if err != nil {
				s.logger.Warn("cannot list search indexes, skipping creation",
					slog.String("collection", spec.Collection),
					slog.String("error", err.Error()))
				return nil
			}
			names = listed
			existing[spec.Collection] = names
		}
		if names[spec.Name] {
			continue
		}

		_, err := s.Collection(spec.Collection).SearchIndexes().CreateOne(ctx, mongo.SearchIndexModel{
			Definition: spec.Definition,
			Options:    options.SearchIndexes().SetName(spec.Name).SetType(spec.Type),
		})
		if err != nil {
			s.logger.Warn("search index creation failed",
				slog.String("index", spec.Name),
				slog.String("error", err.Error()))
			continue
		}
		s.logger.Info("search index created",
			slog.String("index", spec.Name),
			slog.String("type", spec.Type))
	}
	return nil
}

func (s *Store) listSearchIndexNames(ctx context.Context, base string) (map[string]bool, error) {
	cur, err := s.Collection(base).SearchIndexes().List(ctx, nil)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Name string `bson:"name"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	names := make(map[string]bool, len(rows))
	for _, r := range rows {
		names[r.Name] = true
	}
	return names, nil
}
