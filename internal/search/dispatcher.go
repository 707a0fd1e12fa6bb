package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/openclaw/recall/internal/config"
	"github.com/openclaw/recall/internal/logging"
	"github.com/openclaw/recall/internal/store"
)

const (
	// DefaultMaxResults caps a search when the caller does not.
	DefaultMaxResults = 10

	// KBFilterCap bounds the resolved docId pre-filter set.
	KBFilterCap = 10000

	// maxNumCandidates is the hard ceiling on the $vectorSearch candidate
	// pool, guarding against server-side runaway.
	maxNumCandidates = 10000
)

// NumCandidates sizes the $vectorSearch candidate pool:
// min(user, max(maxResults*20, 100), 10000). Zero user means no override.
func NumCandidates(user, maxResults int) int {
	n := maxResults * 20
	if n < 100 {
		n = 100
	}
	if user > 0 && user < n {
		n = user
	}
	if n > maxNumCandidates {
		n = maxNumCandidates
	}
	return n
}

// Dispatcher plans the strongest pipeline the detected capabilities allow
// for a target and cascades to weaker tiers on runtime failure.
type Dispatcher struct {
	runner        Runner
	caps          store.Capabilities
	fusion        config.FusionMethod
	mode          config.EmbeddingMode
	numCandidates int
	logger        *slog.Logger
}

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	Runner       Runner
	Capabilities store.Capabilities

	// Fusion is the configured preference; it auto-falls back when the
	// server lacks the stage.
	Fusion config.FusionMethod

	// EmbeddingMode decides whether vector stages carry a query vector
	// (managed) or the raw text for server-side embedding (automated).
	EmbeddingMode config.EmbeddingMode

	// NumCandidates overrides the derived candidate pool when positive.
	NumCandidates int

	Logger *slog.Logger
}

// NewDispatcher builds a dispatcher for one capability snapshot.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		runner:        cfg.Runner,
		caps:          cfg.Capabilities,
		fusion:        cfg.Fusion,
		mode:          cfg.EmbeddingMode,
		numCandidates: cfg.NumCandidates,
		logger:        logging.ForSubsystem(logger, "search"),
	}
}

// tier is one planned pipeline attempt.
type tier struct {
	name string
	run  func(ctx context.Context) ([]Result, error)
}

// Search executes the cascade for one target. Results come back with
// normalized scores; failed tiers are logged and the next tier runs.
func (d *Dispatcher) Search(ctx context.Context, target Target, q Query) ([]Result, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" && len(q.Vector) == 0 {
		return []Result{}, nil
	}
	if q.MaxResults <= 0 {
		q.MaxResults = DefaultMaxResults
	}

	// KB tag filters restrict parent documents, so they resolve to a
	// bounded chunk-level docId set before any pipeline runs. An empty
	// resolution means no document can match.
	if target.Kind == KindKB && len(q.Filters.Tags) > 0 {
		ids, err := d.runner.FindIDs(ctx, target.DocsCollection,
			bson.D{{Key: "tags", Value: bson.D{{Key: "$in", Value: q.Filters.Tags}}}},
			KBFilterCap)
		if err != nil {
			return nil, fmt.Errorf("resolve kb tag filter: %w", err)
		}
		if len(ids) == 0 {
			return []Result{}, nil
		}
		q.Filters = q.Filters.withDocIDs(ids)
	}

	tiers := d.plan(target, q)
	if len(tiers) == 0 {
		return []Result{}, nil
	}

	var errs []error
	for _, t := range tiers {
		results, err := t.run(ctx)
		if err == nil {
			d.logger.Debug("search tier served query",
				slog.String("tier", t.name),
				slog.String("collection", target.Collection),
				slog.Int("results", len(results)))
			return results, nil
		}
		d.logger.Debug("search tier failed, cascading",
			slog.String("tier", t.name),
			slog.String("collection", target.Collection),
			slog.Any("error", err))
		errs = append(errs, fmt.Errorf("%s: %w", t.name, err))
	}
	return nil, fmt.Errorf("all search tiers failed: %w", errors.Join(errs...))
}

// plan orders the tiers by fixed precedence: server fusion, client hybrid,
// vector-only, tokenized $search, last-resort $text.
func (d *Dispatcher) plan(target Target, q Query) []tier {
	hasText := q.Text != ""
	hasVector := len(q.Vector) > 0 || (d.mode == config.EmbeddingAutomated && hasText)

	var tiers []tier
	if hasText && hasVector && d.caps.ServerFusion() && d.fusion != config.FusionJSMerge {
		useRank := d.useRankFusion()
		name := "scoreFusion"
		if useRank {
			name = "rankFusion"
		}
		tiers = append(tiers, tier{name: name, run: func(ctx context.Context) ([]Result, error) {
			return d.runServerFusion(ctx, target, q, useRank)
		}})
	}
	if hasText && hasVector && d.caps.Hybrid() {
		tiers = append(tiers, tier{name: "hybrid-rrf", run: func(ctx context.Context) ([]Result, error) {
			return d.runHybrid(ctx, target, q)
		}})
	}
	if hasVector && d.caps.VectorSearch {
		tiers = append(tiers, tier{name: "vector", run: func(ctx context.Context) ([]Result, error) {
			return d.runVectorOnly(ctx, target, q)
		}})
	}
	if hasText && d.caps.TextSearch {
		tiers = append(tiers, tier{name: "search", run: func(ctx context.Context) ([]Result, error) {
			return d.runTextSearch(ctx, target, q)
		}})
	}
	if hasText {
		tiers = append(tiers, tier{name: "text", run: func(ctx context.Context) ([]Result, error) {
			return d.runTextMatch(ctx, target, q)
		}})
	}
	return tiers
}

// useRankFusion resolves the configured fusion method against what the
// server actually supports.
func (d *Dispatcher) useRankFusion() bool {
	switch d.fusion {
	case config.FusionRank:
		return d.caps.RankFusion || !d.caps.ScoreFusion
	default:
		return !d.caps.ScoreFusion && d.caps.RankFusion
	}
}

func (d *Dispatcher) runServerFusion(ctx context.Context, target Target, q Query, useRank bool) ([]Result, error) {
	branchLimit := hybridBranchLimit(q.MaxResults)
	inputs := NamedPipelines{
		{Name: "vector", Pipeline: mongo.Pipeline{d.vectorStage(target, q, branchLimit).D()}},
		{Name: "text", Pipeline: mongo.Pipeline{d.searchStage(target, q).D(), limitStage(branchLimit)}},
	}

	var fusion bson.D
	if useRank {
		fusion = RankFusionStage{Inputs: inputs}.D()
	} else {
		fusion = ScoreFusionStage{Inputs: inputs}.D()
	}
	pipeline := mongo.Pipeline{
		fusion,
		limitStage(q.MaxResults),
		projectStage(metaFusedScore, target.Fields),
	}

	var docs []document
	if err := d.runner.Aggregate(ctx, target.Collection, pipeline, &docs); err != nil {
		return nil, err
	}
	results := toResults(docs, target.Kind)
	if useRank {
		normalizeReciprocalScores(results)
	} else {
		normalizeAll(results, ScoreFused)
	}
	return results, nil
}

func (d *Dispatcher) runHybrid(ctx context.Context, target Target, q Query) ([]Result, error) {
	branchLimit := hybridBranchLimit(q.MaxResults)

	vectorPipeline := mongo.Pipeline{
		d.vectorStage(target, q, branchLimit).D(),
		projectStage(metaVectorScore, target.Fields),
	}
	vres, err := d.runPipeline(ctx, target, vectorPipeline, ScoreVector)
	if err != nil {
		return nil, err
	}

	textPipeline := mongo.Pipeline{
		d.searchStage(target, q).D(),
		limitStage(branchLimit),
		projectStage(metaSearchScore, target.Fields),
	}
	tres, err := d.runPipeline(ctx, target, textPipeline, ScoreText)
	if err != nil {
		return nil, err
	}

	fused := FuseRRF(vres, tres)
	if len(fused) > q.MaxResults {
		fused = fused[:q.MaxResults]
	}
	return fused, nil
}

func (d *Dispatcher) runVectorOnly(ctx context.Context, target Target, q Query) ([]Result, error) {
	pipeline := mongo.Pipeline{
		d.vectorStage(target, q, q.MaxResults).D(),
		projectStage(metaVectorScore, target.Fields),
	}
	return d.runPipeline(ctx, target, pipeline, ScoreVector)
}

func (d *Dispatcher) runTextSearch(ctx context.Context, target Target, q Query) ([]Result, error) {
	pipeline := mongo.Pipeline{
		d.searchStage(target, q).D(),
		limitStage(q.MaxResults),
		projectStage(metaSearchScore, target.Fields),
	}
	return d.runPipeline(ctx, target, pipeline, ScoreText)
}

func (d *Dispatcher) runTextMatch(ctx context.Context, target Target, q Query) ([]Result, error) {
	pipeline := mongo.Pipeline{
		d.textStage(target, q).D(),
		projectStage(metaTextScore, target.Fields),
		sortByScoreStage(),
		limitStage(q.MaxResults),
	}
	return d.runPipeline(ctx, target, pipeline, ScoreText)
}

func (d *Dispatcher) runPipeline(ctx context.Context, target Target, pipeline mongo.Pipeline, class ScoreClass) ([]Result, error) {
	var docs []document
	if err := d.runner.Aggregate(ctx, target.Collection, pipeline, &docs); err != nil {
		return nil, err
	}
	results := toResults(docs, target.Kind)
	normalizeAll(results, class)
	return results, nil
}

// vectorStage builds the $vectorSearch stage. Managed mode carries the
// query vector against the embedding path; automated mode carries the raw
// text against the indexed text field, and the server embeds it.
func (d *Dispatcher) vectorStage(target Target, q Query, limit int) VectorSearchStage {
	s := VectorSearchStage{
		Index:         target.VectorIndex,
		NumCandidates: NumCandidates(d.numCandidates, q.MaxResults),
		Limit:         limit,
		Filter:        q.Filters.vectorFilter(target.Kind),
	}
	if len(q.Vector) > 0 {
		s.Path = "embedding"
		s.QueryVector = q.Vector
	} else {
		s.Path = target.TextField
		s.QueryText = q.Text
	}
	return s
}

func (d *Dispatcher) searchStage(target Target, q Query) SearchStage {
	return SearchStage{
		Index:   target.TextIndex,
		Path:    target.TextField,
		Query:   BuildFTSQuery(q.Text),
		Filters: q.Filters.searchClauses(target.Kind),
	}
}

func (d *Dispatcher) textStage(target Target, q Query) TextMatchStage {
	return TextMatchStage{
		Query:  PlainTokens(q.Text),
		Filter: q.Filters.vectorFilter(target.Kind),
	}
}

// hybridBranchLimit sizes each fusion input so the merged head stays
// saturated after deduplication.
func hybridBranchLimit(maxResults int) int {
	n := maxResults * 2
	if n < 20 {
		n = 20
	}
	return n
}
