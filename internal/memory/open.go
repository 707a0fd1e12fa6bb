package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openclaw/recall/internal/chunk"
	"github.com/openclaw/recall/internal/config"
	"github.com/openclaw/recall/internal/embed"
	"github.com/openclaw/recall/internal/ingest"
	"github.com/openclaw/recall/internal/kb"
	"github.com/openclaw/recall/internal/logging"
	"github.com/openclaw/recall/internal/search"
	"github.com/openclaw/recall/internal/store"
	"github.com/openclaw/recall/internal/watcher"
)

// OpenOptions configure a backend open.
type OpenOptions struct {
	// Config is the resolved configuration (required).
	Config *config.Config

	// Workspace is the agent workspace directory (required).
	Workspace string

	// AgentID scopes collections and session transcripts in multi-agent
	// deployments. Empty means the default agent.
	AgentID string

	// DisableWatch skips the filesystem and change-stream watchers.
	// One-shot commands use it; sync still runs on demand.
	DisableWatch bool

	Logger *slog.Logger
}

// Open connects to MongoDB, prepares collections and indexes, and starts
// the watchers. Connection or ping failure is fatal. Setup failures after
// a healthy connection degrade the affected capability and log instead:
// the backend stays usable on whatever tiers the deployment supports.
func Open(ctx context.Context, opts OpenOptions) (*Manager, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Workspace == "" {
		return nil, fmt.Errorf("workspace is required")
	}
	if cfg.Backend != config.BackendMongoDB {
		return nil, fmt.Errorf("backend %q is not handled by the mongodb core", cfg.Backend)
	}
	mongoCfg := &cfg.MongoDB
	if mongoCfg.URI == "" {
		return nil, fmt.Errorf("mongodb uri is required (set mongodb.uri or OPENCLAW_MONGODB_URI)")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	log := logging.ForSubsystem(logger, "memory")

	st, err := store.Open(ctx, store.Options{
		URI:              mongoCfg.URI,
		Database:         mongoCfg.Database,
		CollectionPrefix: mongoCfg.EffectiveCollectionPrefix(opts.AgentID),
		MaxPoolSize:      int(mongoCfg.MaxPoolSize),
		MinPoolSize:      int(mongoCfg.MinPoolSize),
		ConnectTimeout:   time.Duration(mongoCfg.ConnectTimeoutMS) * time.Millisecond,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*Manager, error) {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = st.Close(closeCtx)
		return nil, err
	}

	if err := st.EnsureCollections(ctx); err != nil {
		log.Warn("collection setup incomplete", slog.Any("error", err))
	}
	if err := st.EnsureSchemaValidation(ctx); err != nil {
		log.Warn("schema validation unavailable", slog.Any("error", err))
	}
	cacheTTL := time.Duration(mongoCfg.EmbeddingCacheTTLDays) * 24 * time.Hour
	if err := st.EnsureStandardIndexes(ctx, cacheTTL); err != nil {
		log.Warn("standard index setup incomplete", slog.Any("error", err))
	}
	if err := st.EnsureSearchIndexes(ctx, store.SearchIndexParams{
		Profile:       mongoCfg.DeploymentProfile,
		Mode:          mongoCfg.EmbeddingMode,
		NumDimensions: mongoCfg.NumDimensions,
		Quantization:  mongoCfg.Quantization,
		AutoModel:     mongoCfg.AutoEmbeddingModel,
	}); err != nil {
		log.Warn("search index setup incomplete, weaker tiers will serve", slog.Any("error", err))
	}

	caps := st.DetectCapabilities(ctx, mongoCfg.DeploymentProfile)

	if orphans, err := st.CheckKBOrphans(ctx); err != nil {
		log.Warn("kb orphan check failed", slog.Any("error", err))
	} else if len(orphans) > 0 {
		log.Warn("kb chunks reference missing documents",
			slog.Int("documents", len(orphans)))
	}

	var provider embed.Provider
	if mongoCfg.EmbeddingMode == config.EmbeddingManaged {
		provider, err = embed.NewProvider(cfg.Embedding, mongoCfg.NumDimensions)
		if err != nil {
			log.Warn("embedding provider unavailable, chunks stay pending",
				slog.Any("error", err))
			provider = nil
		}
	}

	memChunker, err := chunk.NewChunker(chunk.Options{Model: cfg.Embedding.Model})
	if err != nil {
		return fail(fmt.Errorf("memory chunker: %w", err))
	}
	kbChunker, err := chunk.NewChunker(chunk.Options{
		WindowTokens:  mongoCfg.KB.ChunkTokens,
		OverlapTokens: mongoCfg.KB.ChunkOverlap,
		Model:         cfg.Embedding.Model,
	})
	if err != nil {
		return fail(fmt.Errorf("kb chunker: %w", err))
	}

	syncer, err := ingest.NewSyncer(ingest.Dependencies{
		Store:     st,
		Chunker:   memChunker,
		Provider:  provider,
		Config:    cfg,
		Workspace: opts.Workspace,
		AgentID:   opts.AgentID,
		Logger:    logger,
	})
	if err != nil {
		return fail(fmt.Errorf("ingest: %w", err))
	}

	importer, err := kb.NewImporter(kb.Dependencies{
		Store:    st,
		Chunker:  kbChunker,
		Provider: provider,
		Config:   mongoCfg,
		Logger:   logger,
	})
	if err != nil {
		return fail(fmt.Errorf("knowledge base: %w", err))
	}

	names := st.Names()
	dispatcher := search.NewDispatcher(search.DispatcherConfig{
		Runner:        st,
		Capabilities:  caps,
		Fusion:        mongoCfg.FusionMethod,
		EmbeddingMode: mongoCfg.EmbeddingMode,
		NumCandidates: mongoCfg.NumCandidates,
		Logger:        logger,
	})

	m := &Manager{
		cfg:              cfg,
		agentID:          opts.AgentID,
		workspace:        opts.Workspace,
		st:               st,
		dispatcher:       dispatcher,
		syncer:           syncer,
		kb:               importer,
		provider:         provider,
		retry:            embed.DefaultRetryConfig(),
		caps:             caps,
		embedMode:        mongoCfg.EmbeddingMode,
		memoryTarget:     search.MemoryTarget(names.Chunks),
		kbTarget:         search.KBTarget(names.KBChunks, names.KBDocs),
		structuredTarget: search.StructuredTarget(names.Structured),
		kbEnabled:        mongoCfg.KB.Enabled,
		sessionsDir:      mongoCfg.EffectiveSessionsDir(opts.AgentID),
		extraPaths:       mongoCfg.ExtraPaths,
		dirty:            true,
		logger:           log,
	}

	// Warm the status counters; a failed count just means status starts
	// at zero until the first sync.
	if n, err := st.Count(ctx, store.CollFiles); err == nil {
		m.fileCount = n
	}
	if n, err := st.Count(ctx, store.CollChunks); err == nil {
		m.chunkCount = n
	}

	if !opts.DisableWatch {
		m.startWatchers(ctx, st, mongoCfg, logger)
	}

	log.Info("memory backend ready",
		slog.String("profile", string(mongoCfg.DeploymentProfile)),
		slog.String("mode", string(mongoCfg.EmbeddingMode)),
		slog.Bool("vectorSearch", caps.VectorSearch),
		slog.Bool("textSearch", caps.TextSearch),
		slog.Int64("files", m.fileCount),
		slog.Int64("chunks", m.chunkCount))
	return m, nil
}

// startWatchers attaches the filesystem watcher and, when enabled, the
// change-stream watcher. Watcher failure leaves the backend functional
// with on-demand sync only.
func (m *Manager) startWatchers(ctx context.Context, st *store.Store, mongoCfg *config.MongoConfig, logger *slog.Logger) {
	fsw, err := watcher.NewFSWatcher(watcher.Config{
		Workspace:  m.workspace,
		ExtraPaths: mongoCfg.ExtraPaths,
		Debounce:   time.Duration(mongoCfg.WatchDebounceMS) * time.Millisecond,
		OnEvent:    func(watcher.Event) { m.markDirty() },
		OnSync:     func() { m.backgroundSync("watcher") },
		Logger:     logger,
	})
	if err == nil {
		err = fsw.Start()
	}
	if err != nil {
		m.logger.Warn("filesystem watcher unavailable, on-demand sync only",
			slog.Any("error", err))
	} else {
		m.fsWatcher = fsw
	}

	if !mongoCfg.EnableChangeStreams {
		return
	}
	csw, err := watcher.NewChangeStreamWatcher(watcher.ChangeStreamConfig{
		Collection: st.Collection(store.CollChunks),
		Debounce:   time.Duration(mongoCfg.ChangeStreamDebounceMS) * time.Millisecond,
		OnPaths: func(paths []string) {
			m.logger.Debug("chunk store changed externally", slog.Int("paths", len(paths)))
			m.markDirty()
		},
		Logger: logger,
	})
	if err == nil {
		err = csw.Start(ctx)
	}
	if err != nil {
		m.logger.Warn("change stream watcher unavailable", slog.Any("error", err))
	} else {
		m.csWatcher = csw
	}
}
