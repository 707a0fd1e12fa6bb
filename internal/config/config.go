// Package config loads and validates the memory subsystem configuration.
//
// Configuration is applied in order of increasing precedence: hardcoded
// defaults, the user config (~/.config/recall/config.yaml), the project
// config (.recall.yaml at the workspace root), then environment variables.
// The MongoDB URI is the one exception: OPENCLAW_MONGODB_URI is a fallback
// only, a URI present in a config file wins over the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend selects the memory backend implementation.
type Backend string

const (
	BackendBuiltin Backend = "builtin"
	BackendQMD     Backend = "qmd"
	BackendMongoDB Backend = "mongodb"
)

// DeploymentProfile captures what the target MongoDB deployment can do.
type DeploymentProfile string

const (
	// ProfileAtlasDefault is a paid Atlas tier: search indexes, vector
	// search, server-side fusion, no index budget.
	ProfileAtlasDefault DeploymentProfile = "atlas-default"
	// ProfileAtlasM0 is the free Atlas tier: search indexes exist but at
	// most three may be created.
	ProfileAtlasM0 DeploymentProfile = "atlas-m0"
	// ProfileCommunityMongot is self-hosted MongoDB with a mongot sidecar.
	ProfileCommunityMongot DeploymentProfile = "community-mongot"
	// ProfileCommunityBare is self-hosted MongoDB without mongot; only
	// standard B-tree and $text indexes are available.
	ProfileCommunityBare DeploymentProfile = "community-bare"
)

// EmbeddingMode determines who computes embedding vectors.
type EmbeddingMode string

const (
	// EmbeddingAutomated delegates embedding to Atlas auto-embedding
	// indexes; documents carry no vector field.
	EmbeddingAutomated EmbeddingMode = "automated"
	// EmbeddingManaged computes vectors client-side and stores them on
	// each document.
	EmbeddingManaged EmbeddingMode = "managed"
)

// FusionMethod selects how vector and text results are combined.
type FusionMethod string

const (
	FusionScore   FusionMethod = "scoreFusion"
	FusionRank    FusionMethod = "rankFusion"
	FusionJSMerge FusionMethod = "js-merge"
)

// Quantization selects vector index compression.
type Quantization string

const (
	QuantizationNone   Quantization = "none"
	QuantizationScalar Quantization = "scalar"
	QuantizationBinary Quantization = "binary"
)

// Config is the complete configuration for the memory subsystem.
type Config struct {
	Version   int             `yaml:"version"`
	Backend   Backend         `yaml:"backend"`
	MongoDB   MongoConfig     `yaml:"mongodb"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Server    ServerConfig    `yaml:"server"`
}

// MongoConfig holds all MongoDB backend options.
type MongoConfig struct {
	// URI is the connection string. Empty falls back to the
	// OPENCLAW_MONGODB_URI environment variable.
	URI string `yaml:"uri"`
	// Database name (default: openclaw).
	Database string `yaml:"database"`
	// CollectionPrefix prefixes every collection name. Empty derives
	// "openclaw_<agent>_" from the agent id.
	CollectionPrefix string `yaml:"collectionPrefix"`

	DeploymentProfile DeploymentProfile `yaml:"deploymentProfile"`
	EmbeddingMode     EmbeddingMode     `yaml:"embeddingMode"`
	FusionMethod      FusionMethod      `yaml:"fusionMethod"`
	Quantization      Quantization      `yaml:"quantization"`

	// NumDimensions is the vector index width (default: 1024).
	NumDimensions int `yaml:"numDimensions"`
	// NumCandidates overrides the $vectorSearch candidate pool. Zero lets
	// the dispatcher derive it from the result limit. Hard capped at 10000.
	NumCandidates int `yaml:"numCandidates"`
	// AutoEmbeddingModel names the server-side model used by automated
	// mode search indexes (default: voyage-3-large).
	AutoEmbeddingModel string `yaml:"autoEmbeddingModel"`

	MaxPoolSize      uint64 `yaml:"maxPoolSize"`
	MinPoolSize      uint64 `yaml:"minPoolSize"`
	ConnectTimeoutMS int    `yaml:"connectTimeoutMs"`

	// EmbeddingCacheTTLDays expires cached embeddings; zero disables the
	// TTL index.
	EmbeddingCacheTTLDays int `yaml:"embeddingCacheTtlDays"`
	// MemoryTTLDays expires memory files not updated within the window;
	// zero keeps everything.
	MemoryTTLDays int `yaml:"memoryTtlDays"`

	EnableChangeStreams    bool `yaml:"enableChangeStreams"`
	ChangeStreamDebounceMS int  `yaml:"changeStreamDebounceMs"`
	WatchDebounceMS        int  `yaml:"watchDebounceMs"`

	// MaxSessionChunks caps chunks kept per session transcript, newest
	// first (default: 50). Fractions are floored, negatives clamp to zero.
	MaxSessionChunks int `yaml:"maxSessionChunks"`
	// SessionsDir overrides where session transcripts live. Empty derives
	// ~/.openclaw/agents/<agent>/sessions.
	SessionsDir string `yaml:"sessionsDir"`
	// ExtraPaths are additional files or directories synced and readable
	// beside the workspace memory files.
	ExtraPaths []string `yaml:"extraPaths"`

	KB KBConfig `yaml:"kb"`
}

// KBConfig configures the knowledge-base collections.
type KBConfig struct {
	Enabled         bool     `yaml:"enabled"`
	ChunkTokens     int      `yaml:"chunkTokens"`
	ChunkOverlap    int      `yaml:"chunkOverlap"`
	AutoImportPaths []string `yaml:"autoImportPaths"`
	// AutoRefreshHours re-imports autoImportPaths after this many hours;
	// zero disables the refresh.
	AutoRefreshHours int `yaml:"autoRefreshHours"`
	// MaxDocumentSize in bytes; larger documents are skipped with a
	// warning (default: 10 MiB).
	MaxDocumentSize int64 `yaml:"maxDocumentSize"`
}

// EmbeddingConfig configures the managed-mode embedding provider.
type EmbeddingConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint), "static"
	// (deterministic offline vectors), or empty for none.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
	BaseURL  string `yaml:"baseUrl"`
	// BatchSize is texts per embedding request (default: 32).
	BatchSize int `yaml:"batchSize"`
	// MaxInputTokens overrides the per-model token limit; zero resolves
	// from the model table.
	MaxInputTokens int `yaml:"maxInputTokens"`
}

// ServerConfig configures the MCP server surface.
type ServerConfig struct {
	Transport string `yaml:"transport"`
	LogLevel  string `yaml:"logLevel"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Backend: BackendMongoDB,
		MongoDB: MongoConfig{
			Database:               "openclaw",
			DeploymentProfile:      ProfileAtlasDefault,
			FusionMethod:           FusionScore,
			Quantization:           QuantizationNone,
			NumDimensions:          1024,
			AutoEmbeddingModel:     "voyage-3-large",
			MaxPoolSize:            10,
			MinPoolSize:            2,
			ConnectTimeoutMS:       5000,
			EmbeddingCacheTTLDays:  30,
			MemoryTTLDays:          0,
			EnableChangeStreams:    false,
			ChangeStreamDebounceMS: 1000,
			WatchDebounceMS:        500,
			MaxSessionChunks:       50,
			KB: KBConfig{
				Enabled:         true,
				ChunkTokens:     600,
				ChunkOverlap:    100,
				MaxDocumentSize: 10 * 1024 * 1024,
			},
		},
		Embedding: EmbeddingConfig{
			BatchSize: 32,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file,
// following the XDG base directory convention.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "recall", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "recall", "config.yaml")
	}
	return filepath.Join(home, ".config", "recall", "config.yaml")
}

// Load loads configuration for the given workspace directory.
// Precedence, lowest to highest: defaults, user config, project config,
// environment. The final result is validated.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyProfileDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromDir loads .recall.yaml (or .recall.yml) from the workspace root.
// A missing file is fine; defaults apply.
func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{".recall.yaml", ".recall.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML unmarshals a YAML file over the current config. Keys absent from
// the file keep their current values, so layering works without a merge pass.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv applies environment variables. The URI is fallback-only: a value
// from a config file wins over the environment.
func (c *Config) applyEnv() {
	if c.MongoDB.URI == "" {
		if v := os.Getenv("OPENCLAW_MONGODB_URI"); v != "" {
			c.MongoDB.URI = v
		}
	}
	if v := os.Getenv("RECALL_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if c.Embedding.APIKey == "" {
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			c.Embedding.APIKey = v
		}
	}
}

// applyProfileDefaults fills in options whose default depends on the
// deployment profile. Atlas profiles default to automated embeddings,
// community profiles to managed.
func (c *Config) applyProfileDefaults() {
	if c.MongoDB.EmbeddingMode == "" {
		switch c.MongoDB.DeploymentProfile {
		case ProfileAtlasDefault, ProfileAtlasM0:
			c.MongoDB.EmbeddingMode = EmbeddingAutomated
		default:
			c.MongoDB.EmbeddingMode = EmbeddingManaged
		}
	}
}

// EffectiveCollectionPrefix resolves the collection prefix for an agent.
// An explicit prefix wins; otherwise "openclaw_<agent>_" is derived, and a
// blank agent id yields "openclaw_".
func (c *MongoConfig) EffectiveCollectionPrefix(agentID string) string {
	if c.CollectionPrefix != "" {
		return c.CollectionPrefix
	}
	if agentID == "" {
		return "openclaw_"
	}
	return "openclaw_" + sanitizeAgentID(agentID) + "_"
}

// EffectiveSessionsDir resolves where session transcripts live for an agent.
func (c *MongoConfig) EffectiveSessionsDir(agentID string) string {
	if c.SessionsDir != "" {
		return c.SessionsDir
	}
	if agentID == "" {
		return ""
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".openclaw", "agents", sanitizeAgentID(agentID), "sessions")
}

// IndexBudget returns the search index budget for the profile; zero means
// unbounded.
func (p DeploymentProfile) IndexBudget() int {
	if p == ProfileAtlasM0 {
		return 3
	}
	return 0
}

// SupportsSearchIndexes reports whether the profile expects a mongot.
func (p DeploymentProfile) SupportsSearchIndexes() bool {
	return p != ProfileCommunityBare
}

// sanitizeAgentID lowercases the agent id and squashes anything outside
// [a-z0-9] to underscores so it is safe inside a collection name.
func sanitizeAgentID(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// FindProjectRoot finds the workspace root by walking up from startDir
// looking for a .git directory or a .recall.yaml file. Falls back to the
// starting directory.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".recall.yaml")) ||
			fileExists(filepath.Join(currentDir, ".recall.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendBuiltin, BackendQMD, BackendMongoDB:
	default:
		return fmt.Errorf("backend must be 'builtin', 'qmd', or 'mongodb', got %q", c.Backend)
	}

	m := &c.MongoDB
	switch m.DeploymentProfile {
	case ProfileAtlasDefault, ProfileAtlasM0, ProfileCommunityMongot, ProfileCommunityBare:
	default:
		return fmt.Errorf("mongodb.deploymentProfile must be one of atlas-default, atlas-m0, community-mongot, community-bare, got %q", m.DeploymentProfile)
	}
	switch m.EmbeddingMode {
	case "", EmbeddingAutomated, EmbeddingManaged:
	default:
		return fmt.Errorf("mongodb.embeddingMode must be 'automated' or 'managed', got %q", m.EmbeddingMode)
	}
	switch m.FusionMethod {
	case FusionScore, FusionRank, FusionJSMerge:
	default:
		return fmt.Errorf("mongodb.fusionMethod must be 'scoreFusion', 'rankFusion', or 'js-merge', got %q", m.FusionMethod)
	}
	switch m.Quantization {
	case QuantizationNone, QuantizationScalar, QuantizationBinary:
	default:
		return fmt.Errorf("mongodb.quantization must be 'none', 'scalar', or 'binary', got %q", m.Quantization)
	}

	if m.NumDimensions <= 0 {
		return fmt.Errorf("mongodb.numDimensions must be positive, got %d", m.NumDimensions)
	}
	if m.NumCandidates < 0 || m.NumCandidates > 10000 {
		return fmt.Errorf("mongodb.numCandidates must be between 0 and 10000, got %d", m.NumCandidates)
	}
	if m.MinPoolSize > m.MaxPoolSize {
		return fmt.Errorf("mongodb.minPoolSize (%d) must not exceed maxPoolSize (%d)", m.MinPoolSize, m.MaxPoolSize)
	}
	if m.ConnectTimeoutMS < 0 {
		return fmt.Errorf("mongodb.connectTimeoutMs must be non-negative, got %d", m.ConnectTimeoutMS)
	}
	if m.EmbeddingCacheTTLDays < 0 {
		return fmt.Errorf("mongodb.embeddingCacheTtlDays must be non-negative, got %d", m.EmbeddingCacheTTLDays)
	}
	if m.MemoryTTLDays < 0 {
		return fmt.Errorf("mongodb.memoryTtlDays must be non-negative, got %d", m.MemoryTTLDays)
	}
	if m.WatchDebounceMS < 0 || m.ChangeStreamDebounceMS < 0 {
		return fmt.Errorf("debounce intervals must be non-negative")
	}
	if m.MaxSessionChunks < 0 {
		m.MaxSessionChunks = 0
	}

	if m.KB.Enabled {
		if m.KB.ChunkTokens <= 0 {
			return fmt.Errorf("mongodb.kb.chunkTokens must be positive, got %d", m.KB.ChunkTokens)
		}
		if m.KB.ChunkOverlap < 0 || m.KB.ChunkOverlap >= m.KB.ChunkTokens {
			return fmt.Errorf("mongodb.kb.chunkOverlap must be in [0, chunkTokens), got %d", m.KB.ChunkOverlap)
		}
		if m.KB.MaxDocumentSize <= 0 {
			return fmt.Errorf("mongodb.kb.maxDocumentSize must be positive, got %d", m.KB.MaxDocumentSize)
		}
	}

	if c.Embedding.Provider != "" {
		valid := map[string]bool{"openai": true, "static": true}
		if !valid[strings.ToLower(c.Embedding.Provider)] {
			return fmt.Errorf("embedding.provider must be 'openai', 'static', or empty, got %q", c.Embedding.Provider)
		}
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batchSize must be positive, got %d", c.Embedding.BatchSize)
	}

	validTransports := map[string]bool{"stdio": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio', got %q", c.Server.Transport)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.logLevel must be 'debug', 'info', 'warn', or 'error', got %q", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
