// Package store is the MongoDB persistence layer: document types, schema and
// index management, capability detection, and the data operations the sync
// engine and manager run against the collections.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/openclaw/recall/internal/embed"
)

// Source identifies where a chunk's content came from.
type Source string

const (
	SourceMemory   Source = "memory"
	SourceSessions Source = "sessions"
	SourceKB       Source = "kb"
)

// Base collection names. The configured collection prefix is prepended to
// each, so one database can host several agents side by side.
const (
	CollChunks     = "chunks"
	CollFiles      = "files"
	CollKBDocs     = "knowledge_base"
	CollKBChunks   = "kb_chunks"
	CollStructured = "structured_mem"
	CollCache      = "embedding_cache"
	CollMeta       = "meta"
)

// Name constants for keys in BSON documents.
const (
	keyID              = "_id"
	keyPath            = "path"
	keySource          = "source"
	keyHash            = "hash"
	keyText            = "text"
	keyEmbedding       = "embedding"
	keyEmbeddingStatus = "embeddingStatus"
	keyUpdatedAt       = "updatedAt"
	keyCreatedAt       = "createdAt"
	keyDocID           = "docId"
	keyTags            = "tags"
	keyAgentID         = "agentId"
	keyType            = "type"
	keyKey             = "key"
	keyValue           = "value"
	keyContext         = "context"
	keyModel           = "model"
	keyProvider        = "provider"
	keyProviderKey     = "providerKey"
	keyStartLine       = "startLine"
	keyEndLine         = "endLine"
)

// StructuredType enumerates the structured memory entry types.
type StructuredType string

const (
	StructuredDecision     StructuredType = "decision"
	StructuredPreference   StructuredType = "preference"
	StructuredPerson       StructuredType = "person"
	StructuredTodo         StructuredType = "todo"
	StructuredFact         StructuredType = "fact"
	StructuredProject      StructuredType = "project"
	StructuredArchitecture StructuredType = "architecture"
	StructuredCustom       StructuredType = "custom"
)

// KBSourceType enumerates where a knowledge base document came from.
type KBSourceType string

const (
	KBSourceFile   KBSourceType = "file"
	KBSourceURL    KBSourceType = "url"
	KBSourceManual KBSourceType = "manual"
	KBSourceAPI    KBSourceType = "api"
)

// Chunk is one retrievable slice of a memory or session file. The _id is
// deterministic so re-ingesting a file replaces rather than duplicates.
type Chunk struct {
	ID              string       `bson:"_id"` // "{path}:{startLine}:{endLine}"
	Path            string       `bson:"path"`
	Source          Source       `bson:"source"`
	StartLine       int          `bson:"startLine"`
	EndLine         int          `bson:"endLine"`
	Hash            string       `bson:"hash"` // sha256 of the chunk text
	Model           string       `bson:"model,omitempty"`
	Text            string       `bson:"text"`
	Embedding       []float32    `bson:"embedding,omitempty"`
	EmbeddingStatus embed.Status `bson:"embeddingStatus"`
	UpdatedAt       time.Time    `bson:"updatedAt"`
}

// FileMeta tracks one ingested file for hash-based change detection.
type FileMeta struct {
	Path      string    `bson:"_id"`
	Source    Source    `bson:"source"`
	Hash      string    `bson:"hash"` // sha256 of the whole file
	ModTime   time.Time `bson:"mtime"`
	Size      int64     `bson:"size"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// KBSource describes the origin of a knowledge base document.
type KBSource struct {
	Type KBSourceType `bson:"type"`
	Path string       `bson:"path,omitempty"`
	URL  string       `bson:"url,omitempty"`
}

// KBDocument is one document in the knowledge base. Its chunks live in the
// kb_chunks collection keyed by DocID.
type KBDocument struct {
	DocID     string    `bson:"_id"`
	Title     string    `bson:"title"`
	Source    KBSource  `bson:"source"`
	Hash      string    `bson:"hash"`
	Tags      []string  `bson:"tags,omitempty"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// KBChunk is one retrievable slice of a knowledge base document.
type KBChunk struct {
	ID              string       `bson:"_id"` // "{docID}:{startLine}:{endLine}"
	DocID           string       `bson:"docId"`
	Path            string       `bson:"path,omitempty"`
	Text            string       `bson:"text"`
	StartLine       int          `bson:"startLine"`
	EndLine         int          `bson:"endLine"`
	Embedding       []float32    `bson:"embedding,omitempty"`
	EmbeddingStatus embed.Status `bson:"embeddingStatus"`
	UpdatedAt       time.Time    `bson:"updatedAt"`
}

// StructuredEntry is an explicit, typed memory written by the agent rather
// than ingested from files. Uniqueness is (agentId, type, key).
type StructuredEntry struct {
	ID              string         `bson:"_id"` // "{agentId}:{type}:{key}"
	AgentID         string         `bson:"agentId"`
	Type            StructuredType `bson:"type"`
	Key             string         `bson:"key"`
	Value           string         `bson:"value"`
	Context         string         `bson:"context,omitempty"`
	Confidence      float64        `bson:"confidence"`
	Tags            []string       `bson:"tags,omitempty"`
	Source          string         `bson:"source,omitempty"`
	Embedding       []float32      `bson:"embedding,omitempty"`
	EmbeddingStatus embed.Status   `bson:"embeddingStatus"`
	CreatedAt       time.Time      `bson:"createdAt"`
	UpdatedAt       time.Time      `bson:"updatedAt"`
}

// EmbeddingText is the string the entry is embedded under: the value, plus
// the context when present.
func (e *StructuredEntry) EmbeddingText() string {
	if e.Context != "" {
		return e.Value + " " + e.Context
	}
	return e.Value
}

// CacheEntry is one durable embedding-cache row. The optional TTL index on
// createdAt expires old rows server-side.
type CacheEntry struct {
	ID          string    `bson:"_id"` // "{provider}:{model}:{providerKey}:{hash}"
	Provider    string    `bson:"provider"`
	Model       string    `bson:"model"`
	ProviderKey string    `bson:"providerKey"`
	Hash        string    `bson:"hash"`
	Embedding   []float32 `bson:"embedding"`
	CreatedAt   time.Time `bson:"createdAt"`
}

// MetaEntry is a small key/value row for bookkeeping state, e.g. the
// kb_last_refresh timestamp.
type MetaEntry struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// ChunkID builds the deterministic chunk identifier.
func ChunkID(path string, startLine, endLine int) string {
	return fmt.Sprintf("%s:%d:%d", path, startLine, endLine)
}

// KBChunkID builds the deterministic knowledge base chunk identifier.
func KBChunkID(docID string, startLine, endLine int) string {
	return fmt.Sprintf("%s:%d:%d", docID, startLine, endLine)
}

// StructuredID builds the natural key for a structured entry.
func StructuredID(agentID string, typ StructuredType, key string) string {
	return fmt.Sprintf("%s:%s:%s", agentID, typ, key)
}

// CacheID builds the composite embedding-cache key.
func CacheID(provider, model, providerKey, hash string) string {
	return fmt.Sprintf("%s:%s:%s:%s", provider, model, providerKey, hash)
}

// KBDocID derives a stable document id from the source identity (path, URL,
// or caller-supplied name): the first 16 bytes of its sha256, hex-encoded.
func KBDocID(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:16])
}

// ContentHash returns the sha256 hex digest used for file and chunk hashes.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
