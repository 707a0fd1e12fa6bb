package mcp

// ReadFileInput defines the input schema for the memory_read_file tool.
type ReadFileInput struct {
	Path  string `json:"path" jsonschema:"memory file path, workspace-relative or absolute within the memory surface"`
	From  int    `json:"from,omitempty" jsonschema:"1-based first line to return, default 1"`
	Lines int    `json:"lines,omitempty" jsonschema:"number of lines to return, default through end of file"`
}

// ReadFileOutput defines the output schema for the memory_read_file tool.
type ReadFileOutput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	From    int    `json:"from"`
	Lines   int    `json:"lines"`
	Total   int    `json:"total"`
}

// StatusInput defines the input schema for the memory_status tool (no parameters).
type StatusInput struct{}

// StatusOutput defines the output schema for the memory_status tool.
type StatusOutput struct {
	Backend    string             `json:"backend"`
	Workspace  WorkspaceInfo      `json:"workspace"`
	Files      int64              `json:"files"`
	Chunks     int64              `json:"chunks"`
	Dirty      bool               `json:"dirty"`
	Sources    []string           `json:"sources"`
	Embeddings EmbeddingInfo      `json:"embeddings"`
	Search     SearchCapabilities `json:"search"`
}

// EmbeddingInfo describes the active embedding path.
type EmbeddingInfo struct {
	Mode     string `json:"mode"`     // "automated" (server-side) or "managed" (client-side)
	Provider string `json:"provider"` // "atlas", "voyage", "openai", or "none"
	Model    string `json:"model"`

	// Available reports whether semantic search answered a live probe.
	// Agents fall back to keyword-style queries when false.
	Available bool `json:"available"`
}

// SearchCapabilities describes the strongest pipeline the deployment answers.
type SearchCapabilities struct {
	Profile      string `json:"profile"`
	VectorSearch bool   `json:"vector_search"`
	TextSearch   bool   `json:"text_search"`
	ServerFusion bool   `json:"server_fusion"`
	Fusion       string `json:"fusion"`
	Quantization string `json:"quantization,omitempty"`
}

// WorkspaceInfo describes the memory surface rooted at the workspace.
type WorkspaceInfo struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	HasRootFile bool   `json:"has_root_file"` // MEMORY.md or memory.md exists
	NoteFiles   int    `json:"note_files"`
}

// SyncInput defines the input schema for the memory_sync tool.
type SyncInput struct {
	Force bool `json:"force,omitempty" jsonschema:"re-ingest files even when content hashes are unchanged"`
}

// SyncOutput defines the output schema for the memory_sync tool.
type SyncOutput struct {
	Files         int   `json:"files"`
	Chunks        int   `json:"chunks"`
	Skipped       int   `json:"skipped"`
	Failed        int   `json:"failed"`
	Repaired      int   `json:"repaired,omitempty"`
	DeletedFiles  int   `json:"deleted_files"`
	DeletedChunks int64 `json:"deleted_chunks"`

	// Knowledge base refresh totals, present when a refresh piggybacked
	// on this pass.
	KBDocuments int `json:"kb_documents,omitempty"`
	KBChunks    int `json:"kb_chunks,omitempty"`

	DurationMS int64 `json:"duration_ms"`
}

// WriteInput defines the input schema for the memory_write tool.
type WriteInput struct {
	Type       string   `json:"type" jsonschema:"entry type: decision, preference, person, todo, fact, project, architecture, or custom"`
	Key        string   `json:"key" jsonschema:"natural key identifying the entry within its type"`
	Value      string   `json:"value" jsonschema:"the fact to remember"`
	Context    string   `json:"context,omitempty" jsonschema:"supporting context stored and embedded with the value"`
	Tags       []string `json:"tags,omitempty" jsonschema:"labels for filtered recall"`
	Confidence float64  `json:"confidence,omitempty" jsonschema:"confidence between 0 and 1, default 1"`
}

// WriteOutput defines the output schema for the memory_write tool.
type WriteOutput struct {
	Type   string `json:"type"`
	Key    string `json:"key"`
	Stored bool   `json:"stored"`
}
