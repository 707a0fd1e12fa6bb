package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/openclaw/recall/internal/logging"
	"github.com/openclaw/recall/internal/memory"
	"github.com/openclaw/recall/internal/search"
	"github.com/openclaw/recall/internal/store"
	"github.com/openclaw/recall/pkg/version"
)

// maxSearchResults caps the per-request result limit.
const maxSearchResults = 50

// Server bridges AI agents with the memory backend over MCP.
type Server struct {
	mcp     *mcp.Server
	backend memory.Backend

	// writer is non-nil when the backend supports structured memory
	// writes; the memory_write tool registers only then.
	writer memory.StructuredWriter

	workspace string
	logger    *slog.Logger

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// ResourceInfo contains information about a resource.
type ResourceInfo struct {
	URI      string
	Name     string
	MIMEType string
}

// ResourceContent contains the content of a resource.
type ResourceContent struct {
	URI      string
	Content  string
	MIMEType string
}

// SearchInput defines the input schema for the memory_search tool.
type SearchInput struct {
	Query      string  `json:"query" jsonschema:"the recall query to execute"`
	MaxResults int     `json:"max_results,omitempty" jsonschema:"maximum number of results, default 10"`
	MinScore   float64 `json:"min_score,omitempty" jsonschema:"minimum relevance score between 0 and 1, default 0.1; pass -1 to disable the floor"`
	SessionKey string  `json:"session_key,omitempty" jsonschema:"restrict transcript hits to one session"`
}

// SearchOutput defines the output schema for the memory_search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"merged ranked results across all memory sources"`
}

// SearchResultOutput defines a single merged search result.
type SearchResultOutput struct {
	Kind      string   `json:"kind" jsonschema:"result source: memory, kb, or structured"`
	Snippet   string   `json:"snippet" jsonschema:"matched content"`
	Score     float64  `json:"score" jsonschema:"relevance score between 0 and 1"`
	Path      string   `json:"path,omitempty" jsonschema:"origin file for chunk hits"`
	Source    string   `json:"source,omitempty" jsonschema:"memory or sessions, for chunk hits"`
	StartLine int      `json:"start_line,omitempty"`
	EndLine   int      `json:"end_line,omitempty"`
	DocID     string   `json:"doc_id,omitempty" jsonschema:"parent knowledge base document"`
	Type      string   `json:"type,omitempty" jsonschema:"entry type, for structured hits"`
	Key       string   `json:"key,omitempty" jsonschema:"entry key, for structured hits"`
	Tags      []string `json:"tags,omitempty"`
}

// NewServer creates a new MCP server over a memory backend. The workspace
// path anchors resource listings; when empty it is taken from the backend
// status. Write support is discovered by asserting for StructuredWriter.
func NewServer(backend memory.Backend, workspace string, logger *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("memory backend is required")
	}
	if workspace == "" {
		workspace = backend.Status().Workspace
	}

	s := &Server{
		backend:   backend,
		workspace: workspace,
		logger:    logging.ForSubsystem(logger, "mcp"),
	}
	if w, ok := backend.(memory.StructuredWriter); ok {
		s.writer = w
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "recall",
			Version: version.Version,
		},
		nil, // ServerOptions - capabilities are inferred from registered tools/resources
	)

	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "recall", version.Version
}

// Capabilities returns whether tools and resources are enabled.
func (s *Server) Capabilities() (hasTools, hasResources bool) {
	return true, true
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	tools := []ToolInfo{
		{
			Name:        "memory_search",
			Description: "Primary recall tool. Searches memory files, session transcripts, the knowledge base, and structured entries in one ranked list. Use this before asking the user for context they have already given.",
		},
		{
			Name:        "memory_read_file",
			Description: "Read a memory file, optionally a line window. Use after memory_search to pull the full context around a hit.",
		},
		{
			Name:        "memory_status",
			Description: "Check backend health, indexed counts, and whether semantic search is available right now. Use when results look incomplete.",
		},
		{
			Name:        "memory_sync",
			Description: "Re-index the workspace now instead of waiting for the file watcher. Use after writing memory files.",
		},
	}
	if s.writer != nil {
		tools = append(tools, ToolInfo{
			Name:        "memory_write",
			Description: "Store one typed fact (decision, preference, todo, ...) keyed for exact recall. Writing the same type and key updates the entry.",
		})
	}
	return tools
}

// CallTool invokes a tool by name with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch name {
	case "memory_search":
		return s.handleSearchTool(ctx, args)
	case "memory_read_file":
		return s.handleReadFileTool(ctx, args)
	case "memory_status":
		return s.handleStatusTool(ctx)
	case "memory_sync":
		return s.handleSyncTool(ctx, args)
	case "memory_write":
		return s.handleWriteTool(ctx, args)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_search",
		Description: "Primary recall tool. Searches memory files, session transcripts, the knowledge base, and structured entries in one ranked list. Use this before asking the user for context they have already given.",
	}, s.mcpSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_read_file",
		Description: "Read a memory file, optionally a line window. Use after memory_search to pull the full context around a hit.",
	}, s.mcpReadFileHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_status",
		Description: "Check backend health, indexed counts, and whether semantic search is available right now. Use when results look incomplete.",
	}, s.mcpStatusHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_sync",
		Description: "Re-index the workspace now instead of waiting for the file watcher. Use after writing memory files.",
	}, s.mcpSyncHandler)

	count := 4
	if s.writer != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "memory_write",
			Description: "Store one typed fact (decision, preference, todo, ...) keyed for exact recall. Writing the same type and key updates the entry.",
		}, s.mcpWriteHandler)
		count++
	}

	s.logger.Info("MCP tools registered", slog.Int("count", count))
}

// runSearch executes one search with validation, clamping, and request
// logging. Both the SDK handler and the map dispatcher route through it.
func (s *Server) runSearch(ctx context.Context, input SearchInput) ([]search.Result, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	start := time.Now()
	requestID := generateRequestID()
	opts := memory.SearchOptions{
		MaxResults: clampLimit(input.MaxResults, search.DefaultMaxResults, 1, maxSearchResults),
		MinScore:   input.MinScore,
		SessionKey: input.SessionKey,
	}

	s.logger.Info("memory_search started",
		slog.String("request_id", requestID),
		slog.String("query", query),
		slog.Int("max_results", opts.MaxResults))

	results, err := s.backend.Search(ctx, query, opts)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("memory_search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err, ErrCodeSearchFailed)
	}

	s.logger.Info("memory_search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))
	return results, nil
}

// runReadFile executes one windowed read. Every denial surfaces as the
// same invalid-params error, so responses never reveal filesystem layout.
func (s *Server) runReadFile(ctx context.Context, input ReadFileInput) (*ReadFileOutput, error) {
	if strings.TrimSpace(input.Path) == "" {
		return nil, NewInvalidParamsError("path required")
	}

	requestID := generateRequestID()
	s.logger.Info("memory_read_file started",
		slog.String("request_id", requestID),
		slog.String("path", input.Path),
		slog.Int("from", input.From),
		slog.Int("lines", input.Lines))

	fc, err := s.backend.ReadFile(ctx, memory.ReadFileRequest{
		Path:  input.Path,
		From:  input.From,
		Lines: input.Lines,
	})
	if err != nil {
		s.logger.Warn("memory_read_file denied",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, MapError(err, ErrCodeInternalError)
	}

	s.logger.Info("memory_read_file completed",
		slog.String("request_id", requestID),
		slog.Int("lines", fc.Lines),
		slog.Int("total", fc.Total))
	return &ReadFileOutput{
		Path:    fc.Path,
		Content: fc.Content,
		From:    fc.From,
		Lines:   fc.Lines,
		Total:   fc.Total,
	}, nil
}

// runSync executes one ingest pass through the backend.
func (s *Server) runSync(ctx context.Context, input SyncInput) (*SyncOutput, error) {
	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("memory_sync started",
		slog.String("request_id", requestID),
		slog.Bool("force", input.Force))

	res, err := s.backend.Sync(ctx, memory.SyncOptions{
		Force:  input.Force,
		Reason: "mcp",
	})
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("memory_sync failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err, ErrCodeSyncFailed)
	}

	out := &SyncOutput{}
	if res != nil && res.Ingest != nil {
		out.Files = res.Ingest.Files
		out.Chunks = res.Ingest.Chunks
		out.Skipped = res.Ingest.Skipped
		out.Failed = res.Ingest.Failed
		out.Repaired = res.Ingest.Repaired
		out.DeletedFiles = res.Ingest.DeletedFiles
		out.DeletedChunks = res.Ingest.DeletedChunks
		out.DurationMS = res.Ingest.Duration.Milliseconds()
	}
	if res != nil && res.KB != nil {
		out.KBDocuments = res.KB.Documents
		out.KBChunks = res.KB.Chunks
	}

	s.logger.Info("memory_sync completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("files", out.Files),
		slog.Int("chunks", out.Chunks))
	return out, nil
}

// writeEntry validates and stores one structured memory entry.
func (s *Server) writeEntry(ctx context.Context, input WriteInput) (*WriteOutput, error) {
	if s.writer == nil {
		return nil, NewMethodNotFoundError("memory_write")
	}

	typ := store.StructuredType(strings.TrimSpace(input.Type))
	if !validStructuredType(typ) {
		return nil, NewInvalidParamsError("type must be one of: decision, preference, person, todo, fact, project, architecture, custom")
	}
	key := strings.TrimSpace(input.Key)
	if key == "" {
		return nil, NewInvalidParamsError("key parameter is required and must be a non-empty string")
	}
	if strings.TrimSpace(input.Value) == "" {
		return nil, NewInvalidParamsError("value parameter is required and must be a non-empty string")
	}

	confidence := input.Confidence
	if confidence <= 0 {
		confidence = 1
	}

	requestID := generateRequestID()
	s.logger.Info("memory_write started",
		slog.String("request_id", requestID),
		slog.String("type", string(typ)),
		slog.String("key", key))

	err := s.writer.WriteStructuredMemory(ctx, store.StructuredEntry{
		Type:       typ,
		Key:        key,
		Value:      input.Value,
		Context:    input.Context,
		Tags:       input.Tags,
		Confidence: confidence,
		Source:     "mcp",
	})
	if err != nil {
		s.logger.Error("memory_write failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, MapError(err, ErrCodeWriteFailed)
	}

	s.logger.Info("memory_write completed", slog.String("request_id", requestID))
	return &WriteOutput{Type: string(typ), Key: key, Stored: true}, nil
}

// buildStatus assembles the status snapshot, including a live embedding
// probe. The memory_status tool and the recall://status resource share it.
func (s *Server) buildStatus(ctx context.Context) *StatusOutput {
	st := s.backend.Status()
	out := &StatusOutput{
		Backend:   st.Backend,
		Files:     st.Files,
		Chunks:    st.Chunks,
		Dirty:     st.Dirty,
		Sources:   st.Sources,
		Workspace: DescribeWorkspace(s.workspace),
		Embeddings: EmbeddingInfo{
			Mode:     customString(st.Custom, "embeddingMode"),
			Provider: st.Provider,
			Model:    st.Model,
		},
		Search: SearchCapabilities{
			Profile:      customString(st.Custom, "deploymentProfile"),
			VectorSearch: customBool(st.Custom, "vectorSearch"),
			TextSearch:   customBool(st.Custom, "textSearch"),
			ServerFusion: customBool(st.Custom, "serverFusion"),
			Fusion:       customString(st.Custom, "fusionMethod"),
			Quantization: customString(st.Custom, "quantization"),
		},
	}
	if out.Embeddings.Provider == "" {
		out.Embeddings.Provider = "none"
	}

	available, err := s.backend.ProbeEmbeddingAvailability(ctx)
	if err != nil {
		s.logger.Warn("embedding probe failed", slog.Any("error", err))
	}
	out.Embeddings.Available = available

	s.logger.Debug("status snapshot built",
		slog.Int64("files", out.Files),
		slog.Int64("chunks", out.Chunks),
		slog.Bool("embedding_available", available))
	return out
}

// handleSearchTool handles a map-based memory_search invocation.
// Returns markdown-formatted results.
func (s *Server) handleSearchTool(ctx context.Context, args map[string]any) (string, error) {
	input := SearchInput{}
	if q, ok := args["query"].(string); ok {
		input.Query = q
	}
	if n, ok := args["max_results"].(float64); ok {
		input.MaxResults = int(n)
	}
	if f, ok := args["min_score"].(float64); ok {
		input.MinScore = f
	}
	if k, ok := args["session_key"].(string); ok {
		input.SessionKey = k
	}

	results, err := s.runSearch(ctx, input)
	if err != nil {
		return "", err
	}
	return FormatSearchResults(strings.TrimSpace(input.Query), results), nil
}

// handleReadFileTool handles a map-based memory_read_file invocation.
// Returns markdown-formatted file content.
func (s *Server) handleReadFileTool(ctx context.Context, args map[string]any) (string, error) {
	input := ReadFileInput{}
	if p, ok := args["path"].(string); ok {
		input.Path = p
	}
	if n, ok := args["from"].(float64); ok {
		input.From = int(n)
	}
	if n, ok := args["lines"].(float64); ok {
		input.Lines = int(n)
	}

	out, err := s.runReadFile(ctx, input)
	if err != nil {
		return "", err
	}
	return FormatFileContent(out), nil
}

// handleStatusTool handles a map-based memory_status invocation.
func (s *Server) handleStatusTool(ctx context.Context) (*StatusOutput, error) {
	return s.buildStatus(ctx), nil
}

// handleSyncTool handles a map-based memory_sync invocation.
// Returns a markdown-formatted summary.
func (s *Server) handleSyncTool(ctx context.Context, args map[string]any) (string, error) {
	input := SyncInput{}
	if f, ok := args["force"].(bool); ok {
		input.Force = f
	}

	out, err := s.runSync(ctx, input)
	if err != nil {
		return "", err
	}
	return FormatSyncResult(out), nil
}

// handleWriteTool handles a map-based memory_write invocation.
func (s *Server) handleWriteTool(ctx context.Context, args map[string]any) (string, error) {
	input := WriteInput{}
	if t, ok := args["type"].(string); ok {
		input.Type = t
	}
	if k, ok := args["key"].(string); ok {
		input.Key = k
	}
	if v, ok := args["value"].(string); ok {
		input.Value = v
	}
	if c, ok := args["context"].(string); ok {
		input.Context = c
	}
	if c, ok := args["confidence"].(float64); ok {
		input.Confidence = c
	}
	if tags, ok := args["tags"].([]interface{}); ok {
		for _, t := range tags {
			if str, ok := t.(string); ok {
				input.Tags = append(input.Tags, str)
			}
		}
	}

	out, err := s.writeEntry(ctx, input)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Stored %s '%s'.", out.Type, out.Key), nil
}

// mcpSearchHandler is the MCP SDK handler for the memory_search tool.
func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	results, err := s.runSearch(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		output.Results = append(output.Results, toResultOutput(r))
	}
	return nil, output, nil
}

// mcpReadFileHandler is the MCP SDK handler for the memory_read_file tool.
func (s *Server) mcpReadFileHandler(ctx context.Context, _ *mcp.CallToolRequest, input ReadFileInput) (
	*mcp.CallToolResult,
	*ReadFileOutput,
	error,
) {
	out, err := s.runReadFile(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// mcpStatusHandler is the MCP SDK handler for the memory_status tool.
func (s *Server) mcpStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StatusInput) (
	*mcp.CallToolResult,
	*StatusOutput,
	error,
) {
	return nil, s.buildStatus(ctx), nil
}

// mcpSyncHandler is the MCP SDK handler for the memory_sync tool.
func (s *Server) mcpSyncHandler(ctx context.Context, _ *mcp.CallToolRequest, input SyncInput) (
	*mcp.CallToolResult,
	*SyncOutput,
	error,
) {
	out, err := s.runSync(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// mcpWriteHandler is the MCP SDK handler for the memory_write tool.
func (s *Server) mcpWriteHandler(ctx context.Context, _ *mcp.CallToolRequest, input WriteInput) (
	*mcp.CallToolResult,
	*WriteOutput,
	error,
) {
	out, err := s.writeEntry(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// toResultOutput converts a merged hit to the output schema.
func toResultOutput(r search.Result) SearchResultOutput {
	return SearchResultOutput{
		Kind:      string(r.Kind),
		Snippet:   r.Snippet,
		Score:     r.Score,
		Path:      r.Path,
		Source:    r.Source,
		StartLine: r.StartLine,
		EndLine:   r.EndLine,
		DocID:     r.DocID,
		Type:      r.Type,
		Key:       r.Key,
		Tags:      r.Tags,
	}
}

// validStructuredType reports whether a type is one of the known entry types.
func validStructuredType(t store.StructuredType) bool {
	switch t {
	case store.StructuredDecision, store.StructuredPreference, store.StructuredPerson,
		store.StructuredTodo, store.StructuredFact, store.StructuredProject,
		store.StructuredArchitecture, store.StructuredCustom:
		return true
	default:
		return false
	}
}

// Serve starts the server on the given transport. The MCP protocol owns
// stdout in stdio mode, so logs must already be routed to a file.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server",
		slog.String("transport", transport),
		slog.String("version", version.Version))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources. The MCP server itself stops when its
// run context is canceled.
func (s *Server) Close() error {
	return nil
}

// customString reads a string from the backend's custom status map.
func customString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}

// customBool reads a bool from the backend's custom status map.
func customBool(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	v, _ := m[key].(bool)
	return v
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	return uuid.NewString()[:8]
}
