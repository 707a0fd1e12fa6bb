package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/openclaw/recall/internal/memory"
)

// MaxResourceSize is the maximum file size served as a resource (1MB).
const MaxResourceSize = 1024 * 1024

// statusResourceURI is the backend state snapshot resource.
const statusResourceURI = "recall://status"

// RegisterResources lists the workspace memory surface and registers each
// file as an MCP resource, plus the status snapshot. Call after the server
// is created and before serving.
func (s *Server) RegisterResources(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.workspace == "" {
		return fmt.Errorf("workspace must be set before registering resources")
	}

	files, err := memoryFiles(s.workspace)
	if err != nil {
		return fmt.Errorf("list memory files: %w", err)
	}

	for _, rel := range files {
		s.registerFileResource(rel)
	}
	s.registerStatusResource()

	s.logger.Info("registered resources", slog.Int("count", len(files)+1))
	return nil
}

// registerFileResource registers a single memory file as an MCP resource.
func (s *Server) registerFileResource(rel string) {
	description := rel
	if info, err := os.Stat(filepath.Join(s.workspace, filepath.FromSlash(rel))); err == nil {
		description = fmt.Sprintf("%s (%s)", rel, humanSize(info.Size()))
	}

	s.mcp.AddResource(
		&mcp.Resource{
			Name:        filepath.Base(rel),
			URI:         "memory://" + rel,
			Description: description,
			MIMEType:    mimeTypeForPath(rel),
		},
		s.makeFileHandler(rel),
	)
}

// makeFileHandler creates a read handler for a specific memory file.
func (s *Server) makeFileHandler(rel string) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return s.handleReadResource(ctx, rel)
	}
}

// handleReadResource serves file content through the backend's read
// policy, so resources observe the same containment rules as the
// memory_read_file tool.
func (s *Server) handleReadResource(ctx context.Context, rel string) (*mcp.ReadResourceResult, error) {
	fc, err := s.backend.ReadFile(ctx, memory.ReadFileRequest{Path: rel})
	if err != nil {
		return nil, MapError(err, ErrCodeInternalError)
	}

	if len(fc.Content) > MaxResourceSize {
		return nil, &MCPError{
			Code:    ErrCodeFileTooLarge,
			Message: fmt.Sprintf("file too large: %d bytes (max %d)", len(fc.Content), MaxResourceSize),
		}
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      "memory://" + rel,
				MIMEType: mimeTypeForPath(rel),
				Text:     fc.Content,
			},
		},
	}, nil
}

// registerStatusResource registers the backend state snapshot resource.
func (s *Server) registerStatusResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "status",
			URI:         statusResourceURI,
			Description: "Memory backend state and capability snapshot",
			MIMEType:    "application/json",
		},
		s.makeStatusResourceHandler(),
	)
}

// makeStatusResourceHandler creates a handler for the status resource.
func (s *Server) makeStatusResourceHandler() mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		content, err := s.statusJSON(ctx)
		if err != nil {
			return nil, err
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      statusResourceURI,
					MIMEType: "application/json",
					Text:     content,
				},
			},
		}, nil
	}
}

// statusJSON renders the status snapshot for the resource surface.
func (s *Server) statusJSON(ctx context.Context) (string, error) {
	content, err := json.MarshalIndent(s.buildStatus(ctx), "", "  ")
	if err != nil {
		return "", MapError(err, ErrCodeInternalError)
	}
	return string(content), nil
}

// ListResources returns all available resources.
func (s *Server) ListResources(ctx context.Context, cursor string) ([]ResourceInfo, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.workspace == "" {
		return nil, "", fmt.Errorf("workspace is not set")
	}
	files, err := memoryFiles(s.workspace)
	if err != nil {
		return nil, "", err
	}

	resources := make([]ResourceInfo, 0, len(files)+1)
	for _, rel := range files {
		resources = append(resources, ResourceInfo{
			URI:      "memory://" + rel,
			Name:     rel,
			MIMEType: mimeTypeForPath(rel),
		})
	}
	resources = append(resources, ResourceInfo{
		URI:      statusResourceURI,
		Name:     "status",
		MIMEType: "application/json",
	})

	return resources, "", nil // No pagination for now
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (*ResourceContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case uri == statusResourceURI:
		content, err := s.statusJSON(ctx)
		if err != nil {
			return nil, err
		}
		return &ResourceContent{
			URI:      uri,
			Content:  content,
			MIMEType: "application/json",
		}, nil

	case strings.HasPrefix(uri, "memory://"):
		rel := strings.TrimPrefix(uri, "memory://")
		if rel == "" {
			return nil, NewResourceNotFoundError(uri)
		}
		fc, err := s.backend.ReadFile(ctx, memory.ReadFileRequest{Path: rel})
		if err != nil {
			return nil, MapError(err, ErrCodeInternalError)
		}
		return &ResourceContent{
			URI:      uri,
			Content:  fc.Content,
			MIMEType: mimeTypeForPath(rel),
		}, nil

	default:
		return nil, NewResourceNotFoundError(uri)
	}
}

// mimeTypeForPath returns the MIME type for a memory surface path. The
// surface is markdown plus JSONL transcripts, nothing else.
func mimeTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md":
		return "text/markdown"
	case ".jsonl":
		return "application/x-ndjson"
	default:
		return "text/plain"
	}
}

// humanSize formats bytes as a human-readable string.
func humanSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)

	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
