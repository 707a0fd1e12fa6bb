// Package mcp implements the Model Context Protocol server for recall.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/openclaw/recall/internal/memory"
)

// Custom MCP error codes for recall.
const (
	// ErrCodeBackendClosed indicates the memory backend has shut down.
	ErrCodeBackendClosed = -32001

	// ErrCodeSearchFailed indicates the search pipeline failed.
	ErrCodeSearchFailed = -32002

	// ErrCodeSyncFailed indicates an ingest pass failed.
	ErrCodeSyncFailed = -32003

	// ErrCodeWriteFailed indicates a structured memory write failed.
	ErrCodeWriteFailed = -32004

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32005

	// ErrCodeFileTooLarge indicates a file exceeds the resource size cap.
	ErrCodeFileTooLarge = -32006

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts backend errors to MCP errors. Known sentinels map to
// their dedicated codes; anything else falls back to the caller's code so
// a search failure and a sync failure stay distinguishable. Detail stays
// in the server log, not in the wire message.
func MapError(err error, fallback int) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	switch {
	case errors.Is(err, memory.ErrClosed):
		return &MCPError{
			Code:    ErrCodeBackendClosed,
			Message: "Memory backend is closed.",
		}
	case errors.Is(err, memory.ErrPathRequired):
		// The read policy collapses every denial into this one error so
		// the response never reveals filesystem layout.
		return NewInvalidParamsError("path required")
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	default:
		return &MCPError{
			Code:    fallback,
			Message: fallbackMessage(fallback),
		}
	}
}

// fallbackMessage returns the generic wire message for a fallback code.
func fallbackMessage(code int) string {
	switch code {
	case ErrCodeBackendClosed:
		return "Memory backend is closed."
	case ErrCodeSearchFailed:
		return "Search failed."
	case ErrCodeSyncFailed:
		return "Sync failed."
	case ErrCodeWriteFailed:
		return "Structured memory write failed."
	case ErrCodeTimeout:
		return "Request timed out."
	case ErrCodeFileTooLarge:
		return "File is too large to serve."
	default:
		return "Internal server error."
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown methods/tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}
