// Package chunk splits markdown files and session transcripts into
// line-aligned token windows. Chunk ids are derived from the path and line
// range, so re-chunking unchanged content always produces the same ids.
package chunk

import (
	"fmt"
	"strings"
)

// Window defaults. Memory files use the small window; knowledge-base
// documents use the large one.
const (
	DefaultWindowTokens  = 400
	DefaultOverlapTokens = 80
	KBWindowTokens       = 600
	KBOverlapTokens      = 100
)

// Chunk is a line-aligned slice of a source file.
type Chunk struct {
	Path      string
	Text      string
	StartLine int // 1-indexed
	EndLine   int // inclusive
	Tokens    int
}

// ID returns the deterministic chunk id "{path}:{startLine}:{endLine}".
func (c *Chunk) ID() string {
	return fmt.Sprintf("%s:%d:%d", c.Path, c.StartLine, c.EndLine)
}

// Options configure a Chunker.
type Options struct {
	// WindowTokens is the target chunk size (default: 400).
	WindowTokens int
	// OverlapTokens is how many tokens consecutive chunks share
	// (default: 80). Overlap is line-aligned, so the actual overlap is the
	// smallest run of whole lines covering at least this many tokens.
	OverlapTokens int
	// Model selects the tokenizer (default: cl100k_base via fallback).
	Model string
	// Counter overrides the token counter; nil uses the model tokenizer.
	Counter TokenCounter
}

// WithDefaults fills in zero values.
func (o Options) WithDefaults() Options {
	if o.WindowTokens <= 0 {
		o.WindowTokens = DefaultWindowTokens
	}
	if o.OverlapTokens < 0 {
		o.OverlapTokens = 0
	}
	if o.OverlapTokens >= o.WindowTokens {
		o.OverlapTokens = o.WindowTokens / 4
	}
	return o
}

// Chunker splits text into token windows.
type Chunker struct {
	opts    Options
	counter TokenCounter
}

// NewChunker creates a Chunker. When no Counter is supplied the model
// tokenizer is initialized, which may touch the tiktoken cache directory.
func NewChunker(opts Options) (*Chunker, error) {
	opts = opts.WithDefaults()

	counter := opts.Counter
	if counter == nil {
		var err error
		counter, err = NewTokenCounter(opts.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tokenizer: %w", err)
		}
	}

	return &Chunker{opts: opts, counter: counter}, nil
}

// CountTokens counts tokens in text.
func (c *Chunker) CountTokens(text string) int {
	return c.counter.Count(text)
}

// Split chunks content into line-aligned token windows. Blank-only content
// yields no chunks. A single line longer than the window becomes its own
// chunk; lines are never split internally.
func (c *Chunker) Split(path, content string) []Chunk {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")

	tokens := make([]int, len(lines))
	for i, line := range lines {
		// The newline spent joining lines is charged to the line itself.
		tokens[i] = c.counter.Count(line + "\n")
	}

	var chunks []Chunk
	start := 0
	for start < len(lines) {
		// Skip blank leading lines so chunks never start with padding.
		for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
			start++
		}
		if start >= len(lines) {
			break
		}

		end := start
		sum := tokens[start]
		for end+1 < len(lines) && sum+tokens[end+1] <= c.opts.WindowTokens {
			end++
			sum += tokens[end]
		}

		text := strings.Join(lines[start:end+1], "\n")
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, Chunk{
				Path:      path,
				Text:      text,
				StartLine: start + 1,
				EndLine:   end + 1,
				Tokens:    sum,
			})
		}

		if end+1 >= len(lines) {
			break
		}

		// Walk back from the chunk end until the overlap budget is covered.
		next := end + 1
		if c.opts.OverlapTokens > 0 {
			acc := 0
			for next-1 > start && acc+tokens[next-1] <= c.opts.OverlapTokens {
				next--
				acc += tokens[next]
			}
		}
		// Guarantee forward progress even when one line eats the window.
		if next <= start {
			next = end + 1
		}
		start = next
	}

	return chunks
}
