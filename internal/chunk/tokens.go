package chunk

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens in a piece of text.
type TokenCounter interface {
	Count(text string) int
}

var (
	// Encodings are expensive to initialize, so they are cached per model.
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.Mutex
)

// encodingFor resolves the tokenizer for a model, falling back to
// cl100k_base for models tiktoken does not know.
func encodingFor(model string) (*tiktoken.Tiktoken, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if enc, ok := encodingCache[model]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding: %w", err)
		}
	}

	encodingCache[model] = enc
	return enc, nil
}

// tiktokenCounter counts tokens with a real BPE encoding.
type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter returns a TokenCounter backed by the tokenizer for model.
func NewTokenCounter(model string) (TokenCounter, error) {
	enc, err := encodingFor(model)
	if err != nil {
		return nil, err
	}
	return &tiktokenCounter{enc: enc}, nil
}

func (c *tiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}
