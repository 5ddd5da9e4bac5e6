// Package tokencount provides token counting for LLM API calls.
//
// It uses tiktoken-go to count tokens for cost and usage accounting. Models
// without a known tiktoken encoding fall back to the cl100k_base encoding;
// if even that fails, a bytes/4 approximation is used so that counting never
// blocks a call.
package tokencount

import (
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

// Counter provides thread-safe token counting with cached encodings.
type Counter struct {
	mu    sync.RWMutex
	cache map[string]*tiktoken.Tiktoken
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{cache: make(map[string]*tiktoken.Tiktoken)}
}

// DefaultCounter is a process-wide shared counter.
var DefaultCounter = NewCounter()

// Count returns the token count of text under the given model's encoding.
func (c *Counter) Count(model, text string) int {
	enc := c.encodingFor(model)
	if enc == nil {
		return (len(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

func (c *Counter) encodingFor(model string) *tiktoken.Tiktoken {
	c.mu.RLock()
	enc, ok := c.cache[model]
	c.mu.RUnlock()
	if ok {
		return enc
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.cache[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			enc = nil
		}
	}
	c.cache[model] = enc
	return enc
}

// Count counts tokens using the shared DefaultCounter.
func Count(model, text string) int { return DefaultCounter.Count(model, text) }
