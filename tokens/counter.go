package tokens

import (
	"fmt"
	"math"
	"sync"

	"knowledge-agent/web/types"

	"github.com/pkoukk/tiktoken-go"
)

// Usage thresholds relative to the model context limit.
const (
	warningRatio  = 0.8
	criticalRatio = 0.95
)

// perMessageOverhead approximates the role/separator tokens the chat
// template spends per message.
const perMessageOverhead = 4

// Counter computes token-usage snapshots for conversations. Encoders are
// cached after first load since building one is expensive.
type Counter struct {
	encoding string

	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

func NewCounter(encoding string) *Counter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &Counter{encoding: encoding}
}

func (c *Counter) encoder() (*tiktoken.Tiktoken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enc != nil {
		return c.enc, nil
	}
	enc, err := tiktoken.GetEncoding(c.encoding)
	if err != nil {
		return nil, fmt.Errorf("load token encoding %q: %w", c.encoding, err)
	}
	c.enc = enc
	return enc, nil
}

// Count returns the token count of one text.
func (c *Counter) Count(text string) (int, error) {
	enc, err := c.encoder()
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// Compute derives the usage snapshot for a conversation's messages against a
// model context limit. It fails outright rather than returning a partial
// snapshot, so callers never under-report usage.
func Compute(counter *Counter, messages []types.Message, limit int) (*types.TokenUsage, error) {
	if counter == nil {
		return nil, fmt.Errorf("token counter is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("context limit must be positive, got %d", limit)
	}

	total := 0
	for _, msg := range messages {
		count, err := counter.Count(msg.Content)
		if err != nil {
			return nil, err
		}
		total += count + perMessageOverhead
	}

	return snapshot(total, limit, len(messages)), nil
}

func snapshot(total, limit, messageCount int) *types.TokenUsage {
	percent := float64(total) / float64(limit) * 100
	percent = math.Round(percent*100) / 100

	remaining := limit - total
	if remaining < 0 {
		remaining = 0
	}

	return &types.TokenUsage{
		TotalTokens:   total,
		Limit:         limit,
		UsagePercent:  percent,
		Remaining:     remaining,
		IsWarning:     float64(total) >= float64(limit)*warningRatio,
		IsCritical:    float64(total) >= float64(limit)*criticalRatio,
		MessagesCount: messageCount,
	}
}
