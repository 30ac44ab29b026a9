package tts

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

// Cache memoizes engine responses by (text, voice, language). Concurrent
// misses for the same key share one engine call; each caller stops waiting
// when its own context ends. Cached Audio values are
// shared between callers and must be treated as read-only.
type Cache struct {
	next    Synthesizer
	entries *lru.Cache[Request, Audio]
	flight  singleflight.Group
	lookups metric.Int64Counter
}

func NewCache(next Synthesizer, size int) (*Cache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", size)
	}
	entries, err := lru.New[Request, Audio](size)
	if err != nil {
		return nil, fmt.Errorf("create synthesis cache: %w", err)
	}
	lookups, err := otel.Meter("github.com/loqalabs/loqa-reader/internal/tts").Int64Counter(
		"reader.tts.cache.lookups",
		metric.WithDescription("Synthesis cache lookups by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache counter: %w", err)
	}
	return &Cache{next: next, entries: entries, lookups: lookups}, nil
}

func (c *Cache) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if out, ok := c.entries.Get(req); ok {
		c.record(ctx, "hit")
		return out, nil
	}
	c.record(ctx, "miss")

	// The shared call ignores caller cancellation. The engine timeout bounds it.
	shared := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(flightKey(req), func() (any, error) {
		if out, ok := c.entries.Get(req); ok {
			return out, nil
		}
		out, err := c.next.Synthesize(shared, req)
		if err != nil {
			return Audio{}, err
		}
		c.entries.Add(req, out)
		return out, nil
	})
	select {
	case <-ctx.Done():
		return Audio{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Audio{}, res.Err
		}
		return res.Val.(Audio), nil
	}
}

// Len reports the number of cached responses.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) record(ctx context.Context, result string) {
	c.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func flightKey(req Request) string {
	return fmt.Sprintf("%d:%s|%d:%s|%s", len(req.Voice), req.Voice, len(req.Language), req.Language, req.Text)
}
