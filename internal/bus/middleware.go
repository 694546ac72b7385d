package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventLogger appends every event passing through the bus to a JSONL
// journal, one file per day (events_YYYYMMDD.jsonl).
type EventLogger struct {
	mu  sync.Mutex
	dir string
	f   *os.File
	day string
}

// NewEventLogger creates a journal writer rooted at dir. The directory
// is created on first write.
func NewEventLogger(dir string) *EventLogger {
	return &EventLogger{dir: dir}
}

// Middleware returns the bus middleware that journals events. Write
// failures are reported through the returned error and logged by the
// bus; the event still dispatches.
func (l *EventLogger) Middleware() Middleware {
	return func(ctx context.Context, ev Event, next Next) (Event, error) {
		out, err := next(ctx, ev)
		if werr := l.write(out); werr != nil && err == nil {
			err = werr
		}
		return out, err
	}
}

func (l *EventLogger) write(ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := time.Now().Format("20060102")
	if l.f == nil || day != l.day {
		if l.f != nil {
			l.f.Close()
		}
		if err := os.MkdirAll(l.dir, 0o755); err != nil {
			return fmt.Errorf("create event log dir: %w", err)
		}
		path := filepath.Join(l.dir, "events_"+day+".jsonl")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		l.f = f
		l.day = day
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := l.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Close flushes and closes the journal file.
func (l *EventLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// CostSummary is a point-in-time snapshot of accumulated LLM usage.
type CostSummary struct {
	Requests     int
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// CostTracker accumulates token counts and dollar cost from
// llm:response events. Rates are USD per single token.
type CostTracker struct {
	mu            sync.Mutex
	inRate        float64
	outRate       float64
	requests      int
	inputTokens   int
	outputTokens  int
	costUSD       float64
}

// NewCostTracker creates a tracker with the given per-token USD rates.
func NewCostTracker(inputRate, outputRate float64) *CostTracker {
	return &CostTracker{inRate: inputRate, outRate: outputRate}
}

// Middleware returns the bus middleware that watches llm:response
// events and accumulates usage.
func (c *CostTracker) Middleware() Middleware {
	return func(ctx context.Context, ev Event, next Next) (Event, error) {
		out, err := next(ctx, ev)
		if out.Type == EventLLMResponse {
			c.record(out.Int("input_tokens"), out.Int("output_tokens"))
		}
		return out, err
	}
}

func (c *CostTracker) record(in, out int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests++
	c.inputTokens += in
	c.outputTokens += out
	c.costUSD += float64(in)*c.inRate + float64(out)*c.outRate
}

// Summary returns the current totals.
func (c *CostTracker) Summary() CostSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CostSummary{
		Requests:     c.requests,
		InputTokens:  c.inputTokens,
		OutputTokens: c.outputTokens,
		CostUSD:      c.costUSD,
	}
}
