package automation

import (
	"context"
	"fmt"
	"time"
)

// scrollStepPixels is how far each scroll attempt moves the container
const scrollStepPixels = 600

// stableRounds is how many consecutive unchanged item counts end discovery
const stableRounds = 2

// DiscoverStep incrementally reveals list items by scrolling the internal
// container and polling until the item count stabilizes. Scrolling must
// move the container and not the outer page: an outer-page offset change
// means the wrong element was targeted and is reported as a detection
// failure even if new items appeared.
type DiscoverStep struct{}

// Name identifies the step in logs
func (DiscoverStep) Name() string { return "discover" }

// Execute scrolls the list to the end and returns the discovered
// candidates. Discovery is not resumable; re-invocation starts over.
func (s DiscoverStep) Execute(ctx context.Context, sc *StepContext) (*StepResult, error) {
	sel := sc.Selectors.List
	settle := time.Duration(sc.Config.ScrollSettleMS) * time.Millisecond
	maxAttempts := sc.Config.MaxScrollAttempts
	if maxAttempts <= 0 {
		maxAttempts = 20
	}

	count, err := sc.Driver.QueryCount(ctx, sel.Item)
	if err != nil {
		return nil, &DriverError{Err: fmt.Errorf("failed to count list items: %w", err)}
	}

	stable := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		containerBefore, pageBefore, err := sc.Driver.ScrollOffsets(ctx, sel.Container)
		if err != nil {
			return nil, &DriverError{Err: fmt.Errorf("failed to read scroll offsets: %w", err)}
		}

		if err := sc.Driver.ScrollBy(ctx, sel.Container, scrollStepPixels); err != nil {
			return nil, &DriverError{Err: fmt.Errorf("failed to scroll container: %w", err)}
		}

		// Let lazy content render before re-reading offsets and counts.
		// This before/after comparison is a heuristic; see below.
		if err := sleep(ctx, settle); err != nil {
			return nil, err
		}

		containerAfter, pageAfter, err := sc.Driver.ScrollOffsets(ctx, sel.Container)
		if err != nil {
			return nil, &DriverError{Err: fmt.Errorf("failed to read scroll offsets: %w", err)}
		}

		if pageAfter != pageBefore {
			// The outer page moved: the scroll hit the wrong element. New
			// items appearing anyway does not rescue this.
			return nil, &NavigationError{
				Target: sel.Container,
				Reason: "outer page scrolled instead of list container",
			}
		}

		newCount, err := sc.Driver.QueryCount(ctx, sel.Item)
		if err != nil {
			return nil, &DriverError{Err: fmt.Errorf("failed to count list items: %w", err)}
		}

		sc.Log.Debug("scroll attempt", map[string]interface{}{
			"attempt": attempt,
			"items":   newCount,
		})

		if newCount == count {
			stable++
			// A container that no longer moves has reached the bottom.
			if containerAfter == containerBefore || stable >= stableRounds {
				break
			}
		} else {
			stable = 0
			count = newCount
		}
	}

	candidates, err := s.extract(ctx, sc)
	if err != nil {
		return nil, err
	}

	sc.Log.Info("list discovery finished", map[string]interface{}{
		"candidates": len(candidates),
	})
	return &StepResult{Candidates: candidates}, nil
}

func (s DiscoverStep) extract(ctx context.Context, sc *StepContext) ([]Candidate, error) {
	sel := sc.Selectors.List

	raw, err := sc.Driver.Evaluate(ctx, sel.ExtractScript, sel.Item)
	if err != nil {
		return nil, &DriverError{Err: fmt.Errorf("failed to extract candidates: %w", err)}
	}

	items, ok := raw.([]interface{})
	if !ok {
		return nil, &DriverError{Err: fmt.Errorf("unexpected extraction result %T", raw)}
	}

	seen := make(map[string]bool, len(items))
	candidates := make([]Candidate, 0, len(items))
	for i, item := range items {
		record, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		index := i + 1
		id := stringField(record, "id")
		if id == "" {
			id = fmt.Sprintf("item-%d", index)
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		candidates = append(candidates, Candidate{
			ID:                id,
			Name:              stringField(record, "name"),
			MutualConnections: intField(record, "mutual"),
			Index:             index,
			ConnectSelector:   fmt.Sprintf(sel.ConnectButtonTemplate, index),
		})
	}

	return candidates, nil
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func intField(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}
