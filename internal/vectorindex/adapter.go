package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"billboard/internal/middleware"
	"billboard/internal/observability"
)

const defaultTimeout = 2 * time.Second

// Adapter shields callers from the vector index. No method returns an
// error: writes are logged and dropped, queries degrade to an empty result.
type Adapter struct {
	index   Index
	timeout time.Duration
}

func NewAdapter(index Index, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Adapter{index: index, timeout: timeout}
}

// Upsert writes a point, logging any failure.
func (a *Adapter) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) {
	err := a.call(ctx, func(ctx context.Context) error {
		return a.index.Upsert(ctx, id, vector, metadata)
	})
	if err != nil {
		a.fail(ctx, "upsert", id, err)
	}
}

// Query returns up to k matches, or an empty slice on any failure.
func (a *Adapter) Query(ctx context.Context, vector []float32, k int, filter Filter) []Match {
	if k <= 0 || len(vector) == 0 {
		return []Match{}
	}
	var matches []Match
	err := a.call(ctx, func(ctx context.Context) error {
		var err error
		matches, err = a.index.Query(ctx, vector, k, filter)
		return err
	})
	if err != nil {
		a.fail(ctx, "query", "", err)
		return []Match{}
	}
	if matches == nil {
		return []Match{}
	}
	return matches
}

// Delete removes a point, logging any failure.
func (a *Adapter) Delete(ctx context.Context, id string) {
	err := a.call(ctx, func(ctx context.Context) error {
		return a.index.Delete(ctx, id)
	})
	if err != nil {
		a.fail(ctx, "delete", id, err)
	}
}

func (a *Adapter) call(ctx context.Context, fn func(context.Context) error) (err error) {
	if a == nil || a.index == nil {
		return fmt.Errorf("vector index not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("vector index panic: %v", r)
		}
	}()
	return fn(ctx)
}

func (a *Adapter) fail(ctx context.Context, op, id string, err error) {
	observability.UpstreamFailures.WithLabelValues("vector_index", op).Inc()
	attrs := []any{slog.String("operation", op), slog.String("error", err.Error())}
	if id != "" {
		attrs = append(attrs, slog.String("point_id", id))
	}
	middleware.Logger.WarnContext(ctx, "vector index call failed", attrs...)
}
