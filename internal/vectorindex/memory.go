package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

type memoryPoint struct {
	vector   []float32
	metadata map[string]any
}

// MemoryIndex is an in-process cosine-similarity index.
type MemoryIndex struct {
	mu     sync.RWMutex
	points map[string]memoryPoint
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[string]memoryPoint)}
}

func (m *MemoryIndex) Upsert(_ context.Context, id string, vector []float32, metadata map[string]any) error {
	if len(vector) == 0 {
		return fmt.Errorf("empty vector for point %s", id)
	}
	v := append([]float32(nil), vector...)
	md := make(map[string]any, len(metadata))
	for k, val := range metadata {
		md[k] = val
	}

	m.mu.Lock()
	m.points[id] = memoryPoint{vector: v, metadata: md}
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	matches := make([]Match, 0, len(m.points))
	for id, p := range m.points {
		if len(p.vector) != len(vector) || !filter.matches(p.metadata) {
			continue
		}
		matches = append(matches, Match{ID: id, Score: cosine(vector, p.vector), Metadata: p.metadata})
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *MemoryIndex) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.points, id)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored points.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
