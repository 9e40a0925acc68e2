// Package vectorindex wraps the external vector index used for similarity search.
package vectorindex

import (
	"context"
	"fmt"
)

// Match is one ranked hit of a vector query.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// Filter restricts a query to points whose metadata equals every entry.
type Filter map[string]any

// Index is a vector store keyed by string ids.
type Index interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error
	Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Match, error)
	Delete(ctx context.Context, id string) error
}

func (f Filter) matches(metadata map[string]any) bool {
	for k, want := range f {
		got, ok := metadata[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
