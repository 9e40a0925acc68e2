package embedding

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"billboard/internal/models"
	"billboard/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// ErrEmbeddingFailure wraps every error produced while embedding text.
var ErrEmbeddingFailure = errors.New("embedding failure")

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Record is the vector-index projection of a listing.
type Record struct {
	ListingID uint
	Text      string
	Vector    []float32
	Metadata  map[string]any
}

// PointID is the vector-index identifier of a listing.
func PointID(listingID uint) string {
	return strconv.FormatUint(uint64(listingID), 10)
}

// Gateway is the only entry point to the embedder. It never panics and
// reports every failure as ErrEmbeddingFailure.
type Gateway struct {
	embedder Embedder
}

func NewGateway(embedder Embedder) *Gateway {
	return &Gateway{embedder: embedder}
}

// Embed returns the vector of text.
func (g *Gateway) Embed(ctx context.Context, text string) (vec []float32, err error) {
	ctx, span := observability.StartSpan(ctx, "embedding.Embed", attribute.Int("text.length", len(text)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			vec, err = nil, fmt.Errorf("%w: embedder panic: %v", ErrEmbeddingFailure, r)
		}
		if err != nil {
			observability.UpstreamFailures.WithLabelValues("embedder", "embed").Inc()
			span.SetError(err)
		}
	}()

	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrEmbeddingFailure)
	}
	if g.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", ErrEmbeddingFailure)
	}

	vec, err = g.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailure, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrEmbeddingFailure)
	}
	return vec, nil
}

// EmbedListing builds the index record of a listing.
func (g *Gateway) EmbedListing(ctx context.Context, l *models.Listing) (Record, error) {
	text := GenerateText(l)
	vec, err := g.Embed(ctx, text)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ListingID: l.ID,
		Text:      text,
		Vector:    vec,
		Metadata:  Metadata(l),
	}, nil
}

// Metadata is the filterable payload stored next to a listing vector.
func Metadata(l *models.Listing) map[string]any {
	md := map[string]any{
		"listing_id": l.ID,
		"category":   string(l.Category),
		"type":       string(l.Type),
		"status":     string(l.Status),
	}
	if l.City != "" {
		md["city"] = l.City
	}
	if l.Price != nil {
		md["price"] = *l.Price
	}
	return md
}
