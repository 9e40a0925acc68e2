package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"billboard/internal/config"
	"billboard/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestGenerateText_FixedOrderAndOmitsAbsent(t *testing.T) {
	l := &models.Listing{
		Title:       "Sunny loft",
		Description: "Top floor",
		City:        "Berlin",
		Category:    models.CategoryOffer,
		Type:        models.TypeApartment,
		Price:       ptr(1250.5),
		Currency:    "EUR",
		PricePeriod: "month",
		Size:        ptr(54.0),
		Rooms:       ptr(2),
		Balcony:     true,
		Furnished:   true,
		Accessible:  true,
		Amenities:   models.StringList{"dishwasher", "wifi"},
		Hashtags:    models.StringList{"loft", "mitte"},
	}

	want := "Title: Sunny loft\n" +
		"Description: Top floor\n" +
		"City: Berlin\n" +
		"Category: offer\n" +
		"Type: apartment\n" +
		"Price: 1250.5 EUR/month\n" +
		"Size: 54 sqm\n" +
		"Rooms: 2\n" +
		"Features: furnished, balcony, accessible\n" +
		"Amenities: dishwasher, wifi\n" +
		"Hashtags: loft, mitte"
	assert.Equal(t, want, GenerateText(l))
	assert.Equal(t, GenerateText(l), GenerateText(l))
}

func TestGenerateText_PriceSuffixes(t *testing.T) {
	assert.Equal(t, "Price: 10", GenerateText(&models.Listing{Price: ptr(10.0)}))
	assert.Equal(t, "Price: 10 EUR", GenerateText(&models.Listing{Price: ptr(10.0), Currency: "EUR"}))
	assert.Equal(t, "Price: 10 per week", GenerateText(&models.Listing{Price: ptr(10.0), PricePeriod: "week"}))
	assert.Equal(t, "", GenerateText(&models.Listing{}))
}

type stubEmbedder struct {
	vec   []float32
	err   error
	panic bool
}

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	if s.panic {
		panic("kaboom")
	}
	return s.vec, s.err
}

func TestGateway_WrapsEveryFailure(t *testing.T) {
	ctx := context.Background()
	cases := map[string]*Gateway{
		"error":       NewGateway(stubEmbedder{err: errors.New("timeout")}),
		"empty":       NewGateway(stubEmbedder{}),
		"panic":       NewGateway(stubEmbedder{panic: true}),
		"no embedder": NewGateway(nil),
	}
	for name, g := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := g.Embed(ctx, "hello")
			assert.ErrorIs(t, err, ErrEmbeddingFailure)
		})
	}

	_, err := NewGateway(stubEmbedder{vec: []float32{1}}).Embed(ctx, "")
	assert.ErrorIs(t, err, ErrEmbeddingFailure)
}

func TestGateway_EmbedListing(t *testing.T) {
	g := NewGateway(NewHashEmbedder(32))
	l := &models.Listing{ID: 5, Title: "Room", City: "Riga", Category: models.CategorySearch, Type: models.TypeRoom, Status: models.StatusActive}

	rec, err := g.EmbedListing(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, uint(5), rec.ListingID)
	assert.Len(t, rec.Vector, 32)
	assert.Equal(t, "Riga", rec.Metadata["city"])
	assert.Equal(t, "search", rec.Metadata["category"])
	assert.Equal(t, "5", PointID(5))
}

func TestHashEmbedder_DeterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder(64)
	a, err := e.Embed(context.Background(), "Bright flat with balcony")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "bright FLAT, with balcony!")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var norm float32
	for _, v := range a {
		norm += v * v
	}
	assert.InDelta(t, 1.0, norm, 1e-4)
}

func TestHTTPEmbedder(t *testing.T) {
	var got embeddingsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL+"/v1/", "sk-test", "text-embedding-3-small", 3)
	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "hello", got.Input)
	assert.Equal(t, 3, got.Dimensions)
}

func TestHTTPEmbedder_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewGateway(NewHTTPEmbedder(srv.URL, "", "m", 0)).Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrEmbeddingFailure)
	assert.Contains(t, err.Error(), "503")
}

func TestNewEmbedder(t *testing.T) {
	assert.IsType(t, &HashEmbedder{}, NewEmbedder(&config.Config{EmbeddingProvider: "hash"}))
	assert.IsType(t, &HTTPEmbedder{}, NewEmbedder(&config.Config{EmbeddingProvider: "http", EmbeddingAPIURL: "http://x"}))
}
