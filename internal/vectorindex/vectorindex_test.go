package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIndex_RanksByCosineAndFilters(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, "1", []float32{1, 0}, map[string]any{"city": "Berlin"}))
	require.NoError(t, idx.Upsert(ctx, "2", []float32{0.7, 0.7}, map[string]any{"city": "Berlin"}))
	require.NoError(t, idx.Upsert(ctx, "3", []float32{0, 1}, map[string]any{"city": "Riga"}))

	got, err := idx.Query(ctx, []float32{1, 0.1}, 2, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)

	got, err = idx.Query(ctx, []float32{0, 1}, 5, Filter{"city": "Berlin"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)

	require.NoError(t, idx.Delete(ctx, "2"))
	assert.Equal(t, 2, idx.Len())
	assert.Error(t, idx.Upsert(ctx, "4", nil, nil))
}

type failingIndex struct{ calls atomic.Int32 }

func (f *failingIndex) Upsert(context.Context, string, []float32, map[string]any) error {
	f.calls.Add(1)
	return errors.New("down")
}

func (f *failingIndex) Query(context.Context, []float32, int, Filter) ([]Match, error) {
	f.calls.Add(1)
	return nil, errors.New("down")
}

func (f *failingIndex) Delete(context.Context, string) error {
	f.calls.Add(1)
	panic("unexpected")
}

type slowIndex struct{ failingIndex }

func (s *slowIndex) Query(ctx context.Context, _ []float32, _ int, _ Filter) ([]Match, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAdapter_AbsorbsFailures(t *testing.T) {
	ctx := context.Background()
	idx := &failingIndex{}
	a := NewAdapter(idx, time.Second)

	a.Upsert(ctx, "1", []float32{1}, nil)
	a.Delete(ctx, "1")
	got := a.Query(ctx, []float32{1}, 3, nil)

	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, int32(3), idx.calls.Load())
}

func TestAdapter_QueryTimeout(t *testing.T) {
	a := NewAdapter(&slowIndex{}, 20*time.Millisecond)
	start := time.Now()
	assert.Empty(t, a.Query(context.Background(), []float32{1}, 3, nil))
	assert.Less(t, time.Since(start), time.Second)
}

func TestAdapter_NilIndex(t *testing.T) {
	var a *Adapter
	assert.Empty(t, a.Query(context.Background(), []float32{1}, 1, nil))
	NewAdapter(nil, 0).Upsert(context.Background(), "1", []float32{1}, nil)
}

func TestQdrantIndex_RoundTrip(t *testing.T) {
	var upserted map[string][]qdrantPoint
	mux := http.NewServeMux()
	mux.HandleFunc("/collections/listings/points", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&upserted))
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/collections/listings/points/search", func(w http.ResponseWriter, r *http.Request) {
		var req qdrantSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 2, req.Limit)
		require.NotNil(t, req.Filter)
		assert.Equal(t, "city", req.Filter.Must[0].Key)
		_, _ = w.Write([]byte(`{"result":[{"id":12,"score":0.93,"payload":{"_id":"12","city":"Berlin"}}],"status":"ok"}`))
	})
	mux.HandleFunc("/collections/listings/points/delete", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	q := NewQdrantIndex(srv.URL, "listings", "secret")
	ctx := context.Background()

	require.NoError(t, q.Upsert(ctx, "12", []float32{0.1, 0.2}, map[string]any{"city": "Berlin"}))
	require.Len(t, upserted["points"], 1)
	assert.EqualValues(t, 12, upserted["points"][0].ID)
	assert.Equal(t, "12", upserted["points"][0].Payload["_id"])

	got, err := q.Query(ctx, []float32{0.1, 0.2}, 2, Filter{"city": "Berlin"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "12", got[0].ID)
	assert.InDelta(t, 0.93, got[0].Score, 1e-6)
	assert.NotContains(t, got[0].Metadata, "_id")

	assert.Error(t, q.Delete(ctx, "12"))
}

func TestPointID(t *testing.T) {
	assert.Equal(t, uint64(42), pointID("42"))
	assert.Equal(t, pointID("abc"), pointID("abc"))
	assert.IsType(t, "", pointID("abc"))
}
