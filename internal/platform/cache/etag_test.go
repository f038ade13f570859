package cache

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenBackend falla todas las operaciones, como un Redis caído.
type brokenBackend struct{}

var errDown = errors.New("connection refused")

func (brokenBackend) Get(context.Context, string) ([]byte, error) { return nil, errDown }
func (brokenBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errDown
}
func (brokenBackend) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, errDown
}
func (brokenBackend) Delete(context.Context, string) error { return nil }

func computeValue(v any) ComputeFunc {
	return func(context.Context) (any, error) { return v, nil }
}

func TestResponseCache_MissThenHit(t *testing.T) {
	rc := NewResponseCache(NewMemory(), nil)
	ctx := context.Background()
	req := Request{Key: "k", TTL: time.Minute}

	calls := 0
	compute := func(context.Context) (any, error) {
		calls++
		return map[string]int{"events": 3}, nil
	}

	res, err := rc.JSON(ctx, req, compute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "MISS", res.Source)
	assert.JSONEq(t, `{"events":3}`, string(res.Payload))
	require.NotEmpty(t, res.ETag)

	res2, err := rc.JSON(ctx, req, compute)
	require.NoError(t, err)
	assert.Equal(t, "HIT", res2.Source)
	assert.Equal(t, res.ETag, res2.ETag)
	assert.Equal(t, 1, calls, "el hit no debía recomputar")
}

func TestResponseCache_NotModifiedOnMatchingETag(t *testing.T) {
	rc := NewResponseCache(NewMemory(), nil)
	ctx := context.Background()

	res, err := rc.JSON(ctx, Request{Key: "k", TTL: time.Minute}, computeValue("hola"))
	require.NoError(t, err)

	// Segunda request con If-None-Match igual y sin escrituras en el medio:
	// 304 y body vacío.
	res2, err := rc.JSON(ctx, Request{Key: "k", TTL: time.Minute, IfNoneMatch: `"` + res.ETag + `"`}, computeValue("hola"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, res2.Status)
	assert.Nil(t, res2.Payload)

	// También sin comillas y con W/ débil.
	res3, err := rc.JSON(ctx, Request{Key: "k", TTL: time.Minute, IfNoneMatch: "W/" + `"` + res.ETag + `"`}, computeValue("hola"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, res3.Status)
}

func TestResponseCache_NoBackendStillHonorsConditional(t *testing.T) {
	rc := NewResponseCache(nil, nil)
	ctx := context.Background()

	res, err := rc.JSON(ctx, Request{Key: "k", TTL: time.Minute}, computeValue([]int{1, 2}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "BYPASS", res.Source)

	res2, err := rc.JSON(ctx, Request{Key: "k", TTL: time.Minute, IfNoneMatch: res.ETag}, computeValue([]int{1, 2}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, res2.Status)
}

func TestResponseCache_BrokenBackendDegradesToDirectCompute(t *testing.T) {
	rc := NewResponseCache(brokenBackend{}, nil)
	ctx := context.Background()

	// Con el backend tirando errores en todo, el lector igual recibe 200
	// con datos correctos. Peor caso: más lento, nunca un error.
	res, err := rc.JSON(ctx, Request{Key: "k", TTL: time.Minute}, computeValue(map[string]int{"events": 7}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `{"events":7}`, string(res.Payload))
}

func TestResponseCache_ComputeErrorPropagates(t *testing.T) {
	rc := NewResponseCache(NewMemory(), nil)

	boom := errors.New("query failed")
	_, err := rc.JSON(context.Background(), Request{Key: "k", TTL: time.Minute},
		func(context.Context) (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
}

func TestResponseCache_ConcurrentMissesComputeOnce(t *testing.T) {
	rc := NewResponseCache(NewMemory(), nil)
	ctx := context.Background()

	var calls atomic.Int32
	compute := func(context.Context) (any, error) {
		calls.Add(1)
		time.Sleep(30 * time.Millisecond) // computación "cara"
		return map[string]string{"v": "x"}, nil
	}

	const n = 12
	var wg sync.WaitGroup
	payloads := make([]string, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := rc.JSON(ctx, Request{Key: "hot", TTL: time.Minute}, compute)
			if err != nil {
				t.Errorf("JSON: %v", err)
				return
			}
			payloads[i] = string(res.Payload)
		}(i)
	}
	wg.Wait()

	// Dentro de la ventana del lock, una sola computación; todos reciben el
	// mismo payload.
	assert.Equal(t, int32(1), calls.Load(), "thundering herd: se computó más de una vez")
	for _, p := range payloads {
		assert.JSONEq(t, `{"v":"x"}`, p)
	}
}

func TestResponseCache_CorruptEntryIsRecomputed(t *testing.T) {
	backend := NewMemory()
	rc := NewResponseCache(backend, nil)
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "k", []byte("garbage"), time.Minute))

	res, err := rc.JSON(ctx, Request{Key: "k", TTL: time.Minute}, computeValue("ok"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `"ok"`, string(res.Payload))
}

func TestResult_WriteHeaders(t *testing.T) {
	rc := NewResponseCache(NewMemory(), nil)
	ctx := context.Background()

	res, err := rc.JSON(ctx, Request{Key: "k", TTL: 90 * time.Second, Private: true}, computeValue("x"))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	res.Write(w)

	assert.Equal(t, "private, max-age=90", w.Header().Get("Cache-Control"))
	assert.Equal(t, `"`+res.ETag+`"`, w.Header().Get("ETag"))
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Contains(t, w.Header().Get("Vary"), "Authorization")

	// Público: sin Vary de identidad.
	res2, err := rc.JSON(ctx, Request{Key: "k2", TTL: time.Minute}, computeValue("x"))
	require.NoError(t, err)
	w2 := httptest.NewRecorder()
	res2.Write(w2)
	assert.Equal(t, "public, max-age=60", w2.Header().Get("Cache-Control"))
	assert.Empty(t, w2.Header().Get("Vary"))
}
