package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_SingleWinnerAcrossConcurrentCallers(t *testing.T) {
	backend := NewMemory()
	c := NewCoordinator(backend, nil)
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	results := make([]Acquisition, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// waitBudget corto: los perdedores no deben colgarse.
			results[i] = c.Acquire(ctx, "k1", 5*time.Second, 50*time.Millisecond)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, r := range results {
		switch r.State {
		case StateAcquired:
			winners++
			r.Release()
		case StateFound:
			t.Fatalf("nadie publicó resultado, Found es imposible acá")
		}
	}
	require.Equal(t, 1, winners, "exactamente un caller debía ganar el lock")
}

func TestCoordinator_WaiterPicksUpPublishedResult(t *testing.T) {
	backend := NewMemory()
	c := NewCoordinator(backend, nil)
	ctx := context.Background()

	holder := c.Acquire(ctx, "k2", 5*time.Second, 10*time.Millisecond)
	require.Equal(t, StateAcquired, holder.State)

	done := make(chan Acquisition, 1)
	go func() {
		done <- c.Acquire(ctx, "k2", 5*time.Second, 2*time.Second)
	}()

	// El holder computa y publica; el waiter que está sondeando la caché de
	// resultados tiene que encontrarla antes de agotar su presupuesto.
	time.Sleep(80 * time.Millisecond)
	require.NoError(t, backend.Set(ctx, "k2", []byte(`{"done":true}`), time.Minute))
	holder.Release()

	got := <-done
	require.Equal(t, StateFound, got.State)
	assert.JSONEq(t, `{"done":true}`, string(got.Payload))
}

func TestCoordinator_DegradesAfterWaitBudget(t *testing.T) {
	backend := NewMemory()
	c := NewCoordinator(backend, nil)
	ctx := context.Background()

	holder := c.Acquire(ctx, "k3", 5*time.Second, 10*time.Millisecond)
	require.Equal(t, StateAcquired, holder.State)
	defer holder.Release()

	start := time.Now()
	got := c.Acquire(ctx, "k3", 5*time.Second, 150*time.Millisecond)
	elapsed := time.Since(start)

	// Nunca bloqueo indefinido: pasado el presupuesto, se degrada y el
	// caller computa directo.
	require.Equal(t, StateDegraded, got.State)
	assert.Less(t, elapsed, time.Second)
}

func TestCoordinator_LockTTLUnwedgesCrashedHolder(t *testing.T) {
	backend := NewMemory()
	c := NewCoordinator(backend, nil)
	ctx := context.Background()

	now := time.Now()
	backend.now = func() time.Time { return now }

	// Holder que "muere" sin liberar: lockTTL corto.
	dead := c.Acquire(ctx, "k4", 100*time.Millisecond, 10*time.Millisecond)
	require.Equal(t, StateAcquired, dead.State)

	// Antes del vencimiento nadie entra.
	got := c.Acquire(ctx, "k4", time.Second, 10*time.Millisecond)
	require.Equal(t, StateDegraded, got.State)

	// Vencido el TTL, el próximo caller toma el lock.
	now = now.Add(200 * time.Millisecond)
	got = c.Acquire(ctx, "k4", time.Second, 10*time.Millisecond)
	require.Equal(t, StateAcquired, got.State)
	got.Release()
}

func TestCoordinator_ReleaseDoesNotStealNewOwnersLock(t *testing.T) {
	backend := NewMemory()
	c := NewCoordinator(backend, nil)
	ctx := context.Background()

	now := time.Now()
	backend.now = func() time.Time { return now }

	old := c.Acquire(ctx, "k5", 50*time.Millisecond, 10*time.Millisecond)
	require.Equal(t, StateAcquired, old.State)

	now = now.Add(time.Second) // TTL vencido, otro worker toma el lock
	current := c.Acquire(ctx, "k5", time.Minute, 10*time.Millisecond)
	require.Equal(t, StateAcquired, current.State)

	// El release tardío del holder viejo no debe borrar el lock ajeno.
	old.Release()
	_, err := backend.Get(ctx, lockPrefix+"k5")
	require.NoError(t, err, "el lock del nuevo owner tenía que seguir vivo")
}

func TestCoordinator_LocalFallbackWithoutBackend(t *testing.T) {
	c := NewCoordinator(nil, nil)
	ctx := context.Background()

	first := c.Acquire(ctx, "k6", time.Second, 10*time.Millisecond)
	require.Equal(t, StateAcquired, first.State)

	// Mismo proceso, misma clave: el segundo no gana y se degrada acotado.
	second := c.Acquire(ctx, "k6", time.Second, 30*time.Millisecond)
	require.Equal(t, StateDegraded, second.State)

	first.Release()

	third := c.Acquire(ctx, "k6", time.Second, 10*time.Millisecond)
	require.Equal(t, StateAcquired, third.State)
	third.Release()
}
