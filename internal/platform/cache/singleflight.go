package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"finca-activity/internal/platform/logger"
)

const (
	lockPrefix          = "lock:"
	defaultPollInterval = 50 * time.Millisecond
)

// AcquireState es el resultado de intentar coordinar una recomputación.
type AcquireState int

const (
	// StateAcquired: este worker ganó el lock y debe computar (y liberar).
	StateAcquired AcquireState = iota
	// StateFound: otro worker ya publicó el resultado; Payload lo trae.
	StateFound
	// StateDegraded: no se ganó el lock ni apareció resultado dentro del
	// presupuesto de espera. El caller decide (típicamente: computar igual,
	// aceptando un duplicado, antes que bloquear indefinidamente).
	StateDegraded
)

type Acquisition struct {
	State   AcquireState
	Payload []byte

	release func()
}

// Release libera el lock si este worker lo tenía. Siempre es seguro llamarla.
func (a Acquisition) Release() {
	if a.release != nil {
		a.release()
	}
}

// Coordinator garantiza que, para una misma clave dentro de la ventana del
// lock TTL, a lo sumo un worker ejecute la computación cara. Con backend
// distribuido el lock vale entre procesos; sin backend se degrada a una tabla
// de locks local al proceso (más débil, pero gratis).
type Coordinator struct {
	backend Backend // puede ser nil
	local   *xsync.MapOf[string, chan struct{}]
	log     logger.Logger

	pollInterval time.Duration
}

func NewCoordinator(backend Backend, log logger.Logger) *Coordinator {
	if log == nil {
		log = logger.Nop()
	}
	return &Coordinator{
		backend:      backend,
		local:        xsync.NewMapOf[string, chan struct{}](),
		log:          log,
		pollInterval: defaultPollInterval,
	}
}

// Acquire intenta ganar el derecho exclusivo de computar `key`.
// lockTTL acota cuánto puede retener el lock un holder caído; waitBudget acota
// cuánto espera un no-holder por el resultado ajeno. Nunca bloquea más que
// waitBudget.
func (c *Coordinator) Acquire(ctx context.Context, key string, lockTTL, waitBudget time.Duration) Acquisition {
	if c.backend == nil {
		return c.acquireLocal(ctx, key, waitBudget)
	}

	lockKey := lockPrefix + key
	owner := uuid.NewString()

	won, err := c.backend.SetNX(ctx, lockKey, []byte(owner), lockTTL)
	if err != nil {
		// Backend caído: el lock distribuido no aplica, usamos el local para
		// al menos acotar la concurrencia dentro de este proceso.
		c.log.Warn("singleflight: setnx failed, using local lock", map[string]any{"key": key, "error": err.Error()})
		return c.acquireLocal(ctx, key, waitBudget)
	}

	if won {
		return Acquisition{
			State: StateAcquired,
			release: func() {
				// Solo borramos si el marker sigue siendo nuestro; si el TTL
				// venció y otro worker lo tomó, no le pisamos el lock.
				if cur, err := c.backend.Get(context.Background(), lockKey); err == nil && string(cur) != owner {
					return
				}
				_ = c.backend.Delete(context.Background(), lockKey)
			},
		}
	}

	// Otro worker está computando: sondeamos la caché de resultados un rato
	// corto por si publica antes de agotar el presupuesto.
	deadline := time.Now().Add(waitBudget)
	for {
		if payload, err := c.backend.Get(ctx, key); err == nil {
			return Acquisition{State: StateFound, Payload: payload}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Acquisition{State: StateDegraded}
		}

		sleep := c.pollInterval
		if sleep > remaining {
			sleep = remaining
		}
		select {
		case <-ctx.Done():
			return Acquisition{State: StateDegraded}
		case <-time.After(sleep):
		}
	}
}

func (c *Coordinator) acquireLocal(ctx context.Context, key string, waitBudget time.Duration) Acquisition {
	ch := make(chan struct{})
	holder, loaded := c.local.LoadOrStore(key, ch)
	if !loaded {
		return Acquisition{
			State: StateAcquired,
			release: func() {
				c.local.Delete(key)
				close(ch)
			},
		}
	}

	// Otro goroutine del proceso tiene el lock: esperamos su release (o el
	// presupuesto) y dejamos que el caller re-lea la caché.
	select {
	case <-holder:
	case <-ctx.Done():
	case <-time.After(waitBudget):
	}
	return Acquisition{State: StateDegraded}
}
