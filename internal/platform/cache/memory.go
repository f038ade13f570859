package cache

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory es un Backend en proceso. Sirve para dev y como fallback cuando no
// hay Redis configurado. La expiración es perezosa: se resuelve al leer y en
// los Compute/SetNX; no hay goroutine de limpieza.
type Memory struct {
	entries *xsync.MapOf[string, memEntry]
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: xsync.NewMapOf[string, memEntry](),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := m.entries.Load(key)
	if !ok {
		return nil, ErrMiss
	}
	if e.expired(m.now()) {
		m.entries.Delete(key)
		return nil, ErrMiss
	}
	return e.value, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.entries.Store(key, m.entry(value, ttl))
	return nil
}

func (m *Memory) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	now := m.now()
	fresh := m.entry(value, ttl)

	won := false
	m.entries.Compute(key, func(old memEntry, loaded bool) (memEntry, bool) {
		if loaded && !old.expired(now) {
			return old, false
		}
		won = true
		return fresh, false
	})
	return won, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.entries.Delete(key)
	return nil
}

func (m *Memory) entry(value []byte, ttl time.Duration) memEntry {
	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	return e
}
