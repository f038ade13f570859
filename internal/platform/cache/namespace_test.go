package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersioner_BumpChangesVersion(t *testing.T) {
	backend := NewMemory()
	v := NewVersioner(backend)
	ctx := context.Background()

	before := v.Version(ctx, "activity")
	assert.Equal(t, "0", before, "sin bumps la versión arranca en 0")

	v.Bump(ctx, "activity")
	after := v.Version(ctx, "activity")
	require.NotEqual(t, before, after)

	// La versión entra en la clave: un bump huérfana todas las entradas.
	k1 := BuildKey("activity:stats:v1", map[string]any{"ver": before})
	k2 := BuildKey("activity:stats:v1", map[string]any{"ver": after})
	assert.NotEqual(t, k1, k2)
}

func TestVersioner_NilBackendIsFixed(t *testing.T) {
	v := NewVersioner(nil)
	ctx := context.Background()

	assert.Equal(t, "0", v.Version(ctx, "activity"))
	v.Bump(ctx, "activity") // no-op, no panic
	assert.Equal(t, "0", v.Version(ctx, "activity"))
}

func TestVersioner_BackendErrorFallsBackToZero(t *testing.T) {
	v := NewVersioner(brokenBackend{})
	assert.Equal(t, "0", v.Version(context.Background(), "activity"))
}
