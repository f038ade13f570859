package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStableHash_OrderIndependent(t *testing.T) {
	a := map[string]any{"entity": "animal", "action": "create", "actor_id": 7}
	b := map[string]any{"actor_id": 7, "action": "create", "entity": "animal"}

	assert.Equal(t, StableHash(a), StableHash(b),
		"mismos parámetros en distinto orden deben dar la misma clave")
}

func TestStableHash_DistinguishesParams(t *testing.T) {
	base := map[string]any{"entity": "animal", "actor_id": 7}

	variants := []map[string]any{
		{"entity": "animal", "actor_id": 8},
		{"entity": "treatment", "actor_id": 7},
		{"entity": "animal"},
		{"entity": "animal", "actor_id": 7, "severity": "info"},
	}

	h := StableHash(base)
	for _, v := range variants {
		assert.NotEqual(t, h, StableHash(v), "variante %v no debía colisionar", v)
	}
}

func TestStableHash_NestedAndStructs(t *testing.T) {
	type filter struct {
		Entity string `json:"entity"`
		Actor  int64  `json:"actor"`
	}

	// Struct y mapa equivalentes normalizan a la misma forma canónica.
	require.Equal(t,
		StableHash(filter{Entity: "animal", Actor: 7}),
		StableHash(map[string]any{"entity": "animal", "actor": 7}),
	)

	nested1 := map[string]any{"filter": map[string]any{"b": 2, "a": 1}, "viewer": ""}
	nested2 := map[string]any{"viewer": "", "filter": map[string]any{"a": 1, "b": 2}}
	require.Equal(t, StableHash(nested1), StableHash(nested2))
}

func TestBuildKey_Format(t *testing.T) {
	key := BuildKey("activity:stats:v1", map[string]any{"entity": "animal"})

	require.Regexp(t, `^activity:stats:v1:[0-9a-f]{64}$`, key)
	assert.Equal(t, key, BuildKey("activity:stats:v1", map[string]any{"entity": "animal"}))
}
