package cache

import (
	"context"
	"strconv"
	"time"
)

// Versioner maneja la generación de un namespace de claves: los lectores
// incluyen la versión vigente en sus claves y los escritores la "bumpean",
// con lo cual todas las entradas viejas quedan huérfanas y expiran solas por
// TTL. Evita tener que escanear/borrar claves al escribir.
type Versioner struct {
	backend Backend // nil => versión fija "0"
}

func NewVersioner(backend Backend) *Versioner {
	return &Versioner{backend: backend}
}

// Version devuelve la versión vigente del namespace. Cualquier error del
// backend devuelve "0": peor caso, servimos una entrada algo más vieja dentro
// de su TTL.
func (v *Versioner) Version(ctx context.Context, ns string) string {
	if v.backend == nil {
		return "0"
	}
	b, err := v.backend.Get(ctx, "ver:"+ns)
	if err != nil {
		return "0"
	}
	return string(b)
}

// Bump invalida el namespace completo publicando una versión nueva.
// Best-effort: si el backend falla, el TTL de las entradas sigue acotando la
// staleness.
func (v *Versioner) Bump(ctx context.Context, ns string) {
	if v.backend == nil {
		return
	}
	next := strconv.FormatInt(time.Now().UnixNano(), 36)
	_ = v.backend.Set(ctx, "ver:"+ns, []byte(next), 0)
}
