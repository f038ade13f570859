// Package cache implementa la capa de caché de respuestas: claves estables,
// backends intercambiables (Redis o memoria), coordinación singleflight y el
// wrapper JSON con ETag que usan los handlers de lectura.
//
// Regla general: la caché es una optimización, nunca una dependencia de
// correctitud. Cualquier error del backend degrada a computar directo.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss indica que la clave no existe (o expiró) en el backend.
	ErrMiss = errors.New("cache: miss")
)

// Backend es el contrato mínimo que necesitamos de una caché:
// get/set con TTL, delete, y set-if-absent atómico para locks.
// Puede ser Redis (distribuida) o memoria local (dev / fallback).
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX setea solo si la clave no existe. Devuelve true si la seteó.
	// Es la primitiva de lock del coordinador singleflight.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	Delete(ctx context.Context, key string) error
}
