package activity

import (
	"context"
	"time"
)

// Repository es el contrato contra el store transaccional. La escritura
// (Record) debe dejar la fila cruda y su incremento de rollup en UNA sola
// transacción; si el upsert del rollup falla, el insert crudo se revierte.
type Repository interface {
	// Record inserta el evento, upserta su fila de rollup y devuelve el
	// evento con ID y CreatedAt asignados por el store.
	Record(ctx context.Context, e Event) (Event, error)

	// List pagina por offset y devuelve además el total de filas que
	// matchean el filtro.
	List(ctx context.Context, f Filter, page Page) ([]Event, int64, error)

	// ListCursor pagina por keyset: filas estrictamente anteriores al cursor
	// en orden (created_at DESC, id DESC). cur == nil arranca desde arriba.
	ListCursor(ctx context.Context, f Filter, cur *Cursor, limit int) ([]Event, error)

	// AggregateRollup agrega desde la tabla diaria. Solo es válido para
	// filtros a granularidad de día; el router de consultas decide.
	AggregateRollup(ctx context.Context, f Filter) (Stats, error)

	// AggregateRaw agrega escaneando la tabla cruda. Más lento pero sirve
	// cualquier filtro, incluidos límites sub-día y búsqueda de texto.
	AggregateRaw(ctx context.Context, f Filter) (Stats, error)

	// Facets devuelve los valores distintos (con conteos) para armar filtros.
	Facets(ctx context.Context, f Filter) (Facets, error)
}

// Filter aplica tanto a listados como a agregaciones.
type Filter struct {
	Entity   string
	Action   string
	Severity Severity

	ActorID   *int64
	SubjectID *int64

	From *time.Time
	To   *time.Time // exclusivo

	Query string // texto libre sobre title/description; solo camino crudo
}

type Page struct {
	Page  int
	Limit int
}

type EntityCount struct {
	Entity string `json:"entity"`
	Count  int64  `json:"count"`
}

type ActionCount struct {
	Action string `json:"action"`
	Count  int64  `json:"count"`
}

type SeverityCount struct {
	Severity Severity `json:"severity"`
	Count    int64    `json:"count"`
}

type DailyCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int64  `json:"count"`
}

type Totals struct {
	Events   int64 `json:"events"`
	Actors   int64 `json:"actors"`
	Entities int64 `json:"entities"`
	Subjects int64 `json:"subjects"`
}

// Stats es la forma común que producen ambos caminos (rollup y crudo).
type Stats struct {
	Totals     Totals          `json:"totals"`
	ByEntity   []EntityCount   `json:"by_entity"`
	ByAction   []ActionCount   `json:"by_action"`
	BySeverity []SeverityCount `json:"by_severity"`
	Daily      []DailyCount    `json:"daily"`
}

type Facets struct {
	Entities   []EntityCount   `json:"entities"`
	Actions    []ActionCount   `json:"actions"`
	Severities []SeverityCount `json:"severities"`
}
