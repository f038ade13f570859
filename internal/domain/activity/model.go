package activity

import "time"

// Event es una entrada del log de actividad. Inmutable una vez escrita:
// este módulo solo la crea, nunca la actualiza ni la borra.
type Event struct {
	ID int64 // monotónico, lo asigna el store

	Action   string
	Entity   string
	EntityID *int64

	Title       string
	Description string
	Severity    Severity

	ActorID   *int64 // usuario que ejecutó la acción; puede no haber
	SubjectID *int64 // entidad principal afectada (típicamente el animal)

	Relations map[string]any // referencias libres a otras entidades

	CreatedAt time.Time // lo asigna el store, UTC
}

// DailyAggregate es una fila del rollup diario: una por tupla única
// (fecha, actor, entity, action, severity, subject), con su contador.
//
// Invariante: para cualquier rango de fechas y tupla K,
// sum(count) == cantidad de filas crudas que matchean K en ese rango.
// Se mantiene incrementando count en la MISMA transacción del insert crudo.
type DailyAggregate struct {
	Date      time.Time // truncada a día, UTC
	ActorID   int64     // 0 = sin actor
	Entity    string
	Action    string
	Severity  Severity
	SubjectID int64 // 0 = sin sujeto

	Count int64
}

// RollupKeyOf deriva la clave de rollup de un evento ya insertado
// (con CreatedAt asignado por el store).
func RollupKeyOf(e Event) DailyAggregate {
	d := DailyAggregate{
		Date:     e.CreatedAt.UTC().Truncate(24 * time.Hour),
		Entity:   e.Entity,
		Action:   e.Action,
		Severity: e.Severity,
		Count:    1,
	}
	if e.ActorID != nil {
		d.ActorID = *e.ActorID
	}
	if e.SubjectID != nil {
		d.SubjectID = *e.SubjectID
	}
	return d
}
