package activity

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// Entidades del dominio que generan actividad.
const (
	EntityAnimal      = "animal"
	EntityTreatment   = "treatment"
	EntityVaccination = "vaccination"
	EntityControl     = "control"
	EntityField       = "field"
	EntityUser        = "user"

	// EntityActivity identifica a este mismo módulo. Eventos sobre el propio
	// log se rechazan para no retroalimentarse.
	EntityActivity = "activity"
)

// Acciones más comunes. El campo es abierto: otros módulos pueden loggear
// acciones propias sin tocar esta lista.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionLogin  = "login"
	ActionExport = "export"
)
