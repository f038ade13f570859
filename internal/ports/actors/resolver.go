package actors

import "context"

// Summary es la vista mínima de un usuario que embebemos en las respuestas
// de actividad cuando piden include=actor.
type Summary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Resolver resuelve resúmenes de actores. El directorio de usuarios es un
// colaborador externo; acá solo el contrato.
type Resolver interface {
	Summarize(ctx context.Context, id int64) (Summary, error)
}
