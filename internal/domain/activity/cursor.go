package activity

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// Cursor apunta a la última fila devuelta de una paginación keyset.
// Se serializa como JSON canónico {created_at, id} en base64 URL-safe sin
// padding, y viaja opaco para el cliente.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        int64     `json:"id"`
}

// Encode arma el token. created_at siempre en UTC para que el round-trip sea
// estable entre plataformas.
func (c Cursor) Encode() string {
	b, err := json.Marshal(Cursor{CreatedAt: c.CreatedAt.UTC(), ID: c.ID})
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor es best-effort: cualquier token malformado o forjado devuelve
// nil, que los callers interpretan como "arrancar desde el principio".
// Nunca es un error del request.
func DecodeCursor(token string) *Cursor {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		// Toleramos tokens con padding incluido.
		raw, err = base64.URLEncoding.DecodeString(token)
		if err != nil {
			return nil
		}
	}

	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil
	}
	if c.ID <= 0 || c.CreatedAt.IsZero() {
		return nil
	}

	c.CreatedAt = c.CreatedAt.UTC()
	return &c
}
