package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// StableHash serializa v en forma canónica (claves ordenadas, separadores
// fijos) y devuelve el digest SHA-256 en hex. Dos sets de parámetros
// lógicamente iguales producen siempre el mismo hash, sin importar el orden
// de inserción.
func StableHash(v any) string {
	h := sha256.Sum256([]byte(canonical(v)))
	return hex.EncodeToString(h[:])
}

// BuildKey arma una clave "{prefix}:{hash}". El prefix identifica el tipo de
// consulta y lleva versión (ej: "activity:stats:v1") para que un cambio de
// formato invalide solo las entradas viejas.
func BuildKey(prefix string, parts any) string {
	return prefix + ":" + StableHash(parts)
}

// canonical produce la forma serializada estable. encoding/json ya ordena las
// claves de mapas; normalizamos structs y slices pasando primero por
// marshal/unmarshal para que todo termine como mapa/lista/escalar.
func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Tipos no serializables no deberían llegar acá; el %#v al menos
		// mantiene el hash determinístico dentro del mismo proceso.
		return fmt.Sprintf("%#v", v)
	}

	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return string(b)
	}

	var sb strings.Builder
	writeCanonical(&sb, generic)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(k)
			sb.WriteByte('=')
			writeCanonical(sb, t[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, e)
		}
		sb.WriteByte(']')
	case nil:
		sb.WriteString("nil")
	default:
		fmt.Fprintf(sb, "%v", t)
	}
}
