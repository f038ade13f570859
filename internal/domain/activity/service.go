package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"finca-activity/internal/platform/cache"
	"finca-activity/internal/platform/logger"
)

var (
	ErrInvalidInput = errors.New("invalid input")

	// ErrSelfLogging: eventos sobre el propio log de actividad se rechazan
	// para no generar loops de retroalimentación.
	ErrSelfLogging = errors.New("activity events about the activity log are not allowed")
)

// Namespace de caché que invalidan las escrituras.
const CacheNamespace = "activity"

type Service struct {
	repo Repository
	log  logger.Logger
	ver  *cache.Versioner

	now func() time.Time
}

// NewService arma el servicio. ver puede ser nil (sin invalidación por
// versión; el TTL de la caché sigue acotando la staleness).
func NewService(repo Repository, log logger.Logger, ver *cache.Versioner) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if ver == nil {
		ver = cache.NewVersioner(nil)
	}
	return &Service{
		repo: repo,
		log:  log,
		ver:  ver,
		now:  time.Now,
	}
}

type CreateInput struct {
	Action   string
	Entity   string
	EntityID *int64

	Title       string
	Description string
	Severity    Severity

	// ActorID nil => el boundary (handler) lo resuelve desde los claims del
	// request antes de llamar acá. El servicio no toca el contexto ambiente.
	ActorID   *int64
	SubjectID *int64

	Relations map[string]any
}

// Record valida, inserta la fila cruda y deja el rollup diario incrementado
// en la misma transacción (eso lo garantiza el Repository). Devuelve el
// evento con ID y timestamp del store.
func (s *Service) Record(ctx context.Context, in CreateInput) (Event, error) {
	action := strings.TrimSpace(in.Action)
	entity := strings.TrimSpace(in.Entity)

	if action == "" || entity == "" {
		return Event{}, ErrInvalidInput
	}
	if entity == EntityActivity {
		return Event{}, ErrSelfLogging
	}

	sev := in.Severity
	if sev == "" {
		sev = SeverityInfo
	}
	if !sev.Valid() {
		return Event{}, fmt.Errorf("%w: severity %q", ErrInvalidInput, in.Severity)
	}

	e := Event{
		Action:      action,
		Entity:      entity,
		EntityID:    in.EntityID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Severity:    sev,
		ActorID:     in.ActorID,
		SubjectID:   in.SubjectID,
		Relations:   in.Relations,
	}

	recorded, err := s.repo.Record(ctx, e)
	if err != nil {
		return Event{}, err
	}

	// Las stats cacheadas quedaron viejas: publicamos versión nueva del
	// namespace. Best-effort, nunca afecta la escritura ya confirmada.
	s.ver.Bump(ctx, CacheNamespace)

	return recorded, nil
}

// LogBestEffort es la variante para módulos que loggean actividad como efecto
// secundario de su operación principal: cualquier falla (incluso un panic) se
// loggea y se traga, nunca se propaga al caller.
func (s *Service) LogBestEffort(ctx context.Context, in CreateInput) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("activity: panic recording event", map[string]any{"panic": r})
		}
	}()

	if _, err := s.Record(ctx, in); err != nil {
		s.log.Warn("activity: event not recorded", map[string]any{
			"entity": in.Entity,
			"action": in.Action,
			"error":  err.Error(),
		})
	}
}

func (s *Service) List(ctx context.Context, f Filter, page Page) ([]Event, int64, error) {
	return s.repo.List(ctx, f, normalizePage(page))
}

func (s *Service) ListCursor(ctx context.Context, f Filter, cur *Cursor, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	// Los callers piden una fila extra como centinela de has_more; el tope
	// deja pasar ese +1 para que en la página máxima el centinela no se
	// recorte y las filas siguientes sigan alcanzables.
	if limit > maxLimit+1 {
		limit = maxLimit + 1
	}
	return s.repo.ListCursor(ctx, f, cur, limit)
}

// Stats es el router de consultas: usa el rollup cuando el filtro es
// expresable a granularidad de día, y cae al escaneo crudo si no aplica o si
// el rollup falla. Ambos caminos devuelven la misma forma.
func (s *Service) Stats(ctx context.Context, f Filter) (Stats, error) {
	if CanUseRollup(f) {
		st, err := s.repo.AggregateRollup(ctx, f)
		if err == nil {
			return st, nil
		}
		s.log.Warn("activity: rollup aggregate failed, falling back to raw scan", map[string]any{"error": err.Error()})
	}
	return s.repo.AggregateRaw(ctx, f)
}

// CanUseRollup decide si el filtro cabe en la granularidad del rollup:
// límites de tiempo alineados a día y solo dimensiones presentes en la tupla
// (la búsqueda de texto no lo está).
func CanUseRollup(f Filter) bool {
	if strings.TrimSpace(f.Query) != "" {
		return false
	}
	return dayAligned(f.From) && dayAligned(f.To)
}

func dayAligned(t *time.Time) bool {
	if t == nil {
		return true
	}
	u := t.UTC()
	return u.Equal(u.Truncate(24 * time.Hour))
}

func (s *Service) Facets(ctx context.Context, f Filter) (Facets, error) {
	return s.repo.Facets(ctx, f)
}

// Summary devuelve los contadores compactos del dashboard. Todos los rangos
// van alineados a día, así siempre pega en el camino rápido del rollup.
type Summary struct {
	Today     int64 `json:"today"`
	Last7Days int64 `json:"last_7_days"`
	Total     int64 `json:"total"`
}

func (s *Service) Summary(ctx context.Context, f Filter) (Summary, error) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	tomorrow := today.Add(24 * time.Hour)
	weekAgo := today.Add(-6 * 24 * time.Hour)

	total, err := s.Stats(ctx, f)
	if err != nil {
		return Summary{}, err
	}

	fToday := f
	fToday.From, fToday.To = &today, &tomorrow
	dayStats, err := s.Stats(ctx, fToday)
	if err != nil {
		return Summary{}, err
	}

	fWeek := f
	fWeek.From, fWeek.To = &weekAgo, &tomorrow
	weekStats, err := s.Stats(ctx, fWeek)
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		Today:     dayStats.Totals.Events,
		Last7Days: weekStats.Totals.Events,
		Total:     total.Totals.Events,
	}, nil
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

func normalizePage(p Page) Page {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}
