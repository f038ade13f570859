package activity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"finca-activity/internal/middleware"
	"finca-activity/internal/platform/cache"
	"finca-activity/internal/platform/logger"
	"finca-activity/internal/ports/actors"
)

// TTLs de las respuestas agregadas. Los listados por cursor no pasan por la
// caché de agregados: cada página es distinta y el cursor ya la hace barata.
const (
	statsTTL   = 60 * time.Second
	summaryTTL = 30 * time.Second
	filtersTTL = 5 * time.Minute
)

type Handlers struct {
	svc    *Service
	rc     *cache.ResponseCache
	ver    *cache.Versioner
	actors actors.Resolver // puede ser nil => include=actor se ignora
	log    logger.Logger
}

func RegisterRoutes(r chi.Router, svc *Service, rc *cache.ResponseCache, ver *cache.Versioner, resolver actors.Resolver, log logger.Logger) {
	if log == nil {
		log = logger.Nop()
	}
	if ver == nil {
		ver = cache.NewVersioner(nil)
	}
	h := &Handlers{svc: svc, rc: rc, ver: ver, actors: resolver, log: log}

	r.Route("/activity", func(ar chi.Router) {
		ar.Post("/", h.create)
		ar.Get("/", h.list)
		ar.Get("/stats", h.stats)
		ar.Get("/summary", h.summary)
		ar.Get("/filters", h.filters)
	})
}

// createRequest es el cuerpo para registrar un evento de actividad.
type createRequest struct {
	Action      string         `json:"action"`
	Entity      string         `json:"entity"`
	EntityID    *int64         `json:"entity_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    Severity       `json:"severity" enums:"info,warning,critical"`
	ActorID     *int64         `json:"actor_id"` // opcional; default: usuario autenticado
	SubjectID   *int64         `json:"subject_id"`
	Relations   map[string]any `json:"relations"`
}

// eventResponse representa un evento del log devuelto por la API.
type eventResponse struct {
	ID          int64           `json:"id"`
	Action      string          `json:"action"`
	Entity      string          `json:"entity"`
	EntityID    *int64          `json:"entity_id,omitempty"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Severity    Severity        `json:"severity"`
	ActorID     *int64          `json:"actor_id,omitempty"`
	Actor       *actors.Summary `json:"actor,omitempty"`
	SubjectID   *int64          `json:"subject_id,omitempty"`
	Relations   map[string]any  `json:"relations,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type cursorPageResponse struct {
	Items      []any   `json:"items"`
	NextCursor *string `json:"next_cursor"`
	HasMore    bool    `json:"has_more"`
	Limit      int     `json:"limit"`
}

type offsetPageResponse struct {
	Items       []any `json:"items"`
	Total       int64 `json:"total"`
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalPages  int   `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

// create godoc
// @Summary Registrar evento de actividad
// @Description Inserta un evento en el log y actualiza el rollup diario en la misma transacción. Si no viene actor_id se usa el usuario autenticado. Autenticación: `X-Debug-User-ID` (dev) o `Authorization: Bearer <token>` (prod).
// @Tags activity
// @Accept json
// @Produce json
// @Param payload body createRequest true "Datos del evento"
// @Success 201 {object} eventResponse
// @Failure 400 {string} string "invalid json / reglas de negocio"
// @Failure 401 {string} string "unauthorized"
// @Router /activity [post]
func (h *Handlers) create(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	// Resolución de identidad en el boundary: si el body no trae actor,
	// va el del token. El servicio nunca lee el contexto del request.
	actorID := req.ActorID
	if actorID == nil {
		if id, err := strconv.ParseInt(claims.UserID, 10, 64); err == nil {
			actorID = &id
		}
	}

	e, err := h.svc.Record(r.Context(), CreateInput{
		Action:      req.Action,
		Entity:      req.Entity,
		EntityID:    req.EntityID,
		Title:       req.Title,
		Description: req.Description,
		Severity:    req.Severity,
		ActorID:     actorID,
		SubjectID:   req.SubjectID,
		Relations:   req.Relations,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrSelfLogging) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error("activity: record failed", map[string]any{"error": err.Error()})
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, toEventResponse(e, nil))
}

// list godoc
// @Summary Listar eventos de actividad
// @Description Lista paginada del log. Soporta paginación por offset (page/limit) o por cursor (cursor o pagination=cursor); el modo cursor es estable bajo inserciones concurrentes. Un cursor malformado reinicia desde el principio, no es error. Filtros: entity, action, severity, actor_id, subject_id, from/to (RFC3339), q. `fields` proyecta columnas y `include=actor` embebe el resumen del actor. `scope=mine` restringe al usuario autenticado.
// @Tags activity
// @Produce json
// @Param page query int false "Página (modo offset). Default 1"
// @Param limit query int false "Tamaño de página (1-200). Default 50"
// @Param cursor query string false "Token opaco de la página anterior (modo cursor)"
// @Param pagination query string false "cursor para forzar modo cursor"
// @Param entity query string false "Filtrar por entidad (ej: animal)"
// @Param action query string false "Filtrar por acción (ej: create)"
// @Param severity query string false "info|warning|critical"
// @Param actor_id query int false "Filtrar por actor"
// @Param subject_id query int false "Filtrar por sujeto (animal)"
// @Param from query string false "Límite inferior created_at (RFC3339)"
// @Param to query string false "Límite superior created_at (RFC3339, exclusivo)"
// @Param q query string false "Texto libre en título/descripción"
// @Param fields query string false "Lista CSV de campos a proyectar"
// @Param include query string false "actor para embeber resumen del actor"
// @Param scope query string false "mine para ver solo mi actividad"
// @Success 200 {object} cursorPageResponse
// @Failure 401 {string} string "unauthorized (solo scope=mine sin token)"
// @Failure 500 {string} string "internal error"
// @Router /activity [get]
func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	fields := parseFields(q.Get("fields"))
	includeActor := strings.Contains(q.Get("include"), "actor")

	// limit fuera de rango se clampa, no se rechaza: mismo contrato que la
	// normalización del servicio.
	limit := defaultLimit
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			if n > maxLimit {
				n = maxLimit
			}
			limit = n
		}
	}

	cursorToken := strings.TrimSpace(q.Get("cursor"))
	cursorMode := cursorToken != "" || q.Get("pagination") == "cursor"

	if cursorMode {
		cur := DecodeCursor(cursorToken) // nil si es malformado => desde arriba

		// Pedimos una fila extra para saber si hay más páginas.
		items, err := h.svc.ListCursor(r.Context(), filter, cur, limit+1)
		if err != nil {
			h.log.Error("activity: list cursor failed", map[string]any{"error": err.Error()})
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		hasMore := len(items) > limit
		if hasMore {
			items = items[:limit]
		}

		var next *string
		if hasMore && len(items) > 0 {
			last := items[len(items)-1]
			tok := Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
			next = &tok
		}

		writeJSON(w, http.StatusOK, cursorPageResponse{
			Items:      h.project(r, items, fields, includeActor),
			NextCursor: next,
			HasMore:    hasMore,
			Limit:      limit,
		})
		return
	}

	page := Page{Limit: limit}
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page.Page = n
		}
	}

	items, total, err := h.svc.List(r.Context(), filter, page)
	if err != nil {
		h.log.Error("activity: list failed", map[string]any{"error": err.Error()})
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	page = normalizePage(page)
	totalPages := int((total + int64(page.Limit) - 1) / int64(page.Limit))

	writeJSON(w, http.StatusOK, offsetPageResponse{
		Items:       h.project(r, items, fields, includeActor),
		Total:       total,
		Page:        page.Page,
		Limit:       page.Limit,
		TotalPages:  totalPages,
		HasNext:     page.Page < totalPages,
		HasPrevious: page.Page > 1,
	})
}

// stats godoc
// @Summary Estadísticas de actividad
// @Description Totales, desgloses por entidad/acción/severidad y tendencia diaria. Sirve desde el rollup diario cuando el filtro lo permite; si no, escanea la tabla cruda. Respuesta cacheada con ETag: mandar If-None-Match para recibir 304.
// @Tags activity
// @Produce json
// @Param entity query string false "Filtrar por entidad"
// @Param action query string false "Filtrar por acción"
// @Param severity query string false "info|warning|critical"
// @Param actor_id query int false "Filtrar por actor"
// @Param subject_id query int false "Filtrar por sujeto"
// @Param from query string false "Límite inferior (RFC3339)"
// @Param to query string false "Límite superior (RFC3339, exclusivo)"
// @Param scope query string false "mine para mi actividad (respuesta privada)"
// @Success 200 {object} Stats
// @Failure 401 {string} string "unauthorized (solo scope=mine sin token)"
// @Router /activity/stats [get]
func (h *Handlers) stats(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	h.cached(w, r, "activity:stats:v1", statsTTL, filter, func() (any, error) {
		return h.svc.Stats(r.Context(), filter)
	})
}

// summary godoc
// @Summary Resumen compacto de actividad
// @Description Contadores de hoy, últimos 7 días y total. Pensado para el dashboard; siempre resuelve por el rollup diario.
// @Tags activity
// @Produce json
// @Param scope query string false "mine para mi actividad"
// @Success 200 {object} Summary
// @Router /activity/summary [get]
func (h *Handlers) summary(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	// El resumen arma sus propios rangos de fechas.
	filter.From, filter.To = nil, nil

	h.cached(w, r, "activity:summary:v1", summaryTTL, filter, func() (any, error) {
		return h.svc.Summary(r.Context(), filter)
	})
}

// filters godoc
// @Summary Facetas para construir filtros
// @Description Valores distintos de entity/action/severity con sus conteos, para poblar los selectores del cliente.
// @Tags activity
// @Produce json
// @Success 200 {object} Facets
// @Router /activity/filters [get]
func (h *Handlers) filters(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	h.cached(w, r, "activity:filters:v1", filtersTTL, filter, func() (any, error) {
		return h.svc.Facets(r.Context(), filter)
	})
}

// cached pasa la computación por el wrapper de caché con ETag. La clave sale
// de TODOS los parámetros efectivos + la identidad del caller cuando el scope
// es privado, así dos viewers o dos filtros distintos nunca colisionan.
func (h *Handlers) cached(w http.ResponseWriter, r *http.Request, prefix string, ttl time.Duration, filter Filter, compute func() (any, error)) {
	private := r.URL.Query().Get("scope") == "mine"

	viewer := ""
	if private {
		claims, _ := middleware.GetClaims(r.Context())
		viewer = claims.UserID
	}

	keyParts := map[string]any{
		"filter": filterKeyParts(filter),
		"viewer": viewer,
		"ver":    h.ver.Version(r.Context(), CacheNamespace),
	}

	res, err := h.rc.JSON(r.Context(), cache.Request{
		Key:         cache.BuildKey(prefix, keyParts),
		TTL:         ttl,
		Private:     private,
		IfNoneMatch: r.Header.Get("If-None-Match"),
	}, func(context.Context) (any, error) {
		return compute()
	})
	if err != nil {
		h.log.Error("activity: aggregate failed", map[string]any{"prefix": prefix, "error": err.Error()})
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	res.Write(w)
}

// parseFilter arma el Filter desde query params. Fechas no parseables se
// ignoran (degradación suave); solo scope=mine sin token corta con 401.
func (h *Handlers) parseFilter(w http.ResponseWriter, r *http.Request) (Filter, bool) {
	q := r.URL.Query()

	f := Filter{
		Entity: strings.TrimSpace(q.Get("entity")),
		Action: strings.TrimSpace(q.Get("action")),
		Query:  strings.TrimSpace(q.Get("q")),
	}

	if v := strings.TrimSpace(q.Get("severity")); v != "" {
		if sev := Severity(v); sev.Valid() {
			f.Severity = sev
		}
	}

	if v := q.Get("actor_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			f.ActorID = &id
		}
	}
	if v := q.Get("subject_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			f.SubjectID = &id
		}
	}

	if v := strings.TrimSpace(q.Get("from")); v != "" {
		if t, err := parseTimeBound(v); err == nil {
			f.From = &t
		}
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		if t, err := parseTimeBound(v); err == nil {
			f.To = &t
		}
	}

	if q.Get("scope") == "mine" {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return Filter{}, false
		}
		if id, err := strconv.ParseInt(claims.UserID, 10, 64); err == nil {
			f.ActorID = &id
		}
	}

	return f, true
}

// parseTimeBound acepta RFC3339 completo o fecha suelta YYYY-MM-DD.
func parseTimeBound(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// filterKeyParts normaliza el filtro para la clave de caché: solo valores
// presentes, con nombres fijos.
func filterKeyParts(f Filter) map[string]any {
	parts := map[string]any{}
	if f.Entity != "" {
		parts["entity"] = f.Entity
	}
	if f.Action != "" {
		parts["action"] = f.Action
	}
	if f.Severity != "" {
		parts["severity"] = string(f.Severity)
	}
	if f.ActorID != nil {
		parts["actor_id"] = *f.ActorID
	}
	if f.SubjectID != nil {
		parts["subject_id"] = *f.SubjectID
	}
	if f.From != nil {
		parts["from"] = f.From.UTC().Format(time.RFC3339Nano)
	}
	if f.To != nil {
		parts["to"] = f.To.UTC().Format(time.RFC3339Nano)
	}
	if f.Query != "" {
		parts["q"] = f.Query
	}
	return parts
}

func parseFields(csv string) map[string]bool {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return nil
	}
	out := map[string]bool{}
	for _, fld := range strings.Split(csv, ",") {
		if fld = strings.TrimSpace(fld); fld != "" {
			out[fld] = true
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (h *Handlers) project(r *http.Request, items []Event, fields map[string]bool, includeActor bool) []any {
	// Micro-caché por request: varios eventos suelen compartir actor.
	summaries := map[int64]*actors.Summary{}

	out := make([]any, 0, len(items))
	for _, e := range items {
		var summary *actors.Summary
		if includeActor && h.actors != nil && e.ActorID != nil {
			if s, ok := summaries[*e.ActorID]; ok {
				summary = s
			} else if s, err := h.actors.Summarize(r.Context(), *e.ActorID); err == nil {
				summary = &s
				summaries[*e.ActorID] = summary
			} else {
				// El resumen es decorativo: si el directorio falla, seguimos
				// sin él.
				summaries[*e.ActorID] = nil
			}
		}

		resp := toEventResponse(e, summary)
		if fields == nil {
			out = append(out, resp)
			continue
		}
		out = append(out, projectFields(resp, fields))
	}
	return out
}

func toEventResponse(e Event, summary *actors.Summary) eventResponse {
	return eventResponse{
		ID:          e.ID,
		Action:      e.Action,
		Entity:      e.Entity,
		EntityID:    e.EntityID,
		Title:       e.Title,
		Description: e.Description,
		Severity:    e.Severity,
		ActorID:     e.ActorID,
		Actor:       summary,
		SubjectID:   e.SubjectID,
		Relations:   e.Relations,
		CreatedAt:   e.CreatedAt,
	}
}

// projectFields filtra la respuesta a los campos pedidos. Pasa por JSON para
// reusar los nombres de los tags sin duplicar el mapeo.
func projectFields(resp eventResponse, fields map[string]bool) map[string]any {
	b, err := json.Marshal(resp)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	for k := range m {
		if !fields[k] {
			delete(m, k)
		}
	}
	return m
}

// writeJSON está duplicado intencionalmente en handlers de distintos módulos
// para evitar crear paquetes/helpers compartidos demasiado pronto.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
