package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"finca-activity/internal/platform/logger"
)

const (
	defaultLockTTL    = 10 * time.Second
	defaultWaitBudget = 500 * time.Millisecond
)

// Entry es lo que se persiste en el backend: el payload ya serializado junto
// con su ETag, para poder responder 304 sin re-serializar.
type Entry struct {
	ETag    string          `json:"etag"`
	Payload json.RawMessage `json:"payload"`
}

// Request describe una lectura cacheable.
type Request struct {
	Key         string
	TTL         time.Duration
	Private     bool   // Cache-Control private vs public
	IfNoneMatch string // header condicional del caller, puede venir vacío
}

// Result es la respuesta lista para escribir: status, payload y metadata de
// headers. Payload viene nil en un 304.
type Result struct {
	Status  int
	ETag    string
	Payload []byte
	Source  string // HIT | MISS | BYPASS

	private bool
	ttl     time.Duration
}

// Write emite headers y body sobre w. Cache-Control siempre sale con el TTL
// configurado; Vary declara los headers de identidad cuando la respuesta es
// privada.
func (r Result) Write(w http.ResponseWriter) {
	scope := "public"
	if r.private {
		scope = "private"
		w.Header().Set("Vary", "Authorization, X-Debug-User-ID")
	}
	w.Header().Set("Cache-Control", scope+", max-age="+strconv.Itoa(int(r.ttl.Seconds())))
	w.Header().Set("ETag", `"`+r.ETag+`"`)
	w.Header().Set("X-Cache", r.Source)

	if r.Status == http.StatusNotModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(r.Status)
	_, _ = w.Write(r.Payload)
}

// ComputeFunc produce el valor a cachear; se serializa con encoding/json.
type ComputeFunc func(ctx context.Context) (any, error)

// ResponseCache implementa get/compute/set con soporte condicional
// (If-None-Match) y deduplicación de cómputo vía Coordinator.
//
// La búsqueda está modelada como una lista ordenada de estrategias; cada una
// devuelve un resultado o cede a la siguiente. Eso deja el camino de
// degradación (caché → singleflight → cómputo directo) testeable por partes.
type ResponseCache struct {
	backend Backend // nil => sin caché, solo ETag condicional
	flight  *Coordinator
	log     logger.Logger

	lockTTL    time.Duration
	waitBudget time.Duration
}

func NewResponseCache(backend Backend, log logger.Logger) *ResponseCache {
	if log == nil {
		log = logger.Nop()
	}
	return &ResponseCache{
		backend:    backend,
		flight:     NewCoordinator(backend, log),
		log:        log,
		lockTTL:    defaultLockTTL,
		waitBudget: defaultWaitBudget,
	}
}

type strategy func(ctx context.Context, req Request, compute ComputeFunc) (*Result, error)

// JSON resuelve una lectura cacheable. Un error del backend nunca llega al
// caller: se degrada a computar directo. Solo un error de compute() se
// propaga.
func (rc *ResponseCache) JSON(ctx context.Context, req Request, compute ComputeFunc) (Result, error) {
	for _, s := range []strategy{rc.fromCache, rc.fromFlight, rc.direct} {
		res, err := s(ctx, req, compute)
		if err != nil {
			return Result{}, err
		}
		if res != nil {
			return *res, nil
		}
	}
	// direct nunca cede; no deberíamos llegar acá.
	return Result{}, fmt.Errorf("cache: sin estrategia para %q", req.Key)
}

// fromCache: sirve la entrada existente si la hay. Sin backend, cede.
func (rc *ResponseCache) fromCache(ctx context.Context, req Request, _ ComputeFunc) (*Result, error) {
	if rc.backend == nil {
		return nil, nil
	}

	raw, err := rc.backend.Get(ctx, req.Key)
	if err != nil {
		if err != ErrMiss {
			rc.log.Warn("cache: get failed, degrading", map[string]any{"key": req.Key, "error": err.Error()})
		}
		return nil, nil
	}

	res := rc.fromEntry(raw, req, "HIT")
	if res == nil {
		// Entrada corrupta: la tiramos y recomputamos.
		_ = rc.backend.Delete(ctx, req.Key)
		return nil, nil
	}
	return res, nil
}

// fromFlight: hubo miss; coordina con los otros workers para computar una
// sola vez.
func (rc *ResponseCache) fromFlight(ctx context.Context, req Request, compute ComputeFunc) (*Result, error) {
	if rc.backend == nil {
		return nil, nil
	}

	acq := rc.flight.Acquire(ctx, req.Key, rc.lockTTL, rc.waitBudget)
	switch acq.State {
	case StateFound:
		if res := rc.fromEntry(acq.Payload, req, "HIT"); res != nil {
			return res, nil
		}
		return nil, nil

	case StateAcquired:
		defer acq.Release()

		payload, etag, err := rc.compute(ctx, compute)
		if err != nil {
			return nil, err
		}
		rc.store(ctx, req, payload, etag)
		return rc.conditional(req, payload, etag, "MISS"), nil

	default:
		// No ganamos el lock ni apareció resultado: un reintento de lectura
		// (el otro worker pudo publicar recién) y después cómputo directo.
		if raw, err := rc.backend.Get(ctx, req.Key); err == nil {
			if res := rc.fromEntry(raw, req, "HIT"); res != nil {
				return res, nil
			}
		}
		return nil, nil
	}
}

// direct: último escalón, siempre responde. Sin backend además es el único:
// computa y honra If-None-Match contra el hash del payload.
func (rc *ResponseCache) direct(ctx context.Context, req Request, compute ComputeFunc) (*Result, error) {
	payload, etag, err := rc.compute(ctx, compute)
	if err != nil {
		return nil, err
	}
	source := "MISS"
	if rc.backend == nil {
		source = "BYPASS"
	}
	return rc.conditional(req, payload, etag, source), nil
}

func (rc *ResponseCache) compute(ctx context.Context, compute ComputeFunc) ([]byte, string, error) {
	v, err := compute(ctx)
	if err != nil {
		return nil, "", err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, "", err
	}
	return payload, ETagFor(payload), nil
}

func (rc *ResponseCache) store(ctx context.Context, req Request, payload []byte, etag string) {
	b, err := json.Marshal(Entry{ETag: etag, Payload: payload})
	if err != nil {
		return
	}
	if err := rc.backend.Set(ctx, req.Key, b, req.TTL); err != nil {
		rc.log.Warn("cache: set failed", map[string]any{"key": req.Key, "error": err.Error()})
	}
}

func (rc *ResponseCache) fromEntry(raw []byte, req Request, source string) *Result {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil || e.ETag == "" {
		return nil
	}
	return rc.conditional(req, e.Payload, e.ETag, source)
}

func (rc *ResponseCache) conditional(req Request, payload []byte, etag, source string) *Result {
	res := &Result{
		Status:  http.StatusOK,
		ETag:    etag,
		Payload: payload,
		Source:  source,
		private: req.Private,
		ttl:     req.TTL,
	}
	if etagMatches(req.IfNoneMatch, etag) {
		res.Status = http.StatusNotModified
		res.Payload = nil
	}
	return res
}

// ETagFor deriva el ETag de un payload: xxhash64 en hex, corto y barato.
func ETagFor(payload []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(payload))
}

func etagMatches(ifNoneMatch, etag string) bool {
	ifNoneMatch = strings.TrimSpace(ifNoneMatch)
	if ifNoneMatch == "" {
		return false
	}
	for _, cand := range strings.Split(ifNoneMatch, ",") {
		cand = strings.TrimPrefix(strings.TrimSpace(cand), "W/")
		cand = strings.Trim(cand, `"`)
		if cand == etag || cand == "*" {
			return true
		}
	}
	return false
}
