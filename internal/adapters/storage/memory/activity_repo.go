package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"finca-activity/internal/domain/activity"
)

var ErrNotFound = errors.New("not found")

type rollupKey struct {
	date      time.Time
	actorID   int64
	entity    string
	action    string
	severity  activity.Severity
	subjectID int64
}

// ActivityRepo es el adapter in-memory para dev y tests.
//
// Este store no tiene upsert atómico nativo, así que usa la otra estrategia
// del contrato: read-modify-write del rollup bajo lock. El mutex se retiene
// durante TODO el Record (insert crudo + incremento), que es el equivalente
// local de la transacción: o entran las dos escrituras o ninguna, y no hay
// lost updates entre writers concurrentes.
type ActivityRepo struct {
	mu     sync.RWMutex
	events []activity.Event
	rollup map[rollupKey]int64

	nextID int64
	now    func() time.Time
}

func NewActivityRepo() *ActivityRepo {
	return &ActivityRepo{
		rollup: make(map[rollupKey]int64),
		now:    time.Now,
	}
}

func (r *ActivityRepo) Record(_ context.Context, e activity.Event) (activity.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	e.ID = r.nextID
	e.CreatedAt = r.now().UTC()

	r.events = append(r.events, e)
	k := keyOf(activity.RollupKeyOf(e))
	r.rollup[k]++

	return e, nil
}

func (r *ActivityRepo) List(_ context.Context, f activity.Filter, page activity.Page) ([]activity.Event, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.filtered(f)
	total := int64(len(matched))

	start := (page.Page - 1) * page.Limit
	if start >= len(matched) {
		return []activity.Event{}, total, nil
	}
	end := start + page.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *ActivityRepo) ListCursor(_ context.Context, f activity.Filter, cur *activity.Cursor, limit int) ([]activity.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.filtered(f)

	out := make([]activity.Event, 0, limit)
	for _, e := range matched {
		if cur != nil && !beforeCursor(e, *cur) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// beforeCursor es el predicado keyset:
// created_at < c OR (created_at = c AND id < c.id).
func beforeCursor(e activity.Event, c activity.Cursor) bool {
	if e.CreatedAt.Before(c.CreatedAt) {
		return true
	}
	return e.CreatedAt.Equal(c.CreatedAt) && e.ID < c.ID
}

func (r *ActivityRepo) AggregateRollup(_ context.Context, f activity.Filter) (activity.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var st activity.Stats
	byEntity := map[string]int64{}
	byAction := map[string]int64{}
	bySeverity := map[activity.Severity]int64{}
	byDay := map[string]int64{}
	actors := map[int64]bool{}
	subjects := map[int64]bool{}

	for k, n := range r.rollup {
		if !rollupMatches(k, f) {
			continue
		}
		st.Totals.Events += n
		byEntity[k.entity] += n
		byAction[k.action] += n
		bySeverity[k.severity] += n
		byDay[k.date.Format("2006-01-02")] += n
		if k.actorID != 0 {
			actors[k.actorID] = true
		}
		if k.subjectID != 0 {
			subjects[k.subjectID] = true
		}
	}

	st.Totals.Actors = int64(len(actors))
	st.Totals.Entities = int64(len(byEntity))
	st.Totals.Subjects = int64(len(subjects))
	fillGroups(&st, byEntity, byAction, bySeverity, byDay)
	return st, nil
}

func (r *ActivityRepo) AggregateRaw(_ context.Context, f activity.Filter) (activity.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var st activity.Stats
	byEntity := map[string]int64{}
	byAction := map[string]int64{}
	bySeverity := map[activity.Severity]int64{}
	byDay := map[string]int64{}
	actors := map[int64]bool{}
	subjects := map[int64]bool{}

	for _, e := range r.events {
		if !matches(e, f) {
			continue
		}
		st.Totals.Events++
		byEntity[e.Entity]++
		byAction[e.Action]++
		bySeverity[e.Severity]++
		byDay[e.CreatedAt.UTC().Format("2006-01-02")]++
		if e.ActorID != nil {
			actors[*e.ActorID] = true
		}
		if e.SubjectID != nil {
			subjects[*e.SubjectID] = true
		}
	}

	st.Totals.Actors = int64(len(actors))
	st.Totals.Entities = int64(len(byEntity))
	st.Totals.Subjects = int64(len(subjects))
	fillGroups(&st, byEntity, byAction, bySeverity, byDay)
	return st, nil
}

func (r *ActivityRepo) Facets(ctx context.Context, f activity.Filter) (activity.Facets, error) {
	st, err := r.AggregateRaw(ctx, f)
	if err != nil {
		return activity.Facets{}, err
	}
	return activity.Facets{
		Entities:   st.ByEntity,
		Actions:    st.ByAction,
		Severities: st.BySeverity,
	}, nil
}

// filtered devuelve los eventos que matchean, ya ordenados
// (created_at DESC, id DESC).
func (r *ActivityRepo) filtered(f activity.Filter) []activity.Event {
	out := make([]activity.Event, 0)
	for _, e := range r.events {
		if matches(e, f) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func matches(e activity.Event, f activity.Filter) bool {
	if f.Entity != "" && e.Entity != f.Entity {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if f.ActorID != nil && (e.ActorID == nil || *e.ActorID != *f.ActorID) {
		return false
	}
	if f.SubjectID != nil && (e.SubjectID == nil || *e.SubjectID != *f.SubjectID) {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !e.CreatedAt.Before(*f.To) {
		return false
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		hay := strings.ToLower(e.Title + " " + e.Description)
		if !strings.Contains(hay, strings.ToLower(q)) {
			return false
		}
	}
	return true
}

func rollupMatches(k rollupKey, f activity.Filter) bool {
	if f.Entity != "" && k.entity != f.Entity {
		return false
	}
	if f.Action != "" && k.action != f.Action {
		return false
	}
	if f.Severity != "" && k.severity != f.Severity {
		return false
	}
	if f.ActorID != nil && k.actorID != *f.ActorID {
		return false
	}
	if f.SubjectID != nil && k.subjectID != *f.SubjectID {
		return false
	}
	if f.From != nil && k.date.Before(f.From.UTC().Truncate(24*time.Hour)) {
		return false
	}
	if f.To != nil && !k.date.Before(f.To.UTC().Truncate(24*time.Hour)) {
		return false
	}
	return true
}

func keyOf(d activity.DailyAggregate) rollupKey {
	return rollupKey{
		date:      d.Date,
		actorID:   d.ActorID,
		entity:    d.Entity,
		action:    d.Action,
		severity:  d.Severity,
		subjectID: d.SubjectID,
	}
}

func fillGroups(st *activity.Stats, byEntity, byAction map[string]int64, bySeverity map[activity.Severity]int64, byDay map[string]int64) {
	for name, n := range byEntity {
		st.ByEntity = append(st.ByEntity, activity.EntityCount{Entity: name, Count: n})
	}
	sort.Slice(st.ByEntity, func(i, j int) bool { return st.ByEntity[i].Count > st.ByEntity[j].Count })

	for name, n := range byAction {
		st.ByAction = append(st.ByAction, activity.ActionCount{Action: name, Count: n})
	}
	sort.Slice(st.ByAction, func(i, j int) bool { return st.ByAction[i].Count > st.ByAction[j].Count })

	for sev, n := range bySeverity {
		st.BySeverity = append(st.BySeverity, activity.SeverityCount{Severity: sev, Count: n})
	}
	sort.Slice(st.BySeverity, func(i, j int) bool { return st.BySeverity[i].Count > st.BySeverity[j].Count })

	for day, n := range byDay {
		st.Daily = append(st.Daily, activity.DailyCount{Date: day, Count: n})
	}
	sort.Slice(st.Daily, func(i, j int) bool { return st.Daily[i].Date < st.Daily[j].Date })
}
