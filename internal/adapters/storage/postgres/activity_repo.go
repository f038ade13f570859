package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"finca-activity/internal/domain/activity"
)

type ActivityRepo struct {
	db *sql.DB
}

func NewActivityRepo(db *sql.DB) *ActivityRepo {
	return &ActivityRepo{db: db}
}

const eventColumns = `
	id, action, entity, entity_id,
	title, description, severity,
	actor_id, subject_id, relations,
	created_at
`

// Record inserta la fila cruda y upserta el rollup diario en UNA transacción.
// Postgres tiene upsert atómico nativo (ON CONFLICT DO UPDATE), así que el
// incremento no necesita lock explícito: lo serializa el propio store.
// Si el upsert falla, el rollback también revierte el insert crudo y el
// invariante sum(rollup) == count(crudo) se preserva.
func (r *ActivityRepo) Record(ctx context.Context, e activity.Event) (activity.Event, error) {
	var relations []byte
	if e.Relations != nil {
		b, err := json.Marshal(e.Relations)
		if err != nil {
			return activity.Event{}, fmt.Errorf("activity: marshal relations: %w", err)
		}
		relations = b
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return activity.Event{}, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO activity_events (
			action, entity, entity_id,
			title, description, severity,
			actor_id, subject_id, relations
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id, created_at
	`,
		e.Action,
		e.Entity,
		e.EntityID,
		e.Title,
		e.Description,
		string(e.Severity),
		e.ActorID,
		e.SubjectID,
		relations,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return activity.Event{}, err
	}

	e.CreatedAt = e.CreatedAt.UTC()
	key := activity.RollupKeyOf(e)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_activity (date, actor_id, entity, action, severity, subject_id, count)
		VALUES ($1,$2,$3,$4,$5,$6,1)
		ON CONFLICT (date, actor_id, entity, action, severity, subject_id)
		DO UPDATE SET count = daily_activity.count + 1
	`,
		key.Date,
		key.ActorID,
		key.Entity,
		key.Action,
		string(key.Severity),
		key.SubjectID,
	)
	if err != nil {
		return activity.Event{}, fmt.Errorf("activity: rollup upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return activity.Event{}, err
	}
	return e, nil
}

func (r *ActivityRepo) List(ctx context.Context, f activity.Filter, page activity.Page) ([]activity.Event, int64, error) {
	where, args := eventsWhere(f)

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activity_events"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (page.Page - 1) * page.Limit
	q := fmt.Sprintf(
		"SELECT %s FROM activity_events%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		eventColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, page.Limit, offset)

	items, err := r.queryEvents(ctx, q, args)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *ActivityRepo) ListCursor(ctx context.Context, f activity.Filter, cur *activity.Cursor, limit int) ([]activity.Event, error) {
	where, args := eventsWhere(f)

	// Predicado keyset con desempate por id: filas que comparten timestamp
	// no se saltean ni se duplican entre páginas, aún con inserts
	// concurrentes de filas más nuevas.
	if cur != nil {
		cond := fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, cur.CreatedAt, cur.ID)
		if where == "" {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}
	}

	q := fmt.Sprintf(
		"SELECT %s FROM activity_events%s ORDER BY created_at DESC, id DESC LIMIT $%d",
		eventColumns, where, len(args)+1,
	)
	args = append(args, limit)

	return r.queryEvents(ctx, q, args)
}

// AggregateRollup agrega sumando contadores de daily_activity. Solo recibe
// filtros ya validados a granularidad de día por el router de consultas.
func (r *ActivityRepo) AggregateRollup(ctx context.Context, f activity.Filter) (activity.Stats, error) {
	where, args := rollupWhere(f)

	var st activity.Stats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(count), 0),
			COUNT(DISTINCT actor_id) FILTER (WHERE actor_id <> 0),
			COUNT(DISTINCT entity),
			COUNT(DISTINCT subject_id) FILTER (WHERE subject_id <> 0)
		FROM daily_activity`+where, args...).
		Scan(&st.Totals.Events, &st.Totals.Actors, &st.Totals.Entities, &st.Totals.Subjects)
	if err != nil {
		return activity.Stats{}, err
	}

	if err := r.groupRollup(ctx, "entity", where, args, func(name string, n int64) {
		st.ByEntity = append(st.ByEntity, activity.EntityCount{Entity: name, Count: n})
	}); err != nil {
		return activity.Stats{}, err
	}
	if err := r.groupRollup(ctx, "action", where, args, func(name string, n int64) {
		st.ByAction = append(st.ByAction, activity.ActionCount{Action: name, Count: n})
	}); err != nil {
		return activity.Stats{}, err
	}
	if err := r.groupRollup(ctx, "severity", where, args, func(name string, n int64) {
		st.BySeverity = append(st.BySeverity, activity.SeverityCount{Severity: activity.Severity(name), Count: n})
	}); err != nil {
		return activity.Stats{}, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT date, SUM(count) FROM daily_activity"+where+" GROUP BY date ORDER BY date", args...)
	if err != nil {
		return activity.Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var d time.Time
		var n int64
		if err := rows.Scan(&d, &n); err != nil {
			return activity.Stats{}, err
		}
		st.Daily = append(st.Daily, activity.DailyCount{Date: d.Format("2006-01-02"), Count: n})
	}
	return st, rows.Err()
}

func (r *ActivityRepo) groupRollup(ctx context.Context, dim, where string, args []any, add func(string, int64)) error {
	q := fmt.Sprintf(
		"SELECT %s, SUM(count) FROM daily_activity%s GROUP BY %s ORDER BY 2 DESC", dim, where, dim)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return err
		}
		add(name, n)
	}
	return rows.Err()
}

// AggregateRaw produce la misma forma escaneando la tabla cruda. Sin ORDER BY
// sobre las filas: la agregación no paga un sort que no necesita.
func (r *ActivityRepo) AggregateRaw(ctx context.Context, f activity.Filter) (activity.Stats, error) {
	where, args := eventsWhere(f)

	var st activity.Stats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT actor_id),
			COUNT(DISTINCT entity),
			COUNT(DISTINCT subject_id)
		FROM activity_events`+where, args...).
		Scan(&st.Totals.Events, &st.Totals.Actors, &st.Totals.Entities, &st.Totals.Subjects)
	if err != nil {
		return activity.Stats{}, err
	}

	if err := r.groupRaw(ctx, "entity", where, args, func(name string, n int64) {
		st.ByEntity = append(st.ByEntity, activity.EntityCount{Entity: name, Count: n})
	}); err != nil {
		return activity.Stats{}, err
	}
	if err := r.groupRaw(ctx, "action", where, args, func(name string, n int64) {
		st.ByAction = append(st.ByAction, activity.ActionCount{Action: name, Count: n})
	}); err != nil {
		return activity.Stats{}, err
	}
	if err := r.groupRaw(ctx, "severity", where, args, func(name string, n int64) {
		st.BySeverity = append(st.BySeverity, activity.SeverityCount{Severity: activity.Severity(name), Count: n})
	}); err != nil {
		return activity.Stats{}, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT (created_at AT TIME ZONE 'UTC')::date AS day, COUNT(*) FROM activity_events"+where+" GROUP BY day ORDER BY day", args...)
	if err != nil {
		return activity.Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var d time.Time
		var n int64
		if err := rows.Scan(&d, &n); err != nil {
			return activity.Stats{}, err
		}
		st.Daily = append(st.Daily, activity.DailyCount{Date: d.Format("2006-01-02"), Count: n})
	}
	return st, rows.Err()
}

func (r *ActivityRepo) groupRaw(ctx context.Context, dim, where string, args []any, add func(string, int64)) error {
	q := fmt.Sprintf(
		"SELECT %s, COUNT(*) FROM activity_events%s GROUP BY %s ORDER BY 2 DESC", dim, where, dim)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return err
		}
		add(name, n)
	}
	return rows.Err()
}

// Facets reusa el camino del rollup: los valores distintos con conteos salen
// de sumas agrupadas, que es exactamente lo que el rollup ya precomputa.
// Si el filtro no cabe en el rollup, caen al escaneo crudo.
func (r *ActivityRepo) Facets(ctx context.Context, f activity.Filter) (activity.Facets, error) {
	var st activity.Stats
	var err error

	if activity.CanUseRollup(f) {
		st, err = r.AggregateRollup(ctx, f)
	}
	if err != nil || !activity.CanUseRollup(f) {
		st, err = r.AggregateRaw(ctx, f)
	}
	if err != nil {
		return activity.Facets{}, err
	}

	return activity.Facets{
		Entities:   st.ByEntity,
		Actions:    st.ByAction,
		Severities: st.BySeverity,
	}, nil
}

func (r *ActivityRepo) queryEvents(ctx context.Context, q string, args []any) ([]activity.Event, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]activity.Event, 0)
	for rows.Next() {
		var e activity.Event
		var sev string
		var relations []byte

		if err := rows.Scan(
			&e.ID,
			&e.Action,
			&e.Entity,
			&e.EntityID,
			&e.Title,
			&e.Description,
			&sev,
			&e.ActorID,
			&e.SubjectID,
			&relations,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}

		e.Severity = activity.Severity(sev)
		e.CreatedAt = e.CreatedAt.UTC()
		if len(relations) > 0 {
			_ = json.Unmarshal(relations, &e.Relations)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// eventsWhere arma el WHERE sobre la tabla cruda, estilo builder posicional.
func eventsWhere(f activity.Filter) (string, []any) {
	conds := make([]string, 0, 8)
	args := make([]any, 0, 8)

	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Entity != "" {
		add("entity = $%d", f.Entity)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.Severity != "" {
		add("severity = $%d", string(f.Severity))
	}
	if f.ActorID != nil {
		add("actor_id = $%d", *f.ActorID)
	}
	if f.SubjectID != nil {
		add("subject_id = $%d", *f.SubjectID)
	}
	if f.From != nil {
		add("created_at >= $%d", f.From.UTC())
	}
	if f.To != nil {
		add("created_at < $%d", f.To.UTC())
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+q+"%")
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// rollupWhere arma el WHERE sobre daily_activity. Los límites de tiempo ya
// vienen alineados a día (lo garantiza el router), así que van como fechas.
func rollupWhere(f activity.Filter) (string, []any) {
	conds := make([]string, 0, 8)
	args := make([]any, 0, 8)

	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Entity != "" {
		add("entity = $%d", f.Entity)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.Severity != "" {
		add("severity = $%d", string(f.Severity))
	}
	if f.ActorID != nil {
		add("actor_id = $%d", *f.ActorID)
	}
	if f.SubjectID != nil {
		add("subject_id = $%d", *f.SubjectID)
	}
	if f.From != nil {
		add("date >= $%d", f.From.UTC().Truncate(24*time.Hour))
	}
	if f.To != nil {
		add("date < $%d", f.To.UTC().Truncate(24*time.Hour))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
