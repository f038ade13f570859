package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"finca-activity/internal/domain/activity"
)

func int64Ptr(v int64) *int64 { return &v }

func TestRecord_SumInvariantUnderConcurrentWriters(t *testing.T) {
	repo := NewActivityRepo()
	ctx := context.Background()

	// 8 writers x 50 eventos sobre la MISMA tupla de rollup: sin lost
	// updates, el contador tiene que quedar exacto.
	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := repo.Record(ctx, activity.Event{
					Action:    activity.ActionCreate,
					Entity:    activity.EntityAnimal,
					Severity:  activity.SeverityInfo,
					ActorID:   int64Ptr(7),
					SubjectID: int64Ptr(42),
				})
				if err != nil {
					t.Errorf("Record: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	raw, err := repo.AggregateRaw(ctx, activity.Filter{})
	if err != nil {
		t.Fatalf("AggregateRaw: %v", err)
	}
	rollup, err := repo.AggregateRollup(ctx, activity.Filter{})
	if err != nil {
		t.Fatalf("AggregateRollup: %v", err)
	}

	want := int64(writers * perWriter)
	if raw.Totals.Events != want {
		t.Fatalf("crudo: %d eventos, quería %d", raw.Totals.Events, want)
	}
	// Invariante: sum(rollup.count) == count(filas crudas) para la tupla.
	if rollup.Totals.Events != want {
		t.Fatalf("rollup: %d, quería %d (lost update)", rollup.Totals.Events, want)
	}
}

func TestStats_SingleEventScenario(t *testing.T) {
	repo := NewActivityRepo()
	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return day.Add(9 * time.Hour) }

	ctx := context.Background()
	_, err := repo.Record(ctx, activity.Event{
		Action:    "create",
		Entity:    "animal",
		Severity:  activity.SeverityInfo,
		ActorID:   int64Ptr(7),
		SubjectID: int64Ptr(42),
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	next := day.Add(24 * time.Hour)
	f := activity.Filter{ActorID: int64Ptr(7), From: &day, To: &next}

	for name, agg := range map[string]func(context.Context, activity.Filter) (activity.Stats, error){
		"rollup": repo.AggregateRollup,
		"raw":    repo.AggregateRaw,
	} {
		st, err := agg(ctx, f)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if st.Totals.Events != 1 {
			t.Fatalf("%s: totals.events = %d, quería 1", name, st.Totals.Events)
		}
		if len(st.ByAction) != 1 || st.ByAction[0].Action != "create" || st.ByAction[0].Count != 1 {
			t.Fatalf("%s: by_action = %+v", name, st.ByAction)
		}
		if len(st.ByEntity) != 1 || st.ByEntity[0].Entity != "animal" || st.ByEntity[0].Count != 1 {
			t.Fatalf("%s: by_entity = %+v", name, st.ByEntity)
		}
		if len(st.Daily) != 1 || st.Daily[0].Date != "2024-05-10" || st.Daily[0].Count != 1 {
			t.Fatalf("%s: daily = %+v", name, st.Daily)
		}
	}
}

func TestRollupAndRawAgreeOnSubDayWindow(t *testing.T) {
	repo := NewActivityRepo()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	hours := []time.Duration{2, 7, 9, 14, 23}
	for _, h := range hours {
		at := base.Add(h * time.Hour)
		repo.now = func() time.Time { return at }
		if _, err := repo.Record(ctx, activity.Event{Action: "create", Entity: "animal", Severity: activity.SeverityInfo}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	// Ventana sub-día [08:00, 24:00): el rollup no puede responderla, el
	// crudo tiene que dar el corte exacto.
	from := base.Add(8 * time.Hour)
	to := base.Add(24 * time.Hour)
	f := activity.Filter{From: &from, To: &to}

	if activity.CanUseRollup(f) {
		t.Fatalf("una ventana sub-día no debía habilitar el rollup")
	}

	st, err := repo.AggregateRaw(ctx, f)
	if err != nil {
		t.Fatalf("AggregateRaw: %v", err)
	}
	if st.Totals.Events != 3 { // 9h, 14h, 23h
		t.Fatalf("ventana sub-día: %d eventos, quería 3", st.Totals.Events)
	}
}

func TestListCursor_ExactlyOnceWithDuplicateTimestamps(t *testing.T) {
	repo := NewActivityRepo()
	ctx := context.Background()

	// Muchas filas compartiendo timestamp: el desempate por id es lo único
	// que evita saltear o duplicar entre páginas.
	stamp := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return stamp }

	const total = 25
	for i := 0; i < total; i++ {
		if i == 10 {
			stamp = stamp.Add(time.Second) // segundo grupo de duplicados
		}
		if _, err := repo.Record(ctx, activity.Event{Action: "create", Entity: "animal", Severity: activity.SeverityInfo}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	seen := map[int64]bool{}
	var cur *activity.Cursor
	var prev *activity.Event

	for page := 0; page < 10; page++ {
		items, err := repo.ListCursor(ctx, activity.Filter{}, cur, 4)
		if err != nil {
			t.Fatalf("ListCursor: %v", err)
		}
		if len(items) == 0 {
			break
		}

		for i := range items {
			e := items[i]
			if seen[e.ID] {
				t.Fatalf("fila %d duplicada entre páginas", e.ID)
			}
			seen[e.ID] = true

			// Orden estricto (created_at DESC, id DESC) a través de páginas.
			if prev != nil {
				if e.CreatedAt.After(prev.CreatedAt) ||
					(e.CreatedAt.Equal(prev.CreatedAt) && e.ID >= prev.ID) {
					t.Fatalf("orden roto: %v/%d después de %v/%d", e.CreatedAt, e.ID, prev.CreatedAt, prev.ID)
				}
			}
			prev = &items[i]
		}

		last := items[len(items)-1]
		cur = &activity.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}

		// Inserts concurrentes de filas más nuevas a mitad de paginación:
		// no deben aparecer en las páginas siguientes ni corromperlas.
		repo.now = func() time.Time { return time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC) }
		if _, err := repo.Record(ctx, activity.Event{Action: "update", Entity: "animal", Severity: activity.SeverityInfo}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	if len(seen) != total {
		t.Fatalf("la paginación devolvió %d filas originales, quería %d", len(seen), total)
	}
}

func TestList_OffsetPagination(t *testing.T) {
	repo := NewActivityRepo()
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if _, err := repo.Record(ctx, activity.Event{Action: "create", Entity: "animal", Severity: activity.SeverityInfo}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	items, total, err := repo.List(ctx, activity.Filter{}, activity.Page{Page: 2, Limit: 3})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 7 {
		t.Fatalf("total = %d, quería 7", total)
	}
	if len(items) != 3 {
		t.Fatalf("página 2 con limit 3: %d items", len(items))
	}

	items, _, err = repo.List(ctx, activity.Filter{}, activity.Page{Page: 3, Limit: 3})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("última página: %d items, quería 1", len(items))
	}
}
