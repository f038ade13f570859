package router

import (
	"database/sql"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "finca-activity/docs"
	mem "finca-activity/internal/adapters/storage/memory"
	pg "finca-activity/internal/adapters/storage/postgres"
	"finca-activity/internal/domain/activity"
	"finca-activity/internal/middleware"
	"finca-activity/internal/platform/cache"
	"finca-activity/internal/platform/logger"
	"finca-activity/internal/ports/actors"
	"finca-activity/internal/ports/auth"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: si viene, usa Postgres. Si no, in-memory.
	DB *sql.DB

	// Opcional: backend de caché distribuida. Si es nil se intenta
	// REDIS_ADDR por env; sin Redis se cae a caché en memoria del proceso.
	Cache cache.Backend

	// Opcional: resolver de resúmenes de actores (include=actor).
	Actors actors.Resolver

	Logger logger.Logger
}

func NewRouter(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.NewFromEnv()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Use(middleware.AuthContext(opts.AuthVerifier))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/docs/*", httpSwagger.WrapHandler)

	// Si no te pasan DB explícita, intenta por env (para dev/handoff)
	db := opts.DB
	if db == nil {
		if dsn := os.Getenv("DB_DSN"); dsn != "" {
			if opened, err := pg.Open(dsn); err == nil {
				db = opened
			} else {
				log.Warn("router: postgres no disponible, usando memoria", map[string]any{"error": err.Error()})
			}
		}
	}

	var repo activity.Repository
	if db != nil {
		repo = pg.NewActivityRepo(db)
	} else {
		repo = mem.NewActivityRepo()
	}

	backend := opts.Cache
	if backend == nil {
		if addr := os.Getenv("REDIS_ADDR"); addr != "" {
			if rd, err := cache.OpenRedis(addr); err == nil {
				backend = rd
			} else {
				// La caché es una optimización: sin Redis seguimos andando
				// con la variante en memoria.
				log.Warn("router: redis no disponible, usando caché en memoria", map[string]any{"error": err.Error()})
			}
		}
		if backend == nil {
			backend = cache.NewMemory()
		}
	}

	rc := cache.NewResponseCache(backend, log)
	ver := cache.NewVersioner(backend)

	svc := activity.NewService(repo, log, ver)
	activity.RegisterRoutes(r, svc, rc, ver, opts.Actors, log)

	return r
}
