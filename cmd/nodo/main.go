package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gob-chaco/nodo/internal/actividades"
	"github.com/gob-chaco/nodo/internal/inscripcion"
	"github.com/gob-chaco/nodo/internal/institucional"
	"github.com/gob-chaco/nodo/internal/nachec"
	"github.com/gob-chaco/nodo/internal/programa"
	"github.com/gob-chaco/nodo/internal/shared/auth"
	"github.com/gob-chaco/nodo/internal/shared/config"
	"github.com/gob-chaco/nodo/internal/shared/database"
	"github.com/gob-chaco/nodo/internal/shared/events"
	"github.com/gob-chaco/nodo/internal/shared/logger"
	"github.com/gob-chaco/nodo/internal/shared/metrics"
	"github.com/gob-chaco/nodo/internal/shared/middleware"
	"github.com/gob-chaco/nodo/internal/solapas"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.Env)

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool); err != nil {
		log.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	bus := events.NewBus(log)
	defer bus.Close()

	// Repositories
	programaRepo := programa.NewPostgresRepository(db.Pool)
	institucionalRepo := institucional.NewPostgresRepository(db.Pool)
	inscripcionRepo := inscripcion.NewPostgresRepository(db.Pool)
	nachecRepo := nachec.NewPostgresRepository(db.Pool)
	actividadesRepo := actividades.NewPostgresRepository(db.Pool)

	// Services
	institucionalSvc := institucional.NewService(institucionalRepo, programaRepo, bus, log)
	inscripcionSvc := inscripcion.NewService(inscripcionRepo, programaRepo, bus, log)
	nachecSvc := nachec.NewService(nachecRepo, bus, log)
	actividadesSvc := actividades.NewService(actividadesRepo, bus, log)
	solapasSvc := solapas.NewService(programaRepo, inscripcionRepo, log)

	// An accepted institutional referral opens a case. The citizen's
	// program enrollment must follow without operator intervention.
	bus.Subscribe("institucional.caso.creado", "inscripcion-sync", func(ctx context.Context, event events.Event) error {
		data, ok := event.Data.(map[string]any)
		if !ok {
			return fmt.Errorf("unexpected payload for %s", event.Type)
		}
		caso, ok := data["caso"].(*institucional.CasoInstitucional)
		if !ok {
			return fmt.Errorf("unexpected caso payload for %s", event.Type)
		}
		deriv, ok := data["derivacion"].(*institucional.DerivacionInstitucional)
		if !ok {
			return fmt.Errorf("unexpected derivacion payload for %s", event.Type)
		}

		p, err := programaRepo.Get(ctx, deriv.ProgramaID)
		if err != nil {
			return err
		}
		_, err = inscripcionSvc.AsegurarInscripcionPorTipo(ctx, caso.CiudadanoID, p.Tipo, inscripcion.ViaDerivacionExterna)
		return err
	})

	// Weekly absence review, runs every Monday
	schedCtx, stopSched := context.WithCancel(ctx)
	defer stopSched()
	go runRevisionSemanal(schedCtx, actividadesSvc, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.BodyLimit)
	r.Use(middleware.RateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst))
	r.Use(metrics.Middleware)

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(db))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth))

		r.Mount("/programas", programa.NewHandler(programaRepo).Routes())
		r.Mount("/", institucional.NewHandler(institucionalSvc, institucionalRepo).Routes())
		r.Mount("/programas-sociales", inscripcion.NewHandler(inscripcionSvc, inscripcionRepo).Routes())
		r.Mount("/nachec", nachec.NewHandler(nachecSvc, nachecRepo).Routes())
		r.Mount("/actividades", actividades.NewHandler(actividadesSvc, actividadesRepo).Routes())
		r.Mount("/ciudadanos", solapas.NewHandler(solapasSvc).Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("server shutdown error", "error", err)
		}
		close(done)
	}()

	log.Info("nodo listening",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
	)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	<-done
	log.Info("server stopped")
}

func runRevisionSemanal(ctx context.Context, svc *actividades.Service, log *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Now().Weekday() != time.Monday {
				continue
			}
			generadas, err := svc.RevisarAusentismoSemanal(ctx)
			if err != nil {
				log.Error("weekly absence review failed", "error", err)
				continue
			}
			log.Info("weekly absence review done", "alertas_generadas", generadas)
		}
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func readyHandler(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"server": "ready"}
		status := http.StatusOK

		if err := db.Health(r.Context()); err != nil {
			checks["database"] = "not ready: " + err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ready"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[status == http.StatusOK],
			"checks": checks,
		})
	}
}
