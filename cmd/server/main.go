// Command server runs the selfstar engagement backend: the REST API, the
// auto-reply poller, and the daily snapshot loop, all sharing one SQLite
// database and one set of collaborator clients.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/chani337/selfstar/internal/ai"
	"github.com/chani337/selfstar/internal/config"
	"github.com/chani337/selfstar/internal/domain"
	"github.com/chani337/selfstar/internal/graph"
	httpapi "github.com/chani337/selfstar/internal/http"
	"github.com/chani337/selfstar/internal/observability"
	"github.com/chani337/selfstar/internal/repo"
	"github.com/chani337/selfstar/internal/scheduler"
	"github.com/chani337/selfstar/internal/services"
	"github.com/chani337/selfstar/internal/storage"
	"github.com/chani337/selfstar/internal/sysutil"
)

const version = "0.1.0"

func main() {
	// Missing .env is fine; real deployments use process env.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	sysutil.SetLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTEL.Enabled {
		shutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
		if err != nil {
			log.Fatal().Err(err).Msg("otel setup failed")
		}
		defer func() {
			c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(c); err != nil {
				log.Warn().Err(err).Msg("otel shutdown failed")
			}
		}()
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	graphClient := graph.New(cfg.Graph)

	engage := &services.EngageService{
		DB:    db,
		Graph: graphClient,
		AI:    ai.New(cfg.AI),
		Cfg:   cfg.Engage,
	}
	// A typed-nil interface would defeat the service's nil check, so only
	// assign the store when it is actually configured.
	if cfg.S3.Endpoint != "" {
		store, err := storage.New(ctx, cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("object storage init failed")
		}
		engage.Store = store
	} else {
		log.Warn().Msg("S3_ENDPOINT not set; image generation endpoints will report storage unavailable")
	}

	sup := &scheduler.Supervisor{}
	if cfg.Scheduler.AutoReplyEnabled {
		loop := &scheduler.AutoReplyLoop{DB: db, Graph: graphClient, Engage: engage, Cfg: cfg.Scheduler}
		sup.Add("auto_reply", loop.Run)
	} else {
		log.Info().Msg("auto-reply scheduler disabled")
	}
	snap := &scheduler.SnapshotLoop{DB: db, Cfg: cfg.Scheduler, Snapshot: snapshotPersona(db, graphClient, cfg.Scheduler)}
	sup.Add("daily_snapshot", snap.Run)
	sup.Start(ctx)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, engage, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped unexpectedly")
		}
	}
	stop()

	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown failed")
	}
	sup.Wait()

	log.Info().Msg("graceful shutdown complete")
}

// snapshotPersona records a daily activity snapshot for one persona: recent
// media and comment counts pulled from the Graph API. The loop swallows
// per-persona errors, so a persona without a token just reports one.
func snapshotPersona(db *gorm.DB, g *graph.Client, cfg config.SchedulerConfig) scheduler.SnapshotFunc {
	return func(ctx context.Context, p domain.Persona) error {
		token, err := repo.GetPersonaToken(ctx, db, p.UserID, p.PersonaNum)
		if err != nil {
			return err
		}
		media, err := g.RecentMedia(ctx, token, p.IGUserID, cfg.MediaLimit, cfg.CommentsLimit)
		if err != nil {
			return err
		}
		comments := 0
		for _, m := range media {
			comments += len(m.Comments)
		}
		log.Info().
			Uint("user_id", p.UserID).
			Int("persona_num", p.PersonaNum).
			Int("media", len(media)).
			Int("comments", comments).
			Msg("daily snapshot")
		return nil
	}
}
