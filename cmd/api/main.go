package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JGarto/oss-mytracks/internal/config"
	"github.com/JGarto/oss-mytracks/internal/db"
	"github.com/JGarto/oss-mytracks/internal/locsource"
	"github.com/JGarto/oss-mytracks/internal/prefs"
	"github.com/JGarto/oss-mytracks/internal/recorder"
	"github.com/JGarto/oss-mytracks/internal/server"
	"github.com/JGarto/oss-mytracks/internal/stream"
	"github.com/JGarto/oss-mytracks/internal/track"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		notify:          signal.Notify,
		run:             Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.Printf("postgres connection failed: %v", err)
	}

	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, pg, rdb, signals, nil); err != nil {
		log.Printf("server exited with error: %v", err)
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run wires the recording engine to its stores and the HTTP server,
// then blocks until a termination signal arrives.
func Run(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc) error {
	var querier db.Querier
	if pg != nil {
		querier = pg
	}
	trackStore := track.NewStore(querier)
	prefStore := prefs.NewStore(rdb)
	hub := stream.NewHub(rdb)

	session := recorder.New(trackStore, prefStore, locsource.NewSim(), hub, recorder.Config{
		MinRecordingDistanceM: cfg.MinRecordingDistance,
		MaxRecordingDistanceM: cfg.MaxRecordingDistance,
		MinRequiredAccuracyM:  cfg.MinRequiredAccuracy,
		AutoResumeTimeoutMin:  cfg.AutoResumeTimeoutMin,
		SplitFrequencyKm:      cfg.SplitFrequencyKm,
		MinPollingInterval:    time.Duration(cfg.MinPollingIntervalS) * time.Second,
		MaxPollingInterval:    time.Duration(cfg.MaxPollingIntervalS) * time.Second,
	})

	srv := server.NewServer(cfg, session, trackStore, hub)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			session.Close()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil {
		session.Close()
		return err
	}
	session.Close()
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	return nil
}
