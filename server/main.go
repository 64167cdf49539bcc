package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"card-ladder/ratings"
	"card-ladder/server/store"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func asBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if asBool(os.Getenv("DEBUG")) {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    os.Getenv("NO_COLOR") != "",
	}))
}

func main() {
	_ = godotenv.Load()

	logger := newLogger()
	slog.SetDefault(logger)

	var migrate bool
	for _, a := range os.Args[1:] {
		if a == "--migrate" {
			migrate = true
		}
	}

	port := getenv("PORT", "8080")
	dsn := getenv("DATABASE_URL", "")

	var st Store
	switch {
	case dsn != "":
		db, err := store.Open(dsn)
		if err != nil {
			logger.Error("db open failed", "err", err)
			os.Exit(1)
		}
		defer db.Close(context.Background())
		if migrate || asBool(os.Getenv("AUTO_MIGRATE")) {
			if err := store.Migrate(context.Background(), db); err != nil {
				logger.Error("migrate failed", "err", err)
				os.Exit(1)
			}
			logger.Info("migrated")
		}
		if migrate {
			return
		}
		st = db
	case migrate:
		logger.Error("--migrate requires DATABASE_URL")
		os.Exit(1)
	default:
		logger.Warn("DATABASE_URL unset, ratings held in memory only")
		st = ratings.NewMemStore()
	}

	eng := ratings.NewEngine(st, st, ratings.WithLogger(logger))

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      Router(st, eng, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", "http://localhost:"+port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
