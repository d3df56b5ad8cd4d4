package storageapp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/renshs/auth/internal/config"
	"github.com/renshs/auth/internal/storage"
	"github.com/renshs/auth/internal/storage/postgres"
	"github.com/renshs/auth/internal/storage/sqlite"
)

type App struct {
	Storage storage.Storage
	log     *slog.Logger
}

func MustCreateApp(cfg config.StorageConfig, log *slog.Logger) *App {
	app, err := New(cfg, log)
	if err != nil {
		panic(err)
	}

	return app
}

func New(cfg config.StorageConfig, log *slog.Logger) (*App, error) {
	const op = "storageapp.New"

	var (
		store storage.Storage
		err   error
	)

	switch cfg.Driver {
	case config.StorageSQLite:
		store, err = sqlite.New(cfg.Path)
	case config.StoragePostgres:
		store, err = postgres.New(context.Background(), cfg.DSN)
	default:
		return nil, fmt.Errorf("%s: unknown storage driver %q", op, cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &App{Storage: store, log: log}, nil
}

func (a *App) Stop() {
	const op = "storageapp.Stop"
	a.log.With(slog.String("op", op)).Info("stopping storage app")
	a.Storage.Close()
}
