package httpapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	authhttp "github.com/renshs/auth/internal/http/auth"
	"github.com/gin-gonic/gin"
)

type AppOpts struct {
	Log             *slog.Logger
	Env             string
	Port            int
	ShutdownTimeout time.Duration
	StaticDir       string
}

type App struct {
	AppOpts
	server *http.Server
}

func New(opts AppOpts, authServer *authhttp.ServerAPI, metricsMiddleware gin.HandlerFunc, recoveryHandler gin.RecoveryFunc) *App {
	if opts.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		requestLogger(opts.Log),
		metricsMiddleware,
		gin.CustomRecovery(recoveryHandler),
	)

	authServer.RegisterRoutes(engine)

	if opts.StaticDir != "" {
		engine.Static("/ui", opts.StaticDir)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: engine,
	}

	return &App{AppOpts: opts, server: server}
}

// MustRun runs the HTTP server and panics if it fails to serve
func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "httpapp.Run"
	log := a.Log.With(slog.String("op", op), slog.Int("port", a.Port))

	log.Info("HTTP server is running", slog.String("addr", a.server.Addr))

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (a *App) Stop() error {
	const op = "httpapp.Stop"

	a.Log.With(slog.String("op", op), slog.Int("port", a.Port)).
		Info("stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request handled",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
