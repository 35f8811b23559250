package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/tendant/simple-pages/pkg/simplepages"
	"github.com/tendant/simple-pages/pkg/simplepages/api"
	"github.com/tendant/simple-pages/pkg/simplepages/config"
)

type envConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`
	DatabaseURL string `env:"DATABASE_URL" env-default:"memory"`
}

func main() {
	var env envConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		slog.Error("Failed to read environment", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(
		config.WithPort(env.Port),
		config.WithEnvironment(env.Environment),
		config.WithDatabase(env.DatabaseURL),
	)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	registry := simplepages.NewTypeRegistry()
	if err := registerBuiltinTypes(registry); err != nil {
		slog.Error("Failed to register page types", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	svc, cleanup, err := cfg.BuildService(ctx, registry)
	if err != nil {
		slog.Error("Failed to build service", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Mount("/api/v1/pages", api.NewPageHandler(svc).Routes())
	r.Mount("/api/v1/types", api.NewTypeHandler(svc).Routes())

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: r,
	}

	go func() {
		slog.Info("Simple Pages server starting",
			"port", cfg.Port,
			"env", cfg.Environment,
			"database", cfg.DatabaseType)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
}

// registerBuiltinTypes declares the page types this deployment serves.
func registerBuiltinTypes(registry *simplepages.TypeRegistry) error {
	types := []*simplepages.TypeDescriptor{
		{
			Name: "article",
			Fields: []simplepages.FieldDefinition{
				{Name: "title", Kind: simplepages.FieldKindString, Default: "Sample Article"},
				{Name: "body", Kind: simplepages.FieldKindText},
				{Name: "excerpt", Kind: simplepages.FieldKindText},
				{Name: "published", Kind: simplepages.FieldKindBool},
			},
			RequiresPage: true,
		},
		{
			Name: "menu",
			Fields: []simplepages.FieldDefinition{
				{Name: "title", Kind: simplepages.FieldKindString, Default: "Menu"},
				{Name: "season", Kind: simplepages.FieldKindEnum, EnumValues: []string{"spring", "summer", "autumn", "winter"}, Default: "spring"},
			},
			Relations: []simplepages.RelationDefinition{
				{Name: "dishes"},
			},
			RequiresPage: true,
		},
	}

	for _, desc := range types {
		if err := registry.Register(desc); err != nil {
			return err
		}
	}
	return nil
}
