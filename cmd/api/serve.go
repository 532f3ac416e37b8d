package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"recipebox/internal/api"
	"recipebox/internal/config"
	"recipebox/internal/logger"
	"recipebox/internal/platform/gemini"
	"recipebox/internal/platform/mealdb"
	"recipebox/internal/recipe"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

// openSlot returns the durable slot selected by cfg and a closer for it.
func openSlot(cfg *config.Config) (recipe.Slot, io.Closer, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return recipe.NewMemorySlot(), io.NopCloser(nil), nil
	default:
		slot, err := recipe.NewPostgresSlot(cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("error creating postgres slot: %w", err)
		}
		return slot, slot, nil
	}
}

// newRouter builds the gin engine with middleware and every route.
func newRouter(cfg *config.Config, handler *api.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), api.RequestID())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", api.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", api.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	handler.Register(r)
	return r
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(logger.ParseLevel(cfg.LogLevel), nil)

	slot, slotCloser, err := openSlot(cfg)
	if err != nil {
		return err
	}
	defer slotCloser.Close()

	meals := mealdb.NewClient(cfg.MealDB.BaseURL, nil, log)

	var drafter api.RecipeDrafter
	if cfg.Gemini.APIKey != "" {
		geminiClient, err := gemini.NewClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			return fmt.Errorf("error creating gemini client: %w", err)
		}
		defer geminiClient.Close()
		drafter = geminiClient
	} else {
		log.Info("no Gemini API key configured, photo drafting disabled")
	}

	stores := recipe.NewProvider()
	handler := api.NewHandler(meals, drafter, stores, cfg.ImagesDir, log)
	handler.RandomCount = cfg.MealDB.RandomCount

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: newRouter(cfg, handler),
	}

	// Routes backed by the store answer 503 until this finishes.
	go stores.Load(ctx, slot, log)

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shut down server: %v", err)
	}
	if store, ok := stores.Store(); ok {
		if err := store.Close(shutdownCtx); err != nil {
			log.Error("failed to flush recipes: %v", err)
		}
	}
	return nil
}
