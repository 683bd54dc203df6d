package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pairsurvey/internal/config"
	"pairsurvey/internal/database"
	"pairsurvey/internal/handlers"
	logger "pairsurvey/internal/logging"
	"pairsurvey/internal/models"
	"pairsurvey/internal/repository"
	"pairsurvey/internal/router"
	"pairsurvey/internal/services"
	"pairsurvey/internal/store"
	"pairsurvey/internal/survey"
	"pairsurvey/internal/views"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the survey web server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	v, err := config.Load(projectRoot)
	if err != nil {
		return err
	}
	conf := config.Conf

	log, err := logger.Init(conf.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	config.Watch(v, projectRoot, log)
	log.Info("Configuration loaded successfully")

	catalog, err := models.LoadCatalog(conf.Catalog.Path)
	if err != nil {
		log.Error("Failed to load pair catalog", zap.Error(err), zap.String("path", conf.Catalog.Path))
		return err
	}
	content, err := models.LoadSurveyContent(conf.Survey.ContentPath)
	if err != nil {
		log.Error("Failed to load survey content", zap.Error(err), zap.String("path", conf.Survey.ContentPath))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport := newTransport(conf.Backup, log)
	records, source, err := transport.Load(ctx)
	if err != nil {
		log.Error("Refusing to start over an unreadable backup", zap.Error(err))
		return err
	}
	responses := store.New(records, transport)
	log.Info("Response table loaded",
		zap.String("source", string(source)),
		zap.Int("records", responses.Len()),
		zap.Int("participants", len(responses.Participants())),
		zap.Int("pairs", catalog.Len()),
	)
	log.Warn("Participants are identified by name, birth year and the last four phone digits only; " +
		"anyone who knows these can resume and overwrite that participant's answers")

	engine := survey.NewEngine(log.Named("survey"), catalog, content, responses, survey.Options{
		TimeLimit: conf.Survey.TimeLimit,
		Expiry:    survey.ExpiryPolicy(conf.Survey.ExpiryPolicy),
		Shuffle:   conf.Survey.Shuffle,
	})

	db, err := database.Open(conf.Database, log)
	if err != nil {
		log.Error("Failed to open session database", zap.Error(err))
		return err
	}
	sessionRepo := repository.NewSessionRepository(db)

	janitor := services.NewJanitor(log.Named("janitor"), sessionRepo, conf.Survey.SessionTTL, conf.Survey.JanitorInterval)
	janitor.Start(ctx)
	defer janitor.Stop()

	renderer, err := views.New()
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	r := router.Setup(log, router.Handlers{
		Survey: handlers.NewSurveyHandler(log, engine, sessionRepo, renderer),
		Admin:  handlers.NewAdminHandler(log, engine, sessionRepo, renderer, source),
		Health: func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "responses": responses.Len()})
		},
	})

	srv := &http.Server{
		Addr:              ":" + conf.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening on http://localhost:" + conf.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("Failed to run server", zap.Error(err))
			return err
		}
	case <-ctx.Done():
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Graceful shutdown failed", zap.Error(err))
			return err
		}
	}
	return nil
}
