package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/hubexport/internal/api"
	"github.com/timmy/hubexport/internal/config"
	"github.com/timmy/hubexport/internal/export"
	"github.com/timmy/hubexport/internal/logger"
	"github.com/timmy/hubexport/internal/oauth"
	"github.com/timmy/hubexport/internal/publish"
	"github.com/timmy/hubexport/internal/repository"
	"github.com/timmy/hubexport/internal/storage"
	"github.com/timmy/hubexport/internal/workflow"
)

// screen stands in for the caller window the popup is centered on.
var screen = oauth.Rect{Width: 1440, Height: 900}

func main() {
	dataset := flag.String("dataset", "", "Dataset name, used as the repository name")
	sourceURL := flag.String("source", "", "Source API URL the export jobs read rows from")
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to config file")
	serveOnly := flag.Bool("serve", false, "Only run the callback server and run history API")
	flag.Parse()

	if !*serveOnly && (*dataset == "" || *sourceURL == "") {
		fmt.Fprintln(os.Stderr, "usage: hubexport -dataset NAME -source URL [-config PATH]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err == nil && !*serveOnly {
		err = cfg.ValidateExport()
	}
	if err != nil {
		logger.GetDefault().WithError(err).Fatal("Failed to load config")
	}

	appLogger := logger.NewWithFile(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "hubexport",
	}, logger.FileOptions{
		Path:       cfg.Log.File,
		Only:       cfg.Log.FileOnly,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	kvRepo := repository.NewKeyValueRepository(db)
	runRepo := repository.NewRunRepository(db)

	if purged, err := kvRepo.PurgeExpired(ctx); err != nil {
		appLogger.WithError(err).Warn("Failed to purge expired values")
	} else if purged > 0 {
		appLogger.WithField("count", purged).Info("Purged expired values")
	}

	bus := oauth.NewMessageBus()
	opener := oauth.NewBrowserOpener(cfg.OAuth.OpenBrowser)
	origins := oauth.NewOriginPolicy(cfg.OAuth.RedirectURI, cfg.Server.PublicURL, cfg.OAuth.DevOrigins)

	router := api.SetupRouter(api.RouterDeps{
		Store:      kvRepo,
		Bus:        bus,
		Opener:     opener,
		Origins:    origins,
		Runs:       runRepo,
		PayloadTTL: cfg.OAuth.Timeout,
	}, cfg.Server.Mode)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appLogger.WithFields(logger.Fields{
			"port":    cfg.Server.Port,
			"origins": origins.Origins(),
		}).Info("Starting callback server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start callback server")
		}
	}()
	defer shutdown(srv)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	if *serveOnly {
		<-ctx.Done()
		return
	}

	pkceStore := oauth.NewPKCEStore(kvRepo, cfg.OAuth.Timeout)
	exchanger := oauth.NewTokenExchanger(pkceStore, oauth.ExchangerConfig{
		TokenURL:    cfg.OAuth.TokenURL,
		UserInfoURL: cfg.OAuth.UserInfoURL,
		ClientID:    cfg.OAuth.ClientID,
		RedirectURI: cfg.OAuth.RedirectURI,
		Timeout:     cfg.Export.RequestTimeout,
	})
	coordinator := oauth.NewCoordinator(
		oauth.NewAuthorizeURLBuilder(cfg.OAuth.AuthorizeURL),
		pkceStore,
		kvRepo,
		exchanger,
		bus,
		opener,
		origins,
		oauth.CoordinatorConfig{
			ClientID:      cfg.OAuth.ClientID,
			RedirectURI:   cfg.OAuth.RedirectURI,
			Scopes:        cfg.OAuth.Scopes,
			Timeout:       cfg.OAuth.Timeout,
			FallbackGrace: cfg.OAuth.FallbackGrace,
			Caller:        screen,
			PopupWidth:    cfg.OAuth.PopupWidth,
			PopupHeight:   cfg.OAuth.PopupHeight,
		},
	)

	poller := export.NewPoller(export.NewClient(&export.ClientConfig{
		SubmitURL: cfg.Export.SubmitURL,
		BaseURL:   cfg.Export.BaseURL,
		Timeout:   cfg.Export.RequestTimeout,
	}), cfg.Export.PollInterval)

	repo, err := newRepository(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize publish target")
	}

	orchestrator := workflow.NewOrchestrator(coordinator, poller, repo, workflow.Config{
		MaxRetries:  cfg.Workflow.MaxRetries,
		BackoffUnit: cfg.Workflow.BackoffUnit,
		License:     cfg.Publish.License,
	}, workflow.WithRunStore(runRepo))

	appLogger.WithFields(logger.Fields{
		"dataset": *dataset,
		"source":  *sourceURL,
		"target":  cfg.Publish.Target,
	}).Info("Starting export")

	result, err := orchestrator.Run(ctx, workflow.Request{Dataset: *dataset, SourceURL: *sourceURL})
	if err != nil {
		appLogger.WithError(err).Error("Export failed")
		shutdown(srv)
		os.Exit(1)
	}

	appLogger.WithFields(logger.Fields{
		"run_id":     result.RunID,
		"repository": result.RepositoryID,
		"attempts":   result.Attempts,
	}).Info("Export completed")
}

func newRepository(ctx context.Context, cfg *config.Config) (publish.Repository, error) {
	switch cfg.Publish.Target {
	case "s3":
		objectStorage, err := storage.NewStorage(&storage.S3Config{
			Type:      storage.StorageType(cfg.Storage.Type),
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			return nil, err
		}
		if err := objectStorage.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return publish.NewObjectRepository(objectStorage, cfg.Storage.Prefix), nil
	default:
		return publish.NewHubRepository(publish.HubConfig{
			Endpoint: cfg.Publish.HubEndpoint,
			RepoType: cfg.Publish.RepoType,
			Private:  cfg.Publish.Private,
		}), nil
	}
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("Callback server forced to shutdown: %v", err)
	}
}
