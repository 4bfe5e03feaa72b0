package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v66/github"
	"github.com/joho/godotenv"
	"github.com/simstech/github-stats-service/config"
	"github.com/simstech/github-stats-service/controller"
	"github.com/simstech/github-stats-service/logger"
	"github.com/simstech/github-stats-service/service"
	log "github.com/sirupsen/logrus"
)

func main() {
	// .env first so credential variables referenced by profiles resolve
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("unable to load configuration")
	}

	// configure logger
	logger.Setup(*cfg)

	profiles, err := cfg.ProfileList()
	if err != nil {
		log.WithError(err).Fatal("invalid profile configuration")
	}

	if len(profiles) == 0 {
		log.Warning("no profiles configured. the service will answer not-found until profiles are added")
	}

	// shared call budget, synced from github rate metadata on every response
	budgets := service.NewBudgetTracker()

	// seed the anonymous bucket with the current upstream state
	// the rate limit endpoint itself does not count against the budget
	log.Debug("loading current rate limit from github")
	if rateLimits, _, err := github.NewClient(nil).RateLimit.Get(context.Background()); err != nil {
		log.WithError(err).Warning("unable to load current github rate limits, starting from defaults")
	} else {
		log.WithFields(log.Fields{
			"totalAvailable":    rateLimits.Core.Limit,
			"remainingRequests": rateLimits.Core.Remaining,
		}).Debug("seeding anonymous budget with rate limit infos from github")

		budgets.Observe("", *rateLimits.Core)
	}

	// setup services
	registry := service.NewProfileRegistry(profiles)
	credentials := service.NewEnvCredentialSource(profiles)
	githubClient := service.NewGithubClient(*cfg, budgets, service.DefaultRESTClientFactory(*cfg))
	aggregator := service.NewAggregator(*cfg, githubClient, budgets, credentials)

	store, err := service.NewSnapshotStore(cfg.Store.SnapshotFilePath)
	if err != nil {
		log.WithError(err).Fatal("unable to open snapshot store")
	}

	coordinator := service.NewCoordinator(aggregator, store, registry)
	facade := service.NewFacade(store, registry)
	apiController := controller.NewAPIController(*cfg, facade, coordinator)

	// setup server and define all routes
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	server := &http.Server{
		Addr:    ":" + cfg.API.ListenPort,
		Handler: router,
	}

	router.Use(
		cors.New(cors.Config{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Content-Type, Content-Length, Accept-Encoding, Host, accept, Origin, Cache-Control, X-Requested-With"},
			MaxAge:       12 * time.Hour,
		}),
	)

	api := router.Group("")
	{
		api.GET("/stats/:profileId", apiController.GetStats)
		api.GET("/configs", apiController.ListConfigs)
		api.POST("/internal/refresh/:profileId", apiController.TriggerRefresh)
	}

	// hourly refresh trigger, the coordinator itself has no clock
	var scheduler *service.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler = service.NewScheduler(*cfg, coordinator, registry)

		if err := scheduler.Start(); err != nil {
			log.WithError(err).Fatal("unable to start the refresh scheduler")
		}
	}

	// start with configuration
	go func() {
		log.Info("server listening on port " + cfg.API.ListenPort)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("error while starting server")
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	// kill default send syscall.SIGTERM
	// kill -2 is syscall.SIGINT
	quit := make(chan os.Signal, 1)

	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("SIGINT, SIGTERM received, will shut down server ...")

	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	} else {
		log.Info("Application stopped gracefully !")
	}
}
