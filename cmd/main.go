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

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/skillpath-backend/internal/db"
	"github.com/yungbote/skillpath-backend/internal/handlers"
	"github.com/yungbote/skillpath-backend/internal/logger"
	"github.com/yungbote/skillpath-backend/internal/middleware"
	"github.com/yungbote/skillpath-backend/internal/repos"
	"github.com/yungbote/skillpath-backend/internal/server"
	"github.com/yungbote/skillpath-backend/internal/services"
	"github.com/yungbote/skillpath-backend/internal/sse"
	"github.com/yungbote/skillpath-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	workerToken := utils.GetEnv("WORKER_TOKEN", "", log)
	port := utils.GetEnv("PORT", "8080", log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	jobRepo := repos.NewJobRepo(thePG, log)
	roadmapRepo := repos.NewRoadmapRepo(thePG, log)
	progressRepo := repos.NewRoadmapProgressRepo(thePG, log)
	submissionRepo := repos.NewCapstoneSubmissionRepo(thePG, log)

	// SSE
	log.Info("Setting up SSE hub now...")
	sseHub := sse.NewSSEHub(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sseBus services.SSEBus
	if os.Getenv("REDIS_ADDR") != "" {
		sseBus, err = services.NewRedisSSEBus(log)
		if err != nil {
			log.Warn("Could not init Redis SSE bus, running single-replica", "error", err)
			sseBus = nil
		}
	}
	if sseBus != nil {
		err = sseBus.StartForwarder(ctx, func(m sse.SSEMessage) {
			sseHub.Broadcast(m)
			if m.Event == sse.SSEEventCompleted || m.Event == sse.SSEEventFailed {
				sseHub.CloseChannel(m.Channel)
			}
		})
		if err != nil {
			// Without a forwarder this replica would publish into a bus it
			// never reads, so drop back to hub-only delivery.
			log.Warn("SSE bus forwarder failed to start, running single-replica", "error", err)
			_ = sseBus.Close()
			sseBus = nil
		} else {
			defer sseBus.Close()
		}
	}

	// Services
	log.Info("Setting up Services from main...")
	jobNotifier := services.NewJobNotifier(log, sseHub, sseBus)
	progressService := services.NewProgressService(thePG, log, roadmapRepo, progressRepo)
	jobService := services.NewJobService(thePG, log, jobRepo, jobNotifier, progressService)
	reviewerClient, err := services.NewReviewerClient(log)
	if err != nil {
		log.Error("Could not init ReviewerClient", "error", err)
		os.Exit(1)
	}
	capstoneService := services.NewCapstoneService(thePG, log, roadmapRepo, progressRepo, submissionRepo, reviewerClient)

	// Handlers
	log.Info("Setting up handlers from main...")
	jobsHandler := handlers.NewJobsHandler(log, jobService, sseHub)
	workerHandler := handlers.NewWorkerHandler(log, jobService)
	roadmapsHandler := handlers.NewRoadmapsHandler(log, progressService, capstoneService)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log, jwtSecretKey)
	workerMiddleware := middleware.NewWorkerMiddleware(log, workerToken)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthMiddleware:   authMiddleware,
		WorkerMiddleware: workerMiddleware,
		JobsHandler:      jobsHandler,
		WorkerHandler:    workerHandler,
		RoadmapsHandler:  roadmapsHandler,
	})

	srv := &http.Server{Addr: ":" + port, Handler: router}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
