package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/skillpath-backend/internal/handlers"
	"github.com/yungbote/skillpath-backend/internal/middleware"
)

type RouterConfig struct {
	AuthMiddleware   *middleware.AuthMiddleware
	WorkerMiddleware *middleware.WorkerMiddleware
	JobsHandler      *handlers.JobsHandler
	WorkerHandler    *handlers.WorkerHandler
	RoadmapsHandler  *handlers.RoadmapsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthcheck", handlers.HealthCheck)

	// Authenticated API
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())
	{
		// Jobs
		api.POST("/jobs", cfg.JobsHandler.CreateJob)
		api.GET("/jobs/:id", cfg.JobsHandler.GetJobByID)
		api.GET("/jobs/:id/stream", cfg.JobsHandler.StreamJob)
		// Roadmaps
		api.GET("/roadmaps/:id/progress", cfg.RoadmapsHandler.GetProgress)
		api.PATCH("/roadmaps/:id/progress", cfg.RoadmapsHandler.UpdateProgress)
		api.POST("/roadmaps/:id/capstone-submissions", cfg.RoadmapsHandler.SubmitCapstone)
		api.GET("/roadmaps/:id/capstone-submissions", cfg.RoadmapsHandler.CapstoneHistory)
	}

	// Worker callbacks
	internal := router.Group("/internal")
	internal.Use(cfg.WorkerMiddleware.RequireWorkerToken())
	{
		internal.POST("/jobs/:id/complete", cfg.WorkerHandler.CompleteJob)
		internal.POST("/jobs/:id/fail", cfg.WorkerHandler.FailJob)
	}

	return router
}
