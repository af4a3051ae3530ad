package handlers

import (
	"net/http"

	"taskflow/backend/internal/auth"
	"taskflow/backend/internal/middleware"
	"taskflow/backend/internal/monitoring"
	"taskflow/backend/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Tasks        services.TaskService
	Auth         services.AuthService
	Provisioning *services.ProvisioningService
	// Provisioner overrides Provisioning for sign-up and sign-in, e.g. with
	// a client for a remote create-user function.
	Provisioner auth.Provisioner
	Health       *monitoring.HealthChecker
	RateLimiter  *middleware.RateLimiter
	CORSOrigins  []string
	Logger       *zap.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(middleware.RecoveryWithLog(log))
	router.Use(middleware.RequestLogger(log.Named("http")))
	router.Use(monitoring.MetricsMiddleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	if len(cfg.CORSOrigins) == 0 || cfg.CORSOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}

	health := cfg.Health
	if health == nil {
		health = monitoring.NewHealthChecker()
	}
	router.GET("/health", health.HealthHandler())
	router.GET("/ready", health.ReadinessHandler())
	router.GET("/live", monitoring.LivenessHandler())
	router.GET("/metrics", monitoring.MetricsHandler())
	router.GET("/system", monitoring.SystemHandler())

	if cfg.Provisioning != nil {
		provision := NewProvisionHandler(cfg.Provisioning, log)
		fn := router.Group("/functions/v1")
		fn.Use(ProvisionCORS(cfg.CORSOrigins))
		fn.OPTIONS("/create-user", provision.Options)
		fn.POST("/create-user", provision.CreateUser)
	}

	provisioner := cfg.Provisioner
	if provisioner == nil && cfg.Provisioning != nil {
		provisioner = cfg.Provisioning
	}
	authHandler := NewAuthHandler(cfg.Auth, provisioner, log)
	authGroup := router.Group("/auth")
	authGroup.Use(cors.New(corsConfig))
	if cfg.RateLimiter != nil {
		authGroup.Use(cfg.RateLimiter.Middleware())
	}
	authGroup.POST("/signin", authHandler.SignIn)
	authGroup.POST("/signup", authHandler.SignUp)
	authGroup.POST("/signout", authHandler.SignOut)
	authGroup.POST("/refresh", authHandler.Refresh)
	authGroup.GET("/session", authHandler.Session)
	authGroup.OPTIONS("/*path", preflight)

	taskHandler := NewTaskHandler(cfg.Tasks)
	categoryHandler := NewCategoryHandler(cfg.Tasks)
	userHandler := NewUserHandler(cfg.Tasks)
	analyticsHandler := NewAnalyticsHandler(cfg.Tasks)

	api := router.Group("/api")
	api.Use(cors.New(corsConfig))
	if cfg.RateLimiter != nil {
		api.Use(cfg.RateLimiter.Middleware())
	}
	// Preflights carry no credentials; cors answers them before auth runs.
	api.OPTIONS("/*path", preflight)
	api.Use(middleware.AuthMiddleware(cfg.Auth))
	{
		api.GET("/home", analyticsHandler.Home)
		api.GET("/analytics", analyticsHandler.Analytics)

		api.GET("/tasks", taskHandler.GetTasks)
		api.POST("/tasks", taskHandler.CreateTask)
		api.GET("/tasks/filter/:filter", taskHandler.FilterTasks)
		api.GET("/tasks/:id", taskHandler.GetTaskByID)
		api.PATCH("/tasks/:id", taskHandler.UpdateTask)
		api.PUT("/tasks/:id/status", taskHandler.UpdateTaskStatus)
		api.DELETE("/tasks/:id", taskHandler.DeleteTask)

		api.GET("/categories", categoryHandler.GetCategories)
		api.POST("/categories", categoryHandler.CreateCategory)
		api.DELETE("/categories/:id", categoryHandler.DeleteCategory)
		api.GET("/categories/:id/tasks", categoryHandler.GetCategoryTasks)

		api.GET("/users", userHandler.GetUsers)
		api.GET("/users/:id", userHandler.GetUser)
	}

	return router
}

func preflight(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
