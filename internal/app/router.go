package app

import (
	_ "gamehub_backend/docs"
	"gamehub_backend/internal/config"
	"gamehub_backend/internal/middleware"
	"gamehub_backend/internal/util"
	"gamehub_backend/pkg/monitoring"
	"gamehub_backend/pkg/security"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c, cfg)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerAccountRoutes(authGroup, c)
		a.registerGameRoutes(authGroup, c)
		a.registerUploadRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)

		// 目录浏览允许游客访问，登录用户可看到自己的购买状态与草稿
		public.GET("/games", c.game.ListGames)
		public.GET("/games/:id", middleware.TryAuthMiddleware(cfg), c.game.GetGame)
	}
}

func (a *App) registerAccountRoutes(group *gin.RouterGroup, c *controllers) {
	group.GET("/profile", c.user.GetProfile)
	group.PUT("/user/profile", c.user.UpdateProfile)
	group.GET("/dashboard", c.dashboard.GetDashboard)
	group.GET("/files", c.file.Download)
}

func (a *App) registerGameRoutes(group *gin.RouterGroup, c *controllers) {
	games := group.Group("/games")
	{
		games.POST("", c.game.CreateGame)
		games.PUT("/:id", c.game.UpdateGame)
		games.PATCH("/:id/status", c.game.UpdateStatus)
		games.DELETE("/:id", c.game.DeleteGame)
		games.POST("/:id/builds/:buildId/download", c.game.DownloadBuild)
		games.POST("/:id/finalize", c.upload.Finalize)
	}
}

func (a *App) registerUploadRoutes(group *gin.RouterGroup, c *controllers) {
	uploads := group.Group("/uploads")
	{
		// multipart 头部与表单字段留 1 MiB 余量
		uploads.POST("", security.MaxBodySize(func() int64 { return a.services.uploads.MaxSize() + util.MiB }), c.upload.StartUpload)
		uploads.GET("", c.upload.ListUploads)
		uploads.GET("/events", c.upload.Events)
		uploads.GET("/ws", c.upload.Stream)
		uploads.GET("/check", c.upload.CheckComplete)
		uploads.GET("/:unitId", c.upload.GetUpload)
		uploads.DELETE("/:unitId", c.upload.RemoveUpload)
	}
}
