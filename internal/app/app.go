package app

import (
	"context"
	"gamehub_backend/internal/config"
	"gamehub_backend/internal/controller"
	"gamehub_backend/internal/repository"
	"gamehub_backend/internal/service"
	"gamehub_backend/internal/util"
	"gamehub_backend/pkg/database"
	"gamehub_backend/pkg/logger"
	"gamehub_backend/pkg/monitoring"
	"gamehub_backend/pkg/security"
	"gamehub_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	configCallbacks []func(*config.Config)
	tracer          *sdktrace.TracerProvider
}

type repositories struct {
	user           *repository.UserRepository
	game           *repository.GameRepository
	build          *repository.GameBuildRepository
	library        *repository.LibraryRepository
	uploadProgress *repository.UploadProgressRepository
}

type services struct {
	auth      *service.AuthService
	user      *service.UserService
	storage   *service.StorageService
	catalog   *service.CatalogService
	game      *service.GameService
	uploads   *service.UploadSessions
	dashboard *service.DashboardService
}

type controllers struct {
	auth      *controller.AuthController
	user      *controller.UserController
	game      *controller.GameController
	upload    *controller.UploadController
	file      *controller.FileController
	dashboard *controller.DashboardController
	health    *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig 配置热更新时由 configwatcher 调用
func (a *App) ApplyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	repos := &repositories{
		user:    repository.NewUserRepository(db),
		game:    repository.NewGameRepository(db),
		build:   repository.NewGameBuildRepository(db),
		library: repository.NewLibraryRepository(db),
	}
	if rdb != nil {
		repos.uploadProgress = repository.NewUploadProgressRepository(rdb)
	}
	return repos
}

func (a *App) initServices(repos *repositories, cfg *config.Config, storage *service.StorageService, rdb *redis.Client) *services {
	// 接口变量不能持有 nil 指针
	var mirror service.ProgressMirror
	if repos.uploadProgress != nil {
		mirror = repos.uploadProgress
	}

	s := &services{
		auth:      service.NewAuthService(repos.user, cfg),
		user:      service.NewUserService(repos.user),
		storage:   storage,
		catalog:   service.NewCatalogService(repos.game, cfg.Catalog),
		game:      service.NewGameService(repos.game, repos.build, repos.library, repos.user, storage, rdb),
		uploads:   service.NewUploadSessions(storage, repos.game, mirror, cfg.Upload),
		dashboard: service.NewDashboardService(repos.game, repos.library),
	}

	a.RegisterConfigCallback(func(c *config.Config) {
		s.catalog.ApplyConfig(c.Catalog)
		s.uploads.ApplyConfig(c.Upload)
	})
	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:      controller.NewAuthController(s.auth),
		user:      controller.NewUserController(s.user),
		game:      controller.NewGameController(s.catalog, s.game),
		upload:    controller.NewUploadController(s.uploads, a.Config.Upload.TempDir),
		file:      controller.NewFileController(s.storage, s.game),
		dashboard: controller.NewDashboardController(s.dashboard),
		health:    controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	if cfg.RateLimit.MaxRequests > 0 {
		router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))
	}

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// wire 组装仓储、服务、控制器与路由
func (a *App) wire(db *gorm.DB, rdb *redis.Client, storage *service.StorageService) {
	if err := util.RegisterValidators(); err != nil {
		logger.Log.Fatal("Failed to register validators", zap.Error(err))
	}

	a.DB = db
	a.Redis = rdb

	repos := a.initRepositories(db, rdb)
	a.services = a.initServices(repos, a.Config, storage, rdb)
	controllers := a.initControllers(a.services, db, rdb)

	router := gin.New()
	router.Use(gin.Recovery())
	if a.Config.Server.Mode == gin.DebugMode {
		router.Use(gin.Logger())
	}
	a.Router = router

	a.setupMiddlewares(router, a.Config)
	a.registerRoutes(router, controllers, a.Config)
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")
	gin.SetMode(cfg.Server.Mode)

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	if cfg.ForceMigrate || cfg.Server.Mode != gin.ReleaseMode {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	app := &App{Config: cfg}
	if cfg.MigrateOnly {
		app.DB = db
		return app
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		}
	}

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.wire(db, rdb, service.NewStorageService(cfg))
	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	// 取消仍在进行的构建上传
	if a.services != nil {
		a.services.uploads.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	log.Println("Server exiting")
}
