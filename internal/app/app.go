package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vstep_exam_backend/internal/config"
	"vstep_exam_backend/internal/controller"
	"vstep_exam_backend/internal/repository"
	"vstep_exam_backend/internal/service"
	"vstep_exam_backend/pkg/database"
	"vstep_exam_backend/pkg/logger"
	"vstep_exam_backend/pkg/monitoring"
	"vstep_exam_backend/pkg/security"
	"vstep_exam_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config   *config.Config
	Router   *gin.Engine
	DB       *gorm.DB
	Redis    *redis.Client
	services *services

	bgCancel context.CancelFunc
}

type repositories struct {
	user       *repository.UserRepository
	question   *repository.QuestionRepository
	submission *repository.SubmissionRepository
	exam       *repository.ExamRepository
	progress   *repository.ProgressRepository
	goal       *repository.GoalRepository
	outbox     *repository.OutboxRepository
}

type services struct {
	auth       *service.AuthService
	storage    *service.StorageService
	dispatch   *service.DispatchService
	question   *service.QuestionService
	submission *service.SubmissionService
	autograde  *service.AutogradeService
	review     *service.ReviewService
	exam       *service.ExamService
	progress   *service.ProgressService
	goal       *service.GoalService
	outbox     *service.OutboxService
}

type controllers struct {
	auth       *controller.AuthController
	question   *controller.QuestionController
	submission *controller.SubmissionController
	review     *controller.ReviewController
	exam       *controller.ExamController
	progress   *controller.ProgressController
	health     *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:       repository.NewUserRepository(db),
		question:   repository.NewQuestionRepository(db),
		submission: repository.NewSubmissionRepository(db),
		exam:       repository.NewExamRepository(db),
		progress:   repository.NewProgressRepository(db),
		goal:       repository.NewGoalRepository(db),
		outbox:     repository.NewOutboxRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}

	storage, err := service.NewStorageService(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize object storage", zap.Error(err))
	}
	s.storage = storage

	s.auth = service.NewAuthService(repos.user, cfg)
	s.dispatch = service.NewDispatchService(rdb, cfg)
	s.question = service.NewQuestionService(repos.question)
	s.goal = service.NewGoalService(repos.goal)
	s.progress = service.NewProgressService(repos.progress, repos.goal, repos.user)
	s.submission = service.NewSubmissionService(repos.submission, repos.question, s.dispatch, s.progress)
	s.autograde = service.NewAutogradeService(db, repos.submission, repos.question, repos.goal, repos.outbox, s.progress)
	s.exam = service.NewExamService(db, repos.exam, repos.question, repos.submission, s.dispatch, s.progress)
	s.review = service.NewReviewService(db, repos.submission, repos.user, repos.outbox, s.progress, s.exam, cfg)
	s.outbox = service.NewOutboxService(rdb, repos.outbox, cfg)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		question:   controller.NewQuestionController(s.question),
		submission: controller.NewSubmissionController(s.submission, s.autograde, s.storage),
		review:     controller.NewReviewController(s.review, s.storage),
		exam:       controller.NewExamController(s.exam, s.question),
		progress:   controller.NewProgressController(s.progress, s.goal),
		health:     controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(func(c *gin.Context) {
		c.Set("config", cfg)
		c.Next()
	})

	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 1000
	}
	windowMinutes := cfg.RateLimit.WindowMinutes
	if windowMinutes <= 0 {
		windowMinutes = 1
	}
	router.Use(security.RateLimiter(maxRequests, time.Duration(windowMinutes)*time.Minute))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks 启动评分工作池、发件箱发布器和滞留作答补偿扫描。
func (a *App) startBackgroundTasks(s *services) {
	ctx, cancel := context.WithCancel(context.Background())
	a.bgCancel = cancel

	s.dispatch.RunWorkers(ctx, s.autograde.Process)

	go s.outbox.Run(ctx)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.submission.RequeueStalled(ctx, 5*time.Minute)
			}
		}
	}()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, db, rdb)
	app.services = services
	controllers := app.initControllers(services, db)

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("vstep-exam-backend", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	if err := services.storage.EnsureBucket(context.Background()); err != nil {
		logger.Log.Fatal("Failed to ensure storage bucket", zap.Error(err))
	}

	app.registerRoutes(router, controllers)

	app.startBackgroundTasks(services)

	return app
}

// ReloadConfig 热更新可安全替换的配置项（配置文件变更时由 watcher 回调）。
func (a *App) ReloadConfig(newCfg interface{}) {
	cfg, ok := newCfg.(*config.Config)
	if !ok {
		return
	}
	a.Config.JWT.Secret = cfg.JWT.Secret
	a.Config.JWT.ExpireTime = cfg.JWT.ExpireTime
	a.Config.RateLimit = cfg.RateLimit
	a.Config.CORS = cfg.CORS
	logger.Log.Info("Configuration reloaded")
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

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

	if a.bgCancel != nil {
		a.bgCancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
