package app

import (
	"vstep_exam_backend/docs"
	"vstep_exam_backend/internal/middleware"
	"vstep_exam_backend/internal/model"
	"vstep_exam_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware())
	{
		authGroup.GET("/me", c.auth.Me)

		// 练习作答
		authGroup.POST("/submissions", c.submission.Create)
		authGroup.GET("/submissions", c.submission.List)
		authGroup.GET("/submissions/:id", c.submission.Get)
		authGroup.PUT("/submissions/:id", c.submission.Update)
		authGroup.DELETE("/submissions/:id", c.submission.Delete)
		authGroup.POST("/uploads/recordings", c.submission.UploadRecording)
		authGroup.POST("/uploads/attachments", c.submission.UploadAttachment)

		// 题库（只读）
		authGroup.GET("/questions", c.question.List)
		authGroup.GET("/questions/:id", c.question.Get)

		// 整卷考试
		authGroup.GET("/exams", c.exam.ListExams)
		authGroup.POST("/exams/:id/start", c.exam.Start)
		authGroup.GET("/sessions", c.exam.ListSessions)
		authGroup.GET("/sessions/:id", c.exam.GetSession)
		authGroup.PUT("/sessions/:id/answers", c.exam.SaveAnswer)
		authGroup.PUT("/sessions/:id/answers/batch", c.exam.SaveAnswers)
		authGroup.POST("/sessions/:id/submit", c.exam.Submit)

		// 进度与目标
		authGroup.GET("/progress", c.progress.Overview)
		authGroup.GET("/progress/:skill", c.progress.SkillDetail)
		authGroup.POST("/goals", c.progress.CreateGoal)
		authGroup.GET("/goals", c.progress.GetGoal)
		authGroup.PUT("/goals/:id", c.progress.UpdateGoal)
		authGroup.DELETE("/goals/:id", c.progress.DeleteGoal)

		// 教师相关接口
		teacher := authGroup.Group("/teacher")
		teacher.Use(middleware.RoleMiddleware(model.Teacher))
		{
			teacher.GET("/reviews", c.review.Queue)
			teacher.POST("/reviews/:id/claim", c.review.Claim)
			teacher.POST("/reviews/:id/release", c.review.Release)
			teacher.POST("/reviews/:id", c.review.Review)
			teacher.GET("/reviews/recording-url", c.review.RecordingURL)
			teacher.POST("/submissions/:id/grade", c.submission.DirectGrade)
			teacher.POST("/submissions/:id/autograde", c.submission.AutoGrade)
			teacher.GET("/at-risk", c.progress.AtRisk)
		}

		// 管理员相关接口
		admin := authGroup.Group("/admin")
		admin.Use(middleware.RoleMiddleware(model.Admin))
		{
			admin.POST("/questions", c.question.Create)
			admin.PUT("/questions/:id", c.question.Update)
			admin.DELETE("/questions/:id", c.question.Delete)
			admin.POST("/exams", c.question.CreateExam)
			admin.PUT("/exams/:id", c.question.UpdateExam)
			admin.GET("/exams", c.question.ListAllExams)
			admin.POST("/reviews/:id/assign", c.review.Assign)
		}
	}
}
