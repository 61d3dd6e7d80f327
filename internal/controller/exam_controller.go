package controller

import (
	"vstep_exam_backend/internal/service"
	"vstep_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ExamController struct {
	ExamService     *service.ExamService
	QuestionService *service.QuestionService
}

func NewExamController(examService *service.ExamService, questionService *service.QuestionService) *ExamController {
	return &ExamController{ExamService: examService, QuestionService: questionService}
}

// ListExams godoc
// @Summary 可用试卷列表
// @Tags 考试
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/exams [get]
func (c *ExamController) ListExams(ctx *gin.Context) {
	page, limit := util.ParsePagination(ctx.Query("page"), ctx.Query("limit"))
	exams, total, err := c.QuestionService.ListExams(true, page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: exams, Total: total, Page: page, Limit: limit})
}

// Start godoc
// @Summary 开始考试
// @Description 幂等：存在进行中的会话时直接返回它
// @Tags 考试
// @Produce json
// @Security BearerAuth
// @Param id path string true "试卷ID"
// @Success 200 {object} util.Response{data=model.ExamSession}
// @Failure 400 {object} util.Response "试卷未激活"
// @Router /api/exams/{id}/start [post]
func (c *ExamController) Start(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	session, err := c.ExamService.Start(user.UserID, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// SaveAnswer godoc
// @Summary 保存单题作答
// @Tags 考试
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Param body body service.SessionAnswer true "作答"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response "会话已结束"
// @Router /api/sessions/{id}/answers [put]
func (c *ExamController) SaveAnswer(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	var req service.SessionAnswer
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.ExamService.SaveAnswer(ctx.Param("id"), user.UserID, &req); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"saved": true})
}

type saveAnswersRequest struct {
	Answers []service.SessionAnswer `json:"answers" binding:"required,min=1"`
}

// SaveAnswers godoc
// @Summary 批量自动保存作答
// @Tags 考试
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Param body body saveAnswersRequest true "作答列表"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id}/answers/batch [put]
func (c *ExamController) SaveAnswers(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	var req saveAnswersRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.ExamService.SaveAnswers(ctx.Param("id"), user.UserID, req.Answers); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"saved": len(req.Answers)})
}

// Submit godoc
// @Summary 交卷
// @Description 客观题即时判分，主观题生成子作答进入评分队列
// @Tags 考试
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.ExamSession}
// @Failure 400 {object} util.Response "空会话"
// @Router /api/sessions/{id}/submit [post]
func (c *ExamController) Submit(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	session, err := c.ExamService.Submit(ctx.Request.Context(), ctx.Param("id"), user.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// GetSession godoc
// @Summary 查看会话
// @Tags 考试
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response{data=service.SessionView}
// @Router /api/sessions/{id} [get]
func (c *ExamController) GetSession(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	view, err := c.ExamService.GetSession(ctx.Param("id"), user)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// ListSessions godoc
// @Summary 我的考试记录
// @Tags 考试
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/sessions [get]
func (c *ExamController) ListSessions(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	page, limit := util.ParsePagination(ctx.Query("page"), ctx.Query("limit"))
	sessions, total, err := c.ExamService.ListSessions(user.UserID, page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: sessions, Total: total, Page: page, Limit: limit})
}
