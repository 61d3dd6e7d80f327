package controller

import (
	"vstep_exam_backend/internal/model"
	"vstep_exam_backend/internal/service"
	"vstep_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SubmissionController struct {
	SubmissionService *service.SubmissionService
	AutogradeService  *service.AutogradeService
	StorageService    *service.StorageService
}

func NewSubmissionController(
	submissionService *service.SubmissionService,
	autogradeService *service.AutogradeService,
	storageService *service.StorageService,
) *SubmissionController {
	return &SubmissionController{
		SubmissionService: submissionService,
		AutogradeService:  autogradeService,
		StorageService:    storageService,
	}
}

// Create godoc
// @Summary 提交作答
// @Description 校验载荷后入库并进入评分队列
// @Tags 作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateSubmissionRequest true "作答内容"
// @Success 201 {object} util.Response{data=model.Submission}
// @Failure 400 {object} util.Response "载荷与题型不符"
// @Router /api/submissions [post]
func (c *SubmissionController) Create(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	var req service.CreateSubmissionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	sub, err := c.SubmissionService.Create(ctx.Request.Context(), user.UserID, &req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, sub)
}

// Get godoc
// @Summary 查看单条作答
// @Tags 作答
// @Produce json
// @Security BearerAuth
// @Param id path string true "作答ID"
// @Success 200 {object} util.Response{data=service.SubmissionView}
// @Router /api/submissions/{id} [get]
func (c *SubmissionController) Get(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	view, err := c.SubmissionService.Get(ctx.Param("id"), user)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// List godoc
// @Summary 我的作答列表
// @Tags 作答
// @Produce json
// @Security BearerAuth
// @Param status query string false "状态过滤"
// @Param skill query string false "技能过滤"
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/submissions [get]
func (c *SubmissionController) List(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	page, limit := util.ParsePagination(ctx.Query("page"), ctx.Query("limit"))

	subs, total, err := c.SubmissionService.ListByUser(
		user.UserID,
		model.SubmissionStatus(ctx.Query("status")),
		model.Skill(ctx.Query("skill")),
		page, limit,
	)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: subs, Total: total, Page: page, Limit: limit})
}

// Update godoc
// @Summary 修改作答
// @Description 终态作答仅管理员可改，状态变更须符合状态机
// @Tags 作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "作答ID"
// @Param body body service.UpdateSubmissionRequest true "修改内容"
// @Success 200 {object} util.Response{data=model.Submission}
// @Failure 400 {object} util.Response "非法状态迁移"
// @Failure 409 {object} util.Response "作答已终态"
// @Router /api/submissions/{id} [put]
func (c *SubmissionController) Update(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	var req service.UpdateSubmissionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	sub, err := c.SubmissionService.Update(ctx.Param("id"), user, &req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, sub)
}

// Delete godoc
// @Summary 删除作答
// @Description 软删除；已完成的作答仅管理员可删
// @Tags 作答
// @Produce json
// @Security BearerAuth
// @Param id path string true "作答ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response "已完成的作答不可删除"
// @Router /api/submissions/{id} [delete]
func (c *SubmissionController) Delete(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if err := c.SubmissionService.Delete(ctx.Param("id"), user); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// DirectGrade godoc
// @Summary 教师直接评分
// @Description 绕过队列对未终态作答直接给分
// @Tags 作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "作答ID"
// @Param body body service.DirectGradeRequest true "分数与反馈"
// @Success 200 {object} util.Response{data=model.Submission}
// @Failure 409 {object} util.Response "作答已终态"
// @Router /api/teacher/submissions/{id}/grade [post]
func (c *SubmissionController) DirectGrade(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	var req service.DirectGradeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	sub, err := c.SubmissionService.DirectGrade(ctx.Param("id"), user.UserID, &req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, sub)
}

// AutoGrade godoc
// @Summary 立即自动评分
// @Description 跳过队列同步判分，仅限客观题
// @Tags 作答
// @Produce json
// @Security BearerAuth
// @Param id path string true "作答ID"
// @Success 200 {object} util.Response{data=model.Submission}
// @Failure 400 {object} util.Response "非客观题或缺答案键"
// @Failure 409 {object} util.Response "当前状态不可评分"
// @Router /api/teacher/submissions/{id}/autograde [post]
func (c *SubmissionController) AutoGrade(ctx *gin.Context) {
	sub, err := c.AutogradeService.GradeSingle(ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, sub)
}

// UploadRecording godoc
// @Summary 上传口语录音
// @Tags 作答
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param file formData file true "音频文件"
// @Success 201 {object} util.Response
// @Router /api/uploads/recordings [post]
func (c *SubmissionController) UploadRecording(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "missing file")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer file.Close()

	object, duration, err := c.StorageService.UploadRecording(
		ctx.Request.Context(), user.UserID, file, fileHeader.Size,
		fileHeader.Header.Get("Content-Type"),
	)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, gin.H{"audioObject": object, "durationSeconds": duration})
}

// UploadAttachment godoc
// @Summary 上传写作附件
// @Tags 作答
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param file formData file true "附件"
// @Success 201 {object} util.Response
// @Router /api/uploads/attachments [post]
func (c *SubmissionController) UploadAttachment(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "missing file")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer file.Close()

	object, err := c.StorageService.UploadAttachment(
		ctx.Request.Context(), user.UserID, file, fileHeader.Size,
		fileHeader.Header.Get("Content-Type"),
	)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, gin.H{"attachment": object})
}
