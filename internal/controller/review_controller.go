package controller

import (
	"time"

	"vstep_exam_backend/internal/model"
	"vstep_exam_backend/internal/service"
	"vstep_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ReviewController struct {
	ReviewService  *service.ReviewService
	StorageService *service.StorageService
}

func NewReviewController(reviewService *service.ReviewService, storageService *service.StorageService) *ReviewController {
	return &ReviewController{ReviewService: reviewService, StorageService: storageService}
}

// Queue godoc
// @Summary 评阅队列
// @Description 按优先级和提交时间排序的待评阅列表
// @Tags 评阅
// @Produce json
// @Security BearerAuth
// @Param skill query string false "技能过滤"
// @Param priority query string false "优先级过滤"
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/teacher/reviews [get]
func (c *ReviewController) Queue(ctx *gin.Context) {
	page, limit := util.ParsePagination(ctx.Query("page"), ctx.Query("limit"))

	subs, total, err := c.ReviewService.Queue(
		model.Skill(ctx.Query("skill")),
		model.ReviewPriority(ctx.Query("priority")),
		page, limit,
	)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: subs, Total: total, Page: page, Limit: limit})
}

// Claim godoc
// @Summary 认领评阅
// @Description 乐观加锁；他人持有未过期锁时返回 409
// @Tags 评阅
// @Produce json
// @Security BearerAuth
// @Param id path string true "作答ID"
// @Success 200 {object} util.Response{data=model.Submission}
// @Failure 409 {object} util.Response "已被他人认领"
// @Router /api/teacher/reviews/{id}/claim [post]
func (c *ReviewController) Claim(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	sub, err := c.ReviewService.Claim(ctx.Param("id"), user)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, sub)
}

// Release godoc
// @Summary 释放认领
// @Tags 评阅
// @Produce json
// @Security BearerAuth
// @Param id path string true "作答ID"
// @Success 200 {object} util.Response
// @Failure 403 {object} util.Response "锁属于他人"
// @Router /api/teacher/reviews/{id}/release [post]
func (c *ReviewController) Release(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if err := c.ReviewService.Release(ctx.Param("id"), user); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"released": true})
}

// Review godoc
// @Summary 提交评阅结果
// @Description 分项打分取均值并归整到 0.5；需持有有效认领
// @Tags 评阅
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "作答ID"
// @Param body body service.ReviewRequest true "分项分数与反馈"
// @Success 200 {object} util.Response{data=model.Submission}
// @Failure 409 {object} util.Response "并发修改或认领过期"
// @Router /api/teacher/reviews/{id} [post]
func (c *ReviewController) Review(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	var req service.ReviewRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	sub, err := c.ReviewService.Review(ctx.Param("id"), user, &req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, sub)
}

// Assign godoc
// @Summary 指派评阅人
// @Tags 评阅
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "作答ID"
// @Param body body service.AssignRequest true "评阅人与优先级"
// @Success 200 {object} util.Response{data=model.Submission}
// @Router /api/admin/reviews/{id}/assign [post]
func (c *ReviewController) Assign(ctx *gin.Context) {
	var req service.AssignRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	sub, err := c.ReviewService.Assign(ctx.Param("id"), &req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, sub)
}

// RecordingURL godoc
// @Summary 获取录音临时链接
// @Description 评阅口语时换取预签名下载地址
// @Tags 评阅
// @Produce json
// @Security BearerAuth
// @Param object query string true "对象名"
// @Success 200 {object} util.Response
// @Router /api/teacher/reviews/recording-url [get]
func (c *ReviewController) RecordingURL(ctx *gin.Context) {
	object := ctx.Query("object")
	if object == "" {
		util.BadRequest(ctx, "missing object")
		return
	}

	url, err := c.StorageService.PresignedURL(ctx.Request.Context(), object, 15*time.Minute)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"url": url})
}
