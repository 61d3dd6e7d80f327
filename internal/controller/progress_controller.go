package controller

import (
	"vstep_exam_backend/internal/model"
	"vstep_exam_backend/internal/service"
	"vstep_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ProgressController struct {
	ProgressService *service.ProgressService
	GoalService     *service.GoalService
}

func NewProgressController(progressService *service.ProgressService, goalService *service.GoalService) *ProgressController {
	return &ProgressController{ProgressService: progressService, GoalService: goalService}
}

// Overview godoc
// @Summary 四技能蛛网图
// @Description 每技能的均值、等级、趋势与达标 ETA
// @Tags 进度
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.ProgressOverview}
// @Router /api/progress [get]
func (c *ProgressController) Overview(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	overview, err := c.ProgressService.Overview(user.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, overview)
}

// SkillDetail godoc
// @Summary 单技能进度详情
// @Tags 进度
// @Produce json
// @Security BearerAuth
// @Param skill path string true "技能"
// @Success 200 {object} util.Response
// @Router /api/progress/{skill} [get]
func (c *ProgressController) SkillDetail(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	skill := model.Skill(ctx.Param("skill"))

	valid := false
	for _, s := range model.AllSkills {
		if s == skill {
			valid = true
			break
		}
	}
	if !valid {
		util.BadRequest(ctx, "unknown skill")
		return
	}

	view, recent, err := c.ProgressService.SkillDetail(user.UserID, skill)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"progress": view, "recentScores": recent})
}

// AtRisk godoc
// @Summary 风险学员列表
// @Description 教师端：趋势下滑或临近目标期限仍未达标的学员
// @Tags 进度
// @Produce json
// @Security BearerAuth
// @Param limit query int false "数量上限"
// @Success 200 {object} util.Response
// @Router /api/teacher/at-risk [get]
func (c *ProgressController) AtRisk(ctx *gin.Context) {
	_, limit := util.ParsePagination("1", ctx.Query("limit"))
	students, err := c.ProgressService.ListAtRisk(limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, students)
}

// CreateGoal godoc
// @Summary 设定学习目标
// @Tags 目标
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.GoalRequest true "目标等级与期限"
// @Success 201 {object} util.Response{data=model.UserGoal}
// @Failure 409 {object} util.Response "已存在目标"
// @Router /api/goals [post]
func (c *ProgressController) CreateGoal(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	var req service.GoalRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	goal, err := c.GoalService.Create(user.UserID, &req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, goal)
}

// GetGoal godoc
// @Summary 查看我的目标
// @Tags 目标
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=model.UserGoal}
// @Router /api/goals [get]
func (c *ProgressController) GetGoal(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	goal, err := c.GoalService.Get(user.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, goal)
}

// UpdateGoal godoc
// @Summary 更新目标
// @Tags 目标
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "目标ID"
// @Param body body service.GoalRequest true "目标等级与期限"
// @Success 200 {object} util.Response{data=model.UserGoal}
// @Router /api/goals/{id} [put]
func (c *ProgressController) UpdateGoal(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	var req service.GoalRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	goal, err := c.GoalService.Update(ctx.Param("id"), user, &req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, goal)
}

// DeleteGoal godoc
// @Summary 删除目标
// @Tags 目标
// @Produce json
// @Security BearerAuth
// @Param id path string true "目标ID"
// @Success 200 {object} util.Response
// @Router /api/goals/{id} [delete]
func (c *ProgressController) DeleteGoal(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if err := c.GoalService.Delete(ctx.Param("id"), user); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deleted": true})
}
