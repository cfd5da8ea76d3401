package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/anon-community/internal/model"
	"github.com/d60-Lab/anon-community/internal/repository"
	"github.com/d60-Lab/anon-community/internal/service"
	"github.com/d60-Lab/anon-community/pkg/apperr"
	"github.com/d60-Lab/anon-community/pkg/response"
)

type followRequest struct {
	FollowingID     string   `json:"followingId" binding:"required,anonid"`
	FollowSource    string   `json:"followSource" binding:"omitempty,max=32"`
	SourceContentID string   `json:"sourceContentId" binding:"omitempty,max=64"`
	MutualInterests []string `json:"mutualInterests" binding:"omitempty,max=10,dive,max=64"`
}

type followPath struct {
	FollowingID string `uri:"followingId" binding:"required,anonid"`
}

type listQuery struct {
	Type  string `form:"type" binding:"omitempty,oneof=followers following mutual all"`
	Page  int    `form:"page" binding:"omitempty,min=1"`
	Limit int    `form:"limit" binding:"omitempty,min=1"`
}

type chatEligibilityRequest struct {
	UserID string `json:"userId" binding:"required,anonid"`
}

type chatPartnersResponse struct {
	ChatPartners []service.ChatPartner `json:"chatPartners"`
	TotalCount   int                   `json:"totalCount"`
}

// Follow 关注用户
// @Summary 关注用户（对方已关注我时自动成为互关）
// @Tags 关注
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body followRequest true "关注目标（匿名 ID）"
// @Success 201 {object} response.Response{data=service.EdgeSummary}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/follows [post]
func (h *Handler) Follow(c *gin.Context) {
	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	me, ok := h.activeViewer(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	target, reason, err := h.resolver.ValidateFollowTarget(ctx, req.FollowingID, me.AuthID)
	if err != nil {
		response.Error(c, err)
		return
	}
	switch reason {
	case service.ReasonNotFound:
		response.NotFound(c, "user not found")
		return
	case service.ReasonSelfFollow:
		response.BadRequest(c, "cannot follow yourself")
		return
	}

	edge, err := h.follows.Follow(ctx, me.ID, target, model.FollowMetadata{
		FollowSource:    req.FollowSource,
		SourceContentID: req.SourceContentID,
		MutualInterests: req.MutualInterests,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, edge)
}

// Unfollow 取消关注
// @Summary 取消关注（互关时对方的边降级为单向）
// @Tags 关注
// @Produce json
// @Security BearerAuth
// @Param followingId path string true "被关注者匿名 ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/follows/{followingId} [delete]
func (h *Handler) Unfollow(c *gin.Context) {
	var p followPath
	if err := c.ShouldBindUri(&p); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	me, ok := h.activeViewer(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	target, err := h.resolver.Resolve(ctx, p.FollowingID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.follows.Unfollow(ctx, me.ID, target); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// List 关注列表
// @Summary 查询关注 / 粉丝 / 互关列表
// @Tags 关注
// @Produce json
// @Security BearerAuth
// @Param type query string false "followers | following | mutual | all" default(all)
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量（最大 50）" default(20)
// @Success 200 {object} response.Response{data=service.FollowList}
// @Router /api/v1/follows [get]
func (h *Handler) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	me, ok := h.viewer(c)
	if !ok {
		return
	}
	list, err := h.follows.List(c.Request.Context(), me.ID, repository.ParseListFilter(q.Type), q.Page, q.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

// Stats 关注统计
// @Summary 关注统计
// @Tags 关注
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=service.FollowStats}
// @Router /api/v1/follows/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	me, ok := h.viewer(c)
	if !ok {
		return
	}
	stats, err := h.follows.Stats(c.Request.Context(), me.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, stats)
}

// CheckChatEligibility 能否与对方聊天
// @Summary 检查聊天资格（需互关）
// @Tags 关注
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body chatEligibilityRequest true "对方匿名 ID"
// @Success 200 {object} response.Response{data=service.ChatEligibility}
// @Failure 404 {object} response.Response
// @Router /api/v1/follows/check-chat-eligibility [post]
func (h *Handler) CheckChatEligibility(c *gin.Context) {
	var req chatEligibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	me, ok := h.viewer(c)
	if !ok {
		return
	}
	res, err := h.follows.ChatEligibility(c.Request.Context(), me.ID, req.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// ChatPartners 可聊天的互关对象
// @Summary 互关聊天对象列表
// @Tags 关注
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=chatPartnersResponse}
// @Router /api/v1/follows/chat-partners [get]
func (h *Handler) ChatPartners(c *gin.Context) {
	me, ok := h.viewer(c)
	if !ok {
		return
	}
	partners, err := h.follows.ChatPartners(c.Request.Context(), me.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, chatPartnersResponse{ChatPartners: partners, TotalCount: len(partners)})
}

// UpdateSettings 修改自己那条关注边的隐私设置
// @Summary 更新关注隐私设置
// @Tags 关注
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param followId path string true "关注关系 ID"
// @Param request body service.SettingsPatch true "要修改的字段"
// @Success 200 {object} response.Response{data=service.EdgeSummary}
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/follows/{followId}/settings [patch]
func (h *Handler) UpdateSettings(c *gin.Context) {
	var patch service.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	me, ok := h.activeViewer(c)
	if !ok {
		return
	}
	followID := c.Param("followId")
	if followID == "" {
		response.Error(c, apperr.InvalidInput("follow id is required"))
		return
	}
	edge, err := h.follows.UpdateSettings(c.Request.Context(), followID, me.ID, patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, edge)
}
