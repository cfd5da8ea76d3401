package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/anon-community/pkg/response"
)

// Me 当前用户的匿名资料
// @Summary 我的匿名资料
// @Tags 用户
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=service.PublicProfile}
// @Router /api/v1/users/me [get]
func (h *Handler) Me(c *gin.Context) {
	me, ok := h.viewer(c)
	if !ok {
		return
	}
	response.Success(c, h.resolver.PublicProfile(me))
}
