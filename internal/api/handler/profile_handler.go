package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/unveil/internal/api/middleware"
	"github.com/d60-Lab/unveil/internal/service"
	"github.com/d60-Lab/unveil/pkg/response"
)

// Me 当前用户资料（自己的照片始终可见）
// @Summary 我的资料
// @Tags 用户
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=service.ProfileView}
// @Router /api/v1/users/me [get]
func (h *Handler) Me(c *gin.Context) {
	view, err := h.profiles.Me(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

// UpdateMe 更新资料
// @Summary 更新我的资料
// @Tags 用户
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.UpdateProfileRequest true "资料字段（省略的字段不变）"
// @Success 200 {object} response.Response{data=service.ProfileView}
// @Failure 400 {object} response.Response
// @Router /api/v1/users/me [put]
func (h *Handler) UpdateMe(c *gin.Context) {
	var req service.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	view, err := h.profiles.Update(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}
