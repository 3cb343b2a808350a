package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/unveil/internal/api/middleware"
	"github.com/d60-Lab/unveil/pkg/response"
)

// Discover 候选用户
// @Summary 发现页候选（未评价过的用户，照片隐藏）
// @Tags 发现
// @Produce json
// @Security BearerAuth
// @Param limit query int false "数量" default(20)
// @Success 200 {object} response.Response{data=[]service.ProfileView}
// @Router /api/v1/discover [get]
func (h *Handler) Discover(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	list, err := h.discovery.Candidates(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

// Like 喜欢某用户，互相喜欢时创建匹配与会话
// @Summary 喜欢
// @Tags 发现
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "用户ID"
// @Success 200 {object} response.Response{data=service.LikeResult}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/discover/{user_id}/like [post]
func (h *Handler) Like(c *gin.Context) {
	res, err := h.discovery.Like(c.Request.Context(), middleware.UserID(c), c.Param("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Dislike 不喜欢
// @Summary 不喜欢
// @Tags 发现
// @Security BearerAuth
// @Param user_id path string true "用户ID"
// @Success 200 {object} response.Response
// @Router /api/v1/discover/{user_id}/dislike [post]
func (h *Handler) Dislike(c *gin.Context) {
	if err := h.discovery.Dislike(c.Request.Context(), middleware.UserID(c), c.Param("user_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// ListMatches 我的匹配
// @Summary 匹配列表
// @Tags 发现
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/matches [get]
func (h *Handler) ListMatches(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	list, err := h.discovery.ListMatches(c.Request.Context(), middleware.UserID(c), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}
