package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/unveil/internal/api/middleware"
	"github.com/d60-Lab/unveil/pkg/response"
)

type sendTextRequest struct {
	Content string `json:"content"`
}

type sendVoiceRequest struct {
	AudioURL      string `json:"audio_url"`
	AudioDuration int    `json:"audio_duration"`
}

// ListConversations 当前用户的会话列表
// @Summary 会话列表（按最近活跃排序）
// @Tags 会话
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} response.Response{data=[]service.ConversationView}
// @Failure 401 {object} response.Response
// @Router /api/v1/conversations [get]
func (h *Handler) ListConversations(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	list, err := h.chat.ListConversations(c.Request.Context(), middleware.UserID(c), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}

// GetConversation 会话详情，对方照片按揭示等级处理
// @Summary 会话详情
// @Tags 会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} response.Response{data=service.ConversationView}
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/conversations/{id} [get]
func (h *Handler) GetConversation(c *gin.Context) {
	view, err := h.chat.GetConversation(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

// GetMessages 倒序游标分页，页内按时间正序
// @Summary 消息分页
// @Tags 会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Param limit query int false "每页数量（1-100）" default(50)
// @Param cursor query string false "上一页返回的 next_cursor（RFC3339）"
// @Success 200 {object} response.Response{data=service.MessagePage}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /api/v1/conversations/{id}/messages [get]
func (h *Handler) GetMessages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(c, "limit must be an integer")
			return
		}
		limit = n
	}
	page, err := h.chat.GetMessages(c.Request.Context(), c.Param("id"), middleware.UserID(c), limit, c.Query("cursor"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, page)
}

// SendText 发送文本消息，可能解锁新章节
// @Summary 发送文本消息
// @Tags 会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Param request body sendTextRequest true "消息内容"
// @Success 201 {object} response.Response{data=service.SendResult}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/conversations/{id}/messages [post]
func (h *Handler) SendText(c *gin.Context) {
	var req sendTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.chat.SendText(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.Content)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// SendVoice 发送语音消息（音频已上传，这里只记录地址与时长）
// @Summary 发送语音消息
// @Tags 会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Param request body sendVoiceRequest true "语音信息"
// @Success 201 {object} response.Response{data=model.Message}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /api/v1/conversations/{id}/voice [post]
func (h *Handler) SendVoice(c *gin.Context) {
	var req sendVoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	msg, err := h.chat.SendVoice(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.AudioURL, req.AudioDuration)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}
