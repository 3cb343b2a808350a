package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/d60-Lab/unveil/internal/api/middleware"
	"github.com/d60-Lab/unveil/internal/realtime"
	"github.com/d60-Lab/unveil/pkg/apperr"
	"github.com/d60-Lab/unveil/pkg/logger"
	"github.com/d60-Lab/unveil/pkg/response"
)

const maxFrameSize = 64 * 1024

// inbound client->server frame
type inbound struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	AudioURL       string `json:"audio_url"`
	AudioDuration  int    `json:"audio_duration"`
}

var errNotJoined = apperr.InvalidArg("join a conversation first")

// Websocket 实时通道：token 通过 query 或 Authorization 头传入
// @Summary 实时消息通道（websocket）
// @Tags 实时
// @Param token query string false "JWT"
// @Success 101
// @Failure 401 {object} response.Response
// @Router /ws [get]
func (h *Handler) Websocket(c *gin.Context) {
	raw := c.Query("token")
	if raw == "" {
		raw = middleware.BearerToken(c.GetHeader("Authorization"))
	}
	userID, err := h.verifier.Verify(raw)
	if err != nil || raw == "" {
		response.Unauthorized(c, "invalid token")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	client := h.hub.NewClient(userID)
	logger.Debug("websocket connected", zap.String("client_id", client.ID), zap.String("user_id", userID))

	go h.writeLoop(conn, client)
	h.readLoop(c.Request.Context(), conn, client)
	h.hub.Remove(client)
	logger.Debug("websocket disconnected", zap.String("client_id", client.ID))
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, client *realtime.Client) {
	defer conn.Close()
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.ws.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.ws.PongWait))
	})

	for {
		var in inbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read", zap.String("client_id", client.ID), zap.Error(err))
			}
			if !isDecodeErr(err) {
				return
			}
			// 非法 JSON 只回错误帧，不断开连接
			h.hub.Send(client, realtime.ErrorEvent(apperr.InvalidArg("malformed frame")))
			continue
		}
		h.dispatch(ctx, client, in)
	}
}

func (h *Handler) dispatch(ctx context.Context, client *realtime.Client, in inbound) {
	switch in.Type {
	case "join":
		view, err := h.chat.GetConversation(ctx, in.ConversationID, client.UserID)
		if err != nil {
			h.hub.Send(client, realtime.ErrorEvent(err))
			return
		}
		h.hub.Join(client, in.ConversationID)
		h.hub.Send(client, realtime.Event{Type: realtime.EventJoined, ConversationID: in.ConversationID, Data: view})

	case "leave":
		if room := h.hub.Leave(client); room != "" {
			h.hub.Send(client, realtime.Event{Type: realtime.EventLeft, ConversationID: room})
		}

	case "send_text":
		room := h.hub.Room(client)
		if room == "" {
			h.hub.Send(client, realtime.ErrorEvent(errNotJoined))
			return
		}
		if _, err := h.chat.SendText(ctx, room, client.UserID, in.Content); err != nil {
			h.hub.Send(client, realtime.ErrorEvent(err))
		}

	case "send_voice":
		room := h.hub.Room(client)
		if room == "" {
			h.hub.Send(client, realtime.ErrorEvent(errNotJoined))
			return
		}
		if _, err := h.chat.SendVoice(ctx, room, client.UserID, in.AudioURL, in.AudioDuration); err != nil {
			h.hub.Send(client, realtime.ErrorEvent(err))
		}

	case "typing":
		h.hub.Typing(client)

	default:
		h.hub.Send(client, realtime.ErrorEvent(apperr.InvalidArg("unknown frame type")))
	}
}

func (h *Handler) writeLoop(conn *websocket.Conn, client *realtime.Client) {
	ticker := time.NewTicker(h.ws.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(h.ws.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.ws.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

func isDecodeErr(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
