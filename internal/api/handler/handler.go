package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/d60-Lab/unveil/config"
	"github.com/d60-Lab/unveil/internal/api/middleware"
	"github.com/d60-Lab/unveil/internal/realtime"
	"github.com/d60-Lab/unveil/internal/service"
)

// Handler HTTP 与 websocket 适配层，业务逻辑全部在 service 中
type Handler struct {
	chat      service.ChatService
	discovery service.DiscoveryService
	profiles  service.ProfileService

	hub      *realtime.Hub
	verifier middleware.TokenVerifier
	upgrader websocket.Upgrader
	ws       config.RealtimeConfig
}

func New(
	chat service.ChatService,
	discovery service.DiscoveryService,
	profiles service.ProfileService,
	hub *realtime.Hub,
	verifier middleware.TokenVerifier,
	rt config.RealtimeConfig,
) *Handler {
	if rt.WriteTimeout <= 0 {
		rt.WriteTimeout = 10 * time.Second
	}
	if rt.PongWait <= 0 {
		rt.PongWait = 60 * time.Second
	}
	h := &Handler{
		chat:      chat,
		discovery: discovery,
		profiles:  profiles,
		hub:       hub,
		verifier:  verifier,
		ws:        rt,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(rt.AllowedOrigins),
	}
	return h
}

// originChecker 未配置白名单时允许所有来源（开发模式）
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
