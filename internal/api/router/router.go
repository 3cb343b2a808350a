package router

import (
	"net/http"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/d60-Lab/unveil/docs"
	"github.com/d60-Lab/unveil/internal/api/handler"
	"github.com/d60-Lab/unveil/internal/api/middleware"
)

type Options struct {
	ServiceName string
	Mode        string
	Swagger     bool
}

// Setup 注册全部路由
func Setup(h *handler.Handler, verifier middleware.TokenVerifier, opts Options) *gin.Engine {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "unveil"
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		sentrygin.New(sentrygin.Options{Repanic: true}),
		otelgin.Middleware(opts.ServiceName),
		middleware.AccessLog(),
	)

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if opts.Swagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// websocket 自己做鉴权，且不能经过 gzip
	r.GET("/ws", h.Websocket)

	api := r.Group("/api/v1", gzip.Gzip(gzip.DefaultCompression), middleware.Auth(verifier))
	{
		api.GET("/users/me", h.Me)
		api.PUT("/users/me", h.UpdateMe)

		api.GET("/discover", h.Discover)
		api.POST("/discover/:user_id/like", h.Like)
		api.POST("/discover/:user_id/dislike", h.Dislike)
		api.GET("/matches", h.ListMatches)

		api.GET("/conversations", h.ListConversations)
		api.GET("/conversations/:id", h.GetConversation)
		api.GET("/conversations/:id/messages", h.GetMessages)
		api.POST("/conversations/:id/messages", h.SendText)
		api.POST("/conversations/:id/voice", h.SendVoice)
	}
	return r
}
