package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"eventpress/cmd/middleware"
	"eventpress/internal/service"
)

type Routers struct {
	Service     service.Service
	Logger      *zerolog.Logger
	JWTSecret   []byte
	CORSOrigins []string
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.RequestID())
	app.Use(middleware.LoggingMiddleware(r.Logger))
	app.Use(corsHandler(r.CORSOrigins))

	app.GET("/health", r.Service.Health)

	apiGroup := app.Group("/v1")
	apiGroup.POST("/registrations", r.Service.Register)
	apiGroup.GET("/public/events/:slug", r.Service.PublicEvent)
	apiGroup.GET("/tickets/:token/qr", r.Service.TicketQR)

	owner := apiGroup.Group("", middleware.Auth(r.JWTSecret))
	owner.POST("/events", r.Service.CreateEvent)
	owner.GET("/events", r.Service.ListEvents)
	owner.POST("/events/:id/publish", r.Service.Publish)
	owner.POST("/events/:id/unpublish", r.Service.Unpublish)
	owner.POST("/events/:id/check-in", r.Service.CheckIn)
	owner.GET("/events/:id/registrations", r.Service.Registrations)
	owner.POST("/events/:id/announcements", r.Service.Announce)
	owner.GET("/events/:id/announcements", r.Service.Announcements)

	return app
}

func corsHandler(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		cfg := cors.DefaultConfig()
		cfg.AllowAllOrigins = true
		cfg.AddAllowHeaders("Authorization", middleware.RequestIDHeader)
		return cors.New(cfg)
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
