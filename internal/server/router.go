package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/ranielm/planning-poker-sub000/internal/auth"
	"github.com/ranielm/planning-poker-sub000/internal/config"
	"github.com/ranielm/planning-poker-sub000/internal/metrics"
	"github.com/ranielm/planning-poker-sub000/internal/mw"
	"github.com/ranielm/planning-poker-sub000/internal/ws"
)

// SetupRouter wires middleware, the REST API and the websocket endpoint.
func SetupRouter(cfg config.Config, db *gorm.DB, h *Handler, gw *ws.Gateway) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.RefreshToken)

	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg, db))
	authed.POST("/rooms", h.CreateRoom)
	authed.GET("/rooms", h.ListRooms)
	authed.GET("/rooms/:id", h.GetRoom)
	authed.DELETE("/rooms/:id", h.DeleteRoom)
	authed.GET("/rooms/:id/history", h.RoomHistory)

	r.GET("/ws", gw.Serve())

	return r
}
