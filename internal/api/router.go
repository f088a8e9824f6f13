package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/duel-game/internal/duel"
	apperrors "github.com/wfunc/duel-game/internal/errors"
	"github.com/wfunc/duel-game/internal/middleware"
	"github.com/wfunc/duel-game/internal/repository"
	ws "github.com/wfunc/duel-game/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps 路由依赖
type Deps struct {
	Duel   *duel.Engine
	Hub    *ws.Hub
	Repos  *repository.Manager // 可选
	DB     *gorm.DB            // 可选，用于健康检查
	Auth   *middleware.AuthMiddleware
	WSPath string
	Log    *zap.Logger
}

// Router API路由器
type Router struct {
	engine         *gin.Engine
	db             *gorm.DB
	duel           *duel.Engine
	hub            *ws.Hub
	duelHandler    *DuelHandler
	authMiddleware *middleware.AuthMiddleware
	wsPath         string
	log            *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(deps Deps) *Router {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.WSPath == "" {
		deps.WSPath = "/ws"
	}

	// 创建Gin引擎
	engine := gin.New()

	// 全局中间件
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestLogger())

	router := &Router{
		engine:         engine,
		db:             deps.DB,
		duel:           deps.Duel,
		hub:            deps.Hub,
		duelHandler:    NewDuelHandler(deps.Duel, deps.Repos, deps.Log),
		authMiddleware: deps.Auth,
		wsPath:         deps.WSPath,
		log:            deps.Log,
	}

	// 设置路由
	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	h := r.duelHandler
	v1 := r.engine.Group("/api/v1")
	v1.Use(r.authMiddleware.RequireAuth())
	{
		lobbies := v1.Group("/lobbies")
		{
			lobbies.POST("", h.CreateLobby)
			lobbies.GET("", h.ListLobbies)
			lobbies.GET("/:id", h.GetLobby)
			lobbies.POST("/:id/join", h.JoinLobby)
			lobbies.DELETE("/:id", h.CancelLobby)
		}

		matches := v1.Group("/matches")
		{
			matches.GET("", h.ListMatches)
			matches.GET("/:id", h.GetMatch)
			matches.POST("/:id/commit", h.SubmitCommit)
			matches.POST("/:id/reveal", h.RevealMove)
			matches.POST("/:id/rematch", h.RequestRematch)
		}

		rematches := v1.Group("/rematches")
		{
			rematches.GET("/:id", h.GetOffer)
			rematches.POST("/:id/respond", h.RespondRematch)
		}

		v1.GET("/players/me/stats", h.PlayerStats)
		v1.GET("/players/me/lobbies", h.ListMyLobbies)
	}

	// WebSocket路由，浏览器通过 ?token= 传递令牌
	if r.hub != nil {
		r.engine.GET(r.wsPath, r.authMiddleware.RequireAuth(), r.serveWS)
	}

	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		respondError(c, apperrors.New(apperrors.ErrNotFound, "接口不存在"))
	})
}

// healthCheck 健康检查
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (r *Router) healthCheck(c *gin.Context) {
	body := gin.H{
		"status":  "healthy",
		"message": "服务运行正常",
		"duel":    r.duel.Stats(),
	}
	if r.hub != nil {
		body["online_players"] = r.hub.GetOnlinePlayers()
	}

	// 检查数据库连接
	if r.db != nil {
		sqlDB, err := r.db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err = sqlDB.PingContext(ctx)
			cancel()
		}
		if err != nil {
			r.log.Warn("健康检查数据库不可用", zap.Error(err))
			body["status"] = "unhealthy"
			body["message"] = "数据库连接失败"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}

	c.JSON(http.StatusOK, body)
}

// serveWS 升级为WebSocket连接，连接只用于推送对战事件
func (r *Router) serveWS(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}
	// 升级失败时 upgrader 已写回HTTP错误
	if err := r.hub.ServeWS(c.Writer, c.Request, playerID); err != nil {
		r.log.Warn("WebSocket连接失败",
			zap.String("player_id", playerID),
			zap.Error(err))
	}
}

// Handler 返回HTTP处理器
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
