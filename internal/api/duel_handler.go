package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/duel-game/internal/duel"
	apperrors "github.com/wfunc/duel-game/internal/errors"
	"github.com/wfunc/duel-game/internal/repository"
	"go.uber.org/zap"
)

// DuelHandler 对战处理器
type DuelHandler struct {
	engine *duel.Engine
	repos  *repository.Manager
	log    *zap.Logger
}

// NewDuelHandler 创建对战处理器，repos 为空时历史和战绩接口不可用
func NewDuelHandler(engine *duel.Engine, repos *repository.Manager, log *zap.Logger) *DuelHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &DuelHandler{
		engine: engine,
		repos:  repos,
		log:    log,
	}
}

// CreateLobbyRequest 创建大厅请求
type CreateLobbyRequest struct {
	Amount         string `json:"amount" binding:"required" example:"2.5"`
	Currency       string `json:"currency" binding:"required" example:"USDT"`
	Faction        string `json:"faction" binding:"required" example:"wizard"`
	MaxWaitSeconds int64  `json:"max_wait_seconds" binding:"required,gt=0" example:"300"`
}

// CommitRequest 提交出招承诺请求
type CommitRequest struct {
	Commitment string `json:"commitment" binding:"required"`
}

// RevealRequest 揭示出招请求
type RevealRequest struct {
	Move  string `json:"move" binding:"required" example:"rock"`
	Nonce string `json:"nonce" binding:"required"`
}

// RespondRematchRequest 回应再战请求
type RespondRematchRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

// HistoryQuery 对局历史查询参数
type HistoryQuery struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

// LobbyView 大厅视图
type LobbyView struct {
	duel.LobbySnapshot
	MaxWaitSeconds int64 `json:"max_wait_seconds"`
}

// HistoryResponse 对局历史
type HistoryResponse struct {
	Matches    []duel.MatchSnapshot   `json:"matches"`
	Pagination *repository.Pagination `json:"pagination"`
}

// LobbyHistoryResponse 自己创建的大厅分页结果
type LobbyHistoryResponse struct {
	Lobbies    []LobbyView            `json:"lobbies"`
	Pagination *repository.Pagination `json:"pagination"`
}

func newLobbyView(l duel.LobbySnapshot) LobbyView {
	return LobbyView{LobbySnapshot: l, MaxWaitSeconds: l.MaxWaitSeconds()}
}

// CreateLobby 创建大厅
// @Summary 创建大厅
// @Description 以指定押注和阵营开一个等待对手的大厅
// @Tags 大厅
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body CreateLobbyRequest true "大厅参数"
// @Success 201 {object} Response{data=LobbyView}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/lobbies [post]
func (h *DuelHandler) CreateLobby(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}

	var req CreateLobbyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	stake, err := duel.NewStake(req.Amount, req.Currency)
	if err != nil {
		respondError(c, err)
		return
	}
	faction, err := duel.ParseFaction(req.Faction)
	if err != nil {
		respondError(c, err)
		return
	}

	lobby, err := h.engine.CreateLobby(c.Request.Context(), playerID, stake, faction, time.Duration(req.MaxWaitSeconds)*time.Second)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, newLobbyView(lobby))
}

// ListLobbies 列出开放中的大厅
// @Summary 开放大厅列表
// @Tags 大厅
// @Security Bearer
// @Produce json
// @Param currency query string false "按币种过滤"
// @Success 200 {object} Response{data=[]LobbyView}
// @Router /api/v1/lobbies [get]
func (h *DuelHandler) ListLobbies(c *gin.Context) {
	lobbies := h.engine.ListOpenLobbies(c.Query("currency"))
	views := make([]LobbyView, 0, len(lobbies))
	for _, l := range lobbies {
		views = append(views, newLobbyView(l))
	}
	respondOK(c, http.StatusOK, views)
}

// GetLobby 查询大厅
// @Summary 查询大厅
// @Tags 大厅
// @Security Bearer
// @Produce json
// @Param id path string true "大厅ID"
// @Success 200 {object} Response{data=LobbyView}
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/lobbies/{id} [get]
func (h *DuelHandler) GetLobby(c *gin.Context) {
	lobby, err := h.engine.GetLobby(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, newLobbyView(lobby))
}

// JoinLobby 加入大厅
// @Summary 加入大厅
// @Description 加入他人的开放大厅，成功后立即开始对局
// @Tags 大厅
// @Security Bearer
// @Produce json
// @Param id path string true "大厅ID"
// @Success 201 {object} Response{data=duel.MatchSnapshot}
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/lobbies/{id}/join [post]
func (h *DuelHandler) JoinLobby(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}

	match, err := h.engine.JoinLobby(c.Request.Context(), c.Param("id"), playerID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, match.Redacted(playerID))
}

// CancelLobby 取消大厅
// @Summary 取消大厅
// @Tags 大厅
// @Security Bearer
// @Produce json
// @Param id path string true "大厅ID"
// @Success 200 {object} Response{data=LobbyView}
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/lobbies/{id} [delete]
func (h *DuelHandler) CancelLobby(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}

	lobby, err := h.engine.CancelLobby(c.Request.Context(), c.Param("id"), playerID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, newLobbyView(lobby))
}

// GetMatch 查询对局
// @Summary 查询对局
// @Description 结算前只返回调用者自己的明文出招
// @Tags 对局
// @Security Bearer
// @Produce json
// @Param id path string true "对局ID"
// @Success 200 {object} Response{data=duel.MatchSnapshot}
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/matches/{id} [get]
func (h *DuelHandler) GetMatch(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}

	match, err := h.engine.GetMatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, match.Redacted(playerID))
}

// SubmitCommit 提交出招承诺
// @Summary 提交出招承诺
// @Description commitment = hex(keccak256(move || nonce))
// @Tags 对局
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path string true "对局ID"
// @Param request body CommitRequest true "承诺"
// @Success 200 {object} Response{data=duel.MatchSnapshot}
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/matches/{id}/commit [post]
func (h *DuelHandler) SubmitCommit(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}

	var req CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	match, err := h.engine.SubmitMoveCommit(c.Request.Context(), c.Param("id"), playerID, req.Commitment)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, match.Redacted(playerID))
}

// RevealMove 揭示出招
// @Summary 揭示出招
// @Tags 对局
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path string true "对局ID"
// @Param request body RevealRequest true "出招和随机数"
// @Success 200 {object} Response{data=duel.MatchSnapshot}
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/matches/{id}/reveal [post]
func (h *DuelHandler) RevealMove(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}

	var req RevealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	move, err := duel.ParseMove(req.Move)
	if err != nil {
		respondError(c, err)
		return
	}

	match, err := h.engine.RevealMove(c.Request.Context(), c.Param("id"), playerID, move, req.Nonce)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, match.Redacted(playerID))
}

// RequestRematch 发起再战
// @Summary 发起再战
// @Tags 再战
// @Security Bearer
// @Produce json
// @Param id path string true "已结算的对局ID"
// @Success 201 {object} Response{data=duel.OfferSnapshot}
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/matches/{id}/rematch [post]
func (h *DuelHandler) RequestRematch(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}

	offer, err := h.engine.RequestRematch(c.Request.Context(), c.Param("id"), playerID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, offer)
}

// GetOffer 查询再战邀请
// @Summary 查询再战邀请
// @Tags 再战
// @Security Bearer
// @Produce json
// @Param id path string true "邀请ID"
// @Success 200 {object} Response{data=duel.OfferSnapshot}
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/rematches/{id} [get]
func (h *DuelHandler) GetOffer(c *gin.Context) {
	offer, err := h.engine.GetOffer(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, offer)
}

// RespondRematch 回应再战邀请
// @Summary 回应再战邀请
// @Tags 再战
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path string true "邀请ID"
// @Param request body RespondRematchRequest true "是否接受"
// @Success 200 {object} Response{data=duel.OfferSnapshot}
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/rematches/{id}/respond [post]
func (h *DuelHandler) RespondRematch(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}

	var req RespondRematchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	offer, err := h.engine.RespondRematch(c.Request.Context(), c.Param("id"), playerID, *req.Accept)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, offer)
}

// ListMatches 查询自己的对局历史
// @Summary 对局历史
// @Tags 对局
// @Security Bearer
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} Response{data=HistoryResponse}
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/matches [get]
func (h *DuelHandler) ListMatches(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}
	if h.repos == nil {
		respondError(c, apperrors.New(apperrors.ErrDatabaseConnect, "未配置持久化存储"))
		return
	}

	var q HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}
	p := repository.NewPagination(q.Page, q.PageSize)

	records, err := h.repos.Match().FindByPlayer(c.Request.Context(), playerID, p)
	if err != nil {
		respondError(c, err)
		return
	}

	matches := make([]duel.MatchSnapshot, 0, len(records))
	for _, rec := range records {
		snap, err := repository.MatchFromRecord(rec)
		if err != nil {
			h.log.Warn("跳过无法解析的对局记录",
				zap.String("match_id", rec.MatchID),
				zap.Error(err))
			continue
		}
		matches = append(matches, snap.Redacted(playerID))
	}
	respondOK(c, http.StatusOK, HistoryResponse{Matches: matches, Pagination: p})
}

// ListMyLobbies 查询自己创建过的大厅
// @Summary 我的大厅
// @Tags 大厅
// @Security Bearer
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} Response{data=LobbyHistoryResponse}
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/players/me/lobbies [get]
func (h *DuelHandler) ListMyLobbies(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}
	if h.repos == nil {
		respondError(c, apperrors.New(apperrors.ErrDatabaseConnect, "未配置持久化存储"))
		return
	}

	var q HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}
	p := repository.NewPagination(q.Page, q.PageSize)

	records, err := h.repos.Lobby().FindByCreator(c.Request.Context(), playerID, p)
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]LobbyView, 0, len(records))
	for _, rec := range records {
		snap, err := repository.LobbyFromRecord(rec)
		if err != nil {
			h.log.Warn("跳过无法解析的大厅记录",
				zap.String("lobby_id", rec.LobbyID),
				zap.Error(err))
			continue
		}
		views = append(views, newLobbyView(snap))
	}
	respondOK(c, http.StatusOK, LobbyHistoryResponse{Lobbies: views, Pagination: p})
}

// PlayerStats 查询自己的战绩
// @Summary 玩家战绩
// @Tags 对局
// @Security Bearer
// @Produce json
// @Success 200 {object} Response{data=repository.PlayerStats}
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/players/me/stats [get]
func (h *DuelHandler) PlayerStats(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}
	if h.repos == nil {
		respondError(c, apperrors.New(apperrors.ErrDatabaseConnect, "未配置持久化存储"))
		return
	}

	stats, err := h.repos.Match().GetPlayerStats(c.Request.Context(), playerID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, stats)
}
