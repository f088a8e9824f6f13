package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/duel-game/internal/duel"
	apperrors "github.com/wfunc/duel-game/internal/errors"
	"github.com/wfunc/duel-game/internal/middleware"
	"github.com/wfunc/duel-game/internal/repository"
	"github.com/wfunc/duel-game/internal/utils"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code apperrors.ErrorCode `json:"code"`
	} `json:"error"`
}

type lobbyBody struct {
	ID             string `json:"id"`
	CreatorID      string `json:"creator_id"`
	State          string `json:"state"`
	Faction        string `json:"faction"`
	MatchID        string `json:"match_id"`
	MaxWaitSeconds int64  `json:"max_wait_seconds"`
	Stake          struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	} `json:"stake"`
}

type matchBody struct {
	ID      string    `json:"id"`
	State   string    `json:"state"`
	Players [2]string `json:"players"`
	Slots   [2]struct {
		PlayerID   string `json:"player_id"`
		Commitment string `json:"commitment"`
		Move       string `json:"move"`
	} `json:"slots"`
	Outcome *struct {
		Winner   string `json:"winner"`
		WinnerID string `json:"winner_id"`
	} `json:"outcome"`
}

type offerBody struct {
	ID         string `json:"id"`
	Recipient  string `json:"recipient"`
	State      string `json:"state"`
	NewMatchID string `json:"new_match_id"`
}

type RouterTestSuite struct {
	suite.Suite
	router *Router
	engine *duel.Engine
	jwt    *utils.JWTManager
	tokens map[string]string
}

func (s *RouterTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	db := repository.TestDB(s.T())
	repos := repository.NewManager(db)

	mock := clock.NewMock()
	mock.Set(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	engine, err := duel.NewEngine(duel.DefaultRules(),
		duel.WithClock(mock),
		duel.WithArchive(repos.Archive()),
		duel.WithSettler(repos.Outbox()))
	s.Require().NoError(err)
	s.T().Cleanup(engine.Close)
	s.engine = engine

	s.jwt = utils.NewJWTManager("secret", "duel-identity")
	s.tokens = make(map[string]string)
	for _, p := range []string{"alice", "bob", "carol"} {
		token, err := s.jwt.GenerateToken(p, time.Hour)
		s.Require().NoError(err)
		s.tokens[p] = token
	}

	s.router = NewRouter(Deps{
		Duel:  engine,
		Repos: repos,
		DB:    db,
		Auth:  middleware.NewAuthMiddleware(s.jwt),
	})
}

func (s *RouterTestSuite) do(method, path, player string, body interface{}) (int, envelope) {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if player != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[player])
	}
	w := httptest.NewRecorder()
	s.router.GetEngine().ServeHTTP(w, req)

	var env envelope
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (s *RouterTestSuite) decode(env envelope, out interface{}) {
	s.Require().True(env.Success)
	s.Require().NoError(json.Unmarshal(env.Data, out))
}

func (s *RouterTestSuite) assertError(status int, env envelope, wantStatus int, wantCode apperrors.ErrorCode) {
	s.Equal(wantStatus, status)
	s.False(env.Success)
	s.Require().NotNil(env.Error)
	s.Equal(wantCode, env.Error.Code)
}

func (s *RouterTestSuite) createLobby(player string) lobbyBody {
	status, env := s.do(http.MethodPost, "/api/v1/lobbies", player, gin.H{
		"amount":           "2.5",
		"currency":         "usdt",
		"faction":          "wizard",
		"max_wait_seconds": 300,
	})
	s.Require().Equal(http.StatusCreated, status)
	var lobby lobbyBody
	s.decode(env, &lobby)
	return lobby
}

func (s *RouterTestSuite) commit(matchID, player string, move duel.Move) string {
	nonce, err := duel.NewNonce()
	s.Require().NoError(err)
	commitment, err := duel.Commit(move, nonce)
	s.Require().NoError(err)

	status, _ := s.do(http.MethodPost, "/api/v1/matches/"+matchID+"/commit", player, gin.H{"commitment": commitment})
	s.Require().Equal(http.StatusOK, status)
	return nonce
}

// playMatch 完整打完一局：alice 出布，bob 出石头
func (s *RouterTestSuite) playMatch() matchBody {
	lobby := s.createLobby("alice")
	status, env := s.do(http.MethodPost, "/api/v1/lobbies/"+lobby.ID+"/join", "bob", nil)
	s.Require().Equal(http.StatusCreated, status)
	var match matchBody
	s.decode(env, &match)

	aliceNonce := s.commit(match.ID, "alice", duel.MovePaper)
	bobNonce := s.commit(match.ID, "bob", duel.MoveRock)

	status, _ = s.do(http.MethodPost, "/api/v1/matches/"+match.ID+"/reveal", "alice", gin.H{"move": "paper", "nonce": aliceNonce})
	s.Require().Equal(http.StatusOK, status)
	status, env = s.do(http.MethodPost, "/api/v1/matches/"+match.ID+"/reveal", "bob", gin.H{"move": "rock", "nonce": bobNonce})
	s.Require().Equal(http.StatusOK, status)

	s.decode(env, &match)
	return match
}

func (s *RouterTestSuite) TestHealth() {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.GetEngine().ServeHTTP(w, req)

	s.Equal(http.StatusOK, w.Code)
	var body struct {
		Status string     `json:"status"`
		Duel   duel.Stats `json:"duel"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Equal("healthy", body.Status)
	s.Equal(0, body.Duel.OpenLobbies)
}

func (s *RouterTestSuite) TestRequiresAuth() {
	status, env := s.do(http.MethodGet, "/api/v1/lobbies", "", nil)
	s.assertError(status, env, http.StatusUnauthorized, apperrors.ErrAuthentication)
}

func (s *RouterTestSuite) TestUnknownRoute() {
	status, env := s.do(http.MethodGet, "/nope", "", nil)
	s.assertError(status, env, http.StatusNotFound, apperrors.ErrNotFound)
}

func (s *RouterTestSuite) TestCreateLobby() {
	lobby := s.createLobby("alice")

	s.Equal("alice", lobby.CreatorID)
	s.Equal("open", lobby.State)
	s.Equal("wizard", lobby.Faction)
	s.Equal("USDT", lobby.Stake.Currency)
	s.Equal("2.5", lobby.Stake.Amount)
	s.Equal(int64(300), lobby.MaxWaitSeconds)

	status, env := s.do(http.MethodGet, "/api/v1/lobbies?currency=USDT", "bob", nil)
	s.Equal(http.StatusOK, status)
	var lobbies []lobbyBody
	s.decode(env, &lobbies)
	s.Require().Len(lobbies, 1)
	s.Equal(lobby.ID, lobbies[0].ID)

	status, env = s.do(http.MethodGet, "/api/v1/lobbies?currency=ETH", "bob", nil)
	s.Equal(http.StatusOK, status)
	s.decode(env, &lobbies)
	s.Empty(lobbies)
}

func (s *RouterTestSuite) TestCreateLobby_Validation() {
	tests := []struct {
		name string
		body gin.H
		code apperrors.ErrorCode
	}{
		{"missing fields", gin.H{"amount": "1"}, apperrors.ErrInvalidParam},
		{"bad amount", gin.H{"amount": "abc", "currency": "USDT", "faction": "wizard", "max_wait_seconds": 300}, apperrors.ErrInvalidStake},
		{"bad faction", gin.H{"amount": "1", "currency": "USDT", "faction": "dragon", "max_wait_seconds": 300}, apperrors.ErrInvalidFaction},
		{"bad wait", gin.H{"amount": "1", "currency": "USDT", "faction": "puppet", "max_wait_seconds": 7}, apperrors.ErrInvalidWait},
		{"below minimum", gin.H{"amount": "0.01", "currency": "USDT", "faction": "puppet", "max_wait_seconds": 300}, apperrors.ErrInvalidStake},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			status, env := s.do(http.MethodPost, "/api/v1/lobbies", "alice", tt.body)
			s.assertError(status, env, http.StatusBadRequest, tt.code)
		})
	}
}

func (s *RouterTestSuite) TestJoinAndCancelErrors() {
	lobby := s.createLobby("alice")

	status, env := s.do(http.MethodPost, "/api/v1/lobbies/"+lobby.ID+"/join", "alice", nil)
	s.assertError(status, env, http.StatusForbidden, apperrors.ErrSelfJoinForbidden)

	status, env = s.do(http.MethodDelete, "/api/v1/lobbies/"+lobby.ID, "bob", nil)
	s.assertError(status, env, http.StatusForbidden, apperrors.ErrNotLobbyCreator)

	status, env = s.do(http.MethodDelete, "/api/v1/lobbies/"+lobby.ID, "alice", nil)
	s.Equal(http.StatusOK, status)
	var cancelled lobbyBody
	s.decode(env, &cancelled)
	s.Equal("cancelled", cancelled.State)

	status, env = s.do(http.MethodPost, "/api/v1/lobbies/"+lobby.ID+"/join", "bob", nil)
	s.assertError(status, env, http.StatusConflict, apperrors.ErrLobbyCancelled)

	status, env = s.do(http.MethodGet, "/api/v1/lobbies/missing", "bob", nil)
	s.assertError(status, env, http.StatusNotFound, apperrors.ErrLobbyNotFound)
}

func (s *RouterTestSuite) TestMatchFlow() {
	lobby := s.createLobby("alice")
	status, env := s.do(http.MethodPost, "/api/v1/lobbies/"+lobby.ID+"/join", "bob", nil)
	s.Require().Equal(http.StatusCreated, status)
	var match matchBody
	s.decode(env, &match)
	s.Equal("awaiting_moves", match.State)
	s.Equal([2]string{"alice", "bob"}, match.Players)

	aliceNonce := s.commit(match.ID, "alice", duel.MovePaper)

	// 重复提交
	status, env = s.do(http.MethodPost, "/api/v1/matches/"+match.ID+"/commit", "alice", gin.H{"commitment": "00"})
	s.Equal(http.StatusConflict, status)
	s.False(env.Success)

	status, env = s.do(http.MethodPost, "/api/v1/matches/"+match.ID+"/commit", "carol", gin.H{"commitment": "00"})
	s.assertError(status, env, http.StatusForbidden, apperrors.ErrNotAParticipant)

	bobNonce := s.commit(match.ID, "bob", duel.MoveRock)

	status, env = s.do(http.MethodPost, "/api/v1/matches/"+match.ID+"/reveal", "alice", gin.H{"move": "paper", "nonce": aliceNonce})
	s.Require().Equal(http.StatusOK, status)
	s.decode(env, &match)
	s.Equal("revealing", match.State)
	s.Equal("paper", match.Slots[0].Move)

	// 结算前 bob 看不到 alice 的出招
	status, env = s.do(http.MethodGet, "/api/v1/matches/"+match.ID, "bob", nil)
	s.Require().Equal(http.StatusOK, status)
	s.decode(env, &match)
	s.Empty(match.Slots[0].Move)
	s.NotEmpty(match.Slots[0].Commitment)

	// 揭示内容与承诺不符
	status, env = s.do(http.MethodPost, "/api/v1/matches/"+match.ID+"/reveal", "bob", gin.H{"move": "fire", "nonce": bobNonce})
	s.assertError(status, env, http.StatusConflict, apperrors.ErrCommitRevealMismatch)

	status, env = s.do(http.MethodPost, "/api/v1/matches/"+match.ID+"/reveal", "bob", gin.H{"move": "rock", "nonce": bobNonce})
	s.Require().Equal(http.StatusOK, status)
	s.decode(env, &match)
	s.Equal("resolved", match.State)
	s.Require().NotNil(match.Outcome)
	s.Equal("a", match.Outcome.Winner)
	s.Equal("alice", match.Outcome.WinnerID)

	status, env = s.do(http.MethodGet, "/api/v1/matches/missing", "bob", nil)
	s.assertError(status, env, http.StatusNotFound, apperrors.ErrMatchNotFound)
}

func (s *RouterTestSuite) TestHistoryAndStats() {
	match := s.playMatch()

	status, env := s.do(http.MethodGet, "/api/v1/matches?page=1&page_size=10", "alice", nil)
	s.Require().Equal(http.StatusOK, status)
	var history struct {
		Matches    []matchBody           `json:"matches"`
		Pagination repository.Pagination `json:"pagination"`
	}
	s.decode(env, &history)
	s.Equal(int64(1), history.Pagination.Total)
	s.Require().Len(history.Matches, 1)
	s.Equal(match.ID, history.Matches[0].ID)
	s.Equal("paper", history.Matches[0].Slots[0].Move)

	status, env = s.do(http.MethodGet, "/api/v1/players/me/stats", "bob", nil)
	s.Require().Equal(http.StatusOK, status)
	var stats repository.PlayerStats
	s.decode(env, &stats)
	s.Equal(int64(1), stats.TotalMatches)
	s.Equal(int64(1), stats.Losses)
	s.Equal(int64(0), stats.Wins)

	s.createLobby("alice")
	status, env = s.do(http.MethodGet, "/api/v1/players/me/lobbies?page_size=10", "alice", nil)
	s.Require().Equal(http.StatusOK, status)
	var lobbies struct {
		Lobbies    []lobbyBody           `json:"lobbies"`
		Pagination repository.Pagination `json:"pagination"`
	}
	s.decode(env, &lobbies)
	s.Equal(int64(2), lobbies.Pagination.Total)
	s.Require().Len(lobbies.Lobbies, 2)
	states := []string{lobbies.Lobbies[0].State, lobbies.Lobbies[1].State}
	s.ElementsMatch([]string{"open", "matched"}, states)
	s.Equal(int64(300), lobbies.Lobbies[0].MaxWaitSeconds)

	status, env = s.do(http.MethodGet, "/api/v1/players/me/lobbies", "bob", nil)
	s.Require().Equal(http.StatusOK, status)
	s.decode(env, &lobbies)
	s.Empty(lobbies.Lobbies)
}

func (s *RouterTestSuite) TestRematch() {
	match := s.playMatch()

	status, env := s.do(http.MethodPost, "/api/v1/matches/"+match.ID+"/rematch", "alice", nil)
	s.Require().Equal(http.StatusCreated, status)
	var offer offerBody
	s.decode(env, &offer)
	s.Equal("bob", offer.Recipient)
	s.Equal("pending", offer.State)

	status, env = s.do(http.MethodPost, "/api/v1/rematches/"+offer.ID+"/respond", "bob", gin.H{})
	s.assertError(status, env, http.StatusBadRequest, apperrors.ErrInvalidParam)

	status, env = s.do(http.MethodPost, "/api/v1/rematches/"+offer.ID+"/respond", "alice", gin.H{"accept": true})
	s.assertError(status, env, http.StatusForbidden, apperrors.ErrNotOfferRecipient)

	status, env = s.do(http.MethodPost, "/api/v1/rematches/"+offer.ID+"/respond", "bob", gin.H{"accept": true})
	s.Require().Equal(http.StatusOK, status)
	s.decode(env, &offer)
	s.Equal("accepted", offer.State)
	s.Require().NotEmpty(offer.NewMatchID)

	status, env = s.do(http.MethodGet, "/api/v1/matches/"+offer.NewMatchID, "alice", nil)
	s.Require().Equal(http.StatusOK, status)
	var next matchBody
	s.decode(env, &next)
	s.Equal("awaiting_moves", next.State)

	// 源对局已开启过再战
	status, env = s.do(http.MethodPost, "/api/v1/matches/"+match.ID+"/rematch", "bob", nil)
	s.assertError(status, env, http.StatusConflict, apperrors.ErrOfferAlreadyResolved)

	status, env = s.do(http.MethodGet, "/api/v1/rematches/"+offer.ID, "alice", nil)
	s.Require().Equal(http.StatusOK, status)
	s.decode(env, &offer)
	s.Equal("accepted", offer.State)
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}
