package duel

import (
	"context"
	"sync"

	apperrors "github.com/wfunc/duel-game/internal/errors"
)

// Archive 实体快照归档。引擎在每次状态转换后写入，
// 实体移出内存后通过归档查询
type Archive interface {
	SaveLobby(ctx context.Context, lobby LobbySnapshot) error
	SaveMatch(ctx context.Context, match MatchSnapshot) error
	SaveOffer(ctx context.Context, offer OfferSnapshot) error
	FindLobby(ctx context.Context, lobbyID string) (LobbySnapshot, error)
	FindMatch(ctx context.Context, matchID string) (MatchSnapshot, error)
	FindOffer(ctx context.Context, offerID string) (OfferSnapshot, error)
	// FindAcceptedOffer 源对局已被接受的再战邀请，没有时返回 ErrOfferNotFound
	FindAcceptedOffer(ctx context.Context, sourceMatchID string) (OfferSnapshot, error)
}

// MemoryArchive 内存归档（用于测试和无数据库部署）
type MemoryArchive struct {
	mu      sync.RWMutex
	lobbies map[string]LobbySnapshot
	matches map[string]MatchSnapshot
	offers  map[string]OfferSnapshot
}

// NewMemoryArchive 创建内存归档
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{
		lobbies: make(map[string]LobbySnapshot),
		matches: make(map[string]MatchSnapshot),
		offers:  make(map[string]OfferSnapshot),
	}
}

// SaveLobby 保存大厅快照
func (a *MemoryArchive) SaveLobby(ctx context.Context, lobby LobbySnapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lobbies[lobby.ID] = lobby
	return nil
}

// SaveMatch 保存对局快照
func (a *MemoryArchive) SaveMatch(ctx context.Context, match MatchSnapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if match.Outcome != nil {
		o := *match.Outcome
		match.Outcome = &o
	}
	a.matches[match.ID] = match
	return nil
}

// SaveOffer 保存邀请快照
func (a *MemoryArchive) SaveOffer(ctx context.Context, offer OfferSnapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.offers[offer.ID] = offer
	return nil
}

// FindLobby 查询大厅
func (a *MemoryArchive) FindLobby(ctx context.Context, lobbyID string) (LobbySnapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	lobby, ok := a.lobbies[lobbyID]
	if !ok {
		return LobbySnapshot{}, apperrors.New(apperrors.ErrLobbyNotFound, lobbyID)
	}
	return lobby, nil
}

// FindMatch 查询对局
func (a *MemoryArchive) FindMatch(ctx context.Context, matchID string) (MatchSnapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	match, ok := a.matches[matchID]
	if !ok {
		return MatchSnapshot{}, apperrors.New(apperrors.ErrMatchNotFound, matchID)
	}
	return match, nil
}

// FindOffer 查询邀请
func (a *MemoryArchive) FindOffer(ctx context.Context, offerID string) (OfferSnapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	offer, ok := a.offers[offerID]
	if !ok {
		return OfferSnapshot{}, apperrors.New(apperrors.ErrOfferNotFound, offerID)
	}
	return offer, nil
}

// FindAcceptedOffer 查询源对局已接受的邀请
func (a *MemoryArchive) FindAcceptedOffer(ctx context.Context, sourceMatchID string) (OfferSnapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, offer := range a.offers {
		if offer.SourceMatchID == sourceMatchID && offer.State == OfferAccepted {
			return offer, nil
		}
	}
	return OfferSnapshot{}, apperrors.New(apperrors.ErrOfferNotFound, sourceMatchID)
}
