package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wfunc/duel-game/internal/duel"
	apperrors "github.com/wfunc/duel-game/internal/errors"
	"github.com/wfunc/duel-game/internal/models"
	"gorm.io/gorm"
)

// DuelArchive 基于数据库的对局归档，实现 duel.Archive
type DuelArchive struct {
	lobbies LobbyRepository
	matches MatchRepository
	offers  RematchRepository
}

// NewDuelArchive 创建数据库归档
func NewDuelArchive(db *gorm.DB) *DuelArchive {
	return &DuelArchive{
		lobbies: NewLobbyRepository(db),
		matches: NewMatchRepository(db),
		offers:  NewRematchRepository(db),
	}
}

// SaveLobby 保存大厅快照
func (a *DuelArchive) SaveLobby(ctx context.Context, lobby duel.LobbySnapshot) error {
	return a.lobbies.Upsert(ctx, LobbyToRecord(lobby))
}

// SaveMatch 保存对局快照
func (a *DuelArchive) SaveMatch(ctx context.Context, match duel.MatchSnapshot) error {
	rec, err := MatchToRecord(match)
	if err != nil {
		return err
	}
	return a.matches.Upsert(ctx, rec)
}

// SaveOffer 保存邀请快照
func (a *DuelArchive) SaveOffer(ctx context.Context, offer duel.OfferSnapshot) error {
	return a.offers.Upsert(ctx, OfferToRecord(offer))
}

// FindLobby 查询大厅
func (a *DuelArchive) FindLobby(ctx context.Context, lobbyID string) (duel.LobbySnapshot, error) {
	rec, err := a.lobbies.FindByLobbyID(ctx, lobbyID)
	if err != nil {
		return duel.LobbySnapshot{}, err
	}
	return LobbyFromRecord(rec)
}

// FindMatch 查询对局
func (a *DuelArchive) FindMatch(ctx context.Context, matchID string) (duel.MatchSnapshot, error) {
	rec, err := a.matches.FindByMatchID(ctx, matchID)
	if err != nil {
		return duel.MatchSnapshot{}, err
	}
	return MatchFromRecord(rec)
}

// FindOffer 查询邀请
func (a *DuelArchive) FindOffer(ctx context.Context, offerID string) (duel.OfferSnapshot, error) {
	rec, err := a.offers.FindByOfferID(ctx, offerID)
	if err != nil {
		return duel.OfferSnapshot{}, err
	}
	return OfferFromRecord(rec)
}

// FindAcceptedOffer 查询源对局已接受的邀请
func (a *DuelArchive) FindAcceptedOffer(ctx context.Context, sourceMatchID string) (duel.OfferSnapshot, error) {
	recs, err := a.offers.FindBySourceMatch(ctx, sourceMatchID)
	if err != nil {
		return duel.OfferSnapshot{}, err
	}
	accepted := duel.OfferAccepted.String()
	for _, rec := range recs {
		if rec.State == accepted {
			return OfferFromRecord(rec)
		}
	}
	return duel.OfferSnapshot{}, apperrors.New(apperrors.ErrOfferNotFound, sourceMatchID)
}

// LobbyToRecord 大厅快照转数据库记录
func LobbyToRecord(l duel.LobbySnapshot) *models.LobbyRecord {
	return &models.LobbyRecord{
		LobbyID:   l.ID,
		CreatorID: l.CreatorID,
		JoinerID:  l.JoinerID,
		Amount:    l.Stake.Amount,
		Currency:  l.Stake.Currency,
		Faction:   l.Faction.String(),
		MaxWait:   l.MaxWaitSeconds(),
		State:     l.State.String(),
		MatchID:   l.MatchID,
		OpenedAt:  l.CreatedAt,
		ExpiresAt: l.ExpiresAt,
		ClosedAt:  timePtr(l.ClosedAt),
	}
}

// LobbyFromRecord 数据库记录转大厅快照
func LobbyFromRecord(rec *models.LobbyRecord) (duel.LobbySnapshot, error) {
	faction, err := duel.ParseFaction(rec.Faction)
	if err != nil {
		return duel.LobbySnapshot{}, apperrors.Wrap(err, apperrors.ErrDataIntegrity, rec.LobbyID)
	}
	state, ok := duel.ParseLobbyState(rec.State)
	if !ok {
		return duel.LobbySnapshot{}, apperrors.Newf(apperrors.ErrDataIntegrity, "大厅 %s 状态异常: %q", rec.LobbyID, rec.State)
	}
	return duel.LobbySnapshot{
		ID:        rec.LobbyID,
		CreatorID: rec.CreatorID,
		JoinerID:  rec.JoinerID,
		Stake:     duel.Stake{Amount: rec.Amount, Currency: rec.Currency},
		Faction:   faction,
		MaxWait:   time.Duration(rec.MaxWait) * time.Second,
		State:     state,
		MatchID:   rec.MatchID,
		CreatedAt: rec.OpenedAt,
		ExpiresAt: rec.ExpiresAt,
		ClosedAt:  timeValue(rec.ClosedAt),
	}, nil
}

// MatchToRecord 对局快照转数据库记录，出招槽位以JSON保存
func MatchToRecord(m duel.MatchSnapshot) (*models.MatchRecord, error) {
	slots, err := json.Marshal(m.Slots)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDataIntegrity, m.ID)
	}
	rec := &models.MatchRecord{
		MatchID:        m.ID,
		LobbyID:        m.LobbyID,
		SourceMatchID:  m.SourceMatchID,
		Round:          m.Round,
		PlayerA:        m.Players[0],
		PlayerB:        m.Players[1],
		Amount:         m.Stake.Amount,
		Currency:       m.Stake.Currency,
		State:          m.State.String(),
		SlotData:       string(slots),
		StartedAt:      m.CreatedAt,
		MoveDeadline:   m.MoveDeadline,
		RevealDeadline: timePtr(m.RevealDeadline),
	}
	if m.Outcome != nil {
		rec.Winner = m.Outcome.Winner.String()
		rec.WinnerID = m.Outcome.WinnerID
		rec.ResolvedAt = timePtr(m.Outcome.ResolvedAt)
	}
	return rec, nil
}

// MatchFromRecord 数据库记录转对局快照
func MatchFromRecord(rec *models.MatchRecord) (duel.MatchSnapshot, error) {
	state, ok := duel.ParseMatchState(rec.State)
	if !ok {
		return duel.MatchSnapshot{}, apperrors.Newf(apperrors.ErrDataIntegrity, "对局 %s 状态异常: %q", rec.MatchID, rec.State)
	}
	m := duel.MatchSnapshot{
		ID:             rec.MatchID,
		LobbyID:        rec.LobbyID,
		SourceMatchID:  rec.SourceMatchID,
		Round:          rec.Round,
		Players:        [2]string{rec.PlayerA, rec.PlayerB},
		Stake:          duel.Stake{Amount: rec.Amount, Currency: rec.Currency},
		State:          state,
		MoveDeadline:   rec.MoveDeadline,
		RevealDeadline: timeValue(rec.RevealDeadline),
		CreatedAt:      rec.StartedAt,
	}
	if rec.SlotData != "" {
		if err := json.Unmarshal([]byte(rec.SlotData), &m.Slots); err != nil {
			return duel.MatchSnapshot{}, apperrors.Wrap(err, apperrors.ErrDataIntegrity, rec.MatchID)
		}
	}
	if state == duel.MatchResolved {
		winner, err := duel.ParseWinner(rec.Winner)
		if err != nil {
			return duel.MatchSnapshot{}, apperrors.Wrap(err, apperrors.ErrDataIntegrity, rec.MatchID)
		}
		outcome := &duel.Outcome{
			Winner:     winner,
			WinnerID:   rec.WinnerID,
			MoveA:      m.Slots[0].Move,
			MoveB:      m.Slots[1].Move,
			ResolvedAt: timeValue(rec.ResolvedAt),
		}
		if m.Slots[0].Forfeited {
			outcome.MoveA = duel.MoveNone
		}
		if m.Slots[1].Forfeited {
			outcome.MoveB = duel.MoveNone
		}
		m.Outcome = outcome
	}
	return m, nil
}

// OfferToRecord 邀请快照转数据库记录
func OfferToRecord(o duel.OfferSnapshot) *models.RematchRecord {
	return &models.RematchRecord{
		OfferID:       o.ID,
		SourceMatchID: o.SourceMatchID,
		OfferedBy:     o.OfferedBy,
		Recipient:     o.Recipient,
		PlayerA:       o.Players[0],
		PlayerB:       o.Players[1],
		FactionA:      o.Factions[0].String(),
		FactionB:      o.Factions[1].String(),
		Amount:        o.Stake.Amount,
		Currency:      o.Stake.Currency,
		Round:         o.Round,
		State:         o.State.String(),
		NewMatchID:    o.NewMatchID,
		OfferedAt:     o.CreatedAt,
		ExpiresAt:     o.ExpiresAt,
		RespondedAt:   timePtr(o.RespondedAt),
	}
}

// OfferFromRecord 数据库记录转邀请快照
func OfferFromRecord(rec *models.RematchRecord) (duel.OfferSnapshot, error) {
	state, ok := duel.ParseOfferState(rec.State)
	if !ok {
		return duel.OfferSnapshot{}, apperrors.Newf(apperrors.ErrDataIntegrity, "邀请 %s 状态异常: %q", rec.OfferID, rec.State)
	}
	factionA, err := duel.ParseFaction(rec.FactionA)
	if err != nil {
		return duel.OfferSnapshot{}, apperrors.Wrap(err, apperrors.ErrDataIntegrity, rec.OfferID)
	}
	factionB, err := duel.ParseFaction(rec.FactionB)
	if err != nil {
		return duel.OfferSnapshot{}, apperrors.Wrap(err, apperrors.ErrDataIntegrity, rec.OfferID)
	}
	return duel.OfferSnapshot{
		ID:            rec.OfferID,
		SourceMatchID: rec.SourceMatchID,
		OfferedBy:     rec.OfferedBy,
		Recipient:     rec.Recipient,
		Players:       [2]string{rec.PlayerA, rec.PlayerB},
		Factions:      [2]duel.Faction{factionA, factionB},
		Stake:         duel.Stake{Amount: rec.Amount, Currency: rec.Currency},
		Round:         rec.Round,
		State:         state,
		NewMatchID:    rec.NewMatchID,
		CreatedAt:     rec.OfferedAt,
		ExpiresAt:     rec.ExpiresAt,
		RespondedAt:   timeValue(rec.RespondedAt),
	}, nil
}

// SettlementToRecord 结算请求转发件箱记录
func SettlementToRecord(req duel.SettlementRequest) *models.SettlementRecord {
	return &models.SettlementRecord{
		MatchID:    req.MatchID,
		Round:      req.Round,
		PlayerA:    req.PlayerA,
		PlayerB:    req.PlayerB,
		Currency:   req.Stake.Currency,
		Stake:      req.Stake.Amount,
		Winner:     req.Winner.String(),
		WinnerID:   req.WinnerID,
		PayoutA:    req.PayoutA,
		PayoutB:    req.PayoutB,
		Fee:        req.Fee,
		Status:     models.SettlementPending,
		ResolvedAt: req.ResolvedAt,
	}
}

// SettlementOutbox 把结算请求写入发件箱表，实现 duel.Settler。
// 同一对局重复提交只保留第一条
type SettlementOutbox struct {
	repo SettlementRepository
}

// NewSettlementOutbox 创建结算发件箱
func NewSettlementOutbox(db *gorm.DB) *SettlementOutbox {
	return &SettlementOutbox{repo: NewSettlementRepository(db)}
}

// Settle 实现 duel.Settler
func (o *SettlementOutbox) Settle(ctx context.Context, req duel.SettlementRequest) error {
	_, err := o.repo.CreateIfAbsent(ctx, SettlementToRecord(req))
	return err
}

// Repository 返回底层仓储
func (o *SettlementOutbox) Repository() SettlementRepository {
	return o.repo
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeValue(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
