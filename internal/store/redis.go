package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/paperleague/league-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for asset reads, which dominate valuation and draft-board traffic.
// Price writes invalidate the cached asset; everything else passes through.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{primary: primary, rdb: rdb, ttl: ttl}
}

func assetKey(id string) string      { return fmt.Sprintf("asset:%s", id) }
func tickerKey(ticker string) string { return fmt.Sprintf("asset:ticker:%s", ticker) }

func (s *CachedStore) cacheAsset(ctx context.Context, a *model.Asset) {
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, assetKey(a.ID), data, s.ttl)
		s.rdb.Set(ctx, tickerKey(a.Ticker), a.ID, s.ttl)
	}
}

// InTx runs against the primary store directly; transactional reads must not
// see cached values.
func (s *CachedStore) InTx(ctx context.Context, fn func(Store) error) error {
	return s.primary.InTx(ctx, fn)
}

// --- Cached asset reads ---

func (s *CachedStore) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	if data, err := s.rdb.Get(ctx, assetKey(id)).Bytes(); err == nil {
		var a model.Asset
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}
	a, err := s.primary.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheAsset(ctx, a)
	return a, nil
}

func (s *CachedStore) GetAssetByTicker(ctx context.Context, ticker string) (*model.Asset, error) {
	if id, err := s.rdb.Get(ctx, tickerKey(ticker)).Result(); err == nil {
		return s.GetAsset(ctx, id)
	}
	a, err := s.primary.GetAssetByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}
	s.cacheAsset(ctx, a)
	return a, nil
}

// --- Invalidating asset writes ---

func (s *CachedStore) CreateAsset(ctx context.Context, a *model.Asset) error {
	if err := s.primary.CreateAsset(ctx, a); err != nil {
		return err
	}
	s.cacheAsset(ctx, a)
	return nil
}

func (s *CachedStore) UpdateAssetPrice(ctx context.Context, id string, current, previousClose decimal.Decimal, updatedAt time.Time) error {
	if err := s.primary.UpdateAssetPrice(ctx, id, current, previousClose, updatedAt); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, assetKey(id))
	return nil
}

// --- Passthrough ---

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	return s.primary.CreateUser(ctx, u)
}

func (s *CachedStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.primary.GetUser(ctx, id)
}

func (s *CachedStore) GetUserForUpdate(ctx context.Context, id string) (*model.User, error) {
	return s.primary.GetUserForUpdate(ctx, id)
}

func (s *CachedStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.primary.GetUserByUsername(ctx, username)
}

func (s *CachedStore) UpdateUserLearning(ctx context.Context, id string, dollars decimal.Decimal, completedLessons []string) error {
	return s.primary.UpdateUserLearning(ctx, id, dollars, completedLessons)
}

func (s *CachedStore) ListAssets(ctx context.Context, f AssetFilter) ([]model.Asset, error) {
	return s.primary.ListAssets(ctx, f)
}

func (s *CachedStore) LatestAssetUpdate(ctx context.Context, class string) (time.Time, error) {
	return s.primary.LatestAssetUpdate(ctx, class)
}

func (s *CachedStore) CreateGroup(ctx context.Context, g *model.Group) error {
	return s.primary.CreateGroup(ctx, g)
}

func (s *CachedStore) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	return s.primary.GetGroup(ctx, id)
}

func (s *CachedStore) GetGroupByJoinCode(ctx context.Context, code string) (*model.Group, error) {
	return s.primary.GetGroupByJoinCode(ctx, code)
}

func (s *CachedStore) ListGroupsForUser(ctx context.Context, userID string) ([]model.Group, error) {
	return s.primary.ListGroupsForUser(ctx, userID)
}

func (s *CachedStore) DeleteGroup(ctx context.Context, id string) error {
	return s.primary.DeleteGroup(ctx, id)
}

func (s *CachedStore) AddMembership(ctx context.Context, m *model.Membership) error {
	return s.primary.AddMembership(ctx, m)
}

func (s *CachedStore) GetMembership(ctx context.Context, groupID, userID string) (*model.Membership, error) {
	return s.primary.GetMembership(ctx, groupID, userID)
}

func (s *CachedStore) DeleteMembership(ctx context.Context, groupID, userID string) error {
	return s.primary.DeleteMembership(ctx, groupID, userID)
}

func (s *CachedStore) ListMemberships(ctx context.Context, groupID string) ([]model.Membership, error) {
	return s.primary.ListMemberships(ctx, groupID)
}

func (s *CachedStore) CountMemberships(ctx context.Context, groupID string) (int, error) {
	return s.primary.CountMemberships(ctx, groupID)
}

func (s *CachedStore) CreatePortfolio(ctx context.Context, p *model.Portfolio) error {
	return s.primary.CreatePortfolio(ctx, p)
}

func (s *CachedStore) GetPortfolio(ctx context.Context, groupID, userID string) (*model.Portfolio, error) {
	return s.primary.GetPortfolio(ctx, groupID, userID)
}

func (s *CachedStore) GetPortfolioByID(ctx context.Context, id string) (*model.Portfolio, error) {
	return s.primary.GetPortfolioByID(ctx, id)
}

func (s *CachedStore) GetPortfolioForUpdate(ctx context.Context, groupID, userID string) (*model.Portfolio, error) {
	return s.primary.GetPortfolioForUpdate(ctx, groupID, userID)
}

func (s *CachedStore) ListPortfolios(ctx context.Context) ([]model.Portfolio, error) {
	return s.primary.ListPortfolios(ctx)
}

func (s *CachedStore) ListPortfoliosByUser(ctx context.Context, userID string) ([]model.Portfolio, error) {
	return s.primary.ListPortfoliosByUser(ctx, userID)
}

func (s *CachedStore) UpdatePortfolioBalances(ctx context.Context, id string, cash, savings, bonds, indexFunds decimal.Decimal) error {
	return s.primary.UpdatePortfolioBalances(ctx, id, cash, savings, bonds, indexFunds)
}

func (s *CachedStore) UpdatePortfolioTotalValue(ctx context.Context, id string, total decimal.Decimal) error {
	return s.primary.UpdatePortfolioTotalValue(ctx, id, total)
}

func (s *CachedStore) DeletePortfolio(ctx context.Context, id string) error {
	return s.primary.DeletePortfolio(ctx, id)
}

func (s *CachedStore) CreateHolding(ctx context.Context, h *model.Holding) error {
	return s.primary.CreateHolding(ctx, h)
}

func (s *CachedStore) GetHolding(ctx context.Context, portfolioID, assetID string) (*model.Holding, error) {
	return s.primary.GetHolding(ctx, portfolioID, assetID)
}

func (s *CachedStore) ListHoldings(ctx context.Context, portfolioID string) ([]model.Holding, error) {
	return s.primary.ListHoldings(ctx, portfolioID)
}

func (s *CachedStore) UpdateHoldingPosition(ctx context.Context, id string, shares, averageCost, currentPrice decimal.Decimal) error {
	return s.primary.UpdateHoldingPosition(ctx, id, shares, averageCost, currentPrice)
}

func (s *CachedStore) UpdateHoldingMetrics(ctx context.Context, id string, currentPrice, totalValue, gainLoss, gainLossPercent decimal.Decimal) error {
	return s.primary.UpdateHoldingMetrics(ctx, id, currentPrice, totalValue, gainLoss, gainLossPercent)
}

func (s *CachedStore) UpdateHoldingStatus(ctx context.Context, id, status string) error {
	return s.primary.UpdateHoldingStatus(ctx, id, status)
}

func (s *CachedStore) ReassignHolding(ctx context.Context, id, portfolioID string) error {
	return s.primary.ReassignHolding(ctx, id, portfolioID)
}

func (s *CachedStore) DeleteHolding(ctx context.Context, id string) error {
	return s.primary.DeleteHolding(ctx, id)
}

func (s *CachedStore) InsertTransaction(ctx context.Context, t *model.Transaction) error {
	return s.primary.InsertTransaction(ctx, t)
}

func (s *CachedStore) ListTransactions(ctx context.Context, portfolioID string, limit int) ([]model.Transaction, error) {
	return s.primary.ListTransactions(ctx, portfolioID, limit)
}

func (s *CachedStore) CreateDraftState(ctx context.Context, d *model.DraftState) error {
	return s.primary.CreateDraftState(ctx, d)
}

func (s *CachedStore) GetDraftState(ctx context.Context, groupID string) (*model.DraftState, error) {
	return s.primary.GetDraftState(ctx, groupID)
}

func (s *CachedStore) GetDraftStateForUpdate(ctx context.Context, groupID string) (*model.DraftState, error) {
	return s.primary.GetDraftStateForUpdate(ctx, groupID)
}

func (s *CachedStore) UpdateDraftState(ctx context.Context, d *model.DraftState) error {
	return s.primary.UpdateDraftState(ctx, d)
}

func (s *CachedStore) InsertDraftPick(ctx context.Context, p *model.DraftPick) error {
	return s.primary.InsertDraftPick(ctx, p)
}

func (s *CachedStore) ListDraftPicks(ctx context.Context, draftStateID string) ([]model.DraftPick, error) {
	return s.primary.ListDraftPicks(ctx, draftStateID)
}

func (s *CachedStore) InsertMatchup(ctx context.Context, m *model.Matchup) error {
	return s.primary.InsertMatchup(ctx, m)
}

func (s *CachedStore) ListMatchups(ctx context.Context, groupID string) ([]model.Matchup, error) {
	return s.primary.ListMatchups(ctx, groupID)
}

func (s *CachedStore) MatchupByWeek(ctx context.Context, groupID, userID string, week int) (*model.Matchup, error) {
	return s.primary.MatchupByWeek(ctx, groupID, userID, week)
}

func (s *CachedStore) UpdateMatchupScores(ctx context.Context, id string, user1Score, user2Score decimal.Decimal, status string) error {
	return s.primary.UpdateMatchupScores(ctx, id, user1Score, user2Score, status)
}

func (s *CachedStore) InsertTradeOffer(ctx context.Context, o *model.TradeOffer) error {
	return s.primary.InsertTradeOffer(ctx, o)
}

func (s *CachedStore) GetTradeOffer(ctx context.Context, id string) (*model.TradeOffer, error) {
	return s.primary.GetTradeOffer(ctx, id)
}

func (s *CachedStore) GetTradeOfferForUpdate(ctx context.Context, id string) (*model.TradeOffer, error) {
	return s.primary.GetTradeOfferForUpdate(ctx, id)
}

func (s *CachedStore) ListTradeOffers(ctx context.Context, groupID, userID string) ([]model.TradeOffer, error) {
	return s.primary.ListTradeOffers(ctx, groupID, userID)
}

func (s *CachedStore) UpdateTradeOfferStatus(ctx context.Context, id, status string, respondedAt time.Time) error {
	return s.primary.UpdateTradeOfferStatus(ctx, id, status, respondedAt)
}

func (s *CachedStore) InsertWaiverClaim(ctx context.Context, c *model.WaiverClaim) error {
	return s.primary.InsertWaiverClaim(ctx, c)
}

func (s *CachedStore) ListWaiverClaims(ctx context.Context, groupID string) ([]model.WaiverClaim, error) {
	return s.primary.ListWaiverClaims(ctx, groupID)
}

func (s *CachedStore) NextWaiverPriority(ctx context.Context, groupID string) (int, error) {
	return s.primary.NextWaiverPriority(ctx, groupID)
}

func (s *CachedStore) InsertNotification(ctx context.Context, n *model.Notification) error {
	return s.primary.InsertNotification(ctx, n)
}

func (s *CachedStore) ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	return s.primary.ListNotifications(ctx, userID, limit)
}

func (s *CachedStore) MarkNotificationRead(ctx context.Context, id string) error {
	return s.primary.MarkNotificationRead(ctx, id)
}
