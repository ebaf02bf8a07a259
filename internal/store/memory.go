package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paperleague/league-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence, and InTx only
// serializes — a failed fn is not rolled back).
type MemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	users      map[string]*model.User
	assets     map[string]*model.Asset
	groups     map[string]*model.Group
	members    []model.Membership
	portfolios map[string]*model.Portfolio
	holdings   map[string]*model.Holding
	ledger     []model.Transaction
	drafts     map[string]*model.DraftState // keyed by group ID
	picks      []model.DraftPick
	matchups   map[string]*model.Matchup
	offers     map[string]*model.TradeOffer
	claims     []model.WaiverClaim
	notifs     []*model.Notification
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]*model.User),
		assets:     make(map[string]*model.Asset),
		groups:     make(map[string]*model.Group),
		portfolios: make(map[string]*model.Portfolio),
		holdings:   make(map[string]*model.Holding),
		drafts:     make(map[string]*model.DraftState),
		matchups:   make(map[string]*model.Matchup),
		offers:     make(map[string]*model.TradeOffer),
	}
}

// InTx serializes transactional sections against each other. Row locking is
// approximated by the single transaction mutex.
func (s *MemoryStore) InTx(_ context.Context, fn func(Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(s)
}

// --- Users ---

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return ErrConflict
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUserForUpdate(ctx context.Context, id string) (*model.User, error) {
	// Locking is provided by InTx serialization.
	return s.GetUser(ctx, id)
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateUserLearning(_ context.Context, id string, dollars decimal.Decimal, completedLessons []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.LearningDollars = dollars
	u.CompletedLessons = append([]string(nil), completedLessons...)
	return nil
}

// --- Assets ---

func (s *MemoryStore) CreateAsset(_ context.Context, a *model.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.assets {
		if existing.Ticker == a.Ticker {
			return ErrConflict
		}
	}
	cp := *a
	s.assets[a.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAsset(_ context.Context, id string) (*model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) GetAssetByTicker(_ context.Context, ticker string) (*model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.assets {
		if a.Ticker == ticker {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f AssetFilter) matches(a *model.Asset) bool {
	if f.ActiveOnly && !a.IsActive {
		return false
	}
	if len(f.Classes) > 0 {
		ok := false
		for _, c := range f.Classes {
			if a.Class == c {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.MinPrice != nil && a.CurrentPrice.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && a.CurrentPrice.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(a.Ticker), q) &&
			!strings.Contains(strings.ToLower(a.Name), q) {
			return false
		}
	}
	for _, id := range f.ExcludeIDs {
		if a.ID == id {
			return false
		}
	}
	return true
}

func (s *MemoryStore) ListAssets(_ context.Context, f AssetFilter) ([]model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var assets []model.Asset
	for _, a := range s.assets {
		if f.matches(a) {
			assets = append(assets, *a)
		}
	}
	sort.Slice(assets, func(i, j int) bool {
		if assets[i].Tier != assets[j].Tier {
			return assets[i].Tier < assets[j].Tier
		}
		return assets[i].CurrentPrice.GreaterThan(assets[j].CurrentPrice)
	})
	if f.Limit > 0 && len(assets) > f.Limit {
		assets = assets[:f.Limit]
	}
	return assets, nil
}

func (s *MemoryStore) UpdateAssetPrice(_ context.Context, id string, current, previousClose decimal.Decimal, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return ErrNotFound
	}
	a.CurrentPrice = current
	a.PreviousClose = previousClose
	a.UpdatedAt = updatedAt
	return nil
}

func (s *MemoryStore) LatestAssetUpdate(_ context.Context, class string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest time.Time
	for _, a := range s.assets {
		if a.IsActive && a.Class == class && a.UpdatedAt.After(latest) {
			latest = a.UpdatedAt
		}
	}
	return latest, nil
}

// --- Groups and memberships ---

func (s *MemoryStore) CreateGroup(_ context.Context, g *model.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.groups {
		if existing.JoinCode == g.JoinCode {
			return ErrConflict
		}
	}
	cp := *g
	s.groups[g.ID] = &cp
	return nil
}

func (s *MemoryStore) GetGroup(_ context.Context, id string) (*model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *MemoryStore) GetGroupByJoinCode(_ context.Context, code string) (*model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.JoinCode == code {
			cp := *g
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListGroupsForUser(_ context.Context, userID string) ([]model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var groups []model.Group
	for _, g := range s.groups {
		if g.AdminUserID == userID {
			groups = append(groups, *g)
			seen[g.ID] = true
		}
	}
	for _, m := range s.members {
		if m.UserID == userID && !seen[m.GroupID] {
			if g, ok := s.groups[m.GroupID]; ok {
				groups = append(groups, *g)
				seen[g.ID] = true
			}
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].CreatedAt.After(groups[j].CreatedAt)
	})
	return groups, nil
}

func (s *MemoryStore) DeleteGroup(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return ErrNotFound
	}
	delete(s.groups, id)

	kept := s.members[:0]
	for _, m := range s.members {
		if m.GroupID != id {
			kept = append(kept, m)
		}
	}
	s.members = kept

	for pid, p := range s.portfolios {
		if p.GroupID != id {
			continue
		}
		delete(s.portfolios, pid)
		for hid, h := range s.holdings {
			if h.PortfolioID == pid {
				delete(s.holdings, hid)
			}
		}
		ledger := s.ledger[:0]
		for _, t := range s.ledger {
			if t.PortfolioID != pid {
				ledger = append(ledger, t)
			}
		}
		s.ledger = ledger
	}

	if d, ok := s.drafts[id]; ok {
		picks := s.picks[:0]
		for _, p := range s.picks {
			if p.DraftStateID != d.ID {
				picks = append(picks, p)
			}
		}
		s.picks = picks
		delete(s.drafts, id)
	}

	for mid, m := range s.matchups {
		if m.GroupID == id {
			delete(s.matchups, mid)
		}
	}
	for oid, o := range s.offers {
		if o.GroupID == id {
			delete(s.offers, oid)
		}
	}
	claims := s.claims[:0]
	for _, c := range s.claims {
		if c.GroupID != id {
			claims = append(claims, c)
		}
	}
	s.claims = claims
	return nil
}

func (s *MemoryStore) AddMembership(_ context.Context, m *model.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.members {
		if existing.GroupID == m.GroupID && existing.UserID == m.UserID {
			return ErrConflict
		}
	}
	s.members = append(s.members, *m)
	return nil
}

func (s *MemoryStore) GetMembership(_ context.Context, groupID, userID string) (*model.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.members {
		if m.GroupID == groupID && m.UserID == userID {
			cp := m
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) DeleteMembership(_ context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.members {
		if m.GroupID == groupID && m.UserID == userID {
			s.members = append(s.members[:i], s.members[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) ListMemberships(_ context.Context, groupID string) ([]model.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var members []model.Membership
	for _, m := range s.members {
		if m.GroupID == groupID {
			members = append(members, m)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members, nil
}

func (s *MemoryStore) CountMemberships(_ context.Context, groupID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.members {
		if m.GroupID == groupID {
			n++
		}
	}
	return n, nil
}

// --- Portfolios ---

func (s *MemoryStore) CreatePortfolio(_ context.Context, p *model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.portfolios {
		if existing.GroupID == p.GroupID && existing.UserID == p.UserID {
			return ErrConflict
		}
	}
	cp := *p
	s.portfolios[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPortfolio(_ context.Context, groupID, userID string) (*model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.portfolios {
		if p.GroupID == groupID && p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetPortfolioByID(_ context.Context, id string) (*model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.portfolios[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetPortfolioForUpdate(ctx context.Context, groupID, userID string) (*model.Portfolio, error) {
	// Locking is provided by InTx serialization.
	return s.GetPortfolio(ctx, groupID, userID)
}

func (s *MemoryStore) ListPortfolios(_ context.Context) ([]model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	portfolios := make([]model.Portfolio, 0, len(s.portfolios))
	for _, p := range s.portfolios {
		portfolios = append(portfolios, *p)
	}
	return portfolios, nil
}

func (s *MemoryStore) ListPortfoliosByUser(_ context.Context, userID string) ([]model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var portfolios []model.Portfolio
	for _, p := range s.portfolios {
		if p.UserID == userID {
			portfolios = append(portfolios, *p)
		}
	}
	return portfolios, nil
}

func (s *MemoryStore) UpdatePortfolioBalances(_ context.Context, id string, cash, savings, bonds, indexFunds decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[id]
	if !ok {
		return ErrNotFound
	}
	p.CashBalance = cash
	p.Savings = savings
	p.Bonds = bonds
	p.IndexFunds = indexFunds
	return nil
}

func (s *MemoryStore) UpdatePortfolioTotalValue(_ context.Context, id string, total decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[id]
	if !ok {
		return ErrNotFound
	}
	p.TotalValue = total
	return nil
}

func (s *MemoryStore) DeletePortfolio(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.portfolios[id]; !ok {
		return ErrNotFound
	}
	delete(s.portfolios, id)
	for hid, h := range s.holdings {
		if h.PortfolioID == id {
			delete(s.holdings, hid)
		}
	}
	ledger := s.ledger[:0]
	for _, t := range s.ledger {
		if t.PortfolioID != id {
			ledger = append(ledger, t)
		}
	}
	s.ledger = ledger
	return nil
}

// --- Holdings ---

func (s *MemoryStore) CreateHolding(_ context.Context, h *model.Holding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.holdings {
		if existing.PortfolioID == h.PortfolioID && existing.AssetID == h.AssetID {
			return ErrConflict
		}
	}
	cp := *h
	s.holdings[h.ID] = &cp
	return nil
}

func (s *MemoryStore) GetHolding(_ context.Context, portfolioID, assetID string) (*model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.holdings {
		if h.PortfolioID == portfolioID && h.AssetID == assetID {
			cp := *h
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListHoldings(_ context.Context, portfolioID string) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var holdings []model.Holding
	for _, h := range s.holdings {
		if h.PortfolioID == portfolioID {
			holdings = append(holdings, *h)
		}
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].ID < holdings[j].ID })
	return holdings, nil
}

func (s *MemoryStore) UpdateHoldingPosition(_ context.Context, id string, shares, averageCost, currentPrice decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holdings[id]
	if !ok {
		return ErrNotFound
	}
	h.Shares = shares
	h.AverageCost = averageCost
	h.CurrentPrice = currentPrice
	return nil
}

func (s *MemoryStore) UpdateHoldingMetrics(_ context.Context, id string, currentPrice, totalValue, gainLoss, gainLossPercent decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holdings[id]
	if !ok {
		return ErrNotFound
	}
	h.CurrentPrice = currentPrice
	h.TotalValue = totalValue
	h.GainLoss = gainLoss
	h.GainLossPercent = gainLossPercent
	return nil
}

func (s *MemoryStore) UpdateHoldingStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holdings[id]
	if !ok {
		return ErrNotFound
	}
	h.Status = status
	return nil
}

func (s *MemoryStore) ReassignHolding(_ context.Context, id, portfolioID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holdings[id]
	if !ok {
		return ErrNotFound
	}
	for _, existing := range s.holdings {
		if existing.PortfolioID == portfolioID && existing.AssetID == h.AssetID {
			return ErrConflict
		}
	}
	h.PortfolioID = portfolioID
	return nil
}

func (s *MemoryStore) DeleteHolding(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.holdings, id)
	return nil
}

// --- Immutable ledger ---

func (s *MemoryStore) InsertTransaction(_ context.Context, t *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = append(s.ledger, *t)
	return nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, portfolioID string, limit int) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	var txs []model.Transaction
	for i := len(s.ledger) - 1; i >= 0 && len(txs) < limit; i-- {
		if s.ledger[i].PortfolioID == portfolioID {
			txs = append(txs, s.ledger[i])
		}
	}
	return txs, nil
}

// --- Draft ---

func (s *MemoryStore) CreateDraftState(_ context.Context, d *model.DraftState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.drafts[d.GroupID]; exists {
		return ErrConflict
	}
	cp := *d
	s.drafts[d.GroupID] = &cp
	return nil
}

func (s *MemoryStore) GetDraftState(_ context.Context, groupID string) (*model.DraftState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) GetDraftStateForUpdate(ctx context.Context, groupID string) (*model.DraftState, error) {
	return s.GetDraftState(ctx, groupID)
}

func (s *MemoryStore) UpdateDraftState(_ context.Context, d *model.DraftState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.drafts[d.GroupID]
	if !ok {
		return ErrNotFound
	}
	*existing = *d
	return nil
}

func (s *MemoryStore) InsertDraftPick(_ context.Context, p *model.DraftPick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.picks {
		if existing.DraftStateID == p.DraftStateID && existing.AssetID == p.AssetID {
			return ErrConflict
		}
	}
	s.picks = append(s.picks, *p)
	return nil
}

func (s *MemoryStore) ListDraftPicks(_ context.Context, draftStateID string) ([]model.DraftPick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var picks []model.DraftPick
	for _, p := range s.picks {
		if p.DraftStateID == draftStateID {
			picks = append(picks, p)
		}
	}
	sort.Slice(picks, func(i, j int) bool {
		if picks[i].Round != picks[j].Round {
			return picks[i].Round < picks[j].Round
		}
		return picks[i].PickNumber < picks[j].PickNumber
	})
	return picks, nil
}

// --- Matchups ---

func (s *MemoryStore) InsertMatchup(_ context.Context, m *model.Matchup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.matchups[m.ID] = &cp
	return nil
}

func (s *MemoryStore) ListMatchups(_ context.Context, groupID string) ([]model.Matchup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Matchup
	for _, m := range s.matchups {
		if m.GroupID == groupID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Week != out[j].Week {
			return out[i].Week < out[j].Week
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) MatchupByWeek(_ context.Context, groupID, userID string, week int) (*model.Matchup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.matchups {
		if m.GroupID == groupID && m.Week == week && m.Involves(userID) {
			cp := *m
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateMatchupScores(_ context.Context, id string, user1Score, user2Score decimal.Decimal, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matchups[id]
	if !ok {
		return ErrNotFound
	}
	m.User1Score = user1Score
	m.User2Score = user2Score
	m.Status = status
	return nil
}

// --- Trade offers ---

func (s *MemoryStore) InsertTradeOffer(_ context.Context, o *model.TradeOffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	cp.OfferedAssetIDs = append([]string(nil), o.OfferedAssetIDs...)
	cp.RequestedAssetIDs = append([]string(nil), o.RequestedAssetIDs...)
	s.offers[o.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTradeOffer(_ context.Context, id string) (*model.TradeOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.offers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) GetTradeOfferForUpdate(ctx context.Context, id string) (*model.TradeOffer, error) {
	return s.GetTradeOffer(ctx, id)
}

func (s *MemoryStore) ListTradeOffers(_ context.Context, groupID, userID string) ([]model.TradeOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.TradeOffer
	for _, o := range s.offers {
		if o.GroupID != groupID {
			continue
		}
		if userID != "" && o.CreatorID != userID && o.RecipientID != userID {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpdateTradeOfferStatus(_ context.Context, id, status string, respondedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.RespondedAt = &respondedAt
	return nil
}

// --- Waiver claims ---

func (s *MemoryStore) InsertWaiverClaim(_ context.Context, c *model.WaiverClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims = append(s.claims, *c)
	return nil
}

func (s *MemoryStore) ListWaiverClaims(_ context.Context, groupID string) ([]model.WaiverClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.WaiverClaim
	for _, c := range s.claims {
		if c.GroupID == groupID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (s *MemoryStore) NextWaiverPriority(_ context.Context, groupID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	max := 0
	for _, c := range s.claims {
		if c.GroupID == groupID && c.Status == model.ClaimPending && c.Priority > max {
			max = c.Priority
		}
	}
	return max + 1, nil
}

// --- Notifications ---

func (s *MemoryStore) InsertNotification(_ context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.notifs = append(s.notifs, &cp)
	return nil
}

func (s *MemoryStore) ListNotifications(_ context.Context, userID string, limit int) ([]model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	var out []model.Notification
	for i := len(s.notifs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.notifs[i].UserID == userID {
			out = append(out, *s.notifs[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkNotificationRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifs {
		if n.ID == id {
			n.IsRead = true
			return nil
		}
	}
	return ErrNotFound
}
