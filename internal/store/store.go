// Package store defines the persistence interface for the league engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paperleague/league-engine/internal/model"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned on unique-constraint violations, e.g. a duplicate
// membership or a second portfolio for the same (group, user) pair.
var ErrConflict = errors.New("store: conflict")

// AssetFilter narrows ListAssets results. Zero values mean "no constraint".
type AssetFilter struct {
	Classes    []string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Search     string // matches ticker or name, case-insensitive
	ActiveOnly bool
	ExcludeIDs []string
	Limit      int
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
//
// InTx runs fn against a transactional view of the store. The *ForUpdate
// reads acquire row locks inside a transaction so that concurrent trades on
// one portfolio, or concurrent picks in one draft, serialize instead of
// racing.
type Store interface {
	InTx(ctx context.Context, fn func(Store) error) error

	// --- Users ---

	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)

	// GetUserForUpdate row-locks the user inside a transaction. Required
	// before any read-modify-write of the lesson-progress fields, so that
	// two concurrent completions cannot overwrite each other.
	GetUserForUpdate(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)

	// UpdateUserLearning replaces the lesson-progress fields.
	UpdateUserLearning(ctx context.Context, id string, dollars decimal.Decimal, completedLessons []string) error

	// --- Assets ---

	CreateAsset(ctx context.Context, a *model.Asset) error
	GetAsset(ctx context.Context, id string) (*model.Asset, error)
	GetAssetByTicker(ctx context.Context, ticker string) (*model.Asset, error)
	ListAssets(ctx context.Context, f AssetFilter) ([]model.Asset, error)

	// UpdateAssetPrice rotates the previous close and stamps the update time.
	UpdateAssetPrice(ctx context.Context, id string, current, previousClose decimal.Decimal, updatedAt time.Time) error

	// LatestAssetUpdate returns the most recent UpdatedAt among active assets
	// of the given class, or the zero time when there are none.
	LatestAssetUpdate(ctx context.Context, class string) (time.Time, error)

	// --- Groups and memberships ---

	CreateGroup(ctx context.Context, g *model.Group) error
	GetGroup(ctx context.Context, id string) (*model.Group, error)
	GetGroupByJoinCode(ctx context.Context, code string) (*model.Group, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]model.Group, error)

	// DeleteGroup removes the group and everything scoped to it: memberships,
	// portfolios with their holdings and ledger, draft data, matchups,
	// trade offers, and waiver claims.
	DeleteGroup(ctx context.Context, id string) error

	AddMembership(ctx context.Context, m *model.Membership) error
	GetMembership(ctx context.Context, groupID, userID string) (*model.Membership, error)
	DeleteMembership(ctx context.Context, groupID, userID string) error

	// ListMemberships returns members ordered by join time; this ordering
	// defines draft position.
	ListMemberships(ctx context.Context, groupID string) ([]model.Membership, error)
	CountMemberships(ctx context.Context, groupID string) (int, error)

	// --- Portfolios ---

	CreatePortfolio(ctx context.Context, p *model.Portfolio) error
	GetPortfolio(ctx context.Context, groupID, userID string) (*model.Portfolio, error)
	GetPortfolioByID(ctx context.Context, id string) (*model.Portfolio, error)
	GetPortfolioForUpdate(ctx context.Context, groupID, userID string) (*model.Portfolio, error)
	ListPortfolios(ctx context.Context) ([]model.Portfolio, error)
	ListPortfoliosByUser(ctx context.Context, userID string) ([]model.Portfolio, error)
	UpdatePortfolioBalances(ctx context.Context, id string, cash, savings, bonds, indexFunds decimal.Decimal) error
	UpdatePortfolioTotalValue(ctx context.Context, id string, total decimal.Decimal) error

	// DeletePortfolio removes the portfolio together with its holdings and
	// ledger entries. Used when a member leaves a group.
	DeletePortfolio(ctx context.Context, id string) error

	// --- Holdings ---

	CreateHolding(ctx context.Context, h *model.Holding) error
	GetHolding(ctx context.Context, portfolioID, assetID string) (*model.Holding, error)
	ListHoldings(ctx context.Context, portfolioID string) ([]model.Holding, error)
	UpdateHoldingPosition(ctx context.Context, id string, shares, averageCost, currentPrice decimal.Decimal) error
	UpdateHoldingMetrics(ctx context.Context, id string, currentPrice, totalValue, gainLoss, gainLossPercent decimal.Decimal) error
	UpdateHoldingStatus(ctx context.Context, id, status string) error

	// ReassignHolding moves a holding to another portfolio, preserving its
	// position and cost basis. Used when a trade offer is accepted.
	ReassignHolding(ctx context.Context, id, portfolioID string) error
	DeleteHolding(ctx context.Context, id string) error

	// --- Immutable ledger ---

	InsertTransaction(ctx context.Context, t *model.Transaction) error
	ListTransactions(ctx context.Context, portfolioID string, limit int) ([]model.Transaction, error)

	// --- Draft ---

	CreateDraftState(ctx context.Context, d *model.DraftState) error
	GetDraftState(ctx context.Context, groupID string) (*model.DraftState, error)
	GetDraftStateForUpdate(ctx context.Context, groupID string) (*model.DraftState, error)
	UpdateDraftState(ctx context.Context, d *model.DraftState) error
	InsertDraftPick(ctx context.Context, p *model.DraftPick) error
	ListDraftPicks(ctx context.Context, draftStateID string) ([]model.DraftPick, error)

	// --- Matchups ---

	InsertMatchup(ctx context.Context, m *model.Matchup) error
	ListMatchups(ctx context.Context, groupID string) ([]model.Matchup, error)

	// MatchupByWeek returns the user's matchup for one week of the
	// schedule; ErrNotFound on a bye week.
	MatchupByWeek(ctx context.Context, groupID, userID string, week int) (*model.Matchup, error)
	UpdateMatchupScores(ctx context.Context, id string, user1Score, user2Score decimal.Decimal, status string) error

	// --- Trade offers ---

	InsertTradeOffer(ctx context.Context, o *model.TradeOffer) error
	GetTradeOffer(ctx context.Context, id string) (*model.TradeOffer, error)
	GetTradeOfferForUpdate(ctx context.Context, id string) (*model.TradeOffer, error)

	// ListTradeOffers returns offers in a group, newest first. A non-empty
	// userID narrows to offers the user created or received.
	ListTradeOffers(ctx context.Context, groupID, userID string) ([]model.TradeOffer, error)
	UpdateTradeOfferStatus(ctx context.Context, id, status string, respondedAt time.Time) error

	// --- Waiver claims ---

	InsertWaiverClaim(ctx context.Context, c *model.WaiverClaim) error
	ListWaiverClaims(ctx context.Context, groupID string) ([]model.WaiverClaim, error)

	// NextWaiverPriority returns one past the highest pending priority in
	// the group, starting at 1.
	NextWaiverPriority(ctx context.Context, groupID string) (int, error)

	// --- Notifications ---

	InsertNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}
