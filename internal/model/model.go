// Package model defines the core domain types shared across the league engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset classes recognized by league settings.
const (
	AssetClassStock     = "Stock"
	AssetClassETF       = "ETF"
	AssetClassCommodity = "Commodity"
	AssetClassREIT      = "REIT"
)

// Holding lineup statuses.
const (
	SlotActive = "ACTIVE"
	SlotBench  = "BENCH"
)

// Draft statuses.
const (
	DraftPending   = "pending"
	DraftActive    = "active"
	DraftCompleted = "completed"
)

// Transaction types for the immutable ledger.
const (
	TxBuy  = "buy"
	TxSell = "sell"
)

// Matchup statuses.
const (
	MatchupPending   = "pending"
	MatchupActive    = "active"
	MatchupCompleted = "completed"
)

// Trade-offer statuses.
const (
	OfferPending   = "pending"
	OfferAccepted  = "accepted"
	OfferRejected  = "rejected"
	OfferCancelled = "cancelled"
)

// Waiver-claim statuses.
const (
	ClaimPending   = "pending"
	ClaimProcessed = "processed"
)

// Notification types.
const (
	NotifOfferReceived = "offer_received"
	NotifOfferAccepted = "offer_accepted"
	NotifOfferRejected = "offer_rejected"
	NotifGroupDeleted  = "group_deleted"
)

// Asset is a tradeable instrument. Price fields are mutated only by the
// price refresher; PreviousClose always holds the pre-update price so the
// day change can be derived.
type Asset struct {
	ID              string          `json:"id"`
	Ticker          string          `json:"ticker"` // unique
	Name            string          `json:"name"`
	Class           string          `json:"class"` // Stock, ETF, Commodity, REIT
	Tier            int             `json:"tier"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	PreviousClose   decimal.Decimal `json:"previous_close"`
	MarketCap       decimal.Decimal `json:"market_cap"`
	IsActive        bool            `json:"is_active"`
	RequiredLessons []string        `json:"required_lessons"` // lesson IDs gating eligibility
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ChangePercent derives the day change from the previous close.
// Zero when there is no previous close to compare against.
func (a *Asset) ChangePercent() decimal.Decimal {
	if !a.PreviousClose.IsPositive() {
		return decimal.Zero
	}
	return a.CurrentPrice.Sub(a.PreviousClose).
		Div(a.PreviousClose).
		Mul(decimal.NewFromInt(100))
}

// User is a participant. LearningDollars is the virtual currency earned by
// completing lessons; it gates group joins via the starting balance.
type User struct {
	ID               string          `json:"id"`
	Username         string          `json:"username"` // unique
	LearningDollars  decimal.Decimal `json:"learning_dollars"`
	CompletedLessons []string        `json:"completed_lessons"`
	CreatedAt        time.Time       `json:"created_at"`
}

// HasCompleted reports whether the user completed the given lesson.
func (u *User) HasCompleted(lessonID string) bool {
	for _, id := range u.CompletedLessons {
		if id == lessonID {
			return true
		}
	}
	return false
}

// MissingLessons returns the required lesson IDs the user has not completed,
// preserving order.
func (u *User) MissingLessons(required []string) []string {
	var missing []string
	for _, id := range required {
		if !u.HasCompleted(id) {
			missing = append(missing, id)
		}
	}
	return missing
}

// Group is a league configuration record. Status is never stored; it is a
// pure function of the settings and the current time (see config.Settings).
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	AdminUserID string    `json:"admin_user_id"`
	MaxMembers  int       `json:"max_members"`
	JoinCode    string    `json:"join_code"` // unique
	SettingsRaw []byte    `json:"-"`         // validated config.Settings, stored as JSONB
	CreatedAt   time.Time `json:"created_at"`
}

// Membership links a user to a group. JoinedAt ordering determines draft
// position.
type Membership struct {
	ID       string    `json:"id"`
	GroupID  string    `json:"group_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Portfolio holds one participant's cash and derived value within one group.
// Uniqueness on (GroupID, UserID) is enforced by the store.
//
// Invariant after every valuation pass:
//
//	TotalValue == CashBalance + Σ(holding.Shares × asset price) + Allocations()
type Portfolio struct {
	ID          string          `json:"id"`
	GroupID     string          `json:"group_id"`
	UserID      string          `json:"user_id"`
	CashBalance decimal.Decimal `json:"cash_balance"`
	TotalValue  decimal.Decimal `json:"total_value"`
	Savings     decimal.Decimal `json:"savings"`
	Bonds       decimal.Decimal `json:"bonds"`
	IndexFunds  decimal.Decimal `json:"index_funds"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Allocations sums the fixed-income-like side balances.
func (p *Portfolio) Allocations() decimal.Decimal {
	return p.Savings.Add(p.Bonds).Add(p.IndexFunds)
}

// Holding is a portfolio's position in one asset. Shares is always > 0 while
// the holding exists; a holding sold down to zero shares is deleted.
// AverageCost is a share-weighted blend updated on buys, never on sells.
type Holding struct {
	ID              string          `json:"id"`
	PortfolioID     string          `json:"portfolio_id"`
	AssetID         string          `json:"asset_id"`
	Shares          decimal.Decimal `json:"shares"`
	AverageCost     decimal.Decimal `json:"average_cost"`
	CurrentPrice    decimal.Decimal `json:"current_price"` // last observed price snapshot
	TotalValue      decimal.Decimal `json:"total_value"`
	GainLoss        decimal.Decimal `json:"gain_loss"`
	GainLossPercent decimal.Decimal `json:"gain_loss_percent"`
	Status          string          `json:"status"` // ACTIVE or BENCH
}

// Transaction is an immutable ledger entry for a buy or sell.
// Once created, these are never modified or deleted.
type Transaction struct {
	ID            string          `json:"id"`
	PortfolioID   string          `json:"portfolio_id"`
	AssetID       string          `json:"asset_id"`
	Type          string          `json:"type"` // buy or sell
	Shares        decimal.Decimal `json:"shares"`
	PricePerShare decimal.Decimal `json:"price_per_share"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	CashBefore    decimal.Decimal `json:"cash_before"`
	CashAfter     decimal.Decimal `json:"cash_after"`
	CreatedAt     time.Time       `json:"created_at"`
}

// DraftState tracks one group's draft. Mutated only by the draft sequencer,
// through start and pick submission.
type DraftState struct {
	ID                string     `json:"id"`
	GroupID           string     `json:"group_id"` // unique
	Status            string     `json:"status"`   // pending, active, completed
	CurrentRound      int        `json:"current_round"`
	CurrentPickNumber int        `json:"current_pick_number"`
	CurrentUserID     string     `json:"current_user_id,omitempty"` // empty unless active
	RemainingSeconds  int        `json:"remaining_seconds"`
	TimerStartedAt    *time.Time `json:"timer_started_at,omitempty"`
}

// DraftPick is an immutable record of one selection. No asset may appear in
// two picks of the same draft.
type DraftPick struct {
	ID           string    `json:"id"`
	DraftStateID string    `json:"draft_state_id"`
	Round        int       `json:"round"`
	PickNumber   int       `json:"pick_number"`
	UserID       string    `json:"user_id"`
	AssetID      string    `json:"asset_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Matchup is one week's head-to-head pairing between two members of a group.
// Scores are the participants' portfolio values, refreshed on read.
type Matchup struct {
	ID         string          `json:"id"`
	GroupID    string          `json:"group_id"`
	Week       int             `json:"week"`
	User1ID    string          `json:"user1_id"`
	User2ID    string          `json:"user2_id"`
	User1Score decimal.Decimal `json:"user1_score"`
	User2Score decimal.Decimal `json:"user2_score"`
	Status     string          `json:"status"` // pending, active, completed
}

// Involves reports whether the user is one of the matchup's two sides.
func (m *Matchup) Involves(userID string) bool {
	return m.User1ID == userID || m.User2ID == userID
}

// TradeOffer is a proposed holding swap between two members of a group.
// Accepting moves the listed holdings between the two portfolios.
type TradeOffer struct {
	ID                string     `json:"id"`
	GroupID           string     `json:"group_id"`
	CreatorID         string     `json:"creator_id"`
	RecipientID       string     `json:"recipient_id"`
	OfferedAssetIDs   []string   `json:"offered_asset_ids"`
	RequestedAssetIDs []string   `json:"requested_asset_ids"`
	Status            string     `json:"status"` // pending, accepted, rejected, cancelled
	CreatedAt         time.Time  `json:"created_at"`
	RespondedAt       *time.Time `json:"responded_at,omitempty"`
}

// WaiverClaim is a queued request for an undrafted asset. Claims process in
// priority order; priority assignment is first-come within a group.
type WaiverClaim struct {
	ID          string    `json:"id"`
	GroupID     string    `json:"group_id"`
	UserID      string    `json:"user_id"`
	AssetID     string    `json:"asset_id"`
	DropAssetID string    `json:"drop_asset_id,omitempty"`
	Priority    int       `json:"priority"`
	Status      string    `json:"status"` // pending, processed
	CreatedAt   time.Time `json:"created_at"`
}

// Notification is a per-user inbox entry produced by league events.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	GroupID   string    `json:"group_id,omitempty"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Quote is a snapshot from the external market-data provider.
type Quote struct {
	Ticker        string          `json:"ticker"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Timestamp     time.Time       `json:"timestamp"`
}
