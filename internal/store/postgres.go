package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/paperleague/league-engine/internal/model"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the same store
// code runs inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool // nil when bound to a transaction
	q    querier
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

// InTx runs fn in a single database transaction. Nested calls reuse the
// already-open transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresStore{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO users (id, username, learning_dollars, completed_lessons, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5)`,
		u.ID, u.Username, u.LearningDollars.String(), u.CompletedLessons, u.CreatedAt)
	return mapPgErr(err)
}

func (s *PostgresStore) scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var dollars string
	if err := row.Scan(&u.ID, &u.Username, &dollars, &u.CompletedLessons, &u.CreatedAt); err != nil {
		return nil, mapPgErr(err)
	}
	u.LearningDollars = dec(dollars)
	return &u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.scanUser(s.q.QueryRow(ctx,
		`SELECT id, username, learning_dollars::TEXT, completed_lessons, created_at
		 FROM users WHERE id = $1`, id))
}

func (s *PostgresStore) GetUserForUpdate(ctx context.Context, id string) (*model.User, error) {
	return s.scanUser(s.q.QueryRow(ctx,
		`SELECT id, username, learning_dollars::TEXT, completed_lessons, created_at
		 FROM users WHERE id = $1 FOR UPDATE`, id))
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.scanUser(s.q.QueryRow(ctx,
		`SELECT id, username, learning_dollars::TEXT, completed_lessons, created_at
		 FROM users WHERE username = $1`, username))
}

func (s *PostgresStore) UpdateUserLearning(ctx context.Context, id string, dollars decimal.Decimal, completedLessons []string) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE users SET learning_dollars = $2::NUMERIC, completed_lessons = $3 WHERE id = $1`,
		id, dollars.String(), completedLessons)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Assets ---

const assetCols = `id, ticker, name, class, tier,
	current_price::TEXT, previous_close::TEXT, market_cap::TEXT,
	is_active, required_lessons, updated_at`

func scanAsset(row pgx.Row) (*model.Asset, error) {
	var a model.Asset
	var current, prev, mcap string
	if err := row.Scan(&a.ID, &a.Ticker, &a.Name, &a.Class, &a.Tier,
		&current, &prev, &mcap,
		&a.IsActive, &a.RequiredLessons, &a.UpdatedAt); err != nil {
		return nil, mapPgErr(err)
	}
	a.CurrentPrice = dec(current)
	a.PreviousClose = dec(prev)
	a.MarketCap = dec(mcap)
	return &a, nil
}

func (s *PostgresStore) CreateAsset(ctx context.Context, a *model.Asset) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO assets (id, ticker, name, class, tier, current_price, previous_close, market_cap, is_active, required_lessons, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10, $11)`,
		a.ID, a.Ticker, a.Name, a.Class, a.Tier,
		a.CurrentPrice.String(), a.PreviousClose.String(), a.MarketCap.String(),
		a.IsActive, a.RequiredLessons, a.UpdatedAt)
	return mapPgErr(err)
}

func (s *PostgresStore) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	return scanAsset(s.q.QueryRow(ctx,
		`SELECT `+assetCols+` FROM assets WHERE id = $1`, id))
}

func (s *PostgresStore) GetAssetByTicker(ctx context.Context, ticker string) (*model.Asset, error) {
	return scanAsset(s.q.QueryRow(ctx,
		`SELECT `+assetCols+` FROM assets WHERE ticker = $1`, ticker))
}

func (s *PostgresStore) ListAssets(ctx context.Context, f AssetFilter) ([]model.Asset, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.ActiveOnly {
		conds = append(conds, "is_active")
	}
	if len(f.Classes) > 0 {
		conds = append(conds, "class = ANY("+arg(f.Classes)+")")
	}
	if f.MinPrice != nil {
		conds = append(conds, "current_price >= "+arg(f.MinPrice.String())+"::NUMERIC")
	}
	if f.MaxPrice != nil {
		conds = append(conds, "current_price <= "+arg(f.MaxPrice.String())+"::NUMERIC")
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		conds = append(conds, "(ticker ILIKE "+p+" OR name ILIKE "+p+")")
	}
	if len(f.ExcludeIDs) > 0 {
		conds = append(conds, "NOT (id = ANY("+arg(f.ExcludeIDs)+"))")
	}

	sql := `SELECT ` + assetCols + ` FROM assets`
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += ` ORDER BY tier ASC, current_price DESC`
	if f.Limit > 0 {
		sql += " LIMIT " + arg(f.Limit)
	}

	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []model.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

func (s *PostgresStore) UpdateAssetPrice(ctx context.Context, id string, current, previousClose decimal.Decimal, updatedAt time.Time) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE assets SET current_price = $2::NUMERIC, previous_close = $3::NUMERIC, updated_at = $4 WHERE id = $1`,
		id, current.String(), previousClose.String(), updatedAt)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) LatestAssetUpdate(ctx context.Context, class string) (time.Time, error) {
	var t *time.Time
	err := s.q.QueryRow(ctx,
		`SELECT MAX(updated_at) FROM assets WHERE is_active AND class = $1`, class).Scan(&t)
	if err != nil {
		return time.Time{}, mapPgErr(err)
	}
	if t == nil {
		return time.Time{}, nil
	}
	return *t, nil
}

// --- Groups and memberships ---

func (s *PostgresStore) CreateGroup(ctx context.Context, g *model.Group) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO groups (id, name, description, admin_user_id, max_members, join_code, settings, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		g.ID, g.Name, g.Description, g.AdminUserID, g.MaxMembers, g.JoinCode, g.SettingsRaw, g.CreatedAt)
	return mapPgErr(err)
}

const groupCols = `id, name, description, admin_user_id, max_members, join_code, settings, created_at`

func scanGroup(row pgx.Row) (*model.Group, error) {
	var g model.Group
	if err := row.Scan(&g.ID, &g.Name, &g.Description, &g.AdminUserID,
		&g.MaxMembers, &g.JoinCode, &g.SettingsRaw, &g.CreatedAt); err != nil {
		return nil, mapPgErr(err)
	}
	return &g, nil
}

func (s *PostgresStore) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	return scanGroup(s.q.QueryRow(ctx,
		`SELECT `+groupCols+` FROM groups WHERE id = $1`, id))
}

func (s *PostgresStore) GetGroupByJoinCode(ctx context.Context, code string) (*model.Group, error) {
	return scanGroup(s.q.QueryRow(ctx,
		`SELECT `+groupCols+` FROM groups WHERE join_code = $1`, code))
}

func (s *PostgresStore) ListGroupsForUser(ctx context.Context, userID string) ([]model.Group, error) {
	rows, err := s.q.Query(ctx,
		`SELECT DISTINCT g.id, g.name, g.description, g.admin_user_id, g.max_members, g.join_code, g.settings, g.created_at
		 FROM groups g
		 LEFT JOIN memberships m ON m.group_id = g.id
		 WHERE g.admin_user_id = $1 OR m.user_id = $1
		 ORDER BY g.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []model.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

func (s *PostgresStore) DeleteGroup(ctx context.Context, id string) error {
	// Ordered so no statement trips a foreign key on the way down.
	stmts := []string{
		`DELETE FROM draft_picks WHERE draft_state_id IN (SELECT id FROM draft_states WHERE group_id = $1)`,
		`DELETE FROM draft_states WHERE group_id = $1`,
		`DELETE FROM matchups WHERE group_id = $1`,
		`DELETE FROM trade_offers WHERE group_id = $1`,
		`DELETE FROM waiver_claims WHERE group_id = $1`,
		`DELETE FROM transactions WHERE portfolio_id IN (SELECT id FROM portfolios WHERE group_id = $1)`,
		`DELETE FROM holdings WHERE portfolio_id IN (SELECT id FROM portfolios WHERE group_id = $1)`,
		`DELETE FROM portfolios WHERE group_id = $1`,
		`DELETE FROM memberships WHERE group_id = $1`,
	}
	for _, stmt := range stmts {
		if _, err := s.q.Exec(ctx, stmt, id); err != nil {
			return mapPgErr(err)
		}
	}
	tag, err := s.q.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AddMembership(ctx context.Context, m *model.Membership) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO memberships (id, group_id, user_id, joined_at) VALUES ($1, $2, $3, $4)`,
		m.ID, m.GroupID, m.UserID, m.JoinedAt)
	return mapPgErr(err)
}

func (s *PostgresStore) GetMembership(ctx context.Context, groupID, userID string) (*model.Membership, error) {
	var m model.Membership
	err := s.q.QueryRow(ctx,
		`SELECT id, group_id, user_id, joined_at FROM memberships WHERE group_id = $1 AND user_id = $2`,
		groupID, userID).
		Scan(&m.ID, &m.GroupID, &m.UserID, &m.JoinedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}
	return &m, nil
}

func (s *PostgresStore) DeleteMembership(ctx context.Context, groupID, userID string) error {
	tag, err := s.q.Exec(ctx,
		`DELETE FROM memberships WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListMemberships(ctx context.Context, groupID string) ([]model.Membership, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, group_id, user_id, joined_at FROM memberships
		 WHERE group_id = $1 ORDER BY joined_at ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []model.Membership
	for rows.Next() {
		var m model.Membership
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *PostgresStore) CountMemberships(ctx context.Context, groupID string) (int, error) {
	var n int
	err := s.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM memberships WHERE group_id = $1`, groupID).Scan(&n)
	return n, mapPgErr(err)
}

// --- Portfolios ---

const portfolioCols = `id, group_id, user_id,
	cash_balance::TEXT, total_value::TEXT, savings::TEXT, bonds::TEXT, index_funds::TEXT,
	created_at`

func scanPortfolio(row pgx.Row) (*model.Portfolio, error) {
	var p model.Portfolio
	var cash, total, savings, bonds, index string
	if err := row.Scan(&p.ID, &p.GroupID, &p.UserID,
		&cash, &total, &savings, &bonds, &index, &p.CreatedAt); err != nil {
		return nil, mapPgErr(err)
	}
	p.CashBalance = dec(cash)
	p.TotalValue = dec(total)
	p.Savings = dec(savings)
	p.Bonds = dec(bonds)
	p.IndexFunds = dec(index)
	return &p, nil
}

func (s *PostgresStore) CreatePortfolio(ctx context.Context, p *model.Portfolio) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO portfolios (id, group_id, user_id, cash_balance, total_value, savings, bonds, index_funds, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)`,
		p.ID, p.GroupID, p.UserID,
		p.CashBalance.String(), p.TotalValue.String(),
		p.Savings.String(), p.Bonds.String(), p.IndexFunds.String(),
		p.CreatedAt)
	return mapPgErr(err)
}

func (s *PostgresStore) GetPortfolio(ctx context.Context, groupID, userID string) (*model.Portfolio, error) {
	return scanPortfolio(s.q.QueryRow(ctx,
		`SELECT `+portfolioCols+` FROM portfolios WHERE group_id = $1 AND user_id = $2`,
		groupID, userID))
}

func (s *PostgresStore) GetPortfolioByID(ctx context.Context, id string) (*model.Portfolio, error) {
	return scanPortfolio(s.q.QueryRow(ctx,
		`SELECT `+portfolioCols+` FROM portfolios WHERE id = $1`, id))
}

func (s *PostgresStore) GetPortfolioForUpdate(ctx context.Context, groupID, userID string) (*model.Portfolio, error) {
	return scanPortfolio(s.q.QueryRow(ctx,
		`SELECT `+portfolioCols+` FROM portfolios WHERE group_id = $1 AND user_id = $2 FOR UPDATE`,
		groupID, userID))
}

func (s *PostgresStore) listPortfolios(ctx context.Context, sql string, args ...any) ([]model.Portfolio, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var portfolios []model.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, err
		}
		portfolios = append(portfolios, *p)
	}
	return portfolios, rows.Err()
}

func (s *PostgresStore) ListPortfolios(ctx context.Context) ([]model.Portfolio, error) {
	return s.listPortfolios(ctx, `SELECT `+portfolioCols+` FROM portfolios`)
}

func (s *PostgresStore) ListPortfoliosByUser(ctx context.Context, userID string) ([]model.Portfolio, error) {
	return s.listPortfolios(ctx,
		`SELECT `+portfolioCols+` FROM portfolios WHERE user_id = $1`, userID)
}

func (s *PostgresStore) UpdatePortfolioBalances(ctx context.Context, id string, cash, savings, bonds, indexFunds decimal.Decimal) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE portfolios
		 SET cash_balance = $2::NUMERIC, savings = $3::NUMERIC, bonds = $4::NUMERIC, index_funds = $5::NUMERIC
		 WHERE id = $1`,
		id, cash.String(), savings.String(), bonds.String(), indexFunds.String())
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdatePortfolioTotalValue(ctx context.Context, id string, total decimal.Decimal) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE portfolios SET total_value = $2::NUMERIC WHERE id = $1`,
		id, total.String())
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeletePortfolio(ctx context.Context, id string) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM transactions WHERE portfolio_id = $1`, id); err != nil {
		return mapPgErr(err)
	}
	if _, err := s.q.Exec(ctx, `DELETE FROM holdings WHERE portfolio_id = $1`, id); err != nil {
		return mapPgErr(err)
	}
	tag, err := s.q.Exec(ctx, `DELETE FROM portfolios WHERE id = $1`, id)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Holdings ---

const holdingCols = `id, portfolio_id, asset_id,
	shares::TEXT, average_cost::TEXT, current_price::TEXT,
	total_value::TEXT, gain_loss::TEXT, gain_loss_percent::TEXT, status`

func scanHolding(row pgx.Row) (*model.Holding, error) {
	var h model.Holding
	var shares, avg, price, total, gl, glp string
	if err := row.Scan(&h.ID, &h.PortfolioID, &h.AssetID,
		&shares, &avg, &price, &total, &gl, &glp, &h.Status); err != nil {
		return nil, mapPgErr(err)
	}
	h.Shares = dec(shares)
	h.AverageCost = dec(avg)
	h.CurrentPrice = dec(price)
	h.TotalValue = dec(total)
	h.GainLoss = dec(gl)
	h.GainLossPercent = dec(glp)
	return &h, nil
}

func (s *PostgresStore) CreateHolding(ctx context.Context, h *model.Holding) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO holdings (id, portfolio_id, asset_id, shares, average_cost, current_price, total_value, gain_loss, gain_loss_percent, status)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10)`,
		h.ID, h.PortfolioID, h.AssetID,
		h.Shares.String(), h.AverageCost.String(), h.CurrentPrice.String(),
		h.TotalValue.String(), h.GainLoss.String(), h.GainLossPercent.String(),
		h.Status)
	return mapPgErr(err)
}

func (s *PostgresStore) GetHolding(ctx context.Context, portfolioID, assetID string) (*model.Holding, error) {
	return scanHolding(s.q.QueryRow(ctx,
		`SELECT `+holdingCols+` FROM holdings WHERE portfolio_id = $1 AND asset_id = $2`,
		portfolioID, assetID))
}

func (s *PostgresStore) ListHoldings(ctx context.Context, portfolioID string) ([]model.Holding, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+holdingCols+` FROM holdings WHERE portfolio_id = $1`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, *h)
	}
	return holdings, rows.Err()
}

func (s *PostgresStore) UpdateHoldingPosition(ctx context.Context, id string, shares, averageCost, currentPrice decimal.Decimal) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE holdings SET shares = $2::NUMERIC, average_cost = $3::NUMERIC, current_price = $4::NUMERIC WHERE id = $1`,
		id, shares.String(), averageCost.String(), currentPrice.String())
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateHoldingMetrics(ctx context.Context, id string, currentPrice, totalValue, gainLoss, gainLossPercent decimal.Decimal) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE holdings
		 SET current_price = $2::NUMERIC, total_value = $3::NUMERIC,
		     gain_loss = $4::NUMERIC, gain_loss_percent = $5::NUMERIC
		 WHERE id = $1`,
		id, currentPrice.String(), totalValue.String(), gainLoss.String(), gainLossPercent.String())
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateHoldingStatus(ctx context.Context, id, status string) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE holdings SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ReassignHolding(ctx context.Context, id, portfolioID string) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE holdings SET portfolio_id = $2 WHERE id = $1`, id, portfolioID)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteHolding(ctx context.Context, id string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM holdings WHERE id = $1`, id)
	return mapPgErr(err)
}

// --- Immutable ledger ---

func (s *PostgresStore) InsertTransaction(ctx context.Context, t *model.Transaction) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO transactions (id, portfolio_id, asset_id, type, shares, price_per_share, total_amount, cash_before, cash_after, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10)`,
		t.ID, t.PortfolioID, t.AssetID, t.Type,
		t.Shares.String(), t.PricePerShare.String(), t.TotalAmount.String(),
		t.CashBefore.String(), t.CashAfter.String(), t.CreatedAt)
	return mapPgErr(err)
}

func (s *PostgresStore) ListTransactions(ctx context.Context, portfolioID string, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.Query(ctx,
		`SELECT id, portfolio_id, asset_id, type,
		        shares::TEXT, price_per_share::TEXT, total_amount::TEXT,
		        cash_before::TEXT, cash_after::TEXT, created_at
		 FROM transactions WHERE portfolio_id = $1
		 ORDER BY created_at DESC LIMIT $2`, portfolioID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var shares, price, total, before, after string
		if err := rows.Scan(&t.ID, &t.PortfolioID, &t.AssetID, &t.Type,
			&shares, &price, &total, &before, &after, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Shares = dec(shares)
		t.PricePerShare = dec(price)
		t.TotalAmount = dec(total)
		t.CashBefore = dec(before)
		t.CashAfter = dec(after)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// --- Draft ---

const draftCols = `id, group_id, status, current_round, current_pick_number,
	COALESCE(current_user_id, ''), remaining_seconds, timer_started_at`

func scanDraftState(row pgx.Row) (*model.DraftState, error) {
	var d model.DraftState
	if err := row.Scan(&d.ID, &d.GroupID, &d.Status,
		&d.CurrentRound, &d.CurrentPickNumber, &d.CurrentUserID,
		&d.RemainingSeconds, &d.TimerStartedAt); err != nil {
		return nil, mapPgErr(err)
	}
	return &d, nil
}

func (s *PostgresStore) CreateDraftState(ctx context.Context, d *model.DraftState) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO draft_states (id, group_id, status, current_round, current_pick_number, current_user_id, remaining_seconds, timer_started_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)`,
		d.ID, d.GroupID, d.Status, d.CurrentRound, d.CurrentPickNumber,
		d.CurrentUserID, d.RemainingSeconds, d.TimerStartedAt)
	return mapPgErr(err)
}

func (s *PostgresStore) GetDraftState(ctx context.Context, groupID string) (*model.DraftState, error) {
	return scanDraftState(s.q.QueryRow(ctx,
		`SELECT `+draftCols+` FROM draft_states WHERE group_id = $1`, groupID))
}

func (s *PostgresStore) GetDraftStateForUpdate(ctx context.Context, groupID string) (*model.DraftState, error) {
	return scanDraftState(s.q.QueryRow(ctx,
		`SELECT `+draftCols+` FROM draft_states WHERE group_id = $1 FOR UPDATE`, groupID))
}

func (s *PostgresStore) UpdateDraftState(ctx context.Context, d *model.DraftState) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE draft_states
		 SET status = $2, current_round = $3, current_pick_number = $4,
		     current_user_id = NULLIF($5, ''), remaining_seconds = $6, timer_started_at = $7
		 WHERE id = $1`,
		d.ID, d.Status, d.CurrentRound, d.CurrentPickNumber,
		d.CurrentUserID, d.RemainingSeconds, d.TimerStartedAt)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InsertDraftPick(ctx context.Context, p *model.DraftPick) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO draft_picks (id, draft_state_id, round, pick_number, user_id, asset_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.DraftStateID, p.Round, p.PickNumber, p.UserID, p.AssetID, p.CreatedAt)
	return mapPgErr(err)
}

func (s *PostgresStore) ListDraftPicks(ctx context.Context, draftStateID string) ([]model.DraftPick, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, draft_state_id, round, pick_number, user_id, asset_id, created_at
		 FROM draft_picks WHERE draft_state_id = $1
		 ORDER BY round ASC, pick_number ASC`, draftStateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var picks []model.DraftPick
	for rows.Next() {
		var p model.DraftPick
		if err := rows.Scan(&p.ID, &p.DraftStateID, &p.Round, &p.PickNumber,
			&p.UserID, &p.AssetID, &p.CreatedAt); err != nil {
			return nil, err
		}
		picks = append(picks, p)
	}
	return picks, rows.Err()
}

// --- Matchups ---

const matchupCols = `id, group_id, week, user1_id, user2_id,
	user1_score::TEXT, user2_score::TEXT, status`

func scanMatchup(row pgx.Row) (*model.Matchup, error) {
	var m model.Matchup
	var s1, s2 string
	if err := row.Scan(&m.ID, &m.GroupID, &m.Week, &m.User1ID, &m.User2ID,
		&s1, &s2, &m.Status); err != nil {
		return nil, mapPgErr(err)
	}
	m.User1Score = dec(s1)
	m.User2Score = dec(s2)
	return &m, nil
}

func (s *PostgresStore) InsertMatchup(ctx context.Context, m *model.Matchup) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO matchups (id, group_id, week, user1_id, user2_id, user1_score, user2_score, status)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8)`,
		m.ID, m.GroupID, m.Week, m.User1ID, m.User2ID,
		m.User1Score.String(), m.User2Score.String(), m.Status)
	return mapPgErr(err)
}

func (s *PostgresStore) ListMatchups(ctx context.Context, groupID string) ([]model.Matchup, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+matchupCols+` FROM matchups WHERE group_id = $1 ORDER BY week ASC, id ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matchups []model.Matchup
	for rows.Next() {
		m, err := scanMatchup(rows)
		if err != nil {
			return nil, err
		}
		matchups = append(matchups, *m)
	}
	return matchups, rows.Err()
}

func (s *PostgresStore) MatchupByWeek(ctx context.Context, groupID, userID string, week int) (*model.Matchup, error) {
	return scanMatchup(s.q.QueryRow(ctx,
		`SELECT `+matchupCols+` FROM matchups
		 WHERE group_id = $1 AND week = $3 AND (user1_id = $2 OR user2_id = $2)`,
		groupID, userID, week))
}

func (s *PostgresStore) UpdateMatchupScores(ctx context.Context, id string, user1Score, user2Score decimal.Decimal, status string) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE matchups SET user1_score = $2::NUMERIC, user2_score = $3::NUMERIC, status = $4 WHERE id = $1`,
		id, user1Score.String(), user2Score.String(), status)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Trade offers ---

const offerCols = `id, group_id, creator_id, recipient_id,
	offered_asset_ids, requested_asset_ids, status, created_at, responded_at`

func scanTradeOffer(row pgx.Row) (*model.TradeOffer, error) {
	var o model.TradeOffer
	if err := row.Scan(&o.ID, &o.GroupID, &o.CreatorID, &o.RecipientID,
		&o.OfferedAssetIDs, &o.RequestedAssetIDs, &o.Status,
		&o.CreatedAt, &o.RespondedAt); err != nil {
		return nil, mapPgErr(err)
	}
	return &o, nil
}

func (s *PostgresStore) InsertTradeOffer(ctx context.Context, o *model.TradeOffer) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO trade_offers (id, group_id, creator_id, recipient_id, offered_asset_ids, requested_asset_ids, status, created_at, responded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.GroupID, o.CreatorID, o.RecipientID,
		o.OfferedAssetIDs, o.RequestedAssetIDs, o.Status, o.CreatedAt, o.RespondedAt)
	return mapPgErr(err)
}

func (s *PostgresStore) GetTradeOffer(ctx context.Context, id string) (*model.TradeOffer, error) {
	return scanTradeOffer(s.q.QueryRow(ctx,
		`SELECT `+offerCols+` FROM trade_offers WHERE id = $1`, id))
}

func (s *PostgresStore) GetTradeOfferForUpdate(ctx context.Context, id string) (*model.TradeOffer, error) {
	return scanTradeOffer(s.q.QueryRow(ctx,
		`SELECT `+offerCols+` FROM trade_offers WHERE id = $1 FOR UPDATE`, id))
}

func (s *PostgresStore) ListTradeOffers(ctx context.Context, groupID, userID string) ([]model.TradeOffer, error) {
	sql := `SELECT ` + offerCols + ` FROM trade_offers WHERE group_id = $1`
	args := []any{groupID}
	if userID != "" {
		sql += ` AND (creator_id = $2 OR recipient_id = $2)`
		args = append(args, userID)
	}
	sql += ` ORDER BY created_at DESC`

	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []model.TradeOffer
	for rows.Next() {
		o, err := scanTradeOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, *o)
	}
	return offers, rows.Err()
}

func (s *PostgresStore) UpdateTradeOfferStatus(ctx context.Context, id, status string, respondedAt time.Time) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE trade_offers SET status = $2, responded_at = $3 WHERE id = $1`,
		id, status, respondedAt)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Waiver claims ---

func (s *PostgresStore) InsertWaiverClaim(ctx context.Context, c *model.WaiverClaim) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO waiver_claims (id, group_id, user_id, asset_id, drop_asset_id, priority, status, created_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)`,
		c.ID, c.GroupID, c.UserID, c.AssetID, c.DropAssetID, c.Priority, c.Status, c.CreatedAt)
	return mapPgErr(err)
}

func (s *PostgresStore) ListWaiverClaims(ctx context.Context, groupID string) ([]model.WaiverClaim, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, group_id, user_id, asset_id, COALESCE(drop_asset_id, ''), priority, status, created_at
		 FROM waiver_claims WHERE group_id = $1 ORDER BY priority ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []model.WaiverClaim
	for rows.Next() {
		var c model.WaiverClaim
		if err := rows.Scan(&c.ID, &c.GroupID, &c.UserID, &c.AssetID,
			&c.DropAssetID, &c.Priority, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func (s *PostgresStore) NextWaiverPriority(ctx context.Context, groupID string) (int, error) {
	var n int
	err := s.q.QueryRow(ctx,
		`SELECT COALESCE(MAX(priority), 0) + 1 FROM waiver_claims
		 WHERE group_id = $1 AND status = 'pending'`, groupID).Scan(&n)
	return n, mapPgErr(err)
}

// --- Notifications ---

func (s *PostgresStore) InsertNotification(ctx context.Context, n *model.Notification) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO notifications (id, user_id, group_id, type, message, is_read, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)`,
		n.ID, n.UserID, n.GroupID, n.Type, n.Message, n.IsRead, n.CreatedAt)
	return mapPgErr(err)
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.Query(ctx,
		`SELECT id, user_id, COALESCE(group_id, ''), type, message, is_read, created_at
		 FROM notifications WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifs []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.GroupID, &n.Type, &n.Message,
			&n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifs = append(notifs, n)
	}
	return notifs, rows.Err()
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
