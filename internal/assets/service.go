// Package assets exposes the asset catalog over HTTP: browse with filters,
// look up by ticker, and seed new instruments.
package assets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paperleague/league-engine/internal/httpapi"
	"github.com/paperleague/league-engine/internal/model"
	"github.com/paperleague/league-engine/internal/store"
)

// Service handles asset catalog operations.
type Service struct {
	store store.Store
}

// NewService creates an asset catalog service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// AssetView decorates an asset with its derived day change.
type AssetView struct {
	model.Asset
	ChangePercent decimal.Decimal `json:"change_percent"`
}

// List handles GET /api/v1/assets. Query params: class (repeatable),
// min_price, search, limit.
func (s *Service) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.AssetFilter{
		Classes:    q["class"],
		Search:     q.Get("search"),
		ActiveOnly: true,
	}
	if v := q.Get("min_price"); v != "" {
		min, err := decimal.NewFromString(v)
		if err != nil {
			httpapi.WriteError(w, "invalid min_price", http.StatusBadRequest)
			return
		}
		filter.MinPrice = &min
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httpapi.WriteError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	list, err := s.store.ListAssets(r.Context(), filter)
	if err != nil {
		slog.Error("asset listing failed", "err", err)
		httpapi.WriteError(w, "internal error", http.StatusInternalServerError)
		return
	}

	views := make([]AssetView, 0, len(list))
	for _, a := range list {
		views = append(views, AssetView{Asset: a, ChangePercent: a.ChangePercent()})
	}
	httpapi.WriteJSON(w, http.StatusOK, views)
}

// Get handles GET /api/v1/assets/{ticker}.
func (s *Service) Get(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")

	a, err := s.store.GetAssetByTicker(r.Context(), ticker)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpapi.WriteError(w, "unknown ticker", http.StatusNotFound)
			return
		}
		httpapi.WriteError(w, "internal error", http.StatusInternalServerError)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, AssetView{Asset: *a, ChangePercent: a.ChangePercent()})
}

// CreateRequest is the JSON body for seeding an instrument.
type CreateRequest struct {
	Ticker          string          `json:"ticker"`
	Name            string          `json:"name"`
	Class           string          `json:"class"`
	Tier            int             `json:"tier"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	MarketCap       decimal.Decimal `json:"market_cap"`
	RequiredLessons []string        `json:"required_lessons"`
}

// Create handles POST /api/v1/assets.
func (s *Service) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Ticker == "" || req.Name == "" {
		httpapi.WriteError(w, "ticker and name are required", http.StatusBadRequest)
		return
	}
	switch req.Class {
	case model.AssetClassStock, model.AssetClassETF, model.AssetClassCommodity, model.AssetClassREIT:
	default:
		httpapi.WriteError(w, "unknown asset class", http.StatusBadRequest)
		return
	}
	if !req.CurrentPrice.IsPositive() {
		httpapi.WriteError(w, "current_price must be positive", http.StatusBadRequest)
		return
	}

	a := &model.Asset{
		ID:              uuid.New().String(),
		Ticker:          req.Ticker,
		Name:            req.Name,
		Class:           req.Class,
		Tier:            req.Tier,
		CurrentPrice:    req.CurrentPrice,
		PreviousClose:   req.CurrentPrice,
		MarketCap:       req.MarketCap,
		IsActive:        true,
		RequiredLessons: req.RequiredLessons,
		UpdatedAt:       time.Now().UTC(),
	}
	if err := s.store.CreateAsset(r.Context(), a); err != nil {
		if errors.Is(err, store.ErrConflict) {
			httpapi.WriteError(w, "ticker already exists", http.StatusConflict)
			return
		}
		slog.Error("asset creation failed", "err", err)
		httpapi.WriteError(w, "internal error", http.StatusInternalServerError)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, a)
}
