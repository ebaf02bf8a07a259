// Package offers implements inter-participant trade proposals and waiver
// claims. An offer lists holdings from each side; accepting swaps them
// between the two portfolios in one transaction.
package offers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/paperleague/league-engine/internal/httpapi"
	"github.com/paperleague/league-engine/internal/model"
	"github.com/paperleague/league-engine/internal/notify"
	"github.com/paperleague/league-engine/internal/store"
	"github.com/paperleague/league-engine/internal/valuation"
)

var (
	// ErrOfferNotPending is returned when responding to an offer that was
	// already resolved.
	ErrOfferNotPending = errors.New("offers: offer is not pending")

	// ErrNotOfferParty is returned when the acting user is not the side of
	// the offer the operation requires.
	ErrNotOfferParty = errors.New("offers: not a party to this offer")

	// ErrAssetNotHeld is returned when a listed asset is no longer in the
	// expected portfolio.
	ErrAssetNotHeld = errors.New("offers: asset not held")

	// ErrAssetAlreadyHeld is returned when a swap would give a portfolio a
	// second holding in the same asset.
	ErrAssetAlreadyHeld = errors.New("offers: asset already held by counterparty")
)

// Service handles trade offers and waiver claims.
type Service struct {
	store  store.Store
	engine *valuation.Engine
}

// NewService creates an offers service.
func NewService(st store.Store, engine *valuation.Engine) *Service {
	return &Service{store: st, engine: engine}
}

// CreateOfferRequest is the JSON body for proposing a trade.
type CreateOfferRequest struct {
	RecipientID       string   `json:"recipient_id"`
	OfferedAssetIDs   []string `json:"offered_asset_ids"`
	RequestedAssetIDs []string `json:"requested_asset_ids"`
}

// WaiverRequest is the JSON body for submitting a waiver claim.
type WaiverRequest struct {
	AssetID     string `json:"asset_id"`
	DropAssetID string `json:"drop_asset_id,omitempty"`
}

// Create handles POST /api/v1/leagues/{groupID}/offers. Both sides must be
// members and must currently hold the assets they are putting up.
func (s *Service) Create(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	userID := httpapi.UserID(r.Context())
	ctx := r.Context()

	var req CreateOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.RecipientID == "" {
		httpapi.WriteError(w, "recipient_id is required", http.StatusBadRequest)
		return
	}
	if req.RecipientID == userID {
		httpapi.WriteError(w, "cannot trade with yourself", http.StatusBadRequest)
		return
	}
	if len(req.OfferedAssetIDs) == 0 && len(req.RequestedAssetIDs) == 0 {
		httpapi.WriteError(w, "offer must list at least one asset", http.StatusBadRequest)
		return
	}

	if _, err := s.store.GetMembership(ctx, groupID, req.RecipientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpapi.WriteError(w, "recipient is not a member of this group", http.StatusBadRequest)
			return
		}
		s.writeOfferError(w, err)
		return
	}

	if err := s.checkHeld(ctx, s.store, groupID, userID, req.OfferedAssetIDs); err != nil {
		s.writeOfferError(w, err)
		return
	}
	if err := s.checkHeld(ctx, s.store, groupID, req.RecipientID, req.RequestedAssetIDs); err != nil {
		s.writeOfferError(w, err)
		return
	}

	offer := &model.TradeOffer{
		ID:                uuid.New().String(),
		GroupID:           groupID,
		CreatorID:         userID,
		RecipientID:       req.RecipientID,
		OfferedAssetIDs:   req.OfferedAssetIDs,
		RequestedAssetIDs: req.RequestedAssetIDs,
		Status:            model.OfferPending,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.store.InsertTradeOffer(ctx, offer); err != nil {
		s.writeOfferError(w, err)
		return
	}

	if err := notify.Push(ctx, s.store, req.RecipientID, groupID,
		model.NotifOfferReceived, "you received a trade offer"); err != nil {
		slog.Error("notification push failed", "err", err)
	}

	slog.Info("trade offer created", "offer", offer.ID, "group", groupID,
		"creator", userID, "recipient", req.RecipientID)
	httpapi.WriteJSON(w, http.StatusCreated, offer)
}

// checkHeld verifies the user's portfolio holds every listed asset.
func (s *Service) checkHeld(ctx context.Context, st store.Store, groupID, userID string, assetIDs []string) error {
	if len(assetIDs) == 0 {
		return nil
	}
	portfolio, err := st.GetPortfolio(ctx, groupID, userID)
	if err != nil {
		return err
	}
	for _, assetID := range assetIDs {
		if _, err := st.GetHolding(ctx, portfolio.ID, assetID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrAssetNotHeld, assetID)
			}
			return err
		}
	}
	return nil
}

// List handles GET /api/v1/leagues/{groupID}/offers: the acting user's
// offers, or the whole group's with ?all=true.
func (s *Service) List(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	userID := httpapi.UserID(r.Context())

	filter := userID
	if r.URL.Query().Get("all") == "true" {
		filter = ""
	}

	offers, err := s.store.ListTradeOffers(r.Context(), groupID, filter)
	if err != nil {
		s.writeOfferError(w, err)
		return
	}
	if offers == nil {
		offers = []model.TradeOffer{}
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

// Accept handles POST /api/v1/offers/{offerID}/accept. The swap runs in one
// transaction with the offer row locked: every listed holding moves to the
// other side's portfolio or nothing does.
func (s *Service) Accept(w http.ResponseWriter, r *http.Request) {
	offerID := chi.URLParam(r, "offerID")
	userID := httpapi.UserID(r.Context())
	ctx := r.Context()

	var offer *model.TradeOffer
	var creatorPortfolioID, recipientPortfolioID string
	err := s.store.InTx(ctx, func(tx store.Store) error {
		var err error
		offer, err = tx.GetTradeOfferForUpdate(ctx, offerID)
		if err != nil {
			return err
		}
		if offer.RecipientID != userID {
			return ErrNotOfferParty
		}
		if offer.Status != model.OfferPending {
			return ErrOfferNotPending
		}

		// Lock both portfolios in user-ID order so two concurrent accepts
		// touching the same pair cannot deadlock.
		first, second := offer.CreatorID, offer.RecipientID
		if second < first {
			first, second = second, first
		}
		if _, err := tx.GetPortfolioForUpdate(ctx, offer.GroupID, first); err != nil {
			return err
		}
		if _, err := tx.GetPortfolioForUpdate(ctx, offer.GroupID, second); err != nil {
			return err
		}

		creator, err := tx.GetPortfolio(ctx, offer.GroupID, offer.CreatorID)
		if err != nil {
			return err
		}
		recipient, err := tx.GetPortfolio(ctx, offer.GroupID, offer.RecipientID)
		if err != nil {
			return err
		}
		creatorPortfolioID = creator.ID
		recipientPortfolioID = recipient.ID

		if err := swapHoldings(ctx, tx, creator.ID, recipient.ID, offer.OfferedAssetIDs); err != nil {
			return err
		}
		if err := swapHoldings(ctx, tx, recipient.ID, creator.ID, offer.RequestedAssetIDs); err != nil {
			return err
		}

		return tx.UpdateTradeOfferStatus(ctx, offer.ID, model.OfferAccepted, time.Now().UTC())
	})
	if err != nil {
		s.writeOfferError(w, err)
		return
	}

	for _, id := range []string{creatorPortfolioID, recipientPortfolioID} {
		if _, err := s.engine.RecalculatePortfolio(ctx, id); err != nil {
			slog.Error("post-swap revaluation failed", "portfolio", id, "err", err)
		}
	}
	if err := notify.Push(ctx, s.store, offer.CreatorID, offer.GroupID,
		model.NotifOfferAccepted, "your trade offer was accepted"); err != nil {
		slog.Error("notification push failed", "err", err)
	}

	offer.Status = model.OfferAccepted
	slog.Info("trade offer accepted", "offer", offer.ID, "group", offer.GroupID)
	httpapi.WriteJSON(w, http.StatusOK, offer)
}

// swapHoldings moves the listed assets from one portfolio to the other.
func swapHoldings(ctx context.Context, tx store.Store, fromID, toID string, assetIDs []string) error {
	for _, assetID := range assetIDs {
		h, err := tx.GetHolding(ctx, fromID, assetID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrAssetNotHeld, assetID)
			}
			return err
		}
		if err := tx.ReassignHolding(ctx, h.ID, toID); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("%w: %s", ErrAssetAlreadyHeld, assetID)
			}
			return err
		}
	}
	return nil
}

// Reject handles POST /api/v1/offers/{offerID}/reject. Recipient only.
func (s *Service) Reject(w http.ResponseWriter, r *http.Request) {
	s.resolve(w, r, model.OfferRejected)
}

// Cancel handles POST /api/v1/offers/{offerID}/cancel. Creator only.
func (s *Service) Cancel(w http.ResponseWriter, r *http.Request) {
	s.resolve(w, r, model.OfferCancelled)
}

func (s *Service) resolve(w http.ResponseWriter, r *http.Request, status string) {
	offerID := chi.URLParam(r, "offerID")
	userID := httpapi.UserID(r.Context())
	ctx := r.Context()

	var offer *model.TradeOffer
	err := s.store.InTx(ctx, func(tx store.Store) error {
		var err error
		offer, err = tx.GetTradeOfferForUpdate(ctx, offerID)
		if err != nil {
			return err
		}
		switch status {
		case model.OfferRejected:
			if offer.RecipientID != userID {
				return ErrNotOfferParty
			}
		case model.OfferCancelled:
			if offer.CreatorID != userID {
				return ErrNotOfferParty
			}
		}
		if offer.Status != model.OfferPending {
			return ErrOfferNotPending
		}
		return tx.UpdateTradeOfferStatus(ctx, offer.ID, status, time.Now().UTC())
	})
	if err != nil {
		s.writeOfferError(w, err)
		return
	}

	if status == model.OfferRejected {
		if err := notify.Push(ctx, s.store, offer.CreatorID, offer.GroupID,
			model.NotifOfferRejected, "your trade offer was rejected"); err != nil {
			slog.Error("notification push failed", "err", err)
		}
	}

	offer.Status = status
	httpapi.WriteJSON(w, http.StatusOK, offer)
}

// SubmitWaiver handles POST /api/v1/leagues/{groupID}/waivers. Priority is
// assigned first-come among the group's pending claims.
func (s *Service) SubmitWaiver(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	userID := httpapi.UserID(r.Context())
	ctx := r.Context()

	var req WaiverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AssetID == "" {
		httpapi.WriteError(w, "asset_id is required", http.StatusBadRequest)
		return
	}

	if _, err := s.store.GetMembership(ctx, groupID, userID); err != nil {
		s.writeOfferError(w, err)
		return
	}
	asset, err := s.store.GetAsset(ctx, req.AssetID)
	if err != nil {
		s.writeOfferError(w, err)
		return
	}
	if !asset.IsActive {
		httpapi.WriteError(w, "asset is not active", http.StatusBadRequest)
		return
	}

	var claim *model.WaiverClaim
	err = s.store.InTx(ctx, func(tx store.Store) error {
		priority, err := tx.NextWaiverPriority(ctx, groupID)
		if err != nil {
			return err
		}
		claim = &model.WaiverClaim{
			ID:          uuid.New().String(),
			GroupID:     groupID,
			UserID:      userID,
			AssetID:     req.AssetID,
			DropAssetID: req.DropAssetID,
			Priority:    priority,
			Status:      model.ClaimPending,
			CreatedAt:   time.Now().UTC(),
		}
		return tx.InsertWaiverClaim(ctx, claim)
	})
	if err != nil {
		s.writeOfferError(w, err)
		return
	}

	slog.Info("waiver claim submitted", "group", groupID, "user", userID,
		"asset", req.AssetID, "priority", claim.Priority)
	httpapi.WriteJSON(w, http.StatusCreated, claim)
}

// ListWaivers handles GET /api/v1/leagues/{groupID}/waivers in priority
// order.
func (s *Service) ListWaivers(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	claims, err := s.store.ListWaiverClaims(r.Context(), groupID)
	if err != nil {
		s.writeOfferError(w, err)
		return
	}
	if claims == nil {
		claims = []model.WaiverClaim{}
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"claims": claims})
}

func (s *Service) writeOfferError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotOfferParty):
		httpapi.WriteError(w, "not a party to this offer", http.StatusForbidden)
	case errors.Is(err, ErrOfferNotPending):
		httpapi.WriteError(w, "offer is not pending", http.StatusConflict)
	case errors.Is(err, ErrAssetNotHeld):
		httpapi.WriteError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrAssetAlreadyHeld):
		httpapi.WriteError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		httpapi.WriteError(w, "not found", http.StatusNotFound)
	case errors.Is(err, store.ErrConflict):
		httpapi.WriteError(w, "conflict", http.StatusConflict)
	default:
		slog.Error("offer operation failed", "err", err)
		httpapi.WriteError(w, "internal error", http.StatusInternalServerError)
	}
}
