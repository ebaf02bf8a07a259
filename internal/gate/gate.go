// Package gate enforces trade-entry eligibility: league policy (trading
// toggle, enabled asset classes, minimum price) and prerequisite lessons.
// Both the trading and drafting paths run through these checks before any
// mutation.
package gate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/paperleague/league-engine/internal/config"
	"github.com/paperleague/league-engine/internal/model"
)

// ErrTradingNotPermitted is returned when league policy forbids the trade.
// Wrapped errors carry the specific reason.
var ErrTradingNotPermitted = errors.New("gate: trading not permitted")

// LessonRequiredError reports the prerequisite lessons the participant has
// not completed for a gated asset.
type LessonRequiredError struct {
	AssetTicker string
	Missing     []string
}

func (e *LessonRequiredError) Error() string {
	return fmt.Sprintf("gate: asset %s requires lessons: %s",
		e.AssetTicker, strings.Join(e.Missing, ", "))
}

// CheckPolicy validates league settings against the asset being traded.
func CheckPolicy(settings *config.Settings, asset *model.Asset) error {
	if !settings.TradingEnabled {
		return fmt.Errorf("%w: trading is disabled for this league", ErrTradingNotPermitted)
	}
	if !settings.ClassEnabled(asset.Class) {
		return fmt.Errorf("%w: asset class %s is not enabled", ErrTradingNotPermitted, asset.Class)
	}
	if min := decimal.NewFromFloat(settings.MinAssetPrice); asset.CurrentPrice.LessThan(min) {
		return fmt.Errorf("%w: asset price is below league minimum of $%s",
			ErrTradingNotPermitted, min.String())
	}
	return nil
}

// CheckLessons validates the asset's prerequisite lessons against the
// participant's completions.
func CheckLessons(user *model.User, asset *model.Asset) error {
	if len(asset.RequiredLessons) == 0 {
		return nil
	}
	missing := user.MissingLessons(asset.RequiredLessons)
	if len(missing) == 0 {
		return nil
	}
	return &LessonRequiredError{AssetTicker: asset.Ticker, Missing: missing}
}
