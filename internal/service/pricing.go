package service

import "github.com/lakumart/groupbuy-server-go/internal/model"

// minFillPercent is the apparent fill floor every session is guaranteed to
// reach, via synthetic demand when real buyers fall short.
const minFillPercent = 25.0

// FillPercent returns the percentage of the target MOQ covered by quantity.
// Quantities above the target yield values over 100; overselling is allowed.
func FillPercent(quantity, targetMoq int) float64 {
	if targetMoq <= 0 {
		return 0
	}
	return float64(quantity) / float64(targetMoq) * 100
}

// TierForFill selects the discount tier for a given fill. The highest tier
// whose threshold is covered wins, so ties resolve to the cheaper price.
// Anything below 25% still gets the tier-25 price.
func TierForFill(quantity, targetMoq int) model.Tier {
	fill := FillPercent(quantity, targetMoq)
	switch {
	case fill >= 100:
		return model.Tier100
	case fill >= 75:
		return model.Tier75
	case fill >= 50:
		return model.Tier50
	default:
		return model.Tier25
	}
}

// BotQuantityFor sizes the synthetic participant that lifts a session to
// exactly 25% apparent fill: ceil(targetMoq * 0.25) - realQuantity.
// A result <= 0 means no bot is needed.
func BotQuantityFor(targetMoq, realQuantity int) int {
	return (targetMoq + 3) / 4 - realQuantity
}
