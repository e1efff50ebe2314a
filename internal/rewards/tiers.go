// Package rewards is the loyalty points ledger: earning, redemption and the
// tier a balance falls into.
package rewards

import (
	"errors"
	"fmt"
	"math"

	"github.com/htkfoods/storefront/internal/models"
)

const (
	// MinRedeemPoints is the smallest redemption accepted.
	MinRedeemPoints = 100
	PointsPerBlock  = 100
	RupeesPerBlock  = 10
	RupeesPerPoint  = 10
)

var tiers = []struct {
	threshold int64
	tier      models.Tier
	discount  int
}{
	{2000, models.TierPlatinum, 8},
	{1000, models.TierGold, 5},
	{500, models.TierSilver, 2},
	{0, models.TierBronze, 0},
}

// GetTier returns the tier and its discount percentage for a balance.
func GetTier(points int64) (models.Tier, int) {
	for _, t := range tiers {
		if points >= t.threshold {
			return t.tier, t.discount
		}
	}
	return models.TierBronze, 0
}

// RupeesToPoints is the earning rate: one point per ₹10 spent.
func RupeesToPoints(amount float64) int64 {
	if amount <= 0 {
		return 0
	}
	return int64(math.Floor(amount / RupeesPerPoint))
}

// PointsToRupees quantizes to whole 100-point blocks worth ₹10 each.
func PointsToRupees(points int64) int64 {
	if points <= 0 {
		return 0
	}
	return (points / PointsPerBlock) * RupeesPerBlock
}

// RedeemablePoints is the part of points that PointsToRupees converts.
func RedeemablePoints(points int64) int64 {
	if points <= 0 {
		return 0
	}
	return (points / PointsPerBlock) * PointsPerBlock
}

func CanRedeem(balance, points int64) bool {
	return balance >= points && points >= MinRedeemPoints
}

func NewAccount() *models.RewardsAccount {
	tier, discount := GetTier(0)
	return &models.RewardsAccount{Tier: tier, Discount: discount, History: []models.PointTransaction{}}
}

// Verify checks that the history replays to the stored balance and that the
// denormalized tier matches it.
func Verify(acc *models.RewardsAccount) error {
	if acc == nil {
		return errors.New("nil account")
	}

	var running int64
	for i, tx := range acc.History {
		running += tx.Points
		if tx.Balance != running {
			return fmt.Errorf("history[%d]: balance %d, running sum %d", i, tx.Balance, running)
		}
		if running < 0 {
			return fmt.Errorf("history[%d]: balance went negative", i)
		}
	}

	if running != acc.Points {
		return fmt.Errorf("points %d do not match history sum %d", acc.Points, running)
	}

	tier, discount := GetTier(acc.Points)
	if acc.Tier != tier || acc.Discount != discount {
		return fmt.Errorf("tier %s/%d%% does not match %s/%d%% for %d points",
			acc.Tier, acc.Discount, tier, discount, acc.Points)
	}

	return nil
}
