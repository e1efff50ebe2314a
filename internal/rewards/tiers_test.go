package rewards_test

import (
	"testing"
	"time"

	"github.com/htkfoods/storefront/internal/models"
	"github.com/htkfoods/storefront/internal/rewards"
	"github.com/stretchr/testify/assert"
)

func TestGetTier(t *testing.T) {
	tests := []struct {
		points   int64
		tier     models.Tier
		discount int
	}{
		{0, models.TierBronze, 0},
		{499, models.TierBronze, 0},
		{500, models.TierSilver, 2},
		{999, models.TierSilver, 2},
		{1000, models.TierGold, 5},
		{1999, models.TierGold, 5},
		{2000, models.TierPlatinum, 8},
		{50000, models.TierPlatinum, 8},
	}

	for _, tc := range tests {
		tier, discount := rewards.GetTier(tc.points)
		assert.Equal(t, tc.tier, tier, "points=%d", tc.points)
		assert.Equal(t, tc.discount, discount, "points=%d", tc.points)
	}
}

func TestConversions(t *testing.T) {
	t.Run("Points to rupees drops partial blocks", func(t *testing.T) {
		assert.Equal(t, int64(20), rewards.PointsToRupees(250))
		assert.Equal(t, int64(10), rewards.PointsToRupees(100))
		assert.Equal(t, int64(0), rewards.PointsToRupees(99))
		assert.Equal(t, int64(0), rewards.PointsToRupees(-100))
	})

	t.Run("Rupees to points", func(t *testing.T) {
		assert.Equal(t, int64(149), rewards.RupeesToPoints(1499))
		assert.Equal(t, int64(0), rewards.RupeesToPoints(9.99))
		assert.Equal(t, int64(0), rewards.RupeesToPoints(-50))
	})

	t.Run("Redemption floor", func(t *testing.T) {
		assert.False(t, rewards.CanRedeem(500, 99))
		assert.True(t, rewards.CanRedeem(100, 100))
		assert.False(t, rewards.CanRedeem(99, 100))
	})
}

func TestVerify(t *testing.T) {
	now := time.Now()

	t.Run("Consistent account", func(t *testing.T) {
		acc := &models.RewardsAccount{
			Points: 550, Tier: models.TierSilver, Discount: 2,
			History: []models.PointTransaction{
				{Date: now, Points: 600, Balance: 600},
				{Date: now, Points: -50, Balance: 550},
			},
		}
		assert.NoError(t, rewards.Verify(acc))
	})

	t.Run("Wrong running balance", func(t *testing.T) {
		acc := &models.RewardsAccount{
			Points: 550, Tier: models.TierSilver, Discount: 2,
			History: []models.PointTransaction{
				{Date: now, Points: 600, Balance: 600},
				{Date: now, Points: -50, Balance: 560},
			},
		}
		assert.ErrorContains(t, rewards.Verify(acc), "history[1]")
	})

	t.Run("Tier drift", func(t *testing.T) {
		acc := &models.RewardsAccount{
			Points: 1000, Tier: models.TierSilver, Discount: 2,
			History: []models.PointTransaction{{Date: now, Points: 1000, Balance: 1000}},
		}
		assert.ErrorContains(t, rewards.Verify(acc), "tier")
	})

	t.Run("Points without history", func(t *testing.T) {
		acc := &models.RewardsAccount{Points: 10, Tier: models.TierBronze}
		assert.Error(t, rewards.Verify(acc))
	})

	t.Run("New account", func(t *testing.T) {
		assert.NoError(t, rewards.Verify(rewards.NewAccount()))
	})
}
