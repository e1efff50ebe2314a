package models

import "time"

type Tier string

const (
	TierBronze   Tier = "Bronze"
	TierSilver   Tier = "Silver"
	TierGold     Tier = "Gold"
	TierPlatinum Tier = "Platinum"
)

// PointTransaction is one append-only ledger entry. Balance is the running
// balance after this entry.
type PointTransaction struct {
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Points      int64     `json:"points"`
	Balance     int64     `json:"balance"`
}

// RewardsAccount is the persisted shape of users/{uid}/rewards/main. Tier and
// Discount are denormalized from Points.
type RewardsAccount struct {
	Points   int64              `json:"points"`
	Tier     Tier               `json:"tier"`
	Discount int                `json:"discount"`
	History  []PointTransaction `json:"history"`
}

type RedeemRequest struct {
	Points int64 `json:"points" validate:"required,gt=0"`
}

type RedeemResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Discount   int64  `json:"discount"`
	PointsUsed int64  `json:"points_used"`
	Balance    int64  `json:"balance"`
}

type RedeemQuote struct {
	Points    int64 `json:"points"`
	Discount  int64 `json:"discount"`
	CanRedeem bool  `json:"can_redeem"`
	Balance   int64 `json:"balance"`
}
