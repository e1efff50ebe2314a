package rewards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/htkfoods/storefront/internal/docstore"
	appErrors "github.com/htkfoods/storefront/internal/errors"
	"github.com/htkfoods/storefront/internal/metrics"
	"github.com/htkfoods/storefront/internal/models"
)

type Service interface {
	Account(ctx context.Context, uid string) (*models.RewardsAccount, error)
	RedeemPoints(ctx context.Context, uid string, points int64) (*models.RedeemResult, error)
	Quote(ctx context.Context, uid string, points int64) (*models.RedeemQuote, error)
	Watch(ctx context.Context, uid string, fn func(*models.RewardsAccount)) (docstore.Unsubscribe, error)
}

var errInsufficient = errors.New("insufficient points")

type Ledger struct {
	docs       docstore.Store
	now        func() time.Time
	newBackOff func() backoff.BackOff
}

func NewLedger(docs docstore.Store) *Ledger {
	return &Ledger{docs: docs, now: time.Now, newBackOff: docstore.DefaultBackOff}
}

func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) WithBackOff(newBackOff func() backoff.BackOff) *Ledger {
	l.newBackOff = newBackOff
	return l
}

// Account returns the user's account, creating an empty one on first use.
func (l *Ledger) Account(ctx context.Context, uid string) (*models.RewardsAccount, error) {
	if uid == "" {
		return nil, appErrors.UnauthorizedError("Authentication required")
	}

	path := docstore.RewardsPath(uid)

	for range 2 {
		doc, err := l.docs.Get(ctx, path)
		if err == nil {
			return decodeAccount(doc)
		}
		if !errors.Is(err, docstore.ErrNotFound) {
			return nil, appErrors.DatabaseError("Failed to load rewards").WithError(err)
		}

		acc := NewAccount()
		err = l.docs.CompareAndSet(ctx, path, 0, acc)
		if err == nil {
			return acc, nil
		}
		if !errors.Is(err, docstore.ErrConflict) {
			return nil, appErrors.DatabaseError("Failed to create rewards account").WithError(err)
		}
		// Another session created it first; read theirs.
	}

	return nil, appErrors.ConflictError("Rewards account is being updated, please retry")
}

// AddPoints credits amount points. Non-positive amounts and anonymous users
// are ignored and yield a nil account.
func (l *Ledger) AddPoints(ctx context.Context, uid string, amount int64, description string) (*models.RewardsAccount, error) {
	if amount <= 0 || uid == "" {
		return nil, nil
	}

	var updated *models.RewardsAccount

	err := docstore.Update(ctx, l.docs, docstore.RewardsPath(uid), l.newBackOff, func(current *docstore.Document) (any, error) {
		acc, err := accountOrNew(current)
		if err != nil {
			return nil, err
		}

		l.append(acc, amount, description)
		updated = acc
		return acc, nil
	})
	if err != nil {
		return nil, appErrors.DatabaseError("Failed to add points").WithError(err)
	}

	metrics.PointsEarned(amount)
	slog.Info("Points added", slog.String("uid", uid), slog.Int64("points", amount), slog.Int64("balance", updated.Points))

	return updated, nil
}

// AwardPurchase credits the points earned by a completed order.
func (l *Ledger) AwardPurchase(ctx context.Context, uid string, orderTotal float64, orderRef string) (*models.RewardsAccount, error) {
	return l.AddPoints(ctx, uid, RupeesToPoints(orderTotal), fmt.Sprintf("Earned on order #%s", orderRef))
}

// RedeemPoints converts whole 100-point blocks of points into a rupee
// discount. Points below the next block stay in the balance. Rule
// violations are reported in the result.
func (l *Ledger) RedeemPoints(ctx context.Context, uid string, points int64) (*models.RedeemResult, error) {
	if uid == "" {
		return &models.RedeemResult{Message: "Please sign in to redeem points"}, nil
	}
	if points < MinRedeemPoints {
		return &models.RedeemResult{Message: fmt.Sprintf("Minimum %d points required to redeem", MinRedeemPoints)}, nil
	}

	block := RedeemablePoints(points)
	discount := PointsToRupees(points)

	var updated *models.RewardsAccount
	var balance int64

	err := docstore.Update(ctx, l.docs, docstore.RewardsPath(uid), l.newBackOff, func(current *docstore.Document) (any, error) {
		acc, err := accountOrNew(current)
		if err != nil {
			return nil, err
		}

		balance = acc.Points
		if !CanRedeem(acc.Points, points) {
			return nil, errInsufficient
		}

		l.append(acc, -block, fmt.Sprintf("Redeemed for ₹%d discount", discount))
		updated = acc
		return acc, nil
	})

	if errors.Is(err, errInsufficient) {
		return &models.RedeemResult{Message: "Insufficient points balance", Balance: balance}, nil
	}
	if err != nil {
		return nil, appErrors.DatabaseError("Failed to redeem points").WithError(err)
	}

	metrics.PointsRedeemed(block)

	return &models.RedeemResult{
		Success:    true,
		Message:    fmt.Sprintf("Redeemed %d points for ₹%d off", block, discount),
		Discount:   discount,
		PointsUsed: block,
		Balance:    updated.Points,
	}, nil
}

func (l *Ledger) Quote(ctx context.Context, uid string, points int64) (*models.RedeemQuote, error) {
	acc, err := l.Account(ctx, uid)
	if err != nil {
		return nil, err
	}

	return &models.RedeemQuote{
		Points:    points,
		Discount:  PointsToRupees(points),
		CanRedeem: CanRedeem(acc.Points, points),
		Balance:   acc.Points,
	}, nil
}

// Watch streams the account on every remote change. A missing record is
// reported as an empty account.
func (l *Ledger) Watch(ctx context.Context, uid string, fn func(*models.RewardsAccount)) (docstore.Unsubscribe, error) {
	if uid == "" {
		return nil, appErrors.UnauthorizedError("Authentication required")
	}

	return l.docs.Subscribe(ctx, docstore.RewardsPath(uid), func(doc *docstore.Document) {
		acc, err := accountOrNew(doc)
		if err != nil {
			slog.Warn("Ignoring undecodable rewards update", slog.String("uid", uid), slog.String("error", err.Error()))
			return
		}
		fn(acc)
	})
}

// append records a transaction and recomputes the tier from scratch.
func (l *Ledger) append(acc *models.RewardsAccount, points int64, description string) {
	acc.Points += points
	acc.History = append(acc.History, models.PointTransaction{
		Date:        l.now().UTC(),
		Description: description,
		Points:      points,
		Balance:     acc.Points,
	})
	acc.Tier, acc.Discount = GetTier(acc.Points)
}

func accountOrNew(doc *docstore.Document) (*models.RewardsAccount, error) {
	if doc == nil {
		return NewAccount(), nil
	}
	return decodeAccount(doc)
}

func decodeAccount(doc *docstore.Document) (*models.RewardsAccount, error) {
	acc := &models.RewardsAccount{}
	if err := doc.Decode(acc); err != nil {
		return nil, appErrors.InternalError("Corrupt rewards record").WithError(err)
	}

	if acc.History == nil {
		acc.History = []models.PointTransaction{}
	}

	tier, discount := GetTier(acc.Points)
	if acc.Tier != tier || acc.Discount != discount {
		slog.Warn("Rewards tier drift corrected",
			slog.String("path", doc.Path),
			slog.String("stored_tier", string(acc.Tier)),
			slog.String("tier", string(tier)),
		)
		acc.Tier, acc.Discount = tier, discount
	}

	return acc, nil
}
