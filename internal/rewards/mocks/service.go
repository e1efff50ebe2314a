// Package mocks holds testify mocks for the rewards service.
package mocks

import (
	"context"

	"github.com/htkfoods/storefront/internal/docstore"
	"github.com/htkfoods/storefront/internal/models"
	"github.com/stretchr/testify/mock"
)

type Service struct {
	mock.Mock
}

func (m *Service) Account(ctx context.Context, uid string) (*models.RewardsAccount, error) {
	args := m.Called(ctx, uid)

	acc, _ := args.Get(0).(*models.RewardsAccount)
	return acc, args.Error(1)
}

func (m *Service) RedeemPoints(ctx context.Context, uid string, points int64) (*models.RedeemResult, error) {
	args := m.Called(ctx, uid, points)

	result, _ := args.Get(0).(*models.RedeemResult)
	return result, args.Error(1)
}

func (m *Service) Quote(ctx context.Context, uid string, points int64) (*models.RedeemQuote, error) {
	args := m.Called(ctx, uid, points)

	quote, _ := args.Get(0).(*models.RedeemQuote)
	return quote, args.Error(1)
}

// Watch hands fn to the Run hook of the expectation so a test can push
// accounts through it.
func (m *Service) Watch(ctx context.Context, uid string, fn func(*models.RewardsAccount)) (docstore.Unsubscribe, error) {
	args := m.Called(ctx, uid, fn)

	unsubscribe, _ := args.Get(0).(func())
	return unsubscribe, args.Error(1)
}
