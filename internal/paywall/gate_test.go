package paywall

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrvasilyev/pixel-pop-v2/internal/api"
	"github.com/mrvasilyev/pixel-pop-v2/internal/models"
)

func TestCanAfford(t *testing.T) {
	assert.False(t, CanAfford(nil, models.TierStandard))
	assert.False(t, CanAfford(&api.UserInfo{}, models.TierStandard))
	assert.True(t, CanAfford(&api.UserInfo{StandardCredits: 1}, models.TierStandard))

	// Premium actions never draw from the standard balance.
	assert.False(t, CanAfford(&api.UserInfo{StandardCredits: 10}, models.TierPremium))
	assert.True(t, CanAfford(&api.UserInfo{PremiumCredits: 1}, models.TierPremium))
}

func TestRequestActionOpensPaywallOnDeny(t *testing.T) {
	gate := NewGate(nil)
	gate.SetUser(&api.UserInfo{StandardCredits: 0})

	assert.False(t, gate.RequestAction())
	assert.True(t, gate.PaywallOpen())

	gate.ClosePaywall()
	assert.False(t, gate.PaywallOpen())
}

func TestRequestActionAllowsWithBalance(t *testing.T) {
	gate := NewGate(nil)
	gate.SetUser(&api.UserInfo{StandardCredits: 2})

	assert.True(t, gate.RequestAction())
	assert.False(t, gate.PaywallOpen())
}

func TestRequestActionUnknownUserDenies(t *testing.T) {
	gate := NewGate(nil)
	assert.False(t, gate.RequestAction())
	assert.True(t, gate.PaywallOpen())
}

func TestPremiumModeSelectsTier(t *testing.T) {
	gate := NewGate(nil)
	assert.Equal(t, models.TierStandard, gate.Tier())

	gate.SetPremiumMode(true)
	assert.Equal(t, models.TierPremium, gate.Tier())
}

type stubFetcher struct {
	user *api.UserInfo
}

func (f *stubFetcher) GetUser(ctx context.Context) (*api.UserInfo, error) {
	return f.user, nil
}

func TestRefreshUpdatesBalance(t *testing.T) {
	gate := NewGate(nil)
	fetcher := &stubFetcher{user: &api.UserInfo{StandardCredits: 5}}

	gate.Refresh(context.Background(), fetcher)
	require.NotNil(t, gate.User())
	assert.Equal(t, 5, gate.User().StandardCredits)
}

func TestRefreshKeepsStaleBalanceOnNilUser(t *testing.T) {
	gate := NewGate(nil)
	gate.SetUser(&api.UserInfo{StandardCredits: 3})

	gate.Refresh(context.Background(), &stubFetcher{user: nil})
	require.NotNil(t, gate.User())
	assert.Equal(t, 3, gate.User().StandardCredits)
}
