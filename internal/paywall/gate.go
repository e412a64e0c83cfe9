package paywall

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mrvasilyev/pixel-pop-v2/internal/api"
	"github.com/mrvasilyev/pixel-pop-v2/internal/models"
)

// CanAfford reports whether the user's balance for the tier covers one
// generation. A nil user never can.
func CanAfford(user *api.UserInfo, tier models.CreditTier) bool {
	if user == nil {
		return false
	}
	if tier == models.TierPremium {
		return user.PremiumCredits >= 1
	}
	return user.StandardCredits >= 1
}

// UserFetcher refreshes the cached user record.
type UserFetcher interface {
	GetUser(ctx context.Context) (*api.UserInfo, error)
}

// Gate decides whether a credit-gated action may proceed, based solely on the
// last-fetched balance. It never makes a server round-trip to check
// eligibility; an insufficient-funds rejection surfaces through the normal
// error path of the generation call itself.
type Gate struct {
	mu          sync.RWMutex
	user        *api.UserInfo
	premiumMode bool
	paywallOpen bool
	log         *slog.Logger
}

func NewGate(log *slog.Logger) *Gate {
	return &Gate{log: log}
}

func (g *Gate) SetUser(user *api.UserInfo) {
	g.mu.Lock()
	g.user = user
	g.mu.Unlock()
}

func (g *Gate) User() *api.UserInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.user
}

// SetPremiumMode flips the global quality preference that selects which
// balance gates an action.
func (g *Gate) SetPremiumMode(on bool) {
	g.mu.Lock()
	g.premiumMode = on
	g.mu.Unlock()
}

func (g *Gate) PremiumMode() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.premiumMode
}

// Tier returns the credit tier selected by the quality mode.
func (g *Gate) Tier() models.CreditTier {
	if g.PremiumMode() {
		return models.TierPremium
	}
	return models.TierStandard
}

// RequestAction reports whether a gated action may proceed. When it may not,
// the paywall is opened and the caller must perform no upload or generation.
func (g *Gate) RequestAction() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	tier := models.TierStandard
	if g.premiumMode {
		tier = models.TierPremium
	}
	if CanAfford(g.user, tier) {
		return true
	}
	g.paywallOpen = true
	return false
}

func (g *Gate) PaywallOpen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.paywallOpen
}

func (g *Gate) OpenPaywall() {
	g.mu.Lock()
	g.paywallOpen = true
	g.mu.Unlock()
}

func (g *Gate) ClosePaywall() {
	g.mu.Lock()
	g.paywallOpen = false
	g.mu.Unlock()
}

// Refresh fetches the user record once and caches it. A fetch failure keeps
// the previous balance; the fetcher already fails soft.
func (g *Gate) Refresh(ctx context.Context, fetcher UserFetcher) {
	user, err := fetcher.GetUser(ctx)
	if err != nil || user == nil {
		return
	}
	g.SetUser(user)
}

// RunRefresh refreshes immediately and then on the given interval until ctx
// is done. Balances also change after mutating actions; callers trigger an
// extra Refresh there.
func (g *Gate) RunRefresh(ctx context.Context, fetcher UserFetcher, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	g.Refresh(ctx, fetcher)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Refresh(ctx, fetcher)
		}
	}
}
