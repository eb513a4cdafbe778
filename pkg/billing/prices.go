package billing

import "findyourdeal_backend/pkg/config"

// Catalog plan ids as seeded in the plans table.
const (
	PlanIDTrial    uint = 1
	PlanIDStarter  uint = 2
	PlanIDGrowth   uint = 3
	PlanIDPlatinum uint = 4
)

// PriceMap translates Stripe price ids into catalog plan ids. It is built
// from environment configuration only; config.Validate rejects an
// incomplete mapping at startup.
type PriceMap struct {
	Starter  string
	Growth   string
	Platinum string
	Addon    string
}

func NewPriceMap(cfg config.StripeConfig) PriceMap {
	return PriceMap{
		Starter:  cfg.PriceStarter,
		Growth:   cfg.PriceGrowth,
		Platinum: cfg.PricePlatinum,
		Addon:    cfg.PriceAddon,
	}
}

// PlanID returns 0 for unknown prices.
func (m PriceMap) PlanID(priceID string) uint {
	switch {
	case priceID == "":
		return 0
	case priceID == m.Starter:
		return PlanIDStarter
	case priceID == m.Growth:
		return PlanIDGrowth
	case priceID == m.Platinum:
		return PlanIDPlatinum
	default:
		return 0
	}
}

func (m PriceMap) IsAddon(priceID string) bool {
	return priceID != "" && priceID == m.Addon
}

// PriceForPlanCode is the outbound direction, used when creating checkout
// sessions.
func (m PriceMap) PriceForPlanCode(code string) (string, uint) {
	switch code {
	case "starter":
		return m.Starter, PlanIDStarter
	case "growth":
		return m.Growth, PlanIDGrowth
	case "platinum":
		return m.Platinum, PlanIDPlatinum
	default:
		return "", 0
	}
}

func PlanIDByCode(code string) uint {
	switch code {
	case "trial":
		return PlanIDTrial
	case "starter":
		return PlanIDStarter
	case "growth":
		return PlanIDGrowth
	case "platinum":
		return PlanIDPlatinum
	default:
		return 0
	}
}

// ResolvePlanID maps a price id, falling back to a plan-code alias from
// event metadata. Neither resolving is a hard failure: money-handling
// paths must not default to a plan.
func (m PriceMap) ResolvePlanID(priceID, planCodeAlias string) (uint, error) {
	if id := m.PlanID(priceID); id != 0 {
		return id, nil
	}
	if id := PlanIDByCode(planCodeAlias); id != 0 {
		return id, nil
	}
	return 0, ErrPlanMappingFailed
}
