package paywall

// Plan is one purchasable Stars pack. The catalog is immutable configuration,
// not runtime data; prices and grants change only with a release.
type Plan struct {
	ID              string
	Name            string
	Stars           int
	StandardCredits int
	PremiumCredits  int
	Features        []string
	Best            bool
}

var plans = []Plan{
	{
		ID:              "starter",
		Name:            "Starter",
		Stars:           250,
		StandardCredits: 10,
		Features: []string{
			"10 Medium-quality images",
			"Fast generation",
			"All basic styles",
			"Small watermark",
		},
	},
	{
		ID:              "creator",
		Name:            "Creator",
		Stars:           1500,
		StandardCredits: 10,
		PremiumCredits:  5,
		Best:            true,
		Features: []string{
			"10 Medium images",
			"5 Pro images",
			"Pro image quality",
			"No watermark",
		},
	},
	{
		ID:              "magician",
		Name:            "Magician",
		Stars:           1500,
		PremiumCredits:  10,
		Features: []string{
			"10 Pro images",
			"Maximum realism",
			"Pro image quality",
			"No watermark",
		},
	},
}

// Plans returns the catalog in display order.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

// PlanByID looks a plan up, returning nil for unknown ids.
func PlanByID(id string) *Plan {
	for i := range plans {
		if plans[i].ID == id {
			plan := plans[i]
			return &plan
		}
	}
	return nil
}
