package subscription

import (
	"fmt"
	"time"
)

// PromoThreshold is the customer count below which a signup locks in
// promotional pricing. The count is read once at signup time and the
// resulting price/promo flag are never recomputed.
const PromoThreshold int64 = 100

// Plan describes a subscription plan available for purchase
type Plan struct {
	Code        string `json:"code"`        // Plan code as submitted by the client (e.g. "6-bulan")
	Months      int    `json:"months"`      // Calendar months of access
	PromoPrice  int64  `json:"promoPrice"`  // Whole currency units
	NormalPrice int64  `json:"normalPrice"` // Whole currency units
	Name        string `json:"name"`        // Shown on the bill
}

var definedPlans = []Plan{
	{
		Code:        "6-bulan",
		Months:      6,
		PromoPrice:  50,
		NormalPrice: 60,
		Name:        "Langganan 6 Bulan",
	},
	{
		Code:        "12-bulan",
		Months:      12,
		PromoPrice:  80,
		NormalPrice: 100,
		Name:        "Langganan 12 Bulan",
	},
}

// ListDefinedPlans returns the plans available for purchase
func ListDefinedPlans() []Plan {
	plans := make([]Plan, len(definedPlans))
	copy(plans, definedPlans)
	return plans
}

// LookupPlan returns the Plan for a plan code
func LookupPlan(code string) (Plan, bool) {
	for _, p := range definedPlans {
		if p.Code == code {
			return p, true
		}
	}
	return Plan{}, false
}

// Price returns the whole-unit price for this Plan given the promo flag
func (p Plan) Price(promo bool) int64 {
	if promo {
		return p.PromoPrice
	}
	return p.NormalPrice
}

// EndDate returns the subscription end date: the given day advanced by
// the plan duration, truncated to a calendar date
func (p Plan) EndDate(from time.Time) time.Time {
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	return day.AddDate(0, p.Months, 0)
}

// BillDescription returns the description sent to the billing provider,
// tagged with the pricing tier that applied
func (p Plan) BillDescription(promo bool) string {
	tier := "biasa"
	if promo {
		tier = "promosi"
	}
	return fmt.Sprintf("%s (%s)", p.Name, tier)
}
